package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
	"gonum.org/v1/gonum/diff/fd"
)

// DefaultStep is the default finite difference step.
const DefaultStep = 1e-4

// LBFGSB is the bounded limited memory BFGS minimizer applied to the
// negative log likelihood.
type LBFGSB struct {
	BaseOptimizer
	dH         float64
	iterations int
	// stop makes the objective flat, so the optimizer exits.
	stop  bool
	stopF float64
	grad  []float64
	x     []float64
}

// NewLBFGSB creates a new L-BFGS-B optimizer.
func NewLBFGSB() (l *LBFGSB) {
	l = &LBFGSB{
		dH: DefaultStep,
	}
	l.method = "L-BFGS-B"
	l.repPeriod = 1
	return
}

// SetStep sets the finite difference step.
func (l *LBFGSB) SetStep(dH float64) {
	l.dH = dH
}

// Logger is called after every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	l.l = -info.F
	if l.i%l.repPeriod == 0 {
		if err := l.parameters.SetValues(info.X); err == nil {
			l.PrintLine(l.parameters, l.l)
		}
	}
	if l.stop {
		return
	}
	if l.signalled() {
		l.halt(info.F)
	}
	if l.i >= l.iterations {
		l.message = "iteration limit reached"
		l.halt(info.F)
	}
}

func (l *LBFGSB) halt(f float64) {
	l.stop = true
	l.stopF = f
}

// EvaluateFunction returns the negative log likelihood.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.stop {
		return l.stopF
	}
	return l.negLikelihood(x)
}

func (l *LBFGSB) negLikelihood(x []float64) float64 {
	if !l.parameters.Allows(x) {
		return math.Inf(+1)
	}
	if err := l.parameters.SetValues(x); err != nil {
		return math.Inf(+1)
	}
	L := l.likelihood(l.Optimizable)
	if math.IsNaN(L) {
		return math.Inf(+1)
	}
	l.saveMax(l.parameters, L)
	return -L
}

// EvaluateGradient returns the central difference gradient.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
		l.x = make([]float64, len(x))
	}
	if l.stop {
		for i := range l.grad {
			l.grad[i] = 0
		}
		return l.grad
	}
	copy(l.x, x)
	fd.Gradient(l.grad, l.negLikelihood, l.x, &fd.Settings{
		Formula: fd.Central,
		Step:    l.dH,
	})
	for i, g := range l.grad {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			l.grad[i] = 0
		}
	}
	return l.grad
}

// Run starts the optimization.
func (l *LBFGSB) Run(iterations int) {
	defer l.finish()
	l.iterations = iterations
	l.stop = false
	l.PrintHeader(l.parameters)
	x0 := l.parameters.Values(nil)
	if len(x0) == 0 {
		l.l = l.likelihood(l.Optimizable)
		l.saveMax(l.parameters, l.l)
		l.converged = true
		return
	}
	l.l = l.likelihood(l.Optimizable)
	l.saveMax(l.parameters, l.l)
	if iterations < 1 {
		l.message = "iteration limit reached"
		return
	}

	bounds := make([][2]float64, len(l.parameters))
	for i, par := range l.parameters {
		lo, hi := par.Bounds()
		bounds[i] = [2]float64{lo + l.dH, hi - l.dH}
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, x0)
	log.Debugf("Exit status: %v", exitStatus)
	if !l.stop {
		l.converged = true
		l.message = exitStatus.Message
	}
	l.l = l.maxL
	l.PrintFinal()
}
