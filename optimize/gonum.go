package optimize

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

var errSignal = errors.New("exiting by signal")

// Gonum minimizes the negative log likelihood using one of the
// gonum local optimization methods.
type Gonum struct {
	BaseOptimizer
	name string
	dH   float64
	x    []float64
}

// GonumMethods lists the supported gonum methods.
var GonumMethods = []string{"bfgs", "lbfgs", "neldermead"}

// NewGonum creates an optimizer using the named gonum method.
func NewGonum(name string) (*Gonum, error) {
	if _, err := gonumMethod(name); err != nil {
		return nil, err
	}
	g := &Gonum{
		name: name,
		dH:   DefaultStep,
	}
	g.method = "gonum " + name
	g.repPeriod = 1
	return g, nil
}

func gonumMethod(name string) (optimize.Method, error) {
	switch name {
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "lbfgs":
		return &optimize.LBFGS{}, nil
	case "neldermead":
		return &optimize.NelderMead{}, nil
	}
	return nil, fmt.Errorf("unknown gonum method: %s", name)
}

// SetStep sets the finite difference step.
func (g *Gonum) SetStep(dH float64) {
	g.dH = dH
}

// Init is a part of the optimize.Recorder interface.
func (g *Gonum) Init() error {
	return nil
}

// Record is a part of the optimize.Recorder interface.
func (g *Gonum) Record(l *optimize.Location, op optimize.Operation, s *optimize.Stats) error {
	if op == optimize.MajorIteration {
		g.i = s.MajorIterations
		g.l = -l.F
		if g.i%g.repPeriod == 0 {
			if err := g.parameters.SetValues(l.X); err == nil {
				g.PrintLine(g.parameters, g.l)
			}
		}
	}
	if g.signalled() {
		return errSignal
	}
	return nil
}

// Func returns the negative log likelihood.
func (g *Gonum) Func(x []float64) float64 {
	if !g.parameters.Allows(x) {
		return math.Inf(+1)
	}
	if err := g.parameters.SetValues(x); err != nil {
		return math.Inf(+1)
	}
	l := g.likelihood(g.Optimizable)
	if math.IsNaN(l) {
		return math.Inf(+1)
	}
	g.saveMax(g.parameters, l)
	return -l
}

// Grad computes the central difference gradient. Components which
// cannot be computed are set to zero.
func (g *Gonum) Grad(grad, x []float64) {
	if g.x == nil {
		g.x = make([]float64, len(x))
	}
	copy(g.x, x)
	fd.Gradient(grad, g.Func, g.x, &fd.Settings{
		Formula: fd.Central,
		Step:    g.dH,
	})
	for i, v := range grad {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			grad[i] = 0
		}
	}
}

// Run starts the optimization.
func (g *Gonum) Run(iterations int) {
	defer g.finish()
	g.PrintHeader(g.parameters)
	x0 := g.parameters.Values(nil)
	g.l = g.likelihood(g.Optimizable)
	g.saveMax(g.parameters, g.l)
	if len(x0) == 0 {
		g.converged = true
		return
	}
	// zero MajorIterations means no limit in gonum
	if iterations < 1 {
		g.message = "iteration limit reached"
		return
	}
	method, err := gonumMethod(g.name)
	if err != nil {
		g.message = err.Error()
		log.Error(err)
		return
	}
	settings := &optimize.Settings{
		MajorIterations:   iterations,
		GradientThreshold: 1e-6,
		Recorder:          g,
	}
	problem := optimize.Problem{
		Func: g.Func,
		Grad: g.Grad,
	}
	res, err := optimize.Minimize(problem, x0, settings, method)
	switch {
	case errors.Is(err, errSignal):
	case err != nil:
		log.Warningf("Optimization error: %v", err)
		g.message = err.Error()
	default:
		g.message = res.Status.String()
		g.converged = res.Status != optimize.IterationLimit
	}
	if res != nil {
		log.Debugf("%s: status %v, %d function evaluations", g.method, res.Status, res.FuncEvaluations)
	}
	g.l = g.maxL
	g.PrintFinal()
}
