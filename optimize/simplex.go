package optimize

import (
	"math"
)

const (
	tiny  = 1e-10
	small = 1e-6
	// DefaultDelta is the default initial simplex edge.
	DefaultDelta = 0.1
)

// DS is the downhill simplex (Nelder-Mead) maximizer.
type DS struct {
	BaseOptimizer
	delta   float64
	ftol    float64
	restart bool
	oldL    float64
	points  []Optimizable
	pars    []FloatParameters
	ls      []float64
	centre  []float64
	trial   Optimizable
	trialP  FloatParameters
}

// NewDS creates a downhill simplex optimizer.
func NewDS() (ds *DS) {
	ds = &DS{
		delta: DefaultDelta,
		ftol:  tiny,
	}
	ds.method = "downhill simplex"
	ds.repPeriod = 10
	return
}

// SetDelta sets the initial simplex edge.
func (ds *DS) SetDelta(delta float64) {
	ds.delta = delta
}

// SetOptimizable sets the function to optimize and creates the
// initial simplex around its parameter values.
func (ds *DS) SetOptimizable(opt Optimizable) {
	ds.BaseOptimizer.SetOptimizable(opt)
	ds.restart = false
	ds.trial = nil
	ds.build(opt)
}

// build creates a simplex with a vertex at the parameters of opt and
// one vertex shifted by delta along every parameter. The shift is
// reversed when it leaves the bounds.
func (ds *DS) build(opt Optimizable) {
	origin := opt.GetFloatParameters()
	n := len(origin)
	ds.points = make([]Optimizable, n+1)
	ds.pars = make([]FloatParameters, n+1)
	ds.ls = make([]float64, n+1)
	ds.points[0] = opt
	ds.pars[0] = origin
	for i := 1; i <= n; i++ {
		ds.points[i] = opt.Copy()
		ds.pars[i] = ds.points[i].GetFloatParameters()
		par := ds.pars[i][i-1]
		v := par.Get() + ds.delta
		if !par.Allows(v) {
			v = par.Get() - ds.delta
		}
		par.Set(v)
	}
	for i := range ds.points {
		ds.ls[i] = ds.evaluate(ds.points[i], ds.pars[i])
	}
}

// evaluate returns the likelihood, or -Inf outside of the bounds.
func (ds *DS) evaluate(opt Optimizable, par FloatParameters) float64 {
	if !par.InBounds() {
		return math.Inf(-1)
	}
	l := ds.likelihood(opt)
	if math.IsNaN(l) {
		return math.Inf(-1)
	}
	return l
}

// try moves the worst vertex through the opposite face by factor fac,
// keeping the new point if it is better.
func (ds *DS) try(worst int, fac float64) float64 {
	if ds.trial == nil {
		ds.trial = ds.points[0].Copy()
		ds.trialP = ds.trial.GetFloatParameters()
	}
	ds.centroid()
	n := len(ds.trialP)
	fac1 := (1 - fac) / float64(n)
	fac2 := fac1 - fac
	for j := 0; j < n; j++ {
		ds.trialP[j].Set(ds.centre[j]*fac1 - ds.pars[worst][j].Get()*fac2)
	}
	l := ds.evaluate(ds.trial, ds.trialP)
	if l > ds.ls[worst] {
		ds.points[worst], ds.trial = ds.trial, ds.points[worst]
		ds.pars[worst], ds.trialP = ds.trialP, ds.pars[worst]
		ds.ls[worst] = l
	}
	return l
}

// centroid sums coordinates of all the vertices.
func (ds *DS) centroid() {
	if ds.centre == nil {
		ds.centre = make([]float64, len(ds.pars[0]))
	}
	for j := range ds.centre {
		ds.centre[j] = 0
		for _, par := range ds.pars {
			ds.centre[j] += par[j].Get()
		}
	}
}

// shrink moves every vertex half way towards the best one.
func (ds *DS) shrink(best int) {
	for i, point := range ds.points {
		if i == best {
			continue
		}
		for j := range ds.pars[i] {
			ds.pars[i][j].Set(0.5 * (ds.pars[i][j].Get() + ds.pars[best][j].Get()))
		}
		ds.ls[i] = ds.evaluate(point, ds.pars[i])
	}
}

// order returns indices of the worst, the second worst and the best
// vertices.
func (ds *DS) order() (worst, next, best int) {
	if ds.ls[0] < ds.ls[1] {
		worst, next, best = 0, 1, 1
	} else {
		worst, next, best = 1, 0, 0
	}
	for i := 2; i < len(ds.ls); i++ {
		l := ds.ls[i]
		if l >= ds.ls[best] {
			best = i
		}
		if l < ds.ls[worst] {
			next = worst
			worst = i
		} else if l < ds.ls[next] {
			next = i
		}
	}
	return
}

// Run performs at most iterations simplex steps.
func (ds *DS) Run(iterations int) {
	defer ds.finish()
	ds.PrintHeader(ds.pars[0])
	if len(ds.pars[0]) == 0 {
		ds.l = ds.ls[0]
		ds.saveMax(ds.pars[0], ds.l)
		ds.converged = true
		return
	}
	var worst, next, best int
	for ds.i = 0; ds.i < iterations; {
		worst, next, best = ds.order()
		lo, lnext, hi := ds.ls[worst], ds.ls[next], ds.ls[best]
		ds.saveMax(ds.pars[best], hi)
		ds.l = hi
		if ds.i%ds.repPeriod == 0 {
			log.Debugf("%d: L=%f (%f)", ds.i, hi, hi-lo)
			ds.PrintLine(ds.pars[best], hi)
		}

		rtol := 2 * math.Abs(hi-lo) / (math.Abs(lo) + math.Abs(hi) + tiny)
		if rtol < ds.ftol {
			if ds.restart && math.Abs(ds.oldL-hi) < small {
				ds.converged = true
				break
			}
			ds.restart = true
			ds.oldL = hi
			log.Debug("Simplex collapsed, restarting")
			ds.build(ds.points[best])
			continue
		}
		ds.i++

		l := ds.try(worst, -1)
		switch {
		case l >= hi:
			ds.try(worst, 2)
		case l <= lnext:
			if ds.try(worst, 0.5) <= lo {
				ds.shrink(best)
			}
		}
		if ds.signalled() {
			break
		}
	}
	_, _, best = ds.order()
	ds.saveMax(ds.pars[best], ds.ls[best])
	ds.l = ds.maxL
	if !ds.converged && ds.message == "" {
		ds.message = "iteration limit reached"
		log.Debugf("Iterations exceeded (%d)", iterations)
	}
	ds.PrintLine(ds.pars[best], ds.ls[best])
	ds.PrintFinal()
}
