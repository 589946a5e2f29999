package pipeline

import (
	"io"
	"os"

	"bitbucket.org/Davydov/afsfit/optimize"
)

// OptimizerSettings stores settings for creation of a new optimizer.
type OptimizerSettings struct {
	// Method is one of optimize.Methods().
	Method string
	// Iterations is the maximum number of optimizer iterations.
	Iterations int
	// Report is the trajectory reporting period.
	Report int
	// Trajectory receives the optimization trajectory if not nil.
	Trajectory io.Writer
	// Signals stop the optimizer, which then returns the best point.
	Signals []os.Signal
	// Delta is the initial simplex edge in log parameter units; zero
	// keeps the default.
	Delta float64
	// Step is the finite difference step of the gradient methods;
	// zero keeps the default.
	Step float64
}

// create creates and initializes a new optimizer for the objective.
func (o *OptimizerSettings) create(obj optimize.Optimizable) (optimize.Optimizer, error) {
	opt, err := optimize.New(o.Method)
	if err != nil {
		return nil, err
	}
	log.Debugf("Using %s optimization.", o.Method)
	switch opt := opt.(type) {
	case *optimize.DS:
		if o.Delta > 0 {
			opt.SetDelta(o.Delta)
		}
	case *optimize.LBFGSB:
		if o.Step > 0 {
			opt.SetStep(o.Step)
		}
	case *optimize.Gonum:
		if o.Step > 0 {
			opt.SetStep(o.Step)
		}
	}
	opt.SetTrajectoryOutput(o.Trajectory)
	opt.SetOptimizable(obj)
	if o.Report > 0 {
		opt.SetReportPeriod(o.Report)
	}
	if len(o.Signals) > 0 {
		opt.WatchSignals(o.Signals...)
	}
	return opt, nil
}
