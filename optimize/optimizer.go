// Package optimize implements likelihood optimizers working on bounded
// float parameters.
package optimize

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("optimize")

// Optimizable is a likelihood function of float parameters.
type Optimizable interface {
	// GetFloatParameters returns parameters; changing them changes
	// the likelihood.
	GetFloatParameters() FloatParameters
	// Copy returns an independent copy.
	Copy() Optimizable
	// Likelihood returns the log likelihood for the current
	// parameter values.
	Likelihood() float64
}

// Optimizer maximizes the likelihood of an Optimizable.
type Optimizer interface {
	SetOptimizable(Optimizable)
	SetTrajectoryOutput(io.Writer)
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	Run(iterations int)
	GetL() float64
	GetMaxL() float64
	GetMaxLParameters() []float64
	Summary() Summary
}

// Summary stores optimization results.
type Summary struct {
	// Method is the optimizer name.
	Method string `json:"method"`
	// MaxLnL is the maximum log likelihood.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters are the maximum likelihood parameter values.
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	// Iterations is the number of performed iterations.
	Iterations int `json:"iterations"`
	// Calls is the number of likelihood computations.
	Calls int `json:"likelihoodCalls"`
	// Converged is false if the optimizer stopped due to the
	// iteration limit, a signal or an error.
	Converged bool `json:"converged"`
	// Message is the optimizer status.
	Message string `json:"message,omitempty"`
}

// BaseOptimizer implements the functionality shared by the optimizers.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	method     string
	i          int
	calls      int
	l          float64
	maxL       float64
	maxLPar    []float64
	repPeriod  int
	converged  bool
	message    string
	sig        chan os.Signal
	trajF      io.Writer
}

// SetOptimizable sets the function to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
	o.maxL = math.Inf(-1)
	o.maxLPar = nil
}

// SetTrajectoryOutput sets a writer for the optimization trajectory.
func (o *BaseOptimizer) SetTrajectoryOutput(w io.Writer) {
	o.trajF = w
}

// WatchSignals makes optimizer stop after receiving one of the
// signals.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// stopWatching releases the signal channel.
func (o *BaseOptimizer) stopWatching() {
	if o.sig != nil {
		signal.Stop(o.sig)
	}
}

// signalled returns true if a watched signal was received.
func (o *BaseOptimizer) signalled() bool {
	select {
	case s := <-o.sig:
		log.Warningf("Received signal %v, exiting.", s)
		o.message = "interrupted by signal " + s.String()
		return true
	default:
	}
	return false
}

// SetReportPeriod sets the trajectory reporting period.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// likelihood computes the likelihood of the Optimizable and counts
// the call.
func (o *BaseOptimizer) likelihood(opt Optimizable) float64 {
	o.calls++
	return opt.Likelihood()
}

// saveMax stores parameter values if l is the largest likelihood seen.
func (o *BaseOptimizer) saveMax(par FloatParameters, l float64) {
	if l > o.maxL || o.maxLPar == nil {
		o.maxL = l
		o.maxLPar = par.Values(o.maxLPar)
	}
}

// finish sets the optimizable parameters to the maximum likelihood
// values and releases the signals.
func (o *BaseOptimizer) finish() {
	o.stopWatching()
	if o.maxLPar != nil {
		if err := o.parameters.SetValues(o.maxLPar); err != nil {
			log.Error(err)
		}
	}
}

// PrintHeader writes the trajectory header.
func (o *BaseOptimizer) PrintHeader(par FloatParameters) {
	if o.trajF != nil {
		fmt.Fprintf(o.trajF, "iteration\tlikelihood\t%s\n", par.Header())
	}
}

// PrintLine writes a trajectory line.
func (o *BaseOptimizer) PrintLine(par FloatParameters, l float64) {
	if o.trajF != nil {
		fmt.Fprintf(o.trajF, "%d\t%f\t%s\n", o.i, l, par.Format())
	}
}

// PrintFinal logs the final parameter values.
func (o *BaseOptimizer) PrintFinal() {
	log.Debugf("Finished %s", o.method)
	log.Debugf("Maximum likelihood: %v", o.maxL)
	log.Debugf("Likelihood function calls: %v", o.calls)
	log.Debugf("Parameter  names: %v", o.parameters.Header())
	log.Debugf("Parameter values: %v", FormatFloats(o.maxLPar, 6, "\t"))
}

// GetL returns the current likelihood.
func (o *BaseOptimizer) GetL() float64 {
	return o.l
}

// GetMaxL returns the maximum likelihood.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns the maximum likelihood parameter values.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return append([]float64(nil), o.maxLPar...)
}

// Summary returns the optimization summary.
func (o *BaseOptimizer) Summary() Summary {
	s := Summary{
		Method:         o.method,
		MaxLnL:         o.maxL,
		MaxLParameters: make(map[string]float64, len(o.parameters)),
		Iterations:     o.i,
		Calls:          o.calls,
		Converged:      o.converged,
		Message:        o.message,
	}
	for i, par := range o.parameters {
		if i < len(o.maxLPar) {
			s.MaxLParameters[par.Name()] = o.maxLPar[i]
		}
	}
	return s
}
