package inference

import (
	"math"

	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/optimize"
	"bitbucket.org/Davydov/afsfit/spectrum"
)

// Score is the fit of a model at a parameter point.
type Score struct {
	LL    float64
	Theta float64
}

// Evaluate computes the model spectrum (folded if the data is folded)
// and scores it against the data.
func Evaluate(f demography.Func, params []float64, data *spectrum.Spectrum, pts []int) (Score, error) {
	model, err := f(params, data.SampleSizes(), pts)
	if err != nil {
		return Score{}, err
	}
	if data.Folded() {
		model = model.Fold()
	}
	theta, err := OptimalScaling(model, data)
	if err != nil {
		return Score{}, err
	}
	ll, err := LL(model.Scale(theta), data)
	if err != nil {
		return Score{}, err
	}
	return Score{LL: ll, Theta: theta}, nil
}

// Objective is the likelihood of a model as a function of the
// logarithms of its parameters.
type Objective struct {
	spec *demography.Spec
	f    demography.Func
	data *spectrum.Spectrum
	pts  []int

	logp       []float64
	parameters optimize.FloatParameters
	changed    bool
	l          float64
}

// NewObjective creates an objective starting at params. Parameter
// bounds are the logarithms of the model bounds.
func NewObjective(spec *demography.Spec, f demography.Func, data *spectrum.Spectrum, pts []int, params []float64) (*Objective, error) {
	if err := spec.CheckStart(params); err != nil {
		return nil, err
	}
	o := &Objective{
		spec: spec,
		f:    f,
		data: data,
		pts:  pts,
		logp: make([]float64, len(params)),
	}
	for i, p := range params {
		o.logp[i] = math.Log(p)
	}
	o.setup()
	return o, nil
}

func (o *Objective) setup() {
	o.changed = true
	o.parameters = nil
	for i, name := range o.spec.Names {
		par := optimize.NewFloat(&o.logp[i], "log_"+name, math.Log(o.spec.Lower[i]), math.Log(o.spec.Upper[i]))
		par.OnChange(func() {
			o.changed = true
		})
		o.parameters.Append(par)
	}
}

// GetFloatParameters returns the log parameters.
func (o *Objective) GetFloatParameters() optimize.FloatParameters {
	return o.parameters
}

// Copy creates a copy at the same point sharing the model and data.
func (o *Objective) Copy() optimize.Optimizable {
	c := &Objective{
		spec: o.spec,
		f:    o.f,
		data: o.data,
		pts:  o.pts,
		logp: append([]float64(nil), o.logp...),
	}
	c.setup()
	c.changed = o.changed
	c.l = o.l
	return c
}

// Params returns the parameters on the natural scale.
func (o *Objective) Params() []float64 {
	p := make([]float64, len(o.logp))
	for i, v := range o.logp {
		p[i] = math.Exp(v)
	}
	return p
}

// Likelihood returns the log likelihood at the current point, or -Inf
// if the model cannot be computed.
func (o *Objective) Likelihood() float64 {
	if !o.changed {
		return o.l
	}
	s, err := Evaluate(o.f, o.Params(), o.data, o.pts)
	if err != nil {
		log.Debugf("%s: %v", o.spec.ID, err)
		s.LL = math.Inf(-1)
	}
	o.l = s.LL
	o.changed = false
	return o.l
}
