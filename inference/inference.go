// Package inference compares model spectra with the data: the
// multinomial likelihood, the optimal theta scaling, AIC and starting
// point perturbation.
package inference

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/afsfit/spectrum"
)

var log = logging.MustGetLogger("inference")

// usable returns true if the cell f takes part in the likelihood.
func usable(model, data *spectrum.Spectrum, f int) bool {
	return !model.Masked(f) && !data.Masked(f) && model.Flat(f) > 0
}

func checkShape(model, data *spectrum.Spectrum) error {
	if !model.SameShape(data) {
		return fmt.Errorf("%w: model %v, data %v", spectrum.ErrShape, model.SampleSizes(), data.SampleSizes())
	}
	return nil
}

// OptimalScaling returns theta maximizing the Poisson likelihood of
// the data given theta times the model, i.e. the ratio of the data
// sum and the model sum over the cells unmasked in both.
func OptimalScaling(model, data *spectrum.Spectrum) (float64, error) {
	if err := checkShape(model, data); err != nil {
		return 0, err
	}
	var sm, sd float64
	for f := 0; f < data.Len(); f++ {
		if model.Masked(f) || data.Masked(f) {
			continue
		}
		sm += model.Flat(f)
		sd += data.Flat(f)
	}
	if sm <= 0 {
		return 0, fmt.Errorf("model spectrum is empty")
	}
	return sd / sm, nil
}

// LL returns the Poisson log likelihood of the data given the model.
// Masked cells and the cells where the model is not positive are
// skipped.
func LL(model, data *spectrum.Spectrum) (float64, error) {
	if err := checkShape(model, data); err != nil {
		return 0, err
	}
	ll := 0.0
	skipped := 0
	for f := 0; f < data.Len(); f++ {
		if !usable(model, data, f) {
			if !data.Masked(f) && !model.Masked(f) && data.Flat(f) > 0 {
				skipped++
			}
			continue
		}
		m := model.Flat(f)
		d := data.Flat(f)
		lg, _ := math.Lgamma(d + 1)
		ll += -m + d*math.Log(m) - lg
	}
	if skipped > 0 {
		log.Debugf("%d observed cells have zero model expectation", skipped)
	}
	return ll, nil
}

// LLMultinom returns the log likelihood of the data given the model
// scaled by the optimal theta.
func LLMultinom(model, data *spectrum.Spectrum) (float64, error) {
	theta, err := OptimalScaling(model, data)
	if err != nil {
		return 0, err
	}
	return LL(model.Scale(theta), data)
}

// Round rounds x to the number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// AIC returns the Akaike information criterion for a log likelihood
// rounded to two decimals and k free parameters.
func AIC(ll float64, k int) float64 {
	return -2*Round(ll, 2) + 2*float64(k)
}

// Perturb multiplies every parameter by 2^(fold*u), u ~ U(-1, 1). The
// result is kept within 1% inside the bounds.
func Perturb(params []float64, fold float64, lower, upper []float64, src rand.Source) ([]float64, error) {
	if len(lower) != len(params) || len(upper) != len(params) {
		return nil, fmt.Errorf("%d parameters, %d lower and %d upper bounds", len(params), len(lower), len(upper))
	}
	u := distuv.Uniform{Min: -1, Max: 1, Src: src}
	res := make([]float64, len(params))
	for i, p := range params {
		v := p * math.Pow(2, fold*u.Rand())
		lo := lower[i] + 0.01*math.Abs(lower[i])
		hi := upper[i] - 0.01*math.Abs(upper[i])
		res[i] = math.Min(math.Max(v, lo), hi)
	}
	return res, nil
}
