package demography

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/afsfit/spectrum"
)

var (
	// ErrUnknownModel is returned for a model identifier which is
	// not in the catalogue.
	ErrUnknownModel = errors.New("unknown model")
	// ErrParameterCount is returned when a parameter vector length
	// does not match the model.
	ErrParameterCount = errors.New("wrong number of parameters")
)

// Func computes the expected spectrum of a model (theta=1) for the
// parameters, sample sizes and grid points.
type Func func(params []float64, ns []int, pts []int) (*spectrum.Spectrum, error)

// migration is a symmetric migration between two demes of a phase,
// its rate is the parameter with index rate.
type migration struct {
	a, b int
	rate int
}

// phase is a time interval of a model topology. sizes and time are
// parameter indices.
type phase struct {
	sizes []int
	time  int
	mig   []migration
}

// Size parameter indices shared by all the three population models:
// population 1 splits from the ancestor of populations 2 and 3 (A),
// which later splits into 2 and 3.
const (
	nu1 = iota
	nuA
	nu2
	nu3
)

var (
	twoPops   = []int{nu1, nuA}
	threePops = []int{nu1, nu2, nu3}
)

// Spec is a catalogue model specification.
type Spec struct {
	// ID is the model identifier used in file names and
	// configuration.
	ID string
	// Label is a human readable name written to the result files.
	Label string
	// Names are the parameter names.
	Names []string
	// Lower and Upper are the optimization bounds.
	Lower []float64
	Upper []float64

	// phases are ordered forward in time.
	phases []phase
}

// NParams returns the number of free parameters.
func (s *Spec) NParams() int {
	return len(s.Names)
}

// Penalty returns the AIC penalty, two per free parameter.
func (s *Spec) Penalty() float64 {
	return 2 * float64(s.NParams())
}

// ParamSet returns the parameter names label written to the result
// files, e.g. "parameter set = [nu1, nuA, nu2, nu3, T1, T2]".
func (s *Spec) ParamSet() string {
	return "parameter set = [" + strings.Join(s.Names, ", ") + "]"
}

// Validate checks that names and bounds agree and that the topology
// refers to existing parameters.
func (s *Spec) Validate() error {
	n := len(s.Names)
	if n == 0 {
		return fmt.Errorf("model %s has no parameters", s.ID)
	}
	if len(s.Lower) != n || len(s.Upper) != n {
		return fmt.Errorf("model %s: %w: %d names, %d lower and %d upper bounds",
			s.ID, ErrParameterCount, n, len(s.Lower), len(s.Upper))
	}
	for i := range s.Names {
		if s.Lower[i] > s.Upper[i] || s.Lower[i] < 0 {
			return fmt.Errorf("model %s: invalid bounds [%v, %v] for %s", s.ID, s.Lower[i], s.Upper[i], s.Names[i])
		}
	}
	if len(s.phases) == 0 {
		return fmt.Errorf("model %s has no phases", s.ID)
	}
	used := make([]bool, n)
	for _, ph := range s.phases {
		idx := append([]int{ph.time}, ph.sizes...)
		for _, m := range ph.mig {
			if m.a < 0 || m.b < 0 || m.a >= len(ph.sizes) || m.b >= len(ph.sizes) || m.a == m.b {
				return fmt.Errorf("model %s: invalid migration demes %d-%d", s.ID, m.a, m.b)
			}
			idx = append(idx, m.rate)
		}
		for _, i := range idx {
			if i < 0 || i >= n {
				return fmt.Errorf("model %s: parameter index %d out of range", s.ID, i)
			}
			used[i] = true
		}
	}
	for i, u := range used {
		if !u {
			return fmt.Errorf("model %s: parameter %s is not used", s.ID, s.Names[i])
		}
	}
	return nil
}

// CheckStart checks that a starting vector fits the model: the length
// matches and the values are positive and within the bounds.
func (s *Spec) CheckStart(start []float64) error {
	if len(start) != s.NParams() {
		return fmt.Errorf("model %s: %w: expected %d, got %d", s.ID, ErrParameterCount, s.NParams(), len(start))
	}
	for i, v := range start {
		if !(v > 0) || v < s.Lower[i] || v > s.Upper[i] {
			return fmt.Errorf("model %s: starting value %s=%v should be positive and within [%v, %v]",
				s.ID, s.Names[i], v, s.Lower[i], s.Upper[i])
		}
	}
	return nil
}

// Build creates the demography for the parameter values.
func (s *Spec) Build(params []float64) (*Demography, error) {
	if len(params) != s.NParams() {
		return nil, fmt.Errorf("model %s: %w: expected %d, got %d", s.ID, ErrParameterCount, s.NParams(), len(params))
	}
	d := &Demography{Epochs: make([]Epoch, 0, len(s.phases)+1)}
	for i := len(s.phases) - 1; i >= 0; i-- {
		ph := s.phases[i]
		e := Epoch{
			Duration: params[ph.time],
			Sizes:    make([]float64, len(ph.sizes)),
		}
		for j, pi := range ph.sizes {
			e.Sizes[j] = params[pi]
		}
		if len(ph.mig) > 0 {
			e.Migration = mat.NewSymDense(len(ph.sizes), nil)
			for _, m := range ph.mig {
				e.Migration.SetSym(m.a, m.b, params[m.rate])
			}
		}
		d.Epochs = append(d.Epochs, e)
	}
	d.Epochs = append(d.Epochs, Epoch{
		Duration: math.Inf(1),
		Sizes:    []float64{1},
	})
	for i := 0; i < len(d.Epochs)-1; i++ {
		d.Epochs[i].Parents = parents(len(d.Epochs[i].Sizes), len(d.Epochs[i+1].Sizes))
	}
	return d, d.Validate()
}

// parents maps demes onto the older epoch. Three populations map onto
// population 1 and the ancestor of 2 and 3; any number of demes maps
// onto a single ancestor.
func parents(n, older int) []int {
	p := make([]int, n)
	switch {
	case older == 1:
	case n == older:
		for i := range p {
			p[i] = i
		}
	case n == 3 && older == 2:
		p[1], p[2] = 1, 1
	default:
		panic(fmt.Sprintf("no deme mapping from %d to %d demes", n, older))
	}
	return p
}

// bounds for the three kinds of parameters.
const (
	sizeMin = 0.01
	sizeMax = 30
	migMin  = 0.01
	migMax  = 20
	timeMin = 0
	timeMax = 10
)

// catalogue lists all the supported models, the order is the run order.
var catalogue = []*Spec{
	{
		ID:    "split_nomig",
		Label: "Split with No Migration",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "T1", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 4},
			{sizes: threePops, time: 5},
		},
	},
	{
		ID:    "split_symmig_all",
		Label: "Split with Symmetric Migration",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "mA", "m1", "m2", "m3", "T1", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, migMin, migMin, migMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, migMax, migMax, migMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 8, mig: []migration{{0, 1, 4}}},
			{sizes: threePops, time: 9, mig: []migration{{0, 1, 5}, {1, 2, 6}, {0, 2, 7}}},
		},
	},
	{
		ID:    "split_symmig_adjacent",
		Label: "Split with Adjacent Symmetric Migration",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "mA", "m1", "m2", "T1", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, migMin, migMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, migMax, migMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 7, mig: []migration{{0, 1, 4}}},
			{sizes: threePops, time: 8, mig: []migration{{0, 1, 5}, {1, 2, 6}}},
		},
	},
	{
		ID:    "refugia_1",
		Label: "Refugia 1 with secondary contact",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "m1", "m2", "T1", "T2", "T3"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, migMin, timeMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, migMax, timeMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 6},
			{sizes: threePops, time: 7},
			{sizes: threePops, time: 8, mig: []migration{{0, 1, 4}, {1, 2, 5}}},
		},
	},
	{
		ID:    "refugia_2",
		Label: "Refugia 2 with secondary contact",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "m1", "m2", "T1", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, migMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, migMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 6},
			{sizes: threePops, time: 7, mig: []migration{{0, 1, 4}, {1, 2, 5}}},
		},
	},
	{
		ID:    "refugia_3",
		Label: "Refugia 3 with secondary contact",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "mA", "m1", "m2", "T1a", "T1b", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, migMin, migMin, timeMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, migMax, migMax, timeMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 7},
			{sizes: twoPops, time: 8, mig: []migration{{0, 1, 4}}},
			{sizes: threePops, time: 9, mig: []migration{{0, 1, 5}, {1, 2, 6}}},
		},
	},
	{
		ID:    "ancmig_3",
		Label: "Ancient migration 3",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "mA", "T1a", "T1b", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, timeMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, timeMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 5, mig: []migration{{0, 1, 4}}},
			{sizes: twoPops, time: 6},
			{sizes: threePops, time: 7},
		},
	},
	{
		ID:    "ancmig_2",
		Label: "Ancient migration 2",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "mA", "T1", "T2"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 5, mig: []migration{{0, 1, 4}}},
			{sizes: threePops, time: 6},
		},
	},
	{
		ID:    "ancmig_1",
		Label: "Ancient migration 1",
		Names: []string{"nu1", "nuA", "nu2", "nu3", "mA", "m1", "m2", "T1", "T2", "T3"},
		Lower: []float64{sizeMin, sizeMin, sizeMin, sizeMin, migMin, migMin, migMin, timeMin, timeMin, timeMin},
		Upper: []float64{sizeMax, sizeMax, sizeMax, sizeMax, migMax, migMax, migMax, timeMax, timeMax, timeMax},
		phases: []phase{
			{sizes: twoPops, time: 7, mig: []migration{{0, 1, 4}}},
			{sizes: threePops, time: 8, mig: []migration{{0, 1, 5}, {1, 2, 6}}},
			{sizes: threePops, time: 9},
		},
	},
}

// Catalogue returns all the models in the run order.
func Catalogue() []*Spec {
	return append([]*Spec(nil), catalogue...)
}

// ValidateCatalogue validates every model of the catalogue.
func ValidateCatalogue() error {
	seen := make(map[string]bool, len(catalogue))
	for _, s := range catalogue {
		if seen[s.ID] {
			return fmt.Errorf("duplicate model %s", s.ID)
		}
		seen[s.ID] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns a model by its identifier.
func Lookup(id string) (*Spec, error) {
	for _, s := range catalogue {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
}

// LookupLabel returns a model by its label.
func LookupLabel(label string) (*Spec, error) {
	for _, s := range catalogue {
		if s.Label == label {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, label)
}
