package optimize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParameterCount is returned when a value slice does not match
// the parameters.
var ErrParameterCount = errors.New("incorrect number of parameters")

// FloatParameter is a named bounded value the optimizers can change.
type FloatParameter interface {
	Name() string
	Get() float64
	Set(float64)
	// Bounds returns the closed interval of allowed values.
	Bounds() (min, max float64)
	SetBounds(min, max float64)
	// OnChange registers a function called after the value changes.
	OnChange(func())
	// Allows checks if v is within the bounds.
	Allows(v float64) bool
}

// FloatParameters is an ordered list of parameters.
type FloatParameters []FloatParameter

// Append adds a parameter.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Names returns the parameter names.
func (p FloatParameters) Names() []string {
	names := make([]string, len(p))
	for i, par := range p {
		names[i] = par.Name()
	}
	return names
}

// Values stores the current values into dst, which is allocated if
// it is too short, and returns it.
func (p FloatParameters) Values(dst []float64) []float64 {
	if len(dst) < len(p) {
		dst = make([]float64, len(p))
	}
	dst = dst[:len(p)]
	for i, par := range p {
		dst[i] = par.Get()
	}
	return dst
}

// SetValues sets all the parameter values.
func (p FloatParameters) SetValues(v []float64) error {
	if len(v) != len(p) {
		return fmt.Errorf("%w: %d values for %d parameters", ErrParameterCount, len(v), len(p))
	}
	for i, par := range p {
		par.Set(v[i])
	}
	return nil
}

// Allows checks if every value is within the bounds of its parameter.
// A length mismatch is a programming error.
func (p FloatParameters) Allows(v []float64) bool {
	if len(v) != len(p) {
		panic(ErrParameterCount)
	}
	for i, par := range p {
		if !par.Allows(v[i]) {
			return false
		}
	}
	return true
}

// InBounds checks the current values.
func (p FloatParameters) InBounds() bool {
	for _, par := range p {
		if !par.Allows(par.Get()) {
			return false
		}
	}
	return true
}

// Header returns the tab separated names.
func (p FloatParameters) Header() string {
	return strings.Join(p.Names(), "\t")
}

// Format returns the tab separated values with six decimals.
func (p FloatParameters) Format() string {
	return FormatFloats(p.Values(nil), 6, "\t")
}

// Float is a parameter stored in a float64 variable owned by the
// optimizable.
type Float struct {
	value    *float64
	name     string
	min, max float64
	onChange func()
}

// NewFloat creates a parameter bound to v. Infinite bounds are
// allowed.
func NewFloat(v *float64, name string, min, max float64) *Float {
	return &Float{value: v, name: name, min: min, max: max}
}

func (p *Float) Name() string { return p.name }

func (p *Float) Get() float64 { return *p.value }

// Set changes the value; the callback is skipped if the value is the
// same.
func (p *Float) Set(v float64) {
	if *p.value == v {
		return
	}
	*p.value = v
	if p.onChange != nil {
		p.onChange()
	}
}

func (p *Float) Bounds() (float64, float64) { return p.min, p.max }

func (p *Float) SetBounds(min, max float64) {
	p.min, p.max = min, max
}

func (p *Float) OnChange(f func()) { p.onChange = f }

func (p *Float) Allows(v float64) bool {
	return v >= p.min && v <= p.max
}
