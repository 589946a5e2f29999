// Package spectrum implements joint allele frequency spectra.
//
// A spectrum for p populations with sample sizes n_1..n_p is a
// p-dimensional array of shape (n_1+1)x...x(n_p+1). Entry (i_1,...,i_p)
// holds the number of sites where i_k of the n_k sampled copies of
// population k carry the derived allele. Values are stored flat in the
// row-major order, which makes reversing all the axes at once the same
// as reversing the flat slice.
package spectrum

import (
	"errors"
	"fmt"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
)

var log = logging.MustGetLogger("spectrum")

// ErrShape is returned when two spectra or a spectrum and an index
// disagree on dimensions.
var ErrShape = errors.New("spectrum shape mismatch")

// Spectrum is a joint allele frequency spectrum.
type Spectrum struct {
	// PopIDs are population names, one per axis. May be empty for
	// model spectra.
	PopIDs []string

	ns     []int
	stride []int
	data   []float64
	mask   []bool
	folded bool
}

// New creates a new empty spectrum with given sample sizes. The
// all-ancestral and the all-derived entries are masked.
func New(ns []int, popIDs []string) (*Spectrum, error) {
	if len(ns) == 0 {
		return nil, errors.New("spectrum needs at least one population")
	}
	if len(popIDs) != 0 && len(popIDs) != len(ns) {
		return nil, fmt.Errorf("%w: %d population ids for %d axes", ErrShape, len(popIDs), len(ns))
	}
	s := &Spectrum{
		ns:     append([]int(nil), ns...),
		stride: make([]int, len(ns)),
	}
	if len(popIDs) > 0 {
		s.PopIDs = append([]string(nil), popIDs...)
	}
	size := 1
	for i := len(ns) - 1; i >= 0; i-- {
		if ns[i] < 1 {
			return nil, fmt.Errorf("sample size for axis %d should be positive, got %d", i, ns[i])
		}
		s.stride[i] = size
		size *= ns[i] + 1
	}
	s.data = make([]float64, size)
	s.mask = make([]bool, size)
	s.mask[0] = true
	s.mask[size-1] = true
	return s, nil
}

// SampleSizes returns the number of sampled copies per population.
func (s *Spectrum) SampleSizes() []int {
	return append([]int(nil), s.ns...)
}

// Shape returns the array dimensions, i.e. sample sizes plus one.
func (s *Spectrum) Shape() []int {
	shape := make([]int, len(s.ns))
	for i, n := range s.ns {
		shape[i] = n + 1
	}
	return shape
}

// Dims returns the number of populations.
func (s *Spectrum) Dims() int {
	return len(s.ns)
}

// Len returns the number of entries.
func (s *Spectrum) Len() int {
	return len(s.data)
}

// Strides returns the flat index increments per axis.
func (s *Spectrum) Strides() []int {
	return append([]int(nil), s.stride...)
}

// Folded returns true if the spectrum is folded.
func (s *Spectrum) Folded() bool {
	return s.folded
}

// SameShape returns true if both spectra have equal sample sizes.
func (s *Spectrum) SameShape(o *Spectrum) bool {
	if len(s.ns) != len(o.ns) {
		return false
	}
	for i := range s.ns {
		if s.ns[i] != o.ns[i] {
			return false
		}
	}
	return true
}

// Index converts per-axis derived counts into a flat index.
func (s *Spectrum) Index(idx ...int) int {
	if len(idx) != len(s.ns) {
		panic(fmt.Sprintf("%d indices for %d axes", len(idx), len(s.ns)))
	}
	f := 0
	for i, v := range idx {
		if v < 0 || v > s.ns[i] {
			panic(fmt.Sprintf("index %d out of range [0, %d] on axis %d", v, s.ns[i], i))
		}
		f += v * s.stride[i]
	}
	return f
}

// Coords converts a flat index into per-axis derived counts. If idx
// is not nil it is reused.
func (s *Spectrum) Coords(f int, idx []int) []int {
	if idx == nil {
		idx = make([]int, len(s.ns))
	}
	for i, st := range s.stride {
		idx[i] = f / st
		f %= st
	}
	return idx
}

// total returns the total derived count of the flat entry f.
func (s *Spectrum) total(f int) int {
	t := 0
	for _, st := range s.stride {
		t += f / st
		f %= st
	}
	return t
}

// At returns the value of an entry, masked entries included.
func (s *Spectrum) At(idx ...int) float64 {
	return s.data[s.Index(idx...)]
}

// Flat returns the value of the flat entry f.
func (s *Spectrum) Flat(f int) float64 {
	return s.data[f]
}

// Masked returns true if the flat entry f is masked.
func (s *Spectrum) Masked(f int) bool {
	return s.mask[f]
}

// Set sets an entry value.
func (s *Spectrum) Set(v float64, idx ...int) {
	s.data[s.Index(idx...)] = v
}

// AddFlat adds v to the flat entry f.
func (s *Spectrum) AddFlat(f int, v float64) {
	s.data[f] += v
}

// SetMask masks or unmasks an entry.
func (s *Spectrum) SetMask(masked bool, idx ...int) {
	s.mask[s.Index(idx...)] = masked
}

// Copy returns a deep copy of the spectrum.
func (s *Spectrum) Copy() *Spectrum {
	c := &Spectrum{
		ns:     append([]int(nil), s.ns...),
		stride: append([]int(nil), s.stride...),
		data:   append([]float64(nil), s.data...),
		mask:   append([]bool(nil), s.mask...),
		folded: s.folded,
	}
	if s.PopIDs != nil {
		c.PopIDs = append([]string(nil), s.PopIDs...)
	}
	return c
}

// Values returns a copy of the values with the masked entries set to
// zero.
func (s *Spectrum) Values() []float64 {
	v := make([]float64, len(s.data))
	for f, x := range s.data {
		if !s.mask[f] {
			v[f] = x
		}
	}
	return v
}

// S returns the number of segregating sites, i.e. the sum over the
// unmasked entries.
func (s *Spectrum) S() float64 {
	return floats.Sum(s.Values())
}

// Scale returns a copy multiplied by f.
func (s *Spectrum) Scale(f float64) *Spectrum {
	c := s.Copy()
	floats.Scale(f, c.data)
	return c
}

// Fold folds the spectrum onto the minor allele. Entries with the
// total derived count above half of the total sample size are added
// to the reversed entry and masked. Entries with exactly half are
// ambiguous and are averaged with their reversed entry. Folding a
// folded spectrum returns a copy.
func (s *Spectrum) Fold() *Spectrum {
	if s.folded {
		log.Debug("Spectrum is already folded")
		return s.Copy()
	}
	c := s.Copy()
	c.folded = true
	nTotal := 0
	for _, n := range s.ns {
		nTotal += n
	}
	last := len(s.data) - 1
	value := func(f int) float64 {
		if s.mask[f] {
			return 0
		}
		return s.data[f]
	}
	for f := range s.data {
		r := last - f
		t := s.total(f)
		c.mask[f] = s.mask[f] || s.mask[r]
		switch {
		case 2*t > nTotal:
			c.mask[f] = true
			c.data[f] = 0
		case 2*t == nTotal:
			c.data[f] = 0.5*value(f) + 0.5*value(r)
		default:
			c.data[f] = value(f) + value(r)
		}
		if c.mask[f] {
			c.data[f] = 0
		}
	}
	return c
}

// Marginalize sums over all the axes except the kept ones. Masked
// entries contribute nothing; the result is unfolded with the corners
// masked.
func (s *Spectrum) Marginalize(keep ...int) (*Spectrum, error) {
	if len(keep) == 0 {
		return nil, errors.New("no axes to keep")
	}
	ns := make([]int, len(keep))
	var ids []string
	for i, ax := range keep {
		if ax < 0 || ax >= len(s.ns) {
			return nil, fmt.Errorf("%w: no axis %d", ErrShape, ax)
		}
		ns[i] = s.ns[ax]
		if s.PopIDs != nil {
			ids = append(ids, s.PopIDs[ax])
		}
	}
	m, err := New(ns, ids)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(s.ns))
	sub := make([]int, len(keep))
	for f, v := range s.data {
		if s.mask[f] {
			continue
		}
		s.Coords(f, idx)
		for i, ax := range keep {
			sub[i] = idx[ax]
		}
		m.data[m.Index(sub...)] += v
	}
	m.data[0] = 0
	m.data[len(m.data)-1] = 0
	return m, nil
}

// String returns a short description of the spectrum.
func (s *Spectrum) String() string {
	return fmt.Sprintf("spectrum(pops=%v, ns=%v, folded=%v, S=%.2f)", s.PopIDs, s.ns, s.folded, s.S())
}
