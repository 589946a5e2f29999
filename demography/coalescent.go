package demography

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/afsfit/spectrum"
)

const (
	// DefaultPerPoint is the default number of genealogies per grid
	// point.
	DefaultPerPoint = 64
	// DefaultSeed is the default engine seed.
	DefaultSeed = 20170401
)

// Engine estimates expected spectra from genealogies simulated under
// the structured coalescent. Every evaluation starts from the same seed,
// so the spectrum is a deterministic function of the demography, which
// keeps likelihood surfaces stable during optimization.
type Engine struct {
	// PerPoint is the number of genealogies per grid point, the
	// total is PerPoint times the sum of the grid sizes.
	PerPoint int
	// Seed is the random generator seed used for every evaluation.
	Seed uint64
}

// NewEngine creates a new engine.
func NewEngine(perPoint int, seed uint64) *Engine {
	return &Engine{
		PerPoint: perPoint,
		Seed:     seed,
	}
}

// Genealogies returns the number of genealogies simulated for the grid.
func (e *Engine) Genealogies(pts []int) int {
	n := 0
	for _, p := range pts {
		n += p
	}
	return n * e.PerPoint
}

// Expected returns the expected unfolded spectrum (theta=1) for the
// demography and sample sizes.
func (e *Engine) Expected(d *Demography, ns []int, pts []int) (*spectrum.Spectrum, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.NDemes() != len(ns) {
		return nil, fmt.Errorf("%w: %d sample sizes for %d populations", spectrum.ErrShape, len(ns), d.NDemes())
	}
	if len(pts) == 0 {
		return nil, errors.New("empty grid")
	}
	for _, p := range pts {
		if p < 1 {
			return nil, fmt.Errorf("grid points should be positive, got %v", pts)
		}
	}
	if e.PerPoint < 1 {
		return nil, fmt.Errorf("genealogies per grid point should be positive, got %d", e.PerPoint)
	}
	s, err := spectrum.New(ns, nil)
	if err != nil {
		return nil, err
	}

	src := rand.NewSource(e.Seed)
	sim := newSimulator(d, ns, s.Strides(), src)
	acc := make([]float64, s.Len())
	n := e.Genealogies(pts)
	for i := 0; i < n; i++ {
		if err := sim.run(acc); err != nil {
			return nil, err
		}
	}
	scale := 1 / float64(n)
	for f, v := range acc {
		if v != 0 {
			s.AddFlat(f, v*scale)
		}
	}
	return s, nil
}

// Func returns the model function of a catalogue entry.
func (e *Engine) Func(spec *Spec) Func {
	return func(params []float64, ns []int, pts []int) (*spectrum.Spectrum, error) {
		d, err := spec.Build(params)
		if err != nil {
			return nil, err
		}
		return e.Expected(d, ns, pts)
	}
}

// lineage is an ancestral lineage. cell is the flat spectrum index of
// its descendant counts; since the index is linear in the counts, the
// cell of a merged lineage is the sum of the two cells.
type lineage struct {
	deme int
	cell int
}

// simulator simulates genealogies for a demography.
type simulator struct {
	d       *Demography
	sample  []lineage
	lin     []lineage
	rng     *rand.Rand
	waiting distuv.Exponential
	// migOut is the total migration rate out of every deme per epoch.
	migOut [][]float64
	coal   []float64
	count  []int
}

func newSimulator(d *Demography, ns []int, strides []int, src rand.Source) *simulator {
	s := &simulator{
		d:       d,
		rng:     rand.New(src),
		waiting: distuv.Exponential{Rate: 1, Src: src},
		migOut:  make([][]float64, len(d.Epochs)),
	}
	maxDemes := 0
	for i, e := range d.Epochs {
		if len(e.Sizes) > maxDemes {
			maxDemes = len(e.Sizes)
		}
		s.migOut[i] = make([]float64, len(e.Sizes))
		if e.Migration == nil {
			continue
		}
		for a := range e.Sizes {
			for b := range e.Sizes {
				if a != b {
					s.migOut[i][a] += e.Migration.At(a, b)
				}
			}
		}
	}
	s.coal = make([]float64, maxDemes)
	s.count = make([]int, maxDemes)
	for k, n := range ns {
		for i := 0; i < n; i++ {
			s.sample = append(s.sample, lineage{deme: k, cell: strides[k]})
		}
	}
	s.lin = make([]lineage, 0, len(s.sample))
	return s
}

// run simulates one genealogy and adds half of every branch length to
// the cell of its descendant counts.
func (s *simulator) run(acc []float64) error {
	s.lin = append(s.lin[:0], s.sample...)
	ep := 0
	t := 0.0
	end := s.d.Epochs[0].Duration
	for len(s.lin) > 1 {
		e := &s.d.Epochs[ep]
		nd := len(e.Sizes)
		for k := 0; k < nd; k++ {
			s.count[k] = 0
		}
		for _, l := range s.lin {
			s.count[l.deme]++
		}
		coalTotal := 0.0
		migTotal := 0.0
		for k := 0; k < nd; k++ {
			c := float64(s.count[k])
			s.coal[k] = c * (c - 1) / 2 / e.Sizes[k]
			coalTotal += s.coal[k]
			migTotal += c * s.migOut[ep][k]
		}
		total := coalTotal + migTotal
		dt := math.Inf(1)
		if total > 0 {
			dt = s.waiting.Rand() / total
		}
		if t+dt >= end {
			if math.IsInf(end, 1) {
				return errors.New("no events possible in the ancestral epoch")
			}
			s.grow(acc, end-t)
			t = end
			for i := range s.lin {
				s.lin[i].deme = e.Parents[s.lin[i].deme]
			}
			ep++
			end += s.d.Epochs[ep].Duration
			continue
		}
		s.grow(acc, dt)
		t += dt

		u := s.rng.Float64() * total
		if u < coalTotal {
			s.coalesce(u, nd)
		} else {
			s.migrate(u-coalTotal, e, ep)
		}
	}
	return nil
}

// grow extends all the lineages by dt.
func (s *simulator) grow(acc []float64, dt float64) {
	h := dt / 2
	for _, l := range s.lin {
		acc[l.cell] += h
	}
}

// coalesce merges two random lineages of the deme selected by u.
func (s *simulator) coalesce(u float64, nd int) {
	k := -1
	for i := 0; i < nd; i++ {
		if s.coal[i] == 0 {
			continue
		}
		k = i
		if u < s.coal[i] {
			break
		}
		u -= s.coal[i]
	}
	c := s.count[k]
	a := s.rng.Intn(c)
	b := s.rng.Intn(c - 1)
	if b >= a {
		b++
	}
	pa, pb := -1, -1
	j := 0
	for i, l := range s.lin {
		if l.deme != k {
			continue
		}
		if j == a {
			pa = i
		}
		if j == b {
			pb = i
		}
		j++
	}
	s.lin[pa].cell += s.lin[pb].cell
	last := len(s.lin) - 1
	s.lin[pb] = s.lin[last]
	s.lin = s.lin[:last]
}

// migrate moves the lineage selected by u to another deme.
func (s *simulator) migrate(u float64, e *Epoch, ep int) {
	for i, l := range s.lin {
		r := s.migOut[ep][l.deme]
		if u >= r {
			u -= r
			continue
		}
		for b := range e.Sizes {
			if b == l.deme {
				continue
			}
			m := e.Migration.At(l.deme, b)
			if u < m {
				s.lin[i].deme = b
				return
			}
			u -= m
		}
		// rounding, move to the last possible deme
		for b := len(e.Sizes) - 1; b >= 0; b-- {
			if b != l.deme && e.Migration.At(l.deme, b) > 0 {
				s.lin[i].deme = b
				return
			}
		}
		return
	}
	log.Debug("Migration event fell through due to rounding")
}
