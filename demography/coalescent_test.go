package demography

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNeutralSpectrum(tst *testing.T) {
	d := &Demography{Epochs: []Epoch{{Duration: math.Inf(1), Sizes: []float64{1}}}}
	e := NewEngine(50, 1)
	s, err := e.Expected(d, []int{10}, []int{100})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// E[xi_i] = theta/i
	for i := 1; i < 10; i++ {
		ref := 1 / float64(i)
		v := s.At(i)
		tst.Log("i=", i, ", v=", v, ", ref=", ref)
		if math.Abs(v-ref)/ref > 0.1 {
			tst.Errorf("Entry %d: expected %v, got %v", i, ref, v)
		}
	}
	if s.At(0) != 0 || s.At(10) != 0 {
		tst.Error("Corners should be empty")
	}
}

func TestEngineDeterministic(tst *testing.T) {
	m, _ := Lookup("split_symmig_all")
	params := startingValues["split_symmig_all"]
	ns := []int{4, 6, 4}
	pts := []int{5, 6}

	f := NewEngine(4, 7).Func(m)
	s1, err := f(params, ns, pts)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	s2, err := f(params, ns, pts)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for i := 0; i < s1.Len(); i++ {
		if s1.Flat(i) != s2.Flat(i) {
			tst.Fatalf("Entry %d differs: %v != %v", i, s1.Flat(i), s2.Flat(i))
		}
	}
	if s1.S() <= 0 {
		tst.Error("Empty model spectrum")
	}

	s3, err := NewEngine(4, 8).Func(m)(params, ns, pts)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if s3.S() == s1.S() {
		tst.Error("Different seeds gave identical spectra")
	}
}

func TestAllModelsSimulate(tst *testing.T) {
	e := NewEngine(2, 3)
	for _, m := range Catalogue() {
		s, err := e.Func(m)(startingValues[m.ID], []int{3, 4, 3}, []int{5})
		if err != nil {
			tst.Errorf("%s: %v", m.ID, err)
			continue
		}
		if s.Dims() != 3 || s.S() <= 0 {
			tst.Errorf("%s: bad spectrum %v", m.ID, s)
		}
	}
}

func TestIsolation(tst *testing.T) {
	// two demes isolated for a very long time: nearly no branch is
	// shared by both samples
	d := &Demography{Epochs: []Epoch{
		{Duration: 50, Sizes: []float64{1, 1}, Parents: []int{0, 0}},
		{Duration: math.Inf(1), Sizes: []float64{1}},
	}}
	s, err := NewEngine(20, 5).Expected(d, []int{3, 3}, []int{10})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	private := 0.0
	shared := 0.0
	for i := 0; i <= 3; i++ {
		for j := 0; j <= 3; j++ {
			v := s.At(i, j)
			switch {
			case i == 0 || j == 0:
				private += v
			case !(i == 3 && j == 3):
				shared += v
			}
		}
	}
	tst.Log("private=", private, ", shared=", shared)
	if shared > 0.01*private {
		tst.Errorf("Too many shared polymorphisms: %v vs %v", shared, private)
	}
}

func TestMigrationMixes(tst *testing.T) {
	// with strong migration the two samples behave as one population
	mig := mat.NewSymDense(2, nil)
	mig.SetSym(0, 1, 50)
	d := &Demography{Epochs: []Epoch{
		{Duration: 50, Sizes: []float64{1, 1}, Migration: mig, Parents: []int{0, 0}},
		{Duration: math.Inf(1), Sizes: []float64{1}},
	}}
	s, err := NewEngine(20, 5).Expected(d, []int{3, 3}, []int{10})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if v := s.At(1, 1); v <= s.At(0, 1)/20 {
		tst.Error("Expected shared polymorphism with migration, got", v)
	}
}

func TestExpectedErrors(tst *testing.T) {
	e := NewEngine(1, 1)
	d := &Demography{Epochs: []Epoch{{Duration: math.Inf(1), Sizes: []float64{1}}}}
	if _, err := e.Expected(d, []int{3, 3}, []int{5}); err == nil {
		tst.Error("Expected error for sample sizes")
	}
	if _, err := e.Expected(d, []int{3}, nil); err == nil {
		tst.Error("Expected error for empty grid")
	}
	if _, err := e.Expected(&Demography{}, []int{3}, []int{5}); err == nil {
		tst.Error("Expected error for empty demography")
	}
	bad := &Demography{Epochs: []Epoch{
		{Duration: 1, Sizes: []float64{1, -1}, Parents: []int{0, 0}},
		{Duration: math.Inf(1), Sizes: []float64{1}},
	}}
	if _, err := e.Expected(bad, []int{3, 3}, []int{5}); err == nil {
		tst.Error("Expected error for negative size")
	}
}
