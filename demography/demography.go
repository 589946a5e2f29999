// Package demography describes population histories and computes the
// expected joint allele frequency spectrum they produce.
//
// Time is measured in units of 2*N_ref generations, sizes are relative
// to N_ref and migration rates are scaled as M = 2*N_ref*m, following
// the usual diffusion conventions.
package demography

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("demography")

// Epoch is a time interval with constant deme sizes and migration
// rates.
type Epoch struct {
	// Duration of the epoch; +Inf for the ancestral epoch.
	Duration float64
	// Sizes are relative deme sizes.
	Sizes []float64
	// Migration is the symmetric matrix of scaled migration rates
	// between the demes, nil if there is no migration.
	Migration *mat.SymDense
	// Parents maps every deme to a deme of the next (older) epoch.
	Parents []int
}

// Demography is a sequence of epochs ordered from the present to the
// past. Deme i of the first epoch is the sampled population i.
type Demography struct {
	Epochs []Epoch
}

// Validate checks the demography for consistency.
func (d *Demography) Validate() error {
	if len(d.Epochs) == 0 {
		return errors.New("demography has no epochs")
	}
	for i, e := range d.Epochs {
		last := i == len(d.Epochs)-1
		if len(e.Sizes) == 0 {
			return fmt.Errorf("epoch %d has no demes", i)
		}
		if math.IsNaN(e.Duration) || e.Duration < 0 {
			return fmt.Errorf("epoch %d has invalid duration %v", i, e.Duration)
		}
		if last != math.IsInf(e.Duration, 1) {
			return fmt.Errorf("only the last epoch should be infinite (epoch %d)", i)
		}
		for j, s := range e.Sizes {
			if !(s > 0) || math.IsInf(s, 0) {
				return fmt.Errorf("epoch %d deme %d has invalid size %v", i, j, s)
			}
		}
		if e.Migration != nil {
			if e.Migration.SymmetricDim() != len(e.Sizes) {
				return fmt.Errorf("epoch %d migration matrix dimension %d, expected %d",
					i, e.Migration.SymmetricDim(), len(e.Sizes))
			}
			for a := 0; a < len(e.Sizes); a++ {
				for b := 0; b < len(e.Sizes); b++ {
					if m := e.Migration.At(a, b); m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
						return fmt.Errorf("epoch %d has invalid migration rate %v", i, m)
					}
				}
			}
		}
		if last {
			if len(e.Sizes) != 1 {
				return fmt.Errorf("ancestral epoch should have a single deme, got %d", len(e.Sizes))
			}
			continue
		}
		if len(e.Parents) != len(e.Sizes) {
			return fmt.Errorf("epoch %d has %d parents for %d demes", i, len(e.Parents), len(e.Sizes))
		}
		for _, p := range e.Parents {
			if p < 0 || p >= len(d.Epochs[i+1].Sizes) {
				return fmt.Errorf("epoch %d parent %d does not exist", i, p)
			}
		}
	}
	return nil
}

// NDemes returns the number of sampled populations.
func (d *Demography) NDemes() int {
	if len(d.Epochs) == 0 {
		return 0
	}
	return len(d.Epochs[0].Sizes)
}
