package results

import (
	"cmp"
	"math"

	"golang.org/x/exp/slices"
)

// Ranked is the best replicate of a model compared with the other
// models.
type Ranked struct {
	Best *Row `json:"best"`
	// Replicates is the number of replicates of the model.
	Replicates int `json:"replicates"`
	// DeltaAIC is the difference from the best model AIC.
	DeltaAIC float64 `json:"deltaAIC"`
	// Weight is the Akaike weight.
	Weight float64 `json:"weight"`
}

// Rank selects the replicate with the lowest AIC for every model label
// and orders the models by it. Rows with non-finite AIC are ignored.
func Rank(rows []*Row) []*Ranked {
	byLabel := make(map[string]*Ranked)
	var ranked []*Ranked
	for _, r := range rows {
		if math.IsNaN(r.AIC) || math.IsInf(r.AIC, 0) {
			continue
		}
		m, ok := byLabel[r.Label]
		if !ok {
			m = &Ranked{Best: r}
			byLabel[r.Label] = m
			ranked = append(ranked, m)
		}
		m.Replicates++
		if r.AIC < m.Best.AIC {
			m.Best = r
		}
	}
	if len(ranked) == 0 {
		return nil
	}
	slices.SortStableFunc(ranked, func(a, b *Ranked) int {
		return cmp.Compare(a.Best.AIC, b.Best.AIC)
	})
	min := ranked[0].Best.AIC
	total := 0.0
	for _, m := range ranked {
		m.DeltaAIC = m.Best.AIC - min
		m.Weight = math.Exp(-m.DeltaAIC / 2)
		total += m.Weight
	}
	for _, m := range ranked {
		m.Weight /= total
	}
	return ranked
}
