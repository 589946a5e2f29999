// Package pipeline fits the catalogue models to a spectrum: every
// replicate perturbs the starting point, optimizes, scores the result
// and appends it to the model results file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"math"
	"os"

	"github.com/op/go-logging"
	"golang.org/x/exp/rand"

	"bitbucket.org/Davydov/afsfit/checkpoint"
	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/inference"
	"bitbucket.org/Davydov/afsfit/optimize"
	"bitbucket.org/Davydov/afsfit/results"
	"bitbucket.org/Davydov/afsfit/spectrum"
)

var log = logging.MustGetLogger("pipeline")

// ModelFactory returns the function computing expected spectra of a
// model.
type ModelFactory func(*demography.Spec) demography.Func

// Runner runs replicates of a model. All the models of a run share
// its settings.
type Runner struct {
	Data   *spectrum.Spectrum
	Grid   []int
	Prefix string
	Round  int
	OutDir string
	// Replicates is the number of replicates per model.
	Replicates int
	// Fold is the perturbation fold.
	Fold      float64
	Seed      uint64
	Overwrite bool
	Optimizer OptimizerSettings
	Models    ModelFactory
	// Store may be nil.
	Store    *checkpoint.Store
	Observer Observer
}

// replicateSource returns the random source of a replicate. It does not
// depend on other replicates, so resumed runs perturb the same way.
func (r *Runner) replicateSource(id string, replicate int) rand.Source {
	h := fnv.New64a()
	h.Write([]byte(id))
	return rand.NewSource(r.Seed ^ h.Sum64() ^ (uint64(replicate) * 0x9e3779b97f4a7c15))
}

func (r *Runner) observer() Observer {
	if r.Observer == nil {
		return LogObserver{}
	}
	return r.Observer
}

// Run runs the replicates of a model starting from start. A replicate
// which cannot be optimized or scored is reported and skipped; write
// errors and context cancellation stop the run.
func (r *Runner) Run(ctx context.Context, spec *demography.Spec, start []float64) error {
	if err := spec.CheckStart(start); err != nil {
		return err
	}
	obs := r.observer()
	path := results.FileName(r.OutDir, r.Round, r.Prefix, spec.ID)

	done, err := r.resumable(path)
	if err != nil {
		return err
	}
	w, err := results.NewWriter(path, r.Overwrite)
	if err != nil {
		return fmt.Errorf("%s: %w", spec.ID, err)
	}

	f := r.Models(spec)
	obs.ModelStarted(spec, r.Replicates, path)
	finished, failed := 0, 0
	for i := 1; i <= r.Replicates; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done[i] != nil {
			obs.ReplicateSkipped(spec, i)
			continue
		}
		row, err := r.replicate(spec, f, start, i)
		if ctx.Err() != nil {
			// the optimizer was interrupted, the replicate is incomplete
			return ctx.Err()
		}
		if err != nil {
			failed++
			obs.ReplicateFailed(spec, i, err)
			continue
		}
		// a record without a row is rerun on resume, a row without a
		// record would be written twice
		rec := &checkpoint.Record{
			Model:      spec.ID,
			Replicate:  i,
			Likelihood: row.LL,
			Theta:      row.Theta,
			AIC:        row.AIC,
			Parameters: row.Params,
			Converged:  row.summary.Converged,
		}
		if err := r.Store.Save(path, rec); err != nil {
			log.Warningf("Checkpoint of %s replicate %d was not saved: %v", spec.ID, i, err)
		}
		if err := w.Write(row.Row); err != nil {
			return fmt.Errorf("writing %s: %w", w.Path(), err)
		}
		finished++
		obs.ReplicateFinished(spec, row.Row, row.summary)
	}
	obs.ModelFinished(spec, finished, failed)
	return nil
}

// resumable returns the checkpointed replicates which are still in the
// results file. The checkpoint of a missing or overwritten file is
// cleared.
func (r *Runner) resumable(path string) (map[int]*checkpoint.Record, error) {
	if r.Store == nil {
		return nil, nil
	}
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && r.Overwrite):
		if err := r.Store.Clear(path); err != nil {
			return nil, fmt.Errorf("clearing checkpoint: %w", err)
		}
		return nil, nil
	case err != nil:
		return nil, err
	}
	done, err := r.Store.Done(path)
	if err != nil || len(done) == 0 {
		return nil, err
	}
	rows, err := results.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checking checkpoint against %s: %w", path, err)
	}
	written := make(map[int]bool, len(rows))
	for _, row := range rows {
		written[row.Replicate] = true
	}
	for i := range done {
		if !written[i] {
			log.Infof("Replicate %d of %s is checkpointed but not written, it will be rerun", i, path)
			delete(done, i)
		}
	}
	return done, nil
}

// replicate performs a single perturb, optimize and score cycle.
func (r *Runner) replicate(spec *demography.Spec, f demography.Func, start []float64, i int) (*replicateResult, error) {
	p0, err := inference.Perturb(start, r.Fold, spec.Lower, spec.Upper, r.replicateSource(spec.ID, i))
	if err != nil {
		return nil, err
	}
	obj, err := inference.NewObjective(spec, f, r.Data, r.Grid, p0)
	if err != nil {
		return nil, err
	}
	opt, err := r.Optimizer.create(obj)
	if err != nil {
		return nil, err
	}
	opt.Run(r.Optimizer.Iterations)

	params := obj.Params()
	score, err := inference.Evaluate(f, params, r.Data, r.Grid)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(score.LL) || math.IsInf(score.LL, 0) {
		return nil, errors.New("likelihood is not finite")
	}
	return &replicateResult{
		Row: &results.Row{
			Label:     spec.Label,
			ParamSet:  spec.ParamSet(),
			Replicate: i,
			LL:        inference.Round(score.LL, 2),
			Theta:     inference.Round(score.Theta, 2),
			AIC:       inference.AIC(score.LL, spec.NParams()),
			Params:    params,
		},
		summary: opt.Summary(),
	}, nil
}

type replicateResult struct {
	*results.Row
	summary optimize.Summary
}
