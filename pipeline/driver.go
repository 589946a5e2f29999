package pipeline

import (
	"context"
	"fmt"

	"bitbucket.org/Davydov/afsfit/demography"
)

// Job is a model with its starting point.
type Job struct {
	Spec  *demography.Spec
	Start []float64
}

// Plan validates starting points and returns jobs in the catalogue
// order. If only is not empty, the jobs are restricted to these model
// ids. Any invalid or unknown model is an error, so nothing runs
// before every starting point is checked.
func Plan(starts map[string][]float64, only []string) ([]Job, error) {
	for id := range starts {
		if _, err := demography.Lookup(id); err != nil {
			return nil, err
		}
	}
	selected := make(map[string]bool, len(only))
	for _, id := range only {
		if _, err := demography.Lookup(id); err != nil {
			return nil, err
		}
		if _, ok := starts[id]; !ok {
			return nil, fmt.Errorf("no starting values for model %s", id)
		}
		selected[id] = true
	}
	var jobs []Job
	for _, spec := range demography.Catalogue() {
		start, ok := starts[spec.ID]
		if !ok || (len(selected) > 0 && !selected[spec.ID]) {
			continue
		}
		if err := spec.CheckStart(start); err != nil {
			return nil, err
		}
		jobs = append(jobs, Job{Spec: spec, Start: start})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no models to run")
	}
	return jobs, nil
}

// RunAll runs the jobs one after another.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) error {
	for _, job := range jobs {
		if err := r.Run(ctx, job.Spec, job.Start); err != nil {
			return fmt.Errorf("%s: %w", job.Spec.ID, err)
		}
	}
	return nil
}
