package pipeline

import (
	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/optimize"
	"bitbucket.org/Davydov/afsfit/results"
)

// Observer receives progress events of a run.
type Observer interface {
	ModelStarted(spec *demography.Spec, replicates int, path string)
	// ReplicateSkipped is called for replicates found in the
	// checkpoint.
	ReplicateSkipped(spec *demography.Spec, replicate int)
	ReplicateFinished(spec *demography.Spec, row *results.Row, s optimize.Summary)
	ReplicateFailed(spec *demography.Spec, replicate int, err error)
	ModelFinished(spec *demography.Spec, finished, failed int)
}

// LogObserver logs the events.
type LogObserver struct{}

func (LogObserver) ModelStarted(spec *demography.Spec, replicates int, path string) {
	log.Noticef("%s: %d replicates, writing %s", spec.Label, replicates, path)
}

func (LogObserver) ReplicateSkipped(spec *demography.Spec, replicate int) {
	log.Infof("%s: replicate %d is already done", spec.ID, replicate)
}

func (LogObserver) ReplicateFinished(spec *demography.Spec, row *results.Row, s optimize.Summary) {
	log.Infof("%s: replicate %d lnL=%.2f theta=%.2f AIC=%.2f", spec.ID, row.Replicate, row.LL, row.Theta, row.AIC)
	if !s.Converged {
		log.Debugf("%s: replicate %d has not converged (%s)", spec.ID, row.Replicate, s.Message)
	}
}

func (LogObserver) ReplicateFailed(spec *demography.Spec, replicate int, err error) {
	log.Warningf("%s: replicate %d failed: %v", spec.ID, replicate, err)
}

func (LogObserver) ModelFinished(spec *demography.Spec, finished, failed int) {
	log.Noticef("%s: finished %d replicates, %d failed", spec.Label, finished, failed)
}
