package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitbucket.org/Davydov/afsfit/checkpoint"
	"bitbucket.org/Davydov/afsfit/config"
	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/pipeline"
	"bitbucket.org/Davydov/afsfit/spectrum"
)

// overrides are the command line values replacing configuration
// fields. Zero values keep the configuration.
type overrides struct {
	replicates int
	maxIter    int
	method     string
	seed       uint64
	overwrite  bool
	checkpoint string
}

// apply applies the overrides to the configuration.
func (o overrides) apply(cfg *config.Config) {
	if o.replicates > 0 {
		cfg.Replicates = o.replicates
	}
	if o.maxIter > 0 {
		cfg.MaxIter = o.maxIter
	}
	if o.method != "" {
		cfg.Method = o.method
	}
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
	if o.overwrite {
		cfg.Overwrite = true
	}
	if o.checkpoint != "" {
		cfg.Checkpoint = o.checkpoint
	}
}

// loadConfig reads and validates a configuration. The catalogue is
// validated as well, so no optimization starts with a broken model.
func loadConfig(fileName string, o overrides) (*config.Config, error) {
	if err := demography.ValidateCatalogue(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(fileName)
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runFit runs the run command.
func runFit() error {
	startTime := time.Now()

	cfg, err := loadConfig(*runConfig, overrides{
		replicates: *runReps,
		maxIter:    *runMaxIter,
		method:     *runMethod,
		seed:       *runSeed,
		overwrite:  *runOverwrite,
		checkpoint: *runCheckpoint,
	})
	if err != nil {
		return err
	}
	jobs, err := pipeline.Plan(cfg.Starts(), *runModels)
	if err != nil {
		return err
	}
	log.Infof("Models to run: %d", len(jobs))

	data, err := spectrum.Load(cfg.SNPs, cfg.Populations, cfg.Projections)
	if err != nil {
		return err
	}
	log.Notice(data)

	engine := demography.NewEngine(cfg.Engine.PerPoint, cfg.Engine.Seed)
	log.Infof("Engine: %d genealogies per evaluation, seed=%d", engine.Genealogies(cfg.Grid), engine.Seed)

	signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	r := &pipeline.Runner{
		Data:       data,
		Grid:       cfg.Grid,
		Prefix:     cfg.Prefix,
		Round:      cfg.Round,
		OutDir:     cfg.OutDir,
		Replicates: cfg.Replicates,
		Fold:       cfg.Fold,
		Seed:       cfg.Seed,
		Overwrite:  cfg.Overwrite,
		Optimizer: pipeline.OptimizerSettings{
			Method:     cfg.Method,
			Iterations: cfg.MaxIter,
			Signals:    signals,
			Delta:      cfg.Delta,
			Step:       cfg.Step,
		},
		Models: engine.Func,
	}

	if *runTrajectory != "" {
		f, err := os.Create(*runTrajectory)
		if err != nil {
			return err
		}
		defer f.Close()
		r.Optimizer.Trajectory = f
	}

	if cfg.Checkpoint != "" {
		store, err := checkpoint.Open(cfg.Checkpoint)
		if err != nil {
			return err
		}
		defer store.Close()
		r.Store = store
		log.Infof("Checkpoint: %s", cfg.Checkpoint)
	}

	counter := &countingObserver{Observer: pipeline.LogObserver{}}
	r.Observer = counter

	runErr := r.RunAll(ctx, jobs)

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)

	if *runJSON != "" {
		summary := &RunSummary{
			CallSummary: newCallSummary(),
			Config:      cfg,
			Replicates:  counter.finished,
			Failed:      counter.failed,
			TotalTime:   deltaT.Seconds(),
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		if err := writeJSON(*runJSON, summary); err != nil {
			log.Error("Error writing json summary:", err)
		}
	}
	return runErr
}

// countingObserver counts finished and failed replicates per model.
type countingObserver struct {
	pipeline.Observer
	finished map[string]int
	failed   map[string]int
}

func (c *countingObserver) ModelFinished(spec *demography.Spec, finished, failed int) {
	if c.finished == nil {
		c.finished = make(map[string]int)
		c.failed = make(map[string]int)
	}
	c.finished[spec.ID] += finished
	c.failed[spec.ID] += failed
	c.Observer.ModelFinished(spec, finished, failed)
}

// writeJSON writes v as JSON to a file.
func writeJSON(fileName string, v interface{}) error {
	j, err := json.Marshal(v)
	if err != nil {
		return err
	}
	log.Debug(string(j))
	return os.WriteFile(fileName, j, 0666)
}
