// Package config loads run configurations from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/op/go-logging"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/optimize"
)

var log = logging.MustGetLogger("config")

// Config is a run configuration.
type Config struct {
	// SNPs is the SNP table path.
	SNPs string `yaml:"snps"`
	// Populations are the population ids in the spectrum axes order.
	Populations []string `yaml:"populations"`
	// Projections are the sample sizes per population.
	Projections []int `yaml:"projections"`
	// Grid controls the engine sampling effort.
	Grid []int `yaml:"grid"`

	Prefix string `yaml:"prefix"`
	Round  int    `yaml:"round"`
	OutDir string `yaml:"outdir"`

	Replicates int     `yaml:"replicates"`
	MaxIter    int     `yaml:"maxiter"`
	Fold       float64 `yaml:"fold"`
	Method     string  `yaml:"method"`
	Seed       uint64  `yaml:"seed"`
	// Delta is the initial simplex edge (simplex method).
	Delta float64 `yaml:"delta"`
	// Step is the finite difference step (gradient methods).
	Step float64 `yaml:"step"`

	Engine EngineConfig `yaml:"engine"`

	Overwrite  bool   `yaml:"overwrite"`
	Checkpoint string `yaml:"checkpoint,omitempty"`

	// Models maps model ids to starting values. Only these models
	// run; if empty, all the models run from DefaultStarts.
	Models map[string][]float64 `yaml:"models,omitempty"`
}

// EngineConfig configures the coalescent engine.
type EngineConfig struct {
	// PerPoint is the number of genealogies per grid point.
	PerPoint int    `yaml:"perPoint"`
	Seed     uint64 `yaml:"seed"`
}

// DefaultStarts are starting values of all the models.
var DefaultStarts = map[string][]float64{
	"split_nomig":           {4.7878, 0.4657, 7.0718, 1.8793, 0.1819, 0.6351},
	"split_symmig_all":      {0.3645, 2.3541, 2.8694, 0.1192, 2.9680, 0.2465, 3.4061, 2.2545, 5.2956, 0.3193},
	"split_symmig_adjacent": {3.5506, 3.6095, 3.7157, 1.1518, 3.04188, 0.5378, 0.1777, 5.8779, 0.6790},
	"refugia_1":             {0.9708, 0.3971, 1.5534, 1.4487, 0.7848, 0.2466, 0.5874, 0.7914, 0.2847},
	"refugia_2":             {1.0230, 5.8268, 4.0113, 0.8357, 0.5673, 1.3852, 0.4637, 0.4158},
	"refugia_3":             {3.0755, 3.4188, 5.9098, 1.1432, 3.6431, 0.1767, 0.2083, 2.5262, 6.5821, 1.1527},
	"ancmig_3":              {4.0832, 4.3028, 1.7475, 3.9215, 0.3003, 1.7515, 0.3969, 0.2253},
	"ancmig_2":              {0.5117, 6.7278, 2.6933, 0.7654, 2.1216, 0.4124, 0.2513},
	"ancmig_1":              {1.5830, 0.4784, 7.2799, 1.5639, 3.5810, 5.2661, 6.5078, 0.4697, 2.2544, 0.3212},
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Grid:       []int{50, 60, 70},
		Round:      2,
		OutDir:     ".",
		Replicates: 50,
		MaxIter:    10,
		Fold:       2,
		Method:     "simplex",
		Seed:       1,
		Delta:      optimize.DefaultDelta,
		Step:       optimize.DefaultStep,
		Engine: EngineConfig{
			PerPoint: demography.DefaultPerPoint,
			Seed:     demography.DefaultSeed,
		},
	}
}

// Parse decodes a configuration over the defaults. Unknown keys are
// errors.
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load loads a configuration file. A relative SNP path is resolved
// against the configuration directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.SNPs != "" && !filepath.IsAbs(cfg.SNPs) {
		cfg.SNPs = filepath.Join(filepath.Dir(path), cfg.SNPs)
	}
	log.Infof("Configuration %s: prefix %s, round %d, %d replicates, method %s",
		path, cfg.Prefix, cfg.Round, cfg.Replicates, cfg.Method)
	return cfg, nil
}

// Starts returns the starting values of the models to run.
func (c *Config) Starts() map[string][]float64 {
	if len(c.Models) == 0 {
		log.Debug("No models configured, using the default starts")
		return DefaultStarts
	}
	return c.Models
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SNPs == "" {
		return errors.New("snps path is not set")
	}
	if len(c.Populations) != 3 {
		return fmt.Errorf("three populations are required, got %v", c.Populations)
	}
	if len(c.Projections) != len(c.Populations) {
		return fmt.Errorf("%d projections for %d populations", len(c.Projections), len(c.Populations))
	}
	for i, p := range c.Projections {
		if p < 1 {
			return fmt.Errorf("projection of %s should be positive, got %d", c.Populations[i], p)
		}
	}
	if len(c.Grid) == 0 {
		return errors.New("grid is empty")
	}
	for _, g := range c.Grid {
		if g < 1 {
			return fmt.Errorf("grid points should be positive, got %v", c.Grid)
		}
	}
	if c.Prefix == "" {
		return errors.New("prefix is not set")
	}
	if c.Replicates < 1 {
		return fmt.Errorf("replicates should be positive, got %d", c.Replicates)
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("maxiter should be positive, got %d", c.MaxIter)
	}
	if c.Fold < 0 {
		return fmt.Errorf("fold should not be negative, got %v", c.Fold)
	}
	if !slices.Contains(optimize.Methods(), c.Method) {
		return fmt.Errorf("unknown optimization method %q, expected one of %v", c.Method, optimize.Methods())
	}
	if c.Delta <= 0 || c.Step <= 0 {
		return fmt.Errorf("delta and step should be positive, got %v and %v", c.Delta, c.Step)
	}
	if c.Engine.PerPoint < 1 {
		return fmt.Errorf("engine perPoint should be positive, got %d", c.Engine.PerPoint)
	}
	for id, start := range c.Starts() {
		spec, err := demography.Lookup(id)
		if err != nil {
			return err
		}
		if err := spec.CheckStart(start); err != nil {
			return err
		}
	}
	return nil
}

// NextRound is the models block of a configuration.
type NextRound struct {
	Models map[string][]float64 `yaml:"models"`
}

// WriteModels writes starting values as a YAML models block.
func WriteModels(w io.Writer, starts map[string][]float64) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NextRound{Models: starts}); err != nil {
		return err
	}
	return enc.Close()
}
