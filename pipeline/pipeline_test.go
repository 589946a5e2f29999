package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/afsfit/checkpoint"
	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/optimize"
	"bitbucket.org/Davydov/afsfit/results"
	"bitbucket.org/Davydov/afsfit/spectrum"
)

func init() {
	for _, m := range []string{"pipeline", "optimize", "inference", "results", "checkpoint"} {
		logging.SetLevel(logging.ERROR, m)
	}
}

var starts = map[string][]float64{
	"split_nomig": {4.7878, 0.4657, 7.0718, 1.8793, 0.1819, 0.6351},
	"ancmig_2":    {0.5117, 6.7278, 2.6933, 0.7654, 2.1216, 0.4124, 0.2513},
}

var sampleSizes = []int{4, 6, 4}

// decay is a cheap model whose cells decrease with the total derived
// count at a rate given by the last parameter.
func decay(params []float64, ns []int, pts []int) (*spectrum.Spectrum, error) {
	s, err := spectrum.New(ns, nil)
	if err != nil {
		return nil, err
	}
	rate := params[len(params)-1]
	idx := make([]int, len(ns))
	for f := 1; f < s.Len()-1; f++ {
		t := 0
		for _, c := range s.Coords(f, idx) {
			t += c
		}
		s.AddFlat(f, math.Exp(-rate*float64(t)/14)/float64(t))
	}
	return s, nil
}

func decayModels(*demography.Spec) demography.Func {
	return decay
}

func failingModels(*demography.Spec) demography.Func {
	return func([]float64, []int, []int) (*spectrum.Spectrum, error) {
		return nil, errors.New("no spectrum")
	}
}

// recorder records the events.
type recorder struct {
	started  []string
	finished []int
	skipped  []int
	failed   []int
	done     [][2]int
}

func (r *recorder) ModelStarted(spec *demography.Spec, replicates int, path string) {
	r.started = append(r.started, spec.ID)
}

func (r *recorder) ReplicateSkipped(spec *demography.Spec, replicate int) {
	r.skipped = append(r.skipped, replicate)
}

func (r *recorder) ReplicateFinished(spec *demography.Spec, row *results.Row, s optimize.Summary) {
	r.finished = append(r.finished, row.Replicate)
}

func (r *recorder) ReplicateFailed(spec *demography.Spec, replicate int, err error) {
	r.failed = append(r.failed, replicate)
}

func (r *recorder) ModelFinished(spec *demography.Spec, finished, failed int) {
	r.done = append(r.done, [2]int{finished, failed})
}

func newRunner(tst *testing.T, dir string, reps int) (*Runner, *recorder) {
	tst.Helper()
	data, err := decay([]float64{0.7}, sampleSizes, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	rec := &recorder{}
	return &Runner{
		Data:       data.Fold().Scale(1000),
		Grid:       []int{1},
		Prefix:     "test",
		Round:      2,
		OutDir:     dir,
		Replicates: reps,
		Fold:       2,
		Seed:       1,
		Optimizer: OptimizerSettings{
			Method:     "simplex",
			Iterations: 5,
		},
		Models:   decayModels,
		Observer: rec,
	}, rec
}

func readLines(tst *testing.T, path string) []string {
	tst.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestRunAppends(tst *testing.T) {
	dir := tst.TempDir()
	spec, _ := demography.Lookup("split_nomig")
	r, rec := newRunner(tst, dir, 2)
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	path := filepath.Join(dir, "Round2_test_split_nomig_optimized.txt")
	if lines := readLines(tst, path); len(lines) != 3 || lines[0] != results.Header {
		tst.Fatalf("Expected a header and 2 rows, got %q", lines)
	}
	if diff := cmp.Diff([]int{1, 2}, rec.finished); diff != "" {
		tst.Error("Wrong replicates (-want +got):\n", diff)
	}

	r.Replicates = 3
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := readLines(tst, path)
	if len(lines) != 6 || lines[3] != results.Header {
		tst.Fatalf("Expected two blocks of rows, got %q", lines)
	}
	rows, err := results.ReadFile(path)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	var reps []int
	for _, row := range rows {
		reps = append(reps, row.Replicate)
		if row.Label != spec.Label || row.ParamSet != spec.ParamSet() {
			tst.Errorf("Wrong labels: %q %q", row.Label, row.ParamSet)
		}
		if len(row.Params) != spec.NParams() {
			tst.Error("Wrong number of parameters:", len(row.Params))
		}
		if math.Abs(row.AIC-(-2*row.LL+2*float64(spec.NParams()))) > 1e-6 {
			tst.Errorf("AIC %v does not match lnL %v", row.AIC, row.LL)
		}
		if row.Theta <= 0 {
			tst.Error("Non-positive theta:", row.Theta)
		}
		for j, p := range row.Params {
			if p < spec.Lower[j] || p > spec.Upper[j]+1e-4 {
				tst.Errorf("Parameter %s=%v out of bounds", spec.Names[j], p)
			}
		}
	}
	if diff := cmp.Diff([]int{1, 2, 1, 2, 3}, reps); diff != "" {
		tst.Error("Wrong replicates (-want +got):\n", diff)
	}
}

func TestReproducible(tst *testing.T) {
	spec, _ := demography.Lookup("ancmig_2")
	var rows [][]*results.Row
	for i := 0; i < 2; i++ {
		dir := tst.TempDir()
		r, _ := newRunner(tst, dir, 2)
		if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
			tst.Fatal("Error: ", err)
		}
		rr, err := results.ReadFile(results.FileName(dir, 2, "test", spec.ID))
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		rows = append(rows, rr)
	}
	if diff := cmp.Diff(rows[0], rows[1]); diff != "" {
		tst.Error("Runs differ (-first +second):\n", diff)
	}
	if cmp.Equal(rows[0][0].Params, rows[0][1].Params) {
		tst.Error("Replicates have identical parameters")
	}
}

func TestFailedReplicates(tst *testing.T) {
	dir := tst.TempDir()
	spec, _ := demography.Lookup("split_nomig")
	r, rec := newRunner(tst, dir, 3)
	r.Models = failingModels
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, rec.failed); diff != "" {
		tst.Error("Wrong failed replicates (-want +got):\n", diff)
	}
	if len(rec.done) != 1 || rec.done[0] != [2]int{0, 3} {
		tst.Error("Wrong model summary:", rec.done)
	}
	if lines := readLines(tst, results.FileName(dir, 2, "test", spec.ID)); len(lines) != 1 {
		tst.Errorf("Expected only the header, got %q", lines)
	}
}

func TestWriteFailure(tst *testing.T) {
	spec, _ := demography.Lookup("split_nomig")
	r, _ := newRunner(tst, filepath.Join(tst.TempDir(), "missing"), 1)
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err == nil {
		tst.Error("Expected error for a missing output directory")
	}
}

func TestResume(tst *testing.T) {
	dir := tst.TempDir()
	store, err := checkpoint.Open(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer store.Close()
	spec, _ := demography.Lookup("split_nomig")
	path := results.FileName(dir, 2, "test", spec.ID)

	r, _ := newRunner(tst, dir, 2)
	r.Store = store
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}

	// checkpointed without a row, as after a crash before the write
	if err := store.Save(path, &checkpoint.Record{Model: spec.ID, Replicate: 3}); err != nil {
		tst.Fatal("Error: ", err)
	}
	r, rec := newRunner(tst, dir, 3)
	r.Store = store
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([]int{1, 2}, rec.skipped); diff != "" {
		tst.Error("Wrong skipped replicates (-want +got):\n", diff)
	}
	if diff := cmp.Diff([]int{3}, rec.finished); diff != "" {
		tst.Error("Wrong finished replicates (-want +got):\n", diff)
	}

	// overwrite starts from scratch
	r, rec = newRunner(tst, dir, 2)
	r.Store = store
	r.Overwrite = true
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(rec.skipped) != 0 || len(rec.finished) != 2 {
		tst.Error("Overwrite should rerun all the replicates:", rec.skipped, rec.finished)
	}
	if lines := readLines(tst, path); len(lines) != 3 {
		tst.Errorf("Expected a header and 2 rows, got %q", lines)
	}
}

func TestResumeMissingResults(tst *testing.T) {
	dir := tst.TempDir()
	store, err := checkpoint.Open(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer store.Close()
	spec, _ := demography.Lookup("split_nomig")

	r, _ := newRunner(tst, dir, 2)
	r.Store = store
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	path := results.FileName(dir, 2, "test", spec.ID)
	if err := os.Remove(path); err != nil {
		tst.Fatal("Error: ", err)
	}

	r, rec := newRunner(tst, dir, 2)
	r.Store = store
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(rec.skipped) != 0 || len(rec.finished) != 2 {
		tst.Error("A deleted results file should be rebuilt:", rec.skipped, rec.finished)
	}
	if rows, err := results.ReadFile(path); err != nil || len(rows) != 2 {
		tst.Error("Expected 2 rows, got", len(rows), err)
	}

	// another output directory with the same checkpoint
	other := filepath.Join(dir, "other")
	if err := os.Mkdir(other, 0755); err != nil {
		tst.Fatal("Error: ", err)
	}
	r, rec = newRunner(tst, other, 2)
	r.Store = store
	if err := r.Run(context.Background(), spec, starts[spec.ID]); err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(rec.skipped) != 0 || len(rec.finished) != 2 {
		tst.Error("Another output directory should run all the replicates:", rec.skipped, rec.finished)
	}
}

func TestCancel(tst *testing.T) {
	dir := tst.TempDir()
	spec, _ := demography.Lookup("split_nomig")
	r, rec := newRunner(tst, dir, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx, spec, starts[spec.ID]); !errors.Is(err, context.Canceled) {
		tst.Error("Expected context.Canceled, got", err)
	}
	if len(rec.finished) != 0 {
		tst.Error("No replicate should run after cancellation")
	}
}

func TestPlan(tst *testing.T) {
	jobs, err := Plan(starts, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// catalogue order
	if len(jobs) != 2 || jobs[0].Spec.ID != "split_nomig" || jobs[1].Spec.ID != "ancmig_2" {
		tst.Error("Wrong jobs:", jobs)
	}
	jobs, err = Plan(starts, []string{"ancmig_2"})
	if err != nil || len(jobs) != 1 || jobs[0].Spec.ID != "ancmig_2" {
		tst.Error("Wrong subset:", jobs, err)
	}
	if _, err := Plan(starts, []string{"refugia_1"}); err == nil {
		tst.Error("Expected error for a model without starting values")
	}
	if _, err := Plan(map[string][]float64{"island": {1}}, nil); !errors.Is(err, demography.ErrUnknownModel) {
		tst.Error("Expected ErrUnknownModel, got", err)
	}
	bad := map[string][]float64{
		"split_nomig": starts["split_nomig"],
		"ancmig_2":    {1, 2, 3},
	}
	if _, err := Plan(bad, nil); !errors.Is(err, demography.ErrParameterCount) {
		tst.Error("Expected ErrParameterCount, got", err)
	}
	if _, err := Plan(nil, nil); err == nil {
		tst.Error("Expected error for no models")
	}
}

func TestRunAll(tst *testing.T) {
	dir := tst.TempDir()
	jobs, err := Plan(starts, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	r, rec := newRunner(tst, dir, 1)
	if err := r.RunAll(context.Background(), jobs); err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([]string{"split_nomig", "ancmig_2"}, rec.started); diff != "" {
		tst.Error("Wrong model order (-want +got):\n", diff)
	}
	for id := range starts {
		if _, err := os.Stat(results.FileName(dir, 2, "test", id)); err != nil {
			tst.Error("Error: ", err)
		}
	}
}
