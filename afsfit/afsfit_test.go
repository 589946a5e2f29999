package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/afsfit/config"
	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/results"
)

func init() {
	for _, m := range loggers {
		logging.SetLevel(logging.ERROR, m)
	}
}

const snpTable = `# test table
Ingroup	Outgroup	Allele1	A	B	C	Allele2	A	B	C	Gene	Position
-A-	-A-	A	2	0	1	G	2	4	3	g1	10
-C-	-T-	C	4	1	0	T	0	3	4	g1	22
-G-	-G-	G	1	2	2	A	3	2	2	g2	5
-T-	-C-	T	0	0	0	C	1	4	4	g3	7
`

const runConfigYAML = `
snps: snps.txt
populations: [A, B, C]
projections: [4, 4, 4]
prefix: test
replicates: 3
models:
  split_nomig: [4.7878, 0.4657, 7.0718, 1.8793, 0.1819, 0.6351]
`

// writeRun writes a SNP table and a configuration into a temporary
// directory and returns the configuration path.
func writeRun(tst *testing.T) string {
	tst.Helper()
	dir := tst.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "snps.txt"), []byte(snpTable), 0644); err != nil {
		tst.Fatal("Error: ", err)
	}
	fn := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(fn, []byte(runConfigYAML), 0644); err != nil {
		tst.Fatal("Error: ", err)
	}
	return fn
}

func TestOverrides(tst *testing.T) {
	fn := writeRun(tst)
	cfg, err := loadConfig(fn, overrides{})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if cfg.Replicates != 3 || cfg.Method != "simplex" || cfg.Overwrite {
		tst.Errorf("Wrong configuration: %+v", cfg)
	}

	cfg, err = loadConfig(fn, overrides{
		replicates: 7,
		maxIter:    20,
		method:     "lbfgsb",
		seed:       5,
		overwrite:  true,
		checkpoint: "run.db",
	})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if cfg.Replicates != 7 || cfg.MaxIter != 20 || cfg.Method != "lbfgsb" ||
		cfg.Seed != 5 || !cfg.Overwrite || cfg.Checkpoint != "run.db" {
		tst.Errorf("Overrides were not applied: %+v", cfg)
	}

	if _, err := loadConfig(fn, overrides{method: "annealing"}); err == nil {
		tst.Error("Expected error for an unknown method")
	}
}

func TestShowSpectrum(tst *testing.T) {
	fn := writeRun(tst)
	dir := filepath.Join(tst.TempDir(), "heat")
	var b bytes.Buffer
	if err := showSpectrum(&b, fn, dir); err != nil {
		tst.Fatal("Error: ", err)
	}
	out := b.String()
	for _, s := range []string{"A\t4\n", "B\t4\n", "C\t4\n", "folded\ttrue\n", "S\t"} {
		if !strings.Contains(out, s) {
			tst.Errorf("Output %q does not contain %q", out, s)
		}
	}
	for _, name := range []string{"A_B.png", "A_C.png", "B_C.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			tst.Error("Error: ", err)
		}
	}
}

func TestListModels(tst *testing.T) {
	var b bytes.Buffer
	if err := listModels(&b); err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != len(demography.Catalogue())+1 {
		tst.Fatal("Wrong number of lines:", len(lines))
	}
	if !strings.HasPrefix(lines[1], "split_nomig") {
		tst.Error("Wrong first model:", lines[1])
	}
}

// writeResults writes replicate rows of two models and returns the
// file names.
func writeResults(tst *testing.T, dir string) []string {
	tst.Helper()
	var files []string
	for _, m := range []struct {
		id   string
		aics []float64
	}{
		{"split_nomig", []float64{120, 110.5, 130}},
		{"ancmig_2", []float64{100, 104}},
	} {
		spec, err := demography.Lookup(m.id)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		fn := results.FileName(dir, 2, "test", m.id)
		w, err := results.NewWriter(fn, true)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		for i, aic := range m.aics {
			params := make([]float64, spec.NParams())
			for j := range params {
				params[j] = float64(i+1) + float64(j)/10
			}
			row := &results.Row{
				Label:     spec.Label,
				ParamSet:  spec.ParamSet(),
				Replicate: i + 1,
				LL:        -(aic - 2*float64(spec.NParams())) / 2,
				Theta:     10,
				AIC:       aic,
				Params:    params,
			}
			if err := w.Write(row); err != nil {
				tst.Fatal("Error: ", err)
			}
		}
		files = append(files, fn)
	}
	return files
}

func TestSummarize(tst *testing.T) {
	dir := tst.TempDir()
	files := writeResults(tst, dir)
	jsonF := filepath.Join(dir, "summary.json")
	nextF := filepath.Join(dir, "next.yaml")

	var b bytes.Buffer
	if err := summarize(&b, files, jsonF, nextF); err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "Ancient migration 2") {
		tst.Fatalf("Wrong ranking: %q", lines)
	}

	j, err := os.ReadFile(jsonF)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	var summary RankSummary
	if err := json.Unmarshal(j, &summary); err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(summary.Models) != 2 || summary.Models[1].DeltaAIC != 10.5 || summary.Models[1].Best.Replicate != 2 {
		tst.Errorf("Wrong json summary: %+v", summary.Models)
	}

	f, err := os.Open(nextF)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer f.Close()
	cfg, err := config.Parse(f)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	want := map[string][]float64{
		"ancmig_2":    {1, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6},
		"split_nomig": {2, 2.1, 2.2, 2.3, 2.4, 2.5},
	}
	if diff := cmp.Diff(want, cfg.Models); diff != "" {
		tst.Error("Wrong next round starts (-want +got):\n", diff)
	}
}

func TestNextStartsSkipsUnknown(tst *testing.T) {
	ranked := results.Rank([]*results.Row{
		{Label: "Island model", AIC: 10, Params: []float64{1}},
		{Label: "Ancient migration 2", AIC: 12, Params: []float64{1, 2}},
	})
	if starts := nextStarts(ranked); len(starts) != 0 {
		tst.Error("Expected no starts, got", starts)
	}
}

func TestPlotAIC(tst *testing.T) {
	dir := tst.TempDir()
	files := writeResults(tst, dir)
	labels, pts, err := aicPoints(files)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([]string{"Split with No Migration", "Ancient migration 2"}, labels); diff != "" {
		tst.Error("Wrong labels (-want +got):\n", diff)
	}
	if len(pts) != 2 || len(pts[0]) != 3 || len(pts[1]) != 2 || pts[1][0].X != 1 {
		tst.Error("Wrong points:", pts)
	}
	out := filepath.Join(dir, "aic.png")
	if err := plotAIC(files, out); err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := os.Stat(out); err != nil {
		tst.Error("Error: ", err)
	}
}
