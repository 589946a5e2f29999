package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"bitbucket.org/Davydov/afsfit/config"
	"bitbucket.org/Davydov/afsfit/demography"
	"bitbucket.org/Davydov/afsfit/optimize"
	"bitbucket.org/Davydov/afsfit/results"
)

// CallSummary describes the afsfit invocation.
type CallSummary struct {
	// Version stores afsfit version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
}

func newCallSummary() CallSummary {
	return CallSummary{
		Version:     version,
		CommandLine: os.Args,
	}
}

// RunSummary is the json output of the run command.
type RunSummary struct {
	CallSummary
	// Config is the effective configuration after the command line
	// overrides.
	Config *config.Config `json:"config"`
	// Replicates is the number of finished replicates per model.
	Replicates map[string]int `json:"replicates"`
	// Failed is the number of failed replicates per model.
	Failed map[string]int `json:"failed"`
	// TotalTime is the computations time in seconds.
	TotalTime float64 `json:"time"`
	// Error is set if the run has stopped early.
	Error string `json:"error,omitempty"`
}

// RankSummary is the json output of the summary command.
type RankSummary struct {
	CallSummary
	Files  []string          `json:"files"`
	Models []*results.Ranked `json:"models"`
}

// listModels prints the model catalogue.
func listModels(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tlabel\tparameters\tupper bounds")
	for _, spec := range demography.Catalogue() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.ID, spec.Label,
			strings.Join(spec.Names, " "), optimize.FormatFloats(spec.Upper, 0, " "))
	}
	return tw.Flush()
}

// readResults reads and concatenates result files.
func readResults(fileNames []string) ([]*results.Row, error) {
	var rows []*results.Row
	for _, fn := range fileNames {
		rr, err := results.ReadFile(fn)
		if err != nil {
			return nil, err
		}
		log.Infof("%s: %d replicates", fn, len(rr))
		rows = append(rows, rr...)
	}
	return rows, nil
}

// nextStarts returns the best parameters of the ranked models keyed by
// the model ids. Labels missing from the catalogue are skipped.
func nextStarts(ranked []*results.Ranked) map[string][]float64 {
	starts := make(map[string][]float64, len(ranked))
	for _, m := range ranked {
		spec, err := demography.LookupLabel(m.Best.Label)
		if err != nil {
			log.Warning(err)
			continue
		}
		if len(m.Best.Params) != spec.NParams() {
			log.Warningf("%s: %d parameters instead of %d, skipping", spec.ID, len(m.Best.Params), spec.NParams())
			continue
		}
		starts[spec.ID] = m.Best.Params
	}
	return starts
}

// printRanking prints the ranked models as a table.
func printRanking(w io.Writer, ranked []*results.Ranked) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Model\tReplicates\tBest\tlog-likelihood\ttheta\tAIC\tdeltaAIC\tweight\toptimized_params")
	for _, m := range ranked {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.4f\t%s\n",
			m.Best.Label, m.Replicates, m.Best.Replicate,
			m.Best.LL, m.Best.Theta, m.Best.AIC, m.DeltaAIC, m.Weight,
			optimize.FormatFloats(m.Best.Params, 4, ","))
	}
	return tw.Flush()
}

// summarize runs the summary command.
func summarize(w io.Writer, fileNames []string, jsonF, nextF string) error {
	rows, err := readResults(fileNames)
	if err != nil {
		return err
	}
	ranked := results.Rank(rows)
	if len(ranked) == 0 {
		return fmt.Errorf("no replicates with finite AIC in %d files", len(fileNames))
	}
	if err := printRanking(w, ranked); err != nil {
		return err
	}

	if jsonF != "" {
		summary := &RankSummary{
			CallSummary: newCallSummary(),
			Files:       fileNames,
			Models:      ranked,
		}
		if err := writeJSON(jsonF, summary); err != nil {
			return fmt.Errorf("writing json summary: %w", err)
		}
	}

	if nextF != "" {
		f, err := os.Create(nextF)
		if err != nil {
			return err
		}
		if err := config.WriteModels(f, nextStarts(ranked)); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Noticef("Starting values for the next round written to %s", nextF)
	}
	return nil
}
