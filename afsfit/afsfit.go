/*

Afsfit fits three-population demographic models to a joint site
frequency spectrum. Every model is optimized from a number of
perturbed starting points and every replicate is appended to the model
result file.

A typical round looks like this:

	afsfit run round2.yaml
	afsfit summary Round2_*_optimized.txt --next round3-models.yaml

, the second command ranks the models by AIC and writes the best
parameters as starting values for the next round.

To see all the commands and options run:

	afsfit --help

*/
package main

import (
	"fmt"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("afsfit")
var formatter = logging.MustStringFormatter(`%{message}`)

// loggers are the package loggers controlled by --loglevel.
var loggers = []string{
	"afsfit",
	"spectrum",
	"demography",
	"inference",
	"optimize",
	"checkpoint",
	"results",
	"pipeline",
	"config",
}

// command-line options
var (
	app = kingpin.New("afsfit", "demographic model fitting for joint site frequency spectra").Version(version)

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")

	// run
	runCmd        = app.Command("run", "run the replicates of the configured models")
	runConfig     = runCmd.Arg("config", "run configuration (YAML)").Required().ExistingFile()
	runModels     = runCmd.Flag("model", "run only this model (can be repeated)").Strings()
	runReps       = runCmd.Flag("reps", "number of replicates per model (0 to use the configuration)").Int()
	runMaxIter    = runCmd.Flag("maxiter", "maximum number of optimizer iterations (0 to use the configuration)").Int()
	runMethod     = runCmd.Flag("method", "optimization method (empty to use the configuration)").String()
	runSeed       = runCmd.Flag("seed", "perturbation seed (0 to use the configuration)").Uint64()
	runOverwrite  = runCmd.Flag("overwrite", "truncate the result files instead of appending").Bool()
	runCheckpoint = runCmd.Flag("checkpoint", "checkpoint database, completed replicates are skipped").String()
	runTrajectory = runCmd.Flag("out", "write optimization trajectories to a file").String()
	runJSON       = runCmd.Flag("json", "write json run summary to a file").String()

	// models
	modelsCmd = app.Command("models", "list the model catalogue")

	// spectrum
	spectrumCmd     = app.Command("spectrum", "build the spectrum and print its summary")
	spectrumConfig  = spectrumCmd.Arg("config", "run configuration (YAML)").Required().ExistingFile()
	spectrumHeatmap = spectrumCmd.Flag("heatmap", "write two-population marginal heat maps to the directory").String()

	// summary
	summaryCmd   = app.Command("summary", "rank the models by their best AIC")
	summaryFiles = summaryCmd.Arg("files", "result files").Required().ExistingFiles()
	summaryJSON  = summaryCmd.Flag("json", "write json summary to a file").String()
	summaryNext  = summaryCmd.Flag("next", "write the best parameters as a models block for the next round").String()

	// plot
	plotCmd   = app.Command("plot", "plot replicate AIC values per model")
	plotFiles = plotCmd.Arg("files", "result files").Required().ExistingFiles()
	plotOut   = plotCmd.Flag("out", "output image (png, svg, pdf or eps)").Required().String()
)

// setupLogging configures the backend and the level of every package
// logger. The returned function closes the log file.
func setupLogging(fileName, levelName string) (func(), error) {
	logging.SetFormatter(formatter)

	closer := func() {}
	var backend *logging.LogBackend
	if fileName != "" {
		f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("creating log file: %w", err)
		}
		closer = func() { f.Close() }
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(levelName)
	if err != nil {
		closer()
		return nil, err
	}
	for _, m := range loggers {
		logging.SetLevel(level, m)
	}
	return closer, nil
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	closeLog, err := setupLogging(*outLogF, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	switch cmd {
	case runCmd.FullCommand():
		err = runFit()
	case modelsCmd.FullCommand():
		err = listModels(os.Stdout)
	case spectrumCmd.FullCommand():
		err = showSpectrum(os.Stdout, *spectrumConfig, *spectrumHeatmap)
	case summaryCmd.FullCommand():
		err = summarize(os.Stdout, *summaryFiles, *summaryJSON, *summaryNext)
	case plotCmd.FullCommand():
		err = plotAIC(*plotFiles, *plotOut)
	}
	if err != nil {
		log.Error(err)
		closeLog()
		os.Exit(1)
	}
}
