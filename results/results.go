// Package results writes and reads the per-model replicate tables.
//
// Every model has its own tab separated file
// Round<round>_<prefix>_<model>_optimized.txt. Rows are appended one
// at a time and the file is closed after every row, so a crash loses
// at most the replicate being computed.
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/afsfit/optimize"
)

var log = logging.MustGetLogger("results")

// Header is the first row written by every invocation.
const Header = "Model\tparam_set\tReplicate\tlog-likelihood\ttheta\tAIC\toptimized_params"

// Row is a replicate result.
type Row struct {
	// Label is the model label.
	Label string `json:"model"`
	// ParamSet lists the parameter names.
	ParamSet  string    `json:"paramSet"`
	Replicate int       `json:"replicate"`
	LL        float64   `json:"lnL"`
	Theta     float64   `json:"theta"`
	AIC       float64   `json:"AIC"`
	Params    []float64 `json:"parameters"`
}

// Format returns the row as a line without the newline. Likelihood,
// theta and AIC have two decimals and the parameters four.
func (r *Row) Format() string {
	s := r.Label + "\t" + r.ParamSet + "\t" + strconv.Itoa(r.Replicate) +
		"\t" + strconv.FormatFloat(r.LL, 'f', 2, 64) +
		"\t" + strconv.FormatFloat(r.Theta, 'f', 2, 64) +
		"\t" + strconv.FormatFloat(r.AIC, 'f', 2, 64)
	if len(r.Params) > 0 {
		s += "\t" + optimize.FormatFloats(r.Params, 4, "\t")
	}
	return s
}

// FileName returns the result file path of a model.
func FileName(dir string, round int, prefix, model string) string {
	return filepath.Join(dir, fmt.Sprintf("Round%d_%s_%s_optimized.txt", round, prefix, model))
}

// Writer appends rows to a result file.
type Writer struct {
	path string
}

// NewWriter prepares a result file and appends the header. An existing
// file is truncated if overwrite is set; otherwise new rows follow the
// old ones under a second header.
func NewWriter(path string, overwrite bool) (*Writer, error) {
	w := &Writer{path: path}
	_, err := os.Stat(path)
	switch {
	case err == nil && overwrite:
		log.Infof("Overwriting %s", path)
		if err := os.Truncate(path, 0); err != nil {
			return nil, err
		}
	case err == nil:
		log.Warningf("Appending to existing results file %s", path)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	if err := w.appendLine(Header); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Write appends a row.
func (w *Writer) Write(r *Row) error {
	return w.appendLine(r.Format())
}

// appendLine opens the file, appends a line and closes it.
func (w *Writer) appendLine(line string) (err error) {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = f.WriteString(line + "\n")
	return err
}
