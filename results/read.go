package results

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"bitbucket.org/Davydov/afsfit/optimize"
)

// Read parses result rows. Header rows, which may repeat when several
// runs appended to one file, and empty lines are skipped. Trailing
// tabs are allowed.
func Read(r io.Reader) ([]*Row, error) {
	var rows []*Row
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\t\r ")
		if text == "" || strings.HasPrefix(text, "Model\t") {
			continue
		}
		row, err := parseRow(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func parseRow(text string) (*Row, error) {
	fields := strings.Split(text, "\t")
	if len(fields) < 6 {
		return nil, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}
	row := &Row{
		Label:    fields[0],
		ParamSet: fields[1],
	}
	var err error
	if row.Replicate, err = strconv.Atoi(fields[2]); err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}
	nums := make([]float64, 3)
	for i := range nums {
		if nums[i], err = strconv.ParseFloat(fields[3+i], 64); err != nil {
			return nil, fmt.Errorf("field %d: %w", 4+i, err)
		}
	}
	row.LL, row.Theta, row.AIC = nums[0], nums[1], nums[2]
	if row.Params, err = optimize.ReadFloats(strings.Join(fields[6:], " ")); err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	return row, nil
}

// ReadFile reads a result file.
func ReadFile(path string) ([]*Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
