package optimize

import (
	"fmt"
	"strconv"
	"strings"
)

// ReadFloats parses whitespace separated floats.
func ReadFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	v := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i+1, err)
		}
		v[i] = x
	}
	return v, nil
}

// FormatFloats formats floats in fixed notation with prec decimals
// joined by sep.
func FormatFloats(v []float64, prec int, sep string) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.FormatFloat(x, 'f', prec, 64)
	}
	return strings.Join(s, sep)
}
