package wlparser

import (
	"math"
	"strconv"
	"strings"
)

// InvalidValue is recorded for a channel whose value does not parse.
const InvalidValue = "-1"

func parseNumericString(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimSuffix(trimmed, "%")
	if trimmed == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatNumeric(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// positiveSum adds the values of the named channels that are greater than zero.
func positiveSum(values map[string]float64, names []string) float64 {
	total := 0.0
	for _, name := range names {
		if v, ok := values[name]; ok && v > 0 {
			total += v
		}
	}
	return total
}
