package wlparser

import (
	"fmt"
	"strconv"
	"strings"
)

// frequencyBucket is an exact frequency ("400") or an inclusive range ("401-1049").
type frequencyBucket struct {
	label string
	min   int
	max   int
}

func (b frequencyBucket) contains(freq int) bool {
	return freq >= b.min && freq <= b.max
}

func parseBucket(label string) (frequencyBucket, error) {
	lo, hi, isRange := strings.Cut(label, "-")
	b := frequencyBucket{label: label}
	var err error
	if b.min, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
		return frequencyBucket{}, fmt.Errorf("bucket %q is not a frequency", label)
	}
	b.max = b.min
	if isRange {
		b.max, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || b.max < b.min {
			return frequencyBucket{}, fmt.Errorf("bucket %q is not a frequency range", label)
		}
	}
	return b, nil
}

func parseBuckets(labels []string) ([]frequencyBucket, error) {
	out := make([]frequencyBucket, 0, len(labels))
	for _, label := range labels {
		b, err := parseBucket(label)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// BucketCells folds P-state rows into frequency buckets. Rows whose identifier
// is an integer frequency add their value to every bucket containing it, per
// column; other rows are dropped and unparseable values count as zero. Every
// bucket is reported for every column, labelled by the bucket.
func BucketCells(cells []Cell, labels []string) ([]Cell, error) {
	buckets, err := parseBuckets(labels)
	if err != nil {
		return nil, err
	}

	var columns []string
	sums := map[string][]float64{}
	for _, cell := range cells {
		freq, err := strconv.Atoi(strings.TrimSpace(cell.Row))
		if err != nil {
			continue
		}
		totals, ok := sums[cell.Column]
		if !ok {
			totals = make([]float64, len(buckets))
			sums[cell.Column] = totals
			columns = append(columns, cell.Column)
		}
		value, valid := parseNumericString(cell.Value)
		if !valid {
			continue
		}
		for i, b := range buckets {
			if b.contains(freq) {
				totals[i] += value
			}
		}
	}

	out := make([]Cell, 0, len(columns)*len(buckets))
	for _, column := range columns {
		for i, b := range buckets {
			out = append(out, Cell{
				Device: b.label,
				Column: column,
				Value:  formatNumeric(sums[column][i]),
				Row:    b.label,
			})
		}
	}
	return out, nil
}
