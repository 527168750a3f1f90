package wlparser

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReportWriter is the write half of a Sink. Buffer implements it too.
type ReportWriter interface {
	Put(ctx context.Context, reports []Report) error
}

// Sink persists reports keyed by folder label.
type Sink interface {
	ReportWriter
	// Get returns one entry per label, nil where no report is stored.
	Get(ctx context.Context, labels []string) ([]*Report, error)
	Description() string
}

// Report is the persisted form of a FolderResult.
type Report struct {
	Label    string         `json:"label" bson:"label"`
	Dir      string         `json:"dir" bson:"dir"`
	Prefix   string         `json:"prefix,omitempty" bson:"prefix,omitempty"`
	Shape    string         `json:"shape" bson:"shape"`
	Outcome  string         `json:"outcome" bson:"outcome"`
	Entries  []MetricRecord `json:"entries" bson:"entries"`
	Warnings []string       `json:"warnings,omitempty" bson:"warnings,omitempty"`
	Failed   bool           `json:"failed" bson:"failed"`
	Error    string         `json:"error,omitempty" bson:"error,omitempty"`
}

// NewReport flattens res for storage.
func NewReport(res FolderResult) Report {
	r := Report{
		Label:    res.Label,
		Dir:      res.Dir,
		Prefix:   res.Prefix,
		Shape:    res.Shape.String(),
		Outcome:  res.Sentinel.Outcome.String(),
		Entries:  res.Record.Entries(),
		Warnings: append([]string(nil), res.Warnings...),
		Failed:   res.Failed,
	}
	if r.Entries == nil {
		r.Entries = []MetricRecord{}
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// Record rebuilds the ordered workload record.
func (r *Report) Record() (*WorkloadRecord, error) {
	return Merge(r.Entries)
}

func encodeReport(r Report) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("wlparser: encode report %s: %w", r.Label, err)
	}
	return string(data), nil
}

func decodeReport(label string, data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("wlparser: decode report %s: %w", label, err)
	}
	return &r, nil
}

// orderReports arranges found reports in label order, nil where missing.
func orderReports(labels []string, found map[string]*Report) []*Report {
	out := make([]*Report, 0, len(labels))
	for _, label := range labels {
		out = append(out, found[label])
	}
	return out
}

// dedupeReports keeps the last report per label in first-seen label order.
func dedupeReports(reports []Report) []Report {
	index := make(map[string]int, len(reports))
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if i, ok := index[r.Label]; ok {
			out[i] = r
			continue
		}
		index[r.Label] = len(out)
		out = append(out, r)
	}
	return out
}
