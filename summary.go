package wlparser

// SummaryExtractor pulls sectioned tables out of a trace summary export.
type SummaryExtractor struct {
	Kind      SummaryKind
	Targets   TargetConfig
	Separator string
}

// NewSummaryExtractor returns the extractor for kind with its targets from cfg.
func NewSummaryExtractor(kind SummaryKind, cfg *Config) *SummaryExtractor {
	s := &SummaryExtractor{Kind: kind, Separator: cfg.keySeparator()}
	if cfg == nil {
		return s
	}
	switch kind {
	case DeviceLinkSummary:
		s.Targets = cfg.Targets.DeviceLink
	case SystemTraceSummary:
		s.Targets = cfg.Targets.SystemTrace
	}
	return s
}

// Extract runs every target against text. It refuses shapes the extractor
// does not own; a missing section is a warning, not an error.
func (s *SummaryExtractor) Extract(shape DatasetShape, text string) (Extraction, error) {
	if s.Kind == NoSummary || s.Kind.Owner() != shape {
		return Extraction{}, &ShapeMismatchError{Kind: s.Kind, Shape: shape}
	}
	sep := s.Separator
	if sep == "" {
		sep = DefaultKeySeparator
	}

	var out Extraction
	for _, spec := range s.Targets {
		section, ok := ExtractSection(text, spec.Lookup)
		if !ok {
			out.warnf("%s summary: section %q not found for %s", s.Kind, spec.Lookup, spec.Key)
			continue
		}
		cells := s.firstRows(&out, spec, ExtractRows(section, spec.Devices))
		if len(spec.Buckets) > 0 {
			var err error
			if cells, err = BucketCells(cells, spec.Buckets); err != nil {
				out.warnf("%s summary: %s: %v", s.Kind, spec.Key, err)
				continue
			}
		}
		for _, cell := range cells {
			key := CompositeKey{Column: cell.Column, Device: cell.Device, Target: spec.Key}
			out.Records = append(out.Records, MetricRecord{Key: key.Join(sep), Value: cell.Value})
		}
	}
	return out, nil
}

// firstRows keeps the first value for each device label and column. Rows that
// resolve to a label already taken by an earlier row are skipped with one
// warning per row.
func (s *SummaryExtractor) firstRows(out *Extraction, spec TargetSpec, cells []Cell) []Cell {
	type slot struct{ device, column string }
	taken := make(map[slot]struct{}, len(cells))
	owner := map[string]string{}
	warned := map[string]struct{}{}

	kept := make([]Cell, 0, len(cells))
	for _, cell := range cells {
		if _, ok := owner[cell.Device]; !ok {
			owner[cell.Device] = cell.Row
		}
		key := slot{cell.Device, cell.Column}
		if _, ok := taken[key]; !ok {
			taken[key] = struct{}{}
			kept = append(kept, cell)
			continue
		}
		if _, ok := warned[cell.Row]; !ok {
			warned[cell.Row] = struct{}{}
			out.warnf("%s summary: %s: row %q skipped, %q already taken by row %q",
				s.Kind, spec.Key, cell.Row, cell.Device, owner[cell.Device])
		}
	}
	return kept
}
