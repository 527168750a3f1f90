package wlparser

import (
	"sort"
	"strings"
)

// DatasetShape describes which trace companions a workload folder carries.
type DatasetShape int

const (
	Unrecognized DatasetShape = iota
	FullSystemTrace
	DeviceLinkOnly
	NoSystemTrace
)

func (s DatasetShape) String() string {
	switch s {
	case FullSystemTrace:
		return "full-system-trace"
	case DeviceLinkOnly:
		return "device-link-only"
	case NoSystemTrace:
		return "no-system-trace"
	default:
		return "unrecognized"
	}
}

// MarshalText encodes the shape by name.
func (s DatasetShape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session suffixes of the trace companion files.
const (
	ExtraSession = "extraSession"
	HWSession    = "hwSession"
	InfoSession  = "infoSession"
	OSSession    = "osSession"
)

// DefaultTraceExt is the extension of trace companion files.
const DefaultTraceExt = ".etl"

var companionSessions = []string{ExtraSession, HWSession, InfoSession, OSSession}

// CompanionName returns "{prefix}_{session}{traceExt}".
func CompanionName(prefix, session, traceExt string) string {
	if traceExt == "" {
		traceExt = DefaultTraceExt
	}
	return prefix + "_" + session + traceExt
}

// Classify decides the dataset shape from the companion files that share prefix.
// It uses the default trace extension.
func Classify(inv FileInventory, prefix string) DatasetShape {
	return ClassifyExt(inv, prefix, DefaultTraceExt)
}

// ClassifyExt is Classify with a caller-chosen trace extension.
func ClassifyExt(inv FileInventory, prefix, traceExt string) DatasetShape {
	extra := inv.Has(CompanionName(prefix, ExtraSession, traceExt))
	hw := inv.Has(CompanionName(prefix, HWSession, traceExt))
	info := inv.Has(CompanionName(prefix, InfoSession, traceExt))
	osTrace := inv.Has(CompanionName(prefix, OSSession, traceExt))

	switch {
	case extra && hw && info && osTrace:
		return FullSystemTrace
	case extra && hw && info && !osTrace:
		return DeviceLinkOnly
	case !extra && !hw && !info && !osTrace:
		return NoSystemTrace
	default:
		return Unrecognized
	}
}

// WorkloadPrefixes returns the sorted, distinct prefixes of companion files in inv.
func WorkloadPrefixes(inv FileInventory) []string {
	return WorkloadPrefixesExt(inv, DefaultTraceExt)
}

// WorkloadPrefixesExt is WorkloadPrefixes with a caller-chosen trace extension.
func WorkloadPrefixesExt(inv FileInventory, traceExt string) []string {
	if traceExt == "" {
		traceExt = DefaultTraceExt
	}
	seen := map[string]struct{}{}
	for _, name := range inv.names {
		for _, session := range companionSessions {
			suffix := "_" + session + traceExt
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			prefix := strings.TrimSuffix(name, suffix)
			if prefix != "" {
				seen[prefix] = struct{}{}
			}
			break
		}
	}
	out := make([]string, 0, len(seen))
	for prefix := range seen {
		out = append(out, prefix)
	}
	sort.Strings(out)
	return out
}

// OwnsSummary reports whether the summary CSV name belongs to the workload prefix.
// A false result means the file is unrelated to the workload.
func OwnsSummary(name, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(strings.ToLower(name), ".csv")
}

// SummaryCandidates lists the CSV files owned by prefix, excluding power
// summaries, power traces, and wakeup-analysis exports.
func SummaryCandidates(inv FileInventory, prefix string) []string {
	var out []string
	for _, name := range inv.names {
		if !OwnsSummary(name, prefix) {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "wakeupanalysis") || IsPowerSummary(name) || IsPowerTrace(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// IsPowerSummary reports whether name looks like a power-rail summary CSV.
func IsPowerSummary(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".csv") || IsPowerTrace(name) {
		return false
	}
	if strings.Contains(lower, "pacs-summary") {
		return true
	}
	return strings.Contains(lower, "power") && strings.Contains(lower, "summary")
}

// IsPowerTrace reports whether name is a raw power trace export.
func IsPowerTrace(name string) bool {
	return strings.Contains(strings.ToLower(name), "pacs-traces")
}

// PowerSummaries returns the power summary CSVs in inv.
func PowerSummaries(inv FileInventory) []string {
	var out []string
	for _, name := range inv.names {
		if IsPowerSummary(name) {
			out = append(out, name)
		}
	}
	return out
}

// SummaryKind selects the summary extractor variant.
type SummaryKind int

const (
	NoSummary SummaryKind = iota
	DeviceLinkSummary
	SystemTraceSummary
)

func (k SummaryKind) String() string {
	switch k {
	case DeviceLinkSummary:
		return "device-link"
	case SystemTraceSummary:
		return "system-trace"
	default:
		return "none"
	}
}

// Owner returns the only shape the summary kind may run against.
func (k SummaryKind) Owner() DatasetShape {
	switch k {
	case DeviceLinkSummary:
		return DeviceLinkOnly
	case SystemTraceSummary:
		return FullSystemTrace
	default:
		return Unrecognized
	}
}

// SummaryKindFor maps a shape to the summary extractor that owns it.
// NoSystemTrace and Unrecognized folders run no summary extractor.
func SummaryKindFor(shape DatasetShape) SummaryKind {
	switch shape {
	case FullSystemTrace:
		return SystemTraceSummary
	case DeviceLinkOnly:
		return DeviceLinkSummary
	case NoSystemTrace, Unrecognized:
		return NoSummary
	default:
		return NoSummary
	}
}
