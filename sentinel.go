package wlparser

import "path/filepath"

// Sentinel file names written by the hardware-observability harness.
const (
	PassSentinel = ".PASS"
	FailSentinel = ".FAIL"
)

// Record keys produced by the sentinel extractor.
const (
	SentinelResultKey = "HOBL_result"
	SentinelLogKey    = "HOBL_log"
)

// Outcome is the pass/fail verdict of a run.
type Outcome int

const (
	Indeterminate Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	default:
		return "INDETERMINATE"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// SentinelResult is the verdict plus the first log file, if any.
type SentinelResult struct {
	Outcome  Outcome `json:"outcome"`
	LogPath  string  `json:"log_path,omitempty"`
	Conflict bool    `json:"conflict,omitempty"`
}

// DetectSentinel inspects inv for pass/fail markers. Both markers together
// are reported as Indeterminate with Conflict set.
func DetectSentinel(inv FileInventory, dir string) SentinelResult {
	pass := inv.Has(PassSentinel)
	fail := inv.Has(FailSentinel)

	var res SentinelResult
	switch {
	case pass && fail:
		res.Outcome = Indeterminate
		res.Conflict = true
	case pass:
		res.Outcome = Pass
	case fail:
		res.Outcome = Fail
	}

	if logs := inv.WithSuffix(".log"); len(logs) > 0 {
		res.LogPath = logs[0]
		if dir != "" {
			res.LogPath = filepath.Join(dir, logs[0])
		}
	}
	return res
}

// Extraction converts the result to metric records.
func (r SentinelResult) Extraction() Extraction {
	var out Extraction
	if r.Conflict {
		out.warnf("both %s and %s present; outcome is indeterminate", PassSentinel, FailSentinel)
	}
	out.Records = append(out.Records, MetricRecord{Key: SentinelResultKey, Value: r.Outcome.String()})
	if r.LogPath != "" {
		out.Records = append(out.Records, MetricRecord{Key: SentinelLogKey, Value: r.LogPath})
	}
	return out
}
