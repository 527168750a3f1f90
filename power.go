package wlparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Power channel names with special handling.
const (
	RunTimeChannel    = "Run Time"
	EnergyChannel     = "Energy (J)"
	SoCMemoryChannel  = "P_SOC+MEMORY"
	socPowerChannel   = "P_SOC"
	mcpPowerChannel   = "P_MCP"
	powerSummaryLabel = "power summary"
)

var (
	socRails    = []string{"P_VCC_PCORE", "P_VCC_ECORE", "P_VCCSA", "P_VCCGT"}
	memoryRails = []string{"P_VDDQ", "P_VDD2H", "P_VDD2L"}
)

// Extraction is the output of one extractor run.
type Extraction struct {
	Records  []MetricRecord
	Warnings []string
}

func (e *Extraction) warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// PowerChannel is one row of a power summary.
type PowerChannel struct {
	Name  string
	Raw   string
	Value float64
	Valid bool
}

type powerLayout struct {
	power   string
	voltage string
	current string
	average string
}

func defaultPowerLayout() powerLayout {
	return (*Config)(nil).powerLayout()
}

// auto reports whether a channel is kept when no explicit targets are given.
func (l powerLayout) auto(name string) bool {
	if name == RunTimeChannel || name == EnergyChannel {
		return true
	}
	if strings.HasPrefix(name, l.voltage) || strings.HasPrefix(name, l.current) {
		return false
	}
	return strings.HasPrefix(name, l.power)
}

// SelectPowerChannels applies the channel selection rule to names.
// With no targets it keeps power rails plus run time and energy; with targets
// it returns the targeted channel names that are present, in target order.
func SelectPowerChannels(names []string, targets TargetConfig) []string {
	return defaultPowerLayout().selectChannels(names, targets)
}

func (l powerLayout) selectChannels(names []string, targets TargetConfig) []string {
	var out []string
	if targets == nil {
		for _, name := range names {
			if l.auto(name) {
				out = append(out, name)
			}
		}
		return out
	}

	present := make(map[string]struct{}, len(names))
	for _, name := range names {
		present[name] = struct{}{}
	}
	for _, spec := range targets {
		if _, ok := present[spec.Lookup]; ok {
			out = append(out, spec.Lookup)
		}
	}
	return out
}

// ReadPowerSummary decodes a power summary CSV. The first column names the
// channel and the value is taken from averageColumn.
func ReadPowerSummary(r io.Reader, averageColumn string) ([]PowerChannel, error) {
	if averageColumn == "" {
		averageColumn = DefaultAverageColumn
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(stripBOM(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("wlparser: %s is empty", powerSummaryLabel)
	}
	if err != nil {
		return nil, fmt.Errorf("wlparser: %s header: %w", powerSummaryLabel, err)
	}
	column := -1
	for i, name := range header {
		if strings.TrimSpace(name) == averageColumn {
			column = i
			break
		}
	}
	if column < 1 {
		return nil, fmt.Errorf("wlparser: %s: column %q not found", powerSummaryLabel, averageColumn)
	}

	var channels []PowerChannel
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wlparser: %s row: %w", powerSummaryLabel, err)
		}
		if len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		ch := PowerChannel{Name: name}
		if column < len(row) {
			ch.Raw = strings.TrimSpace(row[column])
			ch.Value, ch.Valid = parseNumericString(ch.Raw)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// PowerExtractor turns a power summary into metric records.
type PowerExtractor struct {
	// Targets selects channels explicitly. Nil selects auto-detection.
	Targets TargetConfig
	layout  powerLayout
}

// NewPowerExtractor returns an extractor using the layout from cfg.
func NewPowerExtractor(cfg *Config) *PowerExtractor {
	var targets TargetConfig
	if cfg != nil {
		targets = cfg.Targets.Power
	}
	return &PowerExtractor{Targets: targets, layout: cfg.powerLayout()}
}

// Extract reads one power summary.
func (p *PowerExtractor) Extract(r io.Reader) (Extraction, error) {
	channels, err := ReadPowerSummary(r, p.layout.average)
	if err != nil {
		return Extraction{}, err
	}
	return p.FromChannels(channels), nil
}

// FromChannels selects channels and appends derived metrics. Records are keyed
// by channel name in both modes; a target's key only names it.
func (p *PowerExtractor) FromChannels(channels []PowerChannel) Extraction {
	var out Extraction
	byName := make(map[string]PowerChannel, len(channels))
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := byName[ch.Name]; ok {
			out.warnf("%s: channel %q repeated, keeping first", powerSummaryLabel, ch.Name)
			continue
		}
		byName[ch.Name] = ch
		names = append(names, ch.Name)
	}

	derived := derivePowerMetrics(channels)
	emitted := map[string]struct{}{}
	emit := func(key string, ch PowerChannel) {
		value := ch.Raw
		if !ch.Valid {
			out.warnf("%s: channel %q has unparseable value %q", powerSummaryLabel, ch.Name, ch.Raw)
			value = InvalidValue
		}
		out.Records = append(out.Records, MetricRecord{Key: key, Value: value})
		emitted[key] = struct{}{}
	}

	if p.Targets == nil {
		for _, name := range names {
			if p.layout.auto(name) {
				emit(name, byName[name])
			}
		}
		for _, d := range derived {
			if _, ok := emitted[d.Key]; !ok {
				out.Records = append(out.Records, d)
			}
		}
		return out
	}

	derivedByKey := make(map[string]string, len(derived))
	for _, d := range derived {
		derivedByKey[d.Key] = d.Value
	}
	for _, spec := range p.Targets {
		if ch, ok := byName[spec.Lookup]; ok {
			emit(spec.Lookup, ch)
			continue
		}
		if v, ok := derivedByKey[spec.Lookup]; ok {
			out.Records = append(out.Records, MetricRecord{Key: spec.Lookup, Value: v})
			continue
		}
		out.warnf("%s: target %q not found", powerSummaryLabel, spec.Lookup)
	}
	return out
}

// derivePowerMetrics computes SoC+memory power and SoC energy.
// Measured channels of the same name take precedence.
func derivePowerMetrics(channels []PowerChannel) []MetricRecord {
	values := make(map[string]float64, len(channels))
	var socPower float64
	for _, ch := range channels {
		if !ch.Valid {
			continue
		}
		if _, ok := values[ch.Name]; !ok {
			values[ch.Name] = ch.Value
		}
		if ch.Name != SoCMemoryChannel && (strings.Contains(ch.Name, socPowerChannel) || strings.Contains(ch.Name, mcpPowerChannel)) {
			socPower = ch.Value
		}
	}

	var out []MetricRecord
	soc := positiveSum(values, socRails)
	memory := positiveSum(values, memoryRails)
	if _, measured := values[SoCMemoryChannel]; !measured && soc > 0 && memory > 0 {
		out = append(out, MetricRecord{Key: SoCMemoryChannel, Value: formatNumeric(soc + memory)})
	}
	runtime := values[RunTimeChannel]
	if _, measured := values[EnergyChannel]; !measured && socPower > 0 && runtime > 0 {
		out = append(out, MetricRecord{Key: EnergyChannel, Value: formatNumeric(socPower * runtime)})
	}
	return out
}
