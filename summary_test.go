package wlparser

import (
	"errors"
	"strings"
	"testing"
)

func TestSummaryExtractorDeviceLink(t *testing.T) {
	ext, err := NewSummaryExtractor(DeviceLinkSummary, DefaultConfig()).Extract(DeviceLinkOnly, deviceLinkSummary)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	record, err := Merge(ext.Records)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	cases := map[string]string{
		"L0 (%)_NVM        PCIe_LPM":        "95.2",
		"L2 (%)_NVM        PCIe_LPM":        "1.2",
		"Active (%)_NVM        PCIe_Active": "12.5",
		"<1us_NVM        PCIe_LTRsnoop":     "5",
	}
	for key, want := range cases {
		if got, ok := record.Get(key); !ok || got != want {
			t.Fatalf("key %q: got %q (present=%v), want %q", key, got, ok, want)
		}
	}
	for _, key := range record.Keys() {
		if strings.Contains(key, "WiFi") {
			t.Fatalf("non-allowlisted device leaked: %q", key)
		}
	}
	if len(ext.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", ext.Warnings)
	}
}

func TestSummaryExtractorMissingSectionWarns(t *testing.T) {
	extractor := &SummaryExtractor{
		Kind: SystemTraceSummary,
		Targets: TargetConfig{
			{Key: "Core_Cstate", Devices: []string{"Core"}, Lookup: "Core C-State Summary"},
			{Key: "PCIe_LPM", Devices: []string{"NVM"}, Lookup: "PCIe LPM Summary"},
		},
	}
	ext, err := extractor.Extract(FullSystemTrace, deviceLinkSummary)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(ext.Warnings) != 1 || !strings.Contains(ext.Warnings[0], "Core_Cstate") {
		t.Fatalf("expected one warning, got %v", ext.Warnings)
	}
	if len(ext.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(ext.Records))
	}
}

func TestSummaryExtractorEmptyDevices(t *testing.T) {
	extractor := &SummaryExtractor{
		Kind:    DeviceLinkSummary,
		Targets: TargetConfig{{Key: "PCIe_LPM", Lookup: "PCIe LPM Summary"}},
	}
	ext, err := extractor.Extract(DeviceLinkOnly, deviceLinkSummary)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(ext.Records) != 0 || len(ext.Warnings) != 0 {
		t.Fatalf("expected nothing, got %+v", ext)
	}
}

func TestSummaryExtractorShapeMismatch(t *testing.T) {
	tests := []struct {
		kind  SummaryKind
		shape DatasetShape
	}{
		{DeviceLinkSummary, FullSystemTrace},
		{SystemTraceSummary, DeviceLinkOnly},
		{DeviceLinkSummary, NoSystemTrace},
		{NoSummary, Unrecognized},
	}
	for _, tt := range tests {
		_, err := (&SummaryExtractor{Kind: tt.kind}).Extract(tt.shape, deviceLinkSummary)
		var mismatch *ShapeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("%s on %s: expected ShapeMismatchError, got %v", tt.kind, tt.shape, err)
		}
	}
}

func TestSummaryExtractorCustomSeparator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeySeparator = "::"
	ext, err := NewSummaryExtractor(DeviceLinkSummary, cfg).Extract(DeviceLinkOnly, deviceLinkSummary)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if ext.Records[0].Key != "L0 (%)_NVM::PCIe_LPM" {
		t.Fatalf("unexpected key: %q", ext.Records[0].Key)
	}
}

func TestSummaryExtractorFirstRowWins(t *testing.T) {
	text := "PCIe LPM Summary - Sampled: Approximated Residency (Percentage)\n" +
		"Device,L0 (%),L1 (%)\n" +
		"NVM Express Controller 0,95.2,4.8\n" +
		"NVM Express Controller 1,40.0,60.0\n" +
		"NVM Express Controller 2,10.0,90.0\n"

	extractor := &SummaryExtractor{Kind: DeviceLinkSummary, Targets: DefaultDeviceLinkTargets()[:1]}
	ext, err := extractor.Extract(DeviceLinkOnly, text)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	record, err := Merge(ext.Records)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if record.Len() != 2 {
		t.Fatalf("expected 2 records, got %v", record.Keys())
	}
	if got, _ := record.Get("L0 (%)_NVM        PCIe_LPM"); got != "95.2" {
		t.Fatalf("expected the first matching row to win, got %q", got)
	}
	if len(ext.Warnings) != 2 ||
		!strings.Contains(ext.Warnings[0], `"NVM Express Controller 1" skipped`) ||
		!strings.Contains(ext.Warnings[1], `"NVM Express Controller 2" skipped`) {
		t.Fatalf("expected one warning per skipped row, got %v", ext.Warnings)
	}
}

const systemTraceSummary = `CPU native model,Lunar Lake

Core C-State Summary: Residency (Percentage and Time)
C-State,Residency (%),Time (ms)
CC0,12.5,1250
CC6,87.5,8750

Network on Chip (NoC) P-State Summary - Sampled: Approximated Residency (Percentage)
Frequency (MHz),Residency (%)
400,30
600,15
1000,5
1050,50

PCIe LPM Summary - Sampled: Approximated Residency (Percentage)
Device,L0 (%),L1 (%)
NVM Express Controller,95.2,4.8
`

func TestSummaryExtractorSystemTraceCatalog(t *testing.T) {
	ext, err := NewSummaryExtractor(SystemTraceSummary, DefaultConfig()).Extract(FullSystemTrace, systemTraceSummary)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	record, err := Merge(ext.Records)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	cases := map[string]string{
		"Residency (%)_CC0        Core_Cstate":     "12.5",
		"Time (ms)_CC6        Core_Cstate":         "8750",
		"Residency (%)_400        NoC_Pstate":      "30",
		"Residency (%)_401-1049        NoC_Pstate": "20",
		"Residency (%)_1050        NoC_Pstate":     "50",
		"L0 (%)_NVM        PCIe_LPM":               "95.2",
		"L1 (%)_NVM        PCIe_LPM":               "4.8",
	}
	for key, want := range cases {
		if got, ok := record.Get(key); !ok || got != want {
			t.Fatalf("key %q: got %q (present=%v), want %q", key, got, ok, want)
		}
	}
	for _, key := range record.Keys() {
		if strings.Contains(key, "_600 ") || strings.Contains(key, "_1000 ") {
			t.Fatalf("bucketed row leaked: %q", key)
		}
	}
	for _, w := range ext.Warnings {
		if strings.Contains(w, "Core_Cstate") || strings.Contains(w, "NoC_Pstate") || strings.Contains(w, "PCIe_LPM") {
			t.Fatalf("unexpected warning for a present section: %q", w)
		}
	}
}
