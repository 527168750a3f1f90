package wlparser

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseTargetsYAMLKeepsOrder(t *testing.T) {
	doc := `
- key: PCIe_LTRsnoop
  devices: [NVM]
  lookup: "PCIe LTR Snoop Summary - Sampled: Histogram"
- key: PCIe_LPM
  devices:
    - NVM
    - WiFi
  lookup: "PCIe LPM Summary - Sampled: Approximated Residency (Percentage)"
`
	cfg, err := ParseTargets([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.Keys(), []string{"PCIe_LTRsnoop", "PCIe_LPM"}) {
		t.Fatalf("unexpected order: %v", cfg.Keys())
	}
	if !reflect.DeepEqual(cfg[1].Devices, []string{"NVM", "WiFi"}) {
		t.Fatalf("unexpected devices: %v", cfg[1].Devices)
	}
}

func TestParseTargetsJSON(t *testing.T) {
	doc := `[{"key": "PCIe_LPM", "devices": ["NVM"], "lookup": "PCIe LPM Summary"}, {"key": "Empty", "lookup": "Other"}]`
	cfg, err := ParseTargets([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(cfg) != 2 || cfg[0].Lookup != "PCIe LPM Summary" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg[1].Devices) != 0 {
		t.Fatalf("expected no devices, got %v", cfg[1].Devices)
	}
}

func TestParseTargetsErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		index int
		field string
	}{
		{name: "not a list", doc: `key: PCIe_LPM`, index: -1},
		{name: "entry not mapping", doc: `- PCIe_LPM`, index: 0},
		{name: "missing key", doc: `- lookup: X`, index: 0, field: "key"},
		{name: "empty lookup", doc: "- key: A\n  lookup: \"\"", index: 0, field: "lookup"},
		{name: "missing lookup", doc: "- key: A\n  lookup: X\n- key: B", index: 1, field: "lookup"},
		{name: "devices not list", doc: "- key: A\n  lookup: X\n  devices: NVM", index: 0, field: "devices"},
		{name: "devices not strings", doc: "- key: A\n  lookup: X\n  devices: [[NVM]]", index: 0, field: "devices"},
		{name: "numeric key", doc: "- key: 12\n  lookup: X", index: 0, field: "key"},
		{name: "duplicate key", doc: "- key: A\n  lookup: X\n- key: A\n  lookup: Y", index: 1, field: "key"},
		{name: "malformed yaml", doc: "- key: [", index: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTargets([]byte(tt.doc))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Index != tt.index || cfgErr.Field != tt.field {
				t.Fatalf("unexpected error position: index=%d field=%q (%v)", cfgErr.Index, cfgErr.Field, err)
			}
			if !strings.HasPrefix(err.Error(), "wlparser: config") {
				t.Fatalf("unexpected message: %v", err)
			}
		})
	}
}

func TestEmptyTargetDocumentsRejected(t *testing.T) {
	power := filepath.Join(t.TempDir(), "daq.json")
	if err := os.WriteFile(power, []byte("null\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name  string
		parse func() error
	}{
		{name: "blank targets", parse: func() error { _, err := ParseTargets([]byte("  \n")); return err }},
		{name: "null targets", parse: func() error { _, err := ParseTargets([]byte("null")); return err }},
		{name: "tilde targets", parse: func() error { _, err := ParseTargets([]byte("~\n")); return err }},
		{name: "blank bundle", parse: func() error { _, err := ParseTargetBundle([]byte("")); return err }},
		{name: "null bundle", parse: func() error { _, err := ParseTargetBundle([]byte("null")); return err }},
		{name: "null power file", parse: func() error { _, err := LoadPowerTargetsFile(power); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfgErr *ConfigError
			if err := tt.parse(); !errors.As(err, &cfgErr) || cfgErr.Index != -1 {
				t.Fatalf("expected document-level ConfigError, got %v", err)
			}
		})
	}
}

func TestParseTargetsExplicitEmptyList(t *testing.T) {
	cfg, err := ParseTargets([]byte("[]"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg == nil || len(cfg) != 0 {
		t.Fatalf("expected an empty non-nil config, got %#v", cfg)
	}
}

func TestLoadTargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte("\xef\xbb\xbf- key: A\n  lookup: X\n  devices: [NVM]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadTargetsFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg) != 1 || cfg[0].Key != "A" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	_, err = LoadTargetsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	var readErr *UnreadableFileError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected UnreadableFileError, got %v", err)
	}
}

func TestLoadTargetsReader(t *testing.T) {
	cfg, err := LoadTargets(strings.NewReader("- key: A\n  lookup: X\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.Lookups(), []string{"X"}) {
		t.Fatalf("unexpected lookups: %v", cfg.Lookups())
	}
}

func TestParseTargetBundleAliases(t *testing.T) {
	doc := `
daq_targets:
  P_SSD: {name: P_SSD}
  Run Time: {}
pcie_targets:
  - key: PCIe_LPM
    devices: [NVM]
    lookup: PCIe LPM Summary
socwatch_targets:
  - key: Core_Cstate
    lookup: "Core C-State Summary: Residency (Percentage and Time)"
`
	bundle, err := ParseTargetBundle([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(bundle.Power.Keys(), []string{"P_SSD", "Run Time"}) {
		t.Fatalf("unexpected power targets: %v", bundle.Power)
	}
	if !reflect.DeepEqual(bundle.Power.Lookups(), []string{"P_SSD", "Run Time"}) {
		t.Fatalf("power lookups should equal channel names: %v", bundle.Power)
	}
	if len(bundle.DeviceLink) != 1 || bundle.DeviceLink[0].Key != "PCIe_LPM" {
		t.Fatalf("unexpected device-link targets: %v", bundle.DeviceLink)
	}
	if len(bundle.SystemTrace) != 1 || bundle.SystemTrace[0].Key != "Core_Cstate" {
		t.Fatalf("unexpected system-trace targets: %v", bundle.SystemTrace)
	}
}

func TestParseTargetBundlePowerNameList(t *testing.T) {
	bundle, err := ParseTargetBundle([]byte("power_targets: [P_SSD, P_SOC]\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(bundle.Power.Keys(), []string{"P_SSD", "P_SOC"}) {
		t.Fatalf("unexpected power targets: %v", bundle.Power)
	}
	if bundle.DeviceLink != nil {
		t.Fatalf("device-link targets should be unset")
	}
}

func TestParseTargetBundleErrorsCarrySection(t *testing.T) {
	_, err := ParseTargetBundle([]byte("pcie_targets:\n  - key: A\n"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Source != "pcie_targets" || cfgErr.Field != "lookup" {
		t.Fatalf("unexpected error: %+v", cfgErr)
	}
}

func TestLoadPowerTargetsFile(t *testing.T) {
	dir := t.TempDir()
	bare := filepath.Join(dir, "daq.json")
	if err := os.WriteFile(bare, []byte(`{"P_SSD": {"name": "P_SSD"}, "P_SOC": {}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadPowerTargetsFile(bare)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.Keys(), []string{"P_SSD", "P_SOC"}) {
		t.Fatalf("unexpected targets: %v", cfg)
	}

	wrapped := filepath.Join(dir, "bundle.json")
	if err := os.WriteFile(wrapped, []byte(`{"daq_targets": ["P_MCP"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadPowerTargetsFile(wrapped)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.Keys(), []string{"P_MCP"}) {
		t.Fatalf("unexpected targets: %v", cfg)
	}
}

func TestDefaultTargetBundle(t *testing.T) {
	bundle := DefaultTargetBundle()
	if bundle.Power != nil {
		t.Fatalf("default bundle should auto-detect power rails")
	}
	want := []string{"PCIe_LPM", "PCIe_Active", "PCIe_LTRsnoop"}
	if !reflect.DeepEqual(bundle.DeviceLink.Keys(), want) {
		t.Fatalf("unexpected defaults: %v", bundle.DeviceLink.Keys())
	}
	for _, spec := range bundle.DeviceLink {
		if !reflect.DeepEqual(spec.Devices, []string{"NVM"}) {
			t.Fatalf("unexpected devices for %s: %v", spec.Key, spec.Devices)
		}
	}

	trace := bundle.SystemTrace
	if len(trace) != 34 || trace[0].Key != "CPU_model" {
		t.Fatalf("unexpected system-trace catalog: %v", trace.Keys())
	}
	if !reflect.DeepEqual(trace[len(trace)-3:].Keys(), want) {
		t.Fatalf("system-trace catalog should end with the device-link targets: %v", trace.Keys())
	}
	buckets := map[string][]string{}
	for _, spec := range trace[:len(trace)-3] {
		if !reflect.DeepEqual(spec.Devices, []string{AllRows}) {
			t.Fatalf("unexpected devices for %s: %v", spec.Key, spec.Devices)
		}
		if spec.Buckets != nil {
			buckets[spec.Key] = spec.Buckets
		}
	}
	wantBuckets := map[string][]string{
		"NPU_Pstate":  {"0", "1900", "1901-2900", "2901-3899", "3900"},
		"NoC_Pstate":  {"400", "401-1049", "1050"},
		"iGFX_Pstate": {"0", "400", "401-1799", "1800-2049", "2050"},
	}
	if !reflect.DeepEqual(buckets, wantBuckets) {
		t.Fatalf("unexpected buckets: %v", buckets)
	}
	if _, err := ParseTargets(mustJSON(t, trace)); err != nil {
		t.Fatalf("default catalog does not round-trip through the loader: %v", err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParseTargetsBuckets(t *testing.T) {
	cfg, err := ParseTargets([]byte("- key: NoC_Pstate\n  lookup: NoC P-State\n  devices: ['*']\n  buckets: [400, 401-1049, \"1050\"]\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(cfg[0].Buckets, []string{"400", "401-1049", "1050"}) {
		t.Fatalf("unexpected buckets: %v", cfg[0].Buckets)
	}

	for _, doc := range []string{
		"- key: A\n  lookup: X\n  buckets: fast\n",
		"- key: A\n  lookup: X\n  buckets: [fast]\n",
		"- key: A\n  lookup: X\n  buckets: [900-400]\n",
		"- key: A\n  lookup: X\n  buckets: [1.5]\n",
	} {
		var cfgErr *ConfigError
		if _, err := ParseTargets([]byte(doc)); !errors.As(err, &cfgErr) || cfgErr.Field != "buckets" {
			t.Fatalf("%q: expected buckets ConfigError, got %v", doc, err)
		}
	}
}
