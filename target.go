package wlparser

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// TargetSpec names a metric group, the substring that locates its section,
// and the devices whose rows are extracted. Buckets, when set, folds P-state
// frequency rows into the listed frequency buckets.
type TargetSpec struct {
	Key     string   `json:"key" yaml:"key"`
	Devices []string `json:"devices,omitempty" yaml:"devices,omitempty"`
	Lookup  string   `json:"lookup" yaml:"lookup"`
	Buckets []string `json:"buckets,omitempty" yaml:"buckets,omitempty"`
}

// TargetConfig is an ordered list of target specs for one format.
// Order decides extraction and merge precedence.
type TargetConfig []TargetSpec

// Keys returns the target keys in order.
func (c TargetConfig) Keys() []string {
	out := make([]string, 0, len(c))
	for _, spec := range c {
		out = append(out, spec.Key)
	}
	return out
}

// Lookups returns the section lookups in order.
func (c TargetConfig) Lookups() []string {
	out := make([]string, 0, len(c))
	for _, spec := range c {
		out = append(out, spec.Lookup)
	}
	return out
}

// TargetBundle groups the per-format target lists.
// A nil Power list selects power-rail auto-detection.
type TargetBundle struct {
	Power       TargetConfig
	DeviceLink  TargetConfig
	SystemTrace TargetConfig
}

var (
	powerBundleKeys       = []string{"power_targets", "daq_targets"}
	deviceLinkBundleKeys  = []string{"device_link_targets", "pcie_targets"}
	systemTraceBundleKeys = []string{"system_trace_targets", "socwatch_targets"}
)

// DefaultDeviceLinkTargets returns the PCIe link targets monitored for NVM storage.
func DefaultDeviceLinkTargets() TargetConfig {
	return TargetConfig{
		{Key: "PCIe_LPM", Devices: []string{"NVM"}, Lookup: "PCIe LPM Summary - Sampled: Approximated Residency (Percentage)"},
		{Key: "PCIe_Active", Devices: []string{"NVM"}, Lookup: "PCIe Link Active Summary - Sampled: Approximated Residency (Percentage)"},
		{Key: "PCIe_LTRsnoop", Devices: []string{"NVM"}, Lookup: "PCIe LTR Snoop Summary - Sampled: Histogram"},
	}
}

// systemTraceCatalog lists the system-monitoring summary tables. Every row of
// these tables is kept and labelled by its own identifier.
var systemTraceCatalog = []struct {
	key, lookup string
	buckets     []string
}{
	{"CPU_model", "CPU native model", nil},
	{"PCH_SLP50", "PCH SLP-S0 State Summary: Residency (Percentage and Time)", nil},
	{"S0ix_Substate", "S0ix Substate Summary: Residency (Percentage and Time)", nil},
	{"PKG_Cstate", "Platform Monitoring Technology CPU Package C-States Residency Summary: Residency (Percentage and Time)", nil},
	{"Core_Cstate", "Core C-State Summary: Residency (Percentage and Time)", nil},
	{"Core_Concurrency", "CPU Core Concurrency (OS)", nil},
	{"ACPI_Cstate", "Core C-State (OS) Summary: Residency (Percentage and Time)", nil},
	{"OS_wakeups", "Processes by Platform Busy Duration", nil},
	{"CPU-iGPU", "CPU-iGPU Concurrency Summary: Residency (Percentage and Time)", nil},
	{"CPU_Pavr", "CPU P-State Average Frequency (excluding CPU idle time)", nil},
	{"CPU_Pstate", "CPU P-State/Frequency Summary: Residency (Percentage and Time)", nil},
	{"RC_Cstate", "Integrated Graphics C-State  Summary: Residency (Percentage and Time)", nil},
	{"DDR_BW", "DDR Bandwidth Requests by Component Summary: Average Rate and Total", nil},
	{"IO_BW", "IO Bandwidth Summary: Average Rate and Total", nil},
	{"VC1_BW", "Display VC1 Bandwidth Summary: Average Rate and Total", nil},
	{"NPU_BW", "Neural Processing Unit (NPU) to Memory Bandwidth Summary: Average Rate and Total", nil},
	{"Media_BW", "Media to Network on Chip (NoC) Bandwidth Summary: Average Rate and Total", nil},
	{"IPU_BW", "Image Processing Unit (IPU) to Network on Chip (NoC) Bandwidth Summary: Average Rate and Total", nil},
	{"CCE_BW", "CCE to Network on Chip (NoC) Bandwidth Summary: Average Rate and Total", nil},
	{"GT_BW", "Chip GT Bandwidth Summary: Average Rate and Total", nil},
	{"D2D_BW", "Chip Die to Die Bandwidth Summary: Average Rate and Total", nil},
	{"CPU_temp", "Temperature Metrics Summary - Sampled: Min/Max/Avg", nil},
	{"SoC_temp", "SoC Domain Temperatures Summary - Sampled: Min/Max/Avg", nil},
	{"NPU_Dstate", "Neural Processing Unit (NPU) D-State Residency Summary: Residency (Percentage and Time)", nil},
	{"PMC+SLP_S0", "PCH Active State (as percentage of PMC Active plus SLP_S0 Time) Summary: Residency (Percentage)", nil},
	{"DC_count", "Dynamic Display State Enabling", nil},
	{"Media_Cstate", "Media C-State Residency Summary: Residency (Percentage and Time)", nil},
	{"NPU_Pstate", "Neural Processing Unit (NPU) P-State Summary - Sampled: Approximated Residency (Percentage)", []string{"0", "1900", "1901-2900", "2901-3899", "3900"}},
	{"MEMSS_Pstate", "Memory Subsystem (MEMSS) P-State Summary - Sampled: Approximated Residency (Percentage)", nil},
	{"NoC_Pstate", "Network on Chip (NoC) P-State Summary - Sampled: Approximated Residency (Percentage)", []string{"400", "401-1049", "1050"}},
	{"iGFX_Pstate", "Integrated Graphics P-State/Frequency Summary - Sampled: Approximated Residency (Percentage)", []string{"0", "400", "401-1799", "1800-2049", "2050"}},
}

// DefaultSystemTraceTargets returns the system-monitoring tables followed by
// the device-link targets, which the same summary export also carries.
func DefaultSystemTraceTargets() TargetConfig {
	out := make(TargetConfig, 0, len(systemTraceCatalog)+3)
	for _, entry := range systemTraceCatalog {
		out = append(out, TargetSpec{
			Key:     entry.key,
			Devices: []string{AllRows},
			Lookup:  entry.lookup,
			Buckets: append([]string(nil), entry.buckets...),
		})
	}
	return append(out, DefaultDeviceLinkTargets()...)
}

// DefaultTargetBundle returns the built-in bundle: device-link targets, the
// system-trace catalog, and power auto-detection.
func DefaultTargetBundle() TargetBundle {
	return TargetBundle{
		DeviceLink:  DefaultDeviceLinkTargets(),
		SystemTrace: DefaultSystemTraceTargets(),
	}
}

// ParseTargets validates a YAML or JSON list of target specs.
func ParseTargets(data []byte) (TargetConfig, error) {
	return parseTargetsSource(data, "")
}

// LoadTargets reads and validates a target list from r.
func LoadTargets(r io.Reader) (TargetConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("wlparser: read targets: %w", err)
	}
	return ParseTargets(data)
}

// LoadTargetsFile reads and validates a target list from path.
func LoadTargetsFile(path string) (TargetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &UnreadableFileError{Path: path, Err: err}
	}
	return parseTargetsSource(data, path)
}

func parseTargetsSource(data []byte, source string) (TargetConfig, error) {
	root, err := decodeDocument(data, source)
	if err != nil {
		return nil, err
	}
	if isNull(root) {
		return nil, emptyDocumentError(source, "targets must be a list")
	}
	return targetsFromNode(root, source)
}

// ParseTargetBundle reads one document holding the three per-format lists.
// Power targets accept the list form, a list of channel names, or the DAQ
// mapping form keyed by channel name.
func ParseTargetBundle(data []byte) (TargetBundle, error) {
	return parseBundleSource(data, "")
}

// LoadTargetBundleFile reads a target bundle from path.
func LoadTargetBundleFile(path string) (TargetBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TargetBundle{}, &UnreadableFileError{Path: path, Err: err}
	}
	return parseBundleSource(data, path)
}

// LoadPowerTargetsFile reads a DAQ target file. Both a bundle document and a
// bare power target document are accepted.
func LoadPowerTargetsFile(path string) (TargetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &UnreadableFileError{Path: path, Err: err}
	}
	root, err := decodeDocument(data, path)
	if err != nil {
		return nil, err
	}
	if isNull(root) {
		return nil, emptyDocumentError(path, "power targets must be a list or a mapping")
	}
	if root.Kind == yaml.MappingNode {
		if node, _ := bundleEntry(root, powerBundleKeys); node != nil {
			return powerTargetsFromNode(node, path)
		}
	}
	return powerTargetsFromNode(root, path)
}

func parseBundleSource(data []byte, source string) (TargetBundle, error) {
	root, err := decodeDocument(data, source)
	if err != nil {
		return TargetBundle{}, err
	}
	if isNull(root) {
		return TargetBundle{}, emptyDocumentError(source, "target bundle must be a mapping")
	}
	if root.Kind != yaml.MappingNode {
		return TargetBundle{}, &ConfigError{Source: source, Index: -1, Msg: "target bundle must be a mapping"}
	}

	var bundle TargetBundle
	if node, name := bundleEntry(root, powerBundleKeys); node != nil {
		bundle.Power, err = powerTargetsFromNode(node, sourceField(source, name))
		if err != nil {
			return TargetBundle{}, err
		}
	}
	if node, name := bundleEntry(root, deviceLinkBundleKeys); node != nil {
		bundle.DeviceLink, err = targetsFromNode(node, sourceField(source, name))
		if err != nil {
			return TargetBundle{}, err
		}
	}
	if node, name := bundleEntry(root, systemTraceBundleKeys); node != nil {
		bundle.SystemTrace, err = targetsFromNode(node, sourceField(source, name))
		if err != nil {
			return TargetBundle{}, err
		}
	}
	return bundle, nil
}

func decodeDocument(data []byte, source string) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(stripBOM(data), &doc); err != nil {
		return nil, &ConfigError{Source: source, Index: -1, Msg: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	return resolveAlias(doc.Content[0]), nil
}

// emptyDocumentError rejects an empty or null document. An explicit empty
// list is the way to configure no targets.
func emptyDocumentError(source, want string) error {
	return &ConfigError{Source: source, Index: -1, Msg: "document is empty; " + want}
}

func bundleEntry(mapping *yaml.Node, names []string) (*yaml.Node, string) {
	for _, name := range names {
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == name {
				return resolveAlias(mapping.Content[i+1]), name
			}
		}
	}
	return nil, ""
}

func targetsFromNode(node *yaml.Node, source string) (TargetConfig, error) {
	if isNull(node) {
		return TargetConfig{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &ConfigError{Source: source, Index: -1, Msg: "targets must be a list"}
	}

	out := make(TargetConfig, 0, len(node.Content))
	seen := make(map[string]int, len(node.Content))
	for i, item := range node.Content {
		spec, err := targetFromNode(resolveAlias(item), i, source)
		if err != nil {
			return nil, err
		}
		if first, ok := seen[spec.Key]; ok {
			return nil, &ConfigError{Source: source, Index: i, Field: "key", Msg: fmt.Sprintf("duplicate key %q (first at entry %d)", spec.Key, first)}
		}
		seen[spec.Key] = i
		out = append(out, spec)
	}
	return out, nil
}

func targetFromNode(node *yaml.Node, index int, source string) (TargetSpec, error) {
	if node.Kind != yaml.MappingNode {
		return TargetSpec{}, &ConfigError{Source: source, Index: index, Msg: "entry must be a mapping"}
	}

	var spec TargetSpec
	var hasKey, hasLookup bool
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := resolveAlias(node.Content[i+1])
		switch name {
		case "key":
			s, ok := scalarString(value)
			if !ok {
				return TargetSpec{}, &ConfigError{Source: source, Index: index, Field: "key", Msg: "must be a string"}
			}
			spec.Key, hasKey = s, s != ""
		case "lookup":
			s, ok := scalarString(value)
			if !ok {
				return TargetSpec{}, &ConfigError{Source: source, Index: index, Field: "lookup", Msg: "must be a string"}
			}
			spec.Lookup, hasLookup = s, s != ""
		case "devices":
			devices, err := stringList(value)
			if err != nil {
				return TargetSpec{}, &ConfigError{Source: source, Index: index, Field: "devices", Msg: err.Error()}
			}
			spec.Devices = devices
		case "buckets":
			buckets, err := bucketLabels(value)
			if err != nil {
				return TargetSpec{}, &ConfigError{Source: source, Index: index, Field: "buckets", Msg: err.Error()}
			}
			spec.Buckets = buckets
		}
	}
	if !hasKey {
		return TargetSpec{}, &ConfigError{Source: source, Index: index, Field: "key", Msg: "missing"}
	}
	if !hasLookup {
		return TargetSpec{}, &ConfigError{Source: source, Index: index, Field: "lookup", Msg: "missing"}
	}
	return spec, nil
}

// powerTargetsFromNode normalizes the three power target forms to
// TargetSpec{Key: channel, Lookup: channel}.
func powerTargetsFromNode(node *yaml.Node, source string) (TargetConfig, error) {
	if isNull(node) {
		return TargetConfig{}, nil
	}
	switch node.Kind {
	case yaml.MappingNode:
		out := make(TargetConfig, 0, len(node.Content)/2)
		seen := map[string]struct{}{}
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			index := i / 2
			if name == "" {
				return nil, &ConfigError{Source: source, Index: index, Field: "key", Msg: "missing"}
			}
			if detail := resolveAlias(node.Content[i+1]); detail.Kind == yaml.MappingNode {
				for j := 0; j+1 < len(detail.Content); j += 2 {
					if detail.Content[j].Value == "name" && detail.Content[j+1].Value != "" {
						name = detail.Content[j+1].Value
					}
				}
			}
			if _, ok := seen[name]; ok {
				return nil, &ConfigError{Source: source, Index: index, Field: "key", Msg: fmt.Sprintf("duplicate key %q", name)}
			}
			seen[name] = struct{}{}
			out = append(out, TargetSpec{Key: name, Lookup: name})
		}
		return out, nil
	case yaml.SequenceNode:
		if allScalars(node) {
			names, err := stringList(node)
			if err != nil {
				return nil, &ConfigError{Source: source, Index: -1, Msg: err.Error()}
			}
			out := make(TargetConfig, 0, len(names))
			seen := map[string]struct{}{}
			for i, name := range names {
				if name == "" {
					return nil, &ConfigError{Source: source, Index: i, Field: "key", Msg: "missing"}
				}
				if _, ok := seen[name]; ok {
					return nil, &ConfigError{Source: source, Index: i, Field: "key", Msg: fmt.Sprintf("duplicate key %q", name)}
				}
				seen[name] = struct{}{}
				out = append(out, TargetSpec{Key: name, Lookup: name})
			}
			return out, nil
		}
		return targetsFromNode(node, source)
	default:
		return nil, &ConfigError{Source: source, Index: -1, Msg: "power targets must be a list or a mapping"}
	}
}

func stringList(node *yaml.Node) ([]string, error) {
	if isNull(node) {
		return nil, fmt.Errorf("must be a list of strings")
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("must be a list of strings")
	}
	out := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		s, ok := scalarString(resolveAlias(item))
		if !ok {
			return nil, fmt.Errorf("must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// bucketLabels accepts integer scalars as well as strings, so `[400, 401-1049]` parses.
func bucketLabels(node *yaml.Node) ([]string, error) {
	if isNull(node) || node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("must be a list of frequencies")
	}
	out := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		item = resolveAlias(item)
		if item.Kind != yaml.ScalarNode || (item.Tag != "!!str" && item.Tag != "!!int") {
			return nil, fmt.Errorf("must be a list of frequencies")
		}
		out = append(out, item.Value)
	}
	if _, err := parseBuckets(out); err != nil {
		return nil, err
	}
	return out, nil
}

// scalarString accepts only string scalars; numbers and booleans are rejected
// so that `key: 12` is reported instead of silently stringified.
func scalarString(node *yaml.Node) (string, bool) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return "", false
	}
	if node.Tag != "" && node.Tag != "!!str" {
		return "", false
	}
	return node.Value, true
}

func allScalars(node *yaml.Node) bool {
	for _, item := range node.Content {
		if resolveAlias(item).Kind != yaml.ScalarNode {
			return false
		}
	}
	return true
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

func sourceField(source, field string) string {
	if source == "" {
		return field
	}
	return source + ":" + field
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
