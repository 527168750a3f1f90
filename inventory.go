package wlparser

import (
	"os"
	"sort"
	"strings"
)

// FileInventory is the immutable set of file names found in one workload folder.
type FileInventory struct {
	names []string
	index map[string]struct{}
}

// NewFileInventory builds an inventory from bare file names. Duplicates collapse.
func NewFileInventory(names ...string) FileInventory {
	index := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := index[name]; ok {
			continue
		}
		index[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return FileInventory{names: out, index: index}
}

// ScanInventory lists the regular files directly inside dir.
func ScanInventory(dir string) (FileInventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return FileInventory{}, &UnreadableFileError{Path: dir, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return NewFileInventory(names...), nil
}

// Has reports whether name is present.
func (inv FileInventory) Has(name string) bool {
	_, ok := inv.index[name]
	return ok
}

// Names returns the file names in sorted order.
func (inv FileInventory) Names() []string {
	out := make([]string, len(inv.names))
	copy(out, inv.names)
	return out
}

// Len returns the number of files.
func (inv FileInventory) Len() int {
	return len(inv.names)
}

// WithSuffix returns the sorted names ending in suffix, case-insensitively.
func (inv FileInventory) WithSuffix(suffix string) []string {
	suffix = strings.ToLower(suffix)
	var out []string
	for _, name := range inv.names {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			out = append(out, name)
		}
	}
	return out
}
