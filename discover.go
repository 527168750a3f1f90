package wlparser

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// DiscoverFolders walks root and returns every directory that looks like a
// workload folder: one holding a trace companion, a power summary, or a
// sentinel file. Results are in lexical walk order. Hidden directories are
// skipped; root itself is always inspected.
func DiscoverFolders(root, traceExt string) ([]string, error) {
	if traceExt == "" {
		traceExt = DefaultTraceExt
	}
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &UnreadableFileError{Path: path, Err: err}
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		inv, err := ScanInventory(path)
		if err != nil {
			return err
		}
		if looksLikeWorkload(inv, traceExt) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func looksLikeWorkload(inv FileInventory, traceExt string) bool {
	if inv.Has(PassSentinel) || inv.Has(FailSentinel) {
		return true
	}
	if len(WorkloadPrefixesExt(inv, traceExt)) > 0 {
		return true
	}
	return len(PowerSummaries(inv)) > 0
}

// FolderLabel names a workload folder for reports. Inside root the label is the
// slash-separated path relative to root. Otherwise, or when dir is root itself,
// the parent and folder names are joined with "_".
func FolderLabel(root, dir string) string {
	dir = filepath.Clean(dir)
	if root != "" {
		rel, err := filepath.Rel(filepath.Clean(root), dir)
		if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	base := filepath.Base(dir)
	parent := filepath.Base(filepath.Dir(dir))
	if parent == "." || parent == string(filepath.Separator) || parent == base {
		return base
	}
	return parent + "_" + base
}
