package wlparser

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed or ambiguous target configuration.
// Index is the zero-based entry position, or -1 when the whole document is at fault.
type ConfigError struct {
	Source string
	Index  int
	Field  string
	Msg    string
}

func (e *ConfigError) Error() string {
	prefix := "wlparser: config"
	if e.Source != "" {
		prefix += " " + e.Source
	}
	switch {
	case e.Index < 0 && e.Field == "":
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	case e.Index < 0:
		return fmt.Sprintf("%s: %s: %s", prefix, e.Field, e.Msg)
	case e.Field == "":
		return fmt.Sprintf("%s: entry %d: %s", prefix, e.Index, e.Msg)
	default:
		return fmt.Sprintf("%s: entry %d: %s: %s", prefix, e.Index, e.Field, e.Msg)
	}
}

// DuplicateKeyError is returned when two extractors assign different values to one key.
type DuplicateKeyError struct {
	Key      string
	Existing string
	Incoming string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("wlparser: duplicate key %q: have %q, got %q", e.Key, e.Existing, e.Incoming)
}

// UnreadableFileError wraps an I/O failure on a companion or summary file.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("wlparser: unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError is returned when a summary extractor runs against a folder
// whose dataset shape it does not own.
type ShapeMismatchError struct {
	Kind  SummaryKind
	Shape DatasetShape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("wlparser: %s extractor cannot own a %s dataset", e.Kind, e.Shape)
}

// DuplicateLabelError is returned when two folders in one batch resolve to the
// same report label.
type DuplicateLabelError struct {
	Label string
	Dirs  []string
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("wlparser: label %q shared by %s", e.Label, strings.Join(e.Dirs, ", "))
}
