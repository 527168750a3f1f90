package wlparser

import (
	"encoding/csv"
	"strings"
)

// RawSection is one named table inside a sectioned summary export.
// Header[0] labels the device column; every row starts with a device identifier.
type RawSection struct {
	Lookup string
	Header []string
	Rows   [][]string
}

// AllRows in an allow-list matches every row and labels it with its own identifier.
const AllRows = "*"

// Cell is one device × column value taken from a section.
// Row is the raw identifier of the row the value came from.
type Cell struct {
	Device string
	Column string
	Value  string
	Row    string
}

// ExtractSection finds the first line containing lookup and returns the table
// that follows it. The table ends at the first blank line or at EOF, so a
// section never reads into the next one. ok is false when lookup is absent.
func ExtractSection(text, lookup string) (RawSection, bool) {
	if lookup == "" {
		return RawSection{}, false
	}
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		if strings.Contains(line, lookup) {
			start = i
			break
		}
	}
	if start < 0 {
		return RawSection{}, false
	}

	section := RawSection{Lookup: lookup}
	i := skipSeparators(lines, start+1)
	if i >= len(lines) || isBlankLine(lines[i]) {
		return section, true
	}
	section.Header = splitFields(lines[i])

	for i = skipSeparators(lines, i+1); i < len(lines); i++ {
		if isBlankLine(lines[i]) {
			break
		}
		section.Rows = append(section.Rows, splitFields(lines[i]))
	}
	return section, true
}

// ExtractRows keeps the rows whose device identifier contains an allow-list
// entry. The matching entry, not the raw identifier, labels the cells; the
// AllRows entry keeps the identifier itself.
func ExtractRows(section RawSection, allowlist []string) []Cell {
	if len(allowlist) == 0 || len(section.Header) < 2 {
		return nil
	}

	var cells []Cell
	for _, row := range section.Rows {
		if len(row) == 0 {
			continue
		}
		device, ok := matchDevice(row[0], allowlist)
		if !ok {
			continue
		}
		for col := 1; col < len(section.Header) && col < len(row); col++ {
			if section.Header[col] == "" {
				continue
			}
			cells = append(cells, Cell{Device: device, Column: section.Header[col], Value: row[col], Row: row[0]})
		}
	}
	return cells
}

func matchDevice(identifier string, allowlist []string) (string, bool) {
	for _, entry := range allowlist {
		if entry == AllRows && identifier != "" {
			return identifier, true
		}
		if entry != "" && strings.Contains(identifier, entry) {
			return entry, true
		}
	}
	return "", false
}

func skipSeparators(lines []string, i int) int {
	for i < len(lines) && isSeparatorLine(lines[i]) {
		i++
	}
	return i
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// isSeparatorLine matches rules such as "-----,-----".
func isSeparatorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.Contains(trimmed, "-") {
		return false
	}
	for _, r := range trimmed {
		if r != '-' && r != ',' && r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

func splitFields(line string) []string {
	line = strings.TrimRight(line, "\r")
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	fields, err := r.Read()
	if err != nil {
		fields = strings.Split(line, ",")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
