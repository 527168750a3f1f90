package wlparser

import "strings"

// DefaultKeySeparator joins the column/device part and the target key of a
// sectioned metric key. Report consumers match on the exact eight spaces.
const DefaultKeySeparator = "        "

// CompositeKey identifies one (column, device, target) triple.
type CompositeKey struct {
	Column string
	Device string
	Target string
}

// Join returns "{column}_{device}{separator}{target}".
func (k CompositeKey) Join(separator string) string {
	var b strings.Builder
	b.Grow(len(k.Column) + len(k.Device) + len(separator) + len(k.Target) + 1)
	b.WriteString(k.Column)
	b.WriteByte('_')
	b.WriteString(k.Device)
	b.WriteString(separator)
	b.WriteString(k.Target)
	return b.String()
}

// SplitKey reverses Join. ok is false when the separator is missing.
func SplitKey(key, separator string) (CompositeKey, bool) {
	if separator == "" {
		return CompositeKey{}, false
	}
	idx := strings.LastIndex(key, separator)
	if idx < 0 {
		return CompositeKey{}, false
	}
	head := key[:idx]
	target := key[idx+len(separator):]
	under := strings.LastIndex(head, "_")
	if under < 0 {
		return CompositeKey{}, false
	}
	return CompositeKey{
		Column: head[:under],
		Device: head[under+1:],
		Target: target,
	}, true
}
