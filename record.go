package wlparser

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MetricRecord is one labeled value produced by an extractor.
type MetricRecord struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

// WorkloadRecord is an insertion-ordered key → value mapping.
// The zero value is ready to use.
type WorkloadRecord struct {
	keys   []string
	values map[string]string
}

// NewWorkloadRecord returns an empty record.
func NewWorkloadRecord() *WorkloadRecord {
	return &WorkloadRecord{values: map[string]string{}}
}

// Put inserts key. An identical repeat is a no-op; a differing value
// returns *DuplicateKeyError and leaves the record unchanged.
func (r *WorkloadRecord) Put(key, value string) error {
	if r.values == nil {
		r.values = map[string]string{}
	}
	if existing, ok := r.values[key]; ok {
		if existing == value {
			return nil
		}
		return &DuplicateKeyError{Key: key, Existing: existing, Incoming: value}
	}
	r.values[key] = value
	r.keys = append(r.keys, key)
	return nil
}

// Get returns the value stored under key.
func (r *WorkloadRecord) Get(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[key]
	return v, ok
}

func (r *WorkloadRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the keys in first-seen order.
func (r *WorkloadRecord) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Entries returns the record as ordered MetricRecords.
func (r *WorkloadRecord) Entries() []MetricRecord {
	if r == nil {
		return nil
	}
	out := make([]MetricRecord, 0, len(r.keys))
	for _, key := range r.keys {
		out = append(out, MetricRecord{Key: key, Value: r.values[key]})
	}
	return out
}

// MarshalJSON encodes the record as an ordered array of {key, value} entries.
func (r *WorkloadRecord) MarshalJSON() ([]byte, error) {
	entries := r.Entries()
	if entries == nil {
		entries = []MetricRecord{}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON accepts the ordered array form.
func (r *WorkloadRecord) UnmarshalJSON(data []byte) error {
	var entries []MetricRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("wlparser: decode record: %w", err)
	}
	rebuilt := NewWorkloadRecord()
	for _, entry := range entries {
		if err := rebuilt.Put(entry.Key, entry.Value); err != nil {
			return err
		}
	}
	*r = *rebuilt
	return nil
}

// Equal reports whether both records hold the same entries in the same order.
func (r *WorkloadRecord) Equal(other *WorkloadRecord) bool {
	a, _ := r.MarshalJSON()
	b, _ := other.MarshalJSON()
	return bytes.Equal(a, b)
}

// Merge folds extractor outputs into one record in argument order.
// The caller passes power, then summary, then sentinel groups.
func Merge(groups ...[]MetricRecord) (*WorkloadRecord, error) {
	record := NewWorkloadRecord()
	for _, group := range groups {
		for _, m := range group {
			if err := record.Put(m.Key, m.Value); err != nil {
				return nil, err
			}
		}
	}
	return record, nil
}
