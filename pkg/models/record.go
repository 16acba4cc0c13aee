package models

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Unavailable is written in place of any field not found in the page markup
const Unavailable = "unavailable"

// Record is an extracted business profile: an ordered column -> value mapping.
// Column order is insertion order, so core columns come first and extras follow in first-seen order.
type Record struct {
	fields *orderedmap.OrderedMap[string, string]
}

// NewRecord creates a record with every given column pre-set to Unavailable
func NewRecord(columns ...string) *Record {
	r := &Record{fields: orderedmap.New[string, string]()}
	for _, col := range columns {
		r.fields.Set(col, Unavailable)
	}
	return r
}

// Set stores a value; blank values are stored as Unavailable
func (r *Record) Set(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = Unavailable
	}
	r.fields.Set(key, value)
}

// SetFirst stores the first non-blank candidate, or Unavailable if none is usable
func (r *Record) SetFirst(key string, candidates ...string) {
	for _, c := range candidates {
		if IsAvailable(c) {
			r.Set(key, c)
			return
		}
	}
	r.Set(key, "")
}

// Get returns the stored value and whether the column exists
func (r *Record) Get(key string) (string, bool) {
	return r.fields.Get(key)
}

// Value returns the stored value, or Unavailable for unknown columns
func (r *Record) Value(key string) string {
	if v, ok := r.fields.Get(key); ok {
		return v
	}
	return Unavailable
}

// Keys returns the columns in insertion order
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of columns
func (r *Record) Len() int {
	return r.fields.Len()
}

// MarshalJSON keeps column order in the JSON object
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.fields.MarshalJSON()
}

// DedupKey returns the first available value among fields, in priority order.
// An empty result means the record carries no usable identity.
func (r *Record) DedupKey(fields []string) string {
	for _, f := range fields {
		if v, ok := r.fields.Get(f); ok && IsAvailable(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// IsAvailable reports whether v carries real data (non-blank and not the sentinel)
func IsAvailable(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, Unavailable)
}
