package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Placeholder strings rendered for absent values.
const (
	NotSpecified = "Not specified"
	NotProvided  = "Not provided"
	NotAvailable = "N/A"
)

// Record is a loosely typed clinical record. Every field is optional.
type Record map[string]interface{}

// Raw returns the first present, non-null value among keys. Each key is also
// tried in its camelCase form.
func (r Record) Raw(keys ...string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	for _, key := range keys {
		for _, k := range [...]string{key, camelCase(key)} {
			if v, ok := r[k]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

// String returns the first non-blank value among keys formatted as text.
func (r Record) String(keys ...string) string {
	for _, key := range keys {
		v, ok := r.Raw(key)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(formatValue(v)); s != "" {
			return s
		}
	}
	return ""
}

// Text returns String(keys...) or fallback when every key is absent or blank.
func (r Record) Text(fallback string, keys ...string) string {
	if s := r.String(keys...); s != "" {
		return s
	}
	return fallback
}

// Date formats the first present date among keys as "January 2, 2006".
// Values that do not parse as a date are returned verbatim.
func (r Record) Date(fallback string, keys ...string) string {
	s := r.String(keys...)
	if s == "" {
		return fallback
	}
	if t, ok := ParseDate(s); ok {
		return t.Format("January 2, 2006")
	}
	return s
}

// Time formats the clock portion of a timestamp, or returns the raw value.
func (r Record) Time(fallback string, keys ...string) string {
	s := r.String(keys...)
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("3:04 PM")
		}
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("3:04 PM")
		}
	}
	return s
}

// Object returns a nested record, or nil.
func (r Record) Object(keys ...string) Record {
	v, ok := r.Raw(keys...)
	if !ok {
		return nil
	}
	switch obj := v.(type) {
	case Record:
		return obj
	case map[string]interface{}:
		return Record(obj)
	}
	return nil
}

// FullName joins first and last name, falling back to a single name field.
func (r Record) FullName() string {
	first := r.String("first_name")
	last := r.String("last_name")
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	return r.String("full_name", "name")
}

// ParseDate accepts RFC 3339 timestamps and plain calendar dates.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(formatValue(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func camelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
