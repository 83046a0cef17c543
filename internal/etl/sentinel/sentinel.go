// Package sentinel normalizes IPEDS reserved codes to SQL NULL.
//
// The source domain encodes absence with small negative integers:
//
//	-1  missing / not reported
//	-2  not applicable
//	-3  suppressed
//
// These codes, their string forms, and blank strings all cast to nil. Every
// other value passes through unchanged, including 0 and negative numbers
// outside the reserved set (legitimate data, e.g. coordinates).
package sentinel

import (
	"strconv"
	"strings"
)

// Missing reports whether v is one of the reserved codes, a blank string, or nil.
func Missing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(x)
		return s == "" || s == "-1" || s == "-2" || s == "-3"
	case int:
		return x == -1 || x == -2 || x == -3
	case int64:
		return x == -1 || x == -2 || x == -3
	case float64:
		return x == -1 || x == -2 || x == -3
	default:
		return false
	}
}

// Int casts v to *int64, nil when missing or malformed.
func Int(v any) *int64 {
	if Missing(v) {
		return nil
	}
	switch x := v.(type) {
	case int:
		n := int64(x)
		return &n
	case int64:
		return &x
	case float64:
		n := int64(x)
		return &n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// Float casts v to *float64, nil when missing or malformed.
func Float(v any) *float64 {
	if Missing(v) {
		return nil
	}
	switch x := v.(type) {
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case float64:
		return &x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// Str casts v to a trimmed *string, nil when missing or empty after trim.
func Str(v any) *string {
	if Missing(v) {
		return nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case float64:
		// JSON numbers decode as float64; render integral values without a
		// trailing ".0" so identifiers like OPEID survive round-tripping.
		if x == float64(int64(x)) {
			s = strconv.FormatInt(int64(x), 10)
		} else {
			s = strconv.FormatFloat(x, 'f', -1, 64)
		}
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// Pick returns the first non-missing value among keys. Payload field names
// drift across survey years; mappers declare a preference order.
func Pick(row map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := row[k]; ok && !Missing(v) {
			return v
		}
	}
	return nil
}
