// Package coerce converts loosely typed imported values into canonical ones.
//
// Every function here is pure apart from the natural-language date fallback, which reads
// the model clock. Codecs and the mapping engine call these at each transform boundary.
package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidBool   = errors.New("invalid boolean")
	ErrInvalidNumber = errors.New("invalid number")
)

var (
	trueWords  = map[string]bool{"true": true, "yes": true, "1": true, "on": true, "checked": true, "active": true}
	falseWords = map[string]bool{"false": true, "no": true, "0": true}
)

// ParseBool accepts native booleans, 0/1 numbers and the words
// true/yes/1/on/checked/active and false/no/0, case-insensitively.
func ParseBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case *bool:
		if x != nil {
			return *x, nil
		}
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if trueWords[s] {
			return true, nil
		}
		if falseWords[s] {
			return false, nil
		}
		return false, fmt.Errorf("%w: %q", ErrInvalidBool, x)
	}
	if f, ok := toFloat(v); ok {
		switch f {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v", ErrInvalidBool, v)
}

func isListSeparator(r rune) bool {
	switch r {
	case ',', ';', '|', '\n', '\r':
		return true
	}
	return false
}

// ParseList splits a delimited string on comma, semicolon, pipe or newline, trimming
// items and dropping empties. Slice elements are already items: each is trimmed and
// kept whole, never split again.
func ParseList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		parts := strings.FieldsFunc(x, isListSeparator)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(x))
		for _, s := range x {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			return nil
		}
		return []string{s}
	}
}

var thousandsRe = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParseNumber accepts native numbers and numeric strings; "1,234.5" style thousands
// separators are stripped.
func ParseNumber(v any) (float64, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if thousandsRe.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, v)
		}
		return f, nil
	}
	if n, ok := v.(json.Number); ok {
		return ParseNumber(n.String())
	}
	if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidNumber, v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsNumeric reports whether v is a native number.
func IsNumeric(v any) bool {
	_, ok := toFloat(v)
	return ok
}

// IsBlank reports whether v carries no usable value: nil, whitespace, or an empty
// collection.
func IsBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// Text returns v as trimmed text when it is textual. Numbers and booleans are not text.
func Text(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), true
	}
	return "", false
}

// String renders any scalar as text; nil becomes "".
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return FormatISO(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// SanitizeFieldName lowercases s and collapses runs of non-alphanumerics into one
// underscore: "Client Ref #" -> "client_ref".
func SanitizeFieldName(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "field"
	}
	return out
}

// Slugify turns a heading into a hyphenated anchor slug.
func Slugify(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "x"
	}
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	return out
}

// MatchKey reduces a column or key name to lowercase alphanumerics so that
// "Due Date", "due_date" and "dueDate" compare equal.
func MatchKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup reads path from m. An exact key wins; otherwise path is split on "." and walked
// through nested maps.
func Lookup(m map[string]any, path string) (any, bool) {
	if v, ok := m[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
