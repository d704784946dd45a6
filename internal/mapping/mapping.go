// Package mapping turns raw imported records into canonical field values.
//
// A FieldMapping ties one source column or key to one canonical field, together with a
// default and a transform. Mappings are produced by Generate from an ordered rule catalog,
// applied per record by Apply and checked by Validate.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirbrooks/taskport/internal/coerce"
)

// CustomPrefix marks target fields that land in a record's customFields map.
const CustomPrefix = "custom."

var ErrTransform = errors.New("transform failed")

// TransformKind is the closed set of coercions a mapping can apply.
type TransformKind int

const (
	TransformNone TransformKind = iota
	TransformParseDate
	TransformParseBool
	TransformParseList
	TransformParseNumber
	TransformNormalizeStatus
	TransformNormalizePriority
	TransformSubtasks
	TransformObject
	TransformCustomFn
)

func (k TransformKind) String() string {
	switch k {
	case TransformNone:
		return "none"
	case TransformParseDate:
		return "parseDate"
	case TransformParseBool:
		return "parseBool"
	case TransformParseList:
		return "parseList"
	case TransformParseNumber:
		return "parseNumber"
	case TransformNormalizeStatus:
		return "normalizeStatus"
	case TransformNormalizePriority:
		return "normalizePriority"
	case TransformSubtasks:
		return "subtasks"
	case TransformObject:
		return "object"
	case TransformCustomFn:
		return "custom"
	default:
		return fmt.Sprintf("TransformKind(%d)", int(k))
	}
}

// Transform is a coercion step. Fn is only consulted for TransformCustomFn.
type Transform struct {
	Kind TransformKind
	Fn   func(any) (any, error)
}

// Custom wraps fn as a TransformCustomFn transform.
func Custom(fn func(any) (any, error)) Transform {
	return Transform{Kind: TransformCustomFn, Fn: fn}
}

// Apply coerces v. Status and priority normalization never fail; unknown spellings
// collapse to the enum default.
func (t Transform) Apply(v any) (any, error) {
	switch t.Kind {
	case TransformNone:
		return v, nil
	case TransformParseDate:
		return coerce.ParseDate(v)
	case TransformParseBool:
		return coerce.ParseBool(v)
	case TransformParseList:
		return coerce.ParseList(v), nil
	case TransformParseNumber:
		return coerce.ParseNumber(v)
	case TransformNormalizeStatus:
		return coerce.NormalizeStatus(v), nil
	case TransformNormalizePriority:
		return coerce.NormalizePriority(v), nil
	case TransformSubtasks:
		return parseSubtasks(v)
	case TransformObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected object, got %T", ErrTransform, v)
		}
		return obj, nil
	case TransformCustomFn:
		if t.Fn == nil {
			return nil, fmt.Errorf("%w: custom transform has no function", ErrTransform)
		}
		return t.Fn(v)
	}
	return nil, fmt.Errorf("%w: unknown kind %s", ErrTransform, t.Kind)
}

// parseSubtasks accepts an array of subtask objects or titles, or a delimited string of
// titles, and returns one field map per subtask.
func parseSubtasks(v any) ([]map[string]any, error) {
	switch x := v.(type) {
	case []map[string]any:
		return x, nil
	case []any:
		out := make([]map[string]any, 0, len(x))
		for i, item := range x {
			switch it := item.(type) {
			case map[string]any:
				out = append(out, it)
			case string:
				if strings.TrimSpace(it) != "" {
					out = append(out, map[string]any{"title": strings.TrimSpace(it)})
				}
			case nil:
			default:
				return nil, fmt.Errorf("%w: subtask %d is %T", ErrTransform, i, item)
			}
		}
		return out, nil
	case string:
		titles := coerce.ParseList(x)
		out := make([]map[string]any, 0, len(titles))
		for _, title := range titles {
			out = append(out, map[string]any{"title": title})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected subtask list, got %T", ErrTransform, v)
}

// Default supplies a value for an absent or blank source field. Factory wins over Value.
type Default struct {
	Value   any
	Factory func() any
}

// Resolve returns the default value.
func (d *Default) Resolve() any {
	if d == nil {
		return nil
	}
	if d.Factory != nil {
		return d.Factory()
	}
	return d.Value
}

// StaticDefault is shorthand for &Default{Value: v}.
func StaticDefault(v any) *Default {
	return &Default{Value: v}
}

// Validator checks a value after its transform. A failure drops the field with a warning.
type Validator func(any) error

type FieldMapping struct {
	SourceField string
	TargetField string
	Required    bool
	Default     *Default
	Transform   Transform
	Validator   Validator
}

// IsCustom reports whether the mapping targets a custom field.
func (m FieldMapping) IsCustom() bool {
	return strings.HasPrefix(m.TargetField, CustomPrefix)
}

// FieldName is the target field without the custom prefix.
func (m FieldMapping) FieldName() string {
	return strings.TrimPrefix(m.TargetField, CustomPrefix)
}

func (m FieldMapping) String() string {
	s := m.SourceField + " -> " + m.TargetField
	if m.Transform.Kind != TransformNone {
		s += " (" + m.Transform.Kind.String() + ")"
	}
	if m.Required {
		s += " required"
	}
	return s
}

// Mapped is one record after Apply: canonical target fields to coerced values.
type Mapped struct {
	Values map[string]any
	// Defaulted names the fields whose value came from a default rather than the source.
	Defaulted map[string]bool
}

func newMapped() Mapped {
	return Mapped{Values: map[string]any{}, Defaulted: map[string]bool{}}
}

// Get returns the value for field, defaulted or not.
func (m Mapped) Get(field string) (any, bool) {
	v, ok := m.Values[field]
	return v, ok
}

// Present reports whether field was supplied by the source itself.
func (m Mapped) Present(field string) bool {
	_, ok := m.Values[field]
	return ok && !m.Defaulted[field]
}

// Custom collects the custom.* values, keyed without the prefix.
func (m Mapped) Custom() map[string]any {
	var out map[string]any
	for k, v := range m.Values {
		if !strings.HasPrefix(k, CustomPrefix) {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		out[strings.TrimPrefix(k, CustomPrefix)] = v
	}
	return out
}

// ValidationResult is the verdict for one record. Messages are joined with "; ".
type ValidationResult struct {
	Row     int    `json:"row"`
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}
