// Package filter narrows an ExportData before it is written.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/model"
)

var ErrInvalidFilter = errors.New("invalid filter")

type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpIn         Operator = "in"
	OpBetween    Operator = "between"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpContains, OpStartsWith, OpIn, OpBetween:
		return true
	}
	return false
}

// DateRange bounds createdAt, both ends inclusive. A zero bound is open.
type DateRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r DateRange) contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// CustomFilter keeps records whose Field satisfies Operator against Value. Field is a
// dotted path into the record's JSON form ("customFields.client"). Target limits the
// filter to one collection ("notebook" or "task"); empty applies to both. A record that
// lacks the field fails the filter.
type CustomFilter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	Enabled  bool     `json:"enabled"`
	Target   string   `json:"target,omitempty"`
}

func (f CustomFilter) Validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidFilter)
	}
	if !f.Operator.IsValid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Operator)
	}
	if f.Operator == OpBetween && len(coerce.ParseList(f.Value)) != 2 {
		return fmt.Errorf("%w: between needs exactly two bounds", ErrInvalidFilter)
	}
	if _, ok := targetKind(f.Target); !ok {
		return fmt.Errorf("%w: unknown target %q", ErrInvalidFilter, f.Target)
	}
	return nil
}

func targetKind(target string) (string, bool) {
	switch coerce.MatchKey(target) {
	case "":
		return "", true
	case "notebook", "notebooks":
		return model.TypeNotebook, true
	case "task", "tasks":
		return model.TypeTask, true
	}
	return "", false
}

func (f CustomFilter) appliesTo(kind string) bool {
	t, _ := targetKind(f.Target)
	return t == "" || t == kind
}

type Config struct {
	IncludeMetadata bool           `json:"includeMetadata"`
	DateRange       DateRange      `json:"dateRange"`
	CustomFilters   []CustomFilter `json:"customFilters,omitempty"`
	IncludeDeleted  bool           `json:"includeDeleted"`
}

// Validate checks every enabled custom filter.
func (c Config) Validate() error {
	for i, f := range c.CustomFilters {
		if !f.Enabled {
			continue
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

// Describe summarizes the active filters for export metadata.
func (c Config) Describe() map[string]any {
	out := map[string]any{"includeDeleted": c.IncludeDeleted}
	if !c.DateRange.IsZero() {
		r := map[string]any{}
		if !c.DateRange.Start.IsZero() {
			r["start"] = coerce.FormatISO(c.DateRange.Start)
		}
		if !c.DateRange.End.IsZero() {
			r["end"] = coerce.FormatISO(c.DateRange.End)
		}
		out["dateRange"] = r
	}
	var custom []map[string]any
	for _, f := range c.CustomFilters {
		if !f.Enabled {
			continue
		}
		entry := map[string]any{"field": f.Field, "operator": string(f.Operator), "value": f.Value}
		if f.Target != "" {
			entry["target"] = f.Target
		}
		custom = append(custom, entry)
	}
	if len(custom) > 0 {
		out["customFilters"] = custom
	}
	return out
}

// Apply runs the pipeline in fixed order, each stage narrowing the previous result:
// metadata is dropped unless requested, then the createdAt range, then every enabled
// custom filter, then archived notebooks and cancelled tasks are removed unless
// IncludeDeleted is set. data is never modified.
func Apply(data *model.ExportData, cfg Config) *model.ExportData {
	out := data.Clone()

	if !cfg.IncludeMetadata {
		out.Metadata = nil
	}

	if !cfg.DateRange.IsZero() {
		out.Notebooks = keep(out.Notebooks, func(nb *model.Notebook) bool { return cfg.DateRange.contains(nb.CreatedAt) })
		out.Tasks = keep(out.Tasks, func(t *model.Task) bool { return cfg.DateRange.contains(t.CreatedAt) })
	}

	for _, f := range cfg.CustomFilters {
		if !f.Enabled {
			continue
		}
		if f.appliesTo(model.TypeNotebook) {
			out.Notebooks = keep(out.Notebooks, func(nb *model.Notebook) bool { return f.Match(nb) })
		}
		if f.appliesTo(model.TypeTask) {
			out.Tasks = keep(out.Tasks, func(t *model.Task) bool { return f.Match(t) })
		}
	}

	if !cfg.IncludeDeleted {
		out.Notebooks = keep(out.Notebooks, func(nb *model.Notebook) bool { return !nb.IsArchived })
		out.Tasks = keep(out.Tasks, func(t *model.Task) bool { return t.Status != model.StatusCancelled })
	}
	return out
}

func keep[T any](items []T, pred func(*T) bool) []T {
	out := make([]T, 0, len(items))
	for i := range items {
		if pred(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}

// Match evaluates the filter against one record.
func (f CustomFilter) Match(record any) bool {
	fields, err := asMap(record)
	if err != nil {
		return false
	}
	v, ok := coerce.Lookup(fields, f.Field)
	if !ok || v == nil {
		return false
	}
	switch f.Operator {
	case OpEquals:
		return equals(v, f.Value)
	case OpContains:
		return contains(v, f.Value)
	case OpStartsWith:
		s, isText := v.(string)
		return isText && strings.HasPrefix(strings.ToLower(s), strings.ToLower(coerce.String(f.Value)))
	case OpIn:
		return in(v, f.Value)
	case OpBetween:
		return between(v, f.Value)
	}
	return false
}

func asMap(record any) (map[string]any, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func equals(v, want any) bool {
	if a, err := coerce.ParseNumber(v); err == nil {
		if b, err := coerce.ParseNumber(want); err == nil {
			return a == b
		}
	}
	if a, ok := v.(bool); ok {
		b, err := coerce.ParseBool(want)
		return err == nil && a == b
	}
	return coerce.String(v) == coerce.String(want)
}

func contains(v, want any) bool {
	needle := strings.ToLower(coerce.String(want))
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if strings.EqualFold(coerce.String(item), needle) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := x[coerce.String(want)]
		return ok
	}
	return strings.Contains(strings.ToLower(coerce.String(v)), needle)
}

func in(v, want any) bool {
	options := coerce.ParseList(want)
	if items, ok := v.([]any); ok {
		for _, item := range items {
			if in(item, options) {
				return true
			}
		}
		return false
	}
	for _, opt := range options {
		if equals(v, opt) || strings.EqualFold(coerce.String(v), opt) {
			return true
		}
	}
	return false
}

func between(v, bounds any) bool {
	b := coerce.ParseList(bounds)
	if len(b) != 2 {
		return false
	}
	if n, err := coerce.ParseNumber(v); err == nil {
		lo, errLo := coerce.ParseNumber(b[0])
		hi, errHi := coerce.ParseNumber(b[1])
		if errLo == nil && errHi == nil {
			return n >= lo && n <= hi
		}
	}
	t, err := coerce.ParseDate(v)
	if err != nil {
		return false
	}
	lo, errLo := coerce.ParseDate(b[0])
	hi, errHi := coerce.ParseDate(b[1])
	if errLo != nil || errHi != nil {
		return false
	}
	return !t.Before(lo) && !t.After(hi)
}
