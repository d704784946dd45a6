package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrOverride = errors.New("invalid mapping override")

// Override retargets the mappings whose SourceField is a key of targets. A target is a
// canonical field ("dueDate") and takes that rule's transform, or "custom.<name>". An
// empty target drops the column. Naming a column that has no mapping, or sending two
// columns to one target, is an error.
func Override(mappings []FieldMapping, targets map[string]string) ([]FieldMapping, error) {
	if len(targets) == 0 {
		return mappings, nil
	}
	out := make([]FieldMapping, 0, len(mappings))
	used := map[string]bool{}
	for _, m := range mappings {
		target, ok := targets[m.SourceField]
		if !ok {
			out = append(out, m)
			continue
		}
		used[m.SourceField] = true
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		next, err := retarget(m.SourceField, target)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}

	cols := make([]string, 0, len(targets))
	for col := range targets {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if !used[col] {
			return nil, fmt.Errorf("%w: no column %q", ErrOverride, col)
		}
	}

	owner := map[string]string{}
	for _, m := range out {
		if prev, dup := owner[m.TargetField]; dup {
			return nil, fmt.Errorf("%w: %q and %q both map to %s", ErrOverride, prev, m.SourceField, m.TargetField)
		}
		owner[m.TargetField] = m.SourceField
	}
	return out, nil
}

func retarget(col, target string) (FieldMapping, error) {
	if strings.HasPrefix(target, CustomPrefix) {
		if strings.TrimPrefix(target, CustomPrefix) == "" {
			return FieldMapping{}, fmt.Errorf("%w: %q has an empty custom field name", ErrOverride, col)
		}
		return customMapping(col, target), nil
	}
	for _, r := range catalog {
		if r.Target == target {
			return FieldMapping{
				SourceField: col,
				TargetField: r.Target,
				Required:    r.Required,
				Default:     r.Default,
				Transform:   r.Transform,
			}, nil
		}
	}
	return FieldMapping{}, fmt.Errorf("%w: unknown target %q", ErrOverride, target)
}

// ParseOverride splits a "column=target" pair.
func ParseOverride(s string) (column, target string, err error) {
	column, target, ok := strings.Cut(s, "=")
	column = strings.TrimSpace(column)
	if !ok || column == "" {
		return "", "", fmt.Errorf("%w: %q is not column=target", ErrOverride, s)
	}
	return column, strings.TrimSpace(target), nil
}
