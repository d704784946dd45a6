package mapping

import (
	"fmt"

	"github.com/amirbrooks/taskport/internal/coerce"
)

// Apply maps one raw row. Absent or blank source values take the mapping's default when
// it has one and are omitted otherwise; required-field checks belong to Validate. A
// failed transform or validator omits that field and adds a warning without touching the
// rest of the row.
func Apply(row map[string]any, mappings []FieldMapping) (Mapped, []string) {
	out := newMapped()
	var warnings []string
	for _, m := range mappings {
		raw, ok := coerce.Lookup(row, m.SourceField)
		if !ok || coerce.IsBlank(raw) {
			if m.Default != nil {
				out.Values[m.TargetField] = m.Default.Resolve()
				out.Defaulted[m.TargetField] = true
			}
			continue
		}
		v, err := m.Transform.Apply(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", m.SourceField, err))
			continue
		}
		if m.Validator != nil {
			if err := m.Validator(v); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", m.SourceField, err))
				continue
			}
		}
		out.Values[m.TargetField] = v
	}
	return out, warnings
}
