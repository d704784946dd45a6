package mapping

import (
	"fmt"
	"strings"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/model"
)

// Validate checks every record against mappings and returns one result per record, in
// order.
//
// Errors: a required field that is absent or blank with no default, and an id or title
// that is not text. Warnings: a default filled in for a required field or a blank column,
// a date, number or boolean that does not parse, an unrecognized status or priority, and
// suspect spreadsheet debris (error literals, formulas, raw serial dates).
func Validate(records []model.Record, mappings []FieldMapping) []ValidationResult {
	out := make([]ValidationResult, 0, len(records))
	for i, rec := range records {
		row := rec.Line
		if row <= 0 {
			row = i + 1
		}
		errs, warns := checkRecord(rec.Fields, mappings)
		out = append(out, ValidationResult{
			Row:     row,
			IsValid: len(errs) == 0,
			Error:   strings.Join(errs, "; "),
			Warning: strings.Join(warns, "; "),
		})
	}
	return out
}

func checkRecord(fields map[string]any, mappings []FieldMapping) (errs, warns []string) {
	for _, m := range mappings {
		name := m.FieldName()
		raw, present := coerce.Lookup(fields, m.SourceField)
		if !present || coerce.IsBlank(raw) {
			switch {
			case m.Required && m.Default == nil:
				errs = append(errs, fmt.Sprintf("missing required field %q", name))
			case m.Required:
				warns = append(warns, fmt.Sprintf("required field %q filled with default %v", name, coerce.String(m.Default.Resolve())))
			case present && m.Default != nil:
				warns = append(warns, fmt.Sprintf("blank %q replaced with default %v", name, coerce.String(m.Default.Resolve())))
			}
			continue
		}

		if name == "id" || name == "title" {
			if _, ok := coerce.Text(raw); !ok && !m.IsCustom() {
				errs = append(errs, fmt.Sprintf("field %q must be text, got %T", name, raw))
			}
		}
		if s := coerce.Suspect(raw); s != "" {
			warns = append(warns, fmt.Sprintf("%s: %s", m.SourceField, s))
			continue
		}

		switch m.Transform.Kind {
		case TransformParseDate:
			if coerce.LooksLikeSerialDate(raw) {
				warns = append(warns, fmt.Sprintf("%s: %v looks like a spreadsheet serial date", m.SourceField, raw))
			}
			if _, err := coerce.ParseDate(raw); err != nil {
				warns = append(warns, fmt.Sprintf("%s: unparseable date %q", m.SourceField, coerce.String(raw)))
			}
		case TransformParseNumber:
			if _, err := coerce.ParseNumber(raw); err != nil {
				warns = append(warns, fmt.Sprintf("%s: unparseable number %q", m.SourceField, coerce.String(raw)))
			}
		case TransformParseBool:
			if _, err := coerce.ParseBool(raw); err != nil {
				warns = append(warns, fmt.Sprintf("%s: unparseable boolean %q", m.SourceField, coerce.String(raw)))
			}
		case TransformNormalizeStatus:
			if _, ok := coerce.LookupStatus(raw); !ok {
				warns = append(warns, fmt.Sprintf("%s: unrecognized status %q, using %s", m.SourceField, coerce.String(raw), model.StatusPending))
			}
		case TransformNormalizePriority:
			if _, ok := coerce.LookupPriority(raw); !ok {
				warns = append(warns, fmt.Sprintf("%s: unrecognized priority %q, using %s", m.SourceField, coerce.String(raw), model.PriorityMedium))
			}
		case TransformSubtasks, TransformObject, TransformCustomFn:
			if _, err := m.Transform.Apply(raw); err != nil {
				warns = append(warns, fmt.Sprintf("%s: %v", m.SourceField, err))
			}
		}
		if m.Validator != nil {
			if v, err := m.Transform.Apply(raw); err == nil {
				if err := m.Validator(v); err != nil {
					warns = append(warns, fmt.Sprintf("%s: %v", m.SourceField, err))
				}
			}
		}
	}
	return errs, warns
}
