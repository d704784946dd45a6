package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amirbrooks/taskport/internal/classify"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/model"
)

// DefaultSampleSize is how many records DetectColumns looks at.
const DefaultSampleSize = 10

// importer holds the mapping, validation and transform steps every import codec shares.
type importer struct{}

func (importer) GenerateMapping(columns []string) []mapping.FieldMapping {
	return mapping.Generate(columns)
}

func (importer) Validate(records []model.Record, cfg ImportConfig) []mapping.ValidationResult {
	mappings := cfg.Mappings
	if mappings == nil {
		mappings = mapping.Generate(ColumnsOf(records, 0))
	}
	return mapping.Validate(records, mappings)
}

// Transform maps, classifies and assembles records. Per-field transform warnings come
// back as issues next to the assembly issues.
func (importer) Transform(records []model.Record, mappings []mapping.FieldMapping) (*model.ExportData, []classify.Issue) {
	if mappings == nil {
		mappings = mapping.Generate(ColumnsOf(records, 0))
	}
	var issues []classify.Issue
	cands := make([]classify.Candidate, 0, len(records))
	for i, rec := range records {
		line := rec.Line
		if line <= 0 {
			line = i + 1
		}
		m, warnings := mapping.Apply(rec.Fields, mappings)
		for _, w := range warnings {
			issues = append(issues, classify.Issue{Line: line, Message: w})
		}
		cands = append(cands, classify.Resolve(m, rec.Type, line))
	}
	data, more := classify.Assemble(cands)
	return data, append(issues, more...)
}

// ColumnsOf lists the keys of the first sample records in first-seen order. Nested
// objects contribute one level of dotted paths ("customFields.client") instead of their
// own key. sample <= 0 walks every record.
func ColumnsOf(records []model.Record, sample int) []string {
	if sample > 0 && len(records) > sample {
		records = records[:sample]
	}
	seen := map[string]bool{}
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, rec := range records {
		keys := rec.Columns
		if keys == nil {
			keys = sortedKeys(rec.Fields)
		}
		for _, k := range keys {
			nested, ok := rec.Fields[k].(map[string]any)
			if !ok || len(nested) == 0 {
				add(k)
				continue
			}
			for _, sub := range sortedKeys(nested) {
				add(k + "." + sub)
			}
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// singularize turns a collection key into a record tag ("tasks" -> "task").
func singularize(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(k, "ies") && len(k) > 3:
		return k[:len(k)-3] + "y"
	case strings.HasSuffix(k, "ses"), strings.HasSuffix(k, "xes"):
		return k[:len(k)-2]
	case strings.HasSuffix(k, "s") && !strings.HasSuffix(k, "ss"):
		return k[:len(k)-1]
	}
	return k
}

func recordsFromObjects(items []any, tag string) ([]model.Record, error) {
	out := make([]model.Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T, want object", ErrInvalidDocument, i, item)
		}
		out = append(out, model.Record{Type: tag, Fields: obj})
	}
	return out, nil
}
