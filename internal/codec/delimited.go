package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amirbrooks/taskport/internal/classify"
	"github.com/amirbrooks/taskport/internal/model"
)

// row is one tokenized line with the source line it started on.
type row struct {
	cells []string
	line  int
}

// tokenize splits text into rows of fields, one character at a time. A field wrapped
// in double quotes may hold the delimiter, quotes (doubled) and line breaks. CRLF, LF
// and lone CR all end a row.
func tokenize(text string, delim rune) ([]row, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	var (
		rows     []row
		cells    []string
		field    strings.Builder
		inQuotes bool
		line     = 1
		start    = 1
		quoteAt  int
	)
	endField := func() {
		cells = append(cells, field.String())
		field.Reset()
	}
	endRow := func() {
		endField()
		rows = append(rows, row{cells: cells, line: start})
		cells = nil
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inQuotes {
			switch {
			case r == '"' && i+1 < len(runes) && runes[i+1] == '"':
				field.WriteRune('"')
				i++
			case r == '"':
				inQuotes = false
			default:
				if r == '\n' || (r == '\r' && (i+1 >= len(runes) || runes[i+1] != '\n')) {
					line++
				}
				field.WriteRune(r)
			}
			continue
		}
		switch {
		case r == '"' && field.Len() == 0:
			inQuotes = true
			quoteAt = line
		case r == delim:
			endField()
		case r == '\r' && i+1 < len(runes) && runes[i+1] == '\n':
			// the '\n' ends the row
		case r == '\n' || r == '\r':
			endRow()
			line++
			start = line
		default:
			field.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("%w: unterminated quoted field starting on line %d", ErrInvalidDocument, quoteAt)
	}
	if field.Len() > 0 || len(cells) > 0 {
		endRow()
	}
	return rows, nil
}

func (r row) blank() bool {
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sectionMarker recognizes rows like "# Tasks" that introduce a stacked section. The
// returned tag is "" for a metadata section.
func sectionMarker(r row) (tag string, ok bool) {
	first := strings.TrimSpace(r.cells[0])
	if !strings.HasPrefix(first, "#") {
		return "", false
	}
	for _, c := range r.cells[1:] {
		if strings.TrimSpace(c) != "" {
			return "", false
		}
	}
	name := strings.TrimSpace(strings.TrimPrefix(first, "#"))
	if strings.EqualFold(name, "metadata") {
		return "", true
	}
	kind, known := classify.ParseTag(name)
	if !known {
		return "", false
	}
	return kind.String(), true
}

// parseDelimited turns tokenized text into records. Without section markers the first
// non-blank row is the header and records are untyped. With markers each section has
// its own header and its records carry the section's tag; metadata sections are
// skipped.
func parseDelimited(text string, delim rune) ([]model.Record, error) {
	rows, err := tokenize(text, delim)
	if err != nil {
		return nil, err
	}
	var (
		out     []model.Record
		header  []string
		tag     string
		skip    bool
		started bool
	)
	for _, r := range rows {
		if r.blank() {
			continue
		}
		if t, ok := sectionMarker(r); ok {
			tag, skip, header, started = t, t == "", nil, true
			continue
		}
		if skip {
			continue
		}
		if header == nil {
			header = headerNames(r.cells)
			continue
		}
		fields := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(r.cells) {
				fields[name] = r.cells[i]
			}
		}
		out = append(out, model.Record{Type: tag, Fields: fields, Columns: header, Line: r.line})
	}
	if !started && header == nil {
		return nil, fmt.Errorf("%w: no header row", ErrInvalidDocument)
	}
	return out, nil
}

// headerNames trims names and suffixes duplicates ("tags", "tags_2").
func headerNames(cells []string) []string {
	out := make([]string, len(cells))
	seen := map[string]int{}
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab outside quotes on
// the first non-empty line. ok is false when none occurs.
func sniffDelimiter(text string) (rune, bool) {
	first := ""
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(l) != "" {
			first = l
			break
		}
	}
	counts := map[rune]int{}
	inQuotes := false
	for _, r := range first {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && (r == ',' || r == ';' || r == '\t'):
			counts[r]++
		}
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best, bestN > 0
}

// quoteField quotes s when it holds the delimiter, a quote, CR or LF, doubling
// embedded quotes.
func quoteField(s string, delim rune) string {
	if !strings.ContainsRune(s, delim) && !strings.ContainsAny(s, "\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func writeRow(b *strings.Builder, cells []string, delim rune) {
	for i, c := range cells {
		if i > 0 {
			b.WriteRune(delim)
		}
		b.WriteString(quoteField(c, delim))
	}
	b.WriteString("\r\n")
}
