package codec

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirbrooks/taskport/internal/model"
)

// Spreadsheet exports SpreadsheetML 2003 markup. It has no binary reader: imports of
// delimiter-bearing text go through the delimited parser, and anything else yields a
// fixed placeholder record.
type Spreadsheet struct {
	importer
}

func NewSpreadsheet() *Spreadsheet { return &Spreadsheet{} }

func (*Spreadsheet) Descriptor() Descriptor {
	return Descriptor{
		Format:      FormatSpreadsheet,
		Name:        "Spreadsheet",
		Description: "SpreadsheetML workbook with summary, notebook, task and subtask sheets",
		Extensions:  []string{".xls", ".xml", ".xlsx"},
		MIMETypes: []string{
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		},
		MaxSize:   20 << 20,
		CanExport: true,
		CanImport: true,
	}
}

const spreadsheetDateLayout = "2006-01-02T15:04:05.000"

func (c *Spreadsheet) Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error {
	d := c.Descriptor()
	out, err := prepare(ctx, d, data, cfg)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<?mso-application progid="Excel.Sheet"?>` + "\n")
	b.WriteString(`<Workbook xmlns="urn:schemas-microsoft-com:office:spreadsheet"` +
		` xmlns:o="urn:schemas-microsoft-com:office:office"` +
		` xmlns:x="urn:schemas-microsoft-com:office:excel"` +
		` xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet">` + "\n")

	created := model.Now()
	if out.Metadata != nil {
		created = out.Metadata.ExportedAt
	}
	b.WriteString(` <DocumentProperties xmlns="urn:schemas-microsoft-com:office:office">` + "\n")
	b.WriteString(`  <Title>Notebooks and tasks</Title>` + "\n")
	b.WriteString(`  <Created>` + created.UTC().Format(time.RFC3339) + `</Created>` + "\n")
	b.WriteString(" </DocumentProperties>\n")

	b.WriteString(" <Styles>\n")
	b.WriteString(`  <Style ss:ID="Header"><Font ss:Bold="1"/><Interior ss:Color="#D9E1F2" ss:Pattern="Solid"/></Style>` + "\n")
	b.WriteString(`  <Style ss:ID="Date"><NumberFormat ss:Format="yyyy-mm-dd hh:mm"/></Style>` + "\n")
	b.WriteString(`  <Style ss:ID="Number"><NumberFormat ss:Format="0.##"/></Style>` + "\n")
	b.WriteString(" </Styles>\n")

	for _, s := range BuildSheets(out) {
		writeWorksheet(&b, s)
	}
	b.WriteString("</Workbook>\n")

	_, err = io.WriteString(w, b.String())
	return wrapErr(d, OpExport, err)
}

func writeWorksheet(b *strings.Builder, s Sheet) {
	b.WriteString(` <Worksheet ss:Name="`)
	escapeXML(b, s.Name)
	b.WriteString("\">\n  <Table>\n")
	for i, r := range s.Rows {
		b.WriteString("   <Row>")
		header := s.IsHeader(i)
		for j, v := range r {
			kind := KindString
			if j < len(s.Kinds) {
				kind = s.Kinds[j]
			}
			writeCell(b, v, kind, header)
		}
		b.WriteString("</Row>\n")
	}
	b.WriteString("  </Table>\n </Worksheet>\n")
}

// writeCell dispatches on the column kind, never on the value's runtime shape. Values
// that do not fit their column's kind fall back to a String cell.
func writeCell(b *strings.Builder, v any, kind ColumnKind, header bool) {
	if header {
		b.WriteString(`<Cell ss:StyleID="Header"><Data ss:Type="String">`)
		escapeXML(b, cellText(v))
		b.WriteString(`</Data></Cell>`)
		return
	}
	if v == nil {
		b.WriteString(`<Cell/>`)
		return
	}
	switch kind {
	case KindDate:
		if t, ok := v.(time.Time); ok {
			if t.IsZero() {
				b.WriteString(`<Cell/>`)
				return
			}
			b.WriteString(`<Cell ss:StyleID="Date"><Data ss:Type="DateTime">`)
			b.WriteString(t.UTC().Format(spreadsheetDateLayout))
			b.WriteString(`</Data></Cell>`)
			return
		}
	case KindNumber:
		if n, ok := numberValue(v); ok {
			b.WriteString(`<Cell ss:StyleID="Number"><Data ss:Type="Number">`)
			b.WriteString(strconv.FormatFloat(n, 'f', -1, 64))
			b.WriteString(`</Data></Cell>`)
			return
		}
	case KindBoolean:
		if flag, ok := v.(bool); ok {
			text := "FALSE"
			if flag {
				text = "TRUE"
			}
			b.WriteString(`<Cell><Data ss:Type="String">` + text + `</Data></Cell>`)
			return
		}
	}
	b.WriteString(`<Cell><Data ss:Type="String">`)
	escapeXML(b, cellText(v))
	b.WriteString(`</Data></Cell>`)
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func escapeXML(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s))
}

// PlaceholderTitle names the record returned for spreadsheet content that cannot be
// read as text.
const PlaceholderTitle = "Imported spreadsheet"

func placeholderRecords() []model.Record {
	return []model.Record{{
		Type: model.TypeTask,
		Fields: map[string]any{
			"title":       PlaceholderTitle,
			"description": "Binary spreadsheet content is not supported. Save the sheet as CSV and import that file instead.",
			"status":      string(model.StatusPending),
			"priority":    string(model.PriorityMedium),
			"tags":        "import",
		},
		Line: 1,
	}}
}

// IsPlaceholder reports whether records is the fixed placeholder set.
func IsPlaceholder(records []model.Record) bool {
	if len(records) != 1 {
		return false
	}
	title, _ := records[0].Fields["title"].(string)
	return title == PlaceholderTitle && records[0].Type == model.TypeTask
}

// Parse reads the file as text. Delimiter-bearing text is parsed as delimited rows;
// binary or markup content gives the placeholder records.
func (c *Spreadsheet) Parse(ctx context.Context, f File) ([]model.Record, error) {
	d := c.Descriptor()
	raw, err := readAll(ctx, f, d.MaxSize)
	if err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	if bytes.IndexByte(raw, 0) >= 0 || !utf8.Valid(raw) {
		return placeholderRecords(), nil
	}
	text := string(raw)
	if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(text, "\ufeff")), "<") {
		return placeholderRecords(), nil
	}
	delim, ok := sniffDelimiter(text)
	if !ok {
		return placeholderRecords(), nil
	}
	records, err := parseDelimited(text, delim)
	return records, wrapErr(d, OpParse, err)
}

func (c *Spreadsheet) DetectColumns(ctx context.Context, f File) ([]string, error) {
	records, err := c.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	return ColumnsOf(records, 0), nil
}
