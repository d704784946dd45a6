package codec

import (
	"context"
	"io"
	"strings"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/model"
)

// CSV writes notebooks, tasks and subtasks as three stacked sections, each introduced
// by a marker row ("# Tasks") and its own header row.
type CSV struct {
	importer
}

func NewCSV() *CSV { return &CSV{} }

func (*CSV) Descriptor() Descriptor {
	return Descriptor{
		Format:      FormatCSV,
		Name:        "CSV",
		Description: "Comma-separated sections for notebooks, tasks and subtasks",
		Extensions:  []string{".csv", ".tsv"},
		MIMETypes:   []string{"text/csv", "application/csv", "text/tab-separated-values"},
		MaxSize:     DefaultMaxSize,
		CanExport:   true,
		CanImport:   true,
	}
}

func (c *CSV) Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error {
	d := c.Descriptor()
	out, err := prepare(ctx, d, data, cfg)
	if err != nil {
		return err
	}
	var b strings.Builder
	if out.Metadata != nil {
		writeMetadataSection(&b, out.Metadata)
		b.WriteString("\r\n")
	}
	for i, t := range []table{notebookTable(out.Notebooks), taskTable(out.Tasks), subtaskTable(out.Tasks)} {
		if i > 0 {
			b.WriteString("\r\n")
		}
		writeTable(&b, t, ',')
	}
	_, err = io.WriteString(w, b.String())
	return wrapErr(d, OpExport, err)
}

func writeTable(b *strings.Builder, t table, delim rune) {
	writeRow(b, []string{"# " + t.Title}, delim)
	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Name
	}
	writeRow(b, header, delim)
	for _, r := range t.Rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = cellText(v)
		}
		writeRow(b, cells, delim)
	}
}

func writeMetadataSection(b *strings.Builder, m *model.Metadata) {
	writeRow(b, []string{"# Metadata"}, ',')
	writeRow(b, []string{"key", "value"}, ',')
	for _, kv := range [][2]string{
		{"version", m.Version},
		{"format", m.Format},
		{"exportedAt", coerce.FormatISO(m.ExportedAt)},
		{"source", m.Source},
		{"notebooks", cellText(m.ItemCounts.Notebooks)},
		{"tasks", cellText(m.ItemCounts.Tasks)},
		{"subtasks", cellText(m.ItemCounts.Subtasks)},
	} {
		writeRow(b, kv[:], ',')
	}
}

// Parse reads comma-separated text, or tab-separated text for .tsv files.
func (c *CSV) Parse(ctx context.Context, f File) ([]model.Record, error) {
	d := c.Descriptor()
	raw, err := readAll(ctx, f, d.MaxSize)
	if err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	delim := ','
	if strings.HasSuffix(strings.ToLower(f.Name()), ".tsv") || f.Type() == "text/tab-separated-values" {
		delim = '\t'
	}
	records, err := parseDelimited(string(raw), delim)
	return records, wrapErr(d, OpParse, err)
}

// DetectColumns returns every section's header names, in order.
func (c *CSV) DetectColumns(ctx context.Context, f File) ([]string, error) {
	records, err := c.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	return ColumnsOf(records, 0), nil
}
