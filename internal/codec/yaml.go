package codec

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/taskport/internal/model"
)

// YAML writes the same document as JSON and accepts the same import shapes.
type YAML struct {
	importer
}

func NewYAML() *YAML { return &YAML{} }

func (*YAML) Descriptor() Descriptor {
	return Descriptor{
		Format:      FormatYAML,
		Name:        "YAML",
		Description: "YAML rendition of the structured document",
		Extensions:  []string{".yaml", ".yml"},
		MIMETypes:   []string{"application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml"},
		MaxSize:     DefaultMaxSize,
		CanExport:   true,
		CanImport:   true,
	}
}

func (c *YAML) Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error {
	d := c.Descriptor()
	out, err := prepare(ctx, d, data, cfg)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return wrapErr(d, OpExport, err)
	}
	return wrapErr(d, OpExport, enc.Close())
}

func (c *YAML) Parse(ctx context.Context, f File) ([]model.Record, error) {
	d := c.Descriptor()
	raw, err := readAll(ctx, f, d.MaxSize)
	if err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, wrapErr(d, OpParse, fmt.Errorf("%w: %v", ErrInvalidDocument, err))
	}
	records, err := documentRecords(normalizeYAML(doc))
	return records, wrapErr(d, OpParse, err)
}

func (c *YAML) DetectColumns(ctx context.Context, f File) ([]string, error) {
	records, err := c.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	return ColumnsOf(records, DefaultSampleSize), nil
}

// normalizeYAML converts map[any]any nodes, which yaml produces for non-string keys,
// into map[string]any so the rest of the pipeline sees one object type.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeYAML(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = normalizeYAML(val)
		}
		return x
	}
	return v
}
