package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/amirbrooks/taskport/internal/model"
)

// JSON is the structured-data codec and the engine's native interchange format.
type JSON struct {
	importer
}

func NewJSON() *JSON { return &JSON{} }

func (*JSON) Descriptor() Descriptor {
	return Descriptor{
		Format:      FormatJSON,
		Name:        "JSON",
		Description: "Structured document with metadata, notebooks and tasks",
		Extensions:  []string{".json"},
		MIMETypes:   []string{"application/json", "text/json"},
		MaxSize:     DefaultMaxSize,
		CanExport:   true,
		CanImport:   true,
	}
}

func (c *JSON) Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error {
	d := c.Descriptor()
	out, err := prepare(ctx, d, data, cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return wrapErr(d, OpExport, enc.Encode(out))
}

func (c *JSON) Parse(ctx context.Context, f File) ([]model.Record, error) {
	d := c.Descriptor()
	raw, err := readAll(ctx, f, d.MaxSize)
	if err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	doc, err := decodeJSON(raw)
	if err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	records, err := documentRecords(doc)
	return records, wrapErr(d, OpParse, err)
}

func (c *JSON) DetectColumns(ctx context.Context, f File) ([]string, error) {
	records, err := c.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	return ColumnsOf(records, DefaultSampleSize), nil
}

// decodeJSON keeps numbers as json.Number so large IDs and counts survive.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, fmt.Errorf("%w: %v at offset %d", ErrInvalidDocument, syn, syn.Offset)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidDocument)
	}
	return doc, nil
}

// documentRecords recognizes, in order: our own export shape (metadata plus notebooks
// and tasks arrays), a bare array of records, an object whose array-valued keys are
// collections named after their records, and finally a single object as one record.
func documentRecords(doc any) ([]model.Record, error) {
	switch x := doc.(type) {
	case []any:
		return recordsFromObjects(x, "")
	case map[string]any:
		if isExportShape(x) {
			var out []model.Record
			for _, key := range []string{"notebooks", "tasks"} {
				items, _ := x[key].([]any)
				recs, err := recordsFromObjects(items, singularize(key))
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				out = append(out, recs...)
			}
			return out, nil
		}
		if keys := arrayKeys(x); len(keys) > 0 {
			var out []model.Record
			for _, key := range keys {
				recs, err := recordsFromObjects(x[key].([]any), singularize(key))
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				out = append(out, recs...)
			}
			return out, nil
		}
		return []model.Record{{Fields: x}}, nil
	case nil:
		return nil, fmt.Errorf("%w: document is null", ErrInvalidDocument)
	}
	return nil, fmt.Errorf("%w: top level is %T, want object or array", ErrInvalidDocument, doc)
}

func isExportShape(m map[string]any) bool {
	found := false
	for k, v := range m {
		switch k {
		case "notebooks", "tasks":
			if _, ok := v.([]any); !ok && v != nil {
				return false
			}
			found = true
		case "metadata":
		default:
			return false
		}
	}
	return found
}

// arrayKeys lists keys holding non-empty arrays of objects, sorted.
func arrayKeys(m map[string]any) []string {
	var keys []string
	for k, v := range m {
		items, ok := v.([]any)
		if !ok || len(items) == 0 {
			continue
		}
		if _, isObj := items[0].(map[string]any); isObj {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
