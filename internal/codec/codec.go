// Package codec converts the canonical model to and from external file formats.
//
// Every codec describes itself with a Descriptor. Exporters write an ExportData to a
// byte sink; importers parse a File into raw records and turn those records into an
// ExportData through the mapping and classify packages. A Registry looks codecs up by
// format, extension or MIME type.
package codec

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/amirbrooks/taskport/internal/classify"
	"github.com/amirbrooks/taskport/internal/filter"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/model"
)

type Format string

const (
	FormatJSON        Format = "json"
	FormatYAML        Format = "yaml"
	FormatNDJSON      Format = "ndjson"
	FormatCSV         Format = "csv"
	FormatSpreadsheet Format = "spreadsheet"
	FormatMarkdown    Format = "markdown"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yml":
		return FormatYAML
	case "jsonl":
		return FormatNDJSON
	case "excel", "xls", "xlsx", "xml":
		return FormatSpreadsheet
	case "md", "report":
		return FormatMarkdown
	default:
		return Format(strings.ToLower(strings.TrimSpace(s)))
	}
}

// DefaultMaxSize caps imports when a codec does not set its own limit.
const DefaultMaxSize int64 = 50 << 20

type Descriptor struct {
	Format      Format   `json:"format"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Extensions  []string `json:"extensions"`
	MIMETypes   []string `json:"mimeTypes"`
	MaxSize     int64    `json:"maxSize"`
	CanExport   bool     `json:"canExport"`
	CanImport   bool     `json:"canImport"`
}

// PrimaryExtension is the first extension without its dot ("json").
func (d Descriptor) PrimaryExtension() string {
	if len(d.Extensions) == 0 {
		return string(d.Format)
	}
	return strings.TrimPrefix(d.Extensions[0], ".")
}

type Codec interface {
	Descriptor() Descriptor
}

// ExportConfig controls an export. The embedded filter.Config is applied before
// serialization by every exporter.
type ExportConfig struct {
	filter.Config
	Pretty bool
	Source string
}

type Exporter interface {
	Codec
	// Export writes data to w. Failures are *EncodingError.
	Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error
}

// ImportConfig controls validation and transformation. Nil Mappings are generated from
// the records' own columns.
type ImportConfig struct {
	Mappings []mapping.FieldMapping
}

type Importer interface {
	Codec
	// Parse reads f into raw records. Failures are *EncodingError.
	Parse(ctx context.Context, f File) ([]model.Record, error)
	DetectColumns(ctx context.Context, f File) ([]string, error)
	GenerateMapping(columns []string) []mapping.FieldMapping
	Validate(records []model.Record, cfg ImportConfig) []mapping.ValidationResult
	Transform(records []model.Record, mappings []mapping.FieldMapping) (*model.ExportData, []classify.Issue)
}

// ExportBytes runs e into a buffer.
func ExportBytes(ctx context.Context, e Exporter, data *model.ExportData, cfg ExportConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Export(ctx, &buf, data, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// prepare validates cfg and runs the filter pipeline. Exporters call it first.
func prepare(ctx context.Context, d Descriptor, data *model.ExportData, cfg ExportConfig) (*model.ExportData, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(d, OpExport, err)
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, wrapErr(d, OpExport, err)
	}
	out := filter.Apply(data, cfg.Config)
	if cfg.IncludeMetadata {
		out.Metadata = BuildMetadata(out, d.Format, cfg)
	}
	return out, nil
}
