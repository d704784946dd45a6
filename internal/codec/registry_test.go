package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCodec struct{ d Descriptor }

func (s stubCodec) Descriptor() Descriptor { return s.d }

func TestDefaultRegistryFormats(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []Format{FormatCSV, FormatJSON, FormatMarkdown, FormatNDJSON, FormatSpreadsheet, FormatYAML}, r.Formats())

	for _, d := range r.Descriptors() {
		assert.True(t, d.CanExport, d.Name)
		_, canExport := r.Exporter(d.Format)
		assert.True(t, canExport, d.Name)
		_, canImport := r.Importer(d.Format)
		assert.Equal(t, d.CanImport, canImport, d.Name)
	}

	_, ok := r.Importer(FormatMarkdown)
	assert.False(t, ok, "markdown is export only")
	_, ok = r.Exporter(Format("pdf"))
	assert.False(t, ok)
}

func TestRegistryLookups(t *testing.T) {
	r := DefaultRegistry()

	c, ok := r.ByExtension("YML")
	require.True(t, ok)
	assert.Equal(t, FormatYAML, c.Descriptor().Format)

	c, ok = r.ByExtension(".jsonl")
	require.True(t, ok)
	assert.Equal(t, FormatNDJSON, c.Descriptor().Format)

	_, ok = r.ByExtension("")
	assert.False(t, ok)

	c, ok = r.ByMIMEType("text/csv; charset=utf-8")
	require.True(t, ok)
	assert.Equal(t, FormatCSV, c.Descriptor().Format)

	c, ok = r.ByMIMEType("application/vnd.ms-excel")
	require.True(t, ok)
	assert.Equal(t, FormatSpreadsheet, c.Descriptor().Format)
}

func TestDetectFormat(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		name string
		file File
		want Format
		ok   bool
	}{
		{"mime wins over extension", NewFile("tasks.json", "text/csv", nil), FormatCSV, true},
		{"extension case", NewFile("Report.MD", "", nil), FormatMarkdown, true},
		{"extension only", NewFile("book.xlsx", "", nil), FormatSpreadsheet, true},
		{"yaml", NewFile("data.yml", "", nil), FormatYAML, true},
		{"unknown", NewFile("notes.bin", "", nil), "", false},
		{"no extension", NewFile("README", "", nil), "", false},
		{"nil file", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.DetectFormat(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	r := DefaultRegistry()
	stub := stubCodec{d: Descriptor{Format: FormatJSON, Name: "stub", Extensions: []string{".stub"}}}
	r.Register(stub)
	r.Register(nil)

	c, ok := r.ByFormat(FormatJSON)
	require.True(t, ok)
	assert.Equal(t, "stub", c.Descriptor().Name)
	_, ok = r.Exporter(FormatJSON)
	assert.False(t, ok, "the replacement cannot export")
	_, ok = r.ByExtension(".json")
	assert.False(t, ok)
	assert.Len(t, r.Formats(), 6)

	assert.True(t, r.Unregister(FormatJSON))
	assert.False(t, r.Unregister(FormatJSON))
	_, ok = r.ByFormat(FormatJSON)
	assert.False(t, ok)

	empty := NewRegistry()
	assert.Empty(t, empty.Formats())
	_, ok = empty.DetectFormat(NewFile("a.csv", "", nil))
	assert.False(t, ok)
}

func TestZeroRegistry(t *testing.T) {
	var r Registry
	assert.Empty(t, r.Formats())
	assert.Empty(t, r.Descriptors())
	_, ok := r.ByExtension("csv")
	assert.False(t, ok)
	_, ok = r.DetectFormat(NewFile("a.json", "", nil))
	assert.False(t, ok)
	assert.False(t, r.Unregister(FormatJSON))

	r.Register(NewJSON())
	c, ok := r.ByFormat(FormatJSON)
	require.True(t, ok)
	assert.Equal(t, FormatJSON, c.Descriptor().Format)
	_, ok = r.Importer(FormatJSON)
	assert.True(t, ok)
	assert.Equal(t, []Format{FormatJSON}, r.Formats())
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		" JSON ": FormatJSON,
		"yml":    FormatYAML,
		"jsonl":  FormatNDJSON,
		"xlsx":   FormatSpreadsheet,
		"md":     FormatMarkdown,
		"toml":   Format("toml"),
	} {
		assert.Equal(t, want, ParseFormat(in), in)
	}
}
