package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/taskport/internal/codec"
	"github.com/amirbrooks/taskport/internal/config"
	"github.com/amirbrooks/taskport/internal/filter"
	"github.com/amirbrooks/taskport/internal/model"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const tasksCSV = "Title,Status,Priority,Due,Client\r\n" +
	"Write report,in progress,P1,2024-07-01,Acme\r\n" +
	",done,,,\r\n" +
	"Plan trip,,,next week,\r\n"

const tasksJSON = `{"tasks": [
  {"id": "t1", "title": "Keep", "status": "pending", "createdAt": "2024-03-01T00:00:00Z"},
  {"id": "t2", "title": "Drop", "status": "cancelled", "createdAt": "2024-03-02T00:00:00Z"},
  {"id": "t3", "title": "Old", "status": "pending", "createdAt": "2023-01-01T00:00:00Z"}
]}`

type result struct {
	code   int
	stdout string
	stderr string
}

// workspace runs each test from an empty directory with a fixed clock.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("TASKPORT_OTEL_ENABLED", "")
	t.Cleanup(model.SetClock(func() time.Time { return fixedNow }))
	prev := timeNow
	timeNow = func() time.Time { return fixedNow }
	t.Cleanup(func() { timeNow = prev })
	return dir
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	return name
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestFormats(t *testing.T) {
	workspace(t)
	res := run(t, "", "formats")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "FORMAT")
	assert.Contains(t, res.stdout, "spreadsheet")
	assert.Contains(t, res.stdout, ".csv")

	res = run(t, "", "formats", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var descs []codec.Descriptor
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &descs))
	assert.Len(t, descs, 6)

	res = run(t, "", "formats", "--plain")
	require.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "markdown\tMarkdown\ttrue\tfalse\t")
}

func TestUsageErrors(t *testing.T) {
	workspace(t)
	writeFile(t, "blob.bin", "abc")
	cases := []struct {
		args []string
		code int
		msg  string
	}{
		{nil, ExitUsage, "missing command"},
		{[]string{"bogus"}, ExitUsage, `unknown command "bogus"`},
		{[]string{"columns"}, ExitUsage, "expected one file"},
		{[]string{"formats", "--nope"}, ExitUsage, "unknown flag"},
		{[]string{"detect", "missing.csv"}, ExitNotFound, "missing.csv"},
		{[]string{"detect", "blob.bin"}, ExitUsage, "unknown format"},
		{[]string{"export", "blob.bin", "--format", "csv"}, ExitUsage, "--to is required"},
		{[]string{"formats", "--config", "nope.yaml"}, ExitInvalid, "invalid config"},
	}
	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			res := run(t, "", tc.args...)
			assert.Equal(t, tc.code, res.code, res.stderr)
			assert.Contains(t, res.stderr, tc.msg)
		})
	}
}

func TestDetect(t *testing.T) {
	workspace(t)
	writeFile(t, "a.csv", tasksCSV)
	writeFile(t, "b.yml", "title: x\n")
	res := run(t, "", "detect", "a.csv", "b.yml")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "a.csv\tcsv\nb.yml\tyaml\n", res.stdout)
}

func TestColumns(t *testing.T) {
	workspace(t)
	writeFile(t, "tasks.csv", tasksCSV)

	res := run(t, "", "columns", "tasks.csv")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "COLUMN")
	assert.Contains(t, res.stdout, "dueDate")
	assert.Contains(t, res.stdout, "parseDate")
	assert.Contains(t, res.stdout, "custom.client")
	assert.Contains(t, res.stdout, "csv: 5 columns")

	res = run(t, "", "columns", "tasks.csv", "--json", "--map", "Client=assignee")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var out struct {
		Format   string        `json:"format"`
		Columns  []string      `json:"columns"`
		Mappings []mappingView `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "csv", out.Format)
	assert.Equal(t, []string{"Title", "Status", "Priority", "Due", "Client"}, out.Columns)
	require.Len(t, out.Mappings, 5)
	assert.Equal(t, mappingView{Column: "Title", Target: "title", Required: true}, out.Mappings[0])
	assert.Equal(t, "assignee", out.Mappings[4].Target)

	res = run(t, "", "columns", "tasks.csv", "--map", "Nope=title")
	assert.Equal(t, ExitUsage, res.code)
}

func TestValidate(t *testing.T) {
	workspace(t)
	writeFile(t, "tasks.csv", tasksCSV)

	res := run(t, "", "validate", "tasks.csv")
	assert.Equal(t, ExitInvalid, res.code)
	assert.Contains(t, res.stdout, `row 3: missing required field "title"`)
	assert.Contains(t, res.stdout, "3 records: 2 valid, 1 invalid")
	assert.Contains(t, res.stderr, "tasks.csv has 1 of 3")

	res = run(t, "", "validate", "tasks.csv", "--json")
	assert.Equal(t, ExitInvalid, res.code)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.EqualValues(t, 3, out["records"])
	assert.EqualValues(t, 1, out["invalid"])

	writeFile(t, "good.csv", "Title,Due\nA,2024-07-01\n")
	res = run(t, "", "validate", "good.csv", "--all")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "row 2")
	assert.Contains(t, res.stdout, "1 records: 1 valid, 0 invalid")
}

func TestImportWritesTimestampedFile(t *testing.T) {
	workspace(t)
	writeFile(t, "Work Tasks.csv", tasksCSV)

	res := run(t, "", "import", "Work Tasks.csv", "--skip-invalid")
	require.Equal(t, ExitOK, res.code, res.stderr)
	want := filepath.Join("exports", "work-tasks-20240601-120000.json")
	assert.Equal(t, "Wrote JSON to: "+want+"\n", res.stdout)
	assert.Contains(t, res.stderr, "skipped 1 invalid records")

	raw, err := os.ReadFile(want)
	require.NoError(t, err)
	var doc struct {
		Metadata map[string]any   `json:"metadata"`
		Tasks    []map[string]any `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.Tasks, 2)
	assert.Equal(t, "taskport", doc.Metadata["source"])

	res = run(t, "", "import", "Work Tasks.csv", "--skip-invalid", "--quiet")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Empty(t, res.stdout)
	assert.FileExists(t, filepath.Join("exports", "work-tasks-20240601-120000-1.json"))
}

func TestImportManyFilesHonoursConfig(t *testing.T) {
	workspace(t)
	writeFile(t, "taskport.yaml", "output:\n  dir: out\nexport:\n  source: desk\n")
	writeFile(t, "a.csv", "title,category\nWork,job\n")
	writeFile(t, "b.csv", "title,category\nHome,life\n")

	res := run(t, "", "import", "a.csv", "b.csv", "--json", "--to", "yaml")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var out struct {
		Path   string           `json:"path"`
		Format string           `json:"format"`
		Counts model.ItemCounts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, filepath.Join("out", "taskport-20240601-120000.yaml"), out.Path)
	assert.Equal(t, "yaml", out.Format)
	assert.Equal(t, 2, out.Counts.Notebooks)

	raw, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "source: desk")
}

func TestExportFilters(t *testing.T) {
	workspace(t)
	writeFile(t, "backup.json", tasksJSON)

	res := run(t, "", "export", "backup.json", "--to", "csv", "--stdout", "--since", "2024-01-01")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Keep")
	assert.NotContains(t, res.stdout, "Drop")
	assert.NotContains(t, res.stdout, "Old")

	res = run(t, "", "export", "backup.json", "--to", "ndjson", "--stdout", "--include-deleted", "--no-metadata",
		"--filter", "title:in:Keep,Drop")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"title":"Drop"`)
	assert.NotContains(t, res.stdout, `"title":"Old"`)
	assert.NotContains(t, res.stdout, `"metadata"`)

	res = run(t, "", "export", "backup.json", "--to", "csv", "--filter", "title:like:K")
	assert.Equal(t, ExitInvalid, res.code)
	res = run(t, "", "export", "backup.json", "--to", "pdf")
	assert.Equal(t, ExitUsage, res.code)

	res = run(t, "", "export", "backup.json", "--to", "md", "-o", filepath.Join("reports", "r.md"))
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "Wrote Markdown to: "+filepath.Join("reports", "r.md")+"\n", res.stdout)
	assert.FileExists(t, filepath.Join("reports", "r.md"))
}

func TestExportFromStdin(t *testing.T) {
	workspace(t)
	res := run(t, tasksJSON, "export", "-", "--format", "json", "--to", "ndjson", "--stdout")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"title":"Keep"`)

	res = run(t, tasksJSON, "export", "-", "--to", "ndjson", "--stdout")
	assert.Equal(t, ExitUsage, res.code, "stdin needs --format")
}

func TestPreviewWritesMarkdownWhenPiped(t *testing.T) {
	workspace(t)
	writeFile(t, "backup.json", tasksJSON)
	res := run(t, "", "preview", "backup.json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "# Notebooks and Tasks Report\n"))
	assert.Contains(t, res.stdout, "Keep")
	assert.NotContains(t, res.stdout, "Drop")
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter("customFields.url:startsWith:https://x", "task")
	require.NoError(t, err)
	assert.Equal(t, filter.CustomFilter{
		Field:    "customFields.url",
		Operator: filter.OpStartsWith,
		Value:    "https://x",
		Enabled:  true,
		Target:   "task",
	}, f)

	for _, bad := range []string{"status", "status:equals", "status:like:x", ":equals:x", "n:between:1"} {
		_, err := parseFilter(bad, "")
		assert.ErrorIs(t, err, filter.ErrInvalidFilter, bad)
	}
	_, err = parseFilter("status:equals:done", "people")
	assert.ErrorIs(t, err, filter.ErrInvalidFilter)
}

func TestParseFilterNormalizesEnumValues(t *testing.T) {
	f, err := parseFilter("status:in:pending,in-progress,Someday", "")
	require.NoError(t, err)
	assert.Equal(t, "pending,in_progress,Someday", f.Value)

	f, err = parseFilter("priority:equals:P1", "task")
	require.NoError(t, err)
	assert.Equal(t, "high", f.Value)

	f, err = parseFilter("title:in:In Progress,x", "")
	require.NoError(t, err)
	assert.Equal(t, "In Progress,x", f.Value)
}

func TestExportFilterAcceptsStatusSpellings(t *testing.T) {
	workspace(t)
	writeFile(t, "backup.json", tasksJSON)
	res := run(t, "", "export", "backup.json", "--to", "ndjson", "--stdout", "--include-deleted",
		"--filter", "status:in:Cancelled,in-progress")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"title":"Drop"`)
	assert.NotContains(t, res.stdout, `"title":"Keep"`)
}

func TestParseBound(t *testing.T) {
	start, err := parseBound("2024-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start.UTC())

	end, err := parseBound("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), end.UTC())

	end, err = parseBound("2024-03-01T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), end.UTC())

	zero, err := parseBound("  ", true)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = parseBound("not a date at all", false)
	assert.ErrorIs(t, err, filter.ErrInvalidFilter)
}

func TestWriteExportFileAvoidsCollisions(t *testing.T) {
	prev := timeNow
	timeNow = func() time.Time { return fixedNow }
	t.Cleanup(func() { timeNow = prev })
	dir := filepath.Join(t.TempDir(), "nested")

	first, err := writeExportFile(dir, "tasks", "csv", []byte("a"))
	require.NoError(t, err)
	second, err := writeExportFile(dir, "tasks", "csv", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tasks-20240601-120000.csv"), first)
	assert.Equal(t, filepath.Join(dir, "tasks-20240601-120000-1.csv"), second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	_, err = writeExportFile(" ", "tasks", "csv", nil)
	assert.Error(t, err)
}

func TestExportBase(t *testing.T) {
	assert.Equal(t, "work-tasks", exportBase([]string{"dir/Work Tasks.csv"}))
	assert.Equal(t, "taskport", exportBase([]string{"a.csv", "b.csv"}))
	assert.Equal(t, "taskport", exportBase([]string{"-"}))
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{fmt.Errorf("open: %w", os.ErrNotExist), ExitNotFound},
		{fmt.Errorf("%w: x", errUsage), ExitUsage},
		{codec.ErrUnknownFormat, ExitUsage},
		{codec.ErrUnsupported, ExitUsage},
		{fmt.Errorf("a.json: %w", codec.ErrInvalidDocument), ExitInvalid},
		{codec.ErrEmpty, ExitInvalid},
		{codec.ErrTooLarge, ExitInvalid},
		{filter.ErrInvalidFilter, ExitInvalid},
		{config.ErrInvalid, ExitInvalid},
		{errInvalid, ExitInvalid},
		{errors.New("boom"), ExitInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCode(tc.err), fmt.Sprint(tc.err))
	}
}
