package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/amirbrooks/taskport/internal/codec"
	"github.com/amirbrooks/taskport/internal/filter"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/model"
)

type harness struct {
	engine *Engine
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T) harness {
	t.Helper()
	restore := model.SetClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })
	t.Cleanup(restore)

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	e := New(Options{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Concurrency:    2,
	})
	return harness{engine: e, spans: spans, reader: reader}
}

// counter sums the data points of the named Int64 sum.
func (h harness) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func (h harness) spanNames() []string {
	var names []string
	for _, s := range h.spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

const tasksCSV = "Title,Status,Priority,Due,Client\r\n" +
	"Write report,in progress,P1,2024-07-01,Acme\r\n" +
	",done,,,\r\n" +
	"Plan trip,,,next week,\r\n"

func TestImportPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.Import(ctx, codec.NewFile("tasks.csv", "", []byte(tasksCSV)), ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, codec.FormatCSV, res.Format)
	assert.Equal(t, []string{"Title", "Status", "Priority", "Due", "Client"}, res.Columns)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].IsValid)
	assert.False(t, res.Results[1].IsValid)
	assert.Contains(t, res.Results[1].Error, `missing required field "title"`)
	assert.Equal(t, 3, res.Results[1].Row)
	assert.Equal(t, 1, res.Invalid())
	assert.False(t, res.Placeholder)

	require.Len(t, res.Data.Tasks, 3, "invalid records are still imported without SkipInvalid")
	first := res.Data.Tasks[0]
	assert.Equal(t, model.StatusInProgress, first.Status)
	assert.Equal(t, model.PriorityHigh, first.Priority)
	assert.Equal(t, map[string]any{"client": "Acme"}, first.CustomFields)
	require.NotNil(t, first.DueDate)

	assert.Equal(t, int64(1), h.counter(t, "taskport.imports"))
	assert.Equal(t, int64(3), h.counter(t, "taskport.records"))
	assert.Equal(t, []string{"taskport.import"}, h.spanNames())
}

func TestImportSkipInvalidAndOverrides(t *testing.T) {
	h := newHarness(t)
	f := codec.NewFile("upload.bin", "", []byte(tasksCSV))

	_, err := h.engine.Import(context.Background(), f, ImportOptions{})
	require.ErrorIs(t, err, codec.ErrUnknownFormat)
	assert.Equal(t, int64(1), h.counter(t, "taskport.failures"))

	res, err := h.engine.Import(context.Background(), f, ImportOptions{Format: codec.FormatCSV, SkipInvalid: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Data.Tasks, 2)
	assert.Len(t, res.Results, 3, "results still cover every record")

	_, err = h.engine.Import(context.Background(), f, ImportOptions{Format: codec.FormatMarkdown})
	require.ErrorIs(t, err, codec.ErrUnsupported)
}

func TestImportPlaceholderSpreadsheet(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Import(context.Background(), codec.NewFile("book.xlsx", "", []byte("PK\x03\x04\x00")), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, codec.FormatSpreadsheet, res.Format)
	assert.True(t, res.Placeholder)
	require.Len(t, res.Data.Tasks, 1)
	assert.Equal(t, codec.PlaceholderTitle, res.Data.Tasks[0].Title)
}

func TestExportThroughEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	data := &model.ExportData{Tasks: []model.Task{
		{ID: "t1", Title: "Keep", Status: model.StatusPending, Priority: model.PriorityLow},
		{ID: "t2", Title: "Drop", Status: model.StatusCancelled, Priority: model.PriorityLow},
	}}
	out, err := h.engine.ExportBytes(ctx, codec.FormatNDJSON, data, codec.ExportConfig{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"title":"Keep"`)
	assert.NotContains(t, string(out), `"title":"Drop"`)

	_, err = h.engine.ExportBytes(ctx, codec.Format("pdf"), data, codec.ExportConfig{})
	require.ErrorIs(t, err, codec.ErrUnknownFormat)

	bad := codec.ExportConfig{Config: filter.Config{CustomFilters: []filter.CustomFilter{{Operator: "like", Enabled: true}}}}
	_, err = h.engine.ExportBytes(ctx, codec.FormatJSON, data, bad)
	require.ErrorIs(t, err, filter.ErrInvalidFilter)

	assert.Equal(t, int64(1), h.counter(t, "taskport.exports"))
	assert.Equal(t, int64(2), h.counter(t, "taskport.failures"))
	assert.Len(t, h.spans.Ended(), 3)
}

func TestImportAllKeepsOrderAndFailsFast(t *testing.T) {
	h := newHarness(t)
	var files []codec.File
	for i := 0; i < 5; i++ {
		doc := fmt.Sprintf("title,category\nNotebook %d,work\n", i)
		files = append(files, codec.NewFile(fmt.Sprintf("nb%d.csv", i), "", []byte(doc)))
	}
	results, err := h.engine.ImportAll(context.Background(), files, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("nb%d.csv", i), r.File)
		require.Len(t, r.Data.Notebooks, 1)
		assert.Equal(t, fmt.Sprintf("Notebook %d", i), r.Data.Notebooks[0].Title)
	}
	assert.Len(t, Merge(results).Notebooks, 5)

	files = append(files, codec.NewFile("broken.json", "", []byte(`{"title":`)))
	_, err = h.engine.ImportAll(context.Background(), files, ImportOptions{})
	require.ErrorIs(t, err, codec.ErrInvalidDocument)
	assert.True(t, strings.HasPrefix(err.Error(), "broken.json: "))
}

func TestMergeRenamesCollidingIDs(t *testing.T) {
	nbID, parent := "nb_1", "task_1"
	a := &ImportResult{Data: &model.ExportData{
		Notebooks: []model.Notebook{{ID: "nb_1", Title: "A"}},
		Tasks: []model.Task{
			{ID: "task_1", Title: "A1", NotebookID: &nbID, Subtasks: []model.Subtask{{ID: "sub_1", ParentTaskID: "task_1"}}},
		},
	}}
	b := &ImportResult{Data: &model.ExportData{
		Notebooks: []model.Notebook{{ID: "nb_1", Title: "B"}},
		Tasks: []model.Task{
			{ID: "task_1", Title: "B1", NotebookID: &nbID, Subtasks: []model.Subtask{{ID: "sub_1", ParentTaskID: "task_1"}}},
			{ID: "task_2", Title: "B2", ParentID: &parent, Subtasks: []model.Subtask{
				{ID: "sub_1", ParentTaskID: "task_2"},
				{ID: "sub_2", ParentTaskID: "task_2"},
			}},
		},
	}}

	out := Merge([]*ImportResult{a, b, nil})
	require.Len(t, out.Notebooks, 2)
	require.Len(t, out.Tasks, 3)
	renamedNB := out.Notebooks[1].ID
	renamedTask := out.Tasks[1].ID
	assert.NotEqual(t, "nb_1", renamedNB)
	assert.NotEqual(t, "task_1", renamedTask)
	assert.Equal(t, "nb_1", *out.Tasks[0].NotebookID)
	assert.Equal(t, renamedNB, *out.Tasks[1].NotebookID)
	assert.Equal(t, renamedTask, out.Tasks[1].Subtasks[0].ParentTaskID)
	assert.Equal(t, renamedTask, *out.Tasks[2].ParentID)

	subIDs := map[string]bool{}
	for _, s := range out.Subtasks() {
		assert.False(t, subIDs[s.ID], "duplicate subtask id %s", s.ID)
		subIDs[s.ID] = true
	}
	assert.Len(t, subIDs, 4)
	assert.Equal(t, "sub_1", out.Tasks[0].Subtasks[0].ID)
	assert.NotEqual(t, "sub_1", out.Tasks[1].Subtasks[0].ID)
	assert.True(t, strings.HasPrefix(out.Tasks[1].Subtasks[0].ID, model.SubtaskIDPrefix))
	assert.Equal(t, "sub_2", out.Tasks[2].Subtasks[1].ID)
	assert.Equal(t, "task_2", out.Tasks[2].Subtasks[0].ParentTaskID)

	assert.Equal(t, "task_1", b.Data.Tasks[0].Subtasks[0].ParentTaskID, "inputs are not modified")
	assert.Equal(t, "sub_1", b.Data.Tasks[0].Subtasks[0].ID)
	assert.Equal(t, "sub_1", b.Data.Tasks[1].Subtasks[0].ID)
	assert.Equal(t, "nb_1", nbID)
}

func TestDetectAndColumns(t *testing.T) {
	h := newHarness(t)
	format, err := h.engine.Detect(codec.NewFile("a.yml", "", nil))
	require.NoError(t, err)
	assert.Equal(t, codec.FormatYAML, format)

	format, cols, err := h.engine.Columns(context.Background(), codec.NewFile("a.json", "", []byte(`[{"b":1,"a":2}]`)), "")
	require.NoError(t, err)
	assert.Equal(t, codec.FormatJSON, format)
	assert.Equal(t, []string{"a", "b"}, cols)
}

func TestMappingsAreCached(t *testing.T) {
	h := newHarness(t)
	cols := []string{"Title", "Due"}
	first := h.engine.Mappings(cols)
	require.Len(t, first, 2)
	assert.Equal(t, "dueDate", first[1].TargetField)
	first[0].TargetField = "mutated"
	assert.Equal(t, "title", h.engine.Mappings(cols)[0].TargetField)
	assert.Equal(t, 1, h.engine.generator.Len())
}

func TestImportOverrides(t *testing.T) {
	h := newHarness(t)
	f := codec.NewFile("tasks.csv", "", []byte(tasksCSV))
	res, err := h.engine.Import(context.Background(), f, ImportOptions{
		Overrides:   map[string]string{"Client": "assignee"},
		SkipInvalid: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Data.Tasks)
	require.NotNil(t, res.Data.Tasks[0].Assignee)
	assert.Equal(t, "Acme", *res.Data.Tasks[0].Assignee)
	assert.Empty(t, res.Data.Tasks[0].CustomFields)

	_, err = h.engine.Import(context.Background(), f, ImportOptions{Overrides: map[string]string{"Missing": "title"}})
	require.ErrorIs(t, err, mapping.ErrOverride)
}
