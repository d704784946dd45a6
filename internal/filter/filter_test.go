package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/taskport/internal/model"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func fixture() *model.ExportData {
	return &model.ExportData{
		Metadata: &model.Metadata{Version: "1.0"},
		Notebooks: []model.Notebook{
			{ID: "nb_work", Title: "Work", Category: "work", CreatedAt: date(1, 10)},
			{ID: "nb_old", Title: "Old work", Category: "work", IsArchived: true, CreatedAt: date(1, 12)},
			{ID: "nb_home", Title: "Home", Category: "personal", CreatedAt: date(3, 1)},
		},
		Tasks: []model.Task{
			{ID: "t1", Title: "Write report", Status: model.StatusPending, Priority: model.PriorityHigh, Tags: []string{"Work", "q1"},
				EstimatedHours: ptr(3.0), CreatedAt: date(1, 5), CustomFields: map[string]any{"client": "Acme"}},
			{ID: "t2", Title: "Old report", Status: model.StatusCancelled, Priority: model.PriorityHigh, Tags: []string{"work"}, CreatedAt: date(1, 6)},
			{ID: "t3", Title: "Groceries", Status: model.StatusCompleted, Priority: model.PriorityLow, EstimatedHours: ptr(8.0), CreatedAt: date(2, 20)},
			{ID: "t4", Title: "Taxes", Status: model.StatusPending, Priority: model.PriorityUrgent, CreatedAt: date(4, 1)},
		},
	}
}

func ids[T any](items []T, id func(T) string) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func taskIDs(d *model.ExportData) []string {
	return ids(d.Tasks, func(t model.Task) string { return t.ID })
}

func notebookIDs(d *model.ExportData) []string {
	return ids(d.Notebooks, func(nb model.Notebook) string { return nb.ID })
}

func TestApplyDefaultsStripMetadataAndDeleted(t *testing.T) {
	in := fixture()
	out := Apply(in, Config{})
	assert.Nil(t, out.Metadata)
	assert.Equal(t, []string{"nb_work", "nb_home"}, notebookIDs(out))
	assert.Equal(t, []string{"t1", "t3", "t4"}, taskIDs(out))

	assert.NotNil(t, in.Metadata, "input must not be mutated")
	assert.Len(t, in.Tasks, 4)

	out = Apply(in, Config{IncludeMetadata: true, IncludeDeleted: true})
	assert.NotNil(t, out.Metadata)
	assert.Len(t, out.Tasks, 4)
	assert.Len(t, out.Notebooks, 3)
}

func TestApplyExclusionBeatsCustomFilters(t *testing.T) {
	cfg := Config{CustomFilters: []CustomFilter{
		{Field: "title", Operator: OpContains, Value: "old", Enabled: true},
	}}
	out := Apply(fixture(), cfg)
	assert.Empty(t, out.Notebooks, "archived notebook stays out even though the filter selects it")
	assert.Empty(t, out.Tasks, "cancelled task stays out even though the filter selects it")

	cfg.IncludeDeleted = true
	out = Apply(fixture(), cfg)
	assert.Equal(t, []string{"nb_old"}, notebookIDs(out))
	assert.Equal(t, []string{"t2"}, taskIDs(out))
}

func TestApplyDateRangeIsInclusiveAndCannotBeWidened(t *testing.T) {
	cfg := Config{
		DateRange:      DateRange{Start: date(1, 5), End: date(1, 10)},
		IncludeDeleted: true,
	}
	out := Apply(fixture(), cfg)
	assert.Equal(t, []string{"nb_work"}, notebookIDs(out))
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(out))

	cfg.DateRange = DateRange{Start: date(3, 1)}
	out = Apply(fixture(), cfg)
	assert.Equal(t, []string{"nb_home"}, notebookIDs(out))
	assert.Equal(t, []string{"t4"}, taskIDs(out))
}

func TestCustomFilterOperators(t *testing.T) {
	tests := []struct {
		name   string
		filter CustomFilter
		want   []string
	}{
		{"equals string", CustomFilter{Field: "status", Operator: OpEquals, Value: "pending"}, []string{"t1", "t4"}},
		{"equals number", CustomFilter{Field: "estimatedHours", Operator: OpEquals, Value: "3"}, []string{"t1"}},
		{"contains array member", CustomFilter{Field: "tags", Operator: OpContains, Value: "work"}, []string{"t1", "t2"}},
		{"contains substring", CustomFilter{Field: "title", Operator: OpContains, Value: "REPORT"}, []string{"t1", "t2"}},
		{"startsWith", CustomFilter{Field: "title", Operator: OpStartsWith, Value: "gro"}, []string{"t3"}},
		{"in", CustomFilter{Field: "priority", Operator: OpIn, Value: []any{"urgent", "low"}}, []string{"t3", "t4"}},
		{"between numbers", CustomFilter{Field: "estimatedHours", Operator: OpBetween, Value: []any{2, 8}}, []string{"t1", "t3"}},
		{"between dates", CustomFilter{Field: "createdAt", Operator: OpBetween, Value: []any{"2024-01-06", "2024-02-20"}}, []string{"t2", "t3"}},
		{"dotted path", CustomFilter{Field: "customFields.client", Operator: OpEquals, Value: "Acme"}, []string{"t1"}},
		{"missing field fails", CustomFilter{Field: "assignee", Operator: OpEquals, Value: "x"}, []string{}},
		{"disabled is ignored", CustomFilter{Field: "title", Operator: OpEquals, Value: "nothing"}, []string{"t1", "t2", "t3", "t4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.Target = "tasks"
			f.Enabled = tt.name != "disabled is ignored"
			out := Apply(fixture(), Config{CustomFilters: []CustomFilter{f}, IncludeDeleted: true})
			assert.Equal(t, tt.want, taskIDs(out))
			assert.Len(t, out.Notebooks, 3, "task-targeted filters leave notebooks alone")
		})
	}
}

func TestConfigValidateAndDescribe(t *testing.T) {
	bad := Config{CustomFilters: []CustomFilter{{Field: "title", Operator: "like", Enabled: true}}}
	require.ErrorIs(t, bad.Validate(), ErrInvalidFilter)

	bad = Config{CustomFilters: []CustomFilter{{Field: "x", Operator: OpBetween, Value: "1", Enabled: true}}}
	require.ErrorIs(t, bad.Validate(), ErrInvalidFilter)

	off := Config{CustomFilters: []CustomFilter{{Operator: "like"}}}
	require.NoError(t, off.Validate(), "disabled filters are not checked")

	cfg := Config{
		DateRange:     DateRange{Start: date(1, 1)},
		CustomFilters: []CustomFilter{{Field: "status", Operator: OpEquals, Value: "pending", Enabled: true}},
	}
	d := cfg.Describe()
	assert.Equal(t, false, d["includeDeleted"])
	assert.Equal(t, map[string]any{"start": "2024-01-01T00:00:00Z"}, d["dateRange"])
	assert.Len(t, d["customFilters"], 1)
}
