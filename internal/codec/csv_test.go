package codec

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/taskport/internal/filter"
)

func TestCSVQuotesOnlyWhenNeeded(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`Hello, "World"`, `"Hello, ""World"""`},
		{"two\nlines", "\"two\nlines\""},
		{"cr\ronly", "\"cr\ronly\""},
		{"semi;colon", "semi;colon"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quoteField(tt.in, ','), tt.in)
	}
	assert.Equal(t, `"semi;colon"`, quoteField("semi;colon", ';'))
}

func TestCSVExportLayout(t *testing.T) {
	fixedClock(t)
	b, err := ExportBytes(context.Background(), NewCSV(), sampleData(), everything())
	require.NoError(t, err)
	s := string(b)

	assert.True(t, strings.HasPrefix(s, "# Notebooks\r\nid,title,description,content,category,"))
	assert.Contains(t, s, "\r\n\r\n# Tasks\r\n")
	assert.Contains(t, s, "\r\n\r\n# Subtasks\r\nid,parentTaskId,title,completed,createdAt,updatedAt\r\n")
	assert.Contains(t, s, ",customFields.owner\r\n")
	assert.Contains(t, s, `task_a,"Hello, ""World""","multi`+"\n"+`line",n,in_progress,urgent,job,nb_work,,ana,2.5,1,2024-07-01T00:00:00Z,`)
	assert.Contains(t, s, "sub_1,task_a,Draft,true,2024-02-01T09:00:00Z,2024-02-01T09:00:00Z\r\n")
	assert.Contains(t, s, "job; q2")
	assert.NotContains(t, s, "# Metadata")
}

func TestCSVRoundTrip(t *testing.T) {
	fixedClock(t)
	c := NewCSV()
	b, err := ExportBytes(context.Background(), c, sampleData(), everything())
	require.NoError(t, err)

	back := reimport(t, c, "export.csv", b)
	assert.Equal(t, sampleData().Notebooks, back.Notebooks)
	assert.Equal(t, sampleData().Tasks, back.Tasks)
}

func TestCSVMetadataSectionIsSkippedOnImport(t *testing.T) {
	fixedClock(t)
	cfg := ExportConfig{Config: filter.Config{IncludeMetadata: true, IncludeDeleted: true}}
	b, err := ExportBytes(context.Background(), NewCSV(), sampleData(), cfg)
	require.NoError(t, err)
	s := string(b)
	assert.True(t, strings.HasPrefix(s, "# Metadata\r\nkey,value\r\nversion,1.0\r\nformat,csv\r\n"))
	assert.Contains(t, s, "exportedAt,2024-06-01T12:00:00Z\r\nsource,taskport\r\n")

	back := reimport(t, NewCSV(), "export.csv", b)
	assert.Equal(t, sampleData().Counts(), back.Counts())
}

func TestCSVParsePlainSheet(t *testing.T) {
	doc := "\ufeffTitle,Status,Due\r\nBuy milk,done,2024-03-01\r\n\r\n,,\r\n\"Call\r\nmom\",,\r\nshort\r\n"
	recs, err := NewCSV().Parse(context.Background(), NewFile("todo.csv", "", []byte(doc)))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "", recs[0].Type)
	assert.Equal(t, []string{"Title", "Status", "Due"}, recs[0].Columns)
	assert.Equal(t, "Buy milk", recs[0].Fields["Title"])
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, "Call\r\nmom", recs[1].Fields["Title"])
	assert.Equal(t, 5, recs[1].Line)
	assert.Equal(t, 7, recs[2].Line)
	_, hasStatus := recs[2].Fields["Status"]
	assert.False(t, hasStatus, "short rows leave trailing columns absent")

	data, issues := NewCSV().Transform(recs, nil)
	assert.Empty(t, issues)
	require.Len(t, data.Tasks, 3)
	assert.Equal(t, "completed", string(data.Tasks[0].Status))
}

func TestCSVParseTabSeparated(t *testing.T) {
	doc := "title\ttags\nA\tx, y\n"
	recs, err := NewCSV().Parse(context.Background(), NewFile("list.tsv", "", []byte(doc)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "x, y", recs[0].Fields["tags"])
}

func TestCSVParseErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewCSV().Parse(ctx, NewFile("a.csv", "", []byte("a,b\r\n\"x,1\r\n")))
	require.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "starting on line 2")
	assert.Contains(t, err.Error(), "CSV parsing failed")

	_, err = NewCSV().Parse(ctx, NewFile("a.csv", "", []byte(",,\r\n,,\r\n")))
	require.ErrorIs(t, err, ErrInvalidDocument)

	_, err = NewCSV().Parse(ctx, NewFile("a.csv", "", []byte("\r\n\r\n")))
	require.ErrorIs(t, err, ErrEmpty)
}

func TestCSVSectionMarkersTagRecords(t *testing.T) {
	doc := strings.Join([]string{
		"# Projects", "name", "Home", "",
		"# Todos", "name,project", "Paint,Home", "",
		"# Steps", "title,parentTaskId", "Buy paint,t1",
	}, "\n")
	recs, err := NewCSV().Parse(context.Background(), NewFile("a.csv", "", []byte(doc)))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "notebook", recs[0].Type)
	assert.Equal(t, "task", recs[1].Type)
	assert.Equal(t, "subtask", recs[2].Type)
}

func TestHeaderNamesAndDelimiterSniffing(t *testing.T) {
	assert.Equal(t, []string{"tags", "column_2", "tags_2"}, headerNames([]string{" tags ", "", "tags"}))

	d, ok := sniffDelimiter("\n a;b;c\n1,2,3")
	assert.True(t, ok)
	assert.Equal(t, ';', d)

	d, ok = sniffDelimiter(`"a,b,c";d;e` + "\n")
	assert.True(t, ok)
	assert.Equal(t, ';', d)

	d, ok = sniffDelimiter("a\tb")
	assert.True(t, ok)
	assert.Equal(t, '\t', d)

	_, ok = sniffDelimiter("just words")
	assert.False(t, ok)
}

func TestCSVDetectColumnsUsesEverySection(t *testing.T) {
	doc := "# Notebooks\nid,title\nn1,A\n\n# Tasks\nid,title,status\nt1,B,done\n"
	cols, err := NewCSV().DetectColumns(context.Background(), NewFile("a.csv", "", []byte(doc)))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "status"}, cols)
}
