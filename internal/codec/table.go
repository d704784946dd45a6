package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/model"
)

// ColumnKind is the semantic type of a tabular column, decided once per column.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindNumber
	KindDate
	KindBoolean
)

func (k ColumnKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindBoolean:
		return "boolean"
	default:
		return "string"
	}
}

type Column struct {
	Name string
	Kind ColumnKind
}

// table is one entity collection flattened into rows. Cell values are nil, string,
// float64, int, bool or time.Time.
type table struct {
	Title   string
	Columns []Column
	Rows    [][]any
}

// listSeparator joins list fields into one cell. Import splits on any list separator.
const listSeparator = "; "

// customPrefix heads custom field columns so the mapping rules route them back into
// customFields on import.
const customPrefix = "customFields."

var notebookColumns = []Column{
	{"id", KindString}, {"title", KindString}, {"description", KindString}, {"content", KindString},
	{"category", KindString}, {"color", KindString}, {"tags", KindString}, {"collaborators", KindString},
	{"isFavorite", KindBoolean}, {"isArchived", KindBoolean}, {"taskCount", KindNumber},
	{"createdAt", KindDate}, {"updatedAt", KindDate},
}

var taskColumns = []Column{
	{"id", KindString}, {"title", KindString}, {"description", KindString}, {"notes", KindString},
	{"status", KindString}, {"priority", KindString}, {"tags", KindString}, {"notebookId", KindString},
	{"parentId", KindString}, {"assignee", KindString}, {"estimatedHours", KindNumber},
	{"actualHours", KindNumber}, {"dueDate", KindDate}, {"completedAt", KindDate},
	{"createdAt", KindDate}, {"updatedAt", KindDate},
}

var subtaskColumns = []Column{
	{"id", KindString}, {"parentTaskId", KindString}, {"title", KindString},
	{"completed", KindBoolean}, {"createdAt", KindDate}, {"updatedAt", KindDate},
}

func notebookTable(items []model.Notebook) table {
	keys := customKeys(len(items), func(i int) map[string]any { return items[i].CustomFields })
	t := table{Title: "Notebooks", Columns: withCustom(notebookColumns, keys)}
	for _, nb := range items {
		r := []any{
			nb.ID, nb.Title, nb.Description, nb.Content,
			nb.Category, nb.Color, joinList(nb.Tags), joinList(nb.Collaborators),
			nb.IsFavorite, nb.IsArchived, nb.TaskCount,
			nb.CreatedAt, nb.UpdatedAt,
		}
		t.Rows = append(t.Rows, append(r, customCells(nb.CustomFields, keys)...))
	}
	return t
}

func taskTable(items []model.Task) table {
	keys := customKeys(len(items), func(i int) map[string]any { return items[i].CustomFields })
	t := table{Title: "Tasks", Columns: withCustom(taskColumns, keys)}
	for _, task := range items {
		r := []any{
			task.ID, task.Title, task.Description, task.Notes,
			string(task.Status), string(task.Priority), joinList(task.Tags), optString(task.NotebookID),
			optString(task.ParentID), optString(task.Assignee), optNumber(task.EstimatedHours),
			optNumber(task.ActualHours), optTime(task.DueDate), optTime(task.CompletedAt),
			task.CreatedAt, task.UpdatedAt,
		}
		t.Rows = append(t.Rows, append(r, customCells(task.CustomFields, keys)...))
	}
	return t
}

// subtaskTable flattens every task's subtasks. Each row's parentTaskId is its owning
// task's ID, whatever the subtask itself claims.
func subtaskTable(tasks []model.Task) table {
	t := table{Title: "Subtasks", Columns: subtaskColumns}
	for _, task := range tasks {
		for _, s := range task.Subtasks {
			t.Rows = append(t.Rows, []any{s.ID, task.ID, s.Title, s.Completed, s.CreatedAt, s.UpdatedAt})
		}
	}
	return t
}

func customKeys(n int, at func(int) map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for i := 0; i < n; i++ {
		for k := range at(i) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func withCustom(base []Column, keys []string) []Column {
	cols := append([]Column(nil), base...)
	for _, k := range keys {
		cols = append(cols, Column{Name: customPrefix + k, Kind: KindString})
	}
	return cols
}

func customCells(m map[string]any, keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		out[i] = scalarText(v)
	}
	return out
}

// scalarText renders a custom value; structured values become JSON.
func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any, []any, []string:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return cellText(v)
}

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optNumber(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optTime(p *time.Time) any {
	if p == nil || p.IsZero() {
		return nil
	}
	return *p
}

// cellText is the delimited-text rendering of a cell.
func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return coerce.FormatISO(x)
	}
	return coerce.String(v)
}
