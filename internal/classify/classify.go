// Package classify resolves mapped records into typed notebook, task and subtask
// candidates and assembles them into an ExportData.
package classify

import (
	"sort"
	"strings"
	"time"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/model"
)

type Kind int

const (
	KindTask Kind = iota
	KindNotebook
	KindSubtask
)

func (k Kind) String() string {
	switch k {
	case KindNotebook:
		return model.TypeNotebook
	case KindSubtask:
		return model.TypeSubtask
	default:
		return model.TypeTask
	}
}

var (
	notebookFields = []string{"content", "category", "collaborators"}
	taskFields     = []string{"status", "priority", "assignee", "dueDate"}
)

// Classify labels an untyped mapped record. Any task discriminator (status, priority,
// assignee, dueDate) makes it a task. Otherwise any of content, category or
// collaborators makes it a notebook. Records matching neither set are tasks.
//
// Only fields supplied by the source count; values filled in from defaults do not.
func Classify(m mapping.Mapped) Kind {
	if hasAny(m, taskFields) {
		return KindTask
	}
	if hasAny(m, notebookFields) {
		return KindNotebook
	}
	return KindTask
}

func hasAny(m mapping.Mapped, fields []string) bool {
	for _, f := range fields {
		if m.Present(f) {
			return true
		}
	}
	return false
}

// ParseTag maps an explicit source tag onto a Kind. ok is false for unknown tags.
func ParseTag(tag string) (Kind, bool) {
	switch coerce.MatchKey(tag) {
	case "notebook", "notebooks", "note", "notes", "project", "projects":
		return KindNotebook, true
	case "task", "tasks", "todo", "todos", "item", "items":
		return KindTask, true
	case "subtask", "subtasks", "checklist", "checklistitem", "step", "steps":
		return KindSubtask, true
	}
	return KindTask, false
}

// Candidate is a classified record: exactly one of Notebook, Task or Subtask is set,
// matching Kind.
type Candidate struct {
	Kind     Kind
	Line     int
	Notebook *model.Notebook
	Task     *model.Task
	Subtask  *model.Subtask
}

// Resolve classifies m and builds the typed value. An explicit tag (the record's Type or
// a mapped "type" field) overrides the heuristic; a "parentTaskId" marks a subtask.
func Resolve(m mapping.Mapped, tag string, line int) Candidate {
	kind, tagged := ParseTag(tag)
	if !tagged {
		if v, ok := m.Get("type"); ok {
			kind, tagged = ParseTag(coerce.String(v))
		}
	}
	if !tagged {
		if m.Present("parentTaskId") {
			kind = KindSubtask
		} else {
			kind = Classify(m)
		}
	}

	c := Candidate{Kind: kind, Line: line}
	switch kind {
	case KindNotebook:
		c.Notebook = buildNotebook(m)
	case KindSubtask:
		c.Subtask = buildSubtask(m.Values)
	default:
		c.Task = buildTask(m)
	}
	return c
}

func buildNotebook(m mapping.Mapped) *model.Notebook {
	v := m.Values
	nb := &model.Notebook{
		ID:            ident(v, "id"),
		Title:         text(v, "title"),
		Description:   text(v, "description"),
		Content:       text(v, "content"),
		Tags:          list(v, "tags"),
		Color:         ident(v, "color"),
		Category:      ident(v, "category"),
		IsFavorite:    boolean(v, "isFavorite"),
		IsArchived:    boolean(v, "isArchived"),
		TaskCount:     int(number(v, "taskCount")),
		Collaborators: list(v, "collaborators"),
		CreatedAt:     timestamp(v, "createdAt"),
		UpdatedAt:     timestamp(v, "updatedAt"),
		CustomFields:  customFields(m),
	}
	return nb
}

func buildTask(m mapping.Mapped) *model.Task {
	v := m.Values
	t := &model.Task{
		ID:             ident(v, "id"),
		Title:          text(v, "title"),
		Description:    text(v, "description"),
		Notes:          text(v, "notes"),
		Status:         coerce.NormalizeStatus(v["status"]),
		Priority:       coerce.NormalizePriority(v["priority"]),
		Tags:           list(v, "tags"),
		NotebookID:     identPtr(v, "notebookId"),
		ParentID:       identPtr(v, "parentId"),
		Assignee:       identPtr(v, "assignee"),
		EstimatedHours: numberPtr(v, "estimatedHours"),
		ActualHours:    numberPtr(v, "actualHours"),
		DueDate:        timestampPtr(v, "dueDate"),
		CompletedAt:    timestampPtr(v, "completedAt"),
		CreatedAt:      timestamp(v, "createdAt"),
		UpdatedAt:      timestamp(v, "updatedAt"),
		CustomFields:   customFields(m),
	}
	if !m.Present("status") && boolean(v, "completed") {
		t.Status = model.StatusCompleted
	}
	if raw, ok := v["subtasks"].([]map[string]any); ok {
		for _, fields := range raw {
			t.Subtasks = append(t.Subtasks, *buildSubtask(subtaskFields(fields)))
		}
	}
	return t
}

// subtaskFields maps a nested subtask object with the same rule catalog used for
// columns, so {"Title": ..., "done": "yes"} works as well as our own export shape.
func subtaskFields(raw map[string]any) map[string]any {
	cols := make([]string, 0, len(raw))
	for k := range raw {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	mapped, _ := mapping.Apply(raw, mapping.Generate(cols))
	return mapped.Values
}

func buildSubtask(v map[string]any) *model.Subtask {
	return &model.Subtask{
		ID:           ident(v, "id"),
		ParentTaskID: ident(v, "parentTaskId"),
		Title:        text(v, "title"),
		Completed:    boolean(v, "completed"),
		CreatedAt:    timestamp(v, "createdAt"),
		UpdatedAt:    timestamp(v, "updatedAt"),
	}
}

func customFields(m mapping.Mapped) map[string]any {
	out := m.Custom()
	if obj, ok := m.Values["customFields"].(map[string]any); ok {
		if out == nil {
			out = make(map[string]any, len(obj))
		}
		for k, val := range obj {
			if _, exists := out[k]; !exists {
				out[k] = val
			}
		}
	}
	return out
}

// text returns free text verbatim.
func text(v map[string]any, key string) string {
	return coerce.String(v[key])
}

// ident returns an identifier-like value trimmed.
func ident(v map[string]any, key string) string {
	return strings.TrimSpace(coerce.String(v[key]))
}

func identPtr(v map[string]any, key string) *string {
	s := ident(v, key)
	if s == "" {
		return nil
	}
	return &s
}

func list(v map[string]any, key string) []string {
	switch x := v[key].(type) {
	case []string:
		return x
	case nil:
		return nil
	default:
		return coerce.ParseList(x)
	}
}

func boolean(v map[string]any, key string) bool {
	b, _ := v[key].(bool)
	return b
}

func number(v map[string]any, key string) float64 {
	f, _ := v[key].(float64)
	return f
}

func numberPtr(v map[string]any, key string) *float64 {
	f, ok := v[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

func timestamp(v map[string]any, key string) time.Time {
	t, _ := v[key].(time.Time)
	return t
}

func timestampPtr(v map[string]any, key string) *time.Time {
	t, ok := v[key].(time.Time)
	if !ok || t.IsZero() {
		return nil
	}
	return &t
}
