package classify

import (
	"fmt"
	"time"

	"github.com/amirbrooks/taskport/internal/model"
)

// Issue is a non-fatal problem found while assembling candidates.
type Issue struct {
	Line    int
	Message string
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return i.Message
}

// Assemble turns candidates into an ExportData.
//
// Missing IDs are synthesized and colliding IDs are replaced, each collection checked on
// its own. Missing createdAt becomes now and missing updatedAt copies createdAt.
// Notebooks without a category get model.DefaultCategory and tasks with an invalid status
// or priority get the enum default. Standalone subtask candidates attach to the task
// named by their parentTaskId; orphans are dropped. Every subtask's parentTaskId is
// rewritten to its owning task's final ID.
func Assemble(cands []Candidate) (*model.ExportData, []Issue) {
	a := assembler{
		now:         model.Now(),
		notebookIDs: map[string]bool{},
		taskIDs:     map[string]bool{},
		subtaskIDs:  map[string]bool{},
	}
	out := &model.ExportData{Notebooks: []model.Notebook{}, Tasks: []model.Task{}}

	var loose []Candidate
	taskIndex := map[string]int{}
	for _, c := range cands {
		switch c.Kind {
		case KindNotebook:
			if c.Notebook == nil {
				continue
			}
			out.Notebooks = append(out.Notebooks, a.notebook(*c.Notebook, c.Line))
		case KindSubtask:
			if c.Subtask != nil {
				loose = append(loose, c)
			}
		default:
			if c.Task == nil {
				continue
			}
			original := c.Task.ID
			t := a.task(*c.Task, c.Line)
			if original != "" {
				if _, seen := taskIndex[original]; !seen {
					taskIndex[original] = len(out.Tasks)
				}
			}
			taskIndex[t.ID] = len(out.Tasks)
			out.Tasks = append(out.Tasks, t)
		}
	}

	for _, c := range loose {
		idx, ok := taskIndex[c.Subtask.ParentTaskID]
		if !ok {
			a.warn(c.Line, fmt.Sprintf("subtask %q has no parent task %q, dropped", c.Subtask.Title, c.Subtask.ParentTaskID))
			continue
		}
		t := &out.Tasks[idx]
		t.Subtasks = append(t.Subtasks, a.subtask(*c.Subtask, t.ID, c.Line))
	}
	return out, a.issues
}

type assembler struct {
	now         time.Time
	notebookIDs map[string]bool
	taskIDs     map[string]bool
	subtaskIDs  map[string]bool
	issues      []Issue
}

func (a *assembler) warn(line int, msg string) {
	a.issues = append(a.issues, Issue{Line: line, Message: msg})
}

// uniqueID returns id, or a fresh one when id is empty or already used.
func (a *assembler) uniqueID(seen map[string]bool, id, prefix string, line int) string {
	if id != "" && seen[id] {
		fresh := model.NewID(prefix)
		a.warn(line, fmt.Sprintf("duplicate id %q replaced with %q", id, fresh))
		id = fresh
	}
	if id == "" {
		id = model.NewID(prefix)
	}
	seen[id] = true
	return id
}

func (a *assembler) stamp(created, updated *time.Time) {
	if created.IsZero() {
		*created = a.now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

func (a *assembler) notebook(nb model.Notebook, line int) model.Notebook {
	nb.ID = a.uniqueID(a.notebookIDs, nb.ID, model.NotebookIDPrefix, line)
	if nb.Category == "" {
		nb.Category = model.DefaultCategory
	}
	if nb.Tags == nil {
		nb.Tags = []string{}
	}
	if nb.Collaborators == nil {
		nb.Collaborators = []string{}
	}
	a.stamp(&nb.CreatedAt, &nb.UpdatedAt)
	return nb
}

func (a *assembler) task(t model.Task, line int) model.Task {
	t.ID = a.uniqueID(a.taskIDs, t.ID, model.TaskIDPrefix, line)
	if !t.Status.IsValid() {
		t.Status = model.StatusPending
	}
	if !t.Priority.IsValid() {
		t.Priority = model.PriorityMedium
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	a.stamp(&t.CreatedAt, &t.UpdatedAt)
	nested := t.Subtasks
	t.Subtasks = make([]model.Subtask, 0, len(nested))
	for _, s := range nested {
		t.Subtasks = append(t.Subtasks, a.subtask(s, t.ID, line))
	}
	return t
}

func (a *assembler) subtask(s model.Subtask, parentID string, line int) model.Subtask {
	s.ID = a.uniqueID(a.subtaskIDs, s.ID, model.SubtaskIDPrefix, line)
	s.ParentTaskID = parentID
	a.stamp(&s.CreatedAt, &s.UpdatedAt)
	return s
}
