// Package model holds the canonical notebook/task types shared by every codec.
package model

import (
	"time"
)

// Status is the closed set of task states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
)

// Statuses lists every status in declaration order. Reports group by this order.
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusBlocked, StatusReview}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusBlocked, StatusReview:
		return true
	}
	return false
}

// Label is the human form used by narrative output ("In Progress").
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusBlocked:
		return "Blocked"
	case StatusReview:
		return "Review"
	default:
		return string(s)
	}
}

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists priorities from most to least pressing.
func Priorities() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}
}

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities: urgent=4 > high=3 > medium=2 > low=1. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	default:
		return string(p)
	}
}

// DefaultCategory is assigned to notebooks imported without a category.
const DefaultCategory = "personal"

type Notebook struct {
	ID            string         `yaml:"id" json:"id"`
	Title         string         `yaml:"title" json:"title"`
	Description   string         `yaml:"description" json:"description"`
	Content       string         `yaml:"content" json:"content"`
	Tags          []string       `yaml:"tags" json:"tags"`
	Color         string         `yaml:"color" json:"color"`
	Category      string         `yaml:"category" json:"category"`
	IsFavorite    bool           `yaml:"isFavorite" json:"isFavorite"`
	IsArchived    bool           `yaml:"isArchived" json:"isArchived"`
	TaskCount     int            `yaml:"taskCount" json:"taskCount"`
	Collaborators []string       `yaml:"collaborators" json:"collaborators"`
	CreatedAt     time.Time      `yaml:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `yaml:"updatedAt" json:"updatedAt"`
	CustomFields  map[string]any `yaml:"customFields,omitempty" json:"customFields,omitempty"`
}

type Task struct {
	ID             string         `yaml:"id" json:"id"`
	Title          string         `yaml:"title" json:"title"`
	Description    string         `yaml:"description" json:"description"`
	Notes          string         `yaml:"notes" json:"notes"`
	Status         Status         `yaml:"status" json:"status"`
	Priority       Priority       `yaml:"priority" json:"priority"`
	Tags           []string       `yaml:"tags" json:"tags"`
	NotebookID     *string        `yaml:"notebookId" json:"notebookId"`
	ParentID       *string        `yaml:"parentId" json:"parentId"`
	Assignee       *string        `yaml:"assignee" json:"assignee"`
	EstimatedHours *float64       `yaml:"estimatedHours" json:"estimatedHours"`
	ActualHours    *float64       `yaml:"actualHours" json:"actualHours"`
	DueDate        *time.Time     `yaml:"dueDate" json:"dueDate"`
	CompletedAt    *time.Time     `yaml:"completedAt" json:"completedAt"`
	CreatedAt      time.Time      `yaml:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `yaml:"updatedAt" json:"updatedAt"`
	Subtasks       []Subtask      `yaml:"subtasks" json:"subtasks"`
	CustomFields   map[string]any `yaml:"customFields,omitempty" json:"customFields,omitempty"`
}

type Subtask struct {
	ID           string    `yaml:"id" json:"id"`
	ParentTaskID string    `yaml:"parentTaskId" json:"parentTaskId"`
	Title        string    `yaml:"title" json:"title"`
	Completed    bool      `yaml:"completed" json:"completed"`
	CreatedAt    time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `yaml:"updatedAt" json:"updatedAt"`
}

// IsActive reports whether the task still needs work.
func (t *Task) IsActive() bool {
	return t.Status != StatusCompleted && t.Status != StatusCancelled
}

// ItemCounts is the per-collection tally recorded in export metadata.
type ItemCounts struct {
	Notebooks int `yaml:"notebooks" json:"notebooks"`
	Tasks     int `yaml:"tasks" json:"tasks"`
	Subtasks  int `yaml:"subtasks" json:"subtasks"`
}

type Metadata struct {
	Version    string         `yaml:"version" json:"version"`
	Format     string         `yaml:"format" json:"format"`
	ExportedAt time.Time      `yaml:"exportedAt" json:"exportedAt"`
	Source     string         `yaml:"source" json:"source"`
	ItemCounts ItemCounts     `yaml:"itemCounts" json:"itemCounts"`
	Filters    map[string]any `yaml:"filters" json:"filters"`
}

// ExportData is the transient container handed to and returned from codecs.
type ExportData struct {
	Metadata  *Metadata  `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Notebooks []Notebook `yaml:"notebooks" json:"notebooks"`
	Tasks     []Task     `yaml:"tasks" json:"tasks"`
}

// Counts tallies the collections, including subtasks nested under tasks.
func (d *ExportData) Counts() ItemCounts {
	if d == nil {
		return ItemCounts{}
	}
	c := ItemCounts{Notebooks: len(d.Notebooks), Tasks: len(d.Tasks)}
	for i := range d.Tasks {
		c.Subtasks += len(d.Tasks[i].Subtasks)
	}
	return c
}

// Subtasks flattens every task's subtasks into one slice, in task order.
func (d *ExportData) Subtasks() []Subtask {
	if d == nil {
		return nil
	}
	var out []Subtask
	for i := range d.Tasks {
		out = append(out, d.Tasks[i].Subtasks...)
	}
	return out
}

// IsEmpty reports whether there is nothing to export.
func (d *ExportData) IsEmpty() bool {
	return d == nil || (len(d.Notebooks) == 0 && len(d.Tasks) == 0)
}

// Clone copies the collections so filters can narrow them without touching the input.
// Nested slices and maps are shared.
func (d *ExportData) Clone() *ExportData {
	if d == nil {
		return &ExportData{}
	}
	out := &ExportData{
		Notebooks: append([]Notebook(nil), d.Notebooks...),
		Tasks:     append([]Task(nil), d.Tasks...),
	}
	if d.Metadata != nil {
		m := *d.Metadata
		out.Metadata = &m
	}
	return out
}
