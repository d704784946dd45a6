package model

// Record is one raw row produced by an importer, before any mapping or coercion.
type Record struct {
	// Type is the explicit tag carried by the source ("notebook", "task", "subtask"),
	// or "" when the record is untyped and the classifier has to decide.
	Type   string
	Fields map[string]any
	// Columns is the source's own key order when it has one (a header row). Decoded
	// documents leave it nil and callers fall back to sorted keys.
	Columns []string
	// Line is the 1-based source position, 0 when the format has no lines.
	Line int
}

// Record type tags.
const (
	TypeNotebook = "notebook"
	TypeTask     = "task"
	TypeSubtask  = "subtask"
)
