package codec

import (
	"github.com/amirbrooks/taskport/internal/model"
)

// Sheet is one worksheet ready for serialization. Rows include the header row; the
// index lists are the style metadata the writer dispatches on.
type Sheet struct {
	Name          string
	Kinds         []ColumnKind
	Rows          [][]any
	HeaderRows    []int
	DateColumns   []int
	NumberColumns []int
}

// IsHeader reports whether row i is a header row.
func (s Sheet) IsHeader(i int) bool {
	for _, h := range s.HeaderRows {
		if h == i {
			return true
		}
	}
	return false
}

func sheetFromTable(t table) Sheet {
	s := Sheet{Name: t.Title, HeaderRows: []int{0}}
	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Name
		s.Kinds = append(s.Kinds, col.Kind)
		switch col.Kind {
		case KindDate:
			s.DateColumns = append(s.DateColumns, i)
		case KindNumber:
			s.NumberColumns = append(s.NumberColumns, i)
		}
	}
	s.Rows = append(s.Rows, header)
	s.Rows = append(s.Rows, t.Rows...)
	return s
}

// BuildSheets lays data out as Summary, Notebooks, Tasks and Subtasks sheets.
func BuildSheets(data *model.ExportData) []Sheet {
	return []Sheet{
		summarySheet(data),
		sheetFromTable(notebookTable(data.Notebooks)),
		sheetFromTable(taskTable(data.Tasks)),
		sheetFromTable(subtaskTable(data.Tasks)),
	}
}

func summarySheet(data *model.ExportData) Sheet {
	counts := data.Counts()
	t := table{
		Title:   "Summary",
		Columns: []Column{{"Metric", KindString}, {"Value", KindNumber}},
		Rows: [][]any{
			{"Notebooks", counts.Notebooks},
			{"Tasks", counts.Tasks},
			{"Subtasks", counts.Subtasks},
		},
	}
	archived, favorite := 0, 0
	for _, nb := range data.Notebooks {
		if nb.IsArchived {
			archived++
		}
		if nb.IsFavorite {
			favorite++
		}
	}
	t.Rows = append(t.Rows, []any{"Archived notebooks", archived}, []any{"Favorite notebooks", favorite})

	byStatus := map[model.Status]int{}
	byPriority := map[model.Priority]int{}
	doneSubtasks := 0
	for _, task := range data.Tasks {
		byStatus[task.Status]++
		byPriority[task.Priority]++
		for _, s := range task.Subtasks {
			if s.Completed {
				doneSubtasks++
			}
		}
	}
	t.Rows = append(t.Rows, []any{"Completed subtasks", doneSubtasks})
	for _, st := range model.Statuses() {
		t.Rows = append(t.Rows, []any{"Status: " + st.Label(), byStatus[st]})
	}
	for _, p := range model.Priorities() {
		t.Rows = append(t.Rows, []any{"Priority: " + p.Label(), byPriority[p]})
	}
	return sheetFromTable(t)
}
