package codec

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/model"
)

// Markdown renders a narrative report. It is presentation only and has no importer.
type Markdown struct{}

func NewMarkdown() *Markdown { return &Markdown{} }

func (*Markdown) Descriptor() Descriptor {
	return Descriptor{
		Format:      FormatMarkdown,
		Name:        "Markdown",
		Description: "Narrative report grouped by category, status and priority",
		Extensions:  []string{".md", ".markdown"},
		MIMETypes:   []string{"text/markdown", "text/x-markdown"},
		CanExport:   true,
	}
}

const (
	sectionSummary  = "Summary"
	sectionNotebook = "Notebooks"
	sectionTasks    = "Tasks"
	sectionDigest   = "High-Priority Active Tasks"
	sectionTags     = "Tags"
)

func (c *Markdown) Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error {
	d := c.Descriptor()
	out, err := prepare(ctx, d, data, cfg)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, renderReport(out, cfg))
	return wrapErr(d, OpExport, err)
}

func renderReport(data *model.ExportData, cfg ExportConfig) string {
	var b strings.Builder
	generated := model.Now()
	source := strings.TrimSpace(cfg.Source)
	if data.Metadata != nil {
		generated = data.Metadata.ExportedAt
		source = data.Metadata.Source
	}
	b.WriteString("# Notebooks and Tasks Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", generated.UTC().Format("2006-01-02 15:04 UTC"))
	if source != "" {
		fmt.Fprintf(&b, "Source: %s\n", source)
	}
	b.WriteString("\n")

	if data.IsEmpty() {
		b.WriteString("No notebooks or tasks to report.\n")
		return b.String()
	}

	digest := highPriorityActive(data.Tasks)
	tags := allTags(data)

	b.WriteString("## Table of Contents\n\n")
	toc := []string{sectionSummary}
	if len(data.Notebooks) > 0 {
		toc = append(toc, sectionNotebook)
	}
	if len(data.Tasks) > 0 {
		toc = append(toc, sectionTasks)
	}
	if len(digest) > 0 {
		toc = append(toc, sectionDigest)
	}
	if len(tags) > 0 {
		toc = append(toc, sectionTags)
	}
	for _, s := range toc {
		fmt.Fprintf(&b, "- [%s](#%s)\n", s, coerce.Slugify(s))
	}
	b.WriteString("\n")

	writeSummary(&b, data)
	if len(data.Notebooks) > 0 {
		writeNotebooks(&b, data.Notebooks)
	}
	if len(data.Tasks) > 0 {
		writeTasksByStatus(&b, data.Tasks)
	}
	if len(digest) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", sectionDigest)
		for _, t := range digest {
			writeTaskLine(&b, t)
		}
		b.WriteString("\n")
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", sectionTags)
		for _, tag := range tags {
			fmt.Fprintf(&b, "- %s\n", tag)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeSummary(b *strings.Builder, data *model.ExportData) {
	counts := data.Counts()
	doneSubtasks := 0
	for _, s := range data.Subtasks() {
		if s.Completed {
			doneSubtasks++
		}
	}
	fmt.Fprintf(b, "## %s\n\n", sectionSummary)
	fmt.Fprintf(b, "- Notebooks: %d\n", counts.Notebooks)
	fmt.Fprintf(b, "- Tasks: %d\n", counts.Tasks)
	fmt.Fprintf(b, "- Subtasks: %d (%d completed)\n\n", counts.Subtasks, doneSubtasks)

	if len(data.Tasks) == 0 {
		return
	}
	byStatus := map[model.Status]int{}
	byPriority := map[model.Priority]int{}
	for _, t := range data.Tasks {
		byStatus[t.Status]++
		byPriority[t.Priority]++
	}
	total := len(data.Tasks)

	b.WriteString("### Status Distribution\n\n")
	b.WriteString("| Status | Count | Percentage |\n|---|---:|---:|\n")
	for _, s := range model.Statuses() {
		fmt.Fprintf(b, "| %s | %d | %s |\n", s.Label(), byStatus[s], percent(byStatus[s], total))
	}
	b.WriteString("\n### Priority Distribution\n\n")
	b.WriteString("| Priority | Count | Percentage |\n|---|---:|---:|\n")
	for _, p := range model.Priorities() {
		fmt.Fprintf(b, "| %s | %d | %s |\n", p.Label(), byPriority[p], percent(byPriority[p], total))
	}
	b.WriteString("\n")
}

// percent renders n/total with one decimal place.
func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

// writeNotebooks groups by category (alphabetical), most recently updated first.
func writeNotebooks(b *strings.Builder, notebooks []model.Notebook) {
	fmt.Fprintf(b, "## %s\n\n", sectionNotebook)
	groups := map[string][]model.Notebook{}
	for _, nb := range notebooks {
		cat := strings.TrimSpace(nb.Category)
		if cat == "" {
			cat = model.DefaultCategory
		}
		groups[cat] = append(groups[cat], nb)
	}
	cats := make([]string, 0, len(groups))
	for c := range groups {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		items := groups[cat]
		sort.SliceStable(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
		fmt.Fprintf(b, "### %s (%d)\n\n", titleCase(cat), len(items))
		for _, nb := range items {
			fmt.Fprintf(b, "- **%s**", inline(nb.Title))
			var flags []string
			if nb.IsFavorite {
				flags = append(flags, "favorite")
			}
			if nb.IsArchived {
				flags = append(flags, "archived")
			}
			if len(flags) > 0 {
				fmt.Fprintf(b, " _(%s)_", strings.Join(flags, ", "))
			}
			fmt.Fprintf(b, " updated %s\n", formatDay(nb.UpdatedAt))
			if desc := inline(nb.Description); desc != "" {
				fmt.Fprintf(b, "  %s\n", desc)
			}
			if len(nb.Tags) > 0 {
				fmt.Fprintf(b, "  Tags: %s\n", strings.Join(nb.Tags, ", "))
			}
		}
		b.WriteString("\n")
	}
}

// writeTasksByStatus groups tasks in status declaration order, then sorts by priority
// rank and due date with undated tasks last.
func writeTasksByStatus(b *strings.Builder, tasks []model.Task) {
	fmt.Fprintf(b, "## %s\n\n", sectionTasks)
	groups := map[model.Status][]model.Task{}
	for _, t := range tasks {
		groups[t.Status] = append(groups[t.Status], t)
	}
	for _, s := range model.Statuses() {
		items := groups[s]
		if len(items) == 0 {
			continue
		}
		sortTasks(items)
		fmt.Fprintf(b, "### %s (%d)\n\n", s.Label(), len(items))
		for _, t := range items {
			writeTaskLine(b, t)
		}
		b.WriteString("\n")
	}
}

func sortTasks(items []model.Task) {
	sort.SliceStable(items, func(i, j int) bool {
		a, c := items[i], items[j]
		if ra, rc := a.Priority.Rank(), c.Priority.Rank(); ra != rc {
			return ra > rc
		}
		switch {
		case a.DueDate == nil && c.DueDate == nil:
			return false
		case a.DueDate == nil:
			return false
		case c.DueDate == nil:
			return true
		}
		return a.DueDate.Before(*c.DueDate)
	})
}

func writeTaskLine(b *strings.Builder, t model.Task) {
	check := " "
	if t.Status == model.StatusCompleted {
		check = "x"
	}
	fmt.Fprintf(b, "- [%s] **[%s]** %s", check, t.Priority.Label(), inline(t.Title))
	if t.DueDate != nil {
		fmt.Fprintf(b, " (due %s)", formatDay(*t.DueDate))
	}
	if t.Assignee != nil && *t.Assignee != "" {
		fmt.Fprintf(b, " @%s", *t.Assignee)
	}
	b.WriteString("\n")
	if len(t.Subtasks) > 0 {
		done := 0
		for _, s := range t.Subtasks {
			if s.Completed {
				done++
			}
		}
		fmt.Fprintf(b, "  Subtasks: %d/%d done\n", done, len(t.Subtasks))
	}
}

// highPriorityActive is every high or urgent task not yet completed, most pressing first.
func highPriorityActive(tasks []model.Task) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if (t.Priority == model.PriorityHigh || t.Priority == model.PriorityUrgent) && t.Status != model.StatusCompleted {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

func allTags(data *model.ExportData) []string {
	var tags []string
	for _, nb := range data.Notebooks {
		tags = append(tags, nb.Tags...)
	}
	for _, t := range data.Tasks {
		tags = append(tags, t.Tags...)
	}
	tags = dedupeStrings(tags)
	sort.Strings(tags)
	return tags
}

func dedupeStrings(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02")
}

// inline flattens text onto one line.
func inline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
