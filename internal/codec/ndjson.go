package codec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/amirbrooks/taskport/internal/model"
)

// NDJSON writes one JSON object per line, tagged with a "type" field. Subtasks get their
// own lines after their task.
type NDJSON struct {
	importer
}

func NewNDJSON() *NDJSON { return &NDJSON{} }

func (*NDJSON) Descriptor() Descriptor {
	return Descriptor{
		Format:      FormatNDJSON,
		Name:        "NDJSON",
		Description: "Newline-delimited JSON, one tagged record per line",
		Extensions:  []string{".ndjson", ".jsonl"},
		MIMETypes:   []string{"application/x-ndjson", "application/jsonl"},
		MaxSize:     DefaultMaxSize,
		CanExport:   true,
		CanImport:   true,
	}
}

type ndjsonMetadata struct {
	Type string `json:"type"`
	*model.Metadata
}

type ndjsonNotebook struct {
	Type string `json:"type"`
	*model.Notebook
}

type ndjsonTask struct {
	Type string `json:"type"`
	*model.Task
	// shadows Task.Subtasks; subtasks are written as their own lines
	Subtasks []model.Subtask `json:"subtasks,omitempty"`
}

type ndjsonSubtask struct {
	Type string `json:"type"`
	*model.Subtask
}

func (c *NDJSON) Export(ctx context.Context, w io.Writer, data *model.ExportData, cfg ExportConfig) error {
	d := c.Descriptor()
	out, err := prepare(ctx, d, data, cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	write := func(v any) error {
		return wrapErr(d, OpExport, enc.Encode(v))
	}
	if out.Metadata != nil {
		if err := write(ndjsonMetadata{Type: "metadata", Metadata: out.Metadata}); err != nil {
			return err
		}
	}
	for i := range out.Notebooks {
		if err := write(ndjsonNotebook{Type: model.TypeNotebook, Notebook: &out.Notebooks[i]}); err != nil {
			return err
		}
	}
	for i := range out.Tasks {
		t := &out.Tasks[i]
		if err := write(ndjsonTask{Type: model.TypeTask, Task: t}); err != nil {
			return err
		}
		for j := range t.Subtasks {
			if err := write(ndjsonSubtask{Type: model.TypeSubtask, Subtask: &t.Subtasks[j]}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *NDJSON) Parse(ctx context.Context, f File) ([]model.Record, error) {
	d := c.Descriptor()
	raw, err := readAll(ctx, f, d.MaxSize)
	if err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), int(d.MaxSize))
	var out []model.Record
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		doc, err := decodeJSON([]byte(text))
		if err != nil {
			return nil, wrapErr(d, OpParse, fmt.Errorf("line %d: %w", line, err))
		}
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, wrapErr(d, OpParse, fmt.Errorf("line %d: %w: want object, got %T", line, ErrInvalidDocument, doc))
		}
		tag, _ := obj["type"].(string)
		if tag == "metadata" {
			continue
		}
		delete(obj, "type")
		out = append(out, model.Record{Type: tag, Fields: obj, Line: line})
	}
	if err := sc.Err(); err != nil {
		return nil, wrapErr(d, OpParse, err)
	}
	return out, nil
}

func (c *NDJSON) DetectColumns(ctx context.Context, f File) ([]string, error) {
	records, err := c.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	return ColumnsOf(records, DefaultSampleSize), nil
}
