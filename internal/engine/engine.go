// Package engine is the entry point the surrounding application calls. It resolves
// codecs through a registry, runs the import pipeline (detect, parse, map, validate,
// transform) and instruments every operation.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/amirbrooks/taskport/internal/classify"
	"github.com/amirbrooks/taskport/internal/codec"
	"github.com/amirbrooks/taskport/internal/logging"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/model"
	"github.com/amirbrooks/taskport/internal/telemetry"
)

const DefaultConcurrency = 4

type Options struct {
	Registry       *codec.Registry
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// MappingCache bounds the generated-mapping cache; <= 0 uses the mapping default.
	MappingCache int
	// Concurrency bounds ImportAll; <= 0 uses DefaultConcurrency.
	Concurrency int
}

type Engine struct {
	registry    *codec.Registry
	log         *slog.Logger
	generator   *mapping.Generator
	tracer      trace.Tracer
	concurrency int

	exports  metric.Int64Counter
	imports  metric.Int64Counter
	records  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds an Engine. Nil options fall back to the default registry, a discarding
// logger and the global otel providers.
func New(opts Options) *Engine {
	e := &Engine{
		registry:    opts.Registry,
		log:         opts.Logger,
		generator:   mapping.NewGenerator(opts.MappingCache),
		concurrency: opts.Concurrency,
	}
	if e.registry == nil {
		e.registry = codec.DefaultRegistry()
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	e.tracer = tp.Tracer(telemetry.Scope)
	e.initMetrics(mp.Meter(telemetry.Scope))
	return e
}

func (e *Engine) initMetrics(m metric.Meter) {
	var err error
	if e.exports, err = m.Int64Counter("taskport.exports", metric.WithDescription("Completed exports")); err != nil {
		e.exports = metricnoop.Int64Counter{}
	}
	if e.imports, err = m.Int64Counter("taskport.imports", metric.WithDescription("Completed imports")); err != nil {
		e.imports = metricnoop.Int64Counter{}
	}
	if e.records, err = m.Int64Counter("taskport.records", metric.WithDescription("Records parsed from imported files")); err != nil {
		e.records = metricnoop.Int64Counter{}
	}
	if e.failures, err = m.Int64Counter("taskport.failures", metric.WithDescription("Failed operations")); err != nil {
		e.failures = metricnoop.Int64Counter{}
	}
	if e.duration, err = m.Float64Histogram("taskport.duration", metric.WithUnit("ms"),
		metric.WithDescription("Operation wall time")); err != nil {
		e.duration = metricnoop.Float64Histogram{}
	}
}

func (e *Engine) Registry() *codec.Registry { return e.registry }

// Mappings proposes field mappings for columns through the engine's cache.
func (e *Engine) Mappings(columns []string) []mapping.FieldMapping {
	return e.generator.Generate(columns)
}

// observe ends span and records the outcome of one operation.
func (e *Engine) observe(ctx context.Context, span trace.Span, op string, format codec.Format, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("format", string(format)))
	e.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	if err != nil {
		e.failures.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Detect resolves f's format from its MIME type, then its extension.
func (e *Engine) Detect(f codec.File) (codec.Format, error) {
	format, ok := e.registry.DetectFormat(f)
	if !ok {
		return "", fmt.Errorf("%w: %s", codec.ErrUnknownFormat, f.Name())
	}
	return format, nil
}

func (e *Engine) exporter(format codec.Format) (codec.Exporter, error) {
	if _, ok := e.registry.ByFormat(format); !ok {
		return nil, fmt.Errorf("%w: %q", codec.ErrUnknownFormat, format)
	}
	ex, ok := e.registry.Exporter(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot export", codec.ErrUnsupported, format)
	}
	return ex, nil
}

func (e *Engine) importer(format codec.Format) (codec.Importer, error) {
	if _, ok := e.registry.ByFormat(format); !ok {
		return nil, fmt.Errorf("%w: %q", codec.ErrUnknownFormat, format)
	}
	im, ok := e.registry.Importer(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot import", codec.ErrUnsupported, format)
	}
	return im, nil
}

// Export writes data to w in format after running cfg's filter pipeline.
func (e *Engine) Export(ctx context.Context, format codec.Format, w io.Writer, data *model.ExportData, cfg codec.ExportConfig) (err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "taskport.export", trace.WithAttributes(attribute.String("format", string(format))))
	defer func() { e.observe(ctx, span, "export", format, start, err) }()

	ex, err := e.exporter(format)
	if err != nil {
		return err
	}
	if err := ex.Export(ctx, w, data, cfg); err != nil {
		return err
	}
	counts := data.Counts()
	e.exports.Add(ctx, 1, metric.WithAttributes(attribute.String("format", string(format))))
	e.log.DebugContext(ctx, "exported", "format", format,
		"notebooks", counts.Notebooks, "tasks", counts.Tasks, "subtasks", counts.Subtasks)
	return nil
}

func (e *Engine) ExportBytes(ctx context.Context, format codec.Format, data *model.ExportData, cfg codec.ExportConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Export(ctx, format, &buf, data, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Columns samples f and lists the column names found.
func (e *Engine) Columns(ctx context.Context, f codec.File, format codec.Format) (codec.Format, []string, error) {
	format, im, err := e.resolveImporter(f, format)
	if err != nil {
		return "", nil, err
	}
	cols, err := im.DetectColumns(ctx, f)
	return format, cols, err
}

func (e *Engine) resolveImporter(f codec.File, format codec.Format) (codec.Format, codec.Importer, error) {
	if format == "" {
		detected, err := e.Detect(f)
		if err != nil {
			return "", nil, err
		}
		format = detected
	}
	im, err := e.importer(format)
	return format, im, err
}

type ImportOptions struct {
	// Format skips detection when set.
	Format codec.Format
	// Mappings replaces the generated mappings when non-nil.
	Mappings []mapping.FieldMapping
	// Overrides retargets columns of the generated mappings, column to target field.
	Overrides map[string]string
	// SkipInvalid drops records that fail validation before assembly.
	SkipInvalid bool
}

type ImportResult struct {
	File     string                     `json:"file"`
	Format   codec.Format               `json:"format"`
	Data     *model.ExportData          `json:"data"`
	Results  []mapping.ValidationResult `json:"results"`
	Columns  []string                   `json:"columns"`
	Mappings []mapping.FieldMapping     `json:"-"`
	Issues   []classify.Issue           `json:"issues,omitempty"`
	// Skipped counts records dropped by SkipInvalid.
	Skipped int `json:"skipped"`
	// Placeholder is set when the file could not be read and a placeholder record
	// stands in for its content.
	Placeholder bool `json:"placeholder"`
}

// Invalid counts the records whose validation failed.
func (r *ImportResult) Invalid() int {
	n := 0
	for _, res := range r.Results {
		if !res.IsValid {
			n++
		}
	}
	return n
}

// Warnings counts the records that validated with warnings.
func (r *ImportResult) Warnings() int {
	n := 0
	for _, res := range r.Results {
		if res.Warning != "" {
			n++
		}
	}
	return n
}

// Import runs f through detection, parsing, mapping, validation and transformation.
func (e *Engine) Import(ctx context.Context, f codec.File, opts ImportOptions) (res *ImportResult, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "taskport.import", trace.WithAttributes(attribute.String("file", f.Name())))
	format := opts.Format
	defer func() { e.observe(ctx, span, "import", format, start, err) }()

	format, im, err := e.resolveImporter(f, format)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("format", string(format)))

	records, err := im.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	e.records.Add(ctx, int64(len(records)), metric.WithAttributes(attribute.String("format", string(format))))

	res = &ImportResult{
		File:        f.Name(),
		Format:      format,
		Columns:     codec.ColumnsOf(records, 0),
		Placeholder: codec.IsPlaceholder(records),
	}
	res.Mappings = opts.Mappings
	if res.Mappings == nil {
		res.Mappings, err = mapping.Override(e.generator.Generate(res.Columns), opts.Overrides)
		if err != nil {
			return nil, err
		}
	}
	res.Results = im.Validate(records, codec.ImportConfig{Mappings: res.Mappings})

	keep := records
	if opts.SkipInvalid {
		keep = make([]model.Record, 0, len(records))
		for i, rec := range records {
			if res.Results[i].IsValid {
				keep = append(keep, rec)
			}
		}
		res.Skipped = len(records) - len(keep)
	}
	res.Data, res.Issues = im.Transform(keep, res.Mappings)

	counts := res.Data.Counts()
	e.imports.Add(ctx, 1, metric.WithAttributes(attribute.String("format", string(format))))
	e.log.DebugContext(ctx, "imported", "file", f.Name(), "format", format, "records", len(records),
		"skipped", res.Skipped, "issues", len(res.Issues),
		"notebooks", counts.Notebooks, "tasks", counts.Tasks, "subtasks", counts.Subtasks)
	if res.Placeholder {
		e.log.WarnContext(ctx, "spreadsheet content replaced by placeholder", "file", f.Name())
	}
	return res, nil
}

// ImportAll imports files concurrently, at most Concurrency at a time. Results keep the
// order of files. The first failure cancels the rest.
func (e *Engine) ImportAll(ctx context.Context, files []codec.File, opts ImportOptions) ([]*ImportResult, error) {
	out := make([]*ImportResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, f := range files {
		g.Go(func() error {
			res, err := e.Import(ctx, f, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name(), err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge concatenates the data of several imports into one ExportData. A notebook, task
// or subtask ID already taken earlier is replaced, and references to it inside the same file
// (notebookId, parentId, parentTaskId) follow the new ID.
func Merge(results []*ImportResult) *model.ExportData {
	out := &model.ExportData{Notebooks: []model.Notebook{}, Tasks: []model.Task{}}
	seenNotebooks := map[string]bool{}
	seenTasks := map[string]bool{}
	seenSubtasks := map[string]bool{}
	for _, r := range results {
		if r == nil || r.Data == nil {
			continue
		}
		data := r.Data.Clone()
		notebookIDs := map[string]string{}
		for i := range data.Notebooks {
			nb := &data.Notebooks[i]
			if seenNotebooks[nb.ID] {
				renamed := model.NewID(model.NotebookIDPrefix)
				notebookIDs[nb.ID] = renamed
				nb.ID = renamed
			}
			seenNotebooks[nb.ID] = true
		}
		taskIDs := map[string]string{}
		for i := range data.Tasks {
			t := &data.Tasks[i]
			if seenTasks[t.ID] {
				renamed := model.NewID(model.TaskIDPrefix)
				taskIDs[t.ID] = renamed
				t.ID = renamed
				t.Subtasks = append([]model.Subtask(nil), t.Subtasks...)
				for j := range t.Subtasks {
					t.Subtasks[j].ParentTaskID = renamed
				}
			}
			seenTasks[t.ID] = true
			copied := false
			for j := range t.Subtasks {
				if seenSubtasks[t.Subtasks[j].ID] {
					if !copied {
						t.Subtasks = append([]model.Subtask(nil), t.Subtasks...)
						copied = true
					}
					t.Subtasks[j].ID = model.NewID(model.SubtaskIDPrefix)
				}
				seenSubtasks[t.Subtasks[j].ID] = true
			}
		}
		for i := range data.Tasks {
			t := &data.Tasks[i]
			if t.NotebookID != nil {
				if renamed, ok := notebookIDs[*t.NotebookID]; ok {
					t.NotebookID = &renamed
				}
			}
			if t.ParentID != nil {
				if renamed, ok := taskIDs[*t.ParentID]; ok {
					t.ParentID = &renamed
				}
			}
		}
		out.Notebooks = append(out.Notebooks, data.Notebooks...)
		out.Tasks = append(out.Tasks, data.Tasks...)
	}
	return out
}
