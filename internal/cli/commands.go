package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/taskport/internal/codec"
	"github.com/amirbrooks/taskport/internal/coerce"
	"github.com/amirbrooks/taskport/internal/engine"
	"github.com/amirbrooks/taskport/internal/filter"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/model"
)

func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: expected %s", errUsage, what)
		}
		return nil
	}
}

func minArgs(n int, what string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("%w: expected %s", errUsage, what)
		}
		return nil
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func (a *app) openInput(path string) (codec.File, error) {
	if path == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, err
		}
		return codec.NewFile("stdin", "", data), nil
	}
	return codec.OpenFile(path)
}

func (a *app) openInputs(paths []string) ([]codec.File, error) {
	files := make([]codec.File, 0, len(paths))
	for _, p := range paths {
		f, err := a.openInput(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (a *app) formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported formats",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			descs := a.engine.Registry().Descriptors()
			if a.gf.JSON {
				return printJSON(a.stdout, descs)
			}
			if a.gf.Plain {
				for _, d := range descs {
					fmt.Fprintf(a.stdout, "%s\t%s\t%t\t%t\t%s\n", d.Format, d.Name, d.CanExport, d.CanImport, strings.Join(d.Extensions, ","))
				}
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tNAME\tEXPORT\tIMPORT\tEXTENSIONS")
			for _, d := range descs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Format, d.Name, yesNo(d.CanExport), yesNo(d.CanImport), strings.Join(d.Extensions, " "))
			}
			return tw.Flush()
		},
	}
}

type detection struct {
	File   string       `json:"file"`
	Format codec.Format `json:"format"`
}

func (a *app) detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Report the format of each file",
		Args:  minArgs(1, "at least one file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.openInputs(args)
			if err != nil {
				return err
			}
			out := make([]detection, 0, len(files))
			for i, f := range files {
				format, err := a.engine.Detect(f)
				if err != nil {
					return err
				}
				out = append(out, detection{File: args[i], Format: format})
			}
			if a.gf.JSON {
				return printJSON(a.stdout, out)
			}
			for _, d := range out {
				fmt.Fprintf(a.stdout, "%s\t%s\n", d.File, d.Format)
			}
			return nil
		},
	}
}

type mappingView struct {
	Column    string `json:"column"`
	Target    string `json:"target"`
	Transform string `json:"transform,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

func viewMappings(ms []mapping.FieldMapping) []mappingView {
	out := make([]mappingView, 0, len(ms))
	for _, m := range ms {
		v := mappingView{Column: m.SourceField, Target: m.TargetField, Required: m.Required}
		if m.Transform.Kind != mapping.TransformNone {
			v.Transform = m.Transform.Kind.String()
		}
		out = append(out, v)
	}
	return out
}

// importFlags are shared by every command that reads records.
type importFlags struct {
	format      string
	skipInvalid bool
	maps        []string
}

func (f *importFlags) register(cmd *cobra.Command, skip bool) {
	cmd.Flags().StringVar(&f.format, "format", "", "Input format (default: detected from the file)")
	cmd.Flags().StringArrayVar(&f.maps, "map", nil, `Map a column to a field, "column=target" (repeatable; empty target drops the column)`)
	if skip {
		cmd.Flags().BoolVar(&f.skipInvalid, "skip-invalid", false, "Drop records that fail validation (default: import.skip_invalid)")
	}
}

func (a *app) importOptions(cmd *cobra.Command, f *importFlags) (engine.ImportOptions, error) {
	opts := engine.ImportOptions{
		Format:      codec.ParseFormat(f.format),
		SkipInvalid: a.cfg.Import.SkipInvalid,
	}
	if cmd.Flags().Changed("skip-invalid") {
		opts.SkipInvalid = f.skipInvalid
	}
	if len(f.maps) > 0 {
		opts.Overrides = map[string]string{}
		for _, m := range f.maps {
			col, target, err := mapping.ParseOverride(m)
			if err != nil {
				return opts, err
			}
			opts.Overrides[col] = target
		}
	}
	return opts, nil
}

func (a *app) columnsCmd() *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "columns <file>",
		Short: "List a file's columns and the fields they map to",
		Args:  exactArgs(1, "one file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			opts, err := a.importOptions(cmd, &f)
			if err != nil {
				return err
			}
			format, cols, err := a.engine.Columns(cmd.Context(), in, opts.Format)
			if err != nil {
				return err
			}
			ms, err := mapping.Override(a.engine.Mappings(cols), opts.Overrides)
			if err != nil {
				return err
			}
			views := viewMappings(ms)
			if a.gf.JSON {
				return printJSON(a.stdout, map[string]any{
					"file":     args[0],
					"format":   format,
					"columns":  cols,
					"mappings": views,
				})
			}
			if a.gf.Plain {
				for _, v := range views {
					fmt.Fprintf(a.stdout, "%s\t%s\t%s\t%t\n", v.Column, v.Target, v.Transform, v.Required)
				}
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tFIELD\tTRANSFORM\tREQUIRED")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Column, v.Target, v.Transform, yesNo(v.Required))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !a.gf.Quiet {
				fmt.Fprintln(a.stdout, mutedStyle.Render(fmt.Sprintf("%s: %d columns", format, len(cols))))
			}
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var f importFlags
	var all bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check every record of a file against its field mappings",
		Long: `Validate maps each record and reports missing required fields and values that
could not be converted. The exit code is 4 when any record is invalid.`,
		Args: exactArgs(1, "one file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			opts, err := a.importOptions(cmd, &f)
			if err != nil {
				return err
			}
			res, err := a.engine.Import(cmd.Context(), in, opts)
			if err != nil {
				return err
			}
			invalid := res.Invalid()
			if a.gf.JSON {
				if err := printJSON(a.stdout, map[string]any{
					"file":        args[0],
					"format":      res.Format,
					"records":     len(res.Results),
					"invalid":     invalid,
					"warnings":    res.Warnings(),
					"placeholder": res.Placeholder,
					"results":     res.Results,
				}); err != nil {
					return err
				}
			} else {
				a.printResults(res, all)
			}
			if invalid > 0 {
				return fmt.Errorf("%w: %s has %d of %d", errInvalid, args[0], invalid, len(res.Results))
			}
			return nil
		},
	}
	f.register(cmd, false)
	cmd.Flags().BoolVar(&all, "all", false, "List valid records too")
	return cmd
}

func (a *app) printResults(res *engine.ImportResult, all bool) {
	if a.gf.Plain {
		for _, r := range res.Results {
			if all || !r.IsValid || r.Warning != "" {
				fmt.Fprintf(a.stdout, "%d\t%t\t%s\t%s\n", r.Row, r.IsValid, r.Error, r.Warning)
			}
		}
		return
	}
	for _, r := range res.Results {
		switch {
		case !r.IsValid:
			msg := r.Error
			if r.Warning != "" {
				msg += "; " + r.Warning
			}
			fmt.Fprintf(a.stdout, "%s row %d: %s\n", failStyle.Render(iconFail), r.Row, msg)
		case r.Warning != "":
			fmt.Fprintf(a.stdout, "%s row %d: %s\n", warnStyle.Render(iconWarn), r.Row, r.Warning)
		case all:
			fmt.Fprintf(a.stdout, "%s row %d\n", passStyle.Render(iconPass), r.Row)
		}
	}
	if a.gf.Quiet {
		return
	}
	if res.Placeholder {
		fmt.Fprintln(a.stdout, warnStyle.Render(iconWarn+" spreadsheet content could not be read; a placeholder record was used"))
	}
	summary := fmt.Sprintf("%d records: %d valid, %d invalid, %d with warnings",
		len(res.Results), len(res.Results)-res.Invalid(), res.Invalid(), res.Warnings())
	fmt.Fprintln(a.stdout, accentStyle.Render(summary))
}

// exportFlags are shared by import and export.
type exportFlags struct {
	to             string
	out            string
	stdout         bool
	includeDeleted bool
	noMetadata     bool
	compact        bool
	source         string
	since          string
	until          string
	filters        []string
	filterTarget   string
}

func (f *exportFlags) register(cmd *cobra.Command, to string, filters bool) {
	fl := cmd.Flags()
	fl.StringVar(&f.to, "to", to, "Output format")
	fl.StringVarP(&f.out, "out", "o", "", "Write to this path instead of a timestamped file in the export dir")
	fl.BoolVar(&f.stdout, "stdout", false, "Write the output to stdout")
	fl.BoolVar(&f.noMetadata, "no-metadata", false, "Omit the metadata section")
	fl.BoolVar(&f.compact, "compact", false, "Disable pretty-printing (default: export.pretty)")
	fl.StringVar(&f.source, "source", "", "Source name recorded in metadata (default: export.source)")
	if !filters {
		return
	}
	fl.BoolVar(&f.includeDeleted, "include-deleted", false, "Keep archived notebooks and cancelled tasks (default: export.include_deleted)")
	fl.StringVar(&f.since, "since", "", "Keep records created on or after this date")
	fl.StringVar(&f.until, "until", "", "Keep records created on or before this date")
	fl.StringArrayVar(&f.filters, "filter", nil, `Keep records matching "field:operator:value" (repeatable)`)
	fl.StringVar(&f.filterTarget, "filter-target", "", "Apply --filter only to notebooks or tasks")
}

func (a *app) exportConfig(cmd *cobra.Command, f *exportFlags) (codec.ExportConfig, error) {
	cfg := codec.ExportConfig{
		Config: filter.Config{
			IncludeMetadata: a.cfg.Export.IncludeMetadata && !f.noMetadata,
			IncludeDeleted:  a.cfg.Export.IncludeDeleted,
		},
		Pretty: a.cfg.Export.Pretty && !f.compact,
		Source: a.cfg.Export.Source,
	}
	if f.source != "" {
		cfg.Source = f.source
	}
	if cmd.Flags().Changed("include-deleted") {
		cfg.IncludeDeleted = f.includeDeleted
	}
	var err error
	if cfg.DateRange.Start, err = parseBound(f.since, false); err != nil {
		return cfg, err
	}
	if cfg.DateRange.End, err = parseBound(f.until, true); err != nil {
		return cfg, err
	}
	for _, s := range f.filters {
		cf, err := parseFilter(s, f.filterTarget)
		if err != nil {
			return cfg, err
		}
		cfg.CustomFilters = append(cfg.CustomFilters, cf)
	}
	return cfg, cfg.Validate()
}

// parseBound reads a --since/--until date. A date without a time of day ends at the
// last instant of that day when it is an upper bound.
func parseBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := coerce.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", filter.ErrInvalidFilter, err)
	}
	if upper && !strings.ContainsAny(s, "T:") && t.Equal(t.Truncate(24*time.Hour)) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// parseFilter reads "field:operator:value". The value keeps any further colons.
func parseFilter(s, target string) (filter.CustomFilter, error) {
	field, rest, ok := strings.Cut(s, ":")
	op, value, ok2 := strings.Cut(rest, ":")
	if !ok || !ok2 {
		return filter.CustomFilter{}, fmt.Errorf("%w: %q is not field:operator:value", filter.ErrInvalidFilter, s)
	}
	cf := filter.CustomFilter{
		Field:    strings.TrimSpace(field),
		Operator: filter.Operator(strings.TrimSpace(op)),
		Value:    value,
		Enabled:  true,
		Target:   target,
	}
	if cf.Operator == filter.OpEquals || cf.Operator == filter.OpIn {
		cf.Value = normalizeEnumValue(cf.Field, value)
	}
	return cf, cf.Validate()
}

// normalizeEnumValue spells status and priority values the way records store them,
// so "in-progress" matches "in_progress". Unknown values are left alone.
func normalizeEnumValue(field, value string) string {
	if field != "status" && field != "priority" {
		return value
	}
	items := coerce.ParseList(value)
	for i, item := range items {
		if field == "status" {
			if s, ok := coerce.LookupStatus(item); ok {
				items[i] = string(s)
			}
		} else if p, ok := coerce.LookupPriority(item); ok {
			items[i] = string(p)
		}
	}
	return strings.Join(items, ",")
}

// writeOutput sends an export to stdout, --out, or a timestamped file in the export dir.
func (a *app) writeOutput(f *exportFlags, base string, format codec.Format, data []byte, counts model.ItemCounts) error {
	if f.stdout {
		_, err := a.stdout.Write(data)
		return err
	}
	c, _ := a.engine.Registry().ByFormat(format)
	d := c.Descriptor()
	var path string
	var err error
	if f.out != "" {
		path = f.out
		err = writeFileAtomic(path, data)
	} else {
		path, err = writeExportFile(a.cfg.Output.Dir, base, d.PrimaryExtension(), data)
	}
	if err != nil {
		return err
	}
	a.log.Debug("wrote export", "path", path, "format", format, "bytes", len(data))
	if a.gf.JSON {
		return printJSON(a.stdout, map[string]any{"path": path, "format": format, "counts": counts})
	}
	if !a.gf.Quiet {
		fmt.Fprintf(a.stdout, "Wrote %s to: %s\n", d.Name, path)
	}
	return nil
}

func (a *app) reportIssues(results []*engine.ImportResult) {
	if a.gf.Quiet {
		return
	}
	for _, r := range results {
		if r.Placeholder {
			fmt.Fprintf(a.stderr, "%s %s: spreadsheet content could not be read; a placeholder record was used\n", warnStyle.Render(iconWarn), r.File)
		}
		if n := r.Invalid(); n > 0 && r.Skipped == 0 {
			fmt.Fprintf(a.stderr, "%s %s: %d invalid records imported as-is (use --skip-invalid to drop them)\n", warnStyle.Render(iconWarn), r.File, n)
		}
		if r.Skipped > 0 {
			fmt.Fprintf(a.stderr, "%s %s: skipped %d invalid records\n", warnStyle.Render(iconWarn), r.File, r.Skipped)
		}
		for _, issue := range r.Issues {
			fmt.Fprintf(a.stderr, "%s %s: %s\n", mutedStyle.Render(iconWarn), r.File, issue)
		}
	}
}

// convert imports inputs, merges them and encodes the result in the target format.
func (a *app) convert(cmd *cobra.Command, args []string, imf *importFlags, exf *exportFlags) error {
	target := codec.ParseFormat(exf.to)
	ecfg, err := a.exportConfig(cmd, exf)
	if err != nil {
		return err
	}
	opts, err := a.importOptions(cmd, imf)
	if err != nil {
		return err
	}
	files, err := a.openInputs(args)
	if err != nil {
		return err
	}
	results, err := a.engine.ImportAll(cmd.Context(), files, opts)
	if err != nil {
		return err
	}
	a.reportIssues(results)

	data := engine.Merge(results)
	out, err := a.engine.ExportBytes(cmd.Context(), target, data, ecfg)
	if err != nil {
		return err
	}
	return a.writeOutput(exf, exportBase(args), target, out, data.Counts())
}

func (a *app) importCmd() *cobra.Command {
	var imf importFlags
	var exf exportFlags
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import files into one canonical document",
		Long: `Import reads one or more files concurrently, maps their columns onto notebooks,
tasks and subtasks, and writes the merged result. IDs that collide across files are
reassigned.`,
		Args: minArgs(1, "at least one file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convert(cmd, args, &imf, &exf)
		},
	}
	imf.register(cmd, true)
	exf.register(cmd, string(codec.FormatJSON), false)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var imf importFlags
	var exf exportFlags
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Convert a document to another format, applying filters",
		Long: `Export reads a document (usually a canonical JSON export) and writes it in
another format. Archived notebooks and cancelled tasks are left out unless
--include-deleted is set.

Filters take the form field:operator:value with operators equals, contains,
startsWith, in and between. Values for in and between are comma-separated.`,
		Args: exactArgs(1, "one file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(exf.to) == "" {
				return fmt.Errorf("%w: --to is required", errUsage)
			}
			return a.convert(cmd, args, &imf, &exf)
		},
	}
	imf.register(cmd, true)
	exf.register(cmd, "", true)
	return cmd
}

func (a *app) previewCmd() *cobra.Command {
	var imf importFlags
	var exf exportFlags
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show a file as a Markdown report",
		Args:  exactArgs(1, "one file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			opts, err := a.importOptions(cmd, &imf)
			if err != nil {
				return err
			}
			ecfg, err := a.exportConfig(cmd, &exf)
			if err != nil {
				return err
			}
			res, err := a.engine.Import(cmd.Context(), in, opts)
			if err != nil {
				return err
			}
			a.reportIssues([]*engine.ImportResult{res})
			out, err := a.engine.ExportBytes(cmd.Context(), codec.FormatMarkdown, res.Data, ecfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(a.stdout, renderMarkdown(a.stdout, string(out)))
			return err
		},
	}
	imf.register(cmd, true)
	fl := cmd.Flags()
	fl.BoolVar(&exf.includeDeleted, "include-deleted", false, "Keep archived notebooks and cancelled tasks")
	fl.StringVar(&exf.since, "since", "", "Keep records created on or after this date")
	fl.StringVar(&exf.until, "until", "", "Keep records created on or before this date")
	fl.StringArrayVar(&exf.filters, "filter", nil, `Keep records matching "field:operator:value" (repeatable)`)
	fl.StringVar(&exf.filterTarget, "filter-target", "", "Apply --filter only to notebooks or tasks")
	return cmd
}
