package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/taskport/internal/codec"
	"github.com/amirbrooks/taskport/internal/config"
	"github.com/amirbrooks/taskport/internal/engine"
	"github.com/amirbrooks/taskport/internal/filter"
	"github.com/amirbrooks/taskport/internal/logging"
	"github.com/amirbrooks/taskport/internal/mapping"
	"github.com/amirbrooks/taskport/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitInvalid  = 4
	ExitInternal = 10
)

var (
	errUsage   = errors.New("usage")
	errInvalid = errors.New("invalid records")
)

type GlobalFlags struct {
	ConfigFile string
	JSON       bool
	Plain      bool
	Quiet      bool
	Verbose    bool
	ExportDir  string
	LogFormat  string
}

// app carries what every command needs. It is built once per Execute, after flags are
// parsed.
type app struct {
	gf     GlobalFlags
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg       *config.Config
	log       *slog.Logger
	engine    *engine.Engine
	telemetry *telemetry.Providers
}

func Run(args []string) int {
	return Execute(args, os.Stdin, os.Stdout, os.Stderr)
}

// Execute runs one command line and returns its exit code.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	a.shutdown()
	if err != nil {
		fmt.Fprintln(stderr, "taskport:", err)
		return exitCode(err)
	}
	return ExitOK
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskport",
		Short: "Convert notes and tasks between JSON, YAML, NDJSON, CSV, spreadsheets and Markdown",
		Long: `taskport imports notebooks, tasks and subtasks from structured files and
exports them again, mapping foreign columns onto the task model.

Examples:
  taskport formats
  taskport columns tasks.csv
  taskport validate tasks.csv --map "When=dueDate"
  taskport import a.csv b.json --to json
  taskport export backup.json --to csv --since 2024-01-01 --filter status:in:pending,in_progress
  taskport preview backup.json`,
		Version:           Version,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
			}
			_ = cmd.Help()
			return fmt.Errorf("%w: missing command", errUsage)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.gf.ConfigFile, "config", "", "Config file (default: ./taskport.yaml or ~/.config/taskport/taskport.yaml)")
	pf.BoolVar(&a.gf.JSON, "json", false, "Print machine-readable JSON")
	pf.BoolVar(&a.gf.Plain, "plain", false, "Print tab-separated rows without headers")
	pf.BoolVarP(&a.gf.Quiet, "quiet", "q", false, "Suppress informational output")
	pf.BoolVarP(&a.gf.Verbose, "verbose", "v", false, "Log at debug level")
	pf.StringVar(&a.gf.ExportDir, "export-dir", "", "Directory for written files (default: output.dir)")
	pf.StringVar(&a.gf.LogFormat, "log-format", "", "Log format: text or json (default: log.format)")

	root.AddCommand(
		a.formatsCmd(),
		a.detectCmd(),
		a.columnsCmd(),
		a.validateCmd(),
		a.importCmd(),
		a.exportCmd(),
		a.previewCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, _, err := config.Load(config.Options{ConfigFile: a.gf.ConfigFile})
	if err != nil {
		return err
	}
	if a.gf.ExportDir != "" {
		cfg.Output.Dir = a.gf.ExportDir
	}
	level, format := cfg.Log.Level, cfg.Log.Format
	if a.gf.Verbose {
		level = "debug"
	}
	if a.gf.LogFormat != "" {
		format = a.gf.LogFormat
	}
	log, err := logging.New(level, format, a.stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	tcfg := telemetry.FromEnv()
	tcfg.Version = Version
	providers, err := telemetry.Setup(cmd.Context(), tcfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.telemetry = providers
	a.engine = engine.New(engine.Options{
		Logger:         log,
		TracerProvider: providers.TracerProvider,
		MeterProvider:  providers.MeterProvider,
		MappingCache:   cfg.Import.MappingCache,
		Concurrency:    cfg.Import.Concurrency,
	})
	if cfg.File != "" {
		log.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

func (a *app) shutdown() {
	if a.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil && a.log != nil {
		a.log.Warn("telemetry shutdown", "err", err)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, os.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, errUsage),
		errors.Is(err, codec.ErrUnknownFormat),
		errors.Is(err, codec.ErrUnsupported),
		errors.Is(err, mapping.ErrOverride):
		return ExitUsage
	case errors.Is(err, errInvalid),
		errors.Is(err, codec.ErrInvalidDocument),
		errors.Is(err, codec.ErrEmpty),
		errors.Is(err, codec.ErrTooLarge),
		errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, config.ErrInvalid):
		return ExitInvalid
	default:
		return ExitInternal
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
