// Package telemetry wires OpenTelemetry tracing and metrics for taskport.
//
// Telemetry is off by default and then costs nothing: Setup installs no-op providers.
//
//	TASKPORT_OTEL_ENABLED=true        enable telemetry
//	TASKPORT_OTEL_STDOUT=true         also write spans and metrics to stderr
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   push metrics over OTLP/HTTP
//	OTEL_SERVICE_NAME=...             override the service name
//
// When enabled with no exporter configured, spans and metrics go to stderr.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const Scope = "github.com/amirbrooks/taskport"

type Config struct {
	Enabled     bool
	Stdout      bool
	Endpoint    string
	ServiceName string
	Version     string
	// Writer receives stdout exporter output. Nil means os.Stderr.
	Writer io.Writer
}

// FromEnv reads the TASKPORT_OTEL_* and standard OTEL_* variables.
func FromEnv() Config {
	return Config{
		Enabled: os.Getenv("TASKPORT_OTEL_ENABLED") == "true",
		Stdout:  os.Getenv("TASKPORT_OTEL_STDOUT") == "true",
		Endpoint: firstNonEmpty(
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		),
		ServiceName: firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "taskport"),
	}
}

// Providers holds the installed tracer and meter providers.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// Setup builds providers for cfg and installs them as the otel globals.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		p := &Providers{
			TracerProvider: tracenoop.NewTracerProvider(),
			MeterProvider:  metricnoop.NewMeterProvider(),
		}
		otel.SetTracerProvider(p.TracerProvider)
		otel.SetMeterProvider(p.MeterProvider)
		return p, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	name := firstNonEmpty(cfg.ServiceName, "taskport")
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.Version != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.Version))
	}
	res := resource.NewSchemaless(attrs...)

	tp, err := buildTraceProvider(res, cfg, w)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace provider: %w", err)
	}
	mp, err := buildMetricProvider(ctx, res, cfg, w)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		shutdown:       []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

func buildTraceProvider(res *resource.Resource, cfg Config, w io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	// Spans have no OTLP exporter here; they go to the writer unless only metrics
	// were asked for.
	if cfg.Stdout || cfg.Endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, cfg Config, w io.Writer) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.Stdout || cfg.Endpoint == "" {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}
	if cfg.Endpoint != "" {
		exp, err := otlpMetricExporter(ctx, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// otlpMetricExporter accepts a full URL or a bare host:port, which is sent plain HTTP.
func otlpMetricExporter(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
	if strings.Contains(endpoint, "://") {
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	}
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
}

func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(Scope)
}

func (p *Providers) Meter() metric.Meter {
	return p.MeterProvider.Meter(Scope)
}

// Shutdown flushes pending spans and metrics. Call it once, with a short deadline.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
