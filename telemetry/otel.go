package telemetry

import (
	"context"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/logger"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const exportTimeout = 10 * time.Second

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func()

// Config selects the OTLP collector. An empty Endpoint disables export.
type Config struct {
	Endpoint    string
	Token       string
	ServiceName string
	Level       logger.LogLevel
}

// Telemetry bundles the logger and tracer provider handed to the rest of the module.
type Telemetry struct {
	Logger         logger.Logger
	TracerProvider trace.TracerProvider
	Shutdown       ShutdownFunc
}

// New returns a Telemetry whose logger writes to console and, when an
// endpoint is configured, to the collector as well.
func New(ctx context.Context, cfg Config, console logger.Logger) (*Telemetry, error) {
	console = logger.OrNop(console)
	if cfg.Endpoint == "" {
		return &Telemetry{
			Logger:         console,
			TracerProvider: noop.NewTracerProvider(),
			Shutdown:       func() {},
		}, nil
	}
	otlpURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing telemetry endpoint")
	}
	otlpURL.Path = "/v1/logs"
	logURL := otlpURL.String()
	otlpURL.Path = "/v1/traces"
	traceURL := otlpURL.String()
	insecure := otlpURL.Scheme == "http"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		console.Warn("partial telemetry resource: %s", err)
	} else if err != nil {
		return nil, errors.Wrap(err, "error creating resource")
	}

	headers := make(map[string]string)
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	logOpts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(logURL),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(exportTimeout),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(traceURL),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if insecure {
		logOpts = append(logOpts, otlploghttp.WithInsecure())
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}

	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating log exporter")
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating trace exporter")
	}

	logProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)

	otelLogger := logger.NewOtelLogger(logProvider.Logger(cfg.ServiceName), cfg.Level)

	return &Telemetry{
		Logger:         logger.Tee(console, otelLogger),
		TracerProvider: tracerProvider,
		Shutdown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
			defer cancel()
			if err := tracerProvider.Shutdown(ctx); err != nil {
				console.Warn("error shutting down tracer provider: %s", err)
			}
			if err := logProvider.Shutdown(ctx); err != nil {
				console.Warn("error shutting down logger provider: %s", err)
			}
		},
	}, nil
}
