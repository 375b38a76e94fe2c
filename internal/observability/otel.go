package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"coursehub/internal/logging"
)

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Output receives exported spans; stdout when nil.
	Output io.Writer
}

// InitTracing installs a global tracer provider exporting to Output and returns
// its shutdown func. When tracing is disabled the global no-op provider stays
// in place and the returned func does nothing.
func InitTracing(ctx context.Context, log *logging.Logger, cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "coursehub"
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", strings.TrimSpace(cfg.Version)),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	if log != nil {
		log.Info("otel tracing initialized", "service", name)
	}
	return tp.Shutdown, nil
}
