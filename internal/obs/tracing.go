package obs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrUnsupportedExporter is returned for an unknown OTEL_EXPORTER value.
var ErrUnsupportedExporter = errors.New("obs: unsupported tracing exporter")

// Resource attribute keys describing the pricing worker.
const (
	AttrQueuePrefix  = attribute.Key("pricing.queue_prefix")
	AttrTaxCountries = attribute.Key("pricing.tax_countries")
)

// TracingConfig selects the span exporter of the pricing worker and the
// resource it reports as.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	// Exporter is "otlp" or "none"; empty means otlp.
	Exporter      string
	SamplingRatio float64
	// QueuePrefix and TaxCountries identify which pricing deployment
	// produced a span.
	QueuePrefix  string
	TaxCountries []string
}

// InitTracer installs the global tracer provider. The returned function
// flushes pending spans. With the "none" exporter nothing is installed.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return func(context.Context) error { return nil }, nil
	}
	res, err := TracingResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("obs: tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio(cfg.SamplingRatio)))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Exporter)); kind {
	case "none", "off":
		return nil, nil
	case "", "otlp":
		var opts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExporter, kind)
	}
}

// TracingResource describes the worker process to the tracing backend.
func TracingResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceNamespaceKey.String("toko"),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.QueuePrefix != "" {
		attrs = append(attrs, AttrQueuePrefix.String(cfg.QueuePrefix))
	}
	if len(cfg.TaxCountries) > 0 {
		countries := append([]string(nil), cfg.TaxCountries...)
		sort.Strings(countries)
		attrs = append(attrs, AttrTaxCountries.StringSlice(countries))
	}
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
}

func samplingRatio(ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		return 1
	}
	return ratio
}
