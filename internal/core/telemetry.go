// AngelaMos | 2026
// telemetry.go

package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/deez125/novix-gateway/internal/config"
)

const (
	instrumentationName = "github.com/deez125/novix-gateway"
	defaultSampleRate   = 0.1
	defaultOtelTimeout  = 5 * time.Second
	shutdownFlushLimit  = 10 * time.Second
)

// Telemetry owns the tracer provider installed as the otel global.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
}

// NewTelemetry exports spans over OTLP/gRPC. Webhook and reconcile spans
// match the always-sample prefixes, so every billing event and access change
// is traced while request noise follows SampleRate.
func NewTelemetry(
	ctx context.Context,
	otelCfg config.OtelConfig,
	appCfg config.AppConfig,
) (*Telemetry, error) {
	if !otelCfg.Enabled || otelCfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry: endpoint not configured: %w", ErrInvalidInput)
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOptions(otelCfg)...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(otelCfg.ServiceName),
			semconv.ServiceVersion(appCfg.Version),
			semconv.DeploymentEnvironment(appCfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(orDefault(otelCfg.BatchTimeout)),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(NewSampler(otelCfg)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{TracerProvider: tp}, nil
}

func exporterOptions(c config.OtelConfig) []otlptracegrpc.Option {
	creds := credentials.NewClientTLSFromCert(nil, "")
	if c.Insecure {
		creds = insecure.NewCredentials()
	}
	return []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(c.Endpoint),
		otlptracegrpc.WithTimeout(orDefault(c.ExportTimeout)),
		otlptracegrpc.WithTLSCredentials(creds),
	}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultOtelTimeout
	}
	return d
}

// NewSampler keeps root spans named with an always-sample prefix and
// ratio-samples the rest. Child spans follow their parent.
func NewSampler(c config.OtelConfig) sdktrace.Sampler {
	rate := c.SampleRate
	if rate <= 0 || rate > 1 {
		rate = defaultSampleRate
	}
	return sdktrace.ParentBased(prefixSampler{
		prefixes: c.AlwaysSample,
		fallback: sdktrace.TraceIDRatioBased(rate),
	})
}

type prefixSampler struct {
	prefixes []string
	fallback sdktrace.Sampler
}

func (s prefixSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(p.Name, prefix) {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
			}
		}
	}
	return s.fallback.ShouldSample(p)
}

func (s prefixSampler) Description() string {
	return fmt.Sprintf("PrefixSampler{%s,%s}", strings.Join(s.prefixes, ","), s.fallback.Description())
}

// Shutdown flushes buffered spans. A nil Telemetry is a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.TracerProvider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownFlushLimit)
	defer cancel()

	if err := t.TracerProvider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

// StartSpan opens a span on the global provider, which stays the otel no-op
// when telemetry is off.
func StartSpan(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(
		ctx,
		name,
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on the span, if any, and closes it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
