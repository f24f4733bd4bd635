// Package tracing wires OpenTelemetry tracing for upstream calls.
//
// When tracing is disabled the global no-op provider stays in place and
// StartClientSpan costs next to nothing.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"scalar-proxy-go/internal/config"
)

// TracerName identifies spans emitted by this service.
const TracerName = "scalar-proxy"

// Version is a string type for dependency injection of the build version.
type Version string

// Provider owns the SDK tracer provider when tracing is enabled.
type Provider struct {
	cfg            config.TracingConfig
	version        Version
	logger         *slog.Logger
	tracerProvider *sdktrace.TracerProvider
}

// NewProvider creates a Provider. Nothing is exported until Start is called.
func NewProvider(cfg *config.Config, v Version, logger *slog.Logger) *Provider {
	return &Provider{
		cfg:     cfg.Tracing,
		version: v,
		logger:  logger.With("component", "tracing"),
	}
}

// Start installs the OTLP/gRPC exporter and the W3C propagator globally.
func (p *Provider) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		return nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.cfg.Endpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", TracerName),
			attribute.String("service.version", string(p.version)),
		),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(Sampler(p.cfg.Rate()))),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	p.logger.Info("tracing enabled",
		"endpoint", p.cfg.Endpoint,
		"sample_rate", p.cfg.Rate(),
	)
	return nil
}

// Stop flushes pending spans and shuts the provider down.
func (p *Provider) Stop(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	p.logger.Info("stopping tracing provider")
	return p.tracerProvider.Shutdown(ctx)
}

// Sampler maps a sample rate onto an SDK sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// StartClientSpan starts a client span for an outbound HTTP call.
func StartClientSpan(ctx context.Context, method, target string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "upstream "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		),
	)
}

// StatusCode is the span attribute for an upstream response status.
func StatusCode(code int) attribute.KeyValue {
	return attribute.Int("http.response.status_code", code)
}

// Inject writes the span context in ctx into header using the global propagator.
func Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
