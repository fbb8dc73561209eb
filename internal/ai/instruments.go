package ai

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"chatrelay/pkg/types"
)

const instrumentationName = "chatrelay/internal/ai"

// Instruments records one span and a set of metrics per provider call
type Instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	tokens   metric.Int64Counter
	failures metric.Int64Counter
}

// NewInstruments builds the instruments; nil tracer or meter selects a no-op
func NewInstruments(tracer trace.Tracer, meter metric.Meter) (*Instruments, error) {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}

	duration, err := meter.Float64Histogram("ai.request.duration",
		metric.WithDescription("AI provider request duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	tokens, err := meter.Int64Counter("ai.tokens.used",
		metric.WithDescription("Tokens reported by AI providers"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}
	failures, err := meter.Int64Counter("ai.request.failures",
		metric.WithDescription("AI provider calls that exhausted their retries"))
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}

	return &Instruments{tracer: tracer, duration: duration, tokens: tokens, failures: failures}, nil
}

// NoopInstruments never fails and records nothing
func NoopInstruments() *Instruments {
	inst, _ := NewInstruments(nil, nil)
	return inst
}

// observe wraps one GenerateResponse call
func (i *Instruments) observe(ctx context.Context, provider types.Provider, model string, call func(ctx context.Context) types.AIResponse) types.AIResponse {
	ctx, span := i.tracer.Start(ctx, "ai."+provider.String()+".generate",
		trace.WithAttributes(
			attribute.String("ai.provider", provider.String()),
			attribute.String("ai.model", model)))
	defer span.End()

	start := time.Now()
	resp := call(ctx)
	elapsed := float64(time.Since(start).Milliseconds())

	attrs := metric.WithAttributes(
		attribute.String("provider", provider.String()),
		attribute.Bool("success", resp.Success))
	i.duration.Record(ctx, elapsed, attrs)

	span.SetAttributes(attribute.Int("ai.tokens", resp.TokensUsed))
	if resp.Success {
		if resp.TokensUsed > 0 {
			i.tokens.Add(ctx, int64(resp.TokensUsed), metric.WithAttributes(attribute.String("provider", provider.String())))
		}
		span.SetStatus(codes.Ok, "")
	} else {
		i.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider.String())))
		span.SetStatus(codes.Error, resp.ErrorMessage)
	}
	return resp
}
