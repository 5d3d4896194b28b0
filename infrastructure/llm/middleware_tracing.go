package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ahrav/go-reward/infrastructure/llm"

type tracedLLM struct {
	next   CoreLLM
	tracer trace.Tracer
}

// TracingMiddleware opens a span per judge call on the global tracer
// provider.
func TracingMiddleware() Middleware {
	return TracingMiddlewareWithProvider(otel.GetTracerProvider())
}

// TracingMiddlewareWithProvider opens a span per judge call on tp.
func TracingMiddlewareWithProvider(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(tracerName)
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{next: next, tracer: tracer}
	}
}

// Complete implements CoreLLM.
func (t *tracedLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	ctx, span := t.tracer.Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.next.Provider()),
			attribute.String("llm.model", t.next.Model()),
			attribute.Int("llm.prompt.length", len(req.Prompt)),
			attribute.Int("llm.max_tokens", req.maxTokens()),
		),
	)
	defer span.End()

	resp, err := t.next.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.TokensIn),
		attribute.Int("llm.tokens.output", resp.TokensOut),
	)
	return resp, nil
}

// Model implements CoreLLM.
func (t *tracedLLM) Model() string { return t.next.Model() }

// Provider implements CoreLLM.
func (t *tracedLLM) Provider() string { return t.next.Provider() }
