package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useRecorder installs a recording tracer provider for the duration of the test.
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrsOf(span sdktrace.ReadOnlySpan) map[string]any {
	out := make(map[string]any)
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("auth_complete").
		WithOperation(OperationExchange).
		WithGrantType("authorization_code").
		WithProvider("github.com").
		WithClientID("Iv1.abc").
		Build()

	require.Len(t, attrs, 5)

	attrMap := make(map[string]any)
	for _, attr := range attrs {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}

	assert.Equal(t, "auth_complete", attrMap[SpanAttrTool])
	assert.Equal(t, OperationExchange, attrMap[SpanAttrOperation])
	assert.Equal(t, "authorization_code", attrMap[SpanAttrGrantType])
	assert.Equal(t, "github.com", attrMap[SpanAttrProvider])
	assert.Equal(t, "Iv1.abc", attrMap[SpanAttrClientID])
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithOperation(OperationRefresh).
		WithGrantType("").
		WithProvider("").
		WithClientID("").
		Build()

	// Only the operation should be present
	assert.Len(t, attrs, 1)
}

func TestStartSpan(t *testing.T) {
	recorder := useRecorder(t)

	spanCtx, span := StartSpan(context.Background(), "test-span", attribute.String("k", "v"))
	assert.NotEmpty(t, GetTraceID(spanCtx))
	assert.NotEmpty(t, GetSpanID(spanCtx))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "test-span", ended[0].Name())
	assert.Equal(t, "v", attrsOf(ended[0])["k"])
}

func TestStartToolSpan(t *testing.T) {
	recorder := useRecorder(t)

	_, span := StartToolSpan(context.Background(), "auth_status")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "tool.auth_status", ended[0].Name())
	assert.Equal(t, trace.SpanKindServer, ended[0].SpanKind())
	assert.Equal(t, "auth_status", attrsOf(ended[0])[SpanAttrTool])
}

func TestStartOAuthSpan(t *testing.T) {
	recorder := useRecorder(t)

	_, span := StartOAuthSpan(context.Background(), OperationRefresh,
		attribute.String(SpanAttrGrantType, "refresh_token"))
	SetSpanError(span, errors.New("invalid_grant"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "oauth.refresh", ended[0].Name())
	assert.Equal(t, trace.SpanKindClient, ended[0].SpanKind())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "refresh_token", attrsOf(ended[0])[SpanAttrGrantType])
	assert.Len(t, ended[0].Events(), 1, "error should be recorded as an event")
}

func TestSetSpanSuccess(t *testing.T) {
	recorder := useRecorder(t)

	_, span := StartSpan(context.Background(), "test-span")
	SetSpanError(span, nil) // nil error should be safe
	SetSpanSuccess(span)
	span.End()

	assert.Equal(t, codes.Ok, recorder.Ended()[0].Status().Code)
}

func TestAddSpanEvent(t *testing.T) {
	recorder := useRecorder(t)

	_, span := StartSpan(context.Background(), "test-span")
	AddSpanEvent(span, "slow_down", attribute.Int("interval_seconds", 10))
	span.End()

	events := recorder.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "slow_down", events[0].Name)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if traceID := GetTraceID(context.Background()); traceID != "" {
		t.Errorf("expected empty trace ID for context without span, got %q", traceID)
	}
}

func TestGetSpanID_NoSpan(t *testing.T) {
	if spanID := GetSpanID(context.Background()); spanID != "" {
		t.Errorf("expected empty span ID for context without span, got %q", spanID)
	}
}
