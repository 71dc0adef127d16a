package oauth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/authflow/internal/instrumentation"
)

func (m *Manager) startSpan(ctx context.Context, op, grantType string) (context.Context, trace.Span) {
	attrs := instrumentation.NewSpanAttributeBuilder().
		WithGrantType(grantType).
		WithProvider(m.provider).
		WithClientID(m.cfg.ClientID).
		Build()
	return instrumentation.StartOAuthSpan(ctx, op, attrs...)
}

// finish closes out an operation on its span and in metrics.
func (m *Manager) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	result := instrumentation.ResultSuccess
	if err != nil {
		result = instrumentation.ResultFailure
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	m.metrics.RecordOAuthOperation(ctx, op, result, m.cfg.ClientID, m.now().Sub(start))
}
