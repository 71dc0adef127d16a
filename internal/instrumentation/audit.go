package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation captures information about an MCP tool call for operational
// logging. It never carries tokens; tool arguments are not recorded.
type ToolInvocation struct {
	Tool string

	// ClientID is the OAuth client the tool acted for
	ClientID string
	// Operation is the OAuth operation the tool drove, if any
	Operation string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", ti.ClientID))
	}
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}

	return attrs
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithClient sets the OAuth client identifier.
func (ti *ToolInvocation) WithClient(clientID string) *ToolInvocation {
	ti.ClientID = clientID
	return ti
}

// WithOperation sets the OAuth operation.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// InvocationLogger writes tool invocations to a slog.Logger.
type InvocationLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewInvocationLogger creates a new InvocationLogger (slog.Default() if logger is nil).
func NewInvocationLogger(logger *slog.Logger) *InvocationLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvocationLogger{
		logger:  logger,
		enabled: true,
	}
}

// SetEnabled sets whether invocation logging is enabled.
func (il *InvocationLogger) SetEnabled(enabled bool) {
	il.enabled = enabled
}

// LogToolInvocation logs a tool invocation. Failures are logged at warn level.
func (il *InvocationLogger) LogToolInvocation(ti *ToolInvocation) {
	if il == nil || !il.enabled {
		return
	}

	attrs := ti.LogAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ti.Success {
		il.logger.Info("tool_executed", args...)
	} else {
		il.logger.Warn("tool_failed", args...)
	}
}
