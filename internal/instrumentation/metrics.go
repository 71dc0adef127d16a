package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrResponse  = "response"
	attrTool      = "tool"
	attrClientID  = "client_id"
)

// Metrics provides methods for recording observability metrics.
// A nil or zero Metrics is a valid no-op recorder.
type Metrics struct {
	// HTTP metrics (callback server)
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// OAuth metrics
	oauthOperationsTotal   metric.Int64Counter
	oauthOperationDuration metric.Float64Histogram
	devicePollTotal        metric.Int64Counter
	pendingFlows           metric.Int64Gauge

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.oauthOperationsTotal, err = meter.Int64Counter(
		"oauth_operations_total",
		metric.WithDescription("Total number of OAuth client operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_operations_total counter: %w", err)
	}

	m.oauthOperationDuration, err = meter.Float64Histogram(
		"oauth_operation_duration_seconds",
		metric.WithDescription("OAuth client operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 300.0, 900.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_operation_duration_seconds histogram: %w", err)
	}

	m.devicePollTotal, err = meter.Int64Counter(
		"oauth_device_poll_total",
		metric.WithDescription("Device flow poll attempts by provider response"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_device_poll_total counter: %w", err)
	}

	m.pendingFlows, err = meter.Int64Gauge(
		"oauth_pending_flows",
		metric.WithDescription("Authorization flows waiting for a callback"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_pending_flows gauge: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthOperation records one OAuth client operation.
//
// Parameters:
//   - operation: one of the Operation* constants (exchange, refresh, revoke, ...)
//   - result: ResultSuccess or ResultFailure
//   - clientID: only attached when detailed labels are enabled
//   - duration: time taken including network round trips
func (m *Metrics) RecordOAuthOperation(ctx context.Context, operation, result, clientID string, duration time.Duration) {
	if m == nil || m.oauthOperationsTotal == nil || m.oauthOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && clientID != "" {
		attrs = append(attrs, attribute.String(attrClientID, clientID))
	}

	m.oauthOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.oauthOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDevicePoll records a single device flow poll and what the provider answered
// (success, authorization_pending, slow_down, a terminal code, or transport_error).
func (m *Metrics) RecordDevicePoll(ctx context.Context, response string) {
	if m == nil || m.devicePollTotal == nil {
		return
	}

	m.devicePollTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResponse, response)))
}

// RecordPendingFlows sets the number of authorization flows awaiting a callback.
func (m *Metrics) RecordPendingFlows(ctx context.Context, count int) {
	if m == nil || m.pendingFlows == nil {
		return
	}

	m.pendingFlows.Record(ctx, int64(count))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
