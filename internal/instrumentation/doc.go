// Package instrumentation provides OpenTelemetry instrumentation for the
// authflow OAuth client and its MCP server.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of callback server requests by method, path, and status
//   - http_request_duration_seconds: Histogram of callback server request durations
//
// OAuth Metrics:
//   - oauth_operations_total: Counter of exchange, refresh, validate, introspect, revoke
//     and device flow operations by result
//   - oauth_operation_duration_seconds: Histogram of OAuth operation durations
//   - oauth_device_poll_total: Counter of device flow polls by provider response
//   - oauth_pending_flows: Gauge of authorization flows waiting for a callback
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>), OAuth operations
// (oauth.<operation>) and, through otelhttp, every outbound provider request.
//
// # Configuration
//
// Instrumentation is configured from the environment (see Config):
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: authflow)
//
// # Example Usage
//
//	cfg, err := instrumentation.LoadConfig()
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordOAuthOperation(ctx, instrumentation.OperationRefresh,
//		instrumentation.ResultSuccess, clientID, time.Since(start))
package instrumentation
