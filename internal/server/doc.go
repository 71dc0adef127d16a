// Package server provides the HTTP side of authflow: the OAuth callback
// listener, health probes, the Prometheus metrics server and the
// ServerContext shared with the MCP tools.
//
// # Key Components
//
// ServerContext carries the authorization Flow, the credential vault health
// check and the instrumentation recorders. Tools read their dependencies from
// it instead of from package state.
//
// CallbackServer handles the provider redirect:
//   - GET /oauth/callback consumes the pending state, exchanges the code and
//     stores the credentials
//   - GET /oauth/start redirects the browser to a fresh authorization URL
//
// Each outcome is published on CallbackServer.Results so that a CLI login can
// wait for the browser round trip.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. Readiness
// fails while the vault is unreachable or the server is shutting down.
//
// MetricsServer exposes the OpenTelemetry Prometheus exporter on its own
// port.
package server
