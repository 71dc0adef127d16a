package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/oauth"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerContext holds the dependencies shared by the MCP tools and the HTTP
// servers.
type ServerContext struct {
	ctx              context.Context
	cancel           context.CancelFunc
	flow             *oauth.Flow
	vault            Pinger
	metrics          *instrumentation.Metrics
	invocationLogger *instrumentation.InvocationLogger
	logger           *slog.Logger
	mu               sync.RWMutex
	shutdown         bool
}

// ServerContextOption configures a ServerContext.
type ServerContextOption func(*ServerContext)

// WithMetrics sets the metrics recorder. A nil recorder disables metrics.
func WithMetrics(m *instrumentation.Metrics) ServerContextOption {
	return func(sc *ServerContext) {
		sc.metrics = m
	}
}

// WithInvocationLogger sets the logger used for tool invocation records.
func WithInvocationLogger(il *instrumentation.InvocationLogger) ServerContextOption {
	return func(sc *ServerContext) {
		sc.invocationLogger = il
	}
}

// WithVault sets the credential store checked by the readiness probe.
func WithVault(v Pinger) ServerContextOption {
	return func(sc *ServerContext) {
		sc.vault = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerContextOption {
	return func(sc *ServerContext) {
		if logger != nil {
			sc.logger = logger
		}
	}
}

// NewServerContext creates a new server context. flow may be nil when no
// client credentials are configured; tools then report the flow as
// unavailable.
func NewServerContext(ctx context.Context, flow *oauth.Flow, opts ...ServerContextOption) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		flow:   flow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Flow returns the authorization flow coordinator, or nil if none is configured.
func (sc *ServerContext) Flow() *oauth.Flow {
	return sc.flow
}

// Vault returns the credential store health checker, or nil.
func (sc *ServerContext) Vault() Pinger {
	return sc.vault
}

// Metrics returns the metrics recorder. It may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// InvocationLogger returns the tool invocation logger. It may be nil.
func (sc *ServerContext) InvocationLogger() *instrumentation.InvocationLogger {
	return sc.invocationLogger
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and stops the pending flow sweeper.
// Calling it more than once is a no-op.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if sc.flow != nil {
		sc.flow.Close()
	}
	return nil
}
