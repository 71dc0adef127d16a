package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/authflow/internal/audit"
	"github.com/teemow/authflow/internal/config"
	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/logging"
	"github.com/teemow/authflow/internal/oauth"
	"github.com/teemow/authflow/internal/vault"
)

// errClientNotConfigured is returned by commands that need client credentials.
var errClientNotConfigured = errors.New("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET must be set")

// app holds the wired authorization components for one command run.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	sink    audit.Sink
	vault   vault.Vault
	manager *oauth.Manager
	flow    *oauth.Flow

	closeVault func() error
}

type appOptions struct {
	metrics *instrumentation.Metrics

	// allowUnconfigured returns an app without a flow when no client ID is
	// set, instead of failing.
	allowUnconfigured bool
}

func userAgent() string {
	return "authflow/" + version
}

// newApp loads the environment and wires manager, state store, vault and flow.
func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg, opts)
}

func newAppFromConfig(cfg config.Config, opts appOptions) (*app, error) {
	logger := slog.Default()
	a := &app{
		cfg:        cfg,
		logger:     logger,
		sink:       cfg.NewAuditSink(logger),
		closeVault: func() error { return nil },
	}

	if cfg.ClientID == "" {
		if opts.allowUnconfigured {
			logger.Warn("OAuth client is not configured, authorization tools are disabled")
			return a, nil
		}
		return nil, errClientNotConfigured
	}

	manager, err := oauth.NewManager(cfg.OAuth(userAgent()),
		oauth.WithLogger(logger),
		oauth.WithEventSink(a.sink),
		oauth.WithMetrics(opts.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid OAuth configuration: %w", err)
	}

	v, closeVault, err := vault.New(cfg.Vault())
	if err != nil {
		return nil, fmt.Errorf("failed to open credential vault: %w", err)
	}

	store := oauth.NewStateStore(
		oauth.WithStoreLogger(logger),
		oauth.WithPendingObserver(func(pending int) {
			opts.metrics.RecordPendingFlows(context.Background(), pending)
		}),
	)

	flow, err := oauth.NewFlow(manager, store, v,
		oauth.WithFlowEventSink(a.sink),
		oauth.WithFlowLogger(logger),
	)
	if err != nil {
		store.Shutdown()
		_ = closeVault()
		return nil, err
	}

	a.manager = manager
	a.vault = v
	a.flow = flow
	a.closeVault = closeVault
	return a, nil
}

// stateTTL is the configured lifetime of a pending authorization.
func (a *app) stateTTL() time.Duration {
	return oauth.ClampTTL(a.cfg.StateTTL)
}

// startOptions are the defaults for a browser authorization.
func (a *app) startOptions() oauth.StartOptions {
	return oauth.StartOptions{
		CallbackMethod: oauth.CallbackLocalServer,
		Resource:       a.cfg.ResourceURI,
		TTL:            a.stateTTL(),
	}
}

// Close stops the state store sweeper and releases the vault.
func (a *app) Close() {
	if a.flow != nil {
		a.flow.Close()
	}
	if err := a.closeVault(); err != nil {
		a.logger.Warn("Failed to close credential vault", logging.Err(err))
	}
}
