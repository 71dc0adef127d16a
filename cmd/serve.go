package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/logging"
	"github.com/teemow/authflow/internal/resources"
	"github.com/teemow/authflow/internal/server"
	"github.com/teemow/authflow/internal/tools/auth_tools"
)

// Transport names accepted by --transport.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// MetricsConfig holds metrics server settings.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type serveOptions struct {
	transport    string
	httpAddr     string
	yolo         bool
	callback     bool
	callbackAddr string
	metrics      MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server. The server exposes the
authorization flows as tools so that an AI assistant can sign in, refresh and
validate tokens on the user's behalf.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP on --http-addr, with /healthz and /readyz

Unless --callback=false is given, an OAuth callback server listens on the host
and port of OAUTH_REDIRECT_URI so that browser authorizations complete
without pasting codes.

By default only auth_status and auth_validate are registered. Use --yolo to
register the tools that change stored credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "false" {
				opts.metrics.Enabled = false
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					opts.metrics.Addr = addr
				}
			}
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Register tools that start flows or change stored credentials. Default is read-only mode.")
	cmd.Flags().BoolVar(&opts.callback, "callback", true, "Run the OAuth callback server")
	cmd.Flags().StringVar(&opts.callbackAddr, "callback-addr", "", "Callback server address (default: host and port of OAUTH_REDIRECT_URI)")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (not used with stdio). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// stoppable is an HTTP server run by the serve group.
type stoppable interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func runServe(parent context.Context, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	if opts.transport != transportStdio && opts.transport != transportStreamableHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", opts.transport, transportStdio, transportStreamableHTTP)
	}

	// Setup graceful shutdown
	signalCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	instrConfig, err := instrumentation.LoadConfig()
	if err != nil {
		return err
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(signalCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	a, err := newApp(appOptions{metrics: metrics, allowUnconfigured: true})
	if err != nil {
		return err
	}
	defer a.Close()

	scOpts := []server.ServerContextOption{
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithInvocationLogger(instrumentation.NewInvocationLogger(logger)),
	}
	if a.vault != nil {
		scOpts = append(scOpts, server.WithVault(a.vault))
	}
	serverContext, err := server.NewServerContext(signalCtx, a.flow, scOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	health := server.NewHealthChecker(serverContext)

	mcpSrv := mcpserver.NewMCPServer("authflow", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)

	readOnly := !opts.yolo
	if readOnly {
		logger.Info("Starting server in READ-ONLY mode (use --yolo to enable authorization tools)")
	}
	if err := auth_tools.RegisterAuthTools(mcpSrv, serverContext, readOnly); err != nil {
		return fmt.Errorf("failed to register auth tools: %w", err)
	}
	if err := resources.RegisterAuthResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}

	ctx, cancel := context.WithCancel(signalCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var servers []stoppable

	if opts.callback && a.flow != nil {
		addr, path, err := callbackAddress(a.cfg.RedirectURI)
		if err != nil && opts.callbackAddr == "" {
			return err
		}
		if opts.callbackAddr != "" {
			addr = opts.callbackAddr
		}

		cs, err := server.NewCallbackServer(server.CallbackServerConfig{
			Addr:         addr,
			Path:         path,
			StartPath:    server.DefaultStartPath,
			Flow:         a.flow,
			StartOptions: a.startOptions(),
			Metrics:      metrics,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		servers = append(servers, cs)
		g.Go(func() error {
			for {
				select {
				case res := <-cs.Results():
					if res.Err != nil {
						logger.Warn("Authorization callback failed", logging.State(res.State), logging.Err(res.Err))
					} else {
						logger.Info("Authorization callback completed", logging.State(res.State))
					}
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	if opts.transport != transportStdio && opts.metrics.Enabled && provider.PrometheusEnabled() {
		ms, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metrics.Addr,
			InstrumentationProvider: provider,
			Health:                  health,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		servers = append(servers, ms)
	}

	switch opts.transport {
	case transportStdio:
		g.Go(func() error {
			defer cancel()
			stdio := mcpserver.NewStdioServer(mcpSrv)
			if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio server stopped with error: %w", err)
			}
			return nil
		})
	case transportStreamableHTTP:
		servers = append(servers, newMCPHTTPServer(mcpSrv, health, opts.httpAddr, logger))
	}

	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		logger.Info("Shutdown signal received, stopping servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// mcpHTTPServer serves the streamable HTTP transport and the health probes.
type mcpHTTPServer struct {
	srv    *http.Server
	logger *slog.Logger
}

func newMCPHTTPServer(mcpSrv *mcpserver.MCPServer, health *server.HealthChecker, addr string, logger *slog.Logger) *mcpHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv, mcpserver.WithEndpointPath("/mcp")))
	health.RegisterHealthEndpoints(mux)

	return &mcpHTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           otelhttp.NewHandler(mux, "mcp"),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func (s *mcpHTTPServer) Start() error {
	s.logger.Info("Starting MCP server", "transport", transportStreamableHTTP, "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *mcpHTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// callbackAddress derives the listen address and path from a loopback
// redirect URI.
func callbackAddress(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("redirect URI %q is not an absolute URL", redirectURI)
	}
	if u.Port() == "" {
		return "", "", fmt.Errorf("redirect URI %q has no port for the local callback server; set --callback-addr", redirectURI)
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return net.JoinHostPort(u.Hostname(), u.Port()), path, nil
}
