package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/logging"
	"github.com/teemow/authflow/internal/oauth"
)

const (
	// DefaultCallbackAddr matches the default redirect URI.
	DefaultCallbackAddr = "localhost:8085"

	// DefaultCallbackPath is the redirect URI path the provider calls back on.
	DefaultCallbackPath = "/oauth/callback"

	// DefaultStartPath redirects the browser to a fresh authorization URL.
	DefaultStartPath = "/oauth/start"
)

//go:embed templates/*.html
var templatesFS embed.FS

var callbackTemplate = template.Must(template.ParseFS(templatesFS, "templates/callback.html"))

// ErrAuthorizationDenied is reported when the provider redirects back with an
// error parameter instead of a code.
var ErrAuthorizationDenied = errors.New("authorization was not granted")

// CallbackResult is the outcome of one callback request.
type CallbackResult struct {
	State string
	Token *oauth.TokenResponse
	Err   error
}

// CallbackServerConfig configures the callback listener.
type CallbackServerConfig struct {
	Addr string
	Path string

	// StartPath serves a redirect to a fresh authorization URL. Empty
	// disables it.
	StartPath string

	// Flow completes the authorization. Required.
	Flow *oauth.Flow

	// StartOptions are used by the start endpoint.
	StartOptions oauth.StartOptions

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// CallbackServer receives the provider redirect, exchanges the code and
// publishes each outcome on Results.
type CallbackServer struct {
	addr      string
	path      string
	startPath string
	flow      *oauth.Flow
	startOpts oauth.StartOptions
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	results   chan CallbackResult

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// NewCallbackServer creates a callback server.
func NewCallbackServer(config CallbackServerConfig) (*CallbackServer, error) {
	if config.Flow == nil {
		return nil, errors.New("flow is required for the callback server")
	}
	if config.Addr == "" {
		config.Addr = DefaultCallbackAddr
	}
	if config.Path == "" {
		config.Path = DefaultCallbackPath
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &CallbackServer{
		addr:      config.Addr,
		path:      config.Path,
		startPath: config.StartPath,
		flow:      config.Flow,
		startOpts: config.StartOptions,
		metrics:   config.Metrics,
		logger:    config.Logger,
		results:   make(chan CallbackResult, 1),
	}, nil
}

// Results delivers callback outcomes. Outcomes are dropped while the
// buffered slot is full.
func (s *CallbackServer) Results() <-chan CallbackResult {
	return s.results
}

// Addr returns the listen address.
func (s *CallbackServer) Addr() string {
	return s.addr
}

// Handler returns the callback mux wrapped in request metrics.
func (s *CallbackServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)
	if s.startPath != "" {
		mux.HandleFunc(s.startPath, s.handleStart)
	}
	return s.instrument(mux)
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *CallbackServer) Start() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("Starting OAuth callback server", "addr", s.addr, "path", s.path)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the callback server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("Shutting down OAuth callback server")
	return srv.Shutdown(ctx)
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	state := q.Get("state")

	if providerErr := q.Get("error"); providerErr != "" {
		err := fmt.Errorf("%w: %s", ErrAuthorizationDenied, providerErr)
		if desc := q.Get("error_description"); desc != "" {
			err = fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, providerErr, desc)
		}
		s.logger.Warn("Provider returned an authorization error",
			logging.State(state), slog.String("error_code", providerErr))
		if state != "" {
			s.flow.Store().Delete(state)
		}
		s.publish(CallbackResult{State: state, Err: err})
		s.render(w, http.StatusBadRequest, callbackPage{
			Title:   "Authorization failed",
			Message: "The provider did not grant access.",
			Detail:  err.Error(),
		})
		return
	}

	code := q.Get("code")
	if code == "" || state == "" {
		s.render(w, http.StatusBadRequest, callbackPage{
			Title:   "Invalid callback",
			Message: "The callback is missing the code or state parameter.",
		})
		return
	}

	tok, err := s.flow.Complete(r.Context(), code, state)
	if err != nil {
		s.logger.Warn("Failed to complete authorization", logging.State(state), logging.Err(err))
		s.publish(CallbackResult{State: state, Err: err})

		status := http.StatusBadGateway
		if oauth.KindOf(err) == oauth.KindValidation {
			status = http.StatusBadRequest
		}
		s.render(w, status, callbackPage{
			Title:   "Authorization failed",
			Message: "The authorization could not be completed.",
			Detail:  err.Error(),
		})
		return
	}

	s.publish(CallbackResult{State: state, Token: tok})
	s.render(w, http.StatusOK, callbackPage{
		Success: true,
		Title:   "Authorization complete",
		Message: "The credentials have been stored.",
	})
}

func (s *CallbackServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := s.flow.Start(r.Context(), s.startOpts)
	if err != nil {
		s.logger.Error("Failed to start authorization", logging.Err(err))
		s.render(w, http.StatusInternalServerError, callbackPage{
			Title:   "Authorization unavailable",
			Message: "A new authorization request could not be created.",
		})
		return
	}
	http.Redirect(w, r, req.URL, http.StatusFound)
}

func (s *CallbackServer) publish(result CallbackResult) {
	select {
	case s.results <- result:
	default:
		s.logger.Debug("Dropping callback result, no receiver", logging.State(result.State))
	}
}

type callbackPage struct {
	Success bool
	Title   string
	Message string
	Detail  string
}

func (s *CallbackServer) render(w http.ResponseWriter, status int, page callbackPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := callbackTemplate.Execute(w, page); err != nil {
		s.logger.Error("Failed to render callback page", logging.Err(err))
	}
}

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *CallbackServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, s.routeLabel(r.URL.Path), rec.status, time.Since(start))
	})
}

// routeLabel keeps unknown paths out of the metric labels.
func (s *CallbackServer) routeLabel(path string) string {
	switch path {
	case s.path, s.startPath:
		return path
	default:
		return "other"
	}
}
