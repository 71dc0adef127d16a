package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teemow/authflow/internal/audit"
)

const (
	testClientID     = "abc"
	testClientSecret = "s3cr3t-value"
	testUserAgent    = "authflow-test/1.0"
)

// recordedRequest is what the fake provider saw.
type recordedRequest struct {
	Method    string
	Path      string
	RawQuery  string
	UserAgent string
	Header    http.Header
	Form      url.Values
	Body      string
}

// fakeProvider is a minimal GitHub-shaped OAuth provider.
type fakeProvider struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest

	token  http.HandlerFunc
	device http.HandlerFunc
	user   http.HandlerFunc
	app    http.HandlerFunc
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{t: t}
	p.token = jsonHandler(http.StatusOK, map[string]any{
		"access_token":  "gho_access",
		"token_type":    "bearer",
		"scope":         "repo,read:org",
		"refresh_token": "ghr_refresh",
		"expires_in":    28800,
	})
	p.device = jsonHandler(http.StatusOK, map[string]any{
		"device_code":      "dev-code-1",
		"user_code":        "ABCD-1234",
		"verification_uri": "https://github.com/login/device",
		"expires_in":       900,
		"interval":         5,
	})
	p.user = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OAuth-Scopes", "repo, read:org")
		writeJSON(w, http.StatusOK, map[string]any{"login": "octocat"})
	}
	p.app = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"app":        map[string]any{"client_id": testClientID},
			"expires_at": nil,
		})
	}

	p.srv = httptest.NewServer(http.HandlerFunc(p.serveHTTP))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		RawQuery:  r.URL.RawQuery,
		UserAgent: r.UserAgent(),
		Header:    r.Header.Clone(),
		Body:      string(body),
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		rec.Form, _ = url.ParseQuery(string(body))
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))

	p.mu.Lock()
	p.requests = append(p.requests, rec)
	token, device, user, app := p.token, p.device, p.user, p.app
	p.mu.Unlock()

	switch {
	case r.URL.Path == "/login/oauth/access_token":
		token(w, r)
	case r.URL.Path == "/login/device/code":
		device(w, r)
	case r.URL.Path == "/user":
		user(w, r)
	case strings.HasPrefix(r.URL.Path, "/applications/"):
		app(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (p *fakeProvider) setToken(h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = h
}

func (p *fakeProvider) setUser(h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = h
}

func (p *fakeProvider) setApp(h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.app = h
}

func (p *fakeProvider) setDevice(h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = h
}

func (p *fakeProvider) recorded() []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedRequest(nil), p.requests...)
}

func (p *fakeProvider) requestsTo(path string) []recordedRequest {
	var out []recordedRequest
	for _, r := range p.recorded() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (p *fakeProvider) config() Config {
	return Config{
		ClientID:                    testClientID,
		ClientSecret:                testClientSecret,
		RedirectURI:                 "http://localhost:8085/oauth/callback",
		Scopes:                      []string{"repo", "read:org"},
		AuthorizationEndpoint:       p.srv.URL + "/login/oauth/authorize",
		TokenEndpoint:               p.srv.URL + "/login/oauth/access_token",
		DeviceAuthorizationEndpoint: p.srv.URL + "/login/device/code",
		ProviderBaseURL:             p.srv.URL,
		UserAgent:                   testUserAgent,
		ResourceURI:                 "https://api.example.com",
	}
}

func jsonHandler(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testManager struct {
	*Manager
	provider *fakeProvider
	sink     *audit.ChannelSink
	clock    *fakeClock

	mu    sync.Mutex
	waits []time.Duration
}

// newTestManager wires a Manager to a fake provider, a fake clock that
// advances on every poll wait, and a buffered audit sink.
func newTestManager(t *testing.T, opts ...Option) *testManager {
	t.Helper()
	p := newFakeProvider(t)
	clock := newFakeClock()
	sink := audit.NewChannelSink(256)

	all := append([]Option{
		WithHTTPClient(p.srv.Client()),
		WithEventSink(sink),
		WithClock(clock.Now),
	}, opts...)
	m, err := NewManager(p.config(), all...)
	require.NoError(t, err)

	tm := &testManager{Manager: m, provider: p, sink: sink, clock: clock}
	m.sleep = func(ctx context.Context, d time.Duration) error {
		tm.mu.Lock()
		tm.waits = append(tm.waits, d)
		tm.mu.Unlock()
		clock.Advance(d)
		return ctx.Err()
	}
	return tm
}

func (tm *testManager) recordedWaits() []time.Duration {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append([]time.Duration(nil), tm.waits...)
}

// drainEvents returns every audit event recorded so far.
func drainEvents(sink *audit.ChannelSink) []audit.Event {
	var out []audit.Event
	for {
		select {
		case e := <-sink.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventsFor(events []audit.Event, action audit.Action) []audit.Event {
	var out []audit.Event
	for _, e := range events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// scriptedTokenHandler answers device token polls from a list of error
// codes; an empty code means success.
func scriptedTokenHandler(codes ...string) http.HandlerFunc {
	var mu sync.Mutex
	i := 0
	return func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		code := codes[len(codes)-1]
		if i < len(codes) {
			code = codes[i]
		}
		i++
		mu.Unlock()

		if code == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "gho_device",
				"token_type":   "bearer",
				"scope":        "repo",
			})
			return
		}
		// GitHub reports pending device flows with HTTP 200.
		writeJSON(w, http.StatusOK, map[string]any{
			"error":             code,
			"error_description": "scripted " + code,
		})
	}
}
