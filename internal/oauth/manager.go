package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/authflow/internal/audit"
	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/logging"
)

const auditSource = "oauth.manager"

// maxResponseBody caps how much of a provider response is read.
const maxResponseBody = 1 << 20

// Manager performs every client-side OAuth operation against one provider.
// It holds no per-flow state and is safe for concurrent use.
type Manager struct {
	cfg         Config
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	audience    *AudienceValidator

	sink     audit.Sink
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	provider string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	refreshGroup singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for provider requests. Its transport is
// wrapped so the configured User-Agent is always sent.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

// WithEventSink sets the audit sink. A nil sink keeps the no-op default.
func WithEventSink(sink audit.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics enables OAuth operation metrics.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		sink:     audit.NopSink{},
		logger:   slog.Default(),
		provider: instrumentation.ProviderHost(cfg.ProviderBaseURL),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.httpClient = newHTTPClient(cfg, m.httpClient)
	m.logger = logging.WithProvider(m.logger, m.provider)
	m.oauthConfig = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       cfg.AuthorizationEndpoint,
			TokenURL:      cfg.TokenEndpoint,
			DeviceAuthURL: cfg.DeviceAuthorizationEndpoint,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
	m.audience = NewAudienceValidator(cfg, m.httpClient, m.now)

	return m, nil
}

// Config returns a copy of the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg.WithDefaults()
}

// ClientID returns the configured client identifier.
func (m *Manager) ClientID() string {
	return m.cfg.ClientID
}

// ValidateState compares a returned state with the issued one in constant time.
func (m *Manager) ValidateState(received, expected string) bool {
	return ValidateState(received, expected)
}

func (m *Manager) ready(op string) error {
	if m == nil || m.oauthConfig == nil {
		return &Error{Kind: KindConfiguration, Op: op, Code: ErrNotConfigured.Code, Description: ErrNotConfigured.Description}
	}
	return nil
}

// RequestOption adjusts a single authorization or exchange request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	scopes      []string
	redirectURI string
	resource    string
	state       string
	extra       [][2]string
}

// WithScopes overrides the configured scopes.
func WithScopes(scopes ...string) RequestOption {
	return func(o *requestOptions) {
		o.scopes = append([]string(nil), scopes...)
	}
}

// WithRedirectURI overrides the configured redirect URI.
func WithRedirectURI(uri string) RequestOption {
	return func(o *requestOptions) {
		o.redirectURI = uri
	}
}

// WithResource overrides the RFC 8707 resource indicator.
func WithResource(uri string) RequestOption {
	return func(o *requestOptions) {
		o.resource = uri
	}
}

// WithState sends state with a code exchange.
func WithState(state string) RequestOption {
	return func(o *requestOptions) {
		o.state = state
	}
}

// WithExtraParam adds a provider-specific parameter. Standard parameters
// always take precedence.
func WithExtraParam(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.extra = append(o.extra, [2]string{key, value})
	}
}

func (m *Manager) requestOptions(opts []RequestOption) requestOptions {
	o := requestOptions{
		scopes:      m.cfg.Scopes,
		redirectURI: m.cfg.RedirectURI,
		resource:    m.cfg.ResourceURI,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// BuildAuthorizationURL returns the URL the user must visit to authorize.
// It carries client_id, redirect_uri, scope, state, the S256 challenge,
// response_type=code and resource.
func (m *Manager) BuildAuthorizationURL(state, codeChallenge string, opts ...RequestOption) (string, error) {
	if err := m.ready("authorize"); err != nil {
		return "", err
	}
	if state == "" {
		return "", validationError("authorize", "state is required")
	}
	if codeChallenge == "" {
		return "", validationError("authorize", "code challenge is required")
	}

	o := m.requestOptions(opts)
	c := *m.oauthConfig
	c.RedirectURL = o.redirectURI
	c.Scopes = o.scopes

	params := make([]oauth2.AuthCodeOption, 0, len(o.extra)+4)
	for _, kv := range o.extra {
		params = append(params, oauth2.SetAuthURLParam(kv[0], kv[1]))
	}
	params = append(params,
		oauth2.SetAuthURLParam("scope", strings.Join(o.scopes, " ")),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", CodeChallengeMethodS256),
		oauth2.SetAuthURLParam("resource", o.resource),
	)

	authURL := c.AuthCodeURL(state, params...)

	// AuthCodeURL sets client_id, response_type, redirect_uri and state before
	// applying options, so re-assert them in case an extra param collided.
	u, err := url.Parse(authURL)
	if err != nil {
		return "", configError("authorize", "authorization endpoint is not a valid URL")
	}
	q := u.Query()
	q.Set("client_id", m.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", o.redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode trades an authorization code for tokens. Failures are audited;
// success is left for the caller to audit once the tokens are stored.
func (m *Manager) ExchangeCode(ctx context.Context, code, codeVerifier string, opts ...RequestOption) (*TokenResponse, error) {
	const op = instrumentation.OperationExchange
	if err := m.ready(op); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, validationError(op, "authorization code is required")
	}
	if codeVerifier == "" {
		return nil, validationError(op, "code verifier is required")
	}

	ctx, span := m.startSpan(ctx, op, GrantTypeAuthorizationCode)
	defer span.End()
	start := m.now()

	o := m.requestOptions(opts)
	c := *m.oauthConfig
	c.RedirectURL = o.redirectURI

	params := []oauth2.AuthCodeOption{
		oauth2.VerifierOption(codeVerifier),
		oauth2.SetAuthURLParam("resource", o.resource),
	}
	if o.state != "" {
		params = append(params, oauth2.SetAuthURLParam("state", o.state))
	}

	tok, err := c.Exchange(m.clientContext(ctx), code, params...)
	if err != nil {
		oe := classifyError(op, err)
		m.finish(ctx, span, op, start, oe)
		audit.Record(ctx, m.sink, audit.ActionCodeExchange, audit.OutcomeFailure, auditSource, errorDetails(oe))
		m.logger.Warn("Authorization code exchange failed", logging.Operation(op), logging.Err(oe))
		return nil, oe
	}

	m.finish(ctx, span, op, start, nil)
	return m.tokenResponse(tok, ""), nil
}

// RefreshToken obtains a new access token. If the provider does not rotate
// the refresh token the one passed in is kept. Concurrent calls with the
// same refresh token share one request; a caller that gives up early does
// not cancel it for the others.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	const op = instrumentation.OperationRefresh
	if err := m.ready(op); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, validationError(op, "refresh token is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyError(op, err)
	}

	ch := m.refreshGroup.DoChan(logging.Fingerprint(refreshToken), func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if m.httpClient.Timeout > 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, m.httpClient.Timeout)
			defer cancel()
		}
		return m.refresh(shared, refreshToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		tok := *res.Val.(*TokenResponse)
		return &tok, nil
	case <-ctx.Done():
		return nil, classifyError(op, ctx.Err())
	}
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	const op = instrumentation.OperationRefresh

	ctx, span := m.startSpan(ctx, op, GrantTypeRefreshToken)
	defer span.End()
	start := m.now()

	src := m.oauthConfig.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		oe := classifyError(op, err)
		m.finish(ctx, span, op, start, oe)
		audit.Record(ctx, m.sink, audit.ActionTokenRefresh, audit.OutcomeFailure, auditSource, errorDetails(oe))
		m.logger.Warn("Token refresh failed", logging.Operation(op), logging.Err(oe))
		return nil, oe
	}

	resp := m.tokenResponse(tok, refreshToken)
	m.finish(ctx, span, op, start, nil)
	audit.Record(ctx, m.sink, audit.ActionTokenRefresh, audit.OutcomeSuccess, auditSource, map[string]string{
		"rotated": strconv.FormatBool(resp.RefreshToken != refreshToken),
		"scope":   resp.Scope,
	})
	return resp, nil
}

// ValidateToken checks that token is live and was issued to this client.
// It never returns an error; every failure is a negative result, and every
// outcome is audited.
func (m *Manager) ValidateToken(ctx context.Context, token, expectedAudience string) TokenValidation {
	const op = instrumentation.OperationValidate
	if err := m.ready(op); err != nil {
		return TokenValidation{Reason: ReasonInactive, Error: err.Error()}
	}

	ctx, span := m.startSpan(ctx, op, "")
	defer span.End()
	start := m.now()

	result := m.validate(ctx, token, expectedAudience)

	outcome := audit.OutcomeSuccess
	details := map[string]string{"token": logging.Fingerprint(token)}
	var failure error
	if !result.Valid {
		outcome = audit.OutcomeFailure
		details["reason"] = result.Reason
		details["error"] = result.Error
		failure = newError(KindValidation, op, result.Reason, result.Error, nil)
	} else {
		details["scopes"] = strings.Join(result.Scopes, ",")
	}
	m.finish(ctx, span, op, start, failure)
	audit.Record(ctx, m.sink, audit.ActionTokenValidation, outcome, auditSource, details)
	return result
}

func (m *Manager) validate(ctx context.Context, token, expectedAudience string) TokenValidation {
	if token == "" {
		return TokenValidation{Reason: ReasonInactive, Error: "token is empty"}
	}

	client := oauth2.NewClient(m.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = m.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiURL("user"), nil)
	if err != nil {
		return TokenValidation{Reason: ReasonInactive, Error: fmt.Sprintf("build liveness request: %v", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return TokenValidation{Reason: ReasonInactive, Error: fmt.Sprintf("liveness check failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenValidation{
			Reason: ReasonInactive,
			Error:  fmt.Sprintf("token inactive: provider returned HTTP %d", resp.StatusCode),
		}
	}
	scopes := splitScopes(resp.Header.Get("X-OAuth-Scopes"))

	aud := m.audience.Validate(ctx, token, expectedAudience)
	if !aud.ValidAudience {
		return TokenValidation{Scopes: scopes, Reason: aud.Reason, Error: aud.Error, ExpiresAt: aud.ExpiresAt}
	}
	return TokenValidation{Valid: true, Scopes: scopes, ExpiresAt: aud.ExpiresAt}
}

// RevokeToken asks the provider to invalidate token. Both outcomes are audited.
func (m *Manager) RevokeToken(ctx context.Context, token string) error {
	const op = instrumentation.OperationRevoke
	if err := m.ready(op); err != nil {
		return err
	}
	if token == "" {
		return validationError(op, "token is required")
	}

	ctx, span := m.startSpan(ctx, op, "")
	defer span.End()
	start := m.now()

	err := m.revoke(ctx, token)
	m.finish(ctx, span, op, start, err)

	details := map[string]string{"token": logging.Fingerprint(token)}
	if err != nil {
		for k, v := range errorDetails(err) {
			details[k] = v
		}
		audit.Record(ctx, m.sink, audit.ActionTokenRevocation, audit.OutcomeFailure, auditSource, details)
		m.logger.Warn("Token revocation failed", logging.Operation(op), logging.Err(err))
		return err
	}
	audit.Record(ctx, m.sink, audit.ActionTokenRevocation, audit.OutcomeSuccess, auditSource, details)
	return nil
}

func (m *Manager) revoke(ctx context.Context, token string) error {
	const op = instrumentation.OperationRevoke

	body, err := json.Marshal(map[string]string{"access_token": token})
	if err != nil {
		return newError(KindProtocol, op, "", "encode revocation request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.applicationTokenURL(), bytes.NewReader(body))
	if err != nil {
		return configError(op, fmt.Sprintf("build revocation request: %v", err))
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return classifyError(op, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, desc := parseProviderError(respBody)
		if desc == "" {
			desc = "provider rejected the revocation"
		}
		e := newError(KindProtocol, op, code, desc, nil)
		e.StatusCode = resp.StatusCode
		return e
	}
	return nil
}

// apiURL joins ProviderBaseURL and path segments, escaping each segment.
func (m *Manager) apiURL(segments ...string) string {
	return joinAPIURL(m.cfg.ProviderBaseURL, segments...)
}

func (m *Manager) applicationTokenURL() string {
	return m.apiURL("applications", m.cfg.ClientID, "token")
}

func joinAPIURL(base string, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) tokenResponse(tok *oauth2.Token, previousRefresh string) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		ExpiresAt:    tok.Expiry,
	}
	if resp.TokenType == "" {
		resp.TokenType = DefaultTokenType
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = previousRefresh
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if resp.ExpiresIn > 0 {
		resp.ExpiresAt = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return resp
}

// errorDetails renders an error as audit details without secrets.
func errorDetails(err error) map[string]string {
	details := map[string]string{"error": err.Error()}
	if oe, ok := err.(*Error); ok {
		details["kind"] = oe.Kind.String()
		if oe.Code != "" {
			details["error_code"] = oe.Code
		}
		if oe.StatusCode != 0 {
			details["status"] = strconv.Itoa(oe.StatusCode)
		}
	}
	return details
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
