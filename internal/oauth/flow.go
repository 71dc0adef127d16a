package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/authflow/internal/audit"
	"github.com/teemow/authflow/internal/logging"
)

const flowAuditSource = "oauth.flow"

// Flow drives complete sign-in lifecycles: it issues PKCE and state,
// remembers pending flows, completes them and keeps the resulting
// credentials in a vault.
type Flow struct {
	manager *Manager
	store   *StateStore
	vault   CredentialVault
	sink    audit.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowEventSink sets the audit sink for lifecycle events.
func WithFlowEventSink(sink audit.Sink) FlowOption {
	return func(f *Flow) {
		if sink != nil {
			f.sink = sink
		}
	}
}

// WithFlowLogger sets the logger.
func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowClock replaces time.Now.
func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlow wires a coordinator. All three dependencies are required.
func NewFlow(manager *Manager, store *StateStore, vault CredentialVault, opts ...FlowOption) (*Flow, error) {
	if manager == nil {
		return nil, configError("flow", "manager is required")
	}
	if store == nil {
		return nil, configError("flow", "state store is required")
	}
	if vault == nil {
		return nil, configError("flow", "credential vault is required")
	}

	f := &Flow{
		manager: manager,
		store:   store,
		vault:   vault,
		sink:    audit.NopSink{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Manager returns the underlying Manager.
func (f *Flow) Manager() *Manager {
	return f.manager
}

// Store returns the pending flow store.
func (f *Flow) Store() *StateStore {
	return f.store
}

// StartOptions customizes an authorization-code flow.
type StartOptions struct {
	Scopes         []string
	Organization   string
	CallbackMethod CallbackMethod
	CallbackPort   int
	RedirectURI    string
	Resource       string

	// TTL of the pending flow, clamped to [MinStateTTL, MaxStateTTL].
	TTL time.Duration

	ExtraParams map[string]string
}

// AuthorizationRequest is what the user needs to continue a started flow.
type AuthorizationRequest struct {
	URL            string
	State          string
	CallbackMethod CallbackMethod
	ExpiresAt      time.Time
}

// Start begins an authorization-code flow with PKCE.
func (f *Flow) Start(ctx context.Context, opts StartOptions) (*AuthorizationRequest, error) {
	cfg := f.manager.Config()

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, newError(KindConfiguration, "authorize", "", "entropy source failed", err)
	}
	state, err := GenerateState()
	if err != nil {
		return nil, newError(KindConfiguration, "authorize", "", "entropy source failed", err)
	}

	pending := PendingFlow{
		CodeVerifier:   pkce.CodeVerifier,
		Organization:   opts.Organization,
		Scopes:         opts.Scopes,
		CallbackMethod: opts.CallbackMethod,
		CallbackPort:   opts.CallbackPort,
		ClientID:       cfg.ClientID,
		RedirectURI:    opts.RedirectURI,
		Resource:       opts.Resource,
	}
	if len(pending.Scopes) == 0 {
		pending.Scopes = cfg.Scopes
	}
	if pending.CallbackMethod == "" {
		pending.CallbackMethod = CallbackLocalServer
	}
	if !pending.CallbackMethod.Valid() {
		return nil, validationError("authorize", fmt.Sprintf("unknown callback method %q", pending.CallbackMethod))
	}
	if pending.RedirectURI == "" {
		pending.RedirectURI = cfg.RedirectURI
	}
	if pending.Resource == "" {
		pending.Resource = cfg.ResourceURI
	}

	reqOpts := make([]RequestOption, 0, len(opts.ExtraParams)+3)
	for k, v := range opts.ExtraParams {
		reqOpts = append(reqOpts, WithExtraParam(k, v))
	}
	reqOpts = append(reqOpts,
		WithScopes(pending.Scopes...),
		WithRedirectURI(pending.RedirectURI),
		WithResource(pending.Resource),
	)

	authURL, err := f.manager.BuildAuthorizationURL(state, pkce.CodeChallenge, reqOpts...)
	if err != nil {
		return nil, err
	}
	if err := f.store.Put(state, pending, opts.TTL); err != nil {
		return nil, err
	}
	stored, _ := f.store.Get(state)

	audit.Record(ctx, f.sink, audit.ActionAuthorizationStarted, audit.OutcomeSuccess, flowAuditSource, map[string]string{
		"state":           logging.TruncateState(state),
		"scopes":          strings.Join(pending.Scopes, ","),
		"callback_method": string(pending.CallbackMethod),
		"organization":    pending.Organization,
	})
	f.logger.Info("Authorization flow started", slog.Any("flow", stored))

	return &AuthorizationRequest{
		URL:            authURL,
		State:          state,
		CallbackMethod: pending.CallbackMethod,
		ExpiresAt:      stored.ExpiresAt,
	}, nil
}

// Complete finishes an authorization-code flow: it consumes the pending
// state, exchanges the code and stores the credentials. A state can be
// completed at most once.
func (f *Flow) Complete(ctx context.Context, code, state string) (*TokenResponse, error) {
	pending, ok := f.store.Take(state)
	if !ok {
		audit.Record(ctx, f.sink, audit.ActionStateMismatch, audit.OutcomeFailure, flowAuditSource, map[string]string{
			"state":  logging.TruncateState(state),
			"reason": "unknown or expired state",
		})
		return nil, &Error{Kind: KindValidation, Op: "complete", Code: ErrUnknownState.Code, Description: ErrUnknownState.Description}
	}
	if !f.manager.ValidateState(state, pending.State) {
		audit.Record(ctx, f.sink, audit.ActionStateMismatch, audit.OutcomeFailure, flowAuditSource, map[string]string{
			"state": logging.TruncateState(state),
		})
		return nil, &Error{Kind: KindValidation, Op: "complete", Code: ErrStateMismatch.Code, Description: ErrStateMismatch.Description}
	}
	if pending.ClientID != "" && pending.ClientID != f.manager.ClientID() {
		return nil, validationError("complete", "pending flow was started for a different client")
	}

	tok, err := f.manager.ExchangeCode(ctx, code, pending.CodeVerifier,
		WithRedirectURI(pending.RedirectURI),
		WithResource(pending.Resource),
		WithState(state),
	)
	if err != nil {
		return nil, err
	}

	if err := f.storeCredentials(ctx, tok, "authorization_code"); err != nil {
		return nil, err
	}
	return tok, nil
}

// StartDevice begins a device authorization flow.
func (f *Flow) StartDevice(ctx context.Context, scopes []string) (*DeviceFlowSession, error) {
	return f.manager.InitiateDeviceFlow(ctx, scopes)
}

// CompleteDevice polls until the device flow finishes and stores the credentials.
func (f *Flow) CompleteDevice(ctx context.Context, session *DeviceFlowSession) (*TokenResponse, error) {
	tok, err := f.manager.PollDeviceFlow(ctx, session)
	if err != nil {
		return nil, err
	}
	if err := f.storeCredentials(ctx, tok, "device_code"); err != nil {
		return nil, err
	}
	return tok, nil
}

// CompleteDeviceCode is CompleteDevice for callers that only kept the
// device code and interval.
func (f *Flow) CompleteDeviceCode(ctx context.Context, deviceCode string, interval time.Duration) (*TokenResponse, error) {
	tok, err := f.manager.PollDeviceFlowToken(ctx, deviceCode, interval)
	if err != nil {
		return nil, err
	}
	if err := f.storeCredentials(ctx, tok, "device_code"); err != nil {
		return nil, err
	}
	return tok, nil
}

// Refresh renews the stored credentials with their refresh token.
func (f *Flow) Refresh(ctx context.Context) (*TokenResponse, error) {
	creds, err := f.vault.Get(ctx)
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, validationError("refresh", "stored credentials have no refresh token")
	}

	tok, err := f.manager.RefreshToken(ctx, creds.RefreshToken)
	if err != nil {
		return nil, err
	}
	if tok.Scope == "" && len(creds.Scopes) > 0 {
		tok.Scope = strings.Join(creds.Scopes, ",")
	}
	if err := f.storeCredentials(ctx, tok, "refresh_token"); err != nil {
		return nil, err
	}
	return tok, nil
}

// Validate checks the stored access token against the provider.
func (f *Flow) Validate(ctx context.Context) (TokenValidation, error) {
	creds, err := f.vault.Get(ctx)
	if err != nil {
		return TokenValidation{}, err
	}
	return f.manager.ValidateToken(ctx, creds.AccessToken, f.manager.Config().ResourceURI), nil
}

// LogoutResult reports what Logout did.
type LogoutResult struct {
	HadCredentials bool
	Revoked        bool

	// RevokeError is set when revocation failed. Local credentials are
	// cleared regardless.
	RevokeError string
}

// Logout revokes the stored access token when revoke is true and clears the vault.
func (f *Flow) Logout(ctx context.Context, revoke bool) (LogoutResult, error) {
	var result LogoutResult

	creds, err := f.vault.Get(ctx)
	switch {
	case errors.Is(err, ErrNoCredentials):
	case err != nil:
		return result, err
	default:
		result.HadCredentials = true
		if revoke && creds.AccessToken != "" {
			if err := f.manager.RevokeToken(ctx, creds.AccessToken); err != nil {
				result.RevokeError = err.Error()
			} else {
				result.Revoked = true
			}
		}
	}

	if err := f.vault.Clear(ctx); err != nil {
		audit.Record(ctx, f.sink, audit.ActionLogout, audit.OutcomeFailure, flowAuditSource, map[string]string{"error": err.Error()})
		return result, fmt.Errorf("failed to clear credentials: %w", err)
	}

	audit.Record(ctx, f.sink, audit.ActionLogout, audit.OutcomeSuccess, flowAuditSource, map[string]string{
		"had_credentials": fmt.Sprint(result.HadCredentials),
		"revoked":         fmt.Sprint(result.Revoked),
	})
	return result, nil
}

// Status describes the signed-in state without contacting the provider.
type Status struct {
	Authenticated   bool
	ClientID        string
	TokenType       string
	Scopes          []string
	ExpiresAt       time.Time
	Expired         bool
	HasRefreshToken bool
	StoredAt        time.Time
	PendingFlows    StateStoreStats
}

// Status reports the stored credentials and pending flows.
func (f *Flow) Status(ctx context.Context) (Status, error) {
	st := Status{
		ClientID:     f.manager.ClientID(),
		PendingFlows: f.store.Stats(),
	}

	creds, err := f.vault.Get(ctx)
	if errors.Is(err, ErrNoCredentials) {
		return st, nil
	}
	if err != nil {
		return st, err
	}

	st.Expired = creds.Expired(f.now())
	st.Authenticated = creds.AccessToken != "" && !st.Expired
	st.TokenType = creds.TokenType
	st.Scopes = creds.Scopes
	st.ExpiresAt = creds.ExpiresAt
	st.HasRefreshToken = creds.RefreshToken != ""
	st.StoredAt = creds.StoredAt
	return st, nil
}

// Close shuts down the pending flow store.
func (f *Flow) Close() {
	f.store.Shutdown()
}

func (f *Flow) storeCredentials(ctx context.Context, tok *TokenResponse, grant string) error {
	creds := CredentialsFromToken(tok, f.manager.ClientID(), f.now())
	if err := f.vault.Store(ctx, creds); err != nil {
		audit.Record(ctx, f.sink, audit.ActionCredentialsStored, audit.OutcomeFailure, flowAuditSource, map[string]string{
			"grant_type": grant,
			"error":      err.Error(),
		})
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	audit.Record(ctx, f.sink, audit.ActionCredentialsStored, audit.OutcomeSuccess, flowAuditSource, map[string]string{
		"grant_type": grant,
		"scopes":     strings.Join(creds.Scopes, ","),
		"token":      logging.Fingerprint(creds.AccessToken),
	})
	f.logger.Info("Credentials stored", logging.GrantType(grant), slog.Any("credentials", &creds))
	return nil
}
