package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/authflow/internal/audit"
)

// memVault is a minimal CredentialVault for tests in this package.
type memVault struct {
	mu       sync.Mutex
	creds    *StoredCredentials
	storeErr error
}

func (v *memVault) Store(_ context.Context, creds StoredCredentials) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.storeErr != nil {
		return v.storeErr
	}
	v.creds = &creds
	return nil
}

func (v *memVault) Get(context.Context) (*StoredCredentials, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.creds == nil {
		return nil, ErrNoCredentials
	}
	c := *v.creds
	return &c, nil
}

func (v *memVault) Clear(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds = nil
	return nil
}

type testFlow struct {
	*Flow
	tm    *testManager
	vault *memVault
}

func newTestFlow(t *testing.T) *testFlow {
	t.Helper()
	tm := newTestManager(t)
	store := NewStateStore(WithStoreClock(tm.clock.Now), WithSweepInterval(0))
	vault := &memVault{}

	f, err := NewFlow(tm.Manager, store, vault, WithFlowEventSink(tm.sink), WithFlowClock(tm.clock.Now))
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return &testFlow{Flow: f, tm: tm, vault: vault}
}

func TestNewFlow_RequiresDependencies(t *testing.T) {
	tm := newTestManager(t)
	store := NewStateStore(WithSweepInterval(0))
	defer store.Shutdown()

	_, err := NewFlow(nil, store, &memVault{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewFlow(tm.Manager, nil, &memVault{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewFlow(tm.Manager, store, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFlow_Start_CallbackMethods(t *testing.T) {
	tests := []struct {
		name    string
		method  CallbackMethod
		want    CallbackMethod
		wantErr bool
	}{
		{name: "default", method: "", want: CallbackLocalServer},
		{name: "local server", method: CallbackLocalServer, want: CallbackLocalServer},
		{name: "manual", method: CallbackManual, want: CallbackManual},
		{name: "deep link", method: CallbackDeepLink, want: CallbackDeepLink},
		{name: "device flow", method: CallbackDeviceFlow, want: CallbackDeviceFlow},
		{name: "unknown", method: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFlow(t)

			req, err := f.Start(context.Background(), StartOptions{CallbackMethod: tt.method})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				assert.Equal(t, 0, f.Store().Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.CallbackMethod)

			pending, ok := f.Store().Get(req.State)
			require.True(t, ok)
			assert.Equal(t, tt.want, pending.CallbackMethod)
		})
	}
}

func TestFlow_AuthorizationCodeRoundTrip(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	req, err := f.Start(ctx, StartOptions{Organization: "giantswarm", TTL: 2 * time.Minute})
	require.NoError(t, err)
	assert.Len(t, req.State, StateTokenLength)
	assert.Equal(t, CallbackLocalServer, req.CallbackMethod)
	assert.Equal(t, f.tm.clock.Now().Add(2*time.Minute), req.ExpiresAt)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, req.State, u.Query().Get("state"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))

	pending, ok := f.Store().Get(req.State)
	require.True(t, ok)
	assert.Equal(t, CodeChallengeS256(pending.CodeVerifier), u.Query().Get("code_challenge"))
	assert.Equal(t, "giantswarm", pending.Organization)

	tok, err := f.Complete(ctx, "auth-code", req.State)
	require.NoError(t, err)
	assert.Equal(t, "gho_access", tok.AccessToken)

	exchange := f.tm.provider.requestsTo("/login/oauth/access_token")
	require.Len(t, exchange, 1)
	assert.Equal(t, pending.CodeVerifier, exchange[0].Form.Get("code_verifier"))

	creds, err := f.vault.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_access", creds.AccessToken)
	assert.Equal(t, "ghr_refresh", creds.RefreshToken)
	assert.Equal(t, []string{"repo", "read:org"}, creds.Scopes)
	assert.Equal(t, testClientID, creds.ClientID)

	_, ok = f.Store().Get(req.State)
	assert.False(t, ok, "pending flow is consumed")

	events := drainEvents(f.tm.sink)
	assert.Len(t, eventsFor(events, audit.ActionAuthorizationStarted), 1)
	stored := eventsFor(events, audit.ActionCredentialsStored)
	require.Len(t, stored, 1)
	assert.Equal(t, audit.OutcomeSuccess, stored[0].Outcome)
	for _, e := range events {
		for _, v := range e.Details {
			assert.NotContains(t, v, "gho_access")
			assert.NotContains(t, v, pending.CodeVerifier)
		}
	}
}

func TestFlow_CompleteRejectsUnknownAndReusedState(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	_, err := f.Complete(ctx, "code", "never-issued")
	assert.ErrorIs(t, err, ErrUnknownState)
	assert.Empty(t, f.tm.provider.requestsTo("/login/oauth/access_token"))

	req, err := f.Start(ctx, StartOptions{})
	require.NoError(t, err)
	_, err = f.Complete(ctx, "code", req.State)
	require.NoError(t, err)

	_, err = f.Complete(ctx, "code", req.State)
	assert.ErrorIs(t, err, ErrUnknownState)

	mismatches := eventsFor(drainEvents(f.tm.sink), audit.ActionStateMismatch)
	assert.Len(t, mismatches, 2)
}

func TestFlow_CompleteRejectsExpiredState(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	req, err := f.Start(ctx, StartOptions{TTL: time.Minute})
	require.NoError(t, err)
	f.tm.clock.Advance(2 * time.Minute)

	_, err = f.Complete(ctx, "code", req.State)
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestFlow_CompleteVaultFailure(t *testing.T) {
	f := newTestFlow(t)
	f.vault.storeErr = errors.New("disk full")
	ctx := context.Background()

	req, err := f.Start(ctx, StartOptions{})
	require.NoError(t, err)

	_, err = f.Complete(ctx, "code", req.State)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	stored := eventsFor(drainEvents(f.tm.sink), audit.ActionCredentialsStored)
	require.Len(t, stored, 1)
	assert.Equal(t, audit.OutcomeFailure, stored[0].Outcome)
}

func TestFlow_DeviceRoundTrip(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()
	f.tm.provider.setToken(scriptedTokenHandler(ErrorCodeAuthorizationPending, ""))

	session, err := f.StartDevice(ctx, []string{"repo"})
	require.NoError(t, err)

	tok, err := f.CompleteDevice(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "gho_device", tok.AccessToken)

	creds, err := f.vault.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_device", creds.AccessToken)
	assert.Equal(t, []string{"repo"}, creds.Scopes)
}

func TestFlow_Refresh(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	_, err := f.Refresh(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, f.vault.Store(ctx, StoredCredentials{AccessToken: "gho_old", RefreshToken: "ghr_old", Scopes: []string{"repo"}}))
	f.tm.provider.setToken(jsonHandler(http.StatusOK, map[string]any{"access_token": "gho_new", "token_type": "bearer"}))

	tok, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_new", tok.AccessToken)

	creds, err := f.vault.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gho_new", creds.AccessToken)
	assert.Equal(t, "ghr_old", creds.RefreshToken, "refresh token kept when the provider does not rotate it")
	assert.Equal(t, []string{"repo"}, creds.Scopes)

	require.NoError(t, f.vault.Store(ctx, StoredCredentials{AccessToken: "gho_x"}))
	_, err = f.Refresh(ctx)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFlow_Logout(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	res, err := f.Logout(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.HadCredentials)

	require.NoError(t, f.vault.Store(ctx, StoredCredentials{AccessToken: "gho_bye"}))
	res, err = f.Logout(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.HadCredentials)
	assert.True(t, res.Revoked)
	assert.Len(t, f.tm.provider.requestsTo("/applications/abc/token"), 1)

	_, err = f.vault.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestFlow_LogoutClearsEvenWhenRevokeFails(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()
	f.tm.provider.setApp(jsonHandler(http.StatusInternalServerError, map[string]any{"message": "boom"}))

	require.NoError(t, f.vault.Store(ctx, StoredCredentials{AccessToken: "gho_bye"}))
	res, err := f.Logout(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Revoked)
	assert.NotEmpty(t, res.RevokeError)

	_, err = f.vault.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestFlow_Status(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	st, err := f.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
	assert.Equal(t, testClientID, st.ClientID)

	_, err = f.Start(ctx, StartOptions{})
	require.NoError(t, err)
	require.NoError(t, f.vault.Store(ctx, StoredCredentials{
		AccessToken:  "gho_x",
		RefreshToken: "ghr_x",
		Scopes:       []string{"repo"},
		ExpiresAt:    f.tm.clock.Now().Add(time.Hour),
	}))

	st, err = f.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.True(t, st.HasRefreshToken)
	assert.Equal(t, 1, st.PendingFlows.Active)

	f.tm.clock.Advance(2 * time.Hour)
	st, err = f.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
	assert.True(t, st.Expired)
}

func TestFlow_Validate(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()

	_, err := f.Validate(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, f.vault.Store(ctx, StoredCredentials{AccessToken: "gho_x"}))
	result, err := f.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

// An end-to-end check of the client-ID audience rule: a token that the
// provider reports as issued to another client is rejected even though it
// is live.
func TestFlow_ValidateRejectsForeignToken(t *testing.T) {
	f := newTestFlow(t)
	ctx := context.Background()
	f.tm.provider.setApp(jsonHandler(http.StatusOK, map[string]any{"app": map[string]any{"client_id": "xyz"}}))

	require.NoError(t, f.vault.Store(ctx, StoredCredentials{AccessToken: "gho_foreign"}))
	result, err := f.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonWrongAudience, result.Reason)
	assert.Contains(t, result.Error, "xyz")
	assert.Contains(t, result.Error, "abc")
}
