package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemow/authflow/internal/oauth"
	"github.com/teemow/authflow/internal/vault"
)

// newTestFlow wires a Flow to an httptest token endpoint and a memory vault.
func newTestFlow(t *testing.T, token http.HandlerFunc) (*oauth.Flow, *vault.MemoryVault) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", token)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mgr, err := oauth.NewManager(oauth.Config{
		ClientID:              "abc",
		ClientSecret:          "s3cr3t-value",
		RedirectURI:           "http://localhost:8085/oauth/callback",
		Scopes:                []string{"repo"},
		AuthorizationEndpoint: srv.URL + "/login/oauth/authorize",
		TokenEndpoint:         srv.URL + "/login/oauth/access_token",
		ProviderBaseURL:       srv.URL,
		UserAgent:             "authflow-test",
	})
	require.NoError(t, err)

	v := vault.NewMemoryVault()
	flow, err := oauth.NewFlow(mgr, oauth.NewStateStore(oauth.WithSweepInterval(0)), v)
	require.NoError(t, err)
	t.Cleanup(flow.Close)
	return flow, v
}

func tokenOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "gho_access",
		"token_type":   "bearer",
		"scope":        "repo",
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var errUnreachable = errors.New("connection refused")
