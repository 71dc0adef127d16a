package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/authflow/internal/audit"
	"github.com/teemow/authflow/internal/oauth"
	"github.com/teemow/authflow/internal/vault"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8085/oauth/callback", cfg.RedirectURI)
	assert.Equal(t, []string{"repo", "read:org"}, cfg.Scopes)
	assert.Equal(t, oauth.GitHubAuthorizationEndpoint, cfg.AuthorizationEndpoint)
	assert.Equal(t, oauth.GitHubTokenEndpoint, cfg.TokenEndpoint)
	assert.Equal(t, oauth.GitHubDeviceAuthorizationEndpoint, cfg.DeviceAuthorizationEndpoint)
	assert.Equal(t, oauth.GitHubAPIBaseURL, cfg.ProviderBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 15*time.Minute, cfg.StateTTL)
	assert.Equal(t, vault.BackendMemory, cfg.VaultBackend)
	assert.Equal(t, AuditSinkSlog, cfg.AuditSink)
	assert.Equal(t, "authflow", cfg.RedisKeyPrefix)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"OAUTH_CLIENT_ID":     "abc",
		"OAUTH_CLIENT_SECRET": "secret",
		"OAUTH_SCOPES":        "repo, gist ,,",
		"OAUTH_HTTP_TIMEOUT":  "5s",
		"OAUTH_STATE_TTL":     "2m",
		"VAULT_BACKEND":       "Redis",
		"REDIS_ADDR":          "localhost:6379",
		"REDIS_DB":            "3",
		"AUDIT_SINK":          "none",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"repo", "gist"}, cfg.Scopes)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2*time.Minute, cfg.StateTTL)
	assert.Equal(t, vault.BackendRedis, cfg.VaultBackend)

	vo := cfg.Vault()
	assert.Equal(t, "abc", vo.ClientID)
	assert.Equal(t, 3, vo.DB)
	assert.Equal(t, "localhost:6379", vo.RedisAddr)

	assert.IsType(t, audit.NopSink{}, cfg.NewAuditSink(nil))
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{name: "vault backend", environ: map[string]string{"VAULT_BACKEND": "etcd"}, wantErr: "VAULT_BACKEND"},
		{name: "audit sink", environ: map[string]string{"AUDIT_SINK": "kafka"}, wantErr: "AUDIT_SINK"},
		{name: "duration", environ: map[string]string{"OAUTH_HTTP_TIMEOUT": "soon"}, wantErr: "HTTPTimeout"},
		{name: "redis db", environ: map[string]string{"REDIS_DB": "-1"}, wantErr: "REDIS_DB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	t.Setenv("OAUTH_CLIENT_ID", "from-env")
	t.Setenv("OAUTH_RESOURCE_URI", "https://api.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ClientID)
	assert.Equal(t, "https://api.example.com", cfg.ResourceURI)
}

func TestConfig_OAuth(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"OAUTH_CLIENT_ID":     "abc",
		"OAUTH_CLIENT_SECRET": "secret",
	})
	require.NoError(t, err)

	oc := cfg.OAuth("authflow/1.2.3")
	assert.Equal(t, "authflow/1.2.3", oc.UserAgent)
	assert.Equal(t, oauth.GitHubAPIBaseURL, oc.ResourceURI)
	require.NoError(t, oc.Validate())

	cfg.UserAgent = "custom/1"
	assert.Equal(t, "custom/1", cfg.OAuth("authflow/1.2.3").UserAgent)
}

func TestConfig_NewAuditSink(t *testing.T) {
	cfg := Config{AuditSink: AuditSinkSlog}
	assert.IsType(t, &audit.SlogSink{}, cfg.NewAuditSink(slog.Default()))
}
