// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teemow/authflow/internal/audit"
	"github.com/teemow/authflow/internal/oauth"
	"github.com/teemow/authflow/internal/vault"
)

// Audit sink names.
const (
	AuditSinkSlog = "slog"
	AuditSinkNone = "none"
)

// Config is everything the binary reads from its environment.
type Config struct {
	ClientID                    string        `env:"OAUTH_CLIENT_ID"`
	ClientSecret                string        `env:"OAUTH_CLIENT_SECRET"`
	RedirectURI                 string        `env:"OAUTH_REDIRECT_URI" envDefault:"http://localhost:8085/oauth/callback"`
	Scopes                      []string      `env:"OAUTH_SCOPES" envDefault:"repo,read:org" envSeparator:","`
	AuthorizationEndpoint       string        `env:"OAUTH_AUTHORIZATION_ENDPOINT" envDefault:"https://github.com/login/oauth/authorize"`
	TokenEndpoint               string        `env:"OAUTH_TOKEN_ENDPOINT" envDefault:"https://github.com/login/oauth/access_token"`
	DeviceAuthorizationEndpoint string        `env:"OAUTH_DEVICE_ENDPOINT" envDefault:"https://github.com/login/device/code"`
	ProviderBaseURL             string        `env:"OAUTH_PROVIDER_BASE_URL" envDefault:"https://api.github.com"`
	UserAgent                   string        `env:"OAUTH_USER_AGENT"`
	ResourceURI                 string        `env:"OAUTH_RESOURCE_URI"`
	HTTPTimeout                 time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"30s"`
	StateTTL                    time.Duration `env:"OAUTH_STATE_TTL" envDefault:"15m"`

	VaultBackend   string `env:"VAULT_BACKEND" envDefault:"memory"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"authflow"`

	AuditSink string `env:"AUDIT_SINK" envDefault:"slog"`
}

// Load reads the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg.normalize(), cfg.Validate()
}

// LoadFrom reads environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg.normalize(), cfg.Validate()
}

func (c Config) normalize() Config {
	scopes := make([]string, 0, len(c.Scopes))
	for _, s := range c.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	c.Scopes = scopes
	c.VaultBackend = strings.ToLower(strings.TrimSpace(c.VaultBackend))
	c.AuditSink = strings.ToLower(strings.TrimSpace(c.AuditSink))
	return c
}

// Validate checks the settings owned by this package. OAuth client settings
// are validated by oauth.NewManager, since some commands never need them.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.VaultBackend)) {
	case vault.BackendMemory, vault.BackendRedis:
	default:
		return fmt.Errorf("invalid VAULT_BACKEND %q: must be %s or %s", c.VaultBackend, vault.BackendMemory, vault.BackendRedis)
	}
	switch strings.ToLower(strings.TrimSpace(c.AuditSink)) {
	case AuditSinkSlog, AuditSinkNone:
	default:
		return fmt.Errorf("invalid AUDIT_SINK %q: must be %s or %s", c.AuditSink, AuditSinkSlog, AuditSinkNone)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid REDIS_DB %d: must not be negative", c.RedisDB)
	}
	return nil
}

// OAuth returns the oauth client configuration. userAgent is used when
// OAUTH_USER_AGENT is unset.
func (c Config) OAuth(userAgent string) oauth.Config {
	ua := c.UserAgent
	if ua == "" {
		ua = userAgent
	}
	return oauth.Config{
		ClientID:                    c.ClientID,
		ClientSecret:                c.ClientSecret,
		RedirectURI:                 c.RedirectURI,
		Scopes:                      append([]string(nil), c.Scopes...),
		AuthorizationEndpoint:       c.AuthorizationEndpoint,
		TokenEndpoint:               c.TokenEndpoint,
		DeviceAuthorizationEndpoint: c.DeviceAuthorizationEndpoint,
		ProviderBaseURL:             c.ProviderBaseURL,
		UserAgent:                   ua,
		ResourceURI:                 c.ResourceURI,
		HTTPTimeout:                 c.HTTPTimeout,
	}.WithDefaults()
}

// Vault returns the options for vault.New.
func (c Config) Vault() vault.Options {
	return vault.Options{
		Backend:   c.VaultBackend,
		ClientID:  c.ClientID,
		RedisAddr: c.RedisAddr,
		Password:  c.RedisPassword,
		DB:        c.RedisDB,
		KeyPrefix: c.RedisKeyPrefix,
	}
}

// NewAuditSink returns the configured sink. It never returns nil.
func (c Config) NewAuditSink(logger *slog.Logger) audit.Sink {
	if c.AuditSink == AuditSinkNone {
		return audit.NopSink{}
	}
	return audit.NewSlogSink(logger)
}
