package oauth

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Config describes the OAuth client registration and the provider it talks to.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURI is the default redirect_uri for authorization-code flows.
	RedirectURI string

	// Scopes requested when a flow does not ask for its own.
	Scopes []string

	AuthorizationEndpoint       string
	TokenEndpoint               string
	DeviceAuthorizationEndpoint string

	// ProviderBaseURL is the API root used for liveness checks,
	// introspection and revocation.
	ProviderBaseURL string

	// UserAgent is set on every outbound request.
	UserAgent string

	// ResourceURI is sent as the RFC 8707 resource parameter. Defaults to ProviderBaseURL.
	ResourceURI string

	// HTTPTimeout bounds each outbound request. Defaults to DefaultHTTPTimeout.
	HTTPTimeout time.Duration
}

// WithDefaults returns a copy of c with optional fields filled in.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "authflow"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ResourceURI == "" {
		c.ResourceURI = c.ProviderBaseURL
	}
	c.Scopes = append([]string(nil), c.Scopes...)
	return c
}

// Validate checks that every field needed by the flows is present.
func (c Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"client ID", c.ClientID},
		{"client secret", c.ClientSecret},
		{"redirect URI", c.RedirectURI},
		{"authorization endpoint", c.AuthorizationEndpoint},
		{"token endpoint", c.TokenEndpoint},
		{"provider base URL", c.ProviderBaseURL},
		{"user agent", c.UserAgent},
	}
	for _, r := range required {
		if r.value == "" {
			return configError("configure", r.name+" is required")
		}
	}

	urls := []struct {
		name, value string
	}{
		{"redirect URI", c.RedirectURI},
		{"authorization endpoint", c.AuthorizationEndpoint},
		{"token endpoint", c.TokenEndpoint},
		{"device authorization endpoint", c.DeviceAuthorizationEndpoint},
		{"provider base URL", c.ProviderBaseURL},
		{"resource URI", c.ResourceURI},
	}
	for _, u := range urls {
		if u.value == "" {
			continue
		}
		if err := validateAbsoluteURL(u.value); err != nil {
			return configError("configure", fmt.Sprintf("%s: %v", u.name, err))
		}
	}

	if c.HTTPTimeout < 0 {
		return configError("configure", "HTTP timeout must not be negative")
	}
	return nil
}

// LogValue keeps the client secret out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", c.ClientID),
		slog.Bool("client_secret_set", c.ClientSecret != ""),
		slog.String("redirect_uri", c.RedirectURI),
		slog.Any("scopes", c.Scopes),
		slog.String("token_endpoint", c.TokenEndpoint),
		slog.String("provider_base_url", c.ProviderBaseURL),
		slog.String("resource", c.ResourceURI),
	)
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
