package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AudienceValidator confirms through the provider's token introspection API
// that a token was issued to this client. Any failure is a negative result.
type AudienceValidator struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewAudienceValidator returns a validator using client for requests.
func NewAudienceValidator(cfg Config, client *http.Client, now func() time.Time) *AudienceValidator {
	if client == nil {
		client = newHTTPClient(cfg.WithDefaults(), nil)
	}
	if now == nil {
		now = time.Now
	}
	return &AudienceValidator{cfg: cfg, client: client, now: now}
}

// introspection is the subset of the provider's response that is checked.
type introspection struct {
	App struct {
		ClientID string `json:"client_id"`
	} `json:"app"`
	ExpiresAt *time.Time `json:"expires_at"`

	// Resource is only present on providers that bind tokens to an RFC 8707
	// resource indicator.
	Resource string `json:"resource"`
}

// Validate checks that token belongs to the configured client and has not
// expired. expectedResource is compared only when the provider reports the
// resource a token is bound to.
func (v *AudienceValidator) Validate(ctx context.Context, token, expectedResource string) AudienceResult {
	if token == "" {
		return AudienceResult{Reason: ReasonIntrospectionFailed, Error: "token is empty"}
	}

	body, err := json.Marshal(map[string]string{"access_token": token})
	if err != nil {
		return AudienceResult{Reason: ReasonIntrospectionFailed, Error: fmt.Sprintf("encode introspection request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		joinAPIURL(v.cfg.ProviderBaseURL, "applications", v.cfg.ClientID, "token"),
		bytes.NewReader(body))
	if err != nil {
		return AudienceResult{Reason: ReasonIntrospectionFailed, Error: fmt.Sprintf("build introspection request: %v", err)}
	}
	req.SetBasicAuth(v.cfg.ClientID, v.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return AudienceResult{Reason: ReasonIntrospectionFailed, Error: fmt.Sprintf("introspection request failed: %v", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return AudienceResult{Reason: ReasonIntrospectionFailed, Error: fmt.Sprintf("read introspection response: %v", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The introspection path is scoped to our client ID, so the provider
		// answers 404 for tokens issued to any other client.
		return AudienceResult{
			Reason: ReasonWrongAudience,
			Error:  fmt.Sprintf("token is not known to client %q", v.cfg.ClientID),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return AudienceResult{
			Reason: ReasonIntrospectionFailed,
			Error:  fmt.Sprintf("introspection returned HTTP %d", resp.StatusCode),
		}
	}

	var info introspection
	if err := json.Unmarshal(raw, &info); err != nil {
		return AudienceResult{Reason: ReasonIntrospectionFailed, Error: fmt.Sprintf("decode introspection response: %v", err)}
	}

	result := AudienceResult{ClientID: info.App.ClientID}
	if info.ExpiresAt != nil {
		result.ExpiresAt = *info.ExpiresAt
	}

	switch {
	case info.App.ClientID == "":
		result.Reason = ReasonWrongAudience
		result.Error = "introspection response did not name the issuing client"
	case info.App.ClientID != v.cfg.ClientID:
		result.Reason = ReasonWrongAudience
		result.Error = fmt.Sprintf("token was issued to client %q, expected %q", info.App.ClientID, v.cfg.ClientID)
	case info.Resource != "" && expectedResource != "" && info.Resource != expectedResource:
		result.Reason = ReasonWrongAudience
		result.Error = fmt.Sprintf("token is bound to resource %q, expected %q", info.Resource, expectedResource)
	case info.ExpiresAt != nil && info.ExpiresAt.Before(v.now()):
		result.Reason = ReasonExpired
		result.Error = fmt.Sprintf("token expired at %s", info.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		result.ValidAudience = true
	}
	return result
}
