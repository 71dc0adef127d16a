package oauth

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/teemow/authflow/internal/logging"
)

// PKCEParams holds one PKCE verifier and its S256 challenge.
type PKCEParams struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CallbackMethod records how the authorization response reaches this client.
type CallbackMethod string

const (
	// CallbackLocalServer means a loopback HTTP listener receives the redirect.
	CallbackLocalServer CallbackMethod = "local-server"

	// CallbackManual means the user pastes the code back by hand.
	CallbackManual CallbackMethod = "manual"

	// CallbackDeepLink means the redirect opens a custom-scheme URL that the
	// host application hands back to Flow.Complete.
	CallbackDeepLink CallbackMethod = "deep-link"

	// CallbackDeviceFlow marks a flow whose user also has a device code to
	// fall back on.
	CallbackDeviceFlow CallbackMethod = "device-flow"
)

// CallbackMethods lists every valid CallbackMethod.
var CallbackMethods = []CallbackMethod{CallbackLocalServer, CallbackManual, CallbackDeepLink, CallbackDeviceFlow}

// Valid reports whether m is one of CallbackMethods.
func (m CallbackMethod) Valid() bool {
	return slices.Contains(CallbackMethods, m)
}

// PendingFlow is the client-side state of one authorization-code flow
// between the redirect to the provider and the callback.
type PendingFlow struct {
	State          string
	CodeVerifier   string
	Organization   string
	Scopes         []string
	CallbackMethod CallbackMethod
	CallbackPort   int
	ClientID       string
	RedirectURI    string
	Resource       string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

func (f PendingFlow) clone() PendingFlow {
	f.Scopes = append([]string(nil), f.Scopes...)
	return f
}

// LogValue omits the code verifier.
func (f PendingFlow) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", logging.TruncateState(f.State)),
		slog.String("organization", f.Organization),
		slog.Any("scopes", f.Scopes),
		slog.String("callback_method", string(f.CallbackMethod)),
		slog.Time("expires_at", f.ExpiresAt),
	)
}

// TokenResponse is a successful token endpoint response.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	Scope        string
	RefreshToken string
	ExpiresIn    int64
	ExpiresAt    time.Time
}

// Scopes splits Scope on commas and whitespace. Providers disagree on
// the separator.
func (t *TokenResponse) Scopes() []string {
	if t == nil {
		return nil
	}
	return splitScopes(t.Scope)
}

// LogValue replaces both tokens with fingerprints.
func (t *TokenResponse) LogValue() slog.Value {
	if t == nil {
		return slog.StringValue("<nil>")
	}
	attrs := []slog.Attr{
		logging.Token("access_token", t.AccessToken),
		slog.String("token_type", t.TokenType),
		slog.String("scope", t.Scope),
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
	}
	if !t.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", t.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// Validation failure reasons.
const (
	ReasonInactive            = "inactive"
	ReasonWrongAudience       = "wrong_audience"
	ReasonExpired             = "expired"
	ReasonIntrospectionFailed = "introspection_failed"
)

// TokenValidation is the result of ValidateToken.
type TokenValidation struct {
	Valid     bool
	Scopes    []string
	ExpiresAt time.Time

	// Reason is one of the Reason constants when Valid is false.
	Reason string
	Error  string
}

// AudienceResult is the result of an introspection-based audience check.
type AudienceResult struct {
	ValidAudience bool
	Error         string
	Reason        string
	ExpiresAt     time.Time

	// ClientID is the issuing client reported by the provider, if any.
	ClientID string
}

// DeviceFlowSession is the provider's answer to a device authorization request.
type DeviceFlowSession struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int
	Interval                int
	InitiatedAt             time.Time
	ExpiresAt               time.Time
}

// PollInterval returns the provider interval as a duration, falling back to
// DefaultDevicePollInterval.
func (s *DeviceFlowSession) PollInterval() time.Duration {
	if s == nil || s.Interval <= 0 {
		return DefaultDevicePollInterval
	}
	return time.Duration(s.Interval) * time.Second
}

// LogValue omits the device code.
func (s *DeviceFlowSession) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("user_code", s.UserCode),
		slog.String("verification_uri", s.VerificationURI),
		slog.Int("interval", s.Interval),
		slog.Time("expires_at", s.ExpiresAt),
	)
}

// StateStoreStats is a point-in-time summary of a StateStore.
type StateStoreStats struct {
	Total   int
	Active  int
	Expired int

	// Oldest and Newest are creation times; zero when the store is empty.
	Oldest time.Time
	Newest time.Time
}

func splitScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
