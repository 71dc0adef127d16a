package oauth

import "time"

// PKCE and state token parameters.
const (
	// MinCodeVerifierLength is the minimum length for a PKCE code_verifier (RFC 7636)
	MinCodeVerifierLength = 43

	// MaxCodeVerifierLength is the maximum length for a PKCE code_verifier (RFC 7636)
	MaxCodeVerifierLength = 128

	// CodeVerifierLength is the length of generated verifiers.
	CodeVerifierLength = 64

	// StateTokenLength is the length of generated state parameters
	StateTokenLength = 32

	// CodeChallengeMethodS256 is the only challenge method this client sends.
	CodeChallengeMethodS256 = "S256"
)

// Pending flow lifetimes.
const (
	MinStateTTL     = 60 * time.Second
	MaxStateTTL     = 30 * time.Minute
	DefaultStateTTL = 15 * time.Minute

	// DefaultSweepInterval is how often expired pending flows are purged.
	DefaultSweepInterval = 5 * time.Minute
)

// Device authorization grant parameters (RFC 8628).
const (
	// DeviceFlowTimeout bounds polling regardless of the provider's expires_in.
	DeviceFlowTimeout = 15 * time.Minute

	// SlowDownIncrement is added to the interval on every slow_down response.
	SlowDownIncrement = 5 * time.Second

	// DefaultDevicePollInterval is used when the provider does not send one.
	DefaultDevicePollInterval = 5 * time.Second
)

// DefaultHTTPTimeout bounds every single outbound request.
const DefaultHTTPTimeout = 30 * time.Second

// Grant types sent to the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// OAuth error codes with special handling.
const (
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeAccessDenied         = "access_denied"
)

// Default provider profile (GitHub).
const (
	GitHubAuthorizationEndpoint       = "https://github.com/login/oauth/authorize"
	GitHubTokenEndpoint               = "https://github.com/login/oauth/access_token"
	GitHubDeviceAuthorizationEndpoint = "https://github.com/login/device/code"
	GitHubAPIBaseURL                  = "https://api.github.com"
)

// DefaultTokenType is assumed when a token response omits token_type.
const DefaultTokenType = "bearer"
