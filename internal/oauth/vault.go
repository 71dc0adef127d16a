package oauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teemow/authflow/internal/logging"
)

// ErrNoCredentials is returned by CredentialVault.Get when nothing is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// StoredCredentials is what a CredentialVault persists after a successful flow.
type StoredCredentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	ClientID     string    `json:"client_id,omitempty"`
	StoredAt     time.Time `json:"stored_at"`
}

// Expired reports whether the access token has a known expiry that has passed.
func (c *StoredCredentials) Expired(now time.Time) bool {
	return c != nil && !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// LogValue replaces both tokens with fingerprints.
func (c *StoredCredentials) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		logging.Token("access_token", c.AccessToken),
		slog.Bool("has_refresh_token", c.RefreshToken != ""),
		slog.Any("scopes", c.Scopes),
		slog.Time("expires_at", c.ExpiresAt),
		slog.String("client_id", c.ClientID),
	)
}

// CredentialsFromToken builds the record stored after a token response.
func CredentialsFromToken(tok *TokenResponse, clientID string, now time.Time) StoredCredentials {
	return StoredCredentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scopes:       tok.Scopes(),
		ExpiresAt:    tok.ExpiresAt,
		ClientID:     clientID,
		StoredAt:     now,
	}
}

// CredentialVault persists the credentials of the signed-in user.
// Implementations must be safe for concurrent use.
type CredentialVault interface {
	Store(ctx context.Context, creds StoredCredentials) error

	// Get returns ErrNoCredentials when nothing is stored.
	Get(ctx context.Context) (*StoredCredentials, error)

	// Clear removes stored credentials. Clearing an empty vault is not an error.
	Clear(ctx context.Context) error
}
