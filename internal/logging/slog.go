package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyProvider  = "provider"
	KeyClientID  = "client_id"
	KeyState     = "state"
	KeyGrantType = "grant_type"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// stateVisiblePrefix is how many characters of a state token may appear in logs.
const stateVisiblePrefix = 8

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithProvider returns a logger with the provider attribute set.
func WithProvider(logger *slog.Logger, provider string) *slog.Logger {
	return logger.With(slog.String(KeyProvider, provider))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Provider returns a slog attribute for the authorization server host.
func Provider(host string) slog.Attr {
	return slog.String(KeyProvider, host)
}

// ClientID returns a slog attribute for the OAuth client identifier.
// Client IDs are public values and are logged verbatim.
func ClientID(id string) slog.Attr {
	return slog.String(KeyClientID, id)
}

// GrantType returns a slog attribute for the OAuth grant type.
func GrantType(grant string) slog.Attr {
	return slog.String(KeyGrantType, grant)
}

// State returns a slog attribute carrying a truncated state token.
func State(state string) slog.Attr {
	return slog.String(KeyState, TruncateState(state))
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// TruncateState shortens a state token so that log lines can be correlated
// with a flow without making the full value replayable.
func TruncateState(state string) string {
	if state == "" {
		return "<empty>"
	}
	if len(state) <= stateVisiblePrefix {
		return state
	}
	return state[:stateVisiblePrefix] + "..."
}

// Fingerprint returns a short, stable hash of a secret value. Two log lines
// about the same token share a fingerprint; the token itself cannot be
// recovered from it.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(secret))
	return "fp:" + hex.EncodeToString(hash[:6])
}

// Token returns a slog attribute with the fingerprint of a token under key.
func Token(key, token string) slog.Attr {
	return slog.String(key, Fingerprint(token))
}
