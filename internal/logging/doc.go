// Package logging provides structured logging utilities for the authflow application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog, text or JSON output
//   - Consistent attribute naming across the codebase
//   - Sanitisers for tokens and state values
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "oauth.refresh")
//	logger.Info("token refreshed",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token stored",
//	    logging.Token("access_token", token.AccessToken),
//	    logging.State(state))
//
// # Security Considerations
//
// Access tokens, refresh tokens, authorization codes, PKCE verifiers and client
// secrets are never logged directly. Tokens are logged as length indicators or
// fingerprints and state values are truncated.
package logging
