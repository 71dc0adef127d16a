// Package oauth implements the client side of OAuth 2.0/2.1 against a single
// authorization server: PKCE, CSRF state, the authorization-code and device
// authorization grants, refresh, revocation and audience validation.
//
// A Manager is constructed explicitly from a validated Config and passed to
// whoever needs it. Pending authorization-code flows live in a StateStore
// keyed by their state token. Flow ties a Manager, a StateStore and a
// CredentialVault together for callers that want the whole lifecycle.
//
// Failures are returned as *Error values tagged with a Kind so callers can
// branch with errors.Is and KindOf instead of matching message text.
// Validation functions (ValidateState, ValidateToken, AudienceValidator)
// never return errors; they return negative results.
package oauth
