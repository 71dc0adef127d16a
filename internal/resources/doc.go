// Package resources provides MCP resources describing the authorization
// state of the server.
//
// Available resources:
//   - authflow://status: stored credential summary, without tokens
//   - authflow://client: public OAuth client configuration, without the secret
package resources
