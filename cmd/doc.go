// Package cmd implements the command-line interface for authflow.
//
// This package provides the following commands:
//   - login: Sign in with the authorization code flow and PKCE
//   - device: Sign in with the device authorization flow
//   - refresh: Refresh the stored access token
//   - validate: Check a token against the provider
//   - revoke: Revoke a token at the provider
//   - status: Show the stored credentials
//   - logout: Clear the stored credentials
//   - serve: Start the MCP server exposing the flows as tools
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// All commands read their OAuth client settings from the environment, see
// the config package.
package cmd
