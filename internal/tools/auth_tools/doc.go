// Package auth_tools exposes the authorization flows as MCP tools.
//
// An agent drives the authorization-code flow with auth_start and
// auth_complete, or the device flow with auth_device_start and
// auth_device_poll. auth_status, auth_refresh, auth_validate and auth_logout
// manage the stored credentials. Tool results never contain access or
// refresh tokens.
package auth_tools
