package auth_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/oauth"
	"github.com/teemow/authflow/internal/server"
	"github.com/teemow/authflow/internal/tools/common"
)

// Tool names.
const (
	ToolStatus      = "auth_status"
	ToolStart       = "auth_start"
	ToolComplete    = "auth_complete"
	ToolDeviceStart = "auth_device_start"
	ToolDevicePoll  = "auth_device_poll"
	ToolRefresh     = "auth_refresh"
	ToolValidate    = "auth_validate"
	ToolLogout      = "auth_logout"
)

const notConfiguredMessage = "OAuth client is not configured. Set OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET and restart the server."

// RegisterAuthTools registers the authorization tools with the MCP server.
// In read-only mode only auth_status and auth_validate are registered.
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	for _, t := range Tools(readOnly) {
		s.AddTool(t.Tool, common.InstrumentedToolHandlerWithOperation(t.Tool.Name, t.Operation, sc, t.handler(sc)))
	}
	return nil
}

// Definition pairs a tool with its handler.
type Definition struct {
	Tool      mcp.Tool
	Operation string
	ReadOnly  bool
	handler   func(sc *server.ServerContext) common.ToolHandler
}

// Tools returns the tool definitions, in registration order.
func Tools(readOnly bool) []Definition {
	all := []Definition{
		{
			Tool: mcp.NewTool(ToolStatus,
				mcp.WithDescription("Show whether credentials are stored, their scopes and expiry, and how many authorization flows are pending. Does not contact the provider."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			ReadOnly: true,
			handler:  withFlow(handleStatus),
		},
		{
			Tool: mcp.NewTool(ToolStart,
				mcp.WithDescription("Start an authorization-code flow with PKCE. Returns the URL the user must open and the state that identifies the flow."),
				mcp.WithString("scopes",
					mcp.Description("Comma separated scopes to request (default: the configured scopes)"),
				),
				mcp.WithString("organization",
					mcp.Description("Organization the authorization is intended for"),
				),
				mcp.WithString("callback_method",
					mcp.Description("How the code comes back: 'local-server' for the callback server, 'manual' when the user pastes it, 'deep-link' when an application URL receives it, 'device-flow' when a device code is the fallback (default: local-server)"),
					mcp.Enum(callbackMethodNames()...),
				),
			),
			Operation: instrumentation.OperationAuthorize,
			handler:   withFlow(handleStart),
		},
		{
			Tool: mcp.NewTool(ToolComplete,
				mcp.WithDescription("Complete an authorization-code flow by exchanging the code the provider returned"),
				mcp.WithString("code",
					mcp.Required(),
					mcp.Description("The authorization code from the provider redirect"),
				),
				mcp.WithString("state",
					mcp.Required(),
					mcp.Description("The state returned by auth_start"),
				),
			),
			Operation: instrumentation.OperationExchange,
			handler:   withFlow(handleComplete),
		},
		{
			Tool: mcp.NewTool(ToolDeviceStart,
				mcp.WithDescription("Start a device authorization flow. Returns a user code and verification URL to show to the user."),
				mcp.WithString("scopes",
					mcp.Description("Comma separated scopes to request (default: the configured scopes)"),
				),
			),
			Operation: instrumentation.OperationDeviceInitiate,
			handler:   withFlow(handleDeviceStart),
		},
		{
			Tool: mcp.NewTool(ToolDevicePoll,
				mcp.WithDescription("Wait for the user to approve a device authorization and store the credentials. Blocks until approval, denial, expiry or 15 minutes."),
				mcp.WithString("device_code",
					mcp.Required(),
					mcp.Description("The device_code returned by auth_device_start"),
				),
				mcp.WithNumber("interval",
					mcp.Description("Polling interval in seconds (default: 5)"),
				),
			),
			Operation: instrumentation.OperationDevicePoll,
			handler:   withFlow(handleDevicePoll),
		},
		{
			Tool: mcp.NewTool(ToolRefresh,
				mcp.WithDescription("Refresh the stored access token using the stored refresh token"),
			),
			Operation: instrumentation.OperationRefresh,
			handler:   withFlow(handleRefresh),
		},
		{
			Tool: mcp.NewTool(ToolValidate,
				mcp.WithDescription("Check the stored access token against the provider, including its granted scopes and audience"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Operation: instrumentation.OperationValidate,
			ReadOnly:  true,
			handler:   withFlow(handleValidate),
		},
		{
			Tool: mcp.NewTool(ToolLogout,
				mcp.WithDescription("Remove the stored credentials, revoking the access token at the provider first"),
				mcp.WithBoolean("revoke",
					mcp.Description("Revoke the token at the provider before removing it (default: true)"),
				),
				mcp.WithDestructiveHintAnnotation(true),
			),
			Operation: instrumentation.OperationRevoke,
			handler:   withFlow(handleLogout),
		},
	}

	if !readOnly {
		return all
	}
	var out []Definition
	for _, d := range all {
		if d.ReadOnly {
			out = append(out, d)
		}
	}
	return out
}

type flowHandler func(ctx context.Context, request mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error)

func withFlow(h flowHandler) func(sc *server.ServerContext) common.ToolHandler {
	return func(sc *server.ServerContext) common.ToolHandler {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			flow := sc.Flow()
			if flow == nil {
				return mcp.NewToolResultError(notConfiguredMessage), nil
			}
			return h(ctx, request, flow)
		}
	}
}

// StatusView is the auth_status result.
type StatusView struct {
	Authenticated   bool      `json:"authenticated"`
	ClientID        string    `json:"client_id"`
	TokenType       string    `json:"token_type,omitempty"`
	Scopes          []string  `json:"scopes,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
	Expired         bool      `json:"expired"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	StoredAt        time.Time `json:"stored_at,omitzero"`
	PendingFlows    int       `json:"pending_flows"`
}

// NewStatusView converts a flow status into its JSON form.
func NewStatusView(st oauth.Status) StatusView {
	return StatusView{
		Authenticated:   st.Authenticated,
		ClientID:        st.ClientID,
		TokenType:       st.TokenType,
		Scopes:          st.Scopes,
		ExpiresAt:       st.ExpiresAt,
		Expired:         st.Expired,
		HasRefreshToken: st.HasRefreshToken,
		StoredAt:        st.StoredAt,
		PendingFlows:    st.PendingFlows.Active,
	}
}

func handleStatus(ctx context.Context, _ mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	st, err := flow.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read credentials: %v", err)), nil
	}
	return jsonResult(NewStatusView(st))
}

func handleStart(ctx context.Context, request mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	scopes, err := common.StringListArg(request, "scopes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	method := oauth.CallbackMethod(common.StringArg(request, "callback_method"))
	if method != "" && !method.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("callback_method must be one of %s", strings.Join(callbackMethodNames(), ", "))), nil
	}

	req, err := flow.Start(ctx, oauth.StartOptions{
		Scopes:         scopes,
		Organization:   common.StringArg(request, "organization"),
		CallbackMethod: method,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start authorization: %v", err)), nil
	}

	next := fmt.Sprintf("Ask the user for the code shown after approval, then call %s with that code and this state.", ToolComplete)
	switch req.CallbackMethod {
	case oauth.CallbackLocalServer:
		next = "The callback server completes the flow automatically once the user approves."
	case oauth.CallbackDeepLink:
		next = fmt.Sprintf("The application receiving the redirect passes the code and this state to %s.", ToolComplete)
	}

	return mcp.NewToolResultText(fmt.Sprintf(`To authorize access:

1. Open this URL in a browser:
   %s

2. Sign in and approve the requested access.

3. %s

State: %s
This request expires at %s.`, req.URL, next, req.State, req.ExpiresAt.UTC().Format(time.RFC3339))), nil
}

func callbackMethodNames() []string {
	names := make([]string, 0, len(oauth.CallbackMethods))
	for _, m := range oauth.CallbackMethods {
		names = append(names, string(m))
	}
	return names
}

// TokenView describes stored credentials without exposing them.
type TokenView struct {
	TokenType       string    `json:"token_type,omitempty"`
	Scopes          []string  `json:"scopes,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

func tokenView(tok *oauth.TokenResponse) TokenView {
	return TokenView{
		TokenType:       tok.TokenType,
		Scopes:          tok.Scopes(),
		ExpiresAt:       tok.ExpiresAt,
		HasRefreshToken: tok.RefreshToken != "",
	}
}

func handleComplete(ctx context.Context, request mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	code := common.StringArg(request, "code")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}
	state := common.StringArg(request, "state")
	if state == "" {
		return mcp.NewToolResultError("state is required"), nil
	}

	tok, err := flow.Complete(ctx, code, state)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownState) {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown or expired state. Call %s to begin a new authorization.", ToolStart)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to complete authorization: %v", err)), nil
	}
	return jsonResult(tokenView(tok))
}

// DeviceView is the auth_device_start result.
type DeviceView struct {
	UserCode                string    `json:"user_code"`
	VerificationURI         string    `json:"verification_uri"`
	VerificationURIComplete string    `json:"verification_uri_complete,omitempty"`
	DeviceCode              string    `json:"device_code"`
	Interval                int       `json:"interval"`
	ExpiresAt               time.Time `json:"expires_at"`
}

func handleDeviceStart(ctx context.Context, request mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	scopes, err := common.StringListArg(request, "scopes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := flow.StartDevice(ctx, scopes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start device authorization: %v", err)), nil
	}
	return jsonResult(DeviceView{
		UserCode:                session.UserCode,
		VerificationURI:         session.VerificationURI,
		VerificationURIComplete: session.VerificationURIComplete,
		DeviceCode:              session.DeviceCode,
		Interval:                int(session.PollInterval() / time.Second),
		ExpiresAt:               session.ExpiresAt,
	})
}

func handleDevicePoll(ctx context.Context, request mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	deviceCode := common.StringArg(request, "device_code")
	if deviceCode == "" {
		return mcp.NewToolResultError("device_code is required"), nil
	}
	seconds := common.NumberArg(request, "interval", 0)
	if seconds < 0 {
		return mcp.NewToolResultError("interval must not be negative"), nil
	}

	tok, err := flow.CompleteDeviceCode(ctx, deviceCode, time.Duration(seconds*float64(time.Second)))
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrAccessDenied):
			return mcp.NewToolResultError("The user denied the authorization request."), nil
		case errors.Is(err, oauth.ErrExpiredToken):
			return mcp.NewToolResultError(fmt.Sprintf("The device code expired. Call %s to begin again.", ToolDeviceStart)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Device authorization failed: %v", err)), nil
	}
	return jsonResult(tokenView(tok))
}

func handleRefresh(ctx context.Context, _ mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	tok, err := flow.Refresh(ctx)
	if err != nil {
		if errors.Is(err, oauth.ErrNoCredentials) {
			return mcp.NewToolResultError(fmt.Sprintf("No credentials stored. Call %s or %s first.", ToolStart, ToolDeviceStart)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to refresh token: %v", err)), nil
	}
	return jsonResult(tokenView(tok))
}

// ValidationView is the auth_validate result.
type ValidationView struct {
	Valid     bool      `json:"valid"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func handleValidate(ctx context.Context, _ mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	v, err := flow.Validate(ctx)
	if err != nil {
		if errors.Is(err, oauth.ErrNoCredentials) {
			return mcp.NewToolResultError("No credentials stored."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read credentials: %v", err)), nil
	}
	return jsonResult(ValidationView{
		Valid:     v.Valid,
		Scopes:    v.Scopes,
		ExpiresAt: v.ExpiresAt,
		Reason:    v.Reason,
		Error:     v.Error,
	})
}

// LogoutView is the auth_logout result.
type LogoutView struct {
	HadCredentials bool   `json:"had_credentials"`
	Revoked        bool   `json:"revoked"`
	RevokeError    string `json:"revoke_error,omitempty"`
}

func handleLogout(ctx context.Context, request mcp.CallToolRequest, flow *oauth.Flow) (*mcp.CallToolResult, error) {
	res, err := flow.Logout(ctx, common.BoolArg(request, "revoke", true))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to log out: %v", err)), nil
	}
	return jsonResult(LogoutView(res))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
