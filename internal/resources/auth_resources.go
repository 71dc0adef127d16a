package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/authflow/internal/server"
	"github.com/teemow/authflow/internal/tools/auth_tools"
)

// Resource URIs.
const (
	StatusURI = "authflow://status"
	ClientURI = "authflow://client"
)

var errNotConfigured = errors.New("OAuth client is not configured")

// ClientView is the public part of the OAuth client configuration. The
// client secret is reported only as present or absent.
type ClientView struct {
	ClientID                    string   `json:"client_id"`
	HasClientSecret             bool     `json:"has_client_secret"`
	RedirectURI                 string   `json:"redirect_uri"`
	Scopes                      []string `json:"scopes"`
	AuthorizationEndpoint       string   `json:"authorization_endpoint"`
	TokenEndpoint               string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint string   `json:"device_authorization_endpoint,omitempty"`
	ProviderBaseURL             string   `json:"provider_base_url"`
	ResourceURI                 string   `json:"resource_uri,omitempty"`
}

// RegisterAuthResources registers read-only resources describing the
// signed-in state and the client configuration.
func RegisterAuthResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusResource := mcp.NewResource(
		StatusURI,
		"Authorization Status",
		mcp.WithResourceDescription("Whether credentials are stored, their scopes and expiry. Tokens are never included."),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleStatus(ctx, request, sc)
	})

	clientResource := mcp.NewResource(
		ClientURI,
		"OAuth Client",
		mcp.WithResourceDescription("Endpoints, redirect URI and default scopes of the configured OAuth client"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(clientResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleClient(ctx, request, sc)
	})

	return nil
}

func handleStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	flow := sc.Flow()
	if flow == nil {
		return nil, errNotConfigured
	}
	st, err := flow.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return jsonContents(request.Params.URI, auth_tools.NewStatusView(st))
}

func handleClient(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	flow := sc.Flow()
	if flow == nil {
		return nil, errNotConfigured
	}
	cfg := flow.Manager().Config()
	return jsonContents(request.Params.URI, ClientView{
		ClientID:                    cfg.ClientID,
		HasClientSecret:             cfg.ClientSecret != "",
		RedirectURI:                 cfg.RedirectURI,
		Scopes:                      cfg.Scopes,
		AuthorizationEndpoint:       cfg.AuthorizationEndpoint,
		TokenEndpoint:               cfg.TokenEndpoint,
		DeviceAuthorizationEndpoint: cfg.DeviceAuthorizationEndpoint,
		ProviderBaseURL:             cfg.ProviderBaseURL,
		ResourceURI:                 cfg.ResourceURI,
	})
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
