package mcpproto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	sdkclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/mcporch/orchestrator/internal/orcherr"
)

const clientName = "mcp-orchestrator"
const clientVersion = "0.1.0"

// Adapter speaks MCP to a single server over mark3labs/mcp-go's Streamable
// HTTP client, built once at registration time with the server's resolved
// auth headers. All server health and cache state live one layer up, in
// internal/coordinator.
type Adapter struct {
	endpoint Endpoint
	inner    *sdkclient.Client
	buildErr error // set when the Streamable HTTP client itself failed to construct
}

// NewAdapter builds an Adapter for endpoint. A failure to construct the
// underlying client (e.g. an unparsable base URL) is not returned here —
// it surfaces as a transport error from the first call, matching the
// "never panics at construction time" shape the coordinator depends on.
func NewAdapter(endpoint Endpoint) *Adapter {
	inner, err := sdkclient.NewStreamableHttpClient(endpoint.BaseURL, authOptions(endpoint)...)
	if err != nil {
		return &Adapter{endpoint: endpoint, buildErr: fmt.Errorf("%w: build client for %q: %v", orcherr.ErrTransport, endpoint.Name, err)}
	}
	return &Adapter{endpoint: endpoint, inner: inner}
}

// authOptions derives the Streamable HTTP client options carrying the
// endpoint's default headers plus its per-kind authorization header.
func authOptions(endpoint Endpoint) []transport.StreamableHTTPCOption {
	headers := authHeaders(endpoint.Auth, endpoint.Headers)
	if len(headers) == 0 {
		return nil
	}
	return []transport.StreamableHTTPCOption{transport.WithHTTPHeaders(headers)}
}

// authHeaders merges the endpoint's default headers with the authorization
// header its Auth kind prescribes. Kept separate from authOptions so it is
// testable without constructing a client.
func authHeaders(auth Auth, defaults map[string]string) map[string]string {
	headers := make(map[string]string, len(defaults)+1)
	for k, v := range defaults {
		headers[k] = v
	}

	switch auth.Kind {
	case AuthBasic:
		token := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		headers["Authorization"] = "Basic " + token
	case AuthBearer:
		headers["Authorization"] = "Bearer " + auth.Token
	case AuthAPIKey:
		name := auth.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		headers[name] = auth.Key
	case AuthNone, "":
		// no header
	}
	return headers
}

// Initialize starts the underlying transport and performs the MCP
// handshake, returning the server's advertised capabilities.
func (a *Adapter) Initialize(ctx context.Context) (ServerCapabilities, error) {
	if a.buildErr != nil {
		return ServerCapabilities{}, a.buildErr
	}

	ctx, cancel := context.WithTimeout(ctx, a.endpoint.Timeout)
	defer cancel()

	if err := a.inner.Start(ctx); err != nil {
		return ServerCapabilities{}, fmt.Errorf("%w: start %q: %v", orcherr.ErrTransport, a.endpoint.Name, err)
	}

	res, err := a.inner.Initialize(ctx, sdkmcp.InitializeRequest{
		Params: sdkmcp.InitializeParams{
			ProtocolVersion: sdkmcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdkmcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		return ServerCapabilities{}, fmt.Errorf("mcpproto: initialize %q: %w: %v", a.endpoint.Name, orcherr.ErrTransport, err)
	}

	return capabilitiesFrom(res), nil
}

// capabilitiesFrom derives ServerCapabilities from a typed InitializeResult.
// The SDK's ServerCapabilities is a fixed struct (Tools/Resources/Prompts/
// Logging/Experimental), not an open map, so the feature-key-set is recovered
// by round-tripping it through JSON: any top-level field that marshaled to
// something other than null counts as a supported feature.
func capabilitiesFrom(res *sdkmcp.InitializeResult) ServerCapabilities {
	caps := ServerCapabilities{ProtocolVersion: res.ProtocolVersion}
	if res.ServerInfo.Name != "" || res.ServerInfo.Version != "" {
		caps.ServerInfo = map[string]any{"name": res.ServerInfo.Name, "version": res.ServerInfo.Version}
	}

	raw, err := json.Marshal(res.Capabilities)
	if err != nil {
		return caps
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return caps
	}
	for key, val := range fields {
		if string(val) == "null" {
			continue
		}
		caps.SupportedFeatures = append(caps.SupportedFeatures, key)
	}
	return caps
}

// ListTools returns the tools exposed by this server. The caller is
// responsible for attaching the server name to each ToolInfo.
func (a *Adapter) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if a.buildErr != nil {
		return nil, a.buildErr
	}

	ctx, cancel := context.WithTimeout(ctx, a.endpoint.Timeout)
	defer cancel()

	res, err := a.inner.ListTools(ctx, sdkmcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpproto: list tools %q: %w: %v", a.endpoint.Name, orcherr.ErrTransport, err)
	}

	tools := make([]ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		if t.Name == "" {
			// Missing the only required field; dropped with a warning.
			log.Printf("[MCP] %q: dropping tool entry with no name", a.endpoint.Name)
			continue
		}
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			// Non-fatal: use empty schema
			schema = json.RawMessage("{}")
		}
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// CallTool invokes a remote tool and renders its text output.
//
// success is false whenever the server reported a tool-level IsError;
// output is then prefixed "Error: ". A transport-level failure (non-nil
// error return) is distinguished from a tool-level error (nil error,
// success=false) so callers can apply the correct error-taxonomy branch.
func (a *Adapter) CallTool(ctx context.Context, name string, arguments map[string]any) (output string, success bool, err error) {
	if a.buildErr != nil {
		return "", false, a.buildErr
	}

	ctx, cancel := context.WithTimeout(ctx, a.endpoint.Timeout)
	defer cancel()

	req := sdkmcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	res, callErr := a.inner.CallTool(ctx, req)
	if callErr != nil {
		return "", false, fmt.Errorf("%w: call tool %q on %q: %v", orcherr.ErrTransport, name, a.endpoint.Name, callErr)
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(sdkmcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if res.IsError {
		return "Error: " + text, false, nil
	}
	return text, true, nil
}

// TestConnection attempts a lightweight liveness probe: GET /health, falling
// back to a full initialize handshake on any failure. Any success → true.
// /health is a REST convenience endpoint layered on top of the server, not
// part of the MCP wire protocol itself, so it is checked with a plain HTTP
// client rather than the Streamable HTTP client.
func (a *Adapter) TestConnection(ctx context.Context) bool {
	httpClient := &http.Client{Timeout: a.endpoint.Timeout}
	healthURL := strings.TrimRight(a.endpoint.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err == nil {
		resp, err := httpClient.Do(req)
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return true
			}
		}
	}

	_, err = a.Initialize(ctx)
	return err == nil
}
