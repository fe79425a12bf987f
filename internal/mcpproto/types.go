// Package mcpproto speaks MCP (Model Context Protocol) to a single server
// over the Streamable HTTP transport from github.com/mark3labs/mcp-go,
// exposing the initialize/tools-list/tools-call/health operations the rest
// of the module needs. It has no knowledge of server registries, caching,
// or health policy — those live in internal/registry and internal/coordinator.
package mcpproto

import (
	"encoding/json"
	"time"
)

// AuthKind selects how a server's requests are authenticated.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBasic  AuthKind = "basic"
	AuthBearer AuthKind = "bearer"
	AuthAPIKey AuthKind = "apikey"
)

// Auth describes how to authenticate outbound requests to one server.
// Only the fields relevant to Kind are populated.
type Auth struct {
	Kind       AuthKind
	Username   string // basic
	Password   string // basic
	Token      string // bearer
	HeaderName string // apikey; defaults to "X-API-Key" when empty
	Key        string // apikey
}

// Endpoint is everything the protocol adapter needs to talk to one MCP
// server. It is a read-only projection of a registry.ServerDefinition —
// the adapter never mutates server state itself.
type Endpoint struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	Auth    Auth
	Headers map[string]string
}

// ServerCapabilities is the result of a successful initialize call.
type ServerCapabilities struct {
	ProtocolVersion   string
	SupportedFeatures []string // key set of the capabilities object; non-null values only
	ServerInfo        map[string]any
}

// ToolInfo is a single remote callable as discovered via tools/list.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}
