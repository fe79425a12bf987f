// Package orcherr defines the sentinel error taxonomy shared across the
// coordinator and orchestration loop, so callers can branch with errors.Is
// instead of string matching.
package orcherr

import "errors"

var (
	// ErrServerNotFound means the referenced server is not in the registry.
	ErrServerNotFound = errors.New("server not found")
	// ErrServerDisabled means the server exists but is configured disabled.
	ErrServerDisabled = errors.New("server disabled")
	// ErrServerUnhealthy means the server exists, is enabled, but failed its
	// last health check.
	ErrServerUnhealthy = errors.New("server unhealthy")
	// ErrTransport covers connect-refused, read-timeout, and non-2xx HTTP
	// responses from an MCP server.
	ErrTransport = errors.New("mcp transport error")
	// ErrProtocol covers a JSON-RPC error object or a malformed result shape.
	ErrProtocol = errors.New("mcp protocol error")
	// ErrReasoner covers a Reasoner call failure (LLM unavailable or
	// misconfigured); fatal to the request.
	ErrReasoner = errors.New("reasoner error")
	// ErrAdmissionTimeout means the admission semaphore wait exceeded
	// preferences.Timeout.
	ErrAdmissionTimeout = errors.New("request queue is full")
)
