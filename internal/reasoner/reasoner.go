// Package reasoner defines the abstraction the orchestration loop uses to
// talk to an LLM, kept deliberately opaque: the core depends only on this
// interface, never on a concrete provider.
package reasoner

import "context"

// Preferences carries the request-scoped knobs a Reasoner may consult. A
// reasoner must not depend on any field beyond these; provider-specific
// behavior belongs in the reasoner's own configuration, not here.
type Preferences struct {
	MaxTokens      int     // 0 => provider default
	Temperature    float64 // negative => provider default
	AIProvider     string  // which registered implementation to pick
	ResponseFormat string  // "summary" | "detailed" | "raw" | anything else => default
}

// AnalyzeResult is the outcome of one Analyze call.
type AnalyzeResult struct {
	Response   string
	TokensUsed int
	ProviderID string
}

// Tool is the minimal shape of a discovered tool a Reasoner needs to render
// into a prompt; decoupled from coordinator.Tool so this package has no
// dependency on the coordinator.
type Tool struct {
	ServerName  string
	Name        string
	Description string
}

// Reasoner is an LLM behind a purely functional, two-operation interface.
type Reasoner interface {
	// Analyze asks the model to consider userMessage in light of the
	// conversation historyText and the available tools, optionally invoking
	// a tool. Returns the raw reply text (which may embed a tool-call
	// envelope, see internal/extractor) plus usage metadata.
	Analyze(ctx context.Context, systemPrompt, userMessage, historyText string, tools []Tool, prefs Preferences) (AnalyzeResult, error)

	// Synthesize asks the model to produce a final natural-language answer
	// from prompt (already built by the Prompt Builder for tool results).
	Synthesize(ctx context.Context, prompt string, prefs Preferences) (string, error)
}
