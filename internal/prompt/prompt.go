// Package prompt builds the text prompts the orchestration loop sends to a
// Reasoner: the system prompt describing available tools, the synthesis
// prompt for turning tool results into a final answer, and a rendering of
// recent conversation history.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcporch/orchestrator/internal/reasoner"
	"github.com/mcporch/orchestrator/internal/session"
)

// maxHistoryMessages is how many trailing messages historyText renders.
const maxHistoryMessages = 10

// SystemPrompt builds the tool-catalog system prompt: a role statement, one
// "Server: <name>" block per server with its tools indented beneath, then
// the tool-call envelope directive.
func SystemPrompt(tools []reasoner.Tool) string {
	var sb strings.Builder
	sb.WriteString("You are an AI assistant that can use tools exposed by connected servers to answer questions.\n\n")

	byServer := make(map[string][]reasoner.Tool)
	var serverNames []string
	for _, t := range tools {
		if _, ok := byServer[t.ServerName]; !ok {
			serverNames = append(serverNames, t.ServerName)
		}
		byServer[t.ServerName] = append(byServer[t.ServerName], t)
	}
	sort.Strings(serverNames)

	for _, name := range serverNames {
		sb.WriteString(fmt.Sprintf("Server: %s\n", name))
		for _, t := range byServer[name] {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", t.Name, t.Description))
		}
	}

	sb.WriteString("\nWhen you need to call one or more tools, reply with a single JSON object of the form:\n")
	sb.WriteString(`{"action": "tool_call", "reasoning": "<why>", "tool_calls": [{"server_name": "<server>", "tool_name": "<tool>", "arguments": {}}]}`)
	sb.WriteString("\n\nIf no tool is needed, reply in plain prose.\n")
	return sb.String()
}

// responseFormat selects a synthesisPrompt template.
type responseFormat string

const (
	formatSummary  responseFormat = "summary"
	formatDetailed responseFormat = "detailed"
	formatRaw      responseFormat = "raw"
)

// ToolResult is one executed tool call's outcome, as rendered into the
// synthesis prompt.
type ToolResult struct {
	ServerName string
	ToolName   string
	Output     string
}

// SynthesisPrompt builds the prompt asking the Reasoner to turn tool
// results into a final answer, selecting a template by
// prefs.ResponseFormat.
func SynthesisPrompt(originalMessage string, results []ToolResult, prefs reasoner.Preferences) string {
	switch responseFormat(prefs.ResponseFormat) {
	case formatSummary:
		return summaryTemplate(originalMessage, results)
	case formatDetailed:
		return detailedTemplate(originalMessage, results)
	case formatRaw:
		return rawTemplate(originalMessage, results)
	default:
		return defaultTemplate(originalMessage, results)
	}
}

func summaryTemplate(originalMessage string, results []ToolResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked: %q\n\nTool results:\n", originalMessage)
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s/%s: %s\n", r.ServerName, r.ToolName, r.Output)
	}
	sb.WriteString("\nWrite a concise summary answer for the user based on these results.\n")
	return sb.String()
}

func detailedTemplate(originalMessage string, results []ToolResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked: %q\n\nTool results:\n", originalMessage)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s/%s: %s\n", i+1, r.ServerName, r.ToolName, r.Output)
	}
	sb.WriteString("\nWrite a comprehensive answer covering: a summary, key insights, recommendations, and technical detail.\n")
	return sb.String()
}

func rawTemplate(originalMessage string, results []ToolResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked: %q\n\nFormat the following raw tool results for the user:\n", originalMessage)
	for _, r := range results {
		fmt.Fprintf(&sb, "[%s/%s] %s\n", r.ServerName, r.ToolName, r.Output)
	}
	return sb.String()
}

func defaultTemplate(originalMessage string, results []ToolResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked: %q\n\nTool results:\n", originalMessage)
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s/%s: %s\n", r.ServerName, r.ToolName, r.Output)
	}
	sb.WriteString("\nAnswer the user's question using these results.\n")
	return sb.String()
}

// HistoryText renders the last maxHistoryMessages messages of ctx in order,
// each as "<Role>: <content>" with the role capitalized.
func HistoryText(ctx *session.Context) string {
	msgs := ctx.Messages
	if len(msgs) > maxHistoryMessages {
		msgs = msgs[len(msgs)-maxHistoryMessages:]
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(capitalize(string(m.Role)) + ": " + m.Content)
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
