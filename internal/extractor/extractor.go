// Package extractor parses an LLM reply for a JSON tool-call envelope. It
// never panics on malformed input: any failure to recognize the envelope
// simply yields an empty call list.
package extractor

import (
	"encoding/json"
	"log"
	"strings"
)

// ToolCall is one requested tool invocation extracted from a reply.
type ToolCall struct {
	ServerName string
	ToolName   string
	Arguments  map[string]any
}

type envelope struct {
	Action    string            `json:"action"`
	Reasoning string            `json:"reasoning"`
	ToolCalls []json.RawMessage `json:"tool_calls"`
}

type callEntry struct {
	ServerName string         `json:"server_name"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

// Extract runs a four-step tolerant algorithm: fast-reject substring check,
// brace-extraction, JSON parse, then per-entry tolerant parsing.
func Extract(replyText string) []ToolCall {
	if !strings.Contains(replyText, "action") || !strings.Contains(replyText, "tool_call") {
		return nil
	}

	start := strings.IndexByte(replyText, '{')
	end := strings.LastIndexByte(replyText, '}')
	if start == -1 || end == -1 || end < start {
		return nil
	}
	candidate := replyText[start : end+1]

	var env envelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil {
		return nil
	}
	if env.Action != "tool_call" {
		return nil
	}

	var calls []ToolCall
	for _, raw := range env.ToolCalls {
		var entry callEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Printf("[Extractor] skipping malformed tool call entry: %v", err)
			continue
		}
		if entry.ServerName == "" || entry.ToolName == "" {
			log.Printf("[Extractor] skipping tool call entry missing server_name/tool_name: %+v", entry)
			continue
		}
		args := entry.Arguments
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{
			ServerName: entry.ServerName,
			ToolName:   entry.ToolName,
			Arguments:  args,
		})
	}
	return calls
}
