package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/mcporch/orchestrator/internal/reasoner"
	"github.com/mcporch/orchestrator/internal/session"
)

func TestSystemPrompt_GroupsByServerSorted(t *testing.T) {
	tools := []reasoner.Tool{
		{ServerName: "zeta", Name: "toolZ", Description: "does z"},
		{ServerName: "alpha", Name: "toolA", Description: "does a"},
		{ServerName: "alpha", Name: "toolB", Description: "does b"},
	}
	out := SystemPrompt(tools)

	alphaIdx := strings.Index(out, "Server: alpha")
	zetaIdx := strings.Index(out, "Server: zeta")
	if alphaIdx == -1 || zetaIdx == -1 || alphaIdx > zetaIdx {
		t.Fatalf("expected alpha before zeta:\n%s", out)
	}
	if !strings.Contains(out, "toolA: does a") || !strings.Contains(out, "toolB: does b") {
		t.Errorf("missing tool lines:\n%s", out)
	}
	if !strings.Contains(out, `"action": "tool_call"`) {
		t.Error("expected tool-call envelope directive in system prompt")
	}
}

func TestSystemPrompt_NoTools(t *testing.T) {
	out := SystemPrompt(nil)
	if !strings.Contains(out, "plain prose") {
		t.Errorf("expected plain-prose directive even with no tools:\n%s", out)
	}
}

func TestSynthesisPrompt_SelectsTemplateByFormat(t *testing.T) {
	results := []ToolResult{{ServerName: "srv", ToolName: "t1", Output: "42"}}

	summary := SynthesisPrompt("what is it", results, reasoner.Preferences{ResponseFormat: "summary"})
	if !strings.Contains(summary, "concise summary") {
		t.Errorf("summary template missing marker:\n%s", summary)
	}

	detailed := SynthesisPrompt("what is it", results, reasoner.Preferences{ResponseFormat: "detailed"})
	if !strings.Contains(detailed, "recommendations") {
		t.Errorf("detailed template missing marker:\n%s", detailed)
	}

	raw := SynthesisPrompt("what is it", results, reasoner.Preferences{ResponseFormat: "raw"})
	if !strings.Contains(raw, "[srv/t1]") {
		t.Errorf("raw template missing marker:\n%s", raw)
	}

	def := SynthesisPrompt("what is it", results, reasoner.Preferences{ResponseFormat: "unknown-mode"})
	if !strings.Contains(def, "Answer the user's question") {
		t.Errorf("default template missing marker:\n%s", def)
	}
}

func TestHistoryText_LastTenInOrderCapitalized(t *testing.T) {
	ctx := &session.Context{}
	for i := 0; i < 15; i++ {
		ctx.Messages = append(ctx.Messages, session.Message{Role: session.RoleUser, Content: "m", Timestamp: time.Now()})
	}
	out := HistoryText(ctx)
	if strings.Count(out, "User: m") != 10 {
		t.Errorf("expected 10 rendered messages, got: %q", out)
	}
}

func TestHistoryText_Empty(t *testing.T) {
	ctx := &session.Context{}
	if out := HistoryText(ctx); out != "" {
		t.Errorf("expected empty string for no messages, got %q", out)
	}
}
