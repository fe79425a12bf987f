package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcporch/orchestrator/internal/reasoner"
)

func chatCompletionsStub(t *testing.T, content string, failFirstN int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failFirstN {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"total_tokens": 42},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return srv, &calls
}

func TestAnalyze_ReturnsReplyAndTokens(t *testing.T) {
	srv, _ := chatCompletionsStub(t, "hello there", 0)
	defer srv.Close()

	r, err := New(Config{Model: "test-model", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Analyze(context.Background(), "sys", "hi", "", nil, reasoner.Preferences{Temperature: -1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Response != "hello there" {
		t.Errorf("Response = %q", res.Response)
	}
	if res.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d", res.TokensUsed)
	}
	if res.ProviderID != "openaicompat:test-model" {
		t.Errorf("ProviderID = %q", res.ProviderID)
	}
}

func TestSynthesize_ReturnsText(t *testing.T) {
	srv, _ := chatCompletionsStub(t, "final answer", 0)
	defer srv.Close()

	r, err := New(Config{Model: "test-model", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Synthesize(context.Background(), "summarize these results", reasoner.Preferences{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out != "final answer" {
		t.Errorf("Synthesize = %q", out)
	}
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	srv, calls := chatCompletionsStub(t, "ok", 1) // first call fails, second succeeds
	defer srv.Close()

	r, err := New(Config{Model: "test-model", BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Analyze(context.Background(), "sys", "hi", "", nil, reasoner.Preferences{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Response != "ok" {
		t.Errorf("Response = %q", res.Response)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls (1 failure + 1 success), got %d", calls.Load())
	}
}

func TestComplete_ExhaustsRetriesReturnsError(t *testing.T) {
	srv, _ := chatCompletionsStub(t, "unused", 5)
	defer srv.Close()

	r, err := New(Config{Model: "test-model", BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := r.Analyze(context.Background(), "sys", "hi", "", nil, reasoner.Preferences{}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error when Model is empty")
	}
}
