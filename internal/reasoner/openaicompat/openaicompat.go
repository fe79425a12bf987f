// Package openaicompat is a reference Reasoner implementation wrapping any
// OpenAI-compatible chat-completions endpoint. It is one possible
// collaborator behind the reasoner.Reasoner interface, not the only one.
package openaicompat

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/mcporch/orchestrator/internal/reasoner"
)

// Config configures the reference Reasoner.
type Config struct {
	APIKey     string
	BaseURL    string // empty => api.openai.com
	Model      string
	MaxRetries int           // default 2 if zero
	Timeout    time.Duration // HTTP client timeout; default 120s if zero
}

// Reasoner wraps go-openai's client to satisfy reasoner.Reasoner. It never
// uses the provider's native `tools=` function-calling parameter: the tool
// catalog is rendered entirely through the system prompt text, and the
// model's reply is expected to embed the JSON tool-call envelope the
// extractor parses.
type Reasoner struct {
	client *openailib.Client
	cfg    Config
}

// New builds a Reasoner from cfg, applying defaults for zero-valued fields.
func New(cfg Config) (*Reasoner, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaicompat: model is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	clientConfig := openailib.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Reasoner{
		client: openailib.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Analyze renders systemPrompt/history/userMessage as a chat completion
// request and returns the model's raw reply text.
func (r *Reasoner) Analyze(ctx context.Context, systemPrompt, userMessage, historyText string, tools []reasoner.Tool, prefs reasoner.Preferences) (reasoner.AnalyzeResult, error) {
	messages := []openailib.ChatCompletionMessage{
		{Role: openailib.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if historyText != "" {
		messages = append(messages, openailib.ChatCompletionMessage{
			Role:    openailib.ChatMessageRoleSystem,
			Content: "Conversation history:\n" + historyText,
		})
	}
	messages = append(messages, openailib.ChatCompletionMessage{
		Role:    openailib.ChatMessageRoleUser,
		Content: userMessage,
	})

	resp, err := r.complete(ctx, messages, prefs)
	if err != nil {
		return reasoner.AnalyzeResult{}, fmt.Errorf("openaicompat: analyze: %w", err)
	}

	return reasoner.AnalyzeResult{
		Response:   resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		ProviderID: "openaicompat:" + r.cfg.Model,
	}, nil
}

// Synthesize asks the model to turn an already-built synthesis prompt into a
// final natural-language answer.
func (r *Reasoner) Synthesize(ctx context.Context, prompt string, prefs reasoner.Preferences) (string, error) {
	messages := []openailib.ChatCompletionMessage{
		{Role: openailib.ChatMessageRoleUser, Content: prompt},
	}
	resp, err := r.complete(ctx, messages, prefs)
	if err != nil {
		return "", fmt.Errorf("openaicompat: synthesize: %w", err)
	}
	return resp.Choices[0].Message.Content, nil
}

// complete executes a chat completion with bounded retries and linear
// backoff, aborting early on context cancellation.
func (r *Reasoner) complete(ctx context.Context, messages []openailib.ChatCompletionMessage, prefs reasoner.Preferences) (openailib.ChatCompletionResponse, error) {
	req := openailib.ChatCompletionRequest{
		Model:    r.cfg.Model,
		Messages: messages,
	}
	if prefs.MaxTokens > 0 {
		req.MaxTokens = prefs.MaxTokens
	}
	if prefs.Temperature >= 0 {
		req.Temperature = float32(prefs.Temperature)
	}

	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		resp, lastErr = r.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			break
		}
		if attempt < r.cfg.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[Reasoner] retry %d/%d after %v, error: %v", attempt+1, r.cfg.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return openailib.ChatCompletionResponse{}, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return openailib.ChatCompletionResponse{}, fmt.Errorf("call failed after %d retries: %w", r.cfg.MaxRetries, lastErr)
	}
	if len(resp.Choices) == 0 {
		return openailib.ChatCompletionResponse{}, fmt.Errorf("no choices returned")
	}
	return resp, nil
}
