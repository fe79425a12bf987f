// Package orchestrator implements the per-request driver: admission
// control, the bounded LLM/tool iteration loop, execution-step logging, and
// response assembly.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mcporch/orchestrator/internal/coordinator"
	"github.com/mcporch/orchestrator/internal/extractor"
	"github.com/mcporch/orchestrator/internal/orcherr"
	"github.com/mcporch/orchestrator/internal/prompt"
	"github.com/mcporch/orchestrator/internal/reasoner"
	"github.com/mcporch/orchestrator/internal/session"
)

// Status is the terminal outcome of one orchestration request.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Preferences carries per-request overrides to orchestration behavior.
type Preferences struct {
	MaxSteps         int
	Timeout          time.Duration
	PreferredServers []string
	ResponseFormat   string
	IncludeMetadata  bool
	AIProvider       string
	MaxTokens        int
	Temperature      float64
}

// Request is one inbound orchestration request.
type Request struct {
	Message     string
	SessionID   string
	Context     map[string]any
	Preferences Preferences
	ArrivedAt   time.Time
}

// Performance reports which AI provider answered, how many tools were
// available, and whether the step budget was exhausted.
type Performance struct {
	AIProviderUsed  string
	ToolsAvailable  int
	MaxStepsReached bool
}

// Metadata accompanies a Response.
type Metadata struct {
	TotalDuration time.Duration
	StepsExecuted int
	ServersUsed   []string
	ToolsUsed     []string
	Performance   Performance
}

// Response is one orchestration request's outcome.
type Response struct {
	RequestID     string
	SessionID     string
	Status        Status
	Response      string
	ExecutionFlow []session.ExecutionStep
	Metadata      Metadata
}

// Config bounds concurrency and default step budget.
type Config struct {
	MaxConcurrentRequests int
	DefaultMaxSteps       int
}

// DefaultConfig returns the module's stated defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrentRequests: 10, DefaultMaxSteps: 10}
}

// Orchestrator drives requests through the reasoning loop.
type Orchestrator struct {
	sessions  *session.Manager
	coord     *coordinator.Coordinator
	reasoner  reasoner.Reasoner
	cfg       Config
	admission chan struct{}
}

// New builds an Orchestrator with an admission semaphore sized to
// cfg.MaxConcurrentRequests.
func New(sessions *session.Manager, coord *coordinator.Coordinator, r reasoner.Reasoner, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 1
	}
	return &Orchestrator{
		sessions:  sessions,
		coord:     coord,
		reasoner:  r,
		cfg:       cfg,
		admission: make(chan struct{}, cfg.MaxConcurrentRequests),
	}
}

// Process runs one request to completion: admission control, reasoning
// loop, response assembly. It never panics; any internal failure is
// reported as a status=error Response.
func (o *Orchestrator) Process(ctx context.Context, req Request) Response {
	requestID := uuid.NewString()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	start := time.Now()

	timeout := req.Preferences.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case o.admission <- struct{}{}:
	case <-time.After(timeout):
		return Response{
			RequestID: requestID,
			SessionID: sessionID,
			Status:    StatusError,
			Response:  orcherr.ErrAdmissionTimeout.Error(),
		}
	}
	defer func() { <-o.admission }()

	resp, err := o.run(ctx, requestID, sessionID, req, start)
	if err != nil {
		log.Printf("[Orchestrator] request %s failed: %v", requestID, err)
		return Response{
			RequestID: requestID,
			SessionID: sessionID,
			Status:    StatusError,
			Response:  err.Error(),
			Metadata: Metadata{
				TotalDuration: time.Since(start),
			},
		}
	}
	return resp
}

func (o *Orchestrator) run(ctx context.Context, requestID, sessionID string, req Request, start time.Time) (Response, error) {
	ctxSession := o.sessions.GetOrCreateContext(sessionID)
	o.sessions.AppendMessage(sessionID, session.Message{Role: session.RoleUser, Content: req.Message, Timestamp: time.Now()})

	tools := o.coord.GetAvailableTools(ctx)
	toolSnapshots := make([]session.ToolSnapshot, 0, len(tools))
	reasonerTools := make([]reasoner.Tool, 0, len(tools))
	for _, t := range tools {
		toolSnapshots = append(toolSnapshots, session.ToolSnapshot{ServerName: t.ServerName, Name: t.Name})
		reasonerTools = append(reasonerTools, reasoner.Tool{ServerName: t.ServerName, Name: t.Name, Description: t.Description})
	}
	ctxSession.Tools = toolSnapshots

	// remainingSteps = min(preferences.maxSteps, config.defaultMaxSteps); a
	// caller-supplied maxSteps of 0 means zero iterations, not "use the
	// default" — that substitution happens one layer up, in the HTTP API,
	// when preferences.maxSteps is entirely absent from the request body.
	remainingSteps := req.Preferences.MaxSteps
	if remainingSteps > o.cfg.DefaultMaxSteps {
		remainingSteps = o.cfg.DefaultMaxSteps
	}

	reasonerPrefs := reasoner.Preferences{
		MaxTokens:      req.Preferences.MaxTokens,
		Temperature:    req.Preferences.Temperature,
		AIProvider:     req.Preferences.AIProvider,
		ResponseFormat: req.Preferences.ResponseFormat,
	}

	var flow []session.ExecutionStep
	currentResponse := req.Message
	terminal := false
	maxStepsReached := false
	providerUsed := ""

	for remainingSteps > 0 {
		analysisStart := time.Now()
		result, err := o.reasoner.Analyze(ctx, prompt.SystemPrompt(reasonerTools), currentResponse, prompt.HistoryText(ctxSession), reasonerTools, reasonerPrefs)
		if err != nil {
			return Response{}, fmt.Errorf("%w: %v", orcherr.ErrReasoner, err)
		}
		providerUsed = result.ProviderID

		analysisStep := session.ExecutionStep{
			ID:         fmt.Sprintf("step-%d", len(flow)+1),
			Type:       "ai_analysis",
			StartedAt:  analysisStart,
			Duration:   time.Since(analysisStart),
			Input:      currentResponse,
			Output:     result.Response,
			Success:    true,
			Metadata:   map[string]any{"tokensUsed": result.TokensUsed},
		}
		flow = append(flow, analysisStep)

		calls := extractor.Extract(result.Response)
		if len(calls) == 0 {
			o.sessions.AppendMessage(sessionID, session.Message{Role: session.RoleAssistant, Content: result.Response, Timestamp: time.Now()})
			currentResponse = result.Response
			terminal = true
			remainingSteps--
			break
		}

		var results []prompt.ToolResult
		for _, call := range calls {
			coordStep, err := o.coord.ExecuteTool(ctx, coordinator.ToolCall{
				ServerName: call.ServerName,
				ToolName:   call.ToolName,
				Arguments:  call.Arguments,
			})
			var step session.ExecutionStep
			if err != nil {
				// Pre-dispatch refusal (ServerNotFound/Disabled/Unhealthy):
				// recorded as a failed step, never fatal to the request.
				step = session.ExecutionStep{
					ID:         fmt.Sprintf("step-%d", len(flow)+1),
					Type:       "mcp_call",
					StartedAt:  time.Now(),
					ServerName: call.ServerName,
					ToolName:   call.ToolName,
					Output:     "Error: " + err.Error(),
					Success:    false,
				}
			} else {
				step = session.ExecutionStep{
					ID:         coordStep.ID,
					Type:       coordStep.Type,
					StartedAt:  coordStep.StartedAt,
					Duration:   coordStep.Duration,
					ServerName: coordStep.ServerName,
					ToolName:   coordStep.ToolName,
					Input:      coordStep.Input,
					Output:     coordStep.Output,
					Success:    coordStep.Success,
					Metadata:   coordStep.Metadata,
				}
			}
			flow = append(flow, step)
			ctxSession.ExecutionHistory = append(ctxSession.ExecutionHistory, step)

			output := step.Output
			if output == "" {
				output = "No output"
			}
			results = append(results, prompt.ToolResult{ServerName: call.ServerName, ToolName: call.ToolName, Output: output})
		}

		synthesisPrompt := prompt.SynthesisPrompt(req.Message, results, reasonerPrefs)
		synthesized, err := o.reasoner.Synthesize(ctx, synthesisPrompt, reasonerPrefs)
		if err != nil {
			return Response{}, fmt.Errorf("%w: %v", orcherr.ErrReasoner, err)
		}
		currentResponse = synthesized

		remainingSteps--
		if remainingSteps == 0 {
			maxStepsReached = true
		}
	}

	status := StatusPartial
	if terminal {
		status = StatusSuccess
	}

	o.sessions.UpdateContext(ctxSession)

	serverSet := map[string]bool{}
	toolSet := map[string]bool{}
	for _, step := range flow {
		if step.ServerName != "" {
			serverSet[step.ServerName] = true
		}
		if step.ToolName != "" {
			toolSet[step.ToolName] = true
		}
	}

	return Response{
		RequestID:     requestID,
		SessionID:     sessionID,
		Status:        status,
		Response:      currentResponse,
		ExecutionFlow: flow,
		Metadata: Metadata{
			TotalDuration: time.Since(start),
			StepsExecuted: len(flow),
			ServersUsed:   sortedKeys(serverSet),
			ToolsUsed:     sortedKeys(toolSet),
			Performance: Performance{
				AIProviderUsed:  providerUsed,
				ToolsAvailable:  len(tools),
				MaxStepsReached: maxStepsReached,
			},
		},
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
