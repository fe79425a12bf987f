// Package httpapi exposes the orchestration core over HTTP, translating
// query/path/body parameters into the internal request types and encoding
// their results as JSON.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcporch/orchestrator/internal/coordinator"
	"github.com/mcporch/orchestrator/internal/orchestrator"
	"github.com/mcporch/orchestrator/internal/registry"
	"github.com/mcporch/orchestrator/internal/session"
)

// defaultMaxSteps is substituted when a request omits preferences.maxSteps
// entirely. An explicit maxSteps of 0 is left as 0, meaning the orchestrator
// runs zero iterations — that distinction only this layer can make, since
// JSON omission and an explicit zero decode identically into a bare int.
const defaultMaxSteps = 10

// Server wires the orchestrator, coordinator, registry, and session manager
// to an http.ServeMux.
type Server struct {
	mux      *http.ServeMux
	orch     *orchestrator.Orchestrator
	coord    *coordinator.Coordinator
	reg      *registry.Registry
	sessions *session.Manager
	started  time.Time
}

// New builds a Server and registers its routes.
func New(orch *orchestrator.Orchestrator, coord *coordinator.Coordinator, reg *registry.Registry, sessions *session.Manager) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		orch:     orch,
		coord:    coord,
		reg:      reg,
		sessions: sessions,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP lets Server itself be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/orchestration/process", s.handleProcess)
	s.mux.HandleFunc("GET /api/v1/orchestration/tools", s.handleListTools)
	s.mux.HandleFunc("GET /api/v1/orchestration/tools/{server}", s.handleServerTools)
	s.mux.HandleFunc("POST /api/v1/orchestration/configure", s.handleConfigure)
	s.mux.HandleFunc("GET /api/v1/orchestration/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/orchestration/status", s.handleStatus)
	s.mux.HandleFunc("DELETE /api/v1/orchestration/session/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/v1/orchestration/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/v1/orchestration/session/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/v1/orchestration/servers/{name}/test", s.handleTestServer)
	s.mux.HandleFunc("POST /api/v1/orchestration/cache/invalidate", s.handleInvalidateCache)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

// preferencesPayload mirrors OrchestrationPreferences; MaxSteps is a pointer
// so the handler can tell "absent" from "explicitly zero".
type preferencesPayload struct {
	MaxSteps         *int     `json:"maxSteps"`
	TimeoutMS        *int     `json:"timeout"`
	PreferredServers []string `json:"preferredServers"`
	ResponseFormat   string   `json:"responseFormat"`
	IncludeMetadata  bool     `json:"includeMetadata"`
	AIProvider       string   `json:"aiProvider"`
	MaxTokens        int      `json:"maxTokens"`
	Temperature      float64  `json:"temperature"`
}

type processRequestPayload struct {
	Message     string              `json:"message"`
	SessionID   string              `json:"sessionId"`
	Context     map[string]any      `json:"context"`
	Preferences *preferencesPayload `json:"preferences"`
	Timestamp   string              `json:"timestamp"`
}

func (p *preferencesPayload) toOrchestrator() orchestrator.Preferences {
	prefs := orchestrator.Preferences{MaxSteps: defaultMaxSteps, Temperature: -1}
	if p == nil {
		return prefs
	}
	if p.MaxSteps != nil {
		prefs.MaxSteps = *p.MaxSteps
	}
	if p.TimeoutMS != nil {
		prefs.Timeout = time.Duration(*p.TimeoutMS) * time.Millisecond
	}
	prefs.PreferredServers = p.PreferredServers
	prefs.ResponseFormat = p.ResponseFormat
	prefs.IncludeMetadata = p.IncludeMetadata
	prefs.AIProvider = p.AIProvider
	prefs.MaxTokens = p.MaxTokens
	if p.Temperature != 0 {
		prefs.Temperature = p.Temperature
	}
	return prefs
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var payload processRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if payload.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := s.orch.Process(r.Context(), orchestrator.Request{
		Message:     payload.Message,
		SessionID:   payload.SessionID,
		Context:     payload.Context,
		Preferences: payload.Preferences.toOrchestrator(),
		ArrivedAt:   time.Now(),
	})
	writeJSON(w, http.StatusOK, toResponsePayload(resp))
}

func toResponsePayload(resp orchestrator.Response) map[string]any {
	flow := make([]map[string]any, 0, len(resp.ExecutionFlow))
	for _, step := range resp.ExecutionFlow {
		flow = append(flow, map[string]any{
			"id":         step.ID,
			"type":       step.Type,
			"startedAt":  step.StartedAt,
			"durationMs": step.Duration.Milliseconds(),
			"serverName": step.ServerName,
			"toolName":   step.ToolName,
			"input":      step.Input,
			"output":     step.Output,
			"success":    step.Success,
			"metadata":   step.Metadata,
		})
	}
	return map[string]any{
		"requestId":     resp.RequestID,
		"sessionId":     resp.SessionID,
		"status":        resp.Status,
		"response":      resp.Response,
		"executionFlow": flow,
		"metadata": map[string]any{
			"totalDurationMs": resp.Metadata.TotalDuration.Milliseconds(),
			"stepsExecuted":   resp.Metadata.StepsExecuted,
			"serversUsed":     orEmpty(resp.Metadata.ServersUsed),
			"toolsUsed":       orEmpty(resp.Metadata.ToolsUsed),
			"performance": map[string]any{
				"aiProviderUsed":  resp.Metadata.Performance.AIProviderUsed,
				"toolsAvailable":  resp.Metadata.Performance.ToolsAvailable,
				"maxStepsReached": resp.Metadata.Performance.MaxStepsReached,
			},
		},
	}
}

func orEmpty(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.coord.GetAvailableTools(r.Context())
	serverSet := map[string]bool{}
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		serverSet[t.ServerName] = true
		out = append(out, map[string]any{
			"serverName":  t.ServerName,
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	servers := make([]string, 0, len(serverSet))
	for name := range serverSet {
		servers = append(servers, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tools":   out,
		"count":   len(out),
		"servers": servers,
	})
}

func (s *Server) handleServerTools(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("server")
	def, ok := s.reg.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "server not found: "+name)
		return
	}
	health, _ := s.reg.GetHealth(name)

	var tools []map[string]any
	for _, t := range s.coord.GetAvailableTools(r.Context()) {
		if t.ServerName != name {
			continue
		}
		tools = append(tools, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"serverName": name,
		"tools":      tools,
		"count":      len(tools),
		"capabilities": map[string]any{
			"enabled": def.Enabled,
		},
		"health": map[string]any{
			"healthy":           health.Healthy,
			"lastHealthCheckAt": health.LastHealthCheckAt,
			"lastError":         health.LastError,
		},
	})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}
	var prefs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences body: "+err.Error())
		return
	}

	ctx := s.sessions.GetOrCreateContext(sessionID)
	if ctx.Preferences == nil {
		ctx.Preferences = make(map[string]any)
	}
	for k, v := range prefs {
		ctx.Preferences[k] = v
	}
	s.sessions.UpdateContext(ctx)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sessionId":   sessionID,
		"preferences": ctx.Preferences,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"uptimeSecs": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var servers []map[string]any
	for _, h := range s.reg.AllHealth() {
		servers = append(servers, map[string]any{
			"name":              h.Name,
			"healthy":           h.Healthy,
			"lastHealthCheckAt": h.LastHealthCheckAt,
			"lastError":         h.LastError,
		})
	}

	stats := s.coord.Stats()
	metrics := s.sessions.Metrics()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"servers": servers,
		"totals": map[string]any{
			"configuredServers": len(s.reg.All()),
			"discoveries":       stats.Discoveries,
			"cacheHits":         stats.CacheHits,
		},
		"context": map[string]any{
			"totalSessions":  metrics.Total,
			"activeSessions": metrics.Active,
			"averageAgeMs":   metrics.AverageAge.Milliseconds(),
		},
		"orchestration": map[string]any{
			"status": "running",
		},
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.sessions.ClearContext(id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	metrics := s.sessions.Metrics()
	sessions := make([]map[string]any, 0, len(metrics.PerSession))
	for _, sm := range metrics.PerSession {
		sessions = append(sessions, map[string]any{
			"id":             sm.ID,
			"messageCount":   sm.MessageCount,
			"serverNames":    sm.ServerNames,
			"toolNames":      sm.ToolNames,
			"isActive":       sm.IsActive,
			"createdAt":      sm.CreatedAt,
			"lastActivityAt": sm.LastActivityAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":       sessions,
		"count":          metrics.Total,
		"activeSessions": metrics.Active,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	metrics := s.sessions.Metrics()
	for _, sm := range metrics.PerSession {
		if sm.ID != id {
			continue
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             sm.ID,
			"messageCount":   sm.MessageCount,
			"serverNames":    sm.ServerNames,
			"toolNames":      sm.ToolNames,
			"isActive":       sm.IsActive,
			"createdAt":      sm.CreatedAt,
			"lastActivityAt": sm.LastActivityAt,
		})
		return
	}
	writeError(w, http.StatusNotFound, "session not found: "+id)
}

func (s *Server) handleTestServer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.reg.Get(name); !ok {
		writeError(w, http.StatusNotFound, "server not found: "+name)
		return
	}
	healthy := s.coord.TestServerConnection(r.Context(), name)
	health, _ := s.reg.GetHealth(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"isHealthy":         healthy,
		"lastHealthCheckAt": health.LastHealthCheckAt,
		"lastError":         health.LastError,
	})
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("serverName")
	s.coord.InvalidateToolCache(name)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
