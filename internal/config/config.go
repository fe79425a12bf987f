// Package config loads environment variables and the MCP server definition
// file into the typed structures the rest of the module consumes, mirroring
// a .env-backed environment loader alongside a JSON server-definitions file.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcporch/orchestrator/internal/mcpproto"
	"github.com/mcporch/orchestrator/internal/registry"
)

// LoadEnv loads environment variables from a .env file. If the file doesn't
// exist, it silently continues — env vars may be set externally.
func LoadEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		log.Printf("[Config] no .env file found, using system environment variables")
	}
}

// serverFile mirrors the top-level structure of servers.json.
type serverFile struct {
	Servers map[string]serverEntry `json:"servers"`
}

type authEntry struct {
	Kind       string `json:"kind"` // "none" | "basic" | "bearer" | "apikey"
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Token      string `json:"token,omitempty"`
	HeaderName string `json:"headerName,omitempty"`
	Key        string `json:"key,omitempty"`
}

type serverEntry struct {
	BaseURL   string            `json:"baseUrl"`
	TimeoutMS int               `json:"timeoutMs,omitempty"`
	Auth      authEntry         `json:"auth,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

// defaultServerTimeout is used when a server omits timeoutMs.
const defaultServerTimeout = 30 * time.Second

// LoadServers reads and parses a servers.json file at path. The Name field
// of each ServerDefinition is populated from the map key — the JSON entry
// itself carries no redundant name field. Credentials referenced as
// "${VAR}" are resolved from the environment at load time; values are never
// encrypted or decrypted, only substituted.
func LoadServers(path string) ([]registry.ServerDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read servers file %q: %w", path, err)
	}

	var file serverFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse servers file %q: %w", path, err)
	}

	defs := make([]registry.ServerDefinition, 0, len(file.Servers))
	for name, entry := range file.Servers {
		timeout := defaultServerTimeout
		if entry.TimeoutMS > 0 {
			timeout = time.Duration(entry.TimeoutMS) * time.Millisecond
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}

		defs = append(defs, registry.ServerDefinition{
			Name:    name,
			Enabled: enabled,
			Endpoint: mcpproto.Endpoint{
				Name:    name,
				BaseURL: resolveEnv(entry.BaseURL),
				Timeout: timeout,
				Auth:    resolveAuth(entry.Auth),
				Headers: resolveHeaders(entry.Headers),
			},
		})
	}
	return defs, nil
}

func resolveAuth(a authEntry) mcpproto.Auth {
	return mcpproto.Auth{
		Kind:       mcpproto.AuthKind(a.Kind),
		Username:   resolveEnv(a.Username),
		Password:   resolveEnv(a.Password),
		Token:      resolveEnv(a.Token),
		HeaderName: a.HeaderName,
		Key:        resolveEnv(a.Key),
	}
}

func resolveHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = resolveEnv(v)
	}
	return out
}

// resolveEnv substitutes a value of the form "${VAR}" with the value of the
// environment variable VAR; any other value is returned unchanged.
func resolveEnv(value string) string {
	if len(value) > 3 && value[0] == '$' && value[1] == '{' && value[len(value)-1] == '}' {
		name := value[2 : len(value)-1]
		return os.Getenv(name)
	}
	return value
}

// OrchestrationDefaults captures the orchestration-scoped environment
// variables controlling step budgets, timeouts, and concurrency.
type OrchestrationDefaults struct {
	DefaultMaxSteps       int
	DefaultTimeout        time.Duration
	MaxConcurrentRequests int
	AutoDiscoveryEnabled  bool
	HealthCheckInterval   time.Duration
}

// LoadOrchestrationDefaults reads its fields from the environment, applying
// the documented defaults when unset.
func LoadOrchestrationDefaults() OrchestrationDefaults {
	return OrchestrationDefaults{
		DefaultMaxSteps:       envInt("MCP_DEFAULT_MAX_STEPS", 10),
		DefaultTimeout:        time.Duration(envInt("MCP_DEFAULT_TIMEOUT_MS", 30000)) * time.Millisecond,
		MaxConcurrentRequests: envInt("MCP_MAX_CONCURRENT_REQUESTS", 10),
		AutoDiscoveryEnabled:  envBool("MCP_AUTODISCOVERY_ENABLED", true),
		HealthCheckInterval:   time.Duration(envInt("MCP_HEALTH_CHECK_INTERVAL_MS", 60000)) * time.Millisecond,
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] invalid integer for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

// ContextDefaults captures the session-scoped environment variables
// controlling capacity and expiry.
type ContextDefaults struct {
	SessionTimeout  time.Duration
	MaxSessions     int
	CleanupInterval time.Duration
	MaxHistorySize  int
}

// LoadContextDefaults reads its fields from the environment, applying
// stated defaults when unset.
func LoadContextDefaults() ContextDefaults {
	return ContextDefaults{
		SessionTimeout:  time.Duration(envInt("MCP_SESSION_TIMEOUT_MS", 1800000)) * time.Millisecond,
		MaxSessions:     envInt("MCP_MAX_SESSIONS", 1000),
		CleanupInterval: time.Duration(envInt("MCP_CLEANUP_INTERVAL_MS", 300000)) * time.Millisecond,
		MaxHistorySize:  envInt("MCP_MAX_HISTORY_SIZE", 100),
	}
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[Config] invalid boolean for %s=%q, using default %v", key, v, def)
		return def
	}
	return b
}
