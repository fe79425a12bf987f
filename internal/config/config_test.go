package config

import (
	"os"
	"path/filepath"
	"testing"
)

func serversFileForTest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write servers.json: %v", err)
	}
	return path
}

func TestLoadServers_NameFromKey(t *testing.T) {
	path := serversFileForTest(t, `{
		"servers": {
			"weather": {
				"baseUrl": "http://localhost:9001"
			}
		}
	}`)

	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 server definition, got %d", len(defs))
	}
	d := defs[0]
	if d.Name != "weather" {
		t.Errorf("Name = %q, want weather", d.Name)
	}
	if d.Endpoint.Name != "weather" {
		t.Errorf("Endpoint.Name = %q, want weather", d.Endpoint.Name)
	}
	if d.Endpoint.BaseURL != "http://localhost:9001" {
		t.Errorf("BaseURL = %q", d.Endpoint.BaseURL)
	}
	if !d.Enabled {
		t.Error("expected Enabled to default to true")
	}
	if d.Endpoint.Timeout != defaultServerTimeout {
		t.Errorf("Timeout = %v, want default %v", d.Endpoint.Timeout, defaultServerTimeout)
	}
}

func TestLoadServers_Empty(t *testing.T) {
	path := serversFileForTest(t, `{"servers": {}}`)
	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("expected no definitions, got %d", len(defs))
	}
}

func TestLoadServers_MissingFile(t *testing.T) {
	_, err := LoadServers(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadServers_InvalidJSON(t *testing.T) {
	path := serversFileForTest(t, `{invalid json}`)
	_, err := LoadServers(path)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadServers_ExplicitDisabled(t *testing.T) {
	path := serversFileForTest(t, `{
		"servers": {
			"inventory": {"baseUrl": "http://localhost:9002", "enabled": false}
		}
	}`)
	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if defs[0].Enabled {
		t.Error("expected Enabled=false to be honored")
	}
}

func TestLoadServers_CustomTimeout(t *testing.T) {
	path := serversFileForTest(t, `{
		"servers": {
			"slow": {"baseUrl": "http://localhost:9003", "timeoutMs": 5000}
		}
	}`)
	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if defs[0].Endpoint.Timeout.Milliseconds() != 5000 {
		t.Errorf("Timeout = %v, want 5s", defs[0].Endpoint.Timeout)
	}
}

func TestLoadServers_ResolvesEnvIndirection(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "secret-value")
	path := serversFileForTest(t, `{
		"servers": {
			"weather": {
				"baseUrl": "http://localhost:9001",
				"auth": {"kind": "apikey", "key": "${WEATHER_API_KEY}", "headerName": "X-API-Key"}
			}
		}
	}`)
	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	auth := defs[0].Endpoint.Auth
	if auth.Key != "secret-value" {
		t.Errorf("Key = %q, want resolved env value", auth.Key)
	}
	if auth.HeaderName != "X-API-Key" {
		t.Errorf("HeaderName = %q", auth.HeaderName)
	}
}

func TestLoadServers_LiteralValuesPassThroughUnresolved(t *testing.T) {
	path := serversFileForTest(t, `{
		"servers": {
			"weather": {
				"baseUrl": "http://localhost:9001",
				"auth": {"kind": "bearer", "token": "plain-token"}
			}
		}
	}`)
	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if defs[0].Endpoint.Auth.Token != "plain-token" {
		t.Errorf("Token = %q, want unchanged literal", defs[0].Endpoint.Auth.Token)
	}
}

func TestLoadServers_HeaderValuesResolveEnv(t *testing.T) {
	t.Setenv("TRACE_ID", "trace-123")
	path := serversFileForTest(t, `{
		"servers": {
			"weather": {
				"baseUrl": "http://localhost:9001",
				"headers": {"X-Trace-Id": "${TRACE_ID}"}
			}
		}
	}`)
	defs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if defs[0].Endpoint.Headers["X-Trace-Id"] != "trace-123" {
		t.Errorf("header = %q", defs[0].Endpoint.Headers["X-Trace-Id"])
	}
}

func TestLoadOrchestrationDefaults_UsesDefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{
		"MCP_DEFAULT_MAX_STEPS", "MCP_DEFAULT_TIMEOUT_MS", "MCP_MAX_CONCURRENT_REQUESTS",
		"MCP_AUTODISCOVERY_ENABLED", "MCP_HEALTH_CHECK_INTERVAL_MS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	d := LoadOrchestrationDefaults()
	if d.DefaultMaxSteps != 10 {
		t.Errorf("DefaultMaxSteps = %d, want 10", d.DefaultMaxSteps)
	}
	if !d.AutoDiscoveryEnabled {
		t.Error("expected AutoDiscoveryEnabled to default true")
	}
}

func TestLoadOrchestrationDefaults_ReadsOverrides(t *testing.T) {
	t.Setenv("MCP_DEFAULT_MAX_STEPS", "5")
	t.Setenv("MCP_AUTODISCOVERY_ENABLED", "false")
	d := LoadOrchestrationDefaults()
	if d.DefaultMaxSteps != 5 {
		t.Errorf("DefaultMaxSteps = %d, want 5", d.DefaultMaxSteps)
	}
	if d.AutoDiscoveryEnabled {
		t.Error("expected AutoDiscoveryEnabled=false to be honored")
	}
}

func TestLoadOrchestrationDefaults_InvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("MCP_DEFAULT_MAX_STEPS", "not-a-number")
	d := LoadOrchestrationDefaults()
	if d.DefaultMaxSteps != 10 {
		t.Errorf("DefaultMaxSteps = %d, want fallback default 10", d.DefaultMaxSteps)
	}
}
