// Package registry owns the set of configured MCP servers and their runtime
// health, kept as two parallel maps so that reloading configuration never
// clobbers in-flight health state and vice versa.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/mcporch/orchestrator/internal/mcpproto"
)

// ServerDefinition is the immutable, operator-supplied configuration for one
// MCP server. It never changes except via a full Reload.
type ServerDefinition struct {
	Name     string
	Endpoint mcpproto.Endpoint
	Enabled  bool
}

// serverStatus is the mutable runtime state tracked per server, deliberately
// kept out of ServerDefinition so that a config reload never has to reason
// about in-flight health data.
type serverStatus struct {
	healthy           bool
	lastHealthCheckAt time.Time
	lastError         string
}

// Health is the read-only snapshot returned to callers.
type Health struct {
	Name              string
	Healthy           bool
	LastHealthCheckAt time.Time
	LastError         string
}

// Registry is the single source of truth for which servers are configured
// and which of those are currently healthy. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]ServerDefinition
	status  map[string]*serverStatus
}

// New returns an empty Registry. Call Reload to populate it.
func New() *Registry {
	return &Registry{
		servers: make(map[string]ServerDefinition),
		status:  make(map[string]*serverStatus),
	}
}

// Reload replaces the full set of server definitions. Servers that already
// had status recorded keep it; new servers start unhealthy until their first
// health check succeeds. Servers absent from defs are dropped entirely,
// including their status.
func (r *Registry) Reload(defs []ServerDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newServers := make(map[string]ServerDefinition, len(defs))
	newStatus := make(map[string]*serverStatus, len(defs))
	for _, d := range defs {
		newServers[d.Name] = d
		if existing, ok := r.status[d.Name]; ok {
			newStatus[d.Name] = existing
			continue
		}
		newStatus[d.Name] = &serverStatus{}
	}
	r.servers = newServers
	r.status = newStatus
}

// Get returns the definition for one server.
func (r *Registry) Get(name string) (ServerDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.servers[name]
	return d, ok
}

// All returns every configured server definition, sorted by name.
func (r *Registry) All() []ServerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerDefinition, 0, len(r.servers))
	for _, d := range r.servers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EnabledHealthy returns the definitions of servers that are both enabled in
// configuration and currently marked healthy, sorted by name.
func (r *Registry) EnabledHealthy() []ServerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerDefinition, 0, len(r.servers))
	for name, d := range r.servers {
		if !d.Enabled {
			continue
		}
		if s, ok := r.status[name]; ok && s.healthy {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled returns the definitions of every enabled server, regardless of
// health, sorted by name.
func (r *Registry) Enabled() []ServerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerDefinition, 0, len(r.servers))
	for _, d := range r.servers {
		if d.Enabled {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkHealthy records a successful health check for name, clearing any
// previous error. A no-op if name isn't configured (e.g. dropped mid-check
// by a concurrent Reload).
func (r *Registry) MarkHealthy(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[name]
	if !ok {
		return
	}
	s.healthy = true
	s.lastHealthCheckAt = at
	s.lastError = ""
}

// MarkUnhealthy records a failed health check for name along with the cause.
func (r *Registry) MarkUnhealthy(name string, at time.Time, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[name]
	if !ok {
		return
	}
	s.healthy = false
	s.lastHealthCheckAt = at
	if cause != nil {
		s.lastError = cause.Error()
	}
}

// GetHealth returns the current health snapshot for one server.
func (r *Registry) GetHealth(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[name]
	if !ok {
		return Health{}, false
	}
	return Health{
		Name:              name,
		Healthy:           s.healthy,
		LastHealthCheckAt: s.lastHealthCheckAt,
		LastError:         s.lastError,
	}, true
}

// AllHealth returns the health snapshot of every configured server, sorted
// by name.
func (r *Registry) AllHealth() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Health, 0, len(r.status))
	for name, s := range r.status {
		out = append(out, Health{
			Name:              name,
			Healthy:           s.healthy,
			LastHealthCheckAt: s.lastHealthCheckAt,
			LastError:         s.lastError,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
