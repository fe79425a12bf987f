// Package coordinator fans tool discovery and tool execution out across
// every configured MCP server, caches discovery results with a TTL tied to
// server health, and tracks aggregate cache hit/miss counts for the status
// endpoint.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcporch/orchestrator/internal/mcpproto"
	"github.com/mcporch/orchestrator/internal/orcherr"
	"github.com/mcporch/orchestrator/internal/registry"
)

// cacheTTL is how long a discovery result is trusted after the server's
// last successful health check.
const cacheTTL = 5 * time.Minute

// Tool is a remote callable discovered from one server.
type Tool struct {
	ServerName  string
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall identifies one invocation request.
type ToolCall struct {
	ServerName string
	ToolName   string
	Arguments  map[string]any
}

// ExecutionStep is an immutable record of one coordinator-level operation.
type ExecutionStep struct {
	ID         string
	Type       string // always "mcp_call" for steps produced here
	StartedAt  time.Time
	Duration   time.Duration
	ServerName string
	ToolName   string
	Input      string
	Output     string
	Success    bool
	Metadata   map[string]any
}

type cacheEntry struct {
	tools        []Tool
	discoveredAt time.Time
}

// AdapterFactory builds a protocol adapter for one endpoint; overridable in
// tests to avoid real network calls.
type AdapterFactory func(mcpproto.Endpoint) ProtocolAdapter

// ProtocolAdapter is the subset of *mcpproto.Adapter the coordinator needs.
type ProtocolAdapter interface {
	Initialize(ctx context.Context) (mcpproto.ServerCapabilities, error)
	ListTools(ctx context.Context) ([]mcpproto.ToolInfo, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, bool, error)
	TestConnection(ctx context.Context) bool
}

// Coordinator owns the tool cache and per-server capability data. It reads
// server configuration from a *registry.Registry but never mutates that
// registry's config, only its health fields.
type Coordinator struct {
	reg           *registry.Registry
	newAdapter    AdapterFactory
	autodiscovery bool

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry

	capsMu sync.RWMutex
	caps   map[string]mcpproto.ServerCapabilities

	discoveries atomic.Int64
	cacheHits   atomic.Int64
	stepSeq     atomic.Int64
}

// New builds a Coordinator. autodiscovery gates performHealthChecks; when
// false, PerformHealthChecks is a no-op.
func New(reg *registry.Registry, newAdapter AdapterFactory, autodiscovery bool) *Coordinator {
	return &Coordinator{
		reg:           reg,
		newAdapter:    newAdapter,
		autodiscovery: autodiscovery,
		cache:         make(map[string]cacheEntry),
		caps:          make(map[string]mcpproto.ServerCapabilities),
	}
}

// DefaultAdapterFactory constructs real *mcpproto.Adapter instances.
func DefaultAdapterFactory(endpoint mcpproto.Endpoint) ProtocolAdapter {
	return mcpproto.NewAdapter(endpoint)
}

// GetAvailableTools fans discovery out across every enabled, healthy server
// concurrently, isolating per-server failures so one bad server never fails
// the whole call. The result is sorted by (serverName, name).
func (c *Coordinator) GetAvailableTools(ctx context.Context) []Tool {
	servers := c.reg.EnabledHealthy()
	results := make([][]Tool, len(servers))

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		i, srv := i, srv
		g.Go(func() error {
			tools, err := c.discoverServer(gctx, srv)
			if err != nil {
				log.Printf("[Coordinator] discovery failed for %q: %v", srv.Name, err)
				return nil // isolated: never fail the group
			}
			results[i] = tools
			return nil
		})
	}
	_ = g.Wait()

	var all []Tool
	for _, ts := range results {
		all = append(all, ts...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ServerName != all[j].ServerName {
			return all[i].ServerName < all[j].ServerName
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// discoverServer implements the per-server discovery algorithm: check the
// cache, initialize capabilities if unknown, then list tools.
func (c *Coordinator) discoverServer(ctx context.Context, srv registry.ServerDefinition) ([]Tool, error) {
	if health, ok := c.reg.GetHealth(srv.Name); ok && c.cacheFresh(srv.Name, health.LastHealthCheckAt) {
		c.cacheHits.Add(1)
		c.cacheMu.RLock()
		entry := c.cache[srv.Name]
		c.cacheMu.RUnlock()
		return entry.tools, nil
	}

	c.capsMu.RLock()
	_, knownCaps := c.caps[srv.Name]
	c.capsMu.RUnlock()

	adapter := c.newAdapter(srv.Endpoint)

	if !knownCaps {
		caps, err := adapter.Initialize(ctx)
		if err != nil {
			c.reg.MarkUnhealthy(srv.Name, time.Now(), err)
			return nil, fmt.Errorf("initialize %q: %w", srv.Name, err)
		}
		c.reg.MarkHealthy(srv.Name, time.Now())
		c.capsMu.Lock()
		c.caps[srv.Name] = caps
		c.capsMu.Unlock()
	}

	infos, err := adapter.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools %q: %w", srv.Name, err)
	}
	c.discoveries.Add(1)

	tools := make([]Tool, 0, len(infos))
	for _, ti := range infos {
		tools = append(tools, Tool{
			ServerName:  srv.Name,
			Name:        ti.Name,
			Description: ti.Description,
			InputSchema: ti.InputSchema,
		})
	}

	c.cacheMu.Lock()
	c.cache[srv.Name] = cacheEntry{tools: tools, discoveredAt: time.Now()}
	c.cacheMu.Unlock()

	return tools, nil
}

func (c *Coordinator) cacheFresh(name string, lastHealthCheckAt time.Time) bool {
	c.cacheMu.RLock()
	entry, ok := c.cache[name]
	c.cacheMu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(lastHealthCheckAt) < cacheTTL && !entry.discoveredAt.IsZero()
}

// ExecuteTool runs one tool call, checking preconditions in the order spec
// §4.3 requires. A failed precondition returns an empty ExecutionStep and
// the matching orcherr sentinel; once the call is dispatched, the returned
// ExecutionStep records its outcome, success or failure, with a nil error.
func (c *Coordinator) ExecuteTool(ctx context.Context, call ToolCall) (ExecutionStep, error) {
	start := time.Now()
	step := ExecutionStep{
		ID:         c.nextStepID(),
		Type:       "mcp_call",
		StartedAt:  start,
		ServerName: call.ServerName,
		ToolName:   call.ToolName,
		Input:      renderArguments(call.Arguments),
		Metadata:   map[string]any{},
	}

	srv, ok := c.reg.Get(call.ServerName)
	if !ok {
		return ExecutionStep{}, fmt.Errorf("%w: %q", orcherr.ErrServerNotFound, call.ServerName)
	}
	if !srv.Enabled {
		return ExecutionStep{}, fmt.Errorf("%w: %q", orcherr.ErrServerDisabled, call.ServerName)
	}
	health, _ := c.reg.GetHealth(call.ServerName)
	if !health.Healthy {
		return ExecutionStep{}, fmt.Errorf("%w: %q", orcherr.ErrServerUnhealthy, call.ServerName)
	}

	adapter := c.newAdapter(srv.Endpoint)
	output, success, err := adapter.CallTool(ctx, call.ToolName, call.Arguments)
	step.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, orcherr.ErrTransport) {
			c.reg.MarkUnhealthy(call.ServerName, time.Now(), err)
		}
		step.Output = "Error: " + err.Error()
		step.Success = false
		return step, nil
	}

	step.Output = output
	step.Success = success
	return step, nil
}

func renderArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

func (c *Coordinator) nextStepID() string {
	return fmt.Sprintf("step-%d", c.stepSeq.Add(1))
}

// TestServerConnection probes one server's liveness, updates its health, and
// purges its cache entries on a transition to unhealthy.
func (c *Coordinator) TestServerConnection(ctx context.Context, name string) bool {
	srv, ok := c.reg.Get(name)
	if !ok {
		return false
	}
	adapter := c.newAdapter(srv.Endpoint)
	ok = adapter.TestConnection(ctx)
	if ok {
		c.reg.MarkHealthy(name, time.Now())
		return true
	}
	c.reg.MarkUnhealthy(name, time.Now(), fmt.Errorf("test connection failed"))
	c.InvalidateToolCache(name)
	return false
}

// PerformHealthChecks runs TestServerConnection for every known server
// concurrently, then logs the aggregate healthy/total count. A no-op when
// autodiscovery is disabled.
func (c *Coordinator) PerformHealthChecks(ctx context.Context) {
	if !c.autodiscovery {
		return
	}
	servers := c.reg.All()
	var healthy atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if c.TestServerConnection(gctx, srv.Name) {
				healthy.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("[Coordinator] health check complete: %d/%d healthy", healthy.Load(), len(servers))
}

// InvalidateToolCache purges the cache entry for name, or every entry when
// name is empty.
func (c *Coordinator) InvalidateToolCache(name string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if name == "" {
		c.cache = make(map[string]cacheEntry)
		return
	}
	delete(c.cache, name)
}

// Stats reports aggregate discovery/cache counters for the status endpoint.
type Stats struct {
	Discoveries int64
	CacheHits   int64
}

// Stats returns a snapshot of the coordinator's discovery/cache counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Discoveries: c.discoveries.Load(),
		CacheHits:   c.cacheHits.Load(),
	}
}
