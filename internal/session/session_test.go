package session

import (
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		MaxSessions:     3,
		MaxHistorySize:  4,
		SessionTimeout:  time.Hour,
		CleanupInterval: time.Hour, // disabled for these tests; cleanup invoked directly
	}
}

func TestGetOrCreateContext_CreatesFresh(t *testing.T) {
	m := NewManager(testOptions())
	defer m.Close()

	ctx := m.GetOrCreateContext("s1")
	if ctx.ID != "s1" {
		t.Errorf("ID = %q", ctx.ID)
	}
	if ctx.LastActivityAt.IsZero() {
		t.Error("expected LastActivityAt to be set")
	}
}

func TestGetOrCreateContext_HitRefreshesActivity(t *testing.T) {
	m := NewManager(testOptions())
	defer m.Close()

	ctx := m.GetOrCreateContext("s1")
	first := ctx.LastActivityAt
	time.Sleep(time.Millisecond)
	ctx2 := m.GetOrCreateContext("s1")

	if ctx2 != ctx {
		t.Fatal("expected same context pointer on hit")
	}
	if !ctx2.LastActivityAt.After(first) {
		t.Error("expected LastActivityAt to advance on hit")
	}
}

func TestGetOrCreateContext_EvictsLeastRecentlyActive(t *testing.T) {
	m := NewManager(testOptions()) // MaxSessions = 3
	defer m.Close()

	m.GetOrCreateContext("a")
	time.Sleep(time.Millisecond)
	m.GetOrCreateContext("b")
	time.Sleep(time.Millisecond)
	m.GetOrCreateContext("c")
	time.Sleep(time.Millisecond)

	// Touch "a" so "b" becomes the least-recently-active.
	m.GetOrCreateContext("a")
	time.Sleep(time.Millisecond)

	m.GetOrCreateContext("d") // 4th distinct session, over capacity of 3

	if _, ok := lookup(m, "b"); ok {
		t.Error("expected b (least-recently-active) to be evicted")
	}
	if _, ok := lookup(m, "a"); !ok {
		t.Error("expected a (recently touched) to survive")
	}
	if _, ok := lookup(m, "d"); !ok {
		t.Error("expected newly created d to be present")
	}
}

func TestAppendMessage_TrimsToMaxHistorySize(t *testing.T) {
	m := NewManager(testOptions()) // MaxHistorySize = 4
	defer m.Close()

	m.GetOrCreateContext("s1")
	for i := 0; i < 6; i++ {
		m.AppendMessage("s1", Message{Role: RoleUser, Content: "msg"})
	}

	ctx, _ := lookup(m, "s1")
	if len(ctx.Messages) != 4 {
		t.Errorf("expected history trimmed to 4, got %d", len(ctx.Messages))
	}
}

func TestClearContext_Removes(t *testing.T) {
	m := NewManager(testOptions())
	defer m.Close()

	m.GetOrCreateContext("s1")
	m.ClearContext("s1")

	if _, ok := lookup(m, "s1"); ok {
		t.Error("expected s1 to be removed")
	}
}

func TestCleanupExpiredContexts_EvictsStaleSessions(t *testing.T) {
	opts := testOptions()
	opts.SessionTimeout = time.Millisecond
	m := NewManager(opts)
	defer m.Close()

	m.GetOrCreateContext("stale")
	time.Sleep(5 * time.Millisecond)
	m.cleanupExpiredContexts()

	if _, ok := lookup(m, "stale"); ok {
		t.Error("expected stale session to be cleaned up")
	}
}

func TestMetrics_CountsActiveAndSummaries(t *testing.T) {
	m := NewManager(testOptions())
	defer m.Close()

	ctx := m.GetOrCreateContext("s1")
	ctx.Tools = []ToolSnapshot{{ServerName: "srv", Name: "tool1"}}
	m.AppendMessage("s1", Message{Role: RoleUser, Content: "hi"})

	metrics := m.Metrics()
	if metrics.Total != 1 || metrics.Active != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if len(metrics.PerSession) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(metrics.PerSession))
	}
	s := metrics.PerSession[0]
	if s.MessageCount != 1 || len(s.ServerNames) != 1 || s.ServerNames[0] != "srv" {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func lookup(m *Manager, id string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.sessions[id]
	return ctx, ok
}
