package presence

import (
	"sync"
	"testing"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (f *fakeTransport) Send(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegisterEvictsPriorHandle(t *testing.T) {
	registry := NewRegistry()

	first := &fakeTransport{}
	second := &fakeTransport{}

	registry.Register(RoleAgent, "a1", first)
	registry.Register(RoleAgent, "a1", second)

	if !first.isClosed() {
		t.Fatal("expected the first handle to be closed on reconnect")
	}
	if second.isClosed() {
		t.Fatal("the replacement handle must stay open")
	}

	got, ok := registry.Lookup(RoleAgent, "a1")
	if !ok || got != second {
		t.Fatal("lookup should return the latest handle")
	}
}

func TestStaleUnregisterKeepsReplacement(t *testing.T) {
	registry := NewRegistry()

	first := &fakeTransport{}
	second := &fakeTransport{}

	registry.Register(RoleVisitor, "v1", first)
	registry.Register(RoleVisitor, "v1", second)

	// Disconnect callback from the evicted handle arrives late.
	registry.Unregister(RoleVisitor, "v1", first)

	if _, ok := registry.Lookup(RoleVisitor, "v1"); !ok {
		t.Fatal("stale unregister must not remove the replacement session")
	}

	registry.Unregister(RoleVisitor, "v1", second)
	if _, ok := registry.Lookup(RoleVisitor, "v1"); ok {
		t.Fatal("session should be gone after its own unregister")
	}

	// Second unregister is a no-op.
	registry.Unregister(RoleVisitor, "v1", second)
}

func TestBroadcastSkipsAbsentIdentities(t *testing.T) {
	registry := NewRegistry()

	online := &fakeTransport{}
	registry.Register(RoleAgent, "a1", online)

	registry.Broadcast(RoleAgent, []string{"a1", "a2"}, "agent:online", map[string]string{"agentId": "a3"})

	if got := online.events(); len(got) != 1 || got[0] != "agent:online" {
		t.Fatalf("expected one delivery to the online agent, got %v", got)
	}
}

func TestBroadcastAgentsExcludesSource(t *testing.T) {
	registry := NewRegistry()

	a1 := &fakeTransport{}
	a2 := &fakeTransport{}
	registry.Register(RoleAgent, "a1", a1)
	registry.Register(RoleAgent, "a2", a2)

	registry.BroadcastAgents("agent:online", nil, "a1")

	if len(a1.events()) != 0 {
		t.Fatal("source agent should not receive its own presence event")
	}
	if len(a2.events()) != 1 {
		t.Fatal("other agents should receive the presence event")
	}
}
