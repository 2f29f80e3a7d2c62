package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tutord/internal/channel"
	"tutord/internal/protocol"
)

// recordingConn captures emitted events.
type recordingConn struct {
	mu     sync.Mutex
	events []protocol.Event
	notify chan protocol.Event
	cmds   chan protocol.Command
}

func newRecordingConn() *recordingConn {
	return &recordingConn{notify: make(chan protocol.Event, 1024), cmds: make(chan protocol.Command)}
}

func (c *recordingConn) Emit(ev protocol.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.notify <- ev
	return nil
}

func (c *recordingConn) Commands() <-chan protocol.Command { return c.cmds }
func (c *recordingConn) Close() error                      { return nil }

func (c *recordingConn) snapshot() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.events...)
}

// waitFor blocks until an event matching fn is emitted.
func (c *recordingConn) waitFor(t *testing.T, fn func(protocol.Event) bool) protocol.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.notify:
			if fn(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event; got %+v", c.snapshot())
			return nil
		}
	}
}

var _ channel.EngineConn = (*recordingConn)(nil)

// fakeLoader hands out fakeGenerators and counts loads.
type fakeLoader struct {
	gen   *fakeGenerator
	err   error
	loads atomic.Int32
}

func (l *fakeLoader) Load(ctx context.Context, report func(LoadProgress)) (Generator, error) {
	l.loads.Add(1)
	report(LoadProgress{Status: "initiate", Name: "fake"})
	if l.err != nil {
		return nil, l.err
	}
	report(LoadProgress{Status: "done", Name: "fake", File: "fake.gguf", Loaded: 10, Total: 10})
	return l.gen, nil
}

// fakeGenerator streams a fixed token script.
type fakeGenerator struct {
	mu      sync.Mutex
	tokens  []string
	err     error
	panics  bool
	block   chan struct{} // when set, Generate waits on it after priming
	params  []GenParams
	prompts []Prompt
	closed  atomic.Bool

	active    atomic.Int32
	maxActive atomic.Int32
}

func (g *fakeGenerator) Info() ModelInfo { return ModelInfo{ID: "fake.gguf", Backend: "fake"} }

func (g *fakeGenerator) Close() error {
	g.closed.Store(true)
	return nil
}

func (g *fakeGenerator) Generate(ctx context.Context, p Prompt, params GenParams, onToken func(string) error) (FinalResult, error) {
	g.mu.Lock()
	g.params = append(g.params, params)
	g.prompts = append(g.prompts, p)
	priming := len(g.params) == 1
	g.mu.Unlock()
	if priming {
		return FinalResult{Text: "Hi", Tokens: 1}, nil
	}

	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxActive.Load()
		if n <= m || g.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		}
	}
	if g.panics {
		panic("boom")
	}
	if g.err != nil {
		return FinalResult{}, g.err
	}
	var out []string
	for i, tok := range g.tokens {
		if i >= params.MaxNewTokens {
			break
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return FinalResult{}, err
			}
		}
		out = append(out, tok)
	}
	return FinalResult{Text: strings.Join(out, ""), Tokens: len(out), FinishReason: "stop"}, nil
}

func (g *fakeGenerator) lastParams() GenParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params[len(g.params)-1]
}

func (g *fakeGenerator) lastPrompt() Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

func newTestEngine(gen *fakeGenerator, mutate ...func(*Config)) (*Engine, *fakeLoader) {
	l := &fakeLoader{gen: gen}
	cfg := Config{Loader: l, QueueHeartbeat: 10 * time.Millisecond}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg), l
}

func isType(t protocol.EventType) func(protocol.Event) bool {
	return func(ev protocol.Event) bool { return ev.Type() == t }
}

func countType(evs []protocol.Event, t protocol.EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type() == t {
			n++
		}
	}
	return n
}

var errOOM = errors.New("OOM")
