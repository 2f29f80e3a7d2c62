package dispatcher

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tutord/internal/channel"
	"tutord/internal/engine"
	"tutord/internal/protocol"
)

// stubHandler scripts the engine side of a launched channel. It runs on its
// own goroutine per command.
type stubHandler func(ec channel.EngineConn, cmd protocol.Command)

// stubLauncher launches scripted engines over in-memory pipes.
type stubLauncher struct {
	handle   stubHandler
	launches atomic.Int32
	warmups  atomic.Int32

	mu    sync.Mutex
	conns []channel.EngineConn
}

func (l *stubLauncher) Launch(ctx context.Context) (channel.DispatcherConn, error) {
	l.launches.Add(1)
	d, ec := channel.Pipe()
	l.mu.Lock()
	l.conns = append(l.conns, ec)
	l.mu.Unlock()
	go func() {
		for cmd := range ec.Commands() {
			if _, ok := cmd.(protocol.Warmup); ok {
				l.warmups.Add(1)
			}
			go l.handle(ec, cmd)
		}
	}()
	return d, nil
}

// engineConn returns the engine side of the most recent launch.
func (l *stubLauncher) engineConn() channel.EngineConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conns[len(l.conns)-1]
}

// readyOnWarmup answers warmup with Ready and delegates everything else.
func readyOnWarmup(next stubHandler) stubHandler {
	return func(ec channel.EngineConn, cmd protocol.Command) {
		if _, ok := cmd.(protocol.Warmup); ok {
			_ = ec.Emit(protocol.Ready{ModelID: "stub", Backend: "stub", InstanceID: "i-1"})
			return
		}
		if next != nil {
			next(ec, cmd)
		}
	}
}

// echo answers classify with "historia" and answer with the question.
func echo(ec channel.EngineConn, cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.Classify:
		_ = ec.Emit(protocol.Classified{ReqID: c.ReqID, Category: "historia"})
	case protocol.Answer:
		_ = ec.Emit(protocol.Result{ReqID: c.ReqID, Answer: c.Payload.Question})
	}
}

func newTestDispatcher(t *testing.T, l Launcher, obs Observer) *Dispatcher {
	t.Helper()
	d := New(Config{Launcher: l, MinTimeout: time.Millisecond, DefaultTimeout: 5 * time.Second, Observer: obs})
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// scriptedModel is a Loader and Generator that classifies by keyword and
// streams a fixed answer one word at a time.
type scriptedModel struct {
	answer string
	delay  time.Duration
}

func (m *scriptedModel) Load(ctx context.Context, report func(engine.LoadProgress)) (engine.Generator, error) {
	report(engine.LoadProgress{Status: "initiate", Name: "scripted"})
	report(engine.LoadProgress{Status: "done", Name: "scripted", File: "scripted.gguf", Loaded: 1 << 20, Total: 1 << 20})
	return m, nil
}

func (m *scriptedModel) Info() engine.ModelInfo { return engine.ModelInfo{ID: "scripted.gguf", Backend: "scripted"} }
func (m *scriptedModel) Close() error           { return nil }

func (m *scriptedModel) Generate(ctx context.Context, p engine.Prompt, params engine.GenParams, onToken func(string) error) (engine.FinalResult, error) {
	if strings.Contains(p.System, "classifier") {
		q := strings.ToLower(p.User)
		switch {
		case strings.Contains(q, "adn"):
			return engine.FinalResult{Text: "Biología"}, nil
		case strings.ContainsAny(q, "+-*/"):
			return engine.FinalResult{Text: "Matemáticas\n"}, nil
		}
		return engine.FinalResult{Text: "no lo sé"}, nil
	}
	var out []string
	for i, w := range strings.Fields(m.answer) {
		if i >= params.MaxNewTokens {
			break
		}
		if m.delay > 0 {
			select {
			case <-time.After(m.delay):
			case <-ctx.Done():
				return engine.FinalResult{}, ctx.Err()
			}
		}
		if onToken != nil {
			if err := onToken(w + " "); err != nil {
				return engine.FinalResult{}, err
			}
		}
		out = append(out, w)
	}
	return engine.FinalResult{Text: strings.Join(out, " "), Tokens: len(out)}, nil
}

func inProcess(m *scriptedModel) InProcessLauncher {
	return InProcessLauncher{NewEngine: func() *engine.Engine {
		return engine.New(engine.Config{Loader: m})
	}}
}
