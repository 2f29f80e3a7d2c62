package dispatcher

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"tutord/internal/protocol"
)

// Observer receives every event read from the engine, correlated or not.
// Implementations must be non-blocking and must not panic.
type Observer interface {
	Observe(protocol.Event)
}

// noopObserver is the default; it drops events.
type noopObserver struct{}

func (noopObserver) Observe(protocol.Event) {}

// Observers fans one event out to several observers.
type Observers []Observer

func (obs Observers) Observe(ev protocol.Event) {
	for _, o := range obs {
		o.Observe(ev)
	}
}

// MemoryObserver stores events in-memory for tests.
type MemoryObserver struct {
	mu     sync.Mutex
	events []protocol.Event
}

func NewMemoryObserver() *MemoryObserver { return &MemoryObserver{} }

func (m *MemoryObserver) Observe(ev protocol.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *MemoryObserver) Events() []protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Event, len(m.events))
	copy(out, m.events)
	return out
}

// LogObserver renders progress and log events through zerolog.
type LogObserver struct {
	Logger zerolog.Logger
}

func (o LogObserver) Observe(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Progress:
		l := o.Logger.Debug()
		if e.ReqID > 0 {
			l = l.Int64("req_id", e.ReqID)
		}
		l.Msg(FormatProgress(e))
	case protocol.Log:
		l := o.Logger.Debug()
		if e.ReqID > 0 {
			l = l.Int64("req_id", e.ReqID)
		}
		l.Fields(e.Extra).Msg(e.Msg)
	case protocol.Ready:
		o.Logger.Info().Str("model", e.ModelID).Str("backend", e.Backend).Str("instance", e.InstanceID).Msg("engine ready")
	case protocol.Error:
		if e.ReqID == 0 {
			o.Logger.Error().Str("code", e.Code).Msg(e.Message)
		}
	}
}

// FormatProgress renders a progress event as a single human-readable line:
// generation as "gen 25.0% tokens=2/8 t=0.4s", loading as
// "progress model.gguf 40% (200.0/500.0 MiB)".
func FormatProgress(p protocol.Progress) string {
	if p.Status == "gen" {
		return fmt.Sprintf("gen %.1f%% tokens=%d/%d t=%.1fs", p.Percent, p.Tokens, p.Max, p.Secs)
	}
	name := p.File
	if name == "" {
		name = p.Name
	}
	if p.Total <= 0 {
		return fmt.Sprintf("%s %s", p.Status, name)
	}
	const mib = 1 << 20
	pct := float64(p.Loaded) / float64(p.Total) * 100
	return fmt.Sprintf("%s %s %.0f%% (%.1f/%.1f MiB)", p.Status, name, pct, float64(p.Loaded)/mib, float64(p.Total)/mib)
}

// Broadcaster forwards events to live subscribers. Slow subscribers lose
// events instead of stalling the dispatcher.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan protocol.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan protocol.Event]struct{})}
}

// Subscribe registers a subscriber with the given buffer. The returned cancel
// func unregisters it and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan protocol.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan protocol.Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Observe(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
