// Package channel implements the ordered, point-to-point event channel
// between the dispatcher and the engine.
//
// Two transports are provided: Pipe, an in-memory pair used when the engine
// runs in-process, and the stream conns, which frame protocol messages as
// NDJSON over an io.Reader/io.Writer pair (an engine subprocess on stdio).
// Both deliver in order and the pipe never blocks the sender. Once either side
// closes, the channel is permanently closed and the receive channels close.
package channel

import (
	"errors"
	"sync"

	"tutord/internal/protocol"
)

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("channel closed")

// DispatcherConn is the dispatcher's end of the channel.
type DispatcherConn interface {
	// Send enqueues a command for the engine.
	Send(protocol.Command) error
	// Events delivers engine events in order. It is closed when the channel closes.
	Events() <-chan protocol.Event
	Close() error
}

// EngineConn is the engine's end of the channel.
type EngineConn interface {
	// Emit enqueues an event for the dispatcher.
	Emit(protocol.Event) error
	// Commands delivers dispatcher commands in order. It is closed when the channel closes.
	Commands() <-chan protocol.Command
	Close() error
}

// mailbox is an unbounded FIFO feeding an unbuffered output channel, so that
// producers never wait on a slow consumer.
type mailbox[T any] struct {
	mu       sync.Mutex
	items    []T
	closed   bool
	draining bool
	signal   chan struct{}
	done     chan struct{}
	out      chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
	go m.pump()
	return m
}

func (m *mailbox[T]) put(v T) error {
	m.mu.Lock()
	if m.closed || m.draining {
		m.mu.Unlock()
		return ErrClosed
	}
	m.items = append(m.items, v)
	m.mu.Unlock()
	m.wake()
	return nil
}

func (m *mailbox[T]) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// close is idempotent. Items not yet handed to the consumer are dropped.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.items = nil
	close(m.done)
	m.mu.Unlock()
	m.wake()
}

// drain stops accepting items and closes the output once queued items have
// been delivered.
func (m *mailbox[T]) drain() {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox[T]) pump() {
	defer close(m.out)
	var zero T
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if len(m.items) == 0 {
			draining := m.draining
			m.mu.Unlock()
			if draining {
				return
			}
			<-m.signal
			continue
		}
		v := m.items[0]
		m.items[0] = zero
		m.items = m.items[1:]
		m.mu.Unlock()
		select {
		case m.out <- v:
		case <-m.done:
			return
		}
	}
}

// Pipe returns the two ends of an in-memory channel. Closing either end
// closes both directions.
func Pipe() (DispatcherConn, EngineConn) {
	p := &pipe{
		cmds:   newMailbox[protocol.Command](),
		events: newMailbox[protocol.Event](),
	}
	return pipeDispatcher{p}, pipeEngine{p}
}

type pipe struct {
	cmds   *mailbox[protocol.Command]
	events *mailbox[protocol.Event]
	once   sync.Once
}

func (p *pipe) close() error {
	p.once.Do(func() {
		p.cmds.close()
		p.events.close()
	})
	return nil
}

type pipeDispatcher struct{ p *pipe }

func (d pipeDispatcher) Send(c protocol.Command) error {
	if c == nil {
		return errors.New("nil command")
	}
	return d.p.cmds.put(c)
}
func (d pipeDispatcher) Events() <-chan protocol.Event { return d.p.events.out }
func (d pipeDispatcher) Close() error                  { return d.p.close() }

type pipeEngine struct{ p *pipe }

func (e pipeEngine) Emit(ev protocol.Event) error {
	if ev == nil {
		return errors.New("nil event")
	}
	return e.p.events.put(ev)
}
func (e pipeEngine) Commands() <-chan protocol.Command { return e.p.cmds.out }
func (e pipeEngine) Close() error                      { return e.p.close() }
