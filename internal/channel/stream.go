package channel

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"tutord/internal/protocol"
)

// maxFrameBytes bounds a single NDJSON frame.
const maxFrameBytes = 4 << 20

type streamOptions struct {
	onMalformed func(error)
	onClosed    func(error)
}

// StreamOption configures a stream conn.
type StreamOption func(*streamOptions)

// WithMalformedHandler installs a callback for frames that fail to decode.
// Malformed frames are always skipped; the callback only observes them.
func WithMalformedHandler(fn func(error)) StreamOption {
	return func(o *streamOptions) { o.onMalformed = fn }
}

// WithClosedHandler installs a callback invoked once when the read side ends.
// err is nil on a clean EOF.
func WithClosedHandler(fn func(error)) StreamOption {
	return func(o *streamOptions) { o.onClosed = fn }
}

// stream frames Out values onto w and decodes In values from r.
type stream[In, Out any] struct {
	wmu     sync.Mutex
	w       io.Writer
	r       io.Reader
	in      *mailbox[In]
	encode  func(Out) ([]byte, error)
	closers []io.Closer
	once    sync.Once
	ioOnce  sync.Once
	ended   atomic.Bool
}

func newStream[In, Out any](r io.Reader, w io.Writer, decode func([]byte) (In, error), encode func(Out) ([]byte, error), opts []StreamOption) *stream[In, Out] {
	var o streamOptions
	for _, fn := range opts {
		fn(&o)
	}
	s := &stream[In, Out]{w: w, r: r, in: newMailbox[In](), encode: encode}
	if c, ok := w.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	if c, ok := r.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	go s.readLoop(decode, o)
	return s
}

func (s *stream[In, Out]) readLoop(decode func([]byte) (In, error), o streamOptions) {
	br := bufio.NewReaderSize(s.r, 64*1024)
	var readErr error
	for {
		line, err := readFrame(br, maxFrameBytes)
		if err != nil {
			if len(line) == 0 {
				if err != io.EOF {
					readErr = err
				}
				break
			}
			if perr, ok := err.(*protocol.ProtocolError); ok {
				// Oversized frame: the rest of the line was discarded.
				if o.onMalformed != nil {
					o.onMalformed(perr)
				}
				continue
			}
			if err != io.EOF {
				readErr = err
			}
			// Final unterminated line; decode it below and stop.
		}
		if len(line) > 0 {
			v, derr := decode(line)
			if derr != nil {
				if o.onMalformed != nil {
					o.onMalformed(derr)
				}
			} else if s.in.put(v) != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	// Deliver what was read before EOF, then close.
	s.ended.Store(true)
	s.in.drain()
	_ = s.closeIO()
	if o.onClosed != nil {
		o.onClosed(readErr)
	}
}

// readFrame returns the next line without its terminator. A line longer than
// limit is consumed up to its newline and reported as a *protocol.ProtocolError
// carrying a prefix of the frame.
func readFrame(br *bufio.Reader, limit int) ([]byte, error) {
	var buf []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				oversized = true
				buf = append(buf, chunk[:min(len(chunk), 120)]...)
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if oversized {
			if err != nil && err != io.EOF {
				return nil, err
			}
			return buf, &protocol.ProtocolError{Reason: fmt.Sprintf("frame exceeds %d bytes", limit), Raw: buf}
		}
		buf = bytes.TrimRight(buf, "\r\n")
		return buf, err
	}
}

func (s *stream[In, Out]) write(v Out) error {
	b, err := s.encode(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.ended.Load() {
		return ErrClosed
	}
	select {
	case <-s.in.done:
		return ErrClosed
	default:
	}
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Close closes the receive side and any closable reader/writer.
func (s *stream[In, Out]) Close() error {
	s.once.Do(func() { s.in.close() })
	return s.closeIO()
}

func (s *stream[In, Out]) closeIO() error {
	var first error
	s.ioOnce.Do(func() {
		for _, c := range s.closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}

// NewStreamDispatcherConn returns a DispatcherConn that writes commands to w
// and reads events from r, one JSON object per line.
func NewStreamDispatcherConn(r io.Reader, w io.Writer, opts ...StreamOption) DispatcherConn {
	return streamDispatcher{newStream[protocol.Event, protocol.Command](r, w, protocol.DecodeEvent, protocol.EncodeCommand, opts)}
}

// NewStreamEngineConn returns an EngineConn that writes events to w and reads
// commands from r, one JSON object per line.
func NewStreamEngineConn(r io.Reader, w io.Writer, opts ...StreamOption) EngineConn {
	return streamEngine{newStream[protocol.Command, protocol.Event](r, w, protocol.DecodeCommand, protocol.EncodeEvent, opts)}
}

type streamDispatcher struct {
	*stream[protocol.Event, protocol.Command]
}

func (c streamDispatcher) Send(cmd protocol.Command) error { return c.write(cmd) }
func (c streamDispatcher) Events() <-chan protocol.Event   { return c.in.out }

type streamEngine struct {
	*stream[protocol.Command, protocol.Event]
}

func (c streamEngine) Emit(ev protocol.Event) error       { return c.write(ev) }
func (c streamEngine) Commands() <-chan protocol.Command { return c.in.out }
