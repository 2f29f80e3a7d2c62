package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tutord/internal/channel"
	"tutord/internal/engine"
)

// Launcher starts an engine and returns the dispatcher end of its event
// channel. Closing the returned conn must stop the engine.
type Launcher interface {
	Launch(ctx context.Context) (channel.DispatcherConn, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (channel.DispatcherConn, error)

func (f LauncherFunc) Launch(ctx context.Context) (channel.DispatcherConn, error) { return f(ctx) }

// InProcessLauncher runs a fresh engine on a goroutine over an in-memory pipe.
type InProcessLauncher struct {
	NewEngine func() *engine.Engine
	Logger    *zerolog.Logger
}

func (l InProcessLauncher) Launch(ctx context.Context) (channel.DispatcherConn, error) {
	if l.NewEngine == nil {
		return nil, errors.New("in-process launcher: no engine factory")
	}
	e := l.NewEngine()
	d, ec := channel.Pipe()
	go func() {
		err := e.Serve(ctx, ec)
		_ = ec.Close()
		if l.Logger != nil && err != nil && !errors.Is(err, context.Canceled) {
			l.Logger.Error().Err(err).Msg("engine stopped")
		}
	}()
	return d, nil
}

// SubprocessLauncher runs the engine as a child process speaking NDJSON over
// stdin/stdout. Stderr lines are forwarded to Logger.
type SubprocessLauncher struct {
	Path string
	Args []string
	Env  []string
	// KillGrace is how long Close waits after SIGTERM before killing.
	KillGrace time.Duration
	Logger    *zerolog.Logger
}

func (l SubprocessLauncher) Launch(ctx context.Context) (channel.DispatcherConn, error) {
	if l.Path == "" {
		return nil, errors.New("subprocess launcher: empty path")
	}
	log := zerolog.Nop()
	if l.Logger != nil {
		log = *l.Logger
	}
	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = l.Env
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	// Stdout goes through an io.Pipe so Wait drains it before the reader sees EOF.
	stdout, stdoutW := io.Pipe()
	cmd.Stdout = stdoutW
	errLog := &stderrLogger{log: log, tail: tailBuffer{max: 4096}}
	cmd.Stderr = errLog
	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}
	pid := cmd.Process.Pid
	log.Info().Int("pid", pid).Str("path", l.Path).Msg("engine process started")

	p := &process{cmd: cmd, stdin: stdin, grace: l.KillGrace, exited: make(chan struct{})}
	if p.grace <= 0 {
		p.grace = 3 * time.Second
	}
	go func() {
		werr := cmd.Wait()
		_ = stdoutW.Close()
		if werr != nil {
			log.Warn().Int("pid", pid).Err(werr).Str("stderr_tail", errLog.tail.String()).Msg("engine process exited")
		} else {
			log.Info().Int("pid", pid).Msg("engine process exited")
		}
		close(p.exited)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.exited:
		}
	}()

	conn := channel.NewStreamDispatcherConn(stdout, stdin,
		channel.WithMalformedHandler(func(err error) {
			log.Warn().Int("pid", pid).Err(err).Msg("dropping malformed engine frame")
		}),
	)
	return &processConn{DispatcherConn: conn, proc: p}, nil
}

// processConn closes the child process along with the stream.
type processConn struct {
	channel.DispatcherConn
	proc *process
}

func (c *processConn) Close() error {
	err := c.DispatcherConn.Close()
	if perr := c.proc.Close(); err == nil {
		err = perr
	}
	return err
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.Closer
	grace  time.Duration
	exited chan struct{}
	once   sync.Once
}

// Close closes stdin, then terminates gracefully and falls back to kill.
func (p *process) Close() error {
	p.once.Do(func() {
		_ = p.stdin.Close()
		select {
		case <-p.exited:
			return
		case <-time.After(100 * time.Millisecond):
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(p.grace):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	})
	return nil
}

// stderrLogger logs complete stderr lines and keeps a tail for diagnostics.
type stderrLogger struct {
	log  zerolog.Logger
	buf  []byte
	tail tailBuffer
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.tail.Write(p)
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		if line := string(w.buf[:idx]); line != "" {
			w.log.Debug().Msg("engine> " + line)
		}
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(b)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
