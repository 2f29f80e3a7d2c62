package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tutord/internal/channel"
	"tutord/internal/protocol"
	"tutord/pkg/types"
)

const (
	DefaultTimeout = 180 * time.Second
	DefaultMinimum = 10 * time.Second
)

// Config configures a Dispatcher.
type Config struct {
	Launcher Launcher
	// DefaultTimeout applies when a request does not set one.
	DefaultTimeout time.Duration
	// MinTimeout is the floor for per-request timeouts.
	MinTimeout time.Duration
	Observer   Observer
	Logger     *zerolog.Logger
}

// Options are per-request settings.
type Options struct {
	// Timeout is the liveness window; renewed by every tagged progress, log or
	// heartbeat event. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxNewTokens bounds answer generation; the engine clamps it.
	MaxNewTokens int
	// Category conditions an answer on a previous classification.
	Category string
}

// Startup states reported by Status.
const (
	stateIdle     = "idle"
	stateStarting = "starting"
	stateReady    = "ready"
	stateFailed   = "failed"
)

// startAttempt is one single-flight engine start. done closes when the
// attempt settles; err is set before that on failure.
type startAttempt struct {
	done chan struct{}
	err  error
}

// pendingEntry is one row of the correlation table.
type pendingEntry struct {
	id      int64
	kind    protocol.CommandType
	conn    channel.DispatcherConn
	timeout time.Duration
	timer   *time.Timer
	seq     uint64
	start   time.Time
	done    chan outcome // buffered 1; written exactly once by settle
}

type outcome struct {
	value string
	err   error
}

// Dispatcher multiplexes concurrent requests onto one engine over a single
// event channel and demultiplexes replies by request id.
type Dispatcher struct {
	cfg     Config
	log     zerolog.Logger
	obs     Observer
	tracer  trace.Tracer
	baseCtx context.Context
	cancel  context.CancelFunc
	created time.Time

	mu      sync.Mutex
	conn    channel.DispatcherConn
	state   string
	attempt *startAttempt
	ready   protocol.Ready
	lastErr string
	starts  uint64
	nextID  int64
	pending map[int64]*pendingEntry
	closed  bool
}

// New constructs a Dispatcher. The engine is not started until the first request.
func New(cfg Config) *Dispatcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.MinTimeout <= 0 {
		cfg.MinTimeout = DefaultMinimum
	}
	l := zerolog.Nop()
	if cfg.Logger != nil {
		l = *cfg.Logger
	}
	var obs Observer = noopObserver{}
	if cfg.Observer != nil {
		obs = cfg.Observer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg,
		log:     l.With().Str("component", "dispatcher").Logger(),
		obs:     obs,
		tracer:  otel.Tracer("tutord/dispatcher"),
		baseCtx: ctx,
		cancel:  cancel,
		created: time.Now(),
		state:   stateIdle,
		pending: make(map[int64]*pendingEntry),
	}
}

// Classify returns the category label for question.
func (d *Dispatcher) Classify(ctx context.Context, question string, opts Options) (string, error) {
	return d.Request(ctx, protocol.CmdClassify, question, opts)
}

// Answer returns the generated answer for question.
func (d *Dispatcher) Answer(ctx context.Context, question string, opts Options) (string, error) {
	return d.Request(ctx, protocol.CmdAnswer, question, opts)
}

// Ask classifies question, then answers it conditioned on the category. Each
// stage is a separate request with its own timeout window.
func (d *Dispatcher) Ask(ctx context.Context, question string, opts Options) (types.AskResponse, error) {
	category, err := d.Classify(ctx, question, Options{Timeout: opts.Timeout})
	if err != nil {
		return types.AskResponse{}, err
	}
	opts.Category = category
	answer, err := d.Answer(ctx, question, opts)
	if err != nil {
		return types.AskResponse{Category: category}, err
	}
	return types.AskResponse{Category: category, Answer: answer}, nil
}

// Request sends one classify or answer request and waits for its terminal
// event, a watchdog timeout, or ctx cancellation. Canceling ctx abandons the
// request locally; the engine is not told and late events are dropped.
func (d *Dispatcher) Request(ctx context.Context, kind protocol.CommandType, question string, opts Options) (value string, err error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher."+string(kind),
		trace.WithAttributes(attribute.Int("question.len", len(question))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if kind != protocol.CmdClassify && kind != protocol.CmdAnswer {
		return "", errors.New("unsupported request kind: " + string(kind))
	}
	conn, err := d.ensureStarted(ctx)
	if err != nil {
		requestsTotal.WithLabelValues(string(kind), outcomeLabel(err)).Inc()
		return "", err
	}

	payload := protocol.Payload{Question: question, Category: opts.Category}
	if kind == protocol.CmdAnswer && opts.MaxNewTokens > 0 {
		payload.GenOpts = &protocol.GenOpts{MaxNewTokens: opts.MaxNewTokens}
	}
	p, err := d.register(conn, kind, d.effectiveTimeout(opts.Timeout))
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int64("req.id", p.id))
	d.log.Debug().Int64("req_id", p.id).Str("kind", string(kind)).Dur("timeout", p.timeout).Msg("request sent")

	if err := conn.Send(protocol.NewRequest(kind, p.id, payload)); err != nil {
		d.settle(p.id, outcome{err: closedError{cause: err}})
	}
	select {
	case out := <-p.done:
		return out.value, out.err
	case <-ctx.Done():
		d.settle(p.id, outcome{err: ctx.Err()})
		out := <-p.done
		return out.value, out.err
	}
}

func (d *Dispatcher) effectiveTimeout(t time.Duration) time.Duration {
	if t <= 0 {
		t = d.cfg.DefaultTimeout
	}
	if t < d.cfg.MinTimeout {
		t = d.cfg.MinTimeout
	}
	return t
}

// register allocates an id, records the entry and arms its watchdog.
func (d *Dispatcher) register(conn channel.DispatcherConn, kind protocol.CommandType, timeout time.Duration) (*pendingEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.conn != conn {
		return nil, closedError{}
	}
	d.nextID++
	p := &pendingEntry{
		id:      d.nextID,
		kind:    kind,
		conn:    conn,
		timeout: timeout,
		start:   time.Now(),
		done:    make(chan outcome, 1),
	}
	d.pending[p.id] = p
	d.armLocked(p)
	pendingRequests.Set(float64(len(d.pending)))
	return p, nil
}

// armLocked (re)starts the watchdog. A timer that already fired carries a
// stale seq and is ignored by expire.
func (d *Dispatcher) armLocked(p *pendingEntry) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.seq++
	seq := p.seq
	p.timer = time.AfterFunc(p.timeout, func() { d.expire(p.id, seq) })
}

func (d *Dispatcher) expire(id int64, seq uint64) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if !ok || p.seq != seq {
		d.mu.Unlock()
		return
	}
	d.removeLocked(p)
	d.mu.Unlock()
	d.log.Warn().Int64("req_id", id).Dur("timeout", p.timeout).Msg("request timed out")
	d.deliver(p, outcome{err: timeoutError{reqID: id, kind: p.kind, after: p.timeout}})
}

// settle removes the entry and delivers its outcome. Only the first call for
// an id has any effect.
func (d *Dispatcher) settle(id int64, out outcome) bool {
	d.mu.Lock()
	p, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	d.removeLocked(p)
	d.mu.Unlock()
	d.deliver(p, out)
	return true
}

func (d *Dispatcher) removeLocked(p *pendingEntry) {
	delete(d.pending, p.id)
	p.timer.Stop()
	pendingRequests.Set(float64(len(d.pending)))
}

// deliver hands the outcome to the waiting caller. The entry must already be
// removed from the table, which makes this the only write to p.done.
func (d *Dispatcher) deliver(p *pendingEntry, out outcome) {
	p.done <- out
	requestsTotal.WithLabelValues(string(p.kind), outcomeLabel(out.err)).Inc()
	requestDuration.WithLabelValues(string(p.kind)).Observe(time.Since(p.start).Seconds())
}

// renew re-arms the watchdog of a live entry.
func (d *Dispatcher) renew(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[id]
	if !ok {
		return false
	}
	d.armLocked(p)
	return true
}

// ensureStarted returns a ready connection, starting the engine if needed.
// Concurrent callers share one start attempt; a failed attempt rejects all of
// its waiters and the next request tries again.
func (d *Dispatcher) ensureStarted(ctx context.Context) (channel.DispatcherConn, error) {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, ErrClosed
		}
		if d.state == stateReady {
			c := d.conn
			d.mu.Unlock()
			return c, nil
		}
		if d.state != stateStarting {
			d.beginStartLocked()
		}
		a := d.attempt
		d.mu.Unlock()

		select {
		case <-a.done:
			if a.err != nil {
				return nil, a.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *Dispatcher) beginStartLocked() {
	a := &startAttempt{done: make(chan struct{})}
	d.attempt = a
	d.state = stateStarting
	d.starts++
	d.log.Info().Uint64("start", d.starts).Msg("starting engine")
	go d.launch(a)
}

func (d *Dispatcher) launch(a *startAttempt) {
	conn, err := d.cfg.Launcher.Launch(d.baseCtx)
	if err != nil {
		d.finishStart(a, nil, startupError{msg: err.Error()})
		return
	}
	d.mu.Lock()
	if d.closed || d.attempt != a {
		d.mu.Unlock()
		_ = conn.Close()
		d.finishStart(a, nil, ErrClosed)
		return
	}
	d.conn = conn
	d.mu.Unlock()

	go d.readLoop(conn)
	if err := conn.Send(protocol.Warmup{}); err != nil {
		_ = conn.Close()
	}
}

// finishStart settles a start attempt once. On failure the connection, if
// any, is dropped so the next request launches a fresh engine.
func (d *Dispatcher) finishStart(a *startAttempt, ready *protocol.Ready, err error) {
	d.mu.Lock()
	if d.attempt != a || d.state != stateStarting {
		d.mu.Unlock()
		return
	}
	var drop channel.DispatcherConn
	if err != nil {
		a.err = err
		d.state = stateFailed
		d.lastErr = err.Error()
		drop, d.conn = d.conn, nil
		engineStartsTotal.WithLabelValues("failure").Inc()
	} else {
		d.state = stateReady
		d.ready = *ready
		engineStartsTotal.WithLabelValues("success").Inc()
	}
	close(a.done)
	d.mu.Unlock()

	if err != nil {
		d.log.Error().Err(err).Msg("engine startup failed")
		if drop != nil {
			_ = drop.Close()
		}
		return
	}
	d.log.Info().Str("model", ready.ModelID).Str("backend", ready.Backend).Msg("engine ready")
}

// readLoop demultiplexes events from conn until it closes.
func (d *Dispatcher) readLoop(conn channel.DispatcherConn) {
	for ev := range conn.Events() {
		d.obs.Observe(ev)
		d.dispatch(conn, ev)
	}
	d.onClosed(conn)
}

func (d *Dispatcher) dispatch(conn channel.DispatcherConn, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Ready:
		d.onReady(conn, e)
		return
	case protocol.Error:
		if e.ReqID == 0 {
			d.onUntaggedError(conn, e)
			return
		}
	}

	id := ev.RequestID()
	if id == 0 {
		return
	}
	switch {
	case protocol.Renews(ev):
		if d.renew(id) {
			renewalsTotal.WithLabelValues(string(ev.Type())).Inc()
		} else {
			droppedEventsTotal.WithLabelValues(string(ev.Type())).Inc()
		}
	case protocol.IsTerminal(ev):
		if !d.settle(id, terminalOutcome(ev)) {
			d.log.Debug().Int64("req_id", id).Str("type", string(ev.Type())).Msg("dropping late terminal event")
			droppedEventsTotal.WithLabelValues(string(ev.Type())).Inc()
		}
	}
}

func terminalOutcome(ev protocol.Event) outcome {
	switch e := ev.(type) {
	case protocol.Classified:
		return outcome{value: e.Category}
	case protocol.Result:
		return outcome{value: e.Answer}
	case protocol.Error:
		return outcome{err: &RequestError{ReqID: e.ReqID, Message: e.Message, Code: e.Code}}
	}
	return outcome{err: errors.New("unexpected terminal event " + string(ev.Type()))}
}

func (d *Dispatcher) onReady(conn channel.DispatcherConn, r protocol.Ready) {
	d.mu.Lock()
	if d.conn != conn {
		d.mu.Unlock()
		return
	}
	a, starting := d.attempt, d.state == stateStarting
	if !starting {
		// Re-announcement from a running engine.
		d.ready = r
	}
	d.mu.Unlock()
	if starting {
		d.finishStart(a, &r, nil)
	}
}

func (d *Dispatcher) onUntaggedError(conn channel.DispatcherConn, e protocol.Error) {
	d.mu.Lock()
	if d.conn != conn || d.state != stateStarting {
		d.mu.Unlock()
		d.log.Warn().Str("code", e.Code).Msg("engine error: " + e.Message)
		return
	}
	a := d.attempt
	d.mu.Unlock()
	d.finishStart(a, nil, startupError{msg: e.Message})
}

// onClosed fails every request bound to conn and resets the dispatcher so
// the next request relaunches the engine.
func (d *Dispatcher) onClosed(conn channel.DispatcherConn) {
	d.mu.Lock()
	var a *startAttempt
	if d.conn == conn {
		d.conn = nil
		switch d.state {
		case stateStarting:
			a = d.attempt
		case stateReady:
			d.state = stateIdle
			d.ready = protocol.Ready{}
			d.lastErr = "engine channel closed"
		}
	}
	var ids []int64
	for id, p := range d.pending {
		if p.conn == conn {
			ids = append(ids, id)
		}
	}
	closed := d.closed
	d.mu.Unlock()

	if a != nil {
		var err error = closedError{}
		if closed {
			err = ErrClosed
		}
		d.finishStart(a, nil, err)
	}
	if len(ids) > 0 {
		d.log.Warn().Int("pending", len(ids)).Msg("engine channel closed; failing pending requests")
	}
	for _, id := range ids {
		d.settle(id, outcome{err: closedError{}})
	}
}

// Start launches the engine ahead of the first request and waits for it to
// become ready. It is optional; requests start the engine on demand.
func (d *Dispatcher) Start(ctx context.Context) error {
	_, err := d.ensureStarted(ctx)
	return err
}

// Ready reports whether the engine has signaled readiness.
func (d *Dispatcher) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateReady
}

// Status returns a snapshot of the dispatcher.
func (d *Dispatcher) Status() types.StatusResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	return types.StatusResponse{
		Ready:          d.state == stateReady,
		State:          d.state,
		ModelID:        d.ready.ModelID,
		Backend:        d.ready.Backend,
		InstanceID:     d.ready.InstanceID,
		Pending:        len(d.pending),
		Starts:         d.starts,
		LastError:      d.lastErr,
		UptimeSeconds:  int64(now.Sub(d.created).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// Close stops the engine and fails outstanding requests. Further requests
// return ErrClosed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	d.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	d.cancel()
	return err
}
