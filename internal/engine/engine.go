package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutord/internal/channel"
	"tutord/internal/protocol"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateGenerating State = "generating"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxNewTokens      = 128
	defaultClassifyMaxTokens = 16
	defaultHeartbeatEvery    = 2
	defaultQueueDepth        = 32
	defaultMaxWait           = 5 * time.Minute
	defaultQueueHeartbeat    = 5 * time.Second

	answerRepetitionPenalty = 1.05
)

// Config encapsulates the engine tunables.
type Config struct {
	Loader   Loader
	Taxonomy *Taxonomy
	// MaxNewTokens is the ceiling for answers; requests are clamped to it.
	MaxNewTokens      int
	ClassifyMaxTokens int
	// HeartbeatEvery is the number of generated tokens between progress events.
	HeartbeatEvery int
	QueueDepth     int
	MaxWait        time.Duration
	QueueHeartbeat time.Duration
	Logger         *zerolog.Logger
}

// Engine owns one generation pipeline and serves classify/answer commands
// received over an EngineConn. Generations are serialized: at most one runs at
// a time, later ones wait in a bounded queue.
type Engine struct {
	cfg        Config
	log        zerolog.Logger
	instanceID string

	mu    sync.RWMutex
	state State

	loadMu sync.Mutex
	gen    Generator

	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
}

// New constructs an Engine, applying defaults to unset Config fields.
func New(cfg Config) *Engine {
	if cfg.Taxonomy == nil {
		cfg.Taxonomy, _ = Preset(TaxonomySubjects)
	}
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = defaultMaxNewTokens
	}
	if cfg.ClassifyMaxTokens <= 0 {
		cfg.ClassifyMaxTokens = defaultClassifyMaxTokens
	}
	if cfg.ClassifyMaxTokens > cfg.MaxNewTokens {
		cfg.ClassifyMaxTokens = cfg.MaxNewTokens
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = defaultHeartbeatEvery
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.QueueHeartbeat <= 0 {
		cfg.QueueHeartbeat = defaultQueueHeartbeat
	}
	l := zerolog.Nop()
	if cfg.Logger != nil {
		l = *cfg.Logger
	}
	return &Engine{
		cfg:        cfg,
		log:        l.With().Str("component", "engine").Logger(),
		instanceID: uuid.NewString(),
		state:      StateIdle,
		genCh:      make(chan struct{}, 1),
		queueCh:    make(chan struct{}, cfg.QueueDepth),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Serve processes commands from conn until the channel closes or ctx is
// canceled. Each command runs on its own goroutine; generation access is
// serialized by admission. Serve waits for in-flight handlers before
// returning and releases the pipeline.
func (e *Engine) Serve(ctx context.Context, conn channel.EngineConn) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		e.close()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-conn.Commands():
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.handle(ctx, conn, cmd)
			}()
		}
	}
}

func (e *Engine) handle(ctx context.Context, conn channel.EngineConn, cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.Warmup:
		e.warmup(ctx, conn)
	case protocol.Classify:
		e.classify(ctx, conn, c)
	case protocol.Answer:
		e.answer(ctx, conn, c)
	default:
		e.log.Warn().Str("type", string(cmd.Type())).Msg("ignoring unknown command")
	}
}

func (e *Engine) emit(conn channel.EngineConn, ev protocol.Event) {
	if err := conn.Emit(ev); err != nil && !errors.Is(err, channel.ErrClosed) {
		e.log.Error().Err(err).Str("type", string(ev.Type())).Msg("emit failed")
	}
}

func (e *Engine) logEvent(conn channel.EngineConn, reqID int64, msg string, extra map[string]any) {
	ev := e.log.Debug().Str("event", msg)
	if reqID > 0 {
		ev = ev.Int64("req_id", reqID)
	}
	ev.Fields(extra).Msg("engine log")
	e.emit(conn, protocol.Log{ReqID: reqID, Msg: msg, Extra: extra})
}

func (e *Engine) fail(conn channel.EngineConn, reqID int64, err error) {
	code := protocol.CodeInternal
	if IsBusy(err) {
		code = protocol.CodeBusy
	}
	e.log.Warn().Int64("req_id", reqID).Err(err).Msg("request failed")
	e.emit(conn, protocol.Error{ReqID: reqID, Message: err.Error(), Code: code})
}

// warmup loads the pipeline if needed and announces readiness. A failure is
// reported as an untagged error; a later warmup or request retries.
func (e *Engine) warmup(ctx context.Context, conn channel.EngineConn) {
	gen, fresh, err := e.ensureLoaded(ctx, conn)
	if err != nil {
		e.emit(conn, protocol.Error{Message: err.Error(), Code: protocol.CodeStartup})
		return
	}
	if !fresh {
		// Already loaded: a restarted dispatcher still needs the signal.
		e.announce(conn, gen)
	}
}

func (e *Engine) announce(conn channel.EngineConn, gen Generator) {
	info := gen.Info()
	e.emit(conn, protocol.Ready{ModelID: info.ID, Backend: info.Backend, InstanceID: e.instanceID})
}

// ensureLoaded returns the pipeline, loading and priming it on first use.
// Concurrent callers wait for the same load. fresh is true for the caller
// that performed the load, which has already announced readiness.
func (e *Engine) ensureLoaded(ctx context.Context, conn channel.EngineConn) (gen Generator, fresh bool, err error) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.gen != nil {
		return e.gen, false, nil
	}
	if e.cfg.Loader == nil {
		return nil, false, ErrDependencyUnavailable("no generation backend configured")
	}
	start := time.Now()
	e.setState(StateLoading)
	e.log.Info().Msg("warmup start")

	gen, err = e.cfg.Loader.Load(ctx, func(p LoadProgress) {
		e.emit(conn, protocol.Progress{Status: p.Status, Name: p.Name, File: p.File, Loaded: p.Loaded, Total: p.Total})
	})
	if err == nil {
		// 1-token priming call so the first real request does not pay for lazy init.
		var warm FinalResult
		warm, err = generateSafe(ctx, gen, Prompt{System: "You are an assistant.", User: "Hello"}, greedy(1, 1), nil)
		if err != nil {
			_ = gen.Close()
			err = fmt.Errorf("priming failed: %w", err)
		} else {
			e.logEvent(conn, 0, "warmup ok", map[string]any{"text": warm.Text})
		}
	}
	if err != nil {
		e.setState(StateIdle)
		e.log.Error().Err(err).Msg("warmup failed")
		e.logEvent(conn, 0, "warmup ERROR", map[string]any{"err": err.Error()})
		return nil, false, err
	}
	e.gen = gen
	e.setState(StateReady)
	e.log.Info().Str("model", gen.Info().ID).Dur("dur", time.Since(start)).Msg("warmup ready")
	e.announce(conn, gen)
	return gen, true, nil
}

func (e *Engine) close() {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.gen != nil {
		_ = e.gen.Close()
		e.gen = nil
	}
	e.setState(StateIdle)
}

// prepare resolves the pipeline and admission for a request.
func (e *Engine) prepare(ctx context.Context, conn channel.EngineConn, reqID int64, question string) (Generator, func(), error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil, errors.New("question is required")
	}
	gen, _, err := e.ensureLoaded(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	release, err := e.beginGeneration(ctx, conn, reqID)
	if err != nil {
		return nil, nil, err
	}
	return gen, release, nil
}

func (e *Engine) classify(ctx context.Context, conn channel.EngineConn, c protocol.Classify) {
	gen, release, err := e.prepare(ctx, conn, c.ReqID, c.Payload.Question)
	if err != nil {
		e.fail(conn, c.ReqID, err)
		return
	}
	defer release()

	prompt := classifyPrompt(e.cfg.Taxonomy, c.Payload.Question)
	params := greedy(e.cfg.ClassifyMaxTokens, 1)
	e.logEvent(conn, c.ReqID, "STAGE1 classify", map[string]any{"promptPreview": preview(prompt.Render(), 200), "maxNewTokens": params.MaxNewTokens})

	res, err := generateSafe(ctx, gen, prompt, params, nil)
	if err != nil {
		e.fail(conn, c.ReqID, err)
		return
	}
	category := e.cfg.Taxonomy.Parse(res.Text)
	e.logEvent(conn, c.ReqID, "STAGE1 PARSED category", map[string]any{"raw": res.Text, "category": category})
	e.emit(conn, protocol.Classified{ReqID: c.ReqID, Category: category})
}

// clampTokens maps a requested budget onto [1, ceiling]; zero means ceiling.
func clampTokens(requested, ceiling int) int {
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func (e *Engine) answer(ctx context.Context, conn channel.EngineConn, c protocol.Answer) {
	gen, release, err := e.prepare(ctx, conn, c.ReqID, c.Payload.Question)
	if err != nil {
		e.fail(conn, c.ReqID, err)
		return
	}
	defer release()

	requested := 0
	if c.Payload.GenOpts != nil {
		requested = c.Payload.GenOpts.MaxNewTokens
	}
	maxTokens := clampTokens(requested, e.cfg.MaxNewTokens)
	prompt := answerPrompt(e.cfg.Taxonomy, c.Payload.Question, c.Payload.Category)
	params := greedy(maxTokens, answerRepetitionPenalty)
	e.logEvent(conn, c.ReqID, "STAGE2 answer", map[string]any{"promptPreview": preview(prompt.Render(), 200), "maxNewTokens": maxTokens})

	start := time.Now()
	var (
		b      strings.Builder
		tokens int
	)
	onToken := func(tok string) error {
		b.WriteString(tok)
		tokens++
		if tokens%e.cfg.HeartbeatEvery == 0 {
			pct := math.Round(float64(tokens)/float64(maxTokens)*1000) / 10
			e.emit(conn, protocol.Progress{
				ReqID:   c.ReqID,
				Status:  "gen",
				Tokens:  tokens,
				Max:     maxTokens,
				Percent: math.Min(pct, 100),
				Secs:    time.Since(start).Seconds(),
			})
		}
		return nil
	}
	res, err := generateSafe(ctx, gen, prompt, params, onToken)
	if err != nil {
		e.fail(conn, c.ReqID, err)
		return
	}
	text := res.Text
	if text == "" {
		text = b.String()
	}
	e.logEvent(conn, c.ReqID, "STAGE2 RAW", map[string]any{"raw": preview(text, 400), "tokens": tokens})
	e.emit(conn, protocol.Result{ReqID: c.ReqID, Answer: strings.TrimSpace(text)})
}
