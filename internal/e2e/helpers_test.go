package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tutord/internal/dispatcher"
	"tutord/internal/engine"
	"tutord/internal/httpapi"
)

// tutorModel is a Loader and Generator standing in for a real model. It
// classifies by keyword and streams a canned answer word by word. When gate is
// set, streaming answers block on it after announcing themselves on started.
type tutorModel struct {
	answer  string
	gate    chan struct{}
	started chan struct{}
	loads   atomic.Int32
}

func (m *tutorModel) Load(ctx context.Context, report func(engine.LoadProgress)) (engine.Generator, error) {
	m.loads.Add(1)
	report(engine.LoadProgress{Status: "initiate", Name: "tutor-e2e"})
	report(engine.LoadProgress{Status: "done", Name: "tutor-e2e", File: "tutor-e2e.gguf"})
	return m, nil
}

func (m *tutorModel) Info() engine.ModelInfo { return engine.ModelInfo{ID: "tutor-e2e.gguf", Backend: "e2e"} }
func (m *tutorModel) Close() error           { return nil }

func (m *tutorModel) Generate(ctx context.Context, p engine.Prompt, params engine.GenParams, onToken func(string) error) (engine.FinalResult, error) {
	q := strings.ToLower(p.User)
	if onToken == nil {
		switch {
		case strings.Contains(q, "adn"), strings.Contains(q, "célula"):
			return engine.FinalResult{Text: "Biología"}, nil
		case strings.Contains(q, "guerra"):
			return engine.FinalResult{Text: "Historia."}, nil
		}
		return engine.FinalResult{Text: "Hola"}, nil
	}
	if m.gate != nil {
		if m.started != nil {
			m.started <- struct{}{}
		}
		select {
		case <-m.gate:
		case <-ctx.Done():
			return engine.FinalResult{}, ctx.Err()
		}
	}
	words := strings.Fields(m.answer)
	if len(words) > params.MaxNewTokens {
		words = words[:params.MaxNewTokens]
	}
	for _, w := range words {
		if err := onToken(w + " "); err != nil {
			return engine.FinalResult{}, err
		}
	}
	return engine.FinalResult{Text: strings.Join(words, " "), Tokens: len(words)}, nil
}

type stack struct {
	srv    *httptest.Server
	d      *dispatcher.Dispatcher
	events *dispatcher.Broadcaster
}

// newStack serves the HTTP API over a dispatcher driving an in-process engine.
func newStack(t *testing.T, m *tutorModel, tune func(*engine.Config), dcfg func(*dispatcher.Config)) *stack {
	t.Helper()
	events := dispatcher.NewBroadcaster()
	cfg := dispatcher.Config{
		Launcher: dispatcher.InProcessLauncher{NewEngine: func() *engine.Engine {
			ec := engine.Config{Loader: m, QueueHeartbeat: 10 * time.Millisecond}
			if tune != nil {
				tune(&ec)
			}
			return engine.New(ec)
		}},
		DefaultTimeout: 5 * time.Second,
		MinTimeout:     time.Millisecond,
		Observer:       events,
	}
	if dcfg != nil {
		dcfg(&cfg)
	}
	d := dispatcher.New(cfg)
	srv := httptest.NewServer(httpapi.NewMux(d, events))
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})
	return &stack{srv: srv, d: d, events: events}
}

func (s *stack) post(t *testing.T, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.srv.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatalf("decode %s: %v body=%s", path, err, b)
		}
	}
	return resp.StatusCode
}

func (s *stack) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}
