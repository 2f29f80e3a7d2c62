package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tutord/internal/dispatcher"
	"tutord/internal/protocol"
	"tutord/pkg/types"
)

type mockService struct {
	status   types.StatusResponse
	ready    bool
	category string
	answer   string
	err      error

	lastQuestion string
	lastOpts     dispatcher.Options
}

func (m *mockService) Classify(ctx context.Context, q string, opts dispatcher.Options) (string, error) {
	m.lastQuestion, m.lastOpts = q, opts
	return m.category, m.err
}

func (m *mockService) Answer(ctx context.Context, q string, opts dispatcher.Options) (string, error) {
	m.lastQuestion, m.lastOpts = q, opts
	return m.answer, m.err
}

func (m *mockService) Ask(ctx context.Context, q string, opts dispatcher.Options) (types.AskResponse, error) {
	m.lastQuestion, m.lastOpts = q, opts
	if m.err != nil {
		return types.AskResponse{}, m.err
	}
	return types.AskResponse{Category: m.category, Answer: m.answer}, nil
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestClassifyHandler(t *testing.T) {
	svc := &mockService{category: "biologia"}
	w := postJSON(t, NewMux(svc, nil), "/v1/classify", `{"question":"¿Qué es el ADN?","timeout_ms":30000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.ClassifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Category != "biologia" {
		t.Fatalf("category=%q", body.Category)
	}
	if svc.lastOpts.Timeout != 30*time.Second {
		t.Fatalf("timeout=%s", svc.lastOpts.Timeout)
	}
}

func TestAnswerHandler_PassesOptions(t *testing.T) {
	svc := &mockService{answer: "Es la molécula de la herencia."}
	w := postJSON(t, NewMux(svc, nil), "/v1/answer", `{"question":"¿Qué es el ADN?","category":"biologia","max_new_tokens":64}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.AnswerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Answer != "Es la molécula de la herencia." {
		t.Fatalf("answer=%q", body.Answer)
	}
	if svc.lastOpts.Category != "biologia" || svc.lastOpts.MaxNewTokens != 64 || svc.lastOpts.Timeout != 0 {
		t.Fatalf("opts=%+v", svc.lastOpts)
	}
}

func TestAnswerHandler_NegativeTokens(t *testing.T) {
	w := postJSON(t, NewMux(&mockService{}, nil), "/v1/answer", `{"question":"hola","max_new_tokens":-1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestAskHandler(t *testing.T) {
	svc := &mockService{category: "matematicas", answer: "4"}
	w := postJSON(t, NewMux(svc, nil), "/v1/ask", `{"question":"¿2+2?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Category != "matematicas" || body.Answer != "4" {
		t.Fatalf("body=%+v", body)
	}
}

func TestPostHandlers_Validation(t *testing.T) {
	r := NewMux(&mockService{}, nil)
	for _, path := range []string{"/v1/classify", "/v1/answer", "/v1/ask"} {
		if w := postJSON(t, r, path, `{"question":`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s invalid json: status=%d", path, w.Code)
		}
		if w := postJSON(t, r, path, `{"question":"   "}`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s empty question: status=%d", path, w.Code)
		}
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(`{"question":"hola"}`))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("%s content type: status=%d", path, w.Code)
		}
	}
}

func TestPostHandlers_BodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(32)
	defer SetMaxBodyBytes(0)
	body := `{"question":"` + strings.Repeat("a", 64) + `"}`
	w := postJSON(t, NewMux(&mockService{}, nil), "/v1/classify", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", w.Code)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("json: %v", err)
	}
	if e.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("code=%d", e.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{Ready: true, State: "ready", Starts: 2}}
	w := httptest.NewRecorder()
	NewMux(svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.Ready || body.Starts != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz status=%d body=%q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("readyz status=%d body=%q", w.Code, w.Body.String())
	}

	svc.ready = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", w.Code)
	}
}

func TestSecurityHeader(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewMux(&mockService{}, nil)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tutord_http_requests_total") {
		t.Fatalf("metrics missing http counter")
	}
}

func TestEventsFeed_NotMountedWithoutSource(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestEventsFeed_StreamsNDJSON(t *testing.T) {
	b := dispatcher.NewBroadcaster()
	srv := httptest.NewServer(NewMux(&mockService{}, b))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}

	// Headers are flushed after the subscription is registered.
	b.Observe(protocol.Heartbeat{ReqID: 3, Reason: "queued"})
	b.Observe(protocol.Classified{ReqID: 3, Category: "biologia"})

	sc := bufio.NewScanner(resp.Body)
	var got []protocol.Event
	for len(got) < 2 && sc.Scan() {
		ev, err := protocol.DecodeEvent(sc.Bytes())
		if err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events: %v", len(got), sc.Err())
	}
	if hb, ok := got[0].(protocol.Heartbeat); !ok || hb.ReqID != 3 {
		t.Fatalf("first=%#v", got[0])
	}
	if c, ok := got[1].(protocol.Classified); !ok || c.Category != "biologia" {
		t.Fatalf("second=%#v", got[1])
	}
}
