package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"tutord/pkg/types"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func buildBinary(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	root := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	binPath := filepath.Join(t.TempDir(), "tutord")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/tutord")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// startServer runs `tutord serve` against a models dir holding empty GGUF
// files. Without the llama build tag every engine start fails cleanly.
func startServer(t *testing.T, bin string, extra ...string) string {
	t.Helper()
	modelsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(modelsDir, "alpha.gguf"), nil, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := append([]string{"serve", "--addr", fmt.Sprintf("127.0.0.1:%d", port), "--models-dir", modelsDir, "--log-level", "warn"}, extra...)
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "TUTORD_CONFIG=")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return base
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func httpDo(t *testing.T, method, url string, payload []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func checkStartupFailureFlow(t *testing.T, base string) {
	t.Helper()
	if code, body := httpDo(t, http.MethodGet, base+"/readyz", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz %d %s", code, body)
	}
	if code, _ := httpDo(t, http.MethodPost, base+"/v1/classify", []byte(`{"question":""}`)); code != http.StatusBadRequest {
		t.Fatalf("empty question status=%d", code)
	}

	code, body := httpDo(t, http.MethodPost, base+"/v1/classify", []byte(`{"question":"¿Qué es el ADN?"}`))
	if code != http.StatusServiceUnavailable {
		t.Fatalf("/v1/classify expected 503, got %d %s", code, body)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("error json: %v body=%s", err, body)
	}
	if !strings.Contains(e.Error, "engine startup failed") || !strings.Contains(e.Error, "llama") {
		t.Fatalf("error=%q", e.Error)
	}

	// A failed start is retried by the next request.
	_, _ = httpDo(t, http.MethodPost, base+"/v1/classify", []byte(`{"question":"otra"}`))
	var st types.StatusResponse
	_, body = httpDo(t, http.MethodGet, base+"/status", nil)
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v body=%s", err, body)
	}
	if st.Ready || st.State != "failed" || st.Starts != 2 || st.LastError == "" {
		t.Fatalf("status=%+v", st)
	}

	_, body = httpDo(t, http.MethodGet, base+"/metrics", nil)
	if !bytes.Contains(body, []byte(`tutord_dispatcher_engine_starts_total{result="failure"} 2`)) {
		t.Fatalf("metrics missing failed starts")
	}
}

func TestBlackbox_InProcessStartupFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	base := startServer(t, buildBinary(t))
	checkStartupFailureFlow(t, base)
}

func TestBlackbox_SubprocessStartupFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	base := startServer(t, buildBinary(t), "--engine-mode", "subprocess")
	checkStartupFailureFlow(t, base)
}
