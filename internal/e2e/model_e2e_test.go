package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"tutord/internal/dispatcher"
	"tutord/internal/engine"
	"tutord/internal/registry"
)

// TestRealModel_Ask runs both stages against a real GGUF model.
// Skips unless:
// - the binary is built with -tags=llama, and
// - TUTORD_E2E_MODELS_DIR contains at least one .gguf file.
func TestRealModel_Ask(t *testing.T) {
	dir := os.Getenv("TUTORD_E2E_MODELS_DIR")
	if dir == "" || !engine.LlamaAvailable() {
		t.Skip("set TUTORD_E2E_MODELS_DIR and build with -tags=llama to run")
	}
	models, err := registry.LoadDir(dir)
	if err != nil || len(models) == 0 {
		t.Skipf("no models in %s: %v", dir, err)
	}

	loader := engine.NewLlamaLoader(engine.LlamaConfig{ModelsDir: dir, ModelID: models[0].ID})
	d := dispatcher.New(dispatcher.Config{
		Launcher: dispatcher.InProcessLauncher{NewEngine: func() *engine.Engine {
			return engine.New(engine.Config{Loader: loader})
		}},
	})
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	resp, err := d.Ask(ctx, "¿Qué es el ADN?", dispatcher.Options{MaxNewTokens: 48})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Category == "" || resp.Answer == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	t.Logf("category=%s answer=%s", resp.Category, resp.Answer)
}
