//go:build llama

package engine

import (
	"context"
	"errors"
	"fmt"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

type llamaLoader struct{ cfg LlamaConfig }

// NewLlamaLoader returns a Loader that runs a GGUF model in-process.
func NewLlamaLoader(cfg LlamaConfig) Loader { return &llamaLoader{cfg: cfg} }

func (l *llamaLoader) Load(ctx context.Context, report func(LoadProgress)) (Generator, error) {
	m, err := probeModel(l.cfg, report)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := llama.New(m.Path, llama.SetContext(max(l.cfg.ContextSize, 512)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.ID, err)
	}
	report(LoadProgress{Status: "done", Name: l.cfg.ModelID, File: m.ID, Loaded: m.Size, Total: m.Size})
	return &llamaGenerator{model: model, threads: l.cfg.Threads, info: ModelInfo{ID: m.ID, Backend: "llama"}}, nil
}

// llamaGenerator owns the loaded model. The engine serializes calls, which the
// per-model token callback relies on.
type llamaGenerator struct {
	model   *llama.LLama
	threads int
	info    ModelInfo
}

func (g *llamaGenerator) Info() ModelInfo { return g.info }

func (g *llamaGenerator) Generate(ctx context.Context, prompt Prompt, params GenParams, onToken func(string) error) (FinalResult, error) {
	if g.model == nil {
		return FinalResult{}, errors.New("llama model not initialized")
	}
	var (
		tokens  int
		stopErr error
	)
	g.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		if onToken != nil {
			if err := onToken(tok); err != nil {
				stopErr = err
				return false
			}
		}
		return true
	})
	text, err := g.model.Predict(prompt.Render(), predictOptions(params, g.threads)...)
	switch {
	case ctx.Err() != nil:
		return FinalResult{}, ctx.Err()
	case stopErr != nil:
		return FinalResult{}, stopErr
	case err != nil:
		return FinalResult{}, err
	}
	finish := "stop"
	if tokens >= params.MaxNewTokens {
		finish = "length"
	}
	return FinalResult{Text: text, Tokens: tokens, FinishReason: finish}, nil
}

func (g *llamaGenerator) Close() error {
	if g.model != nil {
		g.model.Free()
		g.model = nil
	}
	return nil
}

// predictOptions maps decoding parameters onto go-llama.cpp options. Greedy
// decoding is passed through explicitly instead of relying on library defaults.
func predictOptions(p GenParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxNewTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopK(max(1, p.TopK)),
		llama.SetTopP(p.TopP),
		llama.SetTemperature(p.Temperature),
		llama.SetPenalty(p.RepetitionPenalty),
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
