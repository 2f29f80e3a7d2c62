package engine

import (
	"context"
	"fmt"
)

// Loader builds the generation pipeline. Implementations report loading
// phases through report and must return when ctx is canceled.
type Loader interface {
	Load(ctx context.Context, report func(LoadProgress)) (Generator, error)
}

// Generator is the opaque generation capability: given a prompt and decoding
// parameters it produces text, optionally calling onToken for each token
// before completion. A non-nil error from onToken stops generation.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, params GenParams, onToken func(string) error) (FinalResult, error)
	Info() ModelInfo
	Close() error
}

// ModelInfo identifies the loaded pipeline.
type ModelInfo struct {
	ID      string
	Backend string
}

// LoadProgress is one loading phase, forwarded as an untagged progress event.
type LoadProgress struct {
	Status string // initiate | download | progress | done
	Name   string
	File   string
	Loaded int64
	Total  int64
}

// GenParams captures decoding parameters passed to the generator.
type GenParams struct {
	MaxNewTokens      int
	Sampling          bool
	Temperature       float32
	TopK              int
	TopP              float32
	RepetitionPenalty float32
	Stop              []string
}

// FinalResult summarizes a generation after streaming.
type FinalResult struct {
	Text         string
	Tokens       int
	FinishReason string
}

// greedy returns deterministic decoding parameters. Both operations use them;
// sampling is never enabled by the engine.
func greedy(maxNewTokens int, penalty float32) GenParams {
	if penalty <= 0 {
		penalty = 1
	}
	return GenParams{
		MaxNewTokens:      maxNewTokens,
		Sampling:          false,
		Temperature:       0,
		TopK:              1,
		TopP:              1,
		RepetitionPenalty: penalty,
	}
}

// generateSafe runs g.Generate and converts a panic into an error.
func generateSafe(ctx context.Context, g Generator, p Prompt, params GenParams, onToken func(string) error) (res FinalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panic: %v", r)
		}
	}()
	return g.Generate(ctx, p, params, onToken)
}
