package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures generation through an OpenAI-compatible server,
// typically a local llama-server.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type openaiLoader struct{ cfg OpenAIConfig }

// NewOpenAILoader returns a Loader backed by a chat completions endpoint.
func NewOpenAILoader(cfg OpenAIConfig) Loader { return &openaiLoader{cfg: cfg} }

func (l *openaiLoader) Load(ctx context.Context, report func(LoadProgress)) (Generator, error) {
	if strings.TrimSpace(l.cfg.Model) == "" {
		return nil, errors.New("openai backend: model is required")
	}
	report(LoadProgress{Status: "initiate", Name: l.cfg.Model})
	var opts []option.RequestOption
	if l.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(l.cfg.BaseURL))
	}
	// Local servers ignore the key but the client insists on one.
	key := l.cfg.APIKey
	if key == "" {
		key = "none"
	}
	opts = append(opts, option.WithAPIKey(key))
	client := openai.NewClient(opts...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(LoadProgress{Status: "done", Name: l.cfg.Model})
	return &openaiGenerator{client: &client, info: ModelInfo{ID: l.cfg.Model, Backend: "openai"}}, nil
}

type openaiGenerator struct {
	client *openai.Client
	info   ModelInfo
}

func (g *openaiGenerator) Info() ModelInfo { return g.info }

func (g *openaiGenerator) Close() error { return nil }

func (g *openaiGenerator) Generate(ctx context.Context, prompt Prompt, p GenParams, onToken func(string) error) (FinalResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.info.ID,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		MaxTokens:   openai.Int(int64(max(1, p.MaxNewTokens))),
		Temperature: openai.Float(float64(p.Temperature)),
		TopP:        openai.Float(float64(p.TopP)),
	}
	// llama-server extensions outside the OpenAI schema.
	stream := g.client.Chat.Completions.NewStreaming(ctx, params,
		option.WithJSONSet("top_k", p.TopK),
		option.WithJSONSet("repeat_penalty", p.RepetitionPenalty),
	)
	defer stream.Close()

	var (
		b      strings.Builder
		tokens int
		finish string
	)
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				b.WriteString(ch.Delta.Content)
				tokens++
				if onToken != nil {
					if err := onToken(ch.Delta.Content); err != nil {
						return FinalResult{}, err
					}
				}
			}
			if ch.FinishReason != "" {
				finish = string(ch.FinishReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return FinalResult{}, ctx.Err()
		}
		return FinalResult{}, fmt.Errorf("openai streaming error: %w", err)
	}
	return FinalResult{Text: b.String(), Tokens: tokens, FinishReason: finish}, nil
}
