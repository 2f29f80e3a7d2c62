package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"tutord/internal/config"
	"tutord/internal/dispatcher"
	"tutord/internal/engine"
)

// newLoader picks the generation backend.
func newLoader(cfg config.Config) engine.Loader {
	if cfg.Backend == config.BackendOpenAI {
		return engine.NewOpenAILoader(engine.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		})
	}
	return engine.NewLlamaLoader(engine.LlamaConfig{
		ModelsDir:   cfg.ModelsDir,
		ModelID:     cfg.ModelID,
		ContextSize: cfg.LlamaCtx,
		Threads:     cfg.LlamaThreads,
	})
}

// newEngine builds a fresh engine. Every launch gets its own loader so a
// relaunch never reuses a previous model handle.
func newEngine(cfg config.Config, tax *engine.Taxonomy, log zerolog.Logger) *engine.Engine {
	return engine.New(engine.Config{
		Loader:            newLoader(cfg),
		Taxonomy:          tax,
		MaxNewTokens:      cfg.MaxNewTokens,
		ClassifyMaxTokens: cfg.ClassifyMaxTokens,
		HeartbeatEvery:    cfg.HeartbeatEvery,
		QueueDepth:        cfg.QueueDepth,
		MaxWait:           cfg.QueueWait(),
		Logger:            &log,
	})
}

// newLauncher places the engine in this process or in a child running
// `tutord engine`.
func newLauncher(cfg config.Config, log zerolog.Logger) (dispatcher.Launcher, error) {
	if cfg.EngineMode == config.ModeSubprocess {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		return dispatcher.SubprocessLauncher{
			Path:   exe,
			Args:   []string{"engine"},
			Env:    append(os.Environ(), engineConfigEnv+"="+string(raw)),
			Logger: &log,
		}, nil
	}
	tax, err := cfg.BuildTaxonomy()
	if err != nil {
		return nil, err
	}
	return dispatcher.InProcessLauncher{
		NewEngine: func() *engine.Engine { return newEngine(cfg, tax, log) },
		Logger:    &log,
	}, nil
}

// newDispatcher wires the launcher, timeouts and observers.
func newDispatcher(cfg config.Config, log zerolog.Logger, obs ...dispatcher.Observer) (*dispatcher.Dispatcher, error) {
	l, err := newLauncher(cfg, log)
	if err != nil {
		return nil, err
	}
	observers := dispatcher.Observers{dispatcher.LogObserver{Logger: log}}
	observers = append(observers, obs...)
	return dispatcher.New(dispatcher.Config{
		Launcher:       l,
		DefaultTimeout: cfg.Timeout(),
		MinTimeout:     cfg.MinTimeout(),
		Observer:       observers,
		Logger:         &log,
	}), nil
}
