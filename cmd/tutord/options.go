package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tutord/internal/config"
)

// engineConfigEnv carries the resolved config from serve/ask to an engine
// subprocess.
const engineConfigEnv = "TUTORD_ENGINE_CONFIG"

// globalOptions are the persistent flags shared by every subcommand. Flags
// only override the config file when set explicitly.
type globalOptions struct {
	configPath   string
	logLevel     string
	logPretty    bool
	modelsDir    string
	modelID      string
	backend      string
	engineMode   string
	timeoutMS    int64
	maxNewTokens int
	openaiURL    string
	openaiModel  string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", os.Getenv("TUTORD_CONFIG"), "Path to a YAML, JSON or TOML config file")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVar(&o.logPretty, "log-pretty", false, "Human-readable console logs")
	f.StringVar(&o.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	f.StringVar(&o.modelID, "model", "", "Model id or path (default: first model in models dir)")
	f.StringVar(&o.backend, "backend", "", "Generation backend: llama or openai")
	f.StringVar(&o.engineMode, "engine-mode", "", "Engine placement: inprocess or subprocess")
	f.Int64Var(&o.timeoutMS, "timeout-ms", 0, "Default per-request liveness window in milliseconds")
	f.IntVar(&o.maxNewTokens, "max-new-tokens", 0, "Ceiling for answer length in tokens")
	f.StringVar(&o.openaiURL, "openai-base-url", "", "Base URL of an OpenAI-compatible server")
	f.StringVar(&o.openaiModel, "openai-model", "", "Model name for the openai backend")
}

// resolve loads the config file, applies explicit flag overrides and defaults,
// then validates.
func (o *globalOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if f.Changed("log-pretty") {
		cfg.LogPretty = o.logPretty
	}
	if f.Changed("models-dir") {
		cfg.ModelsDir = o.modelsDir
	}
	if f.Changed("model") {
		cfg.ModelID = o.modelID
	}
	if f.Changed("backend") {
		cfg.Backend = o.backend
	}
	if f.Changed("engine-mode") {
		cfg.EngineMode = o.engineMode
	}
	if f.Changed("timeout-ms") {
		cfg.TimeoutMS = o.timeoutMS
	}
	if f.Changed("max-new-tokens") {
		cfg.MaxNewTokens = o.maxNewTokens
	}
	if f.Changed("openai-base-url") {
		cfg.OpenAIBaseURL = o.openaiURL
	}
	if f.Changed("openai-model") {
		cfg.OpenAIModel = o.openaiModel
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// engineConfigFromEnv returns the config handed down by a parent process.
func engineConfigFromEnv() (config.Config, bool, error) {
	raw := os.Getenv(engineConfigEnv)
	if raw == "" {
		return config.Config{}, false, nil
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, true, fmt.Errorf("decode %s: %w", engineConfigEnv, err)
	}
	cfg.ApplyDefaults()
	return cfg, true, cfg.Validate()
}
