package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tutord/internal/engine"
)

// Backends and engine modes.
const (
	BackendLlama  = "llama"
	BackendOpenAI = "openai"

	ModeInProcess  = "inprocess"
	ModeSubprocess = "subprocess"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty" toml:"log_pretty"`

	ModelsDir  string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelID    string `json:"model_id" yaml:"model_id" toml:"model_id"`
	Backend    string `json:"backend" yaml:"backend" toml:"backend"`
	EngineMode string `json:"engine_mode" yaml:"engine_mode" toml:"engine_mode"`

	TimeoutMS         int64 `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	MinTimeoutMS      int64 `json:"min_timeout_ms" yaml:"min_timeout_ms" toml:"min_timeout_ms"`
	MaxNewTokens      int   `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	ClassifyMaxTokens int   `json:"classify_max_tokens" yaml:"classify_max_tokens" toml:"classify_max_tokens"`
	HeartbeatEvery    int   `json:"heartbeat_every" yaml:"heartbeat_every" toml:"heartbeat_every"`
	QueueDepth        int   `json:"queue_depth" yaml:"queue_depth" toml:"queue_depth"`
	QueueWaitMS       int64 `json:"queue_wait_ms" yaml:"queue_wait_ms" toml:"queue_wait_ms"`

	Taxonomy Taxonomy `json:"taxonomy" yaml:"taxonomy" toml:"taxonomy"`

	OpenAIBaseURL string `json:"openai_base_url" yaml:"openai_base_url" toml:"openai_base_url"`
	OpenAIAPIKey  string `json:"openai_api_key" yaml:"openai_api_key" toml:"openai_api_key"`
	OpenAIModel   string `json:"openai_model" yaml:"openai_model" toml:"openai_model"`

	LlamaCtx     int `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads int `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`

	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Taxonomy selects a built-in preset or declares custom categories.
type Taxonomy struct {
	Preset          string            `json:"preset" yaml:"preset" toml:"preset"`
	Categories      []engine.Category `json:"categories" yaml:"categories" toml:"categories"`
	DefaultCategory string            `json:"default_category" yaml:"default_category" toml:"default_category"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ModelsDir == "" {
		c.ModelsDir = "~/models/llm"
	}
	if c.Backend == "" {
		c.Backend = BackendLlama
	}
	if c.EngineMode == "" {
		c.EngineMode = ModeInProcess
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 180_000
	}
	if c.MinTimeoutMS <= 0 {
		c.MinTimeoutMS = 10_000
	}
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = 128
	}
	if c.ClassifyMaxTokens <= 0 {
		c.ClassifyMaxTokens = 16
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 2
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 32
	}
	if c.QueueWaitMS <= 0 {
		c.QueueWaitMS = 300_000
	}
	if c.Taxonomy.Preset == "" && len(c.Taxonomy.Categories) == 0 {
		c.Taxonomy.Preset = engine.TaxonomySubjects
	}
	if c.LlamaCtx <= 0 {
		c.LlamaCtx = 2048
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLlama, BackendOpenAI:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLlama, BackendOpenAI)
	}
	switch c.EngineMode {
	case ModeInProcess, ModeSubprocess:
	default:
		return fmt.Errorf("unknown engine_mode %q (want %s or %s)", c.EngineMode, ModeInProcess, ModeSubprocess)
	}
	if c.Backend == BackendOpenAI && c.OpenAIModel == "" {
		return fmt.Errorf("openai_model is required for the openai backend")
	}
	if c.MinTimeoutMS > c.TimeoutMS {
		return fmt.Errorf("min_timeout_ms (%d) exceeds timeout_ms (%d)", c.MinTimeoutMS, c.TimeoutMS)
	}
	_, err := c.BuildTaxonomy()
	return err
}

// BuildTaxonomy resolves the configured taxonomy.
func (c Config) BuildTaxonomy() (*engine.Taxonomy, error) {
	if len(c.Taxonomy.Categories) > 0 {
		name := c.Taxonomy.Preset
		if name == "" {
			name = "custom"
		}
		def := c.Taxonomy.DefaultCategory
		if def == "" {
			def = c.Taxonomy.Categories[0].Label
		}
		return engine.NewTaxonomy(name, c.Taxonomy.Categories, def)
	}
	return engine.Preset(c.Taxonomy.Preset)
}

// Timeout is the default per-request liveness window.
func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// MinTimeout is the floor for per-request timeouts.
func (c Config) MinTimeout() time.Duration { return time.Duration(c.MinTimeoutMS) * time.Millisecond }

// QueueWait bounds how long a request waits for the generation slot.
func (c Config) QueueWait() time.Duration { return time.Duration(c.QueueWaitMS) * time.Millisecond }
