package engine

import (
	"tutord/internal/registry"
	"tutord/pkg/types"
)

// LlamaConfig configures the in-process llama.cpp backend.
type LlamaConfig struct {
	ModelsDir   string
	ModelID     string
	ContextSize int
	Threads     int
}

// probeModel locates the model file, reporting the lookup as load progress.
func probeModel(cfg LlamaConfig, report func(LoadProgress)) (types.Model, error) {
	report(LoadProgress{Status: "initiate", Name: cfg.ModelID})
	m, err := registry.Resolve(cfg.ModelsDir, cfg.ModelID)
	if err != nil {
		return types.Model{}, err
	}
	report(LoadProgress{Status: "download", Name: cfg.ModelID, File: m.ID, Loaded: 0, Total: m.Size})
	return m, nil
}

// LlamaAvailable reports whether this binary was built with the 'llama' tag.
func LlamaAvailable() bool { return llamaBuilt }
