//go:build !llama

package engine

import "context"

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = false

// llamaLoader refuses to load without the 'llama' build tag so default builds
// stay CGO-free. The model lookup still runs so misconfiguration is reported
// first.
type llamaLoader struct{ cfg LlamaConfig }

// NewLlamaLoader returns a Loader that runs a GGUF model in-process.
func NewLlamaLoader(cfg LlamaConfig) Loader { return &llamaLoader{cfg: cfg} }

func (l *llamaLoader) Load(ctx context.Context, report func(LoadProgress)) (Generator, error) {
	if _, err := probeModel(l.cfg, report); err != nil {
		return nil, err
	}
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
