package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tutord/internal/common/fsutil"
	"tutord/pkg/types"
)

// ErrModelNotFound is returned by Resolve when no model matches.
var ErrModelNotFound = errors.New("model not found")

// LoadDir scans a directory for *.gguf files, sorted by ID.
// ID is the full filename (including extension); Path is the absolute file path.
func LoadDir(dir string) ([]types.Model, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !isGGUF(e.Name()) {
			continue
		}
		p := filepath.Join(abs, e.Name())
		size, err := fsutil.StatFile(p)
		if err != nil {
			continue
		}
		models = append(models, types.Model{ID: e.Name(), Path: p, Size: size})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func isGGUF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gguf")
}

// Resolve locates the model id. id may be an absolute or '~' path to a file, a
// filename inside dir, or a filename without the .gguf extension. An empty id
// selects the first model in dir.
func Resolve(dir, id string) (types.Model, error) {
	if looksLikePath(id) {
		p, err := fsutil.Resolve(id)
		if err != nil {
			return types.Model{}, err
		}
		size, err := fsutil.StatFile(p)
		if err != nil {
			return types.Model{}, fmt.Errorf("%w: %v", ErrModelNotFound, err)
		}
		return types.Model{ID: filepath.Base(p), Path: p, Size: size}, nil
	}
	models, err := LoadDir(dir)
	if err != nil {
		return types.Model{}, err
	}
	if id == "" {
		if len(models) == 0 {
			return types.Model{}, fmt.Errorf("%w: no .gguf files in %s", ErrModelNotFound, dir)
		}
		return models[0], nil
	}
	for _, m := range models {
		if m.ID == id || strings.EqualFold(strings.TrimSuffix(m.ID, filepath.Ext(m.ID)), id) {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("%w: %s in %s", ErrModelNotFound, id, dir)
}

func looksLikePath(id string) bool {
	return strings.HasPrefix(id, "~") || filepath.IsAbs(id) || strings.ContainsRune(id, os.PathSeparator)
}
