package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
)

// ResultWriter checkpoints a run's result file. Every write replaces the
// whole file atomically: the payload goes to a temp file in the same
// directory, is synced, and is renamed over the target, so a reader never
// observes a partial result and a crash leaves the previous checkpoint
// intact.
type ResultWriter struct {
	mu   sync.Mutex
	path string
}

// NewResultWriter creates a writer for the given result path.
func NewResultWriter(path string) *ResultWriter {
	return &ResultWriter{path: path}
}

// Path returns the result file path.
func (w *ResultWriter) Path() string {
	return w.path
}

// Write marshals v and atomically replaces the result file with it.
func (w *ResultWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "runner: marshal result")
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "runner: create result dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "runner: create temp result")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "runner: write temp result")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "runner: sync temp result")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "runner: close temp result")
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		return eris.Wrap(err, "runner: rename result")
	}
	return nil
}

// ReadResult loads a checkpointed result file.
func ReadResult(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "runner: read result %s", path)
	}
	return json.RawMessage(data), nil
}
