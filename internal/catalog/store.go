// Package catalog persists the library caches and user maps as keyed JSON
// files. Files are the source of truth: humans edit them directly, so every
// write is a union merge that never drops a key the process did not touch,
// and a corrupt file is surfaced rather than replaced.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CorruptError reports a store file that exists but cannot be parsed. The
// file is left untouched for manual recovery; callers must not respond by
// rewriting it.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt store file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err carries a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// Store is a persistent string-keyed mapping backed by one JSON file.
// Load and MergeAndSave are the only operations; there is deliberately no
// way to delete or truncate through a Store.
type Store[V any] struct {
	path string

	// mu serializes writers within the process; the flock file extends
	// the same exclusion across processes.
	mu sync.Mutex
}

// NewStore returns a store over the JSON file at path. The file need not
// exist yet; it is created on the first save.
func NewStore[V any](path string) *Store[V] {
	return &Store[V]{path: path}
}

// Path returns the file backing this store.
func (s *Store[V]) Path() string { return s.path }

// Load reads the full mapping. A missing file is an empty mapping; a file
// that exists but does not parse is a CorruptError.
func (s *Store[V]) Load() (map[string]V, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]V{}, nil
		}
		return nil, eris.Wrapf(err, "catalog: read %s", s.path)
	}

	out := map[string]V{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	return out, nil
}

// MergeAndSave folds updates into the on-disk mapping and writes the union
// back atomically. Keys present in both use the updated value; keys only
// on disk are retained verbatim, which is what protects hand edits from a
// run that touched unrelated keys. An empty updates map is a no-op.
func (s *Store[V]) MergeAndSave(updates map[string]V) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrapf(err, "catalog: create parent dir for %s", s.path)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return eris.Wrapf(err, "catalog: lock %s", s.path)
	}
	defer func() { _ = lock.Unlock() }()

	merged, err := s.Load()
	if err != nil {
		// A corrupt file must never be replaced by a partial view of it.
		return err
	}
	maps.Copy(merged, updates)

	if err := s.writeAtomic(merged); err != nil {
		return err
	}

	zap.L().Debug("store saved",
		zap.String("path", s.path),
		zap.Int("updated", len(updates)),
		zap.Int("total", len(merged)),
	)
	return nil
}

// writeAtomic marshals the mapping with stable key order and swaps it into
// place with a same-directory temp file and rename, so a crash mid-write
// leaves the previous file intact.
func (s *Store[V]) writeAtomic(full map[string]V) error {
	data, err := json.MarshalIndent(full, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "catalog: marshal %s", s.path)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "catalog: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "catalog: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "catalog: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "catalog: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "catalog: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return eris.Wrapf(err, "catalog: replace %s", s.path)
	}
	return nil
}
