package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "things.json")
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore[int](storePath(t))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMergeAndSaveUnion(t *testing.T) {
	s := NewStore[int](storePath(t))

	require.NoError(t, s.MergeAndSave(map[string]int{"A": 1, "B": 2}))
	require.NoError(t, s.MergeAndSave(map[string]int{"B": 3, "C": 4}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1, "B": 3, "C": 4}, got)
}

func TestMergeAndSavePreservesHandEdits(t *testing.T) {
	path := storePath(t)
	s := NewStore[string](path)
	require.NoError(t, s.MergeAndSave(map[string]string{"isbn-1": "OL1M"}))

	// Simulate a hand edit between runs.
	edited := map[string]string{"isbn-1": "OL1M", "isbn-2": "OL2M-hand-fixed"}
	data, err := json.MarshalIndent(edited, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	// A later run touching an unrelated key must keep the edit.
	require.NoError(t, s.MergeAndSave(map[string]string{"isbn-3": "OL3M"}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "OL2M-hand-fixed", got["isbn-2"])
	assert.Len(t, got, 3)
}

func TestEmptyUpdatesIsNoOp(t *testing.T) {
	path := storePath(t)
	s := NewStore[int](path)

	require.NoError(t, s.MergeAndSave(map[string]int{}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file should be created for an empty merge")
}

func TestCorruptFileSurfacedNotReplaced(t *testing.T) {
	path := storePath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore[int](path)

	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))
	assert.Contains(t, err.Error(), path, "error must name the offending file")

	// MergeAndSave must refuse to write over the corrupt file.
	err = s.MergeAndSave(map[string]int{"A": 1})
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))

	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(raw), "corrupt file left untouched for recovery")
}

func TestWrongShapeIsCorrupt(t *testing.T) {
	path := storePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`["a","list"]`), 0o644))

	_, err := NewStore[int](path).Load()
	assert.True(t, IsCorrupt(err))
}

func TestSaveIsDeterministic(t *testing.T) {
	path := storePath(t)
	s := NewStore[string](path)
	require.NoError(t, s.MergeAndSave(map[string]string{"zeta": "z", "alpha": "a", "mid": "m"}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Re-saving the same logical content must produce identical bytes.
	require.NoError(t, s.MergeAndSave(map[string]string{"mid": "m"}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	path := storePath(t)
	s := NewStore[int](path)
	require.NoError(t, s.MergeAndSave(map[string]int{"A": 1}))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestStructValuesRoundTrip(t *testing.T) {
	type rec struct {
		Name string   `json:"name"`
		Tags []string `json:"tags,omitempty"`
	}
	s := NewStore[rec](storePath(t))
	require.NoError(t, s.MergeAndSave(map[string]rec{"k": {Name: "n", Tags: []string{"x"}}}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, rec{Name: "n", Tags: []string{"x"}}, got["k"])
}

func TestConcurrentWritersLoseNothing(t *testing.T) {
	s := NewStore[int](storePath(t))

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			return s.MergeAndSave(map[string]int{fmt.Sprintf("key-%d", w): w})
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, got, 8, "every writer's key must survive the interleaving")
}
