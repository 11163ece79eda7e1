package results

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc(scenario, mode, timestamp string) *Document {
	return &Document{
		Scenario:  scenario,
		Mode:      mode,
		Timestamp: timestamp,
		Checks:    []CheckResult{{Check: "file_contains", Passed: true}},
		Score:     Score{Total: 50, MaxTotal: 100, Percentage: 50.0},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "results"))
	require.NoError(t, err)

	doc := testDoc("integration-simple", ModeBaseline, "2025-06-01T10:00:00Z")
	path, err := store.Save(doc)
	require.NoError(t, err)
	assert.Equal(t, store.Path("integration-simple", ModeBaseline), path)

	got, err := store.Load("integration-simple", ModeBaseline)
	require.NoError(t, err)
	assert.Equal(t, doc.Scenario, got.Scenario)
	assert.Equal(t, doc.Score.Total, got.Score.Total)
}

func TestStoreSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Save(testDoc("a", ModeBaseline, "2025-06-01T10:00:00Z"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope", ModeBaseline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "result not found")
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Save(testDoc("alpha", ModeBaseline, "2025-06-01T09:00:00Z"))
	require.NoError(t, err)
	_, err = store.Save(testDoc("alpha", ModeWithPlugin, "2025-06-01T11:00:00Z"))
	require.NoError(t, err)
	_, err = store.Save(testDoc("beta", ModeBaseline, "2025-06-01T10:00:00Z"))
	require.NoError(t, err)

	// Junk that must not break listing.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))

	docs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, ModeWithPlugin, docs[0].Mode)
	assert.Equal(t, "beta", docs[1].Scenario)
	assert.Equal(t, "2025-06-01T09:00:00Z", docs[2].Timestamp)
}

func TestStoreLogPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	path, err := store.LogPath("alpha", ModeBaseline)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs", "alpha-baseline.log"), path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteDocumentCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.json")
	require.NoError(t, WriteDocument(testDoc("a", ModeBaseline, "2025-06-01T10:00:00Z"), path))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Scenario)
}

func TestLoadDocumentMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := LoadDocument(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}
