package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aduong/rebook/internal/library"
	"github.com/aduong/rebook/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImporter struct {
	mu    sync.Mutex
	names []string
	fail  map[string]error
	limit int64
}

func (f *fakeImporter) MaxImportBytes() int64 { return f.limit }

func (f *fakeImporter) Import(_ context.Context, name, _ string, data []byte) (storage.DocumentMeta, bool, error) {
	if err := f.fail[name]; err != nil {
		return storage.DocumentMeta{}, false, err
	}
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	return storage.DocumentMeta{ID: name, FileSize: int64(len(data))}, true, nil
}

func (f *fakeImporter) imported() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := append([]string(nil), f.names...)
	sort.Strings(names)
	return names
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.epub":        "book one",
		"copy.epub":     "book one",
		"notes.txt":     "not a book",
		"nested/b.EPUB": "book two",
		"bad.epub":      "broken",
		"c.epub":        "book three",
	})

	importer := &fakeImporter{fail: map[string]error{"bad.epub": errors.New("disk full")}}
	w := NewWorker(importer, 2, nil)

	stats, err := w.ImportDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.Imported)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Errors)
	assert.Positive(t, stats.Duration)

	names := importer.imported()
	require.Len(t, names, 3)
	assert.Contains(t, names, "b.EPUB")
	assert.Contains(t, names, "c.epub")
	copies := 0
	for _, n := range names {
		if n == "a.epub" || n == "copy.epub" {
			copies++
		}
	}
	assert.Equal(t, 1, copies, "exactly one of the identical files is imported: %v", names)
}

func TestImportDirRejectsOversizeBeforeReading(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"small.epub": "tiny",
		"big.epub":   "far too large",
	})

	importer := &fakeImporter{limit: 8}
	stats, err := NewWorker(importer, 1, nil).ImportDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, []string{"small.epub"}, importer.imported())
}

func TestOversizeFileReportsTooLarge(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"big.epub": "far too large"})

	w := NewWorker(&fakeImporter{limit: 8}, 1, nil)
	_, err := w.importFile(context.Background(), filepath.Join(dir, "big.epub"), map[string]string{}, &sync.Mutex{})
	assert.ErrorIs(t, err, library.ErrTooLarge)
}

func TestImportDirIgnoredByImporter(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.epub": "x"})

	w := NewWorker(ignoringImporter{}, 0, nil)
	stats, err := w.ImportDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Imported)
}

type ignoringImporter struct{}

func (ignoringImporter) MaxImportBytes() int64 { return 0 }

func (ignoringImporter) Import(context.Context, string, string, []byte) (storage.DocumentMeta, bool, error) {
	return storage.DocumentMeta{}, false, nil
}

func TestImportDirMissingDirectory(t *testing.T) {
	w := NewWorker(&fakeImporter{}, 1, nil)
	_, err := w.ImportDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestImportDirCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.epub": "x", "b.epub": "y"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	importer := &fakeImporter{}
	_, err := NewWorker(importer, 1, nil).ImportDir(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, importer.imported())
}
