package search

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aduong/rebook/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func meta(id, title, author string) storage.DocumentMeta {
	return storage.DocumentMeta{ID: id, Title: title, Author: author, AddedAt: time.UnixMilli(1_700_000_000_000).UTC()}
}

func TestIndexAndSearch(t *testing.T) {
	idx := newMemIndex(t)

	require.NoError(t, idx.IndexDocument(FromMeta(meta("a", "The Whale Road", "Herman Melville"))))
	require.NoError(t, idx.IndexDocument(FromMeta(meta("b", "Pride and Prejudice", "Jane Austen"))))

	results, err := idx.Search("whales", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "english analyzer stems titles")
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "The Whale Road", results[0].Title)
	assert.Equal(t, "Herman Melville", results[0].Author)
	assert.Positive(t, results[0].Score)

	results, err = idx.Search("austen", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	results, err = idx.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteAndCount(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.IndexDocument(FromMeta(meta("a", "Dune", "Frank Herbert"))))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, idx.Delete("a"))
	results, err := idx.Search("dune", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRebuildReplacesContents(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.IndexDocument(FromMeta(meta("stale", "Removed Book", "Nobody"))))

	var calls [][2]int
	docs := []storage.DocumentMeta{
		meta("a", "Dune", "Frank Herbert"),
		meta("b", "Emma", "Jane Austen"),
	}
	require.NoError(t, idx.Rebuild(docs, func(current, total int) {
		calls = append(calls, [2]int{current, total})
	}))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, [][2]int{{2, 2}}, calls)

	results, err := idx.Search("removed", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, idx.Rebuild(nil, nil))
	count, err = idx.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpenPersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.IndexDocument(FromMeta(meta("a", "Dune", "Frank Herbert"))))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()

	count, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
