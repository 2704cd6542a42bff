package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aduong/rebook/internal/search"
	"github.com/aduong/rebook/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	meta Metadata
	err  error
}

func (s stubExtractor) ExtractMetadata(context.Context, []byte) (Metadata, error) {
	return s.meta, s.err
}

// failingStore wraps a real repository and fails selected operations.
type failingStore struct {
	Store
	failAdd    bool
	failDelete bool
	failList   bool
}

var errDisk = fmt.Errorf("disk full: %w", storage.ErrStorage)

func (f *failingStore) Add(ctx context.Context, doc storage.Document) error {
	if f.failAdd {
		return errDisk
	}
	return f.Store.Add(ctx, doc)
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	if f.failDelete {
		return errDisk
	}
	return f.Store.Delete(ctx, id)
}

func (f *failingStore) ListMeta(ctx context.Context) ([]storage.DocumentMeta, error) {
	if f.failList {
		return nil, errDisk
	}
	return f.Store.ListMeta(ctx)
}

type fixture struct {
	db    *storage.DB
	docs  *storage.DocumentRepository
	store *failingStore
	index *search.Index
	clock time.Time
	ids   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "rebook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx, err := search.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	docs := storage.NewDocumentRepository(db)
	return &fixture{
		db:    db,
		docs:  docs,
		store: &failingStore{Store: docs},
		index: idx,
		clock: time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func (f *fixture) controller(extractor MetadataExtractor) *Controller {
	return New(Config{
		Store:     f.store,
		Index:     f.index,
		Extractor: extractor,
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
		NewID: func() string {
			f.ids++
			return fmt.Sprintf("book-%d", f.ids)
		},
	})
}

func TestImportTwoMegabyteBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{err: errors.New("not an archive")})
	require.NoError(t, c.Load(ctx))

	// an older book so "first" is meaningful
	_, _, err := c.Import(ctx, "old.epub", "", []byte("old"))
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0x42}, 2*1024*1024)
	meta, ok, err := c.Import(ctx, "book.epub", "", payload)
	require.NoError(t, err)
	require.True(t, ok)

	assert.EqualValues(t, 2097152, meta.FileSize)
	assert.Equal(t, 0, meta.Progress)
	assert.Equal(t, meta.AddedAt, meta.LastReadAt)
	assert.Equal(t, UntitledLabel, meta.Title)
	assert.Equal(t, UnknownAuthorLabel, meta.Author)

	listed, err := f.docs.ListMeta(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, meta, listed[0])

	stored, ok, err := f.docs.Get(ctx, meta.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, stored.FileData)
	assert.Nil(t, stored.CoverData)

	assert.Equal(t, meta.ID, c.Books()[0].ID)
}

func TestImportStampsMatchStoredRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	local := time.FixedZone("UTC-5", -5*60*60)
	c := New(Config{
		Store:     f.store,
		Extractor: stubExtractor{meta: Metadata{Title: "Dune", Author: "Frank Herbert"}},
		Now:       func() time.Time { return time.Unix(1_700_000_011, 988_543_249).In(local) },
	})
	require.NoError(t, c.Load(ctx))

	meta, ok, err := c.Import(ctx, "dune.epub", "", []byte("epub"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1_700_000_011_988).UTC(), meta.AddedAt)

	listed, err := f.docs.ListMeta(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, listed[0], meta)
	assert.Equal(t, listed, c.Books())
}

func TestImportUsesExtractedMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{meta: Metadata{Title: "Dune", Author: "Frank Herbert", Cover: []byte("img"), CoverType: "image/jpeg"}})

	meta, ok, err := c.Import(ctx, "dune.EPUB", "", []byte("payload"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dune", meta.Title)
	assert.Equal(t, "Frank Herbert", meta.Author)

	cover, ok, err := c.Cover(ctx, meta.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storage.Cover{Data: []byte("img"), MediaType: "image/jpeg"}, cover)

	results, err := c.Search("dune", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, meta.ID, results[0].ID)
	assert.False(t, c.IsUploading())
}

func TestImportIgnoresNonEPUB(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{})

	meta, ok, err := c.Import(ctx, "notes.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, meta.ID)
	assert.Empty(t, c.Books())

	count, err := f.docs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, ok, err = c.Import(ctx, "download", "application/epub+zip; charset=binary", []byte("x"))
	require.NoError(t, err)
	assert.True(t, ok, "media type alone is enough")
}

func TestImportStoreFailureLeavesListUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{meta: Metadata{Title: "A"}})

	_, _, err := c.Import(ctx, "a.epub", "", []byte("a"))
	require.NoError(t, err)
	before := c.Books()

	f.store.failAdd = true
	_, ok, err := c.Import(ctx, "b.epub", "", []byte("b"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.False(t, ok)
	assert.Equal(t, before, c.Books())
	assert.False(t, c.IsUploading())
}

func TestImportSizeLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := New(Config{Store: f.store, Extractor: stubExtractor{}, MaxImportBytes: 4})

	_, ok, err := c.Import(ctx, "big.epub", "", []byte("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, ok)
	assert.Empty(t, c.Books())

	path := filepath.Join(t.TempDir(), "big.epub")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))
	_, _, err = c.ImportFile(ctx, path)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{meta: Metadata{Title: "On Disk"}})

	dir := t.TempDir()
	path := filepath.Join(dir, "disk.epub")
	require.NoError(t, os.WriteFile(path, []byte("zipzip"), 0o644))

	meta, ok, err := c.ImportFile(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "On Disk", meta.Title)
	assert.EqualValues(t, 6, meta.FileSize)

	_, ok, err = c.ImportFile(ctx, filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = c.ImportFile(ctx, filepath.Join(dir, "missing.epub"))
	assert.Error(t, err)
}

func TestSortOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	add := func(id, title string, added, read int64) {
		require.NoError(t, f.docs.Add(ctx, storage.Document{DocumentMeta: storage.DocumentMeta{
			ID: id, Title: title, Author: "x",
			AddedAt: time.UnixMilli(added).UTC(), LastReadAt: time.UnixMilli(read).UTC(),
		}}))
	}
	add("a", "beta", 100, 500)
	add("b", "Alpha", 300, 100)
	add("c", "Émile", 200, 300)
	add("d", "zeta", 50, 400)

	c := f.controller(stubExtractor{})
	require.NoError(t, c.Load(ctx))

	ids := func() []string {
		var out []string
		for _, b := range c.Books() {
			out = append(out, b.ID)
		}
		return out
	}

	assert.Equal(t, SortLastRead, c.SortOrder())
	assert.Equal(t, []string{"a", "d", "c", "b"}, ids())

	require.NoError(t, c.SetSortOrder(SortAdded))
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids())

	// Load fails from here on, so the orders below come from memory only.
	f.store.failList = true
	require.NoError(t, c.SetSortOrder(SortTitle))
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(), "collation ignores case and accents")

	err := c.SetSortOrder("rating")
	assert.ErrorIs(t, err, ErrUnknownSortOrder)
	assert.Equal(t, SortTitle, c.SortOrder())

	assert.Error(t, c.Load(ctx))
	assert.Len(t, c.Books(), 4, "failed reload keeps the list")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{meta: Metadata{Title: "Gone Girl"}})

	meta, _, err := c.Import(ctx, "a.epub", "", []byte("a"))
	require.NoError(t, err)
	marks := storage.NewBookmarkRepository(f.db)
	require.NoError(t, marks.Add(ctx, storage.Bookmark{ID: "m", BookID: meta.ID, CFI: "c", ChapterName: "One", CreatedAt: time.Now()}))

	f.store.failDelete = true
	require.Error(t, c.Delete(ctx, meta.ID))
	assert.Len(t, c.Books(), 1)

	f.store.failDelete = false
	require.NoError(t, c.Delete(ctx, meta.ID))
	assert.Empty(t, c.Books())

	left, err := marks.ListByDocument(ctx, meta.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	results, err := c.Search("gone", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProgressSavedUpdatesProjection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller(stubExtractor{})
	meta, _, err := c.Import(ctx, "a.epub", "", []byte("a"))
	require.NoError(t, err)

	at := meta.LastReadAt.Add(time.Hour)
	c.ProgressSaved(meta.ID, "epubcfi(/6/4)", 150, at)
	c.ProgressSaved("unknown", "x", 1, at)

	got, ok := c.Get(meta.ID)
	require.True(t, ok)
	assert.Equal(t, "epubcfi(/6/4)", got.LastLocation)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, at, got.LastReadAt)
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.docs.Add(ctx, storage.Document{DocumentMeta: storage.DocumentMeta{ID: "x", Title: "Middlemarch", Author: "George Eliot"}}))

	c := f.controller(stubExtractor{})
	n, err := c.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := c.Search("middlemarch", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	bare := New(Config{Store: f.store})
	_, err = bare.Search("x", 1)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	_, err = bare.Reindex(ctx, nil)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestIsEPUB(t *testing.T) {
	assert.True(t, IsEPUB("Book.EPUB", ""))
	assert.True(t, IsEPUB("blob", "application/epub+zip"))
	assert.False(t, IsEPUB("book.epub.txt", "text/plain"))
	assert.False(t, IsEPUB("", ""))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2*1024*1024))
}
