// Package library keeps the in-memory book list in step with the document
// store: loading, sorting, importing and deleting books.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aduong/rebook/internal/logging"
	"github.com/aduong/rebook/internal/search"
	"github.com/aduong/rebook/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortOrder selects how Books orders the list.
type SortOrder string

const (
	SortLastRead SortOrder = "lastReadAt"
	SortAdded    SortOrder = "addedAt"
	SortTitle    SortOrder = "title"
)

var (
	// ErrUnknownSortOrder is returned for sort orders other than the three supported.
	ErrUnknownSortOrder = errors.New("unknown sort order")
	// ErrTooLarge is returned for payloads over the configured import limit.
	ErrTooLarge = errors.New("file exceeds import size limit")
	// ErrSearchUnavailable is returned by Search when no index is configured.
	ErrSearchUnavailable = errors.New("search index not configured")
)

// ParseSortOrder validates a sort order name.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortLastRead, SortAdded, SortTitle:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSortOrder, s)
}

// Store is the document persistence the controller needs.
type Store interface {
	Add(ctx context.Context, doc storage.Document) error
	ListMeta(ctx context.Context) ([]storage.DocumentMeta, error)
	Cover(ctx context.Context, id string) (storage.Cover, bool, error)
	Delete(ctx context.Context, id string) error
}

// Index is the optional full-text index kept alongside the store.
type Index interface {
	IndexDocument(doc *search.IndexedDocument) error
	Delete(id string) error
	Search(query string, limit int) ([]*search.SearchResult, error)
	Rebuild(docs []storage.DocumentMeta, progress func(current, total int)) error
}

// Config wires a Controller.
type Config struct {
	Store     Store
	Index     Index             // optional
	Extractor MetadataExtractor // defaults to EPUBExtractor
	Logger    *slog.Logger
	// MaxImportBytes rejects larger payloads; 0 disables the limit.
	MaxImportBytes int64
	Now            func() time.Time
	NewID          func() string
	// Language drives title collation; defaults to language.Und.
	Language language.Tag
}

// Controller mirrors the stored library in memory.
type Controller struct {
	store     Store
	index     Index
	extractor MetadataExtractor
	logger    *slog.Logger
	maxBytes  int64
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	books    []storage.DocumentMeta
	order    SortOrder
	collator *collate.Collator

	uploading atomic.Int32
}

// New creates a controller. Call Load to populate it.
func New(cfg Config) *Controller {
	c := &Controller{
		store:     cfg.Store,
		index:     cfg.Index,
		extractor: cfg.Extractor,
		logger:    logging.OrDefault(cfg.Logger),
		maxBytes:  cfg.MaxImportBytes,
		now:       cfg.Now,
		newID:     cfg.NewID,
		order:     SortLastRead,
		collator:  collate.New(cfg.Language, collate.IgnoreCase),
	}
	if c.extractor == nil {
		c.extractor = EPUBExtractor{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = newDocumentID
	}
	return c
}

func newDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load replaces the in-memory list with the store's contents. On failure the
// current list is kept.
func (c *Controller) Load(ctx context.Context) error {
	books, err := c.store.ListMeta(ctx)
	if err != nil {
		c.logger.Error("load library", "error", err)
		return fmt.Errorf("load library: %w", err)
	}

	c.mu.Lock()
	c.books = books
	c.mu.Unlock()

	c.logger.Debug("library loaded", "books", len(books))
	return nil
}

// Books returns a sorted copy of the list.
func (c *Controller) Books() []storage.DocumentMeta {
	c.mu.Lock()
	defer c.mu.Unlock()

	books := make([]storage.DocumentMeta, len(c.books))
	copy(books, c.books)

	switch c.order {
	case SortTitle:
		sort.SliceStable(books, func(i, j int) bool {
			return c.collator.CompareString(books[i].Title, books[j].Title) < 0
		})
	case SortAdded:
		sort.SliceStable(books, func(i, j int) bool {
			return books[i].AddedAt.After(books[j].AddedAt)
		})
	default:
		sort.SliceStable(books, func(i, j int) bool {
			return books[i].LastReadAt.After(books[j].LastReadAt)
		})
	}
	return books
}

// Get returns one book from the in-memory list.
func (c *Controller) Get(id string) (storage.DocumentMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.books {
		if b.ID == id {
			return b, true
		}
	}
	return storage.DocumentMeta{}, false
}

// SortOrder returns the current order.
func (c *Controller) SortOrder() SortOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

// SetSortOrder changes how Books orders the list. Nothing is refetched.
func (c *Controller) SetSortOrder(order SortOrder) error {
	if _, err := ParseSortOrder(string(order)); err != nil {
		return err
	}
	c.mu.Lock()
	c.order = order
	c.mu.Unlock()
	return nil
}

// MaxImportBytes returns the payload size limit; 0 means no limit.
func (c *Controller) MaxImportBytes() int64 {
	return c.maxBytes
}

// IsUploading reports whether an import is in flight.
func (c *Controller) IsUploading() bool {
	return c.uploading.Load() > 0
}

// Import stores a new book. Files that are not EPUBs are ignored: the result
// is ok=false with a nil error and nothing is written. The in-memory list
// only changes after the store accepted the record.
func (c *Controller) Import(ctx context.Context, name, contentType string, data []byte) (storage.DocumentMeta, bool, error) {
	if !IsEPUB(name, contentType) {
		c.logger.Debug("import ignored", "name", name, "content_type", contentType)
		return storage.DocumentMeta{}, false, nil
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return storage.DocumentMeta{}, false, fmt.Errorf("import %s: %w (%d > %d bytes)", name, ErrTooLarge, len(data), c.maxBytes)
	}

	c.uploading.Add(1)
	defer c.uploading.Add(-1)

	meta, err := c.extractor.ExtractMetadata(ctx, data)
	if err != nil {
		c.logger.Warn("metadata extraction failed, using fallbacks", "name", name, "error", err)
	}
	meta = withFallbacks(meta)

	now := c.now().UTC().Truncate(time.Millisecond)
	doc := storage.Document{
		DocumentMeta: storage.DocumentMeta{
			ID:         c.newID(),
			Title:      meta.Title,
			Author:     meta.Author,
			AddedAt:    now,
			LastReadAt: now,
			Progress:   0,
			FileSize:   int64(len(data)),
		},
		FileData:  data,
		CoverData: meta.Cover,
		CoverType: meta.CoverType,
	}

	if err := c.store.Add(ctx, doc); err != nil {
		c.logger.Error("import failed", "name", name, "error", err)
		return storage.DocumentMeta{}, false, fmt.Errorf("import %s: %w", name, err)
	}

	if c.index != nil {
		if err := c.index.IndexDocument(search.FromMeta(doc.Meta())); err != nil {
			c.logger.Warn("index book", "id", doc.ID, "error", err)
		}
	}

	c.mu.Lock()
	c.books = append([]storage.DocumentMeta{doc.Meta()}, c.books...)
	c.mu.Unlock()

	c.logger.Info("book imported", "id", doc.ID, "title", doc.Title, "bytes", doc.FileSize)
	return doc.Meta(), true, nil
}

// ImportFile imports a file from disk.
func (c *Controller) ImportFile(ctx context.Context, path string) (storage.DocumentMeta, bool, error) {
	name := filepath.Base(path)
	if !IsEPUB(name, "") {
		return storage.DocumentMeta{}, false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return storage.DocumentMeta{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if c.maxBytes > 0 && info.Size() > c.maxBytes {
		return storage.DocumentMeta{}, false, fmt.Errorf("import %s: %w (%d > %d bytes)", name, ErrTooLarge, info.Size(), c.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return storage.DocumentMeta{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Import(ctx, name, EPUBMediaType, data)
}

// Delete removes a book and its bookmarks, then drops it from the list.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		c.logger.Error("delete failed", "id", id, "error", err)
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if c.index != nil {
		if err := c.index.Delete(id); err != nil {
			c.logger.Warn("unindex book", "id", id, "error", err)
		}
	}

	c.mu.Lock()
	kept := c.books[:0:0]
	for _, b := range c.books {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	c.books = kept
	c.mu.Unlock()

	c.logger.Info("book deleted", "id", id)
	return nil
}

// Cover returns a book's cover image.
func (c *Controller) Cover(ctx context.Context, id string) (storage.Cover, bool, error) {
	return c.store.Cover(ctx, id)
}

// ProgressSaved updates the in-memory projection after a reading session
// persisted progress.
func (c *Controller) ProgressSaved(id, location string, progress int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.books {
		if c.books[i].ID == id {
			c.books[i].LastLocation = location
			c.books[i].Progress = min(max(progress, 0), 100)
			c.books[i].LastReadAt = at
			return
		}
	}
}

// Search queries the full-text index.
func (c *Controller) Search(query string, limit int) ([]*search.SearchResult, error) {
	if c.index == nil {
		return nil, ErrSearchUnavailable
	}
	return c.index.Search(query, limit)
}

// Reindex rebuilds the full-text index from the store.
func (c *Controller) Reindex(ctx context.Context, progress func(current, total int)) (int, error) {
	if c.index == nil {
		return 0, ErrSearchUnavailable
	}
	books, err := c.store.ListMeta(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	if err := c.index.Rebuild(books, progress); err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return len(books), nil
}
