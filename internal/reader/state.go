package reader

import (
	"context"
	"errors"
	"time"

	"github.com/aduong/rebook/internal/navigation"
	"github.com/aduong/rebook/internal/settings"
	"github.com/aduong/rebook/internal/storage"
)

var (
	// ErrDocumentNotFound is the failure of a load whose id is not stored.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrLoadFailed is the failure of a load the store could not serve.
	ErrLoadFailed = errors.New("failed to load document")
	// ErrNotReady is returned by operations that need a loaded document.
	ErrNotReady = errors.New("no document is open")
	// ErrSuperseded is returned by a load overtaken by a newer Open or Close.
	ErrSuperseded = errors.New("load superseded")
	// ErrNoLocation is returned by ToggleBookmark before the first location report.
	ErrNoLocation = errors.New("no current location")
)

// State is the lifecycle of one document-open.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Documents is the document access a session needs.
type Documents interface {
	Get(ctx context.Context, id string) (storage.Document, bool, error)
	UpdateProgress(ctx context.Context, id, location string, progress int) (time.Time, error)
}

// Bookmarks is the bookmark access a session needs.
type Bookmarks interface {
	ListByDocument(ctx context.Context, bookID string) ([]storage.Bookmark, error)
	Add(ctx context.Context, mark storage.Bookmark) error
	Remove(ctx context.Context, id string) error
	FindByPosition(ctx context.Context, bookID, cfi string) (storage.Bookmark, bool, error)
}

// Renderer is a navigation renderer that can also be loaded and styled.
type Renderer interface {
	navigation.Renderer
	// Load opens source and displays location, or the start when location
	// is empty.
	Load(ctx context.Context, source, location string) error
	ApplyStyles(styles settings.Styles)
}

// ProgressObserver is told about every progress write that reached the store.
type ProgressObserver func(id, location string, progress int, at time.Time)

// Snapshot is the session state exposed to the UI.
type Snapshot struct {
	State     State                 `json:"state"`
	Error     string                `json:"error,omitempty"`
	Document  *storage.DocumentMeta `json:"document,omitempty"`
	Source    string                `json:"source,omitempty"`
	Location  string                `json:"location,omitempty"`
	TOC       []navigation.TOCItem  `json:"toc"`
	Chapter   string                `json:"chapter,omitempty"`
	Progress  int                   `json:"progress"`
	Loading   bool                  `json:"loading"`
	Bookmarks []storage.Bookmark    `json:"bookmarks"`
	Settings  settings.Settings     `json:"settings"`
}
