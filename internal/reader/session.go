// Package reader runs one reading session at a time: it loads a stored
// document for an external renderer, restores the last position, and keeps
// progress and bookmarks in the store while the document is open.
package reader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aduong/rebook/internal/blob"
	"github.com/aduong/rebook/internal/logging"
	"github.com/aduong/rebook/internal/navigation"
	"github.com/aduong/rebook/internal/settings"
	"github.com/aduong/rebook/internal/storage"
	"github.com/google/uuid"
)

// DefaultDebounce is how long progress writes wait for newer positions.
const DefaultDebounce = time.Second

const sourceType = "application/epub+zip"

// Config wires a Session.
type Config struct {
	Documents Documents
	Bookmarks Bookmarks
	Blobs     *blob.Registry // defaults to a private registry
	Logger    *slog.Logger
	Debounce  time.Duration
	Settings  settings.Settings
	// OnProgress is called after each successful progress write.
	OnProgress ProgressObserver
	Now        func() time.Time
	NewID      func() string
}

// Session owns the state of the open document. All methods are safe for
// concurrent use.
type Session struct {
	docs     Documents
	marks    Bookmarks
	blobs    *blob.Registry
	logger   *slog.Logger
	delay    time.Duration
	observer ProgressObserver
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	gen       uint64
	state     State
	err       error
	doc       *storage.DocumentMeta
	source    string
	location  string
	toc       []navigation.TOCItem
	chapter   string
	progress  int
	bookmarks []storage.Bookmark
	settings  settings.Settings
	renderer  Renderer
	host      navigation.Element

	// progress debounce
	seq     uint64
	pending *pendingProgress
	timer   *time.Timer
	timers  sync.WaitGroup
	writeMu sync.Mutex
	written uint64
}

// New creates an idle session.
func New(cfg Config) *Session {
	s := &Session{
		docs:     cfg.Documents,
		marks:    cfg.Bookmarks,
		blobs:    cfg.Blobs,
		logger:   logging.OrDefault(cfg.Logger),
		delay:    cfg.Debounce,
		observer: cfg.OnProgress,
		now:      cfg.Now,
		newID:    cfg.NewID,
		settings: cfg.Settings.Normalize(),
	}
	if s.blobs == nil {
		s.blobs = blob.NewRegistry()
	}
	if s.delay <= 0 {
		s.delay = DefaultDebounce
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Blobs returns the registry holding load sources.
func (s *Session) Blobs() *blob.Registry {
	return s.blobs
}

// Open ends the current session and loads document id. The returned error
// is also recorded in the snapshot: it wraps ErrDocumentNotFound or
// ErrLoadFailed. A load overtaken by another Open or Close returns
// ErrSuperseded and leaves no trace.
func (s *Session) Open(ctx context.Context, id string) error {
	if err := s.teardown(ctx); err != nil {
		s.logger.Warn("flush before open", "error", err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Loading
	s.mu.Unlock()

	s.logger.Debug("loading document", "id", id)
	doc, found, err := s.docs.Get(ctx, id)
	if err != nil {
		return s.fail(gen, id, fmt.Errorf("%w: %w", ErrLoadFailed, err))
	}
	if !found {
		return s.fail(gen, id, fmt.Errorf("%s: %w", id, ErrDocumentNotFound))
	}

	marks, err := s.marks.ListByDocument(ctx, id)
	if err != nil {
		s.logger.Warn("load bookmarks", "id", id, "error", err)
		marks = []storage.Bookmark{}
	}

	source := s.blobs.Create(doc.FileData, sourceType)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.blobs.Revoke(source)
		s.logger.Warn("discarding superseded load", "id", id)
		return ErrSuperseded
	}
	meta := doc.Meta()
	s.doc = &meta
	s.source = source
	s.location = doc.LastLocation
	s.progress = doc.Progress
	s.bookmarks = marks
	s.state = Ready
	s.mu.Unlock()

	s.logger.Debug("document ready", "id", id, "location", doc.LastLocation, "bookmarks", len(marks))
	return nil
}

func (s *Session) fail(gen uint64, id string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrSuperseded
	}
	s.state = Failed
	s.err = err
	s.logger.Error("load failed", "id", id, "error", err)
	return err
}

// Close ends the session. A pending progress write is persisted before Close
// returns, and the load source is revoked.
func (s *Session) Close(ctx context.Context) error {
	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	pending := s.takePendingLocked()
	if s.source != "" {
		s.blobs.Revoke(s.source)
	}
	s.state = Idle
	s.err = nil
	s.doc = nil
	s.source = ""
	s.location = ""
	s.toc = nil
	s.chapter = ""
	s.progress = 0
	s.bookmarks = nil
	s.renderer = nil
	s.host = nil
	s.mu.Unlock()

	s.timers.Wait()
	return s.write(ctx, pending)
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		Source:    s.source,
		Location:  s.location,
		TOC:       slices.Clone(s.toc),
		Chapter:   s.chapter,
		Progress:  s.progress,
		Loading:   s.state == Loading,
		Bookmarks: slices.Clone(s.bookmarks),
		Settings:  s.settings,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.doc != nil {
		doc := *s.doc
		snap.Document = &doc
	}
	if snap.TOC == nil {
		snap.TOC = []navigation.TOCItem{}
	}
	if snap.Bookmarks == nil {
		snap.Bookmarks = []storage.Bookmark{}
	}
	return snap
}

// Attach hands the loaded document to a renderer: styles first, then the
// load source at the restored location. host is scrolled when no content
// window can be.
func (s *Session) Attach(ctx context.Context, r Renderer, host navigation.Element) error {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.renderer, s.host = r, host
	gen, source, location := s.gen, s.source, s.location
	styles := s.settings.Styles()
	s.mu.Unlock()

	r.ApplyStyles(styles)
	if err := r.Load(ctx, source, location); err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.renderer, s.host = nil, nil
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return nil
}

// Detach forgets the renderer.
func (s *Session) Detach() {
	s.mu.Lock()
	s.renderer, s.host = nil, nil
	s.mu.Unlock()
}

// LocationChanged records a renderer position report. With a spine
// available it also recomputes progress and schedules a save.
func (s *Session) LocationChanged(loc navigation.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return
	}

	s.location = loc.CFI
	if label, ok := s.chapterLocked(loc); ok {
		s.chapter = label
	}

	if s.renderer == nil || loc.CFI == "" {
		return
	}
	progress, ok := navigation.SpineProgress(s.renderer)
	if !ok {
		return
	}
	s.progress = progress
	s.scheduleLocked(loc.CFI, progress)
}

func (s *Session) chapterLocked(loc navigation.Location) (string, bool) {
	if label, ok := navigation.ChapterLabel(s.toc, loc.CFI); ok {
		return label, true
	}
	return navigation.ChapterLabel(s.toc, loc.Href)
}

// TOCChanged replaces the cached table of contents.
func (s *Session) TOCChanged(toc []navigation.TOCItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return
	}
	s.toc = slices.Clone(toc)
}

// Navigate displays href in the attached renderer.
func (s *Session) Navigate(href string) error {
	s.mu.Lock()
	r := s.renderer
	s.mu.Unlock()
	if r == nil {
		return ErrNotReady
	}
	r.Display(href)
	return nil
}

// HandleKey routes an arrow key to scroll or chapter navigation.
func (s *Session) HandleKey(e *navigation.KeyEvent) bool {
	s.mu.Lock()
	r, host := s.renderer, s.host
	s.mu.Unlock()
	if r == nil {
		return false
	}
	d := navigation.Dispatcher{Renderer: r, Host: host}
	return d.HandleKey(e)
}

// ApplySettings stores the display settings and restyles the attached
// renderer. It returns the normalised settings.
func (s *Session) ApplySettings(st settings.Settings) settings.Settings {
	st = st.Normalize()

	s.mu.Lock()
	s.settings = st
	r := s.renderer
	s.mu.Unlock()

	if r != nil {
		r.ApplyStyles(st.Styles())
	}
	return st
}
