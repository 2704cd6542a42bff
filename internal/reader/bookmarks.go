package reader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aduong/rebook/internal/storage"
)

// DefaultBookmarkLabel names bookmarks taken outside any known chapter.
const DefaultBookmarkLabel = "Bookmark"

// Bookmarks returns the open document's bookmarks, newest first.
func (s *Session) Bookmarks() []storage.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bookmarks)
}

// AddBookmark bookmarks cfi in the open document. When a bookmark already
// exists at cfi it is returned with added=false and nothing is written.
//
// The existence check and the insert are separate store calls. Concurrent
// adds at the same position can both insert unless the store enforces
// unique positions, in which case the loser gets the winner's bookmark.
func (s *Session) AddBookmark(ctx context.Context, cfi, chapter, excerpt string) (mark storage.Bookmark, added bool, err error) {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return storage.Bookmark{}, false, ErrNotReady
	}
	bookID, gen := s.doc.ID, s.gen
	s.mu.Unlock()

	if cfi == "" {
		return storage.Bookmark{}, false, ErrNoLocation
	}

	existing, found, err := s.marks.FindByPosition(ctx, bookID, cfi)
	if err != nil {
		return storage.Bookmark{}, false, fmt.Errorf("add bookmark: %w", err)
	}
	if found {
		return existing, false, nil
	}

	mark = storage.Bookmark{
		ID:          s.newID(),
		BookID:      bookID,
		CFI:         cfi,
		ChapterName: chapter,
		Excerpt:     excerpt,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.marks.Add(ctx, mark); err != nil {
		if errors.Is(err, storage.ErrDuplicateBookmark) {
			if existing, found, ferr := s.marks.FindByPosition(ctx, bookID, cfi); ferr == nil && found {
				return existing, false, nil
			}
		}
		s.logger.Error("add bookmark", "book_id", bookID, "error", err)
		return storage.Bookmark{}, false, fmt.Errorf("add bookmark: %w", err)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.bookmarks = append([]storage.Bookmark{mark}, s.bookmarks...)
	}
	s.mu.Unlock()

	s.logger.Debug("bookmark added", "id", mark.ID, "book_id", bookID, "cfi", cfi)
	return mark, true, nil
}

// RemoveBookmark deletes a bookmark. Unknown ids are not an error.
func (s *Session) RemoveBookmark(ctx context.Context, id string) error {
	if err := s.marks.Remove(ctx, id); err != nil {
		s.logger.Error("remove bookmark", "id", id, "error", err)
		return fmt.Errorf("remove bookmark: %w", err)
	}

	s.mu.Lock()
	s.bookmarks = slices.DeleteFunc(s.bookmarks, func(b storage.Bookmark) bool {
		return b.ID == id
	})
	s.mu.Unlock()
	return nil
}

// IsBookmarked reports whether the open document has a bookmark at cfi.
func (s *Session) IsBookmarked(cfi string) bool {
	if cfi == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.bookmarks, func(b storage.Bookmark) bool {
		return b.CFI == cfi
	})
}

// ToggleBookmark removes the bookmark at the current location, or adds one
// labelled with the current chapter. added reports which happened.
func (s *Session) ToggleBookmark(ctx context.Context) (mark storage.Bookmark, added bool, err error) {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return storage.Bookmark{}, false, ErrNotReady
	}
	location, chapter := s.location, s.chapter
	idx := slices.IndexFunc(s.bookmarks, func(b storage.Bookmark) bool {
		return b.CFI == location
	})
	if idx >= 0 {
		mark = s.bookmarks[idx]
	}
	s.mu.Unlock()

	if location == "" {
		return storage.Bookmark{}, false, ErrNoLocation
	}
	if idx >= 0 {
		return mark, false, s.RemoveBookmark(ctx, mark.ID)
	}
	if chapter == "" {
		chapter = DefaultBookmarkLabel
	}
	return s.AddBookmark(ctx, location, chapter, "")
}
