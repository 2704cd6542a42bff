package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateBookmark is returned by Add when the unique position index is
// enabled and a bookmark already exists at the same (book, cfi).
var ErrDuplicateBookmark = errors.New("bookmark already exists at this position")

// Bookmark is a saved reading position inside a document
type Bookmark struct {
	ID          string    `json:"id"`
	BookID      string    `json:"bookId"`
	CFI         string    `json:"cfi"`
	ChapterName string    `json:"chapterName"`
	Excerpt     string    `json:"excerpt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BookmarkRepository reads and writes the bookmarks collection.
type BookmarkRepository struct {
	db *DB
}

// NewBookmarkRepository creates a repository over db.
func NewBookmarkRepository(db *DB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

// ListByDocument returns a document's bookmarks, newest first
func (r *BookmarkRepository) ListByDocument(ctx context.Context, bookID string) ([]Bookmark, error) {
	rows, err := r.db.db.QueryContext(ctx, `
	SELECT id, book_id, cfi, chapter_name, excerpt, created_at
	FROM bookmarks
	WHERE book_id = ?
	ORDER BY created_at DESC
	`, bookID)
	if err != nil {
		return nil, wrapErr("list bookmarks", err)
	}
	defer rows.Close()

	marks := []Bookmark{}
	for rows.Next() {
		mark, err := scanBookmark(rows)
		if err != nil {
			return nil, wrapErr("scan bookmark", err)
		}
		marks = append(marks, mark)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list bookmarks", err)
	}
	return marks, nil
}

// Add inserts or overwrites a bookmark by ID
func (r *BookmarkRepository) Add(ctx context.Context, mark Bookmark) error {
	_, err := r.db.db.ExecContext(ctx, `
	INSERT INTO bookmarks (id, book_id, cfi, chapter_name, excerpt, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		book_id = excluded.book_id,
		cfi = excluded.cfi,
		chapter_name = excluded.chapter_name,
		excerpt = excluded.excerpt,
		created_at = excluded.created_at
	`, mark.ID, mark.BookID, mark.CFI, mark.ChapterName, nullString(mark.Excerpt), toMillis(mark.CreatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("add bookmark %s: %w", mark.ID, ErrDuplicateBookmark)
		}
		return wrapErr("add bookmark", err)
	}
	return nil
}

// Remove deletes a bookmark by ID. Missing IDs are not an error.
func (r *BookmarkRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id); err != nil {
		return wrapErr("remove bookmark", err)
	}
	return nil
}

// FindByPosition returns the bookmark at exactly (bookID, cfi), if any.
//
// Callers use this as an existence check before Add. The check and the
// insert are separate statements, so two concurrent callers can both see no
// bookmark and both insert unless the store was opened with
// WithUniqueBookmarkPositions.
func (r *BookmarkRepository) FindByPosition(ctx context.Context, bookID, cfi string) (Bookmark, bool, error) {
	row := r.db.db.QueryRowContext(ctx, `
	SELECT id, book_id, cfi, chapter_name, excerpt, created_at
	FROM bookmarks
	WHERE book_id = ? AND cfi = ?
	ORDER BY created_at ASC
	LIMIT 1
	`, bookID, cfi)

	mark, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return Bookmark{}, false, nil
	}
	if err != nil {
		return Bookmark{}, false, wrapErr("find bookmark", err)
	}
	return mark, true, nil
}

// Count returns the total number of bookmarks
func (r *BookmarkRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookmarks").Scan(&count); err != nil {
		return 0, wrapErr("count bookmarks", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (Bookmark, error) {
	var (
		mark      Bookmark
		excerpt   sql.NullString
		createdAt int64
	)
	if err := row.Scan(&mark.ID, &mark.BookID, &mark.CFI, &mark.ChapterName, &excerpt, &createdAt); err != nil {
		return Bookmark{}, err
	}
	mark.Excerpt = excerpt.String
	mark.CreatedAt = fromMillis(createdAt)
	return mark, nil
}
