package storage

import (
	"context"
	"database/sql"
	"time"
)

// DocumentMeta is the listing projection of a document: every field except
// the binary payloads.
type DocumentMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	AddedAt      time.Time `json:"addedAt"`
	LastReadAt   time.Time `json:"lastReadAt"`
	LastLocation string    `json:"lastLocation,omitempty"` // renderer position token; empty until first save
	Progress     int       `json:"progress"`               // 0-100
	FileSize     int64     `json:"fileSize"`
}

// Document is an imported book together with its payload
type Document struct {
	DocumentMeta
	FileData  []byte `json:"-"`
	CoverData []byte `json:"-"` // nil when the book has no cover
	CoverType string `json:"-"`
}

// Meta returns the listing projection of d.
func (d Document) Meta() DocumentMeta {
	return d.DocumentMeta
}

// Cover is a cover image and its media type.
type Cover struct {
	Data      []byte
	MediaType string
}

// DocumentRepository reads and writes the documents collection.
// It does not cache: every call goes to the database.
type DocumentRepository struct {
	db  *DB
	now func() time.Time
}

// NewDocumentRepository creates a repository over db.
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

// SetClock replaces the clock used for lastReadAt updates.
func (r *DocumentRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Add inserts or overwrites a document by ID, payload included
func (r *DocumentRepository) Add(ctx context.Context, doc Document) error {
	query := `
	INSERT INTO documents (
		id, title, author, added_at, last_read_at, last_location,
		progress, file_size, file_data, cover_data, cover_type
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		author = excluded.author,
		added_at = excluded.added_at,
		last_read_at = excluded.last_read_at,
		last_location = excluded.last_location,
		progress = excluded.progress,
		file_size = excluded.file_size,
		file_data = excluded.file_data,
		cover_data = excluded.cover_data,
		cover_type = excluded.cover_type
	`

	fileData := doc.FileData
	if fileData == nil {
		fileData = []byte{}
	}

	_, err := r.db.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Author, toMillis(doc.AddedAt), toMillis(doc.LastReadAt),
		nullString(doc.LastLocation), doc.Progress, doc.FileSize, fileData,
		nullBytes(doc.CoverData), nullString(doc.CoverType),
	)
	if err != nil {
		return wrapErr("upsert document", err)
	}
	return nil
}

// ListMeta returns every document's metadata, most recently read first.
// Payload columns are never selected.
func (r *DocumentRepository) ListMeta(ctx context.Context) ([]DocumentMeta, error) {
	query := `
	SELECT id, title, author, added_at, last_read_at, last_location, progress, file_size
	FROM documents
	ORDER BY last_read_at DESC
	`

	rows, err := r.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("list documents", err)
	}
	defer rows.Close()

	docs := []DocumentMeta{}
	for rows.Next() {
		var (
			meta              DocumentMeta
			addedAt, lastRead int64
			location          sql.NullString
		)
		if err := rows.Scan(
			&meta.ID, &meta.Title, &meta.Author, &addedAt, &lastRead,
			&location, &meta.Progress, &meta.FileSize,
		); err != nil {
			return nil, wrapErr("scan document", err)
		}
		meta.AddedAt = fromMillis(addedAt)
		meta.LastReadAt = fromMillis(lastRead)
		meta.LastLocation = location.String
		docs = append(docs, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list documents", err)
	}

	return docs, nil
}

// Get retrieves a full document by ID
func (r *DocumentRepository) Get(ctx context.Context, id string) (Document, bool, error) {
	query := `
	SELECT id, title, author, added_at, last_read_at, last_location, progress,
	       file_size, file_data, cover_data, cover_type
	FROM documents
	WHERE id = ?
	`

	var (
		doc               Document
		addedAt, lastRead int64
		location          sql.NullString
		coverType         sql.NullString
	)
	err := r.db.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Title, &doc.Author, &addedAt, &lastRead, &location, &doc.Progress,
		&doc.FileSize, &doc.FileData, &doc.CoverData, &coverType,
	)
	if err == sql.ErrNoRows {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, wrapErr("get document", err)
	}

	doc.AddedAt = fromMillis(addedAt)
	doc.LastReadAt = fromMillis(lastRead)
	doc.LastLocation = location.String
	doc.CoverType = coverType.String
	if len(doc.CoverData) == 0 {
		doc.CoverData = nil
	}

	return doc, true, nil
}

// Cover retrieves just the cover image for a document
func (r *DocumentRepository) Cover(ctx context.Context, id string) (Cover, bool, error) {
	var (
		data      []byte
		mediaType sql.NullString
	)
	err := r.db.db.QueryRowContext(ctx,
		"SELECT cover_data, cover_type FROM documents WHERE id = ?", id,
	).Scan(&data, &mediaType)
	if err == sql.ErrNoRows {
		return Cover{}, false, nil
	}
	if err != nil {
		return Cover{}, false, wrapErr("get cover", err)
	}
	if len(data) == 0 {
		return Cover{}, false, nil
	}
	return Cover{Data: data, MediaType: mediaType.String}, true, nil
}

// UpdateProgress records the latest reading position and stamps lastReadAt,
// returning the stamp as stored. Unknown IDs are ignored: nothing is written
// and no error is returned.
func (r *DocumentRepository) UpdateProgress(ctx context.Context, id, location string, progress int) (time.Time, error) {
	progress = min(max(progress, 0), 100)
	at := fromMillis(toMillis(r.now()))

	_, err := r.db.db.ExecContext(ctx, `
	UPDATE documents
	SET last_location = ?, progress = ?, last_read_at = ?
	WHERE id = ?
	`, nullString(location), progress, toMillis(at), id)
	if err != nil {
		return time.Time{}, wrapErr("update progress", err)
	}
	return at, nil
}

// Delete removes a document and all of its bookmarks in one transaction
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
			return wrapErr("delete document", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM bookmarks WHERE book_id = ?", id); err != nil {
			return wrapErr("delete bookmarks", err)
		}
		return nil
	})
}

// Count returns the total number of documents
func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, wrapErr("count documents", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
