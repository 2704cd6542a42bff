package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aduong/rebook/internal/epub"
)

// EPUBMediaType is the registered media type for EPUB payloads.
const EPUBMediaType = "application/epub+zip"

// Fallback labels used when metadata cannot be read.
const (
	UntitledLabel      = "Untitled"
	UnknownAuthorLabel = "Unknown Author"
)

// Metadata is what an import learns about a payload.
type Metadata struct {
	Title     string
	Author    string
	Cover     []byte
	CoverType string
}

// MetadataExtractor reads title, author and cover from a payload.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, data []byte) (Metadata, error)
}

// EPUBExtractor extracts metadata from EPUB archives. A missing or unreadable
// cover is not an error.
type EPUBExtractor struct{}

func (EPUBExtractor) ExtractMetadata(ctx context.Context, data []byte) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	book, err := epub.Parse(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("extract metadata: %w", err)
	}

	meta := Metadata{Title: book.Title(), Author: book.Author()}
	cover, err := book.Cover()
	switch {
	case err == nil:
		meta.Cover = cover.Data
		meta.CoverType = cover.MediaType
	case errors.Is(err, epub.ErrNoCover):
	default:
		return meta, fmt.Errorf("extract cover: %w", err)
	}
	return meta, nil
}

// IsEPUB reports whether a file looks like an EPUB by name or media type.
func IsEPUB(name, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(name), ".epub") {
		return true
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), EPUBMediaType)
}

// withFallbacks fills blank labels and drops empty covers.
func withFallbacks(meta Metadata) Metadata {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Author = strings.TrimSpace(meta.Author)
	if meta.Title == "" {
		meta.Title = UntitledLabel
	}
	if meta.Author == "" {
		meta.Author = UnknownAuthorLabel
	}
	if len(meta.Cover) == 0 {
		meta.Cover, meta.CoverType = nil, ""
	}
	return meta
}

// FormatFileSize renders a byte count as B, KB or MB.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
