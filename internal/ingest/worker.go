// Package ingest imports every EPUB under a directory into the library.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aduong/rebook/internal/library"
	"github.com/aduong/rebook/internal/logging"
	"github.com/aduong/rebook/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when NewWorker gets a non-positive concurrency.
const DefaultConcurrency = 4

// Importer stores one payload. ok is false when the payload was ignored.
// MaxImportBytes is the largest payload Import accepts; 0 means no limit.
type Importer interface {
	Import(ctx context.Context, name, contentType string, data []byte) (meta storage.DocumentMeta, ok bool, err error)
	MaxImportBytes() int64
}

// Worker handles bulk imports from disk
type Worker struct {
	importer    Importer
	concurrency int
	logger      *slog.Logger
}

// NewWorker creates a new import worker
func NewWorker(importer Importer, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Worker{
		importer:    importer,
		concurrency: concurrency,
		logger:      logging.OrDefault(logger),
	}
}

// Stats holds import statistics
type Stats struct {
	Total      int
	Imported   int
	Skipped    int // not EPUB, or ignored by the importer
	Duplicates int // byte-identical to a file seen earlier in the same run
	Errors     int
	Duration   time.Duration
}

// ImportDir walks dir and imports every EPUB it finds. Per-file failures are
// counted in Stats and logged; the returned error is reserved for a failed
// walk or a cancelled context.
func (w *Worker) ImportDir(ctx context.Context, dir string) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	w.logger.Info("starting import", "dir", dir)

	// 1. Collect candidate files
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	stats.Total = len(files)
	var books []string
	for _, path := range files {
		if library.IsEPUB(filepath.Base(path), "") {
			books = append(books, path)
		} else {
			stats.Skipped++
		}
	}
	w.logger.Info("found files", "total", stats.Total, "epub", len(books))

	// 2. Import with bounded concurrency
	var (
		mu   sync.Mutex
		seen = make(map[string]string, len(books))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, path := range books {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := w.importFile(gctx, path, seen, &mu)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				w.logger.Warn("import failed", "path", path, "error", err)
				stats.Errors++
			case outcome == imported:
				stats.Imported++
			case outcome == duplicate:
				stats.Duplicates++
			default:
				stats.Skipped++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(startTime)
	w.logger.Info("import complete",
		"imported", stats.Imported, "duplicates", stats.Duplicates,
		"skipped", stats.Skipped, "errors", stats.Errors, "duration", stats.Duration)

	return stats, nil
}

type outcome int

const (
	skipped outcome = iota
	imported
	duplicate
)

// importFile imports a single file unless its content was already seen.
func (w *Worker) importFile(ctx context.Context, path string, seen map[string]string, mu *sync.Mutex) (outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return skipped, fmt.Errorf("stat file: %w", err)
	}
	if limit := w.importer.MaxImportBytes(); limit > 0 && info.Size() > limit {
		return skipped, fmt.Errorf("%w (%d > %d bytes)", library.ErrTooLarge, info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return skipped, fmt.Errorf("read file: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	mu.Lock()
	first, exists := seen[hash]
	if !exists {
		seen[hash] = path
	}
	mu.Unlock()
	if exists {
		w.logger.Debug("duplicate file", "path", path, "same_as", first)
		return duplicate, nil
	}

	meta, ok, err := w.importer.Import(ctx, filepath.Base(path), library.EPUBMediaType, data)
	if err != nil {
		return skipped, err
	}
	if !ok {
		return skipped, nil
	}

	w.logger.Debug("imported", "path", path, "id", meta.ID, "title", meta.Title)
	return imported, nil
}
