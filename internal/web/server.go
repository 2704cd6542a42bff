// Package web exposes the library and the reading session over a local
// JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aduong/rebook/internal/library"
	"github.com/aduong/rebook/internal/logging"
	"github.com/aduong/rebook/internal/reader"
	"github.com/aduong/rebook/internal/settings"
)

// Counter reports how many records a backing store holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// IndexCounter reports how many documents the search index holds.
type IndexCounter interface {
	Count() (uint64, error)
}

// Config wires a Server.
type Config struct {
	Library  *library.Controller
	Reader   *reader.Session
	Settings *settings.Store
	// Documents and Index feed /health; both are optional.
	Documents Counter
	Index     IndexCounter
	Logger    *slog.Logger
	// MaxUploadBytes caps multipart uploads; 0 disables the cap.
	MaxUploadBytes int64
}

type Server struct {
	library   *library.Controller
	reader    *reader.Session
	settings  *settings.Store
	documents Counter
	index     IndexCounter
	logger    *slog.Logger
	maxUpload int64
	router    chi.Router
}

func NewServer(cfg Config) *Server {
	s := &Server{
		library:   cfg.Library,
		reader:    cfg.Reader,
		settings:  cfg.Settings,
		documents: cfg.Documents,
		index:     cfg.Index,
		logger:    logging.OrDefault(cfg.Logger),
		maxUpload: cfg.MaxUploadBytes,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)

	r.Get("/health", s.handleHealth)
	r.Get("/blob/{id}", s.handleBlob)

	r.Route("/api", func(api chi.Router) {
		api.Get("/books", s.handleListBooks)
		api.Post("/books", s.handleImport)
		api.Delete("/books/{id}", s.handleDeleteBook)
		api.Get("/books/{id}/cover", s.handleCover)
		api.Get("/search", s.handleSearch)

		api.Route("/reader", func(rd chi.Router) {
			rd.Get("/", s.handleSnapshot)
			rd.Post("/open/{id}", s.handleOpen)
			rd.Post("/close", s.handleClose)
			rd.Post("/location", s.handleLocation)
			rd.Post("/navigate", s.handleNavigate)
			rd.Post("/bookmark", s.handleToggleBookmark)
			rd.Delete("/bookmarks/{id}", s.handleRemoveBookmark)
		})

		api.Get("/settings", s.handleGetSettings)
		api.Put("/settings", s.handlePutSettings)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"books_loaded":   len(s.library.Books()),
		"reader_state":   s.reader.Snapshot().State,
		"search_enabled": s.index != nil,
	}
	if s.documents != nil {
		if n, err := s.documents.Count(r.Context()); err == nil {
			resp["documents_in_db"] = n
		}
	}
	if s.index != nil {
		if n, err := s.index.Count(); err == nil {
			resp["documents_in_index"] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.reader.Blobs().Open(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(obj.Data)
}
