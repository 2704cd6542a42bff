package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aduong/rebook/internal/library"
	"github.com/aduong/rebook/internal/reader"
	"github.com/aduong/rebook/internal/storage"
)

type bookView struct {
	storage.DocumentMeta
	Size string `json:"size"`
}

type listBooksResponse struct {
	Books []bookView        `json:"books"`
	Sort  library.SortOrder `json:"sort"`
	Busy  bool              `json:"uploading"`
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	if sort := r.URL.Query().Get("sort"); sort != "" {
		order, err := library.ParseSortOrder(sort)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		_ = s.library.SetSortOrder(order)
	}

	books := s.library.Books()
	views := make([]bookView, len(books))
	for i, b := range books {
		views[i] = bookView{DocumentMeta: b, Size: library.FormatFileSize(b.FileSize)}
	}
	writeJSON(w, http.StatusOK, listBooksResponse{
		Books: views,
		Sort:  s.library.SortOrder(),
		Busy:  s.library.IsUploading(),
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	meta, ok, err := s.library.Import(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	switch {
	case errors.Is(err, library.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "import failed")
	case !ok:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusCreated, meta)
	}
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if snap := s.reader.Snapshot(); snap.Document != nil && snap.Document.ID == id {
		if err := s.reader.Close(r.Context()); err != nil {
			s.logger.Warn("close session before delete", "id", id, "error", err)
		}
	}

	if err := s.library.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	cover, ok, err := s.library.Cover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cover lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no cover")
		return
	}
	if cover.MediaType != "" {
		w.Header().Set("Content-Type", cover.MediaType)
	}
	_, _ = w.Write(cover.Data)
}

type searchResponse struct {
	Query   string `json:"query"`
	Count   int    `json:"count"`
	Results any    `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	results, err := s.library.Search(query, limit)
	if errors.Is(err, library.ErrSearchUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Count: len(results), Results: results})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reader.Snapshot())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	err := s.reader.Open(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, reader.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, reader.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to load document")
	default:
		writeJSON(w, http.StatusOK, s.reader.Snapshot())
	}
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Close(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save progress")
		return
	}
	writeJSON(w, http.StatusOK, s.reader.Snapshot())
}

type locationRequest struct {
	CFI      string `json:"cfi"`
	Progress int    `json:"progress"`
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CFI == "" {
		writeError(w, http.StatusBadRequest, "cfi required")
		return
	}
	if err := s.reader.SaveProgress(req.CFI, req.Progress); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type navigateRequest struct {
	Href string `json:"href"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Href == "" {
		writeError(w, http.StatusBadRequest, "href required")
		return
	}
	if err := s.reader.Navigate(req.Href); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleResponse struct {
	Bookmark storage.Bookmark `json:"bookmark"`
	Added    bool             `json:"added"`
}

func (s *Server) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	mark, added, err := s.reader.ToggleBookmark(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Bookmark: mark, Added: added})
}

func (s *Server) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.RemoveBookmark(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "remove bookmark failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reader.ErrNotReady), errors.Is(err, reader.ErrNoLocation):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "session operation failed")
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load settings failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	st, err := s.settings.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load settings failed")
		return
	}
	// fields missing from the body keep their current values
	if err := json.Unmarshal(body, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings")
		return
	}

	saved, err := s.settings.Save(r.Context(), st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save settings failed")
		return
	}
	s.reader.ApplySettings(saved)
	writeJSON(w, http.StatusOK, saved)
}
