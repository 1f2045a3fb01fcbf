package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tableio/internal/acquire"
	"github.com/JonMunkholm/tableio/internal/web/templates"
)

// multipartMemory is how much of a multipart upload is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// handleUpload persists every file of a multipart form under the "file" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Storage.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, err)
			return
		}
		s.respondError(w, r, errBadRequest("expected a multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.respondError(w, r, errBadRequest("no file provided"))
		return
	}

	saved := make([]acquire.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		up, err := s.service.SaveUpload(h.Filename, f)
		f.Close()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		saved = append(saved, up)
	}

	if isHTMX(r) {
		s.renderUploads(w, r, http.StatusCreated)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleListUploads lists persisted uploads, newest first.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		s.renderUploads(w, r, http.StatusOK)
		return
	}
	uploads, err := s.service.ListUploads()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if uploads == nil {
		uploads = []acquire.Upload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}

func (s *Server) renderUploads(w http.ResponseWriter, r *http.Request, status int) {
	uploads, err := s.service.ListUploads()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.UploadList(uploads).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err)
	}
}

// handleDeleteUpload removes one persisted upload.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteUpload(chi.URLParam(r, "uploadID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListMounts returns the configured file-browser roots.
func (s *Server) handleListMounts(w http.ResponseWriter, r *http.Request) {
	names := s.service.MountNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"mounts": names})
}

// handleBrowseMount lists the directory named by the "path" query parameter
// inside a mount.
func (s *Server) handleBrowseMount(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListMount(chi.URLParam(r, "mount"), r.URL.Query().Get("path"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []acquire.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
