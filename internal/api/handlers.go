package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/storage"
	"github.com/mistware/files/internal/upload"
)

// FolderResponse is returned by folder operations.
type FolderResponse struct {
	Folder string `json:"folder"`
}

// ListResponse is returned by the file listing.
type ListResponse struct {
	Folder string                   `json:"folder"`
	Files  []storage.DirectoryEntry `json:"files"`
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	Folder string   `json:"folder"`
	Files  []string `json:"files"`
}

func (s *Server) handleMakeFolder(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := s.session().MakeDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, FolderResponse{Folder: folder})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := s.session().DeleteDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	sess := s.session()
	if err := sess.ChangeDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	entries, err := sess.FileList(r.Context())
	if err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	if entries == nil {
		entries = []storage.DirectoryEntry{}
	}
	s.sendJSON(w, http.StatusOK, ListResponse{Folder: folder, Files: entries})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	sess := s.session()
	if err := sess.ChangeDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}

	res, err := upload.Run(r.Context(), r.Header.Get("Content-Type"), r.Body, sess, upload.Options{
		Folder:    folder,
		Filename:  r.URL.Query().Get("filename"),
		SizeLimit: s.upload.SizeLimit,
		Permitted: s.upload.Permitted,
		Registry:  s.upload.Registry,
	})
	if err != nil {
		s.sendStorageError(w, r, err)
		return
	}

	switch res.Status {
	case upload.StatusOK:
		s.sendJSON(w, http.StatusCreated, UploadResponse{Folder: folder, Files: res.Files})
	case http.StatusRequestEntityTooLarge:
		s.sendError(w, r, res.Status, fmt.Sprintf("file too large: max %d bytes", s.upload.SizeLimit))
	default:
		s.sendError(w, r, res.Status, "unsupported file type")
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	name := chi.URLParam(r, "name")
	sess := s.session()
	if err := sess.ChangeDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	exists, err := sess.FileExists(r.Context(), name)
	if err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	if !exists {
		s.sendError(w, r, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if err := sess.FileDownload(r.Context(), name, w); err != nil {
		// Headers may already be sent; the client sees a truncated body.
		logging.WithContext(r.Context()).Error("download failed",
			zap.String("folder", folder),
			zap.String("name", name),
			zap.Error(err))
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	name := chi.URLParam(r, "name")
	sess := s.session()
	if err := sess.ChangeDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	if err := sess.FileDelete(r.Context(), name); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyFile(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	name := chi.URLParam(r, "name")
	target := r.URL.Query().Get("to")
	if target == "" {
		s.sendError(w, r, http.StatusBadRequest, "target folder required")
		return
	}
	sess := s.session()
	if err := sess.ChangeDirectory(r.Context(), folder); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	if err := sess.FileCopy(r.Context(), name, target); err != nil {
		s.sendStorageError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, FolderResponse{Folder: target})
}

// statusFor maps storage and ingest errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, storage.ErrNotReady),
		errors.Is(err, upload.ErrMalformedRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendStorageError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.sendError(w, r, code, "internal error")
		return
	}
	s.sendError(w, r, code, err.Error())
}
