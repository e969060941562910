// Package api serves the file store over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/metrics"
	"github.com/mistware/files/internal/storage"
	"github.com/mistware/files/internal/upload"
)

// UploadOptions are the ingest settings shared by every upload request.
type UploadOptions struct {
	SizeLimit int64
	Permitted []string
	Registry  *upload.Registry
}

// Server is the HTTP API server. It shares one backend across requests and
// gives each request its own storage.Session.
type Server struct {
	backend storage.Backend
	upload  UploadOptions
}

// NewServer creates a new API server.
func NewServer(backend storage.Backend, opts UploadOptions) *Server {
	return &Server{backend: backend, upload: opts}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(metrics.Middleware(routePattern))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1/folders/{folder}", func(r chi.Router) {
		r.Post("/", s.handleMakeFolder)
		r.Delete("/", s.handleDeleteFolder)

		r.Get("/files", s.handleListFiles)
		r.Post("/files", s.handleUpload)
		r.Get("/files/{name}", s.handleDownload)
		r.Delete("/files/{name}", s.handleDeleteFile)
		r.Post("/files/{name}/copy", s.handleCopyFile)
	})

	return r
}

// routePattern labels request metrics by chi route rather than raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func (s *Server) session() *storage.Session {
	return storage.NewSession(s.backend)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"backend":  s.backend.Type(),
		"location": s.backend.Location(),
	})
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	s.sendJSON(w, code, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: logging.RequestID(r.Context()),
	})
}
