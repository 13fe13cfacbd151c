// Package server exposes refine jobs and their results over HTTP.
//
// Routes:
//
//	GET    /healthz          → liveness
//	POST   /jobs             → submit a dump (request body, or a bucket object as JSON)
//	GET    /jobs             → all jobs
//	GET    /jobs/{id}        → one job with its log and progress
//	GET    /results          → refined dumps in the output directory
//	GET    /results/{name}   → download a refined dump
//	DELETE /results/{name}   → delete a refined dump
//	GET    /published        → refined dumps in the bucket
//	GET    /metrics          → Prometheus metrics
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/filestore"
	"github.com/koustreak/sqlrefine/internal/logger"
	"github.com/koustreak/sqlrefine/internal/results"
)

// Options wires a Server to its collaborators. Runner and Results are
// required; the rest is optional.
type Options struct {
	Runner  *Runner
	Results *results.Dir

	// Publisher lists published results; Store and Bucket let jobs read
	// dumps from object storage.
	Publisher *results.Publisher
	Store     filestore.Store
	Bucket    string

	// UploadDir receives dumps submitted in a request body. Empty means
	// the system temp directory.
	UploadDir      string
	MaxUploadBytes int64

	Metrics http.Handler
	Logger  *logger.Logger
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	log    *logger.Logger
	router chi.Router
}

// New builds the router for opts.
func New(opts Options) *Server {
	s := &Server{opts: opts, log: opts.Logger}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer returns an *http.Server serving the API on addr.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
	})

	r.Route("/results", func(r chi.Router) {
		r.Get("/", s.handleListResults)
		r.Get("/{name}", s.handleDownload)
		r.Delete("/{name}", s.handleDelete)
	})

	r.Get("/published", s.handleListPublished)

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	return r
}

// logRequests logs every request once it has been served.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Request(r.Method, r.URL.Path, status, time.Since(start))
	})
}

// --- responses ---

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code by its kind.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		})
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: errs.KindOf(err).String()})
}

func statusOf(err error) int {
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrStopped) {
		return http.StatusServiceUnavailable
	}
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
