package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/results"
)

// objectRequest is the JSON body of a job reading from object storage.
type objectRequest struct {
	Bucket  string `json:"bucket"`
	Object  string `json:"object"`
	Publish bool   `json:"publish"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var (
		req Request
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		req, err = s.objectSource(r)
	} else {
		req, err = s.uploadSource(w, r)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.opts.Runner.Submit(r.Context(), req)
	if err != nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) objectSource(r *http.Request) (Request, error) {
	var body objectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		return Request{}, errs.Wrap(errs.ErrKindInvalidInput, "decode job request", err)
	}
	if s.opts.Store == nil {
		return Request{}, errs.New(errs.ErrKindInvalidInput, "no object store configured")
	}
	if body.Object == "" {
		return Request{}, errs.New(errs.ErrKindInvalidInput, "object is required")
	}
	bucket := body.Bucket
	if bucket == "" {
		bucket = s.opts.Bucket
	}
	if _, err := s.opts.Store.StatObject(r.Context(), bucket, body.Object); err != nil {
		return Request{}, err
	}
	return Request{
		Source:  datasource.NewObject(s.opts.Store, bucket, body.Object),
		Publish: body.Publish,
	}, nil
}

// uploadSource stores the request body as the dump named by the "name"
// query parameter. The file is removed once its job finishes.
func (s *Server) uploadSource(w http.ResponseWriter, r *http.Request) (Request, error) {
	q := r.URL.Query()
	name := q.Get("name")
	if !validUploadName(name) {
		return Request{}, errs.New(errs.ErrKindInvalidInput, "query parameter name must be a plain file name")
	}
	publish, _ := strconv.ParseBool(q.Get("publish"))

	dir, err := os.MkdirTemp(s.opts.UploadDir, "upload-")
	if err != nil {
		return Request{}, errs.FromFS("create upload dir", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, name)
	if err := saveBody(w, r, path, s.opts.MaxUploadBytes); err != nil {
		cleanup()
		return Request{}, err
	}
	return Request{Source: datasource.NewLocal(path), Publish: publish, Cleanup: cleanup}, nil
}

func saveBody(w http.ResponseWriter, r *http.Request, path string, limit int64) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.FromFS("create upload", err)
	}
	body := io.Reader(r.Body)
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	_, err = io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Wrap(errs.ErrKindInvalidInput, "dump exceeds upload limit", err)
		}
		return errs.Wrap(errs.ErrKindIO, "save upload", err)
	}
	return nil
}

func validUploadName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && name == filepath.Base(name)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.opts.Runner.Jobs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.opts.Runner.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	entries, err := s.opts.Results.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []results.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := s.opts.Results.Open(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		s.writeError(w, r, errs.FromFS("stat result", err))
		return
	}
	w.Header().Set("Content-Type", results.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Results.Remove(chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPublished(w http.ResponseWriter, r *http.Request) {
	if s.opts.Publisher == nil {
		s.writeError(w, r, errs.New(errs.ErrKindNotFound, "no object store configured"))
		return
	}
	objs, err := s.opts.Publisher.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, objs)
}
