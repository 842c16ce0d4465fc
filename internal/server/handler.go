package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bucketd/bucketd/internal/bucket"
	"github.com/bucketd/bucketd/internal/httputil"
	"github.com/bucketd/bucketd/internal/notify"
	"github.com/go-chi/chi/v5"
)

type uploadResponse struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
}

type urlResponse struct {
	URL string `json:"url"`
}

type bucketsResponse struct {
	Items []string `json:"items"`
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, bucketsResponse{Items: s.registry.Names()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	if _, ok := s.registry.Lookup(name); !ok {
		httputil.WriteError(w, http.StatusNotFound, "bucket not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize)
	if err := r.ParseMultipartForm(s.maxFileSize); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "missing \"file\" field in multipart form")
		return
	}
	defer file.Close()

	bkt, err := bucket.New(name, s.registry)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rel, err := bkt.Save(r.Context(), &bucket.Upload{
		Filename: header.Filename,
		Content:  file,
	}, bucket.SaveOptions{
		Name:         r.FormValue("name"),
		Public:       formBool(r, "public"),
		KeepFilename: formBool(r, "keep_filename"),
	})
	if err != nil {
		s.writeBucketError(w, err)
		return
	}

	u, err := bkt.URL(r.Context(), rel)
	if err != nil {
		s.writeBucketError(w, err)
		return
	}

	s.notifier.Publish(r.Context(), notify.Event{
		Type:   notify.EventUploaded,
		Bucket: name,
		Path:   rel,
		Size:   header.Size,
	})

	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{
		Bucket: name,
		Path:   rel,
		URL:    u,
		Size:   header.Size,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	rel := chi.URLParam(r, "*")

	bkt, err := bucket.New(name, s.registry)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := bkt.Delete(r.Context(), rel); err != nil {
		s.writeBucketError(w, err)
		return
	}

	s.notifier.Publish(r.Context(), notify.Event{
		Type:   notify.EventDeleted,
		Bucket: name,
		Path:   rel,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	rel := chi.URLParam(r, "*")

	bkt, err := bucket.New(name, s.registry)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var u string
	if formBoolValue(r.URL.Query().Get("signed")) {
		u, err = bkt.SignedURL(r.Context(), rel)
	} else {
		u, err = bkt.URL(r.Context(), rel)
	}
	if err != nil {
		s.writeBucketError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, urlResponse{URL: u})
}

// handleServe streams a locally stored file back to the client. Cloud
// buckets that delete their staged copies return 404 here; their URLs
// point at the object store instead.
func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	rel := chi.URLParam(r, "*")

	entry, ok := s.registry.Lookup(name)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "bucket not found")
		return
	}
	if entry.Private {
		token := r.URL.Query().Get("token")
		if s.signer == nil || !s.signer.Verify(name, rel, token) {
			httputil.WriteError(w, http.StatusForbidden, "invalid or expired download token")
			return
		}
	}

	root := entry.Local.Root()
	target := filepath.Join(root, filepath.FromSlash(rel))
	// Join cleans the path; anything escaping the bucket root is hostile.
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid file path")
		return
	}

	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		httputil.WriteError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, target)
}

// writeBucketError maps storage errors onto the API's status codes.
func (s *Server) writeBucketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bucket.ErrNotAllowed),
		errors.Is(err, bucket.ErrNestedFolder),
		errors.Is(err, bucket.ErrInvalidName):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bucket.ErrBucketNotFound):
		httputil.WriteError(w, http.StatusNotFound, "bucket not found")
	case errors.Is(err, bucket.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, bucket.ErrTransient):
		s.logger.Error("upstream storage error", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "object store unavailable")
	default:
		s.logger.Error("storage error", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func formBool(r *http.Request, field string) bool {
	return formBoolValue(r.FormValue(field))
}

func formBoolValue(v string) bool {
	return v == "true" || v == "1"
}
