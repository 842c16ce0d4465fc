package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bucketd/bucketd/internal/bucket"
	"github.com/bucketd/bucketd/internal/config"
	"github.com/bucketd/bucketd/internal/notify"
	"github.com/bucketd/bucketd/internal/server"
	"github.com/bucketd/bucketd/internal/testutil"
)

func newCORSServer(t *testing.T, origins []string) *server.Server {
	t.Helper()
	logger := testutil.DiscardLogger()
	reg, err := bucket.NewRegistry(context.Background(), bucket.RegistryConfig{
		Root:    t.TempDir(),
		Buckets: []bucket.BucketConfig{{Name: "files"}},
	}, logger)
	testutil.NoError(t, err)

	cfg := config.Default()
	if origins != nil {
		cfg.Server.CORSAllowedOrigins = origins
	}
	return server.New(cfg, logger, reg, nil, notify.New(logger))
}

func TestCORSHeaders(t *testing.T) {
	srv := newCORSServer(t, []string{"http://example.com", "http://other.com"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "http://example.com, http://other.com")
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestCORSPreflight(t *testing.T) {
	srv := newCORSServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/buckets", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusNoContent)
	testutil.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "*")
	testutil.Equal(t, w.Header().Get("Access-Control-Max-Age"), "86400")
}

func TestCORSWildcard(t *testing.T) {
	srv := newCORSServer(t, nil) // defaults to ["*"]

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Header().Get("Access-Control-Allow-Origin"), "*")
}
