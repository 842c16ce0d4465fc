package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bucketd/bucketd/internal/bucket"
	"github.com/bucketd/bucketd/internal/config"
	"github.com/bucketd/bucketd/internal/notify"
	"github.com/bucketd/bucketd/internal/server"
	"github.com/bucketd/bucketd/internal/testutil"
)

func newTestServer(t *testing.T, buckets ...bucket.BucketConfig) (*server.Server, *bucket.Registry) {
	t.Helper()
	logger := testutil.DiscardLogger()
	signer := bucket.NewURLSigner("test-signing-key")

	reg, err := bucket.NewRegistry(context.Background(), bucket.RegistryConfig{
		Root:    t.TempDir(),
		Signer:  signer,
		Buckets: buckets,
	}, logger)
	testutil.NoError(t, err)

	cfg := config.Default()
	srv := server.New(cfg, logger, reg, signer, notify.New(logger))
	return srv, reg
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	testutil.NoError(t, err)
	_, err = fw.Write([]byte(content))
	testutil.NoError(t, err)
	for k, v := range fields {
		testutil.NoError(t, mw.WriteField(k, v))
	}
	testutil.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *server.Server, bucketName, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/buckets/"+bucketName+"/files", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusOK)
	testutil.Equal(t, w.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, body["status"], "ok")
}

func TestListBuckets(t *testing.T) {
	srv, _ := newTestServer(t,
		bucket.BucketConfig{Name: "photos"},
		bucket.BucketConfig{Name: "files"},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/buckets", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusOK)
	var body struct {
		Items []string `json:"items"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.SliceLen(t, body.Items, 2)
	testutil.Equal(t, body.Items[0], "files")
	testutil.Equal(t, body.Items[1], "photos")
}

func TestUpload(t *testing.T) {
	srv, reg := newTestServer(t, bucket.BucketConfig{Name: "files"})

	w := doUpload(t, srv, "files", "hello.txt", "hi there", map[string]string{"keep_filename": "1"})
	testutil.Equal(t, w.Code, http.StatusCreated)

	var body struct {
		Bucket string `json:"bucket"`
		Path   string `json:"path"`
		URL    string `json:"url"`
		Size   int64  `json:"size"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, body.Bucket, "files")
	testutil.Equal(t, body.Path, "hello.txt")
	testutil.Equal(t, body.URL, "/_uploads/files/hello.txt")
	testutil.Equal(t, body.Size, int64(8))

	entry, _ := reg.Lookup("files")
	data, err := os.ReadFile(filepath.Join(entry.Local.Root(), "hello.txt"))
	testutil.NoError(t, err)
	testutil.Equal(t, string(data), "hi there")
}

func TestUploadRandomStemByDefault(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	w := doUpload(t, srv, "files", "hello.txt", "x", nil)
	testutil.Equal(t, w.Code, http.StatusCreated)

	var body struct {
		Path string `json:"path"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.True(t, strings.HasSuffix(body.Path, ".txt"))
	testutil.NotEqual(t, body.Path, "hello.txt")
}

func TestUploadPreferredName(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	w := doUpload(t, srv, "files", "hello.txt", "x", map[string]string{"name": "someguy/greeting."})
	testutil.Equal(t, w.Code, http.StatusCreated)

	var body struct {
		Path string `json:"path"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, body.Path, "someguy/greeting.txt")
}

func TestUploadUnknownBucket(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	w := doUpload(t, srv, "missing", "hello.txt", "x", nil)
	testutil.Equal(t, w.Code, http.StatusNotFound)
}

func TestUploadDeniedExtension(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	w := doUpload(t, srv, "files", "malware.exe", "x", nil)
	testutil.Equal(t, w.Code, http.StatusBadRequest)

	var resp struct {
		Message string `json:"message"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.Contains(t, resp.Message, "exe")
}

func TestUploadMissingFileField(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	testutil.NoError(t, mw.WriteField("name", "foo.txt"))
	testutil.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/buckets/files/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusBadRequest)
}

func TestDelete(t *testing.T) {
	srv, reg := newTestServer(t, bucket.BucketConfig{Name: "files"})
	doUpload(t, srv, "files", "hello.txt", "x", map[string]string{"keep_filename": "1"})

	req := httptest.NewRequest(http.MethodDelete, "/api/buckets/files/files/hello.txt", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusNoContent)
	entry, _ := reg.Lookup("files")
	_, err := os.Stat(filepath.Join(entry.Local.Root(), "hello.txt"))
	testutil.True(t, os.IsNotExist(err))

	// Deleting again is still a 204.
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/buckets/files/files/hello.txt", nil))
	testutil.Equal(t, w.Code, http.StatusNoContent)
}

func TestURLEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})
	doUpload(t, srv, "files", "hello.txt", "x", map[string]string{"keep_filename": "1"})

	req := httptest.NewRequest(http.MethodGet, "/api/buckets/files/urls/hello.txt", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusOK)
	var body struct {
		URL string `json:"url"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, body.URL, "/_uploads/files/hello.txt")
}

func TestURLEndpointSigned(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})
	doUpload(t, srv, "files", "hello.txt", "x", map[string]string{"keep_filename": "1"})

	req := httptest.NewRequest(http.MethodGet, "/api/buckets/files/urls/hello.txt?signed=true", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusOK)
	var body struct {
		URL string `json:"url"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Contains(t, body.URL, "/_uploads/files/hello.txt?token=")
}

func TestServeFile(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})
	doUpload(t, srv, "files", "hello.txt", "hi there", map[string]string{"keep_filename": "1"})

	req := httptest.NewRequest(http.MethodGet, "/_uploads/files/hello.txt", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusOK)
	data, err := io.ReadAll(w.Body)
	testutil.NoError(t, err)
	testutil.Equal(t, string(data), "hi there")
}

func TestServeMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	req := httptest.NewRequest(http.MethodGet, "/_uploads/files/nope.txt", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusNotFound)
}

func TestServeUnknownBucket(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "files"})

	req := httptest.NewRequest(http.MethodGet, "/_uploads/missing/foo.txt", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, w.Code, http.StatusNotFound)
}

func TestServePrivateBucket(t *testing.T) {
	srv, _ := newTestServer(t, bucket.BucketConfig{Name: "vault", Private: true})
	doUpload(t, srv, "vault", "secret.txt", "classified", map[string]string{"keep_filename": "1"})

	// No token: forbidden.
	req := httptest.NewRequest(http.MethodGet, "/_uploads/vault/secret.txt", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.Equal(t, w.Code, http.StatusForbidden)

	// A signed URL from the API grants access.
	req = httptest.NewRequest(http.MethodGet, "/api/buckets/vault/urls/secret.txt?signed=1", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.Equal(t, w.Code, http.StatusOK)

	var body struct {
		URL string `json:"url"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	req = httptest.NewRequest(http.MethodGet, body.URL, nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.Equal(t, w.Code, http.StatusOK)

	data, err := io.ReadAll(w.Body)
	testutil.NoError(t, err)
	testutil.Equal(t, string(data), "classified")

	// A token minted for another file does not transfer.
	req = httptest.NewRequest(http.MethodGet, "/_uploads/vault/secret.txt?token=bogus", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.Equal(t, w.Code, http.StatusForbidden)
}
