package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, zap.NewNop()), root
}

func writeTestFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func videoFixture(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestRangeRequest(t *testing.T) {
	srv, root := newTestServer(t)
	data := videoFixture(1000)
	writeTestFile(t, root, "movie.mp4", data)

	req := httptest.NewRequest("GET", "/movie.mp4", nil)
	req.Header.Set("Range", "bytes=100-199")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 100-199/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "100" {
		t.Errorf("Content-Length = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[100:200]) {
		t.Error("body does not match bytes [100,199]")
	}
}

func TestRangeRequestOpenEnd(t *testing.T) {
	srv, root := newTestServer(t)
	data := videoFixture(1000)
	writeTestFile(t, root, "movie.mkv", data)

	req := httptest.NewRequest("GET", "/movie.mkv", nil)
	req.Header.Set("Range", "bytes=900-")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 900-999/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[900:]) {
		t.Error("body does not match tail bytes")
	}
	if rec.Header().Get("Content-Type") != "video/x-matroska" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestFullVideoWithoutRange(t *testing.T) {
	srv, root := newTestServer(t)
	data := videoFixture(1000)
	writeTestFile(t, root, "movie.mp4", data)

	req := httptest.NewRequest("GET", "/movie.mp4", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 1000 {
		t.Errorf("body length = %d, want 1000", rec.Body.Len())
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Error("Accept-Ranges header missing")
	}
}

func TestMissingFileIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/nope.mp4", "/deep/path/nope.vtt", "/nope.unknownext"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestPathTraversalStaysUnderRoot(t *testing.T) {
	srv, root := newTestServer(t)
	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/%2e%2e/secret.txt", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("traversal status = %d, want 404", rec.Code)
	}
}

func TestInlineTypes(t *testing.T) {
	srv, root := newTestServer(t)
	writeTestFile(t, root, "subs/ko.vtt", []byte("WEBVTT\n"))
	writeTestFile(t, root, "page.html", []byte("<html></html>"))

	req := httptest.NewRequest("GET", "/subs/ko.vtt", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/vtt; charset=utf-8" {
		t.Errorf("vtt Content-Type = %q", got)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("inline type must not force a download")
	}
	if rec.Header().Get("Cache-Control") != "no-cache" {
		t.Error("no-cache header missing")
	}
}

func TestUnknownExtensionDownloads(t *testing.T) {
	srv, root := newTestServer(t)
	writeTestFile(t, root, "archive.xyz", []byte("blob"))

	req := httptest.NewRequest("GET", "/archive.xyz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got == "" {
		t.Error("Content-Disposition missing for download")
	}
}

func TestKnownDownloadType(t *testing.T) {
	srv, root := newTestServer(t)
	writeTestFile(t, root, "doc.pdf", []byte("%PDF"))

	req := httptest.NewRequest("GET", "/doc.pdf", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestFileListAPI(t *testing.T) {
	srv, root := newTestServer(t)
	writeTestFile(t, root, "classes/c1/001_lec1/files/worksheet.pdf", []byte("x"))
	writeTestFile(t, root, "classes/c1/001_lec1/files/notes.zip", []byte("y"))

	req := httptest.NewRequest("GET", "/api/files/c1/001_lec1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Files) != 2 {
		t.Errorf("files = %v", body.Files)
	}
}

func TestFileListAPIMissingDir(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/files/ghost/000_none", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("missing dir must not error, status = %d", rec.Code)
	}
	raw, _ := io.ReadAll(rec.Body)
	var body struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("bad body %q: %v", raw, err)
	}
	if body.Files == nil || len(body.Files) != 0 {
		t.Errorf("files = %v, want []", body.Files)
	}
}
