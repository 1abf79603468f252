// Package server serves the captured content tree over HTTP for local
// playback: inline text types, images, byte-range capable video, and a
// download fallback for everything else.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

var inlineTypes = map[string]string{
	".vtt":  "text/vtt; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".json": "application/json; charset=utf-8",
}

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var videoTypes = map[string]string{
	".mp4": "video/mp4",
	".mkv": "video/x-matroska",
	".avi": "video/x-msvideo",
}

var downloadTypes = map[string]string{
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".py":   "text/x-python",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".hwp":  "application/x-hwp",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
}

// Server is the file/video HTTP server rooted at one content directory.
type Server struct {
	root string
	log  *zap.Logger
}

func New(root string, log *zap.Logger) *Server {
	return &Server{root: root, log: log}
}

// Router builds the chi router: the per-lecture files API plus the
// catch-all file handler. CORS is wide open; this serves a LAN player,
// not the internet.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
		MaxAge:         300,
	}))
	r.Use(s.logRequests)
	r.Use(noCache)

	r.Get("/api/files/{classId}/{lectureId}", s.handleFileList)
	r.Get("/*", s.handleFile)
	return r
}

// ListenAndServe runs the server until it fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("server listening", zap.String("addr", addr), zap.String("root", s.root))
	return srv.ListenAndServe()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// handleFileList returns the attachment names stored for one lecture. A
// missing directory is an empty list, never an error.
func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	dir := filepath.Join(s.root, "classes",
		chi.URLParam(r, "classId"), chi.URLParam(r, "lectureId"), "files")

	files := []string{}
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			files = append(files, e.Name())
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string][]string{"files": files})
}

// resolve maps a request path onto the content root, rejecting any path
// that would escape it.
func (s *Server) resolve(reqPath string) (string, error) {
	decoded, err := url.PathUnescape(reqPath)
	if err != nil {
		return "", err
	}
	clean := path.Clean("/" + decoded)
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	filePath, err := s.resolve(r.URL.Path)
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch {
	case inlineTypes[ext] != "":
		s.serveWhole(w, filePath, inlineTypes[ext])
	case imageTypes[ext] != "":
		s.serveWhole(w, filePath, imageTypes[ext])
	case videoTypes[ext] != "":
		s.serveVideo(w, r, filePath, videoTypes[ext], info.Size())
	default:
		s.serveDownload(w, filePath, ext)
	}
}

func (s *Server) serveWhole(w http.ResponseWriter, filePath, contentType string) {
	f, err := os.Open(filePath)
	if err != nil {
		s.internalError(w, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", contentType)
	io.Copy(w, f)
}

// serveVideo streams a video file, honoring a single bytes=start-end range
// when present. The end bound defaults to the last byte.
func (s *Server) serveVideo(w http.ResponseWriter, r *http.Request, filePath, contentType string, size int64) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		s.streamRange(w, filePath, 0, size-1, http.StatusOK)
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Invalid Range", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	s.streamRange(w, filePath, start, end, http.StatusPartialContent)
}

func (s *Server) streamRange(w http.ResponseWriter, filePath string, start, end int64, status int) {
	f, err := os.Open(filePath)
	if err != nil {
		s.internalError(w, err)
		return
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(status)
	io.CopyN(w, f, end-start+1)
}

// parseRange parses a "bytes=start-end" header. Only the single-range form
// is supported; the end offset defaults to size-1 when omitted.
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, fmt.Errorf("bad range start %q", header)
	}
	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("bad range end %q", header)
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, nil
}

// serveDownload sends any other file as an attachment, with the MIME type
// looked up by extension and octet-stream as the fallback.
func (s *Server) serveDownload(w http.ResponseWriter, filePath, ext string) {
	contentType := downloadTypes[ext]
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	f, err := os.Open(filePath)
	if err != nil {
		s.internalError(w, err)
		return
	}
	defer f.Close()

	name := filepath.Base(filePath)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	io.Copy(w, f)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", zap.Error(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
