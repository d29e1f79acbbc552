package api

import (
	"compress/gzip"
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulldump/box"
)

// media types that are already compressed
var incompressible = []string{"image/", "font/", "video/", "audio/", "application/zip"}

var gzipWriters = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

func compressible(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return false
	}
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}

	mediaType := mime.TypeByExtension(filepath.Ext(r.URL.Path))
	for _, prefix := range incompressible {
		if strings.HasPrefix(mediaType, prefix) {
			return false
		}
	}
	return true
}

// Compression gzips the response body when the client accepts it.
func Compression(next box.H) box.H {
	return func(ctx context.Context) {
		c := box.GetBoxContext(ctx)
		if !compressible(c.Request) {
			next(ctx)
			return
		}

		w := c.Response
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")

		gz := gzipWriters.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			gz.Close()
			gzipWriters.Put(gz)
		}()

		c.Response = &gzipResponseWriter{gz: gz, ResponseWriter: w}
		next(ctx)
	}
}

type gzipResponseWriter struct {
	gz *gzip.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	// the length of the compressed body is unknown
	w.ResponseWriter.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}
