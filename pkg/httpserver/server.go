// Package httpserver exposes the segment directory and the Prometheus
// metrics registered by pkg/pipeline over plain HTTP (spec.md §6's
// external interfaces, worker type 5 of spec.md §5's concurrency
// model): a Start(ctx, addr)/Stop(ctx) shaped server with a small
// CORS/logging middleware chain and conservative http.Server timeouts.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// mimeByExt covers the two file types an HLS player ever requests from
// this server; net/http's own sniffing-based ServeMux guess is wrong
// for .m3u8, and .ts collides with MPEG transport's classic type on
// some OS mime.types entries.
var mimeByExt = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
}

// Server serves one pipeline's output directory as an HLS origin and
// exposes /metrics for Prometheus scraping.
type Server struct {
	dir        string
	logger     *slog.Logger
	httpServer *http.Server
}

// New builds a Server rooted at dir. dir must already exist; it is
// typically the same OutputDir a pipeline.Pipeline writes segments
// into.
func New(dir string, logger *slog.Logger) *Server {
	return &Server{dir: dir, logger: logger}
}

// Start binds addr and serves in the background. It returns once the
// listener either comes up or fails within the first 100ms, so a bind
// failure is reported immediately instead of discovered later by a
// caller blocked on ListenAndServe.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleSegmentFile)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withCORS(s.withLogging(mux)),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting http server", "address", addr, "dir", s.dir)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping http server")
	return s.httpServer.Shutdown(ctx)
}

// handleSegmentFile serves index.m3u8 and segment_N.ts straight out of
// the output directory, setting the content type HLS players expect
// rather than whatever http.ServeFile would sniff.
func (s *Server) handleSegmentFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.m3u8"
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}

	if ct, ok := mimeByExt[filepath.Ext(name)]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(s.dir, name))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
