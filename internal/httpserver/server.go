package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"twarchive/pkg/logger"
	"twarchive/pkg/models"
)

// Snapshotter exposes the archived records
type Snapshotter interface {
	Snapshot() []models.Record
	Len() int
}

// PageRenderer renders records as an HTML page
type PageRenderer interface {
	Render(snapshot []models.Record) ([]byte, error)
}

// Assets describes the files the preview page links to relative to itself
type Assets struct {
	// Dir is the output directory holding the stylesheet and media
	Dir string
	// Stylesheet is the file name the page links to
	Stylesheet string
	// DefaultCSS is served while Stylesheet does not exist in Dir yet
	DefaultCSS []byte
	// MediaDirs are the Dir-relative media directories, e.g. profile_images
	MediaDirs []string
}

// Option configures a Server
type Option func(*Server)

// WithAssets serves the preview's stylesheet and media from the output
// directory next to /archive
func WithAssets(a Assets) Option {
	return func(s *Server) { s.assets = &a }
}

// Server serves health, metrics and a live preview of the archive
type Server struct {
	store      Snapshotter
	renderer   PageRenderer
	logger     logger.Logger
	assets     *Assets
	started    time.Time
	httpServer *http.Server
}

// New creates a Server listening on addr. metricsHandler may be nil.
func New(addr string, store Snapshotter, renderer PageRenderer, metricsHandler http.Handler, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{
		store:    store,
		renderer: renderer,
		logger:   log,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)

	r.Get("/healthz", s.handleHealth)
	r.Get("/archive", s.handleArchive)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	if s.assets != nil {
		s.mountAssets(r)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.LogComponentStart(s.logger, "http", map[string]interface{}{"addr": s.httpServer.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.LogComponentStop(s.logger, "http", "shutdown")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": s.store.Len(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, _ *http.Request) {
	page, err := s.renderer.Render(s.store.Snapshot())
	if err != nil {
		s.logger.WithError(err).Error("Failed to render archive preview")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// mountAssets serves only the stylesheet and the media directories, never
// the record logs that share the output directory
func (s *Server) mountAssets(r chi.Router) {
	a := s.assets
	files := http.FileServer(http.Dir(a.Dir))

	for _, dir := range a.MediaDirs {
		prefix := "/" + strings.Trim(path.Clean(filepath.ToSlash(dir)), "/")
		if prefix == "/" || prefix == "/." {
			continue
		}
		r.Handle(prefix+"/*", files)
	}

	if a.Stylesheet == "" || strings.Contains(a.Stylesheet, "://") {
		return
	}
	r.Get("/"+a.Stylesheet, func(w http.ResponseWriter, req *http.Request) {
		if _, err := os.Stat(filepath.Join(a.Dir, a.Stylesheet)); err == nil {
			files.ServeHTTP(w, req)
			return
		}
		if a.DefaultCSS == nil {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Write(a.DefaultCSS)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugWithFields("http request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		})
	})
}
