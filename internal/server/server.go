// Package server exposes the playlist catalog over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/catalog"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/cluster"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/export"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/parser"
)

// MaxManifestSize bounds the body accepted by POST /parse.
const MaxManifestSize = 32 << 20

// ClusterStatus reports Raft membership for the health endpoint.
type ClusterStatus interface {
	NodeID() string
	State() string
	LeaderAddr() string
	IsLeader() bool
}

// Server serves parsed playlists from a catalog
type Server struct {
	store      catalog.Store
	cluster    ClusterStatus
	port       int
	logger     *slog.Logger
	httpServer *http.Server
	now        func() time.Time
}

// New creates a new HTTP server
func New(store catalog.Store, port int, logger *slog.Logger) *Server {
	return &Server{
		store:  store,
		port:   port,
		logger: logger,
		now:    time.Now,
	}
}

// SetCluster attaches Raft status to the health endpoint.
func (s *Server) SetCluster(status ClusterStatus) {
	s.cluster = status
}

// Handler returns the routed handler wrapped in the logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register handlers
	mux.HandleFunc("POST /parse", s.handleParse)
	mux.HandleFunc("GET /playlists", s.handleList)
	mux.HandleFunc("GET /playlists/{name}", s.handleGet)
	mux.HandleFunc("DELETE /playlists/{name}", s.handleDelete)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server and blocks until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// entryView is the JSON form of a catalog entry.
type entryView struct {
	Name     string                  `json:"name"`
	Source   string                  `json:"source"`
	ParsedAt time.Time               `json:"parsed_at"`
	Playlist *export.PlaylistSummary `json:"playlist,omitempty"`
}

// listItem is one element of GET /playlists.
type listItem struct {
	Name            string    `json:"name"`
	Source          string    `json:"source"`
	ParsedAt        time.Time `json:"parsed_at"`
	Segments        int       `json:"segments"`
	Discontinuities int       `json:"discontinuities"`
	TotalDuration   float64   `json:"total_duration"`
}

// errorView is the JSON body of every error response.
type errorView struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Line  int    `json:"line,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// handleParse parses the request body and stores the result under ?name=
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := catalog.ValidateName(name); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}

	pl, err := parser.ParseReader(http.MaxBytesReader(w, r.Body, MaxManifestSize))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	entry := catalog.Entry{
		Name:     name,
		Source:   source,
		ParsedAt: s.now().UTC(),
		Playlist: pl,
	}
	if err := s.store.Put(entry); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.logger.Info("stored playlist",
		"name", name,
		"segments", len(pl.Segments),
		"discontinuities", len(pl.Discontinuities))

	s.writeJSON(w, http.StatusCreated, viewOf(entry))
}

// handleList serves a summary line for every stored playlist
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries := s.store.List()

	items := make([]listItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, listItem{
			Name:            e.Name,
			Source:          e.Source,
			ParsedAt:        e.ParsedAt,
			Segments:        len(e.Playlist.Segments),
			Discontinuities: len(e.Playlist.Discontinuities),
			TotalDuration:   e.Playlist.TotalDuration().Seconds(),
		})
	}

	s.writeJSON(w, http.StatusOK, items)
}

// handleGet serves one playlist as JSON, or as a normalized m3u8 document
// when the name carries a ".m3u8" suffix
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	asM3U8 := strings.HasSuffix(name, ".m3u8")
	if asM3U8 {
		name = strings.TrimSuffix(name, ".m3u8")
	}

	entry, err := s.store.Get(name)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	if !asM3U8 {
		s.writeJSON(w, http.StatusOK, viewOf(entry))
		return
	}

	var buf strings.Builder
	if err := export.WriteM3U8(&buf, entry.Playlist); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	// Set HLS-specific headers
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(buf.String()))
}

// handleDelete removes a playlist from the catalog
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.store.Delete(name); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.logger.Info("deleted playlist", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"playlists": s.store.Len(),
	}

	if s.cluster != nil {
		health["cluster"] = map[string]interface{}{
			"node_id":   s.cluster.NodeID(),
			"state":     s.cluster.State(),
			"leader":    s.cluster.LeaderAddr(),
			"is_leader": s.cluster.IsLeader(),
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

func viewOf(entry catalog.Entry) entryView {
	summary := export.Summarize(entry.Playlist)
	return entryView{
		Name:     entry.Name,
		Source:   entry.Source,
		ParsedAt: entry.ParsedAt,
		Playlist: &summary,
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		parseErr *parser.ParseError
		maxErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &maxErr), errors.Is(err, bufio.ErrTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, export.ErrUnencodable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrNotLeader):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	body := errorView{Error: err.Error()}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		body.Kind = parseErr.Kind.String()
		body.Line = parseErr.Line
		body.Tag = parseErr.Tag
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, body)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", duration,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
