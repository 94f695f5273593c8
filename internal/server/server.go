// Package server exposes scrapes and text reconstruction over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"factsheet/internal/factsheet"
	"factsheet/internal/htmltext"
	"factsheet/internal/logging"
	"factsheet/internal/scrape"
	"factsheet/internal/store"
)

const (
	// ServiceName is reported by /health.
	ServiceName = "ehrms-scraper"

	maxJobBody   = 1 << 20
	maxParseBody = 8 << 20
	maxBatchJobs = 50
)

// History is the read side of the scrape history.
type History interface {
	Get(ctx context.Context, id string) (*store.Entry, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
}

// Options configures a Server.
type Options struct {
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	svc     *scrape.Service
	history History
	opts    Options
	logger  *zap.Logger
	mux     *http.ServeMux
}

// New creates the API. history may be nil when the store is disabled.
func New(svc *scrape.Service, history History, opts Options, logger *zap.Logger) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		svc:     svc,
		history: history,
		opts:    opts,
		logger:  logging.For(logger, logging.CategoryServer),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /scrape", s.handleScrape)
	s.mux.HandleFunc("POST /scrape/batch", s.handleBatch)
	s.mux.HandleFunc("POST /parse", s.handleParse)
	s.mux.HandleFunc("GET /history", s.handleHistoryList)
	s.mux.HandleFunc("GET /history/{id}", s.handleHistoryGet)
}

// Handler returns the API handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "UPSDC eHRMS Employee Fact Sheet Scraper. POST /scrape with JSON body to begin.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": ServiceName,
		"version": s.opts.Version,
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var job scrape.Job
	if err := decodeBody(w, r, maxJobBody, &job); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := s.svc.Run(r.Context(), job)
	if err != nil {
		s.writeScrapeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	Jobs []scrape.Job `json:"jobs"`
}

type batchResponse struct {
	OK    bool               `json:"ok"`
	Items []scrape.BatchItem `json:"items"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, maxJobBody, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(req.Jobs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "jobs must not be empty")
		return
	}
	if len(req.Jobs) > maxBatchJobs {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("at most %d jobs per batch", maxBatchJobs))
		return
	}

	items := s.svc.RunBatch(r.Context(), req.Jobs)
	ok := true
	for _, item := range items {
		if item.Result == nil {
			ok = false
		}
	}
	writeJSON(w, http.StatusOK, batchResponse{OK: ok, Items: items})
}

type parseRequest struct {
	Text string `json:"text"`
	HTML bool   `json:"html"`
}

type parseResponse struct {
	OK      bool                  `json:"ok"`
	Fields  *factsheet.Structured `json:"fields"`
	Records []factsheet.Record    `json:"records"`
	Pretty  string                `json:"pretty"`
	Meta    map[string]string     `json:"meta"`
}

// handleParse reconstructs text the caller already has: a JSON body
// {"text": ..., "html": bool}, or a raw text/plain or text/html body.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	mediaType, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	switch strings.TrimSpace(mediaType) {
	case "text/plain", "text/html":
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParseBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		req.Text = string(body)
		req.HTML = strings.TrimSpace(mediaType) == "text/html"
	default:
		if err := decodeBody(w, r, maxParseBody, &req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	text := req.Text
	if req.HTML {
		extracted, err := htmltext.ExtractString(text)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		text = extracted
	} else if flat, ok := factsheet.FlattenMapping(text); ok {
		text = flat
	}

	res := scrape.Build(text)
	writeJSON(w, http.StatusOK, parseResponse{
		OK:      true,
		Fields:  res.Fields,
		Records: res.Records,
		Pretty:  factsheet.Pretty(res.Records),
		Meta:    res.Meta,
	})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "scrape history is disabled")
		return
	}
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("history list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "scrape history is disabled")
		return
	}
	entry, err := s.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("history get failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) writeScrapeError(w http.ResponseWriter, err error) {
	status := scrape.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		s.logger.Error("scrape failed", zap.Error(err))
	}
	writeError(w, status, scrape.Detail(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeJSON encodes without HTML escaping so report values keep their
// ampersands and angle brackets.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"detail":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
