// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/deliver"
	"github.com/gaurav-prasanna/newsletterpipe/core/oracle"
	"github.com/gaurav-prasanna/newsletterpipe/core/pipeline"
	"github.com/gaurav-prasanna/newsletterpipe/core/session"
)

const (
	maxBodyBytes = 1 << 20
	maxWait      = 60 * time.Second
)

// Server routes HTTP requests to the orchestrator.
type Server struct {
	orch   *pipeline.Orchestrator
	board  *deliver.Board
	format core.PageFormat
	logger *slog.Logger
	router *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPageFormat sets the format used when a paginated request has none.
func WithPageFormat(f core.PageFormat) Option {
	return func(s *Server) { s.format = f }
}

// New creates a Server. board backs the polling endpoint and may be nil,
// in which case the endpoint always answers with no notices.
func New(orch *pipeline.Orchestrator, board *deliver.Board, opts ...Option) *Server {
	s := &Server{orch: orch, board: board, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleDelete)
			r.Post("/outline", s.handleOutline)
			r.Post("/markup", s.handleMarkup)
			r.Post("/paginated", s.handlePaginated)
			r.Get("/paginated.pdf", s.handleDownload)
			r.Get("/ready", s.handleReady)
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type createRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	if req.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.ID = id.String()
	}
	snap, created := s.orch.Open(r.Context(), req.ID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.orch.Sessions()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Cleanup(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type outlineRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.orch.Snapshot(id); err != nil {
		s.writeError(w, err)
		return
	}
	var req outlineRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	art, err := s.orch.RequestOutline(r.Context(), id, req.Input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

func (s *Server) handleMarkup(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.RequestMarkup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePaginated(w http.ResponseWriter, r *http.Request) {
	format := s.format
	if !s.decode(w, r, &format, true) {
		return
	}
	art, err := s.orch.RequestPaginated(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if snap.Paginated == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no paginated artifact", Code: "not_ready"})
		return
	}
	contentType := "application/pdf"
	if snap.Paginated.Engine == "html" {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Paginated.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Paginated.Data)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.orch.Snapshot(id); err != nil {
		s.writeError(w, err)
		return
	}
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	wait, _ := strconv.Atoi(r.URL.Query().Get("wait"))

	notices := []deliver.Notice{}
	if s.board != nil {
		if wait > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), min(time.Duration(wait)*time.Second, maxWait))
			defer cancel()
			if got := s.board.Wait(ctx, id, after); got != nil {
				notices = got
			}
		} else if got := s.board.Poll(id, after); got != nil {
			notices = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
	return false
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "code", code)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return http.StatusNotFound, "unknown_session"
	case errors.Is(err, session.ErrStageNotReady):
		return http.StatusConflict, "stage_not_ready"
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, session.ErrRetryExhausted):
		return http.StatusConflict, "retry_exhausted"
	case errors.Is(err, oracle.ErrQuota):
		return http.StatusTooManyRequests, "oracle_quota"
	case errors.Is(err, oracle.ErrTimeout):
		return http.StatusGatewayTimeout, "oracle_timeout"
	case errors.Is(err, oracle.ErrUnavailable):
		return http.StatusBadGateway, "oracle_unavailable"
	case errors.Is(err, core.ErrEngineUnavailable):
		return http.StatusBadGateway, "engine_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
