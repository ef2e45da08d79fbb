// Package api serves the run status and recorded telemetry over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/httputil"
	"github.com/banshee-data/lanepilot/internal/mission"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// StatusSource provides the live snapshot for /api/status.
type StatusSource interface {
	Snapshot() Snapshot
}

// RunStore is the read side of the telemetry store. *db.DB satisfies it.
type RunStore interface {
	Runs(ctx context.Context, limit int) ([]db.Run, error)
	Run(ctx context.Context, id string) (db.Run, error)
	Transitions(ctx context.Context, runID string) ([]mission.Transition, error)
	Ticks(ctx context.Context, runID string, limit int) ([]db.TickRow, error)
}

type Server struct {
	status StatusSource
	store  RunStore
}

// NewServer creates a server. Either argument may be nil, in which case the
// routes that need it answer 503.
func NewServer(status StatusSource, store RunStore) *Server {
	return &Server{status: status, store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		diagf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.showRun)
	mux.HandleFunc("/api/runs/{id}/ticks", s.listTicks)
	mux.HandleFunc("/charts/run/{id}", s.showRunChart)
	return mux
}

// reply writes a 200 JSON body. Encode failures can only be logged.
func (s *Server) reply(w http.ResponseWriter, v any) {
	if err := httputil.WriteJSONOK(w, v); err != nil {
		opsf("[API] failed to write response: %v", err)
	}
}

// intParam reads a positive integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return n, nil
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	if s.status == nil {
		httputil.ServiceUnavailable(w, "no run in progress")
		return
	}
	s.reply(w, s.status.Snapshot())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	if s.store == nil {
		httputil.ServiceUnavailable(w, "telemetry store disabled")
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	runs, err := s.store.Runs(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "retrieve runs", err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	s.reply(w, runs)
}

// runDetail is the /api/runs/{id} response.
type runDetail struct {
	db.Run
	TransitionLog []mission.Transition `json:"transition_log"`
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	transitions, err := s.store.Transitions(r.Context(), run.ID)
	if err != nil {
		httputil.InternalServerError(w, "retrieve transitions", err)
		return
	}
	if transitions == nil {
		transitions = []mission.Transition{}
	}
	s.reply(w, runDetail{Run: run, TransitionLog: transitions})
}

func (s *Server) listTicks(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	limit, err := intParam(r, "limit", 10000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	ticks, err := s.store.Ticks(r.Context(), run.ID, limit)
	if err != nil {
		httputil.InternalServerError(w, "retrieve ticks", err)
		return
	}
	if ticks == nil {
		ticks = []db.TickRow{}
	}
	s.reply(w, ticks)
}

// lookupRun resolves the {id} path value, writing the error response itself
// when it fails.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (db.Run, bool) {
	if s.store == nil {
		httputil.ServiceUnavailable(w, "telemetry store disabled")
		return db.Run{}, false
	}
	run, err := s.store.Run(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return db.Run{}, false
	}
	if err != nil {
		httputil.InternalServerError(w, "retrieve run", err)
		return db.Run{}, false
	}
	return run, true
}
