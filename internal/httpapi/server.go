// Package httpapi exposes the supervisor's observation snapshot over
// HTTP, laid out the way the job-queue example repo in the reference
// pack routes its REST surface: a gorilla/mux router with every route
// registered directly on it, JSON-first responses with an HTML
// fallback for the status page.
package httpapi

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guti2010/execpool/internal/execpool"
	"github.com/guti2010/execpool/internal/observe"
)

// Server is the embedder's observation endpoint: GET /status, GET
// /metrics and GET /healthz over a single pool.
type Server struct {
	router  *mux.Router
	pool    *execpool.ExecPool
	metrics *Metrics
	log     *zap.Logger
	started time.Time
}

// New builds a Server wired to pool. log may be nil, in which case a
// no-op logger is used.
func New(pool *execpool.ExecPool, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		pool:    pool,
		metrics: NewMetrics(pool),
		log:     log,
		started: time.Now(),
	}
	s.setupRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter().StrictSlash(true)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// handleStatus serves the Snapshot (spec.md §6): JSON by default, an
// HTML table when the client asks for it. Query params "jobs",
// "failures" and "tasks" each hold an independent predicate clause
// (grammar in internal/observe), and "jlim" caps each collection.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := observe.Build(s.pool)
	jlim := parseJlim(r.URL.Query().Get("jlim"))

	view := struct {
		Jobs     []observe.Entry `json:"jobs"`
		Failures []observe.Entry `json:"failures"`
		Tasks    []observe.Entry `json:"tasks"`
	}{
		Jobs:     snap.FilterJobs(observe.ParsePredicates(r.URL.Query().Get("jobs")), jlim),
		Failures: snap.FilterFailures(observe.ParsePredicates(r.URL.Query().Get("failures")), jlim),
		Tasks:    snap.FilterTasks(observe.ParsePredicates(r.URL.Query().Get("tasks")), jlim),
	}

	if wantsHTML(r) {
		writeStatusHTML(w, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.refresh()
	promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.pool.Alive() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining", "run_id": s.pool.RunID()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "run_id": s.pool.RunID()})
}

func parseJlim(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal error encoding response", http.StatusInternalServerError)
	}
}

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html><head><title>execpool status</title></head><body>
<h1>Jobs</h1>
<table border="1"><tr><th>name</th><th>category</th><th>pid</th><th>task</th></tr>
{{range .Jobs}}<tr><td>{{.Name}}</td><td>{{if .Category}}{{.Category}}{{end}}</td><td>{{if .PID}}{{.PID}}{{end}}</td><td>{{if .Task}}{{.Task}}{{end}}</td></tr>
{{end}}</table>
<h1>Failures</h1>
<table border="1"><tr><th>name</th><th>rcode</th></tr>
{{range .Failures}}<tr><td>{{.Name}}</td><td>{{if .RCode}}{{.RCode}}{{end}}</td></tr>
{{end}}</table>
<h1>Tasks</h1>
<table border="1"><tr><th>name</th><th>added</th><th>done</th><th>terminated</th></tr>
{{range .Tasks}}<tr><td>{{.Name}}</td><td>{{if .NumAdded}}{{.NumAdded}}{{end}}</td><td>{{if .NumDone}}{{.NumDone}}{{end}}</td><td>{{if .NumTerm}}{{.NumTerm}}{{end}}</td></tr>
{{end}}</table>
</body></html>`))

func writeStatusHTML(w http.ResponseWriter, view interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, view); err != nil {
		http.Error(w, "internal error rendering status", http.StatusInternalServerError)
	}
}
