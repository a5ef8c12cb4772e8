package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snow-ghost/adaptmgr/core"
	"github.com/snow-ghost/adaptmgr/pkg/history"
	"github.com/snow-ghost/adaptmgr/pkg/limiter"
	"github.com/snow-ghost/adaptmgr/pkg/logging"
	"github.com/snow-ghost/adaptmgr/utility"
)

// StateSource returns the most recently published snapshot
type StateSource interface {
	Latest() (core.AdaptationState, bool)
}

// BoundsSource returns the current normalization bounds
type BoundsSource interface {
	Bounds() map[string]utility.Bounds
}

// Deps are the components the state server reads from. Nil fields disable
// the matching endpoint.
type Deps struct {
	State    StateSource
	Stream   http.Handler
	Bounds   BoundsSource
	History  history.Recorder
	Registry *prometheus.Registry
}

// Server exposes published adaptation state over HTTP
type Server struct {
	addr    string
	deps    Deps
	limiter *limiter.RateLimiter
	logger  *logging.Logger
	started time.Time
}

// NewServer creates a state server. A nil rate limit config uses the defaults.
func NewServer(addr string, deps Deps, rateLimit *limiter.RateLimiterConfig, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		addr:    addr,
		deps:    deps,
		limiter: limiter.NewRateLimiter(rateLimit),
		logger:  logger,
		started: time.Now(),
	}
}

// Handler returns the routed, rate limited, request-logged handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/v1/state", s.StateHandler)
	mux.HandleFunc("/v1/bounds", s.BoundsHandler)
	mux.HandleFunc("/v1/history", s.HistoryHandler)
	if s.deps.Stream != nil {
		mux.Handle("/v1/state/stream", s.deps.Stream)
	}
	if s.deps.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}
	return s.logRequests(s.limiter.Middleware(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.GetSlog().Info("state server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// HealthHandler reports liveness and the last published cycle
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if s.deps.State != nil {
		if state, ok := s.deps.State.Latest(); ok {
			resp["last_cycle"] = state.Cycle
			resp["last_published"] = state.Timestamp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// StateHandler returns the latest snapshot, or 404 before the first cycle completes
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.State == nil {
		http.Error(w, "state not available", http.StatusServiceUnavailable)
		return
	}
	state, ok := s.deps.State.Latest()
	if !ok {
		http.Error(w, "no adaptation state published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// BoundsHandler returns the per-metric normalization bounds
func (s *Server) BoundsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Bounds == nil {
		http.Error(w, "bounds not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Bounds.Bounds())
}

// HistoryHandler lists recorded cycles. Query: limit, offset, valid_only, from, to (RFC3339).
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.History == nil {
		http.Error(w, "history not enabled", http.StatusServiceUnavailable)
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.deps.History.List(filter)
	if err != nil {
		s.logger.GetSlog().Error("history query failed", "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	summary, err := s.deps.History.Summary(history.Filter{From: filter.From, To: filter.To, ValidOnly: filter.ValidOnly})
	if err != nil {
		s.logger.GetSlog().Error("history summary failed", "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []history.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"summary": summary,
	})
}

func parseHistoryFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	filter := history.Filter{Limit: 100}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	if v := q.Get("valid_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("invalid valid_only")
		}
		filter.ValidOnly = b
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if v := q.Get(p.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, errors.New("invalid " + p.key)
			}
			*p.dst = &t
		}
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE stream working through the logging wrapper
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.LogRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
