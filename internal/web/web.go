package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"agendacal/internal/config"
	appLog "agendacal/internal/log"
	"agendacal/internal/model"
	"agendacal/internal/pipeline"
)

// Server exposes the agenda pipeline over HTTP.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	// engineMu serializes cycles; concurrent requests wait for the one in
	// flight and then usually hit the cache.
	engineMu sync.Mutex
	engine   *pipeline.Engine
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, engine *pipeline.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		engine: engine,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// WithEngine runs fn while holding the engine lock. Background jobs use it
// to share the engine with request handlers.
func (s *Server) WithEngine(fn func(e *pipeline.Engine)) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	fn(s.engine)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="agendacal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server on cfg.Listen until ctx is cancelled, then
// shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
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
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/days", s.handleDays)
	s.mux.HandleFunc("/api/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// daysResponse is the JSON response shape for /api/days.
type daysResponse struct {
	Days            []model.DayBucket `json:"days"`
	Expanded        bool              `json:"expanded"`
	RangeStart      time.Time         `json:"range_start"`
	RangeEnd        time.Time         `json:"range_end"`
	DisplayTimeZone string            `json:"display_timezone"`
	WeekStart       string            `json:"week_start"`
}

// handleDays returns the bucketed agenda.
//
// GET /api/days?expanded=1&reload=1
//   - expanded: full configured range without compact limits
//   - reload:   the request comes from a manual reload (also implied by
//     Cache-Control: no-cache)
func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	opts := pipeline.Options{
		Expanded: parseBoolDefault(q.Get("expanded"), false),
		Reload:   isReload(r),
	}

	var resp daysResponse
	s.WithEngine(func(e *pipeline.Engine) {
		win := e.Window()
		resp = daysResponse{
			Days:            e.Days(r.Context(), opts),
			Expanded:        opts.Expanded,
			RangeStart:      win.Start,
			RangeEnd:        win.End,
			DisplayTimeZone: e.Location().String(),
			WeekStart:       e.Config().WeekStart,
		}
	})

	appLog.Debug("api days request", "expanded", opts.Expanded, "reload", opts.Reload, "days", len(resp.Days))
	writeJSON(w, http.StatusOK, resp)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []model.ProcessedEvent `json:"events"`
	RangeStart      time.Time              `json:"range_start"`
	RangeEnd        time.Time              `json:"range_end"`
	DisplayTimeZone string                 `json:"display_timezone"`
}

// handleEvents returns the processed (filtered, split, formatted) events
// of the current window before bucketing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var resp eventsResponse
	s.WithEngine(func(e *pipeline.Engine) {
		win := e.Window()
		events := e.Events(r.Context(), isReload(r))
		if events == nil {
			events = []model.ProcessedEvent{}
		}
		resp = eventsResponse{
			Events:          events,
			RangeStart:      win.Start,
			RangeEnd:        win.End,
			DisplayTimeZone: e.Location().String(),
		}
	})
	writeJSON(w, http.StatusOK, resp)
}

// isReload reports whether the request is attributable to a manual reload.
func isReload(r *http.Request) bool {
	if parseBoolDefault(r.URL.Query().Get("reload"), false) {
		return true
	}
	for _, v := range r.Header.Values("Cache-Control") {
		if strings.Contains(strings.ToLower(v), "no-cache") {
			return true
		}
	}
	return strings.EqualFold(r.Header.Get("Pragma"), "no-cache")
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
