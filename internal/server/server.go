// Package server exposes calendars and the live feed over HTTP for the
// dashboard panels.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/marketsync/internal/calendar"
	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/version"
)

// Calendar is the calendar service surface used by the handlers.
type Calendar interface {
	Kind() model.CalendarKind
	Read(ctx context.Context) (calendar.View, error)
	ReadStaleAllowed(ctx context.Context) (calendar.View, bool)
	Refresh(ctx context.Context, force bool) (calendar.View, error)
	Status(ctx context.Context) calendar.Status
}

// Feed is the live feed surface used by the handlers.
type Feed interface {
	Ticks() []model.TradeTick
	Stats() connection.Stats
	Retry() error
}

// Config holds server settings.
type Config struct {
	MetricsPath    string
	RequestTimeout time.Duration // bound on synchronous refreshes (default: 2m)
}

// Server routes HTTP requests to calendars and the feed.
type Server struct {
	cfg       Config
	calendars map[model.CalendarKind]Calendar
	feed      Feed
	metrics   *metrics.Metrics
	logger    *slog.Logger
	started   time.Time
}

// New creates a Server. feed and m may be nil.
func New(cfg Config, calendars []Calendar, feed Feed, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}

	byKind := make(map[model.CalendarKind]Calendar, len(calendars))
	for _, c := range calendars {
		byKind[c.Kind()] = c
	}

	return &Server{
		cfg:       cfg,
		calendars: byKind,
		feed:      feed,
		metrics:   m,
		logger:    logger.With("component", "server"),
		started:   time.Now(),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.InstrumentHandler)

	r.Get("/health", s.handleHealth)

	r.Get("/calendars/{kind}", s.handleRead)
	r.Get("/calendars/{kind}/stale", s.handleReadStale)
	r.Get("/calendars/{kind}/status", s.handleStatus)
	r.Post("/calendars/{kind}/refresh", s.handleRefresh)

	r.Get("/trades", s.handleTrades)
	r.Get("/feed", s.handleFeed)
	r.Post("/feed/retry", s.handleFeedRetry)

	if s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.metrics.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status     string                 `json:"status"`
		Version    string                 `json:"version"`
		Uptime     string                 `json:"uptime"`
		Components map[string]interface{} `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.String(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Components: make(map[string]interface{}),
	}

	for kind, c := range s.calendars {
		st := c.Status(r.Context())
		health.Components["calendar_"+string(kind)] = st
		if st.Warning != "" || st.CacheState == "absent" {
			health.Status = "degraded"
		}
	}

	if s.feed != nil {
		stats := s.feed.Stats()
		health.Components["feed"] = stats
		if stats.State == model.StateError {
			health.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	c, ok := s.calendar(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	v, err := c.Read(ctx)
	if err != nil {
		s.writeRefreshError(w, c.Kind(), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleReadStale(w http.ResponseWriter, r *http.Request) {
	c, ok := s.calendar(w, r)
	if !ok {
		return
	}

	v, found := c.ReadStaleAllowed(r.Context())
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("no cached %s calendar", c.Kind()))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.calendar(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Status(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, ok := s.calendar(w, r)
	if !ok {
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid force value %q", raw))
			return
		}
		force = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	v, err := c.Refresh(ctx, force)
	if err != nil {
		s.writeRefreshError(w, c.Kind(), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, errors.New("live feed disabled"))
		return
	}
	stats := s.feed.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":   stats.State,
		"ticks":   s.feed.Ticks(),
		"count":   stats.Buffered,
		"symbols": stats.Symbols,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, errors.New("live feed disabled"))
		return
	}
	writeJSON(w, http.StatusOK, s.feed.Stats())
}

func (s *Server) handleFeedRetry(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, errors.New("live feed disabled"))
		return
	}
	if err := s.feed.Retry(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.feed.Stats())
}

// calendar resolves the {kind} path parameter, writing 404 when unknown.
func (s *Server) calendar(w http.ResponseWriter, r *http.Request) (Calendar, bool) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	c, ok := s.calendars[kind]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s calendar disabled", kind))
		return nil, false
	}
	return c, true
}

func (s *Server) writeRefreshError(w http.ResponseWriter, kind model.CalendarKind, err error) {
	s.logger.Warn("calendar request failed", "kind", kind, "error", err)
	switch {
	case errors.Is(err, calendar.ErrRefreshFailed):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
