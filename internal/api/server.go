// Package api serves the status endpoints, the alert stream and the
// Telegram webhook.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/plexmon/plexmon/internal/events"
	"github.com/plexmon/plexmon/internal/format"
	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/metrics"
	"github.com/plexmon/plexmon/internal/monitor"
)

const (
	ServiceName = "MyPlexMonitor"
	Version     = "2.0.0"

	// WebhookPath receives Telegram updates in webhook mode.
	WebhookPath = "/telegram/webhook"
)

// StatusSource reports the monitor's state.
type StatusSource interface {
	Status() monitor.Status
}

// Server is the HTTP surface of plexmon.
type Server struct {
	status      StatusSource
	broadcaster *events.Broadcaster
	webhook     http.Handler
	now         func() time.Time
}

// NewServer creates a server. broadcaster and webhook may be nil; the
// matching routes are then not registered.
func NewServer(status StatusSource, broadcaster *events.Broadcaster, webhook http.Handler) *Server {
	return &Server{
		status:      status,
		broadcaster: broadcaster,
		webhook:     webhook,
		now:         time.Now,
	}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.broadcaster != nil {
		mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	}
	if s.webhook != nil {
		mux.Handle("POST "+WebhookPath, s.webhook)
	}

	// The mux records the matched pattern on the request it receives, so the
	// metrics middleware has to sit directly around it.
	return logging.Middleware(metrics.Middleware(mux))
}

type statusResponse struct {
	Status      string                `json:"status"`
	Service     string                `json:"service"`
	Version     string                `json:"version"`
	Uptime      string                `json:"uptime"`
	Plex        plexStatus            `json:"plex"`
	QBittorrent qbittorrentStatus     `json:"qbittorrent"`
	Stats       monitor.StatsSnapshot `json:"stats"`
}

type plexStatus struct {
	Online    bool       `json:"online"`
	LastCheck *time.Time `json:"lastCheck"`
}

type qbittorrentStatus struct {
	Connected bool `json:"connected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()

	var lastCheck *time.Time
	if !st.LastCheck.IsZero() {
		lc := st.LastCheck.UTC()
		lastCheck = &lc
	}

	s.sendJSON(w, http.StatusOK, statusResponse{
		Status:      "running",
		Service:     ServiceName,
		Version:     Version,
		Uptime:      format.Clock(st.Uptime),
		Plex:        plexStatus{Online: st.Online, LastCheck: lastCheck},
		QBittorrent: qbittorrentStatus{Connected: st.SessionValid},
		Stats:       st.Stats,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"healthy":   s.status.Status().Online,
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("encode response failed", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, errorResponse{Error: message, Code: code})
}
