package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"composewatch/internal/models"
)

type Snapshotter interface {
	Snapshot() []models.ContainerRecord
}

type AlertReader interface {
	RecentAlertEvents(ctx context.Context, container string, limit int) ([]models.AlertEvent, error)
}

type Server struct {
	store   Snapshotter
	ready   func() bool
	journal AlertReader
	log     *slog.Logger
}

// NewServer builds the status endpoint. journal may be nil.
func NewServer(store Snapshotter, ready func() bool, journal AlertReader, logger *slog.Logger) *Server {
	return &Server{store: store, ready: ready, journal: journal, log: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/containers", s.handleContainersAPI)
	mux.HandleFunc("/api/alerts", s.handleAlertsAPI)
	return logMiddleware(mux, s.log)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		http.Error(w, "monitor stopped", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleContainersAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleAlertsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "alert journal disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	container := strings.TrimSpace(r.URL.Query().Get("container"))
	events, err := s.journal.RecentAlertEvents(r.Context(), container, limit)
	if err != nil {
		s.log.Warn("read alert journal", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
