package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"agentdeck/internal/auth"
	"agentdeck/internal/config"
	"agentdeck/internal/storage"
	"agentdeck/internal/task"
	"agentdeck/pkg/logger"
)

// Server is the local console endpoint. It exposes a read-only HTTP API
// over configured services and the task audit trail, and a WebSocket
// event feed.
type Server struct {
	cfg      *config.Config
	store    *auth.Store
	tracker  *task.Tracker
	registry *task.Registry
	hub      *Hub

	httpServer *http.Server
	cancel     context.CancelFunc
}

// NewServer wires the console server. Start begins listening.
func NewServer(cfg *config.Config, store *auth.Store, tracker *task.Tracker, registry *task.Registry) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		registry: registry,
		hub:      NewHub(),
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.hub.Run(ctx)
	go s.forwardStoreEvents(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Bridge.Host, s.cfg.Bridge.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Console bridge listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("bridge listen: %w", err)
	}
	return nil
}

// Shutdown stops the server and closes all attached clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		serveWS(s.hub, w, req)
	})

	api := r.PathPrefix("/api/console").Subrouter()
	api.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/tasks", s.handleTasks).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServiceView is one configured service plus its credential status.
type ServiceView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Default       bool   `json:"default"`
	Authenticated bool   `json:"authenticated"`
	StreamLive    bool   `json:"stream_live"`
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	views := make([]ServiceView, 0, len(s.cfg.Services))
	for id, svc := range s.cfg.Services {
		_, err := s.store.Get(id)
		views = append(views, ServiceView{
			ID:            id,
			Name:          svc.Name,
			URL:           svc.URL,
			Default:       svc.Default,
			Authenticated: err == nil,
			StreamLive:    s.registry.IsLive(id),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	serviceID := r.URL.Query().Get("service")
	if serviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "service query parameter required"})
		return
	}

	records, err := s.tracker.History(serviceID)
	if err != nil {
		logger.Error().Err(err).Str("service", serviceID).Msg("Failed to load task history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load task history"})
		return
	}
	if records == nil {
		records = []storage.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// forwardStoreEvents pushes credential changes onto the WebSocket feed.
func (s *Server) forwardStoreEvents(ctx context.Context) {
	events := s.store.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.hub.BroadcastTyped("credential", map[string]any{
				"service": ev.ServiceID,
				"kind":    eventKindLabel(ev.Kind),
			})
		}
	}
}

// NotifyTask pushes a task state change onto the WebSocket feed.
func (s *Server) NotifyTask(serviceID string, snap task.Snapshot) {
	s.hub.BroadcastTyped("task", map[string]any{
		"service":  serviceID,
		"task_id":  snap.TaskID,
		"state":    string(snap.State),
		"display":  snap.State.Display(),
		"artifact": len(snap.Artifacts),
	})
}

func eventKindLabel(kind auth.EventKind) string {
	switch kind {
	case auth.EventAdded:
		return "added"
	case auth.EventUpdated:
		return "updated"
	case auth.EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}
