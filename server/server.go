// Package server exposes the pipeline and the stored meetings over HTTP and
// a websocket feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bosley/minutes/inference"
	"github.com/bosley/minutes/pipeline"
	"github.com/bosley/minutes/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Config for the HTTP surface. TLS is used when both files are set.
type Config struct {
	Addr     string
	CertFile string
	KeyFile  string
}

// Controller is the pipeline as seen by the HTTP surface.
type Controller interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*pipeline.Run, error)
	Snapshot(ctx context.Context) pipeline.State
	Subscribe() (<-chan pipeline.State, func())
	Refresh(ctx context.Context) error
}

// Meetings is the read and edit side of the store.
type Meetings interface {
	SaveMeeting(ctx context.Context, m *store.Meeting) (int64, error)
	FetchAllMeetings(ctx context.Context) ([]store.Meeting, error)
	FetchRecentMeetings(ctx context.Context, limit int) ([]store.Meeting, error)
	FetchMeeting(ctx context.Context, id int64) (store.Meeting, error)
	FetchTranscript(ctx context.Context, meetingID int64) (store.Transcript, error)
	FetchSummary(ctx context.Context, meetingID int64) (store.Summary, error)
	DeleteMeeting(ctx context.Context, id int64) error
	SearchMeetings(ctx context.Context, query string) ([]store.Meeting, error)
}

// ModelLister lists summarization models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]inference.Model, error)
}

type Server struct {
	config   Config
	pipeline Controller
	meetings Meetings
	models   ModelLister
	hub      *Hub
	validate *validator.Validate

	server   *http.Server
	upgrader websocket.Upgrader
}

func New(cfg Config, ctrl Controller, meetings Meetings, models ModelLister, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		config:   cfg,
		pipeline: ctrl,
		meetings: meetings,
		models:   models,
		hub:      hub,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			// Local tool; any origin on this machine may observe it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/recording/start", s.handleStartRecording).Methods("POST")
	api.HandleFunc("/recording/stop", s.handleStopRecording).Methods("POST")
	api.HandleFunc("/meetings", s.handleListMeetings).Methods("GET")
	api.HandleFunc("/meetings", s.handleCreateMeeting).Methods("POST")
	api.HandleFunc("/meetings/recent", s.handleRecentMeetings).Methods("GET")
	api.HandleFunc("/meetings/search", s.handleSearchMeetings).Methods("GET")
	api.HandleFunc("/meetings/{id:[0-9]+}", s.handleGetMeeting).Methods("GET")
	api.HandleFunc("/meetings/{id:[0-9]+}", s.handleDeleteMeeting).Methods("DELETE")
	api.HandleFunc("/meetings/{id:[0-9]+}/summary.md", s.handleSummaryMarkdown).Methods("GET")
	api.HandleFunc("/models", s.handleListModels).Methods("GET")

	router.HandleFunc("/ws", s.handleWebSocket)

	return router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go s.forwardState(ctx)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.CertFile != "" && s.config.KeyFile != "" {
			slog.Info("HTTPS server listening", "address", s.config.Addr)
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			slog.Info("HTTP server listening", "address", s.config.Addr)
			err = s.server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("HTTP server error", "error", err)
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// forwardState relays pipeline snapshots to websocket subscribers.
func (s *Server) forwardState(ctx context.Context) {
	updates, cancel := s.pipeline.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			s.hub.Broadcast("state", state)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  s.hub,
	}
	// The snapshot is queued before add so Close can never race this send.
	if data, err := json.Marshal(Event{Type: "state", Timestamp: time.Now(), Payload: s.pipeline.Snapshot(r.Context())}); err == nil {
		sub.send <- data
	}

	if !s.hub.add(sub) {
		slog.Debug("WebSocket subscriber refused, hub closed", "subscriber", sub.id)
		conn.Close()
		return
	}
	slog.Debug("WebSocket subscriber connected", "subscriber", sub.id)

	go sub.writePump()
	go sub.readPump()
}
