package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/rebind/capture"
	"markestedt/rebind/config"
	"markestedt/rebind/session"
	"markestedt/rebind/storage"
)

//go:embed static/*
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The server only listens on localhost
	},
}

// Controller is the part of session.Controller the UI drives.
type Controller interface {
	Start(ctx context.Context, shortcutID string) (session.Status, error)
	Cancel(trigger session.Trigger) error
	HandleKey(ev capture.KeyEvent)
	Reset(ctx context.Context, id string) (string, error)
	Status() session.Status
}

// Store is the storage the API reads.
type Store interface {
	GetBinding(id string) (*storage.Binding, error)
	ListBindings() ([]storage.Binding, error)
	GetSessions(limit, offset int) ([]storage.Session, error)
	GetSessionCount() (int, error)
	DeleteSession(id int64) error
	GetOutcomeStats(days int) ([]storage.OutcomeStats, error)
	GetShortcutStats(days int) ([]storage.ShortcutStats, error)
}

// Options configure a Server.
type Options struct {
	DB         Store
	Controller Controller
	Registry   *session.Registry
	Config     *config.Config
	// ConfigPath is where PUT /api/config saves. Empty means config.ConfigPath.
	ConfigPath string
	// OnConfig is called after a config change was saved.
	OnConfig func(*config.Config)
}

// Server serves the settings page, the JSON API and the live websocket.
type Server struct {
	db         Store
	ctrl       Controller
	registry   *session.Registry
	configPath string
	onConfig   func(*config.Config)
	hub        *Hub

	mu     sync.RWMutex
	config *config.Config
}

// NewServer creates a new web server
func NewServer(opts Options) *Server {
	hub := NewHub()
	go hub.Run()

	return &Server{
		db:         opts.DB,
		ctrl:       opts.Controller,
		registry:   opts.Registry,
		configPath: opts.ConfigPath,
		onConfig:   opts.OnConfig,
		hub:        hub,
		config:     opts.Config,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/bindings", s.handleListBindings)
	mux.HandleFunc("GET /api/bindings/{id}", s.handleGetBinding)
	mux.HandleFunc("POST /api/bindings/{id}/record", s.handleRecord)
	mux.HandleFunc("POST /api/bindings/{id}/reset", s.handleReset)
	mux.HandleFunc("POST /api/record/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleGetHistory)
	mux.HandleFunc("DELETE /api/history/{id}", s.handleDeleteHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/ws", s.handleWebSocket)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to load static files: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	return mux, nil
}

// Run serves on localhost:port and forwards registry events to websocket
// clients until ctx is done.
func (s *Server) Run(ctx context.Context, port int) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.forwardEvents(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Web server shutdown failed", "error", err)
		}
		s.hub.Stop()
	}()

	slog.Info("Starting web server", "port", port, "url", fmt.Sprintf("http://localhost:%d", port))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// forwardEvents subscribes to the registry and pushes every event to all
// websocket clients until ctx is done.
func (s *Server) forwardEvents(ctx context.Context) {
	events, unsubscribe := s.registry.Subscribe(64)

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.hub.BroadcastMessage(Message{Type: MessageTypeSession, Data: ev})
			}
		}
	}()
}

// GetConfig returns the current configuration (thread-safe)
func (s *Server) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// UpdateConfig updates the configuration (thread-safe)
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:    s.hub,
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
	}

	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	client.sendMessage(Message{Type: MessageTypeStatus, Data: s.ctrl.Status()})

	go client.writePump()
	go client.readPump()
}
