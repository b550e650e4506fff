// Package server provides the HTTP and WebSocket API for the Mudra home
// controller.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/home"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/voice"
)

const shutdownTimeout = 5 * time.Second

// Controller is the application surface exposed over HTTP. *home.Home
// implements it.
type Controller interface {
	Devices() []device.Device
	SetDevice(ctx context.Context, id int, on bool) (device.Device, error)
	ToggleDevice(ctx context.Context, id int) (device.Device, error)
	SetAll(ctx context.Context, on bool) []device.Device

	HandleVoice(ctx context.Context, transcript string) (voice.Command, error)
	ProcessHand(hand *landmark.Hand) (gesture.Event, error)
	ProcessFaces(ctx context.Context, faces []landmark.Face) security.Observation

	Settings() home.Settings
	UpdateSettings(ctx context.Context, s home.Settings) (home.Settings, error)
	SetArmed(ctx context.Context, armed bool) error
	Status() home.Status

	ListFaces(ctx context.Context) ([]*store.AuthorizedFace, error)
	EnrollFace(ctx context.Context, name string, face landmark.Face) (*store.AuthorizedFace, error)
	RemoveFace(ctx context.Context, id string) error
	SecurityEvents(ctx context.Context, limit int) ([]*store.SecurityEvent, error)
	ClearSecurityEvents(ctx context.Context) (int64, error)
}

var _ Controller = (*home.Home)(nil)

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Controller Controller
	// Hub receives broadcasts from the rest of the application. A new one is
	// created when nil.
	Hub *Hub
	// Frames backs /api/stream. The endpoint answers 503 when nil.
	Frames FrameSource
	// AccessLog receives one Apache-style line per request when set.
	AccessLog io.Writer
}

// Server represents the HTTP server for the Mudra application.
type Server struct {
	config  Config
	ctrl    Controller
	hub     *Hub
	router  *mux.Router
	handler http.Handler
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Hub == nil {
		config.Hub = NewHub()
	}
	s := &Server{
		config: config,
		ctrl:   config.Controller,
		hub:    config.Hub,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()

	s.handler = s.router
	if config.AccessLog != nil {
		s.handler = handlers.LoggingHandler(config.AccessLog, s.router)
	}
	return s
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.ctrl != nil {
		api := r.PathPrefix("/api").Subrouter()

		api.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
		api.HandleFunc("/devices/all", s.setAllDevices).Methods(http.MethodPost)
		api.HandleFunc("/devices/{id:[0-9]+}", s.setDevice).Methods(http.MethodPut)
		api.HandleFunc("/devices/{id:[0-9]+}/toggle", s.toggleDevice).Methods(http.MethodPost)

		api.HandleFunc("/voice", s.handleVoice).Methods(http.MethodPost)
		api.HandleFunc("/landmarks", s.handleLandmarks).Methods(http.MethodPost)
		api.HandleFunc("/faces", s.handleFaces).Methods(http.MethodPost)

		api.HandleFunc("/settings", s.getSettings).Methods(http.MethodGet)
		api.HandleFunc("/settings", s.putSettings).Methods(http.MethodPut)
		api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)

		api.HandleFunc("/security/armed", s.setArmed).Methods(http.MethodPut)
		api.HandleFunc("/security/faces", s.listFaces).Methods(http.MethodGet)
		api.HandleFunc("/security/faces", s.enrollFace).Methods(http.MethodPost)
		api.HandleFunc("/security/faces/{id}", s.deleteFace).Methods(http.MethodDelete)
		api.HandleFunc("/security/events", s.listSecurityEvents).Methods(http.MethodGet)
		api.HandleFunc("/security/events", s.clearSecurityEvents).Methods(http.MethodDelete)

		api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	}

	r.Handle("/api/stream", NewStreamHandler(s.config.Frames)).Methods(http.MethodGet)

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// disconnects WebSocket clients.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("server: listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
