// Package api provides the HTTP API and websocket event stream of the bridge.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"spenremote/internal/bridge"
	"spenremote/internal/protocol"
	"spenremote/pkg/spen"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Controller is the bridge surface the API exposes.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()
	Status() bridge.Status
	Features() bridge.FeatureSet
	LastEvent(t spen.UnitType) (protocol.EventNotice, bool)
}

// History answers last-event lookups the bridge has not seen since it started, such as
// events cached by a previous run.
type History interface {
	LastEvent(ctx context.Context, t spen.UnitType) (*protocol.EventNotice, error)
}

// Options configure a Server.
type Options struct {
	// Token, when set, is required as a bearer token on /api and /ws.
	Token string

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// ConnectTimeout bounds POST /api/connect. Defaults to 15s.
	ConnectTimeout time.Duration

	// History, when set, backs /api/units/{unit}/last for units without a live event.
	History History

	Logger *slog.Logger
}

// Server provides the HTTP API for remote control
type Server struct {
	ctrl           Controller
	token          string
	metrics        http.Handler
	history        History
	connectTimeout time.Duration
	logger         *slog.Logger
	hub            *Hub
}

// NewServer creates a new API server
func NewServer(ctrl Controller, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger = logger.With("component", "api")
	return &Server{
		ctrl:           ctrl,
		token:          opts.Token,
		metrics:        opts.Metrics,
		history:        opts.History,
		connectTimeout: timeout,
		logger:         logger,
		hub:            NewHub(logger),
	}
}

// Hub returns the websocket hub, which is also a bridge sink.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/features", s.handleFeatures)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Get("/units/{unit}/last", s.handleLastEvent)
		})
		r.Get("/ws", s.hub.ServeHTTP)
	})

	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

// authMiddleware checks the API token if configured. Browsers cannot set headers on
// websocket requests, so a token query parameter is accepted too.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	bridge.Status
	WSClients int `json:"ws_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: s.ctrl.Status(), WSClients: s.hub.Clients()})
}

func (s *Server) handleFeatures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Features())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.connectTimeout)
	defer cancel()

	s.logger.Info("connect requested", "remote", r.RemoteAddr)
	if err := s.ctrl.Connect(ctx); err != nil {
		writeError(w, connectStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func connectStatus(err error) int {
	switch {
	case errors.Is(err, spen.ErrUnsupportedDevice):
		return http.StatusPreconditionFailed
	case errors.Is(err, spen.ErrConnectionFailed):
		return http.StatusBadGateway
	case errors.Is(err, bridge.ErrConnectTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("disconnect requested", "remote", r.RemoteAddr)
	s.ctrl.Disconnect()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleLastEvent(w http.ResponseWriter, r *http.Request) {
	t, err := spen.ParseUnitType(chi.URLParam(r, "unit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n, ok := s.ctrl.LastEvent(t); ok {
		writeJSON(w, http.StatusOK, n)
		return
	}
	if s.history != nil {
		n, err := s.history.LastEvent(r.Context(), t)
		if err != nil {
			s.logger.Warn("history lookup failed", "unit", t.String(), "error", err)
			writeError(w, http.StatusBadGateway, "history unavailable")
			return
		}
		if n != nil {
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no event yet")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
