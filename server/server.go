package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-http-utils/etag"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sardine-ai/go-config-sync/model"
)

const maxArgsBytes = 1 << 20

// Server exposes a Backend over HTTP and WebSocket.
type Server struct {
	Backend  *Backend
	Router   *Router
	AuthKey  string
	upgrader websocket.Upgrader
}

// NewServer creates a Server exposing the backend's commands.
func NewServer(backend *Backend) *Server {
	router := NewRouter()
	backend.Register(router)
	return &Server{
		Backend: backend,
		Router:  router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || isLocalhostOrigin(origin)
			},
		},
	}
}

// Start serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.CreateHandlers(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logrus.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// CreateHandlers builds the HTTP routes. Everything except /health requires
// the API key when AuthKey is set.
func (s *Server) CreateHandlers() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Group(func(r chi.Router) {
		if s.AuthKey != "" {
			r.Use(func(next http.Handler) http.Handler {
				return Auth(next, s.AuthKey)
			})
		}
		r.Post("/invoke/{command}", s.invoke)
		r.Method(http.MethodGet, "/config", etag.Handler(http.HandlerFunc(s.getConfig), false))
		r.Get("/ws", s.serveWS)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"repository": s.Backend.repository.GetName(),
		"commands":   s.Router.Commands(),
	})
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	args, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgsBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	result, err := s.Router.Dispatch(r.Context(), command, args)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Backend.Config())
}

// statusFor maps a command error to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Auth is a middleware that checks if the request is authenticated.
// If not, it returns a 401 Unauthorized response.
func Auth(next http.Handler, authKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-KEY")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(authKey)) != 1 {
			logrus.WithField("path", r.URL.Path).Debug("rejected unauthenticated request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
