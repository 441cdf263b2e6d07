package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/storage"
)

// Server is the Inkwell REST API server. It exposes the storage service's
// key/value, project and blob operations over HTTP.
type Server struct {
	router  *mux.Router
	storage *storage.Service
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a fully-wired Server ready to Start().
func NewServer(addr string, svc *storage.Service, logger *zap.Logger) *Server {
	srv := &Server{
		router:  mux.NewRouter(),
		storage: svc,
		logger:  logger,
	}
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	srv.registerRoutes()
	return srv
}

// Handler returns the root HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
