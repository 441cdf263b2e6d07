package apiserver

import "github.com/prometheus/client_golang/prometheus/promhttp"

// registerRoutes wires every API endpoint to its handler.
func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Service
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/events", s.handleEvents).Methods("GET")
	api.HandleFunc("/migrate", s.handleMigrate).Methods("POST")

	// Items. Keys may contain slashes.
	api.HandleFunc("/items", s.handleListItems).Methods("GET")
	api.HandleFunc("/items", s.handleClearItems).Methods("DELETE")
	api.HandleFunc("/items/{key:.+}", s.handleGetItem).Methods("GET")
	api.HandleFunc("/items/{key:.+}", s.handleSetItem).Methods("PUT")
	api.HandleFunc("/items/{key:.+}", s.handleRemoveItem).Methods("DELETE")

	// Projects
	api.HandleFunc("/projects", s.handleListProjects).Methods("GET")
	api.HandleFunc("/projects", s.handleCreateProject).Methods("POST")
	api.HandleFunc("/projects/{id}", s.handleGetProject).Methods("GET")
	api.HandleFunc("/projects/{id}", s.handleSaveProject).Methods("PUT")
	api.HandleFunc("/projects/{id}", s.handleDeleteProject).Methods("DELETE")

	// Blobs
	api.HandleFunc("/blobs", s.handleListBlobs).Methods("GET")
	api.HandleFunc("/blobs/{key:.+}", s.handleGetBlob).Methods("GET")
	api.HandleFunc("/blobs/{key:.+}", s.handleSaveBlob).Methods("PUT")
	api.HandleFunc("/blobs/{key:.+}", s.handleDeleteBlob).Methods("DELETE")
}
