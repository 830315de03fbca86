// Package httpapi is the service's thin HTTP/WebSocket surface: it parses
// requests, delegates to an orchestrator.Orchestrator, and translates
// orchestrator errors into status codes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zhoukaigo/docling-serve/internal/config"
	"github.com/zhoukaigo/docling-serve/internal/convert"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
)

// Server wires an Orchestrator, converter Cache, and Settings into a
// request router.
type Server struct {
	orch     orchestrator.Orchestrator
	cache    *convert.Cache
	settings config.Settings
}

// NewServer builds a Server.
func NewServer(orch orchestrator.Orchestrator, cache *convert.Cache, settings config.Settings) *Server {
	return &Server{orch: orch, cache: cache, settings: settings}
}

// Handler builds the full request router wrapped in security and logging
// middleware, ready to pass to http.Server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/v1alpha/convert/source", s.handleConvertSource).Methods(http.MethodPost)
	r.HandleFunc("/v1alpha/convert/file", s.handleConvertFile).Methods(http.MethodPost)
	r.HandleFunc("/v1alpha/convert/source/async", s.handleConvertSourceAsync).Methods(http.MethodPost)
	r.HandleFunc("/v1alpha/convert/file/async", s.handleConvertFileAsync).Methods(http.MethodPost)

	r.HandleFunc("/v1alpha/status/poll/{id}", s.handleStatusPoll).Methods(http.MethodGet)
	r.HandleFunc("/v1alpha/status/ws/{id}", s.handleStatusWS).Methods(http.MethodGet)
	r.HandleFunc("/v1alpha/result/{id}", s.handleResult).Methods(http.MethodGet)

	r.HandleFunc("/v1alpha/callback/task/progress", s.handleProgressCallback).Methods(http.MethodPost)

	r.HandleFunc("/v1alpha/clear/converters", s.handleClearConverters).Methods(http.MethodGet)
	r.HandleFunc("/v1alpha/clear/results", s.handleClearResults).Methods(http.MethodGet)

	return securityMiddleware(loggingMiddleware(r), s.settings)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const defaultResultsMaxAge = 3600 * time.Second
