// Package server serves a read-only JSON view of the workflow and the
// Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/abd3rr/workflow-api/internal/engine"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Server struct {
	engine   *engine.Engine
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	server   *http.Server
}

func NewServer(eng *engine.Engine, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Server {
	return &Server{engine: eng, gatherer: gatherer, log: log}
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/methods", s.handleMethods)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.WithField("addr", addr).Info("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		tasks []*models.Task
		err   error
	)
	switch {
	case q.Get("step_id") != "":
		tasks, err = s.engine.GetTasksByStep(r.Context(), q.Get("step_id"))
	case q.Get("project_id") != "":
		tasks, err = s.engine.GetTasksByProject(r.Context(), q.Get("project_id"))
	default:
		tasks, err = s.engine.ListTasks(r.Context())
	}
	s.respond(w, tasks, err)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.engine.GetTask(r.Context(), r.PathValue("id"))
	s.respond(w, task, err)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := s.engine.GetGraph(r.Context())
	s.respond(w, graph, err)
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.Catalog().Methods(), nil)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	list, err := s.engine.ListNotifications(r.Context(), userID, unread)
	s.respond(w, list, err)
}

func (s *Server) respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, models.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, models.ErrValidation):
			status = http.StatusBadRequest
		default:
			s.log.WithError(err).Error("request failed")
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}
