package httpserver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/executor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
)

// Server exposes the engine's HTTP contract: diagnostics, monitor
// inspection and mutations that enqueue request messages
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	queue    queue.Queue
	logger   *logger.Logger
	http     *http.Server
}

// New creates the HTTP server
func New(cfg *config.Config, reg *registry.Registry, q queue.Queue, log *logger.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: reg,
		queue:    q,
		logger:   log.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/monitor", func(r chi.Router) {
		r.Get("/list", s.handleMonitorList)
		r.Get("/{name}", s.handleMonitorGet)
		r.Post("/validate", s.handleMonitorValidate)
		r.Post("/register/{name}", s.handleMonitorRegister)
		r.Post("/{name}/enable", s.monitorAction(executor.ActionMonitorEnable))
		r.Post("/{name}/disable", s.monitorAction(executor.ActionMonitorDisable))
	})

	r.Route("/alert", func(r chi.Router) {
		r.Post("/{id}/acknowledge", s.alertAction(executor.ActionAlertAcknowledge))
		r.Post("/{id}/lock", s.alertAction(executor.ActionAlertLock))
		r.Post("/{id}/unlock", s.alertAction(executor.ActionAlertUnlock))
		r.Post("/{id}/solve", s.alertAction(executor.ActionAlertSolve))
	})

	r.Post("/issue/{id}/drop", s.handleIssueDrop)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPServer.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context ends, then drains with a short grace period
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("HTTP server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.List()
	monitors := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		monitors = append(monitors, map[string]interface{}{
			"name":    entry.Monitor.Name,
			"enabled": entry.Monitor.Enabled,
			"queued":  entry.Monitor.Queued,
			"running": entry.Monitor.Running,
		})
	}

	s.respond(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"monitors": monitors,
	})
}

func (s *Server) handleMonitorList(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.List()
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Monitor.Name)
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"monitors": names})
}

func (s *Server) handleMonitorGet(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.registry.GetByName(chi.URLParam(r, "name"))
	if !ok {
		s.respondError(w, errors.NotFound("Monitor"))
		return
	}
	s.respond(w, http.StatusOK, entry.Monitor)
}

// handleMonitorValidate checks a posted manifest without touching state
func (s *Server) handleMonitorValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.respondError(w, errors.BadRequest("failed to read request body"))
		return
	}

	manifest, err := monitordef.ParseManifest(body)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if manifest.Alert != nil {
		if _, err := manifest.Alert.Rule.Build(); err != nil {
			s.respondError(w, err)
			return
		}
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"valid": true, "name": manifest.Name})
}

func (s *Server) handleMonitorRegister(w http.ResponseWriter, r *http.Request) {
	s.enqueueRequest(w, r, executor.ActionMonitorRegister, map[string]interface{}{
		"monitor_name": chi.URLParam(r, "name"),
	})
}

func (s *Server) monitorAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.enqueueRequest(w, r, action, map[string]interface{}{
			"monitor_name": chi.URLParam(r, "name"),
		})
	}
}

func (s *Server) alertAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.respondError(w, errors.BadRequest("invalid alert id"))
			return
		}
		s.enqueueRequest(w, r, action, map[string]interface{}{"alert_id": id})
	}
}

func (s *Server) handleIssueDrop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, errors.BadRequest("invalid issue id"))
		return
	}
	s.enqueueRequest(w, r, executor.ActionIssueDrop, map[string]interface{}{"issue_id": id})
}

// enqueueRequest publishes the action as a request message; the executor
// applies it
func (s *Server) enqueueRequest(w http.ResponseWriter, r *http.Request, action string, params map[string]interface{}) {
	payload := queue.RequestPayload{Action: action, Params: params}
	if err := s.queue.Send(r.Context(), queue.KindRequest, payload); err != nil {
		metrics.RecordQueueError()
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "action": action})
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.ErrorWithErr(err, "Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{"error": err.Error()}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		status = appErr.StatusCode
		body["code"] = appErr.Code
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
	}
	s.respond(w, status, body)
}
