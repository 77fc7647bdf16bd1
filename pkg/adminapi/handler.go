// Package adminapi is the HTTP adapter over the orchestrator's
// administrative calls. It holds no pipeline state of its own.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"goldtier/pkg/protocol"
)

// Admin is the administrative surface of a running pipeline.
// *orchestrator.Orchestrator implements it.
type Admin interface {
	GetStatus() protocol.Status
	RunCycleNow(ctx context.Context) (*protocol.CycleReport, error)
	AddScheduledJob(spec protocol.JobSpec) (string, error)
	EnableJob(id string) error
	DisableJob(id string) error
	Inject(role protocol.Role, item *protocol.WorkItem) error
}

// InjectRequest is the body of POST /inject.
type InjectRequest struct {
	Role     protocol.Role     `json:"role"`
	Category string            `json:"category"`
	Payload  map[string]any    `json:"payload,omitempty"`
	Priority protocol.Priority `json:"priority,omitempty"`
}

// IDResponse carries the ID of a created job or injected item.
type IDResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type server struct {
	admin  Admin
	logger *slog.Logger
}

// Handler returns the admin routes. metrics may be nil, in which case
// /metrics is not served.
func Handler(admin Admin, metrics http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &server{admin: admin, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /cycle", s.handleCycle)
	mux.HandleFunc("POST /jobs", s.handleAddJob)
	mux.HandleFunc("POST /jobs/{id}/enable", s.handleToggle(true))
	mux.HandleFunc("POST /jobs/{id}/disable", s.handleToggle(false))
	mux.HandleFunc("POST /inject", s.handleInject)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.admin.GetStatus())
}

func (s *server) handleCycle(w http.ResponseWriter, r *http.Request) {
	report, err := s.admin.RunCycleNow(r.Context())
	if err != nil {
		s.logger.Error("manual cycle failed", "error", err)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	var spec protocol.JobSpec
	if err := decode(r, &spec); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	id, err := s.admin.AddScheduledJob(spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("job added", "job", id, "role", spec.Role, "trigger", spec.Trigger)
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (s *server) handleToggle(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var err error
		if enable {
			err = s.admin.EnableJob(id)
		} else {
			err = s.admin.DisableJob(id)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, IDResponse{ID: id})
	}
}

func (s *server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req InjectRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !req.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown role %q", req.Role)})
		return
	}
	category := req.Category
	if category == "" {
		category = protocol.DefaultCategory(req.Role)
	}
	item := protocol.NewWorkItem(category, req.Payload, req.Priority, time.Now())
	if err := s.admin.Inject(req.Role, item); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IDResponse{ID: item.ID})
}

// writeError maps domain errors onto status codes.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var notFound *protocol.JobNotFoundError
	var dup *protocol.DuplicateJobError
	var defect *protocol.FrameworkDefect
	status := http.StatusBadRequest
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &dup):
		status = http.StatusConflict
	case errors.As(err, &defect):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
