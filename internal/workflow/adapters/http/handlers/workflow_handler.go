// Package handlers exposes the workflow manager over HTTP. Handlers stay
// thin: decode, call the manager, translate errors.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/botflow-io/botflow/internal/engine"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/platform/response"
	"github.com/botflow-io/botflow/internal/workflow/adapters/http/dto"
	"github.com/botflow-io/botflow/internal/workflow/app/service"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/internal/workflow/domain/repository"
)

// WorkflowHandler serves the workflow API.
type WorkflowHandler struct {
	manager *service.Manager
	log     logger.Logger
}

// NewWorkflowHandler creates the handler.
func NewWorkflowHandler(manager *service.Manager, log logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{manager: manager, log: log}
}

// RegisterRoutes mounts all workflow routes on the router.
func (h *WorkflowHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/workflows", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/workflows", h.List).Methods(http.MethodGet)
	r.HandleFunc("/workflows/import", h.Import).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/workflows/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/activate", h.Activate).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/deactivate", h.Deactivate).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/bind", h.BindBot).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/unbind", h.UnbindBot).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/execute", h.Execute).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/executions", h.ListExecutions).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/export", h.Export).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/debug", h.Debug).Methods(http.MethodPost)
	r.HandleFunc("/debug-sessions/{session_id}", h.SessionSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/debug-sessions/{session_id}/step", h.SessionStep).Methods(http.MethodPost)
	r.HandleFunc("/debug-sessions/{session_id}/continue", h.SessionContinue).Methods(http.MethodPost)
	r.HandleFunc("/debug-sessions/{session_id}", h.SessionStop).Methods(http.MethodDelete)
	r.HandleFunc("/bots/{bot_id}/events", h.MessageEvent).Methods(http.MethodPost)
	r.HandleFunc("/nodes", h.NodeManifests).Methods(http.MethodGet)
}

// Create handles POST /workflows
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}

	created, err := h.manager.Create(r.Context(), req.ToModel())
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, created)
}

// List handles GET /workflows
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("bot_id")
	status := model.WorkflowStatus(r.URL.Query().Get("status"))

	workflows, err := h.manager.List(r.Context(), botID, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, workflows)
}

// Get handles GET /workflows/{id}
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	wf, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wf)
}

// Update handles PUT /workflows/{id}
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}

	wf, err := h.manager.Update(r.Context(), mux.Vars(r)["id"], req.ToUpdate())
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wf)
}

// Delete handles DELETE /workflows/{id}
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// Activate handles POST /workflows/{id}/activate
func (h *WorkflowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	wf, err := h.manager.Activate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wf)
}

// Deactivate handles POST /workflows/{id}/deactivate
func (h *WorkflowHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	wf, err := h.manager.Deactivate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wf)
}

// BindBot handles POST /workflows/{id}/bind
func (h *WorkflowHandler) BindBot(w http.ResponseWriter, r *http.Request) {
	var req dto.BindBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}
	if req.BotID == "" {
		response.Error(w, response.ErrBadRequest.WithDetails("bot_id", "required"))
		return
	}

	wf, err := h.manager.BindBot(r.Context(), mux.Vars(r)["id"], req.BotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wf)
}

// UnbindBot handles POST /workflows/{id}/unbind
func (h *WorkflowHandler) UnbindBot(w http.ResponseWriter, r *http.Request) {
	wf, err := h.manager.UnbindBot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wf)
}

// Execute handles POST /workflows/{id}/execute
func (h *WorkflowHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req dto.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = model.TriggerManual
	}

	result, err := h.manager.ExecuteWorkflow(r.Context(), mux.Vars(r)["id"], req.TriggerType, req.TriggerData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, result)
}

// ListExecutions handles GET /workflows/{id}/executions
func (h *WorkflowHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.manager.ListExecutions(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, records)
}

// Import handles POST /workflows/import with a YAML body.
func (h *WorkflowHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}

	wf, err := h.manager.Import(r.Context(), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, wf)
}

// Export handles GET /workflows/{id}/export and returns a YAML document.
func (h *WorkflowHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Debug handles POST /workflows/{id}/debug
func (h *WorkflowHandler) Debug(w http.ResponseWriter, r *http.Request) {
	var req dto.DebugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = model.TriggerManual
	}

	session, err := h.manager.DebugWorkflow(r.Context(), mux.Vars(r)["id"], req.TriggerType, req.TriggerData, req.Breakpoints, req.StepMode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, map[string]any{
		"session_id":  session.ID,
		"workflow_id": session.WorkflowID,
		"status":      session.Status(),
		"started_at":  session.StartedAt,
	})
}

// SessionSnapshot handles GET /debug-sessions/{session_id}
func (h *WorkflowHandler) SessionSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.SnapshotSession(mux.Vars(r)["session_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, snap)
}

// SessionStep handles POST /debug-sessions/{session_id}/step
func (h *WorkflowHandler) SessionStep(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StepSession(mux.Vars(r)["session_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]string{"status": "stepped"})
}

// SessionContinue handles POST /debug-sessions/{session_id}/continue
func (h *WorkflowHandler) SessionContinue(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ContinueSession(mux.Vars(r)["session_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]string{"status": "resumed"})
}

// SessionStop handles DELETE /debug-sessions/{session_id}
func (h *WorkflowHandler) SessionStop(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StopSession(mux.Vars(r)["session_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// MessageEvent handles POST /bots/{bot_id}/events
func (h *WorkflowHandler) MessageEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.MessageEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}
	if req.EventType == "" {
		response.Error(w, response.ErrBadRequest.WithDetails("event_type", "required"))
		return
	}

	results, err := h.manager.HandleMessageEvent(r.Context(), mux.Vars(r)["bot_id"], req.EventType, req.EventData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, results)
}

// NodeManifests handles GET /nodes
func (h *WorkflowHandler) NodeManifests(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.manager.NodeManifests())
}

// writeError maps domain errors onto API errors.
func (h *WorkflowHandler) writeError(w http.ResponseWriter, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.Error(w, response.ErrNotFound.WithDetails("error", err.Error()))
	case errors.Is(err, repository.ErrDuplicate):
		response.Error(w, response.ErrConflict.WithDetails("error", err.Error()))
	case errors.As(err, &vErr):
		response.Error(w, response.ErrValidation.WithMessage(err.Error()))
	case errors.Is(err, engine.ErrWorkflowNotActive), errors.Is(err, engine.ErrNoStartNode):
		response.Error(w, response.ErrBadRequest.WithMessage(err.Error()))
	default:
		h.log.Error("request failed", "error", err.Error())
		response.Error(w, response.ErrInternal)
	}
}
