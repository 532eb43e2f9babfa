package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
	"github.com/veoflow/veoflow/internal/services/render"
)

// RenderHandler exposes render task submission and status
type RenderHandler struct {
	service *render.Service
	logger  arbor.ILogger
}

// NewRenderHandler creates a render handler
func NewRenderHandler(service *render.Service, logger arbor.ILogger) *RenderHandler {
	return &RenderHandler{
		service: service,
		logger:  logger,
	}
}

type submitRequest struct {
	SceneID   string                `json:"scene_id"`
	ProjectID string                `json:"project_id"`
	Prompt    string                `json:"prompt"`
	Settings  models.RenderSettings `json:"settings"`
}

// SubmitHandler handles POST /api/render
func (h *RenderHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	task, err := h.service.Submit(r.Context(), req.SceneID, req.ProjectID, req.Prompt, req.Settings)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, task)
}

// ListTasksHandler handles GET /api/tasks
func (h *RenderHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tasks, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list render tasks")
		WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

// GetTaskHandler handles GET /api/tasks/{id}
func (h *RenderHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "Task ID is required")
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrTaskNotFound) {
			WriteError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error().Err(err).Str("task_id", id).Msg("Failed to get render task")
		WriteError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	WriteJSON(w, http.StatusOK, task)
}
