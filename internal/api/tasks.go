package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

type TaskHandlers struct {
	tasks *download.Service
}

func NewTaskHandlers(tasks *download.Service) *TaskHandlers {
	return &TaskHandlers{tasks: tasks}
}

// TaskListResponse is returned by GET /api/v1/tasks
type TaskListResponse struct {
	Data  []download.Task `json:"data"`
	Total int             `json:"total"`
	Stats download.Stats  `json:"stats"`
}

// UpdateTaskRequest is the body of PATCH /api/v1/tasks/{id}
type UpdateTaskRequest struct {
	Title *string `json:"title"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, data)
}

// CreateTask handles POST /api/v1/tasks
func (h *TaskHandlers) CreateTask(w http.ResponseWriter, r *http.Request) error {
	var req download.SubmitRequest
	if err := apperrors.DecodeJSON(r, &req); err != nil {
		return err
	}
	if req.URL == "" {
		return apperrors.ValidationError("url is required")
	}

	task, err := h.tasks.Submit(r.Context(), req)
	if err != nil {
		return err
	}

	w.Header().Set("Location", "/api/v1/tasks/"+task.ID)
	writeJSON(w, r, http.StatusCreated, task)
	return nil
}

// ListTasks handles GET /api/v1/tasks, newest first. ?status= filters.
func (h *TaskHandlers) ListTasks(w http.ResponseWriter, r *http.Request) error {
	tasks := h.tasks.List()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	writeJSON(w, r, http.StatusOK, TaskListResponse{
		Data:  tasks,
		Total: len(tasks),
		Stats: h.tasks.Stats(),
	})
	return nil
}

// ClearTasks handles DELETE /api/v1/tasks
func (h *TaskHandlers) ClearTasks(w http.ResponseWriter, r *http.Request) error {
	n := h.tasks.Clear(r.Context())
	writeJSON(w, r, http.StatusOK, map[string]int{"removed": n})
	return nil
}

// GetTask handles GET /api/v1/tasks/{id}
func (h *TaskHandlers) GetTask(w http.ResponseWriter, r *http.Request) error {
	task, err := h.tasks.Get(r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, task)
	return nil
}

// UpdateTask handles PATCH /api/v1/tasks/{id}
func (h *TaskHandlers) UpdateTask(w http.ResponseWriter, r *http.Request) error {
	var req UpdateTaskRequest
	if err := apperrors.DecodeJSON(r, &req); err != nil {
		return err
	}
	if req.Title == nil {
		return apperrors.ValidationError("nothing to update")
	}

	task, err := h.tasks.Update(r.PathValue("id"), download.Patch{Title: req.Title})
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, task)
	return nil
}

// DeleteTask handles DELETE /api/v1/tasks/{id}
func (h *TaskHandlers) DeleteTask(w http.ResponseWriter, r *http.Request) error {
	if err := h.tasks.Remove(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// CancelTask handles POST /api/v1/tasks/{id}/cancel
func (h *TaskHandlers) CancelTask(w http.ResponseWriter, r *http.Request) error {
	task, err := h.tasks.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, task)
	return nil
}

// RetryTask handles POST /api/v1/tasks/{id}/retry
func (h *TaskHandlers) RetryTask(w http.ResponseWriter, r *http.Request) error {
	task, err := h.tasks.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, task)
	return nil
}

// GetArtifact handles GET /api/v1/tasks/{id}/artifact. Range requests are
// supported.
func (h *TaskHandlers) GetArtifact(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")

	task, err := h.tasks.Get(id)
	if err != nil {
		return err
	}
	a, err := h.tasks.Artifact(id)
	if err != nil {
		return err
	}

	modtime := time.Time{}
	if task.CompletedAt != nil {
		modtime = *task.CompletedAt
	}

	w.Header().Set("Content-Type", a.MIMEType)
	w.Header().Set("Content-Disposition", artifact.ContentDisposition(a.Filename))
	http.ServeContent(w, r, a.Filename, modtime, bytes.NewReader(a.Data))
	return nil
}

// Inspect handles GET /api/v1/info?url=
func (h *TaskHandlers) Inspect(w http.ResponseWriter, r *http.Request) error {
	url := r.URL.Query().Get("url")
	if url == "" {
		return apperrors.ValidationError("url is required")
	}

	info, err := h.tasks.Inspect(url)
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, info)
	return nil
}

// Formats handles GET /api/v1/formats
func (h *TaskHandlers) Formats(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, r, http.StatusOK, map[string]any{"formats": artifact.Options()})
	return nil
}
