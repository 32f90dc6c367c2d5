package websocket

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

// TaskGetter looks up a task snapshot.
type TaskGetter interface {
	Get(id string) (download.Task, error)
}

// Handler handles WebSocket connections.
type Handler struct {
	hub      *Hub
	tasks    TaskGetter
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler creates a new WebSocket handler. allowedOrigins lists the
// accepted Origin headers; "*" or an empty list accepts any.
func NewHandler(hub *Hub, tasks TaskGetter, allowedOrigins []string) *Handler {
	return &Handler{
		hub:   hub,
		tasks: tasks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logger.Default().WithComponent("websocket"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeWS handles GET /api/v1/ws. With ?task_id=<id> the client follows one
// task and first receives its current snapshot; without it the client
// follows every task.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.URL.Query().Get("task_id")

	if taskID != "" {
		if _, err := h.tasks.Get(taskID); err != nil {
			apperrors.WriteError(w, apperrors.GetRequestID(ctx), err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn, taskID)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	// The snapshot is taken after registration so no commit falls between
	// it and the live stream. It may arrive after a newer event.
	if taskID != "" {
		if task, err := h.tasks.Get(taskID); err == nil {
			h.hub.Send(client, snapshotMessage(task))
		}
	}

	h.log.Debug(ctx, "websocket client connected", map[string]interface{}{"task_id": taskID})

	// Start the client's read and write pumps
	go client.WritePump()
	go client.ReadPump()
}

// GetHub returns the hub instance for external access.
func (h *Handler) GetHub() *Hub {
	return h.hub
}
