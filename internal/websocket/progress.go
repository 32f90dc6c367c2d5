package websocket

import (
	"github.com/openmusicplayer/mediagrab/internal/download"
)

// EventSource is the part of download.Service the tracker listens to.
type EventSource interface {
	OnUpdate(taskID string, fn func(download.Event)) (unsubscribe func())
}

// ProgressTracker forwards task events to the hub.
type ProgressTracker struct {
	hub *Hub
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(hub *Hub) *ProgressTracker {
	return &ProgressTracker{hub: hub}
}

// Attach starts forwarding every event from src. The returned function
// detaches it.
func (pt *ProgressTracker) Attach(src EventSource) (detach func()) {
	return src.OnUpdate("", func(ev download.Event) {
		pt.hub.Broadcast(MessageFor(ev))
	})
}

// HasConnectedClients checks if anyone follows taskID specifically.
func (pt *ProgressTracker) HasConnectedClients(taskID string) bool {
	return pt.hub.ClientCount(taskID) > 0
}

// MessageFor converts an event into the message sent to clients.
func MessageFor(ev download.Event) *ProgressMessage {
	msg := snapshotMessage(ev.Task)
	msg.Seq = ev.Seq
	if ev.Kind == download.EventRemoved {
		msg.Type = TypeTaskRemoved
	}
	return msg
}

func snapshotMessage(t download.Task) *ProgressMessage {
	return &ProgressMessage{
		Type:            TypeTaskProgress,
		TaskID:          t.ID,
		Status:          t.Status,
		Progress:        t.Progress,
		Title:           t.Title,
		Error:           t.Error,
		DownloadedBytes: t.DownloadedBytes,
		TotalBytes:      t.TotalBytes,
		Speed:           t.Speed,
		Artifact:        t.Artifact,
	}
}
