package metrics

import (
	"github.com/openmusicplayer/mediagrab/internal/download"
)

// TaskSource is the part of download.Service the observer uses.
type TaskSource interface {
	OnUpdate(taskID string, fn func(download.Event)) (unsubscribe func())
	ActiveRuns() int
	Stats() download.Stats
}

// ObserveTasks counts status transitions from src and registers gauges for
// active runs and tasks per status. The returned function stops observing.
func (m *Metrics) ObserveTasks(src TaskSource) (stop func()) {
	m.Sample("active_runs", "Runs currently ticking", func() float64 {
		return float64(src.ActiveRuns())
	})
	for _, status := range []download.Status{
		download.StatusPending,
		download.StatusRunning,
		download.StatusCompleted,
		download.StatusFailed,
		download.StatusCancelled,
	} {
		m.Sample("tasks_"+string(status), "Tasks currently "+string(status), func() float64 {
			return float64(src.Stats()[status])
		})
	}

	return src.OnUpdate("", m.observe)
}

// observe runs on the dispatcher goroutine. Events arrive for every tick, so
// only status changes are counted.
func (m *Metrics) observe(ev download.Event) {
	id := ev.Task.ID

	if ev.Kind == download.EventRemoved {
		m.mu.Lock()
		delete(m.lastStatus, id)
		m.mu.Unlock()
		m.RecordRemoval()
		return
	}

	status := string(ev.Task.Status)
	m.mu.Lock()
	changed := m.lastStatus[id] != status
	m.lastStatus[id] = status
	m.mu.Unlock()
	if !changed {
		return
	}

	m.RecordTransition(status)

	t := ev.Task
	if t.Status == download.StatusCompleted && t.Artifact != nil && t.StartedAt != nil && t.CompletedAt != nil {
		m.RecordArtifact(t.Artifact.Size, t.CompletedAt.Sub(*t.StartedAt))
	}
}
