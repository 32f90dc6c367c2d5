package download

import (
	"time"
)

// Status is a task's lifecycle state.
type Status string

// Task status constants representing the task lifecycle
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ArtifactRef describes the file a completed task produced.
type ArtifactRef struct {
	Filename    string `json:"filename"`
	MIMEType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// Task is a simulated download as seen by clients. Values handed out by the
// registry are snapshots and may be retained freely.
type Task struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Platform   string  `json:"platform,omitempty"`
	Title      string  `json:"title"`
	Format     string  `json:"format"`
	Quality    string  `json:"quality"`
	Duration   string  `json:"duration"`
	FileSize   string  `json:"file_size"`
	Status     Status  `json:"status"`
	Progress   float64 `json:"progress"`
	RetryCount int     `json:"retry_count"`

	Artifact *ArtifactRef `json:"artifact,omitempty"`
	Error    string       `json:"error,omitempty"`

	// Telemetry, only while running
	DownloadedBytes int64  `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64  `json:"total_bytes,omitempty"`
	Speed           string `json:"speed,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the task is in a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed || t.Status == StatusCancelled
}

// IsActive returns true while the task may still make progress.
func (t *Task) IsActive() bool {
	return t.Status == StatusPending || t.Status == StatusRunning
}

// CanRetry returns true if the task can be retried. A maxRetries of zero
// means unlimited.
func (t *Task) CanRetry(maxRetries int) bool {
	if t.Status != StatusFailed && t.Status != StatusCancelled {
		return false
	}
	return maxRetries <= 0 || t.RetryCount < maxRetries
}

func (t *Task) clearTelemetry() {
	t.DownloadedBytes = 0
	t.TotalBytes = 0
	t.Speed = ""
}

func (t Task) clone() Task {
	if t.Artifact != nil {
		a := *t.Artifact
		t.Artifact = &a
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		t.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// EventKind distinguishes updates from removals.
type EventKind string

const (
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
)

// Event is published after every committed change to a task. Seq increases
// by one per commit across the whole service.
type Event struct {
	Seq  uint64    `json:"seq"`
	Kind EventKind `json:"kind"`
	Task Task      `json:"task"`
}
