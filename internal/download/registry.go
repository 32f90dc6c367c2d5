package download

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/validators"
)

// NewTask is the input to Registry.Create.
type NewTask struct {
	URL      string
	Format   string
	Quality  string
	Title    string
	Duration string
}

// Patch updates selected fields of a task. Nil fields are left alone.
type Patch struct {
	Title       *string
	DownloadURL *string
}

// Stats counts tasks by status.
type Stats map[Status]int

type record struct {
	task     Task
	run      *runToken
	artifact *artifact.Artifact
}

// Registry owns every task record. All mutations go through its lock, and
// every committed change is handed to the dispatcher before the lock is
// released.
type Registry struct {
	mu      sync.Mutex
	order   []string // newest first
	records map[string]*record
	seq     uint64

	now  func() time.Time
	emit func(Event)
}

// NewRegistry creates an empty registry. emit receives every event in
// commit order and must not block.
func NewRegistry(now func() time.Time, emit func(Event)) *Registry {
	if now == nil {
		now = time.Now
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Registry{
		records: make(map[string]*record),
		now:     now,
		emit:    emit,
	}
}

// Create validates nt and inserts a pending task at the front of the list.
func (r *Registry) Create(nt NewTask) (Task, error) {
	if !validators.IsValidURL(nt.URL) {
		return Task{}, apperrors.ValidationError("url must be an absolute URL with a scheme and host").
			WithDetails(map[string]any{"url": nt.URL})
	}

	format, err := artifact.ParseFormat(nt.Format)
	if err != nil {
		return Task{}, err
	}

	quality := nt.Quality
	if quality == "" {
		quality = format.DefaultQuality()
	}
	if err := artifact.ValidateQuality(format, quality); err != nil {
		return Task{}, err
	}

	title := nt.Title
	if title == "" {
		title = artifact.DefaultTitle(format)
	}
	duration := nt.Duration
	if duration == "" {
		duration = artifact.DefaultDuration
	} else if err := artifact.ValidateDuration(duration); err != nil {
		return Task{}, err
	}

	now := r.now()
	task := Task{
		ID:        uuid.New().String(),
		URL:       nt.URL,
		Platform:  validators.PlatformOf(nt.URL),
		Title:     title,
		Format:    string(format),
		Quality:   quality,
		Duration:  duration,
		FileSize:  artifact.SizeLabel(format, quality),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[task.ID] = &record{task: task}
	r.order = slices.Insert(r.order, 0, task.ID)
	r.publishLocked(EventUpdated, task)

	return task.clone(), nil
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Task{}, apperrors.TaskNotFound(id)
	}
	return rec.task.clone(), nil
}

// List returns snapshots of every task, newest first.
func (r *Registry) List() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].task.clone())
	}
	return out
}

// Stats counts tasks by status.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{}
	for _, rec := range r.records {
		stats[rec.task.Status]++
	}
	return stats
}

// Update applies patch. An absent id is always an error.
func (r *Registry) Update(id string, patch Patch) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Task{}, apperrors.TaskNotFound(id)
	}

	// Validate everything before touching the record.
	if patch.Title != nil && *patch.Title == "" {
		return Task{}, apperrors.ValidationError("title must not be empty")
	}
	if patch.DownloadURL != nil && (rec.task.Status != StatusCompleted || rec.task.Artifact == nil) {
		return Task{}, apperrors.ArtifactNotReady(id)
	}

	if patch.Title != nil {
		rec.task.Title = *patch.Title
	}
	if patch.DownloadURL != nil {
		rec.task.Artifact.DownloadURL = *patch.DownloadURL
	}

	rec.task.UpdatedAt = r.now()
	r.publishLocked(EventUpdated, rec.task)
	return rec.task.clone(), nil
}

// Remove cancels any active run for the task and deletes it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return apperrors.TaskNotFound(id)
	}
	r.removeLocked(id, rec)
	return nil
}

// Clear cancels every active run and removes all tasks. It returns how many
// tasks were removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	for _, id := range slices.Clone(r.order) {
		r.removeLocked(id, r.records[id])
	}
	return n
}

func (r *Registry) removeLocked(id string, rec *record) {
	if rec.run != nil {
		rec.run.Cancel()
		rec.run = nil
	}
	delete(r.records, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.publishLocked(EventRemoved, rec.task)
}

// Cancel stops a pending or running task. Progress is frozen at its last
// committed value.
func (r *Registry) Cancel(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Task{}, apperrors.TaskNotFound(id)
	}
	if !rec.task.IsActive() {
		return Task{}, apperrors.InvalidTransition(string(rec.task.Status), "cancel")
	}

	if rec.run != nil {
		rec.run.Cancel()
	}
	now := r.now()
	rec.task.Status = StatusCancelled
	rec.task.clearTelemetry()
	rec.task.UpdatedAt = now
	rec.task.CompletedAt = &now
	r.publishLocked(EventUpdated, rec.task)

	return rec.task.clone(), nil
}

// Reset moves a failed or cancelled task back to pending under the same id.
func (r *Registry) Reset(id string, maxRetries int) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Task{}, apperrors.TaskNotFound(id)
	}
	if rec.task.Status != StatusFailed && rec.task.Status != StatusCancelled {
		return Task{}, apperrors.InvalidTransition(string(rec.task.Status), "retry")
	}
	if !rec.task.CanRetry(maxRetries) {
		return Task{}, apperrors.RetryLimit(maxRetries)
	}

	rec.run = nil
	rec.artifact = nil
	rec.task.Status = StatusPending
	rec.task.Progress = 0
	rec.task.Error = ""
	rec.task.Artifact = nil
	rec.task.RetryCount++
	rec.task.StartedAt = nil
	rec.task.CompletedAt = nil
	rec.task.clearTelemetry()
	rec.task.UpdatedAt = r.now()
	r.publishLocked(EventUpdated, rec.task)

	return rec.task.clone(), nil
}

// Artifact returns the payload of a completed task.
func (r *Registry) Artifact(id string) (*artifact.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, apperrors.TaskNotFound(id)
	}
	if rec.task.Status != StatusCompleted || rec.artifact == nil {
		return nil, apperrors.ArtifactNotReady(id)
	}
	return rec.artifact, nil
}

// begin moves a pending task to running and hands back its run token.
// started is false when the task was already running.
func (r *Registry) begin(parent context.Context, id string) (tok *runToken, snapshot Task, started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, Task{}, false, apperrors.TaskNotFound(id)
	}
	switch rec.task.Status {
	case StatusRunning:
		return nil, rec.task.clone(), false, nil
	case StatusPending:
	default:
		return nil, Task{}, false, apperrors.InvalidTransition(string(rec.task.Status), "start")
	}

	tok = newRunToken(parent)
	now := r.now()
	rec.run = tok
	rec.task.Status = StatusRunning
	rec.task.StartedAt = &now
	rec.task.UpdatedAt = now
	r.publishLocked(EventUpdated, rec.task)

	return tok, rec.task.clone(), true, nil
}

// commit applies mutate if tok still owns the task's current run. A
// cancelled token, a removed task or a superseded run all discard the write.
func (r *Registry) commit(id string, tok *runToken, mutate func(t *Task, rec *record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return apperrors.TaskNotFound(id)
	}
	if rec.run != tok || tok.Cancelled() || rec.task.Status != StatusRunning {
		return apperrors.Cancelled()
	}

	mutate(&rec.task, rec)
	rec.task.UpdatedAt = r.now()
	if rec.task.IsTerminal() {
		rec.run = nil
		tok.Cancel()
	}
	r.publishLocked(EventUpdated, rec.task)
	return nil
}

func (r *Registry) publishLocked(kind EventKind, t Task) {
	r.seq++
	r.emit(Event{Seq: r.seq, Kind: kind, Task: t.clone()})
}
