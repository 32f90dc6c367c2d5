package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

const exportQueueSize = 128

// Uploader stores an artifact. Implemented by S3Storage.
type Uploader interface {
	Upload(ctx context.Context, a *artifact.Artifact) (*UploadResult, error)
}

// Presigner produces a temporary download link. Implemented by Client.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration, filename string) (string, error)
}

// TaskSource is the part of download.Service the exporter needs.
type TaskSource interface {
	OnUpdate(taskID string, fn func(download.Event)) (unsubscribe func())
	Artifact(id string) (*artifact.Artifact, error)
	Update(id string, patch download.Patch) (download.Task, error)
}

// Exporter copies completed artifacts to object storage and points the
// task's download URL at a presigned link.
type Exporter struct {
	uploader  Uploader
	presigner Presigner
	tasks     TaskSource
	ttl       time.Duration
	retry     *apperrors.Backoff
	queue     chan string
	log       *logger.Logger

	mu      sync.Mutex
	dropped int
}

// NewExporter creates an exporter. ttl is the lifetime of presigned links.
func NewExporter(uploader Uploader, presigner Presigner, tasks TaskSource, ttl time.Duration) *Exporter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	e := &Exporter{
		uploader:  uploader,
		presigner: presigner,
		tasks:     tasks,
		ttl:       ttl,
		retry:     apperrors.StorageBackoff(),
		queue:     make(chan string, exportQueueSize),
		log:       logger.Default().WithComponent("storage"),
	}
	e.retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		e.log.Warn(context.Background(), "artifact upload failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	}
	return e
}

// Run subscribes to task events and exports each newly completed task until
// ctx is done.
func (e *Exporter) Run(ctx context.Context) {
	unsubscribe := e.tasks.OnUpdate("", e.observe)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			if _, err := e.Export(ctx, id); err != nil {
				e.log.Error(apperrors.WithTaskID(ctx, id), "artifact export failed", err)
			}
		}
	}
}

// observe runs on the dispatcher goroutine, so it only queues.
func (e *Exporter) observe(ev download.Event) {
	if ev.Kind != download.EventUpdated || ev.Task.Status != download.StatusCompleted {
		return
	}
	// Already exported links are absolute; the built-in route is relative.
	if ev.Task.Artifact == nil || !strings.HasPrefix(ev.Task.Artifact.DownloadURL, "/") {
		return
	}

	select {
	case e.queue <- ev.Task.ID:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		e.log.Warn(context.Background(), "export queue full, skipping task", map[string]interface{}{"task_id": ev.Task.ID})
	}
}

// Dropped returns how many completions were skipped because the queue was full.
func (e *Exporter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Export uploads the artifact of task id and records the presigned link on
// the task.
func (e *Exporter) Export(ctx context.Context, id string) (download.Task, error) {
	ctx = apperrors.WithTaskID(ctx, id)

	a, err := e.tasks.Artifact(id)
	if err != nil {
		return download.Task{}, err
	}

	result, err := apperrors.RetryWithResult(ctx, e.retry, func(ctx context.Context) (*UploadResult, error) {
		res, err := e.uploader.Upload(ctx, a)
		if err != nil {
			return nil, apperrors.StorageError("failed to upload artifact").WithCause(err)
		}
		return res, nil
	})
	if err != nil {
		return download.Task{}, err
	}

	link, err := e.presigner.PresignedURL(ctx, result.StorageKey, e.ttl, a.Filename)
	if err != nil {
		return download.Task{}, apperrors.StorageError("failed to presign artifact").WithCause(err)
	}

	task, err := e.tasks.Update(id, download.Patch{DownloadURL: &link})
	if err != nil {
		return download.Task{}, err
	}

	e.log.Info(ctx, "artifact exported", map[string]interface{}{
		"key":    result.StorageKey,
		"is_new": result.IsNew,
		"bytes":  a.Size(),
	})
	return task, nil
}
