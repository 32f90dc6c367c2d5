package download

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

const (
	// Default configuration values
	DefaultTickInterval = 500 * time.Millisecond
	DefaultMaxIncrement = 15.0
)

var ErrEngineStopped = errors.New("engine stopped")

// EngineConfig holds configuration for the engine
type EngineConfig struct {
	TickInterval time.Duration
	MaxIncrement float64
	// MaxRunDuration fails a run that has not finished in time. Zero disables it.
	MaxRunDuration time.Duration

	Clock    Clock
	Rand     *Rand
	Producer *artifact.Producer
	// ArtifactURL builds the download URL stored on completed tasks.
	ArtifactURL func(taskID string) string
}

// Engine drives pending tasks through their simulated runs. Each active run
// owns one goroutine and one tick timer.
type Engine struct {
	registry     *Registry
	interval     time.Duration
	maxIncrement float64
	maxRun       time.Duration
	clock        Clock
	rand         *Rand
	producer     *artifact.Producer
	artifactURL  func(string) string
	log          *logger.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	active  atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewEngine creates an engine that commits into registry.
func NewEngine(registry *Registry, cfg *EngineConfig) *Engine {
	if cfg == nil {
		cfg = &EngineConfig{}
	}

	e := &Engine{
		registry:     registry,
		interval:     cfg.TickInterval,
		maxIncrement: cfg.MaxIncrement,
		maxRun:       cfg.MaxRunDuration,
		clock:        cfg.Clock,
		rand:         cfg.Rand,
		producer:     cfg.Producer,
		artifactURL:  cfg.ArtifactURL,
		log:          logger.Default().WithComponent("engine"),
	}
	if e.interval <= 0 {
		e.interval = DefaultTickInterval
	}
	if e.maxIncrement <= 0 {
		e.maxIncrement = DefaultMaxIncrement
	}
	if e.clock == nil {
		e.clock = RealClock{}
	}
	if e.rand == nil {
		e.rand = NewRand(0)
	}
	if e.producer == nil {
		e.producer = artifact.NewProducer(artifact.DefaultScale)
	}
	if e.artifactURL == nil {
		e.artifactURL = func(id string) string { return "/api/v1/tasks/" + id + "/artifact" }
	}
	e.baseCtx, e.stop = context.WithCancel(context.Background())
	return e
}

// Start launches the run for a pending task. Starting a running task is a
// no-op.
func (e *Engine) Start(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineStopped
	}

	tok, task, started, err := e.registry.begin(e.baseCtx, id)
	if err != nil || !started {
		return err
	}

	e.wg.Add(1)
	e.active.Add(1)
	go e.run(tok, task)
	return nil
}

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Active returns the number of runs currently in flight.
func (e *Engine) Active() int {
	return int(e.active.Load())
}

// Stop cancels every run and waits for their goroutines to exit. Task
// records are left as they were.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info(ctx, "engine stopped")
		return nil
	case <-ctx.Done():
		e.log.Warn(ctx, "engine shutdown timed out", map[string]interface{}{"active": e.Active()})
		return ctx.Err()
	}
}

func (e *Engine) run(tok *runToken, task Task) {
	defer e.wg.Done()
	defer e.active.Add(-1)

	ctx := apperrors.WithTaskID(context.Background(), task.ID)
	total := artifact.EstimatedSize(artifact.Format(task.Format), task.Quality)
	started := e.clock.Now()
	progress := 0.0

	var deadline <-chan time.Time
	if e.maxRun > 0 {
		dt := e.clock.NewTimer(e.maxRun)
		defer dt.Stop()
		deadline = dt.C()
	}

	e.log.Debug(ctx, "run started", map[string]interface{}{"retry": task.RetryCount})

	for {
		timer := e.clock.NewTimer(e.interval)
		select {
		case <-tok.Done():
			timer.Stop()
			e.log.Debug(ctx, "run cancelled", map[string]interface{}{"progress": progress})
			return
		case <-deadline:
			timer.Stop()
			e.finish(ctx, tok, task.ID, nil, apperrors.ExternalTimeout("run"))
			return
		case <-timer.C():
		}

		progress = math.Min(progress+e.rand.Float64()*e.maxIncrement, 100)
		if progress >= 100 {
			break
		}

		p := progress
		downloaded := int64(p / 100 * float64(total))
		speed := formatSpeed(downloaded, e.clock.Now().Sub(started))
		err := e.registry.commit(task.ID, tok, func(t *Task, _ *record) {
			t.Progress = p
			t.DownloadedBytes = downloaded
			t.TotalBytes = total
			t.Speed = speed
		})
		if err != nil {
			e.log.Debug(ctx, "tick discarded", map[string]interface{}{"reason": err.Error()})
			return
		}
	}

	// Title may have been patched while running.
	current, err := e.registry.Get(task.ID)
	if err != nil {
		return
	}

	art, err := e.producer.Produce(artifact.Descriptor{
		Title:    current.Title,
		Duration: current.Duration,
		Format:   artifact.Format(current.Format),
		Quality:  current.Quality,
	})
	e.finish(ctx, tok, task.ID, art, err)
}

// finish commits the terminal state of a run.
func (e *Engine) finish(ctx context.Context, tok *runToken, id string, art *artifact.Artifact, runErr error) {
	err := e.registry.commit(id, tok, func(t *Task, rec *record) {
		now := e.clock.Now()
		t.clearTelemetry()
		t.CompletedAt = &now

		if runErr != nil {
			t.Status = StatusFailed
			t.Error = errorMessage(runErr)
			return
		}

		t.Status = StatusCompleted
		t.Progress = 100
		t.Artifact = &ArtifactRef{
			Filename:    art.Filename,
			MIMEType:    art.MIMEType,
			Size:        art.Size(),
			DownloadURL: e.artifactURL(id),
		}
		rec.artifact = art
	})

	switch {
	case err != nil:
		e.log.Debug(ctx, "terminal commit discarded", map[string]interface{}{"reason": err.Error()})
	case runErr != nil:
		e.log.Warn(ctx, "run failed", map[string]interface{}{"error": errorMessage(runErr)})
	default:
		e.log.Info(ctx, "run completed", map[string]interface{}{
			"filename": art.Filename,
			"size":     art.Size(),
		})
	}
}

func errorMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}

func formatSpeed(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 || bytes <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(float64(bytes)/elapsed.Seconds())) + "/s"
}
