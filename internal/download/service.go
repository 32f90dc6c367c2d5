package download

import (
	"context"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

// ServiceConfig holds configuration for the download service
type ServiceConfig struct {
	TickInterval   time.Duration
	MaxIncrement   float64
	MaxRunDuration time.Duration
	// MaxRetries caps explicit retries per task. Zero means unlimited.
	MaxRetries    int
	Seed          uint64
	ArtifactScale int64
	ArtifactURL   func(taskID string) string

	// Clock and Rand override the real clock and seeded source. Tests use them.
	Clock Clock
	Rand  *Rand
}

// SubmitRequest is what a client asks for.
type SubmitRequest struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Quality  string `json:"quality"`
	Title    string `json:"title,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Service is the client-facing API over an isolated registry, engine and
// dispatcher. Separate services share nothing.
type Service struct {
	registry   *Registry
	engine     *Engine
	dispatch   *dispatcher
	maxRetries int
	log        *logger.Logger
}

// NewService creates a new download service
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = NewRand(cfg.Seed)
	}

	log := logger.Default().WithComponent("download")
	d := newDispatcher(log)
	registry := NewRegistry(clock.Now, d.enqueue)
	engine := NewEngine(registry, &EngineConfig{
		TickInterval:   cfg.TickInterval,
		MaxIncrement:   cfg.MaxIncrement,
		MaxRunDuration: cfg.MaxRunDuration,
		Clock:          clock,
		Rand:           rnd,
		Producer:       artifact.NewProducer(cfg.ArtifactScale),
		ArtifactURL:    cfg.ArtifactURL,
	})

	return &Service{
		registry:   registry,
		engine:     engine,
		dispatch:   d,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
}

// Submit validates the request, creates a task and starts its run.
// Validation failures create nothing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Task, error) {
	if s.engine.Stopped() {
		return Task{}, ErrEngineStopped
	}

	task, err := s.registry.Create(NewTask{
		URL:      req.URL,
		Format:   req.Format,
		Quality:  req.Quality,
		Title:    req.Title,
		Duration: req.Duration,
	})
	if err != nil {
		return Task{}, err
	}

	if err := s.engine.Start(task.ID); err != nil {
		// Close raced with this submit; a task that can never run is dropped.
		s.registry.Remove(task.ID)
		return Task{}, err
	}

	s.log.Info(apperrors.WithTaskID(ctx, task.ID), "task submitted", map[string]interface{}{
		"format":   task.Format,
		"quality":  task.Quality,
		"platform": task.Platform,
	})
	return s.registry.Get(task.ID)
}

// Get retrieves a task by ID
func (s *Service) Get(id string) (Task, error) {
	return s.registry.Get(id)
}

// List returns every task, newest first.
func (s *Service) List() []Task {
	return s.registry.List()
}

// Stats counts tasks by status.
func (s *Service) Stats() Stats {
	return s.registry.Stats()
}

// ActiveRuns returns the number of runs currently in flight.
func (s *Service) ActiveRuns() int {
	return s.engine.Active()
}

// Update patches a task.
func (s *Service) Update(id string, patch Patch) (Task, error) {
	return s.registry.Update(id, patch)
}

// Cancel stops a pending or running task.
func (s *Service) Cancel(ctx context.Context, id string) (Task, error) {
	task, err := s.registry.Cancel(id)
	if err != nil {
		return Task{}, err
	}
	s.log.Info(apperrors.WithTaskID(ctx, id), "task cancelled", map[string]interface{}{"progress": task.Progress})
	return task, nil
}

// Retry resets a failed or cancelled task and runs it again under the same id.
func (s *Service) Retry(ctx context.Context, id string) (Task, error) {
	task, err := s.registry.Reset(id, s.maxRetries)
	if err != nil {
		return Task{}, err
	}
	if err := s.engine.Start(id); err != nil {
		return Task{}, err
	}
	s.log.Info(apperrors.WithTaskID(ctx, id), "task retried", map[string]interface{}{"retry_count": task.RetryCount})
	return s.registry.Get(id)
}

// Remove deletes a task, cancelling its run first.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.registry.Remove(id); err != nil {
		return err
	}
	s.log.Info(apperrors.WithTaskID(ctx, id), "task removed")
	return nil
}

// Clear removes every task and returns how many were removed.
func (s *Service) Clear(ctx context.Context) int {
	n := s.registry.Clear()
	s.log.Info(ctx, "tasks cleared", map[string]interface{}{"count": n})
	return n
}

// Artifact returns the payload of a completed task.
func (s *Service) Artifact(id string) (*artifact.Artifact, error) {
	return s.registry.Artifact(id)
}

// OnUpdate registers fn for events of taskID, or of every task when taskID
// is empty. fn runs on the dispatch goroutine and must not block for long.
func (s *Service) OnUpdate(taskID string, fn func(Event)) (unsubscribe func()) {
	return s.dispatch.subscribe(taskID, fn)
}

// Subscribe returns a buffered channel subscription for taskID, or for every
// task when taskID is empty.
func (s *Service) Subscribe(taskID string) *Subscription {
	return newSubscription(s.dispatch, taskID)
}

// Wait blocks until the task is terminal, removed, or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (Task, error) {
	sub := s.Subscribe(id)
	defer sub.Close()

	// Checked after subscribing so a transition in between is not missed.
	task, err := s.registry.Get(id)
	if err != nil {
		return Task{}, err
	}
	if task.IsTerminal() {
		return task, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case ev, ok := <-sub.Channel():
			if !ok {
				return s.registry.Get(id)
			}
			if ev.Kind == EventRemoved {
				return Task{}, apperrors.TaskNotFound(id)
			}
			if ev.Task.IsTerminal() {
				return ev.Task, nil
			}
		}
	}
}

// Close stops every run and flushes pending events.
func (s *Service) Close(ctx context.Context) error {
	if err := s.engine.Stop(ctx); err != nil {
		return err
	}
	return s.dispatch.close(ctx)
}
