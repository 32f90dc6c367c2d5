package download

import (
	"context"
	"fmt"
	"sync"

	"github.com/openmusicplayer/mediagrab/internal/logger"
)

type listener struct {
	taskID string
	fn     func(Event)
}

// dispatcher delivers events to listeners in the order they were enqueued.
// The registry enqueues while holding its lock, so delivery order equals
// commit order. Listeners run on the dispatcher goroutine, one at a time.
type dispatcher struct {
	mu        sync.Mutex
	queue     []Event
	listeners map[uint64]listener
	nextID    uint64
	closed    bool

	wake chan struct{}
	done chan struct{}
	log  *logger.Logger
}

func newDispatcher(log *logger.Logger) *dispatcher {
	d := &dispatcher{
		listeners: make(map[uint64]listener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		log:       log,
	}
	go d.run()
	return d
}

// enqueue never blocks.
func (d *dispatcher) enqueue(ev Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// subscribe registers fn for events of taskID, or all tasks when taskID is
// empty. The returned func unregisters it.
func (d *dispatcher) subscribe(taskID string, fn func(Event)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = listener{taskID: taskID, fn: fn}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) deliver(ev Event) {
	d.mu.Lock()
	targets := make([]listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		if l.taskID == "" || l.taskID == ev.Task.ID {
			targets = append(targets, l)
		}
	}
	d.mu.Unlock()

	for _, l := range targets {
		d.invoke(l, ev)
	}
}

func (d *dispatcher) invoke(l listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error(context.Background(), "update listener panicked", fmt.Errorf("%v", rec), map[string]interface{}{
				"task_id": ev.Task.ID,
				"seq":     ev.Seq,
			})
		}
	}()
	l.fn(ev)
}

// close delivers anything already queued, then stops the goroutine.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
