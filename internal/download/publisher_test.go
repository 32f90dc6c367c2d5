package download

import (
	"context"
	"os"
	"testing"
	"time"
)

func newTestPublisher(t *testing.T) *RedisPublisher {
	t.Helper()
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	p, err := NewRedisPublisher(redisURL, "mediagrab:test:"+time.Now().Format("150405.000000"))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestRedisPublisher_RoundTrip(t *testing.T) {
	p := newTestPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := p.Subscribe(ctx, "task-1")
	defer sub.Close()
	events := sub.Channel()

	// Subscribe is asynchronous; give it a moment to register.
	time.Sleep(50 * time.Millisecond)

	want := Event{Seq: 7, Kind: EventUpdated, Task: Task{ID: "task-1", Status: StatusRunning, Progress: 42.5}}
	if err := p.Publish(ctx, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-events:
		if got.Seq != want.Seq || got.Task.ID != "task-1" || got.Task.Progress != 42.5 {
			t.Errorf("unexpected event %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("did not receive published event")
	}
}

func TestRedisPublisher_ForwardsServiceEvents(t *testing.T) {
	p := newTestPublisher(t)
	svc, _ := newFakeService(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := p.Subscribe(ctx, "")
	defer sub.Close()
	events := sub.Channel()
	time.Sleep(50 * time.Millisecond)

	go p.Run(ctx, svc)
	time.Sleep(20 * time.Millisecond)

	task, err := svc.Submit(ctx, songRequest)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case got := <-events:
		if got.Task.ID != task.ID {
			t.Errorf("expected event for %s, got %s", task.ID, got.Task.ID)
		}
	case <-ctx.Done():
		t.Fatal("service event was not forwarded")
	}
}
