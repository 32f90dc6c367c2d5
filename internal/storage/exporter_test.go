package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

type fakeUploader struct {
	mu       sync.Mutex
	failures int
	calls    int
	keys     []string
}

func (f *fakeUploader) Upload(_ context.Context, a *artifact.Artifact) (*UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	hash := IdentityHash(a.Data)
	key := ObjectKey(hash, a.Filename)
	f.keys = append(f.keys, key)
	return &UploadResult{StorageKey: key, IdentityHash: hash, IsNew: true}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignedURL(_ context.Context, key string, ttl time.Duration, filename string) (string, error) {
	return "https://storage.example/" + key + "?ttl=" + ttl.String(), nil
}

func newFastService(t *testing.T) *download.Service {
	t.Helper()
	svc := download.NewService(&download.ServiceConfig{
		TickInterval:  time.Millisecond,
		MaxIncrement:  100,
		Seed:          1,
		ArtifactScale: 1 << 16,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Close(ctx)
	})
	return svc
}

func completedTask(t *testing.T, svc *download.Service) download.Task {
	t.Helper()
	task, err := svc.Submit(context.Background(), download.SubmitRequest{
		URL:    "https://youtube.com/watch?v=dQw4w9WgXcQ",
		Format: "mp3",
		Title:  "Export Me",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := svc.Wait(ctx, task.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if done.Status != download.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	return done
}

func fastRetry() *apperrors.Backoff {
	return &apperrors.Backoff{Attempts: 4, Base: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestObjectKey(t *testing.T) {
	hash := IdentityHash([]byte("payload"))
	key := ObjectKey(hash, "Song.wav")

	if key != "artifacts/"+hash[:2]+"/"+hash+".wav" {
		t.Errorf("unexpected key %q", key)
	}
	if IdentityHash([]byte("payload")) != hash {
		t.Error("hash must be deterministic")
	}
}

func TestExporter_Export(t *testing.T) {
	svc := newFastService(t)
	task := completedTask(t, svc)

	up := &fakeUploader{failures: 2}
	e := NewExporter(up, fakePresigner{}, svc, 10*time.Minute)
	e.retry = fastRetry()

	updated, err := e.Export(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if up.calls != 3 {
		t.Errorf("expected 2 retries before success, got %d calls", up.calls)
	}
	if !strings.HasPrefix(updated.Artifact.DownloadURL, "https://storage.example/artifacts/") {
		t.Errorf("download URL not replaced: %q", updated.Artifact.DownloadURL)
	}
	if !strings.HasSuffix(updated.Artifact.DownloadURL, "?ttl=10m0s") {
		t.Errorf("expected ttl in link, got %q", updated.Artifact.DownloadURL)
	}

	got, _ := svc.Get(task.ID)
	if got.Artifact.DownloadURL != updated.Artifact.DownloadURL {
		t.Error("task was not updated")
	}
}

func TestExporter_ExportUnknownTask(t *testing.T) {
	svc := newFastService(t)
	e := NewExporter(&fakeUploader{}, fakePresigner{}, svc, time.Minute)

	_, err := e.Export(context.Background(), "missing")
	if !apperrors.HasCode(err, apperrors.CodeTaskNotFound) {
		t.Errorf("expected TASK_NOT_FOUND, got %v", err)
	}
}

func TestExporter_GivesUpAfterRetries(t *testing.T) {
	svc := newFastService(t)
	task := completedTask(t, svc)

	up := &fakeUploader{failures: 100}
	e := NewExporter(up, fakePresigner{}, svc, time.Minute)
	e.retry = fastRetry()

	if _, err := e.Export(context.Background(), task.ID); !apperrors.HasCode(err, apperrors.CodeStorageError) {
		t.Errorf("expected STORAGE_ERROR, got %v", err)
	}
	if up.calls != 4 {
		t.Errorf("expected 4 attempts, got %d", up.calls)
	}

	got, _ := svc.Get(task.ID)
	if !strings.HasPrefix(got.Artifact.DownloadURL, "/api/v1/tasks/") {
		t.Errorf("download URL should be untouched, got %q", got.Artifact.DownloadURL)
	}
}

func TestExporter_RunExportsCompletedTasks(t *testing.T) {
	svc := newFastService(t)
	up := &fakeUploader{}
	e := NewExporter(up, fakePresigner{}, svc, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	// Give Run a moment to subscribe before the task completes.
	time.Sleep(20 * time.Millisecond)
	task := completedTask(t, svc)

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := svc.Get(task.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if strings.HasPrefix(got.Artifact.DownloadURL, "https://") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task was never exported")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The update that records the link must not trigger a second export.
	time.Sleep(50 * time.Millisecond)
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.calls != 1 {
		t.Errorf("expected one upload, got %d", up.calls)
	}
}

func TestConfigEndpoints(t *testing.T) {
	tests := []struct {
		cfg      Config
		wantHost string
		wantBase string
	}{
		{Config{Endpoint: "localhost:9000"}, "localhost:9000", "http://localhost:9000"},
		{Config{Endpoint: "s3.example.com", UseSSL: true}, "s3.example.com", "https://s3.example.com"},
		{Config{Endpoint: "http://minio:9000"}, "minio:9000", "http://minio:9000"},
	}
	for _, tt := range tests {
		if got := tt.cfg.host(); got != tt.wantHost {
			t.Errorf("host(%q) = %q, want %q", tt.cfg.Endpoint, got, tt.wantHost)
		}
		if got := tt.cfg.baseURL(); got != tt.wantBase {
			t.Errorf("baseURL(%q) = %q, want %q", tt.cfg.Endpoint, got, tt.wantBase)
		}
	}
}
