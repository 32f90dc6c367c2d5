package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/api"
	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/search"
	"github.com/openmusicplayer/mediagrab/internal/websocket"
)

func newTestClient(t *testing.T) *apiClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	svc := download.NewService(&download.ServiceConfig{
		TickInterval:  5 * time.Millisecond,
		MaxIncrement:  40,
		Seed:          3,
		ArtifactScale: 1 << 12,
	})

	hub := websocket.NewHub()
	go hub.Run(ctx)
	detach := websocket.NewProgressTracker(hub).Attach(svc)

	router := api.NewRouter(&api.Dependencies{
		Tasks:     svc,
		Search:    search.NewHandlers(search.DefaultCatalog()),
		WebSocket: websocket.NewHandler(hub, svc, nil),
	})
	srv := httptest.NewServer(router.Handler())

	t.Cleanup(func() {
		detach()
		cancel()
		srv.Close()
		closeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		svc.Close(closeCtx)
	})
	return newAPIClient(srv.URL)
}

func TestGet_FollowsAndSaves(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := c.Submit(ctx, download.SubmitRequest{
		URL:    "https://soundcloud.com/artist/track",
		Format: "webm",
		Title:  "Night Drive",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	final, err := follow(ctx, c, task)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if final.Status != download.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}

	path, size, err := c.SaveArtifact(ctx, final, t.TempDir())
	if err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if size != final.Artifact.Size {
		t.Errorf("expected %d bytes, wrote %d", final.Artifact.Size, size)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != size {
		t.Errorf("saved file mismatch: %v", err)
	}
}

func TestFollowPoll(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := c.Submit(ctx, download.SubmitRequest{URL: "https://vimeo.com/42", Format: "mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view := newProgressView(task.Title)
	defer view.finish()
	if err := followPoll(ctx, c, task.ID, view); err != nil {
		t.Fatalf("followPoll: %v", err)
	}

	got, err := c.Task(ctx, task.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if !got.IsTerminal() {
		t.Errorf("expected a terminal status, got %s", got.Status)
	}
}

func TestClient_RemoteErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, download.SubmitRequest{URL: "https://vimeo.com/1", Format: "flac"})
	var remote *remoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remoteError, got %v", err)
	}
	if remote.Code != apperrors.CodeValidationError || remote.Status != 400 {
		t.Errorf("unexpected error %+v", remote)
	}

	_, err = c.Task(ctx, "missing")
	if !errors.As(err, &remote) || remote.Code != apperrors.CodeTaskNotFound {
		t.Errorf("expected TASK_NOT_FOUND, got %v", err)
	}
}

func TestClient_SearchAndFormats(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	resp, err := c.Search(ctx, "music", search.Filters{SortBy: search.SortViews}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Data) != 2 || resp.Limit != 2 {
		t.Errorf("unexpected page %+v", resp)
	}

	trending, err := c.Trending(ctx, "")
	if err != nil || len(trending) == 0 {
		t.Errorf("Trending: %v (%d results)", err, len(trending))
	}

	formats, err := c.Formats(ctx)
	if err != nil || len(formats) != 3 {
		t.Errorf("Formats: %v (%d formats)", err, len(formats))
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/v1/ws?task_id=abc"},
		{"https://grab.example.com/", "wss://grab.example.com/api/v1/ws?task_id=abc"},
		{"http://host/prefix", "ws://host/prefix/api/v1/ws?task_id=abc"},
	}
	for _, tt := range tests {
		got, err := newAPIClient(tt.base).wsURL("abc")
		if err != nil {
			t.Fatalf("wsURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("a much longer title", 8); got != "a muc..." {
		t.Errorf("got %q", got)
	}
}
