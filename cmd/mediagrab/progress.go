package main

import (
	"context"
	"time"

	"github.com/cheggaaa/pb/v3"
	gorillaws "github.com/gorilla/websocket"

	"github.com/openmusicplayer/mediagrab/internal/download"
	"github.com/openmusicplayer/mediagrab/internal/websocket"
)

const pollInterval = 250 * time.Millisecond

// progressView renders task updates onto a terminal progress bar.
type progressView struct {
	bar *pb.ProgressBar
}

func newProgressView(title string) *progressView {
	bar := pb.Full.Start64(100)
	bar.Set("prefix", title+" ")
	return &progressView{bar: bar}
}

func (v *progressView) update(progress float64, speed string) {
	v.bar.SetCurrent(int64(progress))
	if speed != "" {
		v.bar.Set("suffix", " "+speed)
	}
}

func (v *progressView) finish() {
	v.bar.Finish()
}

// follow renders progress for task until it reaches a terminal status and
// returns the final snapshot. The WebSocket stream is preferred; polling is
// used when it cannot be opened.
func follow(ctx context.Context, c *apiClient, task download.Task) (download.Task, error) {
	view := newProgressView(task.Title)
	defer view.finish()

	if err := followStream(ctx, c, task.ID, view); err != nil {
		if err := followPoll(ctx, c, task.ID, view); err != nil {
			return download.Task{}, err
		}
	}
	return c.Task(ctx, task.ID)
}

func followStream(ctx context.Context, c *apiClient, taskID string, view *progressView) error {
	target, err := c.wsURL(taskID)
	if err != nil {
		return err
	}
	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg websocket.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msg.Type == websocket.TypeTaskRemoved {
			return nil
		}
		view.update(msg.Progress, msg.Speed)
		if isTerminal(msg.Status) {
			return nil
		}
	}
}

func followPoll(ctx context.Context, c *apiClient, taskID string, view *progressView) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := c.Task(ctx, taskID)
		if err != nil {
			return err
		}
		view.update(task.Progress, task.Speed)
		if task.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminal(s download.Status) bool {
	t := download.Task{Status: s}
	return t.IsTerminal()
}
