package download

import (
	"context"
)

// runToken scopes one run of a task. Cancelling it is irreversible; a retry
// gets a fresh token.
type runToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newRunToken(parent context.Context) *runToken {
	ctx, cancel := context.WithCancel(parent)
	return &runToken{ctx: ctx, cancel: cancel}
}

func (t *runToken) Cancel() { t.cancel() }
func (t *runToken) Done() <-chan struct{} { return t.ctx.Done() }
func (t *runToken) Context() context.Context { return t.ctx }

func (t *runToken) Cancelled() bool {
	return t.ctx.Err() != nil
}
