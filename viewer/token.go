package viewer

import (
	"context"
	"sync/atomic"
)

// RenderToken is a first-class cancellation handle passed into every
// asynchronous render operation. Cancellation is cooperative: the operation
// checks the token at well-defined checkpoints (before starting and after the
// rasterization call resolves) rather than being preempted.
type RenderToken struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// NewRenderToken derives a token from a parent context. Cancelling the
// parent cancels the token.
func NewRenderToken(parent context.Context) *RenderToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &RenderToken{ctx: ctx, cancel: cancel}
}

// Context returns the context to hand to the rasterization backend
func (t *RenderToken) Context() context.Context {
	return t.ctx
}

// Cancel requests cooperative termination. Safe to call more than once.
func (t *RenderToken) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether cancellation has been requested, either directly
// or through the parent context
func (t *RenderToken) Cancelled() bool {
	if t.cancelled.Load() {
		return true
	}
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Err returns ErrRenderCancelled once the token is cancelled, nil otherwise
func (t *RenderToken) Err() error {
	if t.Cancelled() {
		return ErrRenderCancelled
	}
	return nil
}
