package executor

import (
	"context"
	"errors"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/utils"
)

// Future is the pending result of ExecuteAsync.
type Future[T any] struct {
	done   chan struct{}
	handle Handle[T]
	err    error
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait returns the result, or ctx's error if ctx ends first. The operation itself keeps
// running under the context it was started with.
func (f *Future[T]) Wait(ctx context.Context) (Handle[T], error) {
	select {
	case <-f.done:
		return f.handle, f.err
	case <-ctx.Done():
		return Handle[T]{}, ctx.Err()
	}
}

// ExecuteAsync runs the same state machine as Execute in its own goroutine. When the
// executor bounds async work the operation first waits for a slot.
func ExecuteAsync[T any](ctx context.Context, ex *Executor, op Operation[T]) *Future[T] {
	future := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(future.done)
		if ex.async != nil {
			if err := ex.async.Acquire(ctx, 1); err != nil {
				future.err = utils.FormatWarning("async slot not acquired", errors.Join(common.DeadlineExceededError, err),
					utils.LogAttr("operation", op.Name))
				return
			}
			defer ex.async.Release(1)
		}
		future.handle, future.err = Execute(ctx, ex, op)
	}()
	return future
}
