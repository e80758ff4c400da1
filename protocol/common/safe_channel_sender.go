package common

import (
	"context"
	"sync"

	"github.com/lavanet/ledgerclient/utils"
)

// SafeChannelSender delivers to a channel it owns. Send blocks until the reader takes the
// value or the sender is closed, and Close may race with Send without a panic.
type SafeChannelSender[T any] struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	ch        chan<- T
	closed    bool
	lock      sync.Mutex
}

func NewSafeChannelSender[T any](ctx context.Context, ch chan<- T) *SafeChannelSender[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &SafeChannelSender[T]{
		ctx:       ctx,
		cancelCtx: cancel,
		ch:        ch,
	}
}

// Send reports whether msg was delivered.
func (scs *SafeChannelSender[T]) Send(msg T) bool {
	scs.lock.Lock()
	defer scs.lock.Unlock()
	if scs.closed {
		utils.FormatTrace("attempted to send message to closed channel")
		return false
	}
	select {
	case <-scs.ctx.Done():
		return false
	case scs.ch <- msg:
		return true
	}
}

// Close unblocks a pending Send and then closes the channel.
func (scs *SafeChannelSender[T]) Close() {
	scs.cancelCtx()
	scs.lock.Lock()
	defer scs.lock.Unlock()
	if scs.closed {
		return
	}
	close(scs.ch)
	scs.closed = true
}
