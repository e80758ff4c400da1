package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSafeChannelSenderDelivers(t *testing.T) {
	ch := make(chan int, 1)
	sender := NewSafeChannelSender[int](context.Background(), ch)
	require.True(t, sender.Send(1))
	require.Equal(t, 1, <-ch)
	sender.Close()
	_, open := <-ch
	require.False(t, open)
	require.False(t, sender.Send(2))
	sender.Close()
}

func TestSafeChannelSenderCloseUnblocksSend(t *testing.T) {
	ch := make(chan int)
	sender := NewSafeChannelSender[int](context.Background(), ch)
	delivered := make(chan bool)
	go func() {
		delivered <- sender.Send(1)
	}()
	time.Sleep(10 * time.Millisecond)
	sender.Close()
	require.False(t, <-delivered)
}

func TestSafeChannelSenderStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := NewSafeChannelSender[int](ctx, make(chan int))
	cancel()
	require.False(t, sender.Send(1))
}
