package executor

import (
	"context"
	"testing"
	"time"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/testutil/fakenode"
	"github.com/stretchr/testify/require"
)

func blockingHandler(entered chan<- struct{}, release <-chan struct{}) fakenode.Handler {
	return func(ctx context.Context, method string, request []byte) ([]byte, error) {
		entered <- struct{}{}
		<-release
		response := wire.TransactionResponse{PrecheckCode: status.Ok}
		return response.Marshal(), nil
	}
}

func TestExecuteAsyncMatchesExecute(t *testing.T) {
	ex, channels, sleeps := newTestExecutor(t, Config{}, 3, 4)
	channels.Handle(nodeA, fakenode.Sequence(fakenode.Precheck(status.Busy), fakenode.Precheck(status.Ok)))
	channels.Handle(nodeB, fakenode.Sequence(fakenode.Precheck(status.Busy), fakenode.Precheck(status.Ok)))

	const operations = 8
	futures := make([]*Future[wire.TransactionResponse], 0, operations)
	for i := 0; i < operations; i++ {
		futures = append(futures, ExecuteAsync(context.Background(), ex, submitOperation(requestID())))
	}
	attempts := 0
	for _, future := range futures {
		<-future.Done()
		handle, err := future.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, status.Ok, handle.Value.PrecheckCode)
		attempts += handle.Attempts
	}
	require.Equal(t, operations+2, attempts)
	require.Len(t, sleeps.recorded(), 2)
}

func TestExecuteAsyncIsBounded(t *testing.T) {
	ex, channels, _ := newTestExecutor(t, Config{MaxAsync: 1}, 3)
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	channels.Handle(nodeA, blockingHandler(entered, release))

	first := ExecuteAsync(context.Background(), ex, submitOperation(requestID()))
	<-entered
	second := ExecuteAsync(context.Background(), ex, submitOperation(requestID()))

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := second.Wait(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, channels.CallCount(nodeA))

	close(release)
	_, err = first.Wait(context.Background())
	require.NoError(t, err)
	_, err = second.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, channels.CallCount(nodeA))
}

func TestExecuteAsyncSlotRespectsContext(t *testing.T) {
	ex, channels, _ := newTestExecutor(t, Config{MaxAsync: 1}, 3)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	channels.Handle(nodeA, blockingHandler(entered, release))
	first := ExecuteAsync(context.Background(), ex, submitOperation(requestID()))
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	second := ExecuteAsync(ctx, ex, submitOperation(requestID()))
	cancel()
	_, err := second.Wait(context.Background())
	require.ErrorIs(t, err, common.DeadlineExceededError)

	close(release)
	_, err = first.Wait(context.Background())
	require.NoError(t, err)
}
