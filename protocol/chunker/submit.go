package chunker

import (
	"context"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/txn"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
)

// BuildFunc turns one chunk into the operation that submits it.
type BuildFunc[T any] func(chunk Chunk) (executor.Operation[T], error)

type Options[T any] struct {
	// AfterChunk runs after a chunk is accepted and before the next is sent, usually to
	// wait for the chunk's receipt. An error stops the sequence.
	AfterChunk func(ctx context.Context, chunk Chunk, handle executor.Handle[T]) error
}

type Result[T any] struct {
	Completed int
	Total     int
	Handles   []executor.Handle[T]
}

// Submit sends the chunks one after another. The first failure stops the sequence, the
// chunks after it are never built or sent.
func Submit[T any](ctx context.Context, ex *executor.Executor, plan *Plan, payload []byte, first ledgertypes.TransactionID, build BuildFunc[T], opts Options[T]) (Result[T], error) {
	result := Result[T]{Total: plan.Total}
	chunks, err := plan.Chunks(payload, first)
	if err != nil {
		return result, err
	}
	fail := func(chunk Chunk, cause error) (Result[T], error) {
		return result, utils.FormatWarning("chunk sequence aborted",
			&common.ChunkSequenceError{Completed: result.Completed, FailedIndex: chunk.Index, Total: plan.Total, Cause: cause},
			utils.LogAttr("GUID", ctx), utils.LogAttr("initialTransactionID", first))
	}
	for _, chunk := range chunks {
		op, err := build(chunk)
		if err != nil {
			return fail(chunk, err)
		}
		handle, err := executor.Execute(ctx, ex, op)
		if err != nil {
			return fail(chunk, err)
		}
		result.Handles = append(result.Handles, handle)
		if opts.AfterChunk != nil {
			if err := opts.AfterChunk(ctx, chunk, handle); err != nil {
				return fail(chunk, err)
			}
		}
		result.Completed++
		utils.FormatDebug("chunk accepted",
			utils.LogAttr("GUID", ctx),
			utils.LogAttr("chunk", chunk.Info.Number),
			utils.LogAttr("total", plan.Total),
			utils.LogAttr("transactionID", chunk.ID),
		)
	}
	return result, nil
}

// TransactionChunks builds each chunk from template, with the chunk's id, data and
// chunk info.
func TransactionChunks(template txn.Transaction) BuildFunc[wire.TransactionResponse] {
	return func(chunk Chunk) (executor.Operation[wire.TransactionResponse], error) {
		tx := template
		tx.ID = chunk.ID
		tx.Data = chunk.Data
		info := chunk.Info
		tx.Chunk = &info
		if err := tx.Validate(); err != nil {
			return executor.Operation[wire.TransactionResponse]{}, err
		}
		return tx.Operation(), nil
	}
}
