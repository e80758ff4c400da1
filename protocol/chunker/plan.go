// Package chunker splits payloads that exceed a single request into linked chunks and
// submits them in order.
package chunker

import (
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/utils"
)

const (
	DefaultChunkSize = 1024
	DefaultMaxChunks = 20
)

// Plan is the split of a payload into chunks. Every byte belongs to exactly one chunk
// and chunks keep payload order.
type Plan struct {
	PayloadLen int
	ChunkSize  int
	MaxChunks  int
	Total      int
}

type Chunk struct {
	// Index is 0 based, Info.Number is 1 based.
	Index int
	ID    ledgertypes.TransactionID
	Info  ledgertypes.ChunkInfo
	Start int
	End   int
	Data  []byte
}

// NewPlan fails when the payload needs more than maxChunks chunks, before anything is
// signed or sent. An empty payload is one empty chunk.
func NewPlan(payloadLen, chunkSize, maxChunks int) (*Plan, error) {
	attrs := []utils.Attribute{utils.LogAttr("payloadLen", payloadLen), utils.LogAttr("chunkSize", chunkSize), utils.LogAttr("maxChunks", maxChunks)}
	if payloadLen < 0 || chunkSize <= 0 || maxChunks <= 0 {
		return nil, utils.FormatWarning("invalid chunk parameters", common.ConstructionError, attrs...)
	}
	total := (payloadLen + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}
	if total > maxChunks {
		return nil, utils.FormatWarning("payload needs too many chunks", common.ConstructionError, append(attrs, utils.LogAttr("required", total))...)
	}
	return &Plan{PayloadLen: payloadLen, ChunkSize: chunkSize, MaxChunks: maxChunks, Total: total}, nil
}

// Chunks cuts payload along the plan. Chunk n gets the request id first.ForChunk(n) and
// carries first as its initial id.
func (p *Plan) Chunks(payload []byte, first ledgertypes.TransactionID) ([]Chunk, error) {
	if len(payload) != p.PayloadLen {
		return nil, utils.FormatWarning("payload does not match plan", common.ConstructionError,
			utils.LogAttr("planned", p.PayloadLen), utils.LogAttr("actual", len(payload)))
	}
	chunks := make([]Chunk, 0, p.Total)
	for index := 0; index < p.Total; index++ {
		start := index * p.ChunkSize
		end := start + p.ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, Chunk{
			Index: index,
			ID:    first.ForChunk(index),
			Info: ledgertypes.ChunkInfo{
				InitialTransactionID: first,
				Total:                int32(p.Total),
				Number:               int32(index + 1),
			},
			Start: start,
			End:   end,
			Data:  payload[start:end:end],
		})
	}
	return chunks, nil
}
