package ledgertypes

import (
	"time"

	"github.com/lavanet/ledgerclient/protocol/status"
)

// ChunkInfo links one chunk of a sequence back to the first chunk.
type ChunkInfo struct {
	InitialTransactionID TransactionID
	Total                int32
	Number               int32
}

// Receipt is the minimal finalized outcome of a transaction.
type Receipt struct {
	Status              status.Code
	TransactionID       TransactionID
	AccountID           *AccountID
	FileID              *AccountID
	TopicID             *AccountID
	TopicSequenceNumber uint64
	TopicRunningHash    []byte
}

// Record is the full finalized outcome, a superset of the receipt.
type Record struct {
	Receipt            Receipt
	TransactionHash    []byte
	ConsensusTimestamp time.Time
	Memo               string
	TransactionFee     Amount
	Transfers          []Transfer
}

type Transfer struct {
	AccountID AccountID
	Amount    Amount
}
