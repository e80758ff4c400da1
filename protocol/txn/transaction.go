// Package txn turns a transaction description into signed, node specific request units.
package txn

import (
	"context"
	"errors"
	"time"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/lavanet/ledgerclient/utils/sigs"
)

const (
	DefaultValidDuration = 120 * time.Second
	MaxValidDuration     = 180 * time.Second
	MaxMemoBytes         = 100
)

// Transaction describes one submission. It holds no behavior beyond validation and
// serialization, every node gets its own body because the node account is signed.
type Transaction struct {
	ID            ledgertypes.TransactionID
	Kind          string
	Method        string
	Fee           ledgertypes.Amount
	ValidDuration time.Duration
	Memo          string
	Data          []byte
	Chunk         *ledgertypes.ChunkInfo
	Transfers     []ledgertypes.Transfer
	Signers       *sigs.SignerSet
	NodeIDs       []ledgertypes.AccountID
}

func (tx *Transaction) Validate() error {
	attrs := []utils.Attribute{utils.LogAttr("transactionID", tx.ID), utils.LogAttr("kind", tx.Kind)}
	switch {
	case tx.ID.IsZero():
		return utils.FormatWarning("transaction has no id", common.ConstructionError, attrs...)
	case tx.Kind == "" || tx.Method == "":
		return utils.FormatWarning("transaction has no kind or method", common.ConstructionError, attrs...)
	case tx.Fee < 0:
		return utils.FormatWarning("transaction fee is negative", common.ConstructionError, attrs...)
	case tx.ValidDuration < 0 || tx.ValidDuration > MaxValidDuration:
		return utils.FormatWarning("transaction valid duration out of range", common.ConstructionError, append(attrs, utils.LogAttr("validDuration", tx.ValidDuration))...)
	case len(tx.Memo) > MaxMemoBytes:
		return utils.FormatWarning("transaction memo too long", common.ConstructionError, append(attrs, utils.LogAttr("memoBytes", len(tx.Memo)))...)
	case tx.Signers == nil || tx.Signers.Len() == 0:
		return utils.FormatWarning("transaction has no signers", errors.Join(common.ConstructionError, sigs.NoSignersError), attrs...)
	}
	if tx.Chunk != nil && (tx.Chunk.Total <= 0 || tx.Chunk.Number <= 0 || tx.Chunk.Number > tx.Chunk.Total) {
		return utils.FormatWarning("transaction chunk info out of range", common.ConstructionError, append(attrs, utils.LogAttr("chunk", *tx.Chunk))...)
	}
	var sum ledgertypes.Amount
	for _, transfer := range tx.Transfers {
		sum += transfer.Amount
	}
	if sum != 0 {
		return utils.FormatWarning("transfers do not balance", common.ConstructionError, append(attrs, utils.LogAttr("sum", sum))...)
	}
	return nil
}

// SignedRequestUnit is the signed form of a transaction for one node.
type SignedRequestUnit struct {
	Node       ledgertypes.AccountID
	BodyBytes  []byte
	Signatures []sigs.SignaturePair
}

func (u SignedRequestUnit) Marshal() []byte {
	signed := wire.SignedTransaction{BodyBytes: u.BodyBytes}
	for _, pair := range u.Signatures {
		signed.Signatures = append(signed.Signatures, wire.SignaturePair{
			PublicKey: pair.PublicKey.Bytes(),
			Signature: pair.Signature,
			Scheme:    uint32(pair.PublicKey.Scheme()),
		})
	}
	return signed.Marshal()
}

func (tx *Transaction) body(node ledgertypes.AccountID) wire.TransactionBody {
	validDuration := tx.ValidDuration
	if validDuration == 0 {
		validDuration = DefaultValidDuration
	}
	return wire.TransactionBody{
		TransactionID:  tx.ID,
		NodeAccountID:  node,
		TransactionFee: tx.Fee,
		ValidDuration:  validDuration,
		Memo:           tx.Memo,
		Kind:           tx.Kind,
		Data:           tx.Data,
		ChunkInfo:      tx.Chunk,
		Transfers:      tx.Transfers,
	}
}

// BuildUnit encodes and signs the body addressed to node.
func (tx *Transaction) BuildUnit(node network.NodeEndpoint) (SignedRequestUnit, error) {
	body := tx.body(node.NodeID)
	bodyBytes := body.Marshal()
	signatures, err := tx.Signers.Sign(bodyBytes)
	if err != nil {
		return SignedRequestUnit{}, err
	}
	return SignedRequestUnit{Node: node.NodeID, BodyBytes: bodyBytes, Signatures: signatures}, nil
}

// Operation submits the transaction, the precheck answer is the result.
func (tx *Transaction) Operation() executor.Operation[wire.TransactionResponse] {
	return executor.Operation[wire.TransactionResponse]{
		Name:      tx.Kind,
		Method:    tx.Method,
		RequestID: tx.ID,
		NodeIDs:   tx.NodeIDs,
		Serialize: func(node network.NodeEndpoint, attempt int) ([]byte, error) {
			unit, err := tx.BuildUnit(node)
			if err != nil {
				return nil, err
			}
			return unit.Marshal(), nil
		},
		Deserialize: DecodeTransactionResponse,
	}
}

func DecodeTransactionResponse(node network.NodeEndpoint, response []byte) (wire.TransactionResponse, status.Code, error) {
	var decoded wire.TransactionResponse
	if err := decoded.Unmarshal(response); err != nil {
		return decoded, status.Unknown, err
	}
	return decoded, decoded.PrecheckCode, nil
}

// Submit validates tx and drives it through the executor.
func Submit(ctx context.Context, ex *executor.Executor, tx *Transaction) (executor.Handle[wire.TransactionResponse], error) {
	if err := tx.Validate(); err != nil {
		return executor.Handle[wire.TransactionResponse]{}, err
	}
	return executor.Execute(ctx, ex, tx.Operation())
}
