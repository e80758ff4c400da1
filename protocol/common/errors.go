package common

import (
	"errors"
	"fmt"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/status"
)

var (
	TransportFailureError     = sdkerrors.New("TransportFailure Error", 300, "node could not be reached")
	PrecheckRejectedError     = sdkerrors.New("PrecheckRejected Error", 301, "node rejected the request at precheck")
	ReceiptRejectedError      = sdkerrors.New("ReceiptRejected Error", 302, "transaction reached consensus with a failing status")
	MaxPaymentExceededError   = sdkerrors.New("MaxPaymentExceeded Error", 303, "query cost is above the allowed payment")
	MaxAttemptsExceededError  = sdkerrors.New("MaxAttemptsExceeded Error", 304, "request ran out of attempts")
	DeadlineExceededError     = sdkerrors.New("DeadlineExceeded Error", 305, "request deadline exceeded")
	ConstructionError         = sdkerrors.New("Construction Error", 306, "request could not be built")
	NoHealthyNodeError        = sdkerrors.New("NoHealthyNode Error", 307, "no node is available")
	ChunkSequenceAbortedError = sdkerrors.New("ChunkSequenceAborted Error", 308, "chunked submission stopped early")
)

// PrecheckStatusError carries the status a node answered with when it refused a request.
type PrecheckStatusError struct {
	Status        status.Code
	TransactionID ledgertypes.TransactionID
	NodeID        ledgertypes.AccountID
}

func (e *PrecheckStatusError) Error() string {
	return fmt.Sprintf("precheck failed with %s for transaction %s on node %s", e.Status, e.TransactionID, e.NodeID)
}

func (e *PrecheckStatusError) Unwrap() error {
	return PrecheckRejectedError
}

// ReceiptStatusError is returned when the receipt reports a failed transaction. The
// receipt is kept so callers can still inspect it.
type ReceiptStatusError struct {
	Receipt ledgertypes.Receipt
}

func (e *ReceiptStatusError) Error() string {
	return fmt.Sprintf("receipt for transaction %s has status %s", e.Receipt.TransactionID, e.Receipt.Status)
}

func (e *ReceiptStatusError) Unwrap() error {
	return ReceiptRejectedError
}

type MaxQueryPaymentError struct {
	Cost ledgertypes.Amount
	Max  ledgertypes.Amount
}

func (e *MaxQueryPaymentError) Error() string {
	return fmt.Sprintf("query cost %s is above the maximum payment %s", e.Cost, e.Max)
}

func (e *MaxQueryPaymentError) Unwrap() error {
	return MaxPaymentExceededError
}

type MaxAttemptsError struct {
	Attempts int
	LastErr  error
}

func (e *MaxAttemptsError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("gave up after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("gave up after %d attempts, last error: %s", e.Attempts, e.LastErr)
}

func (e *MaxAttemptsError) Unwrap() []error {
	if e.LastErr == nil {
		return []error{MaxAttemptsExceededError}
	}
	return []error{MaxAttemptsExceededError, e.LastErr}
}

// ChunkSequenceError reports how far a chunked submission got before a chunk failed.
type ChunkSequenceError struct {
	Completed   int
	FailedIndex int
	Total       int
	Cause       error
}

func (e *ChunkSequenceError) Error() string {
	return fmt.Sprintf("chunk %d of %d failed after %d completed: %s", e.FailedIndex+1, e.Total, e.Completed, e.Cause)
}

func (e *ChunkSequenceError) Unwrap() []error {
	return []error{ChunkSequenceAbortedError, e.Cause}
}

// IsTerminal reports whether err is an outcome the ledger itself decided, as opposed to
// one caused by the client or the path to the node.
func IsTerminal(err error) bool {
	return errors.Is(err, PrecheckRejectedError) || errors.Is(err, ReceiptRejectedError)
}
