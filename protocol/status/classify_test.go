package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifySubmission(t *testing.T) {
	require.Equal(t, TerminalSuccess, ClassifySubmission(Ok))
	for _, code := range []Code{Busy, PlatformNotActive, PlatformTransactionNotCreated} {
		require.Equal(t, RetryableNode, ClassifySubmission(code), code.String())
	}
	for _, code := range []Code{InvalidSignature, DuplicateTransaction, InsufficientPayerBalance, TransactionExpired, Code(9999)} {
		require.Equal(t, TerminalFailure, ClassifySubmission(code), code.String())
	}
}

func TestClassifyPolling(t *testing.T) {
	for _, code := range []Code{Busy, Unknown, ReceiptNotFound, RecordNotFound} {
		require.Equal(t, RetryablePending, ClassifyPollPrecheck(code), code.String())
	}
	require.Equal(t, TerminalFailure, ClassifyPollPrecheck(InvalidTransactionID))

	require.Equal(t, RetryablePending, ClassifyReceipt(Ok))
	require.Equal(t, TerminalSuccess, ClassifyReceipt(Success))
	require.Equal(t, TerminalFailure, ClassifyReceipt(InsufficientAccountBalance))
}

func TestCodeNames(t *testing.T) {
	require.Equal(t, "RECEIPT_NOT_FOUND", ReceiptNotFound.String())
	require.Equal(t, "CODE_4242", Code(4242).String())

	code, ok := Parse("SUCCESS")
	require.True(t, ok)
	require.Equal(t, Success, code)
	code, ok = Parse("4242")
	require.True(t, ok)
	require.Equal(t, Code(4242), code)
	_, ok = Parse("NOPE")
	require.False(t, ok)
	require.Equal(t, "terminal-failure", TerminalFailure.String())
}
