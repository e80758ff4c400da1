// Package status holds the response codes nodes return and the table that sorts them
// into retryable and terminal outcomes. The numbering follows the network's published
// enumeration, codes this client does not know by name still round trip.
package status

import "strconv"

type Code int32

const (
	Ok                            Code = 0
	InvalidTransaction            Code = 1
	PayerAccountNotFound          Code = 2
	InvalidNodeAccount            Code = 3
	TransactionExpired            Code = 4
	InvalidTransactionStart       Code = 5
	InvalidTransactionDuration    Code = 6
	InvalidSignature              Code = 7
	MemoTooLong                   Code = 8
	InsufficientTxFee             Code = 9
	InsufficientPayerBalance      Code = 10
	DuplicateTransaction          Code = 11
	Busy                          Code = 12
	NotSupported                  Code = 13
	InvalidFileID                 Code = 14
	InvalidAccountID              Code = 15
	InvalidTransactionID          Code = 17
	ReceiptNotFound               Code = 18
	RecordNotFound                Code = 19
	Unknown                       Code = 21
	Success                       Code = 22
	FailInvalid                   Code = 23
	FailFee                       Code = 24
	FailBalance                   Code = 25
	KeyRequired                   Code = 26
	BadEncoding                   Code = 27
	InsufficientAccountBalance    Code = 28
	MissingQueryHeader            Code = 36
	InvalidQueryHeader            Code = 41
	InvalidFeeSubmitted           Code = 42
	InvalidPayerSignature         Code = 43
	InvalidAccountAmounts         Code = 48
	TransactionOversize           Code = 64
	PlatformNotActive             Code = 67
	PlatformTransactionNotCreated Code = 69
	AccountDeleted                Code = 72
	FileDeleted                   Code = 73
)

var codeNames = map[Code]string{
	Ok:                            "OK",
	InvalidTransaction:            "INVALID_TRANSACTION",
	PayerAccountNotFound:          "PAYER_ACCOUNT_NOT_FOUND",
	InvalidNodeAccount:            "INVALID_NODE_ACCOUNT",
	TransactionExpired:            "TRANSACTION_EXPIRED",
	InvalidTransactionStart:       "INVALID_TRANSACTION_START",
	InvalidTransactionDuration:    "INVALID_TRANSACTION_DURATION",
	InvalidSignature:              "INVALID_SIGNATURE",
	MemoTooLong:                   "MEMO_TOO_LONG",
	InsufficientTxFee:             "INSUFFICIENT_TX_FEE",
	InsufficientPayerBalance:      "INSUFFICIENT_PAYER_BALANCE",
	DuplicateTransaction:          "DUPLICATE_TRANSACTION",
	Busy:                          "BUSY",
	NotSupported:                  "NOT_SUPPORTED",
	InvalidFileID:                 "INVALID_FILE_ID",
	InvalidAccountID:              "INVALID_ACCOUNT_ID",
	InvalidTransactionID:          "INVALID_TRANSACTION_ID",
	ReceiptNotFound:               "RECEIPT_NOT_FOUND",
	RecordNotFound:                "RECORD_NOT_FOUND",
	Unknown:                       "UNKNOWN",
	Success:                       "SUCCESS",
	FailInvalid:                   "FAIL_INVALID",
	FailFee:                       "FAIL_FEE",
	FailBalance:                   "FAIL_BALANCE",
	KeyRequired:                   "KEY_REQUIRED",
	BadEncoding:                   "BAD_ENCODING",
	InsufficientAccountBalance:    "INSUFFICIENT_ACCOUNT_BALANCE",
	MissingQueryHeader:            "MISSING_QUERY_HEADER",
	InvalidQueryHeader:            "INVALID_QUERY_HEADER",
	InvalidFeeSubmitted:           "INVALID_FEE_SUBMITTED",
	InvalidPayerSignature:         "INVALID_PAYER_SIGNATURE",
	InvalidAccountAmounts:         "INVALID_ACCOUNT_AMOUNTS",
	TransactionOversize:           "TRANSACTION_OVERSIZE",
	PlatformNotActive:             "PLATFORM_NOT_ACTIVE",
	PlatformTransactionNotCreated: "PLATFORM_TRANSACTION_NOT_CREATED",
	AccountDeleted:                "ACCOUNT_DELETED",
	FileDeleted:                   "FILE_DELETED",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "CODE_" + strconv.FormatInt(int64(c), 10)
}

// Parse accepts the upper snake case name or a decimal number.
func Parse(name string) (Code, bool) {
	for code, codeName := range codeNames {
		if codeName == name {
			return code, true
		}
	}
	value, err := strconv.ParseInt(name, 10, 32)
	if err != nil {
		return 0, false
	}
	return Code(value), true
}
