package status

// Class is the classification a code gets from one of the tables below.
type Class int

const (
	// TerminalSuccess ends the operation with a result.
	TerminalSuccess Class = iota
	// RetryableNode means the contacted node could not take the request right now,
	// another node may.
	RetryableNode
	// RetryablePending means the answer does not exist yet, asking again later may
	// produce it.
	RetryablePending
	// TerminalFailure is a semantic rejection, asking again cannot change it.
	TerminalFailure
)

func (c Class) String() string {
	switch c {
	case TerminalSuccess:
		return "terminal-success"
	case RetryableNode:
		return "retryable-submission"
	case RetryablePending:
		return "retryable-poll"
	case TerminalFailure:
		return "terminal-failure"
	default:
		return "unknown-class"
	}
}

// ClassifySubmission sorts the precheck code of a transaction or query submission.
func ClassifySubmission(code Code) Class {
	switch code {
	case Ok:
		return TerminalSuccess
	case Busy, PlatformTransactionNotCreated, PlatformNotActive:
		return RetryableNode
	default:
		return TerminalFailure
	}
}

// ClassifyPollPrecheck sorts the precheck code of a receipt or record query.
func ClassifyPollPrecheck(code Code) Class {
	switch code {
	case Ok:
		return TerminalSuccess
	case Busy, Unknown, ReceiptNotFound, RecordNotFound:
		return RetryablePending
	case PlatformTransactionNotCreated, PlatformNotActive:
		return RetryableNode
	default:
		return TerminalFailure
	}
}

// ClassifyReceipt sorts the status carried inside a receipt. OK inside a receipt means
// the transaction passed precheck but has not reached consensus yet.
func ClassifyReceipt(code Code) Class {
	switch code {
	case Success:
		return TerminalSuccess
	case Ok, Busy, Unknown, ReceiptNotFound, RecordNotFound:
		return RetryablePending
	default:
		return TerminalFailure
	}
}
