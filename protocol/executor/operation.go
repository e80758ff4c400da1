package executor

import (
	"time"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/utils"
)

// Operation is everything the executor needs to drive one logical request. The executor
// is generic over the result type, operations only supply how to encode a request for a
// node and how to read the answer.
type Operation[T any] struct {
	Name   string
	Method string
	// RequestID is shared by every attempt of the operation.
	RequestID ledgertypes.TransactionID
	// NodeIDs pins the operation to these nodes, tried in order.
	NodeIDs []ledgertypes.AccountID

	// Serialize builds a fresh request for node, it is called once per attempt.
	Serialize   func(node network.NodeEndpoint, attempt int) ([]byte, error)
	Deserialize func(node network.NodeEndpoint, response []byte) (T, status.Code, error)
	// Pending turns a successful answer into a retry, optional.
	Pending func(value T) bool
	// Reject builds the error for a terminal code, optional. The default is a
	// *common.PrecheckStatusError.
	Reject func(value T, code status.Code, node network.NodeEndpoint) error

	// Policy defaults to the executor's submission policy.
	Policy *RetryPolicy
	// MaxAttempts overrides the policy when non zero.
	MaxAttempts    int
	AttemptTimeout time.Duration
}

func (op *Operation[T]) Validate() error {
	switch {
	case op.Method == "":
		return utils.FormatWarning("operation has no method", common.ConstructionError, utils.LogAttr("operation", op.Name))
	case op.Serialize == nil || op.Deserialize == nil:
		return utils.FormatWarning("operation has no codec", common.ConstructionError, utils.LogAttr("operation", op.Name))
	case op.MaxAttempts < UnlimitedAttempts:
		return utils.FormatWarning("operation max attempts is negative", common.ConstructionError, utils.LogAttr("operation", op.Name))
	case op.AttemptTimeout < 0:
		return utils.FormatWarning("operation attempt timeout is negative", common.ConstructionError, utils.LogAttr("operation", op.Name))
	}
	if op.Policy != nil {
		return op.Policy.Validate()
	}
	return nil
}

// Handle is the outcome of a successful operation.
type Handle[T any] struct {
	RequestID  ledgertypes.TransactionID
	NodeID     ledgertypes.AccountID
	Value      T
	Attempts   int
	// NodesTried counts the distinct nodes the operation was sent to.
	NodesTried int
}
