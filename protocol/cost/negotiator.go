// Package cost prices paid queries and attaches the payment for the node that serves
// them.
package cost

import (
	"context"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/txn"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/lavanet/ledgerclient/utils/sigs"
)

const (
	DefaultMaxQueryPayment       = ledgertypes.Hbar
	DefaultPaymentTransactionFee = ledgertypes.Hbar
)

// Request is the part of a query that is the same for the cost question and the paid
// answer.
type Request struct {
	Name          string
	Kind          string
	Method        string
	TransactionID *ledgertypes.TransactionID
	Data          []byte
	NodeIDs       []ledgertypes.AccountID
}

// Query is a read, paid or free. Decode reads the typed answer out of the response and
// returns the code the retry policy classifies, by default the header precheck.
type Query[T any] struct {
	Request
	PaymentRequired bool
	// Payment skips the cost question and pays this amount.
	Payment ledgertypes.Amount
	Decode  func(node network.NodeEndpoint, response wire.Response) (T, status.Code, error)
	Pending func(value T) bool
	Reject  func(value T, code status.Code, node network.NodeEndpoint) error
	Policy  *executor.RetryPolicy
}

func (q *Query[T]) Validate() error {
	if q.Kind == "" || q.Method == "" || q.Decode == nil {
		return utils.FormatWarning("query is incomplete", common.ConstructionError, utils.LogAttr("query", q.Name))
	}
	if q.Payment < 0 {
		return utils.FormatWarning("query payment is negative", common.ConstructionError, utils.LogAttr("query", q.Name))
	}
	return nil
}

// Payer is the account that pays for queries.
type Payer struct {
	Account ledgertypes.AccountID
	Signers *sigs.SignerSet
	IDs     *ledgertypes.Generator
}

type Config struct {
	// MinimumFee replaces a reported cost of zero.
	MinimumFee            ledgertypes.Amount `mapstructure:"minimum-fee"`
	MaxQueryPayment       ledgertypes.Amount `mapstructure:"max-query-payment"`
	PaymentTransactionFee ledgertypes.Amount `mapstructure:"payment-transaction-fee"`
}

func DefaultConfig() Config {
	return Config{
		MinimumFee:            25 * ledgertypes.Tinybar,
		MaxQueryPayment:       DefaultMaxQueryPayment,
		PaymentTransactionFee: DefaultPaymentTransactionFee,
	}
}

type Negotiator struct {
	executor *executor.Executor
	payer    Payer
	config   Config
}

func NewNegotiator(ex *executor.Executor, payer Payer, config Config) *Negotiator {
	if payer.IDs == nil {
		payer.IDs = ledgertypes.NewGenerator()
	}
	if config.MaxQueryPayment <= 0 {
		config.MaxQueryPayment = DefaultMaxQueryPayment
	}
	if config.PaymentTransactionFee <= 0 {
		config.PaymentTransactionFee = DefaultPaymentTransactionFee
	}
	return &Negotiator{executor: ex, payer: payer, config: config}
}

func (n *Negotiator) Executor() *executor.Executor {
	return n.executor
}

func (n *Negotiator) Config() Config {
	return n.config
}

// payment is a transfer of amount from the payer to node, signed for node.
func (n *Negotiator) payment(id ledgertypes.TransactionID, node network.NodeEndpoint, amount ledgertypes.Amount) ([]byte, error) {
	transfers := []ledgertypes.Transfer{{AccountID: n.payer.Account, Amount: -amount}, {AccountID: node.NodeID, Amount: amount}}
	if amount == 0 {
		transfers = []ledgertypes.Transfer{{AccountID: n.payer.Account, Amount: 0}}
	}
	tx := txn.Transaction{
		ID:        id,
		Kind:      wire.KindPaymentTransfer,
		Method:    wire.MethodSubmitTransaction,
		Fee:       n.config.PaymentTransactionFee,
		Transfers: transfers,
		Signers:   n.payer.Signers,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	unit, err := tx.BuildUnit(node)
	if err != nil {
		return nil, err
	}
	return unit.Marshal(), nil
}

func encodeQuery(req Request, payment []byte, responseType wire.ResponseType) []byte {
	query := wire.Query{
		Header:        wire.QueryHeader{Payment: payment, ResponseType: responseType},
		Kind:          req.Kind,
		TransactionID: req.TransactionID,
		Data:          req.Data,
	}
	return query.Marshal()
}

func decodeResponse(response []byte) (wire.Response, error) {
	var decoded wire.Response
	err := decoded.Unmarshal(response)
	return decoded, err
}

// Estimate asks a node for the price of req. The question carries a zero value payment,
// nodes validate it but never process it. A reported cost of zero is replaced by the
// configured minimum fee.
func (n *Negotiator) Estimate(ctx context.Context, req Request) (ledgertypes.Amount, error) {
	if req.Kind == "" || req.Method == "" {
		return 0, utils.FormatWarning("query is incomplete", common.ConstructionError, utils.LogAttr("query", req.Name))
	}
	dummyID := n.payer.IDs.Generate(n.payer.Account)
	handle, err := executor.Execute(ctx, n.executor, executor.Operation[ledgertypes.Amount]{
		Name:      req.Name + "-cost",
		Method:    req.Method,
		RequestID: dummyID,
		NodeIDs:   req.NodeIDs,
		Serialize: func(node network.NodeEndpoint, attempt int) ([]byte, error) {
			payment, err := n.payment(dummyID, node, 0)
			if err != nil {
				return nil, err
			}
			return encodeQuery(req, payment, wire.ResponseTypeCostAnswer), nil
		},
		Deserialize: func(node network.NodeEndpoint, response []byte) (ledgertypes.Amount, status.Code, error) {
			decoded, err := decodeResponse(response)
			if err != nil {
				return 0, status.Unknown, err
			}
			return ledgertypes.Amount(decoded.Header.Cost), decoded.Header.PrecheckCode, nil
		},
	})
	if err != nil {
		return 0, err
	}
	cost := handle.Value
	if cost == 0 {
		cost = n.config.MinimumFee
	}
	utils.FormatDebug("query cost", utils.LogAttr("GUID", ctx), utils.LogAttr("query", req.Name), utils.LogAttr("cost", cost), utils.LogAttr("node", handle.NodeID))
	return cost, nil
}

// PayAndExecute prices q, refuses when the price is above maxPayment and otherwise runs
// q with a payment of exactly the price to whichever node serves it. One payment id is
// used for every attempt. Free queries run without a payment. A maxPayment that is not
// positive is rejected, Execute applies the configured maximum.
func PayAndExecute[T any](ctx context.Context, n *Negotiator, q Query[T], maxPayment ledgertypes.Amount) (executor.Handle[T], error) {
	if err := q.Validate(); err != nil {
		return executor.Handle[T]{}, err
	}
	if maxPayment <= 0 {
		return executor.Handle[T]{}, utils.FormatWarning("maximum query payment must be positive", common.ConstructionError,
			utils.LogAttr("query", q.Name), utils.LogAttr("maxPayment", maxPayment))
	}
	amount := q.Payment
	if q.PaymentRequired && amount == 0 {
		estimate, err := n.Estimate(ctx, q.Request)
		if err != nil {
			return executor.Handle[T]{}, err
		}
		if estimate > maxPayment {
			return executor.Handle[T]{}, utils.FormatWarning("query cost above maximum payment",
				&common.MaxQueryPaymentError{Cost: estimate, Max: maxPayment},
				utils.LogAttr("GUID", ctx), utils.LogAttr("query", q.Name))
		}
		amount = estimate
	}

	var requestID ledgertypes.TransactionID
	if q.PaymentRequired {
		requestID = n.payer.IDs.Generate(n.payer.Account)
	} else if q.TransactionID != nil {
		requestID = *q.TransactionID
	}
	return executor.Execute(ctx, n.executor, executor.Operation[T]{
		Name:      q.Name,
		Method:    q.Method,
		RequestID: requestID,
		NodeIDs:   q.NodeIDs,
		Serialize: func(node network.NodeEndpoint, attempt int) ([]byte, error) {
			var payment []byte
			if q.PaymentRequired {
				var err error
				payment, err = n.payment(requestID, node, amount)
				if err != nil {
					return nil, err
				}
			}
			return encodeQuery(q.Request, payment, wire.ResponseTypeAnswerOnly), nil
		},
		Deserialize: func(node network.NodeEndpoint, response []byte) (T, status.Code, error) {
			decoded, err := decodeResponse(response)
			if err != nil {
				var zero T
				return zero, status.Unknown, err
			}
			return q.Decode(node, decoded)
		},
		Pending: q.Pending,
		Reject:  q.Reject,
		Policy:  q.Policy,
	})
}

// Execute runs q under the configured maximum query payment.
func Execute[T any](ctx context.Context, n *Negotiator, q Query[T]) (executor.Handle[T], error) {
	return PayAndExecute(ctx, n, q, n.config.MaxQueryPayment)
}
