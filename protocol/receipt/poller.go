// Package receipt waits for the final outcome of a submitted transaction.
package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/cost"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
)

const (
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultPollDelay    = 500 * time.Millisecond
	DefaultCacheEntries = 10000

	cacheNumCountersPerEntry = 10
	cacheBufferItems         = 64
)

var (
	ErrMissingReceipt = errors.New("response carries no receipt")
	ErrMissingRecord  = errors.New("response carries no record")
)

type Config struct {
	// InitialDelay is slept before the first poll, consensus is never faster.
	InitialDelay time.Duration `mapstructure:"initial-delay"`
	PollDelay    time.Duration `mapstructure:"poll-delay"`
	// Timeout bounds one await, zero uses the executor's request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// CacheEntries bounds the finalized receipt cache, negative disables it.
	CacheEntries int64 `mapstructure:"cache-entries"`
}

func DefaultConfig() Config {
	return Config{
		InitialDelay: DefaultInitialDelay,
		PollDelay:    DefaultPollDelay,
		CacheEntries: DefaultCacheEntries,
	}
}

// Poller asks nodes for receipts and records until they are final.
type Poller struct {
	executor   *executor.Executor
	negotiator *cost.Negotiator
	config     Config
	policy     *executor.RetryPolicy
	cache      *ristretto.Cache[string, ledgertypes.Receipt]
}

// NewPoller builds a poller. negotiator pays for record queries and may be nil, records
// are then asked for without a payment.
func NewPoller(ex *executor.Executor, negotiator *cost.Negotiator, config Config) (*Poller, error) {
	if config.InitialDelay < 0 || config.PollDelay < 0 || config.Timeout < 0 {
		return nil, utils.FormatWarning("receipt poller delays are negative", common.ConstructionError,
			utils.LogAttr("initialDelay", config.InitialDelay), utils.LogAttr("pollDelay", config.PollDelay))
	}
	if config.CacheEntries == 0 {
		config.CacheEntries = DefaultCacheEntries
	}
	poller := &Poller{
		executor:   ex,
		negotiator: negotiator,
		config:     config,
		policy:     executor.PollingPolicy(config.PollDelay, classifyPrecheck),
	}
	if config.CacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, ledgertypes.Receipt]{
			NumCounters: config.CacheEntries * cacheNumCountersPerEntry,
			MaxCost:     config.CacheEntries,
			BufferItems: cacheBufferItems,
		})
		if err != nil {
			return nil, utils.FormatError("failed to create receipt cache", err)
		}
		poller.cache = cache
	}
	return poller, nil
}

func (p *Poller) Close() {
	if p.cache != nil {
		p.cache.Close()
	}
}

func classifyPrecheck(code status.Code) executor.Decision {
	return executor.DecisionForClass(status.ClassifyPollPrecheck(code))
}

func pendingReceipt(receipt ledgertypes.Receipt) bool {
	return status.ClassifyReceipt(receipt.Status) == status.RetryablePending
}

type awaitOptions struct {
	nodes []ledgertypes.AccountID
}

type Option func(opts *awaitOptions)

// PinToNode polls only the given node, usually the one that accepted the submission.
func PinToNode(node ledgertypes.AccountID) Option {
	return func(opts *awaitOptions) {
		opts.nodes = append(opts.nodes, node)
	}
}

func (p *Poller) cached(id ledgertypes.TransactionID) (ledgertypes.Receipt, bool) {
	if p.cache == nil {
		return ledgertypes.Receipt{}, false
	}
	return p.cache.Get(id.String())
}

func (p *Poller) store(id ledgertypes.TransactionID, receipt ledgertypes.Receipt) {
	if p.cache == nil {
		return
	}
	p.cache.Set(id.String(), receipt, 1)
	p.cache.Wait()
}

func (p *Poller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout > 0 {
		return context.WithTimeout(ctx, p.config.Timeout)
	}
	return ctx, func() {}
}

func finalReceipt(ctx context.Context, receipt ledgertypes.Receipt) (ledgertypes.Receipt, error) {
	if status.ClassifyReceipt(receipt.Status) == status.TerminalSuccess {
		return receipt, nil
	}
	return receipt, utils.FormatWarning("transaction failed", &common.ReceiptStatusError{Receipt: receipt},
		utils.LogAttr("GUID", ctx), utils.LogAttr("transactionID", receipt.TransactionID), utils.LogAttr("status", receipt.Status))
}

// AwaitReceipt waits for the receipt of id to become final. A final receipt whose status
// is not SUCCESS is returned together with a *common.ReceiptStatusError.
func (p *Poller) AwaitReceipt(ctx context.Context, id ledgertypes.TransactionID, opts ...Option) (ledgertypes.Receipt, error) {
	if id.IsZero() {
		return ledgertypes.Receipt{}, utils.FormatWarning("receipt requested without transaction id", common.ConstructionError)
	}
	if receipt, ok := p.cached(id); ok {
		utils.FormatTrace("receipt cache hit", utils.LogAttr("GUID", ctx), utils.LogAttr("transactionID", id))
		return finalReceipt(ctx, receipt)
	}
	options := awaitOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if err := p.executor.Sleep(ctx, p.config.InitialDelay); err != nil {
		return ledgertypes.Receipt{}, utils.FormatWarning("receipt wait cancelled", errors.Join(common.DeadlineExceededError, err),
			utils.LogAttr("GUID", ctx), utils.LogAttr("transactionID", id))
	}

	query := wire.Query{Kind: wire.KindReceiptQuery, TransactionID: &id}
	request := query.Marshal()
	handle, err := executor.Execute(ctx, p.executor, executor.Operation[ledgertypes.Receipt]{
		Name:      "receipt",
		Method:    wire.MethodGetReceipt,
		RequestID: id,
		NodeIDs:   options.nodes,
		Serialize: func(network.NodeEndpoint, int) ([]byte, error) {
			return request, nil
		},
		Deserialize: decodeReceipt,
		Pending:     pendingReceipt,
		Policy:      p.policy,
	})
	if err != nil {
		return ledgertypes.Receipt{}, err
	}
	receipt := handle.Value
	p.store(id, receipt)
	return finalReceipt(ctx, receipt)
}

func decodeReceipt(_ network.NodeEndpoint, response []byte) (ledgertypes.Receipt, status.Code, error) {
	var decoded wire.Response
	if err := decoded.Unmarshal(response); err != nil {
		return ledgertypes.Receipt{}, status.Unknown, err
	}
	precheck := decoded.Header.PrecheckCode
	if precheck != status.Ok {
		return ledgertypes.Receipt{}, precheck, nil
	}
	if decoded.Receipt == nil {
		return ledgertypes.Receipt{}, status.Unknown, ErrMissingReceipt
	}
	return *decoded.Receipt, precheck, nil
}

func decodeRecord(_ network.NodeEndpoint, response wire.Response) (ledgertypes.Record, status.Code, error) {
	precheck := response.Header.PrecheckCode
	if precheck != status.Ok {
		return ledgertypes.Record{}, precheck, nil
	}
	if response.Record == nil {
		return ledgertypes.Record{}, status.Unknown, ErrMissingRecord
	}
	return *response.Record, precheck, nil
}

// AwaitRecord waits for the receipt of id and then fetches the full record. The record
// is a paid query when the poller has a negotiator.
func (p *Poller) AwaitRecord(ctx context.Context, id ledgertypes.TransactionID, opts ...Option) (ledgertypes.Record, error) {
	if _, err := p.AwaitReceipt(ctx, id, opts...); err != nil {
		return ledgertypes.Record{}, err
	}
	options := awaitOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := cost.Query[ledgertypes.Record]{
		Request: cost.Request{
			Name:          "record",
			Kind:          wire.KindRecordQuery,
			Method:        wire.MethodGetRecord,
			TransactionID: &id,
			NodeIDs:       options.nodes,
		},
		PaymentRequired: p.negotiator != nil,
		Decode:          decodeRecord,
		Pending: func(record ledgertypes.Record) bool {
			return pendingReceipt(record.Receipt)
		},
		Policy: p.policy,
	}
	var handle executor.Handle[ledgertypes.Record]
	var err error
	if p.negotiator != nil {
		handle, err = cost.Execute(ctx, p.negotiator, query)
	} else {
		handle, err = p.freeRecord(ctx, query)
	}
	if err != nil {
		return ledgertypes.Record{}, err
	}
	record := handle.Value
	if _, err := finalReceipt(ctx, record.Receipt); err != nil {
		return record, err
	}
	return record, nil
}

func (p *Poller) freeRecord(ctx context.Context, query cost.Query[ledgertypes.Record]) (executor.Handle[ledgertypes.Record], error) {
	encoded := wire.Query{Kind: query.Kind, TransactionID: query.TransactionID}
	request := encoded.Marshal()
	return executor.Execute(ctx, p.executor, executor.Operation[ledgertypes.Record]{
		Name:      query.Name,
		Method:    query.Method,
		RequestID: *query.TransactionID,
		NodeIDs:   query.NodeIDs,
		Serialize: func(network.NodeEndpoint, int) ([]byte, error) {
			return request, nil
		},
		Deserialize: func(node network.NodeEndpoint, response []byte) (ledgertypes.Record, status.Code, error) {
			var decoded wire.Response
			if err := decoded.Unmarshal(response); err != nil {
				return ledgertypes.Record{}, status.Unknown, err
			}
			return query.Decode(node, decoded)
		},
		Pending: query.Pending,
		Policy:  query.Policy,
	})
}
