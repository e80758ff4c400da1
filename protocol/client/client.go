// Package client wires the registry, the channel pool, the executor, the cost negotiator
// and the receipt poller into one object configured from a file or flags.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/lavanet/ledgerclient/protocol/chunker"
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/cost"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/metrics"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/receipt"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/subscription"
	"github.com/lavanet/ledgerclient/protocol/transport"
	"github.com/lavanet/ledgerclient/protocol/txn"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/lavanet/ledgerclient/utils/sigs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const Version = "1.0.0"

var NoOperatorError = errors.New("client has no operator")

type clientOptions struct {
	executorOptions []executor.Option
	registerer      prometheus.Registerer
	gatherer        prometheus.Gatherer
}

type Option func(opts *clientOptions)

func WithExecutorOptions(opts ...executor.Option) Option {
	return func(options *clientOptions) {
		options.executorOptions = append(options.executorOptions, opts...)
	}
}

// WithMetricsRegistry registers the client metrics on registry instead of the default
// prometheus registry.
func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(options *clientOptions) {
		options.registerer = registry
		options.gatherer = registry
	}
}

type Client struct {
	config     Config
	operator   ledgertypes.AccountID
	signers    *sigs.SignerSet
	ids        *ledgertypes.Generator
	registry   *network.Registry
	mirrors    []network.NodeEndpoint
	pool       *transport.Pool
	executor   *executor.Executor
	negotiator *cost.Negotiator
	poller     *receipt.Poller
	metrics    *metrics.ClientMetricsManager
	monitor    *HealthMonitor
	cancel     context.CancelFunc
}

// NewClient builds a client for config. The health monitor runs under ctx until ctx ends
// or the client is closed.
func NewClient(ctx context.Context, config Config, opts ...Option) (*Client, error) {
	options := clientOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	nodes, mirrors, err := config.Endpoints()
	if err != nil {
		return nil, err
	}
	registry, err := network.NewRegistry(config.NodeHealth, nodes)
	if err != nil {
		return nil, err
	}
	operator, signers, hasOperator, err := config.OperatorSigners()
	if err != nil {
		return nil, err
	}
	metricsManager, err := metrics.NewClientMetricsManager(metrics.ClientMetricsManagerOptions{
		NetworkAddress: config.MetricsListenAddress,
		Registerer:     options.registerer,
		Gatherer:       options.gatherer,
	})
	if err != nil {
		return nil, err
	}
	executorOptions := options.executorOptions
	if metricsManager != nil {
		metricsManager.SetVersion(Version)
		registry.SetObserver(metricsManager)
		executorOptions = append([]executor.Option{executor.WithMetrics(metricsManager)}, executorOptions...)
	}

	client := &Client{
		config:   config,
		ids:      ledgertypes.NewGenerator(),
		registry: registry,
		mirrors:  mirrors,
		pool:     transport.NewPool(config.Transport),
		metrics:  metricsManager,
	}
	client.executor = executor.NewExecutor(registry, client.pool, config.Executor, executorOptions...)
	if hasOperator {
		client.operator = operator
		client.signers = signers
		client.negotiator = cost.NewNegotiator(client.executor, cost.Payer{Account: operator, Signers: signers, IDs: client.ids}, config.Cost)
	}
	client.poller, err = receipt.NewPoller(client.executor, client.negotiator, config.Receipt)
	if err != nil {
		client.Close()
		return nil, err
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	client.cancel = cancel
	if config.HealthCheckInterval > 0 {
		client.monitor = NewHealthMonitor(config.HealthCheckInterval, client.pingAny)
		client.monitor.Start(monitorCtx)
	}
	utils.FormatInfo("ledger client ready",
		utils.LogAttr("network", config.Network),
		utils.LogAttr("nodes", registry.Len()),
		utils.LogAttr("mirrors", len(mirrors)),
		utils.LogAttr("operator", operator),
	)
	return client, nil
}

func (c *Client) Operator() (ledgertypes.AccountID, bool) {
	return c.operator, c.signers != nil
}

func (c *Client) Executor() *executor.Executor {
	return c.executor
}

func (c *Client) Network() []network.NodeEndpoint {
	return c.registry.Endpoints()
}

func (c *Client) MirrorNetwork() []network.NodeEndpoint {
	return append([]network.NodeEndpoint(nil), c.mirrors...)
}

// IsHealthy is the result of the last health check, false when checks are disabled.
func (c *Client) IsHealthy() bool {
	if c.monitor == nil {
		return false
	}
	return c.monitor.IsHealthy()
}

// NewTransactionID returns a fresh id paid by the operator.
func (c *Client) NewTransactionID() (ledgertypes.TransactionID, error) {
	if c.signers == nil {
		return ledgertypes.TransactionID{}, utils.FormatWarning("cannot generate a transaction id", errors.Join(common.ConstructionError, NoOperatorError))
	}
	return c.ids.Generate(c.operator), nil
}

// prepare fills the id and the signers of tx from the operator when they are unset.
func (c *Client) prepare(tx *txn.Transaction, count int) error {
	if tx.ID.IsZero() || tx.Signers == nil {
		if c.signers == nil {
			return utils.FormatWarning("transaction needs an operator", errors.Join(common.ConstructionError, NoOperatorError),
				utils.LogAttr("kind", tx.Kind))
		}
	}
	if tx.ID.IsZero() {
		tx.ID = c.ids.Reserve(c.operator, count)
	}
	if tx.Signers == nil {
		tx.Signers = c.signers.Clone()
	}
	return tx.Validate()
}

func (c *Client) logSuccess(err error) {
	if err == nil && c.monitor != nil {
		c.monitor.LogSuccess()
	}
}

// Submit sends tx and returns the node's acceptance. It does not wait for the receipt.
func (c *Client) Submit(ctx context.Context, tx txn.Transaction) (executor.Handle[wire.TransactionResponse], error) {
	if err := c.prepare(&tx, 1); err != nil {
		return executor.Handle[wire.TransactionResponse]{}, err
	}
	handle, err := executor.Execute(ctx, c.executor, tx.Operation())
	c.logSuccess(err)
	return handle, err
}

// SubmitAsync is Submit running on its own goroutine.
func (c *Client) SubmitAsync(ctx context.Context, tx txn.Transaction) (*executor.Future[wire.TransactionResponse], error) {
	if err := c.prepare(&tx, 1); err != nil {
		return nil, err
	}
	return executor.ExecuteAsync(ctx, c.executor, tx.Operation()), nil
}

// SubmitAndWait submits tx and waits for its receipt on the node that accepted it.
func (c *Client) SubmitAndWait(ctx context.Context, tx txn.Transaction) (ledgertypes.Receipt, error) {
	handle, err := c.Submit(ctx, tx)
	if err != nil {
		return ledgertypes.Receipt{}, err
	}
	return c.poller.AwaitReceipt(ctx, handle.RequestID, receipt.PinToNode(handle.NodeID))
}

// SubmitChunked splits payload over as many transactions as needed, each a copy of
// template. Every chunk's receipt is awaited before the next chunk is sent.
func (c *Client) SubmitChunked(ctx context.Context, template txn.Transaction, payload []byte) (chunker.Result[wire.TransactionResponse], error) {
	plan, err := chunker.NewPlan(len(payload), c.config.ChunkSize, c.config.MaxChunks)
	if err != nil {
		return chunker.Result[wire.TransactionResponse]{}, err
	}
	if template.ID.IsZero() || template.Signers == nil {
		if c.signers == nil {
			return chunker.Result[wire.TransactionResponse]{Total: plan.Total},
				utils.FormatWarning("chunked transaction needs an operator", errors.Join(common.ConstructionError, NoOperatorError))
		}
	}
	if template.ID.IsZero() {
		template.ID = c.ids.Reserve(c.operator, plan.Total)
	}
	if template.Signers == nil {
		template.Signers = c.signers.Clone()
	}
	result, err := chunker.Submit(ctx, c.executor, plan, payload, template.ID, chunker.TransactionChunks(template), chunker.Options[wire.TransactionResponse]{
		AfterChunk: func(ctx context.Context, chunk chunker.Chunk, handle executor.Handle[wire.TransactionResponse]) error {
			_, err := c.poller.AwaitReceipt(ctx, chunk.ID, receipt.PinToNode(handle.NodeID))
			return err
		},
	})
	c.logSuccess(err)
	return result, err
}

// GetCost asks the network what req would cost.
func (c *Client) GetCost(ctx context.Context, req cost.Request) (ledgertypes.Amount, error) {
	if c.negotiator == nil {
		return 0, utils.FormatWarning("cost estimate needs an operator", errors.Join(common.ConstructionError, NoOperatorError),
			utils.LogAttr("query", req.Name))
	}
	return c.negotiator.Estimate(ctx, req)
}

// ExecuteQuery runs q, paying for it through the operator when it requires payment.
func ExecuteQuery[T any](ctx context.Context, c *Client, q cost.Query[T]) (executor.Handle[T], error) {
	if c.negotiator == nil {
		if q.PaymentRequired {
			return executor.Handle[T]{}, utils.FormatWarning("paid query needs an operator", errors.Join(common.ConstructionError, NoOperatorError),
				utils.LogAttr("query", q.Name))
		}
		return freeQuery(ctx, c.executor, q)
	}
	handle, err := cost.Execute(ctx, c.negotiator, q)
	c.logSuccess(err)
	return handle, err
}

func freeQuery[T any](ctx context.Context, ex *executor.Executor, q cost.Query[T]) (executor.Handle[T], error) {
	if err := q.Validate(); err != nil {
		return executor.Handle[T]{}, err
	}
	encoded := wire.Query{Kind: q.Kind, TransactionID: q.TransactionID, Data: q.Data}
	request := encoded.Marshal()
	var requestID ledgertypes.TransactionID
	if q.TransactionID != nil {
		requestID = *q.TransactionID
	}
	return executor.Execute(ctx, ex, executor.Operation[T]{
		Name:      q.Name,
		Method:    q.Method,
		RequestID: requestID,
		NodeIDs:   q.NodeIDs,
		Serialize: func(network.NodeEndpoint, int) ([]byte, error) {
			return request, nil
		},
		Deserialize: func(node network.NodeEndpoint, response []byte) (T, status.Code, error) {
			var decoded wire.Response
			if err := decoded.Unmarshal(response); err != nil {
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

func (c *Client) AwaitReceipt(ctx context.Context, id ledgertypes.TransactionID, opts ...receipt.Option) (ledgertypes.Receipt, error) {
	return c.poller.AwaitReceipt(ctx, id, opts...)
}

func (c *Client) AwaitRecord(ctx context.Context, id ledgertypes.TransactionID, opts ...receipt.Option) (ledgertypes.Record, error) {
	return c.poller.AwaitRecord(ctx, id, opts...)
}

// SubscribeTopic streams a topic from the mirror network.
func (c *Client) SubscribeTopic(ctx context.Context, query subscription.Query) (*subscription.Handle, error) {
	return subscription.Subscribe(ctx, c.pool, c.mirrors, query, c.config.Subscription)
}

// ReplaceNetwork swaps the node set. Channels to nodes that left are closed once their
// calls finish.
func (c *Client) ReplaceNetwork(endpoints []network.NodeEndpoint) error {
	removed, err := c.registry.ReplaceNetwork(endpoints)
	if err != nil {
		return err
	}
	c.pool.Retire(removed...)
	c.metrics.ResetNodes()
	return nil
}

// Ping sends one free balance query to node. A transport failure also backs the node
// off in the registry.
func (c *Client) Ping(ctx context.Context, node ledgertypes.AccountID) error {
	if _, ok := c.registry.Node(node); !ok {
		return utils.FormatWarning("ping target is not in the network", common.ConstructionError, utils.LogAttr("node", node))
	}
	encoded := wire.Query{Kind: wire.KindAccountBalance, Data: []byte(node.String())}
	request := encoded.Marshal()
	_, err := executor.Execute(ctx, c.executor, executor.Operation[struct{}]{
		Name:        "ping",
		Method:      wire.MethodGetAccountBalance,
		NodeIDs:     []ledgertypes.AccountID{node},
		MaxAttempts: 1,
		Serialize: func(network.NodeEndpoint, int) ([]byte, error) {
			return request, nil
		},
		Deserialize: func(_ network.NodeEndpoint, response []byte) (struct{}, status.Code, error) {
			var decoded wire.Response
			if err := decoded.Unmarshal(response); err != nil {
				return struct{}{}, status.Unknown, err
			}
			return struct{}{}, decoded.Header.PrecheckCode, nil
		},
	})
	return err
}

// PingAll pings every node at once and joins the failures.
func (c *Client) PingAll(ctx context.Context) error {
	nodes := c.registry.Nodes()
	errs := make([]error, len(nodes))
	var group errgroup.Group
	for idx, node := range nodes {
		group.Go(func() error {
			errs[idx] = c.Ping(ctx, node.Endpoint.NodeID)
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(errs...)
}

// pingAny succeeds when at least one node answers.
func (c *Client) pingAny(ctx context.Context) error {
	nodes := c.registry.Nodes()
	err := c.PingAll(ctx)
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok && len(joined.Unwrap()) < len(nodes) {
		return nil
	}
	return utils.FormatWarning("no node answered a ping", errors.Join(common.NoHealthyNodeError, err), utils.LogAttr("nodes", len(nodes)))
}

// Close stops the health monitor and releases channels, caches and the metrics listener.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.monitor != nil {
		<-c.monitor.Done()
	}
	if c.poller != nil {
		c.poller.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(c.pool.Close(), c.metrics.Close(shutdownCtx))
}
