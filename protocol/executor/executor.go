package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/transport"
	"github.com/lavanet/ledgerclient/utils"
	"golang.org/x/sync/semaphore"
)

type State int

const (
	StateBuilding State = iota
	StateSelecting
	StateSending
	StateClassifying
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "Building"
	case StateSelecting:
		return "Selecting"
	case StateSending:
		return "Sending"
	case StateClassifying:
		return "Classifying"
	case StateRetrying:
		return "Retrying"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type Config struct {
	MaxAttempts    int           `mapstructure:"max-attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt-timeout"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	MinBackoff     time.Duration `mapstructure:"min-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`
	// MaxAsync bounds the operations ExecuteAsync runs at once, zero is unbounded.
	MaxAsync int64 `mapstructure:"max-async"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: common.DefaultAttemptTimeout,
		RequestTimeout: common.DefaultRequestTimeout,
		MinBackoff:     DefaultMinBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// MetricsReporter receives one call per attempt and one per finished operation.
type MetricsReporter interface {
	AddAttempt(operation string, node string, decision string, latency time.Duration)
	AddResult(operation string, success bool, attempts int, latency time.Duration)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Executor struct {
	registry   *network.Registry
	channels   transport.ChannelProvider
	config     Config
	submission *RetryPolicy
	sleep      Sleeper
	metrics    MetricsReporter
	async      *semaphore.Weighted
}

type Option func(ex *Executor)

func WithSleeper(sleep Sleeper) Option {
	return func(ex *Executor) {
		ex.sleep = sleep
	}
}

func WithMetrics(metrics MetricsReporter) Option {
	return func(ex *Executor) {
		ex.metrics = metrics
	}
}

func NewExecutor(registry *network.Registry, channels transport.ChannelProvider, config Config, opts ...Option) *Executor {
	defaults := DefaultConfig()
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = defaults.MinBackoff
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = config.MinBackoff
	}
	ex := &Executor{
		registry: registry,
		channels: channels,
		config:   config,
		sleep:    contextSleep,
	}
	ex.submission = SubmissionPolicy(config.MinBackoff, config.MaxBackoff)
	ex.submission.MaxAttempts = config.MaxAttempts
	if config.MaxAsync > 0 {
		ex.async = semaphore.NewWeighted(config.MaxAsync)
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

func (ex *Executor) Registry() *network.Registry {
	return ex.registry
}

func (ex *Executor) Config() Config {
	return ex.config
}

// SubmissionPolicy is the policy operations without their own get.
func (ex *Executor) SubmissionPolicy() *RetryPolicy {
	return ex.submission
}

// Sleep waits with the executor's sleeper so components that pace themselves, like
// the receipt poller, share the executor's clock in tests.
func (ex *Executor) Sleep(ctx context.Context, d time.Duration) error {
	return ex.sleep(ctx, d)
}

// Execute drives op until it succeeds, fails terminally, runs out of attempts or the
// request deadline passes. Retries reuse the operation's request id.
func Execute[T any](ctx context.Context, ex *Executor, op Operation[T]) (Handle[T], error) {
	ctx = utils.AppendUniqueIdentifier(ctx, utils.GenerateUniqueIdentifier())
	run := &execution[T]{ex: ex, op: op, used: newUsedNodes(), start: time.Now()}
	handle, err := run.execute(ctx)
	if ex.metrics != nil {
		ex.metrics.AddResult(op.Name, err == nil, run.attempts, time.Since(run.start))
	}
	return handle, err
}

type execution[T any] struct {
	ex       *Executor
	op       Operation[T]
	policy   *RetryPolicy
	used     *usedNodes
	attempts int
	lastErr  error
	start    time.Time
}

func (run *execution[T]) transition(ctx context.Context, state State) {
	utils.FormatTrace("executor state",
		utils.LogAttr("GUID", ctx),
		utils.LogAttr("operation", run.op.Name),
		utils.LogAttr("state", state),
		utils.LogAttr("attempt", run.attempts),
	)
}

func (run *execution[T]) execute(ctx context.Context) (Handle[T], error) {
	run.transition(ctx, StateBuilding)
	if err := run.op.Validate(); err != nil {
		run.transition(ctx, StateFailed)
		return Handle[T]{}, err
	}
	run.policy = run.op.Policy
	if run.policy == nil {
		run.policy = run.ex.submission
	}
	maxAttempts := run.op.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = run.policy.MaxAttempts
	}
	if maxAttempts == 0 {
		maxAttempts = run.ex.config.MaxAttempts
	}
	attemptTimeout := run.op.AttemptTimeout
	if attemptTimeout == 0 {
		attemptTimeout = run.ex.config.AttemptTimeout
	}

	ctx, cancel := common.EnsureDeadline(ctx, run.ex.config.RequestTimeout)
	defer cancel()

	var previousDelay time.Duration
	for {
		if maxAttempts != UnlimitedAttempts && run.attempts >= maxAttempts {
			run.transition(ctx, StateFailed)
			return Handle[T]{}, utils.FormatWarning("operation ran out of attempts",
				&common.MaxAttemptsError{Attempts: run.attempts, LastErr: run.lastErr},
				utils.LogAttr("GUID", ctx), utils.LogAttr("operation", run.op.Name), utils.LogAttr("requestID", run.op.RequestID),
				utils.LogAttr("nodesTried", run.used.CurrentlyUsed()))
		}
		if ctx.Err() != nil {
			return Handle[T]{}, run.deadline(ctx)
		}

		run.transition(ctx, StateSelecting)
		node := run.selectNode()
		if node == nil {
			run.transition(ctx, StateFailed)
			return Handle[T]{}, utils.FormatWarning("no node to send to", common.NoHealthyNodeError,
				utils.LogAttr("GUID", ctx), utils.LogAttr("operation", run.op.Name), utils.LogAttr("pinned", run.op.NodeIDs))
		}

		run.transition(ctx, StateSending)
		run.attempts++
		value, decision, err := run.attempt(ctx, node, attemptTimeout)
		if err != nil && decision == DecisionFail {
			run.transition(ctx, StateFailed)
			return Handle[T]{}, err
		}

		switch decision {
		case DecisionSucceed:
			run.transition(ctx, StateSucceeded)
			return Handle[T]{RequestID: run.op.RequestID, NodeID: node.ID(), Value: value, Attempts: run.attempts, NodesTried: run.used.CurrentlyUsed()}, nil
		case DecisionRetryNode:
			run.used.RemoveUsed(node, true)
		case DecisionRetryPending:
			run.used.RemoveUsed(node, false)
		}
		if err != nil {
			run.lastErr = err
		}
		if ctx.Err() != nil {
			return Handle[T]{}, run.deadline(ctx)
		}
		if maxAttempts != UnlimitedAttempts && run.attempts >= maxAttempts {
			continue
		}

		run.transition(ctx, StateRetrying)
		delay := run.policy.Delay(run.attempts-1, previousDelay)
		previousDelay = delay
		if err := run.ex.sleep(ctx, delay); err != nil {
			return Handle[T]{}, run.deadline(ctx)
		}
	}
}

func (run *execution[T]) deadline(ctx context.Context) error {
	run.transition(ctx, StateFailed)
	cause := errors.Join(common.DeadlineExceededError, ctx.Err())
	if run.lastErr != nil {
		cause = errors.Join(cause, run.lastErr)
	}
	description := "operation cancelled"
	if common.ContextOutOfTime(ctx) {
		description = "operation deadline exceeded"
	}
	return utils.FormatWarning(description, cause,
		utils.LogAttr("GUID", ctx),
		utils.LogAttr("operation", run.op.Name),
		utils.LogAttr("attempts", run.attempts),
		utils.LogAttr("nodesTried", run.used.CurrentlyUsed()),
		utils.LogAttr("elapsed", time.Since(run.start)),
	)
}

func (run *execution[T]) selectNode() *network.Node {
	registry := run.ex.registry
	var candidates []*network.Node
	if len(run.op.NodeIDs) == 0 {
		candidates = registry.ListCandidates()
	} else {
		var backedOff []*network.Node
		for _, id := range run.op.NodeIDs {
			node, ok := registry.Node(id)
			if !ok {
				continue
			}
			if registry.IsHealthy(node) {
				candidates = append(candidates, node)
			} else {
				backedOff = append(backedOff, node)
			}
		}
		candidates = append(candidates, backedOff...)
	}
	node := run.used.pick(candidates)
	if node != nil {
		run.used.AddUsed(node)
		registry.MarkUsed(node)
	}
	return node
}

// attempt sends one request. A non nil error with a retry decision is the reason for
// the retry, with DecisionFail it ends the operation.
func (run *execution[T]) attempt(ctx context.Context, node *network.Node, timeout time.Duration) (value T, decision Decision, err error) {
	sent := time.Now()
	defer func() {
		if run.ex.metrics != nil {
			run.ex.metrics.AddAttempt(run.op.Name, node.Endpoint.Key(), decision.String(), time.Since(sent))
		}
	}()

	request, err := run.op.Serialize(node.Endpoint, run.attempts-1)
	if err != nil {
		return value, DecisionFail, utils.FormatWarning("failed to build request", errors.Join(common.ConstructionError, err),
			utils.LogAttr("GUID", ctx), utils.LogAttr("operation", run.op.Name), utils.LogAttr("node", node))
	}

	attemptCtx, cancel := common.LowerContextTimeout(ctx, timeout)
	defer cancel()
	response, err := run.invoke(attemptCtx, node, request)
	if err != nil {
		if errors.Is(err, transport.PoolClosedError) {
			return value, DecisionFail, err
		}
		if ctx.Err() != nil {
			// the request deadline or the caller ended the attempt, not the node
			return value, DecisionRetryNode, err
		}
		run.ex.registry.Report(node, network.HealthFailure)
		return value, DecisionRetryNode, utils.FormatWarning("transport failure", errors.Join(common.TransportFailureError, err),
			utils.LogAttr("GUID", ctx), utils.LogAttr("node", node), utils.LogAttr("attempt", run.attempts))
	}

	run.transition(ctx, StateClassifying)
	value, code, err := run.op.Deserialize(node.Endpoint, response)
	if err != nil {
		run.ex.registry.Report(node, network.HealthFailure)
		return value, DecisionRetryNode, utils.FormatWarning("malformed response", errors.Join(common.TransportFailureError, err),
			utils.LogAttr("GUID", ctx), utils.LogAttr("node", node), utils.LogAttr("attempt", run.attempts))
	}
	run.ex.registry.Report(node, network.HealthSuccess)

	decision = run.policy.Classify(code)
	switch decision {
	case DecisionSucceed:
		if run.op.Pending != nil && run.op.Pending(value) {
			decision = DecisionRetryPending
		}
		return value, decision, nil
	case DecisionFail:
		var rejection error
		if run.op.Reject != nil {
			rejection = run.op.Reject(value, code, node.Endpoint)
		} else {
			rejection = &common.PrecheckStatusError{Status: code, TransactionID: run.op.RequestID, NodeID: node.ID()}
		}
		return value, DecisionFail, utils.FormatWarning("request rejected", rejection,
			utils.LogAttr("GUID", ctx), utils.LogAttr("operation", run.op.Name), utils.LogAttr("status", code), utils.LogAttr("node", node))
	default:
		return value, decision, fmt.Errorf("node %s answered %s", node.ID(), code)
	}
}

func (run *execution[T]) invoke(ctx context.Context, node *network.Node, request []byte) ([]byte, error) {
	channel, err := run.ex.channels.GetChannel(ctx, node.Endpoint)
	if err != nil {
		return nil, err
	}
	return channel.Invoke(ctx, run.op.Method, request)
}
