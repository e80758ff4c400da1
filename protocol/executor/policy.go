package executor

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/lavanet/ledgerclient/utils/rand"
)

// UnlimitedAttempts leaves the attempt count bounded by the request deadline only.
const UnlimitedAttempts = -1

const (
	DefaultMaxAttempts = 10
	DefaultMinBackoff  = 250 * time.Millisecond
	DefaultMaxBackoff  = 8 * time.Second
	DefaultMultiplier  = 2
)

// Decision is what the executor does after classifying one attempt.
type Decision int

const (
	DecisionSucceed Decision = iota
	// DecisionRetryNode retries on a different node.
	DecisionRetryNode
	// DecisionRetryPending asks again after the delay, the answer is not ready yet.
	DecisionRetryPending
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionSucceed:
		return "succeed"
	case DecisionRetryNode:
		return "retry-node"
	case DecisionRetryPending:
		return "retry-pending"
	case DecisionFail:
		return "fail"
	default:
		return "unknown"
	}
}

func DecisionForClass(class status.Class) Decision {
	switch class {
	case status.TerminalSuccess:
		return DecisionSucceed
	case status.RetryableNode:
		return DecisionRetryNode
	case status.RetryablePending:
		return DecisionRetryPending
	default:
		return DecisionFail
	}
}

// RetryPolicy decides how often and how fast an operation is retried and which codes
// end it.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	Classify    func(code status.Code) Decision
}

// SubmissionPolicy retries busy nodes on another node with exponential, jittered delays.
func SubmissionPolicy(minBackoff, maxBackoff time.Duration) *RetryPolicy {
	return &RetryPolicy{
		Name:        "submission",
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   minBackoff,
		MaxDelay:    maxBackoff,
		Multiplier:  DefaultMultiplier,
		Jitter:      true,
		Classify: func(code status.Code) Decision {
			return DecisionForClass(status.ClassifySubmission(code))
		},
	}
}

// PollingPolicy asks again at a fixed delay until the request deadline.
func PollingPolicy(delay time.Duration, classify func(code status.Code) Decision) *RetryPolicy {
	return &RetryPolicy{
		Name:        "polling",
		MaxAttempts: UnlimitedAttempts,
		BaseDelay:   delay,
		MaxDelay:    delay,
		Multiplier:  1,
		Classify:    classify,
	}
}

func (p *RetryPolicy) Validate() error {
	switch {
	case p.Classify == nil:
		return utils.FormatWarning("retry policy has no classifier", common.ConstructionError, utils.LogAttr("policy", p.Name))
	case p.BaseDelay < 0 || p.MaxDelay < p.BaseDelay:
		return utils.FormatWarning("retry policy delays are inconsistent", common.ConstructionError,
			utils.LogAttr("policy", p.Name), utils.LogAttr("base", p.BaseDelay), utils.LogAttr("max", p.MaxDelay))
	case p.MaxAttempts < UnlimitedAttempts:
		return utils.FormatWarning("retry policy max attempts is negative", common.ConstructionError, utils.LogAttr("policy", p.Name))
	}
	return nil
}

// Delay returns the wait before retry number retry (0 based). With jitter the value is
// drawn from the upper half of the computed delay and never drops below previous.
func (p *RetryPolicy) Delay(retry int, previous time.Duration) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	computed := float64(p.BaseDelay) * math.Pow(multiplier, float64(retry))
	delay := p.MaxDelay
	if computed < float64(p.MaxDelay) {
		delay = time.Duration(computed)
	}
	if !p.Jitter {
		return delay
	}
	jittered := rand.Jitter(delay)
	if jittered < previous {
		jittered = previous
	}
	if jittered > p.MaxDelay {
		jittered = p.MaxDelay
	}
	return jittered
}

// NewBackOff exposes the policy as a backoff.BackOff for backoff.Retry style loops.
func (p *RetryPolicy) NewBackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy   *RetryPolicy
	retry    int
	previous time.Duration
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.policy.MaxAttempts != UnlimitedAttempts && b.retry+1 >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	delay := b.policy.Delay(b.retry, b.previous)
	b.retry++
	b.previous = delay
	return delay
}

func (b *policyBackOff) Reset() {
	b.retry = 0
	b.previous = 0
}
