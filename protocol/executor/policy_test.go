package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/stretchr/testify/require"
)

func TestDelaySequenceIsNonDecreasingAndBounded(t *testing.T) {
	policies := []*RetryPolicy{
		SubmissionPolicy(DefaultMinBackoff, DefaultMaxBackoff),
		SubmissionPolicy(time.Millisecond, time.Millisecond),
		{Name: "steep", MaxAttempts: 30, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 7, Jitter: true},
		{Name: "flat", MaxAttempts: 30, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1, Jitter: true},
		{Name: "no-jitter", MaxAttempts: 30, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5},
		{Name: "below-one", MaxAttempts: 30, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 0.5, Jitter: true},
	}
	for _, policy := range policies {
		t.Run(policy.Name, func(t *testing.T) {
			for round := 0; round < 20; round++ {
				var previous time.Duration
				for retry := 0; retry < 64; retry++ {
					delay := policy.Delay(retry, previous)
					require.GreaterOrEqual(t, delay, previous)
					require.LessOrEqual(t, delay, policy.MaxDelay)
					previous = delay
				}
			}
		})
	}
}

func TestSubmissionDelayGrowsExponentially(t *testing.T) {
	policy := SubmissionPolicy(DefaultMinBackoff, DefaultMaxBackoff)
	policy.Jitter = false
	require.Equal(t, 250*time.Millisecond, policy.Delay(0, 0))
	require.Equal(t, 500*time.Millisecond, policy.Delay(1, 0))
	require.Equal(t, 4*time.Second, policy.Delay(4, 0))
	require.Equal(t, 8*time.Second, policy.Delay(5, 0))
	require.Equal(t, 8*time.Second, policy.Delay(500, 0))
}

func TestPollingPolicyIsFixed(t *testing.T) {
	policy := PollingPolicy(time.Second, func(status.Code) Decision { return DecisionRetryPending })
	require.Equal(t, UnlimitedAttempts, policy.MaxAttempts)
	for retry := 0; retry < 10; retry++ {
		require.Equal(t, time.Second, policy.Delay(retry, time.Second))
	}
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, SubmissionPolicy(time.Second, time.Minute).Validate())
	err := (&RetryPolicy{Name: "missing"}).Validate()
	require.ErrorIs(t, err, common.ConstructionError)
	policy := SubmissionPolicy(time.Minute, time.Second)
	require.ErrorIs(t, policy.Validate(), common.ConstructionError)
}

func TestDecisionForClass(t *testing.T) {
	require.Equal(t, DecisionSucceed, DecisionForClass(status.ClassifySubmission(status.Ok)))
	require.Equal(t, DecisionRetryNode, DecisionForClass(status.ClassifySubmission(status.Busy)))
	require.Equal(t, DecisionFail, DecisionForClass(status.ClassifySubmission(status.InvalidSignature)))
	require.Equal(t, DecisionRetryPending, DecisionForClass(status.ClassifyReceipt(status.Unknown)))
}

func TestPolicyAsBackOff(t *testing.T) {
	policy := &RetryPolicy{Name: "short", MaxAttempts: 4, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond, Multiplier: 2, Jitter: true}
	calls := 0
	failure := errors.New("still failing")
	err := backoff.Retry(func() error {
		calls++
		return failure
	}, policy.NewBackOff())
	require.ErrorIs(t, err, failure)
	require.Equal(t, 4, calls)

	bo := policy.NewBackOff()
	for i := 0; i < 3; i++ {
		require.NotEqual(t, backoff.Stop, bo.NextBackOff())
	}
	require.Equal(t, backoff.Stop, bo.NextBackOff())
	bo.Reset()
	require.NotEqual(t, backoff.Stop, bo.NextBackOff())
}
