package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, address string) (*ClientMetricsManager, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	manager, err := NewClientMetricsManager(ClientMetricsManagerOptions{NetworkAddress: address, Registerer: registry, Gatherer: registry})
	require.NoError(t, err)
	require.NotNil(t, manager)
	t.Cleanup(func() {
		require.NoError(t, manager.Close(context.Background()))
	})
	return manager, registry
}

func TestNilManagerIsSafe(t *testing.T) {
	var manager *ClientMetricsManager
	manager.AddAttempt("submit", "0.0.3", "succeed", time.Millisecond)
	manager.AddResult("submit", true, 1, time.Millisecond)
	manager.SetNodeHealth("0.0.3", false, time.Second, 1)
	manager.ResetNodes()
	manager.SetVersion("1.2.3")
	require.Empty(t, manager.Address())
	require.NoError(t, manager.Close(context.Background()))
}

func TestDisabledManager(t *testing.T) {
	manager, err := NewClientMetricsManager(ClientMetricsManagerOptions{NetworkAddress: DisabledFlagOption})
	require.NoError(t, err)
	require.Nil(t, manager)
}

func TestAttemptsAndResults(t *testing.T) {
	manager, _ := newTestManager(t, "")
	manager.AddAttempt("submit", "0.0.3", "retry-node", 5*time.Millisecond)
	manager.AddAttempt("submit", "0.0.4", "succeed", 5*time.Millisecond)
	manager.AddResult("submit", true, 2, 30*time.Millisecond)
	manager.AddResult("submit", false, 1, 10*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(manager.totalAttemptsMetric.WithLabelValues("submit", "0.0.3", "retry-node")))
	require.Equal(t, 1.0, testutil.ToFloat64(manager.totalAttemptsMetric.WithLabelValues("submit", "0.0.4", "succeed")))
	require.Equal(t, 1.0, testutil.ToFloat64(manager.totalOperationsMetric.WithLabelValues("submit", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(manager.totalOperationsMetric.WithLabelValues("submit", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(manager.totalRetriesMetric.WithLabelValues("submit")))
	require.Equal(t, 20.0, testutil.ToFloat64(manager.averageLatencyMetric.WithLabelValues("submit")))
}

func TestNodeHealthDrivesOverallHealth(t *testing.T) {
	manager, _ := newTestManager(t, "")
	overall := manager.endpointsHealthChecksOk.WithLabelValues("ledger")
	require.Equal(t, 1.0, testutil.ToFloat64(overall))

	manager.SetNodeHealth("0.0.3", false, 8*time.Second, 1)
	require.Equal(t, 0.0, testutil.ToFloat64(overall))
	require.Equal(t, 8.0, testutil.ToFloat64(manager.nodeBackoffMetric.WithLabelValues("0.0.3")))
	require.Equal(t, 1.0, testutil.ToFloat64(manager.nodeConsecutiveFailures.WithLabelValues("0.0.3")))

	manager.SetNodeHealth("0.0.4", true, -time.Second, 0)
	require.Equal(t, 1.0, testutil.ToFloat64(overall))
	require.Equal(t, 0.0, testutil.ToFloat64(manager.nodeBackoffMetric.WithLabelValues("0.0.4")))

	manager.SetNodeHealth("0.0.4", false, 8*time.Second, 1)
	require.Equal(t, 0.0, testutil.ToFloat64(overall))
	manager.ResetNodes()
	require.Equal(t, 1.0, testutil.ToFloat64(overall))
	require.Equal(t, 0, testutil.CollectAndCount(manager.nodeHealthyMetric))
}

func TestVersion(t *testing.T) {
	manager, _ := newTestManager(t, "")
	manager.SetVersion("2.14.7")
	require.Equal(t, 2014007.0, testutil.ToFloat64(manager.protocolVersionMetric.WithLabelValues("version")))
	manager.SetVersion("not-a-version")
	require.Equal(t, 0.0, testutil.ToFloat64(manager.protocolVersionMetric.WithLabelValues("version")))
}

func TestSecondManagerReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewClientMetricsManager(ClientMetricsManagerOptions{Registerer: registry, Gatherer: registry})
	require.NoError(t, err)
	second, err := NewClientMetricsManager(ClientMetricsManagerOptions{Registerer: registry, Gatherer: registry})
	require.NoError(t, err)

	first.AddResult("receipt", true, 1, time.Millisecond)
	second.AddResult("receipt", true, 1, time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(first.totalOperationsMetric.WithLabelValues("receipt", "success")))
}

func TestMetricsEndpoint(t *testing.T) {
	manager, _ := newTestManager(t, "127.0.0.1:0")
	manager.AddResult("submit", true, 1, time.Millisecond)
	require.NotEmpty(t, manager.Address())

	get := func(path string) (int, string) {
		var response *http.Response
		var err error
		require.Eventually(t, func() bool {
			response, err = http.Get("http://" + manager.Address() + path)
			return err == nil
		}, 2*time.Second, 10*time.Millisecond)
		defer response.Body.Close()
		body, err := io.ReadAll(response.Body)
		require.NoError(t, err)
		return response.StatusCode, string(body)
	}

	code, body := get("/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "ledgerclient_total_operations")

	code, _ = get("/metrics/overall-health")
	require.Equal(t, http.StatusOK, code)
	manager.SetNodeHealth("0.0.3", false, time.Second, 1)
	code, body = get("/metrics/overall-health")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "Unhealthy", body)
}
