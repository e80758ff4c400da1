package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lavanet/ledgerclient/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DisabledFlagOption = "disabled"

type LatencyTracker struct {
	AverageLatency time.Duration // in nano seconds (time.Since result)
	TotalRequests  int
}

func (lt *LatencyTracker) AddLatency(latency time.Duration) {
	lt.TotalRequests++
	weight := 1.0 / float64(lt.TotalRequests)
	lt.AverageLatency = time.Duration(float64(lt.AverageLatency)*(1-weight) + float64(latency)*weight)
}

// ClientMetricsManager exports executor and node health metrics. Every method accepts a
// nil receiver so callers never check whether metrics are enabled.
type ClientMetricsManager struct {
	totalAttemptsMetric         *prometheus.CounterVec
	totalOperationsMetric       *prometheus.CounterVec
	totalRetriesMetric          *prometheus.CounterVec
	averageLatencyMetric        *prometheus.GaugeVec
	nodeHealthyMetric           *prometheus.GaugeVec
	nodeBackoffMetric           *prometheus.GaugeVec
	nodeConsecutiveFailures     *prometheus.GaugeVec
	endpointsHealthChecksOk     *prometheus.GaugeVec
	protocolVersionMetric       *prometheus.GaugeVec
	lock                        sync.Mutex
	averageLatencyPerOperation  map[string]*LatencyTracker
	unhealthyNodes              map[string]struct{}
	knownNodes                  map[string]struct{}
	endpointsHealthChecksStatus uint64
	server                      *http.Server
}

type ClientMetricsManagerOptions struct {
	// NetworkAddress serves /metrics when set, DisabledFlagOption turns metrics off.
	NetworkAddress string
	// Registerer defaults to the prometheus default registerer.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func NewClientMetricsManager(options ClientMetricsManagerOptions) (*ClientMetricsManager, error) {
	if options.NetworkAddress == DisabledFlagOption {
		utils.FormatWarning("prometheus endpoint inactive, option is disabled", nil)
		return nil, nil
	}
	if options.Registerer == nil {
		options.Registerer = prometheus.DefaultRegisterer
	}
	if options.Gatherer == nil {
		options.Gatherer = prometheus.DefaultGatherer
	}

	manager := &ClientMetricsManager{
		averageLatencyPerOperation:  map[string]*LatencyTracker{},
		unhealthyNodes:              map[string]struct{}{},
		knownNodes:                  map[string]struct{}{},
		endpointsHealthChecksStatus: 1,
	}
	var errs []error
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		metric, err := register(options.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels))
		errs = append(errs, err)
		return metric
	}
	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		metric, err := register(options.Registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels))
		errs = append(errs, err)
		return metric
	}

	manager.totalAttemptsMetric = counterVec("ledgerclient_total_attempts",
		"The total number of requests sent to nodes, by operation, node and decision.", "operation", "node", "decision")
	manager.totalOperationsMetric = counterVec("ledgerclient_total_operations",
		"The total number of finished operations by result.", "operation", "result")
	manager.totalRetriesMetric = counterVec("ledgerclient_total_retries",
		"The total number of attempts beyond the first, per operation.", "operation")
	manager.averageLatencyMetric = gaugeVec("ledgerclient_average_operation_latency_milliseconds",
		"Average latency of finished operations, retries and backoff included.", "operation")
	manager.nodeHealthyMetric = gaugeVec("ledgerclient_node_healthy",
		"1 when the node is selectable, 0 while it is backed off.", "node")
	manager.nodeBackoffMetric = gaugeVec("ledgerclient_node_backoff_seconds",
		"Time left until a backed off node is selectable again.", "node")
	manager.nodeConsecutiveFailures = gaugeVec("ledgerclient_node_consecutive_failures",
		"Transport failures since the node last answered.", "node")
	manager.endpointsHealthChecksOk = gaugeVec("ledgerclient_overall_health",
		"1 while at least one node is healthy.", "network")
	manager.protocolVersionMetric = gaugeVec("ledgerclient_protocol_version",
		"The version of the ledger client, major*1e6 + minor*1e3 + patch.", "version")
	if err := errors.Join(errs...); err != nil {
		return nil, utils.FormatError("failed registering metrics", err)
	}
	manager.endpointsHealthChecksOk.WithLabelValues("ledger").Set(1)

	if options.NetworkAddress != "" {
		if err := manager.listen(options.NetworkAddress, options.Gatherer); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// register reuses the collector already registered under the same name, a process may
// build more than one client.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				utils.FormatDebug("prometheus metric already registered, reusing existing collector", utils.LogAttr("error", err))
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

func (pme *ClientMetricsManager) listen(address string, gatherer prometheus.Gatherer) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return utils.FormatError("failed to listen for prometheus", err, utils.LogAttr("address", address))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics/overall-health", func(w http.ResponseWriter, r *http.Request) {
		statusCode := http.StatusOK
		message := "Health status OK"
		if atomic.LoadUint64(&pme.endpointsHealthChecksStatus) == 0 {
			statusCode = http.StatusServiceUnavailable
			message = "Unhealthy"
		}
		w.WriteHeader(statusCode)
		w.Write([]byte(message))
	})
	pme.server = &http.Server{Addr: listener.Addr().String(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		utils.FormatInfo("prometheus endpoint listening", utils.LogAttr("Listen Address", pme.server.Addr))
		if err := pme.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.FormatError("prometheus endpoint stopped", err)
		}
	}()
	return nil
}

// Address is where /metrics is served, empty without a listener.
func (pme *ClientMetricsManager) Address() string {
	if pme == nil || pme.server == nil {
		return ""
	}
	return pme.server.Addr
}

func (pme *ClientMetricsManager) Close(ctx context.Context) error {
	if pme == nil || pme.server == nil {
		return nil
	}
	return pme.server.Shutdown(ctx)
}

// AddAttempt records one request sent to a node.
func (pme *ClientMetricsManager) AddAttempt(operation string, node string, decision string, latency time.Duration) {
	if pme == nil {
		return
	}
	pme.totalAttemptsMetric.WithLabelValues(operation, node, decision).Inc()
}

// AddResult records a finished operation.
func (pme *ClientMetricsManager) AddResult(operation string, success bool, attempts int, latency time.Duration) {
	if pme == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	pme.totalOperationsMetric.WithLabelValues(operation, result).Inc()
	if attempts > 1 {
		pme.totalRetriesMetric.WithLabelValues(operation).Add(float64(attempts - 1))
	}
	pme.lock.Lock()
	defer pme.lock.Unlock()
	tracker, ok := pme.averageLatencyPerOperation[operation]
	if !ok {
		tracker = &LatencyTracker{}
		pme.averageLatencyPerOperation[operation] = tracker
	}
	tracker.AddLatency(latency)
	pme.averageLatencyMetric.WithLabelValues(operation).Set(float64(tracker.AverageLatency.Milliseconds()))
}

// SetNodeHealth follows the registry's view of a node.
func (pme *ClientMetricsManager) SetNodeHealth(node string, healthy bool, backoff time.Duration, consecutiveFailures uint64) {
	if pme == nil {
		return
	}
	var value float64
	if healthy {
		value = 1
	}
	if backoff < 0 {
		backoff = 0
	}
	pme.nodeHealthyMetric.WithLabelValues(node).Set(value)
	pme.nodeBackoffMetric.WithLabelValues(node).Set(backoff.Seconds())
	pme.nodeConsecutiveFailures.WithLabelValues(node).Set(float64(consecutiveFailures))

	pme.lock.Lock()
	defer pme.lock.Unlock()
	pme.knownNodes[node] = struct{}{}
	if healthy {
		delete(pme.unhealthyNodes, node)
	} else {
		pme.unhealthyNodes[node] = struct{}{}
	}
	pme.updateHealthCheckStatus(len(pme.unhealthyNodes) < len(pme.knownNodes))
}

// ResetNodes forgets every node, called when the network is replaced.
func (pme *ClientMetricsManager) ResetNodes() {
	if pme == nil {
		return
	}
	pme.lock.Lock()
	defer pme.lock.Unlock()
	pme.nodeHealthyMetric.Reset()
	pme.nodeBackoffMetric.Reset()
	pme.nodeConsecutiveFailures.Reset()
	pme.knownNodes = map[string]struct{}{}
	pme.unhealthyNodes = map[string]struct{}{}
	pme.updateHealthCheckStatus(true)
}

func (pme *ClientMetricsManager) updateHealthCheckStatus(status bool) {
	var value float64 = 0
	if status {
		value = 1
	}
	pme.endpointsHealthChecksOk.WithLabelValues("ledger").Set(value)
	atomic.StoreUint64(&pme.endpointsHealthChecksStatus, uint64(value))
}

func (pme *ClientMetricsManager) SetVersion(version string) {
	if pme == nil {
		return
	}
	SetVersionInner(pme.protocolVersionMetric, version)
}

func SetVersionInner(protocolVersionMetric *prometheus.GaugeVec, version string) {
	var major, minor, patch int
	_, err := fmt.Sscanf(version, "%d.%d.%d", &major, &minor, &patch)
	if err != nil {
		utils.FormatError("Failed parsing version at metrics manager", err, utils.LogAttr("version", version))
		protocolVersionMetric.WithLabelValues("version").Set(0)
		return
	}
	combined := major*1000000 + minor*1000 + patch
	protocolVersionMetric.WithLabelValues("version").Set(float64(combined))
}
