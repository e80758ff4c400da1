// Package network keeps the set of nodes a client can talk to and their health. Nodes
// that fail at the transport level are backed off exponentially, any well formed
// answer readmits them.
package network

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/lavanet/ledgerclient/utils/rand"
)

const (
	DefaultNodeMinBackoff = 8 * time.Second
	DefaultNodeMaxBackoff = time.Hour
)

var InvalidNetworkError = sdkerrors.New("InvalidNetwork Error", 1202, "network map is not usable")

type HealthConfig struct {
	MinBackoff time.Duration `mapstructure:"min-backoff"`
	MaxBackoff time.Duration `mapstructure:"max-backoff"`
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{MinBackoff: DefaultNodeMinBackoff, MaxBackoff: DefaultNodeMaxBackoff}
}

// HealthObserver is told about every health change, the metrics manager implements it.
type HealthObserver interface {
	SetNodeHealth(node string, healthy bool, backoff time.Duration, consecutiveFailures uint64)
}

type Registry struct {
	lock     sync.RWMutex
	nodes    []*Node // rotation order, rebuilt on every replacement and never mutated in place
	byID     map[ledgertypes.AccountID]*Node
	cursor   atomic.Uint64
	config   HealthConfig
	now      func() time.Time
	observer HealthObserver
}

func NewRegistry(config HealthConfig, endpoints []NodeEndpoint) (*Registry, error) {
	if config.MinBackoff <= 0 || config.MaxBackoff < config.MinBackoff {
		return nil, utils.FormatError("invalid node backoff configuration", InvalidNetworkError,
			utils.LogAttr("minBackoff", config.MinBackoff),
			utils.LogAttr("maxBackoff", config.MaxBackoff),
		)
	}
	registry := &Registry{config: config, now: time.Now, byID: map[ledgertypes.AccountID]*Node{}}
	if _, err := registry.ReplaceNetwork(endpoints); err != nil {
		return nil, err
	}
	return registry, nil
}

// SetClock replaces the time source, tests use it to step through backoff windows.
func (r *Registry) SetClock(now func() time.Time) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.now = now
}

func (r *Registry) SetObserver(observer HealthObserver) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.observer = observer
}

func (r *Registry) snapshot() ([]*Node, func() time.Time, HealthObserver) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.nodes, r.now, r.observer
}

// ListCandidates returns the nodes outside their backoff window, starting at a rotating
// offset of a per process shuffle. When every node is backed off it returns the node
// that failed least recently so the caller is never stuck on registry state alone.
func (r *Registry) ListCandidates() []*Node {
	nodes, now, _ := r.snapshot()
	if len(nodes) == 0 {
		return nil
	}
	current := now()
	start := int((r.cursor.Add(1) - 1) % uint64(len(nodes)))
	candidates := make([]*Node, 0, len(nodes))
	for offset := 0; offset < len(nodes); offset++ {
		node := nodes[(start+offset)%len(nodes)]
		if node.Health().healthyAt(current) {
			candidates = append(candidates, node)
		}
	}
	if len(candidates) > 0 {
		return candidates
	}
	fallback := nodes[0]
	for _, node := range nodes[1:] {
		health, best := node.Health(), fallback.Health()
		if health.LastFailure.Before(best.LastFailure) ||
			(health.LastFailure.Equal(best.LastFailure) && health.UnhealthyUntil.Before(best.UnhealthyUntil)) {
			fallback = node
		}
	}
	utils.FormatDebug("all nodes backed off, using least recently failed", utils.LogAttr("node", fallback))
	return []*Node{fallback}
}

// Report feeds an observed outcome into the node's health record. Only the node's own
// record is touched, unrelated nodes are never blocked.
func (r *Registry) Report(node *Node, outcome HealthOutcome) NodeHealth {
	_, now, observer := r.snapshot()
	current := now()
	health := node.recordOutcome(outcome, current, r.config)
	if outcome == HealthFailure {
		utils.FormatDebug("node backed off",
			utils.LogAttr("node", node),
			utils.LogAttr("until", health.UnhealthyUntil),
			utils.LogAttr("consecutiveFailures", health.ConsecutiveFailures),
		)
	}
	if observer != nil {
		observer.SetNodeHealth(node.Endpoint.Key(), health.healthyAt(current), health.UnhealthyUntil.Sub(current), health.ConsecutiveFailures)
	}
	return health
}

// IsHealthy reports whether node is outside its backoff window.
func (r *Registry) IsHealthy(node *Node) bool {
	_, now, _ := r.snapshot()
	return node.Health().healthyAt(now())
}

func (r *Registry) MarkUsed(node *Node) {
	_, now, _ := r.snapshot()
	node.markUsed(now())
}

// ReplaceNetwork swaps the whole node set. Nodes whose endpoint did not change keep
// their health record. Operations holding a *Node keep using it, the next selection
// sees the new set. The endpoints that left are returned so their channels can be closed.
func (r *Registry) ReplaceNetwork(endpoints []NodeEndpoint) ([]NodeEndpoint, error) {
	seen := map[ledgertypes.AccountID]bool{}
	for _, endpoint := range endpoints {
		if len(endpoint.Addresses) == 0 || endpoint.NodeID.IsZero() {
			return nil, utils.FormatWarning("endpoint without address or node id", InvalidNetworkError, utils.LogAttr("endpoint", endpoint))
		}
		if seen[endpoint.NodeID] {
			return nil, utils.FormatWarning("duplicate node id in network", InvalidNetworkError, utils.LogAttr("node", endpoint.NodeID))
		}
		seen[endpoint.NodeID] = true
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	byID := make(map[ledgertypes.AccountID]*Node, len(endpoints))
	nodes := make([]*Node, 0, len(endpoints))
	for _, endpoint := range endpoints {
		endpoint.Addresses = append([]string(nil), endpoint.Addresses...)
		node, ok := r.byID[endpoint.NodeID]
		if !ok || !node.Endpoint.sameAs(endpoint) {
			node = newNode(endpoint, r.config.MinBackoff)
		}
		byID[endpoint.NodeID] = node
		nodes = append(nodes, node)
	}
	var removed []NodeEndpoint
	for id, node := range r.byID {
		if kept, ok := byID[id]; !ok || kept != node {
			removed = append(removed, node.Endpoint)
		}
	}
	r.nodes = rotationOrder(nodes)
	r.byID = byID
	utils.FormatInfo("network replaced", utils.LogAttr("nodes", len(nodes)), utils.LogAttr("removed", len(removed)))
	return removed, nil
}

// rotationOrder shuffles by node id with the process seed, so the order is stable for
// a process and differs across processes.
func rotationOrder(nodes []*Node) []*Node {
	ordered := append([]*Node(nil), nodes...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Endpoint.Key() < ordered[j].Endpoint.Key()
	})
	rng := rand.New(rand.ProcessSeed())
	rng.Shuffle(len(ordered), func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})
	return ordered
}

func (r *Registry) Node(id ledgertypes.AccountID) (*Node, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	node, ok := r.byID[id]
	return node, ok
}

func (r *Registry) Nodes() []*Node {
	nodes, _, _ := r.snapshot()
	return append([]*Node(nil), nodes...)
}

func (r *Registry) Endpoints() []NodeEndpoint {
	nodes := r.Nodes()
	endpoints := make([]NodeEndpoint, len(nodes))
	for idx, node := range nodes {
		endpoints[idx] = node.Endpoint
	}
	return endpoints
}

func (r *Registry) Len() int {
	nodes, _, _ := r.snapshot()
	return len(nodes)
}
