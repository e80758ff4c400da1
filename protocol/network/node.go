package network

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
)

// NodeEndpoint is one member of the network. It is immutable once loaded.
type NodeEndpoint struct {
	NodeID            ledgertypes.AccountID
	Addresses         []string
	TransportSecurity bool
}

func (e NodeEndpoint) Key() string {
	return e.NodeID.String()
}

// Address is the address channels are opened to.
func (e NodeEndpoint) Address() string {
	if len(e.Addresses) == 0 {
		return ""
	}
	return e.Addresses[0]
}

func (e NodeEndpoint) String() string {
	return e.NodeID.String() + "@" + strings.Join(e.Addresses, ",")
}

func (e NodeEndpoint) sameAs(other NodeEndpoint) bool {
	if e.NodeID != other.NodeID || e.TransportSecurity != other.TransportSecurity || len(e.Addresses) != len(other.Addresses) {
		return false
	}
	for idx := range e.Addresses {
		if e.Addresses[idx] != other.Addresses[idx] {
			return false
		}
	}
	return true
}

type HealthOutcome int

const (
	// HealthSuccess is any well formed response, a rejection included.
	HealthSuccess HealthOutcome = iota
	// HealthFailure is a transport failure: refused, timed out, broken TLS.
	HealthFailure
)

func (o HealthOutcome) String() string {
	if o == HealthSuccess {
		return "success"
	}
	return "failure"
}

// NodeHealth is an immutable snapshot of a node's health record.
type NodeHealth struct {
	ConsecutiveFailures uint64
	TotalFailures       uint64
	UnhealthyUntil      time.Time
	LastUsed            time.Time
	LastFailure         time.Time
	CurrentBackoff      time.Duration
}

func (h NodeHealth) healthyAt(now time.Time) bool {
	return !now.Before(h.UnhealthyUntil)
}

// Node pairs an endpoint with its health record. Operations hold on to a *Node for the
// duration of an attempt, even across a network replacement.
type Node struct {
	Endpoint NodeEndpoint
	health   atomic.Pointer[NodeHealth]
}

func newNode(endpoint NodeEndpoint, initialBackoff time.Duration) *Node {
	node := &Node{Endpoint: endpoint}
	node.health.Store(&NodeHealth{CurrentBackoff: initialBackoff})
	return node
}

func (n *Node) Health() NodeHealth {
	return *n.health.Load()
}

func (n *Node) ID() ledgertypes.AccountID {
	return n.Endpoint.NodeID
}

func (n *Node) String() string {
	return n.Endpoint.String()
}

// update applies change to the current snapshot with compare and swap, retrying when
// a concurrent report won the race.
func (n *Node) update(change func(current NodeHealth) NodeHealth) NodeHealth {
	for {
		current := n.health.Load()
		next := change(*current)
		if n.health.CompareAndSwap(current, &next) {
			return next
		}
	}
}

func (n *Node) markUsed(now time.Time) {
	n.update(func(current NodeHealth) NodeHealth {
		current.LastUsed = now
		return current
	})
}

func (n *Node) recordOutcome(outcome HealthOutcome, now time.Time, config HealthConfig) NodeHealth {
	return n.update(func(current NodeHealth) NodeHealth {
		switch outcome {
		case HealthSuccess:
			current.ConsecutiveFailures = 0
			current.UnhealthyUntil = time.Time{}
			current.CurrentBackoff = config.MinBackoff
		case HealthFailure:
			backoff := current.CurrentBackoff
			if backoff < config.MinBackoff {
				backoff = config.MinBackoff
			}
			current.ConsecutiveFailures++
			current.TotalFailures++
			current.LastFailure = now
			current.UnhealthyUntil = now.Add(backoff)
			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
			current.CurrentBackoff = backoff
		}
		return current
	})
}
