package executor

import (
	"github.com/lavanet/ledgerclient/protocol/network"
)

// usedNodes tracks the nodes one operation already tried. It belongs to a single
// operation and is never shared.
type usedNodes struct {
	used       map[string]struct{}
	lastFailed string
}

func newUsedNodes() *usedNodes {
	return &usedNodes{used: map[string]struct{}{}}
}

func (un *usedNodes) AddUsed(node *network.Node) {
	un.used[node.Endpoint.Key()] = struct{}{}
}

// RemoveUsed records the end of an attempt. A failed node is avoided by the next pick
// when any other candidate exists.
func (un *usedNodes) RemoveUsed(node *network.Node, failed bool) {
	if failed {
		un.lastFailed = node.Endpoint.Key()
		return
	}
	un.lastFailed = ""
}

func (un *usedNodes) CurrentlyUsed() int {
	return len(un.used)
}

// pick prefers untried nodes, then any node but the last failed one, then whatever is
// left.
func (un *usedNodes) pick(candidates []*network.Node) *network.Node {
	if len(candidates) == 0 {
		return nil
	}
	var fallback *network.Node
	for _, node := range candidates {
		key := node.Endpoint.Key()
		if key == un.lastFailed {
			continue
		}
		if _, ok := un.used[key]; !ok {
			return node
		}
		if fallback == nil {
			fallback = node
		}
	}
	if fallback != nil {
		return fallback
	}
	return candidates[0]
}
