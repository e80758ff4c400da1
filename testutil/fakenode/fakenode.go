// Package fakenode scripts network nodes for tests, either as in memory channels or as
// a real gRPC server on a loopback port.
package fakenode

import (
	"context"
	"sync"

	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/transport"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Handler answers one request. Returning an error simulates a transport failure.
type Handler func(ctx context.Context, method string, request []byte) ([]byte, error)

type Call struct {
	Node    ledgertypes.AccountID
	Method  string
	Request []byte
}

// Channels is an in memory transport.ChannelProvider. Each node answers with its own
// handler, nodes without one fail like an unreachable host.
type Channels struct {
	lock     sync.Mutex
	handlers map[ledgertypes.AccountID]Handler
	calls    []Call
}

func NewChannels() *Channels {
	return &Channels{handlers: map[ledgertypes.AccountID]Handler{}}
}

func (c *Channels) Handle(node ledgertypes.AccountID, handler Handler) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.handlers[node] = handler
}

func (c *Channels) GetChannel(ctx context.Context, endpoint network.NodeEndpoint) (transport.Channel, error) {
	return &channel{parent: c, node: endpoint.NodeID}, nil
}

func (c *Channels) Calls() []Call {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Channels) CallCount(node ledgertypes.AccountID) int {
	count := 0
	for _, call := range c.Calls() {
		if call.Node == node {
			count++
		}
	}
	return count
}

type channel struct {
	parent *Channels
	node   ledgertypes.AccountID
}

func (ch *channel) Invoke(ctx context.Context, method string, request []byte) ([]byte, error) {
	ch.parent.lock.Lock()
	ch.parent.calls = append(ch.parent.calls, Call{Node: ch.node, Method: method, Request: append([]byte(nil), request...)})
	handler := ch.parent.handlers[ch.node]
	ch.parent.lock.Unlock()
	if handler == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "connection refused")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return handler(ctx, method, request)
}

// Sequence answers with the handlers in order and repeats the last one.
func Sequence(handlers ...Handler) Handler {
	var lock sync.Mutex
	next := 0
	return func(ctx context.Context, method string, request []byte) ([]byte, error) {
		lock.Lock()
		handler := handlers[next]
		if next < len(handlers)-1 {
			next++
		}
		lock.Unlock()
		return handler(ctx, method, request)
	}
}

func Unavailable() Handler {
	return func(context.Context, string, []byte) ([]byte, error) {
		return nil, grpcstatus.Error(codes.Unavailable, "connection refused")
	}
}

// Hang blocks until the attempt's context ends.
func Hang() Handler {
	return func(ctx context.Context, _ string, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, grpcstatus.FromContextError(ctx.Err()).Err()
	}
}

func Precheck(code status.Code) Handler {
	return func(context.Context, string, []byte) ([]byte, error) {
		response := wire.TransactionResponse{PrecheckCode: code}
		return response.Marshal(), nil
	}
}

// Receipt answers a receipt query. A precheck other than OK carries no receipt.
func Receipt(precheck status.Code, receiptStatus status.Code) Handler {
	return func(_ context.Context, _ string, request []byte) ([]byte, error) {
		var query wire.Query
		if err := query.Unmarshal(request); err != nil {
			return nil, err
		}
		response := wire.Response{Header: wire.ResponseHeader{PrecheckCode: precheck}}
		if precheck == status.Ok {
			receipt := ledgertypes.Receipt{Status: receiptStatus}
			if query.TransactionID != nil {
				receipt.TransactionID = *query.TransactionID
			}
			response.Receipt = &receipt
		}
		return response.Marshal(), nil
	}
}

// Record answers a record query, or its cost when the query asks for the cost only.
func Record(cost uint64, record ledgertypes.Record) Handler {
	return func(_ context.Context, _ string, request []byte) ([]byte, error) {
		var query wire.Query
		if err := query.Unmarshal(request); err != nil {
			return nil, err
		}
		response := wire.Response{Header: wire.ResponseHeader{PrecheckCode: status.Ok, ResponseType: query.Header.ResponseType, Cost: cost}}
		if query.Header.ResponseType != wire.ResponseTypeCostAnswer {
			filled := record
			if query.TransactionID != nil {
				filled.Receipt.TransactionID = *query.TransactionID
			}
			response.Record = &filled
		}
		return response.Marshal(), nil
	}
}

// Route dispatches on the gRPC method.
func Route(routes map[string]Handler) Handler {
	return func(ctx context.Context, method string, request []byte) ([]byte, error) {
		handler, ok := routes[method]
		if !ok {
			return nil, grpcstatus.Error(codes.Unimplemented, method)
		}
		return handler(ctx, method, request)
	}
}

func Endpoints(nums ...uint64) []network.NodeEndpoint {
	endpoints := make([]network.NodeEndpoint, 0, len(nums))
	for _, num := range nums {
		endpoints = append(endpoints, network.NodeEndpoint{
			NodeID:    ledgertypes.NewAccountID(num),
			Addresses: []string{"fake-node-" + ledgertypes.NewAccountID(num).String() + ":50211"},
		})
	}
	return endpoints
}
