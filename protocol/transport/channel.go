// Package transport opens and pools the gRPC channels requests travel over. One channel
// per node is shared by every operation that targets the node.
package transport

import (
	"context"

	"github.com/lavanet/ledgerclient/protocol/network"
)

// Channel sends one encoded request and returns the encoded response. Any error means no
// well formed response was received.
type Channel interface {
	Invoke(ctx context.Context, method string, request []byte) ([]byte, error)
}

// ChannelProvider hands out the channel for a node.
type ChannelProvider interface {
	GetChannel(ctx context.Context, endpoint network.NodeEndpoint) (Channel, error)
}

// MessageStream yields encoded messages of a server stream until it returns an error,
// io.EOF when the server ended the stream.
type MessageStream interface {
	Recv() ([]byte, error)
}

// StreamOpener opens a server stream, subscriptions use it.
type StreamOpener interface {
	OpenStream(ctx context.Context, method string, request []byte) (MessageStream, error)
}
