package fakenode

import (
	"context"
	"net"
	"testing"

	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// StreamHandler serves a server stream, send pushes one encoded message.
type StreamHandler func(ctx context.Context, method string, request []byte, send func([]byte) error) error

// Server is a gRPC node that answers every method through handlers, with no generated
// service code.
type Server struct {
	Address string
	NodeID  ledgertypes.AccountID
	server  *grpc.Server
}

func (s *Server) Endpoint() network.NodeEndpoint {
	return network.NodeEndpoint{NodeID: s.NodeID, Addresses: []string{s.Address}}
}

func (s *Server) Stop() {
	s.server.Stop()
}

// StartServer serves unary calls with handler and streaming calls with streams, which
// may be nil.
func StartServer(t *testing.T, nodeID ledgertypes.AccountID, handler Handler, streams StreamHandler) *Server {
	t.Helper()
	grpcServer := grpc.NewServer(
		grpc.UnknownServiceHandler(func(srv interface{}, stream grpc.ServerStream) error {
			method, ok := grpc.MethodFromServerStream(stream)
			if !ok {
				return grpcstatus.Error(codes.Unimplemented, "unknown method")
			}
			var request []byte
			if err := stream.RecvMsg(&request); err != nil {
				return err
			}
			if streams != nil && method == wire.MethodSubscribeTopic {
				return streams(stream.Context(), method, request, func(message []byte) error {
					return stream.SendMsg(message)
				})
			}
			response, err := handler(stream.Context(), method, request)
			if err != nil {
				return err
			}
			return stream.SendMsg(response)
		}),
		grpc.ForceServerCodec(wire.RawBytesCodec{}),
	)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = grpcServer.Serve(listener)
	}()
	server := &Server{Address: listener.Addr().String(), NodeID: nodeID, server: grpcServer}
	t.Cleanup(server.Stop)
	return server
}
