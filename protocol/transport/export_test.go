package transport

import (
	"context"

	"google.golang.org/grpc"
)

func UnderlyingConn(channel Channel) *grpc.ClientConn {
	return channel.(*channelLease).channel.conn
}

func SetConnect(pool *Pool, connect func(ctx context.Context, address string, transportSecurity bool, config Config) (*grpc.ClientConn, error)) {
	pool.connect = connect
}
