package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

const (
	DefaultMaxCallRecvMsgSize = 32 * 1024 * 1024
	DefaultKeepaliveTime      = 100 * time.Second
)

var (
	PoolClosedError     = sdkerrors.New("PoolClosed Error", 1301, "channel pool is closed")
	MissingAddressError = sdkerrors.New("MissingAddress Error", 1302, "endpoint has no address")
	ChannelRetiredError = sdkerrors.New("ChannelRetired Error", 1303, "channel was retired and closed")
)

type Config struct {
	// AllowInsecureTLS accepts self signed node certificates.
	AllowInsecureTLS bool          `mapstructure:"allow-insecure-tls"`
	AllowCompression bool          `mapstructure:"allow-compression"`
	MaxCallRecvMsg   int           `mapstructure:"max-call-recv-msg"`
	KeepaliveTime    time.Duration `mapstructure:"keepalive-time"`
}

func DefaultConfig() Config {
	return Config{MaxCallRecvMsg: DefaultMaxCallRecvMsgSize, KeepaliveTime: DefaultKeepaliveTime}
}

// ConnectGRPCClient builds a channel to address. It does not block on the handshake,
// connection problems surface on the first call and are classified there.
func ConnectGRPCClient(ctx context.Context, address string, transportSecurity bool, config Config) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption
	if transportSecurity {
		var tlsConf tls.Config
		if config.AllowInsecureTLS {
			tlsConf.InsecureSkipVerify = true // nodes commonly serve self signed certificates
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tlsConf)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	maxRecv := config.MaxCallRecvMsg
	if maxRecv <= 0 {
		maxRecv = DefaultMaxCallRecvMsgSize
	}
	opts = append(opts,
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecv)),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "tcp", addr)
		}),
	)
	if config.KeepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: config.KeepaliveTime, PermitWithoutStream: false}))
	}
	if config.AllowCompression {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)))
	}
	return grpc.DialContext(ctx, address, opts...)
}

type grpcChannel struct {
	conn    *grpc.ClientConn
	address string

	lock    sync.Mutex
	refs    int
	retired bool
	closed  bool
}

// acquire takes a reference, false once the channel is closed.
func (c *grpcChannel) acquire() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return false
	}
	c.refs++
	return true
}

func (c *grpcChannel) release() {
	c.lock.Lock()
	c.refs--
	closing := c.refs == 0 && c.retired && c.markClosedLocked()
	c.lock.Unlock()
	if closing {
		c.conn.Close()
	}
}

// retire closes the channel once every reference handed out on it is released.
func (c *grpcChannel) retire() {
	c.lock.Lock()
	c.retired = true
	closing := c.refs == 0 && c.markClosedLocked()
	c.lock.Unlock()
	if closing {
		c.conn.Close()
	}
}

func (c *grpcChannel) close() error {
	c.lock.Lock()
	closing := c.markClosedLocked()
	c.lock.Unlock()
	if !closing {
		return nil
	}
	return c.conn.Close()
}

func (c *grpcChannel) markClosedLocked() bool {
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// channelLease is what the pool hands out. It holds a reference on the channel from
// GetChannel until its first call ends, so a node retired in between still serves that
// call. Later calls on the same lease take their own reference.
type channelLease struct {
	channel *grpcChannel
	used    atomic.Bool
}

func (l *channelLease) hold() error {
	if !l.used.Swap(true) {
		return nil
	}
	if !l.channel.acquire() {
		return utils.FormatWarning("channel was retired", ChannelRetiredError, utils.LogAttr("address", l.channel.address))
	}
	return nil
}

// Release gives back a lease that will not be used.
func (l *channelLease) Release() {
	if !l.used.Swap(true) {
		l.channel.release()
	}
}

func (l *channelLease) Invoke(ctx context.Context, method string, request []byte) ([]byte, error) {
	if err := l.hold(); err != nil {
		return nil, err
	}
	defer l.channel.release()
	var reply []byte
	err := l.channel.conn.Invoke(ctx, method, request, &reply, grpc.ForceCodec(wire.RawBytesCodec{}))
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// OpenStream keeps the reference until the stream ends.
func (l *channelLease) OpenStream(ctx context.Context, method string, request []byte) (MessageStream, error) {
	if err := l.hold(); err != nil {
		return nil, err
	}
	stream, err := l.channel.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, method, grpc.ForceCodec(wire.RawBytesCodec{}))
	if err == nil {
		err = stream.SendMsg(request)
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err != nil {
		l.channel.release()
		return nil, err
	}
	return &grpcMessageStream{stream: stream, release: l.channel.release}, nil
}

type grpcMessageStream struct {
	stream  grpc.ClientStream
	release func()
	once    sync.Once
}

func (s *grpcMessageStream) Recv() ([]byte, error) {
	var message []byte
	if err := s.stream.RecvMsg(&message); err != nil {
		s.once.Do(s.release)
		return nil, err
	}
	return message, nil
}

// Pool keeps one gRPC channel per node. Concurrent requests for a channel that does not
// exist yet share a single construction.
type Pool struct {
	lock     sync.RWMutex
	channels map[string]*grpcChannel
	// building holds the keys under construction, true once retired meanwhile
	building map[string]bool
	group    singleflight.Group
	config   Config
	closed   bool
	connect  func(ctx context.Context, address string, transportSecurity bool, config Config) (*grpc.ClientConn, error)
}

func NewPool(config Config) *Pool {
	return &Pool{
		channels: map[string]*grpcChannel{},
		building: map[string]bool{},
		config:   config,
		connect:  ConnectGRPCClient,
	}
}

func poolKey(endpoint network.NodeEndpoint) string {
	return endpoint.Key() + "|" + endpoint.Address() + "|" + strconv.FormatBool(endpoint.TransportSecurity)
}

// lease looks key up and takes a reference under the pool lock, so Retire cannot close
// the channel in between.
func (p *Pool) lease(key string) (*channelLease, bool, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.closed {
		return nil, false, PoolClosedError
	}
	channel, ok := p.channels[key]
	if !ok || !channel.acquire() {
		return nil, false, nil
	}
	return &channelLease{channel: channel}, true, nil
}

func (p *Pool) GetChannel(ctx context.Context, endpoint network.NodeEndpoint) (Channel, error) {
	lease, err := p.getChannel(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// GetStreamOpener returns the pooled channel as a stream opener.
func (p *Pool) GetStreamOpener(ctx context.Context, endpoint network.NodeEndpoint) (StreamOpener, error) {
	lease, err := p.getChannel(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (p *Pool) getChannel(ctx context.Context, endpoint network.NodeEndpoint) (*channelLease, error) {
	if endpoint.Address() == "" {
		return nil, utils.FormatWarning("cannot open channel", MissingAddressError, utils.LogAttr("node", endpoint.Key()))
	}
	key := poolKey(endpoint)
	if lease, ok, err := p.lease(key); err != nil || ok {
		return lease, err
	}
	var built *channelLease
	result, err, _ := p.group.Do(key, func() (interface{}, error) {
		if lease, ok, err := p.lease(key); err != nil || ok {
			built = lease
			return lease, err
		}
		p.lock.Lock()
		p.building[key] = false
		p.lock.Unlock()
		// the channel outlives the request that asked for it
		conn, err := p.connect(context.Background(), endpoint.Address(), endpoint.TransportSecurity, p.config)
		p.lock.Lock()
		defer p.lock.Unlock()
		retired := p.building[key]
		delete(p.building, key)
		if err != nil {
			return nil, utils.FormatWarning("failed to create grpc channel", err, utils.LogAttr("node", endpoint))
		}
		if p.closed {
			conn.Close()
			return nil, PoolClosedError
		}
		channel := &grpcChannel{conn: conn, address: endpoint.Address(), refs: 1}
		if retired {
			// serves the calls that asked for it, then closes
			channel.retired = true
			utils.FormatDebug("grpc channel retired while opening", utils.LogAttr("node", endpoint), utils.LogAttr("GUID", ctx))
		} else {
			p.channels[key] = channel
			utils.FormatDebug("opened grpc channel", utils.LogAttr("node", endpoint), utils.LogAttr("GUID", ctx))
		}
		built = &channelLease{channel: channel}
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	if built != nil {
		return built, nil
	}
	// a caller that shared another's construction takes its own reference
	channel := result.(*channelLease).channel
	if !channel.acquire() {
		return nil, utils.FormatWarning("channel was retired", ChannelRetiredError, utils.LogAttr("node", endpoint))
	}
	return &channelLease{channel: channel}, nil
}

// Retire drops the channels of endpoints that left the network. Calls holding a channel
// handed out before finish first.
func (p *Pool) Retire(endpoints ...network.NodeEndpoint) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, endpoint := range endpoints {
		key := poolKey(endpoint)
		if _, ok := p.building[key]; ok {
			p.building[key] = true
		}
		if channel, ok := p.channels[key]; ok {
			delete(p.channels, key)
			channel.retire()
		}
	}
}

func (p *Pool) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.channels)
}

func (p *Pool) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.closed = true
	var errs []error
	for key, channel := range p.channels {
		delete(p.channels, key)
		errs = append(errs, channel.close())
	}
	return errors.Join(errs...)
}

// IsRetryableStreamError reports whether a broken server stream is worth reopening.
func IsRetryableStreamError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.NotFound, codes.Aborted:
		return true
	default:
		return false
	}
}
