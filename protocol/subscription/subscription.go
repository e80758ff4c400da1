// Package subscription streams the messages of a topic from mirror nodes, reopening the
// stream after transient failures without delivering a message twice.
package subscription

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/transport"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
)

const (
	DefaultMaxAttempts    = 10
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
	DefaultBufferSize     = 16
)

type Config struct {
	MaxAttempts    int           `mapstructure:"max-attempts"`
	InitialBackoff time.Duration `mapstructure:"initial-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`
	BufferSize     int           `mapstructure:"buffer-size"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		BufferSize:     DefaultBufferSize,
	}
}

// Query selects the messages of a topic. A zero Limit streams until EndTime or forever.
type Query struct {
	TopicID   ledgertypes.AccountID
	StartTime time.Time
	EndTime   time.Time
	Limit     uint64
}

// Message is one topic message, chunked messages arrive already joined.
type Message struct {
	ConsensusTimestamp time.Time
	Contents           []byte
	SequenceNumber     uint64
	RunningHash        []byte
	// InitialTransactionID is set for messages that were sent in chunks.
	InitialTransactionID *ledgertypes.TransactionID
	Chunks               int
}

// StreamSource opens server streams on a node, *transport.Pool is one.
type StreamSource interface {
	GetStreamOpener(ctx context.Context, endpoint network.NodeEndpoint) (transport.StreamOpener, error)
}

// Handle is a running subscription.
type Handle struct {
	messages chan Message
	cancel   context.CancelFunc
	done     chan struct{}
	lock     sync.Mutex
	err      error
}

// Messages is closed when the subscription ends.
func (h *Handle) Messages() <-chan Message {
	return h.messages
}

// Unsubscribe stops the stream and waits for it to wind down.
func (h *Handle) Unsubscribe() {
	h.cancel()
	<-h.done
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is the reason the subscription ended. It is nil while running, after the stream
// completed and after Unsubscribe.
func (h *Handle) Err() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.err
}

func (h *Handle) setErr(err error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.err = err
}

// Subscribe starts streaming query from endpoints, moving to the next endpoint on every
// reconnect.
func Subscribe(ctx context.Context, source StreamSource, endpoints []network.NodeEndpoint, query Query, config Config) (*Handle, error) {
	if len(endpoints) == 0 {
		return nil, utils.FormatWarning("subscription has no mirror endpoints", common.ConstructionError, utils.LogAttr("topic", query.TopicID))
	}
	if query.TopicID.IsZero() {
		return nil, utils.FormatWarning("subscription has no topic", common.ConstructionError)
	}
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	if _, found := utils.GetUniqueIdentifier(ctx); !found {
		ctx = utils.WithUniqueIdentifier(ctx, utils.GenerateUniqueIdentifier())
	}
	ctx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		messages: make(chan Message, config.BufferSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	sub := &subscription{
		source:    source,
		endpoints: endpoints,
		query:     query,
		config:    config,
		sender:    common.NewSafeChannelSender[Message](ctx, handle.messages),
		pending:   map[string][]wire.TopicMessage{},
	}
	go func() {
		defer close(handle.done)
		defer sub.sender.Close()
		defer cancel()
		handle.setErr(sub.run(ctx))
	}()
	return handle, nil
}

type subscription struct {
	source    StreamSource
	endpoints []network.NodeEndpoint
	query     Query
	config    Config
	sender    *common.SafeChannelSender[Message]

	attempt  int
	received uint64
	last     time.Time
	pending  map[string][]wire.TopicMessage
}

var errUnsubscribed = errors.New("unsubscribed")

func (s *subscription) run(ctx context.Context) error {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = s.config.InitialBackoff
	exponential.MaxInterval = s.config.MaxBackoff
	exponential.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(s.config.MaxAttempts)), ctx)

	err := backoff.RetryNotify(func() error {
		err := s.stream(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errUnsubscribed) || ctx.Err() != nil:
			return backoff.Permanent(errUnsubscribed)
		case !transport.IsRetryableStreamError(err):
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, delay time.Duration) {
		utils.FormatWarning("topic stream broke, reconnecting", err,
			utils.LogAttr("GUID", ctx),
			utils.LogAttr("topic", s.query.TopicID),
			utils.LogAttr("attempt", s.attempt),
			utils.LogAttr("delay", delay),
		)
	})
	if err == nil {
		utils.FormatDebug("topic stream completed", utils.LogAttr("GUID", ctx), utils.LogAttr("topic", s.query.TopicID), utils.LogAttr("received", s.received))
		return nil
	}
	if errors.Is(err, errUnsubscribed) || ctx.Err() != nil {
		return nil
	}
	return utils.FormatWarning("topic subscription failed", errors.Join(common.TransportFailureError, err),
		utils.LogAttr("GUID", ctx), utils.LogAttr("topic", s.query.TopicID), utils.LogAttr("attempts", s.attempt))
}

// resumeQuery continues after the last message received on an earlier stream.
func (s *subscription) resumeQuery() (wire.TopicQuery, bool) {
	query := wire.TopicQuery{
		TopicID:   s.query.TopicID,
		StartTime: s.query.StartTime,
		EndTime:   s.query.EndTime,
		Limit:     s.query.Limit,
	}
	if s.last.IsZero() {
		return query, true
	}
	query.StartTime = s.last.Add(time.Nanosecond)
	if s.query.Limit > 0 {
		if s.received >= s.query.Limit {
			return query, false
		}
		query.Limit = s.query.Limit - s.received
	}
	return query, true
}

func (s *subscription) stream(ctx context.Context) error {
	query, more := s.resumeQuery()
	if !more {
		return nil
	}
	endpoint := s.endpoints[s.attempt%len(s.endpoints)]
	s.attempt++

	opener, err := s.source.GetStreamOpener(ctx, endpoint)
	if err != nil {
		return err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := opener.OpenStream(streamCtx, wire.MethodSubscribeTopic, query.Marshal())
	if err != nil {
		return err
	}
	utils.FormatTrace("topic stream opened", utils.LogAttr("GUID", ctx), utils.LogAttr("node", endpoint), utils.LogAttr("startTime", query.StartTime))
	for {
		encoded, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var message wire.TopicMessage
		if err := message.Unmarshal(encoded); err != nil {
			return err
		}
		if !s.last.IsZero() && !message.ConsensusTimestamp.After(s.last) {
			continue
		}
		s.received++
		s.last = message.ConsensusTimestamp
		if err := s.accept(message); err != nil {
			return err
		}
	}
}

func (s *subscription) accept(message wire.TopicMessage) error {
	if message.ChunkInfo == nil || message.ChunkInfo.Total <= 1 {
		return s.deliver(Message{
			ConsensusTimestamp: message.ConsensusTimestamp,
			Contents:           message.Contents,
			SequenceNumber:     message.SequenceNumber,
			RunningHash:        message.RunningHash,
			Chunks:             1,
		})
	}
	initial := message.ChunkInfo.InitialTransactionID
	key := initial.String()
	chunks := append(s.pending[key], message)
	if len(chunks) < int(message.ChunkInfo.Total) {
		s.pending[key] = chunks
		return nil
	}
	delete(s.pending, key)
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkInfo.Number < chunks[j].ChunkInfo.Number
	})
	var contents []byte
	for _, chunk := range chunks {
		contents = append(contents, chunk.Contents...)
	}
	lastChunk := chunks[len(chunks)-1]
	return s.deliver(Message{
		ConsensusTimestamp:   lastChunk.ConsensusTimestamp,
		Contents:             contents,
		SequenceNumber:       lastChunk.SequenceNumber,
		RunningHash:          lastChunk.RunningHash,
		InitialTransactionID: &initial,
		Chunks:               len(chunks),
	})
}

func (s *subscription) deliver(message Message) error {
	if !s.sender.Send(message) {
		return errUnsubscribed
	}
	return nil
}
