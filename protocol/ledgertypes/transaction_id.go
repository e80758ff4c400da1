package ledgertypes

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkerrors "cosmossdk.io/errors"
)

// TransactionID is the id of one logical operation. Every attempt of the operation,
// against any node, carries the same id so the network can drop duplicates.
type TransactionID struct {
	AccountID  AccountID
	ValidStart time.Time
	Scheduled  bool
	Nonce      int32
}

func (id TransactionID) IsZero() bool {
	return id.AccountID.IsZero() && id.ValidStart.IsZero()
}

// ForChunk derives the id of chunk index of a sequence whose first chunk has id.
// The derivation only depends on id, never on the clock.
func (id TransactionID) ForChunk(index int) TransactionID {
	derived := id
	derived.ValidStart = id.ValidStart.Add(time.Duration(index))
	return derived
}

func (id TransactionID) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s@%d.%09d", id.AccountID, id.ValidStart.Unix(), id.ValidStart.Nanosecond())
	if id.Scheduled {
		builder.WriteString("?scheduled")
	}
	if id.Nonce != 0 {
		fmt.Fprintf(&builder, "/%d", id.Nonce)
	}
	return builder.String()
}

func TransactionIDFromString(encoded string) (TransactionID, error) {
	fail := func(reason string) (TransactionID, error) {
		return TransactionID{}, sdkerrors.Wrapf(InvalidTransactionIDError, "%q: %s", encoded, reason)
	}
	rest := strings.TrimSpace(encoded)
	var nonce int32
	if slash := strings.LastIndex(rest, "/"); slash >= 0 {
		value, err := strconv.ParseInt(rest[slash+1:], 10, 32)
		if err != nil {
			return fail("bad nonce")
		}
		nonce = int32(value)
		rest = rest[:slash]
	}
	scheduled := false
	if strings.HasSuffix(rest, "?scheduled") {
		scheduled = true
		rest = strings.TrimSuffix(rest, "?scheduled")
	}
	account, timestamp, found := strings.Cut(rest, "@")
	if !found {
		return fail("missing @")
	}
	accountID, err := AccountIDFromString(account)
	if err != nil {
		return fail(err.Error())
	}
	secondsPart, nanosPart, found := strings.Cut(timestamp, ".")
	if !found {
		return fail("missing nanos")
	}
	seconds, err := strconv.ParseInt(secondsPart, 10, 64)
	if err != nil {
		return fail("bad seconds")
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil || nanos < 0 || nanos >= int64(time.Second) {
		return fail("bad nanos")
	}
	return TransactionID{
		AccountID:  accountID,
		ValidStart: time.Unix(seconds, nanos).UTC(),
		Scheduled:  scheduled,
		Nonce:      nonce,
	}, nil
}

// Generator hands out strictly increasing valid start times so two ids generated by one
// process never collide, even within one clock tick.
type Generator struct {
	lock   sync.Mutex
	last   time.Time
	now    func() time.Time
	offset time.Duration
}

// DefaultValidStartOffset backdates the valid start so a node whose clock runs behind
// ours still accepts the transaction.
const DefaultValidStartOffset = 10 * time.Second

func NewGenerator() *Generator {
	return &Generator{now: time.Now, offset: DefaultValidStartOffset}
}

func NewGeneratorWithClock(now func() time.Time, offset time.Duration) *Generator {
	return &Generator{now: now, offset: offset}
}

func (g *Generator) Generate(payer AccountID) TransactionID {
	return g.Reserve(payer, 1)
}

// Reserve returns the first id of a block of count consecutive ids, as used by a chunk
// sequence. Later calls start after the block.
func (g *Generator) Reserve(payer AccountID, count int) TransactionID {
	if count < 1 {
		count = 1
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	instant := g.now().Add(-g.offset).UTC()
	if !g.last.IsZero() && !instant.After(g.last) {
		instant = g.last.Add(1)
	}
	g.last = instant.Add(time.Duration(count - 1))
	return TransactionID{AccountID: payer, ValidStart: instant}
}
