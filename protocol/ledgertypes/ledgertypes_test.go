package ledgertypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransactionIDString(t *testing.T) {
	id := TransactionID{
		AccountID:  AccountID{Num: 1234},
		ValidStart: time.Unix(1700000000, 5).UTC(),
	}
	require.Equal(t, "0.0.1234@1700000000.000000005", id.String())

	id.Scheduled = true
	id.Nonce = 3
	require.Equal(t, "0.0.1234@1700000000.000000005?scheduled/3", id.String())

	parsed, err := TransactionIDFromString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	for _, bad := range []string{"", "0.0.1", "0.0.1@", "0.0.1@12", "0.0.x@1.2", "0.0.1@1.2/x", "0.0.1@1.2000000000"} {
		_, err := TransactionIDFromString(bad)
		require.ErrorIs(t, err, InvalidTransactionIDError, bad)
	}
}

func TestForChunkIsDeterministic(t *testing.T) {
	first := TransactionID{AccountID: AccountID{Num: 2}, ValidStart: time.Unix(100, 999_999_999).UTC()}
	require.Equal(t, first, first.ForChunk(0))
	second := first.ForChunk(1)
	require.Equal(t, time.Unix(101, 0).UTC(), second.ValidStart)
	require.Equal(t, first.AccountID, second.AccountID)
	require.Equal(t, second, first.ForChunk(1))
}

func TestGeneratorNeverRepeats(t *testing.T) {
	frozen := time.Unix(1000, 0)
	gen := NewGeneratorWithClock(func() time.Time { return frozen }, time.Second)
	payer := NewAccountID(2)

	first := gen.Generate(payer)
	require.Equal(t, time.Unix(999, 0).UTC(), first.ValidStart)

	block := gen.Reserve(payer, 3)
	require.Equal(t, first.ValidStart.Add(1), block.ValidStart)

	next := gen.Generate(payer)
	require.Equal(t, block.ForChunk(2).ValidStart.Add(1), next.ValidStart)
}

func TestAccountIDFromString(t *testing.T) {
	id, err := AccountIDFromString("1.2.3")
	require.NoError(t, err)
	require.Equal(t, AccountID{Shard: 1, Realm: 2, Num: 3}, id)
	_, err = AccountIDFromString("1.2")
	require.ErrorIs(t, err, InvalidAccountIDError)
	require.True(t, AccountID{}.IsZero())
}

func TestAmount(t *testing.T) {
	amount, err := ParseHbar("1.5")
	require.NoError(t, err)
	require.Equal(t, Amount(150_000_000), amount)
	require.Equal(t, "1.5 ℏ", amount.String())
	require.Equal(t, "1 ℏ", Hbar.String())

	amount, err = ParseHbar("25 tℏ")
	require.NoError(t, err)
	require.Equal(t, Amount(25), amount)

	amount, err = ParseHbar("2 hbar")
	require.NoError(t, err)
	require.Equal(t, 2*Hbar, amount)

	_, err = ParseHbar("0.000000001")
	require.ErrorIs(t, err, InvalidAmountError)
	_, err = ParseHbar("lots")
	require.ErrorIs(t, err, InvalidAmountError)
}
