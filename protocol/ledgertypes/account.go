package ledgertypes

import (
	"fmt"
	"strconv"
	"strings"

	sdkerrors "cosmossdk.io/errors"
)

// AccountID identifies an account, and therefore also a node, on the ledger.
type AccountID struct {
	Shard uint64
	Realm uint64
	Num   uint64
}

func NewAccountID(num uint64) AccountID {
	return AccountID{Num: num}
}

func (a AccountID) String() string {
	return fmt.Sprintf("%d.%d.%d", a.Shard, a.Realm, a.Num)
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func AccountIDFromString(id string) (AccountID, error) {
	parts := strings.Split(strings.TrimSpace(id), ".")
	if len(parts) != 3 {
		return AccountID{}, sdkerrors.Wrapf(InvalidAccountIDError, "got %q", id)
	}
	var values [3]uint64
	for idx, part := range parts {
		value, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return AccountID{}, sdkerrors.Wrapf(InvalidAccountIDError, "got %q: %s", id, err)
		}
		values[idx] = value
	}
	return AccountID{Shard: values[0], Realm: values[1], Num: values[2]}, nil
}
