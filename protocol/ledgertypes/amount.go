package ledgertypes

import (
	"strings"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

// Amount is a quantity of the ledger's native currency in tinybars.
type Amount int64

const (
	Tinybar Amount = 1
	Hbar    Amount = 100_000_000

	hbarDecimals = 8
)

func (a Amount) Tinybars() int64 { return int64(a) }

// String prints the amount in hbar with trailing zeros trimmed.
func (a Amount) String() string {
	dec := math.LegacyNewDecWithPrec(int64(a), hbarDecimals)
	text := dec.String()
	if strings.Contains(text, ".") {
		text = strings.TrimRight(strings.TrimRight(text, "0"), ".")
	}
	return text + " ℏ"
}

// ParseHbar reads a decimal hbar value like "1.5", an optional "ℏ" or "hbar" suffix
// is ignored. A "t" suffix ("100t", "100 tℏ") reads tinybars.
func ParseHbar(text string) (Amount, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(trimmed, "ℏ"), "hbar"))
	if strings.HasSuffix(trimmed, "t") {
		value, ok := math.NewIntFromString(strings.TrimSpace(strings.TrimSuffix(trimmed, "t")))
		if !ok || !value.IsInt64() {
			return 0, sdkerrors.Wrapf(InvalidAmountError, "got %q", text)
		}
		return Amount(value.Int64()), nil
	}
	dec, err := math.LegacyNewDecFromStr(trimmed)
	if err != nil {
		return 0, sdkerrors.Wrapf(InvalidAmountError, "got %q: %s", text, err)
	}
	tinybars := dec.MulInt64(int64(Hbar))
	if !tinybars.IsInteger() {
		return 0, sdkerrors.Wrapf(InvalidAmountError, "%q has more than %d decimals", text, hbarDecimals)
	}
	truncated := tinybars.TruncateInt()
	if !truncated.IsInt64() {
		return 0, sdkerrors.Wrapf(InvalidAmountError, "%q overflows", text)
	}
	return Amount(truncated.Int64()), nil
}
