package utils

import (
	"context"

	"github.com/lavanet/ledgerclient/utils/rand"
)

type uniqueIdentifierCtxKey struct{}

func GenerateUniqueIdentifier() uint64 {
	return rand.Uint64()
}

func WithUniqueIdentifier(ctx context.Context, guid uint64) context.Context {
	return context.WithValue(ctx, uniqueIdentifierCtxKey{}, guid)
}

// AppendUniqueIdentifier keeps an existing GUID and ignores zero.
func AppendUniqueIdentifier(ctx context.Context, guid uint64) context.Context {
	if ctx.Value(uniqueIdentifierCtxKey{}) != nil || guid == 0 {
		return ctx
	}
	return context.WithValue(ctx, uniqueIdentifierCtxKey{}, guid)
}

func GetUniqueIdentifier(ctx context.Context) (guid uint64, found bool) {
	guid, found = ctx.Value(uniqueIdentifierCtxKey{}).(uint64)
	if !found {
		return 0, false
	}
	return guid, found
}
