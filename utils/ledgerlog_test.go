package utils_test

import (
	"context"
	"errors"
	"testing"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/stretchr/testify/require"
)

var testError = sdkerrors.New("test Error", 123, "error for tests")

type detailError struct {
	code int
}

func (e *detailError) Error() string { return "detail" }

func (e *detailError) Unwrap() error { return testError }

func TestErrorTypeChecks(t *testing.T) {
	newErr := utils.FormatError("testing 123", testError, utils.LogAttr("attribute", "test"))
	require.True(t, testError.Is(newErr))
	require.True(t, errors.Is(newErr, testError))
}

func TestErrorChainKeepsDetail(t *testing.T) {
	wrapped := utils.FormatWarning("outer", &detailError{code: 7}, utils.LogAttr("node", "0.0.3"))
	wrapped = utils.FormatWarning("outer again", wrapped)

	var detail *detailError
	require.True(t, errors.As(wrapped, &detail))
	require.Equal(t, 7, detail.code)
	require.True(t, errors.Is(wrapped, testError))
}

func TestNilErrorStillReturnsError(t *testing.T) {
	err := utils.FormatDebug("nothing wrong", utils.LogAttr("k", 1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "nothing wrong")
	require.Contains(t, err.Error(), "k:1")
}

func TestGUIDAttribute(t *testing.T) {
	ctx := utils.WithUniqueIdentifier(context.Background(), 42)
	err := utils.FormatInfo("with guid", utils.LogAttr("GUID", ctx))
	require.Contains(t, err.Error(), "GUID:42")

	err = utils.FormatInfo("without guid", utils.LogAttr("GUID", context.Background()))
	require.Contains(t, err.Error(), "GUID:no-guid")
}

func TestAppendUniqueIdentifier(t *testing.T) {
	ctx := utils.AppendUniqueIdentifier(context.Background(), 0)
	_, found := utils.GetUniqueIdentifier(ctx)
	require.False(t, found)

	ctx = utils.AppendUniqueIdentifier(ctx, 5)
	ctx = utils.AppendUniqueIdentifier(ctx, 6)
	guid, found := utils.GetUniqueIdentifier(ctx)
	require.True(t, found)
	require.Equal(t, uint64(5), guid)
}

func TestJsonFormatSwitch(t *testing.T) {
	utils.SetJsonFormat(true)
	defer utils.SetJsonFormat(false)
	require.Error(t, utils.FormatTrace("json line"))
}
