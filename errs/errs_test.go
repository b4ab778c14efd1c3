package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/errs"
)

var errLeaf = errors.New("leaf failure")

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := errs.New(errs.ErrInvalidKey, "keys.FromWIF", errLeaf).
		WithWallet("alice").
		WithKey("7")
	wrapped := fmt.Errorf("outer: %w", err)

	require.ErrorIs(t, wrapped, errs.ErrInvalidKey)
	require.ErrorIs(t, wrapped, errLeaf)
	require.NotErrorIs(t, wrapped, errs.ErrConfig)

	e, ok := errs.As(wrapped)
	require.True(t, ok)
	require.Equal(t, "alice", e.Wallet)
	require.Equal(t, "7", e.KeyID)
	require.Equal(t, errs.ErrInvalidKey, errs.KindOf(wrapped))
	require.Contains(t, err.Error(), "wallet=alice key=7")
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := errs.New(errs.ErrInsufficientFunds, "select", nil)
	out := errs.Wrap(errs.ErrInvalidTransaction, "create", inner)
	require.Equal(t, errs.ErrInsufficientFunds, errs.KindOf(out))

	require.Nil(t, errs.Wrap(errs.ErrConfig, "noop", nil))

	plain := errs.Wrap(errs.ErrConfig, "load", errLeaf)
	require.ErrorIs(t, plain, errs.ErrConfig)
	require.ErrorIs(t, plain, errLeaf)
}
