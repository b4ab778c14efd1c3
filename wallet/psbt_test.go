package wallet

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/descriptor"
	"github.com/vulpemventures/go-bitcoin/network"
)

func requireDescribes(t *testing.T, desc string, index uint32, addr string) {
	t.Helper()
	d, err := descriptor.Parse(desc)
	require.NoError(t, err)
	require.True(t, d.IsRange())

	res, err := d.Script(descriptor.WithIndex(index))
	require.NoError(t, err)
	require.Len(t, res, 1)

	a, err := address.Parse(addr, network.Regtest)
	require.NoError(t, err)
	require.Equal(t, a.Script(), res[0].Script)
}

func TestDescriptors(t *testing.T) {
	ctx := context.Background()
	deps, _ := newDeps(t)

	w, err := Create(ctx, CreateOpts{Name: "single", Keys: []KeyInput{{Key: masterKey(t, 21, network.Regtest)}}}, deps)
	require.NoError(t, err)

	descs, err := w.Descriptors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	require.True(t, strings.HasPrefix(descs[0], "wpkh(["))
	require.Contains(t, descs[0], "/84'/1'/0']")
	require.Contains(t, descs[0], "/0/*)#")
	require.Contains(t, descs[1], "/1/*)#")

	for i := uint32(0); i < 2; i++ {
		k, err := w.NewKey(ctx, 0, 0)
		require.NoError(t, err)
		requireDescribes(t, descs[0], i, k.Address)
	}
	change, err := w.NewKeyChange(ctx, 0)
	require.NoError(t, err)
	requireDescribes(t, descs[1], 0, change.Address)
}

func TestMultisigDescriptors(t *testing.T) {
	ctx := context.Background()
	deps, _ := newDeps(t)

	a := masterKey(t, 22, network.Regtest)
	b := masterKey(t, 23, network.Regtest)
	c := masterKey(t, 24, network.Regtest)
	const account = "m/48'/1'/0'/2'"

	w, err := Create(ctx, CreateOpts{
		Name:         "multi",
		SigsRequired: 2,
		Keys:         []KeyInput{{Key: a}, {Key: publicAt(t, b, account)}, {Key: publicAt(t, c, account)}},
	}, deps)
	require.NoError(t, err)

	descs, err := w.Descriptors(ctx, 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(descs[0], "wsh(sortedmulti(2,"))
	require.Contains(t, descs[0], "/48'/1'/0'/2']")

	k, err := w.GetKey(ctx, 0, 0)
	require.NoError(t, err)
	requireDescribes(t, descs[0], 0, k.Address)

	_, err = w.Descriptors(ctx, 1)
	require.ErrorIs(t, err, ErrFixedAccount)
}
