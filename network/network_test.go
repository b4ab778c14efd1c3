package network_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/network"
)

func TestByName(t *testing.T) {
	n, err := network.ByName("bitcoin")
	require.NoError(t, err)
	assert.Equal(t, network.Bitcoin, n)
	assert.Equal(t, "bc", n.Bech32)

	_, err = network.ByName("florincoin")
	require.Error(t, err)

	assert.Contains(t, network.Names(), "litecoin_testnet")
}

func TestReverseLookups(t *testing.T) {
	wif := network.ByWifPrefix(0xef)
	names := make([]string, 0, len(wif))
	for _, n := range wif {
		names = append(names, n.Name)
	}
	assert.ElementsMatch(t,
		[]string{"litecoin_testnet", "regtest", "signet", "testnet"}, names)

	assert.Equal(t, []*network.Network{network.Bitcoin}, network.ByWifPrefix(0x80))

	p2sh := network.ByAddressPrefix(0x05)
	assert.Contains(t, p2sh, network.Bitcoin)
	assert.Contains(t, p2sh, network.Litecoin)

	assert.ElementsMatch(t,
		[]*network.Network{network.Testnet, network.Signet},
		network.ByBech32Prefix("tb"),
	)
	assert.Empty(t, network.ByBech32Prefix(""))
}

func TestHDVersionSearch(t *testing.T) {
	matches := network.HDVersionSearch([4]byte{0x04, 0xb2, 0x47, 0x46})
	var found bool
	for _, m := range matches {
		if m.Network == network.Bitcoin {
			found = true
			assert.Equal(t, network.Segwit, m.WitnessType)
			assert.False(t, m.Multisig)
			assert.False(t, m.IsPrivate)
		}
	}
	assert.True(t, found)

	matches = network.HDVersionSearch([4]byte{0x02, 0xaa, 0x7a, 0x99})
	require.NotEmpty(t, matches)
	assert.Equal(t, network.Bitcoin, matches[0].Network)
	assert.True(t, matches[0].Multisig)
	assert.True(t, matches[0].IsPrivate)

	assert.Empty(t, network.HDVersionSearch([4]byte{1, 2, 3, 4}))
}

func TestHDVersion(t *testing.T) {
	v, err := network.Bitcoin.HDVersion(network.P2SHSegwit, true)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x02, 0x95, 0xb4, 0x3f}, v.Public)

	v, err = network.Bitcoin.HDVersion(network.Taproot, false)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x04, 0xb2, 0x43, 0x0c}, v.Private)

	_, err = network.Dogecoin.HDVersion(network.Segwit, false)
	require.Error(t, err)
	assert.False(t, network.Dogecoin.SupportsWitnessType(network.Segwit))
}

func TestPick(t *testing.T) {
	candidates := []*network.Network{network.Testnet, network.Regtest}

	n, err := network.Pick(candidates, network.Regtest, network.Testnet)
	require.NoError(t, err)
	assert.Equal(t, network.Regtest, n)

	n, err = network.Pick(candidates, nil, network.Testnet)
	require.NoError(t, err)
	assert.Equal(t, network.Testnet, n)

	n, err = network.Pick(candidates, nil, network.Bitcoin)
	require.NoError(t, err)
	assert.Equal(t, network.Testnet, n)

	_, err = network.Pick(candidates, network.Bitcoin, nil)
	require.Error(t, err)

	_, err = network.Pick(nil, nil, nil)
	require.Error(t, err)
}
