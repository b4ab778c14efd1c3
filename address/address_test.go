package address_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
	"pgregory.net/rapid"
)

const (
	base58address = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
	base58hexdata = "751e76e8199196d454941c45d1b3a323f1433bd6"
	bech32address = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	p2shAddress   = "3CK4fEwbMP7heJarmU4eqA3sMbVJyEnU3V"
	p2shHash      = "748284390f9e263a4b766a75d0633c50426eb875"
	p2wshAddress  = "bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3"
	p2wshProgram  = "1863143c14c5166804bd19203356da136c985678cd4d27a1b8c6329604903262"
	p2trAddress   = "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr"
	p2trProgram   = "a60869f0dbcf1dc659c9cecbaf8050135ea9e8cdc487053f1dc6880949dc684c"
)

func TestFromBase58(t *testing.T) {
	base58, err := address.FromBase58(base58address)
	if err != nil {
		t.Fatal(err)
	}
	if base58.Version != 0 {
		t.Errorf("TestFromBase58: wrong version")
	}
	if hex.EncodeToString(base58.Data) != base58hexdata {
		t.Errorf("TestFromBase58: data mismatch")
	}
}

func TestToBase58(t *testing.T) {
	data, _ := hex.DecodeString(base58hexdata)
	addr := address.ToBase58(&address.Base58{Version: 0, Data: data})
	if addr != base58address {
		t.Errorf("TestToBase58: base58 encoding error")
	}
}

func TestBech32(t *testing.T) {
	bech32, err := address.FromBech32(bech32address)
	if err != nil {
		t.Fatal(err)
	}
	if bech32.Prefix != "bc" {
		t.Errorf("TestFromBech32: wrong prefix")
	}
	if bech32.Version != 0 {
		t.Errorf("TestFromBech32: wrong version")
	}
	bc32, err := address.ToBech32(&address.Bech32{Prefix: bech32.Prefix, Version: bech32.Version, Data: bech32.Data})
	if err != nil {
		t.Fatal(err)
	}
	if bc32 != bech32address {
		t.Errorf("TestToBech32: wrong address")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		addr       string
		hint       *network.Network
		net        *network.Network
		scriptType string
		encoding   address.Encoding
		hash       string
		script     string
	}{
		{base58address, nil, network.Bitcoin, address.P2PKH, address.Base58Encoding, base58hexdata,
			"76a914" + base58hexdata + "88ac"},
		{p2shAddress, nil, network.Bitcoin, address.P2SH, address.Base58Encoding, p2shHash,
			"a914" + p2shHash + "87"},
		{bech32address, nil, network.Bitcoin, address.P2WPKH, address.Bech32Encoding, base58hexdata,
			"0014" + base58hexdata},
		{p2wshAddress, nil, network.Bitcoin, address.P2WSH, address.Bech32Encoding, p2wshProgram,
			"0020" + p2wshProgram},
		{p2trAddress, nil, network.Bitcoin, address.P2TR, address.Bech32mEncoding, p2trProgram,
			"5120" + p2trProgram},
		{"mrCDrCybB6J1vRfbwM5hemdJz73FwDBC8r", nil, network.Testnet, address.P2PKH, address.Base58Encoding,
			base58hexdata, ""},
		{"2N3sGiyscxqd3r6DQSbgXT738ZwhUpBqkej", network.Regtest, network.Regtest, address.P2SH,
			address.Base58Encoding, p2shHash, ""},
		{"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", nil, network.Testnet, address.P2WPKH,
			address.Bech32Encoding, base58hexdata, ""},
		{"bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", nil, network.Regtest, address.P2WPKH,
			address.Bech32Encoding, base58hexdata, ""},
		{"ltc1qw508d6qejxtdg4y5r3zarvary0c5xw7kgmn4n9", nil, network.Litecoin, address.P2WPKH,
			address.Bech32Encoding, base58hexdata, ""},
		{"LVuDpNCSSj6pQ7t9Pv6d6sUkLKoqDEVUnJ", nil, network.Litecoin, address.P2PKH,
			address.Base58Encoding, base58hexdata, ""},
		{"MJXCy8MZJVy8SorksM3zeoJGgJ5m2itsWw", nil, network.Litecoin, address.P2SH,
			address.Base58Encoding, p2shHash, ""},
		{"DFpN6QqFfUm3gKNaxN6tNcab1FArL9cZLE", nil, network.Dogecoin, address.P2PKH,
			address.Base58Encoding, base58hexdata, ""},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			a, err := address.Parse(tt.addr, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.net, a.Network)
			assert.Equal(t, tt.scriptType, a.ScriptType)
			assert.Equal(t, tt.encoding, a.Encoding)
			assert.Equal(t, tt.hash, hex.EncodeToString(a.Hash))
			assert.Equal(t, tt.addr, a.String())
			if tt.script != "" {
				assert.Equal(t, tt.script, hex.EncodeToString(a.Script()))
			}

			fromScript, err := address.FromScript(a.Script(), a.Network)
			require.NoError(t, err)
			assert.True(t, a.Equal(fromScript))
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := address.Parse("1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMJ", nil)
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = address.Parse(bech32address, network.Testnet)
	require.ErrorIs(t, err, errs.ErrConfig)

	_, err = address.Parse("not an address!", nil)
	require.ErrorIs(t, err, address.ErrUnknownFormat)

	// v0 program with a bech32m checksum
	_, err = address.Parse("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kemeawh", nil)
	require.Error(t, err)

	_, err = address.FromHash(make([]byte, 20), address.P2WPKH, network.Dogecoin)
	require.ErrorIs(t, err, errs.ErrConfig)

	_, err = address.FromHash(make([]byte, 19), address.P2PKH, network.Bitcoin)
	require.ErrorIs(t, err, address.ErrInvalidHashLength)
}

func TestAddressRoundTrip(t *testing.T) {
	types := []string{address.P2PKH, address.P2SH, address.P2WPKH, address.P2WSH, address.P2TR}
	nets := []*network.Network{network.Bitcoin, network.Testnet, network.Regtest, network.Litecoin}

	rapid.Check(t, func(t *rapid.T) {
		scriptType := rapid.SampledFrom(types).Draw(t, "type")
		net := rapid.SampledFrom(nets).Draw(t, "net")
		size := 20
		if scriptType == address.P2WSH || scriptType == address.P2TR {
			size = 32
		}
		hash := rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, "hash")

		a, err := address.FromHash(hash, scriptType, net)
		if err != nil {
			t.Fatal(err)
		}
		back, err := address.Parse(a.String(), net)
		if err != nil {
			t.Fatal(err)
		}
		if !a.Equal(back) || a.Encoding != back.Encoding {
			t.Fatalf("round trip mismatch for %s", a.String())
		}
	})
}

func TestParseWithHint(t *testing.T) {
	a, err := address.Parse(p2shAddress, network.Litecoin)
	require.NoError(t, err)
	require.Equal(t, network.Litecoin, a.Network)
	require.Equal(t, address.P2SH, a.ScriptType)
	// litecoin re-encodes with its own P2SH magic
	require.Equal(t, "MJXCy8MZJVy8SorksM3zeoJGgJ5m2itsWw", a.String())

	a, err = address.Parse("2N3sGiyscxqd3r6DQSbgXT738ZwhUpBqkej", nil)
	require.NoError(t, err)
	require.Equal(t, network.Testnet, a.Network)
	require.True(t, a.Network.IsScriptHash(0xc4))
	require.False(t, a.IsSegwit())
}
