package keys_test

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip32"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"pgregory.net/rapid"
)

const (
	vector1Seed   = "000102030405060708090a0b0c0d0e0f"
	vector1Xprv   = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	vector1Xpub   = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	abandonPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

func masterFromVector1(t *testing.T) *keys.HDKey {
	seed, _ := hex.DecodeString(vector1Seed)
	master, err := keys.NewMasterKey(seed, network.Bitcoin, network.Legacy, false)
	require.NoError(t, err)
	return master
}

func TestMasterKey(t *testing.T) {
	master := masterFromVector1(t)

	require.Equal(t, vector1Xprv, master.String())
	xpub, err := master.ExtendedPublic()
	require.NoError(t, err)
	require.Equal(t, vector1Xpub, xpub)
	require.Equal(t, uint8(0), master.Depth)
	require.Equal(t, "3442193e", hex.EncodeToString(fp(master.Fingerprint())))
	require.Equal(t, keys.BIP32, master.KeyType)
}

func fp(b [4]byte) []byte {
	return b[:]
}

func TestDerive(t *testing.T) {
	master := masterFromVector1(t)

	tests := []struct {
		path string
		xprv string
		xpub string
	}{
		{"m/0'/1",
			"xprv9wTYmMFdV23N2TdNG573QoEsfRrWKQgWeibmLntzniatZvR9BmLnvSxqu53Kw1UmYPxLgboyZQaXwTCg8MSY3H2EU4pWcQDnRnrVA1xe8fs",
			"xpub6ASuArnXKPbfEwhqN6e3mwBcDTgzisQN1wXN9BJcM47sSikHjJf3UFHKkNAWbWMiGj7Wf5uMash7SyYq527Hqck2AxYysAA7xmALppuCkwQ"},
		{"m/0h/1", "xprv9wTYmMFdV23N2TdNG573QoEsfRrWKQgWeibmLntzniatZvR9BmLnvSxqu53Kw1UmYPxLgboyZQaXwTCg8MSY3H2EU4pWcQDnRnrVA1xe8fs", ""},
		{"0p/1", "xprv9wTYmMFdV23N2TdNG573QoEsfRrWKQgWeibmLntzniatZvR9BmLnvSxqu53Kw1UmYPxLgboyZQaXwTCg8MSY3H2EU4pWcQDnRnrVA1xe8fs", ""},
		{"m/0H/1/2H/2/1000000000",
			"xprvA41z7zogVVwxVSgdKUHDy1SKmdb533PjDz7J6N6mV6uS3ze1ai8FHa8kmHScGpWmj4WggLyQjgPie1rFSruoUihUZREPSL39UNdE3BBDu76",
			"xpub6H1LXWLaKsWFhvm6RVpEL9P4KfRZSW7abD2ttkWP3SSQvnyA8FSVqNTEcYFgJS2UaFcxupHiYkro49S8yGasTvXEYBVPamhGW6cFJodrTHy"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			key, err := master.Derive(tt.path)
			require.NoError(t, err)
			if tt.xprv != "" {
				xprv, err := key.ExtendedPrivate()
				require.NoError(t, err)
				assert.Equal(t, tt.xprv, xprv)
			}
			if tt.xpub != "" {
				xpub, err := key.ExtendedPublic()
				require.NoError(t, err)
				assert.Equal(t, tt.xpub, xpub)
			}
		})
	}

	child, err := master.Derive("m/0'/1")
	require.NoError(t, err)
	require.Equal(t, uint8(2), child.Depth)
	require.Equal(t, uint32(1), child.ChildIndex)
	require.False(t, child.IsHardened())
	require.Equal(t, "5c1bd648", hex.EncodeToString(child.ParentFP[:]))
}

func TestPublicDerivation(t *testing.T) {
	master := masterFromVector1(t)
	account, err := master.Derive("m/0'")
	require.NoError(t, err)

	private, err := account.Child(1)
	require.NoError(t, err)
	public, err := account.ChildPublic(1)
	require.NoError(t, err)
	require.False(t, public.IsPrivate())
	require.True(t, private.Neuter().Equal(public))

	xpub, err := account.ExtendedPublic()
	require.NoError(t, err)
	neutered, err := keys.NewHDKeyFromString(xpub, nil)
	require.NoError(t, err)
	fromPub, err := neutered.Derive("M/1")
	require.NoError(t, err)
	require.True(t, fromPub.Equal(public))

	_, err = neutered.Child(keys.HardenedKeyStart)
	require.ErrorIs(t, err, keys.ErrDeriveHardFromPublic)
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = master.Derive("M/0'")
	require.ErrorIs(t, err, keys.ErrDeriveHardFromPublic)
}

func TestHDKeyFromString(t *testing.T) {
	tests := []struct {
		name        string
		xkey        string
		hint        *network.Network
		net         *network.Network
		witnessType network.WitnessType
		multisig    bool
		private     bool
	}{
		{"xprv", vector1Xprv, nil, network.Bitcoin, network.Legacy, false, true},
		{"xpub", vector1Xpub, nil, network.Bitcoin, network.Legacy, false, false},
		{"tprv",
			"tprv8ZgxMBicQKsPeDgjzdC36fs6bMjGApWDNLR9erAXMs5skhMv36j9MV5ecvfavji5khqjWaWSFhN3YcCUUdiKH6isR4Pwy3U5y5egddBr16m",
			nil, network.Testnet, network.Legacy, false, true},
		{"tpub regtest",
			"tpubD6NzVbkrYhZ4XgiXtGrdW5XDAPFCL9h7we1vwNCpn8tGbBcgfVYjXyhWo4E1xkh56hjod1RhGjxbaTLV3X4FyWuejifB9jusQ46QzG87VKp",
			network.Regtest, network.Regtest, network.Legacy, false, false},
		{"Zpub",
			"Zpub6vZyhw1ShkEwP45J3TumYQietzUhSMreYW7k4sCza1iYaH9LrzR3inCtQ91szWGaMYWVNy74YBE9n1gmPHBzq2wEFGR83SMcFGuAbGkfiwg",
			nil, network.Bitcoin, network.Segwit, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := keys.NewHDKeyFromString(tt.xkey, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.net, key.Network)
			assert.Equal(t, tt.witnessType, key.WitnessType)
			assert.Equal(t, tt.multisig, key.Multisig)
			assert.Equal(t, tt.private, key.IsPrivate())
			assert.Equal(t, tt.xkey, key.String())
		})
	}

	_, err := keys.NewHDKeyFromString(vector1Xprv[:110]+"j", nil)
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = keys.NewHDKeyFromString(vector1Xprv, network.Dogecoin)
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestMnemonicAccounts(t *testing.T) {
	tests := []struct {
		witnessType network.WitnessType
		purpose     uint32
		accountXpub string
		address     string
	}{
		{network.Legacy, 44,
			"xpub6BosfCnifzxcFwrSzQiqu2DBVTshkCXacvNsWGYJVVhhawA7d4R5WSWGFNbi8Aw6ZRc1brxMyWMzG3DSSSSoekkudhUd9yLb6qx39T9nMdj",
			"1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"},
		{network.P2SHSegwit, 49,
			"ypub6Ww3ibxVfGzLrAH1PNcjyAWenMTbbAosGNB6VvmSEgytSER9azLDWCxoJwW7Ke7icmizBMXrzBx9979FfaHxHcrArf3zbeJJJUZPf663zsP",
			"37VucYSaXLCAsxYyAPfbSi9eh4iEcbShgf"},
		{network.Segwit, 84,
			"zpub6rFR7y4Q2AijBEqTUquhVz398htDFrtymD9xYYfG1m4wAcvPhXNfE3EfH1r1ADqtfSdVCToUG868RvUUkgDKf31mGDtKsAYz2oz2AGutZYs",
			"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"},
	}

	for _, tt := range tests {
		t.Run(string(tt.witnessType), func(t *testing.T) {
			master, err := keys.NewHDKeyFromMnemonic(abandonPhrase, "", network.Bitcoin, tt.witnessType, false)
			require.NoError(t, err)
			require.Equal(t, "73c5da0a", hex.EncodeToString(fp(master.Fingerprint())))

			account, err := master.Derive(fmt.Sprintf("m/%d'/0'/0'", tt.purpose))
			require.NoError(t, err)
			xpub, err := account.ExtendedPublic()
			require.NoError(t, err)
			assert.Equal(t, tt.accountXpub, xpub)

			first, err := account.Derive("0/0")
			require.NoError(t, err)
			addr, err := first.Address()
			require.NoError(t, err)
			assert.Equal(t, tt.address, addr.String())
		})
	}

	master, err := keys.NewHDKeyFromMnemonic(abandonPhrase, "", network.Bitcoin, network.Segwit, false)
	require.NoError(t, err)
	require.Equal(t,
		"zprvAWgYBBk7JR8Gjrh4UJQ2uJdG1r3WNRRfURiABBE3RvMXYSrRJL62XuezvGdPvG6GFBZduosCc1YP5wixPox7zhZLfiUm8aunE96BBa4Kei5",
		master.String())

	taproot, err := master.Derive("m/86'/0'/0'/0/0")
	require.NoError(t, err)
	taproot.WitnessType = network.Taproot
	addr, err := taproot.Address()
	require.NoError(t, err)
	require.Equal(t, "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr", addr.String())

	_, err = keys.NewHDKeyFromMnemonic("abandon abandon about", "", network.Bitcoin, network.Legacy, false)
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}

func TestSingleKey(t *testing.T) {
	key, err := keys.NewKeyFromHex(privKeyHex, true, nil)
	require.NoError(t, err)
	single := keys.NewHDKeyFromKey(key, network.Segwit)
	require.Equal(t, keys.Single, single.KeyType)

	addr, err := single.Address()
	require.NoError(t, err)
	require.Equal(t, "bc1qlg343tpldc4wvjxn3jdq2qs35r8j5yd5xf7r33", addr.String())

	_, err = single.Child(0)
	require.ErrorIs(t, err, keys.ErrSingleKey)
}

func TestDeriveNextValid(t *testing.T) {
	master := masterFromVector1(t)
	path, err := keys.ParseDerivationPath("m/44'/0'/0'/0/5")
	require.NoError(t, err)

	key, used, err := master.DeriveNextValid(path)
	require.NoError(t, err)
	require.Equal(t, path, used)

	direct, err := master.DerivePath(path)
	require.NoError(t, err)
	require.True(t, key.Equal(direct))
}

func TestCrossCheckBIP32(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 16, 64).Draw(t, "seed")
		indexes := rapid.SliceOfN(rapid.Uint32(), 1, 4).Draw(t, "path")

		ours, err := keys.NewMasterKey(seed, network.Bitcoin, network.Legacy, false)
		if err != nil {
			t.Skip("unusable seed")
		}
		theirs, err := bip32.NewMasterKey(seed)
		if err != nil {
			t.Fatal(err)
		}

		for _, i := range indexes {
			ours, err = ours.Child(i)
			if err != nil {
				t.Skip("invalid child")
			}
			theirs, err = theirs.NewChildKey(i)
			if err != nil {
				t.Fatal(err)
			}
		}
		if ours.String() != theirs.String() {
			t.Fatalf("mismatch: %s != %s", ours.String(), theirs.String())
		}
	})
}
