package payment_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/payment"
)

// BIP-86 first receiving key of the "abandon ... about" mnemonic
const (
	bip86InternalKey = "cc8a4bc64d897bddc5fbc2f670f7a8ba0b386779106cf1223c6fc5d7cd6fc115"
	bip86Address     = "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr"
	// same internal key committing to the leaves OP_1 and OP_2
	treeAddress = "bc1pcz72seq9cju0zhqxv32wy9w0nz3nt4w2an6q0j2kayzcrgzf5nes0whju0"
	treeRoot    = "6496f0779f38b871013be71ee7dcce8fcdcc02afc4c688acb159fc5de2fba55e"
)

func TestFromTaprootInternalKey(t *testing.T) {
	raw, _ := hex.DecodeString(bip86InternalKey)
	internalKey, err := schnorr.ParsePubKey(raw)
	require.NoError(t, err)

	p2tr, err := payment.FromTaprootInternalKey(internalKey, network.Bitcoin)
	require.NoError(t, err)
	require.True(t, bytes.Equal(raw, p2tr.Taproot.XOnlyInternalKey))

	addr, err := p2tr.TaprootAddress()
	require.NoError(t, err)
	require.Equal(t, bip86Address, addr)

	a, err := p2tr.Address()
	require.NoError(t, err)
	require.Equal(t, address.P2TR, a.ScriptType)
	require.Equal(t, bip86Address, a.String())

	fromScript, err := payment.FromScript(p2tr.LockingScript(), network.Bitcoin)
	require.NoError(t, err)
	addr, err = fromScript.TaprootAddress()
	require.NoError(t, err)
	require.Equal(t, bip86Address, addr)

	viaWitnessType, err := payment.ForWitnessType(internalKey, network.Taproot, network.Bitcoin)
	require.NoError(t, err)
	require.Equal(t, p2tr.LockingScript(), viaWitnessType.LockingScript())
}

func TestFromTaprootScriptTree(t *testing.T) {
	raw, _ := hex.DecodeString(bip86InternalKey)
	internalKey, err := schnorr.ParsePubKey(raw)
	require.NoError(t, err)

	tree := txscript.AssembleTaprootScriptTree(
		txscript.NewBaseTapLeaf([]byte{txscript.OP_1}),
		txscript.NewBaseTapLeaf([]byte{txscript.OP_2}),
	)
	rootHash := tree.RootNode.TapHash()
	require.Equal(t, treeRoot, hex.EncodeToString(rootHash[:]))

	p2tr, err := payment.FromTaprootScriptTree(internalKey, tree, network.Bitcoin)
	require.NoError(t, err)
	addr, err := p2tr.TaprootAddress()
	require.NoError(t, err)
	require.Equal(t, treeAddress, addr)

	byHash, err := payment.FromTaprootScriptTreeHash(internalKey, &rootHash, network.Bitcoin)
	require.NoError(t, err)
	require.Equal(t, p2tr.LockingScript(), byHash.LockingScript())

	tweaked, err := schnorr.ParsePubKey(p2tr.LockingScript()[2:])
	require.NoError(t, err)
	byKey, err := payment.FromTweakedKey(tweaked, network.Bitcoin)
	require.NoError(t, err)
	addr, err = byKey.TaprootAddress()
	require.NoError(t, err)
	require.Equal(t, treeAddress, addr)
}

func TestTaprootAddressWithNonTaprootPayment(t *testing.T) {
	pay := payment.Payment{
		Network: network.Regtest,
		Taproot: nil,
	}

	_, err := pay.TaprootAddress()
	require.ErrorIs(t, err, payment.ErrTaprootDataIsNil)
}
