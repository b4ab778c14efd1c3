package payment_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/payment"
)

const (
	privKeyHex1 = "1cc080a4cd371eafcad489a29664af6a7276b362fe783443ce036552482b971d"
	privKeyHex2 = "4d6718d4a02f774e752faa97e2c3b70db6b9d9ed5bd2fcecb093bd650f449a51"

	pubKeyHex1 = "036f5646ed688b9279369da0a4ad78953ae7e6d300436ca8a3264360efe38236e3"
	pubKeyHex2 = "023c61f59e9a3a3eb01c3ed0cf967ad217153944bcf2498a8fd6e70b27c7ab6ee6"
)

var privateKeyBytes1, _ = hex.DecodeString(privKeyHex1)
var privateKeyBytes2, _ = hex.DecodeString(privKeyHex2)

func publicKeys() (*btcec.PublicKey, *btcec.PublicKey) {
	_, publicKey1 := btcec.PrivKeyFromBytes(privateKeyBytes1)
	_, publicKey2 := btcec.PrivKeyFromBytes(privateKeyBytes2)
	return publicKey1, publicKey2
}

func TestLegacyAddress(t *testing.T) {
	publicKey, _ := publicKeys()

	pay := payment.FromPublicKey(publicKey, network.Bitcoin)
	addr, err := pay.PubKeyHash()
	require.NoError(t, err)
	assert.Equal(t, "1PocGsHfihxfEJu2tXfUZLcbvMRWv7Z5zB", addr)

	pay = payment.FromPublicKey(publicKey, network.Testnet)
	addr, err = pay.PubKeyHash()
	require.NoError(t, err)
	assert.Equal(t, "n4KZZvNeXjPv1RNec6drPFpvnM2Dt2SGJ8", addr)
}

func TestSegwitAddress(t *testing.T) {
	publicKey, _ := publicKeys()

	pay := payment.FromPublicKey(publicKey, nil)
	p2wpkh, err := pay.WitnessPubKeyHash()
	require.NoError(t, err)
	assert.Equal(t, "bc1qlg343tpldc4wvjxn3jdq2qs35r8j5yd5xf7r33", p2wpkh)
}

func TestScriptHash(t *testing.T) {
	publicKey, _ := publicKeys()
	p2wpkh := payment.FromPublicKey(publicKey, network.Bitcoin)
	pay, err := payment.FromPayment(p2wpkh)
	require.NoError(t, err)
	p2sh, err := pay.ScriptHash()
	require.NoError(t, err)
	assert.Equal(t, "3PvhGCrzVCECT3khDkeqbmCJ7LxSYdPrTa", p2sh)
	assert.Equal(t, "0014fa2358ac3f6e2ae648d38c9a050211a0cf2a11b4",
		hex.EncodeToString(pay.RedeemScript()))
}

func TestP2WSH(t *testing.T) {
	redeemScript := "52410479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959" +
		"f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d0" +
		"8ffb10d4b84104c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09" +
		"b95c709ee51ae168fea63dc339a3c58419466ceaeef7f632653266d0e1236431a950" +
		"cfe52a52ae"
	redeemScriptBytes, err := hex.DecodeString(redeemScript)
	require.NoError(t, err)

	p2ms, err := payment.FromScript(redeemScriptBytes, network.Bitcoin)
	require.NoError(t, err)

	p2wsh, err := payment.FromPayment(p2ms)
	require.NoError(t, err)

	p2wshAddress, err := p2wsh.WitnessScriptHash()
	require.NoError(t, err)
	assert.Equal(t,
		"bc1q2z45rh444qmeand48lq0wp3jatxs2nzh492ds9s5yscv2pplxweskskfxq",
		p2wshAddress,
	)
}

func TestFromPublicKeys(t *testing.T) {
	publicKey1, publicKey2 := publicKeys()

	p2ms, err := payment.FromPublicKeys(
		[]*btcec.PublicKey{publicKey1, publicKey2},
		1,
		network.Regtest,
		false,
	)
	require.NoError(t, err)

	assert.Equal(t, "51"+"21"+pubKeyHex1+"21"+pubKeyHex2+"52ae", hex.EncodeToString(p2ms.Script))

	p2wsh, err := payment.FromPayment(p2ms)
	require.NoError(t, err)

	p2wshAddress, err := p2wsh.WitnessScriptHash()
	require.NoError(t, err)
	assert.Equal(t,
		"bcrt1q484pt3gqgthcxa35nl4t6utpd0uf7tkm240hlxe6k4newkydwcqs9r6xuu",
		p2wshAddress,
	)

	p2sh, err := p2wsh.ScriptHash()
	require.NoError(t, err)
	assert.Equal(t, "2MzenqKMHGHCKSCevnxagFUKLqD5JgC5jDg", p2sh)

	sorted, err := payment.FromPublicKeys(
		[]*btcec.PublicKey{publicKey1, publicKey2},
		1,
		network.Regtest,
		true,
	)
	require.NoError(t, err)
	assert.Equal(t, "51"+"21"+pubKeyHex2+"21"+pubKeyHex1+"52ae", hex.EncodeToString(sorted.Script))
}

func TestFromPublicKeysInvalid(t *testing.T) {
	publicKey1, publicKey2 := publicKeys()
	keys := []*btcec.PublicKey{publicKey1, publicKey2}

	for _, m := range []int{0, 3} {
		_, err := payment.FromPublicKeys(keys, m, nil, true)
		require.ErrorIs(t, err, payment.ErrInvalidMultisig)
		require.ErrorIs(t, err, errs.ErrConfig)
	}
}

func TestForWitnessType(t *testing.T) {
	publicKey, _ := publicKeys()

	tests := []struct {
		witnessType network.WitnessType
		address     string
		scriptType  string
	}{
		{network.Legacy, "1PocGsHfihxfEJu2tXfUZLcbvMRWv7Z5zB", address.P2PKH},
		{network.P2SHSegwit, "3PvhGCrzVCECT3khDkeqbmCJ7LxSYdPrTa", address.P2SH},
		{network.Segwit, "bc1qlg343tpldc4wvjxn3jdq2qs35r8j5yd5xf7r33", address.P2WPKH},
	}

	for _, tt := range tests {
		t.Run(string(tt.witnessType), func(t *testing.T) {
			pay, err := payment.ForWitnessType(publicKey, tt.witnessType, network.Bitcoin)
			require.NoError(t, err)
			assert.Equal(t, tt.scriptType, pay.ScriptType)

			addr, err := pay.Address()
			require.NoError(t, err)
			assert.Equal(t, tt.address, addr.String())
			assert.Equal(t, addr.Script(), pay.LockingScript())
		})
	}

	_, err := payment.ForWitnessType(publicKey, network.Segwit, network.Dogecoin)
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestMultisigForWitnessType(t *testing.T) {
	publicKey1, publicKey2 := publicKeys()
	keys := []*btcec.PublicKey{publicKey1, publicKey2}
	multisig := "52" + "21" + pubKeyHex2 + "21" + pubKeyHex1 + "52ae"

	tests := []struct {
		witnessType   network.WitnessType
		address       string
		redeem        string
		witnessRedeem string
	}{
		{network.Legacy, "33XboRv1vesh9dqhMXHpsF3DQmDKtTrFsJ", multisig, ""},
		{network.Segwit, "bc1qa2mtzedwm45w7de3ycy3ugejzasaltffq45t58rx3kca0fnm48pqrrkajq", "", multisig},
		{
			network.P2SHSegwit,
			"3PFRG8YWftp1p2ceUidyQ8UFAGZWqP15iG",
			"0020eab6b165aedd68ef373126091e23321761dfad290568ba1c668db1d7a67ba9c2",
			multisig,
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.witnessType), func(t *testing.T) {
			pay, err := payment.MultisigForWitnessType(keys, 2, tt.witnessType, network.Bitcoin, true)
			require.NoError(t, err)

			addr, err := pay.Address()
			require.NoError(t, err)
			assert.Equal(t, tt.address, addr.String())
			assert.Equal(t, tt.witnessRedeem, hex.EncodeToString(pay.WitnessRedeemScript()))
			assert.Equal(t, tt.redeem, hex.EncodeToString(pay.RedeemScript()))
		})
	}
}
