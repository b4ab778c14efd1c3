package transaction

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/script"
)

type signFixtures struct {
	PrivateKeys  []string `json:"privateKeys"`
	PrevTxid     string   `json:"prevTxid"`
	PrevIndex    uint32   `json:"prevIndex"`
	Value        uint64   `json:"value"`
	OutputScript string   `json:"outputScript"`
	OutputValue  uint64   `json:"outputValue"`
	Vectors      []struct {
		Type          InputType `json:"type"`
		ExpectedHex   string    `json:"expectedHex"`
		LockingScript string    `json:"lockingScript"`
		Txid          string    `json:"txid"`
	} `json:"vectors"`
}

func loadSignFixtures(t *testing.T) (signFixtures, []*keys.Key) {
	file, err := ioutil.ReadFile("data/tx_sign.json")
	require.NoError(t, err)
	var fixtures signFixtures
	require.NoError(t, json.Unmarshal(file, &fixtures))

	privs := make([]*keys.Key, 0, len(fixtures.PrivateKeys))
	for _, k := range fixtures.PrivateKeys {
		key, err := keys.NewKeyFromHex(k, true, network.Bitcoin)
		require.NoError(t, err)
		privs = append(privs, key)
	}
	return fixtures, privs
}

// newSpendingTx returns an unsigned transaction spending the fixture
// output with an input of type typ. Single key inputs are resolved from
// the locking script, multisig ones from their keys.
func newSpendingTx(
	t *testing.T, f signFixtures, typ InputType, locking string, privs []*keys.Key,
) *Transaction {
	tx := NewTx(DefaultVersion)
	in, err := NewTxInputFromTxID(f.PrevTxid, f.PrevIndex)
	require.NoError(t, err)
	in.Value = f.Value
	if typ.IsMultisig() {
		in.Type = typ
		in.SigsRequired = 2
		for _, k := range privs {
			in.Keys = append(in.Keys, k.Public())
		}
	} else {
		in.LockingScript, _ = hex.DecodeString(locking)
	}
	tx.AddInput(in)

	out, _ := hex.DecodeString(f.OutputScript)
	tx.AddOutput(NewTxOutput(f.OutputValue, out))
	return tx
}

func TestSign(t *testing.T) {
	f, privs := loadSignFixtures(t)

	for _, v := range f.Vectors {
		t.Run(string(v.Type), func(t *testing.T) {
			tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)

			signers := []*keys.Key{privs[2], privs[0]}
			if v.Type.IsMultisig() {
				signers = []*keys.Key{privs[0], privs[1]}
			}
			require.NoError(t, tx.Sign(signers, txscript.SigHashAll))

			txHex, err := tx.ToHex()
			require.NoError(t, err)
			require.Equal(t, v.ExpectedHex, txHex)
			require.Equal(t, v.Txid, tx.TxID())
			require.Equal(t, v.Type, tx.Inputs[0].Type)
			require.Equal(t, v.LockingScript, hex.EncodeToString(tx.Inputs[0].lockingScript()))

			require.NoError(t, tx.Verify())
			require.True(t, tx.Verified)
			require.True(t, tx.Inputs[0].Valid)
		})
	}
}

func TestSignPartialMultisig(t *testing.T) {
	f, privs := loadSignFixtures(t)

	for _, v := range f.Vectors {
		if !v.Type.IsMultisig() {
			continue
		}
		t.Run(string(v.Type), func(t *testing.T) {
			tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)

			added, err := tx.SignInput(0, []*keys.Key{privs[0]}, txscript.SigHashAll)
			require.NoError(t, err)
			require.Equal(t, 1, added)
			require.Error(t, tx.Verify())
			require.False(t, tx.Verified)

			// signing twice with the same key adds nothing
			added, err = tx.SignInput(0, []*keys.Key{privs[0]}, txscript.SigHashAll)
			require.NoError(t, err)
			require.Zero(t, added)

			added, err = tx.SignInput(0, []*keys.Key{privs[1]}, txscript.SigHashAll)
			require.NoError(t, err)
			require.Equal(t, 1, added)

			txHex, err := tx.ToHex()
			require.NoError(t, err)
			require.Equal(t, v.ExpectedHex, txHex)
			require.NoError(t, tx.Verify())
		})
	}
}

func TestAddSignature(t *testing.T) {
	f, privs := loadSignFixtures(t)

	for _, v := range f.Vectors {
		if !v.Type.IsMultisig() {
			continue
		}
		t.Run(string(v.Type), func(t *testing.T) {
			tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)
			cosigner := tx.Copy()

			_, err := tx.SignInput(0, []*keys.Key{privs[1]}, txscript.SigHashAll)
			require.NoError(t, err)
			_, err = cosigner.SignInput(0, []*keys.Key{privs[0]}, txscript.SigHashAll)
			require.NoError(t, err)

			require.NoError(t, tx.AddSignature(0, cosigner.Inputs[0].Signatures[0]))
			txHex, err := tx.ToHex()
			require.NoError(t, err)
			require.Equal(t, v.ExpectedHex, txHex)

			err = tx.AddSignature(0, Signature{PubKey: privs[0].PublicUncompressed()})
			require.ErrorIs(t, err, errs.ErrInvalidKey)
		})
	}
}

func TestSignErrors(t *testing.T) {
	f, privs := loadSignFixtures(t)

	t.Run("unknown input", func(t *testing.T) {
		tx := newSpendingTx(t, f, InputP2PKH, "", privs)
		err := tx.Sign(privs, txscript.SigHashAll)
		require.ErrorIs(t, err, ErrUnknownInputType)
	})

	t.Run("taproot", func(t *testing.T) {
		tx := newSpendingTx(t, f, InputP2TR,
			"51200f0c8db753acbd17343a39c2f3f4e35e4be6da749f9e35137ab220e7b238a667", privs)
		err := tx.Sign(privs, txscript.SigHashAll)
		require.ErrorIs(t, err, ErrTaprootSigning)
		require.Error(t, tx.Verify())
	})

	t.Run("index", func(t *testing.T) {
		tx := newSpendingTx(t, f, InputP2PKH, f.Vectors[0].LockingScript, privs)
		_, err := tx.SignInput(1, privs, txscript.SigHashAll)
		require.ErrorIs(t, err, ErrInputIndex)
	})

	t.Run("foreign key", func(t *testing.T) {
		tx := newSpendingTx(t, f, InputP2PKH, f.Vectors[0].LockingScript, privs)
		added, err := tx.SignInput(0, privs[1:], txscript.SigHashAll)
		require.NoError(t, err)
		require.Zero(t, added)
		require.Empty(t, tx.Inputs[0].Script)
	})
}

func TestVerifyTampered(t *testing.T) {
	f, privs := loadSignFixtures(t)

	for _, v := range f.Vectors {
		t.Run(string(v.Type), func(t *testing.T) {
			tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)
			require.NoError(t, tx.Sign(privs, txscript.SigHashAll))
			require.NoError(t, tx.Verify())

			tx.Outputs[0].Value--
			err := tx.Verify()
			require.ErrorIs(t, err, errs.ErrInvalidScript)
			require.False(t, tx.Verified)
			require.False(t, tx.Inputs[0].Valid)
		})
	}
}

func TestVerifyScriptSigShape(t *testing.T) {
	f, privs := loadSignFixtures(t)

	tests := []struct {
		typ     InputType
		prefix  []byte
		wantErr error
	}{
		{InputP2PKH, []byte{script.OP_1}, ErrCleanStack},
		{InputP2PKH, script.PushData([]byte{0xab, 0xcd}), ErrCleanStack},
		{InputP2SHMultisig, []byte{script.OP_1}, ErrCleanStack},
		{InputP2SHMultisig, []byte{script.OP_1, script.OP_DROP}, ErrScriptSigNotPushOnly},
		{InputP2SHMultisig, []byte{script.OP_NOP}, ErrScriptSigNotPushOnly},
	}
	for _, tt := range tests {
		for _, v := range f.Vectors {
			if v.Type != tt.typ {
				continue
			}
			t.Run(string(v.Type), func(t *testing.T) {
				tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)
				require.NoError(t, tx.Sign(privs, txscript.SigHashAll))
				require.NoError(t, tx.Verify())

				in := tx.Inputs[0]
				in.Script = append(append([]byte{}, tt.prefix...), in.Script...)
				err := tx.Verify()
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, errs.ErrInvalidScript)
				require.False(t, tx.Verified)
				require.False(t, in.Valid)
			})
		}
	}
}

func TestPsbtRoundTrip(t *testing.T) {
	f, privs := loadSignFixtures(t)

	for _, v := range f.Vectors {
		if v.Type != InputP2WSH && v.Type != InputP2WPKH {
			continue
		}
		t.Run(string(v.Type), func(t *testing.T) {
			tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)
			_, err := tx.SignInput(0, []*keys.Key{privs[0]}, txscript.SigHashAll)
			require.NoError(t, err)

			b64, err := tx.ToBase64()
			require.NoError(t, err)

			imported, err := NewTxFromBase64(b64, network.Bitcoin)
			require.NoError(t, err)
			require.Equal(t, f.Value, imported.Inputs[0].Value)
			require.Equal(t, v.Type, imported.Inputs[0].Type)
			require.Len(t, imported.Inputs[0].Signatures, 1)

			if v.Type.IsMultisig() {
				_, err = imported.SignInput(0, []*keys.Key{privs[1]}, txscript.SigHashAll)
				require.NoError(t, err)
			}
			txHex, err := imported.ToHex()
			require.NoError(t, err)
			require.Equal(t, v.ExpectedHex, txHex)
			require.NoError(t, imported.Verify())

			// verified inputs are exported finalized
			b64, err = imported.ToBase64()
			require.NoError(t, err)
			final, err := NewTxFromBase64(b64, network.Bitcoin)
			require.NoError(t, err)
			finalHex, err := final.ToHex()
			require.NoError(t, err)
			require.Equal(t, v.ExpectedHex, finalHex)
		})
	}
}

func TestEstimateSize(t *testing.T) {
	f, privs := loadSignFixtures(t)

	for _, v := range f.Vectors {
		t.Run(string(v.Type), func(t *testing.T) {
			tx := newSpendingTx(t, f, v.Type, v.LockingScript, privs)
			estimated := tx.EstimateSize(0)

			require.NoError(t, tx.Sign(privs, txscript.SigHashAll))
			actual := tx.VirtualSize()
			require.GreaterOrEqual(t, estimated, actual)
			require.LessOrEqual(t, estimated, actual+10)

			require.Greater(t, tx.EstimateSize(1), estimated)
			require.Greater(t, tx.EstimateFee(5000, 0), uint64(0))
		})
	}
}

func TestBumpFee(t *testing.T) {
	f, privs := loadSignFixtures(t)
	tx := newSpendingTx(t, f, InputP2WPKH, f.Vectors[1].LockingScript, privs)
	tx.Outputs[0].Value = 50000
	change := NewTxOutput(40000, tx.Outputs[0].Script)
	change.Change = true
	tx.AddOutput(change)
	require.NoError(t, tx.Sign(privs, txscript.SigHashAll))

	_, err := tx.BumpFee(5000)
	require.ErrorIs(t, err, ErrFeeNotIncreased)

	_, err = tx.BumpFee(0)
	require.ErrorIs(t, err, ErrNoChange)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	bumped, err := tx.BumpFee(20000)
	require.NoError(t, err)
	require.Equal(t, uint64(30000), bumped.Outputs[1].Value)
	require.Equal(t, uint64(20000), bumped.Fee)
	require.Empty(t, bumped.Inputs[0].Witness)
	require.Equal(t, uint64(40000), tx.Outputs[1].Value)
	require.NotEmpty(t, tx.Inputs[0].Witness)

	require.NoError(t, bumped.Sign(privs, txscript.SigHashAll))
	require.NoError(t, bumped.Verify())
}

func TestCheckStandard(t *testing.T) {
	f, privs := loadSignFixtures(t)
	tx := newSpendingTx(t, f, InputP2WPKH, f.Vectors[1].LockingScript, privs)

	tx.FeePerKB = network.Bitcoin.FeeDefault
	require.NoError(t, tx.CheckStandard())

	tx.FeePerKB = network.Bitcoin.FeeMax + 1
	require.ErrorIs(t, tx.CheckStandard(), ErrFeeOutOfBounds)

	tx.FeePerKB = network.Bitcoin.FeeMin - 1
	require.ErrorIs(t, tx.CheckStandard(), ErrFeeOutOfBounds)
}

func TestShuffle(t *testing.T) {
	tx := NewTx(DefaultVersion)
	for i := 1; i <= 5; i++ {
		tx.AddOutput(NewTxOutput(uint64(i*1000), []byte{byte(i)}))
	}

	seed := bytes.Repeat([]byte{0x5a, 0x13, 0xc7, 0x02}, 16)
	require.NoError(t, tx.Shuffle(bytes.NewReader(seed)))

	var total uint64
	seen := map[byte]bool{}
	for _, out := range tx.Outputs {
		total += out.Value
		seen[out.Script[0]] = true
	}
	require.Equal(t, uint64(15000), total)
	require.Len(t, seen, 5)

	require.Error(t, tx.Shuffle(bytes.NewReader(nil)))
}
