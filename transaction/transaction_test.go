package transaction

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"reflect"
	"testing"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/network"
	"pgregory.net/rapid"
)

func TestRoundTrip(t *testing.T) {
	file, err := ioutil.ReadFile("data/tx_valid.json")
	if err != nil {
		t.Fatal(err)
	}
	var tests map[string]interface{}
	json.Unmarshal(file, &tests)

	for _, str := range tests["txRoundTrip"].([]interface{}) {
		tx, err := NewTxFromHex(str.(string))
		if err != nil {
			t.Fatal(err)
		}
		res, err := tx.ToHex()
		if err != nil {
			t.Fatal(err)
		}
		if res != str {
			t.Fatalf("Got: %s, expected: %s", res, str)
		}
	}
}

func TestAddInput(t *testing.T) {
	hashStr := "ffffffff00ffff000000000000000000000000000000000000000000101010ff"
	index := uint32(0)

	tx := &Transaction{}
	hash, _ := hex.DecodeString(hashStr)
	txIn := NewTxInput(hash, index)
	tx.AddInput(txIn)

	input := tx.Inputs[0]
	if !reflect.DeepEqual(input.Hash[:], hash) {
		t.Fatalf("Got %x, expected %s", input.Hash, hashStr)
	}
	if input.Index != 0 {
		t.Fatalf("Got %d, expected %d", input.Index, index)
	}
	if input.Sequence != DefaultSequence {
		t.Fatalf("Got %d, expected %d", input.Sequence, DefaultSequence)
	}
}

func TestAddOutput(t *testing.T) {
	script, _ := hex.DecodeString("76a914eaddee0d07bfc3e11c94f41eff618c1df3c2069b88ac")

	tx := &Transaction{}
	txOut := NewTxOutput(90000, script)
	tx.AddOutput(txOut)
	output := tx.Outputs[0]
	if output.Value != 90000 {
		t.Fatalf("Got %d, expected %d", output.Value, 90000)
	}
	if !reflect.DeepEqual(output.Script, script) {
		t.Fatalf("Got %x, expected %x", output.Script, script)
	}
	if output.Type != "p2pkh" {
		t.Fatalf("Got %s, expected p2pkh", output.Type)
	}
}

func TestAddOutputToAddress(t *testing.T) {
	tx := NewTx(DefaultVersion)

	out, err := tx.AddOutputToAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 10000)
	require.NoError(t, err)
	require.Equal(t, "0014751e76e8199196d454941c45d1b3a323f1433bd6", hex.EncodeToString(out.Script))
	require.Len(t, tx.Outputs, 1)

	_, err = tx.AddOutputToAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 1)
	require.ErrorIs(t, err, ErrDustOutput)

	_, err = tx.AddOutputToAddress("tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", 10000)
	require.Error(t, err)
}

func TestTxHash(t *testing.T) {
	file, err := ioutil.ReadFile("data/tx_valid.json")
	if err != nil {
		t.Fatal(err)
	}
	var tests map[string]interface{}
	json.Unmarshal(file, &tests)

	for _, v := range tests["txHash"].([]interface{}) {
		testVector := v.(map[string]interface{})
		tx, err := NewTxFromHex(testVector["txHex"].(string))
		if err != nil {
			t.Fatal(err)
		}

		expectedTxHash := testVector["expectedTxHash"].(string)
		expectedTxWitnessHash := testVector["expectedTxWitnessHash"].(string)
		if tx.TxID() != expectedTxHash {
			t.Fatalf("Got: %s, expected: %s", tx.TxID(), expectedTxHash)
		}
		if tx.WitnessHash().String() != expectedTxWitnessHash {
			t.Fatalf("Got: %s, expected: %s", tx.WitnessHash().String(), expectedTxWitnessHash)
		}
		if tx.ToWire().TxHash() != tx.TxHash() {
			t.Fatalf("Got: %s, expected: %s", tx.ToWire().TxHash(), tx.TxHash())
		}
	}
}

func TestSize(t *testing.T) {
	file, err := ioutil.ReadFile("data/tx_valid.json")
	if err != nil {
		t.Fatal(err)
	}
	var tests map[string]interface{}
	json.Unmarshal(file, &tests)

	for _, v := range tests["txSize"].([]interface{}) {
		testVector := v.(map[string]interface{})
		tx, err := NewTxFromHex(testVector["txHex"].(string))
		if err != nil {
			t.Fatal(err)
		}

		expectedWeight := int(testVector["expectedWeight"].(float64))
		expectedVsize := int(testVector["expectedVsize"].(float64))
		if res := tx.Weight(); res != expectedWeight {
			t.Fatalf("Got: %d, expected: %d", res, expectedWeight)
		}
		if res := tx.VirtualSize(); res != expectedVsize {
			t.Fatalf("Got: %d, expected: %d", res, expectedVsize)
		}
	}
}

func TestCopy(t *testing.T) {
	file, err := ioutil.ReadFile("data/tx_valid.json")
	if err != nil {
		t.Fatal(err)
	}
	var tests map[string]interface{}
	json.Unmarshal(file, &tests)

	for _, str := range tests["txCopy"].([]interface{}) {
		tx, err := NewTxFromHex(str.(string))
		if err != nil {
			t.Fatal(err)
		}
		newTx := tx.Copy()
		txHex, _ := tx.ToHex()
		newTxHex, _ := newTx.ToHex()
		if txHex != newTxHex {
			t.Fatal("Should have value equality")
		}
		if newTx == tx {
			t.Fatal("Should not have reference equality")
		}
		newTx.Inputs[0].Script[0] ^= 0xff
		if txHex2, _ := tx.ToHex(); txHex2 != txHex {
			t.Fatal("Should not share scripts")
		}
	}
}

func TestHashForSignature(t *testing.T) {
	file, err := ioutil.ReadFile("data/tx_valid.json")
	if err != nil {
		t.Fatal(err)
	}
	var tests map[string]interface{}
	json.Unmarshal(file, &tests)

	for _, v := range tests["txHashForSignature"].([]interface{}) {
		testVector := v.(map[string]interface{})
		tx, err := NewTxFromHex(testVector["txHex"].(string))
		if err != nil {
			t.Fatal(err)
		}
		inIndex := int(testVector["inIndex"].(float64))
		script, _ := hex.DecodeString(testVector["script"].(string))
		hashType := txscript.SigHashType(testVector["hashType"].(float64))
		hash, err := tx.HashForSignature(inIndex, script, hashType)
		if err != nil {
			t.Fatal(err)
		}
		expectedHash := testVector["expectedHash"].(string)
		if res := hex.EncodeToString(hash[:]); res != expectedHash {
			t.Fatalf("Got: %s, expected: %s", res, expectedHash)
		}
	}
}

func TestHashForWitnessV0(t *testing.T) {
	file, err := ioutil.ReadFile("data/tx_valid.json")
	if err != nil {
		t.Fatal(err)
	}
	var tests map[string]interface{}
	json.Unmarshal(file, &tests)

	for _, v := range tests["txHashForWitnessV0"].([]interface{}) {
		testVector := v.(map[string]interface{})
		tx, err := NewTxFromHex(testVector["txHex"].(string))
		if err != nil {
			t.Fatal(err)
		}
		inIndex := int(testVector["inIndex"].(float64))
		script, _ := hex.DecodeString(testVector["script"].(string))
		hashType := txscript.SigHashType(testVector["hashType"].(float64))
		value := uint64(testVector["amount"].(float64))

		hash, err := tx.HashForWitnessV0(inIndex, script, value, hashType)
		if err != nil {
			t.Fatal(err)
		}
		expectedHash := testVector["expectedHash"].(string)
		if res := hex.EncodeToString(hash[:]); res != expectedHash {
			t.Fatalf("Got: %s, expected: %s", res, expectedHash)
		}
	}
}

func TestHashInputIndexOutOfRange(t *testing.T) {
	tx := NewTx(DefaultVersion)
	tx.AddInput(NewTxInput(make([]byte, 32), 0))

	_, err := tx.HashForSignature(1, nil, txscript.SigHashAll)
	require.ErrorIs(t, err, ErrInputIndex)
	_, err = tx.HashForWitnessV0(-1, nil, 0, txscript.SigHashAll)
	require.ErrorIs(t, err, ErrInputIndex)
}

func TestDeserializeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		txHex string
		err   error
	}{
		{
			name:  "invalid witness flag",
			txHex: "01000000000201449d45bbbfe7fc93bbe649bb7b6106b248a15da5dbd6fdc9bdfc7efede83235e0100000000ffffffff0000000000",
			err:   ErrInvalidWitnessFlag,
		},
		{
			name:  "trailing bytes",
			txHex: "0100000001449d45bbbfe7fc93bbe649bb7b6106b248a15da5dbd6fdc9bdfc7efede83235e0100000000ffffffff000000000000",
			err:   ErrTrailingBytes,
		},
		{
			name:  "empty witness",
			txHex: "01000000000101449d45bbbfe7fc93bbe649bb7b6106b248a15da5dbd6fdc9bdfc7efede83235e0100000000ffffffff000000000000",
			err:   ErrEmptyWitness,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTxFromHex(tt.txHex)
			require.ErrorIs(t, err, tt.err)
		})
	}

	_, err := NewTxFromHex("0100")
	require.Error(t, err)
}

func TestSerializeMatchesWire(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tx := NewTx(rapid.Int32().Draw(t, "version"))
		tx.Locktime = rapid.Uint32().Draw(t, "locktime")

		nIn := rapid.IntRange(1, 4).Draw(t, "inputs")
		for i := 0; i < nIn; i++ {
			in := NewTxInput(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "hash"), rapid.Uint32().Draw(t, "index"))
			in.Script = rapid.SliceOfN(rapid.Byte(), 0, 80).Draw(t, "script")
			in.Sequence = rapid.Uint32().Draw(t, "sequence")
			if rapid.Bool().Draw(t, "witness") {
				in.Witness = rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 80), 1, 4).Draw(t, "items")
			}
			tx.AddInput(in)
		}
		nOut := rapid.IntRange(0, 4).Draw(t, "outputs")
		for i := 0; i < nOut; i++ {
			tx.AddOutput(NewTxOutput(
				rapid.Uint64().Draw(t, "value"),
				rapid.SliceOfN(rapid.Byte(), 0, 80).Draw(t, "pkScript"),
			))
		}

		raw, err := tx.Serialize()
		if err != nil {
			t.Fatal(err)
		}
		msg := tx.ToWire()
		expected := bytes.NewBuffer(nil)
		if err := msg.Serialize(expected); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(raw, expected.Bytes()) {
			t.Fatalf("Got: %x, expected: %x", raw, expected.Bytes())
		}
		if tx.Weight() != msg.SerializeSizeStripped()*3+msg.SerializeSize() {
			t.Fatalf("weight mismatch")
		}

		decoded, err := NewTxFromBytes(raw)
		if err != nil {
			t.Fatal(err)
		}
		if decoded.TxHash() != msg.TxHash() || decoded.WitnessHash() != msg.WitnessHash() {
			t.Fatalf("hash mismatch")
		}
	})
}

func TestFromWire(t *testing.T) {
	msg := wire.NewMsgTx(2)
	msg.LockTime = 700000
	tx := NewTxFromWire(msg)
	require.Equal(t, int32(2), tx.Version)
	require.Equal(t, uint32(700000), tx.Locktime)
	require.Equal(t, network.Bitcoin, tx.Network)
}

func TestCalculateFee(t *testing.T) {
	tx := NewTx(DefaultVersion)
	in := NewTxInput(make([]byte, 32), 0)
	tx.AddInput(in)
	tx.AddOutput(NewTxOutput(90000, make([]byte, 25)))

	_, err := tx.CalculateFee()
	require.ErrorIs(t, err, ErrMissingInputValue)

	in.Value = 80000
	_, err = tx.CalculateFee()
	require.ErrorIs(t, err, ErrNegativeFee)

	in.Value = 100000
	fee, err := tx.CalculateFee()
	require.NoError(t, err)
	require.Equal(t, uint64(10000), fee)

	require.NoError(t, tx.UpdateFee())
	require.Equal(t, uint64(10000), tx.Fee)
	require.Equal(t, fee*1000/uint64(tx.VirtualSize()), tx.FeePerKB)
}

func TestLockTime(t *testing.T) {
	tx := NewTx(DefaultVersion)
	tx.AddInput(NewTxInput(make([]byte, 32), 0))

	require.NoError(t, tx.SetLockTimeBlocks(700000))
	require.Equal(t, uint32(700000), tx.Locktime)
	require.Equal(t, uint32(SequenceEnableLockTime), tx.Inputs[0].Sequence)
	require.False(t, tx.SignalsRBF())

	require.Error(t, tx.SetLockTimeBlocks(LockTimeThreshold))

	date := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tx.SetLockTimeTime(date))
	require.Equal(t, uint32(date.Unix()), tx.Locktime)
	require.Error(t, tx.SetLockTimeTime(time.Unix(1000, 0)))
}

func TestRelativeLockTime(t *testing.T) {
	tx := NewTx(DefaultVersion)
	tx.AddInput(NewTxInput(make([]byte, 32), 0))

	require.NoError(t, tx.SetRelativeLockBlocks(0, 144))
	require.Equal(t, int32(2), tx.Version)
	require.Equal(t, uint32(144), tx.Inputs[0].Sequence)
	require.True(t, tx.SignalsRBF())

	require.NoError(t, tx.SetRelativeLockTime(0, 1024*time.Second))
	require.Equal(t, uint32(SequenceLockTimeTypeFlag|2), tx.Inputs[0].Sequence)

	require.Error(t, tx.SetRelativeLockBlocks(1, 10))
}
