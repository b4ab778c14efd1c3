package transaction

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/internal/bufferutil"
)

const sigHashMask = 0x1f

// one is returned as the hash of SIGHASH_SINGLE inputs with no matching
// output, as consensus does.
var one = chainhash.Hash{0x01}

// HashForSignature returns the legacy signature hash of input inIndex,
// committing to prevoutScript (the locking script, or the redeem script of
// P2SH spends) in place of the input script.
func (tx *Transaction) HashForSignature(
	inIndex int,
	prevoutScript []byte,
	hashType txscript.SigHashType,
) ([32]byte, error) {
	if inIndex < 0 || inIndex >= len(tx.Inputs) {
		return [32]byte{}, errs.New(errs.ErrInvalidTransaction,
			"transaction.HashForSignature", ErrInputIndex).WithInput(inIndex)
	}
	if hashType&sigHashMask == txscript.SigHashSingle && inIndex >= len(tx.Outputs) {
		return one, nil
	}

	txTmp := tx.Copy()
	for _, in := range txTmp.Inputs {
		in.Script = []byte{}
		in.Witness = nil
	}
	txTmp.Inputs[inIndex].Script = prevoutScript

	switch hashType & sigHashMask {
	case txscript.SigHashNone:
		txTmp.Outputs = txTmp.Outputs[:0]
		txTmp.zeroOtherSequences(inIndex)

	case txscript.SigHashSingle:
		txTmp.Outputs = txTmp.Outputs[:inIndex+1]
		for i := 0; i < inIndex; i++ {
			txTmp.Outputs[i] = &TxOutput{Value: ^uint64(0), Script: []byte{}}
		}
		txTmp.zeroOtherSequences(inIndex)
	}

	if hashType&txscript.SigHashAnyOneCanPay != 0 {
		txTmp.Inputs = txTmp.Inputs[inIndex : inIndex+1]
	}

	buf := bytes.NewBuffer(nil)
	if _, err := txTmp.serialize(buf, false); err != nil {
		return [32]byte{}, err
	}
	s := bufferutil.NewBufferWriter(buf)
	if err := s.WriteUint32(uint32(hashType)); err != nil {
		return [32]byte{}, err
	}
	return chainhash.DoubleHashH(s.Bytes()), nil
}

func (tx *Transaction) zeroOtherSequences(inIndex int) {
	for i, in := range tx.Inputs {
		if i != inIndex {
			in.Sequence = 0
		}
	}
}

// HashForWitnessV0 returns the BIP-143 signature hash of input inIndex
// spending value satoshis, committing to scriptCode.
func (tx *Transaction) HashForWitnessV0(
	inIndex int,
	scriptCode []byte,
	value uint64,
	hashType txscript.SigHashType,
) ([32]byte, error) {
	if inIndex < 0 || inIndex >= len(tx.Inputs) {
		return [32]byte{}, errs.New(errs.ErrInvalidTransaction,
			"transaction.HashForWitnessV0", ErrInputIndex).WithInput(inIndex)
	}

	var hashPrevouts, hashSequence, hashOutputs chainhash.Hash
	anyoneCanPay := hashType&txscript.SigHashAnyOneCanPay != 0
	base := hashType & sigHashMask

	if !anyoneCanPay {
		hashPrevouts = tx.hashPrevouts()
	}
	if !anyoneCanPay && base != txscript.SigHashSingle && base != txscript.SigHashNone {
		hashSequence = tx.hashSequences()
	}
	if base != txscript.SigHashSingle && base != txscript.SigHashNone {
		hashOutputs = tx.hashOutputs(tx.Outputs)
	} else if base == txscript.SigHashSingle && inIndex < len(tx.Outputs) {
		hashOutputs = tx.hashOutputs(tx.Outputs[inIndex : inIndex+1])
	}

	in := tx.Inputs[inIndex]
	s := bufferutil.NewBufferWriter(nil)
	steps := []func() error{
		func() error { return s.WriteUint32(uint32(tx.Version)) },
		func() error { return s.WriteSlice(hashPrevouts[:]) },
		func() error { return s.WriteSlice(hashSequence[:]) },
		func() error { return s.WriteSlice(in.Hash[:]) },
		func() error { return s.WriteUint32(in.Index) },
		func() error { return s.WriteVarSlice(scriptCode) },
		func() error { return s.WriteUint64(value) },
		func() error { return s.WriteUint32(in.Sequence) },
		func() error { return s.WriteSlice(hashOutputs[:]) },
		func() error { return s.WriteUint32(tx.Locktime) },
		func() error { return s.WriteUint32(uint32(hashType)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return [32]byte{}, err
		}
	}
	return chainhash.DoubleHashH(s.Bytes()), nil
}

func (tx *Transaction) hashPrevouts() chainhash.Hash {
	s := bufferutil.NewBufferWriter(nil)
	for _, in := range tx.Inputs {
		s.WriteSlice(in.Hash[:])
		s.WriteUint32(in.Index)
	}
	return chainhash.DoubleHashH(s.Bytes())
}

func (tx *Transaction) hashSequences() chainhash.Hash {
	s := bufferutil.NewBufferWriter(nil)
	for _, in := range tx.Inputs {
		s.WriteUint32(in.Sequence)
	}
	return chainhash.DoubleHashH(s.Bytes())
}

func (tx *Transaction) hashOutputs(outputs []*TxOutput) chainhash.Hash {
	s := bufferutil.NewBufferWriter(nil)
	for _, out := range outputs {
		s.WriteUint64(out.Value)
		s.WriteVarSlice(out.Script)
	}
	return chainhash.DoubleHashH(s.Bytes())
}
