package transaction

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/internal/bufferutil"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
)

// ToWire returns the transaction as a btcd message, scripts and witnesses
// included.
func (tx *Transaction) ToWire() *wire.MsgTx {
	msg := wire.NewMsgTx(tx.Version)
	msg.LockTime = tx.Locktime
	for _, in := range tx.Inputs {
		hash := in.Hash
		txIn := wire.NewTxIn(wire.NewOutPoint(&hash, in.Index), cloneBytes(in.Script), cloneVector(in.Witness))
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}
	for _, out := range wireOutputs(tx.Outputs) {
		msg.AddTxOut(out)
	}
	return msg
}

// NewTxFromWire returns the transaction of a btcd message.
func NewTxFromWire(msg *wire.MsgTx) *Transaction {
	tx := NewTx(msg.Version)
	tx.Locktime = msg.LockTime
	for _, txIn := range msg.TxIn {
		in := NewTxInput(txIn.PreviousOutPoint.Hash[:], txIn.PreviousOutPoint.Index)
		in.Script = cloneBytes(txIn.SignatureScript)
		in.Sequence = txIn.Sequence
		in.Witness = cloneVector(txIn.Witness)
		tx.AddInput(in)
	}
	for _, txOut := range msg.TxOut {
		tx.AddOutput(NewTxOutput(uint64(txOut.Value), cloneBytes(txOut.PkScript)))
	}
	return tx
}

func wireOutputs(outputs []*TxOutput) []*wire.TxOut {
	out := make([]*wire.TxOut, 0, len(outputs))
	for _, o := range outputs {
		out = append(out, wire.NewTxOut(int64(o.Value), o.Script))
	}
	return out
}

// ToPsbt returns a BIP-174 packet for the transaction. Inputs carry the
// output they spend, their redeem and witness scripts and the signatures
// collected so far. Inputs that verify are exported finalized.
func (tx *Transaction) ToPsbt() (*psbt.Packet, error) {
	const op = "transaction.ToPsbt"

	unsigned := tx.Copy()
	for _, in := range unsigned.Inputs {
		in.Script = nil
		in.Witness = nil
	}
	p, err := psbt.NewFromUnsignedTx(unsigned.ToWire())
	if err != nil {
		return nil, errs.New(errs.ErrInvalidTransaction, op, err)
	}

	for i, in := range tx.Inputs {
		pin := &p.Inputs[i]
		t := in.inferType()
		locking := in.LockingScript
		if len(locking) == 0 {
			locking = in.lockingScript()
		}
		if len(locking) > 0 && in.Value > 0 {
			pin.WitnessUtxo = wire.NewTxOut(int64(in.Value), locking)
		}
		pin.RedeemScript = cloneBytes(in.RedeemScript)
		pin.WitnessScript = cloneBytes(in.WitnessScript)
		if t == InputP2SHP2WPKH && len(pin.RedeemScript) == 0 && len(in.Keys) > 0 {
			in.Type = t
			pin.RedeemScript = lockingScriptFor(InputP2WPKH, in.pubKeys()[0])
		}

		if in.Valid && (len(in.Script) > 0 || len(in.Witness) > 0) {
			if len(in.Script) > 0 {
				pin.FinalScriptSig = cloneBytes(in.Script)
			}
			if len(in.Witness) > 0 {
				w := bytes.NewBuffer(nil)
				if err := psbt.WriteTxWitness(w, in.Witness); err != nil {
					return nil, errs.New(errs.ErrInvalidTransaction, op, err).WithInput(i)
				}
				pin.FinalScriptWitness = w.Bytes()
			}
			continue
		}

		for _, s := range in.Signatures {
			pin.PartialSigs = append(pin.PartialSigs, &psbt.PartialSig{
				PubKey:    cloneBytes(s.PubKey),
				Signature: cloneBytes(s.Sig),
			})
			if len(s.Sig) > 0 {
				pin.SighashType = txscript.SigHashType(s.Sig[len(s.Sig)-1])
			}
		}
	}
	return p, nil
}

// ToBase64 returns the base64 encoding of the transaction packet.
func (tx *Transaction) ToBase64() (string, error) {
	p, err := tx.ToPsbt()
	if err != nil {
		return "", err
	}
	return p.B64Encode()
}

// NewTxFromPsbt imports a BIP-174 packet. Input values and locking
// scripts come from the witness or non witness utxo, partial signatures
// are attached to their input and finalized inputs keep their unlocking
// data.
func NewTxFromPsbt(p *psbt.Packet, net *network.Network) (*Transaction, error) {
	const op = "transaction.NewTxFromPsbt"

	if p == nil || p.UnsignedTx == nil {
		return nil, errs.Newf(errs.ErrInvalidTransaction, op, "missing unsigned transaction")
	}
	if net == nil {
		net = network.Bitcoin
	}
	tx := NewTxFromWire(p.UnsignedTx)
	tx.Network = net

	for i, in := range tx.Inputs {
		pin := p.Inputs[i]
		switch {
		case pin.WitnessUtxo != nil:
			in.Value = uint64(pin.WitnessUtxo.Value)
			in.LockingScript = cloneBytes(pin.WitnessUtxo.PkScript)
		case pin.NonWitnessUtxo != nil:
			if pin.NonWitnessUtxo.TxHash() != in.Hash ||
				int(in.Index) >= len(pin.NonWitnessUtxo.TxOut) {
				return nil, errs.Newf(errs.ErrInvalidTransaction, op,
					"non witness utxo does not match outpoint %s", in.Outpoint()).WithInput(i)
			}
			prev := pin.NonWitnessUtxo.TxOut[in.Index]
			in.Value = uint64(prev.Value)
			in.LockingScript = cloneBytes(prev.PkScript)
		}
		in.RedeemScript = cloneBytes(pin.RedeemScript)
		in.WitnessScript = cloneBytes(pin.WitnessScript)
		if len(in.LockingScript) > 0 {
			if a, err := address.FromScript(in.LockingScript, net); err == nil {
				in.Address = a.String()
			}
		}
		in.Type = in.inferType()

		if in.Type.IsMultisig() {
			ms := in.WitnessScript
			if in.Type == InputP2SHMultisig {
				ms = in.RedeemScript
			}
			details, err := address.ExtractScriptDetails(ms)
			if err == nil && details.Class == address.P2MultiSigScript {
				in.SigsRequired = details.RequiredSignatures
				in.SortKeys = false
				for _, pub := range details.Data {
					k, err := keys.NewKeyFromPublic(pub, net)
					if err != nil {
						return nil, errs.New(errs.ErrInvalidKey, op, err).WithInput(i)
					}
					in.Keys = append(in.Keys, k)
				}
			}
		} else if len(pin.PartialSigs) > 0 {
			k, err := keys.NewKeyFromPublic(pin.PartialSigs[0].PubKey, net)
			if err != nil {
				return nil, errs.New(errs.ErrInvalidKey, op, err).WithInput(i)
			}
			in.Keys = []*keys.Key{k}
		}

		if len(pin.FinalScriptSig) > 0 || len(pin.FinalScriptWitness) > 0 {
			in.Script = cloneBytes(pin.FinalScriptSig)
			if len(pin.FinalScriptWitness) > 0 {
				r := bufferutil.NewBufferReader(bytes.NewBuffer(pin.FinalScriptWitness))
				witness, err := r.ReadVector()
				if err != nil {
					return nil, errs.New(errs.ErrInvalidTransaction, op, err).WithInput(i)
				}
				in.Witness = witness
			}
			continue
		}
		for _, ps := range pin.PartialSigs {
			if err := tx.AddSignature(i, Signature{
				PubKey: cloneBytes(ps.PubKey),
				Sig:    cloneBytes(ps.Signature),
			}); err != nil {
				return nil, err
			}
		}
	}
	return tx, nil
}

// NewTxFromBase64 decodes a base64 BIP-174 packet.
func NewTxFromBase64(b64 string, net *network.Network) (*Transaction, error) {
	p, err := psbt.NewFromRawBytes(bytes.NewReader([]byte(b64)), true)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidTransaction, "transaction.NewTxFromBase64", err)
	}
	return NewTxFromPsbt(p, net)
}
