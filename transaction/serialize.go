package transaction

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/internal/bufferutil"
)

var (
	// ErrInvalidWitnessFlag is returned when the segwit marker is not
	// followed by flag 0x01.
	ErrInvalidWitnessFlag = errors.New("invalid witness flag")
	// ErrTrailingBytes is returned when data follows the locktime.
	ErrTrailingBytes = errors.New("unexpected bytes after transaction")
	// ErrEmptyWitness is returned for segwit serializations without
	// witness data.
	ErrEmptyWitness = errors.New("superfluous witness flag")
)

// NewTxFromBuffer deserializes a transaction in legacy or BIP-144 format.
func NewTxFromBuffer(buf *bytes.Buffer) (*Transaction, error) {
	tx, err := deserialize(buf)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidTransaction, "transaction.NewTxFromBuffer", err)
	}
	return tx, nil
}

// NewTxFromBytes deserializes a raw transaction.
func NewTxFromBytes(raw []byte) (*Transaction, error) {
	return NewTxFromBuffer(bytes.NewBuffer(raw))
}

// NewTxFromHex deserializes a hex encoded transaction.
func NewTxFromHex(str string) (*Transaction, error) {
	raw, err := hex.DecodeString(str)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidTransaction, "transaction.NewTxFromHex", err)
	}
	return NewTxFromBytes(raw)
}

func deserialize(buf *bytes.Buffer) (*Transaction, error) {
	d := bufferutil.NewBufferReader(buf)
	tx := NewTx(DefaultVersion)

	version, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	tx.Version = int32(version)

	inCount, err := d.ReadVarInt()
	if err != nil {
		return nil, err
	}
	segwit := false
	if inCount == witnessMarker {
		flag, err := d.ReadUint8()
		if err != nil {
			return nil, err
		}
		if flag != witnessFlag {
			return nil, fmt.Errorf("%w: %#x", ErrInvalidWitnessFlag, flag)
		}
		segwit = true
		if inCount, err = d.ReadVarInt(); err != nil {
			return nil, err
		}
	}
	// every input takes at least 41 bytes
	if inCount > uint64(d.Len()/41) {
		return nil, bufferutil.ErrShortRead
	}

	for i := uint64(0); i < inCount; i++ {
		hash, err := d.ReadSlice(chainhash.HashSize)
		if err != nil {
			return nil, err
		}
		index, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		script, err := d.ReadVarSlice()
		if err != nil {
			return nil, err
		}
		sequence, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		in := NewTxInput(hash, index)
		in.Script = script
		in.Sequence = sequence
		tx.AddInput(in)
	}

	outCount, err := d.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if outCount > uint64(d.Len()/9) {
		return nil, bufferutil.ErrShortRead
	}
	for i := uint64(0); i < outCount; i++ {
		value, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		script, err := d.ReadVarSlice()
		if err != nil {
			return nil, err
		}
		tx.AddOutput(NewTxOutput(value, script))
	}

	if segwit {
		for _, in := range tx.Inputs {
			witness, err := d.ReadVector()
			if err != nil {
				return nil, err
			}
			if len(witness) > 0 {
				in.Witness = witness
			}
		}
		if !tx.hasWitness() {
			return nil, ErrEmptyWitness
		}
	}

	if tx.Locktime, err = d.ReadUint32(); err != nil {
		return nil, err
	}
	if d.Len() > 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, d.Len())
	}
	return tx, nil
}

// Serialize returns the BIP-144 serialization when any input carries a
// witness, the legacy one otherwise.
func (tx *Transaction) Serialize() ([]byte, error) {
	return tx.serialize(nil, tx.hasWitness())
}

// SerializeNoWitness returns the legacy serialization, the one hashed into
// the txid.
func (tx *Transaction) SerializeNoWitness() ([]byte, error) {
	return tx.serialize(nil, false)
}

// ToHex returns the hex encoded serialization.
func (tx *Transaction) ToHex() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func (tx *Transaction) serialize(buf *bytes.Buffer, withWitness bool) ([]byte, error) {
	s := bufferutil.NewBufferWriter(buf)

	if err := s.WriteUint32(uint32(tx.Version)); err != nil {
		return nil, err
	}
	if withWitness {
		if err := s.WriteSlice([]byte{witnessMarker, witnessFlag}); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(tx.Inputs))); err != nil {
		return nil, err
	}
	for _, in := range tx.Inputs {
		if err := s.WriteSlice(in.Hash[:]); err != nil {
			return nil, err
		}
		if err := s.WriteUint32(in.Index); err != nil {
			return nil, err
		}
		if err := s.WriteVarSlice(in.Script); err != nil {
			return nil, err
		}
		if err := s.WriteUint32(in.Sequence); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(tx.Outputs))); err != nil {
		return nil, err
	}
	for _, out := range tx.Outputs {
		if err := s.WriteUint64(out.Value); err != nil {
			return nil, err
		}
		if err := s.WriteVarSlice(out.Script); err != nil {
			return nil, err
		}
	}

	if withWitness {
		for _, in := range tx.Inputs {
			if err := s.WriteVector(in.Witness); err != nil {
				return nil, err
			}
		}
	}

	if err := s.WriteUint32(tx.Locktime); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// TxHash generates the Hash for the transaction.
func (tx *Transaction) TxHash() chainhash.Hash {
	// Encode the transaction and calculate double sha256 on the result.
	raw, _ := tx.SerializeNoWitness()
	return chainhash.DoubleHashH(raw)
}

// TxID returns the transaction hash in its usual reversed hex form.
func (tx *Transaction) TxID() string {
	return tx.TxHash().String()
}

// WitnessHash generates the hash of the transaction serialized according to
// the new witness serialization defined in BIP0141 and BIP0144. The final
// output is used within the Segregated Witness commitment of all the witnesses
// within a block. If a transaction has no witness data, then the witness hash,
// is the same as its txid.
func (tx *Transaction) WitnessHash() chainhash.Hash {
	if tx.hasWitness() {
		raw, _ := tx.Serialize()
		return chainhash.DoubleHashH(raw)
	}
	return tx.TxHash()
}

// Size returns the length of the full serialization.
func (tx *Transaction) Size() int {
	raw, _ := tx.Serialize()
	return len(raw)
}

// BaseSize returns the length of the serialization without witness data.
func (tx *Transaction) BaseSize() int {
	raw, _ := tx.SerializeNoWitness()
	return len(raw)
}

// Weight returns the BIP-141 weight: base size times 3 plus total size.
func (tx *Transaction) Weight() int {
	return tx.BaseSize()*3 + tx.Size()
}

// VirtualSize returns the weight divided by 4, rounded up.
func (tx *Transaction) VirtualSize() int {
	return (tx.Weight() + 3) / 4
}
