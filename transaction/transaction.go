package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
)

const (
	// DefaultVersion is the version of newly created transactions.
	DefaultVersion = 1
	// DefaultSequence is the final sequence, disabling locktime and RBF.
	DefaultSequence = 0xffffffff

	// SequenceLockTimeDisableFlag disables the BIP-68 relative lock.
	SequenceLockTimeDisableFlag = 1 << 31
	// SequenceLockTimeTypeFlag makes a relative lock time based.
	SequenceLockTimeTypeFlag = 1 << 22
	// SequenceLockTimeGranularity is the shift of time based relative
	// locks, in units of 512 seconds.
	SequenceLockTimeGranularity = 9
	// SequenceLockTimeMask extracts the relative lock value.
	SequenceLockTimeMask = 0x0000ffff
	// SequenceEnableLockTime is the highest sequence enabling nLockTime.
	SequenceEnableLockTime = 0xfffffffe
	// SequenceReplaceByFee is the highest sequence signaling BIP-125.
	SequenceReplaceByFee = 0xfffffffd

	// LockTimeThreshold separates block heights from unix timestamps.
	LockTimeThreshold = 500000000
	// MaxStandardWeight is the largest weight relayed by default.
	MaxStandardWeight = 400000

	witnessMarker = 0x00
	witnessFlag   = 0x01
)

var (
	// ErrInputIndex is returned for input indexes out of range.
	ErrInputIndex = errors.New("input index out of range")
	// ErrDustOutput is returned when an output pays less than the network
	// dust amount.
	ErrDustOutput = errors.New("output value below dust threshold")
	// ErrMissingInputValue is returned when a fee is computed over inputs
	// whose value is unknown.
	ErrMissingInputValue = errors.New("input value is unknown")
	// ErrNegativeFee is returned when outputs spend more than inputs.
	ErrNegativeFee = errors.New("outputs exceed inputs")
)

// Status tracks a transaction through the mempool and the chain.
type Status string

const (
	StatusNew         Status = "new"
	StatusUnconfirmed Status = "unconfirmed"
	StatusConfirmed   Status = "confirmed"
)

// Signature is a DER signature with its trailing sighash byte, bound to
// the public key that produced it.
type Signature struct {
	PubKey []byte
	Sig    []byte
}

// TxInput defines a transaction input. Hash, Index, Script, Sequence and
// Witness are serialized; the rest is the metadata needed to sign and
// verify it.
type TxInput struct {
	Hash     chainhash.Hash
	Index    uint32
	Script   []byte
	Sequence uint32
	Witness  [][]byte

	Value         uint64
	Address       string
	Type          InputType
	Keys          []*keys.Key
	Signatures    []Signature
	SigsRequired  int
	KeyPath       string
	RedeemScript  []byte
	WitnessScript []byte
	LockingScript []byte
	SortKeys      bool
	Valid         bool
}

// TxOutput defines a transaction output.
type TxOutput struct {
	Value   uint64
	Script  []byte
	Address string
	Type    string
	Spent   bool
	// Change marks outputs paying back to the sender.
	Change bool
}

// Transaction defines a bitcoin transaction together with the wallet view
// of it.
type Transaction struct {
	Version  int32
	Locktime uint32
	Inputs   []*TxInput
	Outputs  []*TxOutput

	WitnessType   network.WitnessType
	Network       *network.Network
	Fee           uint64
	FeePerKB      uint64
	Verified      bool
	Status        Status
	Confirmations uint32
	BlockHeight   uint32
	Date          time.Time
}

// NewTx returns an empty transaction with the given version.
func NewTx(version int32) *Transaction {
	return &Transaction{
		Version: version,
		Inputs:  make([]*TxInput, 0),
		Outputs: make([]*TxOutput, 0),
		Network: network.Bitcoin,
		Status:  StatusNew,
	}
}

// NewTxInput returns an input spending the output index of the transaction
// with the given hash, in internal byte order.
func NewTxInput(hash []byte, index uint32) *TxInput {
	in := &TxInput{Index: index, Sequence: DefaultSequence, SortKeys: true}
	copy(in.Hash[:], hash)
	return in
}

// NewTxInputFromTxID is like NewTxInput with the hash given as a txid.
func NewTxInputFromTxID(txid string, index uint32) (*TxInput, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidTransaction, "transaction.NewTxInputFromTxID", err)
	}
	return NewTxInput(hash[:], index), nil
}

// NewTxOutput returns an output locking value to script.
func NewTxOutput(value uint64, script []byte) *TxOutput {
	out := &TxOutput{Value: value, Script: script}
	if details, err := address.ExtractScriptDetails(script); err == nil {
		out.Type = details.Class.String()
	}
	return out
}

// TxID returns the id of the transaction the input spends from.
func (in *TxInput) TxID() string {
	return in.Hash.String()
}

// Outpoint returns the txid:index form of the spent output.
func (in *TxInput) Outpoint() string {
	return fmt.Sprintf("%s:%d", in.Hash, in.Index)
}

// HasWitness reports whether the input carries witness data.
func (in *TxInput) HasWitness() bool {
	return len(in.Witness) > 0
}

// AddInput adds a transaction input to the message.
func (tx *Transaction) AddInput(ti *TxInput) {
	tx.Inputs = append(tx.Inputs, ti)
}

// AddOutput adds a transaction output to the message.
func (tx *Transaction) AddOutput(to *TxOutput) {
	tx.Outputs = append(tx.Outputs, to)
}

// AddOutputToAddress resolves addr on the transaction network and adds an
// output paying value to it. Outputs below the network dust amount are
// rejected.
func (tx *Transaction) AddOutputToAddress(addr string, value uint64) (*TxOutput, error) {
	const op = "transaction.AddOutputToAddress"

	a, err := address.Parse(addr, tx.network())
	if err != nil {
		return nil, err
	}
	if a.Network != tx.network() {
		return nil, errs.Newf(errs.ErrConfig, op,
			"address %s is not on %s", addr, tx.network().Name)
	}
	if value < tx.network().DustAmount {
		return nil, errs.New(errs.ErrInvalidTransaction, op, fmt.Errorf(
			"%w: %d < %d", ErrDustOutput, value, tx.network().DustAmount,
		))
	}
	out := NewTxOutput(value, a.Script())
	out.Address = a.String()
	out.Type = a.ScriptType
	tx.AddOutput(out)
	return out, nil
}

// InputTotal returns the sum of the input values.
func (tx *Transaction) InputTotal() uint64 {
	var total uint64
	for _, in := range tx.Inputs {
		total += in.Value
	}
	return total
}

// OutputTotal returns the sum of the output values.
func (tx *Transaction) OutputTotal() uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		total += out.Value
	}
	return total
}

// CalculateFee returns inputs minus outputs. Every input value must be
// known.
func (tx *Transaction) CalculateFee() (uint64, error) {
	const op = "transaction.CalculateFee"
	for i, in := range tx.Inputs {
		if in.Value == 0 {
			return 0, errs.New(errs.ErrInvalidTransaction, op, ErrMissingInputValue).WithInput(i)
		}
	}
	in, out := tx.InputTotal(), tx.OutputTotal()
	if out > in {
		return 0, errs.New(errs.ErrInvalidTransaction, op, fmt.Errorf(
			"%w: %d > %d", ErrNegativeFee, out, in,
		))
	}
	return in - out, nil
}

// UpdateFee recomputes Fee and FeePerKB from the input values and the
// current virtual size.
func (tx *Transaction) UpdateFee() error {
	fee, err := tx.CalculateFee()
	if err != nil {
		return err
	}
	tx.Fee = fee
	if vsize := tx.VirtualSize(); vsize > 0 {
		tx.FeePerKB = fee * 1000 / uint64(vsize)
	}
	return nil
}

// SetLockTimeBlocks locks the transaction until the given block height.
func (tx *Transaction) SetLockTimeBlocks(height uint32) error {
	if height >= LockTimeThreshold {
		return errs.Newf(errs.ErrInvalidTransaction, "transaction.SetLockTimeBlocks",
			"block height %d above locktime threshold", height)
	}
	tx.Locktime = height
	tx.enableLockTime()
	return nil
}

// SetLockTimeTime locks the transaction until the given unix time.
func (tx *Transaction) SetLockTimeTime(t time.Time) error {
	unix := t.Unix()
	if unix < LockTimeThreshold || unix > 0xffffffff {
		return errs.Newf(errs.ErrInvalidTransaction, "transaction.SetLockTimeTime",
			"timestamp %d out of locktime range", unix)
	}
	tx.Locktime = uint32(unix)
	tx.enableLockTime()
	return nil
}

// nLockTime is ignored when every input is final.
func (tx *Transaction) enableLockTime() {
	for _, in := range tx.Inputs {
		if in.Sequence == DefaultSequence {
			in.Sequence = SequenceEnableLockTime
		}
	}
}

// SetRelativeLockBlocks sets a BIP-68 relative lock of the given number of
// blocks on input i.
func (tx *Transaction) SetRelativeLockBlocks(i int, blocks uint16) error {
	in, err := tx.input(i, "transaction.SetRelativeLockBlocks")
	if err != nil {
		return err
	}
	in.Sequence = uint32(blocks)
	tx.bumpVersionForCSV()
	return nil
}

// SetRelativeLockTime sets a BIP-68 relative lock of at least the given
// duration on input i, rounded up to 512 second units.
func (tx *Transaction) SetRelativeLockTime(i int, d time.Duration) error {
	const op = "transaction.SetRelativeLockTime"
	in, err := tx.input(i, op)
	if err != nil {
		return err
	}
	secs := uint64(d / time.Second)
	units := (secs + (1<<SequenceLockTimeGranularity - 1)) >> SequenceLockTimeGranularity
	if units > SequenceLockTimeMask {
		return errs.Newf(errs.ErrInvalidTransaction, op, "relative lock %s too long", d)
	}
	in.Sequence = SequenceLockTimeTypeFlag | uint32(units)
	tx.bumpVersionForCSV()
	return nil
}

func (tx *Transaction) bumpVersionForCSV() {
	if tx.Version < 2 {
		tx.Version = 2
	}
}

// SignalsRBF reports whether any input opts in to replace-by-fee.
func (tx *Transaction) SignalsRBF() bool {
	for _, in := range tx.Inputs {
		if in.Sequence <= SequenceReplaceByFee {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the transaction.
func (tx *Transaction) Copy() *Transaction {
	newTx := *tx
	newTx.Inputs = make([]*TxInput, 0, len(tx.Inputs))
	newTx.Outputs = make([]*TxOutput, 0, len(tx.Outputs))

	for _, in := range tx.Inputs {
		newIn := *in
		newIn.Script = cloneBytes(in.Script)
		newIn.Witness = cloneVector(in.Witness)
		newIn.Keys = append([]*keys.Key(nil), in.Keys...)
		newIn.Signatures = make([]Signature, 0, len(in.Signatures))
		for _, s := range in.Signatures {
			newIn.Signatures = append(newIn.Signatures, Signature{
				PubKey: cloneBytes(s.PubKey),
				Sig:    cloneBytes(s.Sig),
			})
		}
		newIn.RedeemScript = cloneBytes(in.RedeemScript)
		newIn.WitnessScript = cloneBytes(in.WitnessScript)
		newIn.LockingScript = cloneBytes(in.LockingScript)
		newTx.Inputs = append(newTx.Inputs, &newIn)
	}
	for _, out := range tx.Outputs {
		newOut := *out
		newOut.Script = cloneBytes(out.Script)
		newTx.Outputs = append(newTx.Outputs, &newOut)
	}
	return &newTx
}

func (tx *Transaction) input(i int, op string) (*TxInput, error) {
	if i < 0 || i >= len(tx.Inputs) {
		return nil, errs.New(errs.ErrInvalidTransaction, op, ErrInputIndex).WithInput(i)
	}
	return tx.Inputs[i], nil
}

func (tx *Transaction) network() *network.Network {
	if tx.Network == nil {
		return network.Bitcoin
	}
	return tx.Network
}

func (tx *Transaction) hasWitness() bool {
	for _, in := range tx.Inputs {
		if in.HasWitness() {
			return true
		}
	}
	return false
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func cloneVector(v [][]byte) [][]byte {
	if v == nil {
		return nil
	}
	out := make([][]byte, 0, len(v))
	for _, b := range v {
		out = append(out, cloneBytes(b))
	}
	return out
}
