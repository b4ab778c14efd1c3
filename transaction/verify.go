package transaction

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/curve"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/script"
)

var (
	// ErrMissingLockingScript is returned when an input can't be verified
	// because the script it spends is unknown.
	ErrMissingLockingScript = errors.New("input locking script is unknown")
	// ErrScriptSigNotEmpty is returned for native segwit spends carrying a
	// script sig.
	ErrScriptSigNotEmpty = errors.New("native witness spend with non empty script sig")
	// ErrWitnessProgramMismatch is returned when the witness does not
	// commit to the program it spends.
	ErrWitnessProgramMismatch = errors.New("witness program mismatch")
	// ErrTaprootVerification is returned for taproot spends.
	ErrTaprootVerification = errors.New("taproot spends can't be verified")
	// ErrScriptSigNotPushOnly is returned for P2SH spends whose script sig
	// runs opcodes other than pushes.
	ErrScriptSigNotPushOnly = errors.New("p2sh script sig is not push only")
	// ErrCleanStack is returned when a spend leaves more than the result
	// on the stack.
	ErrCleanStack = errors.New("stack not clean after evaluation")
)

// sigChecker binds signature and lock checks to one input.
type sigChecker struct {
	tx      *Transaction
	inIndex int
	value   uint64
	segwit  bool
}

func (c *sigChecker) CheckSig(sig, pubKey, subscript []byte) bool {
	der, hashType, err := curve.SplitSigHashType(sig)
	if err != nil {
		return false
	}
	parsed, err := curve.ParseDER(der)
	if err != nil {
		return false
	}
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false
	}

	var hash [32]byte
	if c.segwit {
		hash, err = c.tx.HashForWitnessV0(c.inIndex, subscript, c.value, txscript.SigHashType(hashType))
	} else {
		hash, err = c.tx.HashForSignature(c.inIndex, subscript, txscript.SigHashType(hashType))
	}
	if err != nil {
		return false
	}
	return curve.Verify(hash[:], parsed, pub)
}

// CheckLockTime implements BIP-65.
func (c *sigChecker) CheckLockTime(lockTime int64) bool {
	txLockTime := int64(c.tx.Locktime)
	if (lockTime < LockTimeThreshold) != (txLockTime < LockTimeThreshold) {
		return false
	}
	if lockTime > txLockTime {
		return false
	}
	return c.tx.Inputs[c.inIndex].Sequence != DefaultSequence
}

// CheckSequence implements BIP-112.
func (c *sigChecker) CheckSequence(sequence int64) bool {
	if sequence&SequenceLockTimeDisableFlag != 0 {
		return true
	}
	if c.tx.Version < 2 {
		return false
	}
	txSequence := int64(c.tx.Inputs[c.inIndex].Sequence)
	if txSequence&SequenceLockTimeDisableFlag != 0 {
		return false
	}
	const mask = SequenceLockTimeTypeFlag | SequenceLockTimeMask
	sequence &= mask
	txSequence &= mask
	if (sequence < SequenceLockTimeTypeFlag) != (txSequence < SequenceLockTimeTypeFlag) {
		return false
	}
	return sequence <= txSequence
}

// Verify runs the scripts of every input and sets Verified when all of
// them succeed. The per-input failures are joined in the returned error.
func (tx *Transaction) Verify() error {
	var failures []error
	for i := range tx.Inputs {
		if err := tx.VerifyInput(i); err != nil {
			failures = append(failures, err)
		}
	}
	tx.Verified = len(failures) == 0 && len(tx.Inputs) > 0
	return errors.Join(failures...)
}

// VerifyInput runs the unlocking script of input inIndex followed by the
// script it spends, then the redeem script of P2SH spends and the witness
// script of segwit spends. Every signature check must succeed.
func (tx *Transaction) VerifyInput(inIndex int) error {
	const op = "transaction.VerifyInput"

	in, err := tx.input(inIndex, op)
	if err != nil {
		return err
	}
	in.Valid = false
	if err := tx.verifyInput(inIndex, in); err != nil {
		return errs.New(errs.ErrInvalidScript, op, err).WithInput(inIndex)
	}
	in.Valid = true
	return nil
}

func (tx *Transaction) verifyInput(inIndex int, in *TxInput) error {
	locking := in.LockingScript
	if len(locking) == 0 {
		locking = in.lockingScript()
	}
	if len(locking) == 0 {
		return ErrMissingLockingScript
	}
	isP2SH := address.GetScriptType(locking) == address.P2ShScript
	if isP2SH && !script.IsPushOnly(in.Script) {
		return ErrScriptSigNotPushOnly
	}

	engine := script.NewEngine(&sigChecker{tx, inIndex, in.Value, false}, script.StrictLowS)
	stack := script.NewStack()
	if err := engine.Execute(in.Script, stack); err != nil {
		return err
	}
	unlocked := stack.Items()
	if err := engine.Execute(locking, stack); err != nil {
		return err
	}
	if !script.Success(stack) || !engine.AllSigsValid() {
		return script.ErrEvalFalse
	}

	program := locking
	nested := false
	if isP2SH {
		if len(unlocked) == 0 {
			return script.ErrEvalFalse
		}
		redeem := unlocked[len(unlocked)-1]
		switch address.GetScriptType(redeem) {
		case address.P2WpkhScript, address.P2WshScript, address.P2TRScript:
			program, nested = redeem, true
		default:
			stack = script.NewStack(unlocked[:len(unlocked)-1]...)
			if err := engine.Execute(redeem, stack); err != nil {
				return err
			}
			if !script.Success(stack) || !engine.AllSigsValid() {
				return script.ErrEvalFalse
			}
			if stack.Depth() != 1 {
				return ErrCleanStack
			}
			return nil
		}
	}

	switch address.GetScriptType(program) {
	case address.P2WpkhScript, address.P2WshScript:
		if !nested && len(in.Script) > 0 {
			return ErrScriptSigNotEmpty
		}
		return tx.verifyWitnessV0(inIndex, in, program[2:])
	case address.P2TRScript:
		return ErrTaprootVerification
	}
	if stack.Depth() != 1 {
		return ErrCleanStack
	}
	return nil
}

func (tx *Transaction) verifyWitnessV0(inIndex int, in *TxInput, program []byte) error {
	if len(in.Witness) == 0 {
		return script.ErrEvalFalse
	}

	var (
		witnessScript []byte
		items         [][]byte
	)
	if len(program) == 20 {
		if len(in.Witness) != 2 {
			return ErrWitnessProgramMismatch
		}
		witnessScript = script.P2PKHScript(program)
		items = in.Witness
	} else {
		last := len(in.Witness) - 1
		witnessScript = in.Witness[last]
		if !bytes.Equal(encoding.SHA256(witnessScript), program) {
			return ErrWitnessProgramMismatch
		}
		items = in.Witness[:last]
	}

	engine := script.NewEngine(&sigChecker{tx, inIndex, in.Value, true}, script.StrictLowS)
	stack := script.NewStack(cloneVector(items)...)
	if err := engine.Execute(witnessScript, stack); err != nil {
		return err
	}
	if stack.Depth() != 1 || !script.Success(stack) || !engine.AllSigsValid() {
		return script.ErrEvalFalse
	}
	return nil
}

// lockingScript rebuilds the script spent by an input from its keys and
// scripts.
func (in *TxInput) lockingScript() []byte {
	switch t := in.inferType(); t {
	case InputP2PKH, InputP2PK, InputP2WPKH, InputP2SHP2WPKH:
		if len(in.Keys) == 0 {
			return nil
		}
		in.Type = t
		return lockingScriptFor(t, in.pubKeys()[0])
	case InputP2SHMultisig:
		if len(in.RedeemScript) == 0 {
			return nil
		}
		return script.P2SHScript(encoding.Hash160(in.RedeemScript))
	case InputP2WSH:
		if len(in.WitnessScript) == 0 {
			return nil
		}
		return script.WitnessProgram(0, encoding.SHA256(in.WitnessScript))
	case InputP2SHP2WSH:
		if len(in.WitnessScript) == 0 {
			return nil
		}
		program := script.WitnessProgram(0, encoding.SHA256(in.WitnessScript))
		return script.P2SHScript(encoding.Hash160(program))
	}
	return nil
}
