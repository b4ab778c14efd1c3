package transaction

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/script"
)

// ErrTaprootSigning is returned for inputs spending taproot outputs, which
// need schnorr signatures.
var ErrTaprootSigning = errors.New("taproot inputs can't be signed")

// Sign signs every input with the signers holding one of its keys. A
// failure on one input does not stop the others: the failing input keeps
// the signatures it had and the joined per-input errors are returned.
func (tx *Transaction) Sign(signers []*keys.Key, hashType txscript.SigHashType) error {
	var failures []error
	for i := range tx.Inputs {
		if _, err := tx.SignInput(i, signers, hashType); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// SignInput signs input inIndex with every private key among signers that
// the input can be unlocked with, and rebuilds its unlocking script and
// witness. Signatures already present are kept, one per public key, in the
// order of the keys in the script. It returns the number of signatures
// added.
func (tx *Transaction) SignInput(
	inIndex int,
	signers []*keys.Key,
	hashType txscript.SigHashType,
) (int, error) {
	const op = "transaction.SignInput"

	in, err := tx.input(inIndex, op)
	if err != nil {
		return 0, err
	}
	in.Type = in.inferType()

	var (
		subscript []byte
		order     [][]byte
	)
	switch in.Type {
	case InputP2PKH, InputP2PK, InputP2WPKH, InputP2SHP2WPKH:
		for _, k := range signers {
			if len(in.Keys) == 0 && k.IsPrivate() && in.matchSingleKey(k) {
				in.Keys = []*keys.Key{k.Public()}
			}
		}
		if len(in.Keys) == 0 {
			return 0, nil
		}
		order = in.pubKeys()[:1]
		subscript = singleKeySubscript(in, order[0])
	case InputP2SHMultisig, InputP2WSH, InputP2SHP2WSH:
		if subscript, order, err = in.loadMultisigScript(); err != nil {
			return 0, errs.New(errs.ErrInvalidScript, op, err).WithInput(inIndex)
		}
	case InputP2TR:
		return 0, errs.New(errs.ErrInvalidTransaction, op, ErrTaprootSigning).WithInput(inIndex)
	default:
		return 0, errs.New(errs.ErrInvalidTransaction, op, ErrUnknownInputType).WithInput(inIndex)
	}

	var hash [32]byte
	if in.Type.IsSegwit() {
		hash, err = tx.HashForWitnessV0(inIndex, subscript, in.Value, hashType)
	} else {
		hash, err = tx.HashForSignature(inIndex, subscript, hashType)
	}
	if err != nil {
		return 0, err
	}

	added := 0
	for _, k := range signers {
		if !k.IsPrivate() {
			continue
		}
		pub := matchKey(order, k)
		if pub == nil || in.hasSignatureFor(pub) {
			continue
		}
		sig, err := k.Sign(hash[:])
		if err != nil {
			return added, errs.New(errs.ErrInvalidKey, op, err).WithInput(inIndex)
		}
		in.Signatures = append(in.Signatures, Signature{
			PubKey: pub,
			Sig:    sig.Bytes(byte(hashType)),
		})
		added++
	}

	in.sortSignatures(order)
	if err := in.buildUnlocking(order); err != nil {
		return added, errs.New(errs.ErrInvalidScript, op, err).WithInput(inIndex)
	}
	if added > 0 {
		tx.Verified = false
	}
	return added, nil
}

// AddSignature attaches a signature produced elsewhere, a cosigner's for
// instance, to input inIndex and rebuilds its unlocking data.
func (tx *Transaction) AddSignature(inIndex int, sig Signature) error {
	const op = "transaction.AddSignature"

	in, err := tx.input(inIndex, op)
	if err != nil {
		return err
	}
	in.Type = in.inferType()

	var order [][]byte
	if in.Type.IsMultisig() {
		if _, order, err = in.loadMultisigScript(); err != nil {
			return errs.New(errs.ErrInvalidScript, op, err).WithInput(inIndex)
		}
	} else {
		order = in.pubKeys()
	}
	if matchBytes(order, sig.PubKey) == nil {
		return errs.Newf(errs.ErrInvalidKey, op,
			"public key %x does not belong to input", sig.PubKey).WithInput(inIndex)
	}
	if !in.hasSignatureFor(sig.PubKey) {
		in.Signatures = append(in.Signatures, sig)
	}
	in.sortSignatures(order)
	if err := in.buildUnlocking(order); err != nil {
		return errs.New(errs.ErrInvalidScript, op, err).WithInput(inIndex)
	}
	tx.Verified = false
	return nil
}

// ClearSignatures drops the signatures and unlocking data of every input.
func (tx *Transaction) ClearSignatures() {
	for _, in := range tx.Inputs {
		in.Signatures = nil
		in.Script = []byte{}
		in.Witness = nil
		in.Valid = false
	}
	tx.Verified = false
}

func singleKeySubscript(in *TxInput, pub []byte) []byte {
	switch in.Type {
	case InputP2PKH:
		if len(in.LockingScript) > 0 {
			return in.LockingScript
		}
		return script.P2PKHScript(encoding.Hash160(pub))
	case InputP2PK:
		if len(in.LockingScript) > 0 {
			return in.LockingScript
		}
		return lockingScriptFor(InputP2PK, pub)
	}
	// BIP-143 scriptCode of witness pubkey hash programs
	return script.P2PKHScript(encoding.Hash160(pub))
}

// matchKey returns the serialization of k's public key found in order.
func matchKey(order [][]byte, k *keys.Key) []byte {
	if pub := matchBytes(order, k.PublicCompressed()); pub != nil {
		return pub
	}
	return matchBytes(order, k.PublicUncompressed())
}

func matchBytes(order [][]byte, pub []byte) []byte {
	for _, p := range order {
		if bytes.Equal(p, pub) {
			return p
		}
	}
	return nil
}

func (in *TxInput) hasSignatureFor(pub []byte) bool {
	for _, s := range in.Signatures {
		if bytes.Equal(s.PubKey, pub) {
			return true
		}
	}
	return false
}

// sortSignatures orders signatures like the keys they belong to and drops
// those of unknown keys.
func (in *TxInput) sortSignatures(order [][]byte) {
	sorted := make([]Signature, 0, len(in.Signatures))
	for _, pub := range order {
		for _, s := range in.Signatures {
			if bytes.Equal(s.PubKey, pub) {
				sorted = append(sorted, s)
				break
			}
		}
	}
	in.Signatures = sorted
}

// buildUnlocking places the input signatures in its script and witness.
func (in *TxInput) buildUnlocking(order [][]byte) error {
	if len(in.Signatures) == 0 {
		return nil
	}
	sigs := make([][]byte, 0, len(in.Signatures))
	for _, s := range in.Signatures {
		sigs = append(sigs, s.Sig)
	}

	switch in.Type {
	case InputP2PK:
		in.Script = script.PushData(sigs[0])
		in.Witness = nil

	case InputP2PKH:
		in.Script = append(script.PushData(sigs[0]), script.PushData(order[0])...)
		in.Witness = nil

	case InputP2WPKH, InputP2SHP2WPKH:
		in.Script = []byte{}
		in.Witness = [][]byte{sigs[0], order[0]}
		if in.Type == InputP2SHP2WPKH {
			in.RedeemScript = script.WitnessProgram(0, encoding.Hash160(order[0]))
			in.Script = script.PushData(in.RedeemScript)
		}

	case InputP2SHMultisig:
		if len(sigs) > in.SigsRequired {
			sigs = sigs[:in.SigsRequired]
		}
		unlocking := []byte{script.OP_0}
		for _, sig := range sigs {
			unlocking = append(unlocking, script.PushData(sig)...)
		}
		in.Script = append(unlocking, script.PushData(in.RedeemScript)...)
		in.Witness = nil

	case InputP2WSH, InputP2SHP2WSH:
		if len(sigs) > in.SigsRequired {
			sigs = sigs[:in.SigsRequired]
		}
		witness := [][]byte{{}}
		witness = append(witness, sigs...)
		in.Witness = append(witness, in.WitnessScript)
		in.Script = []byte{}
		if in.Type == InputP2SHP2WSH {
			in.Script = script.PushData(in.RedeemScript)
		}

	default:
		return ErrUnknownInputType
	}
	return nil
}
