package transaction

import (
	"bytes"
	"errors"
	"sort"

	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/script"
)

// InputType is the way an input unlocks the output it spends.
type InputType string

const (
	InputUnknown      InputType = "unknown"
	InputP2PK         InputType = "signature"
	InputP2PKH        InputType = "sig_pubkey"
	InputP2SHMultisig InputType = "p2sh_multisig"
	InputP2WPKH       InputType = "p2wpkh"
	InputP2WSH        InputType = "p2wsh"
	InputP2SHP2WPKH   InputType = "p2sh_p2wpkh"
	InputP2SHP2WSH    InputType = "p2sh_p2wsh"
	InputP2TR         InputType = "p2tr"
)

var (
	// ErrUnknownInputType is returned for inputs whose spending method
	// cannot be told from their metadata.
	ErrUnknownInputType = errors.New("unknown input type")
	// ErrMissingKeys is returned for multisig inputs with no key set.
	ErrMissingKeys = errors.New("input has no public keys")
)

// IsSegwit reports whether the input is signed with BIP-143.
func (t InputType) IsSegwit() bool {
	switch t {
	case InputP2WPKH, InputP2WSH, InputP2SHP2WPKH, InputP2SHP2WSH, InputP2TR:
		return true
	}
	return false
}

// IsMultisig reports whether the input spends an m-of-n script.
func (t InputType) IsMultisig() bool {
	switch t {
	case InputP2SHMultisig, InputP2WSH, InputP2SHP2WSH:
		return true
	}
	return false
}

// InputTypeFor returns the input type spending an output of the given
// address script type, single key or multisig.
func InputTypeFor(scriptType string, multisig, nested bool) InputType {
	switch scriptType {
	case address.P2PKH:
		return InputP2PKH
	case address.P2WPKH:
		if nested {
			return InputP2SHP2WPKH
		}
		return InputP2WPKH
	case address.P2WSH:
		if nested {
			return InputP2SHP2WSH
		}
		return InputP2WSH
	case address.P2SH:
		if multisig {
			return InputP2SHMultisig
		}
		return InputP2SHP2WPKH
	case address.P2TR:
		return InputP2TR
	case "p2pk":
		return InputP2PK
	}
	return InputUnknown
}

// inferType resolves the input type from the locking script and scripts
// attached to the input.
func (in *TxInput) inferType() InputType {
	if in.Type != "" && in.Type != InputUnknown {
		return in.Type
	}
	switch address.GetScriptType(in.LockingScript) {
	case address.P2PkhScript:
		return InputP2PKH
	case address.P2PkScript:
		return InputP2PK
	case address.P2WpkhScript:
		return InputP2WPKH
	case address.P2WshScript:
		return InputP2WSH
	case address.P2TRScript:
		return InputP2TR
	case address.P2ShScript:
		switch {
		case len(in.WitnessScript) > 0:
			return InputP2SHP2WSH
		case len(in.RedeemScript) > 0:
			if address.GetScriptType(in.RedeemScript) == address.P2WpkhScript {
				return InputP2SHP2WPKH
			}
			return InputP2SHMultisig
		case len(in.Keys) > 1:
			return InputP2SHMultisig
		}
		return InputP2SHP2WPKH
	}
	if len(in.WitnessScript) > 0 {
		return InputP2WSH
	}
	if len(in.RedeemScript) > 0 {
		return InputP2SHMultisig
	}
	return InputUnknown
}

// pubKeys returns the serialized keys of the input, in script order.
func (in *TxInput) pubKeys() [][]byte {
	out := make([][]byte, 0, len(in.Keys))
	for _, k := range in.Keys {
		if in.Type.IsMultisig() || in.Type.IsSegwit() {
			out = append(out, k.PublicCompressed())
			continue
		}
		out = append(out, k.PublicBytes())
	}
	if in.Type.IsMultisig() && in.SortKeys {
		sort.Slice(out, func(i, j int) bool {
			return bytes.Compare(out[i], out[j]) < 0
		})
	}
	return out
}

// multisigScript returns the m-of-n script of the input, building it from
// its keys when not attached.
func (in *TxInput) multisigScript() ([]byte, error) {
	switch in.Type {
	case InputP2SHMultisig:
		if len(in.RedeemScript) > 0 {
			return in.RedeemScript, nil
		}
	case InputP2WSH, InputP2SHP2WSH:
		if len(in.WitnessScript) > 0 {
			return in.WitnessScript, nil
		}
	}
	pubs := in.pubKeys()
	if len(pubs) == 0 {
		return nil, ErrMissingKeys
	}
	m := in.SigsRequired
	if m == 0 {
		m = len(pubs)
	}
	return script.MultisigScript(m, pubs)
}

// loadMultisigScript attaches the m-of-n script and the key order it
// defines to the input.
func (in *TxInput) loadMultisigScript() ([]byte, [][]byte, error) {
	ms, err := in.multisigScript()
	if err != nil {
		return nil, nil, err
	}
	details, err := address.ExtractScriptDetails(ms)
	if err != nil || details.Class != address.P2MultiSigScript {
		return nil, nil, ErrUnknownInputType
	}
	switch in.Type {
	case InputP2SHMultisig:
		in.RedeemScript = ms
	default:
		in.WitnessScript = ms
		if in.Type == InputP2SHP2WSH {
			in.RedeemScript = script.WitnessProgram(0, encoding.SHA256(ms))
		}
	}
	in.SigsRequired = details.RequiredSignatures
	return ms, details.Data, nil
}

// lockingScriptFor returns the script of the output an input of type t
// spends, for a single key.
func lockingScriptFor(t InputType, pub []byte) []byte {
	hash := encoding.Hash160(pub)
	switch t {
	case InputP2PKH:
		return script.P2PKHScript(hash)
	case InputP2PK:
		return append(script.PushData(pub), script.OP_CHECKSIG)
	case InputP2WPKH:
		return script.WitnessProgram(0, hash)
	case InputP2SHP2WPKH:
		return script.P2SHScript(encoding.Hash160(script.WitnessProgram(0, hash)))
	}
	return nil
}

// matchSingleKey reports whether key can sign a single-key input.
func (in *TxInput) matchSingleKey(k *keys.Key) bool {
	if len(in.Keys) > 0 {
		for _, own := range in.Keys {
			if bytes.Equal(own.PublicCompressed(), k.PublicCompressed()) {
				return true
			}
		}
		return false
	}
	if len(in.LockingScript) == 0 {
		return false
	}
	pub := k.PublicBytes()
	if in.Type.IsSegwit() {
		pub = k.PublicCompressed()
	}
	return bytes.Equal(lockingScriptFor(in.Type, pub), in.LockingScript)
}
