package address

import (
	"github.com/vulpemventures/go-bitcoin/script"
)

// ScriptClass is an enumeration for the list of standard types of script.
type ScriptClass byte

// Classes of script payment known about in the blockchain.
const (
	NonStandardScript ScriptClass = iota // None of the recognized forms.
	P2PkScript                           // Pay pubkey.
	P2PkhScript                          // Pay pubkey hash.
	P2ShScript                           // Pay to script hash.
	P2WpkhScript                         // Pay witness pubkey hash.
	P2WshScript                          // Pay to witness script hash.
	P2TRScript                           // Pay to taproot output key.
	P2MultiSigScript                     // Multi signature.
	NullDataScript                       // Empty Data-only (provably prunable).
)

// MaxDataCarrierSize is the maximum number of bytes allowed in pushed
// Data to be considered a nulldata transaction
const MaxDataCarrierSize = 80

var classes = map[string]ScriptClass{
	"p2pk":     P2PkScript,
	P2PKH:      P2PkhScript,
	P2SH:       P2ShScript,
	P2WPKH:     P2WpkhScript,
	P2WSH:      P2WshScript,
	P2TR:       P2TRScript,
	"multisig": P2MultiSigScript,
	"nulldata": NullDataScript,
}

func (c ScriptClass) String() string {
	for name, class := range classes {
		if class == c {
			return name
		}
	}
	return "nonstandard"
}

// ScriptDetails is what can be told about a locking script without a
// transaction.
type ScriptDetails struct {
	Class ScriptClass
	// Hashes, witness programs or public keys found in the script.
	Data               [][]byte
	RequiredSignatures int
	NumOfPublicKeys    int
	Script             *script.Script
}

// GetScriptType returns the class of a locking script.
func GetScriptType(lockingScript []byte) ScriptClass {
	details, err := ExtractScriptDetails(lockingScript)
	if err != nil {
		return NonStandardScript
	}
	return details.Class
}

// ExtractScriptDetails returns the type of script, the data identifying its
// payee and the required signatures. Scripts that match more than one
// template, or match one with no address class, are nonstandard.
func ExtractScriptDetails(lockingScript []byte) (*ScriptDetails, error) {
	s, err := script.Parse(lockingScript)
	if err != nil {
		return nil, err
	}
	details := &ScriptDetails{Script: s}
	if len(s.Types) != 1 {
		return details, nil
	}
	class, ok := classes[s.Types[0]]
	if !ok {
		return details, nil
	}

	switch class {
	case P2PkhScript:
		// OP_DUP OP_HASH160 <hash> OP_EQUALVERIFY OP_CHECKSIG
		details.Data = [][]byte{s.Commands[2].Data}
		details.RequiredSignatures = 1
	case P2ShScript, P2WpkhScript, P2WshScript, P2TRScript:
		// OP_HASH160 <hash> OP_EQUAL or OP_n <program>
		details.Data = [][]byte{s.Commands[1].Data}
		details.RequiredSignatures = 1
	case P2PkScript:
		details.Data = [][]byte{s.Commands[0].Data}
		details.RequiredSignatures = 1
		details.NumOfPublicKeys = 1
	case P2MultiSigScript:
		details.Data = s.Keys
		details.RequiredSignatures = s.SigsRequired
		details.NumOfPublicKeys = len(s.Keys)
	case NullDataScript:
		if len(s.Commands) == 2 && len(s.Commands[1].Data) > MaxDataCarrierSize {
			return details, nil
		}
	}
	details.Class = class
	return details, nil
}
