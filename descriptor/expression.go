package descriptor

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/payment"
)

const (
	// numOfScripts to be generated in case the descriptor is "range"
	numOfScripts = 100
)

// expression is a parsed script expression: a function applied to keys,
// to a nested expression, or to a literal script.
type expression struct {
	fn        string
	keys      []*keyInfo
	threshold int
	inner     *expression
	raw       []byte
}

func (e *expression) isRange() bool {
	if e.inner != nil {
		return e.inner.isRange()
	}
	for _, k := range e.keys {
		if k.extendedKeyInfo != nil && k.extendedKeyInfo.isRange {
			return true
		}
	}
	return false
}

// script returns the script of e at the wildcard index, with the full path
// of its first ranged key.
func (e *expression) script(index uint32) ([]byte, []uint32, error) {
	switch e.fn {
	case "addr", "raw":
		return e.raw, nil, nil
	case "sh", "wsh":
		inner, path, err := e.inner.script(index)
		if err != nil {
			return nil, nil, err
		}
		if e.fn == "sh" {
			if len(inner) > txscript.MaxScriptElementSize {
				return nil, nil, errors.New("redeem script exceeds 520 bytes")
			}
			script, err := txscript.NewScriptBuilder().
				AddOp(txscript.OP_HASH160).
				AddData(btcutil.Hash160(inner)).
				AddOp(txscript.OP_EQUAL).
				Script()
			return script, path, err
		}
		h := sha256.Sum256(inner)
		script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(h[:]).Script()
		return script, path, err
	}

	pubkeys := make([]*keys.Key, 0, len(e.keys))
	var path []uint32
	for _, k := range e.keys {
		pub, p, err := k.pubKeyAt(index)
		if err != nil {
			return nil, nil, err
		}
		if path == nil && k.extendedKeyInfo != nil && k.extendedKeyInfo.isRange {
			path = p
		}
		pubkeys = append(pubkeys, pub)
	}

	switch e.fn {
	case "pk":
		script, err := txscript.NewScriptBuilder().
			AddData(pubkeys[0].PublicBytes()).
			AddOp(txscript.OP_CHECKSIG).
			Script()
		return script, path, err
	case "pkh":
		script, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).
			AddOp(txscript.OP_HASH160).
			AddData(pubkeys[0].Hash160()).
			AddOp(txscript.OP_EQUALVERIFY).
			AddOp(txscript.OP_CHECKSIG).
			Script()
		return script, path, err
	case "wpkh":
		script, err := wpkhScriptFromBytes(pubkeys[0].PublicCompressed())
		return script, path, err
	case "multi", "sortedmulti":
		pubs := make([]*btcec.PublicKey, 0, len(pubkeys))
		for _, k := range pubkeys {
			pubs = append(pubs, k.PublicKey())
		}
		script, err := payment.MultisigScript(pubs, e.threshold, e.fn == "sortedmulti")
		return script, path, err
	case "tr":
		p, err := payment.FromTaprootInternalKey(pubkeys[0].PublicKey(), pubkeys[0].Network)
		if err != nil {
			return nil, nil, err
		}
		return p.LockingScript(), path, nil
	}
	return nil, nil, errors.New("unknown expression: " + e.fn)
}

// pubKeyAt derives the key at the wildcard index and returns it with its
// path from the origin.
func (k *keyInfo) pubKeyAt(index uint32) (*keys.Key, []uint32, error) {
	var path []uint32
	if k.keyOrigin != nil {
		path = append(path, k.keyOrigin.path...)
	}
	if k.extendedKeyInfo == nil {
		return k.key.Key.Public(), path, nil
	}

	derivation := append([]uint32{}, k.extendedKeyInfo.path...)
	if k.extendedKeyInfo.isRange {
		if k.extendedKeyInfo.hardenedRange {
			index += keys.HardenedKeyStart
		}
		derivation = append(derivation, index)
	}
	child, err := k.key.DerivePath(derivation)
	if err != nil {
		return nil, nil, err
	}
	return child.Key.Public(), append(path, derivation...), nil
}

// descriptorWallet is the Wallet of a parsed descriptor.
type descriptorWallet struct {
	expr *expression
	text string
}

func (w *descriptorWallet) Type() string {
	return w.expr.fn
}

func (w *descriptorWallet) IsRange() bool {
	return w.expr.isRange()
}

func (w *descriptorWallet) String() string {
	s, err := AddChecksum(w.text)
	if err != nil {
		return w.text
	}
	return s
}

func (w *descriptorWallet) Script(opts *ScriptOpts) ([]ScriptResponse, error) {
	response := make([]ScriptResponse, 0)

	var (
		numOfScriptsToBeGenerated        = 1
		index                     uint32 = 0
	)

	if w.IsRange() {
		numOfScriptsToBeGenerated = numOfScripts
		if opts != nil {
			if opts.numOfScripts != nil {
				numOfScriptsToBeGenerated = *opts.numOfScripts
			} else if opts.index != nil {
				index = *opts.index
				numOfScriptsToBeGenerated = 1
			}
		}
	}

	for i := 0; i < numOfScriptsToBeGenerated; i++ {
		script, path, err := w.expr.script(index + uint32(i))
		if err != nil {
			return nil, err
		}
		response = append(response, ScriptResponse{
			DerivationPath: path,
			Script:         script,
		})
	}

	return response, nil
}

func wpkhScriptFromBytes(pubKeyBytes []byte) ([]byte, error) {
	pkHash := btcutil.Hash160(pubKeyBytes)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0).AddData(pkHash)

	script, err := builder.Script()
	if err != nil {
		return nil, err
	}

	return script, nil
}
