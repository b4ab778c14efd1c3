package payment

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/network"
)

const (
	segwitVersion = byte(0x01)
)

// ErrTaprootDataIsNil is returned by taproot getters of non-taproot payments.
var ErrTaprootDataIsNil = errors.New("taproot payment data is required to derive taproot addresses")

// TaprootPaymentData is included in Payment struct to store Taproot-related data
type TaprootPaymentData struct {
	XOnlyTweakedKey    []byte
	XOnlyInternalKey   []byte
	RootScriptTreeHash *chainhash.Hash
	ScriptTree         *txscript.IndexedTapScriptTree
}

// FromTweakedKey creates a P2TR payment from a tweaked output key
func FromTweakedKey(
	tweakedKey *btcec.PublicKey,
	net *network.Network,
) (*Payment, error) {
	if tweakedKey == nil {
		return nil, errors.New("tweaked key can't be empty or nil")
	}

	return &Payment{
		Network:    defaultNetwork(net),
		ScriptType: address.P2TR,
		Taproot: &TaprootPaymentData{
			XOnlyTweakedKey: schnorr.SerializePubKey(tweakedKey),
		},
	}, nil
}

// FromTaprootInternalKey creates the BIP-86 key-path only payment of an
// internal key.
func FromTaprootInternalKey(
	internalKey *btcec.PublicKey,
	net *network.Network,
) (*Payment, error) {
	if internalKey == nil {
		return nil, errors.New("internal key can't be empty or nil")
	}

	return &Payment{
		Network:    defaultNetwork(net),
		PublicKey:  internalKey,
		ScriptType: address.P2TR,
		Taproot: &TaprootPaymentData{
			XOnlyInternalKey: schnorr.SerializePubKey(internalKey),
		},
	}, nil
}

// FromTaprootScriptTreeHash creates a P2TR payment committing to a script
// tree by its root hash.
func FromTaprootScriptTreeHash(
	internalKey *btcec.PublicKey,
	rootHash *chainhash.Hash,
	net *network.Network,
) (*Payment, error) {
	if internalKey == nil {
		return nil, errors.New("internal key can't be empty or nil")
	}

	return &Payment{
		Network:    defaultNetwork(net),
		ScriptType: address.P2TR,
		Taproot: &TaprootPaymentData{
			XOnlyInternalKey:   schnorr.SerializePubKey(internalKey),
			RootScriptTreeHash: rootHash,
		},
	}, nil
}

// FromTaprootScriptTree creates a P2TR payment committing to tree.
func FromTaprootScriptTree(
	internalKey *btcec.PublicKey,
	tree *txscript.IndexedTapScriptTree,
	net *network.Network,
) (*Payment, error) {
	if internalKey == nil {
		return nil, errors.New("internal key can't be empty or nil")
	}

	return &Payment{
		Network:    defaultNetwork(net),
		ScriptType: address.P2TR,
		Taproot: &TaprootPaymentData{
			XOnlyInternalKey: schnorr.SerializePubKey(internalKey),
			ScriptTree:       tree,
		},
	}, nil
}

func (p *Payment) taprootProgram() ([]byte, error) {
	if p.Taproot == nil {
		return nil, ErrTaprootDataIsNil
	}

	var program []byte
	if p.Taproot.XOnlyTweakedKey != nil {
		program = p.Taproot.XOnlyTweakedKey
	} else if p.Taproot.XOnlyInternalKey != nil {
		internalKey, err := schnorr.ParsePubKey(p.Taproot.XOnlyInternalKey)
		if err != nil {
			return nil, err
		}

		switch {
		case p.Taproot.RootScriptTreeHash != nil:
			program = schnorr.SerializePubKey(txscript.ComputeTaprootOutputKey(
				internalKey, p.Taproot.RootScriptTreeHash.CloneBytes(),
			))
		case p.Taproot.ScriptTree != nil:
			scriptTreeHash := p.Taproot.ScriptTree.RootNode.TapHash()
			program = schnorr.SerializePubKey(txscript.ComputeTaprootOutputKey(
				internalKey, scriptTreeHash.CloneBytes(),
			))
		default:
			program = schnorr.SerializePubKey(txscript.ComputeTaprootKeyNoScript(internalKey))
		}
	}

	if program == nil {
		return nil, errors.New("unable to compute taproot's tweaked key from payment data")
	}
	if len(program) != 32 {
		return nil, errors.New("taproot's tweaked key has wrong length")
	}
	return program, nil
}

// TaprootAddress is a method of the Payment struct to derive a bech32m p2tr address
func (p *Payment) TaprootAddress() (string, error) {
	program, err := p.taprootProgram()
	if err != nil {
		return "", err
	}
	payload := &address.Bech32{
		Prefix:  p.Network.Bech32,
		Version: segwitVersion,
		Data:    program,
	}
	return address.ToBech32(payload)
}
