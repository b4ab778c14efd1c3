package payment

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
)

var (
	// ErrEmptyScript is returned when a payment is built over no script.
	ErrEmptyScript = errors.New("payment's script can't be empty or nil")
	// ErrEmptyHash is returned by address getters of payments with no hash.
	ErrEmptyHash = errors.New("payment's hash can't be empty or nil")
	// ErrInvalidMultisig is returned for impossible m-of-n combinations.
	ErrInvalidMultisig = errors.New("invalid multisig parameters")
)

// Payment defines the structure that holds the information different addresses
type Payment struct {
	Hash          []byte
	WitnessHash   []byte
	Script        []byte
	WitnessScript []byte
	Redeem        *Payment
	PublicKey     *btcec.PublicKey
	Network       *network.Network
	Taproot       *TaprootPaymentData
	// ScriptType selects which of the payment's scripts is its output.
	ScriptType string
}

// FromPublicKey creates a Payment struct from a btcec.publicKey
func FromPublicKey(
	pubkey *btcec.PublicKey,
	net *network.Network,
) *Payment {
	publicKeyBytes := pubkey.SerializeCompressed()
	pkHash := encoding.Hash160(publicKeyBytes)
	script := buildScript(pkHash, address.P2PKH)
	witnessScript := buildScript(pkHash, address.P2WPKH)

	return &Payment{
		Hash:          pkHash,
		WitnessHash:   pkHash,
		Script:        script,
		WitnessScript: witnessScript,
		Network:       defaultNetwork(net),
		PublicKey:     pubkey,
		ScriptType:    address.P2PKH,
	}
}

// FromPublicKeys creates a bare multi-signature Payment struct from list of
// public key's, to be wrapped with FromPayment. Keys are ordered
// lexicographically when sortKeys is set.
func FromPublicKeys(
	pubkeys []*btcec.PublicKey,
	nrequired int,
	net *network.Network,
	sortKeys bool,
) (*Payment, error) {
	multiSigScript, err := MultisigScript(pubkeys, nrequired, sortKeys)
	if err != nil {
		return nil, err
	}

	return FromScript(multiSigScript, net)
}

// MultisigScript returns the bare m-of-n OP_CHECKMULTISIG script over the
// compressed keys.
func MultisigScript(
	pubkeys []*btcec.PublicKey,
	nrequired int,
	sortKeys bool,
) ([]byte, error) {
	if nrequired < 1 || len(pubkeys) < nrequired || len(pubkeys) > 16 {
		return nil, errs.New(errs.ErrConfig, "payment.MultisigScript", fmt.Errorf(
			"%w: unable to generate multisig script with %d required "+
				"signatures when there are %d public keys available",
			ErrInvalidMultisig, nrequired, len(pubkeys),
		))
	}

	serialized := make([][]byte, 0, len(pubkeys))
	for _, key := range pubkeys {
		serialized = append(serialized, key.SerializeCompressed())
	}
	if sortKeys {
		sort.Slice(serialized, func(i, j int) bool {
			return bytes.Compare(serialized[i], serialized[j]) < 0
		})
	}

	builder := txscript.NewScriptBuilder().AddInt64(int64(nrequired))
	for _, key := range serialized {
		builder.AddData(key)
	}
	builder.AddInt64(int64(len(pubkeys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	return builder.Script()
}

// FromPayment creates a Payment struct from a another Payment
func FromPayment(payment *Payment) (*Payment, error) {
	if len(payment.Script) == 0 && len(payment.WitnessScript) == 0 {
		return nil, ErrEmptyScript
	}

	redeem := payment.copy()
	// the only case where the witnessScript is null is when wrapping multisig
	scriptToHash := redeem.Script
	if len(redeem.WitnessScript) > 0 {
		scriptToHash = redeem.WitnessScript
	}
	scriptHash := encoding.Hash160(scriptToHash)
	witnessScriptHash := sha256.Sum256(scriptToHash)
	script := buildScript(scriptHash, address.P2SH)
	witnessScript := buildScript(witnessScriptHash[:], address.P2WSH)

	return &Payment{
		Hash:          scriptHash,
		WitnessHash:   witnessScriptHash[:],
		Script:        script,
		WitnessScript: witnessScript,
		Redeem:        redeem,
		Network:       redeem.Network,
		ScriptType:    address.P2SH,
	}, nil
}

// FromScript creates parses a script into a Payment struct
func FromScript(
	outputScript []byte,
	net *network.Network,
) (*Payment, error) {
	if len(outputScript) == 0 {
		return nil, ErrEmptyScript
	}

	p := &Payment{Network: defaultNetwork(net), Script: outputScript}
	switch address.GetScriptType(outputScript) {
	case address.P2WpkhScript:
		p.Hash = outputScript[2:]
		p.Script = buildScript(p.Hash, address.P2PKH)
		p.WitnessHash = p.Hash
		p.WitnessScript = outputScript
		p.ScriptType = address.P2WPKH
	case address.P2WshScript:
		p.Script = nil
		p.WitnessHash = outputScript[2:]
		p.WitnessScript = outputScript
		p.ScriptType = address.P2WSH
	case address.P2ShScript:
		p.Hash = outputScript[2 : len(outputScript)-1]
		p.ScriptType = address.P2SH
	case address.P2PkhScript:
		p.Hash = outputScript[3 : len(outputScript)-2]
		p.ScriptType = address.P2PKH
	case address.P2TRScript:
		p.Taproot = &TaprootPaymentData{XOnlyTweakedKey: outputScript[2:]}
		p.ScriptType = address.P2TR
		// multisig and the rest, here we do not calculate the hashes because
		// this payment must be wrapped into another one
	}
	return p, nil
}

// ForWitnessType returns the single-key payment a wallet of the given
// witness type pays to.
func ForWitnessType(
	pubkey *btcec.PublicKey,
	witnessType network.WitnessType,
	net *network.Network,
) (*Payment, error) {
	net = defaultNetwork(net)
	if !net.SupportsWitnessType(witnessType) {
		return nil, errs.Newf(errs.ErrConfig, "payment.ForWitnessType",
			"witness type %s not supported on %s", witnessType, net.Name)
	}

	p := FromPublicKey(pubkey, net)
	switch witnessType {
	case network.Legacy:
		return p, nil
	case network.Segwit:
		p.ScriptType = address.P2WPKH
		return p, nil
	case network.P2SHSegwit:
		return FromPayment(p)
	case network.Taproot:
		return FromTaprootInternalKey(pubkey, net)
	}
	return nil, errs.Newf(errs.ErrConfig, "payment.ForWitnessType",
		"unknown witness type %q", witnessType)
}

// MultisigForWitnessType returns the m-of-n payment a multisig wallet of
// the given witness type pays to: P2SH for legacy, P2WSH for segwit and
// P2SH-wrapped P2WSH for p2sh-segwit.
func MultisigForWitnessType(
	pubkeys []*btcec.PublicKey,
	nrequired int,
	witnessType network.WitnessType,
	net *network.Network,
	sortKeys bool,
) (*Payment, error) {
	net = defaultNetwork(net)
	if !net.SupportsWitnessType(witnessType) {
		return nil, errs.Newf(errs.ErrConfig, "payment.MultisigForWitnessType",
			"witness type %s not supported on %s", witnessType, net.Name)
	}

	redeem, err := FromPublicKeys(pubkeys, nrequired, net, sortKeys)
	if err != nil {
		return nil, err
	}
	p, err := FromPayment(redeem)
	if err != nil {
		return nil, err
	}
	switch witnessType {
	case network.Legacy:
		return p, nil
	case network.Segwit:
		p.ScriptType = address.P2WSH
		return p, nil
	case network.P2SHSegwit:
		return FromPayment(p)
	}
	return nil, errs.Newf(errs.ErrConfig, "payment.MultisigForWitnessType",
		"witness type %s has no multisig form", witnessType)
}

// LockingScript returns the output script of the payment.
func (p *Payment) LockingScript() []byte {
	switch p.ScriptType {
	case address.P2WPKH, address.P2WSH:
		return p.WitnessScript
	case address.P2TR:
		program, err := p.taprootProgram()
		if err != nil {
			return nil
		}
		return buildScript(program, address.P2TR)
	}
	return p.Script
}

// Address returns the address of the payment's output.
func (p *Payment) Address() (*address.Address, error) {
	lockingScript := p.LockingScript()
	if len(lockingScript) == 0 {
		return nil, ErrEmptyScript
	}
	return address.FromScript(lockingScript, p.Network)
}

// RedeemScript returns the script committed to by a P2SH output.
func (p *Payment) RedeemScript() []byte {
	if p.ScriptType != address.P2SH || p.Redeem == nil {
		return nil
	}
	if len(p.Redeem.WitnessScript) > 0 {
		return p.Redeem.WitnessScript
	}
	return p.Redeem.Script
}

// WitnessRedeemScript returns the script committed to by a P2WSH output,
// native or nested in P2SH.
func (p *Payment) WitnessRedeemScript() []byte {
	switch p.ScriptType {
	case address.P2WSH:
		if p.Redeem != nil {
			return p.Redeem.Script
		}
	case address.P2SH:
		if r := p.Redeem; r != nil && r.Redeem != nil {
			return r.Redeem.Script
		}
	}
	return nil
}

// PubKeyHash is a method of the Payment struct to derive a base58 p2pkh address
func (p *Payment) PubKeyHash() (string, error) {
	if len(p.Hash) == 0 {
		return "", ErrEmptyHash
	}
	payload := &address.Base58{Version: p.Network.PubKeyHash, Data: p.Hash}
	return address.ToBase58(payload), nil
}

// ScriptHash is a method of the Payment struct to derive a base58 p2sh address
func (p *Payment) ScriptHash() (string, error) {
	if len(p.Hash) == 0 {
		return "", ErrEmptyHash
	}
	payload := &address.Base58{Version: p.Network.ScriptHash[0], Data: p.Hash}
	return address.ToBase58(payload), nil
}

// WitnessPubKeyHash is a method of the Payment struct to derive a bech32 p2wpkh address
func (p *Payment) WitnessPubKeyHash() (string, error) {
	if len(p.WitnessHash) == 0 {
		return "", ErrEmptyHash
	}
	//Here the Version for wpkh is always 0
	payload := &address.Bech32{Prefix: p.Network.Bech32, Version: 0, Data: p.WitnessHash}
	return address.ToBech32(payload)
}

// WitnessScriptHash is a method of the Payment struct to derive a bech32 p2wsh address
func (p *Payment) WitnessScriptHash() (string, error) {
	if len(p.WitnessHash) == 0 {
		return "", errors.New("payment's witnessHash can't be empty or nil")
	}
	payload := &address.Bech32{Prefix: p.Network.Bech32, Version: 0, Data: p.WitnessHash}
	return address.ToBech32(payload)
}

func (p *Payment) copy() *Payment {
	var redeem *Payment
	var pubkey *btcec.PublicKey
	if p.Redeem != nil {
		redeem = p.Redeem.copy()
	}
	if p.PublicKey != nil {
		pubkey = &btcec.PublicKey{}
		*pubkey = *p.PublicKey
	}
	return &Payment{
		Hash:          p.Hash,
		WitnessHash:   p.WitnessHash,
		Script:        p.Script,
		WitnessScript: p.WitnessScript,
		Redeem:        redeem,
		PublicKey:     pubkey,
		Network:       p.Network,
		Taproot:       p.Taproot,
		ScriptType:    p.ScriptType,
	}
}

func defaultNetwork(net *network.Network) *network.Network {
	if net == nil {
		return network.Bitcoin
	}
	return net
}

// buildScript returns the requested scriptType script with the provided hash
func buildScript(hash []byte, scriptType string) []byte {
	builder := txscript.NewScriptBuilder()

	switch scriptType {
	case address.P2PKH:
		builder.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160)
		builder.AddData(hash)
		builder.AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG)
	case address.P2SH:
		builder.AddOp(txscript.OP_HASH160).AddData(hash).AddOp(txscript.OP_EQUAL)
	case address.P2WPKH, address.P2WSH:
		builder.AddOp(txscript.OP_0).AddData(hash)
	case address.P2TR:
		builder.AddOp(txscript.OP_1).AddData(hash)
	}

	script, _ := builder.Script()
	return script
}
