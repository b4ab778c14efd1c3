package curve

import (
	"bytes"
	"encoding/base64"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const messageMagic = "Bitcoin Signed Message:\n"

// ErrInvalidMessageSignature is returned when a signed message cannot be
// decoded or its signer cannot be recovered.
var ErrInvalidMessageSignature = errors.New("invalid message signature")

// MessageDigest returns double-SHA256("\x18Bitcoin Signed Message:\n" ‖ varstr(message)).
func MessageDigest(message string) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, messageMagic)
	_ = wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// SignMessage signs message and returns the base64 encoded 65-byte
// recoverable signature.
func SignMessage(priv *btcec.PrivateKey, compressed bool, message string) (string, error) {
	sig := ecdsa.SignCompact(priv, MessageDigest(message), compressed)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// RecoverMessageSigner returns the public key that produced signature over
// message, and whether it signed in compressed form.
func RecoverMessageSigner(signature, message string) (*btcec.PublicKey, bool, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, false, ErrInvalidMessageSignature
	}
	return RecoverPublicKey(MessageDigest(message), raw)
}

// RecoverPublicKey returns the key behind a 65-byte compact signature of
// hash, header byte first, and whether it signed in compressed form.
func RecoverPublicKey(hash, sig []byte) (*btcec.PublicKey, bool, error) {
	if len(sig) != 65 {
		return nil, false, ErrInvalidMessageSignature
	}
	pub, compressed, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return nil, false, ErrInvalidMessageSignature
	}
	return pub, compressed, nil
}

// VerifyMessage reports whether signature over message was produced by pub.
func VerifyMessage(pub *btcec.PublicKey, signature, message string) bool {
	recovered, _, err := RecoverMessageSigner(signature, message)
	if err != nil {
		return false
	}
	return recovered.IsEqual(pub)
}
