// Package keys holds single keys, BIP-32 extended keys, derivation paths and
// BIP-38 encrypted keys, all bound to a network.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/curve"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/payment"
)

var (
	// ErrInvalidPrivateKey is returned for scalars outside [1, n-1].
	ErrInvalidPrivateKey = errors.New("private key out of range")
	// ErrInvalidPublicKey is returned for bytes that are not a curve point.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrInvalidWIF is returned for malformed WIF strings.
	ErrInvalidWIF = errors.New("invalid wif")
	// ErrNotPrivate is returned when a private key is needed but the key is
	// public only.
	ErrNotPrivate = errors.New("key has no private part")
)

// Key is a private or public secp256k1 key bound to a network.
type Key struct {
	priv       *btcec.PrivateKey
	pub        *btcec.PublicKey
	Compressed bool
	Network    *network.Network
}

// NewKeyFromPrivate returns the key of a 32-byte private scalar.
func NewKeyFromPrivate(b []byte, compressed bool, net *network.Network) (*Key, error) {
	if len(b) != 32 || !curve.ValidPrivateScalar(b) {
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewKeyFromPrivate", ErrInvalidPrivateKey)
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	return &Key{priv: priv, pub: pub, Compressed: compressed, Network: orDefault(net)}, nil
}

// NewKeyFromHex parses a 64-char hex private key.
func NewKeyFromHex(s string, compressed bool, net *network.Network) (*Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewKeyFromHex", err)
	}
	return NewKeyFromPrivate(b, compressed, net)
}

// NewKeyFromInt returns the key of the private scalar k.
func NewKeyFromInt(k *big.Int, compressed bool, net *network.Network) (*Key, error) {
	if k.Sign() <= 0 || k.Cmp(curve.N) >= 0 {
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewKeyFromInt", ErrInvalidPrivateKey)
	}
	return NewKeyFromPrivate(k.FillBytes(make([]byte, 32)), compressed, net)
}

// NewKeyFromPublic parses a 33-byte compressed or 65-byte uncompressed
// public key.
func NewKeyFromPublic(b []byte, net *network.Network) (*Key, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewKeyFromPublic",
			fmt.Errorf("%w: %v", ErrInvalidPublicKey, err))
	}
	return &Key{pub: pub, Compressed: len(b) == 33, Network: orDefault(net)}, nil
}

// NewKeyFromWIF decodes a WIF private key. The network is resolved from the
// version byte, with hint picking among networks sharing it.
func NewKeyFromWIF(wif string, hint *network.Network) (*Key, error) {
	decoded, err := encoding.Base58CheckDecode(wif)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewKeyFromWIF", err)
	}

	compressed := false
	switch {
	case len(decoded) == 34 && decoded[33] == 0x01:
		compressed = true
	case len(decoded) == 33:
	default:
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewKeyFromWIF", ErrInvalidWIF)
	}

	net, err := network.Pick(network.ByWifPrefix(decoded[0]), hint, network.Bitcoin)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "keys.NewKeyFromWIF", err)
	}
	return NewKeyFromPrivate(decoded[1:33], compressed, net)
}

// GenerateKey returns a random compressed private key.
func GenerateKey(net *network.Network, r io.Reader) (*Key, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, 32)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		if curve.ValidPrivateScalar(b) {
			return NewKeyFromPrivate(b, true, net)
		}
	}
}

// IsPrivate reports whether the key holds its private scalar.
func (k *Key) IsPrivate() bool {
	return k.priv != nil
}

// PrivateKey returns the btcec private key, nil for public keys.
func (k *Key) PrivateKey() *btcec.PrivateKey {
	return k.priv
}

// PublicKey returns the btcec public key.
func (k *Key) PublicKey() *btcec.PublicKey {
	return k.pub
}

// PrivateBytes returns the 32-byte private scalar.
func (k *Key) PrivateBytes() ([]byte, error) {
	if k.priv == nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.PrivateBytes", ErrNotPrivate)
	}
	return k.priv.Serialize(), nil
}

// PrivateHex returns the hex encoded private scalar.
func (k *Key) PrivateHex() (string, error) {
	b, err := k.PrivateBytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// PublicCompressed returns the 33-byte public key.
func (k *Key) PublicCompressed() []byte {
	return k.pub.SerializeCompressed()
}

// PublicUncompressed returns the 65-byte public key.
func (k *Key) PublicUncompressed() []byte {
	return k.pub.SerializeUncompressed()
}

// PublicBytes returns the public key in the key's own compression.
func (k *Key) PublicBytes() []byte {
	if k.Compressed {
		return k.PublicCompressed()
	}
	return k.PublicUncompressed()
}

// PublicHex returns the hex of PublicBytes.
func (k *Key) PublicHex() string {
	return hex.EncodeToString(k.PublicBytes())
}

// Hash160 returns the hash160 of PublicBytes.
func (k *Key) Hash160() []byte {
	return encoding.Hash160(k.PublicBytes())
}

// WIF encodes the private key with the network's WIF version.
func (k *Key) WIF() (string, error) {
	b, err := k.PrivateBytes()
	if err != nil {
		return "", err
	}
	payload := append([]byte{k.Network.Wif}, b...)
	if k.Compressed {
		payload = append(payload, 0x01)
	}
	return encoding.Base58CheckEncode(payload), nil
}

// Public returns a copy of the key without its private part.
func (k *Key) Public() *Key {
	return &Key{pub: k.pub, Compressed: k.Compressed, Network: k.Network}
}

// Sign returns the low-S RFC 6979 signature of hash.
func (k *Key) Sign(hash []byte) (*curve.Signature, error) {
	if k.priv == nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.Sign", ErrNotPrivate)
	}
	return curve.Sign(hash, k.priv), nil
}

// Verify checks sig over hash against the key.
func (k *Key) Verify(hash []byte, sig *curve.Signature) bool {
	return curve.Verify(hash, sig, k.pub)
}

// Payment returns the payment the key pays to for the given witness type.
func (k *Key) Payment(witnessType network.WitnessType) (*payment.Payment, error) {
	return payment.ForWitnessType(k.pub, witnessType, k.Network)
}

// Address returns the address of the key for the given witness type.
// Uncompressed keys only have a legacy address.
func (k *Key) Address(witnessType network.WitnessType) (*address.Address, error) {
	if !k.Compressed {
		if witnessType != network.Legacy {
			return nil, errs.Newf(errs.ErrInvalidKey, "keys.Address",
				"uncompressed keys can't be used with witness type %s", witnessType)
		}
		return address.FromHash(k.Hash160(), address.P2PKH, k.Network)
	}
	p, err := k.Payment(witnessType)
	if err != nil {
		return nil, err
	}
	return p.Address()
}

// Equal reports whether both keys share the same public point.
func (k *Key) Equal(o *Key) bool {
	return o != nil && k.pub.IsEqual(o.pub)
}

func orDefault(net *network.Network) *network.Network {
	if net == nil {
		return network.Bitcoin
	}
	return net
}
