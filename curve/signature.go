package curve

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

var (
	// ErrInvalidDER is returned for signatures that are not strict DER.
	ErrInvalidDER = errors.New("malformed DER signature")
	// ErrInvalidCompact is returned for compact signatures of the wrong size.
	ErrInvalidCompact = errors.New("malformed compact signature")
	// ErrHighS is returned by strict checks for signatures with s > n/2.
	ErrHighS = errors.New("signature s value is not low")
)

// Signature is an ECDSA signature.
type Signature struct {
	R, S *big.Int
}

// Sign produces a deterministic (RFC 6979) low-S signature of hash.
func Sign(hash []byte, priv *btcec.PrivateKey) *Signature {
	sig := ecdsa.Sign(priv, hash)
	// btcec always serializes canonical DER
	parsed, _ := ParseDER(sig.Serialize())
	return parsed
}

// Verify checks sig over hash against pub. High-S signatures are accepted.
func Verify(hash []byte, sig *Signature, pub *btcec.PublicKey) bool {
	if sig == nil || pub == nil {
		return false
	}
	s, ok := sig.toBtcec()
	if !ok {
		return false
	}
	return s.Verify(hash, pub)
}

// VerifyStrict is Verify rejecting high-S signatures.
func VerifyStrict(hash []byte, sig *Signature, pub *btcec.PublicKey) bool {
	if sig == nil || !sig.IsLowS() {
		return false
	}
	return Verify(hash, sig, pub)
}

// IsLowS reports whether s <= n/2.
func (sig *Signature) IsLowS() bool {
	return sig.S.Cmp(HalfN) <= 0
}

// Normalize replaces a high s with n - s.
func (sig *Signature) Normalize() {
	if !sig.IsLowS() {
		sig.S = new(big.Int).Sub(N, sig.S)
	}
}

// DER returns the strict DER encoding of sig.
func (sig *Signature) DER() []byte {
	r := derInt(sig.R)
	s := derInt(sig.S)
	out := make([]byte, 0, 6+len(r)+len(s))
	out = append(out, 0x30, byte(4+len(r)+len(s)))
	out = append(out, 0x02, byte(len(r)))
	out = append(out, r...)
	out = append(out, 0x02, byte(len(s)))
	out = append(out, s...)
	return out
}

// Bytes returns the DER encoding followed by the sighash type byte, the
// form signatures take inside scripts and witnesses.
func (sig *Signature) Bytes(hashType byte) []byte {
	return append(sig.DER(), hashType)
}

// Compact returns the 64-byte r‖s encoding.
func (sig *Signature) Compact() []byte {
	out := make([]byte, 64)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:])
	return out
}

// ParseCompact decodes a 64-byte r‖s signature.
func ParseCompact(b []byte) (*Signature, error) {
	if len(b) != 64 {
		return nil, ErrInvalidCompact
	}
	sig := &Signature{
		R: new(big.Int).SetBytes(b[:32]),
		S: new(big.Int).SetBytes(b[32:]),
	}
	if !inRange(sig.R) || !inRange(sig.S) {
		return nil, ErrInvalidCompact
	}
	return sig, nil
}

// ParseDER decodes a strict DER signature (BIP-66 rules).
func ParseDER(b []byte) (*Signature, error) {
	if len(b) < 8 || len(b) > 72 {
		return nil, ErrInvalidDER
	}
	if b[0] != 0x30 || int(b[1]) != len(b)-2 {
		return nil, ErrInvalidDER
	}
	rLen := int(b[3])
	if b[2] != 0x02 || rLen == 0 || 5+rLen >= len(b) {
		return nil, ErrInvalidDER
	}
	sLen := int(b[5+rLen])
	if b[4+rLen] != 0x02 || sLen == 0 || rLen+sLen+6 != len(b) {
		return nil, ErrInvalidDER
	}
	rb := b[4 : 4+rLen]
	sb := b[6+rLen:]
	if !canonicalInt(rb) || !canonicalInt(sb) {
		return nil, ErrInvalidDER
	}
	sig := &Signature{R: new(big.Int).SetBytes(rb), S: new(big.Int).SetBytes(sb)}
	if !inRange(sig.R) || !inRange(sig.S) {
		return nil, ErrInvalidDER
	}
	return sig, nil
}

// SplitSigHashType separates a script signature into its DER part and
// sighash type.
func SplitSigHashType(b []byte) ([]byte, byte, error) {
	if len(b) < 9 {
		return nil, 0, ErrInvalidDER
	}
	return b[:len(b)-1], b[len(b)-1], nil
}

// IsDERSignature reports whether b looks like a script signature: strict
// DER followed by one sighash type byte.
func IsDERSignature(b []byte) bool {
	der, _, err := SplitSigHashType(b)
	if err != nil {
		return false
	}
	_, err = ParseDER(der)
	return err == nil
}

func (sig *Signature) toBtcec() (*ecdsa.Signature, bool) {
	if !inRange(sig.R) || !inRange(sig.S) {
		return nil, false
	}
	var r, s btcec.ModNScalar
	r.SetByteSlice(sig.R.Bytes())
	s.SetByteSlice(sig.S.Bytes())
	return ecdsa.NewSignature(&r, &s), true
}

func inRange(v *big.Int) bool {
	return v.Sign() > 0 && v.Cmp(N) < 0
}

func derInt(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	if b[0]&0x80 != 0 {
		return append([]byte{0}, b...)
	}
	return b
}

func canonicalInt(b []byte) bool {
	if b[0]&0x80 != 0 {
		return false
	}
	if len(b) > 1 && b[0] == 0 && b[1]&0x80 == 0 {
		return false
	}
	return true
}
