package encoding

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Base58Encode encodes b with the Bitcoin Base58 alphabet.
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// Base58Decode decodes a Base58 string.
func Base58Decode(s string) ([]byte, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 && len(s) > 0 {
		return nil, ErrInvalidCharacter
	}
	return decoded, nil
}

// Base58CheckEncode appends the 4-byte double-SHA256 checksum of payload and
// encodes the result in Base58.
func Base58CheckEncode(payload []byte) string {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, payload...)
	buf = append(buf, checksum(payload)...)
	return base58.Encode(buf)
}

// Base58CheckDecode decodes s and strips and verifies its checksum.
func Base58CheckDecode(s string) ([]byte, error) {
	decoded, err := Base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(decoded) < 4 {
		return nil, ErrChecksumMismatch
	}
	payload := decoded[:len(decoded)-4]
	if !bytes.Equal(checksum(payload), decoded[len(decoded)-4:]) {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

// IsBase58 reports whether every character of s belongs to the Base58 alphabet.
func IsBase58(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !bytes.ContainsRune([]byte(base58Alphabet), rune(s[i])) {
			return false
		}
	}
	return true
}

func checksum(payload []byte) []byte {
	return chainhash.DoubleHashB(payload)[:4]
}
