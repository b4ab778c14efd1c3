package encoding

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vulpemventures/go-bitcoin/internal/bufferutil"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// Hash160 calculates the hash ripemd160(sha256(b)).
func Hash160(b []byte) []byte {
	return btcutil.Hash160(b)
}

// DoubleSHA256 calculates sha256(sha256(b)).
func DoubleSHA256(b []byte) []byte {
	return chainhash.DoubleHashB(b)
}

// SHA256 calculates sha256(b).
func SHA256(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// RIPEMD160 calculates ripemd160(b).
func RIPEMD160(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}

// VarInt returns the Bitcoin compact size encoding of n.
func VarInt(n uint64) []byte {
	return bufferutil.VarIntBytes(n)
}

// VarIntSize returns the encoded size of n in bytes.
func VarIntSize(n uint64) int {
	return bufferutil.VarIntSize(n)
}

// VarStr returns b prefixed with its compact size length.
func VarStr(b []byte) []byte {
	return append(VarInt(uint64(len(b))), b...)
}

// DecodeVarInt reads a compact size integer from the start of b and returns
// it with the number of bytes consumed.
func DecodeVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, bufferutil.ErrShortRead
	}
	size := 1
	switch b[0] {
	case 0xfd:
		size = 3
	case 0xfe:
		size = 5
	case 0xff:
		size = 9
	}
	if len(b) < size {
		return 0, 0, bufferutil.ErrShortRead
	}
	r := bufferutil.NewBufferReader(bytes.NewBuffer(b[:size]))
	n, err := r.ReadVarInt()
	if err != nil {
		return 0, 0, err
	}
	return n, size, nil
}
