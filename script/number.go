package script

import (
	"errors"
	"fmt"
)

var (
	// ErrNumberTooBig is returned when a number operand exceeds its size.
	ErrNumberTooBig = errors.New("script number too big")
	// ErrMinimalData is returned for a number not minimally encoded.
	ErrMinimalData = errors.New("script number not minimally encoded")
)

// DefaultNumLen is the operand size limit of arithmetic opcodes.
const DefaultNumLen = 4

// EncodeNum encodes n as a script number: little-endian magnitude with the
// sign in the top bit of the last byte. Zero is the empty string.
func EncodeNum(n int64) []byte {
	if n == 0 {
		return []byte{}
	}
	neg := n < 0
	abs := uint64(n)
	if neg {
		abs = uint64(-n)
	}
	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}
	if out[len(out)-1]&0x80 != 0 {
		extra := byte(0x00)
		if neg {
			extra = 0x80
		}
		out = append(out, extra)
	} else if neg {
		out[len(out)-1] |= 0x80
	}
	return out
}

// DecodeNum decodes a script number of at most maxLen bytes. With minimal
// set, encodings carrying a superfluous trailing byte are rejected.
func DecodeNum(b []byte, maxLen int, minimal bool) (int64, error) {
	if len(b) > maxLen {
		return 0, fmt.Errorf("%w: %d bytes, max %d", ErrNumberTooBig, len(b), maxLen)
	}
	if len(b) == 0 {
		return 0, nil
	}
	if minimal && b[len(b)-1]&0x7f == 0 {
		if len(b) == 1 || b[len(b)-2]&0x80 == 0 {
			return 0, ErrMinimalData
		}
	}
	var n int64
	for i, v := range b {
		n |= int64(v) << uint(8*i)
	}
	if b[len(b)-1]&0x80 != 0 {
		n &^= int64(0x80) << uint(8*(len(b)-1))
		return -n, nil
	}
	return n, nil
}

// IsTrue reports script truthiness: any non-zero byte other than a
// trailing negative-zero sign bit.
func IsTrue(b []byte) bool {
	for i, v := range b {
		if v != 0 {
			if i == len(b)-1 && v == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}

func boolBytes(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{}
}
