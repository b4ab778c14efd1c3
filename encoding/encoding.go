// Package encoding implements the textual and binary encodings used across
// the library: arbitrary radix conversion, Base58Check, segwit Bech32 and
// Bech32m, compact size integers and the standard hash compositions.
package encoding

import (
	"errors"
	"math/big"
	"strings"
)

var (
	// ErrInvalidBase is returned when a conversion names an unsupported radix.
	ErrInvalidBase = errors.New("unsupported base")
	// ErrInvalidCharacter is returned when the input contains a symbol outside
	// the source alphabet.
	ErrInvalidCharacter = errors.New("invalid character for base")
	// ErrChecksumMismatch is returned when a Base58Check checksum does not match.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

const (
	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	bech32Alphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

// alphabets maps every supported text radix to its digit set. Base 256 is
// handled separately as raw bytes.
var alphabets = map[int]string{
	2:  "01",
	3:  "012",
	10: "0123456789",
	16: "0123456789abcdef",
	32: bech32Alphabet,
	58: base58Alphabet,
}

// ChangeBase converts input from radix from to radix to. Text radixes take and
// return ASCII digits of their alphabet; radix 256 takes and returns raw
// bytes. Between radix 58 and 256 every leading zero byte maps to one leading
// '1', as in Base58Check. The result is left padded with the zero digit up to
// minLength, which is how other conversions keep their leading zeros.
func ChangeBase(input []byte, from, to, minLength int) ([]byte, error) {
	if !supportedBase(from) || !supportedBase(to) {
		return nil, ErrInvalidBase
	}

	value, leadingZeros, err := decodeDigits(input, from)
	if err != nil {
		return nil, err
	}

	if !((from == 58 && to == 256) || (from == 256 && to == 58)) {
		leadingZeros = 0
	}

	out := encodeDigits(value, to)
	zero := zeroDigit(to)
	prefix := make([]byte, 0, leadingZeros)
	for i := 0; i < leadingZeros; i++ {
		prefix = append(prefix, zero)
	}
	out = append(prefix, out...)
	for len(out) < minLength {
		out = append([]byte{zero}, out...)
	}
	return out, nil
}

// ChangeBaseString is ChangeBase for callers working with text radixes.
func ChangeBaseString(input string, from, to, minLength int) (string, error) {
	if from == 16 {
		input = strings.ToLower(input)
	}
	out, err := ChangeBase([]byte(input), from, to, minLength)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func supportedBase(b int) bool {
	if b == 256 {
		return true
	}
	_, ok := alphabets[b]
	return ok
}

func zeroDigit(base int) byte {
	if base == 256 {
		return 0
	}
	return alphabets[base][0]
}

func decodeDigits(input []byte, base int) (*big.Int, int, error) {
	value := new(big.Int)
	if base == 256 {
		value.SetBytes(input)
		zeros := 0
		for zeros < len(input) && input[zeros] == 0 {
			zeros++
		}
		return value, zeros, nil
	}

	alphabet := alphabets[base]
	radix := big.NewInt(int64(base))
	zeros := 0
	counting := true
	for _, c := range input {
		idx := strings.IndexByte(alphabet, c)
		if idx < 0 {
			return nil, 0, ErrInvalidCharacter
		}
		if counting && idx == 0 {
			zeros++
		} else {
			counting = false
		}
		value.Mul(value, radix)
		value.Add(value, big.NewInt(int64(idx)))
	}
	return value, zeros, nil
}

func encodeDigits(value *big.Int, base int) []byte {
	if base == 256 {
		return value.Bytes()
	}

	alphabet := alphabets[base]
	radix := big.NewInt(int64(base))
	v := new(big.Int).Set(value)
	mod := new(big.Int)
	out := make([]byte, 0)
	for v.Sign() > 0 {
		v.DivMod(v, radix, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
