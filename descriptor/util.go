package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

const (
	inputCharset    = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	checksumLength  = 8
)

var (
	ErrInvalidChecksumLength = errors.New("invalid checksum length")
	ErrInvalidChecksum       = errors.New("invalid descriptor checksum")
)

// Checksum returns the 8 characters checksum of a descriptor given
// without one.
func Checksum(descriptor string) (string, error) {
	c := uint64(1)
	cls, clsCount := 0, 0
	for _, ch := range descriptor {
		pos := strings.IndexRune(inputCharset, ch)
		if pos < 0 {
			return "", fmt.Errorf("invalid character %q in descriptor", ch)
		}
		c = polymod(c, pos&31)
		cls = cls*3 + pos>>5
		clsCount++
		if clsCount == 3 {
			c = polymod(c, cls)
			cls, clsCount = 0, 0
		}
	}
	if clsCount > 0 {
		c = polymod(c, cls)
	}
	for i := 0; i < checksumLength; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	var b strings.Builder
	for i := 0; i < checksumLength; i++ {
		b.WriteByte(checksumCharset[(c>>(5*(7-i)))&31])
	}
	return b.String(), nil
}

// AddChecksum appends #checksum to a descriptor given without one.
func AddChecksum(descriptor string) (string, error) {
	checksum, err := Checksum(descriptor)
	if err != nil {
		return "", err
	}
	return descriptor + "#" + checksum, nil
}

func polymod(c uint64, val int) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ uint64(val)
	if c0&1 != 0 {
		c ^= 0xf5dee51989
	}
	if c0&2 != 0 {
		c ^= 0xa9fdca3312
	}
	if c0&4 != 0 {
		c ^= 0x1bab10e32d
	}
	if c0&8 != 0 {
		c ^= 0x3706b1677a
	}
	if c0&16 != 0 {
		c ^= 0x644d626ffd
	}
	return c
}
