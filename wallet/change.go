package wallet

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// maxRandomChange bounds the number of change outputs picked by
// RandomChange.
const maxRandomChange = 5

// randomChangeCount picks how many outputs the change is split in, more of
// them when the change is large compared to the amount sent, never so many
// that a part would fall below dust.
func randomChangeCount(change, sent, dust uint64, r io.Reader) (int, error) {
	ratio := change / max(sent, 1)
	limit := min(maxRandomChange, 1+bits.Len64(ratio))
	if dust > 0 {
		if parts := change / dust; parts < uint64(limit) {
			limit = int(max(parts, 1))
		}
	}
	n, err := randUint64(r)
	if err != nil {
		return 0, err
	}
	return 1 + int(n%uint64(limit)), nil
}

// splitChange divides amount in n parts of at least dust each, weighted at
// random.
func splitChange(amount uint64, n int, dust uint64, r io.Reader) ([]uint64, error) {
	if n <= 1 {
		return []uint64{amount}, nil
	}
	if amount < uint64(n)*dust {
		return nil, fmt.Errorf("can't split %d in %d outputs above %d", amount, n, dust)
	}

	weights := make([]uint64, n)
	var sum uint64
	for i := range weights {
		v, err := randUint64(r)
		if err != nil {
			return nil, err
		}
		weights[i] = v%1000 + 1
		sum += weights[i]
	}

	spare := amount - uint64(n)*dust
	parts := make([]uint64, n)
	var assigned uint64
	for i := range parts {
		share := spare / sum * weights[i]
		share += spare % sum * weights[i] / sum
		parts[i] = dust + share
		assigned += parts[i]
	}
	parts[n-1] += amount - assigned
	return parts, nil
}

func randUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
