package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// HardenedKeyStart is the index of the first hardened child.
const HardenedKeyStart = hdkeychain.HardenedKeyStart

var (
	// ErrNullDerivationPath is returned when parsing an empty path.
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrMalformedDerivationPath is returned for paths with empty segments
	// or a misplaced root marker.
	ErrMalformedDerivationPath = errors.New("derivation path is malformed")
)

// DerivationPath is the binary representation of a BIP-32 path, relative to
// the key it is applied to.
type DerivationPath []uint32

// PathRoot tells how a textual path starts.
type PathRoot int

const (
	// RelativeRoot marks paths without a leading m or M.
	RelativeRoot PathRoot = iota
	// PrivateRoot marks paths starting with m.
	PrivateRoot
	// PublicRoot marks paths starting with M. They must be derivable with
	// public derivation only.
	PublicRoot
)

// ParseDerivationPath converts a derivation path string to its binary
// representation, discarding the root marker.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	path, _, err := ParsePathWithRoot(strPath)
	return path, err
}

// ParsePathWithRoot is like ParseDerivationPath but also returns how the
// path starts. The hardened marker can be any of ' h H p P.
func ParsePathWithRoot(strPath string) (DerivationPath, PathRoot, error) {
	strPath = strings.TrimSpace(strPath)
	if strPath == "" {
		return nil, RelativeRoot, ErrNullDerivationPath
	}

	elems := strings.Split(strPath, "/")
	root := RelativeRoot
	switch strings.TrimSpace(elems[0]) {
	case "m":
		root = PrivateRoot
		elems = elems[1:]
	case "M":
		root = PublicRoot
		elems = elems[1:]
	}

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			return nil, root, ErrMalformedDerivationPath
		}

		var value uint32
		if strings.ContainsAny(elem[len(elem)-1:], "'hHpP") {
			value = HardenedKeyStart
			elem = elem[:len(elem)-1]
		}

		n, err := strconv.ParseUint(elem, 10, 32)
		if err != nil {
			return nil, root, fmt.Errorf("%w: invalid elem '%s' in path",
				ErrMalformedDerivationPath, elem)
		}
		if n >= uint64(HardenedKeyStart) {
			return nil, root, fmt.Errorf("%w: elem %d must be in range [0, %d]",
				ErrMalformedDerivationPath, n, HardenedKeyStart-1)
		}
		path = append(path, value+uint32(n))
	}

	return path, root, nil
}

// String converts a binary derivation path to its canonical representation.
func (path DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, component := range path {
		b.WriteString("/")
		b.WriteString(FormatIndex(component))
	}
	return b.String()
}

// Append returns a new path extended with indexes.
func (path DerivationPath) Append(indexes ...uint32) DerivationPath {
	out := make(DerivationPath, 0, len(path)+len(indexes))
	out = append(out, path...)
	return append(out, indexes...)
}

// IsHardenedIndex reports whether i addresses a hardened child.
func IsHardenedIndex(i uint32) bool {
	return i >= HardenedKeyStart
}

// FormatIndex renders a child index with a trailing ' when hardened.
func FormatIndex(i uint32) string {
	if IsHardenedIndex(i) {
		return strconv.FormatUint(uint64(i-HardenedKeyStart), 10) + "'"
	}
	return strconv.FormatUint(uint64(i), 10)
}
