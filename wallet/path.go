package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/payment"
)

// Key path template elements. Any other element is a literal index such as
// 0 or 1'.
const (
	pathRoot         = "m"
	pathPurpose      = "purpose'"
	pathCoinType     = "coin_type'"
	pathAccount      = "account'"
	pathScriptType   = "script_type'"
	pathCosigner     = "cosigner_index"
	pathChange       = "change"
	pathAddressIndex = "address_index"
)

var (
	// ErrInvalidKeyPath is returned for malformed key path templates.
	ErrInvalidKeyPath = errors.New("invalid key path template")
	// ErrPublicHardened is returned when a public key would need hardened
	// derivation to reach the wallet addresses.
	ErrPublicHardened = errors.New("public key can't derive the hardened levels of the key path")
	// ErrFixedAccount is returned when asking a key for an account other
	// than the one it is bound to.
	ErrFixedAccount = errors.New("account is fixed by the wallet key")
	// ErrNoAccountLevel is returned when creating accounts on a key path
	// without an account level.
	ErrNoAccountLevel = errors.New("key path has no account level")
	// ErrInvalidChange is returned for change values other than 0 and 1.
	ErrInvalidChange = errors.New("change must be 0 or 1")
	// ErrPathMismatch is returned for paths outside the wallet key tree.
	ErrPathMismatch = errors.New("path does not match the wallet key path")
)

// target locates an address key in the wallet key tree.
type target struct {
	account uint32
	change  uint32
	index   uint32
}

func defaultPurpose(scheme Scheme, wt network.WitnessType) uint32 {
	switch scheme {
	case SchemeSingle:
		return 0
	case SchemeMultisig:
		if wt == network.Legacy {
			return 45
		}
		return 48
	}
	switch wt {
	case network.P2SHSegwit:
		return 49
	case network.Segwit:
		return 84
	case network.Taproot:
		return 86
	}
	return 44
}

func defaultKeyPath(purpose uint32) []string {
	switch purpose {
	case 0:
		return []string{pathRoot}
	case 45:
		return []string{pathRoot, pathPurpose, pathCosigner, pathChange, pathAddressIndex}
	case 48:
		return []string{
			pathRoot, pathPurpose, pathCoinType, pathAccount, pathScriptType,
			pathChange, pathAddressIndex,
		}
	}
	return []string{pathRoot, pathPurpose, pathCoinType, pathAccount, pathChange, pathAddressIndex}
}

func validateKeyPath(path []string) error {
	if len(path) == 0 || path[0] != pathRoot {
		return fmt.Errorf("%w: must start with %s", ErrInvalidKeyPath, pathRoot)
	}
	if len(path) == 1 {
		return nil
	}
	if path[len(path)-1] != pathAddressIndex {
		return fmt.Errorf("%w: must end with %s", ErrInvalidKeyPath, pathAddressIndex)
	}
	seen := map[string]bool{}
	for _, elem := range path[1:] {
		switch elem {
		case pathPurpose, pathCoinType, pathAccount, pathScriptType,
			pathCosigner, pathChange, pathAddressIndex:
			if seen[elem] {
				return fmt.Errorf("%w: %s repeated", ErrInvalidKeyPath, elem)
			}
			seen[elem] = true
		default:
			if _, err := parseIndex(elem); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidKeyPath, err)
			}
		}
	}
	return nil
}

func parseIndex(elem string) (uint32, error) {
	hardened := false
	for _, marker := range []string{"'", "h", "H"} {
		if strings.HasSuffix(elem, marker) {
			hardened = true
			elem = strings.TrimSuffix(elem, marker)
			break
		}
	}
	i, err := strconv.ParseUint(elem, 10, 32)
	if err != nil || uint32(i) >= keys.HardenedKeyStart {
		return 0, fmt.Errorf("invalid index %q", elem)
	}
	if hardened {
		return uint32(i) + keys.HardenedKeyStart, nil
	}
	return uint32(i), nil
}

func (w *Wallet) component(elem string, t target) (uint32, error) {
	const h = keys.HardenedKeyStart
	switch elem {
	case pathPurpose:
		return w.Purpose + h, nil
	case pathCoinType:
		return w.Network.HDCoinType + h, nil
	case pathAccount:
		return t.account + h, nil
	case pathScriptType:
		switch w.WitnessType {
		case network.P2SHSegwit:
			return 1 + h, nil
		case network.Segwit:
			return 2 + h, nil
		}
		return h, nil
	case pathCosigner:
		return 0, nil
	case pathChange:
		return t.change, nil
	case pathAddressIndex:
		return t.index, nil
	}
	return parseIndex(elem)
}

// pathOf returns the path of the key at depth for t.
func (w *Wallet) pathOf(t target, depth int) (keys.DerivationPath, error) {
	if depth > len(w.KeyPath)-1 {
		return nil, ErrPathMismatch
	}
	path := make(keys.DerivationPath, 0, depth)
	for _, elem := range w.KeyPath[1 : depth+1] {
		i, err := w.component(elem, t)
		if err != nil {
			return nil, err
		}
		path = append(path, i)
	}
	return path, nil
}

func (w *Wallet) leafDepth() int {
	return len(w.KeyPath) - 1
}

func (w *Wallet) levelOf(elem string) int {
	for i, e := range w.KeyPath {
		if e == elem {
			return i
		}
	}
	return -1
}

// fixedAccount returns the account the wallet keys are bound to. Keys
// stored at the account level fix their own account, deeper ones are
// bound to account 0. Keys above it leave the account free.
func (w *Wallet) fixedAccount() uint32 {
	account, _ := w.accountBinding()
	return account
}

func (w *Wallet) accountBinding() (uint32, bool) {
	level := w.levelOf(pathAccount)
	if level < 0 {
		return 0, true
	}
	for _, c := range w.Cosigners {
		depth := int(c.Key.Depth)
		switch {
		case depth == level:
			return c.Key.ChildIndex - keys.HardenedKeyStart, true
		case depth > level:
			return 0, true
		}
	}
	return 0, false
}

func (w *Wallet) checkAccount(account uint32) error {
	if fixed, ok := w.accountBinding(); ok && account != fixed {
		return fmt.Errorf("%w: %d", ErrFixedAccount, fixed)
	}
	return nil
}

// checkDerivable makes sure the wallet addresses can be derived from k.
func (w *Wallet) checkDerivable(k *keys.HDKey) error {
	if k.KeyType == keys.Single || w.leafDepth() == 0 {
		return nil
	}
	depth := int(k.Depth)
	if depth >= w.leafDepth() {
		return fmt.Errorf("%w: key depth %d is not above the address level", ErrPathMismatch, depth)
	}
	if k.IsPrivate() {
		return nil
	}
	for _, elem := range w.KeyPath[depth+1:] {
		if elem == pathChange || elem == pathAddressIndex || elem == pathCosigner {
			continue
		}
		i, err := w.component(elem, target{})
		if err != nil {
			return err
		}
		if keys.IsHardenedIndex(i) {
			return fmt.Errorf("%w: %s", ErrPublicHardened, elem)
		}
	}
	return nil
}

// derive returns the key of k at t.
func (w *Wallet) derive(k *keys.HDKey, t target) (*keys.HDKey, error) {
	if k.KeyType == keys.Single || w.leafDepth() == 0 {
		return k, nil
	}
	full, err := w.pathOf(t, w.leafDepth())
	if err != nil {
		return nil, err
	}
	depth := int(k.Depth)
	if depth > len(full) {
		return nil, ErrPathMismatch
	}
	return k.DerivePath(full[depth:])
}

// singleAddress returns the address of the single key payment of k.
func (w *Wallet) singleAddress(k *keys.HDKey) (string, error) {
	p, err := payment.ForWitnessType(k.PublicKey(), w.WitnessType, w.Network)
	if err != nil {
		return "", err
	}
	addr, err := p.Address()
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}
