package network

import (
	"fmt"
	"sort"
)

// WitnessType selects the script family a key or wallet produces.
type WitnessType string

const (
	// Legacy produces P2PKH and P2SH outputs.
	Legacy WitnessType = "legacy"
	// P2SHSegwit produces segwit programs nested in P2SH.
	P2SHSegwit WitnessType = "p2sh-segwit"
	// Segwit produces native witness v0 outputs.
	Segwit WitnessType = "segwit"
	// Taproot produces witness v1 key-path outputs.
	Taproot WitnessType = "taproot"
)

// ParseWitnessType returns the WitnessType named s.
func ParseWitnessType(s string) (WitnessType, error) {
	switch wt := WitnessType(s); wt {
	case Legacy, P2SHSegwit, Segwit, Taproot:
		return wt, nil
	}
	return "", fmt.Errorf("unknown witness type %q", s)
}

// HDVersionKey identifies one pair of extended key version bytes.
type HDVersionKey struct {
	WitnessType WitnessType
	Multisig    bool
}

// HDVersion holds the 4-byte magics of extended private and public keys.
type HDVersion struct {
	Private [4]byte
	Public  [4]byte
}

// Network type represents prefixes for each network
// https://en.bitcoin.it/wiki/List_of_address_prefixes
type Network struct {
	Name           string
	Label          string
	CurrencyCode   string
	CurrencySymbol string
	// Decimal exponent of the smallest unit, -8 for satoshis.
	Denominator int32
	// Address encoding magic
	PubKeyHash byte
	// Accepted P2SH magics. The first one is used for encoding.
	ScriptHash []byte
	// First byte of a WIF private key
	Wif byte
	// Human-readable part for Bech32 encoded segwit addresses, as defined
	// in BIP 173. Empty when the network has no segwit.
	Bech32 string
	// BIP44 coin type used in the hierarchical deterministic path for
	// address generation.
	HDCoinType uint32
	// BIP32 hierarchical deterministic extended key magics per witness
	// type and multisig flag.
	HDVersions map[HDVersionKey]HDVersion
	// Dust threshold and fee bounds in satoshis, fees per 1000 vbytes.
	DustAmount uint64
	FeeDefault uint64
	FeeMin     uint64
	FeeMax     uint64
}

// SupportsSegwit reports whether the network has a bech32 prefix.
func (n *Network) SupportsSegwit() bool {
	return n.Bech32 != ""
}

// SupportsWitnessType reports whether keys of the given type can be used.
func (n *Network) SupportsWitnessType(wt WitnessType) bool {
	if wt == Legacy {
		return true
	}
	return n.SupportsSegwit()
}

// HDVersion returns the extended key magics for the given witness type.
// Networks without dedicated segwit magics fall back to the legacy pair.
func (n *Network) HDVersion(wt WitnessType, multisig bool) (HDVersion, error) {
	if wt == Taproot {
		wt = Segwit
		multisig = false
	}
	if v, ok := n.HDVersions[HDVersionKey{wt, multisig}]; ok {
		return v, nil
	}
	if v, ok := n.HDVersions[HDVersionKey{wt, false}]; ok {
		return v, nil
	}
	if !n.SupportsWitnessType(wt) {
		return HDVersion{}, fmt.Errorf(
			"witness type %s not supported on %s", wt, n.Name,
		)
	}
	return n.HDVersions[HDVersionKey{Legacy, false}], nil
}

// IsScriptHash reports whether prefix is one of the network's P2SH magics.
func (n *Network) IsScriptHash(prefix byte) bool {
	for _, p := range n.ScriptHash {
		if p == prefix {
			return true
		}
	}
	return false
}

func (n *Network) String() string {
	return n.Name
}

var (
	registry = map[string]*Network{}
	// registration order doubles as lookup priority
	ordered []*Network
)

func register(nets ...*Network) {
	for _, n := range nets {
		registry[n.Name] = n
		ordered = append(ordered, n)
	}
}

// ByName returns the network registered under name.
func ByName(name string) (*Network, error) {
	n, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("network %q not defined", name)
	}
	return n, nil
}

// Names returns all registered network names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered networks in priority order.
func All() []*Network {
	return append([]*Network{}, ordered...)
}

// ByAddressPrefix returns every network using prefix as P2PKH or P2SH magic.
func ByAddressPrefix(prefix byte) []*Network {
	var out []*Network
	for _, n := range All() {
		if n.PubKeyHash == prefix || n.IsScriptHash(prefix) {
			out = append(out, n)
		}
	}
	return out
}

// ByWifPrefix returns every network whose WIF magic is prefix.
func ByWifPrefix(prefix byte) []*Network {
	var out []*Network
	for _, n := range All() {
		if n.Wif == prefix {
			out = append(out, n)
		}
	}
	return out
}

// ByBech32Prefix returns every network using hrp for segwit addresses.
func ByBech32Prefix(hrp string) []*Network {
	var out []*Network
	for _, n := range All() {
		if n.Bech32 != "" && n.Bech32 == hrp {
			out = append(out, n)
		}
	}
	return out
}

// HDMatch is one interpretation of an extended key version prefix.
type HDMatch struct {
	Network     *Network
	WitnessType WitnessType
	Multisig    bool
	IsPrivate   bool
}

// HDVersionSearch returns every (network, witness type, multisig, private)
// tuple whose extended key magic equals version.
func HDVersionSearch(version [4]byte) []HDMatch {
	var out []HDMatch
	for _, n := range All() {
		keys := make([]HDVersionKey, 0, len(n.HDVersions))
		for k := range n.HDVersions {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].WitnessType != keys[j].WitnessType {
				return keys[i].WitnessType < keys[j].WitnessType
			}
			return !keys[i].Multisig && keys[j].Multisig
		})
		for _, k := range keys {
			v := n.HDVersions[k]
			if v.Private == version {
				out = append(out, HDMatch{n, k.WitnessType, k.Multisig, true})
			}
			if v.Public == version {
				out = append(out, HDMatch{n, k.WitnessType, k.Multisig, false})
			}
		}
	}
	return out
}

// Pick chooses among candidate networks: the hint when it is a candidate,
// then def when it is a candidate, then the first candidate.
func Pick(candidates []*Network, hint, def *Network) (*Network, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no network matches")
	}
	for _, pref := range []*Network{hint, def} {
		if pref == nil {
			continue
		}
		for _, c := range candidates {
			if c == pref {
				return c, nil
			}
		}
	}
	if hint != nil {
		return nil, fmt.Errorf("network %s does not match, candidates: %s",
			hint.Name, names(candidates))
	}
	return candidates[0], nil
}

func names(nets []*Network) string {
	s := ""
	for i, n := range nets {
		if i > 0 {
			s += ", "
		}
		s += n.Name
	}
	return s
}
