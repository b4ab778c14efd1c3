package address

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/script"
)

var (
	// ErrUnknownFormat is returned for strings that are neither base58 nor
	// bech32 addresses of a known network.
	ErrUnknownFormat = errors.New("unknown address format")
	// ErrInvalidHashLength is returned for base58 payloads that do not
	// carry a 20-byte hash.
	ErrInvalidHashLength = errors.New("invalid address hash length")
	// ErrUnsupportedScript is returned for locking scripts with no address
	// form.
	ErrUnsupportedScript = errors.New("script has no address form")
)

// Encoding is the text encoding of an address.
type Encoding string

const (
	Base58Encoding  Encoding = "base58"
	Bech32Encoding  Encoding = "bech32"
	Bech32mEncoding Encoding = "bech32m"
)

// Script types with an address form.
const (
	P2PKH  = "p2pkh"
	P2SH   = "p2sh"
	P2WPKH = "p2wpkh"
	P2WSH  = "p2wsh"
	P2TR   = "p2tr"
)

// Address is a decoded address bound to a network. Hash is the pubkey or
// script hash, or the witness program for segwit outputs.
type Address struct {
	Encoding       Encoding
	ScriptType     string
	Network        *network.Network
	Hash           []byte
	WitnessVersion byte
}

// Base58 type defines the structure of a legacy or wrapped segwit address
type Base58 struct {
	Version byte
	Data    []byte
}

// Bech32 defines the structure of a native segwit address
type Bech32 struct {
	Prefix  string
	Version byte
	Data    []byte
}

// FromBase58 decodes a string that was base58 encoded and verifies the checksum.
func FromBase58(address string) (*Base58, error) {
	decoded, err := encoding.Base58CheckDecode(address)
	if err != nil {
		return nil, err
	}
	if len(decoded) != 21 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHashLength, len(decoded)-1)
	}
	return &Base58{decoded[0], decoded[1:]}, nil
}

// ToBase58 prepends a version byte and appends a four byte checksum.
func ToBase58(b *Base58) string {
	return encoding.Base58CheckEncode(append([]byte{b.Version}, b.Data...))
}

// FromBech32 decodes a segwit address and checks its checksum variant
// against the witness version.
func FromBech32(address string) (*Bech32, error) {
	seg, err := encoding.Bech32Decode("", address)
	if err != nil {
		return nil, err
	}
	return &Bech32{seg.HRP, seg.Version, seg.Program}, nil
}

// ToBech32 encodes a witness program, with bech32m for versions above 0.
func ToBech32(b *Bech32) (string, error) {
	return encoding.Bech32Encode(b.Prefix, b.Version, b.Data)
}

// FromHash builds the address of the given script type over hash.
func FromHash(hash []byte, scriptType string, net *network.Network) (*Address, error) {
	a := &Address{ScriptType: scriptType, Network: net, Hash: hash}
	switch scriptType {
	case P2PKH, P2SH:
		if len(hash) != 20 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidHashLength, len(hash))
		}
		a.Encoding = Base58Encoding
	case P2WPKH, P2WSH, P2TR:
		if !net.SupportsSegwit() {
			return nil, errs.Newf(errs.ErrConfig, "address.FromHash",
				"network %s has no segwit", net.Name)
		}
		want := 32
		if scriptType == P2WPKH {
			want = 20
		}
		if len(hash) != want {
			return nil, fmt.Errorf("%w: %d", ErrInvalidHashLength, len(hash))
		}
		a.Encoding = Bech32Encoding
		if scriptType == P2TR {
			a.Encoding = Bech32mEncoding
			a.WitnessVersion = 1
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScript, scriptType)
	}
	return a, nil
}

// FromScript returns the address paying to a locking script.
func FromScript(lockingScript []byte, net *network.Network) (*Address, error) {
	s, err := script.Parse(lockingScript)
	if err != nil {
		return nil, err
	}
	if len(s.Types) != 1 {
		return nil, ErrUnsupportedScript
	}
	switch t := s.Types[0]; t {
	case P2PKH:
		return FromHash(s.Commands[2].Data, t, net)
	case P2SH, P2WPKH, P2WSH, P2TR:
		return FromHash(s.Commands[1].Data, t, net)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScript, s.Type())
}

// Parse decodes an address and resolves its network. hint picks among
// networks sharing a prefix and must be one of them when given.
func Parse(addr string, hint *network.Network) (*Address, error) {
	if hrp := encoding.Bech32HRP(addr); hrp != "" {
		if nets := network.ByBech32Prefix(hrp); len(nets) > 0 {
			return parseBech32(addr, nets, hint)
		}
	}
	if encoding.IsBase58(addr) {
		return parseBase58(addr, hint)
	}
	return nil, errs.New(errs.ErrInvalidKey, "address.Parse",
		fmt.Errorf("%w: %q", ErrUnknownFormat, addr))
}

func parseBech32(addr string, nets []*network.Network, hint *network.Network) (*Address, error) {
	b, err := FromBech32(addr)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "address.Parse", err)
	}
	net, err := network.Pick(nets, hint, network.Bitcoin)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "address.Parse", err)
	}

	var scriptType string
	switch {
	case b.Version == 0 && len(b.Data) == 20:
		scriptType = P2WPKH
	case b.Version == 0 && len(b.Data) == 32:
		scriptType = P2WSH
	case b.Version == 1 && len(b.Data) == 32:
		scriptType = P2TR
	default:
		return nil, errs.New(errs.ErrInvalidKey, "address.Parse",
			fmt.Errorf("%w: witness v%d of %d bytes", ErrUnsupportedScript, b.Version, len(b.Data)))
	}
	return FromHash(b.Data, scriptType, net)
}

func parseBase58(addr string, hint *network.Network) (*Address, error) {
	b, err := FromBase58(addr)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "address.Parse", err)
	}
	nets := network.ByAddressPrefix(b.Version)
	net, err := network.Pick(nets, hint, network.Bitcoin)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "address.Parse",
			fmt.Errorf("prefix 0x%02x: %w", b.Version, err))
	}

	scriptType := P2SH
	if net.PubKeyHash == b.Version {
		scriptType = P2PKH
	}
	a, err := FromHash(b.Data, scriptType, net)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// String encodes the address.
func (a *Address) String() string {
	switch a.ScriptType {
	case P2PKH:
		return ToBase58(&Base58{a.Network.PubKeyHash, a.Hash})
	case P2SH:
		return ToBase58(&Base58{a.Network.ScriptHash[0], a.Hash})
	}
	s, err := ToBech32(&Bech32{a.Network.Bech32, a.WitnessVersion, a.Hash})
	if err != nil {
		return ""
	}
	return s
}

// Script returns the locking script paying to the address.
func (a *Address) Script() []byte {
	switch a.ScriptType {
	case P2PKH:
		return script.P2PKHScript(a.Hash)
	case P2SH:
		return script.P2SHScript(a.Hash)
	}
	return script.WitnessProgram(a.WitnessVersion, a.Hash)
}

// Equal reports whether both addresses encode the same output on the same
// network.
func (a *Address) Equal(o *Address) bool {
	return o != nil && a.Network == o.Network && a.ScriptType == o.ScriptType &&
		a.WitnessVersion == o.WitnessVersion && bytes.Equal(a.Hash, o.Hash)
}

// IsSegwit reports whether the address pays to a witness program.
func (a *Address) IsSegwit() bool {
	return a.Encoding != Base58Encoding
}
