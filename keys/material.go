package keys

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/mnemonic"
	"github.com/vulpemventures/go-bitcoin/network"
)

// MaterialKind tags the format of some key material.
type MaterialKind int

const (
	UnknownMaterial MaterialKind = iota
	RawPrivate
	WIF
	ExtendedKey
	PublicBytes
	BIP38
	Mnemonic
)

var materialNames = map[MaterialKind]string{
	UnknownMaterial: "unknown",
	RawPrivate:      "raw private",
	WIF:             "wif",
	ExtendedKey:     "extended key",
	PublicBytes:     "public",
	BIP38:           "bip38",
	Mnemonic:        "mnemonic",
}

func (k MaterialKind) String() string {
	return materialNames[k]
}

// ErrUnknownKeyFormat is returned when no detection rule matches.
var ErrUnknownKeyFormat = errors.New("unrecognized key format")

// KeyMaterial is some key input with its detected format. Raw holds the
// binary forms, Text the textual ones.
type KeyMaterial struct {
	Kind    MaterialKind
	Raw     []byte
	Text    string
	Network *network.Network
}

// ParseOpts are the extra inputs some formats need to become a key.
type ParseOpts struct {
	// Passphrase decrypts BIP-38 keys.
	Passphrase string
	// Password is the optional BIP-39 password of mnemonics.
	Password    string
	WitnessType network.WitnessType
	Multisig    bool
	// Uncompressed applies to raw private scalars only.
	Uncompressed bool
}

// DetectBytes applies the binary detection rules to b, then the textual
// ones to b read as a string.
func DetectBytes(b []byte, hint *network.Network) (*KeyMaterial, error) {
	switch {
	case len(b) == 32:
		return &KeyMaterial{Kind: RawPrivate, Raw: b, Network: hint}, nil
	case len(b) == 33 && (b[0] == 0x02 || b[0] == 0x03):
		return &KeyMaterial{Kind: PublicBytes, Raw: b, Network: hint}, nil
	case len(b) == 65 && b[0] == 0x04:
		return &KeyMaterial{Kind: PublicBytes, Raw: b, Network: hint}, nil
	}
	return Detect(string(b), hint)
}

// Detect recognizes the format of a textual key. Rules apply in order: 64
// hex chars, hex public key, WIF, extended key, BIP-38, mnemonic.
func Detect(input string, hint *network.Network) (*KeyMaterial, error) {
	s := strings.TrimSpace(input)

	if b, err := hex.DecodeString(s); err == nil {
		switch {
		case len(b) == 32:
			return &KeyMaterial{Kind: RawPrivate, Raw: b, Network: hint}, nil
		case len(b) == 33 && (b[0] == 0x02 || b[0] == 0x03),
			len(b) == 65 && b[0] == 0x04:
			return &KeyMaterial{Kind: PublicBytes, Raw: b, Network: hint}, nil
		}
	}

	if encoding.IsBase58(s) {
		if m := detectBase58(s, hint); m != nil {
			return m, nil
		}
	}

	words := strings.Fields(s)
	if len(words) >= 2 && len(mnemonic.DetectLanguage(s)) > 0 {
		return &KeyMaterial{Kind: Mnemonic, Text: s, Network: hint}, nil
	}

	return nil, errs.New(errs.ErrInvalidKey, "keys.Detect", ErrUnknownKeyFormat)
}

func detectBase58(s string, hint *network.Network) *KeyMaterial {
	switch len(s) {
	case 51, 52:
		payload, err := encoding.Base58CheckDecode(s)
		if err != nil || len(payload) < 33 {
			break
		}
		if nets := network.ByWifPrefix(payload[0]); len(nets) > 0 {
			net, err := network.Pick(nets, hint, network.Bitcoin)
			if err != nil {
				break
			}
			return &KeyMaterial{Kind: WIF, Text: s, Network: net}
		}
	case 111:
		payload, err := encoding.Base58CheckDecode(s)
		if err != nil || len(payload) != serializedKeyLen {
			break
		}
		var version [4]byte
		copy(version[:], payload[:4])
		if len(network.HDVersionSearch(version)) > 0 {
			return &KeyMaterial{Kind: ExtendedKey, Text: s, Network: hint}
		}
	}
	if strings.HasPrefix(s, "6P") && IsBIP38(s) {
		return &KeyMaterial{Kind: BIP38, Text: s, Network: hint}
	}
	return nil
}

// ParseAuto detects the format of input and builds the key it describes.
// Plain keys come back as single HD keys.
func ParseAuto(input string, hint *network.Network, opts ParseOpts) (*HDKey, error) {
	m, err := Detect(input, hint)
	if err != nil {
		return nil, err
	}
	return m.Key(opts)
}

// Key builds the key described by m.
func (m *KeyMaterial) Key(opts ParseOpts) (*HDKey, error) {
	witnessType := opts.WitnessType
	if witnessType == "" {
		witnessType = network.Legacy
	}

	var (
		key *Key
		err error
	)
	switch m.Kind {
	case RawPrivate:
		key, err = NewKeyFromPrivate(m.Raw, !opts.Uncompressed, m.Network)
	case PublicBytes:
		key, err = NewKeyFromPublic(m.Raw, m.Network)
	case WIF:
		key, err = NewKeyFromWIF(m.Text, m.Network)
	case BIP38:
		key, err = BIP38Decrypt(m.Text, opts.Passphrase, m.Network)
	case ExtendedKey:
		hd, err := NewHDKeyFromString(m.Text, m.Network)
		if err != nil {
			return nil, err
		}
		if opts.WitnessType != "" {
			hd.WitnessType = opts.WitnessType
			hd.Multisig = opts.Multisig
		}
		return hd, nil
	case Mnemonic:
		if m.Network == nil {
			return nil, errs.Newf(errs.ErrConfig, "keys.KeyMaterial.Key",
				"a network is required to import a mnemonic")
		}
		return NewHDKeyFromMnemonic(m.Text, opts.Password, m.Network, witnessType, opts.Multisig)
	default:
		return nil, errs.New(errs.ErrInvalidKey, "keys.KeyMaterial.Key", ErrUnknownKeyFormat)
	}
	if err != nil {
		return nil, err
	}
	hd := NewHDKeyFromKey(key, witnessType)
	hd.Multisig = opts.Multisig
	return hd, nil
}
