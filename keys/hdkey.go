package keys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/mnemonic"
	"github.com/vulpemventures/go-bitcoin/network"
)

const serializedKeyLen = 78

// KeyType tells whether an HDKey can derive children.
type KeyType string

const (
	// BIP32 keys carry a chain code and derive children.
	BIP32 KeyType = "bip32"
	// Single keys wrap a plain key and have no children.
	Single KeyType = "single"
)

var (
	// ErrInvalidChild is returned when the child at an index is not a valid
	// key. Callers may skip to the next index.
	ErrInvalidChild = hdkeychain.ErrInvalidChild
	// ErrDeriveHardFromPublic is returned when deriving a hardened child of
	// a public key.
	ErrDeriveHardFromPublic = hdkeychain.ErrDeriveHardFromPublic
	// ErrInvalidExtendedKey is returned for malformed extended key strings.
	ErrInvalidExtendedKey = errors.New("invalid extended key")
	// ErrSingleKey is returned when deriving from a single key.
	ErrSingleKey = errors.New("single keys can't derive children")
)

// HDKey is a BIP-32 extended key.
type HDKey struct {
	*Key
	ChainCode   [32]byte
	Depth       uint8
	ParentFP    [4]byte
	ChildIndex  uint32
	KeyType     KeyType
	WitnessType network.WitnessType
	Multisig    bool
}

// NewMasterKey returns the master key of a 16 to 64 bytes seed.
func NewMasterKey(
	seed []byte, net *network.Network, witnessType network.WitnessType, multisig bool,
) (*HDKey, error) {
	ext, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.NewMasterKey", err)
	}
	if witnessType == "" {
		witnessType = network.Legacy
	}
	return fromExtended(ext, orDefault(net), witnessType, multisig)
}

// NewHDKeyFromMnemonic returns the master key of a BIP-39 mnemonic. The
// mnemonic must be valid in at least one known wordlist.
func NewHDKeyFromMnemonic(
	words, password string, net *network.Network,
	witnessType network.WitnessType, multisig bool,
) (*HDKey, error) {
	valid := false
	for _, wl := range mnemonic.DetectLanguage(words) {
		if mnemonic.IsValid(words, wl) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, errs.Newf(errs.ErrInvalidKey, "keys.NewHDKeyFromMnemonic",
			"mnemonic is not valid in any known wordlist")
	}
	return NewMasterKey(mnemonic.ToSeed(words, password), net, witnessType, multisig)
}

// NewHDKeyFromKey wraps a plain key as a single, non derivable HDKey.
func NewHDKeyFromKey(key *Key, witnessType network.WitnessType) *HDKey {
	return &HDKey{
		Key:         key,
		KeyType:     Single,
		WitnessType: witnessType,
	}
}

// NewHDKeyFromString parses an extended private or public key. Network,
// witness type and multisig flag are recovered from the version bytes, with
// hint picking among networks sharing them.
func NewHDKeyFromString(xkey string, hint *network.Network) (*HDKey, error) {
	const op = "keys.NewHDKeyFromString"

	payload, err := encoding.Base58CheckDecode(xkey)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	if len(payload) != serializedKeyLen {
		return nil, errs.New(errs.ErrInvalidKey, op, ErrInvalidExtendedKey)
	}

	var version [4]byte
	copy(version[:], payload[:4])
	isPrivate := payload[45] == 0x00

	var candidates []*network.Network
	for _, m := range network.HDVersionSearch(version) {
		if m.IsPrivate == isPrivate {
			candidates = append(candidates, m.Network)
		}
	}
	if len(candidates) == 0 {
		return nil, errs.Newf(errs.ErrInvalidKey, op,
			"%w: unknown version %x", ErrInvalidExtendedKey, version)
	}
	net, err := network.Pick(candidates, hint, network.Bitcoin)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, op, err)
	}

	var match network.HDMatch
	for _, m := range network.HDVersionSearch(version) {
		if m.Network == net && m.IsPrivate == isPrivate {
			match = m
			break
		}
	}

	k := &HDKey{
		Depth:       payload[4],
		ChildIndex:  binary.BigEndian.Uint32(payload[9:13]),
		KeyType:     BIP32,
		WitnessType: match.WitnessType,
		Multisig:    match.Multisig,
	}
	copy(k.ParentFP[:], payload[5:9])
	copy(k.ChainCode[:], payload[13:45])

	if k.Depth == 0 && (k.ChildIndex != 0 || k.ParentFP != [4]byte{}) {
		return nil, errs.Newf(errs.ErrInvalidKey, op,
			"%w: master key with non zero parent or index", ErrInvalidExtendedKey)
	}

	keyData := payload[45:]
	if isPrivate {
		k.Key, err = NewKeyFromPrivate(keyData[1:], true, net)
	} else {
		k.Key, err = NewKeyFromPublic(keyData, net)
		if err == nil && !k.Key.Compressed {
			err = errs.New(errs.ErrInvalidKey, op, ErrInvalidPublicKey)
		}
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// IsHardened reports whether the key is a hardened child.
func (k *HDKey) IsHardened() bool {
	return IsHardenedIndex(k.ChildIndex)
}

// Fingerprint returns the first 4 bytes of the hash160 of the compressed
// public key.
func (k *HDKey) Fingerprint() [4]byte {
	var fp [4]byte
	copy(fp[:], encoding.Hash160(k.PublicCompressed())[:4])
	return fp
}

// Neuter returns the public version of the key.
func (k *HDKey) Neuter() *HDKey {
	pub := *k
	pub.Key = k.Key.Public()
	return &pub
}

// Child derives the child at index i, private when k is private.
func (k *HDKey) Child(i uint32) (*HDKey, error) {
	if k.KeyType == Single {
		return nil, errs.New(errs.ErrInvalidKey, "keys.Child", ErrSingleKey)
	}
	childExt, err := k.extended().Derive(i)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.Child", err)
	}
	return fromExtended(childExt, k.Network, k.WitnessType, k.Multisig)
}

// ChildPublic derives the public child at index i.
func (k *HDKey) ChildPublic(i uint32) (*HDKey, error) {
	return k.Neuter().Child(i)
}

// DerivePath derives every index of path in turn.
func (k *HDKey) DerivePath(path DerivationPath) (*HDKey, error) {
	key := k
	for _, i := range path {
		child, err := key.Child(i)
		if err != nil {
			return nil, err
		}
		key = child
	}
	return key, nil
}

// Derive parses path and derives it from k. Paths rooted at M are derived
// from the public key.
func (k *HDKey) Derive(path string) (*HDKey, error) {
	p, root, err := ParsePathWithRoot(path)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.Derive", err)
	}
	key := k
	if root == PublicRoot {
		key = k.Neuter()
	}
	return key.DerivePath(p)
}

// DeriveNextValid derives path, moving to the next index whenever a child is
// invalid. It returns the path actually derived.
func (k *HDKey) DeriveNextValid(path DerivationPath) (*HDKey, DerivationPath, error) {
	key := k
	used := make(DerivationPath, 0, len(path))
	for _, i := range path {
		for {
			child, err := key.Child(i)
			if errors.Is(err, ErrInvalidChild) && i+1 != HardenedKeyStart && i != ^uint32(0) {
				i++
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			key = child
			used = append(used, i)
			break
		}
	}
	return key, used, nil
}

// ExtendedPrivate serializes the private extended key.
func (k *HDKey) ExtendedPrivate() (string, error) {
	if !k.IsPrivate() {
		return "", errs.New(errs.ErrInvalidKey, "keys.ExtendedPrivate", ErrNotPrivate)
	}
	return k.serialize(true)
}

// ExtendedPublic serializes the public extended key.
func (k *HDKey) ExtendedPublic() (string, error) {
	return k.serialize(false)
}

// String returns the private extended key when available, the public one
// otherwise.
func (k *HDKey) String() string {
	s, err := k.serialize(k.IsPrivate())
	if err != nil {
		return ""
	}
	return s
}

// Address returns the single key address of the key for its witness type.
func (k *HDKey) Address() (*address.Address, error) {
	return k.Key.Address(k.WitnessType)
}

// Equal reports whether both keys serialize to the same public extended key.
func (k *HDKey) Equal(o *HDKey) bool {
	if o == nil {
		return false
	}
	return k.Key.Equal(o.Key) && k.ChainCode == o.ChainCode &&
		k.Depth == o.Depth && k.ParentFP == o.ParentFP && k.ChildIndex == o.ChildIndex
}

func (k *HDKey) version(private bool) ([4]byte, error) {
	v, err := k.Network.HDVersion(k.WitnessType, k.Multisig)
	if err != nil {
		return [4]byte{}, err
	}
	if private {
		return v.Private, nil
	}
	return v.Public, nil
}

func (k *HDKey) serialize(private bool) (string, error) {
	version, err := k.version(private)
	if err != nil {
		return "", errs.New(errs.ErrConfig, "keys.serialize", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, serializedKeyLen))
	buf.Write(version[:])
	buf.WriteByte(k.Depth)
	buf.Write(k.ParentFP[:])
	_ = binary.Write(buf, binary.BigEndian, k.ChildIndex)
	buf.Write(k.ChainCode[:])
	if private {
		buf.WriteByte(0x00)
		buf.Write(k.priv.Serialize())
	} else {
		buf.Write(k.PublicCompressed())
	}
	return encoding.Base58CheckEncode(buf.Bytes()), nil
}

func (k *HDKey) extended() *hdkeychain.ExtendedKey {
	version, _ := k.version(k.IsPrivate())
	keyData := k.PublicCompressed()
	if k.IsPrivate() {
		keyData = k.priv.Serialize()
	}
	return hdkeychain.NewExtendedKey(
		version[:], keyData, k.ChainCode[:], k.ParentFP[:],
		k.Depth, k.ChildIndex, k.IsPrivate(),
	)
}

func fromExtended(
	ext *hdkeychain.ExtendedKey, net *network.Network,
	witnessType network.WitnessType, multisig bool,
) (*HDKey, error) {
	var (
		key *Key
		err error
	)
	if ext.IsPrivate() {
		var priv *btcec.PrivateKey
		priv, err = ext.ECPrivKey()
		if err == nil {
			key, err = NewKeyFromPrivate(priv.Serialize(), true, net)
		}
	} else {
		var pub *btcec.PublicKey
		pub, err = ext.ECPubKey()
		if err == nil {
			key, err = NewKeyFromPublic(pub.SerializeCompressed(), net)
		}
	}
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, "keys.fromExtended",
			fmt.Errorf("%w: %v", ErrInvalidChild, err))
	}

	k := &HDKey{
		Key:         key,
		Depth:       ext.Depth(),
		ChildIndex:  ext.ChildIndex(),
		KeyType:     BIP32,
		WitnessType: witnessType,
		Multisig:    multisig,
	}
	copy(k.ChainCode[:], ext.ChainCode())
	binary.BigEndian.PutUint32(k.ParentFP[:], ext.ParentFingerprint())
	return k, nil
}
