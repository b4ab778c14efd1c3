package keys

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/curve"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	bip38PayloadLen     = 39
	intermediatePayload = 49
	confirmationPayload = 51
	maxLotNumber        = 1048575
	maxSequenceNumber   = 4095
	ownerSaltLen        = 8
	ownerSaltWithLotLen = 4
	seedbLen            = 24

	flagCompressed      = 0x20
	flagLotSequence     = 0x04
	flagNonECMultiplied = 0xc0

	scryptN        = 16384
	scryptR        = 8
	scryptP        = 8
	addressScryptN = 1024
	addressScryptR = 1
	addressScryptP = 1
)

var (
	bip38NonEC        = []byte{0x01, 0x42}
	bip38EC           = []byte{0x01, 0x43}
	magicLot          = []byte{0x2c, 0xe9, 0xb3, 0xe1, 0xff, 0x39, 0xe2, 0x53}
	magicNoLot        = []byte{0x2c, 0xe9, 0xb3, 0xe1, 0xff, 0x39, 0xe2, 0x51}
	confirmationMagic = []byte{0x64, 0x3b, 0xf6, 0xa8, 0x9a}
)

var (
	// ErrBIP38AddressHash is returned when the decrypted key does not match
	// the address hash, usually because of a wrong passphrase.
	ErrBIP38AddressHash = errors.New("bip38 address hash mismatch, wrong passphrase?")
	// ErrInvalidBIP38 is returned for malformed encrypted keys.
	ErrInvalidBIP38 = errors.New("malformed bip38 encrypted key")
	// ErrInvalidIntermediate is returned for malformed intermediate codes.
	ErrInvalidIntermediate = errors.New("malformed intermediate passphrase code")
	// ErrInvalidConfirmationCode is returned for malformed or non matching
	// confirmation codes.
	ErrInvalidConfirmationCode = errors.New("invalid confirmation code")
	// ErrInvalidLotSequence is returned for lot or sequence numbers out of
	// range.
	ErrInvalidLotSequence = errors.New("lot must be <= 1048575 and sequence <= 4095")
)

// LotSequence are the optional lot and sequence numbers of an EC-multiplied
// BIP-38 key.
type LotSequence struct {
	Lot      uint32
	Sequence uint32
}

// EncryptedKey is the result of GenerateEncryptedKey.
type EncryptedKey struct {
	Encrypted        string
	ConfirmationCode string
	Address          string
}

// BIP38Encrypt encrypts the key with passphrase, without EC multiplication.
func (k *Key) BIP38Encrypt(passphrase string) (string, error) {
	const op = "keys.BIP38Encrypt"

	priv, err := k.PrivateBytes()
	if err != nil {
		return "", err
	}
	addr, err := k.p2pkhAddress()
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	addrHash := addressHash(addr)

	dk, err := scrypt.Key(normalize(passphrase), addrHash, scryptN, scryptR, scryptP, 64)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	half1, half2 := dk[:32], dk[32:]

	block, _ := aes.NewCipher(half2)
	x := xor(priv, half1)
	enc := make([]byte, 32)
	block.Encrypt(enc[:16], x[:16])
	block.Encrypt(enc[16:], x[16:])

	flag := byte(flagNonECMultiplied)
	if k.Compressed {
		flag |= flagCompressed
	}

	payload := make([]byte, 0, bip38PayloadLen)
	payload = append(payload, bip38NonEC...)
	payload = append(payload, flag)
	payload = append(payload, addrHash...)
	payload = append(payload, enc...)
	return encoding.Base58CheckEncode(payload), nil
}

// BIP38Decrypt decrypts an encrypted key, with or without EC multiplication.
// The compression is taken from the flag byte and the address hash is
// checked against the P2PKH address of net.
func BIP38Decrypt(encrypted, passphrase string, net *network.Network) (*Key, error) {
	const op = "keys.BIP38Decrypt"
	net = orDefault(net)

	payload, err := encoding.Base58CheckDecode(encrypted)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	if len(payload) != bip38PayloadLen {
		return nil, errs.New(errs.ErrInvalidKey, op, ErrInvalidBIP38)
	}

	flag := payload[2]
	compressed := flag&flagCompressed != 0
	addrHash := payload[3:7]
	pass := normalize(passphrase)

	var priv []byte
	switch {
	case bytes.Equal(payload[:2], bip38NonEC):
		dk, err := scrypt.Key(pass, addrHash, scryptN, scryptR, scryptP, 64)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidKey, op, err)
		}
		half1, half2 := dk[:32], dk[32:]
		block, _ := aes.NewCipher(half2)
		x := make([]byte, 32)
		block.Decrypt(x[:16], payload[7:23])
		block.Decrypt(x[16:], payload[23:39])
		priv = xor(x, half1)

	case bytes.Equal(payload[:2], bip38EC):
		ownerEntropy := payload[7:15]
		passFactor, err := derivePassFactor(pass, ownerEntropy, flag&flagLotSequence != 0)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidKey, op, err)
		}
		passPoint, err := curve.ScalarBaseMult(passFactor)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidKey, op, err)
		}
		half1, half2, err := addressKeys(passPoint.Compressed(), addrHash, ownerEntropy)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidKey, op, err)
		}

		block, _ := aes.NewCipher(half2)
		dec2 := make([]byte, 16)
		block.Decrypt(dec2, payload[23:39])
		dec2 = xor(dec2, half1[16:])

		part1 := append(append([]byte{}, payload[15:23]...), dec2[:8]...)
		dec1 := make([]byte, 16)
		block.Decrypt(dec1, part1)
		dec1 = xor(dec1, half1[:16])

		seedb := append(dec1, dec2[8:]...)
		factorB := encoding.DoubleSHA256(seedb)

		k := new(big.Int).SetBytes(passFactor)
		k.Mul(k, new(big.Int).SetBytes(factorB))
		k.Mod(k, curve.N)
		if k.Sign() == 0 {
			return nil, errs.New(errs.ErrInvalidKey, op, ErrInvalidPrivateKey)
		}
		priv = k.FillBytes(make([]byte, 32))

	default:
		return nil, errs.New(errs.ErrInvalidKey, op, ErrInvalidBIP38)
	}

	key, err := NewKeyFromPrivate(priv, compressed, net)
	if err != nil {
		return nil, err
	}
	addr, err := key.p2pkhAddress()
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	if !bytes.Equal(addressHash(addr), addrHash) {
		return nil, errs.New(errs.ErrInvalidKey, op, ErrBIP38AddressHash)
	}
	return key, nil
}

// NewIntermediatePassphrase returns the intermediate code the owner of
// passphrase hands to a key generator. The owner salt is read from r.
func NewIntermediatePassphrase(passphrase string, lot *LotSequence, r io.Reader) (string, error) {
	const op = "keys.NewIntermediatePassphrase"
	if r == nil {
		r = rand.Reader
	}

	saltLen := ownerSaltLen
	if lot != nil {
		if lot.Lot > maxLotNumber || lot.Sequence > maxSequenceNumber {
			return "", errs.New(errs.ErrInvalidKey, op, ErrInvalidLotSequence)
		}
		saltLen = ownerSaltWithLotLen
	}
	ownerSalt := make([]byte, saltLen)
	if _, err := io.ReadFull(r, ownerSalt); err != nil {
		return "", err
	}

	ownerEntropy := ownerSalt
	magic := magicNoLot
	if lot != nil {
		ownerEntropy = make([]byte, 8)
		copy(ownerEntropy, ownerSalt)
		binary.BigEndian.PutUint32(ownerEntropy[4:], lot.Lot*4096+lot.Sequence)
		magic = magicLot
	}

	passFactor, err := derivePassFactor(normalize(passphrase), ownerEntropy, lot != nil)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	passPoint, err := curve.ScalarBaseMult(passFactor)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}

	payload := make([]byte, 0, intermediatePayload)
	payload = append(payload, magic...)
	payload = append(payload, ownerEntropy...)
	payload = append(payload, passPoint.Compressed()...)
	return encoding.Base58CheckEncode(payload), nil
}

// GenerateEncryptedKey creates a new encrypted key from an intermediate code
// without knowing the passphrase. The 24-byte seed is read from r.
func GenerateEncryptedKey(
	intermediate string, compressed bool, net *network.Network, r io.Reader,
) (*EncryptedKey, error) {
	const op = "keys.GenerateEncryptedKey"
	net = orDefault(net)
	if r == nil {
		r = rand.Reader
	}

	payload, err := encoding.Base58CheckDecode(intermediate)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	if len(payload) != intermediatePayload {
		return nil, errs.New(errs.ErrInvalidKey, op, ErrInvalidIntermediate)
	}
	magic := payload[:8]
	lot := bytes.Equal(magic, magicLot)
	if !lot && !bytes.Equal(magic, magicNoLot) {
		return nil, errs.New(errs.ErrInvalidKey, op, ErrInvalidIntermediate)
	}
	ownerEntropy := payload[8:16]
	passPointBytes := payload[16:49]
	passPoint, err := curve.ParsePoint(passPointBytes)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}

	seedb := make([]byte, seedbLen)
	if _, err := io.ReadFull(r, seedb); err != nil {
		return nil, err
	}
	factorB := encoding.DoubleSHA256(seedb)

	genPoint, err := curve.ScalarMult(passPoint, factorB)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	pubBytes := genPoint.Uncompressed()
	if compressed {
		pubBytes = genPoint.Compressed()
	}
	addr, err := address.FromHash(encoding.Hash160(pubBytes), address.P2PKH, net)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	addrHash := addressHash(addr.String())

	half1, half2, err := addressKeys(passPointBytes, addrHash, ownerEntropy)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	block, _ := aes.NewCipher(half2)

	part1 := make([]byte, 16)
	block.Encrypt(part1, xor(seedb[:16], half1[:16]))
	part2 := make([]byte, 16)
	block.Encrypt(part2, xor(append(append([]byte{}, part1[8:]...), seedb[16:]...), half1[16:]))

	flag := ecFlag(compressed, lot)
	enc := make([]byte, 0, bip38PayloadLen)
	enc = append(enc, bip38EC...)
	enc = append(enc, flag)
	enc = append(enc, addrHash...)
	enc = append(enc, ownerEntropy...)
	enc = append(enc, part1[:8]...)
	enc = append(enc, part2...)

	pointB, err := curve.ScalarBaseMult(factorB)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidKey, op, err)
	}
	pointBBytes := pointB.Compressed()
	encPointB := make([]byte, 33)
	encPointB[0] = pointBBytes[0] ^ (half2[31] & 0x01)
	block.Encrypt(encPointB[1:17], xor(pointBBytes[1:17], half1[:16]))
	block.Encrypt(encPointB[17:], xor(pointBBytes[17:], half1[16:]))

	code := make([]byte, 0, confirmationPayload)
	code = append(code, confirmationMagic...)
	code = append(code, flag)
	code = append(code, addrHash...)
	code = append(code, ownerEntropy...)
	code = append(code, encPointB...)

	return &EncryptedKey{
		Encrypted:        encoding.Base58CheckEncode(enc),
		ConfirmationCode: encoding.Base58CheckEncode(code),
		Address:          addr.String(),
	}, nil
}

// VerifyConfirmationCode checks code against passphrase and returns the
// address of the key it confirms.
func VerifyConfirmationCode(code, passphrase string, net *network.Network) (string, error) {
	const op = "keys.VerifyConfirmationCode"
	net = orDefault(net)

	payload, err := encoding.Base58CheckDecode(code)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	if len(payload) != confirmationPayload || !bytes.Equal(payload[:5], confirmationMagic) {
		return "", errs.New(errs.ErrInvalidKey, op, ErrInvalidConfirmationCode)
	}

	flag := payload[5]
	addrHash := payload[6:10]
	ownerEntropy := payload[10:18]
	encPointB := payload[18:51]

	passFactor, err := derivePassFactor(normalize(passphrase), ownerEntropy, flag&flagLotSequence != 0)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	passPoint, err := curve.ScalarBaseMult(passFactor)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	half1, half2, err := addressKeys(passPoint.Compressed(), addrHash, ownerEntropy)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}

	block, _ := aes.NewCipher(half2)
	pointBBytes := make([]byte, 33)
	pointBBytes[0] = encPointB[0] ^ (half2[31] & 0x01)
	block.Decrypt(pointBBytes[1:17], encPointB[1:17])
	block.Decrypt(pointBBytes[17:], encPointB[17:])
	copy(pointBBytes[1:17], xor(pointBBytes[1:17], half1[:16]))
	copy(pointBBytes[17:], xor(pointBBytes[17:], half1[16:]))

	pointB, err := curve.ParsePoint(pointBBytes)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op,
			fmt.Errorf("%w: %v", ErrInvalidConfirmationCode, err))
	}
	genPoint, err := curve.ScalarMult(pointB, passFactor)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	pubBytes := genPoint.Uncompressed()
	if flag&flagCompressed != 0 {
		pubBytes = genPoint.Compressed()
	}
	addr, err := address.FromHash(encoding.Hash160(pubBytes), address.P2PKH, net)
	if err != nil {
		return "", errs.New(errs.ErrInvalidKey, op, err)
	}
	if !bytes.Equal(addressHash(addr.String()), addrHash) {
		return "", errs.New(errs.ErrInvalidKey, op, ErrInvalidConfirmationCode)
	}
	return addr.String(), nil
}

// IsBIP38 reports whether s looks like a BIP-38 encrypted key.
func IsBIP38(s string) bool {
	if len(s) != 58 || s[:2] != "6P" {
		return false
	}
	payload, err := encoding.Base58CheckDecode(s)
	return err == nil && len(payload) == bip38PayloadLen
}

// p2pkhAddress is the address BIP-38 hashes, in the key's own compression.
func (k *Key) p2pkhAddress() (string, error) {
	addr, err := address.FromHash(k.Hash160(), address.P2PKH, k.Network)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func derivePassFactor(pass, ownerEntropy []byte, lot bool) ([]byte, error) {
	salt := ownerEntropy
	if lot {
		salt = ownerEntropy[:4]
	}
	prefactor, err := scrypt.Key(pass, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, err
	}
	if !lot {
		return prefactor, nil
	}
	return encoding.DoubleSHA256(append(prefactor, ownerEntropy...)), nil
}

// addressKeys derives the two AES key halves of the EC-multiplied scheme.
func addressKeys(passPoint, addrHash, ownerEntropy []byte) ([]byte, []byte, error) {
	salt := append(append([]byte{}, addrHash...), ownerEntropy...)
	dk, err := scrypt.Key(passPoint, salt, addressScryptN, addressScryptR, addressScryptP, 64)
	if err != nil {
		return nil, nil, err
	}
	return dk[:32], dk[32:], nil
}

func ecFlag(compressed, lot bool) byte {
	var flag byte
	if compressed {
		flag |= flagCompressed
	}
	if lot {
		flag |= flagLotSequence
	}
	return flag
}

func addressHash(addr string) []byte {
	return encoding.DoubleSHA256([]byte(addr))[:4]
}

func normalize(passphrase string) []byte {
	return []byte(norm.NFC.String(passphrase))
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
