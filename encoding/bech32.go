package encoding

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	// ErrInvalidHRP is returned for an empty, oversized or unexpected
	// human-readable part.
	ErrInvalidHRP = errors.New("invalid bech32 human-readable part")
	// ErrMixedCase is returned when a bech32 string mixes upper and lower case.
	ErrMixedCase = errors.New("bech32 string mixes case")
	// ErrInvalidWitnessVersion is returned for witness versions above 16.
	ErrInvalidWitnessVersion = errors.New("invalid witness version")
	// ErrInvalidProgramLength is returned for witness programs of a
	// length not allowed for their version.
	ErrInvalidProgramLength = errors.New("invalid witness program length")
	// ErrInvalidChecksumVariant is returned when a v0 program is encoded
	// with bech32m or a v1+ program with bech32.
	ErrInvalidChecksumVariant = errors.New("wrong bech32 checksum variant for witness version")
)

// SegwitAddress is a decoded segwit address.
type SegwitAddress struct {
	HRP     string
	Version byte
	Program []byte
}

// Bech32Encode encodes a witness program. Version 0 uses the bech32 checksum
// constant, every later version uses bech32m.
func Bech32Encode(hrp string, version byte, program []byte) (string, error) {
	if err := validateHRP(hrp); err != nil {
		return "", err
	}
	if err := validateProgram(version, program); err != nil {
		return "", err
	}

	conv, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := append([]byte{version}, conv...)
	if version == 0 {
		return bech32.Encode(hrp, data)
	}
	return bech32.EncodeM(hrp, data)
}

// Bech32Decode decodes a segwit address. When expectedHRP is not empty the
// decoded human-readable part must equal it.
func Bech32Decode(expectedHRP, addr string) (*SegwitAddress, error) {
	if strings.ToLower(addr) != addr && strings.ToUpper(addr) != addr {
		return nil, ErrMixedCase
	}

	hrp, data, variant, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return nil, err
	}
	if expectedHRP != "" && hrp != strings.ToLower(expectedHRP) {
		return nil, ErrInvalidHRP
	}
	if len(data) < 1 {
		return nil, ErrInvalidProgramLength
	}

	version := data[0]
	if version > 16 {
		return nil, ErrInvalidWitnessVersion
	}
	switch {
	case version == 0 && variant != bech32.Version0:
		return nil, ErrInvalidChecksumVariant
	case version > 0 && variant != bech32.VersionM:
		return nil, ErrInvalidChecksumVariant
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, err
	}
	if err := validateProgram(version, program); err != nil {
		return nil, err
	}
	return &SegwitAddress{HRP: hrp, Version: version, Program: program}, nil
}

// Bech32HRP returns the lowercase human-readable part of s without
// validating the checksum, or "" if s has no separator.
func Bech32HRP(s string) string {
	i := strings.LastIndexByte(s, '1')
	if i < 1 {
		return ""
	}
	return strings.ToLower(s[:i])
}

func validateHRP(hrp string) error {
	if len(hrp) == 0 || len(hrp) > 83 {
		return ErrInvalidHRP
	}
	for i := 0; i < len(hrp); i++ {
		if hrp[i] < 33 || hrp[i] > 126 {
			return ErrInvalidHRP
		}
	}
	if strings.ToLower(hrp) != hrp && strings.ToUpper(hrp) != hrp {
		return ErrMixedCase
	}
	return nil
}

func validateProgram(version byte, program []byte) error {
	if version > 16 {
		return ErrInvalidWitnessVersion
	}
	if len(program) < 2 || len(program) > 40 {
		return ErrInvalidProgramLength
	}
	if version == 0 && len(program) != 20 && len(program) != 32 {
		return ErrInvalidProgramLength
	}
	return nil
}
