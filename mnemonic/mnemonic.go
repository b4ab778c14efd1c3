// Package mnemonic implements BIP-39: conversion between entropy, word
// sequences and binary seeds.
package mnemonic

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	seedIterations = 2048
	seedLength     = 64
)

var (
	// ErrInvalidStrength is returned for entropy sizes other than 128-256
	// bits in steps of 32.
	ErrInvalidStrength = errors.New("entropy must be 128, 160, 192, 224 or 256 bits")
	// ErrInvalidLength is returned for word counts other than 12-24 in steps of 3.
	ErrInvalidLength = errors.New("mnemonic must have 12, 15, 18, 21 or 24 words")
	// ErrUnknownWord is returned when a word is not part of the wordlist.
	ErrUnknownWord = errors.New("word not found in wordlist")
	// ErrInvalidChecksum is returned when the embedded checksum does not match.
	ErrInvalidChecksum = errors.New("mnemonic checksum mismatch")
)

// Generate draws strength bits of entropy from rand and returns the
// corresponding mnemonic.
func Generate(strength int, wl *Wordlist, rand io.Reader) (string, error) {
	if !validStrength(strength) {
		return "", ErrInvalidStrength
	}
	entropy := make([]byte, strength/8)
	if _, err := io.ReadFull(rand, entropy); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	return FromEntropy(entropy, wl)
}

// FromEntropy maps entropy to words: entropy ‖ checksum is split in 11-bit
// indexes into the wordlist.
func FromEntropy(entropy []byte, wl *Wordlist) (string, error) {
	bits := len(entropy) * 8
	if !validStrength(bits) {
		return "", ErrInvalidStrength
	}
	checksumBits := bits / 32
	hash := sha256.Sum256(entropy)
	data := append(append([]byte{}, entropy...), hash[0])

	count := (bits + checksumBits) / 11
	words := make([]string, count)
	for i := 0; i < count; i++ {
		words[i] = wl.Words[readBits(data, i*11, 11)]
	}
	return strings.Join(words, wl.separator()), nil
}

// ToEntropy reverses FromEntropy, validating the checksum.
func ToEntropy(mnemonic string, wl *Wordlist) ([]byte, error) {
	words := splitWords(mnemonic)
	if len(words) < 12 || len(words) > 24 || len(words)%3 != 0 {
		return nil, ErrInvalidLength
	}

	totalBits := len(words) * 11
	checksumBits := totalBits / 33
	entropyBits := totalBits - checksumBits

	data := make([]byte, (totalBits+7)/8)
	for i, w := range words {
		idx, ok := wl.Index(w)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownWord, w)
		}
		writeBits(data, i*11, 11, idx)
	}

	entropy := data[:entropyBits/8]
	hash := sha256.Sum256(entropy)
	want := readBits(hash[:], 0, checksumBits)
	got := readBits(data, entropyBits, checksumBits)
	if want != got {
		return nil, ErrInvalidChecksum
	}
	return append([]byte{}, entropy...), nil
}

// IsValid reports whether mnemonic decodes with a valid checksum in wl.
func IsValid(mnemonic string, wl *Wordlist) bool {
	_, err := ToEntropy(mnemonic, wl)
	return err == nil
}

// ToSeed derives the 64-byte seed from a mnemonic and optional password.
// Both are NFKD normalized. The checksum is not verified, as BIP-39 allows.
func ToSeed(mnemonic, password string) []byte {
	m := norm.NFKD.String(strings.Join(splitWords(mnemonic), " "))
	salt := norm.NFKD.String("mnemonic" + password)
	return pbkdf2.Key([]byte(m), []byte(salt), seedIterations, seedLength, sha512.New)
}

// DetectLanguage returns the wordlists containing every word of mnemonic.
func DetectLanguage(mnemonic string) []*Wordlist {
	words := splitWords(mnemonic)
	if len(words) == 0 {
		return nil
	}
	var matches []*Wordlist
	for _, name := range Languages() {
		wl, _ := Lookup(name)
		if wl.ContainsAll(words) {
			matches = append(matches, wl)
		}
	}
	return matches
}

func splitWords(mnemonic string) []string {
	return strings.Fields(mnemonic)
}

func validStrength(bits int) bool {
	return bits >= 128 && bits <= 256 && bits%32 == 0
}

func readBits(data []byte, offset, n int) int {
	v := 0
	for i := 0; i < n; i++ {
		pos := offset + i
		bit := (data[pos/8] >> (7 - uint(pos%8))) & 1
		v = v<<1 | int(bit)
	}
	return v
}

func writeBits(data []byte, offset, n, v int) {
	for i := 0; i < n; i++ {
		if (v>>(n-1-i))&1 == 1 {
			pos := offset + i
			data[pos/8] |= 1 << (7 - uint(pos%8))
		}
	}
}
