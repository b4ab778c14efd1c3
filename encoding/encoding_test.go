package encoding_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"pgregory.net/rapid"
)

func TestChangeBase(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		from, to  int
		minLength int
		want      string
	}{
		{"hex to decimal", "ff", 16, 10, 0, "255"},
		{"hex to binary", "ff", 16, 2, 0, "11111111"},
		{"decimal to hex padded", "255", 10, 16, 4, "00ff"},
		{"ternary to decimal", "102", 3, 10, 0, "11"},
		{"decimal to base58", "57", 10, 58, 0, "z"},
		{"binary to hex", "1010", 2, 16, 0, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encoding.ChangeBaseString(tt.input, tt.from, tt.to, tt.minLength)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestChangeBaseBase58LeadingZeros(t *testing.T) {
	out, err := encoding.ChangeBase([]byte{0, 0, 1}, 256, 58, 0)
	require.NoError(t, err)
	require.Equal(t, "112", string(out))

	back, err := encoding.ChangeBase(out, 58, 256, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 1}, back)
}

func TestChangeBaseErrors(t *testing.T) {
	_, err := encoding.ChangeBaseString("12", 10, 7, 0)
	require.ErrorIs(t, err, encoding.ErrInvalidBase)

	_, err = encoding.ChangeBaseString("0OIl", 58, 16, 0)
	require.ErrorIs(t, err, encoding.ErrInvalidCharacter)

	_, err = encoding.ChangeBaseString("102", 2, 10, 0)
	require.ErrorIs(t, err, encoding.ErrInvalidCharacter)
}

func TestChangeBaseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "data")
		base := rapid.SampledFrom([]int{2, 3, 10, 16, 32, 58, 256}).Draw(t, "base")

		encoded, err := encoding.ChangeBase(data, 256, base, 0)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := encoding.ChangeBase(encoded, base, 256, len(data))
		if err != nil {
			t.Fatal(err)
		}
		if hex.EncodeToString(decoded) != hex.EncodeToString(data) {
			t.Fatalf("round trip mismatch in base %d: %x != %x", base, decoded, data)
		}
	})
}

func TestBase58CheckBitFlip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 40).Draw(t, "payload")
		encoded := encoding.Base58CheckEncode(payload)

		decoded, err := encoding.Base58CheckDecode(encoded)
		if err != nil || hex.EncodeToString(decoded) != hex.EncodeToString(payload) {
			t.Fatalf("round trip failed: %v", err)
		}

		raw, _ := encoding.Base58Decode(encoded)
		bit := rapid.IntRange(0, len(raw)*8-1).Draw(t, "bit")
		raw[bit/8] ^= 1 << (bit % 8)
		if _, err := encoding.Base58CheckDecode(encoding.Base58Encode(raw)); err == nil {
			t.Fatalf("bit flip %d not detected", bit)
		}
	})
}

func TestBech32Vectors(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		hrp     string
		version byte
		program string
	}{
		{
			"p2wpkh uppercase",
			"BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4",
			"bc", 0, "751e76e8199196d454941c45d1b3a323f1433bd6",
		},
		{
			"p2tr",
			"bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0",
			"bc", 1, "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := encoding.Bech32Decode(tt.hrp, tt.addr)
			require.NoError(t, err)
			require.Equal(t, tt.version, dec.Version)
			require.Equal(t, tt.program, hex.EncodeToString(dec.Program))

			enc, err := encoding.Bech32Encode(tt.hrp, dec.Version, dec.Program)
			require.NoError(t, err)
			require.Equal(t, toLower(tt.addr), enc)
		})
	}
}

func TestBech32ChecksumVariant(t *testing.T) {
	program, _ := hex.DecodeString("751e76e8199196d454941c45d1b3a323f1433bd6")
	conv, err := bech32.ConvertBits(program, 8, 5, true)
	require.NoError(t, err)

	v0m, err := bech32.EncodeM("bc", append([]byte{0}, conv...))
	require.NoError(t, err)
	_, err = encoding.Bech32Decode("bc", v0m)
	require.ErrorIs(t, err, encoding.ErrInvalidChecksumVariant)

	program32 := make([]byte, 32)
	conv32, err := bech32.ConvertBits(program32, 8, 5, true)
	require.NoError(t, err)
	v1plain, err := bech32.Encode("bc", append([]byte{1}, conv32...))
	require.NoError(t, err)
	_, err = encoding.Bech32Decode("bc", v1plain)
	require.ErrorIs(t, err, encoding.ErrInvalidChecksumVariant)
}

func TestBech32Rejects(t *testing.T) {
	_, err := encoding.Bech32Decode("bc", "bc1qW508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	require.ErrorIs(t, err, encoding.ErrMixedCase)

	_, err = encoding.Bech32Decode("tb", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	require.ErrorIs(t, err, encoding.ErrInvalidHRP)

	_, err = encoding.Bech32Encode("", 0, make([]byte, 20))
	require.ErrorIs(t, err, encoding.ErrInvalidHRP)

	_, err = encoding.Bech32Encode("bc", 0, make([]byte, 21))
	require.ErrorIs(t, err, encoding.ErrInvalidProgramLength)
}

func TestVarInt(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "00"},
		{0xfc, "fc"},
		{0xfd, "fdfd00"},
		{0xffff, "fdffff"},
		{0x10000, "fe00000100"},
		{0x100000000, "ff0000000001000000"},
	}
	for _, tt := range tests {
		enc := encoding.VarInt(tt.n)
		require.Equal(t, tt.want, hex.EncodeToString(enc))
		require.Equal(t, len(enc), encoding.VarIntSize(tt.n))

		n, size, err := encoding.DecodeVarInt(enc)
		require.NoError(t, err)
		require.Equal(t, tt.n, n)
		require.Equal(t, len(enc), size)
	}

	_, _, err := encoding.DecodeVarInt([]byte{0xfd, 0x01, 0x00})
	require.Error(t, err)
}

func TestHashes(t *testing.T) {
	require.Equal(t,
		"9c1185a5c5e9fc54612808977ee8f548b2258d31",
		hex.EncodeToString(encoding.RIPEMD160(nil)),
	)
	require.Equal(t,
		"b472a266d0bd89c13706a4132ccfb16f7c3b9fcb",
		hex.EncodeToString(encoding.Hash160(nil)),
	)
	require.Equal(t,
		"5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456",
		hex.EncodeToString(encoding.DoubleSHA256(nil)),
	)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
