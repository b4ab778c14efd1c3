package keys_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/keys"
)

func TestParseDerivationPath(t *testing.T) {
	h := uint32(keys.HardenedKeyStart)
	tests := []struct {
		path string
		want keys.DerivationPath
		root keys.PathRoot
		str  string
	}{
		{"m/44'/0h/1H/2p/3P", keys.DerivationPath{h + 44, h, h + 1, h + 2, h + 3}, keys.PrivateRoot,
			"m/44'/0'/1'/2'/3'"},
		{"M/0/1", keys.DerivationPath{0, 1}, keys.PublicRoot, "m/0/1"},
		{"0/5", keys.DerivationPath{0, 5}, keys.RelativeRoot, "m/0/5"},
		{"m", keys.DerivationPath{}, keys.PrivateRoot, "m"},
		{" m / 84' / 2147483647 ", keys.DerivationPath{h + 84, h - 1}, keys.PrivateRoot,
			"m/84'/2147483647"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			path, root, err := keys.ParsePathWithRoot(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, path)
			require.Equal(t, tt.root, root)
			require.Equal(t, tt.str, path.String())
		})
	}
}

func TestParseDerivationPathErrors(t *testing.T) {
	_, err := keys.ParseDerivationPath("")
	require.ErrorIs(t, err, keys.ErrNullDerivationPath)

	for _, p := range []string{"m/", "m//0", "m/x", "m/2147483648", "m/-1", "m/0/m"} {
		_, err := keys.ParseDerivationPath(p)
		require.ErrorIs(t, err, keys.ErrMalformedDerivationPath, p)
	}
}

func TestFormatIndex(t *testing.T) {
	require.Equal(t, "7", keys.FormatIndex(7))
	require.Equal(t, "7'", keys.FormatIndex(keys.HardenedKeyStart+7))
	require.True(t, keys.IsHardenedIndex(keys.HardenedKeyStart))

	base, _ := keys.ParseDerivationPath("m/84'/0'")
	full := base.Append(0, 3)
	require.Equal(t, "m/84'/0'/0/3", full.String())
	require.Len(t, base, 2)
}
