package script_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/script"
	"pgregory.net/rapid"
)

const (
	pubKey1 = "022df8750480ad5b26950b25c7ba79d3e37d75f640f8e5d9bcd5b150a0f85014da"
	pubKey2 = "03e3818b65bcc73a7d64064106a859cc1a5a728c4345ff0b641209fba0d90de6e9"
	pubKey3 = "021f2f6e1e50cb6a953935c3601284925decd3fd21bc445712576873fb8c6ebc18"
	derSig  = "3045022100934b1ea10a4b3c1757e2b0c017d0b6143ce3c9a7e6a4a49860d7a6ab210ee3d802202442ce9d2b916064108014783e923ec36b49743e2ffa1c4496f01a512aafd9e501"
)

func h(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestOpcodeTable(t *testing.T) {
	assert.Equal(t, "OP_CHECKSIG", script.OpcodeByValue(0xac).Name)
	assert.Equal(t, "OP_DATA_20", script.OpcodeByValue(0x14).Name)
	assert.Equal(t, 21, script.OpcodeByValue(0x14).Length)
	assert.Equal(t, -2, script.OpcodeByValue(script.OP_PUSHDATA2).Length)

	op, ok := script.OpcodeByName("CHECKMULTISIG")
	require.True(t, ok)
	assert.Equal(t, byte(script.OP_CHECKMULTISIG), op)

	op, ok = script.OpcodeByName("OP_NOP2")
	require.True(t, ok)
	assert.Equal(t, byte(script.OP_CHECKLOCKTIMEVERIFY), op)

	assert.Equal(t, 16, script.SmallIntValue(script.OP_16))
	assert.Equal(t, byte(script.OP_3), script.SmallIntOp(3))
}

func TestPushData(t *testing.T) {
	tests := []struct {
		size   int
		prefix []byte
	}{
		{0, []byte{script.OP_0}},
		{1, []byte{0x01}},
		{75, []byte{0x4b}},
		{76, []byte{script.OP_PUSHDATA1, 76}},
		{255, []byte{script.OP_PUSHDATA1, 0xff}},
		{256, []byte{script.OP_PUSHDATA2, 0x00, 0x01}},
		{65535, []byte{script.OP_PUSHDATA2, 0xff, 0xff}},
		{65536, []byte{script.OP_PUSHDATA4, 0x00, 0x00, 0x01, 0x00}},
	}

	for _, tt := range tests {
		data := bytes.Repeat([]byte{0xab}, tt.size)
		out := script.PushData(data)
		require.Equal(t, tt.prefix, out[:len(tt.prefix)], "size %d", tt.size)
		require.Len(t, out, len(tt.prefix)+tt.size)
	}
}

func TestClassifyLocking(t *testing.T) {
	multisig, err := script.MultisigScript(2, [][]byte{h(pubKey1), h(pubKey2), h(pubKey3)})
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      []byte
		types    []string
		sigsReq  int
		numKeys  int
		blueprnt string
	}{
		{
			name:     "p2pkh",
			raw:      h("76a914a3c3b7cc0a3f82ec5d6b8a3f0f1e68bc3d3e5b2188ac"),
			types:    []string{"p2pkh"},
			sigsReq:  1,
			blueprnt: "op:118 op:169 data-20 op:136 op:172",
		},
		{
			name:  "p2sh",
			raw:   h("a914748284390f9e263a4b766a75d0633c50426eb87587"),
			types: []string{"p2sh"},
		},
		{
			name:    "p2wpkh",
			raw:     h("0014751e76e8199196d454941c45d1b3a323f1433bd6"),
			types:   []string{"p2wpkh"},
			sigsReq: 1,
		},
		{
			name:  "p2wsh",
			raw:   h("00201863143c14c5166804bd19203356da136c985678cd4d27a1b8c6329604903262"),
			types: []string{"p2wsh"},
		},
		{
			name:  "p2tr",
			raw:   h("5120a60869f0dbcf1dc659c9cecbaf8050135ea9e8cdc487053f1dc6880949dc684c"),
			types: []string{"p2tr"},
		},
		{
			name:    "multisig",
			raw:     multisig,
			types:   []string{"multisig"},
			sigsReq: 2,
			numKeys: 3,
		},
		{
			name:    "p2pk",
			raw:     append(script.PushData(h(pubKey1)), script.OP_CHECKSIG),
			types:   []string{"p2pk"},
			sigsReq: 1,
			numKeys: 1,
		},
		{
			name:     "nulldata",
			raw:      append([]byte{script.OP_RETURN}, script.PushData([]byte("hello world"))...),
			types:    []string{"nulldata"},
			blueprnt: "op:106 data-11",
		},
		{
			name: "nulldata several pushes",
			raw: append(
				append([]byte{script.OP_RETURN}, script.PushData([]byte("hello"))...),
				script.PushData(h(pubKey1))...,
			),
			types:    []string{"nulldata"},
			blueprnt: "op:106 data-5 data-33",
		},
		{
			name:     "nulldata small int",
			raw:      append([]byte{script.OP_RETURN, script.OP_1}, script.PushData([]byte("hello"))...),
			types:    []string{"nulldata"},
			blueprnt: "op:106 op:81 data-5",
		},
		{
			name:  "nulldata bare",
			raw:   []byte{script.OP_RETURN},
			types: []string{"nulldata"},
		},
		{
			name:  "nulldata then opcode",
			raw:   append(append([]byte{script.OP_RETURN}, script.PushData([]byte("hello"))...), script.OP_DROP),
			types: []string{"nulldata", "unknown"},
		},
		{
			name: "p2pkh_cltv",
			raw: append(
				append(script.PushData(script.EncodeNum(500000)), script.OP_CHECKLOCKTIMEVERIFY, script.OP_DROP),
				h("76a914a3c3b7cc0a3f82ec5d6b8a3f0f1e68bc3d3e5b2188ac")...,
			),
			types:   []string{"p2pkh_cltv"},
			sigsReq: 1,
		},
		{
			name:  "unknown",
			raw:   []byte{script.OP_ADD, script.OP_5, script.OP_EQUAL},
			types: []string{"unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := script.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.types, s.Types)
			assert.Equal(t, tt.sigsReq, s.SigsRequired)
			assert.Len(t, s.Keys, tt.numKeys)
			if tt.blueprnt != "" {
				parts := make([]string, 0, len(s.Blueprint))
				for _, tok := range s.Blueprint {
					parts = append(parts, tok.String())
				}
				assert.Equal(t, tt.blueprnt, joinSpace(parts))
			}
			assert.Equal(t, tt.raw, s.Serialize())
		})
	}
}

func TestClassifyUnlocking(t *testing.T) {
	redeem, err := script.MultisigScript(2, [][]byte{h(pubKey1), h(pubKey2), h(pubKey3)})
	require.NoError(t, err)

	t.Run("sig_pubkey", func(t *testing.T) {
		raw := append(script.PushData(h(derSig)), script.PushData(h(pubKey1))...)
		s, err := script.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"sig_pubkey"}, s.Types)
		assert.Equal(t, [][]byte{h(derSig)}, s.Signatures)
		assert.Equal(t, [][]byte{h(pubKey1)}, s.Keys)
	})

	t.Run("p2sh_multisig", func(t *testing.T) {
		raw := []byte{script.OP_0}
		raw = append(raw, script.PushData(h(derSig))...)
		raw = append(raw, script.PushData(h(derSig))...)
		raw = append(raw, script.PushData(redeem)...)
		s, err := script.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2sh_multisig"}, s.Types)
		assert.Len(t, s.Signatures, 2)
		assert.Len(t, s.Keys, 3)
		assert.Equal(t, 2, s.SigsRequired)
		assert.Equal(t, redeem, s.RedeemScript)
		require.NotNil(t, s.Redeem)
		assert.Equal(t, "multisig", s.Redeem.Type())
	})

	t.Run("unsigned p2sh_multisig", func(t *testing.T) {
		raw := append([]byte{script.OP_0}, script.PushData(redeem)...)
		s, err := script.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2sh_multisig"}, s.Types)
	})

	t.Run("p2sh_p2wpkh", func(t *testing.T) {
		raw := script.PushData(h("0014751e76e8199196d454941c45d1b3a323f1433bd6"))
		s, err := script.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2sh_p2wpkh"}, s.Types)
	})

	t.Run("locktime_csv prefix", func(t *testing.T) {
		raw := append(script.PushData(script.EncodeNum(144)), script.OP_CHECKSEQUENCEVERIFY, script.OP_DROP)
		raw = append(raw, redeem...)
		s, err := script.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"locktime_csv", "multisig"}, s.Types)
	})

	t.Run("signature", func(t *testing.T) {
		s, err := script.Parse(script.PushData(h(derSig)))
		require.NoError(t, err)
		assert.Equal(t, "signature", s.Type())
	})
}

func TestIsPushOnly(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want bool
	}{
		{"empty", nil, true},
		{"pushes", append([]byte{script.OP_0, script.OP_1NEGATE, script.OP_16}, script.PushData(h(pubKey1))...), true},
		{"opcode", []byte{script.OP_1, script.OP_DROP}, false},
		{"nop", []byte{script.OP_NOP}, false},
		{"truncated push", []byte{script.OP_DATA_5, 0x01}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, script.IsPushOnly(tt.raw))
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := script.Parse([]byte{0x14, 0x01, 0x02})
	require.ErrorIs(t, err, script.ErrMalformedPush)
	require.ErrorIs(t, err, errs.ErrInvalidScript)

	_, err = script.Parse([]byte{script.OP_PUSHDATA2, 0x01})
	require.ErrorIs(t, err, script.ErrMalformedPush)

	s, err := script.Parse([]byte{0xfe})
	require.NoError(t, err)
	assert.Equal(t, "unknown", s.Type())

	_, err = script.ParseStrict([]byte{0xfe})
	require.ErrorIs(t, err, script.ErrUnknownOpcode)
}

func TestAsm(t *testing.T) {
	s, err := script.Parse(h("76a914a3c3b7cc0a3f82ec5d6b8a3f0f1e68bc3d3e5b2188ac"))
	require.NoError(t, err)
	assert.Equal(t,
		"OP_DUP OP_HASH160 a3c3b7cc0a3f82ec5d6b8a3f0f1e68bc3d3e5b21 OP_EQUALVERIFY OP_CHECKSIG",
		s.String())
}

func TestCommandRoundTrip(t *testing.T) {
	ops := []byte{
		script.OP_0, script.OP_1, script.OP_16, script.OP_DUP, script.OP_HASH160,
		script.OP_EQUAL, script.OP_EQUALVERIFY, script.OP_CHECKSIG,
		script.OP_CHECKMULTISIG, script.OP_RETURN, script.OP_IF, script.OP_ENDIF,
	}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		b := script.NewBuilder()
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "push") {
				b.AddData(rapid.SliceOfN(rapid.Byte(), 1, 300).Draw(t, "data"))
			} else {
				b.AddOp(rapid.SampledFrom(ops).Draw(t, "op"))
			}
		}
		raw, err := b.Script()
		if err != nil {
			t.Fatal(err)
		}
		cmds, err := script.ParseCommands(raw)
		if err != nil {
			t.Fatal(err)
		}
		if len(cmds) != len(b.Commands()) {
			t.Fatalf("got %d commands, want %d", len(cmds), len(b.Commands()))
		}
		for i, c := range cmds {
			want := b.Commands()[i]
			if c.Op != want.Op || !bytes.Equal(c.Data, want.Data) {
				t.Fatalf("command %d: got %v, want %v", i, c, want)
			}
		}
		if !bytes.Equal(script.FromCommands(cmds).Serialize(), raw) {
			t.Fatal("serialization mismatch")
		}
	})
}

func TestScriptNumbers(t *testing.T) {
	tests := []struct {
		n   int64
		enc string
	}{
		{0, ""},
		{1, "01"},
		{-1, "81"},
		{127, "7f"},
		{128, "8000"},
		{-128, "8080"},
		{255, "ff00"},
		{256, "0001"},
		{-256, "0081"},
		{500000, "20a107"},
	}
	for _, tt := range tests {
		enc := script.EncodeNum(tt.n)
		require.Equal(t, tt.enc, hex.EncodeToString(enc), "encode %d", tt.n)
		dec, err := script.DecodeNum(enc, 4, true)
		require.NoError(t, err)
		require.Equal(t, tt.n, dec)
	}

	_, err := script.DecodeNum(h("0100"), 4, true)
	require.ErrorIs(t, err, script.ErrMinimalData)
	n, err := script.DecodeNum(h("0100"), 4, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = script.DecodeNum(h("0102030405"), 4, false)
	require.ErrorIs(t, err, script.ErrNumberTooBig)

	assert.False(t, script.IsTrue(h("0080")))
	assert.False(t, script.IsTrue(nil))
	assert.True(t, script.IsTrue(h("0001")))
}

func joinSpace(parts []string) string {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(p)
	}
	return buf.String()
}
