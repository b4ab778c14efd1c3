package script

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/vulpemventures/go-bitcoin/curve"
	"github.com/vulpemventures/go-bitcoin/errs"
)

var (
	// ErrMalformedPush is returned if a data push runs past the end of the
	// script.
	ErrMalformedPush = errors.New("malformed data push")
	// ErrUnknownOpcode is returned by strict parsing for opcodes outside the
	// defined range.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// MaxScriptElementSize is the largest data push allowed during evaluation.
const MaxScriptElementSize = 520

// Command is one parsed script instruction. Data is set only for pushes.
type Command struct {
	Op   byte
	Data []byte
}

// IsPush reports whether the command pushes data (OP_0 included).
func (c Command) IsPush() bool {
	return c.Op <= OP_PUSHDATA4
}

// Serialize encodes the command with the push opcode it was parsed with.
func (c Command) Serialize() []byte {
	buf := []byte{c.Op}
	switch {
	case c.Op >= OP_DATA_1 && c.Op <= OP_DATA_75:
	case c.Op == OP_PUSHDATA1:
		buf = append(buf, byte(len(c.Data)))
	case c.Op == OP_PUSHDATA2:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.Data)))
	case c.Op == OP_PUSHDATA4:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Data)))
	default:
		return buf
	}
	return append(buf, c.Data...)
}

func (c Command) String() string {
	if c.IsPush() && c.Op != OP_0 {
		return hex.EncodeToString(c.Data)
	}
	return opcodeArray[c.Op].Name
}

// TokenKind is the role recognized for a blueprint entry.
type TokenKind int

const (
	TokenOp TokenKind = iota
	TokenKey
	TokenSignature
	TokenData
	TokenScript
)

// Token is one blueprint entry: an opcode or a data push tagged by role.
type Token struct {
	Kind TokenKind
	Op   byte
	Len  int
	// Inner is the first script type of an embedded redeem script.
	Inner string
}

func (t Token) String() string {
	switch t.Kind {
	case TokenKey:
		return "key"
	case TokenSignature:
		return "signature"
	case TokenData:
		return fmt.Sprintf("data-%d", t.Len)
	case TokenScript:
		return "script"
	}
	return fmt.Sprintf("op:%d", t.Op)
}

// Script is a parsed script with its blueprint and the keys, signatures
// and redeem script surfaced by template matching.
type Script struct {
	Commands     []Command
	Blueprint    []Token
	Types        []string
	Keys         [][]byte
	Signatures   [][]byte
	SigsRequired int
	RedeemScript []byte
	Redeem       *Script
}

// Parse splits raw into commands and classifies them. Unknown opcodes are
// kept as plain opcodes; only truncated pushes are an error.
func Parse(raw []byte) (*Script, error) {
	cmds, err := parseCommands(raw, false)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidScript, "script.Parse", err)
	}
	return fromCommands(cmds, 0), nil
}

// ParseStrict is like Parse but rejects opcodes outside the defined range.
func ParseStrict(raw []byte) (*Script, error) {
	cmds, err := parseCommands(raw, true)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidScript, "script.ParseStrict", err)
	}
	return fromCommands(cmds, 0), nil
}

// FromCommands builds a classified script out of already split commands.
func FromCommands(cmds []Command) *Script {
	return fromCommands(cmds, 0)
}

// ParseCommands splits raw into commands without classifying them.
func ParseCommands(raw []byte) ([]Command, error) {
	return parseCommands(raw, false)
}

// IsPushOnly reports whether raw parses and holds nothing but pushes,
// small integers included.
func IsPushOnly(raw []byte) bool {
	cmds, err := parseCommands(raw, false)
	if err != nil {
		return false
	}
	for _, c := range cmds {
		if c.Op > OP_16 {
			return false
		}
	}
	return true
}

func parseCommands(raw []byte, strict bool) ([]Command, error) {
	cmds := make([]Command, 0, len(raw))
	for i := 0; i < len(raw); {
		op := &opcodeArray[raw[i]]
		cmd := Command{Op: op.Value}

		switch {
		case op.Length == 1:
			if strict && op.Value > OP_CHECKSIGADD {
				return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, op.Name)
			}
			i++

		case op.Length > 1:
			if len(raw[i:]) < op.Length {
				return nil, fmt.Errorf("%w: %s requires %d bytes, %d remaining",
					ErrMalformedPush, op.Name, op.Length, len(raw[i:]))
			}
			cmd.Data = raw[i+1 : i+op.Length]
			i += op.Length

		default:
			off := i + 1
			if len(raw[off:]) < -op.Length {
				return nil, fmt.Errorf("%w: %s requires %d length bytes, %d remaining",
					ErrMalformedPush, op.Name, -op.Length, len(raw[off:]))
			}
			var l uint64
			switch op.Length {
			case -1:
				l = uint64(raw[off])
			case -2:
				l = uint64(binary.LittleEndian.Uint16(raw[off:]))
			case -4:
				l = uint64(binary.LittleEndian.Uint32(raw[off:]))
			}
			off += -op.Length
			if l > uint64(len(raw[off:])) {
				return nil, fmt.Errorf("%w: %s pushes %d bytes, %d remaining",
					ErrMalformedPush, op.Name, l, len(raw[off:]))
			}
			cmd.Data = raw[off : off+int(l)]
			i = off + int(l)
		}

		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func fromCommands(cmds []Command, depth int) *Script {
	s := &Script{Commands: cmds}
	// pushes following OP_RETURN carry data only
	afterReturn := false
	for _, c := range cmds {
		if !c.IsPush() || c.Op == OP_0 {
			s.Blueprint = append(s.Blueprint, Token{Kind: TokenOp, Op: c.Op})
			afterReturn = afterReturn || c.Op == OP_RETURN
			continue
		}
		tok, redeem := classifyPush(c.Data, afterReturn, depth)
		switch tok.Kind {
		case TokenKey:
			s.Keys = append(s.Keys, c.Data)
		case TokenSignature:
			s.Signatures = append(s.Signatures, c.Data)
		case TokenScript:
			s.Redeem = redeem
			s.RedeemScript = c.Data
		}
		s.Blueprint = append(s.Blueprint, tok)
	}
	matches := classify(s.Blueprint)
	for _, m := range matches {
		s.Types = append(s.Types, m.name)
		switch m.name {
		case "p2pkh", "p2wpkh", "p2pk", "p2pkh_cltv", "p2sh_p2wpkh", "sig_pubkey":
			s.SigsRequired = 1
		case "multisig":
			s.SigsRequired = SmallIntValue(s.Blueprint[m.start].Op)
		}
	}
	if s.Redeem != nil {
		if len(s.Keys) == 0 {
			s.Keys = s.Redeem.Keys
		}
		if s.Redeem.SigsRequired > 0 {
			s.SigsRequired = s.Redeem.SigsRequired
		}
	}
	return s
}

func classifyPush(data []byte, afterReturn bool, depth int) (Token, *Script) {
	n := len(data)
	switch {
	case afterReturn:
		return Token{Kind: TokenData, Len: n}, nil
	case (n == 33 && (data[0] == 0x02 || data[0] == 0x03)) ||
		(n == 65 && data[0] == 0x04):
		return Token{Kind: TokenKey, Len: n}, nil
	case n >= 69 && n <= 74 && data[0] == 0x30:
		return Token{Kind: TokenSignature, Len: n}, nil
	case n == 20 || n == 32 || (n >= 2 && n <= 4):
		return Token{Kind: TokenData, Len: n}, nil
	}
	if depth == 0 {
		if cmds, err := parseCommands(data, true); err == nil {
			inner := fromCommands(cmds, depth+1)
			if len(inner.Types) > 0 && inner.Types[0] != TypeUnknown {
				return Token{Kind: TokenScript, Len: n, Inner: inner.Types[0]}, inner
			}
		}
	}
	return Token{Kind: TokenData, Len: n}, nil
}

// Type returns the first matched template name.
func (s *Script) Type() string {
	if len(s.Types) == 0 {
		return TypeUnknown
	}
	return s.Types[0]
}

// Serialize re-encodes the commands.
func (s *Script) Serialize() []byte {
	var buf bytes.Buffer
	for _, c := range s.Commands {
		buf.Write(c.Serialize())
	}
	return buf.Bytes()
}

// Concat returns a new script running s followed by other.
func (s *Script) Concat(other *Script) *Script {
	cmds := make([]Command, 0, len(s.Commands)+len(other.Commands))
	cmds = append(cmds, s.Commands...)
	cmds = append(cmds, other.Commands...)
	return fromCommands(cmds, 0)
}

// String returns the script in assembly form.
func (s *Script) String() string {
	parts := make([]string, 0, len(s.Commands))
	for _, c := range s.Commands {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " ")
}

// IsSignature reports whether b looks like a DER signature with a sighash
// type byte.
func IsSignature(b []byte) bool {
	if len(b) < 9 {
		return false
	}
	return curve.IsDERSignature(b[:len(b)-1])
}
