package script

import "fmt"

// PushData returns the shortest push encoding of data that does not
// replace it with a small integer opcode. An empty push is OP_0.
func PushData(data []byte) []byte {
	return pushCommand(data).Serialize()
}

func pushCommand(data []byte) Command {
	n := len(data)
	switch {
	case n == 0:
		return Command{Op: OP_0}
	case n <= 75:
		return Command{Op: byte(n), Data: data}
	case n <= 0xff:
		return Command{Op: OP_PUSHDATA1, Data: data}
	case n <= 0xffff:
		return Command{Op: OP_PUSHDATA2, Data: data}
	}
	return Command{Op: OP_PUSHDATA4, Data: data}
}

// Builder assembles a script one command at a time. Errors are sticky and
// reported by Script.
type Builder struct {
	cmds []Command
	err  error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddOp appends a non-push opcode.
func (b *Builder) AddOp(op byte) *Builder {
	if b.err != nil {
		return b
	}
	if op != OP_0 && op <= OP_PUSHDATA4 {
		b.err = fmt.Errorf("opcode %s must carry data", opcodeArray[op].Name)
		return b
	}
	b.cmds = append(b.cmds, Command{Op: op})
	return b
}

// AddData appends a push of data.
func (b *Builder) AddData(data []byte) *Builder {
	if b.err != nil {
		return b
	}
	if len(data) > MaxScriptElementSize {
		b.err = fmt.Errorf("data push of %d bytes exceeds %d",
			len(data), MaxScriptElementSize)
		return b
	}
	b.cmds = append(b.cmds, pushCommand(data))
	return b
}

// AddInt64 appends n as a small integer opcode when possible and as a
// script number push otherwise.
func (b *Builder) AddInt64(n int64) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case n == 0:
		b.cmds = append(b.cmds, Command{Op: OP_0})
	case n == -1:
		b.cmds = append(b.cmds, Command{Op: OP_1NEGATE})
	case n >= 1 && n <= 16:
		b.cmds = append(b.cmds, Command{Op: SmallIntOp(int(n))})
	default:
		b.cmds = append(b.cmds, pushCommand(EncodeNum(n)))
	}
	return b
}

// AddLockTime appends a locktime push the way CLTV and CSV scripts carry it.
func (b *Builder) AddLockTime(n uint32) *Builder {
	if n <= 16 {
		return b.AddInt64(int64(n))
	}
	return b.AddData(EncodeNum(int64(n)))
}

// AddCommands appends already built commands.
func (b *Builder) AddCommands(cmds ...Command) *Builder {
	if b.err == nil {
		b.cmds = append(b.cmds, cmds...)
	}
	return b
}

// Commands returns the accumulated commands.
func (b *Builder) Commands() []Command {
	return b.cmds
}

// Script returns the serialized script.
func (b *Builder) Script() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return FromCommands(b.cmds).Serialize(), nil
}

// MultisigScript returns OP_m <keys...> OP_n OP_CHECKMULTISIG.
func MultisigScript(m int, pubKeys [][]byte) ([]byte, error) {
	if m < 1 || m > len(pubKeys) || len(pubKeys) > 16 {
		return nil, fmt.Errorf("invalid %d-of-%d multisig", m, len(pubKeys))
	}
	b := NewBuilder().AddInt64(int64(m))
	for _, k := range pubKeys {
		b.AddData(k)
	}
	return b.AddInt64(int64(len(pubKeys))).AddOp(OP_CHECKMULTISIG).Script()
}

// P2PKHScript returns the pay-to-pubkey-hash locking script of hash.
func P2PKHScript(hash []byte) []byte {
	out := []byte{OP_DUP, OP_HASH160}
	out = append(out, PushData(hash)...)
	return append(out, OP_EQUALVERIFY, OP_CHECKSIG)
}

// P2SHScript returns the pay-to-script-hash locking script of hash.
func P2SHScript(hash []byte) []byte {
	out := []byte{OP_HASH160}
	out = append(out, PushData(hash)...)
	return append(out, OP_EQUAL)
}

// WitnessProgram returns the locking script of a segwit program.
func WitnessProgram(version byte, program []byte) []byte {
	return append([]byte{SmallIntOp(int(version))}, PushData(program)...)
}
