package script

// TypeUnknown is reported for blueprints no template matches.
const TypeUnknown = "unknown"

// Role tells whether a template locks an output or unlocks an input.
type Role string

const (
	Locking   Role = "locking"
	Unlocking Role = "unlocking"
)

type elemKind int

const (
	elemOp elemKind = iota
	elemSmallInt
	elemData
	elemKeys
	elemSigs
	elemRedeem
	elemPushes
)

// Elem is one hole or literal of a template pattern.
type Elem struct {
	kind elemKind
	op   byte
	// accepted data lengths, empty means any
	lens []int
	// minimum run length for keys and signatures
	min   int
	inner string
}

// Op matches the opcode op.
func Op(op byte) Elem { return Elem{kind: elemOp, op: op} }

// SmallInt matches any of OP_1 through OP_16.
func SmallInt() Elem { return Elem{kind: elemSmallInt} }

// Data matches a data push whose length is one of lens, or any length.
func Data(lens ...int) Elem { return Elem{kind: elemData, lens: lens} }

// Key matches exactly one public key.
func Key() Elem { return Elem{kind: elemKeys, min: 1, lens: []int{1}} }

// Keys matches a run of one or more public keys.
func Keys() Elem { return Elem{kind: elemKeys, min: 1} }

// Sig matches exactly one signature.
func Sig() Elem { return Elem{kind: elemSigs, min: 1, lens: []int{1}} }

// Sigs matches a run of at least n signatures.
func Sigs(n int) Elem { return Elem{kind: elemSigs, min: n} }

// Pushes matches a possibly empty run of pushes, small integers included.
func Pushes() Elem { return Elem{kind: elemPushes} }

// Redeem matches an embedded script whose first type is inner.
func Redeem(inner string) Elem { return Elem{kind: elemRedeem, inner: inner} }

// Template is a named script pattern.
type Template struct {
	Name    string
	Role    Role
	Pattern []Elem
	// Check validates the matched tokens beyond the pattern.
	Check func(tokens []Token) bool
}

// Templates is the table Classify matches against. Entries with data
// length constraints come before looser ones so that equal-length
// matches resolve to the better fit.
var Templates = []Template{
	{Name: "p2pkh", Role: Locking, Pattern: []Elem{
		Op(OP_DUP), Op(OP_HASH160), Data(20), Op(OP_EQUALVERIFY), Op(OP_CHECKSIG),
	}},
	{Name: "p2sh", Role: Locking, Pattern: []Elem{
		Op(OP_HASH160), Data(20), Op(OP_EQUAL),
	}},
	{Name: "p2wpkh", Role: Locking, Pattern: []Elem{Op(OP_0), Data(20)}},
	{Name: "p2wsh", Role: Locking, Pattern: []Elem{Op(OP_0), Data(32)}},
	{Name: "p2tr", Role: Locking, Pattern: []Elem{Op(OP_1), Data(32)}},
	{Name: "multisig", Role: Locking, Pattern: []Elem{
		SmallInt(), Keys(), SmallInt(), Op(OP_CHECKMULTISIG),
	}, Check: checkMultisig},
	{Name: "p2pk", Role: Locking, Pattern: []Elem{Key(), Op(OP_CHECKSIG)}},
	{Name: "nulldata", Role: Locking, Pattern: []Elem{Op(OP_RETURN), Pushes()}},
	{Name: "p2pkh_cltv", Role: Locking, Pattern: []Elem{
		Data(), Op(OP_CHECKLOCKTIMEVERIFY), Op(OP_DROP),
		Op(OP_DUP), Op(OP_HASH160), Data(20), Op(OP_EQUALVERIFY), Op(OP_CHECKSIG),
	}},

	{Name: "sig_pubkey", Role: Unlocking, Pattern: []Elem{Sig(), Key()}},
	{Name: "p2sh_multisig", Role: Unlocking, Pattern: []Elem{
		Op(OP_0), Sigs(0), Redeem("multisig"),
	}},
	{Name: "p2sh_p2wpkh", Role: Unlocking, Pattern: []Elem{Redeem("p2wpkh")}},
	{Name: "p2sh_p2wsh", Role: Unlocking, Pattern: []Elem{Redeem("p2wsh")}},
	{Name: "signature_multisig", Role: Unlocking, Pattern: []Elem{Op(OP_0), Sigs(1)}},
	{Name: "signature", Role: Unlocking, Pattern: []Elem{Sig()}},
	{Name: "locktime_cltv", Role: Unlocking, Pattern: []Elem{
		Data(), Op(OP_CHECKLOCKTIMEVERIFY), Op(OP_DROP),
	}},
	{Name: "locktime_csv", Role: Unlocking, Pattern: []Elem{
		Data(), Op(OP_CHECKSEQUENCEVERIFY), Op(OP_DROP),
	}},
}

// TemplateByName returns the first template named name.
func TemplateByName(name string) (Template, bool) {
	for _, t := range Templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

func checkMultisig(tokens []Token) bool {
	m := SmallIntValue(tokens[0].Op)
	n := SmallIntValue(tokens[len(tokens)-2].Op)
	return m <= n && n == len(tokens)-3
}

type match struct {
	name       string
	start, end int
}

// Classify greedily splits the blueprint into template matches and returns
// their names. A position no template matches yields TypeUnknown and stops
// the scan.
func Classify(blueprint []Token) []string {
	var names []string
	for _, m := range classify(blueprint) {
		names = append(names, m.name)
	}
	return names
}

func classify(bp []Token) []match {
	if len(bp) == 0 {
		return nil
	}
	var out []match
	for pos := 0; pos < len(bp); {
		best, bestLen := -1, 0
		for i, t := range Templates {
			if n, ok := t.match(bp[pos:]); ok && n > bestLen {
				best, bestLen = i, n
			}
		}
		if best < 0 {
			return append(out, match{name: TypeUnknown, start: pos, end: len(bp)})
		}
		out = append(out, match{Templates[best].Name, pos, pos + bestLen})
		pos += bestLen
	}
	return out
}

// match returns how many tokens of bp the template consumes.
func (t Template) match(bp []Token) (int, bool) {
	pos := 0
	for _, e := range t.Pattern {
		n, ok := e.match(bp[pos:])
		if !ok {
			return 0, false
		}
		pos += n
	}
	if t.Check != nil && !t.Check(bp[:pos]) {
		return 0, false
	}
	return pos, true
}

func (e Elem) match(bp []Token) (int, bool) {
	switch e.kind {
	case elemKeys, elemSigs:
		want := TokenKey
		if e.kind == elemSigs {
			want = TokenSignature
		}
		n := 0
		for n < len(bp) && bp[n].Kind == want {
			n++
		}
		// single-item holes take one out of a longer run
		if len(e.lens) == 1 && n > e.lens[0] {
			n = e.lens[0]
		}
		return n, n >= e.min
	case elemPushes:
		n := 0
		for n < len(bp) && (bp[n].Kind != TokenOp || bp[n].Op <= OP_16) {
			n++
		}
		return n, true
	}

	if len(bp) == 0 {
		return 0, false
	}
	tok := bp[0]
	switch e.kind {
	case elemOp:
		return 1, tok.Kind == TokenOp && tok.Op == e.op
	case elemSmallInt:
		return 1, tok.Kind == TokenOp && tok.Op >= OP_1 && tok.Op <= OP_16
	case elemData:
		if tok.Kind != TokenData {
			return 0, false
		}
		if len(e.lens) == 0 {
			return 1, true
		}
		for _, l := range e.lens {
			if tok.Len == l {
				return 1, true
			}
		}
		return 0, false
	case elemRedeem:
		return 1, tok.Kind == TokenScript && (e.inner == "" || tok.Inner == e.inner)
	}
	return 0, false
}
