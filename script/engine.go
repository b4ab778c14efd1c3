package script

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/vulpemventures/go-bitcoin/curve"
	"github.com/vulpemventures/go-bitcoin/encoding"
	"github.com/vulpemventures/go-bitcoin/errs"
)

var (
	// ErrDisabledOpcode is returned for opcodes disabled by consensus.
	ErrDisabledOpcode = errors.New("disabled opcode")
	// ErrReservedOpcode is returned when a reserved or undefined opcode is
	// executed.
	ErrReservedOpcode = errors.New("reserved opcode")
	// ErrEarlyReturn is returned when OP_RETURN is executed.
	ErrEarlyReturn = errors.New("OP_RETURN executed")
	// ErrVerifyFailed is returned when a *VERIFY opcode finds false.
	ErrVerifyFailed = errors.New("verify failed")
	// ErrUnbalancedConditional is returned for unmatched IF/ELSE/ENDIF.
	ErrUnbalancedConditional = errors.New("unbalanced conditional")
	// ErrElementTooBig is returned for pushes over MaxScriptElementSize.
	ErrElementTooBig = errors.New("element too big")
	// ErrNegativeLockTime is returned by CLTV and CSV on negative operands.
	ErrNegativeLockTime = errors.New("negative locktime")
	// ErrUnsatisfiedLockTime is returned when the spending transaction does
	// not satisfy a CLTV or CSV lock.
	ErrUnsatisfiedLockTime = errors.New("unsatisfied locktime")
	// ErrInvalidKeyCount is returned for OP_CHECKMULTISIG key counts outside
	// 0..20.
	ErrInvalidKeyCount = errors.New("invalid public key count")
	// ErrInvalidSigCount is returned when more signatures than keys are
	// required.
	ErrInvalidSigCount = errors.New("invalid signature count")
	// ErrEvalFalse is returned when a script ends with an empty stack or a
	// false top item.
	ErrEvalFalse = errors.New("script evaluated to false")
)

// MaxPubKeysPerMultiSig bounds OP_CHECKMULTISIG.
const MaxPubKeysPerMultiSig = 20

// SigChecker supplies the transaction context of signature and lock
// checks.
type SigChecker interface {
	// CheckSig verifies a signature with its trailing sighash byte over
	// the digest of the executing subscript.
	CheckSig(sig, pubKey, subscript []byte) bool
	CheckLockTime(lockTime int64) bool
	CheckSequence(sequence int64) bool
}

// Flags tunes evaluation strictness.
type Flags uint32

const (
	// StrictLowS fails signatures whose S is above half the curve order.
	StrictLowS Flags = 1 << iota
	// MinimalData requires minimally encoded numbers.
	MinimalData
)

const sequenceLockTimeDisabled = 1 << 31

// Engine runs scripts over a shared stack. It remembers every failed
// signature check across runs so that a spend can require all of them to
// succeed.
type Engine struct {
	checker    SigChecker
	flags      Flags
	alt        *Stack
	sigChecks  int
	failedSigs int
}

// NewEngine returns an engine. checker may be nil, in which case every
// signature and lock check fails.
func NewEngine(checker SigChecker, flags Flags) *Engine {
	return &Engine{checker: checker, flags: flags, alt: NewStack()}
}

// AllSigsValid reports whether no signature check failed so far.
func (e *Engine) AllSigsValid() bool {
	return e.failedSigs == 0
}

// SigChecks returns how many signatures have been checked.
func (e *Engine) SigChecks() int {
	return e.sigChecks
}

// Evaluate runs raw on stack and requires a true top item.
func Evaluate(raw []byte, stack *Stack, checker SigChecker, flags Flags) error {
	e := NewEngine(checker, flags)
	if err := e.Execute(raw, stack); err != nil {
		return err
	}
	if !Success(stack) {
		return errs.New(errs.ErrInvalidScript, "script.Evaluate", ErrEvalFalse)
	}
	if !e.AllSigsValid() {
		return errs.New(errs.ErrInvalidScript, "script.Evaluate", ErrVerifyFailed)
	}
	return nil
}

// Success reports whether the stack ends with a true value on top.
func Success(stack *Stack) bool {
	top, err := stack.Peek(0)
	return err == nil && IsTrue(top)
}

// Execute runs raw against stack.
func (e *Engine) Execute(raw []byte, stack *Stack) error {
	cmds, err := parseCommands(raw, false)
	if err != nil {
		return errs.New(errs.ErrInvalidScript, "script.Execute", err)
	}
	if err := e.run(cmds, raw, stack); err != nil {
		return errs.New(errs.ErrInvalidScript, "script.Execute", err)
	}
	return nil
}

func (e *Engine) run(cmds []Command, raw []byte, s *Stack) error {
	var cond []bool
	executing := func() bool {
		for _, c := range cond {
			if !c {
				return false
			}
		}
		return true
	}

	for pc, c := range cmds {
		if isDisabled(c.Op) {
			return fmt.Errorf("%w: %s at %d", ErrDisabledOpcode, opcodeArray[c.Op].Name, pc)
		}
		if len(c.Data) > MaxScriptElementSize {
			return fmt.Errorf("%w: %d bytes at %d", ErrElementTooBig, len(c.Data), pc)
		}

		exec := executing()
		if !exec && (c.Op < OP_IF || c.Op > OP_ENDIF) {
			continue
		}

		if err := e.step(c, raw, s, &cond, exec); err != nil {
			return fmt.Errorf("%s: %w", opcodeArray[c.Op].Name, err)
		}
		if s.Depth()+e.alt.Depth() > MaxStackSize {
			return ErrStackOverflow
		}
	}
	if len(cond) != 0 {
		return ErrUnbalancedConditional
	}
	return nil
}

func (e *Engine) step(c Command, raw []byte, s *Stack, cond *[]bool, exec bool) error {
	switch op := c.Op; {
	case c.IsPush():
		data := c.Data
		if data == nil {
			data = []byte{}
		}
		return s.Push(data)

	case op == OP_1NEGATE:
		return s.PushNum(-1)

	case op >= OP_1 && op <= OP_16:
		return s.PushNum(int64(SmallIntValue(op)))

	case op == OP_IF || op == OP_NOTIF:
		v := false
		if exec {
			top, err := s.Pop()
			if err != nil {
				return err
			}
			v = IsTrue(top)
			if op == OP_NOTIF {
				v = !v
			}
		}
		*cond = append(*cond, v)
		return nil

	case op == OP_ELSE:
		if len(*cond) == 0 {
			return ErrUnbalancedConditional
		}
		(*cond)[len(*cond)-1] = !(*cond)[len(*cond)-1]
		return nil

	case op == OP_ENDIF:
		if len(*cond) == 0 {
			return ErrUnbalancedConditional
		}
		*cond = (*cond)[:len(*cond)-1]
		return nil

	case op == OP_NOP, op == OP_NOP1, op >= OP_NOP4 && op <= OP_NOP10,
		op == OP_CODESEPARATOR:
		return nil

	case op == OP_VERIFY:
		return e.verify(s)

	case op == OP_RETURN:
		return ErrEarlyReturn

	case op == OP_CHECKLOCKTIMEVERIFY:
		top, err := s.Peek(0)
		if err != nil {
			return err
		}
		n, err := DecodeNum(top, 5, e.flags&MinimalData != 0)
		if err != nil {
			return err
		}
		if n < 0 {
			return ErrNegativeLockTime
		}
		if e.checker == nil || !e.checker.CheckLockTime(n) {
			return ErrUnsatisfiedLockTime
		}
		return nil

	case op == OP_CHECKSEQUENCEVERIFY:
		top, err := s.Peek(0)
		if err != nil {
			return err
		}
		n, err := DecodeNum(top, 5, e.flags&MinimalData != 0)
		if err != nil {
			return err
		}
		if n < 0 {
			return ErrNegativeLockTime
		}
		if n&sequenceLockTimeDisabled != 0 {
			return nil
		}
		if e.checker == nil || !e.checker.CheckSequence(n) {
			return ErrUnsatisfiedLockTime
		}
		return nil

	case op >= OP_TOALTSTACK && op <= OP_TUCK, op == OP_SIZE:
		return e.stackOp(op, s)

	case op == OP_EQUAL || op == OP_EQUALVERIFY:
		if err := s.require(2); err != nil {
			return err
		}
		a, _ := s.Pop()
		b, _ := s.Pop()
		if err := s.PushBool(bytes.Equal(a, b)); err != nil {
			return err
		}
		if op == OP_EQUALVERIFY {
			return e.verify(s)
		}
		return nil

	case op >= OP_1ADD && op <= OP_WITHIN:
		return e.arithmetic(op, s)

	case op >= OP_RIPEMD160 && op <= OP_HASH256:
		top, err := s.Pop()
		if err != nil {
			return err
		}
		var h []byte
		switch op {
		case OP_RIPEMD160:
			h = encoding.RIPEMD160(top)
		case OP_SHA1:
			sum := sha1.Sum(top)
			h = sum[:]
		case OP_SHA256:
			h = encoding.SHA256(top)
		case OP_HASH160:
			h = encoding.Hash160(top)
		case OP_HASH256:
			h = encoding.DoubleSHA256(top)
		}
		return s.Push(h)

	case op == OP_CHECKSIG || op == OP_CHECKSIGVERIFY:
		if err := s.require(2); err != nil {
			return err
		}
		pub, _ := s.Pop()
		sig, _ := s.Pop()
		ok := e.checkSig(sig, pub, raw)
		if err := s.PushBool(ok); err != nil {
			return err
		}
		if op == OP_CHECKSIGVERIFY {
			return e.verify(s)
		}
		return nil

	case op == OP_CHECKMULTISIG || op == OP_CHECKMULTISIGVERIFY:
		ok, err := e.checkMultisig(s, raw)
		if err != nil {
			return err
		}
		if err := s.PushBool(ok); err != nil {
			return err
		}
		if op == OP_CHECKMULTISIGVERIFY {
			return e.verify(s)
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrReservedOpcode, opcodeArray[c.Op].Name)
}

func (e *Engine) verify(s *Stack) error {
	ok, err := s.PopBool()
	if err != nil {
		return err
	}
	if !ok {
		return ErrVerifyFailed
	}
	return nil
}

func (e *Engine) checkSig(sig, pub, subscript []byte) bool {
	e.sigChecks++
	ok := e.checker != nil && len(sig) > 0 && e.sigAcceptable(sig) &&
		e.checker.CheckSig(sig, pub, subscript)
	if !ok {
		e.failedSigs++
	}
	return ok
}

func (e *Engine) sigAcceptable(sig []byte) bool {
	if e.flags&StrictLowS == 0 {
		return true
	}
	der, _, err := curve.SplitSigHashType(sig)
	if err != nil {
		return false
	}
	parsed, err := curve.ParseDER(der)
	return err == nil && parsed.IsLowS()
}

// checkMultisig pops n keys, m signatures and the extra dummy item, then
// matches signatures against keys in script order.
func (e *Engine) checkMultisig(s *Stack, subscript []byte) (bool, error) {
	n, err := s.PopNum(DefaultNumLen)
	if err != nil {
		return false, err
	}
	if n < 0 || n > MaxPubKeysPerMultiSig {
		return false, ErrInvalidKeyCount
	}
	if err := s.require(int(n)); err != nil {
		return false, err
	}
	keys := make([][]byte, n)
	for i := int(n) - 1; i >= 0; i-- {
		keys[i], _ = s.Pop()
	}

	m, err := s.PopNum(DefaultNumLen)
	if err != nil {
		return false, err
	}
	if m < 0 || m > n {
		return false, ErrInvalidSigCount
	}
	if err := s.require(int(m)); err != nil {
		return false, err
	}
	sigs := make([][]byte, m)
	for i := int(m) - 1; i >= 0; i-- {
		sigs[i], _ = s.Pop()
	}

	if _, err := s.Pop(); err != nil {
		return false, err
	}

	k := 0
	for i := 0; i < len(sigs); i++ {
		matched := false
		for ; k < len(keys) && len(keys)-k >= len(sigs)-i; k++ {
			if e.checker != nil && len(sigs[i]) > 0 && e.sigAcceptable(sigs[i]) &&
				e.checker.CheckSig(sigs[i], keys[k], subscript) {
				matched = true
				k++
				break
			}
		}
		e.sigChecks++
		if !matched {
			e.failedSigs++
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) stackOp(op byte, s *Stack) error {
	switch op {
	case OP_TOALTSTACK:
		v, err := s.Pop()
		if err != nil {
			return err
		}
		return e.alt.Push(v)
	case OP_FROMALTSTACK:
		v, err := e.alt.Pop()
		if err != nil {
			return err
		}
		return s.Push(v)
	case OP_2DROP:
		if err := s.require(2); err != nil {
			return err
		}
		s.Pop()
		s.Pop()
		return nil
	case OP_2DUP:
		return e.dupN(s, 2, 0)
	case OP_3DUP:
		return e.dupN(s, 3, 0)
	case OP_2OVER:
		return e.dupN(s, 2, 2)
	case OP_2ROT:
		if err := s.require(6); err != nil {
			return err
		}
		a, _ := s.Remove(5)
		b, _ := s.Remove(4)
		if err := s.Push(a); err != nil {
			return err
		}
		return s.Push(b)
	case OP_2SWAP:
		if err := s.require(4); err != nil {
			return err
		}
		a, _ := s.Remove(3)
		b, _ := s.Remove(2)
		if err := s.Push(a); err != nil {
			return err
		}
		return s.Push(b)
	case OP_IFDUP:
		top, err := s.Peek(0)
		if err != nil {
			return err
		}
		if IsTrue(top) {
			return s.Push(top)
		}
		return nil
	case OP_DEPTH:
		return s.PushNum(int64(s.Depth()))
	case OP_DROP:
		_, err := s.Pop()
		return err
	case OP_DUP:
		return e.dupN(s, 1, 0)
	case OP_NIP:
		_, err := s.Remove(1)
		return err
	case OP_OVER:
		return e.dupN(s, 1, 1)
	case OP_PICK, OP_ROLL:
		n, err := s.PopNum(DefaultNumLen)
		if err != nil {
			return err
		}
		if n < 0 || int(n) >= s.Depth() {
			return fmt.Errorf("%w: index %d", ErrStackUnderflow, n)
		}
		var v []byte
		if op == OP_PICK {
			v, _ = s.Peek(int(n))
		} else {
			v, _ = s.Remove(int(n))
		}
		return s.Push(v)
	case OP_ROT:
		v, err := s.Remove(2)
		if err != nil {
			return err
		}
		return s.Push(v)
	case OP_SWAP:
		v, err := s.Remove(1)
		if err != nil {
			return err
		}
		return s.Push(v)
	case OP_TUCK:
		if err := s.require(2); err != nil {
			return err
		}
		top, _ := s.Peek(0)
		return s.Insert(2, top)
	case OP_SIZE:
		top, err := s.Peek(0)
		if err != nil {
			return err
		}
		return s.PushNum(int64(len(top)))
	}
	return fmt.Errorf("%w: %s", ErrReservedOpcode, opcodeArray[op].Name)
}

// dupN copies n items starting depth items below the top.
func (e *Engine) dupN(s *Stack, n, depth int) error {
	if err := s.require(n + depth); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v, _ := s.Peek(n + depth - 1)
		if err := s.Push(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) popNum(s *Stack) (int64, error) {
	b, err := s.Pop()
	if err != nil {
		return 0, err
	}
	return DecodeNum(b, DefaultNumLen, e.flags&MinimalData != 0)
}

func (e *Engine) arithmetic(op byte, s *Stack) error {
	switch op {
	case OP_1ADD, OP_1SUB, OP_NEGATE, OP_ABS, OP_NOT, OP_0NOTEQUAL:
		a, err := e.popNum(s)
		if err != nil {
			return err
		}
		switch op {
		case OP_1ADD:
			a++
		case OP_1SUB:
			a--
		case OP_NEGATE:
			a = -a
		case OP_ABS:
			if a < 0 {
				a = -a
			}
		case OP_NOT:
			return s.PushBool(a == 0)
		case OP_0NOTEQUAL:
			return s.PushBool(a != 0)
		}
		return s.PushNum(a)

	case OP_WITHIN:
		hi, err := e.popNum(s)
		if err != nil {
			return err
		}
		lo, err := e.popNum(s)
		if err != nil {
			return err
		}
		x, err := e.popNum(s)
		if err != nil {
			return err
		}
		return s.PushBool(lo <= x && x < hi)
	}

	b, err := e.popNum(s)
	if err != nil {
		return err
	}
	a, err := e.popNum(s)
	if err != nil {
		return err
	}
	switch op {
	case OP_ADD:
		return s.PushNum(a + b)
	case OP_SUB:
		return s.PushNum(a - b)
	case OP_BOOLAND:
		return s.PushBool(a != 0 && b != 0)
	case OP_BOOLOR:
		return s.PushBool(a != 0 || b != 0)
	case OP_NUMEQUAL:
		return s.PushBool(a == b)
	case OP_NUMEQUALVERIFY:
		if a != b {
			return ErrVerifyFailed
		}
		return nil
	case OP_NUMNOTEQUAL:
		return s.PushBool(a != b)
	case OP_LESSTHAN:
		return s.PushBool(a < b)
	case OP_GREATERTHAN:
		return s.PushBool(a > b)
	case OP_LESSTHANOREQUAL:
		return s.PushBool(a <= b)
	case OP_GREATERTHANOREQUAL:
		return s.PushBool(a >= b)
	case OP_MIN:
		if b < a {
			a = b
		}
		return s.PushNum(a)
	case OP_MAX:
		if b > a {
			a = b
		}
		return s.PushNum(a)
	}
	return fmt.Errorf("%w: %s", ErrDisabledOpcode, opcodeArray[op].Name)
}
