package script

import (
	"errors"
	"fmt"
)

var (
	// ErrStackUnderflow is returned when an opcode needs more items than
	// the stack holds.
	ErrStackUnderflow = errors.New("stack underflow")
	// ErrStackOverflow is returned past MaxStackSize items.
	ErrStackOverflow = errors.New("stack overflow")
)

// MaxStackSize is the consensus limit on stack items.
const MaxStackSize = 1000

// Stack is a bounded stack of byte strings. Index 0 of Peek is the top.
type Stack struct {
	items [][]byte
}

// NewStack returns a stack holding items, the last one on top.
func NewStack(items ...[]byte) *Stack {
	return &Stack{items: append(make([][]byte, 0, len(items)), items...)}
}

// Depth returns the number of items.
func (s *Stack) Depth() int {
	return len(s.items)
}

// Items returns a copy of the items, bottom first.
func (s *Stack) Items() [][]byte {
	out := make([][]byte, len(s.items))
	copy(out, s.items)
	return out
}

// Push adds b on top.
func (s *Stack) Push(b []byte) error {
	if len(s.items) >= MaxStackSize {
		return ErrStackOverflow
	}
	s.items = append(s.items, b)
	return nil
}

// PushNum pushes n as a script number.
func (s *Stack) PushNum(n int64) error {
	return s.Push(EncodeNum(n))
}

// PushBool pushes 1 or the empty string.
func (s *Stack) PushBool(v bool) error {
	return s.Push(boolBytes(v))
}

// Pop removes and returns the top item.
func (s *Stack) Pop() ([]byte, error) {
	if len(s.items) == 0 {
		return nil, ErrStackUnderflow
	}
	top := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return top, nil
}

// PopNum pops the top item as a script number of at most maxLen bytes.
func (s *Stack) PopNum(maxLen int) (int64, error) {
	b, err := s.Pop()
	if err != nil {
		return 0, err
	}
	return DecodeNum(b, maxLen, false)
}

// PopBool pops the top item as a boolean.
func (s *Stack) PopBool() (bool, error) {
	b, err := s.Pop()
	if err != nil {
		return false, err
	}
	return IsTrue(b), nil
}

// Peek returns the item idx positions below the top.
func (s *Stack) Peek(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(s.items) {
		return nil, fmt.Errorf("%w: index %d, depth %d", ErrStackUnderflow, idx, len(s.items))
	}
	return s.items[len(s.items)-1-idx], nil
}

// Remove deletes and returns the item idx positions below the top.
func (s *Stack) Remove(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(s.items) {
		return nil, fmt.Errorf("%w: index %d, depth %d", ErrStackUnderflow, idx, len(s.items))
	}
	pos := len(s.items) - 1 - idx
	item := s.items[pos]
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	return item, nil
}

// Insert places b so that it ends up idx positions below the top.
func (s *Stack) Insert(idx int, b []byte) error {
	if idx < 0 || idx > len(s.items) {
		return fmt.Errorf("%w: index %d, depth %d", ErrStackUnderflow, idx, len(s.items))
	}
	if len(s.items) >= MaxStackSize {
		return ErrStackOverflow
	}
	pos := len(s.items) - idx
	s.items = append(s.items, nil)
	copy(s.items[pos+1:], s.items[pos:])
	s.items[pos] = b
	return nil
}

// require fails unless the stack holds at least n items.
func (s *Stack) require(n int) error {
	if len(s.items) < n {
		return fmt.Errorf("%w: need %d items, have %d", ErrStackUnderflow, n, len(s.items))
	}
	return nil
}
