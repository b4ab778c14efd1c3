// Package errs defines the error kinds surfaced by the library and a
// structured error type carrying the context in which a failure happened.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a class of failure. Kinds are compared with errors.Is.
type Kind struct {
	name string
}

func (k *Kind) Error() string { return k.name }

var (
	// ErrInvalidKey is returned for malformed or unusable key material.
	ErrInvalidKey = &Kind{"invalid key"}
	// ErrInvalidScript is returned for unparsable scripts or failed evaluation.
	ErrInvalidScript = &Kind{"invalid script"}
	// ErrInvalidTransaction is returned for malformed or non-standard transactions.
	ErrInvalidTransaction = &Kind{"invalid transaction"}
	// ErrInsufficientFunds is returned when input selection cannot meet a target.
	ErrInsufficientFunds = &Kind{"insufficient funds"}
	// ErrConfig is returned for invalid wallet or network configuration.
	ErrConfig = &Kind{"configuration error"}
	// ErrServiceUnavailable is returned when every chain provider failed.
	ErrServiceUnavailable = &Kind{"service unavailable"}
	// ErrInternalConsistency signals a broken invariant.
	ErrInternalConsistency = &Kind{"internal consistency"}
)

// Error is a failure of a given Kind annotated with the operation and the
// wallet entities it concerns.
type Error struct {
	Kind   *Kind
	Op     string
	Wallet string
	KeyID  string
	TxID   string
	UTXO   string
	Input  int
	Err    error
}

// New returns an *Error of the given kind wrapping cause.
func New(kind *Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Input: -1, Err: cause}
}

// Newf is like New but builds the cause from a format string.
func Newf(kind *Kind, op string, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// WithWallet sets the wallet name context.
func (e *Error) WithWallet(name string) *Error {
	e.Wallet = name
	return e
}

// WithKey sets the key id context.
func (e *Error) WithKey(id string) *Error {
	e.KeyID = id
	return e
}

// WithTx sets the transaction id context.
func (e *Error) WithTx(txid string) *Error {
	e.TxID = txid
	return e
}

// WithUTXO sets the outpoint context.
func (e *Error) WithUTXO(outpoint string) *Error {
	e.UTXO = outpoint
	return e
}

// WithInput sets the input index context.
func (e *Error) WithInput(i int) *Error {
	e.Input = i
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.name)

	ctx := make([]string, 0, 5)
	if e.Wallet != "" {
		ctx = append(ctx, "wallet="+e.Wallet)
	}
	if e.KeyID != "" {
		ctx = append(ctx, "key="+e.KeyID)
	}
	if e.TxID != "" {
		ctx = append(ctx, "txid="+e.TxID)
	}
	if e.UTXO != "" {
		ctx = append(ctx, "utxo="+e.UTXO)
	}
	if e.Input >= 0 {
		ctx = append(ctx, fmt.Sprintf("input=%d", e.Input))
	}
	if len(ctx) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err under kind unless it already carries a kind, in which
// case it is returned unchanged.
func Wrap(kind *Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return New(kind, op, err)
}

// KindOf returns the kind carried by err, or nil.
func KindOf(err error) *Kind {
	var k *Kind
	if errors.As(err, &k) {
		return k
	}
	return nil
}

// As returns the outermost *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
