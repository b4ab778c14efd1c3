// Package chain defines the interface wallets use to observe and reach the
// blockchain, a failover multiplexer over several providers and an in
// memory implementation.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a provider has no record of the
	// requested transaction.
	ErrNotFound = errors.New("not found")
	// ErrRejected is returned when a provider refuses a broadcast
	// transaction.
	ErrRejected = errors.New("transaction rejected")
)

// UTXO is an unspent output as reported by a provider.
type UTXO struct {
	TxID          string
	OutputN       uint32
	Value         uint64
	Script        []byte
	ScriptType    string
	Address       string
	Confirmations uint32
	BlockHeight   uint32
}

// Outpoint returns the txid:index form of the output.
func (u UTXO) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.OutputN)
}

// TxInfo is a transaction as reported by a provider. Raw holds its
// serialization.
type TxInfo struct {
	TxID        string
	Raw         []byte
	BlockHeight uint32
	Confirmed   bool
	Date        time.Time
	Fee         uint64
}

// Service is the set of methods the wallet engine needs from a blockchain
// provider. Queries by address return items in chain order, starting
// right after afterTxID when not empty, at most limit of them when limit is
// positive.
type Service interface {
	GetUTXOs(ctx context.Context, address, afterTxID string, limit int) ([]UTXO, error)
	GetTransaction(ctx context.Context, txid string) (*TxInfo, error)
	GetTransactions(ctx context.Context, address, afterTxID string, limit int) ([]TxInfo, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	// EstimateFee returns the fee rate in sat/kB for confirmation within
	// the given number of blocks.
	EstimateFee(ctx context.Context, blocks int) (uint64, error)
	BlockCount(ctx context.Context) (uint32, error)
}

// IsFinal reports whether err is an answer rather than a provider failure.
// Final errors are not retried on other providers.
func IsFinal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRejected)
}
