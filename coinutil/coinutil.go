// Package coinutil holds helpers to handle coin amounts and transaction
// ids the way they are shown to users.
package coinutil

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/vulpemventures/go-bitcoin/internal/bufferutil"
)

// ErrInvalidTxID is returned for txids that are not 32 hex encoded bytes.
var ErrInvalidTxID = errors.New("invalid txid")

// TxIDFromBytes returns the txid of a transaction hash in internal byte
// order.
func TxIDFromBytes(buffer []byte) string {
	return hex.EncodeToString(ReverseBytes(buffer))
}

// TxIDToBytes returns the hash in internal byte order of a txid.
func TxIDToBytes(str string) ([]byte, error) {
	buffer, err := hex.DecodeString(str)
	if err != nil {
		return nil, err
	}
	if len(buffer) != 32 {
		return nil, ErrInvalidTxID
	}
	return ReverseBytes(buffer), nil
}

// ValueToBytes returns the 8 byte little endian serialization of an amount.
func ValueToBytes(val uint64) []byte {
	w := bufferutil.NewBufferWriter(nil)
	w.WriteUint64(val)
	return w.Bytes()
}

// ValueFromBytes decodes an 8 byte little endian amount.
func ValueFromBytes(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, errors.New("invalid value length")
	}
	return bufferutil.NewBufferReader(bytes.NewBuffer(val)).ReadUint64()
}

// ReverseBytes returns a copy of the given byte slice with elems in reverse order.
func ReverseBytes(buf []byte) []byte {
	return bufferutil.ReverseBytes(buf)
}
