package bufferutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var (
	// ErrNonCanonicalVarInt is returned when a compact size is not minimally encoded.
	ErrNonCanonicalVarInt = errors.New("non-canonical varint")
	// ErrShortRead is returned when the buffer ends before the requested bytes.
	ErrShortRead = errors.New("unexpected end of buffer")
)

// BufferWriter implements methods that help to serialize a Bitcoin transaction.
type BufferWriter struct {
	buffer *bytes.Buffer
}

// NewBufferWriter returns an instance of BufferWriter.
func NewBufferWriter(buf *bytes.Buffer) *BufferWriter {
	if buf == nil {
		buf = bytes.NewBuffer(nil)
	}
	return &BufferWriter{buf}
}

// Bytes returns writer's buffer
func (bw *BufferWriter) Bytes() []byte {
	return bw.buffer.Bytes()
}

// WriteUint8 writes the given uint8 value to writer's buffer.
func (bw *BufferWriter) WriteUint8(val uint8) error {
	return bw.buffer.WriteByte(val)
}

// WriteUint16 writes the given uint16 value to writer's buffer.
func (bw *BufferWriter) WriteUint16(val uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], val)
	return bw.WriteSlice(b[:])
}

// WriteUint32 writes the given uint32 value to writer's buffer.
func (bw *BufferWriter) WriteUint32(val uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	return bw.WriteSlice(b[:])
}

// WriteUint64 writes the given uint64 value to writer's buffer.
func (bw *BufferWriter) WriteUint64(val uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], val)
	return bw.WriteSlice(b[:])
}

// WriteVarInt serializes the given value to writer's buffer
// using a variable number of bytes depending on its value.
func (bw *BufferWriter) WriteVarInt(val uint64) error {
	return bw.WriteSlice(VarIntBytes(val))
}

// WriteSlice appends the given byte array to the writer's buffer
func (bw *BufferWriter) WriteSlice(val []byte) error {
	_, err := bw.buffer.Write(val)
	return err
}

// WriteVarSlice appends the length of the given byte array as var int
// and the byte array itself to the writer's buffer
func (bw *BufferWriter) WriteVarSlice(val []byte) error {
	if err := bw.WriteVarInt(uint64(len(val))); err != nil {
		return err
	}
	return bw.WriteSlice(val)
}

// WriteVector appends an array of array bytes to the writer's buffer
func (bw *BufferWriter) WriteVector(v [][]byte) error {
	if err := bw.WriteVarInt(uint64(len(v))); err != nil {
		return err
	}
	for _, val := range v {
		if err := bw.WriteVarSlice(val); err != nil {
			return err
		}
	}
	return nil
}

// BufferReader implements methods that help to deserialize a Bitcoin transaction.
type BufferReader struct {
	buffer *bytes.Buffer
}

// NewBufferReader returns an instance of BufferReader.
func NewBufferReader(buffer *bytes.Buffer) *BufferReader {
	return &BufferReader{buffer}
}

// Len returns the number of unread bytes.
func (br *BufferReader) Len() int {
	return br.buffer.Len()
}

// ReadUint8 reads a uint8 value from reader's buffer.
func (br *BufferReader) ReadUint8() (uint8, error) {
	b, err := br.buffer.ReadByte()
	if err == io.EOF {
		return 0, ErrShortRead
	}
	return b, err
}

// ReadUint16 reads a uint16 value from reader's buffer.
func (br *BufferReader) ReadUint16() (uint16, error) {
	b, err := br.ReadSlice(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a uint32 value from reader's buffer.
func (br *BufferReader) ReadUint32() (uint32, error) {
	b, err := br.ReadSlice(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a uint64 value from reader's buffer.
func (br *BufferReader) ReadUint64() (uint64, error) {
	b, err := br.ReadSlice(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadVarInt reads a variable length integer from reader's buffer and returns it as a uint64.
func (br *BufferReader) ReadVarInt() (uint64, error) {
	disc, err := br.ReadUint8()
	if err != nil {
		return 0, err
	}
	var val, min uint64
	switch disc {
	case 0xfd:
		v, err := br.ReadUint16()
		if err != nil {
			return 0, err
		}
		val, min = uint64(v), 0xfd
	case 0xfe:
		v, err := br.ReadUint32()
		if err != nil {
			return 0, err
		}
		val, min = uint64(v), 0x10000
	case 0xff:
		v, err := br.ReadUint64()
		if err != nil {
			return 0, err
		}
		val, min = v, 0x100000000
	default:
		return uint64(disc), nil
	}
	if val < min {
		return 0, ErrNonCanonicalVarInt
	}
	return val, nil
}

// ReadSlice reads the next n bytes from the reader's buffer
func (br *BufferReader) ReadSlice(n uint) ([]byte, error) {
	if uint(br.buffer.Len()) < n {
		return nil, ErrShortRead
	}
	decoded := make([]byte, n)
	if _, err := io.ReadFull(br.buffer, decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// ReadVarSlice first reads the length n of the bytes, then reads the next n bytes
func (br *BufferReader) ReadVarSlice() ([]byte, error) {
	n, err := br.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(br.buffer.Len()) {
		return nil, ErrShortRead
	}
	return br.ReadSlice(uint(n))
}

// ReadVector reads the length n of the array of bytes, then reads the next n array bytes
func (br *BufferReader) ReadVector() ([][]byte, error) {
	n, err := br.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(br.buffer.Len()) {
		return nil, ErrShortRead
	}
	v := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		val, err := br.ReadVarSlice()
		if err != nil {
			return nil, err
		}
		v = append(v, val)
	}
	return v, nil
}

// VarIntBytes returns the compact size encoding of val.
func VarIntBytes(val uint64) []byte {
	switch {
	case val < 0xfd:
		return []byte{byte(val)}
	case val <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(val))
		return b
	case val <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(val))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], val)
		return b
	}
}

// VarIntSize returns the number of bytes VarIntBytes(val) takes.
func VarIntSize(val uint64) int {
	switch {
	case val < 0xfd:
		return 1
	case val <= 0xffff:
		return 3
	case val <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// ReverseBytes returns a copy of the given byte slice with elems in reverse order.
func ReverseBytes(buf []byte) []byte {
	tmp := make([]byte, len(buf))
	for i := range buf {
		tmp[len(buf)-1-i] = buf[i]
	}
	return tmp
}
