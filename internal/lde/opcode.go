package lde

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// OpCode is a view of the bytes of exactly one decoded instruction.
// It borrows its bytes from the buffer handed to the decoder and never
// copies them; writes through it are visible in that buffer.
type OpCode []byte

// Int is the set of fixed-width integers an OpCode can read and write.
type Int interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// Len returns the instruction length in bytes.
func (op OpCode) Len() int { return len(op) }

// Bytes returns the underlying bytes.
func (op OpCode) Bytes() []byte { return op }

// Equal reports whether both views hold the same bytes.
func (op OpCode) Equal(other OpCode) bool { return bytes.Equal(op, other) }

// Compare orders views by their bytes.
func (op OpCode) Compare(other OpCode) int { return bytes.Compare(op, other) }

// Key returns the bytes as a comparable value, for use as a map key.
func (op OpCode) Key() string { return string(op) }

// span returns op[off:off+n] or panics. An out of range access is a
// programming error: offsets must come from the decode that produced op.
func (op OpCode) span(off, n int) []byte {
	if off < 0 || off+n > len(op) || off+n < off {
		panic(fmt.Sprintf("lde: access [%d:%d] out of range for %d byte opcode %X", off, off+n, len(op), []byte(op)))
	}
	return op[off : off+n]
}

func (op OpCode) Uint8(off int) uint8   { return op.span(off, 1)[0] }
func (op OpCode) Uint16(off int) uint16 { return binary.LittleEndian.Uint16(op.span(off, 2)) }
func (op OpCode) Uint32(off int) uint32 { return binary.LittleEndian.Uint32(op.span(off, 4)) }
func (op OpCode) Uint64(off int) uint64 { return binary.LittleEndian.Uint64(op.span(off, 8)) }

func (op OpCode) Int8(off int) int8   { return int8(op.Uint8(off)) }
func (op OpCode) Int16(off int) int16 { return int16(op.Uint16(off)) }
func (op OpCode) Int32(off int) int32 { return int32(op.Uint32(off)) }
func (op OpCode) Int64(off int) int64 { return int64(op.Uint64(off)) }

func (op OpCode) PutUint8(off int, v uint8)   { op.span(off, 1)[0] = v }
func (op OpCode) PutUint16(off int, v uint16) { binary.LittleEndian.PutUint16(op.span(off, 2), v) }
func (op OpCode) PutUint32(off int, v uint32) { binary.LittleEndian.PutUint32(op.span(off, 4), v) }
func (op OpCode) PutUint64(off int, v uint64) { binary.LittleEndian.PutUint64(op.span(off, 8), v) }

func (op OpCode) PutInt8(off int, v int8)   { op.PutUint8(off, uint8(v)) }
func (op OpCode) PutInt16(off int, v int16) { op.PutUint16(off, uint16(v)) }
func (op OpCode) PutInt32(off int, v int32) { op.PutUint32(off, uint32(v)) }
func (op OpCode) PutInt64(off int, v int64) { op.PutUint64(off, uint64(v)) }

// Read reads an immediate or displacement of type T at off.
//
// Panics if off..off+sizeof(T) is out of bounds.
func Read[T Int](op OpCode, off int) T {
	var v T
	switch size(v) {
	case 1:
		return T(op.Uint8(off))
	case 2:
		return T(op.Uint16(off))
	case 4:
		return T(op.Uint32(off))
	}
	return T(op.Uint64(off))
}

// Write writes v at off.
//
// Panics if off..off+sizeof(T) is out of bounds.
func Write[T Int](op OpCode, off int, v T) {
	switch size(v) {
	case 1:
		op.PutUint8(off, uint8(v))
	case 2:
		op.PutUint16(off, uint16(v))
	case 4:
		op.PutUint32(off, uint32(v))
	default:
		op.PutUint64(off, uint64(v))
	}
}

// size reports the width of T in bytes without reflection: shifting a
// one left by 8*k bits is zero exactly when T is k bytes wide.
func size[T Int](T) int {
	var one T = 1
	for n := 1; n < 8; n *= 2 {
		if one<<(8*n) == 0 {
			return n
		}
	}
	return 8
}
