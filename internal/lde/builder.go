package lde

// Builder assembles literal instruction bytes, for tests and patch payloads.
// It is a value type; every Put returns the updated copy so calls chain:
//
//	code := lde.BuilderFrom([]byte("\xE8****")).PutUint32(1, 0x01010101)
//	// code.OpCode() is E8 01 01 01 01
type Builder struct {
	n   uint8
	buf [MaxInstLen]byte
}

// NewBuilder returns a zeroed builder of n bytes, clamped to MaxInstLen.
func NewBuilder(n int) Builder {
	return Builder{n: uint8(max(0, min(n, MaxInstLen)))}
}

// BuilderFrom copies a template, clamped to MaxInstLen.
func BuilderFrom(template []byte) Builder {
	b := NewBuilder(len(template))
	copy(b.buf[:b.n], template)
	return b
}

// Len returns the number of bytes in the builder.
func (b Builder) Len() int { return int(b.n) }

// OpCode returns a copy of the built bytes. Unlike views handed out by an
// Iter, it does not alias the builder.
func (b Builder) OpCode() OpCode {
	return append(OpCode(nil), b.buf[:b.n]...)
}

// Append grows the builder by the given bytes, clamped to MaxInstLen.
func (b Builder) Append(bytes ...byte) Builder {
	n := copy(b.buf[b.n:], bytes)
	b.n += uint8(n)
	return b
}

func (b *Builder) view() OpCode { return OpCode(b.buf[:b.n]) }

// The Put methods panic if off..off+width is outside the builder.

func (b Builder) PutUint8(off int, v uint8) Builder   { b.view().PutUint8(off, v); return b }
func (b Builder) PutUint16(off int, v uint16) Builder { b.view().PutUint16(off, v); return b }
func (b Builder) PutUint32(off int, v uint32) Builder { b.view().PutUint32(off, v); return b }
func (b Builder) PutUint64(off int, v uint64) Builder { b.view().PutUint64(off, v); return b }
func (b Builder) PutInt8(off int, v int8) Builder     { b.view().PutInt8(off, v); return b }
func (b Builder) PutInt16(off int, v int16) Builder   { b.view().PutInt16(off, v); return b }
func (b Builder) PutInt32(off int, v int32) Builder   { b.view().PutInt32(off, v); return b }
func (b Builder) PutInt64(off int, v int64) Builder   { b.view().PutInt64(off, v); return b }
