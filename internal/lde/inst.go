// Package lde is a length disassembler for x86 and x86_64 machine code.
//
// It computes how many bytes the instruction at the start of a buffer
// occupies without decoding its mnemonic or operands. Valid opcodes up to
// SSE4.2 are measured; invalid opcodes are rejected on a best-effort basis.
// Truncated input and invalid opcodes both yield a zero length.
//
// X86 and X64 follow the reference opcode tables. X86With(Hardware) and
// X64With(Hardware) follow what processors decode where the two differ.
//
//	n := lde.X64.Len([]byte{0x40, 0x55, 0x48, 0x83, 0xEC, 0x28})
//	// n == 2
//
// The engines are pure functions over their input and are safe for
// concurrent use. An Iter is not.
package lde

// MaxInstLen is the architectural limit on instruction length. Only the
// Hardware tables enforce it.
const MaxInstLen = 15

// InstLen breaks down the length of a single instruction.
// The zero value signals that no instruction could be decoded.
type InstLen struct {
	Total  int // total bytes consumed
	Prefix int // legacy and REX prefix bytes
	Opcode int // opcode bytes including escapes
	Arg    int // ModRM, SIB, displacement and immediate bytes
}

// Ok reports whether the decode succeeded.
func (l InstLen) Ok() bool { return l.Total > 0 }

// ArgOffset is the offset of the first argument byte (ModRM or immediate).
func (l InstLen) ArgOffset() int { return l.Prefix + l.Opcode }

// cursor consumes bytes with bounds checks.
type cursor struct {
	code []byte
	pos  int
}

func (c *cursor) next() (byte, bool) {
	if c.pos >= len(c.code) {
		return 0, false
	}
	b := c.code[c.pos]
	c.pos++
	return b, true
}

func (c *cursor) peek() (byte, bool) {
	if c.pos >= len(c.code) {
		return 0, false
	}
	return c.code[c.pos], true
}

// ModRM fields.
const (
	modMem0   = 0x00 // no displacement
	modMem8   = 0x40 // disp8
	modMemDef = 0x80 // displacement of the address width
	modReg    = 0xC0 // register direct

	rmSIB  = 0b100
	rmDisp = 0b101 // disp32 (absolute, or RIP-relative in long mode)
	rm16D  = 0b110 // disp16 with 16-bit addressing
)

// modrm32 walks a ModRM byte (and SIB) using 32/64-bit addressing.
// dispDef is the displacement width of the mod=10 form.
// It returns the displacement width.
func modrm32(c *cursor, dispDef int) (int, bool) {
	m, ok := c.next()
	if !ok {
		return 0, false
	}
	mode, rm := m&0xC0, m&0b111
	if mode == modReg {
		return 0, true
	}
	disp := 0
	if rm == rmSIB {
		sib, ok := c.next()
		if !ok {
			return 0, false
		}
		if mode == modMem0 && sib&0b111 == rmDisp {
			disp += 4
		}
	}
	switch mode {
	case modMem0:
		if rm == rmDisp {
			disp += 4
		}
	case modMem8:
		disp++
	case modMemDef:
		disp += dispDef
	}
	return disp, true
}

// modrm16 walks a ModRM byte using 16-bit addressing, which has no SIB.
func modrm16(c *cursor) (int, bool) {
	m, ok := c.next()
	if !ok {
		return 0, false
	}
	switch mode, rm := m&0xC0, m&0b111; mode {
	case modMem0:
		if rm == rm16D {
			return 2, true
		}
	case modMem8:
		return 1, true
	case modMemDef:
		return 2, true
	}
	return 0, true
}

// finish applies the bounds check shared by both engines.
func finish(c *cursor, r *rules, prefix, opcode, extra int) InstLen {
	total := c.pos + extra
	if total > len(c.code) || r.tooLong(total) {
		return InstLen{}
	}
	return InstLen{
		Total:  total,
		Prefix: prefix,
		Opcode: opcode,
		Arg:    total - prefix - opcode,
	}
}
