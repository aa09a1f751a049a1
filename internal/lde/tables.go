package lde

// bitTable is a 256-bit set indexed directly by byte value.
type bitTable [4]uint64

func (t *bitTable) has(b byte) bool {
	return t[b>>6]&(1<<(b&63)) != 0
}

// tableOf builds a table from single values and inclusive ranges.
// A range is written as a pair inside span().
func tableOf(items ...any) bitTable {
	var t bitTable
	for _, it := range items {
		switch v := it.(type) {
		case int:
			t[v>>6] |= 1 << (v & 63)
		case byteSpan:
			for b := int(v.lo); b <= int(v.hi); b++ {
				t[b>>6] |= 1 << (b & 63)
			}
		default:
			panic("lde: bad table item")
		}
	}
	return t
}

func (t bitTable) with(items ...any) bitTable {
	o := tableOf(items...)
	for i := range t {
		t[i] |= o[i]
	}
	return t
}

func (t bitTable) without(items ...any) bitTable {
	o := tableOf(items...)
	for i := range t {
		t[i] &^= o[i]
	}
	return t
}

type byteSpan struct{ lo, hi byte }

func span(lo, hi byte) byteSpan { return byteSpan{lo, hi} }

// Escape bytes.
const (
	escTwoByte = 0x0F
	esc0F38    = 0x38
	esc0F3A    = 0x3A
)

// Legacy prefixes, shared by both modes. 9B (fwait) is folded in as a prefix.
var legacyPrefix = tableOf(
	0x26, 0x2E, 0x36, 0x3E, // segment overrides
	span(0x64, 0x67), // fs, gs, operand size, address size
	0x9B,
	0xF0, 0xF2, 0xF3, // lock, repne, rep
)

// x86_64 adds REX.
var longPrefix = legacyPrefix.with(span(0x40, 0x4F))

//---- One-byte opcodes ----

var oneModRM = tableOf(
	span(0x00, 0x03), span(0x08, 0x0B), span(0x10, 0x13), span(0x18, 0x1B),
	span(0x20, 0x23), span(0x28, 0x2B), span(0x30, 0x33), span(0x38, 0x3B),
	0x62, 0x63, 0x69, 0x6B,
	span(0x80, 0x8F),
	0xC0, 0xC1, span(0xC4, 0xC7),
	span(0xD0, 0xD3), span(0xD8, 0xDF),
	0xF6, 0xF7, 0xFE, 0xFF,
)

var oneImm8 = tableOf(
	0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x34, 0x3C,
	0x6A, 0x6B,
	span(0x70, 0x80), 0x82, 0x83,
	0xA8, span(0xB0, 0xB7),
	0xC0, 0xC1, 0xC6, 0xC8, 0xCD, 0xD4, 0xD5,
	span(0xE0, 0xE7), 0xEB,
)

// Immediates of the default operand width (Iz).
var oneImmZ = tableOf(
	0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x35, 0x3D,
	0x68, 0x69, 0x81, 0x9A, 0xA9,
	span(0xB8, 0xBF),
	0xC7, span(0xE8, 0xEA),
)

// Opcodes removed from long mode.
var oneInvalid64 = tableOf(
	0x06, 0x07, 0x0E, 0x16, 0x17, 0x1E, 0x1F,
	0x27, 0x2F, 0x37, 0x3F,
	0x60, 0x61, 0x62, 0x82, 0x9A,
	0xC4, 0xC5, 0xCE,
	0xD4, 0xD5, 0xD6, 0xEA,
)

//---- Two-byte opcodes (0F xx) ----

var twoModRM = tableOf(
	span(0x00, 0x03), 0x0D,
	span(0x10, 0x1F),
	span(0x28, 0x2F),
	span(0x40, 0x70), span(0x74, 0x76), span(0x78, 0x7F),
	span(0x90, 0x9F),
	span(0xA3, 0xA5), span(0xAB, 0xB8), span(0xBA, 0xC7),
	span(0xD0, 0xFF),
)

// Processors also read a ModRM byte for MOV to and from control, debug
// and test registers and for the MMX/SSE shift groups.
var twoModRMHardware = twoModRM.with(span(0x20, 0x24), 0x26, span(0x71, 0x73))

var twoInvalid = tableOf(
	0x04, 0x0A, 0x0C, 0x0F,
	0x25, 0x27, 0x36, span(0x38, 0x3F),
	0x7A, 0x7B, 0xA6, 0xA7, 0xFF,
)

var twoInvalid64 = twoInvalid.with(0x24, 0x26)

var twoImm8 = tableOf(span(0x70, 0x73), 0xA4, 0xAC, 0xBA, 0xC2, span(0xC4, 0xC6))

// FEMMS and BSWAP r32 (but not BSWAP eax) carry a two-byte extension in
// the reference tables.
var twoExt16 = tableOf(0x0E, span(0xC9, 0xCE))

//---- Three-byte opcodes ----

// 0F 38 xx: only the listed opcodes are valid.
var threeValid38 = tableOf(span(0x00, 0x3F), 0x40, 0x41, 0x80, 0x81, 0xF0, 0xF1).without(
	span(0x0C, 0x0F), span(0x11, 0x13), 0x16, span(0x18, 0x1B), 0x1F,
	0x26, 0x27, span(0x2C, 0x2F), 0x36,
)

// 0F 3A xx: every opcode carries an imm8.
var threeValid3A = tableOf(
	span(0x08, 0x0F), span(0x14, 0x17), span(0x20, 0x22),
	span(0x40, 0x42), span(0x60, 0x63),
)
