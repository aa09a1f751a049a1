package lde

import "fmt"

// Tables selects the opcode rules an engine follows.
type Tables int

const (
	// Reference follows the packed reference tables: FEMMS and BSWAP r32
	// carry a two-byte extension, the address-size prefix narrows
	// displacements but keeps the 32-bit ModRM layout, and instruction
	// length is unbounded.
	Reference Tables = iota
	// Hardware measures what processors decode: the register forms of
	// 0F 20-24/26 and 0F 71-73 take a ModRM byte, FEMMS and BSWAP have no
	// extension, 32-bit code under 67 uses 16-bit ModRM addressing, and
	// instructions longer than MaxInstLen fail.
	Hardware
)

func (t Tables) String() string {
	switch t {
	case Reference:
		return "reference"
	case Hardware:
		return "hardware"
	}
	return fmt.Sprintf("Tables(%d)", int(t))
}

// rules are the parts of the decode that differ between table sets.
type rules struct {
	twoModRM *bitTable
	ext16    bool // twoExt16 opcodes carry two extra bytes
	modrm16  bool // 67 selects 16-bit ModRM addressing in 32-bit code
	maxLen   int  // 0 for no limit
}

var ruleSets = [...]rules{
	Reference: {twoModRM: &twoModRM, ext16: true},
	Hardware:  {twoModRM: &twoModRMHardware, modrm16: true, maxLen: MaxInstLen},
}

func (t Tables) rules() *rules {
	if t < 0 || int(t) >= len(ruleSets) {
		panic(fmt.Sprintf("lde: unknown %v", t))
	}
	return &ruleSets[t]
}

// tooLong reports whether n bytes exceed the length limit.
func (r *rules) tooLong(n int) bool {
	return r.maxLen > 0 && n > r.maxLen
}
