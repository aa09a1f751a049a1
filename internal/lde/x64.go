package lde

// References:
//   - Intel SDM Vol. 2, Section 2.2 (IA-32e mode)
//   - http://ref.x86asm.net/geek64.html

// decodeX64 measures one 64-bit long mode instruction.
func decodeX64(code []byte, r *rules) InstLen {
	c := cursor{code: code}
	opsize16, addr32, rexW := false, false, false
	var op byte

	// Prefixes. A REX byte only counts when it immediately precedes the opcode.
	for {
		b, ok := c.next()
		if !ok || r.tooLong(c.pos) {
			return InstLen{}
		}
		if !longPrefix.has(b) {
			op = b
			break
		}
		rexW = false
		switch {
		case b&0xF0 == 0x40:
			rexW = b&0x08 != 0
		case b == 0x66:
			opsize16 = true
		case b == 0x67:
			addr32 = true
		}
	}
	prefix := c.pos - 1

	// Iz is 2 bytes under 66, REX.W takes precedence and keeps it at 4.
	immDef := 4
	if opsize16 && !rexW {
		immDef = 2
	}
	moffs := 8
	if addr32 {
		moffs = 4
	}

	modrm := false
	imm, disp := 0, 0

	if op == escTwoByte {
		b, ok := c.next()
		if !ok {
			return InstLen{}
		}
		op = b
		switch op {
		case esc0F38:
			if op, ok = c.next(); !ok || !threeValid38.has(op) {
				return InstLen{}
			}
			modrm = true
		case esc0F3A:
			if op, ok = c.next(); !ok || !threeValid3A.has(op) {
				return InstLen{}
			}
			modrm = true
			imm++
		default:
			if twoInvalid64.has(op) {
				return InstLen{}
			}
			modrm = r.twoModRM.has(op)
			if twoImm8.has(op) {
				imm++
			}
			// Jcc Jz is always rel32 in long mode
			if op&0xF0 == 0x80 {
				imm += 4
			}
			if r.ext16 && twoExt16.has(op) {
				imm += 2
			}
		}
	} else {
		if oneInvalid64.has(op) {
			return InstLen{}
		}
		modrm = oneModRM.has(op)
		if op == 0xF6 || op == 0xF7 {
			m, ok := c.peek()
			if !ok {
				return InstLen{}
			}
			if m&0x38 == 0 {
				if op&1 != 0 {
					imm += immDef
				} else {
					imm++
				}
			}
		}
		if oneImm8.has(op) {
			imm++
		}
		// RETN Iw, ENTER Iw Ib, RETF Iw
		switch op {
		case 0xC2, 0xC8, 0xCA:
			imm += 2
		}
		switch {
		case op >= 0xB8 && op <= 0xBF && rexW:
			// MOV r64, imm64
			imm += 8
		case op == 0xE8 || op == 0xE9:
			// CALL/JMP rel32
			imm += 4
		case oneImmZ.has(op):
			imm += immDef
		}
		if op&0xFC == 0xA0 {
			disp += moffs
		}
	}
	opcode := c.pos - prefix

	if modrm {
		d, ok := modrm32(&c, 4)
		if !ok {
			return InstLen{}
		}
		disp += d
	}

	return finish(&c, r, prefix, opcode, imm+disp)
}

// RIPRelative returns the offset of the disp32 of a RIP-relative memory
// operand in op, which must be a long mode instruction decoded into l by
// either table set.
func RIPRelative(op OpCode, l InstLen) (int, bool) {
	if !l.Ok() || l.Arg == 0 {
		return 0, false
	}
	var modrm bool
	code := op[l.Prefix:l.ArgOffset()]
	switch {
	case len(code) == 1:
		modrm = oneModRM.has(code[0])
	case len(code) == 2:
		modrm = twoModRMHardware.has(code[1])
	default:
		modrm = true
	}
	if !modrm {
		return 0, false
	}
	// ModRM and disp32
	if l.Arg < 5 {
		return 0, false
	}
	m := op[l.ArgOffset()]
	if m&0xC0 != modMem0 || m&0b111 != rmDisp {
		return 0, false
	}
	return l.ArgOffset() + 1, true
}
