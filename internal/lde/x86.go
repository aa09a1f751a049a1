package lde

// References:
//   - Intel SDM Vol. 2, Appendix A (opcode maps)
//   - http://ref.x86asm.net/geek32.html

// decodeX86 measures one 32-bit protected mode instruction.
func decodeX86(code []byte, r *rules) InstLen {
	c := cursor{code: code}
	immDef, addr16 := 4, false
	var op byte

	// Prefixes
	for {
		b, ok := c.next()
		if !ok || r.tooLong(c.pos) {
			return InstLen{}
		}
		if !legacyPrefix.has(b) {
			op = b
			break
		}
		switch b {
		case 0x66:
			immDef = 2
		case 0x67:
			addr16 = true
		}
	}
	prefix := c.pos - 1
	addrDef := 4
	if addr16 {
		addrDef = 2
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
			if twoInvalid.has(op) {
				return InstLen{}
			}
			modrm = r.twoModRM.has(op)
			if twoImm8.has(op) {
				imm++
			}
			// Jcc Jz
			if op&0xF0 == 0x80 {
				imm += immDef
			}
			if r.ext16 && twoExt16.has(op) {
				imm += 2
			}
		}
	} else {
		modrm = oneModRM.has(op)
		// TEST Eb/Ev, imm lives in group 3 with reg=0
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
		// CALLF Ap, RETN Iw, ENTER Iw Ib, RETF Iw, JMPF Ap
		switch op {
		case 0x9A, 0xC2, 0xC8, 0xCA, 0xEA:
			imm += 2
		}
		if oneImmZ.has(op) {
			imm += immDef
		}
		// MOV with moffs
		if op&0xFC == 0xA0 {
			disp += addrDef
		}
	}
	opcode := c.pos - prefix

	if modrm {
		var (
			d  int
			ok bool
		)
		if addr16 && r.modrm16 {
			d, ok = modrm16(&c)
		} else {
			d, ok = modrm32(&c, addrDef)
		}
		if !ok {
			return InstLen{}
		}
		disp += d
	}

	return finish(&c, r, prefix, opcode, imm+disp)
}
