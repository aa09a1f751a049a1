// Package hook computes how many whole instructions an inline hook
// displaces and rebuilds them at a new address.
package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"lde/internal/lde"
)

// JumpSize is the size of the E9 rel32 jump written over a hooked function.
const JumpSize = 5

var (
	// ErrShortCode is returned when decoding stops before enough bytes are covered.
	ErrShortCode = errors.New("code ends before the hook is covered")
	// ErrUnrelocatable is returned for instructions that cannot run from another address.
	ErrUnrelocatable = errors.New("instruction cannot be relocated")
	// ErrOutOfRange is returned when a rewritten rel32 cannot reach its target.
	ErrOutOfRange = errors.New("target out of rel32 range")
)

// Size pulls whole instructions from it until at least minLen bytes are
// covered and returns the number of bytes consumed.
func Size[VA lde.Addr](it *lde.Iter[VA], minLen int) (int, error) {
	n := 0
	for n < minLen {
		op, _, ok := it.Next()
		if !ok {
			return n, fmt.Errorf("%w: %d of %d bytes", ErrShortCode, n, minLen)
		}
		n += op.Len()
	}
	return n, nil
}

// Inst is one displaced instruction.
type Inst[VA lde.Addr] struct {
	Op  lde.OpCode
	VA  VA
	Len lde.InstLen
}

// Plan describes the instructions a hook at Origin displaces.
type Plan[VA lde.Addr] struct {
	Isa    lde.Isa[VA]
	Origin VA
	Size   int
	Insts  []Inst[VA]
}

// NewPlan decodes code, located at origin, until minLen bytes are covered.
// The plan's opcodes alias code.
func NewPlan[VA lde.Addr](isa lde.Isa[VA], code []byte, origin VA, minLen int) (*Plan[VA], error) {
	p := &Plan[VA]{Isa: isa, Origin: origin}
	it := isa.Iter(code, origin)
	for p.Size < minLen {
		op, va, ok := it.Next()
		if !ok {
			return p, fmt.Errorf("%w: %d of %d bytes at %#x", ErrShortCode, p.Size, minLen, uint64(origin))
		}
		p.Insts = append(p.Insts, Inst[VA]{Op: op, VA: va, Len: isa.Decode(op)})
		p.Size += op.Len()
	}
	return p, nil
}

// Bytes returns a copy of the displaced bytes.
func (p *Plan[VA]) Bytes() []byte {
	out := make([]byte, 0, p.Size)
	for _, in := range p.Insts {
		out = append(out, in.Op...)
	}
	return out
}

// Relocate copies the displaced instructions so that they run at base,
// rewriting relative branch targets and RIP-relative operands.
func (p *Plan[VA]) Relocate(base VA) ([]byte, error) {
	out := p.Bytes()
	off := 0
	for _, in := range p.Insts {
		op := lde.OpCode(out[off : off+in.Op.Len()])
		at := base + VA(off)
		off += op.Len()

		dispOff, err := p.relOffset(op, in.Len)
		if err != nil {
			return nil, fmt.Errorf("%X at %#x: %w", []byte(in.Op), uint64(in.VA), err)
		}
		if dispOff < 0 {
			continue
		}
		next := VA(in.Len.Total)
		target := in.VA + next + VA(int64(op.Int32(dispOff)))
		rel, err := displacement(at+next, target)
		if err != nil {
			return nil, fmt.Errorf("%X at %#x to %#x: %w", []byte(in.Op), uint64(in.VA), uint64(at), err)
		}
		op.PutInt32(dispOff, rel)
		slog.Debug("relocated", "va", uint64(in.VA), "to", uint64(at), "target", uint64(target))
	}
	return out, nil
}

// relOffset returns the offset of the rel32 or disp32 that depends on the
// instruction's address, or -1 when there is none.
func (p *Plan[VA]) relOffset(op lde.OpCode, l lde.InstLen) (int, error) {
	code := op[l.Prefix:l.ArgOffset()]
	switch {
	case len(code) == 1:
		switch b := code[0]; {
		case b >= 0x70 && b <= 0x7F, b >= 0xE0 && b <= 0xE3, b == 0xEB:
			return 0, fmt.Errorf("rel8 branch: %w", ErrUnrelocatable)
		case b == 0xE8 || b == 0xE9:
			return rel32At(l)
		}
	case len(code) == 2 && code[0] == 0x0F && code[1]&0xF0 == 0x80:
		return rel32At(l)
	}
	if p.Isa.Bits() == 64 {
		if off, ok := lde.RIPRelative(op, l); ok {
			return off, nil
		}
	}
	return -1, nil
}

func rel32At(l lde.InstLen) (int, error) {
	if l.Arg != 4 {
		return 0, fmt.Errorf("rel16 branch: %w", ErrUnrelocatable)
	}
	return l.ArgOffset(), nil
}

// displacement returns to-from as a rel32. Addresses wrap in 32-bit mode,
// so every target is reachable there.
func displacement[VA lde.Addr](from, to VA) (int32, error) {
	d := to - from
	if uint64(^VA(0)) == math.MaxUint32 {
		return int32(uint32(d)), nil
	}
	s := int64(uint64(d))
	if s < math.MinInt32 || s > math.MaxInt32 {
		return 0, ErrOutOfRange
	}
	return int32(s), nil
}

// Trampoline relocates the displaced instructions to base and appends a
// jump back to the first instruction after them.
func (p *Plan[VA]) Trampoline(base VA) ([]byte, error) {
	out, err := p.Relocate(base)
	if err != nil {
		return nil, err
	}
	back := p.Origin + VA(p.Size)
	if p.Isa.Bits() == 64 {
		// jmp [rip+0]; dq back
		jmp := lde.BuilderFrom([]byte{0xFF, 0x25, 0, 0, 0, 0}).Append(make([]byte, 8)...).PutUint64(6, uint64(back))
		return append(out, jmp.OpCode()...), nil
	}
	rel, err := displacement(base+VA(p.Size+JumpSize), back)
	if err != nil {
		return nil, err
	}
	jmp := lde.BuilderFrom([]byte{0xE9, 0, 0, 0, 0}).PutInt32(1, rel)
	return append(out, jmp.OpCode()...), nil
}

// Patch returns the bytes to write over the origin: a jump to dest padded
// with nops to the plan's size.
func (p *Plan[VA]) Patch(dest VA) ([]byte, error) {
	if p.Size < JumpSize {
		return nil, fmt.Errorf("%w: patch needs %d bytes, plan covers %d", ErrShortCode, JumpSize, p.Size)
	}
	rel, err := displacement(p.Origin+JumpSize, dest)
	if err != nil {
		return nil, err
	}
	out := lde.BuilderFrom([]byte{0xE9, 0, 0, 0, 0}).PutInt32(1, rel).OpCode()
	for len(out) < p.Size {
		out = append(out, 0x90)
	}
	return out, nil
}
