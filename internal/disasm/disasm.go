// Package disasm builds instruction listings on top of the length decoder,
// naming each instruction with golang.org/x/arch/x86/x86asm.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"lde/internal/lde"
)

// Syntax selects the assembler dialect of Inst.Text.
type Syntax string

const (
	Intel Syntax = "intel"
	GNU   Syntax = "gnu"
	Go    Syntax = "go"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA     uint64      // virtual address of instruction
	Raw    []byte      // instruction bytes, aliasing the decoded buffer
	Len    lde.InstLen // length breakdown
	Text   string      // formatted disassembly string
	Op     string      // mnemonic in lowercase, empty if x86asm rejected the bytes
	Target uint64      // branch or RIP-relative target, 0 if none
	Branch bool        // Target is the destination of a relative branch
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Listing is a stream plus the bytes the walk did not cover.
type Listing struct {
	Stream
	Tail    []byte // bytes after the last instruction
	TailVA  uint64
	Stopped bool // the walk ended at an undecodable position
}

// Options controls Decode.
type Options struct {
	Syntax  Syntax
	Max     int              // stop after this many instructions, 0 for no limit
	Symname x86asm.SymLookup // optional symbol lookup for branch targets
}

// Decode walks code from va, one instruction per step of the length
// decoder, and annotates each with x86asm.
func Decode[VA lde.Addr](isa lde.Isa[VA], code []byte, va VA, opts Options) Listing {
	var l Listing
	it := isa.Iter(code, va)
	for op, at := range it.All() {
		l.Stream = append(l.Stream, annotate(isa.Bits(), op, isa.Decode(op), uint64(at), opts))
		if opts.Max > 0 && len(l.Stream) >= opts.Max {
			break
		}
	}
	l.Tail, l.TailVA, l.Stopped = it.Remaining(), uint64(it.VA()), it.Done()
	return l
}

func annotate(mode int, op lde.OpCode, n lde.InstLen, va uint64, opts Options) Inst {
	in := Inst{VA: va, Raw: op, Len: n}
	x, err := x86asm.Decode(op, mode)
	if err != nil || x.Len != op.Len() {
		// The length decoder accepts some encodings x86asm does not know.
		in.Text = "(bad)"
		return in
	}
	in.Op = strings.ToLower(x.Op.String())
	in.Text = Format(x, va, opts.Syntax, opts.Symname)
	next := va + uint64(x.Len)
	for _, a := range x.Args {
		switch a := a.(type) {
		case x86asm.Rel:
			in.Target, in.Branch = next+uint64(int64(a)), true
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				in.Target = next + uint64(a.Disp)
			}
		}
	}
	if mode == 32 {
		in.Target = uint64(uint32(in.Target))
	}
	return in
}

// Format renders x in the given syntax. pc is the address of the instruction.
func Format(x x86asm.Inst, pc uint64, syntax Syntax, symname x86asm.SymLookup) string {
	switch syntax {
	case GNU:
		return x86asm.GNUSyntax(x, pc, symname)
	case Go:
		return x86asm.GoSyntax(x, pc, symname)
	}
	return x86asm.IntelSyntax(x, pc, symname)
}

// String formats the instruction as address, bytes and text.
func (in Inst) String() string {
	return fmt.Sprintf("%-10x %-30s %s", in.VA, lde.Hex(in.Raw, true, true), in.Text)
}

// String formats the listing one instruction per line, followed by the
// uncovered tail if any.
func (l Listing) String() string {
	var sb strings.Builder
	for _, in := range l.Stream {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	if len(l.Tail) > 0 && l.Stopped {
		fmt.Fprintf(&sb, "%-10x %-30s (undecodable)\n", l.TailVA, lde.Hex(l.Tail[:min(len(l.Tail), lde.MaxInstLen)], true, true))
	}
	return sb.String()
}

// Size returns the number of bytes covered by the stream.
func (s Stream) Size() int {
	n := 0
	for _, in := range s {
		n += len(in.Raw)
	}
	return n
}
