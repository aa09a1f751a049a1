package analysis

import (
	"fmt"
	"strings"

	"lde/internal/disasm"
	"lde/internal/elfx"
	"lde/internal/lde"
)

// AnnotatedInst represents a disassembled instruction with annotations
type AnnotatedInst struct {
	disasm.Inst
	Label       string   // set on label lines, which carry no instruction
	Displaced   bool     // overwritten by the hook
	Annotations []string // Comments to display
}

// String formats the instruction with annotations after a fixed-width text column.
// This returns plain text - colorization should be done after formatting
func (a AnnotatedInst) String() string {
	if a.Label != "" {
		return fmt.Sprintf("%x  %s:", a.VA, a.Label)
	}
	mark := ' '
	if a.Displaced {
		mark = '*'
	}
	base := fmt.Sprintf("%-10x %c %-30s %-32s", a.VA, mark, lde.Hex(a.Raw, true, true), a.Text)
	if len(a.Annotations) > 0 {
		return fmt.Sprintf("%s ; %s", base, strings.Join(a.Annotations, ", "))
	}
	return strings.TrimRight(base, " ")
}

// Annotate turns a listing into annotated lines: labels for local branch
// targets, symbol names and rodata strings for referenced addresses, and a
// mark on the first size bytes from origin. im may be nil.
func Annotate(im *elfx.Image, l disasm.Listing, origin uint64, size int) []AnnotatedInst {
	starts := make(map[uint64]bool, len(l.Stream))
	for _, in := range l.Stream {
		starts[in.VA] = true
	}
	labels := make(map[uint64]string)
	for _, in := range l.Stream {
		if in.Branch && starts[in.Target] {
			labels[in.Target] = fmt.Sprintf("loc_%x", in.Target)
		}
	}

	lookup := SymLookup(im)
	out := make([]AnnotatedInst, 0, len(l.Stream)+len(labels)+1)
	for _, in := range l.Stream {
		if label, ok := labels[in.VA]; ok {
			out = append(out, AnnotatedInst{Inst: disasm.Inst{VA: in.VA}, Label: label})
		}
		a := AnnotatedInst{
			Inst:      in,
			Displaced: in.VA >= origin && in.VA < origin+uint64(size),
		}
		switch {
		case in.Branch && labels[in.Target] != "":
			a.Annotations = append(a.Annotations, labels[in.Target])
		case in.Target != 0 && !in.Branch:
			if s, ok := TryResolveCString(im, in.Target); ok {
				a.Annotations = append(a.Annotations, fmt.Sprintf("%q", s))
			} else if lookup != nil {
				if name, base := lookup(in.Target); name != "" {
					a.Annotations = append(a.Annotations, symOffset(name, in.Target-base))
				}
			}
		}
		out = append(out, a)
	}
	if l.Stopped && len(l.Tail) > 0 {
		out = append(out, AnnotatedInst{
			Inst: disasm.Inst{
				VA:   l.TailVA,
				Raw:  l.Tail[:min(len(l.Tail), lde.MaxInstLen)],
				Text: "(undecodable)",
			},
			Displaced: l.TailVA >= origin && l.TailVA < origin+uint64(size),
		})
	}
	return out
}

func symOffset(name string, off uint64) string {
	if off == 0 {
		return name
	}
	return fmt.Sprintf("%s+%#x", name, off)
}
