package lde

import (
	"math/rand/v2"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// These encodings are measured differently by x86asm, which follows a
// different vendor or rejects the instruction outright.
var oracleSkip = map[string]bool{
	"femms":                         true, // 3DNow! is not in x86asm's tables
	"prefetch [eax+disp32]":         true,
	"rex cancelled by later prefix": true,
	"call rel32 ignores 66":         true, // AMD honours 66 here
	"endbr64":                       true,
}

// TestAgainstX86asm checks every valid encoding measured by the hardware
// tables against a full decoder.
func TestAgainstX86asm(t *testing.T) {
	modes := []struct {
		mode  int
		isa   interface{ Len([]byte) int }
		cases []lenCase
	}{
		{32, X86With(Hardware), hardwareCases(x86Cases, x86HardwareCases)},
		{64, X64With(Hardware), hardwareCases(x64Cases, x64HardwareCases)},
	}
	for _, m := range modes {
		for _, tt := range m.cases {
			if tt.want == 0 || oracleSkip[tt.name] {
				continue
			}
			b := code(t, tt.code)
			inst, err := x86asm.Decode(b, m.mode)
			if err != nil {
				t.Errorf("%d-bit %s: x86asm: %v", m.mode, tt.name, err)
				continue
			}
			if got := m.isa.Len(b); got != inst.Len {
				t.Errorf("%d-bit %s (% X): Len = %d, x86asm = %d (%s)",
					m.mode, tt.name, b, got, inst.Len, x86asm.IntelSyntax(inst, 0, nil))
			}
		}
	}
}

type engine struct {
	name  string
	isa   interface{ Decode([]byte) InstLen }
	limit int // longest length allowed, 0 for none
}

var engines = []engine{
	{"x86", X86, 0},
	{"x64", X64, 0},
	{"x86 hardware", X86With(Hardware), MaxInstLen},
	{"x64 hardware", X64With(Hardware), MaxInstLen},
}

func checkProperties(t *testing.T, e engine, b []byte) {
	t.Helper()
	name, isa := e.name, e.isa
	l := isa.Decode(b)
	n := l.Total
	if n < 0 || n > len(b) || (e.limit > 0 && n > e.limit) {
		t.Fatalf("%s(% X) = %d out of range", name, b, n)
	}
	if again := isa.Decode(b); again != l {
		t.Fatalf("%s(% X) not deterministic: %+v then %+v", name, b, l, again)
	}
	if n == 0 {
		if l != (InstLen{}) {
			t.Fatalf("%s(% X) failed with non-zero breakdown %+v", name, b, l)
		}
		return
	}
	if l.Prefix+l.Opcode+l.Arg != n {
		t.Fatalf("%s(% X) breakdown %+v does not sum to total", name, b, l)
	}
	// The length depends only on the instruction's own bytes.
	if got := isa.Decode(b[:n:n]).Total; got != n {
		t.Fatalf("%s(% X) = %d, but truncated to it = %d", name, b, n, got)
	}
	tail := append(append([]byte{}, b[:n]...), 0x0F, 0x0F, 0x0F, 0x0F)
	if got := isa.Decode(tail).Total; got != n {
		t.Fatalf("%s(% X) = %d, but with other trailing bytes = %d", name, b, n, got)
	}
}

func TestRandomProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	buf := make([]byte, 20)
	for range 20000 {
		for i := range buf {
			buf[i] = byte(r.Uint32())
		}
		b := buf[:r.IntN(len(buf)+1)]
		for _, e := range engines {
			checkProperties(t, e, b)
		}
	}
}

func FuzzLen(f *testing.F) {
	for _, tt := range x86Cases {
		f.Add(code(f, tt.code))
	}
	for _, tt := range x64Cases {
		f.Add(code(f, tt.code))
	}
	f.Fuzz(func(t *testing.T, b []byte) {
		for _, e := range engines {
			checkProperties(t, e, b)
		}
	})
}
