package lde

import (
	"encoding/hex"
	"strings"
	"testing"
)

// code parses "48 83 EC 2A" style hex. '*' bytes stand for 0x2A.
func code(t testing.TB, s string) []byte {
	t.Helper()
	s = strings.ReplaceAll(s, "*", "2A")
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

type lenCase struct {
	name string
	code string
	want int
}

var x86Cases = []lenCase{
	{"inc eax", "40", 1},
	{"mov eax, imm32", "B8 01 01 01 01", 5},
	{"add al, imm8", "04 *", 2},
	{"mov [ebp+disp8], ebx", "89 5D *", 3},
	{"test al, al", "84 C0", 2},
	{"fld qword [eax+eax*4+disp32]", "DD 84 00 * * * *", 7},
	{"mov esi, imm32", "BE * * * *", 5},
	{"mov eax, fs:moffs32", "64 A1 * * * *", 6},
	{"add [disp32], eax", "01 05 * * * *", 6},
	{"addr16 mov eax, moffs16", "67 A1 * *", 4},
	{"add [bx+si+disp16], al", "67 00 80 * *", 5},
	{"retn", "C3", 1},
	{"nop dword [eax+disp8]", "0F 1F 40 00", 4},
	{"prefetch [eax+disp32]", "66 0F 0D 80 * * * *", 8},
	{"clflush [eax]", "0F AE 38", 3},
	{"addr16 mod=00 rm=110 has no disp", "67 8B 06 34 12", 3},
	{"addr16 keeps the sib byte", "67 8B 04 24", 4},
	{"addr16 keeps disp32", "67 8B 05 * * * *", 7},
	{"addr16 disp8", "67 8B 40 10", 4},
	{"push imm16", "66 68 34 12", 4},
	{"push imm32", "68 * * * *", 5},
	{"callf ptr16:32", "9A * * * * * *", 7},
	{"jmpf ptr16:16", "66 EA * * * *", 6},
	{"enter imm16, imm8", "C8 10 00 00", 4},
	{"retn imm16", "C2 08 00", 3},
	{"test byte [disp32], imm8", "F6 05 * * * * 01", 7},
	{"test dword [disp32], imm32", "F7 05 * * * * * * * *", 10},
	{"test word [disp32], imm16", "66 F7 05 * * * * * *", 9},
	{"not dword [disp32]", "F7 15 * * * *", 6},
	{"mov [esp+disp8], imm32", "C7 44 24 04 * * * *", 8},
	{"sib no base", "8B 04 25 * * * *", 7},
	{"sib no base disp8 form", "8B 44 25 *", 4},
	{"jz rel32", "0F 84 * * * *", 6},
	{"jz rel16", "66 0F 84 * *", 5},
	{"jz rel8", "74 *", 2},
	{"call rel32", "E8 * * * *", 5},
	{"imul eax, ecx, imm32", "69 C1 * * * *", 6},
	{"imul eax, ecx, imm8", "6B C1 *", 3},
	{"shld eax, ecx, imm8", "0F A4 C8 04", 4},
	{"pshufw mm0, mm1, imm8", "0F 70 C1 1B", 4},
	{"0F 73 imm8 without modrm", "0F 73 D0 08", 3},
	{"0F 20 without modrm", "0F 20 C0", 2},
	{"pshufb xmm0, xmm1", "66 0F 38 00 C1", 5},
	{"pextrd eax, xmm0, imm8", "66 0F 3A 16 C0 01", 6},
	{"crc32 eax, ecx", "F2 0F 38 F1 C1", 5},
	{"femms extension", "0F 0E 00 00", 4},
	{"bswap ecx extension", "0F C9 00 00", 4},
	{"bswap esi extension", "0F CE 00 00", 4},
	{"bswap eax", "0F C8", 2},
	{"bswap edi", "0F CF", 2},
	{"les eax, [eax]", "C4 00", 2},
	{"lock cmpxchg [ecx], edx", "F0 0F B1 11", 4},
	{"rep movsd", "F3 A5", 2},
	{"int3", "CC", 1},
	{"int imm8", "CD 80", 2},

	{"empty", "", 0},
	{"prefix only", "66 67", 0},
	{"truncated imm32", "B8 01 01", 0},
	{"truncated modrm", "89", 0},
	{"truncated sib", "8B 04", 0},
	{"truncated disp", "89 5D", 0},
	{"truncated escape", "0F", 0},
	{"truncated three-byte", "0F 3A", 0},
	{"group3 without modrm", "F7", 0},
	{"invalid two-byte", "0F 0F C1 B4", 0},
	{"invalid 0F 38", "66 0F 38 0C C1", 0},
	{"invalid 0F 3A", "66 0F 3A 00 C1 00", 0},
	{"ud0", "0F FF", 0},
	{"long prefix run", strings.Repeat("66 ", 15) + "90", 16},
	{"truncated femms", "0F 0E 00", 0},
}

var x64Cases = []lenCase{
	{"push rbp", "40 55", 2},
	{"sub rsp, imm8", "48 83 EC *", 4},
	{"mov rbp, rsp", "48 89 E5", 3},
	{"mov rax, imm64", "48 B8 * * * * * * * *", 10},
	{"mov r8, imm64", "49 B8 * * * * * * * *", 10},
	{"mov eax, imm32", "B8 * * * *", 5},
	{"mov ax, imm16", "66 B8 34 12", 4},
	{"rex.w wins over 66", "66 48 B8 * * * * * * * *", 10},
	{"rex cancelled by later prefix", "48 66 B8 34 12", 5},
	{"mov rax, imm32 sign-extended", "48 C7 C0 * * * *", 7},
	{"test rax, imm32", "48 F7 C0 * * * *", 7},
	{"test cl, imm8", "F6 C1 01", 3},
	{"neg eax", "F7 D8", 2},
	{"lea rax, [rip+disp32]", "48 8D 05 * * * *", 7},
	{"mov r8, [rip+disp32]", "4C 8B 05 * * * *", 7},
	{"cmp dword [rip+disp32], imm8", "83 3D * * * * 00", 7},
	{"call rel32", "E8 * * * *", 5},
	{"call rel32 ignores 66", "66 E8 * * * *", 6},
	{"jz rel32", "0F 84 * * * *", 6},
	{"nop word [rax+rax+0]", "66 0F 1F 44 00 00", 6},
	{"nop dword [rax+rax+disp32]", "0F 1F 84 00 00 00 00 00", 8},
	{"mov [rsp+disp32], rax", "48 89 84 24 * * * *", 8},
	{"movabs rax, moffs64", "48 A1 * * * * * * * *", 10},
	{"addr32 mov eax, moffs32", "67 A1 * * * *", 6},
	{"addr32 does not shrink disp", "67 89 80 * * * *", 7},
	{"retn", "C3", 1},
	{"retn imm16", "C2 08 00", 3},
	{"int3", "CC", 1},
	{"call r11", "41 FF D3", 3},
	{"syscall", "0F 05", 2},
	{"ud2", "0F 0B", 2},
	{"0F 20 without modrm", "0F 20 C0", 2},
	{"popcnt rax, rcx", "F3 48 0F B8 C1", 5},
	{"pshufb xmm0, xmm1", "66 0F 38 00 C1", 5},
	{"pextrd eax, xmm0, imm8", "66 0F 3A 16 C0 01", 6},
	{"pextrq rax, xmm0, imm8", "66 48 0F 3A 16 C0 01", 7},
	{"movaps xmm0, [rip+disp32]", "0F 28 05 * * * *", 7},
	{"movsxd rax, ecx", "48 63 C1", 3},
	{"bswap rcx extension", "48 0F C9 00 00", 5},
	{"long prefix run", strings.Repeat("66 ", 15) + "90", 16},
	{"endbr64", "F3 0F 1E FA", 4},
	{"lock xadd [rcx], eax", "F0 0F C1 01", 4},

	{"empty", "", 0},
	{"rex only", "48", 0},
	{"truncated imm64", "48 B8 01 02", 0},
	{"truncated rip disp", "48 8D 05 00 00", 0},
	{"push es", "06", 0},
	{"pusha", "60", 0},
	{"bound", "62 00", 0},
	{"group1 alias 82", "82 C0 01", 0},
	{"callf", "9A * * * * * *", 0},
	{"jmpf", "EA * * * * * *", 0},
	{"vex3", "C4 E2 79 00 C1", 0},
	{"vex2", "C5 F8 28 C1", 0},
	{"into", "CE", 0},
	{"aam", "D4 0A", 0},
	{"salc", "D6", 0},
	{"mov tr", "0F 24 C0", 0},
}

// Vectors where processors disagree with the reference tables. The
// hardware engines are checked against the shared vectors plus these.
var (
	x86HardwareCases = []lenCase{
		{"femms", "0F 0E", 2},
		{"bswap ecx", "0F C9", 2},
		{"mov eax, cr0", "0F 20 C0", 3},
		{"psrlq mm0, imm8", "0F 73 D0 08", 4},
		{"mov eax, [disp16]", "67 8B 06 34 12", 5},
		{"mov eax, [si]", "67 8B 04 24", 3},
		{"mov eax, [di]", "67 8B 05 * * * *", 3},
		{"too many prefixes", strings.Repeat("66 ", 15) + "90", 0},
	}
	x64HardwareCases = []lenCase{
		{"mov rax, cr0", "0F 20 C0", 3},
		{"psrlq mm0, imm8", "0F 73 D0 08", 4},
		{"bswap rcx", "48 0F C9", 3},
		{"too many prefixes", strings.Repeat("66 ", 15) + "90", 0},
	}
)

// referenceOnly names the shared vectors the hardware tables measure
// differently.
var referenceOnly = map[string]bool{
	"addr16 mod=00 rm=110 has no disp": true,
	"addr16 keeps the sib byte":        true,
	"addr16 keeps disp32":              true,
	"0F 73 imm8 without modrm":         true,
	"0F 20 without modrm":              true,
	"femms extension":                  true,
	"bswap ecx extension":              true,
	"bswap esi extension":              true,
	"bswap rcx extension":              true,
	"long prefix run":                  true,
	"truncated femms":                  true,
}

// hardwareCases returns the vectors for a hardware engine.
func hardwareCases(shared, hw []lenCase) []lenCase {
	var out []lenCase
	for _, tt := range shared {
		if !referenceOnly[tt.name] {
			out = append(out, tt)
		}
	}
	return append(out, hw...)
}

func runLenCases(t *testing.T, isa interface{ Len([]byte) int }, cases []lenCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			b := code(t, tt.code)
			if got := isa.Len(b); got != tt.want {
				t.Errorf("Len(% X) = %d, want %d", b, got, tt.want)
			}
		})
	}
}

func TestX86Len(t *testing.T) {
	runLenCases(t, X86, x86Cases)
}

func TestX64Len(t *testing.T) {
	runLenCases(t, X64, x64Cases)
}

func TestHardwareLen(t *testing.T) {
	t.Run("x86", func(t *testing.T) {
		runLenCases(t, X86With(Hardware), hardwareCases(x86Cases, x86HardwareCases))
	})
	t.Run("x64", func(t *testing.T) {
		runLenCases(t, X64With(Hardware), hardwareCases(x64Cases, x64HardwareCases))
	})
}

func TestTables(t *testing.T) {
	if Reference.String() != "reference" || Hardware.String() != "hardware" {
		t.Errorf("String() = %s, %s", Reference, Hardware)
	}
	if got := Tables(7).String(); got != "Tables(7)" {
		t.Errorf("String() = %s", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("X86With(Tables(7)) did not panic")
		}
	}()
	X86With(Tables(7))
}

func TestDecodeBreakdown(t *testing.T) {
	tests := []struct {
		name string
		isa  interface{ Decode([]byte) InstLen }
		code string
		want InstLen
	}{
		{"one-byte", X86, "C3", InstLen{Total: 1, Opcode: 1}},
		{"prefix and imm", X86, "66 B8 34 12", InstLen{Total: 4, Prefix: 1, Opcode: 1, Arg: 2}},
		{"segment and moffs", X86, "64 A1 * * * *", InstLen{Total: 6, Prefix: 1, Opcode: 1, Arg: 4}},
		{"two-byte jcc", X86, "0F 84 * * * *", InstLen{Total: 6, Opcode: 2, Arg: 4}},
		{"three-byte", X86, "66 0F 3A 16 C0 01", InstLen{Total: 6, Prefix: 1, Opcode: 3, Arg: 2}},
		{"femms extension", X86, "0F 0E 00 00", InstLen{Total: 4, Opcode: 2, Arg: 2}},
		{"hardware femms", X86With(Hardware), "0F 0E 00 00", InstLen{Total: 2, Opcode: 2}},
		{"addr16 sib", X86, "67 8B 04 24", InstLen{Total: 4, Prefix: 1, Opcode: 1, Arg: 2}},
		{"hardware addr16", X86With(Hardware), "67 8B 06 34 12", InstLen{Total: 5, Prefix: 1, Opcode: 1, Arg: 3}},
		{"rex", X64, "40 55", InstLen{Total: 2, Prefix: 1, Opcode: 1}},
		{"rip-relative", X64, "48 8D 05 * * * *", InstLen{Total: 7, Prefix: 1, Opcode: 1, Arg: 5}},
		{"failure is zero", X64, "48", InstLen{}},
		{"trailing bytes ignored", X64, "48 83 EC * 00 80", InstLen{Total: 4, Prefix: 1, Opcode: 1, Arg: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.isa.Decode(code(t, tt.code))
			if got != tt.want {
				t.Errorf("Decode(%s) = %+v, want %+v", tt.code, got, tt.want)
			}
			if got.Ok() != (tt.want.Total > 0) {
				t.Errorf("Ok() = %v for %+v", got.Ok(), got)
			}
		})
	}
}

func TestBreakdownSumsToTotal(t *testing.T) {
	for _, cases := range [][]lenCase{x86Cases, x64Cases} {
		for _, tt := range cases {
			b := code(t, tt.code)
			for _, l := range []InstLen{
				X86.Decode(b), X64.Decode(b),
				X86With(Hardware).Decode(b), X64With(Hardware).Decode(b),
			} {
				if !l.Ok() {
					continue
				}
				if l.Prefix+l.Opcode+l.Arg != l.Total || l.Opcode < 1 || l.Opcode > 3 {
					t.Errorf("%s: inconsistent breakdown %+v", tt.name, l)
				}
			}
		}
	}
}

func TestIsaNames(t *testing.T) {
	if X86.Name() != "x86" || X86.Bits() != 32 {
		t.Errorf("X86 = %s/%d", X86.Name(), X86.Bits())
	}
	if X64.Name() != "x86_64" || X64.Bits() != 64 {
		t.Errorf("X64 = %s/%d", X64.Name(), X64.Bits())
	}
}

func TestRIPRelative(t *testing.T) {
	tests := []struct {
		name string
		code string
		off  int
		ok   bool
	}{
		{"lea rax, [rip+disp32]", "48 8D 05 * * * *", 3, true},
		{"cmp dword [rip+disp32], imm8", "83 3D * * * * 00", 2, true},
		{"movaps xmm0, [rip+disp32]", "0F 28 05 * * * *", 3, true},
		{"pextrd [rip+disp32], xmm0, imm8", "66 0F 3A 16 05 * * * * 01", 5, true},
		{"sib disp32 is absolute", "8B 04 25 * * * *", 0, false},
		{"register operand", "48 89 E5", 0, false},
		{"no modrm", "E8 * * * *", 0, false},
		{"no operands", "C3", 0, false},
		{"imm8 is not a modrm byte", "0F 71 05", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := OpCode(code(t, tt.code))
			off, ok := RIPRelative(op, X64.Decode(op))
			if off != tt.off || ok != tt.ok {
				t.Errorf("RIPRelative = %d, %v; want %d, %v", off, ok, tt.off, tt.ok)
			}
		})
	}
}
