package lde

// Addr is a virtual address of either width.
type Addr interface {
	~uint32 | ~uint64
}

// Isa is the entry point for an instruction set's length disassembler.
type Isa[VA Addr] interface {
	// Name is the conventional architecture name.
	Name() string
	// Bits is the default address width in bits.
	Bits() int
	// Len returns the length of the first instruction in code, or 0.
	Len(code []byte) int
	// Decode returns the length breakdown of the first instruction in code.
	Decode(code []byte) InstLen
	// Iter creates an iterator over the instructions in code, with va
	// being the address of code[0].
	Iter(code []byte, va VA) *Iter[VA]
}

type x86 struct{ r *rules }

func (x86) Name() string                 { return "x86" }
func (x86) Bits() int                    { return 32 }
func (i x86) Len(code []byte) int        { return decodeX86(code, i.r).Total }
func (i x86) Decode(code []byte) InstLen { return decodeX86(code, i.r) }
func (i x86) Iter(code []byte, va uint32) *Iter[uint32] {
	return NewIter[uint32](i, code, va)
}

type x64 struct{ r *rules }

func (x64) Name() string                 { return "x86_64" }
func (x64) Bits() int                    { return 64 }
func (i x64) Len(code []byte) int        { return decodeX64(code, i.r).Total }
func (i x64) Decode(code []byte) InstLen { return decodeX64(code, i.r) }
func (i x64) Iter(code []byte, va uint64) *Iter[uint64] {
	return NewIter[uint64](i, code, va)
}

var (
	// X86 decodes 32-bit protected mode code with the reference tables.
	X86 = X86With(Reference)
	// X64 decodes 64-bit long mode code with the reference tables.
	X64 = X64With(Reference)
)

// X86With returns the 32-bit engine for the given table set.
func X86With(t Tables) Isa[uint32] { return x86{t.rules()} }

// X64With returns the 64-bit engine for the given table set.
func X64With(t Tables) Isa[uint64] { return x64{t.rules()} }
