// Package elfx provides helpers for opening x86 and x86_64 ELF binaries,
// locating sections and functions, and mapping virtual addresses to file offsets.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/ianlancetaylor/demangle"
)

var (
	// ErrUnsupportedMachine is returned for ELF files that are not x86 or x86_64.
	ErrUnsupportedMachine = errors.New("unsupported ELF machine")
	// ErrUnmapped is returned for addresses outside every PT_LOAD segment.
	ErrUnmapped = errors.New("address not mapped")
)

type Image struct {
	Path     string
	File     *elf.File
	Bits     int // 32 or 64
	All      []byte
	Loads    []Seg
	Text     Section
	Rodata   Section
	PLT      Section
	GOTPLT   Section
	Funcs    []Func // sorted by address, unique
	PLTStubs []PLTStub
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Contains reports whether va lies in the section.
func (s Section) Contains(va uint64) bool {
	return s.Size != 0 && va >= s.VA && va < s.VA+s.Size
}

// Func is a function symbol.
type Func struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      uint64
	Dynamic   bool
}

// PLTStub is one lazy-binding stub: a jump through a GOT slot.
type PLTStub struct {
	Addr    uint64
	GOTAddr uint64
	Name    string // imported symbol, from the PLT relocations
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	im := &Image{Path: path, File: f}
	switch f.Machine {
	case elf.EM_386:
		im.Bits = 32
	case elf.EM_X86_64:
		im.Bits = 64
	default:
		f.Close()
		return nil, fmt.Errorf("%s: %w: %v", path, ErrUnsupportedMachine, f.Machine)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}
	im.f = of

	fi, err := of.Stat()
	if err != nil {
		im.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	im.All, err = syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		im.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	// Use true sections if present. IBT binaries keep the jumps in .plt.sec.
	for _, s := range f.Sections {
		sec := Section{s.Name, s.Addr, s.Offset, s.Size}
		switch s.Name {
		case ".text":
			im.Text = sec
		case ".rodata":
			im.Rodata = sec
		case ".plt":
			if im.PLT.Size == 0 {
				im.PLT = sec
			}
		case ".plt.sec":
			im.PLT = sec
		case ".got.plt":
			im.GOTPLT = sec
		}
	}

	im.loadFuncs()
	im.parsePLTStubs()

	// Fallbacks if stripped.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	if im.Rodata.Size == 0 {
		for _, l := range im.Loads {
			if (l.Flags&elf.PF_R != 0) && (l.Flags&(elf.PF_W|elf.PF_X) == 0) && l.Filesz > 0 {
				im.Rodata = Section{"LOAD(ro)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) || end < off {
		return nil, false
	}
	return im.All[off:end], true
}

// ReadBytesVA reads exactly size bytes from a virtual address.
// Returns false if VA is unmapped or size extends beyond file bounds.
func (im *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	return im.SliceVA(va, uint64(size))
}

// CodeAt returns the bytes from va to the end of its segment, at most limit
// bytes when limit > 0. The slice aliases the mapped file.
func (im *Image) CodeAt(va uint64, limit uint64) ([]byte, error) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			n := l.Vaddr + l.Filesz - va
			if limit > 0 && n > limit {
				n = limit
			}
			if b, ok := im.SliceVA(va, n); ok {
				return b, nil
			}
			break
		}
	}
	return nil, fmt.Errorf("%#x: %w", va, ErrUnmapped)
}

// FuncCode returns the bytes of fn. Symbols without a size run to the end
// of their segment.
func (im *Image) FuncCode(fn Func) ([]byte, error) {
	return im.CodeAt(fn.Addr, fn.Size)
}

// InRodata reports whether the VA lies within the chosen
// read-only data region.
func (im *Image) InRodata(va uint64) bool {
	return im.Rodata.Contains(va)
}

// loadFuncs collects defined function symbols from .symtab and .dynsym.
// The static table wins when both name the same address.
func (im *Image) loadFuncs() {
	byAddr := make(map[uint64]Func)
	add := func(syms []elf.Symbol, dynamic bool) {
		for _, sym := range syms {
			if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Section == elf.SHN_UNDEF || sym.Value == 0 {
				continue
			}
			if _, seen := byAddr[sym.Value]; seen {
				continue
			}
			byAddr[sym.Value] = Func{
				Name:      sym.Name,
				Demangled: demangle.Filter(sym.Name, demangle.NoClones),
				Addr:      sym.Value,
				Size:      sym.Size,
				Dynamic:   dynamic,
			}
		}
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms, false)
	}
	if syms, err := im.File.DynamicSymbols(); err == nil {
		add(syms, true)
	}
	for _, fn := range byAddr {
		im.Funcs = append(im.Funcs, fn)
	}
	sort.Slice(im.Funcs, func(i, j int) bool { return im.Funcs[i].Addr < im.Funcs[j].Addr })
}

// FindFunctionByName searches for a function by mangled or demangled name.
func (im *Image) FindFunctionByName(name string) (Func, bool) {
	for _, fn := range im.Funcs {
		if fn.Name == name || fn.Demangled == name {
			return fn, true
		}
	}
	return Func{}, false
}

// FuncAt returns the function containing va.
func (im *Image) FuncAt(va uint64) (Func, bool) {
	i := sort.Search(len(im.Funcs), func(i int) bool { return im.Funcs[i].Addr > va }) - 1
	if i < 0 {
		return Func{}, false
	}
	fn := im.Funcs[i]
	if va != fn.Addr && va-fn.Addr >= fn.Size {
		return Func{}, false
	}
	return fn, true
}

// Lookup names addresses for x86asm: a function, or a PLT stub as name@plt.
func (im *Image) Lookup(va uint64) (string, uint64) {
	if fn, ok := im.FuncAt(va); ok {
		return fn.Demangled, fn.Addr
	}
	for _, s := range im.PLTStubs {
		if s.Addr == va && s.Name != "" {
			return s.Name + "@plt", s.Addr
		}
	}
	return "", 0
}

// IsPLTEntry returns true if the given virtual address lies within
// the PLT section, indicating it's a dynamically linked function stub.
func (im *Image) IsPLTEntry(va uint64) bool {
	return im.PLT.Contains(va)
}

// ShortName returns the short form of a demangled C++ name: the qualified
// function name without parameters.
func (f Func) ShortName() string {
	s := f.Demangled
	if i := strings.IndexByte(s, '('); i > 0 {
		s = s[:i]
	}
	return s
}
