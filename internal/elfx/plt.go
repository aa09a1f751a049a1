package elfx

import (
	"debug/elf"
	"encoding/binary"

	"lde/internal/lde"
)

// pltEntrySize is the stub size of both the i386 and x86_64 PLT.
const pltEntrySize = 16

// parsePLTStubs walks the PLT one stub at a time and records the GOT slot
// each stub jumps through, then names the slots from the PLT relocations.
func (im *Image) parsePLTStubs() {
	if im.PLT.Size == 0 {
		return
	}
	data, ok := im.SliceVA(im.PLT.VA, im.PLT.Size)
	if !ok {
		return
	}
	// .plt starts with the resolver stub; .plt.sec has none.
	first := uint64(pltEntrySize)
	if im.PLT.Name == ".plt.sec" {
		first = 0
	}
	for off := first; off+pltEntrySize <= uint64(len(data)); off += pltEntrySize {
		va := im.PLT.VA + off
		entry := data[off : off+pltEntrySize]
		var (
			got uint64
			ok  bool
		)
		if im.Bits == 64 {
			got, ok = stubSlot(lde.X64, entry, va, im.Bits, im.GOTPLT.VA)
		} else {
			got, ok = stubSlot(lde.X86, entry, uint32(va), im.Bits, im.GOTPLT.VA)
		}
		if ok {
			im.PLTStubs = append(im.PLTStubs, PLTStub{Addr: va, GOTAddr: got})
		}
	}

	names := im.pltRelocations()
	for i := range im.PLTStubs {
		im.PLTStubs[i].Name = names[im.PLTStubs[i].GOTAddr]
	}
}

// stubSlot finds the indirect jmp (FF /4) in a stub and returns the GOT
// address it reads:
//
//	jmp [rip+disp32]   x86_64
//	jmp [disp32]       i386
//	jmp [ebx+disp32]   i386 PIC, ebx holding .got.plt
func stubSlot[VA lde.Addr](isa lde.Isa[VA], entry []byte, va VA, bits int, gotplt uint64) (uint64, bool) {
	for op, at := range isa.Iter(entry, va).All() {
		l := isa.Decode(op)
		if l.Opcode != 1 || op[l.Prefix] != 0xFF || l.Arg != 5 {
			continue
		}
		modrm := op[l.ArgOffset()]
		disp := op.Int32(l.ArgOffset() + 1)
		switch {
		case modrm == 0x25 && bits == 64:
			return uint64(at) + uint64(l.Total) + uint64(int64(disp)), true
		case modrm == 0x25:
			return uint64(uint32(disp)), true
		case modrm == 0xA3:
			return uint64(uint32(gotplt + uint64(int64(disp)))), true
		}
	}
	return 0, false
}

// pltRelocations maps GOT slots to imported symbol names using .rela.plt
// (x86_64) or .rel.plt (i386).
func (im *Image) pltRelocations() map[uint64]string {
	names := make(map[uint64]string)
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return names
	}
	symName := func(idx uint64) string {
		// Relocations index the symbol table including its null entry.
		if idx == 0 || idx > uint64(len(dynsyms)) {
			return ""
		}
		return dynsyms[idx-1].Name
	}

	if s := im.File.Section(".rela.plt"); s != nil && im.Bits == 64 {
		data, err := s.Data()
		if err != nil {
			return names
		}
		// r_offset(8) r_info(8) r_addend(8)
		for off := 0; off+24 <= len(data); off += 24 {
			slot := binary.LittleEndian.Uint64(data[off:])
			info := binary.LittleEndian.Uint64(data[off+8:])
			names[slot] = symName(uint64(elf.R_SYM64(info)))
		}
		return names
	}
	if s := im.File.Section(".rel.plt"); s != nil && im.Bits == 32 {
		data, err := s.Data()
		if err != nil {
			return names
		}
		// r_offset(4) r_info(4)
		for off := 0; off+8 <= len(data); off += 8 {
			slot := binary.LittleEndian.Uint32(data[off:])
			info := binary.LittleEndian.Uint32(data[off+4:])
			names[uint64(slot)] = symName(uint64(elf.R_SYM32(info)))
		}
	}
	return names
}
