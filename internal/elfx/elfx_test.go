package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lde/internal/input"
	"lde/internal/lde"
)

// writeHeader writes an ELF file consisting of nothing but its header.
func writeHeader(t *testing.T, class elf.Class, machine elf.Machine) string {
	t.Helper()
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(class)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	var hdr any
	if class == elf.ELFCLASS64 {
		hdr = elf.Header64{
			Ident: ident, Type: uint16(elf.ET_EXEC), Machine: uint16(machine),
			Version: uint32(elf.EV_CURRENT), Ehsize: 64, Phentsize: 56, Shentsize: 64,
		}
	} else {
		hdr = elf.Header32{
			Ident: ident, Type: uint16(elf.ET_EXEC), Machine: uint16(machine),
			Version: uint32(elf.EV_CURRENT), Ehsize: 52, Phentsize: 32, Shentsize: 40,
		}
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	path := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOpenMachine(t *testing.T) {
	tests := []struct {
		name    string
		class   elf.Class
		machine elf.Machine
		bits    int
		wantErr error
	}{
		{"x86_64", elf.ELFCLASS64, elf.EM_X86_64, 64, nil},
		{"i386", elf.ELFCLASS32, elf.EM_386, 32, nil},
		{"aarch64", elf.ELFCLASS64, elf.EM_AARCH64, 0, ErrUnsupportedMachine},
		{"arm", elf.ELFCLASS32, elf.EM_ARM, 0, ErrUnsupportedMachine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := Open(writeHeader(t, tt.class, tt.machine))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer im.Close()
			assert.Equal(t, tt.bits, im.Bits)
			assert.Empty(t, im.Funcs)

			_, err = im.CodeAt(0x1000, 0)
			assert.ErrorIs(t, err, ErrUnmapped)
		})
	}
}

func TestOpenNotELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x55, 0xC3}, 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestStubSlot(t *testing.T) {
	unhex := func(s string) []byte {
		b, err := input.ParseHex(s)
		require.NoError(t, err)
		return b
	}
	t.Run("x86_64 plt", func(t *testing.T) {
		got, ok := stubSlot(lde.X64, unhex("FF25E22F0000 6800000000 E9E0FFFFFF"), uint64(0x1020), 64, 0)
		require.True(t, ok)
		assert.Equal(t, uint64(0x4008), got)
	})
	t.Run("x86_64 plt.sec", func(t *testing.T) {
		got, ok := stubSlot(lde.X64, unhex("F30F1EFA F2FF25AD2F0000 0F1F440000"), uint64(0x1060), 64, 0)
		require.True(t, ok)
		assert.Equal(t, uint64(0x4018), got)
	})
	t.Run("i386 pic", func(t *testing.T) {
		got, ok := stubSlot(lde.X86, unhex("FFA30C000000 6800000000 E9E0FFFFFF"), uint32(0x1020), 32, 0x4000)
		require.True(t, ok)
		assert.Equal(t, uint64(0x400C), got)
	})
	t.Run("i386", func(t *testing.T) {
		got, ok := stubSlot(lde.X86, unhex("FF250CA00408 6808000000 E9D0FFFFFF"), uint32(0x8048320), 32, 0)
		require.True(t, ok)
		assert.Equal(t, uint64(0x0804A00C), got)
	})
	t.Run("resolver", func(t *testing.T) {
		_, ok := stubSlot(lde.X64, unhex("FF35E22F0000 90909090 90909090 9090"), uint64(0x1000), 64, 0)
		assert.False(t, ok, "push [rip+x] is not a jump")
	})
}

// TestOpenSelf loads the running test binary.
func TestOpenSelf(t *testing.T) {
	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "386") {
		t.Skip("needs an x86 ELF test binary")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	im, err := Open(exe)
	require.NoError(t, err)
	defer im.Close()

	fn, ok := im.FindFunctionByName("lde/internal/elfx.TestOpenSelf")
	if !ok {
		t.Skip("test binary has no symbol table")
	}
	assert.NotZero(t, fn.Size)
	assert.True(t, im.Text.Contains(fn.Addr))

	at, ok := im.FuncAt(fn.Addr + 1)
	require.True(t, ok)
	assert.Equal(t, fn.Addr, at.Addr)
	name, base := im.Lookup(fn.Addr + 1)
	assert.Equal(t, fn.Demangled, name)
	assert.Equal(t, fn.Addr, base)

	code, err := im.FuncCode(fn)
	require.NoError(t, err)
	require.Len(t, code, int(fn.Size))
	if im.Bits == 64 {
		assert.NotZero(t, lde.X64.Len(code))
	} else {
		assert.NotZero(t, lde.X86.Len(code))
	}
}

func TestFuncShortName(t *testing.T) {
	fn := Func{Name: "_ZN3foo3barEi", Demangled: "foo::bar(int)"}
	assert.Equal(t, "foo::bar", fn.ShortName())
	assert.Equal(t, "main", Func{Name: "main", Demangled: "main"}.ShortName())
}
