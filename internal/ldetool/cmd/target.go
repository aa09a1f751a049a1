package cmd

import (
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"lde/internal/analysis"
	"lde/internal/disasm"
	"lde/internal/elfx"
	"lde/internal/input"
	"lde/internal/lde"
)

// target is the code a command works on: a function of an ELF image, or
// raw bytes from a dump or the command line.
type target struct {
	img  *elfx.Image // nil for raw code
	fn   elfx.Func
	code []byte
	va   uint64
	bits int
}

func (t *target) Close() error {
	if t.img == nil {
		return nil
	}
	return t.img.Close()
}

func (t *target) name() string {
	if t.fn.Name != "" {
		return t.fn.Demangled
	}
	return fmt.Sprintf("%#x", t.va)
}

// addTargetFlags registers the flags read by resolveTarget.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("hex", "x", "", "Code as hex text instead of a file")
	cmd.Flags().String("va", "0", "Address of the first byte of raw code")
	cmd.Flags().StringP("symbol", "s", "", "Function to start at (ELF files)")
	cmd.Flags().String("at", "", "Address to start at (ELF files)")
}

// resolveTarget reads the code selected by the flags and the optional file
// argument. ELF files pick their architecture from the header; raw dumps use
// the configured one.
func resolveTarget(cmd *cobra.Command, args []string) (*target, error) {
	hexText, _ := cmd.Flags().GetString("hex")
	vaText, _ := cmd.Flags().GetString("va")
	va, err := parseAddr(vaText)
	if err != nil {
		return nil, fmt.Errorf("--va: %w", err)
	}

	switch {
	case hexText != "" && len(args) > 0:
		return nil, errors.New("give either --hex or a file, not both")
	case hexText != "":
		code, err := input.ParseHex(hexText)
		if err != nil {
			return nil, err
		}
		return &target{code: code, va: va, bits: settings.Arch.Bits()}, nil
	case len(args) == 0:
		return nil, errors.New("no code: give a file or --hex")
	}

	path := args[0]
	img, err := elfx.Open(path)
	var fe *elf.FormatError
	switch {
	case err == nil:
		return elfTarget(cmd, img)
	case errors.As(err, &fe):
		slog.Debug("not an ELF file, reading raw code", "file", path, "error", err)
	default:
		return nil, err
	}
	code, err := input.Load(path)
	if err != nil {
		return nil, err
	}
	return &target{code: code, va: va, bits: settings.Arch.Bits()}, nil
}

func elfTarget(cmd *cobra.Command, img *elfx.Image) (*target, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	at, _ := cmd.Flags().GetString("at")
	t := &target{img: img, bits: img.Bits}

	var ok bool
	switch {
	case symbol != "":
		if t.fn, ok = img.FindFunctionByName(symbol); !ok {
			img.Close()
			return nil, fmt.Errorf("%s: no function %q", img.Path, symbol)
		}
		t.va = t.fn.Addr
	case at != "":
		va, err := parseAddr(at)
		if err != nil {
			img.Close()
			return nil, fmt.Errorf("--at: %w", err)
		}
		t.va = va
		t.fn, _ = img.FuncAt(va)
	default:
		if t.fn, ok = img.FindFunctionByName("main"); ok {
			t.va = t.fn.Addr
		} else {
			t.va = img.File.Entry
			t.fn, _ = img.FuncAt(t.va)
		}
	}

	limit := uint64(analysis.MaxScanBytes)
	if t.fn.Size != 0 && t.fn.Addr == t.va {
		limit = t.fn.Size
	}
	code, err := img.CodeAt(t.va, limit)
	if err != nil {
		img.Close()
		return nil, err
	}
	t.code = code
	return t, nil
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

// decodeListing walks code with the engine for bits.
func decodeListing(bits int, tab lde.Tables, code []byte, va uint64, opts disasm.Options) (disasm.Listing, error) {
	switch bits {
	case 32:
		if va > math.MaxUint32 {
			return disasm.Listing{}, fmt.Errorf("%#x: %w", va, analysis.ErrAddress)
		}
		return disasm.Decode(lde.X86With(tab), code, uint32(va), opts), nil
	case 64:
		return disasm.Decode(lde.X64With(tab), code, va, opts), nil
	}
	return disasm.Listing{}, fmt.Errorf("%d-bit: %w", bits, analysis.ErrBits)
}
