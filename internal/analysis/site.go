package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"lde/internal/disasm"
	"lde/internal/elfx"
	"lde/internal/hook"
	"lde/internal/lde"
)

var (
	// ErrBits is returned for code that is neither 32- nor 64-bit.
	ErrBits = errors.New("unsupported code size")
	// ErrAddress is returned for addresses that do not fit the architecture.
	ErrAddress = errors.New("address out of range for architecture")
)

// Options controls hook-site analysis.
type Options struct {
	MinLen    int            // bytes the hook overwrites, hook.JumpSize by default
	MaxInsns  int            // listing length, MaxSiteInstructions by default
	Syntax    disasm.Syntax  // listing dialect
	Base      uint64         // trampoline address; relocation is checked at the origin when zero
	Detectors *DetectorChain // may be nil
	Tables    lde.Tables     // opcode tables, lde.Reference by default
}

func (o Options) withDefaults() Options {
	if o.MinLen <= 0 {
		o.MinLen = hook.JumpSize
	}
	if o.MaxInsns <= 0 {
		o.MaxInsns = MaxSiteInstructions
	}
	if o.Syntax == "" {
		o.Syntax = disasm.Intel
	}
	return o
}

// Analyze inspects a hook at the entry of fn. Functions without a symbol
// size are read up to MaxScanBytes.
func Analyze(im *elfx.Image, fn elfx.Func, opts Options) (*Site, error) {
	limit := fn.Size
	if limit == 0 {
		limit = MaxScanBytes
	}
	code, err := im.CodeAt(fn.Addr, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	return analyzeAt(im, fn, im.Bits, code, fn.Addr, opts)
}

// AnalyzeCode inspects a hook at origin over raw code of the given bitness.
func AnalyzeCode(bits int, code []byte, origin uint64, opts Options) (*Site, error) {
	return analyzeAt(nil, elfx.Func{}, bits, code, origin, opts)
}

func analyzeAt(im *elfx.Image, fn elfx.Func, bits int, code []byte, origin uint64, opts Options) (*Site, error) {
	opts = opts.withDefaults()
	s := &Site{Func: fn, Origin: origin, Bits: bits, MinLen: opts.MinLen, Base: opts.Base}
	switch bits {
	case 32:
		if origin > math.MaxUint32 || opts.Base > math.MaxUint32 {
			return nil, fmt.Errorf("%#x: %w", max(origin, opts.Base), ErrAddress)
		}
		analyze(lde.X86With(opts.Tables), im, code, uint32(origin), s, opts)
	case 64:
		analyze(lde.X64With(opts.Tables), im, code, origin, s, opts)
	default:
		return nil, fmt.Errorf("%d-bit: %w", bits, ErrBits)
	}
	s.Findings = opts.Detectors.Detect(s, nil)
	slog.Debug("analyzed hook site", "func", s.Name(), "origin", origin, "size", s.Size, "findings", len(s.Findings))
	return s, nil
}

func analyze[VA lde.Addr](isa lde.Isa[VA], im *elfx.Image, code []byte, origin VA, s *Site, opts Options) {
	listing := disasm.Decode(isa, code, origin, disasm.Options{
		Syntax:  opts.Syntax,
		Max:     opts.MaxInsns,
		Symname: SymLookup(im),
	})

	p, err := hook.NewPlan(isa, code, origin, opts.MinLen)
	s.Size = p.Size
	if err != nil {
		s.Err = err
	} else {
		base := VA(opts.Base)
		if opts.Base == 0 {
			base = origin
		}
		s.Trampoline, s.Reloc = p.Trampoline(base)
		if s.Reloc == nil && opts.Base != 0 {
			s.Patch, s.Reloc = p.Patch(base)
		}
	}
	s.Listing = Annotate(im, listing, uint64(origin), s.Size)
	s.Stopped = listing.Stopped
}
