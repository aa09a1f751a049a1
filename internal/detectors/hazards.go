// Package detectors finds hazards that make an inline hook at a site unsafe.
// Each detector examines one analysed site and appends findings.
package detectors

import (
	"errors"
	"fmt"

	"lde/internal/analysis"
	"lde/internal/hook"
)

// Default returns every detector in reporting order.
func Default() []analysis.Detector {
	return []analysis.Detector{
		ShortCode{},
		Unrelocatable{},
		BranchIntoHook{},
		ReturnInHook{},
		Overrun{},
		RIPRelative{},
	}
}

// NewChain returns a chain of the default detectors.
func NewChain() *analysis.DetectorChain {
	return analysis.NewDetectorChain(Default()...)
}

// ShortCode reports code that ends before the hook is covered.
type ShortCode struct{}

func (ShortCode) Detect(site *analysis.Site, findings []analysis.Finding) []analysis.Finding {
	if !errors.Is(site.Err, hook.ErrShortCode) {
		return findings
	}
	return append(findings, analysis.Finding{
		VA:       site.Origin + uint64(site.Size),
		Kind:     "short-code",
		Severity: analysis.Error,
		Comment:  fmt.Sprintf("only %d of %d bytes decode as whole instructions", site.Size, site.MinLen),
		Metadata: map[string]any{"covered": site.Size, "needed": site.MinLen},
	})
}

// Unrelocatable reports displaced instructions that cannot run from the trampoline.
type Unrelocatable struct{}

func (Unrelocatable) Detect(site *analysis.Site, findings []analysis.Finding) []analysis.Finding {
	if site.Reloc == nil {
		return findings
	}
	kind := "unrelocatable"
	if errors.Is(site.Reloc, hook.ErrOutOfRange) {
		kind = "out-of-range"
	}
	return append(findings, analysis.Finding{
		VA:       site.Origin,
		Kind:     kind,
		Severity: analysis.Error,
		Comment:  site.Reloc.Error(),
	})
}

// BranchIntoHook reports branches that land inside the overwritten bytes,
// past the first instruction. After patching they would land mid-jump.
type BranchIntoHook struct{}

func (BranchIntoHook) Detect(site *analysis.Site, findings []analysis.Finding) []analysis.Finding {
	for _, in := range site.Listing {
		if in.Label != "" || !in.Branch {
			continue
		}
		if in.Target == site.Origin || !site.Displaced(in.Target) {
			continue
		}
		findings = append(findings, analysis.Finding{
			VA:       in.VA,
			Kind:     "branch-into-hook",
			Severity: analysis.Error,
			Comment:  fmt.Sprintf("%s targets %#x inside the %d hooked bytes", in.Text, in.Target, site.Size),
			Metadata: map[string]any{"target": in.Target},
		})
	}
	return findings
}

// ReturnInHook reports a function that returns or jumps away within the
// displaced bytes, so the hook overwrites whatever follows it.
type ReturnInHook struct{}

func (ReturnInHook) Detect(site *analysis.Site, findings []analysis.Finding) []analysis.Finding {
	for _, in := range site.Listing {
		if in.Label != "" || !in.Displaced {
			continue
		}
		if !terminates(in.Op, in.Raw) {
			continue
		}
		end := in.VA + uint64(len(in.Raw))
		if end >= site.Origin+uint64(site.Size) {
			// A terminator that ends exactly at the hook boundary is fine.
			continue
		}
		findings = append(findings, analysis.Finding{
			VA:       in.VA,
			Kind:     "return-in-hook",
			Severity: analysis.Error,
			Comment:  fmt.Sprintf("%s ends the function %d bytes into the hook", in.Op, end-site.Origin),
		})
		break
	}
	return findings
}

func terminates(op string, raw []byte) bool {
	switch op {
	case "ret", "lret", "jmp", "ud2", "hlt":
		return true
	case "int":
		return len(raw) == 1 && raw[0] == 0xCC
	}
	return false
}

// Overrun warns when the hook is larger than the function symbol.
type Overrun struct{}

func (Overrun) Detect(site *analysis.Site, findings []analysis.Finding) []analysis.Finding {
	if site.Func.Size == 0 || uint64(site.Size) <= site.Func.Size {
		return findings
	}
	return append(findings, analysis.Finding{
		VA:       site.Origin,
		Kind:     "overrun",
		Severity: analysis.Warning,
		Comment:  fmt.Sprintf("hook covers %d bytes of a %d-byte function", site.Size, site.Func.Size),
		Metadata: map[string]any{"func_size": site.Func.Size},
	})
}

// RIPRelative notes displaced instructions whose RIP-relative operand the
// trampoline rewrites.
type RIPRelative struct{}

func (RIPRelative) Detect(site *analysis.Site, findings []analysis.Finding) []analysis.Finding {
	if site.Bits != 64 {
		return findings
	}
	for _, in := range site.Listing {
		if in.Label != "" || !in.Displaced || in.Branch || in.Target == 0 {
			continue
		}
		findings = append(findings, analysis.Finding{
			VA:       in.VA,
			Kind:     "rip-relative",
			Severity: analysis.Info,
			Comment:  fmt.Sprintf("%s references %#x and is rewritten in the trampoline", in.Text, in.Target),
			Metadata: map[string]any{"target": in.Target},
		})
	}
	return findings
}
