package analysis

import (
	"lde/internal/elfx"
)

// Severity ranks a finding.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "info"
}

// MarshalText renders the severity by name in JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is a hazard or note about a hook site.
type Finding struct {
	VA       uint64         // address the finding is about
	Kind     string         // short machine-readable tag, e.g. "branch-into-hook"
	Severity Severity       // how much the finding matters for hooking
	Comment  string         // human-readable summary
	Metadata map[string]any // detector-specific metadata
}

// Site is one analysed hook site.
type Site struct {
	Func       elfx.Func // zero for raw code
	Origin     uint64
	Bits       int
	MinLen     int
	Size       int   // bytes displaced by the hook, partial when Err is set
	Err        error // planning failed: the code ended first
	Reloc      error // the displaced instructions cannot run elsewhere
	Listing    []AnnotatedInst
	Stopped    bool   // the listing ended at an undecodable position
	Base       uint64 // trampoline address
	Trampoline []byte
	Patch      []byte // nil unless a trampoline base was given
	Findings   []Finding
}

// Hookable reports whether no finding is an error.
func (s *Site) Hookable() bool {
	for _, f := range s.Findings {
		if f.Severity == Error {
			return false
		}
	}
	return s.Err == nil && s.Reloc == nil
}

// Displaced reports whether va lies inside the bytes the hook overwrites.
func (s *Site) Displaced(va uint64) bool {
	return va >= s.Origin && va < s.Origin+uint64(s.Size)
}

// Name returns the demangled function name, or the origin for raw code.
func (s *Site) Name() string {
	if s.Func.Demangled != "" {
		return s.Func.Demangled
	}
	if s.Func.Name != "" {
		return s.Func.Name
	}
	return fmtAddr(s.Origin)
}
