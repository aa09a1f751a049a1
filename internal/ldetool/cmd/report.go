package cmd

import (
	"crypto/sha256"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"lde/internal/analysis"
	"lde/internal/elfx"
	"lde/internal/lde"
)

// SiteJSON is the JSON form of an analysed hook site.
type SiteJSON struct {
	Function   string        `json:"function"`
	Address    string        `json:"address"`
	Size       int           `json:"size"`
	Hookable   bool          `json:"hookable"`
	Error      string        `json:"error,omitempty"`
	Trampoline string        `json:"trampoline,omitempty"`
	Patch      string        `json:"patch,omitempty"`
	Findings   []FindingJSON `json:"findings,omitempty"`
}

// FindingJSON is the JSON form of a finding.
type FindingJSON struct {
	Address  string            `json:"address"`
	Kind     string            `json:"kind"`
	Severity analysis.Severity `json:"severity"`
	Comment  string            `json:"comment"`
}

// sanitizeForJSON cleans a string to be valid UTF-8 and safe for JSON encoding
func sanitizeForJSON(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

func siteJSON(s *analysis.Site) SiteJSON {
	j := SiteJSON{
		Function:   sanitizeForJSON(s.Name()),
		Address:    fmt.Sprintf("%#x", s.Origin),
		Size:       s.Size,
		Hookable:   s.Hookable(),
		Trampoline: lde.Hex(s.Trampoline, true, false),
		Patch:      lde.Hex(s.Patch, true, false),
	}
	if err := siteErr(s); err != nil {
		j.Error = err.Error()
	}
	for _, f := range s.Findings {
		j.Findings = append(j.Findings, FindingJSON{
			Address:  fmt.Sprintf("%#x", f.VA),
			Kind:     f.Kind,
			Severity: f.Severity,
			Comment:  sanitizeForJSON(f.Comment),
		})
	}
	return j
}

func siteErr(s *analysis.Site) error {
	if s.Err != nil {
		return s.Err
	}
	return s.Reloc
}

// status is the one-word verdict on a site.
func status(s *analysis.Site) string {
	switch {
	case s.Hookable() && len(s.Findings) == 0:
		return "ok"
	case s.Hookable():
		return "note"
	}
	return "unsafe"
}

// siteMarkdown renders one hook site as a markdown report.
func siteMarkdown(s *analysis.Site) string {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", s.Name())
	fmt.Fprintf(&md, "- address: `%#x` (%d-bit)\n", s.Origin, s.Bits)
	if s.Func.Size != 0 {
		fmt.Fprintf(&md, "- function size: %d bytes\n", s.Func.Size)
	}
	fmt.Fprintf(&md, "- hook size: **%d** bytes for a %d-byte jump\n", s.Size, s.MinLen)
	fmt.Fprintf(&md, "- status: **%s**\n", status(s))
	if err := siteErr(s); err != nil {
		fmt.Fprintf(&md, "- error: %s\n", err)
	}

	if len(s.Findings) > 0 {
		md.WriteString("\n## Findings\n\n")
		for _, f := range s.Findings {
			fmt.Fprintf(&md, "- **%s** `%s` at `%#x`: %s\n", f.Severity, f.Kind, f.VA, f.Comment)
		}
	}

	md.WriteString("\n## Listing\n\n```asm\n")
	for _, a := range s.Listing {
		md.WriteString(a.String())
		md.WriteByte('\n')
	}
	md.WriteString("```\n")

	if len(s.Trampoline) > 0 {
		base := s.Base
		if base == 0 {
			base = s.Origin
		}
		fmt.Fprintf(&md, "\n## Trampoline at `%#x`\n\n```\n%s\n```\n", base, lde.Hex(s.Trampoline, true, true))
	}
	if len(s.Patch) > 0 {
		fmt.Fprintf(&md, "\n## Patch at `%#x`\n\n```\n%s\n```\n", s.Origin, lde.Hex(s.Patch, true, true))
	}
	return md.String()
}

// fileDigest returns the sha256 of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func fileKind(img *elfx.Image) string {
	if img.File != nil && img.File.Type == elf.ET_DYN {
		return "library"
	}
	return "executable"
}

// imageMarkdown summarises the hook sites of a binary. Without full only
// entry points and unsafe functions are listed.
func imageMarkdown(img *elfx.Image, digest string, scan analysis.SymbolScanResult, sites []*analysis.Site, full bool) string {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", img.Path)
	if digest != "" {
		fmt.Fprintf(&md, "- sha256: `%s`\n", digest)
	}
	fmt.Fprintf(&md, "- ELF%d %s, %s\n", img.Bits, img.File.Machine, fileKind(img))
	fmt.Fprintf(&md, "- entry: `%#x`\n", img.File.Entry)
	if img.Text.Size != 0 {
		fmt.Fprintf(&md, "- %s: `%#x` (%d bytes)\n", img.Text.Name, img.Text.VA, img.Text.Size)
	}
	if len(img.PLTStubs) > 0 {
		fmt.Fprintf(&md, "- PLT stubs: %d\n", len(img.PLTStubs))
	}

	counts := map[string]int{}
	for _, s := range sites {
		counts[status(s)]++
	}
	fmt.Fprintf(&md, "- functions: %d (%d ok, %d with notes, %d unsafe)\n",
		len(scan.Funcs), counts["ok"], counts["note"], counts["unsafe"])

	if len(scan.Entrypoints) > 0 {
		md.WriteString("\n## Entry points\n\n")
		for _, fn := range scan.Entrypoints {
			for _, s := range sites {
				if s.Origin == fn.Addr {
					fmt.Fprintf(&md, "- `%#x` %s: hook %d bytes, %s\n", fn.Addr, fn.Demangled, s.Size, status(s))
				}
			}
		}
	}

	title := "Unsafe functions"
	if full {
		title = "Functions"
	}
	var rows []string
	for _, s := range sites {
		if !full && status(s) != "unsafe" {
			continue
		}
		why := ""
		for _, f := range s.Findings {
			if f.Severity == analysis.Error {
				why = f.Kind
				break
			}
		}
		rows = append(rows, fmt.Sprintf("| `%x` | %d | %s | %s | %s |", s.Origin, s.Size, status(s), why, escapeCell(s.Name())))
	}
	if len(rows) > 0 {
		fmt.Fprintf(&md, "\n## %s\n\n| address | hook | status | reason | function |\n|---|---|---|---|---|\n", title)
		md.WriteString(strings.Join(rows, "\n"))
		md.WriteByte('\n')
	}
	return md.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
