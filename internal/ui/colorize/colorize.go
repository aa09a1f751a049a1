// Package colorize highlights x86 listings for the terminal with chroma.
package colorize

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var disabled atomic.Bool

func init() {
	disabled.Store(os.Getenv("LDE_NO_COLOR") != "" || os.Getenv("NO_COLOR") != "")
}

// SetEnabled turns coloring on or off for the whole process.
func SetEnabled(on bool) {
	disabled.Store(!on)
}

// Enabled reports whether output is colored.
func Enabled() bool {
	return !disabled.Load()
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	// Intel syntax first, AT&T as a fallback
	candidates := []string{"nasm", "gas"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly applies syntax highlighting to a block of assembly.
func Assembly(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Listing colorizes a multi-line listing one line at a time.
func Listing(text string) string {
	if !Enabled() {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = InstructionLine(l)
	}
	return strings.Join(lines, "\n")
}

// InstructionLine colorizes a single instruction line while preserving formatting.
// Format: "address  mark  bytes  text  ; comment", or "address  label:".
func InstructionLine(line string) string {
	if !Enabled() || strings.TrimSpace(line) == "" {
		return line
	}

	addr, rest, ok := strings.Cut(line, " ")
	if !ok || !isHex(addr) {
		return colorizeFullLine(line)
	}

	// Address in gray (79, 79, 79)
	addrColored := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", addr)

	if label := strings.TrimSpace(rest); strings.HasSuffix(label, ":") {
		// Labels in gold
		return fmt.Sprintf("%s %s", addrColored, strings.Replace(rest, label, fmt.Sprintf("\033[38;2;255;215;0m%s\033[0m", label), 1))
	}
	return fmt.Sprintf("%s %s", addrColored, colorizeFullLine(rest))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexChar(s[i]) {
			return false
		}
	}
	return true
}

// isHexChar checks if a character is a hexadecimal digit
func isHexChar(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string) string {
	out, err := Assembly(line)
	if err != nil {
		return line
	}
	// The lexer terminates its input with a newline; drop it and keep any
	// reset sequence after it.
	if i := strings.LastIndexByte(out, '\n'); i >= 0 && Strip(out[i+1:]) == "" {
		out = out[:i] + out[i+1:]
	}
	return out
}

// Strip removes ANSI codes and returns the plain string
func Strip(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
