package colorize

import (
	"strings"
	"testing"
)

func TestDisabledIsIdentity(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	line := "1000       * 55                             push rbp"
	if got := InstructionLine(line); got != line {
		t.Errorf("InstructionLine = %q, want unchanged", got)
	}
	if got := Listing(line + "\n"); got != line+"\n" {
		t.Errorf("Listing = %q, want unchanged", got)
	}
}

func TestInstructionLine(t *testing.T) {
	SetEnabled(true)
	tests := []struct {
		name string
		line string
	}{
		{"instruction", "1000       * 55                             push rbp"},
		{"annotated", "1004         48 8D 05 10 00 00 00           lea rax, [rip+0x10] ; \"hi\""},
		{"label", "2009  loc_2009:"},
		{"no address", "; comment only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InstructionLine(tt.line)
			if !strings.Contains(got, "\x1b[") {
				t.Errorf("InstructionLine(%q) has no color", tt.line)
			}
			if plain := strings.TrimRight(Strip(got), "\n"); plain != tt.line {
				t.Errorf("Strip(InstructionLine(%q)) = %q", tt.line, plain)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	if got := Strip("\x1b[38;2;79;79;79m1000\x1b[0m ret"); got != "1000 ret" {
		t.Errorf("Strip = %q", got)
	}
}
