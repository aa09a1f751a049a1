package lde

import (
	"fmt"
	"strings"
)

const (
	hexUpper = "0123456789ABCDEF"
	hexLower = "0123456789abcdef"
)

// Hex renders bytes as hexadecimal octets, optionally separated by spaces.
func Hex(b []byte, upper, spaced bool) string {
	var sb strings.Builder
	writeHex(&sb, b, upper, spaced)
	return sb.String()
}

func writeHex(sb *strings.Builder, b []byte, upper, spaced bool) {
	digits := hexLower
	if upper {
		digits = hexUpper
	}
	for i, c := range b {
		if spaced && i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(digits[c>>4])
		sb.WriteByte(digits[c&0xF])
	}
}

// String renders the opcode as upper case hex.
func (op OpCode) String() string { return Hex(op, true, false) }

// Format implements fmt.Formatter.
//
// %v, %s and %X print upper case hex, %x lower case. The space flag
// separates octets, as with byte slices: fmt.Sprintf("% X", op).
func (op OpCode) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'X', 'x':
		fmt.Fprint(f, Hex(op, verb != 'x', f.Flag(' ')))
	default:
		fmt.Fprintf(f, "%%!%c(lde.OpCode=%X)", verb, []byte(op))
	}
}

// Format implements fmt.Formatter without advancing the iterator.
//
// %v prints every decodable instruction in brackets on one line followed
// by the undecodable tail: "[4055] [4883EC2A] 0080".
// %s prints one instruction per line.
// The space flag separates octets.
func (it *Iter[VA]) Format(f fmt.State, verb rune) {
	spaced := f.Flag(' ')
	var sb strings.Builder
	c := it.clone()
	switch verb {
	case 'v':
		for op := range c.All() {
			sb.WriteByte('[')
			writeHex(&sb, op, true, spaced)
			sb.WriteString("] ")
		}
		writeHex(&sb, c.Remaining(), true, spaced)
	case 's':
		for op := range c.All() {
			writeHex(&sb, op, true, spaced)
			sb.WriteByte('\n')
		}
	default:
		fmt.Fprintf(f, "%%!%c(lde.Iter)", verb)
		return
	}
	fmt.Fprint(f, sb.String())
}

// String is equivalent to fmt.Sprintf("%v", it).
func (it *Iter[VA]) String() string { return fmt.Sprintf("%v", it) }
