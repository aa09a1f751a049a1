package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"lde/internal/elfx"
)

// EscapeUnprintable returns a string where printable Unicode runes are preserved.
// Control and unprintable runes are escaped as \uXXXX. Invalid UTF-8 is escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 sequence, escape the byte
			fmt.Fprintf(&sb, "\\x%02X", b[0])
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
		} else {
			fmt.Fprintf(&sb, "\\u%04X", r)
		}
		b = b[size:]
	}
	return sb.String()
}

// FormatRecovered returns both the escaped Unicode string and the hex encoding.
func FormatRecovered(b []byte) (string, string) {
	return EscapeUnprintable(b), fmt.Sprintf("%x", b)
}

// ReadAndEscapeString reads a C string from memory and returns both the escaped version
// and the original byte length. A string without a terminator within maxLen
// bytes is cut at maxLen.
func ReadAndEscapeString(im *elfx.Image, va uint64, maxLen int) (escapedString string, originalLength int, ok bool) {
	raw, ok := im.ReadBytesVA(va, maxLen)
	if !ok {
		// The string may end closer than maxLen to the end of the file.
		b, err := im.CodeAt(va, uint64(maxLen))
		if err != nil {
			return "", 0, false
		}
		raw = b
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return EscapeUnprintable(raw), len(raw), true
}

// TryResolveCString returns the escaped C string at addr if addr is in
// read-only data and the string is not empty.
func TryResolveCString(im *elfx.Image, addr uint64) (string, bool) {
	if im == nil || !im.InRodata(addr) {
		return "", false
	}
	escaped, originalLen, ok := ReadAndEscapeString(im, addr, MaxStringLength)
	if !ok || originalLen == 0 {
		return "", false
	}
	return escaped, true
}

func fmtAddr(va uint64) string {
	return fmt.Sprintf("sub_%x", va)
}
