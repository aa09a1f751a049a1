// Package input loads machine code from hex text, raw dumps and
// compressed dumps.
package input

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrEmpty is returned when the input holds no code bytes.
var ErrEmpty = errors.New("no code bytes")

// Placeholder bytes in hex text. A "*" or "**" token stands for 0x2A,
// "?" or "??" for 0x00.
const (
	Star     = 0x2A
	Wildcard = 0x00
)

var (
	gzipMagic = []byte{0x1F, 0x8B}
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// ParseHex decodes hex text such as "48 83 EC 28", "4883ec28",
// "0x48, 0x83" or "\x48\x83". Tokens may be split by whitespace, commas
// or backslash escapes; a token of more than two digits is read as a
// run of octets.
func ParseHex(s string) ([]byte, error) {
	var out []byte
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ',' || r == '\\'
	})
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		f = strings.TrimPrefix(f, "x")
		switch f {
		case "":
			continue
		case "*", "**":
			out = append(out, Star)
			continue
		case "?", "??":
			out = append(out, Wildcard)
			continue
		}
		if len(f)%2 != 0 {
			return nil, fmt.Errorf("odd number of hex digits in %q", f)
		}
		for i := 0; i < len(f); i += 2 {
			b, err := octet(f[i : i+2])
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func octet(s string) (byte, error) {
	switch s {
	case "**":
		return Star, nil
	case "??":
		return Wildcard, nil
	}
	var b byte
	for _, c := range []byte(s) {
		switch {
		case c >= '0' && c <= '9':
			b = b<<4 | (c - '0')
		case c >= 'a' && c <= 'f':
			b = b<<4 | (c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			b = b<<4 | (c - 'A' + 10)
		default:
			return 0, fmt.Errorf("invalid hex octet %q", s)
		}
	}
	return b, nil
}

// Decompress unwraps gzip, xz and zstd streams by their magic bytes and
// returns any other data unchanged.
func Decompress(data []byte) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(data)); err == nil {
			defer zr.Close()
			r = zr
		}
	case bytes.HasPrefix(data, xzMagic):
		r, err = xz.NewReader(bytes.NewReader(data))
	case bytes.HasPrefix(data, zstdMagic):
		var zr *zstd.Decoder
		if zr, err = zstd.NewReader(bytes.NewReader(data)); err == nil {
			defer zr.Close()
			r = zr
		}
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// IsHexName reports whether a file name marks hex text rather than raw bytes.
func IsHexName(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range []string{".gz", ".xz", ".zst"} {
		name = strings.TrimSuffix(name, ext)
	}
	switch filepath.Ext(name) {
	case ".hex", ".txt":
		return true
	}
	return false
}

// Load reads a code file. Compressed files are unwrapped first; files
// named *.hex or *.txt (optionally compressed) are parsed as hex text.
// "-" reads standard input.
func Load(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if data, err = Decompress(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if IsHexName(path) {
		code, err := ParseHex(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return code, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return data, nil
}
