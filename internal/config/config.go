// Package config holds the tool configuration: defaults, an optional YAML
// file and LDE_* environment overrides, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Arch names an instruction set.
type Arch string

const (
	ArchX86 Arch = "x86"
	ArchX64 Arch = "x64"
)

// ParseArch accepts the usual spellings of both architectures.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x86", "i386", "386", "ia32", "32":
		return ArchX86, nil
	case "x64", "x86_64", "x86-64", "amd64", "64":
		return ArchX64, nil
	}
	return "", fmt.Errorf("unknown architecture %q", s)
}

// Bits returns the code size of the architecture.
func (a Arch) Bits() int {
	if a == ArchX86 {
		return 32
	}
	return 64
}

// Config represents configuration for the lde tool
type Config struct {
	Arch         Arch   `yaml:"arch" json:"arch" jsonschema:"title=Architecture,description=Instruction set of raw code,enum=x86,enum=x64,default=x64"`
	Debug        bool   `yaml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	MinHookBytes int    `yaml:"minHookBytes" json:"minHookBytes" jsonschema:"title=Minimum Hook Bytes,description=Bytes a hook overwrites at the function entry,minimum=1,maximum=64,default=5"`
	MaxInsns     int    `yaml:"maxInsns" json:"maxInsns" jsonschema:"title=Maximum Instructions,description=Instructions listed per function (0 for no limit),minimum=0,default=0"`
	Workers      int    `yaml:"workers" json:"workers" jsonschema:"title=Workers,description=Concurrent workers for scan,minimum=1"`
	Syntax       string `yaml:"syntax" json:"syntax" jsonschema:"title=Syntax,description=Assembler syntax of listings,enum=intel,enum=gnu,enum=go,default=intel"`
	NoColor      bool   `yaml:"noColor" json:"noColor" jsonschema:"title=No Color,description=Disable colored listings"`
	Hardware     bool   `yaml:"hardware" json:"hardware" jsonschema:"title=Hardware Tables,description=Measure with the opcode tables of real processors instead of the reference tables"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Arch:         ArchX64,
		MinHookBytes: 5,
		Workers:      runtime.NumCPU(),
		Syntax:       "intel",
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := cfg.decodeYAML(data); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LDE_ARCH"); ok {
		a, err := ParseArch(v)
		if err != nil {
			return fmt.Errorf("LDE_ARCH: %w", err)
		}
		c.Arch = a
	}
	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"LDE_MIN_HOOK", &c.MinHookBytes},
		{"LDE_MAX_INSNS", &c.MaxInsns},
		{"LDE_WORKERS", &c.Workers},
	} {
		if v, ok := lookup(e.name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = n
		}
	}
	if v, ok := lookup("LDE_SYNTAX"); ok {
		c.Syntax = strings.ToLower(v)
	}
	for _, e := range []struct {
		name string
		dst  *bool
	}{
		{"LDE_NO_COLOR", &c.NoColor},
		{"LDE_HARDWARE", &c.Hardware},
	} {
		if v, ok := lookup(e.name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = b
		}
	}
	return nil
}

// Validate checks the value ranges.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseArch(string(c.Arch)); err != nil {
		errs = append(errs, err)
	}
	if c.MinHookBytes < 1 || c.MinHookBytes > 64 {
		errs = append(errs, fmt.Errorf("minHookBytes %d not in [1, 64]", c.MinHookBytes))
	}
	if c.MaxInsns < 0 {
		errs = append(errs, fmt.Errorf("maxInsns %d is negative", c.MaxInsns))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be at least 1", c.Workers))
	}
	switch c.Syntax {
	case "intel", "gnu", "go":
	default:
		errs = append(errs, fmt.Errorf("unknown syntax %q", c.Syntax))
	}
	return errors.Join(errs...)
}

// Schema returns the JSON schema of Config.
func Schema() *jsonschema.Schema {
	return new(jsonschema.Reflector).Reflect(&Config{})
}
