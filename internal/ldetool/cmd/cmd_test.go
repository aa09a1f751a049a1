package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"runtime"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lde/internal/analysis"
	"lde/internal/config"
	"lde/internal/elfx"
	"lde/internal/input"
	"lde/internal/ui/colorize"
)

func resetFlags(c *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"LDE_ARCH", "LDE_MIN_HOOK", "LDE_MAX_INSNS", "LDE_WORKERS", "LDE_SYNTAX", "LDE_NO_COLOR", "LDE_HARDWARE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLenCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "x64 default",
			args: []string{"len", "4055", "4883EC28", "06"},
			want: "2\t40 55\n4\t48 83 EC 28\n0\t06\n",
		},
		{
			name: "x86 breakdown",
			args: []string{"len", "--arch", "x86", "--breakdown", "66 A1 00 10 00 00"},
			want: "6\tprefix=1 opcode=1 arg=4\t66 A1 00 10 00 00\n",
		},
		{
			name: "joined",
			args: []string{"len", "--join", "48", "B8", "01", "02", "03", "04", "05", "06", "07", "08"},
			want: "10\t48 B8 01 02 03 04 05 06 07 08\n",
		},
		{
			name: "bswap reference tables",
			args: []string{"len", "--arch", "x86", "0FC90000"},
			want: "4\t0F C9 00 00\n",
		},
		{
			name: "bswap hardware tables",
			args: []string{"len", "--arch", "x86", "--hardware", "0FC90000"},
			want: "2\t0F C9 00 00\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLenCmdJSON(t *testing.T) {
	got, err := execute(t, "len", "--json", "48 8B 05 10 00 00 00", "zz")
	require.Error(t, err, "bad hex is an error")

	got, err = execute(t, "len", "--json", "48 8B 05 10 00 00 00")
	require.NoError(t, err)
	var res []LenResult
	require.NoError(t, json.Unmarshal([]byte(got), &res))
	require.Len(t, res, 1)
	assert.Equal(t, LenResult{Code: "48 8B 05 10 00 00 00", Arch: "x64", Total: 7, Prefix: 1, Opcode: 1, Arg: 5}, res[0])
}

func TestDisCmd(t *testing.T) {
	got, err := execute(t, "dis", "--hex", "55 48 83 EC 20 C3 06", "--va", "0x1000")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "push rbp")
	assert.True(t, strings.HasPrefix(lines[1], "1001 "), lines[1])
	assert.Contains(t, lines[1], "sub rsp, 0x20")
	assert.Contains(t, lines[2], "ret")
	assert.Contains(t, lines[3], "(undecodable)")
	assert.True(t, strings.HasPrefix(lines[3], "1006 "), lines[3])

	got, err = execute(t, "dis", "--syntax", "gnu", "--count", "1", "--hex", "48 89 E5 C3")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(got, "\n"))
	assert.Contains(t, got, "mov %rsp,%rbp")

	_, err = execute(t, "dis")
	assert.Error(t, err)
}

func TestHookCmdJSON(t *testing.T) {
	got, err := execute(t, "hook", "--json", "--hex", "55 48 89 E5 48 83 EC 10 C3", "--va", "0x1000", "--base", "0x2000")
	require.NoError(t, err)
	var s SiteJSON
	require.NoError(t, json.Unmarshal([]byte(got), &s))
	assert.Equal(t, SiteJSON{
		Function:   "sub_1000",
		Address:    "0x1000",
		Size:       8,
		Hookable:   true,
		Trampoline: "554889E54883EC10FF25000000000810000000000000",
		Patch:      "E9FB0F0000909090",
	}, s)
}

func TestHookCmdUnsafe(t *testing.T) {
	got, err := execute(t, "hook", "--arch", "x86", "--json", "--hex", "31 C0 40 83 F8 0A 75 FA C3")
	require.NoError(t, err)
	var s SiteJSON
	require.NoError(t, json.Unmarshal([]byte(got), &s))
	assert.False(t, s.Hookable)
	require.Len(t, s.Findings, 1)
	assert.Equal(t, "branch-into-hook", s.Findings[0].Kind)
	assert.Equal(t, analysis.Error, s.Findings[0].Severity)
}

func TestHookCmdMarkdown(t *testing.T) {
	got, err := execute(t, "hook", "--min", "6", "--hex", "55 48 89 E5 48 83 EC 10 C3", "--va", "0x1000")
	require.NoError(t, err)
	assert.Contains(t, got, "# sub_1000")
	assert.Contains(t, got, "- hook size: **8** bytes for a 6-byte jump")
	assert.Contains(t, got, "- status: **ok**")
	assert.Contains(t, got, "push rbp")
	assert.NotContains(t, got, "## Patch")
}

func TestSchemaCmd(t *testing.T) {
	got, err := execute(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, got, `"minHookBytes"`)
	assert.Contains(t, got, `"arch"`)
}

func TestConfigFlag(t *testing.T) {
	path := t.TempDir() + "/lde.yaml"
	require.NoError(t, os.WriteFile(path, []byte("arch: x86\n"), 0o644))
	// 48 is dec eax in 32-bit mode.
	got, err := execute(t, "len", "--config", path, "48 8B 05 10 00 00 00")
	require.NoError(t, err)
	assert.Equal(t, "1\t48 8B 05 10 00 00 00\n", got)

	_, err = execute(t, "len", "--arch", "arm", "90")
	assert.Error(t, err)
}

func selfELF(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "386") {
		t.Skip("needs a linux x86 test binary")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe
}

func TestScanCmd(t *testing.T) {
	exe := selfELF(t)
	got, err := execute(t, "scan", "--json", exe)
	require.NoError(t, err)
	var sites []SiteJSON
	require.NoError(t, json.Unmarshal([]byte(got), &sites))
	require.NotEmpty(t, sites)
	for _, s := range sites {
		assert.NotEmpty(t, s.Address)
		assert.NotEmpty(t, s.Function)
	}
}

func TestScanSitesOrder(t *testing.T) {
	exe := selfELF(t)
	cfg := config.Default()
	opts := siteOptions(cfg)
	opts.MaxInsns = scanInsns

	img, err := elfx.Open(exe)
	require.NoError(t, err)
	defer img.Close()
	res := analysis.ScanFunctions(img)
	sites, err := scanSites(t.Context(), img, res.Funcs, opts, 4)
	require.NoError(t, err)
	require.NotEmpty(t, sites)
	for i := 1; i < len(sites); i++ {
		assert.Less(t, sites[i-1].Origin, sites[i].Origin)
	}
}

func TestNoTUI(t *testing.T) {
	exe := selfELF(t)
	got, err := execute(t, "--no-tui", exe)
	require.NoError(t, err)
	assert.Contains(t, got, "- sha256: `")
	assert.Contains(t, got, "- functions: ")
}

func TestModel(t *testing.T) {
	code, err := input.ParseHex("55 48 89 E5 48 83 EC 10 C3")
	require.NoError(t, err)
	site, err := analysis.AnalyzeCode(64, code, 0x1000, siteOptions(config.Default()))
	require.NoError(t, err)

	var m tea.Model = NewModel("/nonexistent", config.Default())
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, colorize.Strip(m.(model).View()), "Q: quit")

	m, _ = m.Update(digestMsg{digest: "abc"})
	m, _ = m.Update(siteMsg{site: site})
	view := colorize.Strip(m.(model).View())
	assert.Contains(t, view, "push rbp")
	assert.Contains(t, view, "; hook 8 bytes for a 5-byte jump, ok")
	assert.Equal(t, viewListing, m.(model).mode)

	// No functions were loaded: tab skips the symbols view.
	assert.Equal(t, viewSummary, m.(model).cycle(1))
	assert.Equal(t, viewSummary, m.(model).cycle(-1))

	m, _ = m.Update(sitesMsg{err: io.ErrUnexpectedEOF})
	assert.Equal(t, io.ErrUnexpectedEOF, m.(model).err)
}
