package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lde/internal/analysis"
	"lde/internal/config"
	"lde/internal/detectors"
	"lde/internal/disasm"
	"lde/internal/ldetool/styles"
)

var hookCmd = &cobra.Command{
	Use:   "hook [file]",
	Short: "Plan an inline hook",
	Long: `Plan an inline hook at the start of a function or of raw code: how many
whole instructions a jump of --min bytes displaces, whether they can run from
a trampoline, the trampoline bytes and the patch written over the original.`,
	Example: `
lde hook /usr/bin/ls --symbol main
lde hook --hex "40 55 48 83 EC 20 48 8B 05 10 00 00 00" --va 0x140001000 --base 0x140100000
lde hook --arch x86 --min 6 --json --hex "55 89 E5 83 EC 10 C3"
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveTarget(cmd, args)
		if err != nil {
			return err
		}
		defer t.Close()

		opts, err := hookOptions(cmd)
		if err != nil {
			return err
		}

		var site *analysis.Site
		if t.img != nil && t.fn.Addr == t.va && t.fn.Name != "" {
			site, err = analysis.Analyze(t.img, t.fn, opts)
		} else {
			site, err = analysis.AnalyzeCode(t.bits, t.code, t.va, opts)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(siteJSON(site))
		}
		md := siteMarkdown(site)
		if term.IsTerminal(os.Stdout.Fd()) && !settings.NoColor {
			md = styles.Render(md, 100, false)
		}
		fmt.Fprint(out, md)
		return nil
	},
}

func init() {
	addTargetFlags(hookCmd)
	hookCmd.Flags().IntP("min", "m", 0, "Bytes the hook overwrites (default from config)")
	hookCmd.Flags().String("base", "0", "Trampoline address; also produces the patch")
	hookCmd.Flags().IntP("count", "n", 0, "Instructions to list")
	hookCmd.Flags().String("syntax", "", "Assembler syntax: intel, gnu or go")
	hookCmd.Flags().BoolP("json", "j", false, "Output the plan as JSON")
}

// siteOptions builds analysis options with every detector from cfg.
func siteOptions(cfg config.Config) analysis.Options {
	return analysis.Options{
		MinLen:    cfg.MinHookBytes,
		MaxInsns:  cfg.MaxInsns,
		Syntax:    disasm.Syntax(cfg.Syntax),
		Detectors: detectors.NewChain(),
		Tables:    tables(cfg),
	}
}

// hookOptions builds analysis options from the configuration and the
// hook flags of cmd.
func hookOptions(cmd *cobra.Command) (analysis.Options, error) {
	opts := siteOptions(settings)
	if n, _ := cmd.Flags().GetInt("min"); n > 0 {
		opts.MinLen = n
	}
	if n, _ := cmd.Flags().GetInt("count"); n > 0 {
		opts.MaxInsns = n
	}
	if s, _ := cmd.Flags().GetString("syntax"); s != "" {
		opts.Syntax = disasm.Syntax(s)
	}
	if s, _ := cmd.Flags().GetString("base"); s != "" {
		base, err := parseAddr(s)
		if err != nil {
			return opts, fmt.Errorf("--base: %w", err)
		}
		opts.Base = base
	}
	return opts, nil
}
