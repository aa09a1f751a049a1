package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lde/internal/analysis"
	"lde/internal/disasm"
	"lde/internal/ui/colorize"
)

var disCmd = &cobra.Command{
	Use:   "dis [file]",
	Short: "List code one instruction at a time",
	Long: `List code linearly: address, bytes and mnemonic of each instruction.
The listing stops at the first position that does not decode, which is shown
as undecodable. ELF files start at --symbol, --at, main or the entry point;
other files and --hex are raw code at --va.`,
	Example: `
lde dis --hex "40 55 48 83 EC 20 C3" --va 0x140001000
lde dis /bin/true --symbol main --count 20
lde dis --arch x86 dump.bin.xz
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveTarget(cmd, args)
		if err != nil {
			return err
		}
		defer t.Close()

		count, _ := cmd.Flags().GetInt("count")
		if !cmd.Flags().Changed("count") {
			count = settings.MaxInsns
		}
		syntax := disasm.Syntax(settings.Syntax)
		if s, _ := cmd.Flags().GetString("syntax"); s != "" {
			syntax = disasm.Syntax(strings.ToLower(s))
		}

		l, err := decodeListing(t.bits, tables(settings), t.code, t.va, disasm.Options{
			Syntax:  syntax,
			Max:     count,
			Symname: analysis.SymLookup(t.img),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if t.fn.Name != "" {
			fmt.Fprintf(out, "; %s\n", t.name())
		}
		var sb strings.Builder
		for _, a := range analysis.Annotate(t.img, l, t.va, 0) {
			sb.WriteString(a.String())
			sb.WriteByte('\n')
		}
		fmt.Fprint(out, colorize.Listing(sb.String()))
		return nil
	},
}

func init() {
	addTargetFlags(disCmd)
	disCmd.Flags().IntP("count", "n", 0, "Stop after this many instructions (0 for no limit)")
	disCmd.Flags().String("syntax", "", "Assembler syntax: intel, gnu or go")
}
