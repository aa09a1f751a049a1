package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lde/internal/config"
	"lde/internal/input"
	"lde/internal/lde"
)

// LenResult is one instruction measured by `lde len --json`.
type LenResult struct {
	Code   string `json:"code"`
	Arch   string `json:"arch"`
	Total  int    `json:"total"`
	Prefix int    `json:"prefix"`
	Opcode int    `json:"opcode"`
	Arg    int    `json:"arg"`
}

var lenCmd = &cobra.Command{
	Use:   "len <hex>...",
	Short: "Print the length of the first instruction of each hex argument",
	Long: `Print the length of the first instruction of each argument.
Each argument is hex text; spaces, commas, \x and 0x are ignored. A length of
0 means the bytes do not start with a complete, valid instruction.
Quote an argument to keep its spaces, or pass the bytes as separate arguments
with --join.`,
	Example: `
lde len 4055 4883EC28
lde len --arch x86 --breakdown "66 A1 00 10"
lde len --join 48 B8 01 02 03 04 05 06 07 08
  `,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		breakdown, _ := cmd.Flags().GetBool("breakdown")
		asJSON, _ := cmd.Flags().GetBool("json")
		join, _ := cmd.Flags().GetBool("join")
		if join {
			args = []string{strings.Join(args, " ")}
		}

		var results []LenResult
		for _, a := range args {
			code, err := input.ParseHex(a)
			if err != nil {
				return fmt.Errorf("%q: %w", a, err)
			}
			l := measure(settings, code)
			results = append(results, LenResult{
				Code:   lde.Hex(code, true, true),
				Arch:   string(settings.Arch),
				Total:  l.Total,
				Prefix: l.Prefix,
				Opcode: l.Opcode,
				Arg:    l.Arg,
			})
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for _, r := range results {
			if breakdown {
				fmt.Fprintf(out, "%d\tprefix=%d opcode=%d arg=%d\t%s\n", r.Total, r.Prefix, r.Opcode, r.Arg, r.Code)
			} else {
				fmt.Fprintf(out, "%d\t%s\n", r.Total, r.Code)
			}
		}
		return nil
	},
}

func init() {
	lenCmd.Flags().BoolP("breakdown", "b", false, "Show prefix, opcode and argument byte counts")
	lenCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	lenCmd.Flags().Bool("join", false, "Treat all arguments as one instruction")
}

// measure runs the engine for the configured architecture and tables over
// code.
func measure(cfg config.Config, code []byte) lde.InstLen {
	if cfg.Arch == config.ArchX86 {
		return lde.X86With(tables(cfg)).Decode(code)
	}
	return lde.X64With(tables(cfg)).Decode(code)
}

func tables(cfg config.Config) lde.Tables {
	if cfg.Hardware {
		return lde.Hardware
	}
	return lde.Reference
}
