package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lde/internal/analysis"
	"lde/internal/elfx"
	"lde/internal/ldetool/styles"
)

// runNoTUI prints the summary of a binary as markdown, rendered when
// stdout is a terminal.
func runNoTUI(cmd *cobra.Command, path string, full bool) error {
	img, err := elfx.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load file: %w", err)
	}
	defer img.Close()

	digest, err := fileDigest(path)
	if err != nil {
		return fmt.Errorf("failed to calculate digest: %w", err)
	}

	opts, err := hookOptions(cmd)
	if err != nil {
		return err
	}
	opts.MaxInsns = scanInsns
	res := analysis.ScanFunctions(img)
	sites, err := scanSites(cmd.Context(), img, res.Funcs, opts, settings.Workers)
	if err != nil {
		return err
	}

	md := imageMarkdown(img, digest, res, sites, full)
	if term.IsTerminal(os.Stdout.Fd()) && !settings.NoColor {
		md = styles.Render(md, 120, false)
	}
	fmt.Fprint(cmd.OutOrStdout(), md)
	return nil
}
