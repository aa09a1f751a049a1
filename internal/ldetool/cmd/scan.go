package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lde/internal/analysis"
	"lde/internal/elfx"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Plan a hook for every function of an ELF binary",
	Long: `Plan a hook at the entry of every function symbol of an ELF binary and
report the hook size and hazards of each. Functions are analysed
concurrently by the configured number of workers.`,
	Example: `
lde scan /usr/bin/ls
lde scan --unsafe --json libfoo.so
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := elfx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		opts, err := hookOptions(cmd)
		if err != nil {
			return err
		}
		// The scan reports verdicts; a short listing is enough for the detectors.
		opts.MaxInsns = scanInsns

		res := analysis.ScanFunctions(img)
		sites, err := scanSites(cmd.Context(), img, res.Funcs, opts, settings.Workers)
		if err != nil {
			return err
		}

		if unsafeOnly, _ := cmd.Flags().GetBool("unsafe"); unsafeOnly {
			kept := sites[:0]
			for _, s := range sites {
				if status(s) == "unsafe" {
					kept = append(kept, s)
				}
			}
			sites = kept
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			js := make([]SiteJSON, 0, len(sites))
			for _, s := range sites {
				js = append(js, siteJSON(s))
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(js)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ADDRESS\tHOOK\tSTATUS\tFINDINGS\tFUNCTION")
		for _, s := range sites {
			fmt.Fprintf(tw, "%x\t%d\t%s\t%s\t%s\n", s.Origin, s.Size, status(s), findingKinds(s), s.Name())
		}
		return tw.Flush()
	},
}

// scanInsns is the listing length of each scanned site.
const scanInsns = 32

func init() {
	scanCmd.Flags().IntP("min", "m", 0, "Bytes the hook overwrites (default from config)")
	scanCmd.Flags().BoolP("unsafe", "u", false, "Only report functions that cannot be hooked safely")
	scanCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
}

// scanSites analyses every function with at most workers goroutines. The
// result is in the order of fns. Functions whose code cannot be read are
// skipped.
func scanSites(ctx context.Context, img *elfx.Image, fns []elfx.Func, opts analysis.Options, workers int) ([]*analysis.Site, error) {
	sites := make([]*analysis.Site, len(fns))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, fn := range fns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := analysis.Analyze(img, fn, opts)
			if errors.Is(err, elfx.ErrUnmapped) {
				slog.Debug("skipping function", "func", fn.Name, "error", err)
				return nil
			}
			if err != nil {
				return err
			}
			sites[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := sites[:0]
	for _, s := range sites {
		if s != nil {
			out = append(out, s)
		}
	}
	slog.Debug("scan complete", "functions", len(fns), "sites", len(out))
	return out, nil
}

func findingKinds(s *analysis.Site) string {
	if len(s.Findings) == 0 {
		return "-"
	}
	kinds := ""
	for i, f := range s.Findings {
		if i > 0 {
			kinds += ","
		}
		kinds += f.Kind
	}
	return kinds
}
