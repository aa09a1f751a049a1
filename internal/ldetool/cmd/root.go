// Package cmd implements the lde command line: length queries, listings,
// hook planning, whole-binary scans and an interactive browser.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lde/internal/config"
	"lde/internal/ldetool/log"
	"lde/internal/ui/colorize"
)

// settings is the configuration after flags are applied.
var settings = config.Default()

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "C", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("arch", "a", "", "Architecture of raw code: x86 or x64")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored listings")
	rootCmd.PersistentFlags().Bool("hardware", false, "Measure with the opcode tables of real processors")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Show summary without TUI")
	rootCmd.Flags().BoolP("full", "f", false, "List every function in the summary (use with --no-tui)")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(lenCmd, disCmd, hookCmd, scanCmd, schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "lde [file]",
	Short: "x86 and x86_64 length disassembler",
	Long: `lde measures x86 and x86_64 instructions without fully decoding them.
It lists code one instruction at a time, plans inline hooks, and browses the
functions of an ELF binary together with the hook each one would take.`,
	Example: `
# Browse the functions of a binary
lde /bin/ls

# Summary without the TUI
lde -n /bin/ls

# Length of one instruction
lde len 48 8B 05 10 00 00 00
  `,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		path := args[0]
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		full, _ := cmd.Flags().GetBool("full")
		if noTUI || !term.IsTerminal(os.Stdout.Fd()) {
			return runNoTUI(cmd, path, full)
		}

		program := tea.NewProgram(
			NewModel(path, settings),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

// setup loads the configuration and lets flags override it.
func setup(cmd *cobra.Command, _ []string) error {
	if _, err := ResolveCwd(cmd); err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if f := cmd.Flags().Lookup("arch"); f != nil && f.Changed {
		if cfg.Arch, err = config.ParseArch(f.Value.String()); err != nil {
			return err
		}
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		cfg.NoColor = true
	}
	if hw, _ := cmd.Flags().GetBool("hardware"); hw {
		cfg.Hardware = true
	}
	settings = cfg

	log.Setup(cfg.Debug, tables(cfg))
	colorize.SetEnabled(!cfg.NoColor && colorize.Enabled() && term.IsTerminal(os.Stdout.Fd()))
	slog.Debug("configuration", "arch", cfg.Arch, "minHook", cfg.MinHookBytes, "workers", cfg.Workers, "syntax", cfg.Syntax)
	return nil
}

func Execute() {
	// Check if --no-tui is present, or if output is being piped, to bypass
	// fang's styled output
	plain := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			plain = true
			break
		}
	}
	if !plain && !term.IsTerminal(os.Stdout.Fd()) {
		plain = true
	}

	var err error
	if plain {
		// Use cobra directly to avoid fang's styled output
		err = rootCmd.Execute()
	} else {
		err = fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		)
	}
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return "", fmt.Errorf("failed to change directory: %w", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return cwd, nil
}
