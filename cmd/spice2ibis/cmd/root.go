package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/spice2ibis/internal/checker"
	"github.com/OpenTraceLab/spice2ibis/pkg/analyze"
	"github.com/OpenTraceLab/spice2ibis/pkg/config"
	"github.com/OpenTraceLab/spice2ibis/pkg/correlate"
	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

var (
	verbose   bool
	outdir    string
	spiceType string
	spiceCmd  string
	iterate   int
	cleanup   int
	ibischk   string
	doCorr    bool
)

var rootCmd = &cobra.Command{
	Use:   "spice2ibis <config>",
	Short: "Generate IBIS behavioral models from SPICE buffer netlists",
	Long: `spice2ibis drives an external SPICE simulator with characterization
decks derived from a buffer description, extracts the V/I and V/t tables
IBIS models require, and writes a checker-clean .ibs file.

The configuration is either the flat keyword form (.s2i) or the structured
YAML form (.yaml/.yml).

Examples:
  spice2ibis buffer.s2i
  spice2ibis buffer.yaml --outdir build --spice-type spectre
  spice2ibis buffer.s2i --iterate 1 --ibischk /usr/local/bin/ibischk7`,
	Version: "1.0.0",
	Args:    cobra.ExactArgs(1),
	RunE:    runRoot,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().StringVar(&outdir, "outdir", "./out", "output directory")
	rootCmd.Flags().StringVar(&spiceType, "spice-type", "", "simulator dialect (hspice, spectre, eldo)")
	rootCmd.Flags().StringVar(&spiceCmd, "spice-cmd", "", "simulator command template ({in} {out} {msg})")
	rootCmd.Flags().IntVar(&iterate, "iterate", -1, "reuse existing simulation results (0|1)")
	rootCmd.Flags().IntVar(&cleanup, "cleanup", -1, "remove intermediate files (0|1)")
	rootCmd.Flags().StringVar(&ibischk, "ibischk", "", "path to an external IBIS checker")
	rootCmd.Flags().BoolVar(&doCorr, "correlate", false, "emit correlation testbenches")
}

func runRoot(cmd *cobra.Command, args []string) error {
	log.SetFlags(0)

	doc, err := config.Load(args[0])
	if err != nil {
		return err
	}
	applyOverrides(doc)

	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}

	// Interrupt kills the running simulator and leaves artifacts behind
	// for inspection.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialect := spice.ForType(doc.SpiceType)
	engine := &analyze.Engine{
		Doc:     doc,
		Dialect: dialect,
		Runner: &spice.Runner{
			Dialect: dialect,
			Command: doc.SpiceCommand,
			Iterate: doc.Iterate,
			Cleanup: doc.Cleanup,
			Verbose: verbose,
		},
		Outdir:  outdir,
		Verbose: verbose,
	}

	failures, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	for _, f := range failures {
		log.Printf("WARN: %s", f)
	}

	ibisPath := filepath.Join(outdir, doc.FileName)
	if err := ibis.NewWriter(doc).WriteFile(ibisPath); err != nil {
		return err
	}
	log.Printf("wrote %s", ibisPath)

	if doCorr {
		decks, err := correlate.Generate(doc, dialect, outdir)
		if err != nil {
			return err
		}
		for _, d := range decks {
			log.Printf("wrote %s", d)
		}
	}

	if ibischk != "" {
		summary, err := checker.Run(ctx, ibischk, ibisPath)
		if err != nil {
			return err
		}
		if !summary.Passed() {
			for _, e := range summary.Errors {
				log.Printf("ERROR: %s", e)
			}
			return fmt.Errorf("%s failed syntax check (%d errors)", ibisPath, len(summary.Errors))
		}
		log.Printf("syntax check passed (%d warnings, %d notes)",
			len(summary.Warnings), len(summary.Notes))
	}

	if len(failures) > 0 {
		log.Printf("%d characterization(s) failed; affected table entries emitted as NA", len(failures))
	}
	return nil
}

// applyOverrides lets command-line flags win over the configuration file.
func applyOverrides(doc *ibis.Document) {
	if spiceType != "" {
		if st, err := config.ParseSpiceType(spiceType); err == nil {
			doc.SpiceType = st
		}
	}
	if spiceCmd != "" {
		doc.SpiceCommand = spiceCmd
	}
	if iterate >= 0 {
		doc.Iterate = iterate == 1
	}
	if cleanup >= 0 {
		doc.Cleanup = cleanup == 1
	}
}
