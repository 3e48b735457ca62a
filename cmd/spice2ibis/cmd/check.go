package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/spice2ibis/internal/checker"
)

var checkerPath string

var checkCmd = &cobra.Command{
	Use:   "check <ibis-file>",
	Short: "Run an external IBIS syntax checker on an emitted file",
	Long: `Run the external checker on an already-emitted .ibs file, classify its
log into errors, warnings, and notes, and write the log plus a JSON
summary next to the file.

Examples:
  spice2ibis check out/buffer.ibs --ibischk /usr/local/bin/ibischk7`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkerPath, "ibischk", "ibischk7", "path to the checker executable")
}

func runCheck(cmd *cobra.Command, args []string) error {
	summary, err := checker.Run(context.Background(), checkerPath, args[0])
	if err != nil {
		return err
	}
	for _, e := range summary.Errors {
		log.Printf("ERROR: %s", e)
	}
	for _, w := range summary.Warnings {
		log.Printf("WARNING: %s", w)
	}
	if !summary.Passed() {
		return fmt.Errorf("%s failed syntax check (%d errors)", args[0], len(summary.Errors))
	}
	fmt.Printf("%s passed (%d warnings, %d notes)\n", args[0], len(summary.Warnings), len(summary.Notes))
	return nil
}
