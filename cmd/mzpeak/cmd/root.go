// Package cmd provides CLI command implementations for mzpeak.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mzpeak",
	Short: "mzpeak - columnar mass spectrometry archive tool",
	Long: `mzpeak reads and writes .mzpeak archives: single-file containers holding
normalized columnar spectra/peaks tables with a spectrum index for
zero-extraction random access.

Supports:
- Streaming conversion from a JSON-lines spectrum stream
- Synchronous or async (bounded-queue, backpressured) writing
- Four-stage structural/metadata/schema/data-sanity validation
- Archive summaries without touching any peak payload`,
	Version: "2.0.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)
}
