package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mzpeak/mzpeak/pkg/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <archive>",
	Short: "Run structural, metadata, schema, and data-sanity checks on an archive",
	Long:  `Validate runs all four validation stages and prints a pass/warn/fail report.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	report, err := validator.Validate(f, info.Size())
	if err != nil {
		return fmt.Errorf("validation could not run: %w", err)
	}

	for _, check := range report.Checks {
		fmt.Printf("[%-5s] %-10s %-32s %s\n", check.Status, check.Category, check.Name, check.Message)
	}

	if !report.IsValid() {
		fmt.Fprintf(os.Stderr, "\n%s is INVALID (%d failing check(s))\n", path, len(report.Failures()))
		os.Exit(1)
	}
	fmt.Printf("\n%s is valid\n", path)
	return nil
}
