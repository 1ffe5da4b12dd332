package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mzpeak/mzpeak/pkg/reader"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <archive>",
	Short: "Print archive summary statistics",
	Long:  `Summarize reads the manifest (and loads the spectrum index, when present) and prints aggregate statistics; it never touches a peak payload.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
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

	r, err := reader.Open(f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	summary := r.Summary()
	manifest := r.Manifest()

	fmt.Printf("Archive:         %s\n", path)
	fmt.Printf("Format version:  %s\n", manifest.FormatVersion)
	fmt.Printf("Schema version:  %s\n", manifest.SchemaVersion)
	fmt.Printf("Modality:        %s\n", summary.Modality)
	fmt.Printf("Ion mobility:    %v\n", summary.HasIonMobility)
	fmt.Printf("Imaging:         %v\n", summary.HasImaging)
	fmt.Printf("Spectra:         %d\n", summary.SpectrumCount)
	fmt.Printf("Peaks:           %d\n", summary.PeakCount)
	fmt.Printf("Converter:       %s\n", manifest.Converter)
	fmt.Printf("Created:         %s\n", manifest.Created.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("Has index:       %v\n", r.HasIndex())
	if manifest.VendorHints != nil {
		fmt.Printf("Vendor:          %s\n", manifest.VendorHints.Vendor)
		fmt.Printf("Source format:   %s\n", manifest.VendorHints.Format)
		fmt.Printf("Source path:     %s\n", manifest.VendorHints.Path)
	}

	return nil
}
