package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/pipeline"
	"github.com/mzpeak/mzpeak/pkg/schema"
	"github.com/mzpeak/mzpeak/pkg/writer"
)

var (
	convertIn         string
	convertOut        string
	convertModality   string
	convertConverter  string
	convertAsync      bool
	convertQueueDepth int
)

func init() {
	convertCmd.Flags().StringVarP(&convertIn, "in", "i", "", "Input JSON-lines spectrum stream (required)")
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "Output .mzpeak archive path (required)")
	convertCmd.Flags().StringVar(&convertModality, "modality", "lc-ms", "Modality: lc-ms, lc-ims-ms, msi, or msi-ims")
	convertCmd.Flags().StringVar(&convertConverter, "converter", "", "Converter tag recorded in the manifest (default: generated)")
	convertCmd.Flags().BoolVar(&convertAsync, "async", false, "Use the async pipeline writer instead of the synchronous writer")
	convertCmd.Flags().IntVar(&convertQueueDepth, "queue-depth", 0, "Async pipeline queue depth (only with --async)")

	convertCmd.MarkFlagRequired("in")
	convertCmd.MarkFlagRequired("out")
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a JSON-lines spectrum stream to a .mzpeak archive",
	Long: `Convert reads one JSON-encoded spectrum per line from --in (the ingest
"thin waist" shape) and writes a finished .mzpeak archive to --out.

Examples:
  # Convert with the synchronous writer
  mzpeak convert --in spectra.jsonl --out run.mzpeak --modality lc-ms

  # Convert with the async pipeline writer, a deeper queue
  mzpeak convert --in spectra.jsonl --out run.mzpeak --async --queue-depth 1024`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	modality := schema.Modality(convertModality)
	if !modality.Valid() {
		return fmt.Errorf("invalid modality %q", convertModality)
	}

	in, err := os.Open(convertIn)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(convertOut)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	opts := writer.Options{Modality: modality, Converter: convertConverter}

	count, err := convertStream(in, out, opts)
	if err != nil {
		os.Remove(convertOut)
		return err
	}

	fmt.Printf("Converted %d spectra to %s\n", count, convertOut)
	return nil
}

func convertStream(in *os.File, out *os.File, opts writer.Options) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if convertAsync {
		aw, err := pipeline.New(out, pipeline.Options{Options: opts, QueueDepth: convertQueueDepth})
		if err != nil {
			return 0, err
		}
		count := 0
		for scanner.Scan() {
			s, err := decodeSpectrumLine(scanner.Bytes())
			if err != nil {
				aw.Abort()
				return count, err
			}
			if err := aw.Submit(context.Background(), s); err != nil {
				return count, err
			}
			count++
		}
		if err := scanner.Err(); err != nil {
			aw.Abort()
			return count, err
		}
		return count, aw.Finish()
	}

	w, err := writer.New(out, opts)
	if err != nil {
		return 0, err
	}
	defer w.Discard()

	count := 0
	for scanner.Scan() {
		s, err := decodeSpectrumLine(scanner.Bytes())
		if err != nil {
			return count, err
		}
		if err := w.WriteSpectrum(s); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	if _, err := w.Finish(); err != nil {
		return count, err
	}
	return count, nil
}

func decodeSpectrumLine(line []byte) (*ingest.Spectrum, error) {
	var s ingest.Spectrum
	if err := json.Unmarshal(line, &s); err != nil {
		return nil, fmt.Errorf("malformed spectrum line: %w", err)
	}
	return &s, nil
}
