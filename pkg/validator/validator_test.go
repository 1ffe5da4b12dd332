package validator

import (
	"bytes"
	"io"
	"testing"

	"github.com/mzpeak/mzpeak/pkg/container"
	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/schema"
	"github.com/mzpeak/mzpeak/pkg/writer"
)

func buildValidatorArchive(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := writer.New(&buf, writer.Options{Modality: schema.ModalityLCMS})
	if err != nil {
		t.Fatalf("writer.New: %v", err)
	}
	for i := 0; i < n; i++ {
		s := &ingest.Spectrum{
			SpectrumID:    uint32(i),
			MSLevel:       1,
			RetentionTime: float32(i),
			Polarity:      1,
			MZ:            []float64{100, 200},
			Intensity:     []float32{10, 20},
		}
		if err := w.WriteSpectrum(s); err != nil {
			t.Fatalf("WriteSpectrum(%d): %v", i, err)
		}
	}
	if _, err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return buf.Bytes()
}

func TestValidateValidArchivePasses(t *testing.T) {
	data := buildValidatorArchive(t, 3)
	report, err := Validate(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !report.IsValid() {
		t.Errorf("expected a valid archive to pass, failures: %+v", report.Failures())
	}
	if len(report.Checks) == 0 {
		t.Error("expected at least one check to have run")
	}
}

func TestValidateIonMobilityArchivePasses(t *testing.T) {
	var buf bytes.Buffer
	w, err := writer.New(&buf, writer.Options{Modality: schema.ModalityLCIMSMS})
	if err != nil {
		t.Fatalf("writer.New: %v", err)
	}
	s := &ingest.Spectrum{
		SpectrumID:    0,
		MSLevel:       1,
		RetentionTime: 1,
		Polarity:      1,
		MZ:            []float64{100, 200},
		Intensity:     []float32{10, 20},
		IonMobility:   []float64{25.3, 25.4},
	}
	if err := w.WriteSpectrum(s); err != nil {
		t.Fatalf("WriteSpectrum: %v", err)
	}
	if _, err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	data := buf.Bytes()
	report, err := Validate(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !report.IsValid() {
		t.Errorf("expected an ion-mobility archive to pass, failures: %+v", report.Failures())
	}
	foundIMCheck := false
	for _, c := range report.Checks {
		if c.Name == "ion-mobility-column" && c.Status == StatusPass {
			foundIMCheck = true
		}
	}
	if !foundIMCheck {
		t.Error("expected the ion-mobility column check to run and pass")
	}
}

func TestValidateNonArchiveFailsStructureStage(t *testing.T) {
	data := []byte("this is not an mzpeak archive")
	report, err := Validate(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.IsValid() {
		t.Error("expected a non-archive input to fail validation")
	}
	failures := report.Failures()
	if len(failures) == 0 {
		t.Fatal("expected at least one failure")
	}
	if failures[0].Category != CategoryStructure {
		t.Errorf("expected the first failure to be in the structure category, got %v", failures[0].Category)
	}
}

// Truncating the archive drops its central directory, so container.NewReader
// itself fails during the structure stage.
func TestValidateTruncatedArchiveFailsStructureStage(t *testing.T) {
	data := buildValidatorArchive(t, 2)
	truncated := data[:len(data)/4]
	report, err := Validate(bytes.NewReader(truncated), int64(len(truncated)))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.IsValid() {
		t.Error("expected a truncated archive to fail validation")
	}
	failures := report.Failures()
	if len(failures) == 0 || failures[0].Category != CategoryStructure {
		t.Errorf("expected the first failure to be in the structure category, got %+v", failures)
	}
}

func TestValidateArchiveWithoutIndexWarns(t *testing.T) {
	var buf bytes.Buffer
	w := container.NewWriter(&buf)
	if err := w.WriteMimeType(schema.MimeType); err != nil {
		t.Fatalf("WriteMimeType: %v", err)
	}

	built := buildValidatorArchive(t, 1)
	innerRA := bytes.NewReader(built)
	inner, err := container.NewReader(innerRA, int64(len(built)))
	if err != nil {
		t.Fatalf("container.NewReader: %v", err)
	}

	for _, entry := range []string{schema.EntryManifest, schema.EntrySpectra, schema.EntryPeaks} {
		var dst io.Writer
		var err error
		if entry == schema.EntryManifest {
			dst, err = w.CreateCompressed(entry)
		} else {
			dst, err = w.CreateStored(entry)
		}
		if err != nil {
			t.Fatalf("create %s: %v", entry, err)
		}
		var payload []byte
		if entry == schema.EntryManifest {
			rc, err := inner.OpenCompressed(entry)
			if err != nil {
				t.Fatalf("open inner %s: %v", entry, err)
			}
			buf2 := new(bytes.Buffer)
			buf2.ReadFrom(rc)
			rc.Close()
			payload = buf2.Bytes()
		} else {
			size, _ := inner.Size(entry)
			sr, err := inner.OpenStored(entry)
			if err != nil {
				t.Fatalf("open inner %s: %v", entry, err)
			}
			payload = make([]byte, size)
			sr.ReadAt(payload, 0)
		}
		if _, err := dst.Write(payload); err != nil {
			t.Fatalf("write %s: %v", entry, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data := buf.Bytes()
	report, err := Validate(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !report.IsValid() {
		t.Errorf("expected an index-less archive to still be valid overall, failures: %+v", report.Failures())
	}
	foundWarn := false
	for _, c := range report.Checks {
		if c.Status == StatusWarn && c.Name == "optional-entry:"+schema.EntryIndex {
			foundWarn = true
		}
	}
	if !foundWarn {
		t.Error("expected a warning about the missing spectrum index")
	}
}
