package reader

import (
	"bytes"
	"io"
	"testing"

	"github.com/mzpeak/mzpeak/pkg/container"
	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/schema"
	"github.com/mzpeak/mzpeak/pkg/writer"
)

// buildArchiveWithoutIndex strips the optional index entry from an
// otherwise normal archive, so tests can exercise the no-index fallback
// path.
func buildArchiveWithoutIndex(t *testing.T, n int) []byte {
	t.Helper()
	full := buildArchive(t, n)

	inner, err := container.NewReader(bytes.NewReader(full), int64(len(full)))
	if err != nil {
		t.Fatalf("container.NewReader: %v", err)
	}

	var out bytes.Buffer
	w := container.NewWriter(&out)
	if err := w.WriteMimeType(schema.MimeType); err != nil {
		t.Fatalf("WriteMimeType: %v", err)
	}
	for _, entry := range []string{schema.EntrySpectra, schema.EntryPeaks, schema.EntryManifest} {
		size, _ := inner.Size(entry)
		var payload []byte
		if entry == schema.EntryManifest {
			rc, err := inner.OpenCompressed(entry)
			if err != nil {
				t.Fatalf("open inner %s: %v", entry, err)
			}
			buf := new(bytes.Buffer)
			buf.ReadFrom(rc)
			rc.Close()
			payload = buf.Bytes()
		} else {
			sr, err := inner.OpenStored(entry)
			if err != nil {
				t.Fatalf("open inner %s: %v", entry, err)
			}
			payload = make([]byte, size)
			sr.ReadAt(payload, 0)
		}

		var dst io.Writer
		if entry == schema.EntryManifest {
			dst, err = w.CreateCompressed(entry)
		} else {
			dst, err = w.CreateStored(entry)
		}
		if err != nil {
			t.Fatalf("create %s: %v", entry, err)
		}
		if _, err := dst.Write(payload); err != nil {
			t.Fatalf("write %s: %v", entry, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return out.Bytes()
}

func buildArchive(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := writer.New(&buf, writer.Options{Modality: schema.ModalityLCMS})
	if err != nil {
		t.Fatalf("writer.New: %v", err)
	}
	for i := 0; i < n; i++ {
		s := &ingest.Spectrum{
			SpectrumID:    uint32(i),
			MSLevel:       uint8(1 + i%2),
			RetentionTime: float32(i) * 1.5,
			Polarity:      1,
			MZ:            []float64{100 + float64(i), 200 + float64(i)},
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

func TestOpenAndSummary(t *testing.T) {
	data := buildArchive(t, 4)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !r.HasIndex() {
		t.Error("expected the archive to carry a spectrum index")
	}
	sum := r.Summary()
	if sum.SpectrumCount != 4 {
		t.Errorf("SpectrumCount = %d, want 4", sum.SpectrumCount)
	}
	if sum.PeakCount != 8 {
		t.Errorf("PeakCount = %d, want 8", sum.PeakCount)
	}
}

func TestGetSpectrumByID(t *testing.T) {
	data := buildArchive(t, 5)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s, err := r.GetSpectrum(2)
	if err != nil {
		t.Fatalf("GetSpectrum(2): %v", err)
	}
	if s.SpectrumID != 2 {
		t.Errorf("SpectrumID = %d, want 2", s.SpectrumID)
	}
	if len(s.MZ) != 2 || s.MZ[0] != 102 {
		t.Errorf("unexpected MZ: %v", s.MZ)
	}
}

func TestGetSpectrumNotFound(t *testing.T) {
	data := buildArchive(t, 3)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.GetSpectrum(99); err == nil {
		t.Error("expected a NotFound error")
	}
}

func TestIterSpectra(t *testing.T) {
	data := buildArchive(t, 6)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := r.IterSpectra()
	if err != nil {
		t.Fatalf("IterSpectra: %v", err)
	}
	defer it.Close()

	var ids []uint32
	for it.Next() {
		ids = append(ids, it.Spectrum().SpectrumID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if len(ids) != 6 {
		t.Fatalf("expected 6 spectra, got %d", len(ids))
	}
	for i, id := range ids {
		if id != uint32(i) {
			t.Errorf("ids[%d] = %d, want %d", i, id, i)
		}
	}
}

func TestIterSpectraFrom(t *testing.T) {
	data := buildArchive(t, 8)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := r.IterSpectraFrom(5)
	if err != nil {
		t.Fatalf("IterSpectraFrom: %v", err)
	}
	defer it.Close()

	var ids []uint32
	var mz0 []float64
	for it.Next() {
		ids = append(ids, it.Spectrum().SpectrumID)
		if len(mz0) == 0 {
			mz0 = it.Spectrum().MZ
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}

	want := []uint32{5, 6, 7}
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got ids %v, want %v", ids, want)
			break
		}
	}
	// spectrum 5's mz values are offset by 5 in buildArchive.
	if len(mz0) != 2 || mz0[0] != 105 {
		t.Errorf("unexpected mz for the seeked-to spectrum: %v", mz0)
	}
}

func TestIterSpectraFromZeroMatchesIterSpectra(t *testing.T) {
	data := buildArchive(t, 4)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := r.IterSpectraFrom(0)
	if err != nil {
		t.Fatalf("IterSpectraFrom: %v", err)
	}
	defer it.Close()

	count := 0
	for it.Next() {
		if it.Spectrum().SpectrumID != uint32(count) {
			t.Errorf("ids[%d] = %d, want %d", count, it.Spectrum().SpectrumID, count)
		}
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 spectra, got %d", count)
	}
}

func TestIterSpectraFromWithoutIndex(t *testing.T) {
	data := buildArchiveWithoutIndex(t, 8)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.HasIndex() {
		t.Fatal("expected an index-less archive")
	}

	it, err := r.IterSpectraFrom(5)
	if err != nil {
		t.Fatalf("IterSpectraFrom: %v", err)
	}
	defer it.Close()

	var ids []uint32
	for it.Next() {
		ids = append(ids, it.Spectrum().SpectrumID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	want := []uint32{5, 6, 7}
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got ids %v, want %v", ids, want)
			break
		}
	}
}

func TestGetSpectrumWithoutIndex(t *testing.T) {
	data := buildArchiveWithoutIndex(t, 6)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.HasIndex() {
		t.Fatal("expected an index-less archive")
	}

	for i := uint32(0); i < 6; i++ {
		s, err := r.GetSpectrum(i)
		if err != nil {
			t.Fatalf("GetSpectrum(%d): %v", i, err)
		}
		if s.SpectrumID != i {
			t.Errorf("SpectrumID = %d, want %d", s.SpectrumID, i)
		}
		if len(s.MZ) != 2 || s.MZ[0] != 100+float64(i) {
			t.Errorf("unexpected MZ for spectrum %d: %v", i, s.MZ)
		}
	}
	if _, err := r.GetSpectrum(6); err == nil {
		t.Error("expected a NotFound error past the last spectrum")
	}
}

func TestSpectraByMSLevel(t *testing.T) {
	data := buildArchive(t, 6)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := r.SpectraByMSLevel(1)
	if err != nil {
		t.Fatalf("SpectraByMSLevel: %v", err)
	}
	defer it.Close()

	count := 0
	for it.Next() {
		if it.Spectrum().MSLevel != 1 {
			t.Errorf("got ms_level %d, want 1", it.Spectrum().MSLevel)
		}
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 ms_level=1 spectra, got %d", count)
	}
}

func TestSpectraByRTRange(t *testing.T) {
	data := buildArchive(t, 6)
	ra := bytes.NewReader(data)
	r, err := Open(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := r.SpectraByRTRange(1.5, 4.5)
	if err != nil {
		t.Fatalf("SpectraByRTRange: %v", err)
	}
	defer it.Close()

	var ids []uint32
	for it.Next() {
		ids = append(ids, it.Spectrum().SpectrumID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	want := []uint32{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got ids %v, want %v", ids, want)
			break
		}
	}
}
