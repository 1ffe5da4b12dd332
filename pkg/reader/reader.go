// Package reader implements random and sequential access to a finished
// .mzpeak archive: opening, summarizing, single-spectrum
// lookup, and lazy iteration with optional retention-time/MS-level
// filtering.
package reader

import (
	"encoding/json"
	"io"

	"github.com/mzpeak/mzpeak/pkg/container"
	"github.com/mzpeak/mzpeak/pkg/index"
	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/mzerr"
	"github.com/mzpeak/mzpeak/pkg/pqio"
	"github.com/mzpeak/mzpeak/pkg/schema"
)

// Reader provides read access to one archive. Multiple Readers may be open
// against independent io.ReaderAt views of the same file; a single Reader
// is not safe for concurrent use because the underlying parquet readers
// carry seek position.
type Reader struct {
	archive  *container.Reader
	manifest schema.Manifest

	spectraRA *io.SectionReader
	peaksRA   *io.SectionReader

	idx *index.Index // nil if the archive has no index entry
}

// Open reads the manifest and the spectrum index (if present) from ra,
// which must hold size bytes, and prepares the reader for queries. It does
// not read any spectra or peak rows.
func Open(ra io.ReaderAt, size int64) (*Reader, error) {
	archive, err := container.NewReader(ra, size)
	if err != nil {
		return nil, err
	}

	mr, err := archive.OpenCompressed(schema.EntryManifest)
	if err != nil {
		return nil, err
	}
	defer mr.Close()
	var manifest schema.Manifest
	if err := json.NewDecoder(mr).Decode(&manifest); err != nil {
		return nil, &mzerr.SchemaError{Table: "manifest", Message: "failed to parse: " + err.Error()}
	}
	if err := manifest.Validate(); err != nil {
		return nil, &mzerr.SchemaError{Table: "manifest", Message: err.Error()}
	}

	spectraRA, err := archive.OpenStored(schema.EntrySpectra)
	if err != nil {
		return nil, err
	}
	peaksRA, err := archive.OpenStored(schema.EntryPeaks)
	if err != nil {
		return nil, err
	}

	r := &Reader{archive: archive, manifest: manifest, spectraRA: spectraRA, peaksRA: peaksRA}

	if archive.Has(schema.EntryIndex) {
		indexRA, err := archive.OpenStored(schema.EntryIndex)
		if err != nil {
			return nil, err
		}
		idx, err := index.Load(indexRA)
		if err != nil {
			return nil, err
		}
		r.idx = idx
	}
	// An absent index is recoverable. GetSpectrum
	// falls back to a full spectra-table scan to locate the peak offset.

	return r, nil
}

// Manifest returns the archive's manifest document.
func (r *Reader) Manifest() schema.Manifest {
	return r.manifest
}

// Summary is the aggregate view of an archive, served without touching
// any row payload: it is copied straight from the manifest, which
// already carries these totals.
type Summary struct {
	Modality       schema.Modality
	HasIonMobility bool
	HasImaging     bool
	SpectrumCount  uint32
	PeakCount      uint64
}

// Summary returns the archive's aggregate statistics.
func (r *Reader) Summary() Summary {
	return Summary{
		Modality:       r.manifest.Modality,
		HasIonMobility: r.manifest.HasIonMobility,
		HasImaging:     r.manifest.HasImaging,
		SpectrumCount:  r.manifest.SpectrumCount,
		PeakCount:      r.manifest.PeakCount,
	}
}

// Chromatogram returns the archive's chromatogram companion table, if the
// writer was given one (writer.Options.Chromatogram). It returns (nil, nil)
// when the archive carries no chromatogram entry.
func (r *Reader) Chromatogram() ([]schema.ChromatogramPoint, error) {
	if !r.archive.Has(schema.EntryChromatogram) {
		return nil, nil
	}
	return readAuxTable[schema.ChromatogramPoint](r.archive, schema.EntryChromatogram)
}

// Mobilogram returns the archive's mobilogram companion table, if the
// writer was given one (writer.Options.Mobilogram). It returns (nil, nil)
// when the archive carries no mobilogram entry.
func (r *Reader) Mobilogram() ([]schema.MobilogramPoint, error) {
	if !r.archive.Has(schema.EntryMobilogram) {
		return nil, nil
	}
	return readAuxTable[schema.MobilogramPoint](r.archive, schema.EntryMobilogram)
}

// readAuxTable reads a whole small companion table (chromatogram,
// mobilogram) into memory in one shot; unlike the spectra/peaks tables it
// is never large enough to warrant row-group-at-a-time access.
func readAuxTable[T any](archive *container.Reader, name string) ([]T, error) {
	ra, err := archive.OpenStored(name)
	if err != nil {
		return nil, err
	}
	rr, err := pqio.OpenRowReader[T](ra)
	if err != nil {
		return nil, &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	defer rr.Close()

	out := make([]T, 0, int(rr.NumRows()))
	buf := make([]T, 4096)
	for {
		read, err := rr.Read(buf)
		out = append(out, buf[:read]...)
		if err != nil {
			break
		}
	}
	return out, nil
}

// HasIndex reports whether the archive carried a spectrum index. When
// false, GetSpectrum still works but scans the spectra table for the
// requested row instead of seeking to it; iteration is unaffected.
func (r *Reader) HasIndex() bool {
	return r.idx != nil
}

// GetSpectrum performs zero-extraction random access to a single spectrum
// by id: with an index it reads exactly the one spectra-table row (without
// one it scans the spectra table for that row), and it reads only the
// peaks-table rows belonging to it, never decoding any other spectrum's
// peaks.
func (r *Reader) GetSpectrum(spectrumID uint32) (*ingest.Spectrum, error) {
	srow, err := r.spectrumRow(spectrumID)
	if err != nil {
		return nil, err
	}

	cur, err := r.openPeakCursor()
	if err != nil {
		return nil, &mzerr.IOError{Entry: schema.EntryPeaks, RowGroup: -1, Err: err}
	}
	defer cur.close()

	rowStart, rowEnd := r.peakRowRange(srow)
	var peaks peakColumns
	if n := int(rowEnd - rowStart); n > 0 {
		if err := cur.seekToRow(int64(rowStart)); err != nil {
			return nil, &mzerr.IOError{Entry: schema.EntryPeaks, RowGroup: -1, Err: err}
		}
		peaks, err = cur.read(n)
		if err != nil {
			return nil, err
		}
	}

	return rowsToSpectrum(srow, peaks), nil
}

// peakColumns is the decoded column view of a run of peaks rows.
// IonMobility is nil for archives whose peaks table has no ion_mobility
// column.
type peakColumns struct {
	MZ          []float64
	Intensity   []float32
	IonMobility []float64
}

// peakCursor hides which of the two peaks-row shapes (with or without the
// ion_mobility column) the archive carries.
type peakCursor interface {
	seekToRow(row int64) error
	read(n int) (peakColumns, error)
	close() error
}

func (r *Reader) openPeakCursor() (peakCursor, error) {
	if r.manifest.HasIonMobility {
		rr, err := pqio.OpenRowReader[schema.PeakRowIM](r.peaksRA)
		if err != nil {
			return nil, err
		}
		return &imPeakCursor{rr: rr}, nil
	}
	rr, err := pqio.OpenRowReader[schema.PeakRow](r.peaksRA)
	if err != nil {
		return nil, err
	}
	return &plainPeakCursor{rr: rr}, nil
}

type plainPeakCursor struct {
	rr *pqio.RowReader[schema.PeakRow]
}

func (c *plainPeakCursor) seekToRow(row int64) error { return c.rr.SeekToRow(row) }
func (c *plainPeakCursor) close() error              { return c.rr.Close() }

func (c *plainPeakCursor) read(n int) (peakColumns, error) {
	buf := make([]schema.PeakRow, n)
	read, err := readFull(c.rr, buf)
	if err != nil && err != io.EOF {
		return peakColumns{}, &mzerr.IOError{Entry: schema.EntryPeaks, RowGroup: -1, Err: err}
	}
	pc := peakColumns{MZ: make([]float64, read), Intensity: make([]float32, read)}
	for i, row := range buf[:read] {
		pc.MZ[i] = row.MZ
		pc.Intensity[i] = row.Intensity
	}
	return pc, nil
}

type imPeakCursor struct {
	rr *pqio.RowReader[schema.PeakRowIM]
}

func (c *imPeakCursor) seekToRow(row int64) error { return c.rr.SeekToRow(row) }
func (c *imPeakCursor) close() error              { return c.rr.Close() }

func (c *imPeakCursor) read(n int) (peakColumns, error) {
	buf := make([]schema.PeakRowIM, n)
	read, err := readFull(c.rr, buf)
	if err != nil && err != io.EOF {
		return peakColumns{}, &mzerr.IOError{Entry: schema.EntryPeaks, RowGroup: -1, Err: err}
	}
	pc := peakColumns{
		MZ:          make([]float64, read),
		Intensity:   make([]float32, read),
		IonMobility: make([]float64, read),
	}
	for i, row := range buf[:read] {
		pc.MZ[i] = row.MZ
		pc.Intensity[i] = row.Intensity
		pc.IonMobility[i] = row.IonMobility
	}
	return pc, nil
}

// spectrumRow locates the spectra-table row for spectrumID, via the index
// when present or a linear scan otherwise.
func (r *Reader) spectrumRow(spectrumID uint32) (schema.SpectrumRow, error) {
	rr, err := pqio.OpenRowReader[schema.SpectrumRow](r.spectraRA)
	if err != nil {
		return schema.SpectrumRow{}, &mzerr.IOError{Entry: schema.EntrySpectra, RowGroup: -1, Err: err}
	}
	defer rr.Close()

	if r.idx != nil {
		// spectrum_id is written in strictly increasing order starting at
		// 0, so its row offset in the spectra table equals its own value;
		// no separate spectra-table index is needed.
		if _, ok := r.idx.Lookup(spectrumID); !ok {
			return schema.SpectrumRow{}, &mzerr.NotFound{SpectrumID: spectrumID, Count: r.manifest.SpectrumCount}
		}
		if err := rr.SeekToRow(int64(spectrumID)); err != nil {
			return schema.SpectrumRow{}, &mzerr.IOError{Entry: schema.EntrySpectra, RowGroup: -1, Err: err}
		}
		buf := make([]schema.SpectrumRow, 1)
		read, err := rr.Read(buf)
		if read == 0 || (err != nil && err != io.EOF) {
			return schema.SpectrumRow{}, &mzerr.NotFound{SpectrumID: spectrumID, Count: r.manifest.SpectrumCount}
		}
		return buf[0], nil
	}

	buf := make([]schema.SpectrumRow, 4096)
	for {
		read, err := rr.Read(buf)
		for _, row := range buf[:read] {
			if row.SpectrumID == spectrumID {
				return row, nil
			}
		}
		if err != nil {
			break
		}
	}
	return schema.SpectrumRow{}, &mzerr.NotFound{SpectrumID: spectrumID, Count: r.manifest.SpectrumCount}
}

// readFull reads rows until the buffer is full or the reader is drained.
// A row reader may legally return fewer rows than requested, e.g. at a
// row-group boundary, so single large reads must loop.
func readFull[T any](rr *pqio.RowReader[T], rows []T) (int, error) {
	total := 0
	for total < len(rows) {
		n, err := rr.Read(rows[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

func (r *Reader) peakRowRange(srow schema.SpectrumRow) (uint64, uint64) {
	if r.idx != nil {
		if e, ok := r.idx.Lookup(srow.SpectrumID); ok {
			return e.RowStart, e.RowEnd
		}
	}
	return srow.PeakOffset, srow.PeakOffset + uint64(srow.PeakCount)
}

func rowsToSpectrum(srow schema.SpectrumRow, peaks peakColumns) *ingest.Spectrum {
	return &ingest.Spectrum{
		SpectrumID:           srow.SpectrumID,
		MSLevel:              srow.MSLevel,
		RetentionTime:        srow.RetentionTime,
		Polarity:             srow.Polarity,
		ScanNumber:           srow.ScanNumber,
		PrecursorMZ:          srow.PrecursorMZ,
		PrecursorCharge:      srow.PrecursorCharge,
		PrecursorIntensity:   srow.PrecursorIntensity,
		IsolationWindowLower: srow.IsolationWindowLower,
		IsolationWindowUpper: srow.IsolationWindowUpper,
		CollisionEnergy:      srow.CollisionEnergy,
		TotalIonCurrent:      srow.TotalIonCurrent,
		BasePeakMZ:           srow.BasePeakMZ,
		BasePeakIntensity:    srow.BasePeakIntensity,
		InjectionTime:        srow.InjectionTime,
		PixelX:               srow.PixelX,
		PixelY:               srow.PixelY,
		PixelZ:               srow.PixelZ,
		MZ:                   peaks.MZ,
		Intensity:            peaks.Intensity,
		IonMobility:          peaks.IonMobility,
	}
}

// Close releases any resources the reader holds that are not owned by the
// caller's original io.ReaderAt.
func (r *Reader) Close() error {
	return nil
}
