// Package writer implements the synchronous streaming writer: WriteSpectrum is called once per spectrum in spectrum_id order, and
// Finish assembles the finished archive.
//
// archive/zip only allows one entry to be open for writing at a time, but
// WriteSpectrum must append to the spectra, peaks, and index tables in the
// same call. Each table is therefore accumulated in its own temporary file
// through the write, so memory use stays bounded by the in-flight row-group
// buffers rather than the archive's total size; Finish streams each temp
// file into the archive as a single stored entry and removes it.
package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mzpeak/mzpeak/pkg/container"
	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/mzerr"
	"github.com/mzpeak/mzpeak/pkg/pqio"
	"github.com/mzpeak/mzpeak/pkg/schema"
)

type state int

const (
	stateOpen state = iota
	stateFinalized
	statePoisoned
)

// Options configures a new Writer.
type Options struct {
	Modality schema.Modality

	// Converter identifies the tool that produced the archive.
	// When empty, a default identifying this implementation and a random
	// run id is used.
	Converter string

	VendorHints *schema.VendorHints

	// Chromatogram and Mobilogram, when non-empty, are written as the
	// optional chromatogram/mobilogram companion tables. Both are opt-in: an archive written with
	// neither set carries no chromatograms/ or mobilograms/ entry at all,
	// matching every other optional entry in this format.
	Chromatogram []schema.ChromatogramPoint
	Mobilogram   []schema.MobilogramPoint

	// Logger receives the "archive may be incomplete" warning if the
	// writer is discarded without Finish. Nil defaults to
	// a no-op logger; WriteSpectrum and Finish never log themselves, only
	// Discard does, since every other path already returns its error to a
	// synchronous caller.
	Logger *zap.Logger
}

// Writer accumulates one archive's worth of spectra and writes it out on
// Finish. A Writer is not safe for concurrent use.
type Writer struct {
	dest     io.Writer
	modality schema.Modality
	opts     Options
	logger   *zap.Logger

	state   state
	lastErr error

	tmpDir string

	spectraFile        *os.File
	spectraW           *pqio.RowWriter[schema.SpectrumRow]
	spectraRowsInGroup int

	peaksFile        *os.File
	peaks            peaksTable
	peaksRowsInGroup int
	peaksRowGroup    int

	indexFile        *os.File
	indexW           *pqio.RowWriter[schema.IndexRow]
	indexRowsInGroup int

	nextSpectrumID uint32
	spectrumCount  uint32
	totalPeaks     uint64
}

// New creates a Writer that will write its finished archive to dest once
// Finish is called. It allocates a temporary directory for in-progress
// table data; callers must call Finish or Discard to release it.
func New(dest io.Writer, opts Options) (*Writer, error) {
	if !opts.Modality.Valid() {
		return nil, &mzerr.ContractError{Violation: mzerr.Modality, Message: "unknown modality " + string(opts.Modality)}
	}

	tmpDir, err := os.MkdirTemp("", "mzpeak-write-*")
	if err != nil {
		return nil, &mzerr.IOError{Entry: "<tmpdir>", RowGroup: -1, Err: err}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{dest: dest, modality: opts.Modality, opts: opts, tmpDir: tmpDir, logger: logger}

	w.spectraFile, w.spectraW, err = openTemp[schema.SpectrumRow](tmpDir, "spectra")
	if err != nil {
		w.Discard()
		return nil, err
	}
	w.peaksFile, w.peaks, err = openPeaksTemp(tmpDir, opts.Modality.HasIonMobility())
	if err != nil {
		w.Discard()
		return nil, err
	}
	w.indexFile, w.indexW, err = openTemp[schema.IndexRow](tmpDir, "index")
	if err != nil {
		w.Discard()
		return nil, err
	}

	return w, nil
}

func openTemp[T any](dir, name string) (*os.File, *pqio.RowWriter[T], error) {
	f, err := os.CreateTemp(dir, name+"-*.parquet")
	if err != nil {
		return nil, nil, &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return f, pqio.NewRowWriter[T](f), nil
}

func openPeaksTemp(dir string, hasIonMobility bool) (*os.File, peaksTable, error) {
	if hasIonMobility {
		f, rw, err := openTemp[schema.PeakRowIM](dir, "peaks")
		if err != nil {
			return nil, nil, err
		}
		return f, &peaksIM{w: rw}, nil
	}
	f, rw, err := openTemp[schema.PeakRow](dir, "peaks")
	if err != nil {
		return nil, nil, err
	}
	return f, &peaksPlain{w: rw}, nil
}

// peaksTable hides which of the two peaks-row shapes (with or without the
// ion_mobility column) the writer is emitting.
type peaksTable interface {
	append(s *ingest.Spectrum) error
	flushRowGroup() error
	close() error
}

type peaksPlain struct {
	w *pqio.RowWriter[schema.PeakRow]
}

func (p *peaksPlain) append(s *ingest.Spectrum) error {
	rows := make([]schema.PeakRow, len(s.MZ))
	for i := range s.MZ {
		rows[i] = schema.PeakRow{SpectrumID: s.SpectrumID, MZ: s.MZ[i], Intensity: s.Intensity[i]}
	}
	return p.w.Write(rows)
}

func (p *peaksPlain) flushRowGroup() error { return p.w.FlushRowGroup() }
func (p *peaksPlain) close() error         { return p.w.Close() }

type peaksIM struct {
	w *pqio.RowWriter[schema.PeakRowIM]
}

func (p *peaksIM) append(s *ingest.Spectrum) error {
	rows := make([]schema.PeakRowIM, len(s.MZ))
	for i := range s.MZ {
		rows[i] = schema.PeakRowIM{SpectrumID: s.SpectrumID, MZ: s.MZ[i], Intensity: s.Intensity[i], IonMobility: s.IonMobility[i]}
	}
	return p.w.Write(rows)
}

func (p *peaksIM) flushRowGroup() error { return p.w.FlushRowGroup() }
func (p *peaksIM) close() error         { return p.w.Close() }

// WriteSpectrum appends one spectrum to the archive in progress. Spectra
// must be supplied in strictly increasing spectrum_id order starting at 0
// (every archive is written that way); any violated ingest precondition poisons the writer and is
// returned as a *mzerr.ContractError, after which every further call
// (including Finish) fails.
func (w *Writer) WriteSpectrum(s *ingest.Spectrum) error {
	switch w.state {
	case stateFinalized:
		return &mzerr.ContractError{Message: "writer already finished"}
	case statePoisoned:
		return w.lastErr
	}

	if s.SpectrumID != w.nextSpectrumID {
		err := &mzerr.ContractError{
			Violation:  mzerr.Contiguity,
			SpectrumID: s.SpectrumID,
			Message:    fmt.Sprintf("expected spectrum_id %d, got %d", w.nextSpectrumID, s.SpectrumID),
		}
		return w.poison(err)
	}
	if issues := s.CheckShape(w.modality.HasIonMobility()); len(issues) > 0 {
		issue := issues[0]
		err := &mzerr.ContractError{
			Violation:  classifyViolation(issue),
			SpectrumID: s.SpectrumID,
			Message:    issue.String(),
		}
		return w.poison(err)
	}

	peakOffset := w.totalPeaks
	row := schema.SpectrumRow{
		SpectrumID:           s.SpectrumID,
		ScanNumber:           s.ScanNumber,
		MSLevel:              s.MSLevel,
		RetentionTime:        s.RetentionTime,
		Polarity:             s.Polarity,
		PrecursorMZ:          s.PrecursorMZ,
		PrecursorCharge:      s.PrecursorCharge,
		PrecursorIntensity:   s.PrecursorIntensity,
		IsolationWindowLower: s.IsolationWindowLower,
		IsolationWindowUpper: s.IsolationWindowUpper,
		CollisionEnergy:      s.CollisionEnergy,
		TotalIonCurrent:      s.TotalIonCurrent,
		BasePeakMZ:           s.BasePeakMZ,
		BasePeakIntensity:    s.BasePeakIntensity,
		InjectionTime:        s.InjectionTime,
		PixelX:               s.PixelX,
		PixelY:               s.PixelY,
		PixelZ:               s.PixelZ,
		PeakOffset:           peakOffset,
		PeakCount:            uint32(s.PeakCount()),
	}
	if err := w.spectraW.Write([]schema.SpectrumRow{row}); err != nil {
		return w.poison(&mzerr.IOError{Entry: "spectra", RowGroup: -1, Err: err})
	}
	w.spectraRowsInGroup++
	if w.spectraRowsInGroup >= schema.SpectraRowGroupSize {
		if err := w.spectraW.FlushRowGroup(); err != nil {
			return w.poison(&mzerr.IOError{Entry: "spectra", RowGroup: -1, Err: err})
		}
		w.spectraRowsInGroup = 0
	}

	rowGroupForIndex := w.peaksRowGroup
	peakCount := s.PeakCount()
	if peakCount > 0 {
		if err := w.peaks.append(s); err != nil {
			return w.poison(&mzerr.IOError{Entry: "peaks", RowGroup: rowGroupForIndex, Err: err})
		}
	}
	w.peaksRowsInGroup += peakCount
	w.totalPeaks += uint64(peakCount)
	// A single spectrum is never split across row groups: one whose peaks
	// overflow the threshold simply grows its group past PeaksRowGroupSize
	// for that one flush.
	if w.peaksRowsInGroup >= schema.PeaksRowGroupSize {
		if err := w.peaks.flushRowGroup(); err != nil {
			return w.poison(&mzerr.IOError{Entry: "peaks", RowGroup: rowGroupForIndex, Err: err})
		}
		w.peaksRowsInGroup = 0
		w.peaksRowGroup++
	}

	indexRow := schema.IndexRow{
		SpectrumID: s.SpectrumID,
		RowGroup:   uint32(rowGroupForIndex),
		RowStart:   peakOffset,
		RowEnd:     peakOffset + uint64(peakCount),
	}
	if err := w.indexW.Write([]schema.IndexRow{indexRow}); err != nil {
		return w.poison(&mzerr.IOError{Entry: "index", RowGroup: -1, Err: err})
	}
	w.indexRowsInGroup++
	if w.indexRowsInGroup >= schema.SpectraRowGroupSize {
		if err := w.indexW.FlushRowGroup(); err != nil {
			return w.poison(&mzerr.IOError{Entry: "index", RowGroup: -1, Err: err})
		}
		w.indexRowsInGroup = 0
	}

	w.spectrumCount++
	w.nextSpectrumID++
	return nil
}

func classifyViolation(issue ingest.ValidationIssue) mzerr.ContractViolation {
	switch issue.Field {
	case "intensity":
		if strings.Contains(issue.Message, "length") {
			return mzerr.ArrayLength
		}
		return mzerr.Intensity
	case "ion_mobility":
		return mzerr.IonMobility
	case "ms_level":
		return mzerr.MSLevel
	case "polarity":
		return mzerr.Polarity
	case "retention_time":
		return mzerr.RetentionTime
	case "mz":
		return mzerr.MZ
	default:
		return mzerr.ArrayLength
	}
}

func (w *Writer) poison(err error) error {
	w.state = statePoisoned
	w.lastErr = err
	w.closeTempFiles()
	return err
}

// Finish closes out any partial final row group, assembles the archive,
// and writes it to the destination given to New. It returns the manifest
// describing the finished archive. Finish may be called at most once, and
// never after a ContractError has poisoned the writer.
func (w *Writer) Finish() (*schema.Manifest, error) {
	switch w.state {
	case stateFinalized:
		return nil, &mzerr.ContractError{Message: "writer already finished"}
	case statePoisoned:
		return nil, w.lastErr
	}

	if w.spectraRowsInGroup > 0 {
		if err := w.spectraW.FlushRowGroup(); err != nil {
			return nil, w.poison(&mzerr.IOError{Entry: "spectra", RowGroup: -1, Err: err})
		}
	}
	if w.peaksRowsInGroup > 0 {
		if err := w.peaks.flushRowGroup(); err != nil {
			return nil, w.poison(&mzerr.IOError{Entry: "peaks", RowGroup: w.peaksRowGroup, Err: err})
		}
	}
	if w.indexRowsInGroup > 0 {
		if err := w.indexW.FlushRowGroup(); err != nil {
			return nil, w.poison(&mzerr.IOError{Entry: "index", RowGroup: -1, Err: err})
		}
	}
	if err := w.spectraW.Close(); err != nil {
		return nil, w.poison(&mzerr.IOError{Entry: "spectra", RowGroup: -1, Err: err})
	}
	if err := w.peaks.close(); err != nil {
		return nil, w.poison(&mzerr.IOError{Entry: "peaks", RowGroup: -1, Err: err})
	}
	if err := w.indexW.Close(); err != nil {
		return nil, w.poison(&mzerr.IOError{Entry: "index", RowGroup: -1, Err: err})
	}

	manifest := &schema.Manifest{
		FormatVersion:  schema.FormatVersion,
		SchemaVersion:  schema.SchemaVersion,
		Modality:       w.modality,
		HasIonMobility: w.modality.HasIonMobility(),
		HasImaging:     w.modality.HasImaging(),
		SpectrumCount:  w.spectrumCount,
		PeakCount:      w.totalPeaks,
		Created:        time.Now().UTC(),
		Converter:      w.converter(),
		VendorHints:    w.opts.VendorHints,
	}

	archive := container.NewWriter(w.dest)
	if err := archive.WriteMimeType(schema.MimeType); err != nil {
		return nil, w.poison(err)
	}
	if err := w.copyEntry(archive, schema.EntrySpectra, w.spectraFile); err != nil {
		return nil, w.poison(err)
	}
	if err := w.copyEntry(archive, schema.EntryPeaks, w.peaksFile); err != nil {
		return nil, w.poison(err)
	}
	if err := w.copyEntry(archive, schema.EntryIndex, w.indexFile); err != nil {
		return nil, w.poison(err)
	}
	if len(w.opts.Chromatogram) > 0 {
		if err := writeRowsEntry(archive, schema.EntryChromatogram, w.opts.Chromatogram); err != nil {
			return nil, w.poison(err)
		}
	}
	if len(w.opts.Mobilogram) > 0 {
		if err := writeRowsEntry(archive, schema.EntryMobilogram, w.opts.Mobilogram); err != nil {
			return nil, w.poison(err)
		}
	}

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return nil, w.poison(&mzerr.IOError{Entry: schema.EntryManifest, RowGroup: -1, Err: err})
	}
	mw, err := archive.CreateCompressed(schema.EntryManifest)
	if err != nil {
		return nil, w.poison(err)
	}
	if _, err := mw.Write(manifestBytes); err != nil {
		return nil, w.poison(&mzerr.IOError{Entry: schema.EntryManifest, RowGroup: -1, Err: err})
	}

	if err := archive.Close(); err != nil {
		return nil, w.poison(err)
	}

	w.state = stateFinalized
	w.closeTempFiles()
	return manifest, nil
}

func (w *Writer) copyEntry(archive *container.Writer, name string, tmp *os.File) error {
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	dst, err := archive.CreateStored(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, tmp); err != nil {
		return &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return nil
}

// writeRowsEntry writes rows as a single-row-group parquet table and stores
// it as a new archive entry. It is used for the small, whole-in-memory
// companion tables (chromatogram, mobilogram) that don't warrant the
// temp-file-backed accumulation the main tables use.
func writeRowsEntry[T any](archive *container.Writer, name string, rows []T) error {
	var buf bytes.Buffer
	rw := pqio.NewRowWriter[T](&buf)
	if err := rw.Write(rows); err != nil {
		return &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	if err := rw.Close(); err != nil {
		return &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	dst, err := archive.CreateStored(name)
	if err != nil {
		return err
	}
	if _, err := dst.Write(buf.Bytes()); err != nil {
		return &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return nil
}

func (w *Writer) converter() string {
	if w.opts.Converter != "" {
		return w.opts.Converter
	}
	return "mzpeak-go/" + uuid.New().String()
}

// Discard releases the writer's temporary files. It is a no-op after a
// successful Finish. If the writer was still open (no ContractError, no
// Finish), it logs a warning that the intended archive was never produced,
// since nothing else is left to report that to a caller that walked away
// ; discarding an already-poisoned writer is silent, since
// the error that poisoned it was already returned once.
func (w *Writer) Discard() {
	switch w.state {
	case stateFinalized, statePoisoned:
		w.closeTempFiles()
		return
	}
	w.state = statePoisoned
	w.lastErr = &mzerr.ContractError{Message: "writer discarded without Finish"}
	w.logger.Warn("mzpeak writer discarded without Finish; no archive was written",
		zap.Uint32("spectra_written", w.spectrumCount))
	w.closeTempFiles()
}

func (w *Writer) closeTempFiles() {
	if w.spectraW != nil {
		w.spectraW.Close()
	}
	if w.peaks != nil {
		w.peaks.close()
	}
	if w.indexW != nil {
		w.indexW.Close()
	}
	for _, f := range []*os.File{w.spectraFile, w.peaksFile, w.indexFile} {
		if f != nil {
			f.Close()
		}
	}
	if w.tmpDir != "" {
		os.RemoveAll(w.tmpDir)
		w.tmpDir = ""
	}
}
