package reader

import (
	"io"

	"github.com/mzpeak/mzpeak/pkg/ingest"
	"github.com/mzpeak/mzpeak/pkg/mzerr"
	"github.com/mzpeak/mzpeak/pkg/pqio"
	"github.com/mzpeak/mzpeak/pkg/schema"
)

// Iterator is a lazy, forward-only, restartable cursor over an archive's
// spectra, in spectrum_id order: one Next()/Spectrum()/Err() call pair per
// item. It pulls rows one
// buffer at a time rather than materializing the whole table, keeping
// memory bounded regardless of archive size.
//
// Because spectrum_id is contiguous from 0 and peak_offset is
// non-decreasing, a full scan never needs to seek: the spectra and peaks
// tables are read forward in lockstep.
type Iterator struct {
	spectraRR *pqio.RowReader[schema.SpectrumRow]
	peaks     peakCursor

	filter func(schema.SpectrumRow) bool

	spectraBuf []schema.SpectrumRow
	spectraPos int
	spectraLen int
	spectraErr error

	cur          *ingest.Spectrum
	curPeakCount uint32
	err          error
	done         bool
}

// IterSpectra returns an iterator over every spectrum in the archive, in
// spectrum_id order.
func (r *Reader) IterSpectra() (*Iterator, error) {
	return r.newIterator(0, nil)
}

// SpectraByMSLevel returns an iterator over only the spectra whose
// ms_level equals level.
func (r *Reader) SpectraByMSLevel(level uint8) (*Iterator, error) {
	return r.newIterator(0, func(row schema.SpectrumRow) bool { return row.MSLevel == level })
}

// SpectraByRTRange returns an iterator over only the spectra whose
// retention_time falls in [lo, hi].
func (r *Reader) SpectraByRTRange(lo, hi float32) (*Iterator, error) {
	return r.newIterator(0, func(row schema.SpectrumRow) bool {
		return row.RetentionTime >= lo && row.RetentionTime <= hi
	})
}

// IterSpectraFrom returns an iterator over every spectrum from spectrumID
// onward, in spectrum_id order. It seeks the spectra and peaks readers
// directly to
// spectrumID's offsets — via the index when present, otherwise via the
// spectra table's own peak_offset column — rather than scanning from row
// 0, the way LookupRange already does for batched index reads.
func (r *Reader) IterSpectraFrom(spectrumID uint32) (*Iterator, error) {
	return r.newIterator(spectrumID, nil)
}

func (r *Reader) newIterator(startSpectrumID uint32, filter func(schema.SpectrumRow) bool) (*Iterator, error) {
	spectraRR, err := pqio.OpenRowReader[schema.SpectrumRow](r.spectraRA)
	if err != nil {
		return nil, &mzerr.IOError{Entry: schema.EntrySpectra, RowGroup: -1, Err: err}
	}
	peaks, err := r.openPeakCursor()
	if err != nil {
		spectraRR.Close()
		return nil, &mzerr.IOError{Entry: schema.EntryPeaks, RowGroup: -1, Err: err}
	}

	if startSpectrumID > 0 {
		if err := r.seekTo(spectraRR, peaks, startSpectrumID); err != nil {
			spectraRR.Close()
			peaks.close()
			return nil, err
		}
	}

	return &Iterator{
		spectraRR:  spectraRR,
		peaks:      peaks,
		filter:     filter,
		spectraBuf: make([]schema.SpectrumRow, 1024),
	}, nil
}

// seekTo repositions spectraRR and peaks so the next read from each
// starts at spectrumID's own row. spectrum_id is contiguous from 0, so
// its spectra-table row offset equals its own value;
// the matching peaks-table offset comes from the index when present,
// falling back to the spectra row's own peak_offset otherwise.
func (r *Reader) seekTo(spectraRR *pqio.RowReader[schema.SpectrumRow], peaks peakCursor, spectrumID uint32) error {
	if err := spectraRR.SeekToRow(int64(spectrumID)); err != nil {
		return &mzerr.IOError{Entry: schema.EntrySpectra, RowGroup: -1, Err: err}
	}
	buf := make([]schema.SpectrumRow, 1)
	read, err := spectraRR.Read(buf)
	if read == 0 || (err != nil && err != io.EOF) {
		return &mzerr.NotFound{SpectrumID: spectrumID, Count: r.manifest.SpectrumCount}
	}

	peakRowStart := buf[0].PeakOffset
	if r.idx != nil {
		if e, ok := r.idx.Lookup(spectrumID); ok {
			peakRowStart = e.RowStart
		}
	}
	if err := peaks.seekToRow(int64(peakRowStart)); err != nil {
		return &mzerr.IOError{Entry: schema.EntryPeaks, RowGroup: -1, Err: err}
	}

	// Reading the lookup row above advanced spectraRR past spectrumID;
	// rewind it so Next's first read returns spectrumID itself.
	if err := spectraRR.SeekToRow(int64(spectrumID)); err != nil {
		return &mzerr.IOError{Entry: schema.EntrySpectra, RowGroup: -1, Err: err}
	}
	return nil
}

// Next advances the iterator. It returns false at end of stream or on
// error; callers must check Err() after Next returns false.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	for {
		row, ok := it.nextSpectrumRow()
		if !ok {
			it.done = true
			return false
		}
		peaks, err := it.readPeaks(row)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		if it.filter != nil && !it.filter(row) {
			continue
		}
		it.cur = rowsToSpectrum(row, peaks)
		it.curPeakCount = row.PeakCount
		return true
	}
}

func (it *Iterator) nextSpectrumRow() (schema.SpectrumRow, bool) {
	if it.spectraPos >= it.spectraLen {
		if it.spectraErr != nil {
			return schema.SpectrumRow{}, false
		}
		n, err := it.spectraRR.Read(it.spectraBuf)
		it.spectraLen = n
		it.spectraPos = 0
		if n == 0 {
			if err != nil && err != io.EOF {
				it.err = &mzerr.IOError{Entry: schema.EntrySpectra, RowGroup: -1, Err: err}
			}
			return schema.SpectrumRow{}, false
		}
		if err != nil {
			it.spectraErr = err
		}
	}
	row := it.spectraBuf[it.spectraPos]
	it.spectraPos++
	return row, true
}

func (it *Iterator) readPeaks(row schema.SpectrumRow) (peakColumns, error) {
	n := int(row.PeakCount)
	if n == 0 {
		return peakColumns{}, nil
	}
	return it.peaks.read(n)
}

// Spectrum returns the current spectrum. It is valid only after Next
// returns true.
func (it *Iterator) Spectrum() *ingest.Spectrum {
	return it.cur
}

// DeclaredPeakCount returns the current spectrum's peak_count as recorded
// in the spectra table, which may differ from len(Spectrum().MZ) if the
// peaks table is truncated relative to what the spectra row declares. It
// is valid only after Next returns true.
func (it *Iterator) DeclaredPeakCount() uint32 {
	return it.curPeakCount
}

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator's row readers.
func (it *Iterator) Close() error {
	it.spectraRR.Close()
	it.peaks.close()
	return nil
}
