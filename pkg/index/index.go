// Package index implements the spectrum index: a small
// {spectrum_id, row_group, row_start, row_end} table that lets a reader
// locate one spectrum's peaks without scanning the peaks table.
package index

import (
	"sort"

	"github.com/mzpeak/mzpeak/pkg/mzerr"
	"github.com/mzpeak/mzpeak/pkg/pqio"
	"github.com/mzpeak/mzpeak/pkg/schema"
)

// Entry is one spectrum's location in the peaks table. RowStart/RowEnd are
// a half-open range of row offsets into the whole peaks table (see
// DESIGN.md's row-group addressing note), so a lookup is a single
// SeekToRow plus a read of RowEnd-RowStart rows.
type Entry struct {
	SpectrumID uint32
	RowGroup   uint32
	RowStart   uint64
	RowEnd     uint64
}

// Index is the in-memory form of the spectrum index: a lookup table
// built once, either incrementally while writing or in
// one pass while opening an archive for reading.
type Index struct {
	bySpectrumID map[uint32]Entry
	ordered      []Entry // sorted by SpectrumID, for LookupRange
}

// New returns an empty index, for a writer to populate incrementally.
func New() *Index {
	return &Index{bySpectrumID: make(map[uint32]Entry)}
}

// Add records one spectrum's location. Entries must be added in
// increasing SpectrumID order, matching the write-time contiguity
// invariant; LookupRange's binary search relies on this, and Add does not
// sort.
func (idx *Index) Add(e Entry) {
	idx.bySpectrumID[e.SpectrumID] = e
	idx.ordered = append(idx.ordered, e)
}

// Load reads a complete spectrum index table from ra into memory. It is
// used on open; the whole index is small enough to hold in memory for
// any archive size this format targets.
func Load(ra pqio.SizedReaderAt) (*Index, error) {
	rr, err := pqio.OpenRowReader[schema.IndexRow](ra)
	if err != nil {
		return nil, &mzerr.IndexError{Fatal: false, Message: "failed to open index table: " + err.Error()}
	}
	defer rr.Close()

	n := rr.NumRows()
	idx := &Index{
		bySpectrumID: make(map[uint32]Entry, n),
		ordered:      make([]Entry, 0, n),
	}

	buf := make([]schema.IndexRow, 4096)
	for {
		read, err := rr.Read(buf)
		for _, row := range buf[:read] {
			e := Entry{SpectrumID: row.SpectrumID, RowGroup: row.RowGroup, RowStart: row.RowStart, RowEnd: row.RowEnd}
			idx.bySpectrumID[e.SpectrumID] = e
			idx.ordered = append(idx.ordered, e)
		}
		if err != nil {
			break
		}
	}

	if !sort.SliceIsSorted(idx.ordered, func(i, j int) bool { return idx.ordered[i].SpectrumID < idx.ordered[j].SpectrumID }) {
		sort.Slice(idx.ordered, func(i, j int) bool { return idx.ordered[i].SpectrumID < idx.ordered[j].SpectrumID })
	}

	return idx, nil
}

// Len reports the number of indexed spectra.
func (idx *Index) Len() int {
	return len(idx.ordered)
}

// Lookup returns the peaks-table location of a single spectrum_id.
func (idx *Index) Lookup(spectrumID uint32) (Entry, bool) {
	e, ok := idx.bySpectrumID[spectrumID]
	return e, ok
}

// LookupRange returns every indexed entry whose SpectrumID falls in
// [lo, hi], in increasing SpectrumID order, so batched readers make one
// probe per span instead of one per spectrum.
func (idx *Index) LookupRange(lo, hi uint32) []Entry {
	start := sort.Search(len(idx.ordered), func(i int) bool { return idx.ordered[i].SpectrumID >= lo })
	end := sort.Search(len(idx.ordered), func(i int) bool { return idx.ordered[i].SpectrumID > hi })
	if start >= end {
		return nil
	}
	out := make([]Entry, end-start)
	copy(out, idx.ordered[start:end])
	return out
}
