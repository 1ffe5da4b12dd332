package container

import (
	"archive/zip"
	"io"

	"github.com/mzpeak/mzpeak/pkg/mzerr"
)

// Reader opens a .mzpeak archive for random access. Multiple Readers may
// be open against the same underlying file concurrently: every read is a
// bounded, read-only seek.
type Reader struct {
	zr     *zip.Reader
	byName map[string]*zip.File
	ra     io.ReaderAt
}

// NewReader opens the archive in ra, which must hold size bytes. It reads
// the central directory and verifies the mandatory mimetype-first layout
// ; it does not read any table payload.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	if _, err := PeekMimeType(ra); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, &mzerr.ArchiveLayoutError{Message: "not a valid archive: " + err.Error()}
	}

	r := &Reader{zr: zr, ra: ra, byName: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		r.byName[f.Name] = f
	}

	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" {
		return nil, &mzerr.ArchiveLayoutError{Entry: "mimetype", Message: "must be the first entry in the central directory"}
	}
	if zr.File[0].Method != zip.Store {
		return nil, &mzerr.ArchiveLayoutError{Entry: "mimetype", Message: "must be stored, not compressed"}
	}

	return r, nil
}

// Has reports whether the archive contains an entry with the given name.
func (r *Reader) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns every entry name present in the archive, in central
// directory order (which matches write order for archives this package
// produced).
func (r *Reader) Names() []string {
	names := make([]string, len(r.zr.File))
	for i, f := range r.zr.File {
		names[i] = f.Name
	}
	return names
}

// OpenStored returns a random-access, read-only view of a stored entry's
// payload. The returned SectionReader maps logical offsets in
// [0, entry_size) directly onto the archive file's absolute byte offsets;
// it never buffers the entry into memory.
func (r *Reader) OpenStored(name string) (*io.SectionReader, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, &mzerr.ArchiveLayoutError{Entry: name, Message: "entry not found"}
	}
	if f.Method != zip.Store {
		return nil, &mzerr.ArchiveLayoutError{Entry: name, Message: "entry is compressed; random access requires a stored entry"}
	}
	offset, err := f.DataOffset()
	if err != nil {
		return nil, &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return io.NewSectionReader(r.ra, offset, int64(f.UncompressedSize64)), nil
}

// OpenCompressed opens a compressed entry for whole-file sequential
// reading (the manifest's only access pattern).
func (r *Reader) OpenCompressed(name string) (io.ReadCloser, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, &mzerr.ArchiveLayoutError{Entry: name, Message: "entry not found"}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return rc, nil
}

// Size returns the uncompressed size of a stored entry, without opening
// it.
func (r *Reader) Size(name string) (int64, bool) {
	f, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	return int64(f.UncompressedSize64), true
}
