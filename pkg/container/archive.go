// Package container implements the single-file archive wrapper: a set
// of named entries, the first of which is an
// uncompressed "mimetype" marker, with seekable byte-range access to every
// other "stored" entry and whole-read access to "compressed" ones.
//
// The archive is a standard ZIP file. zip.Store/zip.Deflate map directly
// onto the format's stored/compressed entry modes, and writing the mimetype
// entry first (uncompressed) before anything else is the same trick EPUB
// and ODF containers use so a reader can identify the format from the
// first bytes of the file without parsing the central directory.
package container

import (
	"archive/zip"
	"hash/crc32"
	"io"

	"github.com/mzpeak/mzpeak/pkg/mzerr"
)

// Writer produces a .mzpeak archive. Entries must be written in the order
// the caller wants them to appear; the first call must be WriteMimeType.
type Writer struct {
	zw       *zip.Writer
	wroteAny bool
}

// NewWriter wraps w (typically an *os.File) as an archive writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// WriteMimeType writes the mandatory first entry: "mimetype", stored, the
// exact bytes of mimeType with no trailing newline. It must
// be the first entry written to the archive.
//
// The entry goes through CreateRaw with its sizes and CRC precomputed:
// the streaming Create path defers sizes to a trailing data descriptor
// and leaves zeros in the local file header, which would break readers
// that identify the format from the leading bytes alone (PeekMimeType).
func (w *Writer) WriteMimeType(mimeType string) error {
	if w.wroteAny {
		return &mzerr.ArchiveLayoutError{Entry: "mimetype", Message: "must be the first entry written"}
	}
	payload := []byte(mimeType)
	fw, err := w.zw.CreateRaw(&zip.FileHeader{
		Name:               "mimetype",
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(payload),
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: uint64(len(payload)),
	})
	if err != nil {
		return &mzerr.IOError{Entry: "mimetype", RowGroup: -1, Err: err}
	}
	if _, err := fw.Write(payload); err != nil {
		return &mzerr.IOError{Entry: "mimetype", RowGroup: -1, Err: err}
	}
	w.wroteAny = true
	return nil
}

// CreateStored opens a new stored (uncompressed, random-access) entry for
// writing. Columnar table entries use this so readers can seek into them
// without decompressing the whole entry.
func (w *Writer) CreateStored(name string) (io.Writer, error) {
	if !w.wroteAny {
		return nil, &mzerr.ArchiveLayoutError{Entry: name, Message: "mimetype must be written first"}
	}
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return nil, &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return fw, nil
}

// CreateCompressed opens a new deflate-compressed entry for writing. The
// manifest uses this; it is read only in whole.
func (w *Writer) CreateCompressed(name string) (io.Writer, error) {
	if !w.wroteAny {
		return nil, &mzerr.ArchiveLayoutError{Entry: name, Message: "mimetype must be written first"}
	}
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return nil, &mzerr.IOError{Entry: name, RowGroup: -1, Err: err}
	}
	return fw, nil
}

// Close finalizes the archive's central directory. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		return &mzerr.IOError{Entry: "<central directory>", RowGroup: -1, Err: err}
	}
	return nil
}
