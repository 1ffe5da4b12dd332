package container

import (
	"encoding/binary"
	"io"

	"github.com/mzpeak/mzpeak/pkg/mzerr"
)

const localFileHeaderSignature = 0x04034b50

// PeekMimeType reads only the first local file header of ra (well under
// 100 bytes for the short "mimetype" name) and returns the literal bytes
// stored in the mandatory first "mimetype" entry, without parsing the
// archive's central directory and without requiring the caller to know
// the archive's total size.
//
// This is deliberately independent of archive/zip's own directory-driven
// NewReader: identifying the format must stay cheap, so it re-derives
// the answer straight from the leading bytes rather than trusting that
// the central directory agrees with them.
func PeekMimeType(ra io.ReaderAt) (string, error) {
	var fixed [30]byte
	if _, err := ra.ReadAt(fixed[:], 0); err != nil {
		return "", &mzerr.ArchiveLayoutError{Message: "too small to contain a local file header: " + err.Error()}
	}

	sig := binary.LittleEndian.Uint32(fixed[0:4])
	if sig != localFileHeaderSignature {
		return "", &mzerr.ArchiveLayoutError{Message: "does not begin with a local file header"}
	}

	method := binary.LittleEndian.Uint16(fixed[8:10])
	compressedSize := binary.LittleEndian.Uint32(fixed[18:22])
	nameLen := binary.LittleEndian.Uint16(fixed[26:28])
	extraLen := binary.LittleEndian.Uint16(fixed[28:30])

	name := make([]byte, nameLen)
	if _, err := ra.ReadAt(name, 30); err != nil {
		return "", &mzerr.ArchiveLayoutError{Message: "truncated first entry name: " + err.Error()}
	}
	if string(name) != "mimetype" {
		return "", &mzerr.ArchiveLayoutError{Entry: string(name), Message: "first entry must be named \"mimetype\""}
	}
	if method != 0 {
		return "", &mzerr.ArchiveLayoutError{Entry: "mimetype", Message: "first entry must be stored, not compressed"}
	}

	payloadOffset := int64(30) + int64(nameLen) + int64(extraLen)
	payload := make([]byte, compressedSize)
	if _, err := ra.ReadAt(payload, payloadOffset); err != nil {
		return "", &mzerr.ArchiveLayoutError{Entry: "mimetype", Message: "truncated payload: " + err.Error()}
	}
	return string(payload), nil
}
