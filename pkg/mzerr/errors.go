// Package mzerr defines the typed error taxonomy shared across mzpeak's
// writer, reader, and validator components.
package mzerr

import "fmt"

// ContractViolation names the specific ingest precondition a ContractError
// reports.
type ContractViolation string

const (
	Contiguity    ContractViolation = "contiguity"
	ArrayLength   ContractViolation = "array_length"
	MSLevel       ContractViolation = "ms_level"
	Polarity      ContractViolation = "polarity"
	RetentionTime ContractViolation = "retention_time"
	MZ            ContractViolation = "mz"
	Intensity     ContractViolation = "intensity"
	IonMobility   ContractViolation = "ion_mobility"
	Modality      ContractViolation = "modality"
)

// ContractError reports a violated ingest precondition. It is
// fatal for the write in progress; no partial archive is produced.
type ContractError struct {
	Violation  ContractViolation
	SpectrumID uint32
	Message    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation (%s) at spectrum_id=%d: %s", e.Violation, e.SpectrumID, e.Message)
}

// ArchiveLayoutError reports a malformed container: missing mimetype
// entry, a non-stored columnar entry, or any other violation of the
// mandatory entry layout.
type ArchiveLayoutError struct {
	Entry   string
	Message string
}

func (e *ArchiveLayoutError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("archive layout error: %s", e.Message)
	}
	return fmt.Sprintf("archive layout error in entry %q: %s", e.Entry, e.Message)
}

// SchemaError reports a required column missing, or present with the
// wrong physical width or nullability.
type SchemaError struct {
	Table   string
	Column  string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s.%s: %s", e.Table, e.Column, e.Message)
}

// IOError wraps an underlying filesystem failure with the offending entry
// name and, where known, the row-group number.
type IOError struct {
	Entry    string
	RowGroup int // -1 if not applicable
	Err      error
}

func (e *IOError) Error() string {
	if e.RowGroup >= 0 {
		return fmt.Sprintf("io error on entry %q (row group %d): %v", e.Entry, e.RowGroup, e.Err)
	}
	return fmt.Sprintf("io error on entry %q: %v", e.Entry, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IndexError reports a problem with the spectrum index. index.Load returns
// it, with Fatal false, when an index entry is present but cannot be opened
// as a table. An archive with no index entry is not an IndexError: the
// reader falls back to scanning the spectra table, and only the validator
// reports the absence, as a warning. Fatal marks an index inconsistent with
// the spectra table; no check in this module sets it.
type IndexError struct {
	Fatal   bool
	Message string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index error: %s", e.Message)
}

// WorkerPanicked reports that the async pipeline writer's worker goroutine
// died. It is fatal to the write.
type WorkerPanicked struct {
	Recovered interface{}
	Stack     string
}

func (e *WorkerPanicked) Error() string {
	return fmt.Sprintf("async writer worker panicked: %v", e.Recovered)
}

// NotFound indicates a spectrum_id outside the archive's known range. It
// is surfaced as a typed absence, never logged as an error.
type NotFound struct {
	SpectrumID uint32
	Count      uint32
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("spectrum_id %d not found (archive has %d spectra)", e.SpectrumID, e.Count)
}
