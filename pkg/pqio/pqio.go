// Package pqio is the single adapter boundary between mzpeak and
// github.com/parquet-go/parquet-go. Every other package talks to row
// groups, row-group counts, and seek-to-row semantics through the narrow
// interface here instead of importing parquet-go directly, so the
// column-format machinery stays swappable behind one small file.
package pqio

import (
	"io"

	"github.com/parquet-go/parquet-go"
)

// RowWriter appends rows of type T to a stored archive entry, one row
// group per explicit FlushRowGroup call.
type RowWriter[T any] struct {
	w *parquet.GenericWriter[T]
}

// NewRowWriter wraps w (a stored entry's io.Writer) as a row-oriented
// parquet writer for rows of type T, whose field layout is taken from T's
// `parquet` struct tags (see pkg/schema).
func NewRowWriter[T any](w io.Writer) *RowWriter[T] {
	return &RowWriter[T]{w: parquet.NewGenericWriter[T](w)}
}

// Write appends rows to the writer's current (still open) row group.
func (rw *RowWriter[T]) Write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := rw.w.Write(rows)
	return err
}

// FlushRowGroup closes out the current row group, embedding its per-column
// min/max statistics, and starts a new one.
func (rw *RowWriter[T]) FlushRowGroup() error {
	return rw.w.Flush()
}

// Close finalizes the parquet footer. No more rows may be written
// afterward.
func (rw *RowWriter[T]) Close() error {
	return rw.w.Close()
}

// RowReader provides row-group-aware random access to rows of type T
// previously written by a RowWriter[T].
type RowReader[T any] struct {
	file *parquet.File
	r    *parquet.GenericReader[T]
}

// SizedReaderAt is satisfied by *io.SectionReader, which every stored
// entry in this package is opened as (pkg/container.Reader.OpenStored).
type SizedReaderAt interface {
	io.ReaderAt
	Size() int64
}

// OpenRowReader opens a stored entry previously written by RowWriter[T].
func OpenRowReader[T any](ra SizedReaderAt) (*RowReader[T], error) {
	file, err := parquet.OpenFile(ra, ra.Size())
	if err != nil {
		return nil, err
	}
	return &RowReader[T]{
		file: file,
		r:    parquet.NewGenericReader[T](file),
	}, nil
}

// NumRows returns the total row count across every row group.
func (rr *RowReader[T]) NumRows() int64 {
	return rr.file.NumRows()
}

// NumRowGroups returns the number of row groups in the file.
func (rr *RowReader[T]) NumRowGroups() int {
	return len(rr.file.RowGroups())
}

// RowGroupNumRows returns the row count of row group i.
func (rr *RowReader[T]) RowGroupNumRows(i int) int64 {
	return rr.file.RowGroups()[i].NumRows()
}

// SeekToRow repositions the reader so the next Read call returns the row
// at the given global (cross-row-group) row index.
func (rr *RowReader[T]) SeekToRow(row int64) error {
	return rr.r.SeekToRow(row)
}

// Read fills rows with up to len(rows) rows starting at the reader's
// current position, advancing it by the number read.
func (rr *RowReader[T]) Read(rows []T) (int, error) {
	return rr.r.Read(rows)
}

// Close releases resources held by the reader. It does not close the
// underlying ReaderAt.
func (rr *RowReader[T]) Close() error {
	return rr.r.Close()
}

// ColumnNames returns the top-level column names of T's parquet schema, in
// schema order, for schema-contract validation.
func ColumnNames[T any]() []string {
	schema := parquet.SchemaOf(new(T))
	fields := schema.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

// ColumnOptional reports whether the named top-level column of T's schema
// is optional (nullable).
func ColumnOptional[T any](name string) (optional bool, found bool) {
	schema := parquet.SchemaOf(new(T))
	for _, f := range schema.Fields() {
		if f.Name() == name {
			return f.Optional(), true
		}
	}
	return false, false
}

// FileSchema opens ra as a parquet file and returns its top-level column
// names and, per column, whether it is optional, without reading any row.
// The validator uses this to compare an on-disk table's actual schema
// against the schema pkg/schema's row structs declare, rather than
// assuming every archive was produced by this package's own writer.
func FileSchema(ra SizedReaderAt) (names []string, optional map[string]bool, err error) {
	file, err := parquet.OpenFile(ra, ra.Size())
	if err != nil {
		return nil, nil, err
	}
	fields := file.Schema().Fields()
	names = make([]string, len(fields))
	optional = make(map[string]bool, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
		optional[f.Name()] = f.Optional()
	}
	return names, optional, nil
}
