// Package schema defines the on-disk logical schemas (spectra table, peaks
// table, spectrum index, manifest, modality) shared by the writer, reader,
// and validator.
package schema

// SpectrumRow is one row of the spectra table. Required
// fields are plain values; optional/nullable fields are pointers so the
// parquet encoder emits them as `optional` columns.
//
// spectrum_id is tagged for delta encoding: it is strictly increasing by
// exactly 1 between adjacent rows (every archive is written that way), which bit-packed delta
// encoding represents in a handful of bits per row-group regardless of
// row-group size.
type SpectrumRow struct {
	SpectrumID uint32 `parquet:"spectrum_id,delta"`
	ScanNumber *int32 `parquet:"scan_number,optional"`

	MSLevel       uint8   `parquet:"ms_level"`
	RetentionTime float32 `parquet:"retention_time"`
	Polarity      int8    `parquet:"polarity"`

	PrecursorMZ          *float64 `parquet:"precursor_mz,optional"`
	PrecursorCharge      *int32   `parquet:"precursor_charge,optional"`
	PrecursorIntensity   *float32 `parquet:"precursor_intensity,optional"`
	IsolationWindowLower *float64 `parquet:"isolation_window_lower,optional"`
	IsolationWindowUpper *float64 `parquet:"isolation_window_upper,optional"`
	CollisionEnergy      *float32 `parquet:"collision_energy,optional"`

	TotalIonCurrent   *float32 `parquet:"total_ion_current,optional"`
	BasePeakMZ        *float64 `parquet:"base_peak_mz,optional"`
	BasePeakIntensity *float32 `parquet:"base_peak_intensity,optional"`
	InjectionTime     *float32 `parquet:"injection_time,optional"`

	PixelX *int32 `parquet:"pixel_x,optional"`
	PixelY *int32 `parquet:"pixel_y,optional"`
	PixelZ *int32 `parquet:"pixel_z,optional"`

	// PeakOffset is the starting row of this spectrum's peaks in the
	// peaks table; it is monotonically non-decreasing, so it
	// shares the delta encoding hint.
	PeakOffset uint64 `parquet:"peak_offset,delta"`
	PeakCount  uint32 `parquet:"peak_count"`
}

// PeakRow is one row of the peaks table for archives without
// an ion-mobility axis. mz and intensity use the byte-stream-split
// encoding hint (`split`), which the parquet implementation may apply to
// floating point columns for better compression of near-monotonic
// scientific data.
type PeakRow struct {
	SpectrumID uint32  `parquet:"spectrum_id,delta"`
	MZ         float64 `parquet:"mz,split"`
	Intensity  float32 `parquet:"intensity,split"`
}

// PeakRowIM is the peaks-table row for ion-mobility modalities. The
// ion_mobility column exists exactly when the modality has an ion-mobility
// axis, so it is a separate row shape rather than an all-null
// optional column on every archive.
type PeakRowIM struct {
	SpectrumID  uint32  `parquet:"spectrum_id,delta"`
	MZ          float64 `parquet:"mz,split"`
	Intensity   float32 `parquet:"intensity,split"`
	IonMobility float64 `parquet:"ion_mobility,split"`
}

// IndexRow is one row of the spectrum index. RowStart/RowEnd
// are row offsets into the whole peaks table (see DESIGN.md's "row-group
// addressing" note); RowGroup is the row-group number containing the first
// peak, used for pruning-fallback display and diagnostics.
type IndexRow struct {
	SpectrumID uint32 `parquet:"spectrum_id,delta"`
	RowGroup   uint32 `parquet:"row_group"`
	RowStart   uint64 `parquet:"row_start,delta"`
	RowEnd     uint64 `parquet:"row_end,delta"`
}

// ChromatogramPoint is one row of the optional chromatogram companion
// table.
type ChromatogramPoint struct {
	Time      float32 `parquet:"time"`
	Intensity float32 `parquet:"intensity"`
}

// MobilogramPoint is one row of the optional mobilogram companion table.
type MobilogramPoint struct {
	IonMobility float64 `parquet:"ion_mobility"`
	Intensity   float32 `parquet:"intensity"`
}
