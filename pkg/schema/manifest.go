package schema

import "time"

// FormatVersion is the version of the container format this implementation
// produces. Manifest.Validate only requires format_version to be non-empty;
// it does not compare it with this value.
const FormatVersion = "2.0.0"

// SchemaVersion is the version of the spectra/peaks logical schemas this
// implementation produces.
const SchemaVersion = "1.0.0"

// MimeType is the fixed ASCII string stored verbatim (no trailing newline)
// in the mandatory "mimetype" entry.
const MimeType = "application/vnd.mzpeak+v2"

// Mandatory and optional entry names.
const (
	EntryMimeType     = "mimetype"
	EntryManifest     = "manifest.json"
	EntrySpectra      = "spectra/spectra.parquet"
	EntryPeaks        = "peaks/peaks.parquet"
	EntryIndex        = "index/spectrum_index.parquet"
	EntryChromatogram = "chromatograms/chromatogram.parquet"
	EntryMobilogram   = "mobilograms/mobilogram.parquet"
)

// Row-group target sizes. Tunable, but the writer never
// exceeds these except for the "one spectrum whose peaks overflow a row
// group" edge case.
const (
	SpectraRowGroupSize = 10_000
	PeaksRowGroupSize   = 500_000
)

// VendorHints carries optional provenance about the original source file
// a spectrum stream was converted from.
type VendorHints struct {
	Vendor string `json:"vendor,omitempty"`
	Format string `json:"format,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Manifest is the one-per-archive document written last by the streaming
// writer Unknown fields are ignored by consumers on
// unmarshal (forward compatibility); Go's encoding/json gives
// us that for free.
type Manifest struct {
	FormatVersion  string       `json:"format_version"`
	SchemaVersion  string       `json:"schema_version"`
	Modality       Modality     `json:"modality"`
	HasIonMobility bool         `json:"has_ion_mobility"`
	HasImaging     bool         `json:"has_imaging"`
	SpectrumCount  uint32       `json:"spectrum_count"`
	PeakCount      uint64       `json:"peak_count"`
	Created        time.Time    `json:"created"`
	Converter      string       `json:"converter"`
	VendorHints    *VendorHints `json:"vendor_hints,omitempty"`
}

// Validate checks the structural requirements on a parsed manifest: required fields present,
// modality known, and has_ion_mobility/has_imaging consistent with it.
func (m *Manifest) Validate() error {
	if m.FormatVersion == "" {
		return &manifestFieldError{"format_version", "missing"}
	}
	if m.SchemaVersion == "" {
		return &manifestFieldError{"schema_version", "missing"}
	}
	if !m.Modality.Valid() {
		return &manifestFieldError{"modality", "unknown value " + string(m.Modality)}
	}
	if m.HasIonMobility != m.Modality.HasIonMobility() {
		return &manifestFieldError{"has_ion_mobility", "inconsistent with modality " + string(m.Modality)}
	}
	if m.HasImaging != m.Modality.HasImaging() {
		return &manifestFieldError{"has_imaging", "inconsistent with modality " + string(m.Modality)}
	}
	return nil
}

type manifestFieldError struct {
	Field   string
	Message string
}

func (e *manifestFieldError) Error() string {
	return "manifest field " + e.Field + ": " + e.Message
}
