// Package ingest defines the normalized in-memory spectrum record that is
// the "thin waist" between vendor adapters and the streaming writer.
package ingest

import (
	"fmt"
	"math"
)

// Spectrum is one decoded mass-spectrometry measurement event. Required
// fields are plain values; optional metadata is pointers.
type Spectrum struct {
	// Required
	SpectrumID    uint32
	MSLevel       uint8
	RetentionTime float32 // seconds, must be finite
	Polarity      int8    // one of -1, 0, +1

	// Optional / nullable
	ScanNumber *int32

	PrecursorMZ          *float64
	PrecursorCharge      *int32
	PrecursorIntensity   *float32
	IsolationWindowLower *float64
	IsolationWindowUpper *float64
	CollisionEnergy      *float32

	TotalIonCurrent   *float32
	BasePeakMZ        *float64
	BasePeakIntensity *float32
	InjectionTime     *float32

	PixelX *int32
	PixelY *int32
	PixelZ *int32

	// Peak arrays. MZ and Intensity must be equal length; IonMobility,
	// when present, must also match that length.
	MZ          []float64
	Intensity   []float32
	IonMobility []float64 // nil when the modality has no ion-mobility axis
}

// PeakCount returns the number of peaks this spectrum carries.
func (s *Spectrum) PeakCount() int {
	return len(s.MZ)
}

// ValidationIssue names one ingest-contract predicate a Spectrum failed,
// for callers that want to enumerate every violation rather than stop at
// the first (the writer itself always fails fast on the first).
type ValidationIssue struct {
	Field   string
	Message string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// CheckShape validates the per-spectrum predicates that do not depend on
// any other spectrum in the stream: array lengths, ms_level, polarity,
// retention_time, and peak value ranges. Contiguity
// (every archive is written that way) is a cross-spectrum predicate and is checked by the writer.
func (s *Spectrum) CheckShape(requireIonMobility bool) []ValidationIssue {
	var issues []ValidationIssue

	if len(s.Intensity) != len(s.MZ) {
		issues = append(issues, ValidationIssue{"intensity", "length does not match mz"})
	}
	if requireIonMobility {
		if len(s.IonMobility) != len(s.MZ) {
			issues = append(issues, ValidationIssue{"ion_mobility", "length does not match mz for an ion-mobility modality"})
		}
	} else if len(s.IonMobility) != 0 {
		issues = append(issues, ValidationIssue{"ion_mobility", "present but modality has no ion-mobility axis"})
	}

	if s.MSLevel < 1 {
		issues = append(issues, ValidationIssue{"ms_level", "must be >= 1"})
	}
	if s.Polarity != -1 && s.Polarity != 0 && s.Polarity != 1 {
		issues = append(issues, ValidationIssue{"polarity", "must be one of -1, 0, +1"})
	}
	if math.IsNaN(float64(s.RetentionTime)) || math.IsInf(float64(s.RetentionTime), 0) {
		issues = append(issues, ValidationIssue{"retention_time", "must be finite"})
	}

	for i, mz := range s.MZ {
		if math.IsNaN(mz) || math.IsInf(mz, 0) || mz <= 0 {
			issues = append(issues, ValidationIssue{"mz", fmt.Sprintf("peak %d: must be finite and > 0", i)})
			break
		}
	}
	for i, inten := range s.Intensity {
		if math.IsNaN(float64(inten)) || math.IsInf(float64(inten), 0) || inten < 0 {
			issues = append(issues, ValidationIssue{"intensity", fmt.Sprintf("peak %d: must be finite and >= 0", i)})
			break
		}
	}

	return issues
}
