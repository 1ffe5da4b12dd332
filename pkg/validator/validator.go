// Package validator implements the four-stage archive validator:
// structure, metadata integrity, schema contract, and sampled data
// sanity, accumulated into one Report. The structure and metadata stages
// stop at their first failure; the schema and data stages record every
// finding.
package validator

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mzpeak/mzpeak/pkg/container"
	"github.com/mzpeak/mzpeak/pkg/pqio"
	"github.com/mzpeak/mzpeak/pkg/reader"
	"github.com/mzpeak/mzpeak/pkg/schema"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Category names the validation stage a Check belongs to.
type Category string

const (
	CategoryStructure Category = "structure"
	CategoryMetadata  Category = "metadata"
	CategorySchema    Category = "schema"
	CategoryData      Category = "data"
)

// Check is one named assertion the validator made about the archive.
type Check struct {
	Name     string
	Category Category
	Status   Status
	Message  string
}

// Report accumulates the Checks made against one archive.
type Report struct {
	Checks []Check
}

// IsValid reports whether every check passed or only warned; a single
// fail makes the archive invalid.
func (r *Report) IsValid() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Failures returns every failing check.
func (r *Report) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) add(category Category, name string, status Status, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Name: name, Category: category, Status: status, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) pass(category Category, name string) {
	r.add(category, name, StatusPass, "ok")
}

// sampleSize bounds how many spectra stage 4 reads, so validation stays
// proportional to a quick sanity check rather than a full table scan.
const sampleSize = 1000

// Validate runs all four stages against the archive in ra (size bytes)
// and returns a Report. The metadata stage runs only if the structure
// stage passed, and the schema stage only if the metadata stage passed,
// since an unreadable archive has nothing left to check; the data-sanity
// stage runs after the schema stage whatever its outcome.
func Validate(ra io.ReaderAt, size int64) (*Report, error) {
	report := &Report{}

	archive, err := validateStructure(ra, size, report)
	if err != nil {
		return report, nil
	}

	manifest, err := validateMetadata(archive, report)
	if err != nil {
		return report, nil
	}

	validateSchema(archive, *manifest, report)

	validateDataSanity(ra, size, report)

	return report, nil
}

func validateStructure(ra io.ReaderAt, size int64, report *Report) (*container.Reader, error) {
	if _, err := container.PeekMimeType(ra); err != nil {
		report.add(CategoryStructure, "mimetype-header", StatusFail, "%v", err)
		return nil, err
	}
	report.pass(CategoryStructure, "mimetype-header")

	archive, err := container.NewReader(ra, size)
	if err != nil {
		report.add(CategoryStructure, "archive-layout", StatusFail, "%v", err)
		return nil, err
	}
	report.pass(CategoryStructure, "archive-layout")

	for _, name := range []string{schema.EntryManifest, schema.EntrySpectra, schema.EntryPeaks} {
		if !archive.Has(name) {
			report.add(CategoryStructure, "mandatory-entry:"+name, StatusFail, "missing mandatory entry %q", name)
			return archive, fmt.Errorf("missing entry %q", name)
		}
		report.pass(CategoryStructure, "mandatory-entry:"+name)
	}

	if archive.Has(schema.EntryIndex) {
		report.pass(CategoryStructure, "optional-entry:"+schema.EntryIndex)
	} else {
		report.add(CategoryStructure, "optional-entry:"+schema.EntryIndex, StatusWarn, "no spectrum index; readers fall back to a full scan")
	}

	return archive, nil
}

func validateMetadata(archive *container.Reader, report *Report) (*schema.Manifest, error) {
	mr, err := archive.OpenCompressed(schema.EntryManifest)
	if err != nil {
		report.add(CategoryMetadata, "manifest-readable", StatusFail, "%v", err)
		return nil, err
	}
	defer mr.Close()

	var manifest schema.Manifest
	if err := json.NewDecoder(mr).Decode(&manifest); err != nil {
		report.add(CategoryMetadata, "manifest-parseable", StatusFail, "%v", err)
		return nil, err
	}
	report.pass(CategoryMetadata, "manifest-parseable")

	if err := manifest.Validate(); err != nil {
		report.add(CategoryMetadata, "manifest-consistent", StatusFail, "%v", err)
		return &manifest, err
	}
	report.pass(CategoryMetadata, "manifest-consistent")

	if manifest.VendorHints != nil {
		// vendor_hints carries no semantics beyond lossless round-trip;
		// successfully unmarshaling the block above already demonstrates
		// that.
		report.pass(CategoryMetadata, "vendor-hints-roundtrip")
	}

	return &manifest, nil
}

func validateSchema(archive *container.Reader, manifest schema.Manifest, report *Report) {
	checkTable(archive, schema.EntrySpectra, "spectra", pqio.ColumnNames[schema.SpectrumRow](), report)
	checkTable(archive, schema.EntryPeaks, "peaks", pqio.ColumnNames[schema.PeakRow](), report)

	if archive.Has(schema.EntryIndex) {
		checkTable(archive, schema.EntryIndex, "index", pqio.ColumnNames[schema.IndexRow](), report)
	}

	peaksRA, err := archive.OpenStored(schema.EntryPeaks)
	if err == nil {
		if names, _, err := pqio.FileSchema(peaksRA); err == nil {
			hasIM := false
			for _, name := range names {
				if name == "ion_mobility" {
					hasIM = true
				}
			}
			// The ion_mobility column must exist exactly when the modality
			// has an ion-mobility axis.
			switch {
			case manifest.HasIonMobility && !hasIM:
				report.add(CategorySchema, "ion-mobility-column", StatusFail, "manifest declares ion mobility but peaks table has no ion_mobility column")
			case !manifest.HasIonMobility && hasIM:
				report.add(CategorySchema, "ion-mobility-column", StatusFail, "peaks table has an ion_mobility column but the modality has no ion-mobility axis")
			default:
				report.pass(CategorySchema, "ion-mobility-column")
			}
		}
	}
}

func checkTable(archive *container.Reader, entry, tableName string, want []string, report *Report) {
	ra, err := archive.OpenStored(entry)
	if err != nil {
		report.add(CategorySchema, tableName+"-readable", StatusFail, "%v", err)
		return
	}
	got, _, err := pqio.FileSchema(ra)
	if err != nil {
		report.add(CategorySchema, tableName+"-readable", StatusFail, "%v", err)
		return
	}
	report.pass(CategorySchema, tableName+"-readable")

	present := make(map[string]bool, len(got))
	for _, name := range got {
		present[name] = true
	}
	missing := false
	for _, name := range want {
		if !present[name] {
			report.add(CategorySchema, tableName+"-column:"+name, StatusFail, "required column %q missing", name)
			missing = true
		}
	}
	if !missing {
		report.pass(CategorySchema, tableName+"-columns-present")
	}
}

func validateDataSanity(ra io.ReaderAt, size int64, report *Report) {
	r, err := reader.Open(ra, size)
	if err != nil {
		report.add(CategoryData, "reader-open", StatusFail, "%v", err)
		return
	}
	report.pass(CategoryData, "reader-open")

	it, err := r.IterSpectra()
	if err != nil {
		report.add(CategoryData, "iterate", StatusFail, "%v", err)
		return
	}
	defer it.Close()

	requireIM := r.Manifest().HasIonMobility
	sampled := 0
	issueCount := 0

	var prevRT float32
	hasPrevRT := false
	rtViolations := 0

	expectedID := uint32(0)
	idViolations := 0

	var declaredPeaks, actualPeaks uint64

	for sampled < sampleSize && it.Next() {
		s := it.Spectrum()

		if issues := s.CheckShape(requireIM); len(issues) > 0 {
			issueCount += len(issues)
			if issueCount <= 5 {
				report.add(CategoryData, fmt.Sprintf("spectrum-%d-shape", s.SpectrumID), StatusWarn, "%v", issues[0])
			}
		}

		if hasPrevRT && s.RetentionTime < prevRT {
			rtViolations++
		}
		prevRT = s.RetentionTime
		hasPrevRT = true

		if s.SpectrumID != expectedID {
			idViolations++
		}
		expectedID = s.SpectrumID + 1

		declaredPeaks += uint64(it.DeclaredPeakCount())
		actualPeaks += uint64(len(s.MZ))

		sampled++
	}
	if err := it.Err(); err != nil {
		report.add(CategoryData, "iterate", StatusFail, "%v", err)
		return
	}

	if issueCount == 0 {
		report.pass(CategoryData, "sampled-shape-sanity")
	} else {
		report.add(CategoryData, "sampled-shape-sanity", StatusWarn, "%d shape issue(s) found in %d sampled spectra", issueCount, sampled)
	}

	if rtViolations == 0 {
		report.pass(CategoryData, "retention-time-monotonic")
	} else {
		report.add(CategoryData, "retention-time-monotonic", StatusWarn, "%d retention_time decrease(s) found across %d sampled spectra", rtViolations, sampled)
	}

	if idViolations == 0 {
		report.pass(CategoryData, "spectrum-id-contiguous")
	} else {
		report.add(CategoryData, "spectrum-id-contiguous", StatusFail, "%d spectrum_id gap(s) or out-of-order value(s) found across %d sampled spectra", idViolations, sampled)
	}

	if declaredPeaks == actualPeaks {
		report.pass(CategoryData, "peak-count-matches-peaks-rows")
	} else {
		report.add(CategoryData, "peak-count-matches-peaks-rows", StatusFail, "sampled spectra declare %d total peaks but %d peaks rows were read", declaredPeaks, actualPeaks)
	}
}
