// Package importer parses whole spectrum files into histograms: delimited
// text, the device XML format and schema-validated NPESv1 JSON.
package importer

import (
	"errors"
	"time"

	"github.com/banshee-data/gamma.mca/internal/calibration"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

// ErrFormat marks a file that could not be parsed as a whole.
var ErrFormat = errors.New("unsupported or malformed file")

// Result is the outcome of a file import. Spectra that the file does not
// carry are nil.
type Result struct {
	Data        spectrum.Histogram
	Background  spectrum.Histogram
	Calibration *calibration.Coefficients
	Meta        Meta
}

// Meta is the descriptive metadata carried by XML and NPES files.
type Meta struct {
	Name       string
	Location   string
	Time       string
	Notes      string
	DeviceName string
	StartTime  string
	EndTime    string
	// Weight in grams and Volume in milliliters; 0 when unknown.
	Weight float64
	Volume float64
	// Measurement times of the data and background spectra.
	DataTime       time.Duration
	BackgroundTime time.Duration
}

// CalibrationLocked reports whether the file carried an authoritative
// calibration (at least two non-zero coefficients).
func (r Result) CalibrationLocked() bool {
	return r.Calibration != nil && r.Calibration.Locked()
}

// Apply installs the imported spectra into set. Spectra absent from the
// result leave set untouched.
func (r Result) Apply(set *spectrum.Set) {
	if len(r.Data) > 0 {
		set.Replace(spectrum.Data, r.Data, measurementTime(r.Meta.DataTime))
	}
	if len(r.Background) > 0 {
		set.Replace(spectrum.Background, r.Background, measurementTime(r.Meta.BackgroundTime))
	}
}

// AsBackground returns r with a lone data spectrum moved into the background
// slot, the way a delimited file is loaded as a background reference. A
// result that already carries a background is returned unchanged.
func (r Result) AsBackground() Result {
	if len(r.Data) == 0 || len(r.Background) > 0 {
		return r
	}
	r.Background, r.Meta.BackgroundTime = r.Data, r.Meta.DataTime
	r.Data, r.Meta.DataTime = nil, 0
	return r
}

// Has reports whether r carries a spectrum of kind.
func (r Result) Has(kind spectrum.Kind) bool {
	if kind == spectrum.Background {
		return len(r.Background) > 0
	}
	return len(r.Data) > 0
}

// Without returns r with the spectrum of kind removed.
func (r Result) Without(kind spectrum.Kind) Result {
	if kind == spectrum.Background {
		r.Background, r.Meta.BackgroundTime = nil, 0
	} else {
		r.Data, r.Meta.DataTime = nil, 0
	}
	return r
}

func measurementTime(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
