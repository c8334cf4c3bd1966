package spectrum

import (
	"fmt"
	"time"
)

// Kind selects one of the two spectra of a Set.
type Kind int

const (
	Data Kind = iota
	Background
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses "data" or "background".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "data", "":
		return Data, nil
	case "background", "bg":
		return Background, nil
	default:
		return 0, fmt.Errorf("unknown spectrum kind %q", s)
	}
}

// Set is a measurement spectrum and its background, each with the count
// rate derived from its measurement time.
type Set struct {
	Data          Histogram
	Background    Histogram
	DataCps       []float64
	BackgroundCps []float64

	DataTime       time.Duration
	BackgroundTime time.Duration
}

// Get returns the histogram of kind.
func (s *Set) Get(kind Kind) Histogram {
	if kind == Background {
		return s.Background
	}
	return s.Data
}

// Cps returns the count rate of kind.
func (s *Set) Cps(kind Kind) []float64 {
	if kind == Background {
		return s.BackgroundCps
	}
	return s.DataCps
}

// Replace installs h as the spectrum of kind, measured over elapsed, and
// re-derives its count rate.
func (s *Set) Replace(kind Kind, h Histogram, elapsed time.Duration) {
	cps := h.CPS(elapsed)
	if kind == Background {
		s.Background, s.BackgroundCps, s.BackgroundTime = h, cps, elapsed
		return
	}
	s.Data, s.DataCps, s.DataTime = h, cps, elapsed
}

// Clear empties the spectrum of kind.
func (s *Set) Clear(kind Kind) {
	s.Replace(kind, nil, 0)
}

// Consistent reports whether the data and background spectra can be
// compared channel by channel: true unless both are present with
// different lengths.
func (s *Set) Consistent() bool {
	if len(s.Data) == 0 || len(s.Background) == 0 {
		return true
	}
	return len(s.Data) == len(s.Background)
}
