package session

import (
	"time"

	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

// StopReason says why a recording ended.
type StopReason int

const (
	StopRequested StopReason = iota
	StopTimeLimit
	StopTransport
)

func (r StopReason) String() string {
	switch r {
	case StopTimeLimit:
		return "time limit"
	case StopTransport:
		return "transport error"
	default:
		return "requested"
	}
}

// RateSummary is the count-rate history of a recording.
type RateSummary struct {
	Instant float64 `json:"instant"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Samples int     `json:"samples"`
}

// RelativeStdDev returns StdDev as a percentage of Mean, or 0 when the mean
// is zero.
func (s RateSummary) RelativeStdDev() float64 {
	if s.Mean == 0 {
		return 0
	}
	return s.StdDev / s.Mean * 100
}

// Snapshot is an immutable copy of the recorder state.
type Snapshot struct {
	SessionID       string
	Recording       bool
	Kind            spectrum.Kind
	Data            spectrum.Histogram
	Background      spectrum.Histogram
	DataCps         []float64
	BackgroundCps   []float64
	Elapsed         time.Duration
	Rate            RateSummary
	TotalData       float64
	TotalBackground float64
	Consistent      bool
	UpdatedAt       time.Time
}

// Progress reports the elapsed recording time against the optional limit.
type Progress struct {
	Elapsed      time.Duration
	Limit        time.Duration
	LimitEnabled bool
}

// Percent returns elapsed time as a rounded percentage of the limit, or 0
// when no limit applies.
func (p Progress) Percent() int {
	if !p.LimitEnabled || p.Limit <= 0 {
		return 0
	}
	return int(float64(p.Elapsed)/float64(p.Limit)*100 + 0.5)
}

// Exceeded reports whether an enabled limit has been passed.
func (p Progress) Exceeded() bool {
	return p.LimitEnabled && p.Elapsed > p.Limit
}

// Observer receives recorder events on the scheduler goroutine. Methods
// must not block.
type Observer interface {
	Redraw(Snapshot)
	Elapsed(Progress)
	Stopped(reason StopReason, err error)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) Redraw(Snapshot)           {}
func (NopObserver) Elapsed(Progress)          {}
func (NopObserver) Stopped(StopReason, error) {}
