package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons used as the "reason" label of FramesRejected.
const (
	RejectEmpty      = "empty"
	RejectTooLong    = "too_long"
	RejectNotInteger = "not_integer"
	RejectRange      = "out_of_range"
	RejectFieldCount = "field_count"
)

var (
	// FramesAccepted counts decoded frames by decoder mode.
	FramesAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gammamca_frames_accepted_total",
			Help: "Frames decoded into channel values, by decoder mode",
		},
		[]string{"mode"},
	)

	// FramesRejected counts malformed frames that were skipped.
	FramesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gammamca_frames_rejected_total",
			Help: "Malformed frames skipped by the decoder, by mode and reason",
		},
		[]string{"mode", "reason"},
	)

	// EventsDecoded counts channel values appended to the decoder sink.
	EventsDecoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gammamca_events_decoded_total",
			Help: "Channel values appended to the decoder sink",
		},
	)

	// SinkSaturations counts ingest calls refused because the sink was full.
	SinkSaturations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gammamca_sink_saturations_total",
			Help: "Ingest calls refused because the decoder sink was full",
		},
	)

	// BufferResets counts stale pending buffers discarded by the framer.
	BufferResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gammamca_buffer_resets_total",
			Help: "Pending decoder buffers discarded for exceeding the frame length bound",
		},
	)

	// CounterDecreases counts snapshot channels whose value went down.
	CounterDecreases = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gammamca_snapshot_counter_decreases_total",
			Help: "Histogram snapshot channels whose count decreased against the baseline",
		},
	)

	// CountsPerSecond is the most recent instantaneous rate of a recording session.
	CountsPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gammamca_counts_per_second",
			Help: "Instantaneous count rate of the active recording",
		},
	)

	// RecordingSeconds is the accumulated recording time of the active session.
	RecordingSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gammamca_recording_seconds",
			Help: "Accumulated recording time of the active session",
		},
	)

	// Imports counts file imports by format and outcome.
	Imports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gammamca_imports_total",
			Help: "File imports by format and result",
		},
		[]string{"format", "result"},
	)
)
