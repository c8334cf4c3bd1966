// Package decoder turns raw bytes from a streaming radiation instrument into
// channel values. Chronological instruments send one channel number per
// frame; histogram instruments periodically send their full cumulative
// histogram, which is diffed against the previous snapshot to reconstruct
// individual events.
package decoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/gamma.mca/internal/monitoring"
)

// ErrSaturated is returned by Ingest when the sink is full and the chunk was
// dropped without parsing.
var ErrSaturated = errors.New("decoder sink saturated")

// Defaults used by DefaultConfig.
const (
	DefaultChannelCount      = 4096
	DefaultTerminator        = ";"
	DefaultMaxFrameLength    = 20
	DefaultMaxSnapshotLength = 1 << 16 * 2 * 10
	DefaultMaxSinkSize       = 100000
	DefaultConsoleMemory     = 100000
)

// Config holds the per-instance decoder settings.
type Config struct {
	// ChannelCount is the number of ADC channels. Chronological values must
	// lie in [0, ChannelCount] and snapshot lines must carry exactly
	// ChannelCount fields.
	ChannelCount int
	Mode         Mode
	// MaxSinkSize bounds the number of undrained values before Ingest
	// refuses input.
	MaxSinkSize int
	// ConsoleMemory bounds the console text buffer in bytes.
	ConsoleMemory int
}

// DefaultConfig returns a chronological configuration with the stock
// instrument settings.
func DefaultConfig() Config {
	return Config{
		ChannelCount:  DefaultChannelCount,
		Mode:          Chronological{Terminator: DefaultTerminator, MaxFrameLength: DefaultMaxFrameLength},
		MaxSinkSize:   DefaultMaxSinkSize,
		ConsoleMemory: DefaultConsoleMemory,
	}
}

// Validate checks that the configuration can drive a decoder.
func (c Config) Validate() error {
	if c.ChannelCount <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", c.ChannelCount)
	}
	if c.MaxSinkSize <= 0 {
		return fmt.Errorf("max sink size must be positive, got %d", c.MaxSinkSize)
	}
	if c.ConsoleMemory < 0 {
		return fmt.Errorf("console memory must be non-negative, got %d", c.ConsoleMemory)
	}
	return validateMode(c.Mode)
}

// Decoder accumulates stream bytes and decodes them into channel values.
// It is not safe for concurrent use; callers serialise access.
type Decoder struct {
	cfg      Config
	framer   *framer
	console  consoleBuffer
	baseline []int
	sink     []int
}

// New returns a Decoder for cfg.
func New(cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decoder config: %w", err)
	}
	sep, maxLen := framing(cfg.Mode)
	return &Decoder{
		cfg:     cfg,
		framer:  newFramer(sep, maxLen),
		console: consoleBuffer{limit: cfg.ConsoleMemory},
	}, nil
}

// Config returns the configuration the decoder was built with.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Ingest appends chunk to the pending buffer and decodes every frame it
// completes. If the sink already holds MaxSinkSize values the chunk is
// dropped unparsed and ErrSaturated is returned.
func (d *Decoder) Ingest(chunk []byte) error {
	if err := d.checkSaturation(); err != nil {
		return err
	}
	d.console.write(chunk)

	frames, reset := d.framer.push(chunk)
	if reset {
		monitoring.BufferResets.Inc()
		monitoring.Debugf("decoder: pending buffer exceeded frame bound, discarded")
	}

	switch m := d.cfg.Mode.(type) {
	case Chronological:
		for _, f := range frames {
			d.decodeValue(m, f)
		}
	case HistogramSnapshot:
		for _, f := range frames {
			d.decodeSnapshot(m, f)
		}
	}
	return nil
}

// IngestConsole records chunk in the console buffer without decoding it.
// It is subject to the same saturation check as Ingest.
func (d *Decoder) IngestConsole(chunk []byte) error {
	if err := d.checkSaturation(); err != nil {
		return err
	}
	d.console.write(chunk)
	return nil
}

func (d *Decoder) checkSaturation() error {
	if len(d.sink) >= d.cfg.MaxSinkSize {
		monitoring.SinkSaturations.Inc()
		monitoring.Warnf("decoder sink is saturating (%d values pending), dropping input", len(d.sink))
		return ErrSaturated
	}
	return nil
}

func (d *Decoder) decodeValue(m Chronological, frame []byte) {
	s := strings.TrimSpace(string(frame))
	switch {
	case s == "":
		d.reject(monitoring.RejectEmpty)
		return
	case len(s) >= m.MaxFrameLength:
		d.reject(monitoring.RejectTooLong)
		return
	}
	// Strict on purpose: "12abc" and "12.5" are line noise, not channel 12.
	v, err := strconv.Atoi(s)
	if err != nil {
		d.reject(monitoring.RejectNotInteger)
		return
	}
	if v < 0 || v > d.cfg.ChannelCount {
		d.reject(monitoring.RejectRange)
		return
	}
	monitoring.FramesAccepted.WithLabelValues(ModeChronological).Inc()
	monitoring.EventsDecoded.Inc()
	d.sink = append(d.sink, v)
}

func (d *Decoder) decodeSnapshot(m HistogramSnapshot, line []byte) {
	s := strings.TrimSpace(string(line))
	switch {
	case s == "":
		d.reject(monitoring.RejectEmpty)
		return
	case len(s) >= m.MaxLineLength:
		d.reject(monitoring.RejectTooLong)
		return
	}

	fields := strings.Split(s, m.ValueTerminator)
	// The instrument terminates every value, so the last field is always
	// the empty remainder after the final terminator.
	fields = fields[:len(fields)-1]
	if len(fields) != d.cfg.ChannelCount {
		d.reject(monitoring.RejectFieldCount)
		return
	}

	snapshot := make([]int, len(fields))
	for i, f := range fields {
		// Strict like chronological frames; a garbled count reads as 0
		// rather than its numeric prefix.
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			v = 0
		}
		snapshot[i] = v
	}
	monitoring.FramesAccepted.WithLabelValues(ModeHistogram).Inc()

	if d.baseline == nil {
		d.baseline = snapshot
		return
	}

	emitted := 0
	for ch, v := range snapshot {
		delta := v - d.baseline[ch]
		if delta < 0 {
			monitoring.CounterDecreases.Inc()
			monitoring.Debugf("decoder: channel %d count decreased from %d to %d", ch, d.baseline[ch], v)
			continue
		}
		for n := 0; n < delta; n++ {
			d.sink = append(d.sink, ch)
		}
		emitted += delta
	}
	monitoring.EventsDecoded.Add(float64(emitted))
	d.baseline = snapshot
}

func (d *Decoder) reject(reason string) {
	monitoring.FramesRejected.WithLabelValues(d.cfg.Mode.Name(), reason).Inc()
}

// Drain returns the decoded values and empties the sink.
func (d *Decoder) Drain() []int {
	if len(d.sink) == 0 {
		return nil
	}
	out := d.sink
	d.sink = nil
	return out
}

// Pending returns the number of values waiting in the sink.
func (d *Decoder) Pending() int {
	return len(d.sink)
}

// Buffered returns the number of undecoded bytes held for the next frame.
func (d *Decoder) Buffered() int {
	return d.framer.buffered()
}

// ResetBaseline forgets the previous histogram snapshot, so the next valid
// snapshot becomes the new baseline and produces no output.
func (d *Decoder) ResetBaseline() {
	d.baseline = nil
}

// Flush discards the undecoded buffer and the sink. The console buffer and
// the snapshot baseline are kept.
func (d *Decoder) Flush() {
	d.framer.reset()
	d.sink = nil
}

// Console returns the retained console text.
func (d *Decoder) Console() string {
	return d.console.String()
}

// ClearConsole empties the console buffer.
func (d *Decoder) ClearConsole() {
	d.console.clear()
}
