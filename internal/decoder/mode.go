package decoder

import (
	"fmt"
)

// Mode names accepted by NewMode and used as metric labels.
const (
	ModeChronological = "chronological"
	ModeHistogram     = "histogram"
)

// SnapshotLineTerminator separates full-histogram snapshot lines.
const SnapshotLineTerminator = "\r\n"

// Mode selects the decoding algorithm. It is implemented only by
// Chronological and HistogramSnapshot.
type Mode interface {
	Name() string
	isMode()
}

// Chronological decodes one channel value per terminator-delimited frame.
type Chronological struct {
	Terminator     string
	MaxFrameLength int
}

// HistogramSnapshot decodes periodic full-histogram lines, each a list of
// per-channel cumulative counts separated by ValueTerminator, and emits the
// per-channel increase against the previous line.
type HistogramSnapshot struct {
	ValueTerminator string
	MaxLineLength   int
}

func (Chronological) Name() string     { return ModeChronological }
func (HistogramSnapshot) Name() string { return ModeHistogram }
func (Chronological) isMode()          {}
func (HistogramSnapshot) isMode()      {}

// NewMode builds a Mode from its configured name. terminator is the frame
// terminator in chronological mode and the value separator in histogram mode.
func NewMode(name, terminator string, maxFrameLength, maxSnapshotLength int) (Mode, error) {
	switch name {
	case ModeChronological, "chron":
		return Chronological{Terminator: terminator, MaxFrameLength: maxFrameLength}, nil
	case ModeHistogram, "hist":
		return HistogramSnapshot{ValueTerminator: terminator, MaxLineLength: maxSnapshotLength}, nil
	default:
		return nil, fmt.Errorf("unknown decoder mode %q (want %q or %q)", name, ModeChronological, ModeHistogram)
	}
}

func validateMode(m Mode) error {
	switch m := m.(type) {
	case Chronological:
		if m.Terminator == "" {
			return fmt.Errorf("chronological terminator must not be empty")
		}
		if m.MaxFrameLength <= 0 {
			return fmt.Errorf("max frame length must be positive, got %d", m.MaxFrameLength)
		}
	case HistogramSnapshot:
		if m.ValueTerminator == "" {
			return fmt.Errorf("snapshot value terminator must not be empty")
		}
		if m.MaxLineLength <= 0 {
			return fmt.Errorf("max snapshot length must be positive, got %d", m.MaxLineLength)
		}
	case nil:
		return fmt.Errorf("decoder mode is required")
	default:
		return fmt.Errorf("unsupported decoder mode %T", m)
	}
	return nil
}

// framing returns the frame separator and the pending-buffer bound for m.
func framing(m Mode) (sep string, maxLen int) {
	switch m := m.(type) {
	case Chronological:
		return m.Terminator, m.MaxFrameLength
	case HistogramSnapshot:
		return SnapshotLineTerminator, m.MaxLineLength
	}
	return "", 0
}
