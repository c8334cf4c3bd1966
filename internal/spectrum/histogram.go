// Package spectrum holds the channel histograms and the count-rate
// statistics derived from them.
package spectrum

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Histogram holds one count per channel, indexed by channel number.
// Decoded spectra only hold non-negative whole counts; imported files may
// carry -1 for channels the device marked invalid.
type Histogram []float64

// NewHistogram returns a zeroed histogram of n channels.
func NewHistogram(n int) Histogram {
	return make(Histogram, n)
}

// Clone returns a copy of h.
func (h Histogram) Clone() Histogram {
	if h == nil {
		return nil
	}
	out := make(Histogram, len(h))
	copy(out, h)
	return out
}

// Total returns the sum of all non-negative channel counts.
func (h Histogram) Total() float64 {
	var sum float64
	for _, v := range h {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// CPS returns the per-channel count rate over elapsed. The result always has
// the same length as h; a non-positive elapsed time yields all zeros.
func (h Histogram) CPS(elapsed time.Duration) []float64 {
	out := make([]float64, len(h))
	secs := elapsed.Seconds()
	if secs <= 0 {
		return out
	}
	for i, v := range h {
		out[i] = v / secs
	}
	return out
}

// Merge adds one count per value in batch, in order. An empty h is first
// replaced by a zeroed histogram of channelCount channels. Values outside
// h are ignored; the decoder admits v == channelCount, which lands here.
func Merge(h Histogram, batch []int, channelCount int) Histogram {
	if len(h) == 0 {
		h = NewHistogram(channelCount)
	}
	for _, v := range batch {
		if v >= 0 && v < len(h) {
			h[v]++
		}
	}
	return h
}

// Rate returns n events over elapsed as counts per second, computed in
// milliseconds as n / ms * 1000. A non-positive elapsed time yields 0.
func Rate(n int, elapsed time.Duration) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return float64(n) / ms * 1000
}

// WriteCSV writes h one value per line.
func WriteCSV(w io.Writer, h Histogram) error {
	bw := bufio.NewWriter(w)
	for _, v := range h {
		if _, err := bw.WriteString(strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
