package decoder

import "bytes"

type framerState int

const (
	// awaitingFrame: the start of the frame now in the buffer was never seen.
	awaitingFrame framerState = iota
	// frameBoundaryKnown: the buffer starts right after a separator.
	frameBoundaryKnown
)

// framer splits a byte stream on a separator. Complete frames are excised
// from the pending buffer as they are returned, so the buffer only ever
// holds the unterminated tail.
type framer struct {
	sep     []byte
	maxLen  int
	state   framerState
	pending []byte
}

func newFramer(sep string, maxLen int) *framer {
	return &framer{sep: []byte(sep), maxLen: maxLen}
}

// push appends chunk and returns every frame completed by it. reset reports
// that the unterminated tail outgrew maxLen and was discarded.
func (f *framer) push(chunk []byte) (frames [][]byte, reset bool) {
	f.pending = append(f.pending, chunk...)

	start := 0
	for {
		i := bytes.Index(f.pending[start:], f.sep)
		if i < 0 {
			break
		}
		end := start + i
		if f.state == awaitingFrame {
			f.state = frameBoundaryKnown
		} else {
			frames = append(frames, bytes.Clone(f.pending[start:end]))
		}
		start = end + len(f.sep)
	}

	if start > 0 {
		n := copy(f.pending, f.pending[start:])
		f.pending = f.pending[:n]
	}

	if len(f.pending) > f.maxLen {
		f.reset()
		reset = true
	}
	return frames, reset
}

// reset drops the pending tail. The next separator seen closes a frame whose
// start is unknown, so it is discarded.
func (f *framer) reset() {
	f.pending = f.pending[:0]
	f.state = awaitingFrame
}

func (f *framer) buffered() int {
	return len(f.pending)
}
