package serialport

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/banshee-data/gamma.mca/internal/monitoring"
)

// DefaultPollInterval bounds how long a read blocks before the loop checks
// whether it should keep reading.
const DefaultPollInterval = 100 * time.Millisecond

// ReadLoop pumps bytes from a port's exclusive reader into a handler until
// stopped, the stream ends or a read fails.
type ReadLoop struct {
	reader *Reader
	handle func([]byte)
	keep   atomic.Bool
	done   chan struct{}
	err    error
}

// StartReadLoop acquires the port's reader and starts reading in a new
// goroutine. handle receives a copy of every chunk read. The reader is
// released on every exit path before Done is closed.
func StartReadLoop(p *Port, poll time.Duration, handle func([]byte)) (*ReadLoop, error) {
	r, err := p.AcquireReader()
	if err != nil {
		return nil, err
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if ok, err := r.SetReadTimeout(poll); err != nil {
		monitoring.Warnf("serial %s: %v; stop will wait for the next byte", p.Path(), err)
	} else if !ok {
		monitoring.Debugf("serial %s: device has no read timeout", p.Path())
	}

	l := &ReadLoop{
		reader: r,
		handle: handle,
		done:   make(chan struct{}),
	}
	l.keep.Store(true)
	go l.run()
	return l, nil
}

func (l *ReadLoop) run() {
	defer close(l.done)
	defer l.reader.Release()

	buf := make([]byte, 4096)
	for l.keep.Load() {
		n, err := l.reader.Read(buf)
		if n > 0 && l.keep.Load() {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.handle(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.err = err
			}
			return
		}
	}
}

// Stop asks the loop to exit after its pending read resolves.
func (l *ReadLoop) Stop() {
	l.keep.Store(false)
}

// Done is closed once the loop has exited and released the reader.
func (l *ReadLoop) Done() <-chan struct{} {
	return l.done
}

// Err returns the read error that ended the loop, or nil. It is only
// meaningful after Done is closed.
func (l *ReadLoop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Wait stops the loop and blocks until it exits or ctx is done.
func (l *ReadLoop) Wait(ctx context.Context) error {
	l.Stop()
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
