// Package serialport adapts a serial instrument into a byte stream with a
// single exclusive reader, the discipline the decoder relies on.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	// ErrReaderBusy is returned by AcquireReader while another reader is held.
	ErrReaderBusy = errors.New("serial port reader already acquired")
	// ErrReaderActive is returned by Close while a reader is held.
	ErrReaderActive = errors.New("serial port reader still active")
	// ErrClosed is returned by operations on a closed port.
	ErrClosed = errors.New("serial port closed")
	// ErrWriteFailed is returned when a command was only partially written.
	ErrWriteFailed = errors.New("failed to write to serial port")
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports whose reads can be made to
// return periodically with no data.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the device at path.
type Opener func(path string, mode *serial.Mode) (SerialPorter, error)

// SerialOpener opens real hardware through go.bug.st/serial.
func SerialOpener(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Port wraps an open device. Reads go through the single Reader handed out
// by AcquireReader; commands may be written at any time.
type Port struct {
	path string
	dev  SerialPorter

	mu     sync.Mutex
	reader *Reader
	closed bool

	writeMu sync.Mutex
}

// New wraps an already open device.
func New(path string, dev SerialPorter) *Port {
	return &Port{path: path, dev: dev}
}

// Open opens the serial device at path with the given options.
func Open(path string, opts PortOptions) (*Port, error) {
	return OpenWith(SerialOpener, path, opts)
}

// OpenWith opens path through open.
func OpenWith(open Opener, path string, opts PortOptions) (*Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	dev, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return New(path, dev), nil
}

// Path returns the device path.
func (p *Port) Path() string {
	return p.path
}

// AcquireReader hands out exclusive read access to the port.
func (p *Port) AcquireReader() (*Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.reader != nil {
		return nil, ErrReaderBusy
	}
	p.reader = &Reader{port: p}
	return p.reader, nil
}

// ReaderHeld reports whether a reader is currently acquired.
func (p *Port) ReaderHeld() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reader != nil
}

func (p *Port) release(r *Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == r {
		p.reader = nil
	}
}

// SendCommand writes the trimmed command followed by a newline.
func (p *Port) SendCommand(command string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	line := strings.TrimSpace(command) + "\n"
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	n, err := p.dev.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes the device. It fails with ErrReaderActive while a reader is
// held; stop the read loop and wait for it first.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if p.reader != nil {
		return ErrReaderActive
	}
	p.closed = true
	return p.dev.Close()
}

// Reader is the exclusive read handle of a Port.
type Reader struct {
	port     *Port
	mu       sync.Mutex
	released bool
}

// Read reads from the device.
func (r *Reader) Read(b []byte) (int, error) {
	r.mu.Lock()
	released := r.released
	r.mu.Unlock()
	if released {
		return 0, ErrClosed
	}
	return r.port.dev.Read(b)
}

// SetReadTimeout makes reads return after timeout with no data, when the
// device supports it. It reports whether the timeout was applied.
func (r *Reader) SetReadTimeout(timeout time.Duration) (bool, error) {
	t, ok := r.port.dev.(TimeoutSerialPorter)
	if !ok {
		return false, nil
	}
	if err := t.SetReadTimeout(timeout); err != nil {
		return false, fmt.Errorf("set read timeout: %w", err)
	}
	return true, nil
}

// Release returns the reader to its port. It is safe to call more than once.
func (r *Reader) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()
	r.port.release(r)
}
