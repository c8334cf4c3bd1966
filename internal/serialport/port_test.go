package serialport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestOpenWith(t *testing.T) {
	dev := NewTestableSerialPort()
	var gotPath string
	var gotMode *serial.Mode
	open := func(path string, mode *serial.Mode) (SerialPorter, error) {
		gotPath, gotMode = path, mode
		return dev, nil
	}

	p, err := OpenWith(open, "/dev/ttyUSB0", PortOptions{BaudRate: 115200})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", p.Path())
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 115200, gotMode.BaudRate)

	failing := func(string, *serial.Mode) (SerialPorter, error) { return nil, errors.New("no such device") }
	_, err = OpenWith(failing, "/dev/missing", PortOptions{})
	assert.ErrorContains(t, err, "no such device")

	_, err = OpenWith(open, "/dev/ttyUSB0", PortOptions{Parity: "?"})
	assert.Error(t, err)
}

func TestExclusiveReader(t *testing.T) {
	dev := NewTestableSerialPort()
	p := New("/dev/test", dev)

	r, err := p.AcquireReader()
	require.NoError(t, err)
	assert.True(t, p.ReaderHeld())

	_, err = p.AcquireReader()
	assert.ErrorIs(t, err, ErrReaderBusy)
	assert.ErrorIs(t, p.Close(), ErrReaderActive)
	assert.False(t, dev.IsClosed())

	r.Release()
	r.Release()
	assert.False(t, p.ReaderHeld())

	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed, "released reader must not read")

	require.NoError(t, p.Close())
	assert.True(t, dev.IsClosed())
	require.NoError(t, p.Close(), "second close is a no-op")

	_, err = p.AcquireReader()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSendCommand(t *testing.T) {
	dev := NewTestableSerialPort()
	p := New("/dev/test", dev)

	require.NoError(t, p.SendCommand("  read info \n"))
	require.NoError(t, p.SendCommand("reset"))
	assert.Equal(t, "read info\nreset\n", string(dev.GetWrittenData()))

	dev.ShortWrite = true
	assert.ErrorIs(t, p.SendCommand("x"), ErrWriteFailed)
	dev.ShortWrite = false

	boom := errors.New("unplugged")
	dev.WriteError = boom
	assert.ErrorIs(t, p.SendCommand("x"), boom)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.SendCommand("x"), ErrClosed)
}

type chunkCollector struct {
	mu   sync.Mutex
	data []byte
}

func (c *chunkCollector) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, b...)
}

func (c *chunkCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.data)
}

func TestReadLoop_StopReleasesReader(t *testing.T) {
	dev := NewTestableSerialPort()
	p := New("/dev/test", dev)
	var got chunkCollector

	loop, err := StartReadLoop(p, 5*time.Millisecond, got.add)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, dev.ReadTimeout)

	_, err = StartReadLoop(p, 5*time.Millisecond, got.add)
	assert.ErrorIs(t, err, ErrReaderBusy, "only one read loop per port")

	dev.AddReadData([]byte("x;1;2;"))
	assert.Eventually(t, func() bool { return got.String() == "x;1;2;" }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Wait(ctx))
	assert.NoError(t, loop.Err())
	assert.False(t, p.ReaderHeld())
	require.NoError(t, p.Close())
}

func TestReadLoop_EndOfStream(t *testing.T) {
	dev := NewTestableSerialPort()
	dev.AddReadData([]byte("abc"))
	p := New("/dev/test", dev)

	// A zero poll interval selects the default; clear it so the empty
	// buffer reads as end of stream.
	loop, err := StartReadLoop(p, 0, func([]byte) {})
	require.NoError(t, err)
	dev.SetReadTimeout(0)

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not finish at end of stream")
	}
	assert.NoError(t, loop.Err())
	assert.False(t, p.ReaderHeld())
}

func TestReadLoop_ReadErrorPropagates(t *testing.T) {
	dev := NewTestableSerialPort()
	boom := errors.New("device disconnected")
	dev.ReadError = boom
	p := New("/dev/test", dev)

	loop, err := StartReadLoop(p, time.Millisecond, func([]byte) {})
	require.NoError(t, err)

	<-loop.Done()
	assert.ErrorIs(t, loop.Err(), boom)
	assert.False(t, p.ReaderHeld())
}

func TestReadLoop_WaitHonoursContext(t *testing.T) {
	blocking := &blockingPort{release: make(chan struct{})}
	p := New("/dev/block", blocking)

	loop, err := StartReadLoop(p, time.Millisecond, func([]byte) {})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loop.Wait(ctx), context.DeadlineExceeded)
	assert.Nil(t, loop.Err(), "Err is nil until the loop has exited")

	close(blocking.release)
	<-loop.Done()
	assert.False(t, p.ReaderHeld())
}

// blockingPort has no read timeout, so a read only resolves when released.
type blockingPort struct {
	release chan struct{}
}

func (b *blockingPort) Read(p []byte) (int, error) {
	<-b.release
	return 0, nil
}
func (b *blockingPort) Write(p []byte) (int, error) { return len(p), nil }
func (b *blockingPort) Close() error                { return nil }
