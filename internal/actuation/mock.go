package actuation

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with scripted replies
// and captured writes, so the serial gateway can be tested without a board.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer
	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error
	// WriteError is returned by every Write call while set
	WriteError error
	// ShortWrites makes Write report one byte fewer than requested
	ShortWrites bool
	// CloseError is returned by Close if set
	CloseError error

	Closed      bool
	CloseCalls  int
	ReadTimeout time.Duration
}

// NewTestableSerialPort creates a port. reply is queued for reading, e.g.
// "OK\n" to satisfy the handshake.
func NewTestableSerialPort(reply string) *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBufferString(reply),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read returns queued reply data. An empty buffer behaves like an expired
// read timeout.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	return t.ReadBuffer.Read(p)
}

// Write captures p.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		return 0, t.WriteError
	}
	if t.ShortWrites && len(p) > 0 {
		t.WriteBuffer.Write(p[:len(p)-1])
		return len(p) - 1, nil
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.CloseCalls++
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// Lines returns the written command lines.
func (t *TestableSerialPort) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := strings.TrimRight(t.WriteBuffer.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Opener returns a SerialPortOpener that hands out this port.
func (t *TestableSerialPort) Opener() SerialPortOpener {
	return func(string, PortOptions) (SerialPorter, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.Closed = false
		return t, nil
	}
}
