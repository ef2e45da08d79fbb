package actuation

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SerialGateway speaks a newline-terminated text protocol to the controller
// board:
//
//	PING      -> OK      handshake, sent by Init
//	S <us>               steering servo pulse width
//	M <duty>             motor level
type SerialGateway struct {
	path   string
	opts   PortOptions
	cal    Calibration
	open   SerialPortOpener
	pingTO time.Duration

	mu     sync.Mutex
	port   SerialPorter
	reader *bufio.Reader
}

// NewSerialGateway creates a gateway for the board at path. A nil opener
// uses OpenSerialPort.
func NewSerialGateway(path string, opts PortOptions, cal Calibration, opener SerialPortOpener) *SerialGateway {
	if opener == nil {
		opener = OpenSerialPort
	}
	return &SerialGateway{
		path:   path,
		opts:   opts,
		cal:    cal,
		open:   opener,
		pingTO: 2 * time.Second,
	}
}

// Init opens the port, checks that the board answers and drives both
// outputs to neutral. On failure the port is closed again.
func (g *SerialGateway) Init() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.port != nil {
		return nil
	}

	port, err := g.open(g.path, g.opts)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", g.path, err)
	}
	g.port = port
	g.reader = bufio.NewReader(port)

	if err := g.handshake(); err != nil {
		g.closeLocked()
		return err
	}
	if err := g.neutralLocked(); err != nil {
		g.closeLocked()
		return fmt.Errorf("failed to set neutral outputs: %w", err)
	}
	diagf("[SerialGateway] board ready on %s", g.path)
	return nil
}

func (g *SerialGateway) handshake() error {
	if tp, ok := g.port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(g.pingTO); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	if err := g.sendLocked("PING"); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}
	line, err := g.reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("no handshake reply from board: %w", err)
	}
	if reply := strings.TrimSpace(line); reply != "OK" {
		return fmt.Errorf("unexpected handshake reply %q", reply)
	}
	return nil
}

// SetSteering implements Gateway.
func (g *SerialGateway) SetSteering(deg float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.port == nil {
		return ErrNotInitialized
	}
	return g.sendLocked(fmt.Sprintf("S %d", g.cal.SteeringPulse(deg)))
}

// SetMotor implements Gateway.
func (g *SerialGateway) SetMotor(level int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.port == nil {
		return ErrNotInitialized
	}
	return g.sendLocked(fmt.Sprintf("M %d", g.cal.MotorDuty(level)))
}

// Shutdown implements Gateway.
func (g *SerialGateway) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.port == nil {
		return nil
	}
	nerr := g.neutralLocked()
	cerr := g.closeLocked()
	if nerr != nil {
		opsf("[SerialGateway] neutral on shutdown failed: %v", nerr)
		return fmt.Errorf("failed to set neutral outputs: %w", nerr)
	}
	return cerr
}

func (g *SerialGateway) neutralLocked() error {
	if err := g.sendLocked(fmt.Sprintf("M %d", g.cal.MotorDuty(g.cal.MotorNeutral))); err != nil {
		return err
	}
	return g.sendLocked(fmt.Sprintf("S %d", g.cal.SteeringPulse(0)))
}

func (g *SerialGateway) closeLocked() error {
	err := g.port.Close()
	g.port = nil
	g.reader = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// sendLocked writes one command line.
func (g *SerialGateway) sendLocked(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := g.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	tracef("[SerialGateway] > %s", strings.TrimSpace(command))
	return nil
}
