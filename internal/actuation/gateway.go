// Package actuation drives the steering servo and the drive motor. The
// Gateway is owned by the control task; implementations need not be safe
// for concurrent use unless noted.
package actuation

import (
	"errors"
)

var (
	// ErrNotInitialized is returned by command methods before Init succeeds
	// or after Shutdown.
	ErrNotInitialized = errors.New("actuation: gateway not initialized")
	// ErrWriteFailed is returned when a command is only partially written.
	ErrWriteFailed = errors.New("actuation: short write to serial port")
)

// Gateway is the hardware actuation boundary.
type Gateway interface {
	// Init brings the hardware up and drives both outputs to neutral.
	Init() error
	// SetSteering commands a steering angle in degrees; positive steers left.
	SetSteering(deg float64) error
	// SetMotor commands a motor level.
	SetMotor(level int) error
	// Shutdown drives both outputs to neutral and releases the hardware.
	// It is idempotent.
	Shutdown() error
}
