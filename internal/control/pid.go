// Package control holds the steering PID and the motor ramp governor. Both
// are owned by the control task and are not safe for concurrent use.
package control

import (
	"math"
	"time"
)

// PIDConfig holds the steering controller gains and limits.
type PIDConfig struct {
	Kp, Ki, Kd float64
	Min, Max   float64       // output clamp
	DefaultDT  time.Duration // used on the first update and for non-positive dt
}

// PIDState is a snapshot of the controller memory.
type PIDState struct {
	PreviousError float64
	Integral      float64
	LastUpdate    time.Time // zero before the first update
}

// PID is a positional PID controller with a saturating output clamp.
type PID struct {
	cfg   PIDConfig
	state PIDState
}

// NewPID creates a controller. A non-positive DefaultDT becomes 20ms.
func NewPID(cfg PIDConfig) *PID {
	if cfg.DefaultDT <= 0 {
		cfg.DefaultDT = 20 * time.Millisecond
	}
	return &PID{cfg: cfg}
}

// Update feeds the error observed at now and returns the clamped output.
// The integral is accumulated before the output is computed.
func (p *PID) Update(e float64, now time.Time) float64 {
	dt := p.cfg.DefaultDT.Seconds()
	if !p.state.LastUpdate.IsZero() {
		if d := now.Sub(p.state.LastUpdate).Seconds(); d > 0 {
			dt = d
		}
	}

	p.state.Integral += e * dt
	derivative := (e - p.state.PreviousError) / dt
	out := p.cfg.Kp*e + p.cfg.Ki*p.state.Integral + p.cfg.Kd*derivative

	p.state.PreviousError = e
	p.state.LastUpdate = now

	if math.IsNaN(out) {
		return 0
	}
	return math.Max(p.cfg.Min, math.Min(p.cfg.Max, out))
}

// Reset clears the controller memory.
func (p *PID) Reset() {
	p.state = PIDState{}
}

// State returns the controller memory.
func (p *PID) State() PIDState {
	return p.state
}
