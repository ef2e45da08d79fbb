package actuation

import (
	"fmt"
	"sync"
)

// Call is one command seen by a RecordingGateway.
type Call struct {
	Op    string // "init", "steer", "motor" or "shutdown"
	Deg   float64
	Level int
}

func (c Call) String() string {
	switch c.Op {
	case "steer":
		return fmt.Sprintf("steer(%.2f)", c.Deg)
	case "motor":
		return fmt.Sprintf("motor(%d)", c.Level)
	default:
		return c.Op
	}
}

// RecordingGateway is a Gateway that records commands instead of driving
// hardware. It backs simulation runs and tests, and is safe for concurrent
// use so the status API can read it.
type RecordingGateway struct {
	// InitErr, when set, is returned by Init.
	InitErr error

	mu          sync.Mutex
	initialized bool
	calls       []Call
	steering    float64
	motor       int
	neutral     int
	maxCalls    int
}

// NewRecordingGateway creates a gateway whose neutral motor level is
// neutral. It keeps the most recent maxCalls calls; 0 keeps all.
func NewRecordingGateway(neutral, maxCalls int) *RecordingGateway {
	return &RecordingGateway{neutral: neutral, motor: neutral, maxCalls: maxCalls}
}

// Init implements Gateway.
func (r *RecordingGateway) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.InitErr != nil {
		return r.InitErr
	}
	r.initialized = true
	r.record(Call{Op: "init"})
	r.steering, r.motor = 0, r.neutral
	return nil
}

// SetSteering implements Gateway.
func (r *RecordingGateway) SetSteering(deg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return ErrNotInitialized
	}
	r.steering = deg
	r.record(Call{Op: "steer", Deg: deg})
	return nil
}

// SetMotor implements Gateway.
func (r *RecordingGateway) SetMotor(level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return ErrNotInitialized
	}
	r.motor = level
	r.record(Call{Op: "motor", Level: level})
	return nil
}

// Shutdown implements Gateway.
func (r *RecordingGateway) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil
	}
	r.initialized = false
	r.steering, r.motor = 0, r.neutral
	r.record(Call{Op: "shutdown"})
	return nil
}

func (r *RecordingGateway) record(c Call) {
	r.calls = append(r.calls, c)
	if r.maxCalls > 0 && len(r.calls) > r.maxCalls {
		r.calls = append(r.calls[:0], r.calls[len(r.calls)-r.maxCalls:]...)
	}
}

// Calls returns a copy of the recorded calls.
func (r *RecordingGateway) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// MotorLevels returns the recorded motor levels in order.
func (r *RecordingGateway) MotorLevels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, c := range r.calls {
		if c.Op == "motor" {
			out = append(out, c.Level)
		}
	}
	return out
}

// Outputs returns the current steering and motor outputs.
func (r *RecordingGateway) Outputs() (steering float64, motor int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steering, r.motor
}
