package mission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/lanepilot/internal/announce"
	"github.com/banshee-data/lanepilot/internal/control"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Config holds the mission tunables.
type Config struct {
	CruiseLevel     int
	StationaryLevel int
	HoldDuration    time.Duration
}

// Steering is the steering output.
type Steering interface {
	SetSteering(deg float64) error
}

// Throttle is the motor output. *control.Governor satisfies it.
type Throttle interface {
	SetTarget(ctx context.Context, level int) error
	Last() int
}

// CrossingResetter re-arms the crossing detector on the processing task.
// *perception.Pipeline satisfies it.
type CrossingResetter interface {
	RequestCrossingReset()
}

// Recorder receives telemetry. Implementations must not block.
type Recorder interface {
	RecordTransition(Transition)
	RecordTick(ControlTick)
}

// Deps are the collaborators of a Machine. Announcer, Crossing and Recorder
// are optional.
type Deps struct {
	PID       *control.PID
	Throttle  Throttle
	Steering  Steering
	Announcer announce.Announcer
	Crossing  CrossingResetter
	Recorder  Recorder
	Clock     timeutil.Clock
}

// Status is a snapshot of the machine for the status API.
type Status struct {
	State           State                  `json:"state"`
	Since           time.Time              `json:"since"`
	Transitions     int                    `json:"transitions"`
	LastCommand     Command                `json:"last_command"`
	LastObservation perception.Observation `json:"last_observation"`
}

// Machine is the mission state machine. Step, Tick and Finish must be called
// from the control task only; Status may be called from anywhere.
type Machine struct {
	cfg  Config
	deps Deps

	state     State
	holdStart time.Time
	command   Command

	mu     sync.Mutex
	status Status
}

// NewMachine creates a machine in AwaitingBarrierRemoval.
func NewMachine(cfg Config, deps Deps) *Machine {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	now := deps.Clock.Now()
	return &Machine{
		cfg:     cfg,
		deps:    deps,
		state:   AwaitingBarrierRemoval,
		command: Command{MotorLevel: cfg.StationaryLevel},
		status: Status{
			State:       AwaitingBarrierRemoval,
			Since:       now,
			LastCommand: Command{MotorLevel: cfg.StationaryLevel},
		},
	}
}

// SetRecorder attaches a telemetry recorder. It must be called before the
// control task starts.
func (m *Machine) SetRecorder(r Recorder) { m.deps.Recorder = r }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Status returns a snapshot for reporting.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Step consumes one observation: it applies any transition the observation
// triggers and then issues the command for the resulting state. Actuation
// errors are returned but leave the state machine consistent.
func (m *Machine) Step(ctx context.Context, obs perception.Observation) error {
	if m.state == Finished {
		return nil
	}
	now := m.deps.Clock.Now()

	switch m.state {
	case AwaitingBarrierRemoval:
		if obs.BarrierRemoved {
			m.enterTracking(now, obs.FrameSeq, "barrier removed", CueStart)
		}
	case Tracking:
		if obs.CrossingConfirmed {
			m.holdStart = now
			m.transition(CrossingHold, now, obs.FrameSeq, "crossing confirmed")
			m.announce(CueCrossing)
		}
	case CrossingHold:
		m.checkHold(now, obs.FrameSeq)
	}

	var err error
	if m.state == Tracking {
		err = m.track(ctx, obs, now)
	} else {
		err = m.hold(ctx)
	}

	m.mu.Lock()
	m.status.LastCommand = m.command
	m.status.LastObservation = obs
	m.mu.Unlock()
	if m.deps.Recorder != nil {
		m.deps.Recorder.RecordTick(ControlTick{At: now, State: m.state, Observation: obs, Command: m.command})
	}
	return err
}

// Tick advances time-based transitions when no observation arrived.
func (m *Machine) Tick(ctx context.Context) error {
	if m.state != CrossingHold {
		return nil
	}
	if m.checkHold(m.deps.Clock.Now(), 0) {
		return nil
	}
	err := m.hold(ctx)
	m.publishCommand()
	return err
}

// Finish moves to Finished and drives the outputs to neutral.
func (m *Machine) Finish(ctx context.Context) error {
	if m.state == Finished {
		return nil
	}
	m.transition(Finished, m.deps.Clock.Now(), 0, "shutdown")
	m.announce(CueStop)
	err := m.hold(ctx)
	m.publishCommand()
	return err
}

func (m *Machine) publishCommand() {
	m.mu.Lock()
	m.status.LastCommand = m.command
	m.mu.Unlock()
}

// checkHold leaves CrossingHold once HoldDuration has elapsed.
func (m *Machine) checkHold(now time.Time, seq uint64) bool {
	if now.Sub(m.holdStart) < m.cfg.HoldDuration {
		return false
	}
	m.enterTracking(now, seq, "hold elapsed", CueResume)
	return true
}

// enterTracking resets the steering controller and re-arms the crossing
// detector on every entry into Tracking.
func (m *Machine) enterTracking(now time.Time, seq uint64, reason, cue string) {
	m.deps.PID.Reset()
	if m.deps.Crossing != nil {
		m.deps.Crossing.RequestCrossingReset()
	}
	m.transition(Tracking, now, seq, reason)
	m.announce(cue)
}

func (m *Machine) transition(to State, now time.Time, seq uint64, reason string) {
	t := Transition{From: m.state, To: to, At: now, FrameSeq: seq, Reason: reason}
	m.state = to
	opsf("[Mission] %s -> %s at seq=%d (%s)", t.From, t.To, seq, reason)

	m.mu.Lock()
	m.status.State = to
	m.status.Since = now
	m.status.Transitions++
	m.mu.Unlock()

	if m.deps.Recorder != nil {
		m.deps.Recorder.RecordTransition(t)
	}
}

func (m *Machine) announce(name string) {
	if m.deps.Announcer != nil {
		m.deps.Announcer.Announce(CueCategory, name)
	}
}

// track runs one PID update and commands cruise speed. An absent lane
// estimate feeds a zero error.
func (m *Machine) track(ctx context.Context, obs perception.Observation, now time.Time) error {
	laneErr := 0.0
	if obs.LaneValid {
		laneErr = float64(obs.LaneOffset)
	}
	at := obs.Timestamp
	if at.IsZero() {
		at = now
	}
	deg := m.deps.PID.Update(laneErr, at)
	tracef("[Mission] seq=%d error=%.0f steer=%.2f", obs.FrameSeq, laneErr, deg)

	serr := m.deps.Steering.SetSteering(deg)
	if serr == nil {
		m.command.SteeringDegrees = deg
	}
	terr := m.deps.Throttle.SetTarget(ctx, m.cfg.CruiseLevel)
	m.command.MotorLevel = m.deps.Throttle.Last()
	return joinActuation(serr, terr)
}

// hold keeps the vehicle stationary with neutral steering.
func (m *Machine) hold(ctx context.Context) error {
	serr := m.deps.Steering.SetSteering(0)
	if serr == nil {
		m.command.SteeringDegrees = 0
	}
	terr := m.deps.Throttle.SetTarget(ctx, m.cfg.StationaryLevel)
	m.command.MotorLevel = m.deps.Throttle.Last()
	return joinActuation(serr, terr)
}

func joinActuation(steer, throttle error) error {
	if steer != nil {
		steer = fmt.Errorf("steering: %w", steer)
	}
	if throttle != nil {
		throttle = fmt.Errorf("throttle: %w", throttle)
	}
	return errors.Join(steer, throttle)
}
