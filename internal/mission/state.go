// Package mission sequences the run: wait for the barrier to lift, follow
// the lane, stop briefly at the crossing, then carry on.
package mission

import (
	"fmt"
	"time"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// State is the mission phase.
type State int

const (
	AwaitingBarrierRemoval State = iota
	Tracking
	CrossingHold
	Finished
)

func (s State) String() string {
	switch s {
	case AwaitingBarrierRemoval:
		return "awaiting_barrier_removal"
	case Tracking:
		return "tracking"
	case CrossingHold:
		return "crossing_hold"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Command is the actuation output of one control step.
type Command struct {
	SteeringDegrees float64 `json:"steering_degrees"` // positive steers left
	MotorLevel      int     `json:"motor_level"`
}

// Transition records one state change.
type Transition struct {
	From     State     `json:"from"`
	To       State     `json:"to"`
	At       time.Time `json:"at"`
	FrameSeq uint64    `json:"frame_seq"`
	Reason   string    `json:"reason"`
}

// ControlTick records one processed observation and the command it produced.
type ControlTick struct {
	At          time.Time              `json:"at"`
	State       State                  `json:"state"`
	Observation perception.Observation `json:"observation"`
	Command     Command                `json:"command"`
}

// Announcement cues, played from the "mission" category.
const (
	CueCategory = "mission"
	CueStart    = "start"
	CueCrossing = "crossing"
	CueResume   = "resume"
	CueStop     = "stop"
)

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for _, st := range []State{AwaitingBarrierRemoval, Tracking, CrossingHold, Finished} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown mission state %q", s)
}

// UnmarshalText reads a state name.
func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
