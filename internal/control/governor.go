package control

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Motor is the actuator the governor drives.
type Motor interface {
	SetMotor(level int) error
}

// GovernorConfig holds the ramp tunables.
type GovernorConfig struct {
	MaxLevel  int
	RampFloor int           // acceleration starts no lower than this
	RampStep  int           // increment per ramp write
	RampDelay time.Duration // pause between ramp writes
}

// Governor turns motor targets into rate-limited writes. Increases ramp up
// from max(RampFloor, last) in RampStep increments; decreases apply at once.
type Governor struct {
	cfg   GovernorConfig
	motor Motor
	clock timeutil.Clock
	last  int
}

// NewGovernor creates a governor whose last commanded level is initial.
func NewGovernor(cfg GovernorConfig, motor Motor, clock timeutil.Clock, initial int) *Governor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.RampStep <= 0 {
		cfg.RampStep = 1
	}
	return &Governor{cfg: cfg, motor: motor, clock: clock, last: initial}
}

// Last returns the most recently written level.
func (g *Governor) Last() int { return g.last }

// SetTarget drives the motor to level. It blocks for the length of a ramp
// and returns ctx.Err() if cancelled between steps, leaving Last at the
// final level written.
func (g *Governor) SetTarget(ctx context.Context, level int) error {
	target := min(max(level, 0), g.cfg.MaxLevel)
	if target <= g.last {
		return g.write(target)
	}

	next := max(g.cfg.RampFloor, g.last)
	if next == g.last {
		next += g.cfg.RampStep
	}
	diagf("[Governor] ramp %d -> %d from %d", g.last, target, next)
	for next < target {
		if err := g.write(next); err != nil {
			return err
		}
		g.clock.Sleep(g.cfg.RampDelay)
		if err := ctx.Err(); err != nil {
			opsf("[Governor] ramp cancelled at %d (target %d)", g.last, target)
			return err
		}
		next += g.cfg.RampStep
	}
	return g.write(target)
}

func (g *Governor) write(level int) error {
	if err := g.motor.SetMotor(level); err != nil {
		return fmt.Errorf("failed to set motor level %d: %w", level, err)
	}
	tracef("[Governor] motor=%d", level)
	g.last = level
	return nil
}
