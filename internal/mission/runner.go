package mission

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// ObservationSource is the consumer side of the observation queue.
type ObservationSource interface {
	PopContext(ctx context.Context, timeout time.Duration) (perception.Observation, bool)
	Drained() bool
}

// Run is the control task. It consumes observations until ctx is cancelled
// or src is closed and drained, ticking the machine whenever a dequeue times
// out. It always finishes the mission before returning.
func (m *Machine) Run(ctx context.Context, src ObservationSource, timeout time.Duration) error {
	defer func() {
		if err := m.Finish(context.Background()); err != nil {
			opsf("[Mission] finish: %v", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		obs, ok := src.PopContext(ctx, timeout)
		if !ok {
			if src.Drained() {
				diagf("[Mission] observation stream ended")
				return nil
			}
			if err := m.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				opsf("[Mission] tick: %v", err)
			}
			continue
		}
		if err := m.Step(ctx, obs); err != nil && !errors.Is(err, context.Canceled) {
			opsf("[Mission] seq=%d: %v", obs.FrameSeq, err)
		}
	}
}
