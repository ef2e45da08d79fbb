package mission

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/sim"
)

func coursePipeline() *perception.Pipeline {
	return perception.NewPipeline(perception.PipelineConfig{
		Scanner:     perception.LaneScanner{RowFraction: 0.5, Lookahead: 5},
		Barrier:     perception.BarrierConfig{AreaThreshold: 5000, RowMin: 0, RowMax: 1, MissCount: 3},
		CrossingROI: 0.6,
		Crossing: perception.CrossingConfig{
			RowStep: 2, MinStripeWidth: 4, MaxStripeWidth: 40,
			MinStripes: 4, RowStreak: 5, FrameStreak: 3,
		},
	}, perception.ThresholdFilter{
		Brightness: 200,
		Barrier:    perception.HSVRange{HueMin: 200, HueMax: 250, SatMin: 0.35, ValMin: 0.2},
	}, nil, nil)
}

// courseRunner returns a function that renders frames of one kind and steps
// them through p and the machine in lockstep, numbering them from 1.
func courseRunner(t *testing.T, h *harness, p *perception.Pipeline) func(kind sim.Kind, frames int) {
	ctx := context.Background()
	var seq uint64
	return func(kind sim.Kind, frames int) {
		t.Helper()
		for i := 0; i < frames; i++ {
			seq++
			f := sim.Scene{}.Render(320, 240, sim.Segment{Kind: kind})
			f.Seq = seq
			require.NoError(t, h.m.Step(ctx, p.Process(ctx, f)), "seq=%d", seq)
		}
	}
}

// TestCourse drives rendered frames through perception and the mission
// machine in lockstep.
func TestCourse(t *testing.T) {
	h := newHarness(t)
	p := coursePipeline()
	h.m.deps.Crossing = p
	run := courseRunner(t, h, p)

	run(sim.Barrier, 5)
	assert.Equal(t, AwaitingBarrierRemoval, h.m.State())
	run(sim.Clear, 3)
	assert.Equal(t, Tracking, h.m.State())
	run(sim.Lane, 20)
	assert.Equal(t, Tracking, h.m.State())
	run(sim.Crossing, 4)
	assert.Equal(t, CrossingHold, h.m.State())

	h.clock.Advance(holdFor)
	run(sim.Crossing, 1)
	assert.Equal(t, Tracking, h.m.State())
	run(sim.Lane, 5)
	assert.Equal(t, Tracking, h.m.State(), "re-armed detector needs a fresh streak")

	want := []Transition{
		{From: AwaitingBarrierRemoval, To: Tracking, At: epoch, FrameSeq: 8, Reason: "barrier removed"},
		{From: Tracking, To: CrossingHold, At: epoch, FrameSeq: 31, Reason: "crossing confirmed"},
		{From: CrossingHold, To: Tracking, At: epoch.Add(holdFor), FrameSeq: 33, Reason: "hold elapsed"},
	}
	if diff := cmp.Diff(want, h.recorder.transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"mission/start", "mission/crossing", "mission/resume"}, h.cues.Cues())
	assert.Equal(t, uint64(2), p.Stats().CrossingResets)

	_, motor := h.gw.Outputs()
	assert.Equal(t, cruise, motor)
}

// A hold that ends while the car is still on the marking must not confirm
// the same crossing again.
func TestCourse_HoldEndsOnMarking(t *testing.T) {
	h := newHarness(t)
	p := coursePipeline()
	h.m.deps.Crossing = p
	run := courseRunner(t, h, p)

	run(sim.Barrier, 5)
	run(sim.Clear, 3)
	run(sim.Lane, 5)
	run(sim.Crossing, 4)
	require.Equal(t, CrossingHold, h.m.State())

	h.clock.Advance(holdFor)
	run(sim.Crossing, 5)
	assert.Equal(t, Tracking, h.m.State(), "still on the marking after the hold")

	// Leaving the marking re-arms the detector for the next crossing.
	run(sim.Lane, 1)
	run(sim.Crossing, 3)
	assert.Equal(t, CrossingHold, h.m.State())

	want := []Transition{
		{From: AwaitingBarrierRemoval, To: Tracking, At: epoch, FrameSeq: 8, Reason: "barrier removed"},
		{From: Tracking, To: CrossingHold, At: epoch, FrameSeq: 16, Reason: "crossing confirmed"},
		{From: CrossingHold, To: Tracking, At: epoch.Add(holdFor), FrameSeq: 18, Reason: "hold elapsed"},
		{From: Tracking, To: CrossingHold, At: epoch.Add(holdFor), FrameSeq: 26, Reason: "crossing confirmed"},
	}
	if diff := cmp.Diff(want, h.recorder.transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"mission/start", "mission/crossing", "mission/resume", "mission/crossing"}, h.cues.Cues())
	assert.Equal(t, uint64(2), p.Stats().CrossingResets)
}
