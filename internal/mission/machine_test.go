package mission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/actuation"
	"github.com/banshee-data/lanepilot/internal/announce"
	"github.com/banshee-data/lanepilot/internal/control"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/queue"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

const (
	stationary = 10000
	cruise     = 11000
	holdFor    = 3 * time.Second
)

var (
	epoch    = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pidTuned = control.PIDConfig{Kp: 0.25, Ki: 0.0, Kd: 0.125, Min: -30, Max: 30}
)

type memRecorder struct {
	mu          sync.Mutex
	transitions []Transition
	ticks       []ControlTick
}

func (r *memRecorder) RecordTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *memRecorder) RecordTick(t ControlTick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

type resetCounter struct{ n int }

func (r *resetCounter) RequestCrossingReset() { r.n++ }

type harness struct {
	m        *Machine
	gw       *actuation.RecordingGateway
	cues     *announce.Recorder
	resets   *resetCounter
	recorder *memRecorder
	clock    *timeutil.MockClock
	pid      *control.PID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gw:       actuation.NewRecordingGateway(stationary, 0),
		cues:     &announce.Recorder{},
		resets:   &resetCounter{},
		recorder: &memRecorder{},
		clock:    timeutil.NewMockClock(epoch),
		pid:      control.NewPID(pidTuned),
	}
	require.NoError(t, h.gw.Init())
	gov := control.NewGovernor(control.GovernorConfig{
		MaxLevel: 13000, RampFloor: 10800, RampStep: 50, RampDelay: 20 * time.Millisecond,
	}, h.gw, h.clock, stationary)
	h.m = NewMachine(Config{CruiseLevel: cruise, StationaryLevel: stationary, HoldDuration: holdFor}, Deps{
		PID:       h.pid,
		Throttle:  gov,
		Steering:  h.gw,
		Announcer: h.cues,
		Crossing:  h.resets,
		Recorder:  h.recorder,
		Clock:     h.clock,
	})
	return h
}

func (h *harness) step(t *testing.T, obs perception.Observation) {
	t.Helper()
	require.NoError(t, h.m.Step(context.Background(), obs))
}

func TestMachine_WaitsForBarrier(t *testing.T) {
	h := newHarness(t)
	for seq := uint64(1); seq <= 5; seq++ {
		h.step(t, perception.Observation{FrameSeq: seq, BarrierPresent: true, LaneValid: true, LaneOffset: 40})
	}
	assert.Equal(t, AwaitingBarrierRemoval, h.m.State())
	steer, motor := h.gw.Outputs()
	assert.Equal(t, 0.0, steer)
	assert.Equal(t, stationary, motor)
	assert.Empty(t, h.cues.Cues())
	assert.Zero(t, h.pid.State().LastUpdate, "controller idle while waiting")
	assert.Len(t, h.recorder.ticks, 5)
}

func TestMachine_BarrierRemovedStartsTracking(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierPresent: true})
	h.step(t, perception.Observation{FrameSeq: 2, BarrierRemoved: true, LaneValid: true})

	assert.Equal(t, Tracking, h.m.State())
	assert.Equal(t, []string{"mission/start"}, h.cues.Cues())
	assert.Equal(t, 1, h.resets.n)

	levels := h.gw.MotorLevels()
	require.NotEmpty(t, levels)
	assert.Equal(t, cruise, levels[len(levels)-1])
	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1], "ramp is monotonic")
	}
	_, motor := h.gw.Outputs()
	assert.Equal(t, cruise, motor)
	assert.Equal(t, cruise, h.m.Status().LastCommand.MotorLevel)
}

func TestMachine_TrackingSteersWithPID(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierRemoved: true, LaneValid: true})

	ref := control.NewPID(pidTuned)
	ref.Update(0, epoch)

	at := epoch.Add(33 * time.Millisecond)
	h.step(t, perception.Observation{FrameSeq: 2, LaneValid: true, LaneOffset: 12, Timestamp: at})
	want := ref.Update(12, at)

	steer, _ := h.gw.Outputs()
	assert.InDelta(t, want, steer, 1e-9)
	assert.InDelta(t, want, h.m.Status().LastCommand.SteeringDegrees, 1e-9)
	assert.Greater(t, steer, 0.0)
}

func TestMachine_AbsentLaneFeedsZeroError(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierRemoved: true})
	h.step(t, perception.Observation{FrameSeq: 2, LaneValid: false, LaneOffset: 99})

	steer, _ := h.gw.Outputs()
	assert.Equal(t, 0.0, steer)
	assert.Equal(t, 0.0, h.pid.State().PreviousError)
}

func TestMachine_CrossingHoldAndResume(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierRemoved: true, LaneValid: true})
	h.step(t, perception.Observation{FrameSeq: 2, LaneValid: true, LaneOffset: 10})
	h.step(t, perception.Observation{FrameSeq: 3, CrossingConfirmed: true, LaneValid: true, LaneOffset: 10})

	assert.Equal(t, CrossingHold, h.m.State())
	steer, motor := h.gw.Outputs()
	assert.Equal(t, 0.0, steer)
	assert.Equal(t, stationary, motor, "stop applies without ramping")

	h.clock.Advance(holdFor - time.Millisecond)
	h.step(t, perception.Observation{FrameSeq: 4, LaneValid: true, LaneOffset: 10})
	require.NoError(t, h.m.Tick(context.Background()))
	assert.Equal(t, CrossingHold, h.m.State())

	h.clock.Advance(time.Millisecond)
	require.NoError(t, h.m.Tick(context.Background()))
	assert.Equal(t, Tracking, h.m.State())
	assert.Equal(t, 2, h.resets.n, "crossing detector re-armed on resume")
	assert.Equal(t, control.PIDState{}, h.pid.State(), "controller reset on resume")

	assert.Equal(t, []string{"mission/start", "mission/crossing", "mission/resume"}, h.cues.Cues())
}

func TestMachine_HoldExpiresOnObservation(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierRemoved: true})
	h.step(t, perception.Observation{FrameSeq: 2, CrossingConfirmed: true})
	h.clock.Advance(holdFor)
	h.step(t, perception.Observation{FrameSeq: 3, LaneValid: true})

	assert.Equal(t, Tracking, h.m.State())
	_, motor := h.gw.Outputs()
	assert.Equal(t, cruise, motor, "resumes cruise on the same step")
}

func TestMachine_TickOutsideHoldIsNoop(t *testing.T) {
	h := newHarness(t)
	before := len(h.gw.Calls())
	require.NoError(t, h.m.Tick(context.Background()))
	assert.Equal(t, before, len(h.gw.Calls()))
	assert.Equal(t, AwaitingBarrierRemoval, h.m.State())
}

func TestMachine_Finish(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierRemoved: true, LaneValid: true, LaneOffset: 30})
	require.NoError(t, h.m.Finish(context.Background()))
	require.NoError(t, h.m.Finish(context.Background()))

	assert.Equal(t, Finished, h.m.State())
	steer, motor := h.gw.Outputs()
	assert.Equal(t, 0.0, steer)
	assert.Equal(t, stationary, motor)
	assert.Equal(t, []string{"mission/start", "mission/stop"}, h.cues.Cues())
	assert.Equal(t, Command{MotorLevel: stationary}, h.m.Status().LastCommand)

	calls := len(h.gw.Calls())
	h.step(t, perception.Observation{FrameSeq: 2, LaneValid: true, LaneOffset: 30})
	assert.Equal(t, calls, len(h.gw.Calls()), "no commands after finish")
}

func TestMachine_RecordsTransitions(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 7, BarrierRemoved: true})
	h.step(t, perception.Observation{FrameSeq: 8, CrossingConfirmed: true})
	require.NoError(t, h.m.Finish(context.Background()))

	want := []Transition{
		{From: AwaitingBarrierRemoval, To: Tracking, At: epoch, FrameSeq: 7, Reason: "barrier removed"},
		{From: Tracking, To: CrossingHold, At: epoch, FrameSeq: 8, Reason: "crossing confirmed"},
		{From: CrossingHold, To: Finished, At: epoch, Reason: "shutdown"},
	}
	if diff := cmp.Diff(want, h.recorder.transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	st := h.m.Status()
	assert.Equal(t, Finished, st.State)
	assert.Equal(t, 3, st.Transitions)
	require.Len(t, h.recorder.ticks, 2)
	assert.Equal(t, CrossingHold, h.recorder.ticks[1].State)
}

func TestMachine_ActuationErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Shutdown())

	err := h.m.Step(context.Background(), perception.Observation{FrameSeq: 1, BarrierRemoved: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, actuation.ErrNotInitialized)
	assert.Equal(t, Tracking, h.m.State())
	assert.Equal(t, []string{"mission/start"}, h.cues.Cues())
}

func TestMachine_RunDrainsAndFinishes(t *testing.T) {
	h := newHarness(t)
	q := queue.New[perception.Observation](4)
	q.Push(perception.Observation{FrameSeq: 1, BarrierRemoved: true, LaneValid: true})
	q.Push(perception.Observation{FrameSeq: 2, LaneValid: true, LaneOffset: 5})
	q.Close()

	require.NoError(t, h.m.Run(context.Background(), q, 10*time.Millisecond))
	assert.Equal(t, Finished, h.m.State())
	assert.Len(t, h.recorder.ticks, 2)
	assert.Equal(t, []string{"mission/start", "mission/stop"}, h.cues.Cues())
}

func TestMachine_RunTicksWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.step(t, perception.Observation{FrameSeq: 1, BarrierRemoved: true})
	h.step(t, perception.Observation{FrameSeq: 2, CrossingConfirmed: true})
	h.clock.Advance(holdFor)

	q := queue.New[perception.Observation](1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx, q, time.Millisecond) }()

	require.Eventually(t, func() bool {
		return h.m.Status().State == Tracking
	}, time.Second, time.Millisecond, "hold expires without observations")
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, Finished, h.m.State())
}
