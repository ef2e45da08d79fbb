package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/classify"
	"github.com/banshee-data/lanepilot/internal/mission"
	"github.com/banshee-data/lanepilot/internal/perception"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStartAndEndRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.StartRun(ctx, RunMeta{
		StartedAt: t0,
		Mode:      "sim",
		Source:    "barrier:5,clear:3",
		Config:    map[string]float64{"pid_kp": 0.25},
		Version:   "test",
	})
	require.NoError(t, err)
	require.Len(t, id, 36)

	run, err := db.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, t0, run.StartedAt)
	assert.Nil(t, run.EndedAt)
	assert.Equal(t, "sim", run.Mode)
	assert.JSONEq(t, `{"pid_kp":0.25}`, string(run.Config))

	require.NoError(t, db.EndRun(ctx, id, t0.Add(time.Minute)))
	run, err = db.Run(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *run.EndedAt)

	_, err = db.Run(ctx, "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.ErrorIs(t, db.EndRun(ctx, "nope", t0), ErrRunNotFound)
}

func TestRunsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.StartRun(ctx, RunMeta{StartedAt: t0.Add(time.Duration(i) * time.Hour), Mode: "sim"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := db.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	runs, err = db.Runs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestTransitionsAndTicks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id, err := db.StartRun(ctx, RunMeta{StartedAt: t0, Mode: "sim"})
	require.NoError(t, err)

	want := []mission.Transition{
		{From: mission.AwaitingBarrierRemoval, To: mission.Tracking, At: t0.Add(time.Second), FrameSeq: 8, Reason: "barrier removed"},
		{From: mission.Tracking, To: mission.CrossingHold, At: t0.Add(2 * time.Second), FrameSeq: 31, Reason: "crossing confirmed"},
	}
	for _, tr := range want {
		require.NoError(t, db.InsertTransition(ctx, id, tr))
	}
	got, err := db.Transitions(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}

	ticks := []mission.ControlTick{
		{
			At:          t0,
			State:       mission.Tracking,
			Observation: perception.Observation{FrameSeq: 9, LaneOffset: -4, LaneValid: true, Route: classify.RouteA},
			Command:     mission.Command{SteeringDegrees: -1.5, MotorLevel: 11000},
		},
		{
			At:          t0.Add(33 * time.Millisecond),
			State:       mission.CrossingHold,
			Observation: perception.Observation{FrameSeq: 10, CrossingConfirmed: true, Route: classify.Unknown},
			Command:     mission.Command{MotorLevel: 10000},
		},
	}
	require.NoError(t, db.InsertTicks(ctx, id, ticks))
	require.NoError(t, db.InsertTicks(ctx, id, nil))

	rows, err := db.Ticks(ctx, id, 0)
	require.NoError(t, err)
	wantRows := []TickRow{
		{At: t0, FrameSeq: 9, State: "tracking", LaneOffset: -4, LaneValid: true, Route: "A", SteeringDegrees: -1.5, MotorLevel: 11000},
		{At: t0.Add(33 * time.Millisecond), FrameSeq: 10, State: "crossing_hold", CrossingConfirmed: true, Route: "unknown", MotorLevel: 10000},
	}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("ticks mismatch (-want +got):\n%s", diff)
	}

	limited, err := db.Ticks(ctx, id, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	run, err := db.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Transitions)
	assert.Equal(t, 2, run.Ticks)

	b, err := json.Marshal(run)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"run_id"`)
}

func TestTicksRejectUnknownRun(t *testing.T) {
	db := newTestDB(t)
	err := db.InsertTicks(context.Background(), "missing", []mission.ControlTick{{At: t0}})
	assert.Error(t, err, "foreign key enforced")
}
