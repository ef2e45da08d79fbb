package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lanepilot/internal/mission"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunMeta describes a run being started.
type RunMeta struct {
	StartedAt time.Time
	Mode      string // "serial", "sim" or "replay"
	Source    string // serial port, course spec or replay dir
	Config    any    // tuning config, stored as JSON
	Version   string
}

// Run is one stored run.
type Run struct {
	ID          string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Mode        string          `json:"mode"`
	Source      string          `json:"source"`
	Config      json.RawMessage `json:"config"`
	Version     string          `json:"version"`
	Transitions int             `json:"transitions"`
	Ticks       int             `json:"ticks"`
}

// TickRow is a stored control tick, flattened for charts and exports.
type TickRow struct {
	At                time.Time `json:"at"`
	FrameSeq          uint64    `json:"frame_seq"`
	State             string    `json:"state"`
	LaneOffset        int       `json:"lane_offset"`
	LaneValid         bool      `json:"lane_valid"`
	BarrierPresent    bool      `json:"barrier_present"`
	BarrierRemoved    bool      `json:"barrier_removed"`
	CrossingConfirmed bool      `json:"crossing_confirmed"`
	Route             string    `json:"route"`
	SteeringDegrees   float64   `json:"steering_degrees"`
	MotorLevel        int       `json:"motor_level"`
}

// StartRun inserts a new run and returns its id.
func (db *DB) StartRun(ctx context.Context, meta RunMeta) (string, error) {
	cfg := []byte("{}")
	if meta.Config != nil {
		b, err := json.Marshal(meta.Config)
		if err != nil {
			return "", fmt.Errorf("failed to encode run config: %w", err)
		}
		cfg = b
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}

	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_unix_nanos, mode, source, config_json, version)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, meta.StartedAt.UnixNano(), meta.Mode, meta.Source, string(cfg), meta.Version)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	opsf("[DB] started run %s (%s %s)", id, meta.Mode, meta.Source)
	return id, nil
}

// EndRun stamps the end time of a run.
func (db *DB) EndRun(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE runs SET ended_unix_nanos = ? WHERE run_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to end run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `
	r.run_id, r.started_unix_nanos, r.ended_unix_nanos, r.mode, r.source, r.config_json, r.version,
	(SELECT COUNT(*) FROM transitions t WHERE t.run_id = r.run_id),
	(SELECT COUNT(*) FROM ticks k WHERE k.run_id = r.run_id)`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r       Run
		started int64
		ended   sql.NullInt64
		cfg     string
	)
	if err := row.Scan(&r.ID, &started, &ended, &r.Mode, &r.Source, &cfg, &r.Version, &r.Transitions, &r.Ticks); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		r.EndedAt = &t
	}
	r.Config = json.RawMessage(cfg)
	return r, nil
}

// Runs lists the most recent runs first. limit <= 0 means no limit.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a single run.
func (db *DB) Run(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return r, nil
}

// InsertTransition stores one mission transition.
func (db *DB) InsertTransition(ctx context.Context, runID string, t mission.Transition) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transitions (run_id, at_unix_nanos, frame_seq, from_state, to_state, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, t.At.UnixNano(), int64(t.FrameSeq), t.From.String(), t.To.String(), t.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// InsertTicks stores a batch of control ticks in one transaction.
func (db *DB) InsertTicks(ctx context.Context, runID string, ticks []mission.ControlTick) error {
	if len(ticks) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tick batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks (run_id, at_unix_nanos, frame_seq, state, lane_offset, lane_valid,
			barrier_present, barrier_removed, crossing_confirmed, route, steering_deg, motor_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, k := range ticks {
		o := k.Observation
		if _, err := stmt.ExecContext(ctx, runID, k.At.UnixNano(), int64(o.FrameSeq), k.State.String(),
			o.LaneOffset, o.LaneValid, o.BarrierPresent, o.BarrierRemoved, o.CrossingConfirmed,
			string(o.Route), k.Command.SteeringDegrees, k.Command.MotorLevel); err != nil {
			return fmt.Errorf("failed to insert tick seq=%d: %w", o.FrameSeq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tick batch: %w", err)
	}
	return nil
}

// Transitions returns the transitions of a run in order.
func (db *DB) Transitions(ctx context.Context, runID string) ([]mission.Transition, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT at_unix_nanos, frame_seq, from_state, to_state, reason
		FROM transitions WHERE run_id = ? ORDER BY transition_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []mission.Transition
	for rows.Next() {
		var (
			at       int64
			seq      int64
			from, to string
			t        mission.Transition
		)
		if err := rows.Scan(&at, &seq, &from, &to, &t.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if t.From, err = mission.ParseState(from); err != nil {
			return nil, err
		}
		if t.To, err = mission.ParseState(to); err != nil {
			return nil, err
		}
		t.At = time.Unix(0, at).UTC()
		t.FrameSeq = uint64(seq)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Ticks returns up to limit ticks of a run ordered by frame. limit <= 0
// means no limit.
func (db *DB) Ticks(ctx context.Context, runID string, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT at_unix_nanos, frame_seq, state, lane_offset, lane_valid, barrier_present,
			barrier_removed, crossing_confirmed, route, steering_deg, motor_level
		FROM ticks WHERE run_id = ? ORDER BY tick_id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var (
			r   TickRow
			at  int64
			seq int64
		)
		if err := rows.Scan(&at, &seq, &r.State, &r.LaneOffset, &r.LaneValid, &r.BarrierPresent,
			&r.BarrierRemoved, &r.CrossingConfirmed, &r.Route, &r.SteeringDegrees, &r.MotorLevel); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		r.At = time.Unix(0, at).UTC()
		r.FrameSeq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}
