package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lanepilot/internal/mission"
)

// RecorderConfig sizes the telemetry writer.
type RecorderConfig struct {
	Depth         int           // pending ticks before new ones are dropped
	BatchSize     int           // ticks per insert transaction
	FlushInterval time.Duration // upper bound on how long a tick waits
}

// RecorderStats counts what the recorder did.
type RecorderStats struct {
	Ticks       uint64 `json:"ticks"`
	Transitions uint64 `json:"transitions"`
	Dropped     uint64 `json:"dropped"`
	Errors      uint64 `json:"errors"`
}

// Recorder writes mission telemetry for one run from a background
// goroutine. RecordTick and RecordTransition never block the control task:
// when the buffer is full the record is dropped and counted.
type Recorder struct {
	db    *DB
	runID string
	cfg   RecorderConfig

	ticks       chan mission.ControlTick
	transitions chan mission.Transition

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written     atomic.Uint64
	transitionN atomic.Uint64
	dropped     atomic.Uint64
	errors      atomic.Uint64
}

// NewRecorder starts a recorder for runID.
func NewRecorder(db *DB, runID string, cfg RecorderConfig) *Recorder {
	if cfg.Depth <= 0 {
		cfg.Depth = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	r := &Recorder{
		db:          db,
		runID:       runID,
		cfg:         cfg,
		ticks:       make(chan mission.ControlTick, cfg.Depth),
		transitions: make(chan mission.Transition, 64),
		done:        make(chan struct{}),
	}
	go r.loop()
	return r
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// RecordTick implements mission.Recorder.
func (r *Recorder) RecordTick(t mission.ControlTick) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ticks <- t:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			opsf("[Recorder] tick buffer full, %d dropped", n)
		}
	}
}

// RecordTransition implements mission.Recorder.
func (r *Recorder) RecordTransition(t mission.Transition) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.transitions <- t:
	default:
		r.dropped.Add(1)
		opsf("[Recorder] dropped transition %s -> %s", t.From, t.To)
	}
}

// Close flushes everything buffered and stops the writer. It is safe to
// call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ticks)
		close(r.transitions)
	}
	r.mu.Unlock()
	<-r.done
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Ticks:       r.written.Load(),
		Transitions: r.transitionN.Load(),
		Dropped:     r.dropped.Load(),
		Errors:      r.errors.Load(),
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]mission.ControlTick, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.db.InsertTicks(context.Background(), r.runID, batch); err != nil {
			r.errors.Add(1)
			opsf("[Recorder] %v", err)
		} else {
			r.written.Add(uint64(len(batch)))
			tracef("[Recorder] wrote %d ticks", len(batch))
		}
		batch = batch[:0]
	}

	ticks, transitions := r.ticks, r.transitions
	for ticks != nil || transitions != nil {
		select {
		case t, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			batch = append(batch, t)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case t, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if err := r.db.InsertTransition(context.Background(), r.runID, t); err != nil {
				r.errors.Add(1)
				opsf("[Recorder] %v", err)
				continue
			}
			r.transitionN.Add(1)
		case <-ticker.C:
			flush()
		}
	}
	flush()
}
