package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/banshee-data/lanepilot/internal/queue"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// SourceConfig configures a FrameSource.
type SourceConfig struct {
	Settings     Settings
	QueueDepth   int           // 1 or 2
	RetryBackoff time.Duration // pause after a failed read
}

// SourceStats is a snapshot of capture counters.
type SourceStats struct {
	Captured     uint64      `json:"captured"`
	ReadFailures uint64      `json:"read_failures"`
	Queue        queue.Stats `json:"queue"`
}

// FrameSource captures frames from a Driver at a fixed rate and publishes
// them into a drop-oldest queue. The device is opened, read and released by
// the goroutine running Run.
type FrameSource struct {
	driver  Driver
	cfg     SourceConfig
	clock   timeutil.Clock
	limiter *rate.Limiter
	frames  *queue.DropOldest[*Frame]

	seq          atomic.Uint64
	captured     atomic.Uint64
	readFailures atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFrameSource creates a frame source. A nil clock uses the real clock.
func NewFrameSource(driver Driver, cfg SourceConfig, clock timeutil.Clock) *FrameSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.Settings.FPS > 0 {
		limit = rate.Limit(cfg.Settings.FPS)
	}
	return &FrameSource{
		driver:  driver,
		cfg:     cfg,
		clock:   clock,
		limiter: rate.NewLimiter(limit, 1),
		frames:  queue.New[*Frame](cfg.QueueDepth),
	}
}

// Run opens the device and captures until ctx is cancelled or a finite
// source is exhausted. It returns an error only when the device cannot be
// opened. The frame queue is closed on return.
func (s *FrameSource) Run(ctx context.Context) error {
	defer s.frames.Close()

	dev, err := s.driver.Open(s.cfg.Settings)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer func() {
		if err := dev.Release(); err != nil {
			opsf("[FrameSource] release failed: %v", err)
		}
	}()
	diagf("[FrameSource] capturing %dx%d at %d fps, queue depth %d",
		s.cfg.Settings.Width, s.cfg.Settings.Height, s.cfg.Settings.FPS, s.frames.Cap())

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		f, err := dev.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				diagf("[FrameSource] source exhausted after %d frames", s.captured.Load())
				return nil
			}
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			n := s.readFailures.Add(1)
			opsf("[FrameSource] read failed (%d total): %v", n, err)
			s.clock.Sleep(s.cfg.RetryBackoff)
			continue
		}

		f.Seq = s.seq.Add(1)
		if f.Timestamp.IsZero() {
			f.Timestamp = s.clock.Now()
		}
		s.captured.Add(1)
		if s.frames.Push(f) {
			tracef("[FrameSource] dropped stale frame before seq=%d", f.Seq)
		}
	}
}

// Start runs the capture loop in its own goroutine.
func (s *FrameSource) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.Run(ctx); err != nil {
			opsf("[FrameSource] stopped: %v", err)
		}
	}()
}

// Stop cancels a loop started by Start and waits for it to exit.
func (s *FrameSource) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// NextFrame waits up to timeout for the oldest unread frame.
func (s *FrameSource) NextFrame(timeout time.Duration) (*Frame, bool) {
	return s.frames.Pop(timeout)
}

// NextFrameContext is NextFrame that also returns when ctx is cancelled.
func (s *FrameSource) NextFrameContext(ctx context.Context, timeout time.Duration) (*Frame, bool) {
	return s.frames.PopContext(ctx, timeout)
}

// Exhausted reports whether capture has ended and every frame was consumed.
func (s *FrameSource) Exhausted() bool {
	return s.frames.Drained()
}

// Stats returns the capture counters.
func (s *FrameSource) Stats() SourceStats {
	return SourceStats{
		Captured:     s.captured.Load(),
		ReadFailures: s.readFailures.Load(),
		Queue:        s.frames.Stats(),
	}
}
