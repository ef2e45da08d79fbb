package perception

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/classify"
	"github.com/banshee-data/lanepilot/internal/queue"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Observation is the per-frame perception result handed to the control task.
type Observation struct {
	LaneOffset        int            `json:"lane_offset"`
	LaneValid         bool           `json:"lane_valid"`
	BarrierPresent    bool           `json:"barrier_present"`
	BarrierRemoved    bool           `json:"barrier_removed"`
	CrossingConfirmed bool           `json:"crossing_confirmed"`
	Route             classify.Label `json:"route"`
	FrameSeq          uint64         `json:"frame_seq"`
	Timestamp         time.Time      `json:"timestamp"`
}

// PipelineConfig wires the scanner and detectors together.
type PipelineConfig struct {
	Scanner            LaneScanner
	Barrier            BarrierConfig
	Crossing           CrossingConfig
	CrossingROI        float64 // crossing ROI starts at this fraction of height
	ClassifierInterval int     // classify every N frames; 0 disables
	StatsEvery         int     // log stats every N frames; 0 disables
}

// PipelineStats summarises recent processing.
type PipelineStats struct {
	FramesProcessed  uint64  `json:"frames_processed"`
	MeanLatencyMs    float64 `json:"mean_latency_ms"`
	StdDevLatencyMs  float64 `json:"stddev_latency_ms"`
	MeanLaneOffset   float64 `json:"mean_lane_offset"`
	LaneValidPercent float64 `json:"lane_valid_percent"`
	CrossingResets   uint64  `json:"crossing_resets"`
}

// FrameReader is the consumer side of a frame source.
type FrameReader interface {
	NextFrameContext(ctx context.Context, timeout time.Duration) (*camera.Frame, bool)
	Exhausted() bool
}

// Pipeline runs the lane scanner and the event detectors on each frame. All
// detector state is owned by the goroutine calling Process or Run; the only
// cross-task input is the crossing reset request.
type Pipeline struct {
	cfg        PipelineConfig
	filter     Filter
	barrier    *BarrierDetector
	crossing   *CrossingDetector
	classifier *classify.Bounded
	clock      timeutil.Clock

	resetCh chan struct{}
	frames  uint64
	route   classify.Label

	// window for periodic stats
	latencies []float64
	offsets   []float64
	valid     int

	mu    sync.Mutex
	stats PipelineStats
}

// NewPipeline creates a pipeline. classifier may be nil.
func NewPipeline(cfg PipelineConfig, filter Filter, classifier *classify.Bounded, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		cfg:        cfg,
		filter:     filter,
		barrier:    NewBarrierDetector(cfg.Barrier),
		crossing:   NewCrossingDetector(cfg.Crossing),
		classifier: classifier,
		clock:      clock,
		resetCh:    make(chan struct{}, 1),
		route:      classify.Unknown,
	}
}

// RequestCrossingReset asks the processing task to reset the crossing
// detector before the next frame. It never blocks; repeated requests
// before the next frame collapse into one.
func (p *Pipeline) RequestCrossingReset() {
	select {
	case p.resetCh <- struct{}{}:
	default:
	}
}

// Process runs perception on one frame.
func (p *Pipeline) Process(ctx context.Context, f *camera.Frame) Observation {
	start := p.clock.Now()

	select {
	case <-p.resetCh:
		p.crossing.Reset()
		p.mu.Lock()
		p.stats.CrossingResets++
		p.mu.Unlock()
		diagf("[Pipeline] crossing detector reset at seq=%d", f.Seq)
	default:
	}

	laneMask := p.filter.LaneMask(f)
	lane := p.cfg.Scanner.Scan(laneMask)

	barrier := p.barrier.Update(p.filter.BarrierMask(f))

	roiTop := int(p.cfg.CrossingROI * float64(laneMask.Height))
	crossing := p.crossing.Update(laneMask.Rows(roiTop, laneMask.Height))

	p.frames++
	if p.cfg.ClassifierInterval > 0 && p.frames%uint64(p.cfg.ClassifierInterval) == 0 {
		p.route = p.classifier.Label(ctx, f)
	}

	obs := Observation{
		LaneOffset:        lane.Offset,
		LaneValid:         lane.Valid,
		BarrierPresent:    barrier.Present,
		BarrierRemoved:    barrier.Removed,
		CrossingConfirmed: crossing,
		Route:             p.route,
		FrameSeq:          f.Seq,
		Timestamp:         f.Timestamp,
	}

	tracef("[Pipeline] seq=%d offset=%d valid=%v barrier=%v(area=%d) removed=%v crossing=%v route=%s",
		f.Seq, lane.Offset, lane.Valid, barrier.Present, barrier.Area, barrier.Removed, crossing, p.route)

	p.record(p.clock.Since(start), lane)
	return obs
}

func (p *Pipeline) record(latency time.Duration, lane LaneEstimate) {
	p.latencies = append(p.latencies, float64(latency)/float64(time.Millisecond))
	if lane.Valid {
		p.offsets = append(p.offsets, float64(lane.Offset))
		p.valid++
	}

	p.mu.Lock()
	p.stats.FramesProcessed = p.frames
	p.mu.Unlock()

	if p.cfg.StatsEvery <= 0 || len(p.latencies) < p.cfg.StatsEvery {
		return
	}

	mean, std := stat.MeanStdDev(p.latencies, nil)
	var laneMean float64
	if len(p.offsets) > 0 {
		laneMean = stat.Mean(p.offsets, nil)
	}
	validPct := 100 * float64(p.valid) / float64(len(p.latencies))

	p.mu.Lock()
	p.stats.MeanLatencyMs = mean
	p.stats.StdDevLatencyMs = std
	p.stats.MeanLaneOffset = laneMean
	p.stats.LaneValidPercent = validPct
	p.mu.Unlock()

	diagf("[Pipeline] frames=%d latency mean=%.2fms std=%.2fms lane mean=%.1f valid=%.0f%%",
		p.frames, mean, std, laneMean, validPct)

	p.latencies = p.latencies[:0]
	p.offsets = p.offsets[:0]
	p.valid = 0
}

// Stats returns the latest processing statistics. Safe to call from any
// goroutine.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run consumes frames from src and publishes observations to out until ctx
// is cancelled or src is exhausted. out is closed on return.
func (p *Pipeline) Run(ctx context.Context, src FrameReader, out *queue.DropOldest[Observation], timeout time.Duration) error {
	defer out.Close()
	for {
		if ctx.Err() != nil {
			return nil
		}
		f, ok := src.NextFrameContext(ctx, timeout)
		if !ok {
			if src.Exhausted() {
				diagf("[Pipeline] frame source exhausted after %d frames", p.frames)
				return nil
			}
			continue
		}
		if out.Push(p.Process(ctx, f)) {
			tracef("[Pipeline] observation queue full, dropped oldest")
		}
	}
}
