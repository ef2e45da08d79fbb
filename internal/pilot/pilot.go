// Package pilot assembles a run: it turns the tuning config into component
// configs and runs the capture, processing and control tasks under one
// errgroup.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lanepilot/internal/actuation"
	"github.com/banshee-data/lanepilot/internal/announce"
	"github.com/banshee-data/lanepilot/internal/api"
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/classify"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/control"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/health"
	"github.com/banshee-data/lanepilot/internal/mission"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/queue"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/version"
)

// Options are the collaborators of a run. Tuning, Driver and Gateway are
// required; the rest are optional.
type Options struct {
	Tuning     *config.TuningConfig
	Driver     camera.Driver
	Gateway    actuation.Gateway
	Classifier classify.Classifier
	Announcer  announce.Announcer
	Store      *db.DB
	Health     *health.Server
	Clock      timeutil.Clock

	Mode   string // "serial", "sim" or "replay", recorded with the run
	Source string
}

// Pilot owns one run.
type Pilot struct {
	opts Options

	source       *camera.FrameSource
	pipeline     *perception.Pipeline
	observations *queue.DropOldest[perception.Observation]
	machine      *mission.Machine
	timeout      time.Duration

	mu       sync.Mutex
	started  time.Time
	runID    string
	recorder *db.Recorder
}

// New validates the tuning config and builds every component.
func New(opts Options) (*Pilot, error) {
	if opts.Tuning == nil {
		opts.Tuning = config.DefaultTuningConfig()
	}
	if opts.Driver == nil {
		return nil, errors.New("no camera driver configured")
	}
	if opts.Gateway == nil {
		return nil, errors.New("no actuation gateway configured")
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	t := opts.Tuning

	p := &Pilot{opts: opts, timeout: t.GetDequeueTimeout()}
	p.source = camera.NewFrameSource(opts.Driver, SourceConfig(t), opts.Clock)

	var bounded *classify.Bounded
	if opts.Classifier != nil {
		bounded = classify.WithTimeout(opts.Classifier, t.GetClassifierTimeout())
	}
	p.pipeline = perception.NewPipeline(PipelineConfig(t), Filter(t), bounded, opts.Clock)
	p.observations = queue.New[perception.Observation](t.GetObservationQueueDepth())

	governor := control.NewGovernor(GovernorConfig(t), opts.Gateway, opts.Clock, t.GetMotorStationaryLevel())
	p.machine = mission.NewMachine(MissionConfig(t), mission.Deps{
		PID:       control.NewPID(PIDConfig(t)),
		Throttle:  governor,
		Steering:  opts.Gateway,
		Announcer: opts.Announcer,
		Crossing:  p.pipeline,
		Clock:     opts.Clock,
	})
	return p, nil
}

// Machine returns the mission state machine.
func (p *Pilot) Machine() *mission.Machine { return p.machine }

// Run initializes the hardware and runs the three tasks until ctx is
// cancelled or the frame source is exhausted and fully drained. The gateway
// is always shut down before Run returns.
func (p *Pilot) Run(ctx context.Context) (err error) {
	gw := p.opts.Gateway
	if err := gw.Init(); err != nil {
		if serr := gw.Shutdown(); serr != nil {
			opsf("[Pilot] shutdown after failed init: %v", serr)
		}
		return fmt.Errorf("failed to initialize actuation: %w", err)
	}
	defer func() {
		if serr := gw.Shutdown(); serr != nil {
			opsf("[Pilot] gateway shutdown: %v", serr)
			err = errors.Join(err, serr)
		}
	}()

	if err := p.startRecording(ctx); err != nil {
		return err
	}
	defer p.stopRecording()

	p.mu.Lock()
	p.started = p.opts.Clock.Now()
	p.mu.Unlock()
	opsf("[Pilot] run started (%s %s)", p.opts.Mode, p.opts.Source)
	p.setOverall(true)
	defer p.setOverall(false)

	g, gctx := errgroup.WithContext(ctx)
	controlCtx, stopAll := context.WithCancel(gctx)
	defer stopAll()

	g.Go(func() error {
		defer p.setServing(health.Capture, false)
		p.setServing(health.Capture, true)
		return p.source.Run(controlCtx)
	})
	g.Go(func() error {
		defer p.setServing(health.Processing, false)
		p.setServing(health.Processing, true)
		return p.pipeline.Run(controlCtx, p.source, p.observations, p.timeout)
	})
	g.Go(func() error {
		defer p.setServing(health.Control, false)
		// once control returns nothing consumes the queues
		defer stopAll()
		p.setServing(health.Control, true)
		return p.machine.Run(controlCtx, p.observations, p.timeout)
	})

	err = g.Wait()
	st := p.machine.Status()
	opsf("[Pilot] run finished in state %s after %d transitions", st.State, st.Transitions)
	return err
}

func (p *Pilot) startRecording(ctx context.Context) error {
	if p.opts.Store == nil {
		return nil
	}
	id, err := p.opts.Store.StartRun(ctx, db.RunMeta{
		StartedAt: p.opts.Clock.Now(),
		Mode:      p.opts.Mode,
		Source:    p.opts.Source,
		Config:    p.opts.Tuning,
		Version:   version.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	rec := db.NewRecorder(p.opts.Store, id, db.RecorderConfig{})
	p.machine.SetRecorder(rec)

	p.mu.Lock()
	p.runID, p.recorder = id, rec
	p.mu.Unlock()
	return nil
}

func (p *Pilot) stopRecording() {
	p.mu.Lock()
	rec, id := p.recorder, p.runID
	p.mu.Unlock()
	if rec == nil {
		return
	}
	rec.Close()
	if err := p.opts.Store.EndRun(context.Background(), id, p.opts.Clock.Now()); err != nil {
		opsf("[Pilot] %v", err)
	}
	st := rec.Stats()
	diagf("[Pilot] recorded %d ticks, %d transitions, %d dropped", st.Ticks, st.Transitions, st.Dropped)
}

func (p *Pilot) setServing(service string, up bool) {
	if p.opts.Health != nil {
		p.opts.Health.SetServing(service, up)
	}
}

func (p *Pilot) setOverall(up bool) {
	if p.opts.Health != nil {
		p.opts.Health.SetOverall(up)
	}
}

// RunID returns the id of the recorded run, or "" when recording is off.
func (p *Pilot) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

// Snapshot implements api.StatusSource.
func (p *Pilot) Snapshot() api.Snapshot {
	p.mu.Lock()
	started, runID, rec := p.started, p.runID, p.recorder
	p.mu.Unlock()

	st := p.machine.Status()
	snap := api.Snapshot{
		Version:      version.Get().String(),
		RunID:        runID,
		Mode:         p.opts.Mode,
		Mission:      st,
		Capture:      p.source.Stats(),
		Processing:   p.pipeline.Stats(),
		Observations: p.observations.Stats(),
		Outputs: api.Outputs{
			SteeringDegrees: st.LastCommand.SteeringDegrees,
			MotorLevel:      st.LastCommand.MotorLevel,
		},
	}
	if !started.IsZero() {
		snap.Uptime = api.FormatUptime(p.opts.Clock.Since(started))
	}
	if rec != nil {
		rs := rec.Stats()
		snap.Recorder = &rs
	}
	return snap
}
