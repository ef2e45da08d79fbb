// Command plot-run renders the control telemetry of a recorded run to PNG.
//
// Usage:
//
//	plot-run -db lanepilot.db [-run <id>] [-out dir]
//
// Two charts are written: <id>_steering.png with lane offset and steering
// angle, and <id>_motor.png with the motor level. Mission transitions are
// drawn as vertical markers on both.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/mission"
	"github.com/banshee-data/lanepilot/internal/security"
)

var (
	dbPath = flag.String("db", "lanepilot.db", "Run telemetry database")
	runID  = flag.String("run", "", "Run id; empty plots the most recent run")
	outDir = flag.String("out", ".", "Output directory")
)

func main() {
	flag.Parse()

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	id := *runID
	if id == "" {
		runs, err := store.Runs(ctx, 1)
		if err != nil {
			log.Fatal(err)
		}
		if len(runs) == 0 {
			log.Fatalf("%s has no runs", *dbPath)
		}
		id = runs[0].ID
	}

	ticks, err := store.Ticks(ctx, id, 0)
	if err != nil {
		log.Fatal(err)
	}
	transitions, err := store.Transitions(ctx, id)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal(err)
	}
	files, err := plotRun(id, ticks, transitions, *outDir)
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
}

// plotRun writes both charts for one run and returns the file names.
func plotRun(id string, ticks []db.TickRow, transitions []mission.Transition, dir string) ([]string, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("run %s has no ticks", id)
	}
	colors := palette(3)

	offsets := make(plotter.XYs, 0, len(ticks))
	steering := make(plotter.XYs, 0, len(ticks))
	motor := make(plotter.XYs, 0, len(ticks))
	for _, t := range ticks {
		x := float64(t.FrameSeq)
		if t.LaneValid {
			offsets = append(offsets, plotter.XY{X: x, Y: float64(t.LaneOffset)})
		}
		steering = append(steering, plotter.XY{X: x, Y: t.SteeringDegrees})
		motor = append(motor, plotter.XY{X: x, Y: float64(t.MotorLevel)})
	}

	pSteer := plot.New()
	pSteer.Title.Text = fmt.Sprintf("Run %s - lane offset and steering", shortID(id))
	pSteer.X.Label.Text = "Frame"
	pSteer.Y.Label.Text = "Pixels / degrees"
	if len(offsets) > 0 {
		if err := addLine(pSteer, "lane offset (px)", offsets, colors[0]); err != nil {
			return nil, err
		}
	}
	if err := addLine(pSteer, "steering (deg)", steering, colors[1]); err != nil {
		return nil, err
	}

	pMotor := plot.New()
	pMotor.Title.Text = fmt.Sprintf("Run %s - motor level", shortID(id))
	pMotor.X.Label.Text = "Frame"
	pMotor.Y.Label.Text = "Level"
	if err := addLine(pMotor, "motor", motor, colors[2]); err != nil {
		return nil, err
	}

	for _, p := range []*plot.Plot{pSteer, pMotor} {
		markTransitions(p, transitions)
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	name := security.SanitizeFilename(shortID(id))
	steerFile, err := security.Join(dir, name+"_steering.png")
	if err != nil {
		return nil, err
	}
	if err := pSteer.Save(14*vg.Inch, 6*vg.Inch, steerFile); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", steerFile, err)
	}
	motorFile, err := security.Join(dir, name+"_motor.png")
	if err != nil {
		return nil, err
	}
	if err := pMotor.Save(14*vg.Inch, 4*vg.Inch, motorFile); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", motorFile, err)
	}
	return []string{steerFile, motorFile}, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

// markTransitions draws a dashed vertical line at each transition that
// happened on a frame. Transitions at seq 0 come from timers or shutdown.
func markTransitions(p *plot.Plot, transitions []mission.Transition) {
	for _, t := range transitions {
		if t.FrameSeq == 0 {
			continue
		}
		x := float64(t.FrameSeq)
		marker, err := plotter.NewLine(plotter.XYs{{X: x, Y: p.Y.Min}, {X: x, Y: p.Y.Max}})
		if err != nil {
			continue
		}
		marker.Color = color.Gray{Y: 128}
		marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(marker)
	}
}

// palette spreads n colours evenly around the hue wheel.
func palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		colors[i] = colorful.Hsl(360*float64(i)/float64(n), 0.7, 0.45).Clamped()
	}
	return colors
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
