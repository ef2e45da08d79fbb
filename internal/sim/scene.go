// Package sim renders a synthetic course for simulation runs and tests: a
// blue barrier across the lane, a painted two-line lane, and a zebra
// crossing.
package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/banshee-data/lanepilot/internal/camera"
)

// Kind is the content of a scene segment.
type Kind int

const (
	// Barrier shows the lane with the barrier in front of it.
	Barrier Kind = iota
	// Clear shows the lane after the barrier has been lifted.
	Clear
	// Lane is an ordinary lane segment.
	Lane
	// Crossing shows the lane with a zebra crossing in the lower image.
	Crossing
)

func (k Kind) String() string {
	switch k {
	case Barrier:
		return "barrier"
	case Clear:
		return "clear"
	case Lane:
		return "lane"
	case Crossing:
		return "crossing"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a Kind name.
func ParseKind(s string) (Kind, error) {
	for k := Barrier; k <= Crossing; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown segment kind %q", s)
}

// Segment is a run of identical frames.
type Segment struct {
	Kind   Kind
	Frames int
	Drift  int // lane centre shift in pixels; positive moves the lane right
}

// Scene describes a course as a list of segments.
type Scene struct {
	Segments      []Segment
	Loop          bool
	LineWidth     int // painted line width in pixels
	LaneHalfWidth int // distance from lane centre to each line; 0 uses 30% of width
	StripeWidth   int // zebra stripe width
	StripeGap     int // gap between zebra stripes
}

// DefaultCourse is the mission course used by the -sim flag: barrier,
// lift, lane, crossing, lane.
func DefaultCourse() Scene {
	return Scene{
		Segments: []Segment{
			{Kind: Barrier, Frames: 30},
			{Kind: Clear, Frames: 5},
			{Kind: Lane, Frames: 120, Drift: 8},
			{Kind: Crossing, Frames: 10},
			{Kind: Lane, Frames: 240, Drift: -6},
		},
	}
}

// ParseCourse reads a course spec such as "barrier:5,clear:3,lane:20".
// A third field sets the drift, e.g. "lane:20:-8".
func ParseCourse(spec string) (Scene, error) {
	var sc Scene
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return Scene{}, fmt.Errorf("invalid segment %q: want kind:frames[:drift]", part)
		}
		kind, err := ParseKind(fields[0])
		if err != nil {
			return Scene{}, err
		}
		seg := Segment{Kind: kind}
		if _, err := fmt.Sscanf(fields[1], "%d", &seg.Frames); err != nil || seg.Frames <= 0 {
			return Scene{}, fmt.Errorf("invalid frame count in %q", part)
		}
		if len(fields) == 3 {
			if _, err := fmt.Sscanf(fields[2], "%d", &seg.Drift); err != nil {
				return Scene{}, fmt.Errorf("invalid drift in %q", part)
			}
		}
		sc.Segments = append(sc.Segments, seg)
	}
	if len(sc.Segments) == 0 {
		return Scene{}, fmt.Errorf("course %q has no segments", spec)
	}
	return sc, nil
}

// TotalFrames returns the number of frames in one pass of the scene.
func (s Scene) TotalFrames() int {
	n := 0
	for _, seg := range s.Segments {
		n += seg.Frames
	}
	return n
}

// Render paints one frame of the given segment.
func (s Scene) Render(width, height int, seg Segment) *camera.Frame {
	f := camera.NewFrame(width, height)
	f.FillRect(0, 0, width, height, 30, 30, 30)

	lw := s.LineWidth
	if lw <= 0 {
		lw = 4
	}
	half := s.LaneHalfWidth
	if half <= 0 {
		half = width * 3 / 10
	}
	center := width/2 + seg.Drift
	f.FillRect(center-half-lw/2, 0, center-half-lw/2+lw, height, 255, 255, 255)
	f.FillRect(center+half-lw/2, 0, center+half-lw/2+lw, height, 255, 255, 255)

	switch seg.Kind {
	case Barrier:
		f.FillRect(width/4, height/4, width*3/4, height*3/4, 20, 60, 230)
	case Crossing:
		sw, gap := s.StripeWidth, s.StripeGap
		if sw <= 0 {
			sw = max(width/32, 6)
		}
		if gap <= 0 {
			gap = sw
		}
		for x := gap / 2; x < width; x += sw + gap {
			f.FillRect(x, height*65/100, x+sw, height*95/100, 255, 255, 255)
		}
	}
	return f
}

// Driver implements camera.Driver over a Scene.
type Driver struct {
	Scene Scene
}

// NewDriver creates a driver for scene.
func NewDriver(scene Scene) *Driver {
	return &Driver{Scene: scene}
}

// Open implements camera.Driver.
func (d *Driver) Open(s camera.Settings) (camera.Device, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("sim: invalid frame size %dx%d", s.Width, s.Height)
	}
	if d.Scene.TotalFrames() == 0 {
		return nil, fmt.Errorf("sim: scene has no frames")
	}
	return &device{scene: d.Scene, width: s.Width, height: s.Height}, nil
}

type device struct {
	mu     sync.Mutex
	scene  Scene
	width  int
	height int
	seg    int
	frame  int
	closed bool
}

func (d *device) Read() (*camera.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, camera.ErrClosed
	}
	for {
		for d.seg < len(d.scene.Segments) && d.frame >= d.scene.Segments[d.seg].Frames {
			d.seg++
			d.frame = 0
		}
		if d.seg < len(d.scene.Segments) {
			break
		}
		if !d.scene.Loop {
			return nil, io.EOF
		}
		d.seg, d.frame = 0, 0
	}
	d.frame++
	return d.scene.Render(d.width, d.height, d.scene.Segments[d.seg]), nil
}

func (d *device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
