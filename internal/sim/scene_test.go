package sim

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/camera"
)

func TestParseCourse(t *testing.T) {
	sc, err := ParseCourse("barrier:5, clear:3,lane:20:-8,crossing:4")
	require.NoError(t, err)
	assert.Equal(t, []Segment{
		{Kind: Barrier, Frames: 5},
		{Kind: Clear, Frames: 3},
		{Kind: Lane, Frames: 20, Drift: -8},
		{Kind: Crossing, Frames: 4},
	}, sc.Segments)
	assert.Equal(t, 32, sc.TotalFrames())
}

func TestParseCourseErrors(t *testing.T) {
	for _, spec := range []string{"", "lane", "lane:x", "lane:0", "fog:3", "lane:3:x", "lane:1:2:3"} {
		_, err := ParseCourse(spec)
		assert.Error(t, err, "ParseCourse(%q)", spec)
	}
}

func TestRenderBarrierIsBlue(t *testing.T) {
	f := Scene{}.Render(320, 240, Segment{Kind: Barrier})
	r, g, b := f.At(160, 120)
	assert.Equal(t, [3]uint8{20, 60, 230}, [3]uint8{r, g, b})

	r, _, _ = f.At(160, 10)
	assert.Equal(t, uint8(30), r, "background above the barrier")
}

func TestRenderLaneLines(t *testing.T) {
	f := Scene{}.Render(320, 240, Segment{Kind: Lane, Drift: 10})
	// centre 170, half width 96, line width 4: lines cover [72,76) and [264,268)
	for _, x := range []int{72, 75, 264, 267} {
		r, _, _ := f.At(x, 200)
		assert.Equal(t, uint8(255), r, "x=%d should be painted", x)
	}
	r, _, _ := f.At(170, 200)
	assert.Equal(t, uint8(30), r)
}

func TestRenderCrossingStripes(t *testing.T) {
	f := Scene{}.Render(320, 240, Segment{Kind: Crossing})
	painted := 0
	for x := 0; x < 320; x++ {
		if r, _, _ := f.At(x, 200); r == 255 {
			painted++
		}
	}
	assert.Greater(t, painted, 100, "stripes should cover a large share of the row")

	if r, _, _ := f.At(160, 100); r != 30 {
		t.Errorf("no stripes expected above the crossing band, got r=%d", r)
	}
}

func TestDriverPlaysSegmentsThenEOF(t *testing.T) {
	sc := Scene{Segments: []Segment{{Kind: Barrier, Frames: 2}, {Kind: Lane, Frames: 1}}}
	dev, err := NewDriver(sc).Open(camera.Settings{Width: 64, Height: 48})
	require.NoError(t, err)

	var blue []bool
	for i := 0; i < 3; i++ {
		f, err := dev.Read()
		require.NoError(t, err)
		_, _, b := f.At(32, 24)
		blue = append(blue, b == 230)
	}
	assert.Equal(t, []bool{true, true, false}, blue)

	_, err = dev.Read()
	assert.True(t, errors.Is(err, io.EOF))

	require.NoError(t, dev.Release())
	_, err = dev.Read()
	assert.ErrorIs(t, err, camera.ErrClosed)
}

func TestDriverLoops(t *testing.T) {
	sc := Scene{Segments: []Segment{{Kind: Lane, Frames: 1}}, Loop: true}
	dev, err := NewDriver(sc).Open(camera.Settings{Width: 16, Height: 8})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := dev.Read()
		require.NoError(t, err)
	}
}

func TestDriverOpenErrors(t *testing.T) {
	_, err := NewDriver(DefaultCourse()).Open(camera.Settings{})
	assert.Error(t, err)
	_, err = NewDriver(Scene{}).Open(camera.Settings{Width: 8, Height: 8})
	assert.Error(t, err)
}
