package perception

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/banshee-data/lanepilot/internal/camera"
)

// Filter turns a frame into the binary masks the detectors consume.
type Filter interface {
	// LaneMask marks painted lane and crossing markings.
	LaneMask(f *camera.Frame) *Mask
	// BarrierMask marks pixels of the barrier colour.
	BarrierMask(f *camera.Frame) *Mask
}

// HSVRange selects pixels by hue (degrees) and minimum saturation and value
// (both in [0,1]). A HueMin above HueMax wraps through 0.
type HSVRange struct {
	HueMin float64
	HueMax float64
	SatMin float64
	ValMin float64
}

// Contains reports whether the hue, saturation and value fall inside r.
func (r HSVRange) Contains(h, s, v float64) bool {
	if s < r.SatMin || v < r.ValMin {
		return false
	}
	if r.HueMin <= r.HueMax {
		return h >= r.HueMin && h <= r.HueMax
	}
	return h >= r.HueMin || h <= r.HueMax
}

// ThresholdFilter is the default Filter: a luma threshold for painted
// markings and an HSV window for the barrier.
type ThresholdFilter struct {
	Brightness uint8
	Barrier    HSVRange
}

// LaneMask implements Filter.
func (t ThresholdFilter) LaneMask(f *camera.Frame) *Mask {
	m := NewMask(f.Width, f.Height)
	thr := int(t.Brightness)
	for i := 0; i < f.Width*f.Height; i++ {
		r, g, b := int(f.Pix[i*3]), int(f.Pix[i*3+1]), int(f.Pix[i*3+2])
		// Rec. 601 luma in integer form
		if (299*r+587*g+114*b)/1000 >= thr {
			m.Bits[i] = true
		}
	}
	return m
}

// BarrierMask implements Filter.
func (t ThresholdFilter) BarrierMask(f *camera.Frame) *Mask {
	m := NewMask(f.Width, f.Height)
	for i := 0; i < f.Width*f.Height; i++ {
		c := colorful.Color{
			R: float64(f.Pix[i*3]) / 255,
			G: float64(f.Pix[i*3+1]) / 255,
			B: float64(f.Pix[i*3+2]) / 255,
		}
		h, s, v := c.Hsv()
		if t.Barrier.Contains(h, s, v) {
			m.Bits[i] = true
		}
	}
	return m
}
