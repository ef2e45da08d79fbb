// Package camera defines the frame type shared by the control loop and the
// capture side: drivers, devices and the rate-limited frame source.
package camera

import (
	"errors"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
)

// ErrClosed is returned by a Device after Release.
var ErrClosed = errors.New("camera: device closed")

// Frame is one captured image in packed RGB (3 bytes per pixel, row major).
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Pix       []byte
}

// NewFrame allocates a black frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// At returns the RGB value at (x, y). Out-of-range coordinates return black.
func (f *Frame) At(x, y int) (r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, 0
	}
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes the RGB value at (x, y). Out-of-range coordinates are ignored.
func (f *Frame) Set(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// FillRect paints the half-open rectangle [x0,x1)x[y0,y1), clipped to the frame.
func (f *Frame) FillRect(x0, y0, x1, y1 int, r, g, b uint8) {
	for y := max(y0, 0); y < min(y1, f.Height); y++ {
		for x := max(x0, 0); x < min(x1, f.Width); x++ {
			f.Set(x, y, r, g, b)
		}
	}
}

// Image returns an RGBA copy of the frame.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}

// FromImage converts img into a frame of the requested size. Images of a
// different size are scaled with bilinear interpolation.
func FromImage(img image.Image, width, height int) *Frame {
	src := img
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	f := NewFrame(width, height)
	b := src.Bounds()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			f.Set(x, y, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return f
}

// Settings are the capture parameters requested from a Driver.
type Settings struct {
	Width       int
	Height      int
	FPS         int
	BufferDepth int
}

// Driver opens camera devices.
type Driver interface {
	Open(Settings) (Device, error)
}

// Device is an open camera. It is owned by a single capture goroutine.
type Device interface {
	// Read blocks until the next frame is available. It returns io.EOF when
	// a finite source is exhausted and ErrClosed after Release.
	Read() (*Frame, error)
	Release() error
}
