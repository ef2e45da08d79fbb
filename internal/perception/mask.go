package perception

// Mask is a binary image. True marks a foreground pixel.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// At reports whether (x, y) is foreground. Out-of-range reads are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set marks (x, y). Out-of-range writes are ignored.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Bits[y*m.Width+x] = v
}

// Rows returns a copy of rows [from, to), clipped to the mask.
func (m *Mask) Rows(from, to int) *Mask {
	from = max(from, 0)
	to = min(to, m.Height)
	if to < from {
		to = from
	}
	out := NewMask(m.Width, to-from)
	copy(out.Bits, m.Bits[from*m.Width:to*m.Width])
	return out
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}
