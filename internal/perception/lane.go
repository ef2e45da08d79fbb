package perception

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// LaneScanner estimates the lane centre from a binary edge mask.
//
// Rows are scanned bottom to top from a seed column that starts at the
// image centre. In each row the scanner walks left and right from the seed
// looking for two horizontally adjacent foreground pixels; a side with no
// such pair falls back to the image boundary. The row midpoint becomes the
// seed for the next row. Rows where both sides fall back yield no midpoint
// but still move the seed back to the middle of the row. A saturated row
// (every pixel foreground) counts as a fallback on both sides.
type LaneScanner struct {
	RowFraction float64 // first scanned row as a fraction of the height
	Lookahead   int     // midpoints averaged, starting halfway up the list
}

// LaneEstimate is the result of one scan.
type LaneEstimate struct {
	CenterX   float64 // averaged midpoint column
	Offset    int     // image centre minus CenterX; positive means steer left
	Valid     bool    // false when no row resolved
	Midpoints int     // rows that produced a midpoint
}

// Scan runs the scanner over m.
func (s LaneScanner) Scan(m *Mask) LaneEstimate {
	center := m.Width / 2
	mids := s.midpoints(m)
	if len(mids) == 0 {
		return LaneEstimate{CenterX: float64(center)}
	}

	lo := len(mids) / 2
	hi := min(lo+max(s.Lookahead, 1), len(mids))
	avg := stat.Mean(mids[lo:hi], nil)

	return LaneEstimate{
		CenterX:   avg,
		Offset:    int(math.Round(float64(center) - avg)),
		Valid:     true,
		Midpoints: len(mids),
	}
}

func (s LaneScanner) midpoints(m *Mask) []float64 {
	if m.Width < 2 || m.Height < 1 {
		return nil
	}
	top := int(s.RowFraction * float64(m.Height))
	top = min(max(top, 0), m.Height-1)

	begin := m.Width / 2
	mids := make([]float64, 0, m.Height-top)
	for y := m.Height - 1; y >= top; y-- {
		if rowSaturated(m, y) {
			begin = (m.Width - 1) / 2
			continue
		}
		left, foundLeft := 0, false
		for x := begin; x >= 1; x-- {
			if m.At(x, y) && m.At(x-1, y) {
				left, foundLeft = x, true
				break
			}
		}
		right, foundRight := m.Width-1, false
		for x := begin; x < m.Width-1; x++ {
			if m.At(x, y) && m.At(x+1, y) {
				right, foundRight = x, true
				break
			}
		}
		mid := (left + right) / 2
		begin = mid
		if !foundLeft && !foundRight {
			continue
		}
		mids = append(mids, float64(mid))
	}
	return mids
}

func rowSaturated(m *Mask, y int) bool {
	for _, b := range m.Bits[y*m.Width : (y+1)*m.Width] {
		if !b {
			return false
		}
	}
	return true
}
