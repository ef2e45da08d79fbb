package perception

// BarrierConfig holds the barrier detector tunables.
type BarrierConfig struct {
	AreaThreshold int     // largest region must exceed this many pixels
	RowMin        float64 // row band start as a fraction of height
	RowMax        float64 // row band end as a fraction of height
	MissCount     int     // consecutive misses that confirm removal
}

// BarrierResult is the per-frame detector output.
type BarrierResult struct {
	Area    int  // largest region inside the row band
	Present bool // Area > AreaThreshold
	Removed bool // removal confirmed; stays true until Reset
}

// BarrierDetector debounces barrier removal. It waits until the barrier is
// first seen, then confirms removal after MissCount consecutive frames
// without it. Any sighting while counting restarts the count.
type BarrierDetector struct {
	cfg     BarrierConfig
	seen    bool
	misses  int
	removed bool
}

// NewBarrierDetector creates a detector. MissCount below 1 is treated as 1.
func NewBarrierDetector(cfg BarrierConfig) *BarrierDetector {
	if cfg.MissCount < 1 {
		cfg.MissCount = 1
	}
	if cfg.RowMax <= cfg.RowMin {
		cfg.RowMin, cfg.RowMax = 0, 1
	}
	return &BarrierDetector{cfg: cfg}
}

// Update feeds one barrier-colour mask.
func (d *BarrierDetector) Update(m *Mask) BarrierResult {
	from := int(d.cfg.RowMin * float64(m.Height))
	to := int(d.cfg.RowMax * float64(m.Height))
	area := LargestRegion(m.Rows(from, to))
	present := area > d.cfg.AreaThreshold

	res := BarrierResult{Area: area, Present: present}
	switch {
	case d.removed:
	case !d.seen:
		if present {
			d.seen = true
			diagf("[Barrier] seen, area=%d", area)
		}
	case present:
		if d.misses > 0 {
			tracef("[Barrier] reappeared after %d misses", d.misses)
		}
		d.misses = 0
	default:
		d.misses++
		if d.misses >= d.cfg.MissCount {
			d.removed = true
			d.misses = 0
			diagf("[Barrier] removal confirmed after %d misses", d.cfg.MissCount)
		}
	}
	res.Removed = d.removed
	return res
}

// Misses returns the current consecutive miss count.
func (d *BarrierDetector) Misses() int { return d.misses }

// Seen reports whether the barrier has been observed since the last Reset.
func (d *BarrierDetector) Seen() bool { return d.seen }

// Reset returns the detector to its initial not-yet-seen phase.
func (d *BarrierDetector) Reset() {
	d.seen = false
	d.misses = 0
	d.removed = false
}

// LargestRegion returns the pixel count of the largest 4-connected
// foreground region in m.
func LargestRegion(m *Mask) int {
	visited := make([]bool, len(m.Bits))
	var stack []int
	best := 0
	for start, fg := range m.Bits {
		if !fg || visited[start] {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)
		area := 0
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x, y := i%m.Width, i/m.Width
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if !m.At(n[0], n[1]) {
					continue
				}
				j := n[1]*m.Width + n[0]
				if !visited[j] {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}
		best = max(best, area)
	}
	return best
}
