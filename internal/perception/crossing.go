package perception

// CrossingConfig holds the crossing detector tunables.
type CrossingConfig struct {
	RowStep        int // sample every RowStep rows
	MinStripeWidth int
	MaxStripeWidth int
	MinStripes     int // stripes needed for a row to qualify
	RowStreak      int // consecutive qualifying rows for a frame to qualify
	FrameStreak    int // consecutive qualifying frames to confirm
}

// CrossingDetector recognises a zebra crossing in the lower ROI mask. A
// crossing is confirmed once per episode: after firing, the detector stays
// latched until Reset. After Reset it only re-arms once a frame without the
// marking has been seen, so a car still standing on the crossing cannot
// confirm it again.
type CrossingDetector struct {
	cfg         CrossingConfig
	frameStreak int
	latched     bool
	armed       bool
}

// NewCrossingDetector creates a detector. Non-positive counts are raised to 1.
func NewCrossingDetector(cfg CrossingConfig) *CrossingDetector {
	cfg.RowStep = max(cfg.RowStep, 1)
	cfg.MinStripes = max(cfg.MinStripes, 1)
	cfg.RowStreak = max(cfg.RowStreak, 1)
	cfg.FrameStreak = max(cfg.FrameStreak, 1)
	return &CrossingDetector{cfg: cfg, armed: true}
}

// Update feeds one ROI mask and reports whether this frame confirms a
// crossing.
func (d *CrossingDetector) Update(roi *Mask) bool {
	if d.latched {
		return false
	}
	qualifies := d.FrameQualifies(roi)
	if !d.armed {
		if !qualifies {
			d.armed = true
			diagf("[Crossing] marking out of view, re-armed")
		}
		return false
	}
	if !qualifies {
		d.frameStreak = 0
		return false
	}
	d.frameStreak++
	tracef("[Crossing] qualifying frame, streak=%d", d.frameStreak)
	if d.frameStreak < d.cfg.FrameStreak {
		return false
	}
	d.latched = true
	d.frameStreak = 0
	diagf("[Crossing] confirmed after %d frames", d.cfg.FrameStreak)
	return true
}

// FrameQualifies reports whether roi holds RowStreak consecutive sampled
// rows with at least MinStripes stripes each.
func (d *CrossingDetector) FrameQualifies(roi *Mask) bool {
	streak := 0
	for y := 0; y < roi.Height; y += d.cfg.RowStep {
		if d.countStripes(roi, y) >= d.cfg.MinStripes {
			streak++
			if streak >= d.cfg.RowStreak {
				return true
			}
		} else {
			streak = 0
		}
	}
	return false
}

func (d *CrossingDetector) countStripes(m *Mask, y int) int {
	stripes, run := 0, 0
	for x := 0; x <= m.Width; x++ {
		if x < m.Width && m.At(x, y) {
			run++
			continue
		}
		if run >= d.cfg.MinStripeWidth && run <= d.cfg.MaxStripeWidth {
			stripes++
		}
		run = 0
	}
	return stripes
}

// Latched reports whether a crossing has fired since the last Reset.
func (d *CrossingDetector) Latched() bool { return d.latched }

// Reset clears the frame streak and the latch. The detector stays disarmed
// until the next frame that does not qualify.
func (d *CrossingDetector) Reset() {
	d.frameStreak = 0
	d.latched = false
	d.armed = false
}

// Armed reports whether qualifying frames currently count toward a
// confirmation.
func (d *CrossingDetector) Armed() bool { return !d.latched && d.armed }
