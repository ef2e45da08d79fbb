package perception

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/testutil"
)

var testCrossingCfg = CrossingConfig{
	RowStep:        1,
	MinStripeWidth: 2,
	MaxStripeWidth: 4,
	MinStripes:     3,
	RowStreak:      2,
	FrameStreak:    3,
}

const stripeRow = "##..##..###..#"     // runs 2,2,3,1: three stripes in band
const sparseRow = "##............"     // one stripe
const wideRow = "######..######"       // runs of 6 are too wide

func roi(t *testing.T, rows ...string) *Mask { return grid(t, rows...) }

func TestCrossingDetector_RowQualification(t *testing.T) {
	d := NewCrossingDetector(testCrossingCfg)
	assert.True(t, d.FrameQualifies(roi(t, stripeRow, stripeRow)))
	assert.False(t, d.FrameQualifies(roi(t, stripeRow, sparseRow)), "row streak of 1 is not enough")
	assert.False(t, d.FrameQualifies(roi(t, wideRow, wideRow)))
	// Streak resets on a non-qualifying row
	assert.False(t, d.FrameQualifies(roi(t, stripeRow, sparseRow, stripeRow)))
	assert.True(t, d.FrameQualifies(roi(t, sparseRow, stripeRow, stripeRow)))
}

func TestCrossingDetector_StripeAtRowEnd(t *testing.T) {
	d := NewCrossingDetector(CrossingConfig{MinStripeWidth: 2, MaxStripeWidth: 2, MinStripes: 2, RowStreak: 1, FrameStreak: 1})
	assert.True(t, d.FrameQualifies(roi(t, testutil.Row(8, 0, 2, 6, 8))), "a run ending at the last column counts")
}

func TestCrossingDetector_RowStep(t *testing.T) {
	cfg := testCrossingCfg
	cfg.RowStep = 2
	d := NewCrossingDetector(cfg)
	// Sampled rows 0 and 2 qualify; row 1 is skipped.
	assert.True(t, d.FrameQualifies(roi(t, stripeRow, sparseRow, stripeRow)))
	// Sampled rows 0 and 2 with a sparse row 2.
	assert.False(t, d.FrameQualifies(roi(t, stripeRow, stripeRow, sparseRow)))
}

func TestCrossingDetector_FrameStreakAndLatch(t *testing.T) {
	d := NewCrossingDetector(testCrossingCfg)
	yes := roi(t, stripeRow, stripeRow)
	no := roi(t, sparseRow, sparseRow)

	assert.False(t, d.Update(yes))
	assert.False(t, d.Update(yes))
	require.True(t, d.Update(yes), "third consecutive frame confirms")
	assert.True(t, d.Latched())

	for i := 0; i < 10; i++ {
		assert.False(t, d.Update(yes), "latched detector never re-fires")
	}

	d.Reset()
	assert.False(t, d.Latched())
	assert.False(t, d.Update(no))
	assert.True(t, d.Armed())
	assert.False(t, d.Update(yes))
	assert.False(t, d.Update(yes))
	assert.True(t, d.Update(yes))
}

func TestCrossingDetector_ResetOnMarkingWaitsForClearFrame(t *testing.T) {
	d := NewCrossingDetector(testCrossingCfg)
	yes := roi(t, stripeRow, stripeRow)
	no := roi(t, sparseRow, sparseRow)

	for i := 0; i < 3; i++ {
		d.Update(yes)
	}
	require.True(t, d.Latched())

	// Still parked on the marking when the hold ends.
	d.Reset()
	assert.False(t, d.Armed())
	for i := 0; i < 10; i++ {
		assert.False(t, d.Update(yes), "frame %d on the same marking", i)
	}
	assert.False(t, d.Latched())

	// Driving off re-arms; the next crossing confirms as usual.
	assert.False(t, d.Update(no))
	assert.True(t, d.Armed())
	assert.False(t, d.Update(yes))
	assert.False(t, d.Update(yes))
	assert.True(t, d.Update(yes))
}

func TestCrossingDetector_LatchedSkipsScan(t *testing.T) {
	cfg := testCrossingCfg
	cfg.FrameStreak = 1
	d := NewCrossingDetector(cfg)
	require.True(t, d.Update(roi(t, stripeRow, stripeRow)))

	// A latched detector must not read the mask at all.
	assert.NotPanics(t, func() { assert.False(t, d.Update(nil)) })
}

func TestCrossingDetector_IsolatedFramesNeverConfirm(t *testing.T) {
	d := NewCrossingDetector(testCrossingCfg)
	yes := roi(t, stripeRow, stripeRow)
	no := roi(t, sparseRow, sparseRow)

	for i := 0; i < 20; i++ {
		assert.False(t, d.Update(yes))
		assert.False(t, d.Update(yes))
		assert.False(t, d.Update(no))
	}
}

func TestCrossingDetector_NeedsRowStreak(t *testing.T) {
	// Frames where qualifying rows never run consecutively do not count,
	// however many frames arrive.
	d := NewCrossingDetector(testCrossingCfg)
	alternating := roi(t, stripeRow, sparseRow, stripeRow, sparseRow)
	for i := 0; i < 10; i++ {
		assert.False(t, d.Update(alternating))
	}
}
