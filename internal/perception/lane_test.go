package perception

import (
	"math"
	"testing"

	"github.com/banshee-data/lanepilot/internal/testutil"
)

func linesMask(width, height int, spans ...int) *Mask {
	m := NewMask(width, height)
	for y := 0; y < height; y++ {
		for i := 0; i+1 < len(spans); i += 2 {
			for x := spans[i]; x < spans[i+1]; x++ {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

func TestLaneScanner_AllZero(t *testing.T) {
	s := LaneScanner{RowFraction: 0.5, Lookahead: 5}
	got := s.Scan(NewMask(320, 240))
	if got.Valid {
		t.Error("empty mask should not produce a valid lane")
	}
	if got.Offset != 0 || got.CenterX != 160 {
		t.Errorf("Scan(empty) = %+v, want centre 160 offset 0", got)
	}
}

func TestLaneScanner_TwoVerticalLines(t *testing.T) {
	tests := []struct {
		name      string
		leftLine  [2]int
		rightLine [2]int
	}{
		{"centred", [2]int{100, 103}, [2]int{217, 220}},
		{"shifted left", [2]int{40, 43}, [2]int{180, 183}},
		{"shifted right", [2]int{150, 154}, [2]int{290, 294}},
	}
	s := LaneScanner{RowFraction: 0.5, Lookahead: 5}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := linesMask(320, 240, tt.leftLine[0], tt.leftLine[1], tt.rightLine[0], tt.rightLine[1])
			got := s.Scan(m)
			if !got.Valid {
				t.Fatal("expected a valid lane")
			}
			truth := (float64(tt.leftLine[0]+tt.leftLine[1]-1) + float64(tt.rightLine[0]+tt.rightLine[1]-1)) / 4
			if math.Abs(got.CenterX-truth) > 1 {
				t.Errorf("CenterX = %.1f, want within 1px of %.1f", got.CenterX, truth)
			}
			wantOffset := 160 - got.CenterX
			if math.Abs(float64(got.Offset)-wantOffset) > 0.5 {
				t.Errorf("Offset = %d, want round(%.1f)", got.Offset, wantOffset)
			}
		})
	}
}

func TestLaneScanner_SignConvention(t *testing.T) {
	s := LaneScanner{RowFraction: 0.5, Lookahead: 5}
	// lane centred near x=131, left of image centre 160: steer left (positive)
	got := s.Scan(linesMask(320, 240, 60, 63, 200, 203))
	if got.Offset <= 0 {
		t.Errorf("lane left of centre gave offset %d, want positive", got.Offset)
	}
}

func TestLaneScanner_OneSidedRowsKept(t *testing.T) {
	// Only a right line: left falls back to column 0, row still valid.
	s := LaneScanner{RowFraction: 0, Lookahead: 5}
	got := s.Scan(linesMask(100, 4, 80, 83))
	if !got.Valid {
		t.Fatal("one-sided rows must not be discarded")
	}
	if got.CenterX != 40 {
		t.Errorf("CenterX = %.1f, want (0+80)/2 = 40", got.CenterX)
	}
}

func TestLaneScanner_SingleRow(t *testing.T) {
	s := LaneScanner{RowFraction: 0.5, Lookahead: 5}
	m := grid(t, testutil.Row(20, 2, 4, 14, 16))
	got := s.Scan(m)
	if !got.Valid || got.Midpoints != 1 {
		t.Fatalf("Scan(single row) = %+v, want one valid midpoint", got)
	}
	// left pair found at x=3, right pair at x=14
	if got.CenterX != 8 {
		t.Errorf("CenterX = %.1f, want 8", got.CenterX)
	}
}

func TestLaneScanner_AllForeground(t *testing.T) {
	s := LaneScanner{RowFraction: 0.5, Lookahead: 5}
	m := NewMask(40, 10)
	for i := range m.Bits {
		m.Bits[i] = true
	}
	got := s.Scan(m)
	if got.Valid || got.Offset != 0 {
		t.Errorf("Scan(all foreground) = %+v, want neutral", got)
	}
}

func TestLaneScanner_IsolatedPixelsIgnored(t *testing.T) {
	// Single pixels never form an adjacent pair, so every row falls back.
	s := LaneScanner{RowFraction: 0, Lookahead: 5}
	m := grid(t,
		"#.#.#.#.#.",
		".#.#.#.#.#",
	)
	if got := s.Scan(m); got.Valid {
		t.Errorf("isolated pixels produced a lane: %+v", got)
	}
}

func TestLaneScanner_FallbackRowRecentresSeed(t *testing.T) {
	// Bottom row: lines at 30 and 80, mid 55. The middle row yields no
	// midpoint and moves the seed to 49, so the top row sees only its
	// line at 50 on the right: mid (0+50)/2 = 25. A seed left at 55 would
	// have found 51 and 90 instead.
	tests := []struct {
		name string
		gap  string
	}{
		{"empty row", testutil.Row(100)},
		{"saturated row", testutil.Row(100, 0, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := grid(t,
				testutil.Row(100, 50, 52, 90, 92),
				tt.gap,
				testutil.Row(100, 30, 32, 80, 82),
			)
			got := LaneScanner{RowFraction: 0, Lookahead: 1}.Scan(m)
			if got.Midpoints != 2 {
				t.Fatalf("Midpoints = %d, want 2", got.Midpoints)
			}
			if got.CenterX != 25 {
				t.Errorf("CenterX = %.1f, want 25", got.CenterX)
			}
		})
	}
}

func TestLaneScanner_WindowUsesLowerMiddle(t *testing.T) {
	// Two upper rows with the lane centred near 60 and six lower rows with
	// it near 45. Midpoints are recorded bottom-up: [45 x6, 60 x2], so the
	// window starting at index 4 mixes both.
	rows := []string{
		testutil.Row(100, 30, 32, 90, 92),
		testutil.Row(100, 30, 32, 90, 92),
	}
	for i := 0; i < 6; i++ {
		rows = append(rows, testutil.Row(100, 20, 22, 70, 72))
	}
	m := grid(t, rows...)

	for _, lookahead := range []int{4, 10} {
		got := LaneScanner{RowFraction: 0, Lookahead: lookahead}.Scan(m)
		if got.Midpoints != 8 {
			t.Fatalf("Midpoints = %d, want 8", got.Midpoints)
		}
		// lower rows: left pair at 21, right pair at 70, mid 45
		// upper rows (seed 45): left pair at 31, right pair at 90, mid 60
		if got.CenterX != 52.5 {
			t.Errorf("lookahead %d: CenterX = %.2f, want 52.5", lookahead, got.CenterX)
		}
	}
}
