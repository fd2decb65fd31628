package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(30 * time.Minute)}

	tests := []struct {
		name string
		b    Interval
		want bool
	}{
		{"identical", a, true},
		{"touching end", Interval{Start: a.End, End: a.End.Add(time.Hour)}, false},
		{"touching start", Interval{Start: base.Add(-time.Hour), End: base}, false},
		{"partial", Interval{Start: base.Add(15 * time.Minute), End: base.Add(45 * time.Minute)}, true},
		{"containing", Interval{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}, true},
		{"disjoint", Interval{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, a.Overlaps(tc.b))
			require.Equal(t, tc.want, tc.b.Overlaps(a))
		})
	}
}

func TestDiscretizeWithBuffer(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// Monday 09:00-17:00, 30 minute slots, 5 minute buffer.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	window := AtMinutes(day, 9*60, 17*60, loc)

	slots := Discretize(window, 30*time.Minute, 5*time.Minute)

	// 480 minutes of working time at a 35 minute stride fits 13 full slots.
	require.Len(t, slots, 13)
	require.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, loc), slots[0].Start)
	require.Equal(t, time.Date(2026, 3, 2, 9, 35, 0, 0, loc), slots[1].Start)
	require.Equal(t, time.Date(2026, 3, 2, 16, 0, 0, 0, loc), slots[12].Start)
	for _, s := range slots {
		require.Equal(t, 30*time.Minute, s.Duration())
		require.True(t, window.Covers(s))
	}
}

func TestDiscretizeNoBuffer(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := Interval{Start: start, End: start.Add(time.Hour)}

	slots := Discretize(window, 15*time.Minute, 0)
	require.Len(t, slots, 4)
	require.Equal(t, start.Add(45*time.Minute), slots[3].Start)
}

func TestDiscretizeDegenerate(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.Nil(t, Discretize(Interval{Start: start, End: start}, 15*time.Minute, 0))
	require.Nil(t, Discretize(Interval{Start: start, End: start.Add(time.Hour)}, 0, 0))
	// Slot longer than the window.
	require.Nil(t, Discretize(Interval{Start: start, End: start.Add(10 * time.Minute)}, 15*time.Minute, 0))
}

func TestDayBoundsDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 is the spring-forward date: the day is 23 hours long.
	day := time.Date(2026, 3, 8, 12, 0, 0, 0, loc)
	bounds := DayBounds(day, loc)

	require.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, loc), bounds.Start)
	require.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, loc), bounds.End)
	require.Equal(t, 23*time.Hour, bounds.Duration())

	// Wall-clock windows stay stable: 09:00 is still 09:00 local.
	w := AtMinutes(day, 9*60, 17*60, loc)
	require.Equal(t, 9, w.Start.Hour())
	require.Equal(t, 17, w.End.Hour())
}

func TestPadAndContains(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	iv := Interval{Start: start, End: start.Add(30 * time.Minute)}

	padded := iv.Pad(5 * time.Minute)
	require.Equal(t, start.Add(-5*time.Minute), padded.Start)
	require.Equal(t, start.Add(35*time.Minute), padded.End)

	require.True(t, iv.Contains(start))
	require.False(t, iv.Contains(iv.End))
}
