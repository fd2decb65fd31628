package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{MaxOccurrences: 52, MaxEndDateDays: 365}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestExpandWeekly(t *testing.T) {
	loc := mustLoc(t, "Asia/Kolkata")
	first := time.Date(2026, 9, 7, 9, 0, 0, 0, loc) // Monday

	got, err := Expand(first, Pattern{
		Frequency:      Weekly,
		MaxOccurrences: 5,
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 5)
	for i, occ := range got {
		want := first.AddDate(0, 0, 7*i)
		assert.True(t, occ.Equal(want), "occurrence %d: got %s want %s", i, occ, want)
		assert.Equal(t, time.Monday, occ.In(loc).Weekday())
	}
}

func TestExpandWeeklyMultipleWeekdays(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 7, 10, 0, 0, 0, loc) // Monday

	got, err := Expand(first, Pattern{
		Frequency:      Weekly,
		Weekdays:       []time.Weekday{time.Monday, time.Thursday},
		MaxOccurrences: 4,
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, time.Monday, got[0].Weekday())
	assert.Equal(t, time.Thursday, got[1].Weekday())
	assert.Equal(t, time.Monday, got[2].Weekday())
	assert.Equal(t, time.Thursday, got[3].Weekday())
	assert.True(t, got[1].Equal(first.AddDate(0, 0, 3)))
}

func TestExpandDoesNotMutatePattern(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 7, 10, 0, 0, 0, loc) // Monday

	// The pattern is persisted as the caller wrote it, so expansion must not
	// reorder its weekday slice.
	p := Pattern{
		Frequency:      Weekly,
		Weekdays:       []time.Weekday{time.Thursday, time.Monday},
		MaxOccurrences: 4,
	}

	got, err := Expand(first, p, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, []time.Weekday{time.Thursday, time.Monday}, p.Weekdays)
}

func TestExpandWeeklySkipsDaysBeforeAnchor(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 10, 10, 0, 0, 0, loc) // Thursday

	// Monday of the anchor week precedes the anchor and must not appear.
	got, err := Expand(first, Pattern{
		Frequency:      Weekly,
		Weekdays:       []time.Weekday{time.Monday, time.Thursday},
		MaxOccurrences: 3,
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(first))
	assert.Equal(t, time.Monday, got[1].Weekday())
	assert.True(t, got[1].Equal(time.Date(2026, 9, 14, 10, 0, 0, 0, loc)))
}

func TestExpandDailyWithInterval(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 1, 8, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Daily,
		Interval:       3,
		MaxOccurrences: 4,
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.True(t, got[1].Equal(first.AddDate(0, 0, 3)))
	assert.True(t, got[3].Equal(first.AddDate(0, 0, 9)))
}

func TestExpandDailyPreservesWallClockAcrossDST(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	// Two days before the spring-forward transition on 2026-03-08.
	first := time.Date(2026, 3, 6, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Daily,
		MaxOccurrences: 4,
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 4)
	for _, occ := range got {
		assert.Equal(t, 9, occ.In(loc).Hour(), "occurrence %s should stay at 09:00 local", occ)
	}
}

func TestExpandEndDate(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 7, 9, 0, 0, 0, loc)
	end := time.Date(2026, 9, 28, 0, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency: Weekly,
		EndDate:   &end,
	}, loc, testLimits)
	require.NoError(t, err)

	// Sep 7, 14, 21, 28: the end date itself is included.
	require.Len(t, got, 4)
	assert.True(t, got[3].Equal(time.Date(2026, 9, 28, 9, 0, 0, 0, loc)))
}

func TestExpandSkipDates(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 7, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Weekly,
		MaxOccurrences: 4,
		SkipDates:      []time.Time{time.Date(2026, 9, 14, 0, 0, 0, 0, loc)},
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.True(t, got[0].Equal(first))
	// Sep 14 was skipped without counting toward the occurrence cap.
	assert.True(t, got[1].Equal(time.Date(2026, 9, 21, 9, 0, 0, 0, loc)))
	assert.True(t, got[3].Equal(time.Date(2026, 10, 5, 9, 0, 0, 0, loc)))
}

func TestExpandMonthlyEndOfMonth(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 1, 31, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Monthly,
		MaxOccurrences: 5,
	}, loc, testLimits)
	require.NoError(t, err)

	// February, April, June, September and November have no 31st; months
	// without the day are skipped, never rolled into the next month.
	require.Len(t, got, 5)
	assert.Equal(t, time.January, got[0].Month())
	assert.Equal(t, time.March, got[1].Month())
	assert.Equal(t, time.May, got[2].Month())
	assert.Equal(t, time.July, got[3].Month())
	assert.Equal(t, time.August, got[4].Month())
	for _, occ := range got {
		assert.Equal(t, 31, occ.Day())
	}
}

func TestExpandMonthlyExplicitDay(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 15, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Monthly,
		DayOfMonth:     15,
		Interval:       2,
		MaxOccurrences: 3,
	}, loc, testLimits)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, time.September, got[0].Month())
	assert.Equal(t, time.November, got[1].Month())
	assert.Equal(t, time.January, got[2].Month())
}

func TestExpandYearlySkipsMissingLeapDay(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2024, 2, 29, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Yearly,
		MaxOccurrences: 3,
	}, loc, Limits{MaxOccurrences: 52, MaxEndDateDays: 3700})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, 2024, got[0].Year())
	assert.Equal(t, 2028, got[1].Year())
	assert.Equal(t, 2032, got[2].Year())
}

func TestExpandCapsAtConfiguredLimit(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 1, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Daily,
		MaxOccurrences: 10000,
	}, loc, Limits{MaxOccurrences: 20, MaxEndDateDays: 365})
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestExpandTruncatesAtHorizon(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 1, 9, 0, 0, 0, loc)

	got, err := Expand(first, Pattern{
		Frequency:      Weekly,
		MaxOccurrences: 52,
	}, loc, Limits{MaxOccurrences: 52, MaxEndDateDays: 30})
	require.NoError(t, err)

	// Only five Tuesdays fit in a 30-day horizon.
	assert.Len(t, got, 5)
}

func TestExpandValidation(t *testing.T) {
	loc := mustLoc(t, "UTC")
	first := time.Date(2026, 9, 1, 9, 0, 0, 0, loc)

	_, err := Expand(first, Pattern{Frequency: "hourly", MaxOccurrences: 3}, loc, testLimits)
	assert.ErrorIs(t, err, ErrUnknownFrequency)

	_, err = Expand(first, Pattern{Frequency: Daily}, loc, testLimits)
	assert.ErrorIs(t, err, ErrNoEndCondition)
}
