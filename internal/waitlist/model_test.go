package waitlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

func TestEntryMatches(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	dateFrom := time.Date(2026, 9, 1, 0, 0, 0, 0, loc)
	dateTo := time.Date(2026, 9, 30, 0, 0, 0, 0, loc)
	morning := time.Date(2026, 9, 7, 9, 0, 0, 0, loc)
	evening := time.Date(2026, 9, 7, 16, 0, 0, 0, loc)

	base := Entry{
		Status:           StatusActive,
		ConsultationType: schedule.ConsultGeneral,
		DateFrom:         dateFrom,
		DateTo:           dateTo,
	}

	t.Run("no windows accepts any time", func(t *testing.T) {
		e := base
		assert.True(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})

	t.Run("inactive entry never matches", func(t *testing.T) {
		e := base
		e.Status = StatusOffered
		assert.False(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})

	t.Run("consultation type must agree", func(t *testing.T) {
		e := base
		assert.False(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultTelehealth, loc))
	})

	t.Run("empty entry type takes anything", func(t *testing.T) {
		e := base
		e.ConsultationType = ""
		assert.True(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultTelehealth, loc))
	})

	t.Run("outside date range", func(t *testing.T) {
		e := base
		late := time.Date(2026, 10, 5, 9, 0, 0, 0, loc)
		assert.False(t, e.Matches(late, late.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})

	t.Run("preferred window hit", func(t *testing.T) {
		e := base
		e.Windows = []TimeOfDayWindow{{StartMinute: 8 * 60, EndMinute: 12 * 60, Preference: PreferPreferred}}
		assert.True(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultGeneral, loc))
		assert.False(t, e.Matches(evening, evening.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})

	t.Run("acceptable window also counts", func(t *testing.T) {
		e := base
		e.Windows = []TimeOfDayWindow{
			{StartMinute: 8 * 60, EndMinute: 10 * 60, Preference: PreferPreferred},
			{StartMinute: 15 * 60, EndMinute: 18 * 60, Preference: PreferAcceptable},
		}
		assert.True(t, e.Matches(evening, evening.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})

	t.Run("avoid window vetoes", func(t *testing.T) {
		e := base
		e.Windows = []TimeOfDayWindow{{StartMinute: 8 * 60, EndMinute: 10 * 60, Preference: PreferAvoid}}
		assert.False(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultGeneral, loc))
		assert.True(t, e.Matches(evening, evening.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})

	t.Run("avoid veto wins over preferred hit", func(t *testing.T) {
		e := base
		e.Windows = []TimeOfDayWindow{
			{StartMinute: 8 * 60, EndMinute: 12 * 60, Preference: PreferPreferred},
			{StartMinute: 9 * 60, EndMinute: 9*60 + 15, Preference: PreferAvoid},
		}
		assert.False(t, e.Matches(morning, morning.Add(30*time.Minute), schedule.ConsultGeneral, loc))
	})
}

func TestDateRangeLapsed(t *testing.T) {
	now := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

	e := Entry{DateTo: now.AddDate(0, 0, -1)}
	assert.True(t, e.DateRangeLapsed(now))

	e = Entry{DateTo: now.AddDate(0, 0, 1)}
	assert.False(t, e.DateRangeLapsed(now))
}
