package slot

import (
	"errors"
	"time"

	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/timewindow"
)

var (
	// ErrNoMatchingSlot means the interval does not line up with any slot the
	// template would generate for that date.
	ErrNoMatchingSlot = errors.New("interval does not match a generated slot")
	// ErrTypeNotAllowed means the window exists but rejects the consultation
	// type.
	ErrTypeNotAllowed = errors.New("window does not allow this consultation type")
)

// Match is the resolved window a reservation targets.
type Match struct {
	Window     schedule.WeekdayWindow
	OverlapPad time.Duration
}

// Resolve checks that [start, end) is exactly one of the slots the template
// (or that date's exception) generates, and that the consultation type is
// permitted. Reservation re-runs this at commit time so a stale slot read
// can never slip through.
func Resolve(tpl *schedule.ScheduleTemplate, exc *schedule.ScheduleException, start, end time.Time, ct schedule.ConsultationType) (*Match, error) {
	loc, err := tpl.Location()
	if err != nil {
		return nil, err
	}

	day := timewindow.DayBounds(start, loc).Start
	requested := timewindow.Interval{Start: start, End: end}

	var typeRejected bool
	for _, w := range schedule.EffectiveWindows(tpl, exc, day) {
		iv := timewindow.AtMinutes(day, w.StartMinute, w.EndMinute, loc)
		if !iv.Covers(requested) {
			continue
		}

		slotDur := time.Duration(w.SlotMinutes) * time.Minute
		buffer := time.Duration(tpl.BufferMinutes) * time.Minute
		for _, s := range timewindow.Discretize(iv, slotDur, buffer) {
			if !s.Start.Equal(start) || !s.End.Equal(end) {
				continue
			}
			if ct != "" && !w.Allows(ct) {
				typeRejected = true
				break
			}
			return &Match{Window: w, OverlapPad: overlapPad(tpl)}, nil
		}
	}

	if typeRejected {
		return nil, ErrTypeNotAllowed
	}
	return nil, ErrNoMatchingSlot
}
