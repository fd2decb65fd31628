package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type ConsultationType string

const (
	ConsultGeneral    ConsultationType = "general"
	ConsultSpecialist ConsultationType = "specialist"
	ConsultFollowUp   ConsultationType = "follow_up"
	ConsultTelehealth ConsultationType = "telehealth"
)

// WeekdayWindow is one recurring working window within a template.
// Start and end are minutes of the local day so the window stays wall-clock
// stable across DST transitions.
type WeekdayWindow struct {
	Weekday       time.Weekday       `json:"weekday"`
	StartMinute   int                `json:"start_minute"`
	EndMinute     int                `json:"end_minute"`
	SlotMinutes   int                `json:"slot_minutes"`
	MaxConcurrent int                `json:"max_concurrent"`
	AllowedTypes  []ConsultationType `json:"allowed_types"`
}

func (w WeekdayWindow) Allows(ct ConsultationType) bool {
	if len(w.AllowedTypes) == 0 {
		return true
	}
	for _, t := range w.AllowedTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// ScheduleTemplate is a provider's recurring weekly availability. It is
// written by schedule management elsewhere; the engine only reads it.
type ScheduleTemplate struct {
	ID                   uuid.UUID
	ProviderID           uuid.UUID
	FacilityID           uuid.UUID
	DepartmentID         uuid.UUID
	EffectiveFrom        time.Time
	EffectiveTo          *time.Time
	Timezone             string
	Windows              []WeekdayWindow
	BufferMinutes        int  // gap between consecutive slots
	AllowOverlap         bool // when false, the buffer also pads conflict checks
	RequiresConfirmation bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (t *ScheduleTemplate) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("template %s timezone %q: %w", t.ID, t.Timezone, err)
	}
	return loc, nil
}

// WindowsOn returns the template windows for one weekday, ordered by start.
func (t *ScheduleTemplate) WindowsOn(day time.Weekday) []WeekdayWindow {
	var out []WeekdayWindow
	for _, w := range t.Windows {
		if w.Weekday == day {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out
}

// CoversDate reports whether the template is effective on the given date.
func (t *ScheduleTemplate) CoversDate(date time.Time) bool {
	if date.Before(t.EffectiveFrom) && !sameDate(date, t.EffectiveFrom) {
		return false
	}
	if t.EffectiveTo != nil && date.After(*t.EffectiveTo) && !sameDate(date, *t.EffectiveTo) {
		return false
	}
	return true
}

// Validate enforces the template invariants: sane minute bounds, positive
// slot sizing, and no overlapping windows on the same weekday.
func (t *ScheduleTemplate) Validate() error {
	if _, err := t.Location(); err != nil {
		return err
	}

	byDay := make(map[time.Weekday][]WeekdayWindow)
	for _, w := range t.Windows {
		if w.StartMinute < 0 || w.EndMinute > 24*60 || w.StartMinute >= w.EndMinute {
			return fmt.Errorf("window %d-%d on %s: invalid bounds", w.StartMinute, w.EndMinute, w.Weekday)
		}
		if w.SlotMinutes <= 0 {
			return fmt.Errorf("window on %s: slot minutes must be positive", w.Weekday)
		}
		if w.MaxConcurrent <= 0 {
			return fmt.Errorf("window on %s: max concurrent must be positive", w.Weekday)
		}
		byDay[w.Weekday] = append(byDay[w.Weekday], w)
	}

	for day, windows := range byDay {
		sort.Slice(windows, func(i, j int) bool { return windows[i].StartMinute < windows[j].StartMinute })
		for i := 1; i < len(windows); i++ {
			if windows[i].StartMinute < windows[i-1].EndMinute {
				return fmt.Errorf("overlapping windows on %s", day)
			}
		}
	}

	return nil
}

// ScheduleException overrides the template for one provider on one date:
// either the whole day is unavailable or Windows replaces the weekday set.
// At most one exception exists per (provider, date).
type ScheduleException struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Date        time.Time // calendar date, midnight in the template tz
	Unavailable bool
	Windows     []WeekdayWindow // replacement windows; weekday field ignored
	Reason      string
	CreatedAt   time.Time
}

// EffectiveWindows resolves the window set for one calendar date: the
// exception, if present, wins over the template's weekday windows.
func EffectiveWindows(t *ScheduleTemplate, exc *ScheduleException, date time.Time) []WeekdayWindow {
	if !t.CoversDate(date) {
		return nil
	}
	if exc != nil {
		if exc.Unavailable {
			return nil
		}
		windows := make([]WeekdayWindow, len(exc.Windows))
		copy(windows, exc.Windows)
		sort.Slice(windows, func(i, j int) bool { return windows[i].StartMinute < windows[j].StartMinute })
		return windows
	}
	return t.WindowsOn(date.Weekday())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
