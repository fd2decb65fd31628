package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Pattern describes a recurrence. End condition is EndDate or
// MaxOccurrences, whichever is set; both set means whichever bites first.
type Pattern struct {
	Frequency      Frequency      `json:"frequency"`
	Interval       int            `json:"interval"`        // every N units, min 1
	Weekdays       []time.Weekday `json:"weekdays"`        // weekly only; empty = first occurrence's weekday
	DayOfMonth     int            `json:"day_of_month"`    // monthly only; 0 = first occurrence's day
	EndDate        *time.Time     `json:"end_date"`
	MaxOccurrences int            `json:"max_occurrences"`
	SkipDates      []time.Time    `json:"skip_dates"`
}

// Limits is the hard ceiling defending against runaway expansion; patterns
// are truncated to it, never looped indefinitely.
type Limits struct {
	MaxOccurrences int
	MaxEndDateDays int
}

var (
	ErrUnknownFrequency = errors.New("unknown recurrence frequency")
	ErrNoEndCondition   = errors.New("pattern needs an end date or a max occurrence count")
)

func (p Pattern) Validate() error {
	switch p.Frequency {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, p.Frequency)
	}
	if p.EndDate == nil && p.MaxOccurrences <= 0 {
		return ErrNoEndCondition
	}
	if p.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
		return errors.New("day of month out of range")
	}
	return nil
}

// Expand materializes the occurrence start instants for a pattern anchored
// at first, capped by lim. The walk is bounded by construction: it steps
// forward monotonically and stops at the earliest of the pattern end date,
// the configured horizon, and the occurrence cap.
func Expand(first time.Time, p Pattern, loc *time.Location, lim Limits) ([]time.Time, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	interval := p.Interval
	if interval < 1 {
		interval = 1
	}

	limit := lim.MaxOccurrences
	if p.MaxOccurrences > 0 && p.MaxOccurrences < limit {
		limit = p.MaxOccurrences
	}

	horizon := first.AddDate(0, 0, lim.MaxEndDateDays)
	if p.EndDate != nil && p.EndDate.Before(horizon) {
		horizon = endOfDay(*p.EndDate, loc)
	}

	skip := make(map[string]bool, len(p.SkipDates))
	for _, d := range p.SkipDates {
		skip[dateKey(d.In(loc))] = true
	}

	local := first.In(loc)
	hour, minute := local.Hour(), local.Minute()

	var out []time.Time
	emit := func(t time.Time) bool {
		if t.After(horizon) {
			return false
		}
		if !skip[dateKey(t.In(loc))] {
			out = append(out, t)
		}
		return len(out) < limit
	}

	switch p.Frequency {
	case Daily:
		for t := local; emitOK(t, horizon); t = addDaysWallClock(t, interval, hour, minute, loc) {
			if !emit(t) {
				break
			}
		}

	case Weekly:
		// Sort a copy; the caller's pattern is persisted as given.
		weekdays := append([]time.Weekday(nil), p.Weekdays...)
		if len(weekdays) == 0 {
			weekdays = []time.Weekday{local.Weekday()}
		}
		sort.Slice(weekdays, func(i, j int) bool { return weekdays[i] < weekdays[j] })

		// Walk week blocks from the week containing the first occurrence.
		weekStart := addDaysWallClock(local, -int(local.Weekday()), hour, minute, loc)
	weeks:
		for block := weekStart; emitOK(block, horizon); block = addDaysWallClock(block, 7*interval, hour, minute, loc) {
			for _, wd := range weekdays {
				occ := addDaysWallClock(block, int(wd), hour, minute, loc)
				if occ.Before(local) || occ.After(horizon) {
					continue
				}
				if !emit(occ) {
					break weeks
				}
			}
		}

	case Monthly:
		day := p.DayOfMonth
		if day == 0 {
			day = local.Day()
		}
		for m := 0; ; m += interval {
			// Month stepping avoids AddDate normalization (Jan 31 + 1 month
			// must mean February, not March 3rd).
			months := int(local.Month()) - 1 + m
			year := local.Year() + months/12
			month := time.Month(months%12 + 1)
			occ := time.Date(year, month, day, hour, minute, 0, 0, loc)
			if occ.After(horizon) {
				break
			}
			// Months without the requested day (normalization rolled over) are skipped.
			if occ.Day() != day || occ.Before(local) {
				continue
			}
			if !emit(occ) {
				break
			}
		}

	case Yearly:
		for y := 0; ; y += interval {
			occ := time.Date(local.Year()+y, local.Month(), local.Day(), hour, minute, 0, 0, loc)
			if occ.After(horizon) {
				break
			}
			if occ.Day() != local.Day() { // Feb 29 on a non-leap year
				continue
			}
			if !emit(occ) {
				break
			}
		}
	}

	return out, nil
}

func emitOK(t, horizon time.Time) bool {
	return !t.After(horizon)
}

// addDaysWallClock steps calendar days while pinning the wall-clock time,
// so occurrences stay at e.g. 09:00 local across DST shifts.
func addDaysWallClock(t time.Time, days, hour, minute int, loc *time.Location) time.Time {
	d := t.In(loc).AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
