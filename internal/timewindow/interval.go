package timewindow

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsValid() bool {
	return iv.End.After(iv.Start)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether t falls inside [Start, End).
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Covers reports whether other lies entirely inside iv.
func (iv Interval) Covers(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Pad widens the interval by buf on both sides. Used for overlap checks that
// must respect a buffer between consecutive appointments.
func (iv Interval) Pad(buf time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-buf), End: iv.End.Add(buf)}
}

// OverlapsAny reports whether iv intersects any of the given intervals.
func OverlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}

// DayBounds returns the wall-clock day containing date in loc, as
// [midnight, next midnight). Next midnight is computed by date arithmetic so
// the interval stays correct across DST transitions (a day may be 23h or 25h).
func DayBounds(date time.Time, loc *time.Location) Interval {
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: end}
}

// AtMinutes materializes a minute-of-day window on a calendar date in loc.
// Using time.Date keeps boundaries wall-clock stable across DST shifts.
func AtMinutes(date time.Time, startMinute, endMinute int, loc *time.Location) Interval {
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), startMinute/60, startMinute%60, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), endMinute/60, endMinute%60, 0, 0, loc)
	return Interval{Start: start, End: end}
}

// Discretize cuts window into consecutive sub-intervals of slotDur separated
// by buffer. The last slot must fit entirely inside the window.
func Discretize(window Interval, slotDur, buffer time.Duration) []Interval {
	if slotDur <= 0 || !window.IsValid() {
		return nil
	}

	var out []Interval
	for t := window.Start; !t.Add(slotDur).After(window.End); t = t.Add(slotDur + buffer) {
		out = append(out, Interval{Start: t, End: t.Add(slotDur)})
	}
	return out
}

// HoursUntil returns the (possibly negative) number of hours from now to t.
func HoursUntil(now, t time.Time) float64 {
	return t.Sub(now).Hours()
}
