package slot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/timewindow"
)

var (
	ErrInvalidRange = errors.New("date range start must precede end")
)

// AvailabilitySlot is a derived value, never stored: recomputed on demand
// from the template, exceptions, and committed appointments.
type AvailabilitySlot struct {
	ProviderID        uuid.UUID                   `json:"provider_id"`
	Start             time.Time                   `json:"start"`
	End               time.Time                   `json:"end"`
	AllowedTypes      []schedule.ConsultationType `json:"allowed_types,omitempty"`
	MaxConcurrent     int                         `json:"max_concurrent"`
	RemainingCapacity int                         `json:"remaining_capacity"`
}

// OverlapCounter is the one repository read the generator needs. Satisfied
// by appointment.PgRepository.
type OverlapCounter interface {
	CountActiveOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, pad time.Duration) (int, error)
}

type Filters struct {
	ConsultationType schedule.ConsultationType // empty means any
	IncludeFull      bool                      // keep zero-capacity slots (display)
	PreferTime       *time.Time                // sort closest-to-requested first
}

type Generator struct {
	schedules      schedule.Repository
	counter        OverlapCounter
	minLeadTime    time.Duration
	maxAdvanceDays int
	now            func() time.Time
}

func NewGenerator(schedules schedule.Repository, counter OverlapCounter, minLeadTime time.Duration, maxAdvanceDays int) *Generator {
	return &Generator{
		schedules:      schedules,
		counter:        counter,
		minLeadTime:    minLeadTime,
		maxAdvanceDays: maxAdvanceDays,
		now:            time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateSlots derives the candidate slots for a provider over [from, to).
// Pure read: identical inputs against unchanged state yield identical output.
func (g *Generator) GenerateSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time, f Filters) ([]AvailabilitySlot, error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	tpl, err := g.schedules.LoadTemplate(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := tpl.Location()
	if err != nil {
		return nil, err
	}

	now := g.now()
	earliest := now.Add(g.minLeadTime)
	horizon := now.AddDate(0, 0, g.maxAdvanceDays)
	if to.After(horizon) {
		to = horizon
	}
	if !from.Before(to) {
		return nil, nil
	}

	// Exceptions are dated at local midnight, so the lookup starts at the
	// beginning of from's day; a mid-day from would otherwise skip that
	// day's exception.
	firstDay := timewindow.DayBounds(from, loc).Start
	excs, err := g.schedules.LoadExceptions(ctx, providerID, firstDay, to)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	excByDate := schedule.ExceptionsByDate(excs)

	pad := overlapPad(tpl)

	var out []AvailabilitySlot
	for day := firstDay; day.Before(to); day = day.AddDate(0, 0, 1) {
		windows := schedule.EffectiveWindows(tpl, excByDate[schedule.DateKey(day)], day)
		for _, w := range windows {
			if f.ConsultationType != "" && !w.Allows(f.ConsultationType) {
				continue
			}

			iv := timewindow.AtMinutes(day, w.StartMinute, w.EndMinute, loc)
			slotDur := time.Duration(w.SlotMinutes) * time.Minute
			buffer := time.Duration(tpl.BufferMinutes) * time.Minute

			for _, s := range timewindow.Discretize(iv, slotDur, buffer) {
				if s.Start.Before(earliest) || s.Start.Before(from) || !s.Start.Before(to) {
					continue
				}

				count, err := g.counter.CountActiveOverlapping(ctx, providerID, s.Start, s.End, pad)
				if err != nil {
					return nil, fmt.Errorf("count occupancy: %w", err)
				}

				remaining := w.MaxConcurrent - count
				if remaining <= 0 && !f.IncludeFull {
					continue
				}
				if remaining < 0 {
					remaining = 0
				}

				out = append(out, AvailabilitySlot{
					ProviderID:        providerID,
					Start:             s.Start,
					End:               s.End,
					AllowedTypes:      w.AllowedTypes,
					MaxConcurrent:     w.MaxConcurrent,
					RemainingCapacity: remaining,
				})
			}
		}
	}

	sortSlots(out, f.PreferTime)
	return out, nil
}

func sortSlots(slots []AvailabilitySlot, preferTime *time.Time) {
	if preferTime == nil {
		sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
		return
	}

	distance := func(s AvailabilitySlot) float64 {
		return math.Abs(s.Start.Sub(*preferTime).Minutes())
	}
	sort.Slice(slots, func(i, j int) bool {
		di, dj := distance(slots[i]), distance(slots[j])
		if di != dj {
			return di < dj
		}
		return slots[i].Start.Before(slots[j].Start)
	})
}

// overlapPad returns the conflict-check padding implied by the template:
// when overlap is not allowed the buffer also separates appointments.
func overlapPad(tpl *schedule.ScheduleTemplate) time.Duration {
	if tpl.AllowOverlap {
		return 0
	}
	return time.Duration(tpl.BufferMinutes) * time.Minute
}
