package waitlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusOffered   Status = "offered"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

type TimePreference string

const (
	PreferPreferred  TimePreference = "preferred"
	PreferAcceptable TimePreference = "acceptable"
	PreferAvoid      TimePreference = "avoid"
)

// TimeOfDayWindow is a ranked minute-of-day range the patient will (or will
// not) take.
type TimeOfDayWindow struct {
	StartMinute int            `json:"start_minute"`
	EndMinute   int            `json:"end_minute"`
	Preference  TimePreference `json:"preference"`
}

// Entry is a standing request for capacity with a provider.
type Entry struct {
	ID               uuid.UUID
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	ConsultationType schedule.ConsultationType
	DateFrom         time.Time
	DateTo           time.Time
	Windows          []TimeOfDayWindow
	Urgency          appointment.Priority
	Status           Status
	// Position is dense 1..N across the provider's active entries,
	// recomputed on every state change.
	Position int

	OfferedStart     *time.Time
	OfferedEnd       *time.Time
	ResponseDeadline *time.Time
	OfferCount       int

	JoinedAt  time.Time
	UpdatedAt time.Time
}

// Matches reports whether a freed window is acceptable to this entry. The
// freed start must fall inside the entry's date range, the consultation type
// must agree, the slot must not sit in an avoid window, and at least one
// preferred or acceptable window must overlap it. An entry with no
// preferred/acceptable windows takes any time of day.
func (e *Entry) Matches(freedStart, freedEnd time.Time, ct schedule.ConsultationType, loc *time.Location) bool {
	if e.Status != StatusActive {
		return false
	}
	if e.ConsultationType != "" && ct != "" && e.ConsultationType != ct {
		return false
	}
	if freedStart.Before(e.DateFrom) || freedStart.After(e.DateTo) {
		return false
	}

	local := freedStart.In(loc)
	startMin := local.Hour()*60 + local.Minute()
	endMin := startMin + int(freedEnd.Sub(freedStart).Minutes())

	overlaps := func(w TimeOfDayWindow) bool {
		return startMin < w.EndMinute && w.StartMinute < endMin
	}

	var hasWanted, wantedHit bool
	for _, w := range e.Windows {
		switch w.Preference {
		case PreferAvoid:
			if overlaps(w) {
				return false
			}
		case PreferPreferred, PreferAcceptable:
			hasWanted = true
			if overlaps(w) {
				wantedHit = true
			}
		}
	}

	return !hasWanted || wantedHit
}

// DateRangeLapsed reports whether the acceptable range is entirely in the
// past; such entries auto-expire on the next scan.
func (e *Entry) DateRangeLapsed(now time.Time) bool {
	return e.DateTo.Before(now)
}
