package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")

	// ErrSlotConflict means the capacity check lost a race: the caller may
	// retry against another candidate slot.
	ErrSlotConflict = errors.New("slot capacity exhausted")
	// ErrWindowBusy means another booking holds the provider/window lock.
	ErrWindowBusy = errors.New("window is currently being booked, please retry")
	// ErrSlotUnavailable means the requested interval does not match any
	// currently valid availability slot.
	ErrSlotUnavailable = errors.New("requested time is not an available slot")
	// ErrOutOfPolicyWindow covers lead-time and advance-window violations.
	ErrOutOfPolicyWindow           = errors.New("requested time violates booking policy window")
	ErrUnsupportedConsultationType = errors.New("consultation type not permitted for this window")
	ErrInvalidTransition           = errors.New("invalid appointment status transition")
)

// InsertParams describes the conditional insert performed by
// InsertIfCapacity. Everything needed for the capacity predicate travels
// with the insert so check and commit share one transaction.
type InsertParams struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	ProviderID       uuid.UUID
	StartTime        time.Time
	EndTime          time.Time
	Status           Status
	Priority         Priority
	ConsultationType schedule.ConsultationType
	BookingChannel   string
	SeriesID         *uuid.UUID
	ParentID         *uuid.UUID
	RescheduleCount  int
	BookedBy         uuid.UUID

	MaxConcurrent int
	// OverlapPad widens the conflict window on both sides, enforcing the
	// template buffer when overlap is not allowed.
	OverlapPad time.Duration
}

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CountActiveOverlapping counts capacity-holding appointments for the
	// provider that intersect [start-pad, end+pad).
	CountActiveOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, pad time.Duration) (int, error)

	// InsertIfCapacity atomically re-counts overlapping capacity and inserts
	// the appointment, returning ErrSlotConflict when the count would exceed
	// MaxConcurrent. The count and insert run in one serializable
	// transaction.
	InsertIfCapacity(ctx context.Context, p InsertParams) (*Appointment, error)

	// UpdateStatus is a compare-and-set transition from -> to.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// MarkCancelled is the CAS transition to cancelled plus audit fields.
	MarkCancelled(ctx context.Context, id uuid.UUID, from Status, at time.Time, by uuid.UUID, reason string, refundPercent int) (*Appointment, error)

	// MarkRescheduled is the CAS side-exit with a forward link to the
	// replacement appointment.
	MarkRescheduled(ctx context.Context, id uuid.UUID, from Status, replacementID uuid.UUID) (*Appointment, error)

	// FindStalePendingConfirmation returns pending-confirmation appointments
	// created before the cutoff, for the sweeper.
	FindStalePendingConfirmation(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]Appointment, error)

	PatientExists(ctx context.Context, id uuid.UUID) error
}
