package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

type Status string

const (
	StatusScheduled           Status = "scheduled"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusCheckedIn           Status = "checked_in"
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
	StatusNoShow              Status = "no_show"
	StatusRescheduled         Status = "rescheduled"
)

// HoldsCapacity reports whether an appointment in this status still occupies
// a unit of slot capacity.
func (s Status) HoldsCapacity() bool {
	switch s {
	case StatusScheduled, StatusPendingConfirmation, StatusConfirmed, StatusCheckedIn, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// transitions is the explicit state machine. Anything not listed is invalid
// and surfaces as ErrInvalidTransition, never silently coerced.
var transitions = map[Status][]Status{
	StatusScheduled:           {StatusConfirmed, StatusCheckedIn, StatusCancelled, StatusRescheduled, StatusNoShow},
	StatusPendingConfirmation: {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusConfirmed:           {StatusCheckedIn, StatusCancelled, StatusRescheduled, StatusNoShow},
	StatusCheckedIn:           {StatusInProgress, StatusCompleted},
	StatusInProgress:          {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for queueing; lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Appointment struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	ProviderID       uuid.UUID
	StartTime        time.Time
	EndTime          time.Time
	Status           Status
	Priority         Priority
	PaymentStatus    PaymentStatus
	ConsultationType schedule.ConsultationType
	BookingChannel   string

	// Series linkage
	SeriesID            *uuid.UUID
	ParentAppointmentID *uuid.UUID

	// Reschedule / cancellation audit
	RescheduleCount int
	RescheduledTo   *uuid.UUID
	CancelledAt     *time.Time
	CancelledBy     *uuid.UUID
	CancelReason    string
	RefundPercent   *int

	BookedBy  uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}
