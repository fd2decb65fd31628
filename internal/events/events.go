package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentBooked         Type = "APPOINTMENT_BOOKED"
	AppointmentConfirmed      Type = "APPOINTMENT_CONFIRMED"
	AppointmentCancelled      Type = "APPOINTMENT_CANCELLED"
	AppointmentRescheduled    Type = "APPOINTMENT_RESCHEDULED"
	AppointmentCompleted      Type = "APPOINTMENT_COMPLETED"
	AppointmentNoShow         Type = "APPOINTMENT_NO_SHOW"
	SlotOffered               Type = "SLOT_OFFERED"
	WaitlistPromotionExpired  Type = "WAITLIST_PROMOTION_EXPIRED"
	WaitlistPromotionAccepted Type = "WAITLIST_PROMOTION_ACCEPTED"
)

// Event carries the identifiers a downstream notification consumer needs;
// the engine never knows delivery channels.
type Event struct {
	Type          Type
	AppointmentID *uuid.UUID
	ProviderID    uuid.UUID
	PatientID     uuid.UUID
	ScheduledAt   time.Time
	Payload       map[string]any
	CreatedAt     time.Time
}

// Emitter publishes domain events. Emission is best effort: implementations
// log failures and never fail the operation that produced the event.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Discard is an Emitter that drops everything. Useful in tests.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
