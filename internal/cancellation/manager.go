package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/events"
	"github.com/jashmhta/hms-scheduling/internal/policy"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

// Reserver is the slice of the reservation engine used to book the
// replacement slot during a reschedule.
type Reserver interface {
	Reserve(ctx context.Context, req appointment.ReserveRequest) (*appointment.Appointment, error)
}

// FreedNotifier receives released capacity; satisfied by waitlist.Service.
type FreedNotifier interface {
	OnCapacityFreed(ctx context.Context, providerID uuid.UUID, freedStart, freedEnd time.Time, ct schedule.ConsultationType) error
}

type CancelResult struct {
	Appointment   *appointment.Appointment
	RefundPercent int
}

type Manager struct {
	appts          appointment.Repository
	reserver       Reserver
	policies       policy.Store
	waitlist       FreedNotifier
	emitter        events.Emitter
	maxReschedules int
	minNotice      time.Duration
	log            zerolog.Logger
	now            func() time.Time
}

func NewManager(appts appointment.Repository, reserver Reserver, policies policy.Store, waitlist FreedNotifier, emitter events.Emitter, maxReschedules int, minNotice time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		appts:          appts,
		reserver:       reserver,
		policies:       policies,
		waitlist:       waitlist,
		emitter:        emitter,
		maxReschedules: maxReschedules,
		minNotice:      minNotice,
		log:            log,
		now:            time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Cancel applies the provider's refund policy, transitions the appointment
// to cancelled, and hands the freed window to the waitlist. Cancelling an
// already-cancelled appointment returns the original outcome without side
// effects.
func (m *Manager) Cancel(ctx context.Context, apptID uuid.UUID, reasonCategory, reasonText string, actorID uuid.UUID) (*CancelResult, error) {
	appt, err := m.appts.GetByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	if appt.Status == appointment.StatusCancelled {
		refund := 0
		if appt.RefundPercent != nil {
			refund = *appt.RefundPercent
		}
		return &CancelResult{Appointment: appt, RefundPercent: refund}, nil
	}

	if !appointment.CanTransition(appt.Status, appointment.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> cancelled", appointment.ErrInvalidTransition, appt.Status)
	}

	pol, err := m.policies.PolicyFor(ctx, appt.ProviderID)
	if err != nil {
		return nil, err
	}
	refund := pol.RefundFor(appt.StartTime.Sub(m.now()))

	reason := reasonCategory
	if reasonText != "" {
		reason = reasonCategory + ": " + reasonText
	}

	updated, err := m.appts.MarkCancelled(ctx, apptID, appt.Status, m.now(), actorID, reason, refund)
	if err != nil {
		if errors.Is(err, appointment.ErrInvalidTransition) {
			// Raced another cancel; re-read for the idempotent answer.
			return m.Cancel(ctx, apptID, reasonCategory, reasonText, actorID)
		}
		return nil, err
	}

	m.emitter.Emit(ctx, events.Event{
		Type:          events.AppointmentCancelled,
		AppointmentID: &updated.ID,
		ProviderID:    updated.ProviderID,
		PatientID:     updated.PatientID,
		ScheduledAt:   updated.StartTime,
		Payload: map[string]any{
			"reason":         reason,
			"refund_percent": refund,
			"cancelled_by":   actorID.String(),
		},
	})

	if err := m.waitlist.OnCapacityFreed(ctx, updated.ProviderID, updated.StartTime, updated.EndTime, updated.ConsultationType); err != nil {
		// Promotion is best effort; the capacity is free for direct booking
		// regardless.
		m.log.Error().Err(err).Str("appointment_id", apptID.String()).Msg("waitlist promotion after cancel")
	}

	return &CancelResult{Appointment: updated, RefundPercent: refund}, nil
}

// Reschedule books the new slot first, so the old one is never lost to a
// failed move, then side-exits the old appointment with a forward link.
func (m *Manager) Reschedule(ctx context.Context, apptID uuid.UUID, newStart, newEnd time.Time, actorID uuid.UUID) (*appointment.Appointment, error) {
	appt, err := m.appts.GetByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	if !appointment.CanTransition(appt.Status, appointment.StatusRescheduled) {
		return nil, fmt.Errorf("%w: %s -> rescheduled", appointment.ErrInvalidTransition, appt.Status)
	}
	if appt.RescheduleCount >= m.maxReschedules {
		return nil, fmt.Errorf("%w: reschedule limit of %d reached", appointment.ErrOutOfPolicyWindow, m.maxReschedules)
	}
	if appt.StartTime.Sub(m.now()) < m.minNotice {
		return nil, fmt.Errorf("%w: too close to the appointment to reschedule", appointment.ErrOutOfPolicyWindow)
	}

	replacement, err := m.reserver.Reserve(ctx, appointment.ReserveRequest{
		ProviderID:       appt.ProviderID,
		PatientID:        appt.PatientID,
		Start:            newStart,
		End:              newEnd,
		ConsultationType: appt.ConsultationType,
		Priority:         appt.Priority,
		BookingChannel:   appt.BookingChannel,
		ActorID:          actorID,
		SeriesID:         appt.SeriesID,
		ParentID:         &appt.ID,
		RescheduleCount:  appt.RescheduleCount + 1,
	})
	if err != nil {
		return nil, err
	}

	old, err := m.appts.MarkRescheduled(ctx, apptID, appt.Status, replacement.ID)
	if err != nil {
		// The old appointment moved under us after the new slot was booked;
		// release the replacement so capacity is not held twice.
		if _, cErr := m.appts.MarkCancelled(ctx, replacement.ID, replacement.Status, m.now(), actorID, "reschedule aborted", 100); cErr != nil {
			m.log.Error().Err(cErr).Str("appointment_id", replacement.ID.String()).Msg("release replacement after failed reschedule")
		}
		return nil, err
	}

	m.emitter.Emit(ctx, events.Event{
		Type:          events.AppointmentRescheduled,
		AppointmentID: &replacement.ID,
		ProviderID:    replacement.ProviderID,
		PatientID:     replacement.PatientID,
		ScheduledAt:   replacement.StartTime,
		Payload: map[string]any{
			"previous_appointment_id": apptID.String(),
			"previous_start":          old.StartTime,
			"reschedule_count":        replacement.RescheduleCount,
		},
	})

	if err := m.waitlist.OnCapacityFreed(ctx, old.ProviderID, old.StartTime, old.EndTime, old.ConsultationType); err != nil {
		m.log.Error().Err(err).Str("appointment_id", apptID.String()).Msg("waitlist promotion after reschedule")
	}

	return replacement, nil
}
