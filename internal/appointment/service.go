package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/hms-scheduling/internal/events"
	"github.com/jashmhta/hms-scheduling/internal/redisclient"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/slot"
)

// ReserveRequest carries everything Reserve needs to commit one unit of
// capacity.
type ReserveRequest struct {
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	Start            time.Time
	End              time.Time
	ConsultationType schedule.ConsultationType
	Priority         Priority
	BookingChannel   string
	ActorID          uuid.UUID

	// Set by the series manager / reschedule path.
	SeriesID        *uuid.UUID
	ParentID        *uuid.UUID
	RescheduleCount int
}

// Engine is the transactional core: it re-validates the slot, takes the
// provider/window lock, and performs the atomic capacity check-and-insert.
type Engine struct {
	repo           Repository
	schedules      schedule.Repository
	locker         redisclient.WindowLocker
	emitter        events.Emitter
	minLeadTime    time.Duration
	maxAdvanceDays int
	log            zerolog.Logger
	now            func() time.Time
}

func NewEngine(repo Repository, schedules schedule.Repository, locker redisclient.WindowLocker, emitter events.Emitter, minLeadTime time.Duration, maxAdvanceDays int, log zerolog.Logger) *Engine {
	return &Engine{
		repo:           repo,
		schedules:      schedules,
		locker:         locker,
		emitter:        emitter,
		minLeadTime:    minLeadTime,
		maxAdvanceDays: maxAdvanceDays,
		log:            log,
		now:            time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Reserve atomically books one unit of capacity. Concurrent callers for the
// last unit of an overlapping window get exactly one success; the loser sees
// ErrSlotConflict and is expected to retry against another candidate slot.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	if !req.Start.Before(req.End) {
		return nil, fmt.Errorf("%w: start must precede end", ErrSlotUnavailable)
	}

	if err := e.repo.PatientExists(ctx, req.PatientID); err != nil {
		return nil, err
	}

	tpl, err := e.schedules.LoadTemplate(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("load template: %w", err)
	}

	now := e.now()
	if req.Start.Before(now.Add(e.minLeadTime)) {
		return nil, fmt.Errorf("%w: start is inside the minimum lead time", ErrOutOfPolicyWindow)
	}
	if req.Start.After(now.AddDate(0, 0, e.maxAdvanceDays)) {
		return nil, fmt.Errorf("%w: start is beyond the advance booking window", ErrOutOfPolicyWindow)
	}

	// Re-validate against the live template and that date's exception; an
	// earlier GenerateSlots read is advisory only.
	exc, err := e.exceptionFor(ctx, tpl, req.ProviderID, req.Start)
	if err != nil {
		return nil, err
	}
	match, err := slot.Resolve(tpl, exc, req.Start, req.End, req.ConsultationType)
	if err != nil {
		switch {
		case errors.Is(err, slot.ErrTypeNotAllowed):
			return nil, ErrUnsupportedConsultationType
		case errors.Is(err, slot.ErrNoMatchingSlot):
			return nil, ErrSlotUnavailable
		default:
			return nil, err
		}
	}

	status := StatusScheduled
	if tpl.RequiresConfirmation {
		status = StatusPendingConfirmation
	}

	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	params := InsertParams{
		ID:               uuid.New(),
		PatientID:        req.PatientID,
		ProviderID:       req.ProviderID,
		StartTime:        req.Start,
		EndTime:          req.End,
		Status:           status,
		Priority:         priority,
		ConsultationType: req.ConsultationType,
		BookingChannel:   req.BookingChannel,
		SeriesID:         req.SeriesID,
		ParentID:         req.ParentID,
		RescheduleCount:  req.RescheduleCount,
		BookedBy:         req.ActorID,
		MaxConcurrent:    match.Window.MaxConcurrent,
		OverlapPad:       match.OverlapPad,
	}

	var created *Appointment
	err = e.locker.WithWindowLock(ctx, req.ProviderID, req.Start, func(lockCtx context.Context) error {
		appt, err := e.repo.InsertIfCapacity(lockCtx, params)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrWindowBusy
		}
		return nil, err
	}

	e.emitter.Emit(ctx, events.Event{
		Type:          events.AppointmentBooked,
		AppointmentID: &created.ID,
		ProviderID:    created.ProviderID,
		PatientID:     created.PatientID,
		ScheduledAt:   created.StartTime,
		Payload: map[string]any{
			"status":            string(created.Status),
			"consultation_type": string(created.ConsultationType),
			"channel":           created.BookingChannel,
		},
	})

	e.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", created.ProviderID.String()).
		Time("start", created.StartTime).
		Str("status", string(created.Status)).
		Msg("appointment reserved")

	return created, nil
}

func (e *Engine) exceptionFor(ctx context.Context, tpl *schedule.ScheduleTemplate, providerID uuid.UUID, start time.Time) (*schedule.ScheduleException, error) {
	loc, err := tpl.Location()
	if err != nil {
		return nil, err
	}
	local := start.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	excs, err := e.schedules.LoadExceptions(ctx, providerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	if len(excs) == 0 {
		return nil, nil
	}
	return &excs[0], nil
}

// Confirm moves a scheduled or pending-confirmation appointment to
// confirmed.
func (e *Engine) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusConfirmed, events.AppointmentConfirmed, nil)
}

// CheckIn records patient arrival. Allowed from scheduled or confirmed only.
func (e *Engine) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusCheckedIn, "", nil)
}

// Begin marks the consultation as started.
func (e *Engine) Begin(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusInProgress, "", nil)
}

// Complete closes out a checked-in or in-progress appointment.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusCompleted, events.AppointmentCompleted, nil)
}

// MarkNoShow requires the scheduled time to have passed.
func (e *Engine) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	guard := func(appt *Appointment) error {
		if appt.StartTime.After(e.now()) {
			return fmt.Errorf("%w: cannot mark a future appointment as no-show", ErrInvalidTransition)
		}
		return nil
	}
	return e.transition(ctx, id, StatusNoShow, events.AppointmentNoShow, guard)
}

func (e *Engine) transition(ctx context.Context, id uuid.UUID, to Status, eventType events.Type, guard func(*Appointment) error) (*Appointment, error) {
	appt, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}
	if guard != nil {
		if err := guard(appt); err != nil {
			return nil, err
		}
	}

	updated, err := e.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		return nil, err
	}

	if eventType != "" {
		e.emitter.Emit(ctx, events.Event{
			Type:          eventType,
			AppointmentID: &updated.ID,
			ProviderID:    updated.ProviderID,
			PatientID:     updated.PatientID,
			ScheduledAt:   updated.StartTime,
		})
	}

	return updated, nil
}

// ExpireStalePendingConfirmations cancels pending-confirmation appointments
// older than ttl, freeing their capacity. Called by the sweeper.
func (e *Engine) ExpireStalePendingConfirmations(ctx context.Context, ttl time.Duration, onFreed func(ctx context.Context, appt Appointment)) error {
	stale, err := e.repo.FindStalePendingConfirmation(ctx, e.now().Add(-ttl))
	if err != nil {
		return fmt.Errorf("find stale pending confirmations: %w", err)
	}

	for _, appt := range stale {
		_, err := e.repo.MarkCancelled(ctx, appt.ID, StatusPendingConfirmation, e.now(), appt.BookedBy, "confirmation window elapsed", 100)
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			e.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("expire pending confirmation")
			continue
		}
		e.emitter.Emit(ctx, events.Event{
			Type:          events.AppointmentCancelled,
			AppointmentID: &appt.ID,
			ProviderID:    appt.ProviderID,
			PatientID:     appt.PatientID,
			ScheduledAt:   appt.StartTime,
			Payload:       map[string]any{"reason": "confirmation window elapsed"},
		})
		if onFreed != nil {
			onFreed(ctx, appt)
		}
	}

	return nil
}

// Get returns one appointment by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.repo.GetByID(ctx, id)
}

// ListByPatient returns a page of a patient's appointments.
func (e *Engine) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return e.repo.ListByPatient(ctx, patientID, limit, offset)
}
