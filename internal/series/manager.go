package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

// Reserver is the slice of the reservation engine the series manager needs.
type Reserver interface {
	Reserve(ctx context.Context, req appointment.ReserveRequest) (*appointment.Appointment, error)
}

type CreateSeriesRequest struct {
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	Pattern          Pattern
	FirstStart       time.Time
	FirstEnd         time.Time
	ConsultationType schedule.ConsultationType
	Priority         appointment.Priority
	BookingChannel   string
	ActorID          uuid.UUID
}

// OccurrenceFailure names one occurrence that could not be reserved.
type OccurrenceFailure struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
	Err    error     `json:"-"`
}

// Result is deliberately partial-success: created occurrences are not
// rolled back when a later one fails; the caller decides what to do with
// the failures.
type Result struct {
	SeriesID uuid.UUID
	Created  []appointment.Appointment
	Failed   []OccurrenceFailure
}

type Manager struct {
	reserver  Reserver
	repo      Repository
	schedules schedule.Repository
	limits    Limits
	log       zerolog.Logger
}

func NewManager(reserver Reserver, repo Repository, schedules schedule.Repository, limits Limits, log zerolog.Logger) *Manager {
	return &Manager{
		reserver:  reserver,
		repo:      repo,
		schedules: schedules,
		limits:    limits,
		log:       log,
	}
}

// CreateSeries expands the pattern and reserves each occurrence
// independently. The series row is created with the first successful
// occurrence; successes chain via parent appointment ids.
func (m *Manager) CreateSeries(ctx context.Context, req CreateSeriesRequest) (*Result, error) {
	if !req.FirstStart.Before(req.FirstEnd) {
		return nil, errors.New("first occurrence start must precede end")
	}

	tpl, err := m.schedules.LoadTemplate(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	loc, err := tpl.Location()
	if err != nil {
		return nil, err
	}

	occurrences, err := Expand(req.FirstStart, req.Pattern, loc, m.limits)
	if err != nil {
		return nil, err
	}
	if len(occurrences) == 0 {
		return nil, errors.New("pattern expands to no occurrences")
	}

	duration := req.FirstEnd.Sub(req.FirstStart)
	seriesID := uuid.New()

	result := &Result{SeriesID: seriesID}
	var seriesPersisted bool
	var parentID *uuid.UUID

	for _, start := range occurrences {
		appt, err := m.reserver.Reserve(ctx, appointment.ReserveRequest{
			ProviderID:       req.ProviderID,
			PatientID:        req.PatientID,
			Start:            start,
			End:              start.Add(duration),
			ConsultationType: req.ConsultationType,
			Priority:         req.Priority,
			BookingChannel:   req.BookingChannel,
			ActorID:          req.ActorID,
			SeriesID:         &seriesID,
			ParentID:         parentID,
		})
		if err != nil {
			result.Failed = append(result.Failed, OccurrenceFailure{
				Date:   start,
				Reason: failureReason(err),
				Err:    err,
			})
			continue
		}

		if !seriesPersisted {
			// The series row exists from the moment its first occurrence does.
			if err := m.repo.InsertSeries(ctx, Series{
				ID:         seriesID,
				ProviderID: req.ProviderID,
				PatientID:  req.PatientID,
				Pattern:    req.Pattern,
				CreatedBy:  req.ActorID,
				CreatedAt:  time.Now(),
			}); err != nil {
				return nil, fmt.Errorf("insert series: %w", err)
			}
			seriesPersisted = true
		}

		result.Created = append(result.Created, *appt)
		id := appt.ID
		parentID = &id
	}

	m.log.Info().
		Str("series_id", seriesID.String()).
		Int("created", len(result.Created)).
		Int("failed", len(result.Failed)).
		Msg("series expansion complete")

	if len(result.Created) == 0 {
		// Nothing was booked; surface the first failure so the caller sees
		// a concrete reason instead of an empty result.
		return result, fmt.Errorf("no occurrence could be reserved: %w", result.Failed[0].Err)
	}

	return result, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, appointment.ErrSlotConflict):
		return "conflict"
	case errors.Is(err, appointment.ErrWindowBusy):
		return "window_busy"
	case errors.Is(err, appointment.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, appointment.ErrOutOfPolicyWindow):
		return "out_of_policy_window"
	case errors.Is(err, appointment.ErrUnsupportedConsultationType):
		return "unsupported_consultation_type"
	default:
		return "error"
	}
}

// ListOccurrences returns the child appointments of a series in start order.
func (m *Manager) ListOccurrences(ctx context.Context, seriesID uuid.UUID) ([]appointment.Appointment, error) {
	return m.repo.ListAppointments(ctx, seriesID)
}
