package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/events"
	"github.com/jashmhta/hms-scheduling/internal/redisclient"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/slot"
)

var (
	ErrOfferExpired     = errors.New("offer response deadline has passed")
	ErrEntryNotActive   = errors.New("waitlist entry is not active")
	ErrInvalidDateRange = errors.New("waitlist date range start must precede end")
)

// Reserver is the slice of the reservation engine used for promotion.
type Reserver interface {
	Reserve(ctx context.Context, req appointment.ReserveRequest) (*appointment.Appointment, error)
}

type JoinRequest struct {
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	ConsultationType schedule.ConsultationType
	DateFrom         time.Time
	DateTo           time.Time
	Windows          []TimeOfDayWindow
	Urgency          appointment.Priority
}

type Service struct {
	repo        Repository
	reserver    Reserver
	counter     slot.OverlapCounter
	schedules   schedule.Repository
	locker      redisclient.WindowLocker
	emitter     events.Emitter
	minLeadTime time.Duration
	offerTTL    time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, reserver Reserver, counter slot.OverlapCounter, schedules schedule.Repository, locker redisclient.WindowLocker, emitter events.Emitter, minLeadTime, offerTTL time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		reserver:    reserver,
		counter:     counter,
		schedules:   schedules,
		locker:      locker,
		emitter:     emitter,
		minLeadTime: minLeadTime,
		offerTTL:    offerTTL,
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Join enqueues a standing request and returns the entry with its dense
// queue position.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*Entry, error) {
	if !req.DateFrom.Before(req.DateTo) {
		return nil, ErrInvalidDateRange
	}

	urgency := req.Urgency
	if urgency == "" {
		urgency = appointment.PriorityMedium
	}

	entry, err := s.repo.Insert(ctx, Entry{
		ProviderID:       req.ProviderID,
		PatientID:        req.PatientID,
		ConsultationType: req.ConsultationType,
		DateFrom:         req.DateFrom,
		DateTo:           req.DateTo,
		Windows:          req.Windows,
		Urgency:          urgency,
	})
	if err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}

	if err := s.repo.RecomputePositions(ctx, req.ProviderID); err != nil {
		return nil, err
	}

	// Re-read for the assigned position.
	return s.repo.Get(ctx, entry.ID)
}

// OnCapacityFreed scans the provider's queue in rank order and offers the
// freed window to the first compatible entry. Runs under the same
// provider/window lock as direct reservation, so only one promotion attempt
// per freed window is in flight at a time.
func (s *Service) OnCapacityFreed(ctx context.Context, providerID uuid.UUID, freedStart, freedEnd time.Time, ct schedule.ConsultationType) error {
	tpl, err := s.schedules.LoadTemplate(ctx, providerID)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			return nil
		}
		return fmt.Errorf("load template: %w", err)
	}
	loc, err := tpl.Location()
	if err != nil {
		return err
	}

	err = s.locker.WithWindowLock(ctx, providerID, freedStart, func(lockCtx context.Context) error {
		return s.matchLocked(lockCtx, tpl, loc, providerID, freedStart, freedEnd, ct)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		// A direct booking or another promotion owns the window; whoever
		// wins will either consume or re-free the capacity.
		return nil
	}
	return err
}

func (s *Service) matchLocked(ctx context.Context, tpl *schedule.ScheduleTemplate, loc *time.Location, providerID uuid.UUID, freedStart, freedEnd time.Time, ct schedule.ConsultationType) error {
	now := s.now()

	// Reservation rejects starts inside the minimum lead window, so an offer
	// for a last-minute freed slot could never be accepted.
	if freedStart.Before(now.Add(s.minLeadTime)) {
		return nil
	}

	// The freed window may already be taken again (offer raced a direct
	// booking); offering a full slot would only bounce the acceptance.
	free, err := s.windowHasCapacity(ctx, tpl, providerID, freedStart, freedEnd)
	if err != nil {
		return err
	}
	if !free {
		return nil
	}

	entries, err := s.repo.ListActive(ctx, providerID)
	if err != nil {
		return fmt.Errorf("list active entries: %w", err)
	}

	for i := range entries {
		e := &entries[i]

		// Lazy expiry of entries whose acceptable range is over.
		if e.DateRangeLapsed(now) {
			if _, err := s.repo.UpdateStatus(ctx, e.ID, StatusActive, StatusExpired); err != nil && !errors.Is(err, ErrEntryNotFound) {
				return err
			}
			continue
		}

		if !e.Matches(freedStart, freedEnd, ct, loc) {
			continue
		}

		offered, err := s.repo.MarkOffered(ctx, e.ID, freedStart, freedEnd, now.Add(s.offerTTL))
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				continue // raced a cancellation; next candidate
			}
			return err
		}

		s.emitter.Emit(ctx, events.Event{
			Type:        events.SlotOffered,
			ProviderID:  providerID,
			PatientID:   offered.PatientID,
			ScheduledAt: freedStart,
			Payload: map[string]any{
				"entry_id": offered.ID.String(),
				"deadline": offered.ResponseDeadline,
			},
		})
		s.log.Info().
			Str("entry_id", offered.ID.String()).
			Str("provider_id", providerID.String()).
			Time("freed_start", freedStart).
			Msg("slot offered to waitlist entry")

		return s.repo.RecomputePositions(ctx, providerID)
	}

	// No compatible entry; the capacity stays open for direct booking.
	return s.repo.RecomputePositions(ctx, providerID)
}

func (s *Service) windowHasCapacity(ctx context.Context, tpl *schedule.ScheduleTemplate, providerID uuid.UUID, start, end time.Time) (bool, error) {
	exc, err := s.exceptionFor(ctx, tpl, providerID, start)
	if err != nil {
		return false, err
	}
	match, err := slot.Resolve(tpl, exc, start, end, "")
	if err != nil {
		// The freed interval no longer maps to a generated slot (template or
		// exception changed); nothing to promote into.
		return false, nil
	}

	count, err := s.counter.CountActiveOverlapping(ctx, providerID, start, end, match.OverlapPad)
	if err != nil {
		return false, err
	}
	return count < match.Window.MaxConcurrent, nil
}

func (s *Service) exceptionFor(ctx context.Context, tpl *schedule.ScheduleTemplate, providerID uuid.UUID, start time.Time) (*schedule.ScheduleException, error) {
	loc, err := tpl.Location()
	if err != nil {
		return nil, err
	}
	local := start.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	excs, err := s.schedules.LoadExceptions(ctx, providerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if len(excs) == 0 {
		return nil, nil
	}
	return &excs[0], nil
}

// RespondToOffer resolves a pending offer. Accepting reserves the offered
// slot on the entry's behalf; a lost race drops the entry back to active and
// matching moves on to the next candidate.
func (s *Service) RespondToOffer(ctx context.Context, entryID uuid.UUID, accept bool) (*Entry, *appointment.Appointment, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status != StatusOffered || entry.OfferedStart == nil || entry.OfferedEnd == nil {
		return nil, nil, ErrNotOffered
	}

	freedStart, freedEnd := *entry.OfferedStart, *entry.OfferedEnd
	now := s.now()

	if entry.ResponseDeadline != nil && entry.ResponseDeadline.Before(now) {
		if err := s.expireOffer(ctx, entry); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrOfferExpired
	}

	if !accept {
		resolved, err := s.repo.ResolveOffer(ctx, entryID, StatusDeclined)
		if err != nil {
			return nil, nil, err
		}
		if err := s.repo.RecomputePositions(ctx, entry.ProviderID); err != nil {
			return nil, nil, err
		}
		// The window is still free; move on to the next candidate.
		if err := s.OnCapacityFreed(ctx, entry.ProviderID, freedStart, freedEnd, entry.ConsultationType); err != nil {
			s.log.Error().Err(err).Str("entry_id", entryID.String()).Msg("rematch after decline")
		}
		return resolved, nil, nil
	}

	appt, err := s.reserver.Reserve(ctx, appointment.ReserveRequest{
		ProviderID:       entry.ProviderID,
		PatientID:        entry.PatientID,
		Start:            freedStart,
		End:              freedEnd,
		ConsultationType: entry.ConsultationType,
		Priority:         entry.Urgency,
		BookingChannel:   "waitlist",
		ActorID:          entry.PatientID,
	})
	if err != nil {
		if errors.Is(err, appointment.ErrSlotConflict) ||
			errors.Is(err, appointment.ErrWindowBusy) ||
			errors.Is(err, appointment.ErrSlotUnavailable) ||
			errors.Is(err, appointment.ErrOutOfPolicyWindow) ||
			errors.Is(err, appointment.ErrUnsupportedConsultationType) {
			// Raced away or no longer bookable; fall back to active and let
			// matching retry.
			if _, rErr := s.repo.ResolveOffer(ctx, entryID, StatusActive); rErr != nil {
				return nil, nil, rErr
			}
			if rErr := s.repo.RecomputePositions(ctx, entry.ProviderID); rErr != nil {
				return nil, nil, rErr
			}
			return nil, nil, err
		}
		return nil, nil, err
	}

	resolved, err := s.repo.ResolveOffer(ctx, entryID, StatusAccepted)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.RecomputePositions(ctx, entry.ProviderID); err != nil {
		return nil, nil, err
	}

	s.emitter.Emit(ctx, events.Event{
		Type:          events.WaitlistPromotionAccepted,
		AppointmentID: &appt.ID,
		ProviderID:    entry.ProviderID,
		PatientID:     entry.PatientID,
		ScheduledAt:   appt.StartTime,
		Payload:       map[string]any{"entry_id": entryID.String()},
	})

	return resolved, appt, nil
}

// CancelEntry removes a standing request (logically, via status).
func (s *Service) CancelEntry(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	entry, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	var resolved *Entry
	switch entry.Status {
	case StatusActive:
		resolved, err = s.repo.UpdateStatus(ctx, entryID, StatusActive, StatusCancelled)
	case StatusOffered:
		resolved, err = s.repo.ResolveOffer(ctx, entryID, StatusCancelled)
	default:
		return nil, ErrEntryNotActive
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.RecomputePositions(ctx, entry.ProviderID); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *Service) expireOffer(ctx context.Context, entry *Entry) error {
	if _, err := s.repo.ResolveOffer(ctx, entry.ID, StatusExpired); err != nil {
		if errors.Is(err, ErrNotOffered) || errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		return err
	}

	s.emitter.Emit(ctx, events.Event{
		Type:        events.WaitlistPromotionExpired,
		ProviderID:  entry.ProviderID,
		PatientID:   entry.PatientID,
		ScheduledAt: derefTime(entry.OfferedStart),
		Payload:     map[string]any{"entry_id": entry.ID.String()},
	})

	if err := s.repo.RecomputePositions(ctx, entry.ProviderID); err != nil {
		return err
	}

	if entry.OfferedStart != nil && entry.OfferedEnd != nil {
		if err := s.OnCapacityFreed(ctx, entry.ProviderID, *entry.OfferedStart, *entry.OfferedEnd, entry.ConsultationType); err != nil {
			s.log.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("rematch after offer expiry")
		}
	}
	return nil
}

// SweepExpired expires offers past their deadline and entries whose date
// range has lapsed. Called periodically by the offer sweeper; expiry is a
// pure function of stored deadlines vs. now, so the sweep and the lazy
// check-on-access paths agree.
func (s *Service) SweepExpired(ctx context.Context) error {
	now := s.now()

	expired, err := s.repo.FindExpiredOffers(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired offers: %w", err)
	}
	for i := range expired {
		if err := s.expireOffer(ctx, &expired[i]); err != nil {
			s.log.Error().Err(err).Str("entry_id", expired[i].ID.String()).Msg("expire offer")
		}
	}

	lapsed, err := s.repo.FindLapsedActive(ctx, now)
	if err != nil {
		return fmt.Errorf("find lapsed entries: %w", err)
	}
	for i := range lapsed {
		e := &lapsed[i]
		if _, err := s.repo.UpdateStatus(ctx, e.ID, StatusActive, StatusExpired); err != nil {
			if !errors.Is(err, ErrEntryNotFound) {
				s.log.Error().Err(err).Str("entry_id", e.ID.String()).Msg("expire lapsed entry")
			}
			continue
		}
		if err := s.repo.RecomputePositions(ctx, e.ProviderID); err != nil {
			return err
		}
	}

	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
