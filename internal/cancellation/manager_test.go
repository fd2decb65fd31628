package cancellation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/events"
	"github.com/jashmhta/hms-scheduling/internal/policy"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

// apptStore is the minimal in-memory appointment.Repository the manager
// exercises.
type apptStore struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*appointment.Appointment
}

func newApptStore() *apptStore {
	return &apptStore{appts: make(map[uuid.UUID]*appointment.Appointment)}
}

func (s *apptStore) add(a *appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = a
}

func (s *apptStore) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *apptStore) CountActiveOverlapping(_ context.Context, _ uuid.UUID, _, _ time.Time, _ time.Duration) (int, error) {
	return 0, nil
}

func (s *apptStore) InsertIfCapacity(_ context.Context, p appointment.InsertParams) (*appointment.Appointment, error) {
	a := &appointment.Appointment{
		ID:                  p.ID,
		PatientID:           p.PatientID,
		ProviderID:          p.ProviderID,
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		Status:              p.Status,
		Priority:            p.Priority,
		ConsultationType:    p.ConsultationType,
		BookingChannel:      p.BookingChannel,
		SeriesID:            p.SeriesID,
		ParentAppointmentID: p.ParentID,
		RescheduleCount:     p.RescheduleCount,
		BookedBy:            p.BookedBy,
	}
	s.add(a)
	cp := *a
	return &cp, nil
}

func (s *apptStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (s *apptStore) MarkCancelled(_ context.Context, id uuid.UUID, from appointment.Status, at time.Time, by uuid.UUID, reason string, refundPercent int) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = appointment.StatusCancelled
	a.CancelledAt = &at
	a.CancelledBy = &by
	a.CancelReason = reason
	a.RefundPercent = &refundPercent
	cp := *a
	return &cp, nil
}

func (s *apptStore) MarkRescheduled(_ context.Context, id uuid.UUID, from appointment.Status, replacementID uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = appointment.StatusRescheduled
	a.RescheduledTo = &replacementID
	cp := *a
	return &cp, nil
}

func (s *apptStore) FindStalePendingConfirmation(_ context.Context, _ time.Time) ([]appointment.Appointment, error) {
	return nil, nil
}

func (s *apptStore) ListByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]appointment.Appointment, error) {
	return nil, nil
}

func (s *apptStore) ListBySeries(_ context.Context, _ uuid.UUID) ([]appointment.Appointment, error) {
	return nil, nil
}

func (s *apptStore) PatientExists(_ context.Context, _ uuid.UUID) error {
	return nil
}

// storeReserver books straight into the store, optionally failing first.
type storeReserver struct {
	store        *apptStore
	err          error
	afterReserve func()
}

func (r *storeReserver) Reserve(ctx context.Context, req appointment.ReserveRequest) (*appointment.Appointment, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.afterReserve != nil {
		defer r.afterReserve()
	}
	return r.store.InsertIfCapacity(ctx, appointment.InsertParams{
		ID:               uuid.New(),
		PatientID:        req.PatientID,
		ProviderID:       req.ProviderID,
		StartTime:        req.Start,
		EndTime:          req.End,
		Status:           appointment.StatusScheduled,
		Priority:         req.Priority,
		ConsultationType: req.ConsultationType,
		BookingChannel:   req.BookingChannel,
		SeriesID:         req.SeriesID,
		ParentID:         req.ParentID,
		RescheduleCount:  req.RescheduleCount,
		BookedBy:         req.ActorID,
	})
}

type freedRecorder struct {
	freed []time.Time
}

func (f *freedRecorder) OnCapacityFreed(_ context.Context, _ uuid.UUID, freedStart, _ time.Time, _ schedule.ConsultationType) error {
	f.freed = append(f.freed, freedStart)
	return nil
}

type cancelFixture struct {
	mgr      *Manager
	store    *apptStore
	reserver *storeReserver
	waitlist *freedRecorder
	now      time.Time
}

func newCancelFixture(t *testing.T, pol policy.Policy) *cancelFixture {
	t.Helper()
	store := newApptStore()
	reserver := &storeReserver{store: store}
	waitlist := &freedRecorder{}
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	mgr := NewManager(store, reserver, policy.Static{P: pol}, waitlist, events.Discard{}, 3, 2*time.Hour, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	return &cancelFixture{mgr: mgr, store: store, reserver: reserver, waitlist: waitlist, now: now}
}

func (f *cancelFixture) appointment(status appointment.Status, startsIn time.Duration) *appointment.Appointment {
	a := &appointment.Appointment{
		ID:               uuid.New(),
		PatientID:        uuid.New(),
		ProviderID:       uuid.New(),
		StartTime:        f.now.Add(startsIn),
		EndTime:          f.now.Add(startsIn + 30*time.Minute),
		Status:           status,
		Priority:         appointment.PriorityMedium,
		ConsultationType: schedule.ConsultGeneral,
		BookingChannel:   "api",
	}
	f.store.add(a)
	return a
}

func TestCancelRefundTiers(t *testing.T) {
	tests := []struct {
		name       string
		startsIn   time.Duration
		wantRefund int
	}{
		{"inside two hours", 90 * time.Minute, 0},
		{"same day", 20 * time.Hour, 50},
		{"well in advance", 72 * time.Hour, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCancelFixture(t, policy.Default())
			appt := f.appointment(appointment.StatusScheduled, tt.startsIn)

			res, err := f.mgr.Cancel(context.Background(), appt.ID, "patient_request", "", appt.PatientID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRefund, res.RefundPercent)
			assert.Equal(t, appointment.StatusCancelled, res.Appointment.Status)
		})
	}
}

func TestCancelRecordsReasonAndFreesWindow(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusConfirmed, 72*time.Hour)

	res, err := f.mgr.Cancel(context.Background(), appt.ID, "provider_unavailable", "called in sick", appt.ProviderID)
	require.NoError(t, err)

	assert.Equal(t, "provider_unavailable: called in sick", res.Appointment.CancelReason)
	require.Len(t, f.waitlist.freed, 1)
	assert.True(t, f.waitlist.freed[0].Equal(appt.StartTime))
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusScheduled, 72*time.Hour)

	first, err := f.mgr.Cancel(context.Background(), appt.ID, "patient_request", "", appt.PatientID)
	require.NoError(t, err)

	second, err := f.mgr.Cancel(context.Background(), appt.ID, "patient_request", "", appt.PatientID)
	require.NoError(t, err)

	// The second call reports the original outcome and frees nothing new.
	assert.Equal(t, first.RefundPercent, second.RefundPercent)
	assert.Len(t, f.waitlist.freed, 1)
}

func TestCancelRejectsTerminalStatus(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusCompleted, -2*time.Hour)

	_, err := f.mgr.Cancel(context.Background(), appt.ID, "patient_request", "", appt.PatientID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newCancelFixture(t, policy.Default())

	_, err := f.mgr.Cancel(context.Background(), uuid.New(), "patient_request", "", uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestRescheduleBooksReplacementAndLinks(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusScheduled, 72*time.Hour)

	newStart := appt.StartTime.AddDate(0, 0, 7)
	replacement, err := f.mgr.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(30*time.Minute), appt.PatientID)
	require.NoError(t, err)

	assert.Equal(t, 1, replacement.RescheduleCount)
	require.NotNil(t, replacement.ParentAppointmentID)
	assert.Equal(t, appt.ID, *replacement.ParentAppointmentID)

	old, err := f.store.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusRescheduled, old.Status)
	require.NotNil(t, old.RescheduledTo)
	assert.Equal(t, replacement.ID, *old.RescheduledTo)

	// The vacated window goes to the waitlist.
	require.Len(t, f.waitlist.freed, 1)
	assert.True(t, f.waitlist.freed[0].Equal(appt.StartTime))
}

func TestRescheduleEnforcesLimit(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusScheduled, 72*time.Hour)
	appt.RescheduleCount = 3
	f.store.add(appt)

	newStart := appt.StartTime.AddDate(0, 0, 7)
	_, err := f.mgr.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(30*time.Minute), appt.PatientID)
	assert.ErrorIs(t, err, appointment.ErrOutOfPolicyWindow)
}

func TestRescheduleEnforcesMinNotice(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusScheduled, 30*time.Minute)

	newStart := appt.StartTime.AddDate(0, 0, 7)
	_, err := f.mgr.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(30*time.Minute), appt.PatientID)
	assert.ErrorIs(t, err, appointment.ErrOutOfPolicyWindow)
}

func TestRescheduleRejectsInProgress(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusInProgress, 72*time.Hour)

	newStart := appt.StartTime.AddDate(0, 0, 7)
	_, err := f.mgr.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(30*time.Minute), appt.PatientID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)
}

func TestRescheduleReplacementFailureKeepsOriginal(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusScheduled, 72*time.Hour)
	f.reserver.err = appointment.ErrSlotConflict

	newStart := appt.StartTime.AddDate(0, 0, 7)
	_, err := f.mgr.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(30*time.Minute), appt.PatientID)
	assert.ErrorIs(t, err, appointment.ErrSlotConflict)

	// The original booking is untouched.
	old, err := f.store.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, old.Status)
	assert.Empty(t, f.waitlist.freed)
}

func TestRescheduleReleasesReplacementWhenOriginalMoves(t *testing.T) {
	f := newCancelFixture(t, policy.Default())
	appt := f.appointment(appointment.StatusScheduled, 72*time.Hour)

	// Simulate a concurrent cancel landing after the replacement is booked:
	// the stored status no longer matches what the manager read.
	f.reserver.afterReserve = func() {
		f.store.mu.Lock()
		f.store.appts[appt.ID].Status = appointment.StatusCancelled
		f.store.mu.Unlock()
	}

	newStart := appt.StartTime.AddDate(0, 0, 7)
	_, err := f.mgr.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(30*time.Minute), appt.PatientID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)

	// The replacement must not keep holding capacity.
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, a := range f.store.appts {
		if a.ID == appt.ID {
			continue
		}
		assert.Equal(t, appointment.StatusCancelled, a.Status)
	}
}
