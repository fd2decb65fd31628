package series

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
)

// scriptedReserver succeeds unless the occurrence start is listed as failing.
type scriptedReserver struct {
	failAt   map[string]error
	reserved []appointment.ReserveRequest
}

func (r *scriptedReserver) Reserve(_ context.Context, req appointment.ReserveRequest) (*appointment.Appointment, error) {
	if err, ok := r.failAt[req.Start.UTC().Format(time.RFC3339)]; ok {
		return nil, err
	}
	r.reserved = append(r.reserved, req)
	return &appointment.Appointment{
		ID:                  uuid.New(),
		PatientID:           req.PatientID,
		ProviderID:          req.ProviderID,
		StartTime:           req.Start,
		EndTime:             req.End,
		Status:              appointment.StatusScheduled,
		SeriesID:            req.SeriesID,
		ParentAppointmentID: req.ParentID,
	}, nil
}

type memSeriesRepo struct {
	series map[uuid.UUID]Series
}

func newMemSeriesRepo() *memSeriesRepo {
	return &memSeriesRepo{series: make(map[uuid.UUID]Series)}
}

func (r *memSeriesRepo) InsertSeries(_ context.Context, s Series) error {
	r.series[s.ID] = s
	return nil
}

func (r *memSeriesRepo) GetSeries(_ context.Context, id uuid.UUID) (*Series, error) {
	s, ok := r.series[id]
	if !ok {
		return nil, ErrSeriesNotFound
	}
	return &s, nil
}

func (r *memSeriesRepo) ListAppointments(_ context.Context, _ uuid.UUID) ([]appointment.Appointment, error) {
	return nil, nil
}

type staticSchedules struct {
	tpl *schedule.ScheduleTemplate
}

func (s *staticSchedules) LoadTemplate(_ context.Context, _ uuid.UUID) (*schedule.ScheduleTemplate, error) {
	return s.tpl, nil
}

func (s *staticSchedules) LoadExceptions(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]schedule.ScheduleException, error) {
	return nil, nil
}

func managerFixture(t *testing.T) (*Manager, *scriptedReserver, *memSeriesRepo, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	schedules := &staticSchedules{tpl: &schedule.ScheduleTemplate{
		ID:            uuid.New(),
		EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, loc),
		Timezone:      "Asia/Kolkata",
		Windows: []schedule.WeekdayWindow{{
			Weekday:       time.Monday,
			StartMinute:   9 * 60,
			EndMinute:     17 * 60,
			SlotMinutes:   30,
			MaxConcurrent: 1,
		}},
	}}

	reserver := &scriptedReserver{failAt: make(map[string]error)}
	repo := newMemSeriesRepo()
	mgr := NewManager(reserver, repo, schedules, Limits{MaxOccurrences: 52, MaxEndDateDays: 365}, zerolog.Nop())
	return mgr, reserver, repo, loc
}

func weeklyRequest(loc *time.Location, occurrences int) CreateSeriesRequest {
	first := time.Date(2026, 9, 7, 9, 0, 0, 0, loc)
	return CreateSeriesRequest{
		ProviderID:       uuid.New(),
		PatientID:        uuid.New(),
		Pattern:          Pattern{Frequency: Weekly, MaxOccurrences: occurrences},
		FirstStart:       first,
		FirstEnd:         first.Add(30 * time.Minute),
		ConsultationType: schedule.ConsultGeneral,
		BookingChannel:   "api",
	}
}

func TestCreateSeriesAllSucceed(t *testing.T) {
	mgr, reserver, repo, loc := managerFixture(t)

	result, err := mgr.CreateSeries(context.Background(), weeklyRequest(loc, 5))
	require.NoError(t, err)

	assert.Len(t, result.Created, 5)
	assert.Empty(t, result.Failed)

	_, err = repo.GetSeries(context.Background(), result.SeriesID)
	require.NoError(t, err)

	// Every reservation carries the series id; successes chain by parent.
	require.Len(t, reserver.reserved, 5)
	assert.Nil(t, reserver.reserved[0].ParentID)
	for i := 1; i < 5; i++ {
		require.NotNil(t, reserver.reserved[i].ParentID)
		assert.Equal(t, result.Created[i-1].ID, *reserver.reserved[i].ParentID)
		assert.Equal(t, result.SeriesID, *reserver.reserved[i].SeriesID)
	}
}

func TestCreateSeriesPartialSuccess(t *testing.T) {
	mgr, reserver, _, loc := managerFixture(t)
	req := weeklyRequest(loc, 5)

	// Occurrence 3 conflicts with an existing booking.
	third := req.FirstStart.AddDate(0, 0, 14)
	reserver.failAt[third.UTC().Format(time.RFC3339)] = appointment.ErrSlotConflict

	result, err := mgr.CreateSeries(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, result.Created, 4)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.Failed[0].Date.Equal(third))
	assert.Equal(t, "conflict", result.Failed[0].Reason)

	// The occurrence after the gap chains to the last success before it.
	assert.Equal(t, result.Created[1].ID, *reserver.reserved[2].ParentID)
}

func TestCreateSeriesAllFail(t *testing.T) {
	mgr, reserver, repo, loc := managerFixture(t)
	req := weeklyRequest(loc, 3)

	for i := 0; i < 3; i++ {
		occ := req.FirstStart.AddDate(0, 0, 7*i)
		reserver.failAt[occ.UTC().Format(time.RFC3339)] = appointment.ErrSlotConflict
	}

	result, err := mgr.CreateSeries(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appointment.ErrSlotConflict)

	require.NotNil(t, result)
	assert.Empty(t, result.Created)
	assert.Len(t, result.Failed, 3)

	// No series row without at least one booked occurrence.
	_, err = repo.GetSeries(context.Background(), result.SeriesID)
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestCreateSeriesRejectsInvalidPattern(t *testing.T) {
	mgr, _, _, loc := managerFixture(t)
	req := weeklyRequest(loc, 5)
	req.Pattern.Frequency = "fortnightly"

	_, err := mgr.CreateSeries(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestCreateSeriesRejectsInvertedFirstOccurrence(t *testing.T) {
	mgr, _, _, loc := managerFixture(t)
	req := weeklyRequest(loc, 5)
	req.FirstEnd = req.FirstStart

	_, err := mgr.CreateSeries(context.Background(), req)
	assert.Error(t, err)
}
