package series

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
)

var ErrSeriesNotFound = errors.New("recurring series not found")

// Series is the persistent grouping; child appointments reference it by id.
type Series struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Pattern    Pattern
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
}

type Repository interface {
	InsertSeries(ctx context.Context, s Series) error
	GetSeries(ctx context.Context, id uuid.UUID) (*Series, error)
	ListAppointments(ctx context.Context, seriesID uuid.UUID) ([]appointment.Appointment, error)
}

type PgRepository struct {
	pool  *pgxpool.Pool
	appts *appointment.PgRepository
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, appts: appointment.NewPgRepository(pool)}
}

func (r *PgRepository) InsertSeries(ctx context.Context, s Series) error {
	pattern, err := json.Marshal(s.Pattern)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO recurring_series (id, provider_id, patient_id, pattern, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.ProviderID, s.PatientID, pattern, s.CreatedBy, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recurring series: %w", err)
	}
	return nil
}

func (r *PgRepository) GetSeries(ctx context.Context, id uuid.UUID) (*Series, error) {
	var s Series
	var pattern []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, patient_id, pattern, created_by, created_at
		FROM recurring_series
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ProviderID, &s.PatientID, &pattern, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(pattern, &s.Pattern); err != nil {
		return nil, fmt.Errorf("decode pattern: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, seriesID uuid.UUID) ([]appointment.Appointment, error) {
	return r.appts.ListBySeries(ctx, seriesID)
}
