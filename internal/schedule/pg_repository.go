package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) LoadTemplate(ctx context.Context, providerID uuid.UUID) (*ScheduleTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, facility_id, department_id,
		       effective_from, effective_to, timezone, windows,
		       buffer_minutes, allow_overlap, requires_confirmation,
		       created_at, updated_at
		FROM schedule_templates
		WHERE provider_id = $1
		ORDER BY effective_from DESC
		LIMIT 1
	`, providerID)

	return scanTemplate(row)
}

func (r *PgRepository) LoadExceptions(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]ScheduleException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, exception_date, unavailable, windows, reason, created_at
		FROM schedule_exceptions
		WHERE provider_id = $1
		  AND exception_date >= $2
		  AND exception_date < $3
		ORDER BY exception_date
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleException
	for rows.Next() {
		exc, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *exc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanTemplate(row pgx.Row) (*ScheduleTemplate, error) {
	var t ScheduleTemplate
	var windowsJSON []byte
	var effectiveTo *time.Time

	err := row.Scan(
		&t.ID,
		&t.ProviderID,
		&t.FacilityID,
		&t.DepartmentID,
		&t.EffectiveFrom,
		&effectiveTo,
		&t.Timezone,
		&windowsJSON,
		&t.BufferMinutes,
		&t.AllowOverlap,
		&t.RequiresConfirmation,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.EffectiveTo = effectiveTo
	if err := json.Unmarshal(windowsJSON, &t.Windows); err != nil {
		return nil, fmt.Errorf("decode template windows: %w", err)
	}

	return &t, nil
}

func scanException(row pgx.Row) (*ScheduleException, error) {
	var e ScheduleException
	var windowsJSON []byte

	err := row.Scan(
		&e.ID,
		&e.ProviderID,
		&e.Date,
		&e.Unavailable,
		&windowsJSON,
		&e.Reason,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(windowsJSON) > 0 {
		if err := json.Unmarshal(windowsJSON, &e.Windows); err != nil {
			return nil, fmt.Errorf("decode exception windows: %w", err)
		}
	}

	return &e, nil
}
