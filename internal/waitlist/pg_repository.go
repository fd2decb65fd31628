package waitlist

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

const entryColumns = `
	id, provider_id, patient_id, consultation_type, date_from, date_to,
	windows, urgency, status, position, offered_start, offered_end,
	response_deadline, offer_count, joined_at, updated_at`

// urgencyRank mirrors Priority.Rank for SQL ordering.
const urgencyRank = `
	CASE urgency
		WHEN 'urgent' THEN 0
		WHEN 'high' THEN 1
		WHEN 'medium' THEN 2
		ELSE 3
	END`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var windowsJSON []byte

	err := row.Scan(
		&e.ID,
		&e.ProviderID,
		&e.PatientID,
		&e.ConsultationType,
		&e.DateFrom,
		&e.DateTo,
		&windowsJSON,
		&e.Urgency,
		&e.Status,
		&e.Position,
		&e.OfferedStart,
		&e.OfferedEnd,
		&e.ResponseDeadline,
		&e.OfferCount,
		&e.JoinedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	if len(windowsJSON) > 0 {
		if err := json.Unmarshal(windowsJSON, &e.Windows); err != nil {
			return nil, fmt.Errorf("decode entry windows: %w", err)
		}
	}
	return &e, nil
}

func (r *PgRepository) Insert(ctx context.Context, e Entry) (*Entry, error) {
	windows, err := json.Marshal(e.Windows)
	if err != nil {
		return nil, fmt.Errorf("encode entry windows: %w", err)
	}

	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (
			id, provider_id, patient_id, consultation_type, date_from, date_to,
			windows, urgency, status, position, offer_count, joined_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, now(), now())
		RETURNING `+entryColumns+`
	`, id, e.ProviderID, e.PatientID, e.ConsultationType, e.DateFrom, e.DateTo,
		windows, e.Urgency, StatusActive)

	return scanEntry(row)
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListActive(ctx context.Context, providerID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE provider_id = $1
		  AND status = $2
		ORDER BY `+urgencyRank+`, joined_at
	`, providerID, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) MarkOffered(ctx context.Context, id uuid.UUID, start, end time.Time, deadline time.Time) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    offered_start = $3,
		    offered_end = $4,
		    response_deadline = $5,
		    offer_count = offer_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = $6
		RETURNING `+entryColumns+`
	`, id, StatusOffered, start, end, deadline, StatusActive)

	return scanEntry(row)
}

func (r *PgRepository) ResolveOffer(ctx context.Context, id uuid.UUID, to Status) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    offered_start = NULL,
		    offered_end = NULL,
		    response_deadline = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns+`
	`, id, to, StatusOffered)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// Row exists but is not offered, or is genuinely gone.
			if _, getErr := r.Get(ctx, id); getErr == nil {
				return nil, ErrNotOffered
			}
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns+`
	`, id, to, from)

	return scanEntry(row)
}

// RecomputePositions keeps positions dense 1..N per provider. Non-active
// entries drop to position 0.
func (r *PgRepository) RecomputePositions(ctx context.Context, providerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		WITH ranked AS (
			SELECT id,
			       row_number() OVER (ORDER BY `+urgencyRank+`, joined_at) AS rn
			FROM waitlist_entries
			WHERE provider_id = $1
			  AND status = $2
		)
		UPDATE waitlist_entries w
		SET position = COALESCE(r.rn, 0)
		FROM (
			SELECT e.id, ranked.rn
			FROM waitlist_entries e
			LEFT JOIN ranked ON ranked.id = e.id
			WHERE e.provider_id = $1
		) r
		WHERE w.id = r.id
	`, providerID, StatusActive)
	if err != nil {
		return fmt.Errorf("recompute waitlist positions: %w", err)
	}
	return nil
}

func (r *PgRepository) FindExpiredOffers(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = $1
		  AND response_deadline IS NOT NULL
		  AND response_deadline < $2
	`, StatusOffered, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) FindLapsedActive(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = $1
		  AND date_to < $2
	`, StatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
