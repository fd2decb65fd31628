package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const apptColumns = `
	id, patient_id, provider_id, start_time, end_time, status, priority,
	payment_status, consultation_type, booking_channel, series_id,
	parent_appointment_id, reschedule_count, rescheduled_to, cancelled_at,
	cancelled_by, cancel_reason, refund_percent, booked_by, created_at, updated_at`

// capacityStatuses must track Status.HoldsCapacity.
var capacityStatuses = []string{
	string(StatusScheduled),
	string(StatusPendingConfirmation),
	string(StatusConfirmed),
	string(StatusCheckedIn),
	string(StatusInProgress),
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var refundPercent *int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Priority,
		&a.PaymentStatus,
		&a.ConsultationType,
		&a.BookingChannel,
		&a.SeriesID,
		&a.ParentAppointmentID,
		&a.RescheduleCount,
		&a.RescheduledTo,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancelReason,
		&refundPercent,
		&a.BookedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.RefundPercent = refundPercent
	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CountActiveOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, pad time.Duration) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2)
		  AND start_time < $4
		  AND end_time > $3
	`, providerID, capacityStatuses, start.Add(-pad), end.Add(pad)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count overlapping appointments: %w", err)
	}
	return count, nil
}

// InsertIfCapacity re-counts overlapping capacity and inserts in one
// serializable transaction, so two racing bookings for the last unit cannot
// both commit. A serialization failure is reported as ErrSlotConflict; the
// caller already treats conflicts as retry-against-another-slot.
func (r *PgRepository) InsertIfCapacity(ctx context.Context, p InsertParams) (*Appointment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin reservation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var count int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2)
		  AND start_time < $4
		  AND end_time > $3
	`, p.ProviderID, capacityStatuses, p.StartTime.Add(-p.OverlapPad), p.EndTime.Add(p.OverlapPad)).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count overlapping appointments: %w", err)
	}

	if count >= p.MaxConcurrent {
		return nil, ErrSlotConflict
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, provider_id, start_time, end_time, status, priority,
			payment_status, consultation_type, booking_channel, series_id,
			parent_appointment_id, reschedule_count, booked_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'unpaid', $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING `+apptColumns+`
	`, p.ID, p.PatientID, p.ProviderID, p.StartTime, p.EndTime, p.Status, p.Priority,
		p.ConsultationType, p.BookingChannel, p.SeriesID, p.ParentID, p.RescheduleCount, p.BookedBy)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("commit reservation tx: %w", err)
	}

	return appt, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+apptColumns+`
	`, id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyCASMiss(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID, from Status, at time.Time, by uuid.UUID, reason string, refundPercent int) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_at = $4,
		    cancelled_by = $5,
		    cancel_reason = $6,
		    refund_percent = $7,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+apptColumns+`
	`, id, StatusCancelled, from, at, by, reason, refundPercent)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyCASMiss(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) MarkRescheduled(ctx context.Context, id uuid.UUID, from Status, replacementID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    rescheduled_to = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+apptColumns+`
	`, id, StatusRescheduled, from, replacementID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyCASMiss(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

// classifyCASMiss distinguishes a missing row from a row whose status moved
// under us, so callers get NotFound vs InvalidTransition correctly.
func (r *PgRepository) classifyCASMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAppointmentNotFound
	}
	return ErrInvalidTransition
}

func (r *PgRepository) FindStalePendingConfirmation(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status = $1
		  AND created_at < $2
	`, StatusPendingConfirmation, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE series_id = $1
		ORDER BY start_time
	`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) PatientExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrPatientNotFound
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
