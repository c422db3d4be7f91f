package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bookingCols = `id, patient_id, practitioner_id, appointment_date, appointment_time,
	status, cancel_reason, is_deleted, rescheduled_from, notes,
	created_by, updated_by, created_at, updated_at`

// Postgres TIME columns travel as microseconds since midnight.

func pgTime(t clock.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func timeOfDay(t pgtype.Time) clock.TimeOfDay {
	return clock.TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var apptTime pgtype.Time
	var status string

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.PractitionerID,
		&b.AppointmentDate,
		&apptTime,
		&status,
		&b.CancelReason,
		&b.IsDeleted,
		&b.RescheduledFrom,
		&b.Notes,
		&b.CreatedBy,
		&b.UpdatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.AppointmentTime = timeOfDay(apptTime)
	b.Status = Status(status)
	return &b, nil
}

func (r *PgRepository) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bookings (id, patient_id, practitioner_id, appointment_date, appointment_time,
			status, is_deleted, rescheduled_from, notes, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8, $9, $9, now(), now())
		RETURNING `+bookingCols+`
	`, b.ID, b.PatientID, b.PractitionerID, b.AppointmentDate, pgTime(b.AppointmentTime),
		string(b.Status), b.RescheduledFrom, b.Notes, b.CreatedBy)

	created, err := scanBooking(row)
	if err != nil {
		// The partial unique index on (patient_id, appointment_date)
		// backstops the same-day invariant when two inserts race past the
		// enforcer.
		if isUniqueViolation(err) {
			return ErrSameDayConflict
		}
		if refErr := referentialError(err); refErr != nil {
			return refErr
		}
		return err
	}

	*b = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string, actorID uuid.UUID) (*Booking, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    cancel_reason = COALESCE($3, cancel_reason),
		    updated_by = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		RETURNING `+bookingCols+`
	`, id, string(to), cancelReason, actorID, string(from))

	return scanBooking(row)
}

func (r *PgRepository) ExistsLiveOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM bookings
			WHERE patient_id = $1
			  AND appointment_date = $2
			  AND status <> 'canceled'
			  AND NOT is_deleted
		)
	`, patientID, date).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CountLiveInWindow(ctx context.Context, practitionerID uuid.UUID, date time.Time, win clock.Window) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE practitioner_id = $1
		  AND appointment_date = $2
		  AND status <> 'canceled'
		  AND NOT is_deleted
		  AND appointment_time >= $3
		  AND (appointment_time < $4 OR ($5 AND appointment_time = $4))
	`, practitionerID, date, pgTime(win.Start), pgTime(win.End), win.UpperInclusive).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) CountLiveForPractitioner(ctx context.Context, practitionerID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE practitioner_id = $1
		  AND status <> 'canceled'
		  AND NOT is_deleted
	`, practitionerID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Booking, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE patient_id = $1
		  AND NOT is_deleted
		ORDER BY appointment_date DESC, appointment_time DESC
		LIMIT 1
	`, patientID)
	return scanBooking(row)
}

func (r *PgRepository) FindPastScheduled(ctx context.Context, before time.Time) ([]Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE status = 'scheduled'
		  AND NOT is_deleted
		  AND appointment_date < $1
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// referentialError maps a foreign-key violation on the insert to the missing
// entity, keyed by the constraint that fired.
func referentialError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "bookings_patient_id_fkey":
		return ErrPatientNotFound
	case "bookings_practitioner_id_fkey":
		return ErrPractitionerNotFound
	}
	return err
}
