package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const entryCols = `id, practitioner_id, work_date, shift, is_active, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var shift string

	err := row.Scan(
		&e.ID,
		&e.PractitionerID,
		&e.WorkDate,
		&shift,
		&e.IsActive,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	e.Shift = clock.Shift(shift)
	return &e, nil
}

func (r *PgRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedules (id, practitioner_id, work_date, shift, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+entryCols+`
	`, e.ID, e.PractitionerID, e.WorkDate, string(e.Shift), e.IsActive)

	created, err := scanEntry(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSchedule
		}
		if isForeignKeyViolation(err) {
			return ErrPractitionerNotFound
		}
		return err
	}

	*e = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+entryCols+`
		FROM schedules
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) Update(ctx context.Context, e *Entry) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE schedules
		SET work_date = $2,
		    shift = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+entryCols+`
	`, e.ID, e.WorkDate, string(e.Shift))

	updated, err := scanEntry(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSchedule
		}
		return err
	}

	*e = *updated
	return nil
}

func (r *PgRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE schedules
		SET is_active = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *PgRepository) FindActive(ctx context.Context, practitionerID uuid.UUID, workDate time.Time, shift clock.Shift) (*Entry, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+entryCols+`
		FROM schedules
		WHERE practitioner_id = $1
		  AND work_date = $2
		  AND shift = $3
		  AND is_active
	`, practitionerID, workDate, string(shift))
	return scanEntry(row)
}

func (r *PgRepository) ListActiveByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+`
		FROM schedules
		WHERE practitioner_id = $1
		  AND is_active
		ORDER BY work_date ASC, shift ASC
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) ListActiveInRange(ctx context.Context, from, to *time.Time) ([]Entry, error) {
	query := `
		SELECT ` + entryCols + `
		FROM schedules
		WHERE is_active`
	var args []any
	idx := 1

	if from != nil {
		query += fmt.Sprintf(` AND work_date >= $%d`, idx)
		args = append(args, *from)
		idx++
	}
	if to != nil {
		query += fmt.Sprintf(` AND work_date <= $%d`, idx)
		args = append(args, *to)
		idx++
	}
	query += ` ORDER BY work_date ASC, practitioner_id, shift`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
