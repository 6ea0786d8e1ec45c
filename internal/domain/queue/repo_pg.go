package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frontdesk/frontdesk/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

// NewAppointmentRepoPG creates the Postgres-backed appointment repository.
func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, patient_id, doctor_id, department_id, appointment_date,
	appointment_time, queue_number, status, reason, notes, created_at, updated_at`

const activeStatusList = `'scheduled','called','in-progress'`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.DepartmentID, &a.Date,
		&a.TimeOfDay, &a.QueueNumber, &a.Status, &a.Reason, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

// isUniqueViolation detects a collision on the partial unique index over
// (doctor_id, appointment_date, queue_number).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, department_id,
			appointment_date, appointment_time, queue_number, status, reason, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.PatientID, a.DoctorID, a.DepartmentID,
		a.Date, a.TimeOfDay, a.QueueNumber, a.Status, a.Reason, a.Notes)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: doctor %v date %s position %d", ErrQueueConflict,
			a.DoctorID, a.Date.Format("2006-01-02"), a.QueueNumber)
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) CountActive(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status IN (`+activeStatusList+`)`,
		doctorID, date).Scan(&count)
	return count, err
}

func (r *appointmentRepoPG) HasActiveOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND appointment_date = $2 AND status IN (`+activeStatusList+`)
		)`, patientID, date).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) Queue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status IN (`+activeStatusList+`)
		ORDER BY queue_number ASC`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appointmentRepoPG) ActiveFromPosition(ctx context.Context, doctorID uuid.UUID, date time.Time, fromPosition int) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
			AND status IN (`+activeStatusList+`) AND queue_number >= $3
		ORDER BY queue_number DESC`, doctorID, date, fromPosition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appointmentRepoPG) NextForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 AND appointment_date >= $2 AND status IN (`+activeStatusList+`)
		ORDER BY appointment_date ASC, queue_number ASC
		LIMIT 1`, patientID, from))
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, queue_number DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Displace(ctx context.Context, id uuid.UUID, queueNumber int, timeOfDay, note string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET queue_number = $2, appointment_time = $3,
			notes = COALESCE(notes || E'\n', '') || $4, updated_at = NOW()
		WHERE id = $1`, id, queueNumber, timeOfDay, note)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: displacing %s to position %d", ErrQueueConflict, id, queueNumber)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Move(ctx context.Context, id uuid.UUID, date time.Time, timeOfDay string, queueNumber int, note string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2, appointment_time = $3, queue_number = $4,
			notes = COALESCE(notes || E'\n', '') || $5, updated_at = NOW()
		WHERE id = $1`, id, date, timeOfDay, queueNumber, note)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: moving %s to %s position %d", ErrQueueConflict,
			id, date.Format("2006-01-02"), queueNumber)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockQueue takes a transaction-scoped advisory lock keyed on the (doctor,
// date) pair, so concurrent writers of one daily queue serialize. The lock is
// released when the ambient transaction commits or rolls back.
func (r *appointmentRepoPG) LockQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	if db.ConnFromContext(ctx) == nil {
		return fmt.Errorf("queue: LockQueue requires an ambient transaction")
	}
	key := doctorID.String() + ":" + date.Format("2006-01-02")
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
