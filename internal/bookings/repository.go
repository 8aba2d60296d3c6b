package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/events"
)

// Tx is the set of operations available while a slot is held exclusively.
type Tx interface {
	ActiveBlockouts(ctx context.Context, doctorID string) ([]directory.Blockout, error)
	FindConflict(ctx context.Context, slot Slot, excludeID string) (*Appointment, error)
	GetForUpdate(ctx context.Context, appointmentID string) (*Appointment, error)
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
	InsertPatient(ctx context.Context, p *Patient) error
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateSchedule(ctx context.Context, appointmentID string, slot Slot) error
	UpdateStatus(ctx context.Context, appointmentID string, status Status) error
	AppendEvent(ctx context.Context, aggregate string, evt events.CanonicalEvent) error
}

// Repository persists patients and appointments. WithinSlot runs fn while no
// other caller can hold the same slot; fn's writes are applied only if it returns nil.
type Repository interface {
	WithinSlot(ctx context.Context, slot Slot, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, appointmentID string) (*Appointment, error)
	FindConflict(ctx context.Context, slot Slot) (*Appointment, error)
	FindFutureByPatientName(ctx context.Context, nameKey string, fromDate time.Time, fromTime string) ([]Appointment, error)
}

// ActiveSlotIndex is the partial unique index that backstops the slot lock.
const ActiveSlotIndex = "appointments_active_slot_uidx"

const pgUniqueViolation = "23505"

type pgDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in Postgres. Slot exclusivity comes
// from a transaction-scoped advisory lock on the slot key.
type PostgresRepository struct {
	db pgDB
}

// NewPostgresRepository creates a repository backed by pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgDB) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) WithinSlot(ctx context.Context, slot Slot, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, slot.LockKey()); err != nil {
		return fmt.Errorf("bookings: lock slot: %w", err)
	}
	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("bookings: commit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	return getAppointment(ctx, r.db, appointmentID, false)
}

func (r *PostgresRepository) FindConflict(ctx context.Context, slot Slot) (*Appointment, error) {
	return findConflict(ctx, r.db, slot, "")
}

func (r *PostgresRepository) FindFutureByPatientName(ctx context.Context, nameKey string, fromDate time.Time, fromTime string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE p.name_key = $1
		  AND a.status IN ('scheduled', 'confirmed')
		  AND (a.appointment_date > $2 OR (a.appointment_date = $2 AND a.appointment_time >= $3))
		ORDER BY a.appointment_date, a.appointment_time
	`
	rows, err := r.db.Query(ctx, query, nameKey, fromDate, fromTime)
	if err != nil {
		return nil, fmt.Errorf("bookings: find by patient name: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: find by patient name: %w", err)
	}
	return out, nil
}

type pgTx struct {
	q pgQuerier
}

func (t *pgTx) ActiveBlockouts(ctx context.Context, doctorID string) ([]directory.Blockout, error) {
	query := `
		SELECT id, doctor_id, start_date, end_date, reason, status
		FROM blockouts
		WHERE doctor_id = $1 AND status = 'active'
	`
	rows, err := t.q.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("bookings: load blockouts: %w", err)
	}
	defer rows.Close()
	return directory.CollectBlockouts(rows)
}

func (t *pgTx) FindConflict(ctx context.Context, slot Slot, excludeID string) (*Appointment, error) {
	return findConflict(ctx, t.q, slot, excludeID)
}

func (t *pgTx) GetForUpdate(ctx context.Context, appointmentID string) (*Appointment, error) {
	return getAppointment(ctx, t.q, appointmentID, true)
}

func (t *pgTx) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	query := `
		SELECT id, full_name, birth_date, insurance_plan, phone, mobile_phone
		FROM patients
		WHERE id = $1
	`
	var p Patient
	if err := t.q.QueryRow(ctx, query, patientID).Scan(
		&p.ID,
		&p.FullName,
		&p.BirthDate,
		&p.InsurancePlan,
		&p.Phone,
		&p.MobilePhone,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("bookings: get patient: %w", err)
	}
	return &p, nil
}

func (t *pgTx) InsertPatient(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO patients (id, full_name, name_key, birth_date, insurance_plan, phone, mobile_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := t.q.Exec(ctx, query,
		p.ID,
		p.FullName,
		NameKey(p.FullName),
		p.BirthDate,
		p.InsurancePlan,
		p.Phone,
		p.MobilePhone,
	); err != nil {
		return fmt.Errorf("bookings: insert patient: %w", err)
	}
	return nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (id, patient_id, doctor_id, service_id, appointment_date, appointment_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	if err := t.q.QueryRow(ctx, query,
		a.ID,
		a.PatientID,
		a.DoctorID,
		a.ServiceID,
		a.Date,
		a.Time,
		string(a.Status),
		a.Notes,
	).Scan(&a.CreatedAt); err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("bookings: insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateSchedule(ctx context.Context, appointmentID string, slot Slot) error {
	query := `
		UPDATE appointments
		SET appointment_date = $2, appointment_time = $3, updated_at = now()
		WHERE id = $1
	`
	ct, err := t.q.Exec(ctx, query, appointmentID, slot.Date, slot.Time)
	if err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("bookings: update schedule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, appointmentID string, status Status) error {
	query := `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	ct, err := t.q.Exec(ctx, query, appointmentID, string(status))
	if err != nil {
		return fmt.Errorf("bookings: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, aggregate string, evt events.CanonicalEvent) error {
	_, err := events.AppendCanonicalEvent(ctx, t.q, aggregate, evt)
	return err
}

const appointmentColumns = `a.id, a.patient_id, p.full_name, p.mobile_phone, a.doctor_id, a.service_id, a.appointment_date, a.appointment_time, a.status, a.notes, a.created_at`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findConflict(ctx context.Context, q rowQuerier, slot Slot, excludeID string) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.doctor_id = $1
		  AND a.appointment_date = $2
		  AND a.appointment_time = $3
		  AND a.status IN ('scheduled', 'confirmed')
		  AND a.id <> $4
		LIMIT 1
	`
	appt, err := scanAppointment(q.QueryRow(ctx, query, slot.DoctorID, slot.Date, slot.Time, excludeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("bookings: find conflict: %w", err)
	}
	return &appt, nil
}

func getAppointment(ctx context.Context, q rowQuerier, appointmentID string, forUpdate bool) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE OF a`
	}
	appt, err := scanAppointment(q.QueryRow(ctx, query, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("bookings: get appointment: %w", err)
	}
	return &appt, nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientName,
		&a.PatientMobile,
		&a.DoctorID,
		&a.ServiceID,
		&a.Date,
		&a.Time,
		&status,
		&a.Notes,
		&a.CreatedAt,
	)
	a.Status = Status(status)
	return a, err
}

func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && (pgErr.ConstraintName == "" || pgErr.ConstraintName == ActiveSlotIndex)
	}
	return false
}
