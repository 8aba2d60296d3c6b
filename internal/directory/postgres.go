package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads doctors, services and blockouts from the clinic tables.
type PostgresDirectory struct {
	db querier
}

// NewPostgresDirectory initializes a directory backed by pgxpool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &PostgresDirectory{db: pool}
}

func newPostgresDirectoryWithQuerier(q querier) *PostgresDirectory {
	if q == nil {
		panic("directory: querier required")
	}
	return &PostgresDirectory{db: q}
}

const doctorColumns = `id, name, specialty, active, min_age, max_age, accepted_insurance_plans`

func (p *PostgresDirectory) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE active = TRUE ORDER BY name`
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("directory: list doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		doc, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan doctor: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list doctors: %w", err)
	}
	return out, nil
}

func (p *PostgresDirectory) GetDoctor(ctx context.Context, doctorID string) (*Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	doc, err := scanDoctor(p.db.QueryRow(ctx, query, doctorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("directory: get doctor: %w", err)
	}
	return &doc, nil
}

func (p *PostgresDirectory) ListServicesForDoctor(ctx context.Context, doctorID string) ([]Service, error) {
	query := `
		SELECT id, name, doctor_id
		FROM services
		WHERE doctor_id IS NULL OR doctor_id = $1
		ORDER BY name
	`
	rows, err := p.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("directory: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DoctorID); err != nil {
			return nil, fmt.Errorf("directory: scan service: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list services: %w", err)
	}
	return out, nil
}

func (p *PostgresDirectory) ListActiveBlockouts(ctx context.Context, doctorID string) ([]Blockout, error) {
	query := `
		SELECT id, doctor_id, start_date, end_date, reason, status
		FROM blockouts
		WHERE doctor_id = $1 AND status = 'active'
		ORDER BY start_date
	`
	rows, err := p.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("directory: list blockouts: %w", err)
	}
	defer rows.Close()
	return CollectBlockouts(rows)
}

// CollectBlockouts scans blockout rows selected as
// (id, doctor_id, start_date, end_date, reason, status).
func CollectBlockouts(rows pgx.Rows) ([]Blockout, error) {
	var out []Blockout
	for rows.Next() {
		var b Blockout
		var status string
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.StartDate, &b.EndDate, &b.Reason, &status); err != nil {
			return nil, fmt.Errorf("directory: scan blockout: %w", err)
		}
		b.Status = BlockoutStatus(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list blockouts: %w", err)
	}
	return out, nil
}

func scanDoctor(row pgx.Row) (Doctor, error) {
	var doc Doctor
	err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.Specialty,
		&doc.Active,
		&doc.MinAge,
		&doc.MaxAge,
		&doc.AcceptedInsurancePlans,
	)
	return doc, err
}

var _ Directory = (*PostgresDirectory)(nil)
