package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type seedExecer interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ApplySeed upserts the seed into the directory tables in one transaction.
// Rows absent from the seed are left untouched.
func ApplySeed(ctx context.Context, db seedExecer, seed Seed) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("directory: begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := applySeed(ctx, tx, seed); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("directory: commit seed: %w", err)
	}
	return nil
}

func applySeed(ctx context.Context, tx txExecer, seed Seed) error {
	for _, doc := range seed.Doctors {
		plans := doc.AcceptedInsurancePlans
		if plans == nil {
			plans = []string{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, active, min_age, max_age, accepted_insurance_plans)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				specialty = EXCLUDED.specialty,
				active = EXCLUDED.active,
				min_age = EXCLUDED.min_age,
				max_age = EXCLUDED.max_age,
				accepted_insurance_plans = EXCLUDED.accepted_insurance_plans
		`, doc.ID, doc.Name, doc.Specialty, doc.Active, doc.MinAge, doc.MaxAge, plans); err != nil {
			return fmt.Errorf("directory: seed doctor %s: %w", doc.ID, err)
		}
	}
	for _, svc := range seed.Services {
		if _, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, doctor_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, doctor_id = EXCLUDED.doctor_id
		`, svc.ID, svc.Name, svc.DoctorID); err != nil {
			return fmt.Errorf("directory: seed service %s: %w", svc.ID, err)
		}
	}
	for _, b := range seed.Blockouts {
		status := b.Status
		if status == "" {
			status = BlockoutActive
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO blockouts (id, doctor_id, start_date, end_date, reason, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				start_date = EXCLUDED.start_date,
				end_date = EXCLUDED.end_date,
				reason = EXCLUDED.reason,
				status = EXCLUDED.status
		`, b.ID, b.DoctorID, b.StartDate, b.EndDate, b.Reason, string(status)); err != nil {
			return fmt.Errorf("directory: seed blockout %s: %w", b.ID, err)
		}
	}
	return nil
}
