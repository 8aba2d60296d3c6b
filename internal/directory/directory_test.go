package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }
func strPtr(v string) *string { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDoctorRules(t *testing.T) {
	doc := Doctor{
		ID:                     "d1",
		MinAge:                 intPtr(18),
		MaxAge:                 intPtr(65),
		AcceptedInsurancePlans: []string{"Unimed", "Bradesco Saúde"},
	}

	assert.True(t, doc.AcceptsAge(18))
	assert.True(t, doc.AcceptsAge(65))
	assert.False(t, doc.AcceptsAge(10))
	assert.False(t, doc.AcceptsAge(66))

	assert.True(t, doc.AcceptsInsurance("unimed"))
	assert.True(t, doc.AcceptsInsurance("bradesco saude"))
	assert.False(t, doc.AcceptsInsurance("Amil"))

	open := Doctor{ID: "d2"}
	assert.True(t, open.AcceptsAge(3))
	assert.True(t, open.AcceptsInsurance("qualquer"))
}

func TestBlockoutCovers(t *testing.T) {
	b := Blockout{StartDate: date(2026, 3, 10), EndDate: date(2026, 3, 12), Status: BlockoutActive}
	assert.False(t, b.Covers(date(2026, 3, 9)))
	assert.True(t, b.Covers(date(2026, 3, 10)))
	assert.True(t, b.Covers(date(2026, 3, 12)))
	assert.False(t, b.Covers(date(2026, 3, 13)))

	b.Status = BlockoutLifted
	assert.False(t, b.Covers(date(2026, 3, 11)))

	found, ok := FindCoveringBlockout([]Blockout{
		{Reason: "congresso", StartDate: date(2026, 3, 1), EndDate: date(2026, 3, 2), Status: BlockoutActive},
		{Reason: "férias", StartDate: date(2026, 3, 10), EndDate: date(2026, 3, 20), Status: BlockoutActive},
	}, date(2026, 3, 15))
	require.True(t, ok)
	assert.Equal(t, "férias", found.Reason)
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(Seed{
		Doctors: []Doctor{
			{ID: "d2", Name: "Dr. Bruno", Active: true},
			{ID: "d1", Name: "Dra. Ana", Active: true},
			{ID: "d3", Name: "Dr. Inativo", Active: false},
		},
		Services: []Service{
			{ID: "s1", Name: "Consulta"},
			{ID: "s2", Name: "Retorno", DoctorID: strPtr("d1")},
			{ID: "s3", Name: "Exame", DoctorID: strPtr("d2")},
		},
		Blockouts: []Blockout{
			{ID: "b1", DoctorID: "d1", Status: BlockoutActive},
			{ID: "b2", DoctorID: "d1", Status: BlockoutLifted},
		},
	})

	doctors, err := dir.ListActiveDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Dr. Bruno", doctors[0].Name)
	assert.Equal(t, "Dra. Ana", doctors[1].Name)

	services, err := dir.ListServicesForDoctor(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "s1", services[0].ID)
	assert.Equal(t, "s2", services[1].ID)

	doc, err := dir.GetDoctor(ctx, "d3")
	require.NoError(t, err)
	assert.False(t, doc.Active)

	_, err = dir.GetDoctor(ctx, "missing")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	blockouts, err := dir.ListActiveBlockouts(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, blockouts, 1)
	assert.Equal(t, "b1", blockouts[0].ID)

	dir.PutBlockout(Blockout{ID: "b1", DoctorID: "d1", Status: BlockoutLifted})
	blockouts, err = dir.ListActiveBlockouts(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, blockouts)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{
		"doctors": [{"id": "d1", "name": "Dra. Ana", "specialty": "Pediatria", "active": true, "max_age": 17}],
		"services": [{"id": "s1", "name": "Consulta"}],
		"blockouts": [{"id": "b1", "doctor_id": "d1", "start_date": "2026-03-10T00:00:00Z", "end_date": "2026-03-12T00:00:00Z", "reason": "congresso"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	dir, err := LoadSeedFile(path)
	require.NoError(t, err)

	doc, err := dir.GetDoctor(context.Background(), "d1")
	require.NoError(t, err)
	require.NotNil(t, doc.MaxAge)
	assert.Equal(t, 17, *doc.MaxAge)

	blockouts, err := dir.ListActiveBlockouts(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, blockouts, 1)
	assert.True(t, blockouts[0].Covers(date(2026, 3, 11)))

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPostgresDirectory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	dir := newPostgresDirectoryWithQuerier(mock)
	ctx := context.Background()

	cols := []string{"id", "name", "specialty", "active", "min_age", "max_age", "accepted_insurance_plans"}
	mock.ExpectQuery("SELECT id, name, specialty, active, min_age, max_age, accepted_insurance_plans FROM doctors WHERE active").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("d1", "Dra. Ana", "Pediatria", true, intPtr(0), intPtr(17), []string{"Unimed"}))
	doctors, err := dir.ListActiveDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, "Dra. Ana", doctors[0].Name)
	require.NotNil(t, doctors[0].MaxAge)
	assert.Equal(t, 17, *doctors[0].MaxAge)
	assert.Equal(t, []string{"Unimed"}, doctors[0].AcceptedInsurancePlans)

	mock.ExpectQuery("FROM doctors WHERE id").WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	_, err = dir.GetDoctor(ctx, "nope")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	mock.ExpectQuery("FROM services").WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "doctor_id"}).
			AddRow("s2", "Retorno", strPtr("d1")))
	services, err := dir.ListServicesForDoctor(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.True(t, services[0].OfferedBy("d1"))

	mock.ExpectQuery("FROM blockouts").WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "start_date", "end_date", "reason", "status"}).
			AddRow("b1", "d1", date(2026, 3, 10), date(2026, 3, 12), "congresso", "active"))
	blockouts, err := dir.ListActiveBlockouts(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, blockouts, 1)
	assert.Equal(t, BlockoutActive, blockouts[0].Status)
	assert.Equal(t, "congresso", blockouts[0].Reason)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplySeed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	seed := Seed{
		Doctors:   []Doctor{{ID: "d-ana", Name: "Dra. Ana", Active: true, MinAge: intPtr(18)}},
		Services:  []Service{{ID: "s-consulta", Name: "Consulta"}},
		Blockouts: []Blockout{{ID: "b1", DoctorID: "d-ana", StartDate: date(2026, 3, 10), EndDate: date(2026, 3, 12), Reason: "congresso"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO doctors").
		WithArgs("d-ana", "Dra. Ana", "", true, intPtr(18), (*int)(nil), []string{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO services").
		WithArgs("s-consulta", "Consulta", (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO blockouts").
		WithArgs("b1", "d-ana", date(2026, 3, 10), date(2026, 3, 12), "congresso", "active").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, ApplySeed(context.Background(), mock, seed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySeedRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO doctors").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = ApplySeed(context.Background(), mock, Seed{Doctors: []Doctor{{ID: "d-ana", Name: "Dra. Ana"}}})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "seed doctor d-ana")
	require.NoError(t, mock.ExpectationsWereMet())
}
