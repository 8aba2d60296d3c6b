// Package directory exposes the clinic's doctors, services and blockout
// periods. The data is owned by the clinic management side; this package only reads it.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/extract"
)

// ErrDoctorNotFound is returned when a doctor id is unknown.
var ErrDoctorNotFound = errors.New("directory: doctor not found")

// Doctor is a bookable professional.
type Doctor struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Specialty              string   `json:"specialty"`
	Active                 bool     `json:"active"`
	MinAge                 *int     `json:"min_age,omitempty"`
	MaxAge                 *int     `json:"max_age,omitempty"`
	AcceptedInsurancePlans []string `json:"accepted_insurance_plans,omitempty"`
}

// AcceptsInsurance reports whether plan is accepted. An empty list means the
// doctor takes every plan.
func (d Doctor) AcceptsInsurance(plan string) bool {
	if len(d.AcceptedInsurancePlans) == 0 {
		return true
	}
	want := extract.Normalize(plan)
	for _, accepted := range d.AcceptedInsurancePlans {
		if extract.Normalize(accepted) == want {
			return true
		}
	}
	return false
}

// AcceptsAge reports whether age falls inside the configured bounds.
func (d Doctor) AcceptsAge(age int) bool {
	if d.MinAge != nil && age < *d.MinAge {
		return false
	}
	if d.MaxAge != nil && age > *d.MaxAge {
		return false
	}
	return true
}

// Service is a consultation or procedure. A nil DoctorID means any doctor offers it.
type Service struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	DoctorID *string `json:"doctor_id,omitempty"`
}

// OfferedBy reports whether the service can be booked with doctorID.
func (s Service) OfferedBy(doctorID string) bool {
	return s.DoctorID == nil || *s.DoctorID == doctorID
}

// BlockoutStatus is the lifecycle of a blockout.
type BlockoutStatus string

const (
	BlockoutActive BlockoutStatus = "active"
	BlockoutLifted BlockoutStatus = "lifted"
)

// Blockout is a date range in which a doctor takes no appointments. Both ends are inclusive.
type Blockout struct {
	ID        string         `json:"id"`
	DoctorID  string         `json:"doctor_id"`
	StartDate time.Time      `json:"start_date"`
	EndDate   time.Time      `json:"end_date"`
	Reason    string         `json:"reason"`
	Status    BlockoutStatus `json:"status"`
}

// Covers reports whether the blockout is active on date.
func (b Blockout) Covers(date time.Time) bool {
	if b.Status != BlockoutActive {
		return false
	}
	day := extract.DateOf(date)
	return !day.Before(extract.DateOf(b.StartDate)) && !day.After(extract.DateOf(b.EndDate))
}

// Directory is the read-only lookup surface used by the scheduling core.
type Directory interface {
	ListActiveDoctors(ctx context.Context) ([]Doctor, error)
	ListServicesForDoctor(ctx context.Context, doctorID string) ([]Service, error)
	GetDoctor(ctx context.Context, doctorID string) (*Doctor, error)
	ListActiveBlockouts(ctx context.Context, doctorID string) ([]Blockout, error)
}

// FindCoveringBlockout returns the first active blockout covering date, if any.
func FindCoveringBlockout(blockouts []Blockout, date time.Time) (*Blockout, bool) {
	for i := range blockouts {
		if blockouts[i].Covers(date) {
			return &blockouts[i], true
		}
	}
	return nil, false
}
