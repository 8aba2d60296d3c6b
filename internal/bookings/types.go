package bookings

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/extract"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
)

// Active reports whether the status occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Slot is a (doctor, date, time) booking position.
type Slot struct {
	DoctorID string
	Date     time.Time
	Time     string
}

// Key is the canonical string form of the slot.
func (s Slot) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.DoctorID, extract.DateOf(s.Date).Format("2006-01-02"), s.Time)
}

// LockKey maps the slot onto a 64-bit advisory lock id.
func (s Slot) LockKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.Key()))
	return int64(h.Sum64())
}

// Start is the instant the slot begins in loc.
func (s Slot) Start(loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", s.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("bookings: parse slot time %q: %w", s.Time, err)
	}
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// Patient is the person an appointment is booked for.
type Patient struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	BirthDate     time.Time `json:"birth_date"`
	InsurancePlan string    `json:"insurance_plan"`
	Phone         string    `json:"phone,omitempty"`
	MobilePhone   string    `json:"mobile_phone"`
}

// Appointment is a booked slot.
type Appointment struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name,omitempty"`
	PatientMobile string    `json:"patient_mobile,omitempty"`
	DoctorID      string    `json:"doctor_id"`
	ServiceID     string    `json:"service_id"`
	Date          time.Time `json:"date"`
	Time          string    `json:"time"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Slot returns the position the appointment occupies.
func (a Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

// DisplayDate renders the appointment date as DD/MM/YYYY.
func (a Appointment) DisplayDate() string {
	return extract.FormatDate(a.Date)
}

// BookingRequest carries everything needed to commit a new appointment.
// PatientID reuses an existing patient instead of creating one.
type BookingRequest struct {
	PatientID     string    `json:"patient_id,omitempty"`
	PatientName   string    `json:"patient_name"`
	BirthDate     time.Time `json:"birth_date"`
	InsurancePlan string    `json:"insurance_plan"`
	Phone         string    `json:"phone,omitempty"`
	MobilePhone   string    `json:"mobile_phone"`
	DoctorID      string    `json:"doctor_id"`
	ServiceID     string    `json:"service_id"`
	Date          time.Time `json:"date"`
	Time          string    `json:"time"`
	Notes         string    `json:"notes,omitempty"`
}

// Slot returns the requested position.
func (r BookingRequest) Slot() Slot {
	return Slot{DoctorID: r.DoctorID, Date: extract.DateOf(r.Date), Time: r.Time}
}

func (r BookingRequest) missingFields() []string {
	var missing []string
	if strings.TrimSpace(r.PatientName) == "" {
		missing = append(missing, "patient_name")
	}
	if r.BirthDate.IsZero() {
		missing = append(missing, "birth_date")
	}
	if strings.TrimSpace(r.InsurancePlan) == "" {
		missing = append(missing, "insurance_plan")
	}
	if strings.TrimSpace(r.MobilePhone) == "" {
		missing = append(missing, "mobile_phone")
	}
	if strings.TrimSpace(r.DoctorID) == "" {
		missing = append(missing, "doctor_id")
	}
	if strings.TrimSpace(r.ServiceID) == "" {
		missing = append(missing, "service_id")
	}
	if r.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(r.Time) == "" {
		missing = append(missing, "time")
	}
	return missing
}

// CommitResult is the authoritative outcome of a successful booking.
type CommitResult struct {
	AppointmentID string      `json:"appointment_id"`
	PatientID     string      `json:"patient_id"`
	Appointment   Appointment `json:"appointment"`
}

// AdvisoryCheckResult is a non-authoritative availability answer used for
// fast feedback before the commit.
type AdvisoryCheckResult struct {
	Available bool     `json:"available"`
	Category  Category `json:"category,omitempty"`
	Reason    Reason   `json:"reason,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// NameKey is the comparison form of a patient name used for lookups.
func NameKey(name string) string {
	return extract.Normalize(name)
}
