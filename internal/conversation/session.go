package conversation

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
)

// Intent is the classified purpose of a conversation.
type Intent string

const (
	IntentSchedule   Intent = "schedule"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentQuery      Intent = "query"
	IntentHelp       Intent = "help"
	IntentUnknown    Intent = "unknown"
)

// State is the position of a session inside its intent's flow.
type State string

const (
	StateAwaitingName              State = "awaiting_name"
	StateAwaitingBirthDate         State = "awaiting_birth_date"
	StateAwaitingInsurance         State = "awaiting_insurance"
	StateAwaitingPhone             State = "awaiting_phone"
	StateAwaitingDoctorChoice      State = "awaiting_doctor_choice"
	StateAwaitingServiceChoice     State = "awaiting_service_choice"
	StateAwaitingDate              State = "awaiting_date"
	StateAwaitingTime              State = "awaiting_time"
	StateAwaitingAppointmentChoice State = "awaiting_appointment_choice"
	StateAwaitingNewDate           State = "awaiting_new_date"
	StateAwaitingNewTime           State = "awaiting_new_time"
	StateAwaitingConfirmation      State = "awaiting_confirmation"

	// Terminal states. A session in one of them is deleted, never saved.
	StateCommitted State = "committed"
	StateAborted   State = "aborted"
	StateEnded     State = "ended"
)

// Terminal reports whether the flow is over.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted || s == StateEnded
}

// Draft accumulates booking data across turns. A rejected input never clears
// a field that is already filled.
type Draft struct {
	PatientName   string    `json:"patient_name,omitempty"`
	BirthDate     time.Time `json:"birth_date,omitempty"`
	InsurancePlan string    `json:"insurance_plan,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	MobilePhone   string    `json:"mobile_phone,omitempty"`
	DoctorID      string    `json:"doctor_id,omitempty"`
	DoctorName    string    `json:"doctor_name,omitempty"`
	ServiceID     string    `json:"service_id,omitempty"`
	ServiceName   string    `json:"service_name,omitempty"`
	Date          time.Time `json:"date,omitempty"`
	Time          string    `json:"time,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
}

// BookingRequest converts a complete schedule draft into a commit request.
func (d Draft) BookingRequest() bookings.BookingRequest {
	return bookings.BookingRequest{
		PatientName:   d.PatientName,
		BirthDate:     d.BirthDate,
		InsurancePlan: d.InsurancePlan,
		Phone:         d.Phone,
		MobilePhone:   d.MobilePhone,
		DoctorID:      d.DoctorID,
		ServiceID:     d.ServiceID,
		Date:          d.Date,
		Time:          d.Time,
		Notes:         d.Notes,
	}
}

// Candidate is one numbered option shown to the user.
type Candidate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Ref carries a secondary id, e.g. the doctor of an appointment.
	Ref     string `json:"ref,omitempty"`
	RefName string `json:"ref_name,omitempty"`
}

// Session is the in-progress dialogue for one sender.
type Session struct {
	Key            string      `json:"key"`
	Intent         Intent      `json:"intent"`
	State          State       `json:"state"`
	Draft          Draft       `json:"draft"`
	Candidates     []Candidate `json:"candidates,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	out := s
	if s.Candidates != nil {
		out.Candidates = append([]Candidate(nil), s.Candidates...)
	}
	return out
}
