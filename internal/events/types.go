package events

import "time"

// AppointmentBookedV1 is emitted when a new appointment is committed.
type AppointmentBookedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	MobilePhone   string    `json:"mobile_phone"`
	DoctorID      string    `json:"doctor_id"`
	ServiceID     string    `json:"service_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	BookedAt      time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string {
	return "scheduling.appointment.booked.v1"
}

// AppointmentRescheduledV1 is emitted when an appointment moves to another slot.
type AppointmentRescheduledV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PreviousDate  string    `json:"previous_date"`
	PreviousTime  string    `json:"previous_time"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}

func (AppointmentRescheduledV1) EventType() string {
	return "scheduling.appointment.rescheduled.v1"
}

// AppointmentCancelledV1 is emitted when an appointment is cancelled and its slot released.
type AppointmentCancelledV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string {
	return "scheduling.appointment.cancelled.v1"
}
