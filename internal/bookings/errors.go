package bookings

import (
	"errors"
	"fmt"
)

// Category is the machine-classifiable error family returned to callers.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryConflict   Category = "conflict"
	CategoryNotFound   Category = "not_found"
	CategoryInternal   Category = "internal"
)

// Reason narrows a category down to the rule that failed.
type Reason string

const (
	ReasonMissingField         Reason = "missing_field"
	ReasonInvalidPhone         Reason = "invalid_phone"
	ReasonInvalidName          Reason = "invalid_name"
	ReasonInvalidTime          Reason = "invalid_time"
	ReasonInvalidDate          Reason = "invalid_date"
	ReasonLeadTime             Reason = "lead_time"
	ReasonDoctorInactive       Reason = "doctor_inactive"
	ReasonAgeIneligible        Reason = "age_ineligible"
	ReasonInsuranceNotAccepted Reason = "insurance_not_accepted"
	ReasonBlocked              Reason = "blocked"
	ReasonSlotTaken            Reason = "slot_taken"
	ReasonDoctorNotFound       Reason = "doctor_not_found"
	ReasonAppointmentNotFound  Reason = "appointment_not_found"
	ReasonPatientNotFound      Reason = "patient_not_found"
	ReasonNotActive            Reason = "appointment_not_active"
)

// BusinessRule reports whether the reason is a clinic policy rejection rather
// than malformed input.
func (r Reason) BusinessRule() bool {
	switch r {
	case ReasonLeadTime, ReasonDoctorInactive, ReasonAgeIneligible, ReasonInsuranceNotAccepted:
		return true
	}
	return false
}

// Error is a classified booking failure. Message is safe to show patients.
type Error struct {
	Category Category
	Reason   Reason
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bookings: %s/%s: %s: %v", e.Category, e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("bookings: %s/%s: %s", e.Category, e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(reason Reason, msg string) *Error {
	return &Error{Category: CategoryValidation, Reason: reason, Message: msg}
}

func conflictError(reason Reason, msg string) *Error {
	return &Error{Category: CategoryConflict, Reason: reason, Message: msg}
}

func notFoundError(reason Reason, msg string) *Error {
	return &Error{Category: CategoryNotFound, Reason: reason, Message: msg}
}

func internalError(action string, err error) *Error {
	return &Error{
		Category: CategoryInternal,
		Message:  "não foi possível concluir a operação agora",
		Err:      fmt.Errorf("%s: %w", action, err),
	}
}

// ErrSlotTaken is what a repository returns when its uniqueness backstop fires.
var ErrSlotTaken = errors.New("bookings: slot already taken")

// ErrAppointmentNotFound is returned by repositories for unknown appointment ids.
var ErrAppointmentNotFound = errors.New("bookings: appointment not found")

// ErrPatientNotFound is returned by repositories for unknown patient ids.
var ErrPatientNotFound = errors.New("bookings: patient not found")

// AsError extracts a classified error; anything else is treated as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return internalError("unclassified", err)
}
