package bookings

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/extract"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Booker is the commit surface the HTTP handler drives.
type Booker interface {
	Book(ctx context.Context, req BookingRequest) (CommitResult, error)
	Cancel(ctx context.Context, appointmentID string) (Appointment, error)
	FindFutureByPatientName(ctx context.Context, name string) ([]Appointment, error)
}

// SlotChecker answers advisory availability questions.
type SlotChecker interface {
	Check(ctx context.Context, doctorID string, date time.Time, clock string) AdvisoryCheckResult
}

// Handler exposes direct booking over HTTP. It commits through the same
// Service as the conversational flows.
type Handler struct {
	booker  Booker
	checker SlotChecker
	logger  *logging.Logger
}

// NewHandler creates a bookings handler.
func NewHandler(booker Booker, checker SlotChecker, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{booker: booker, checker: checker, logger: logger}
}

// Response mirrors the conversational outcome shape.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Error   Category `json:"error,omitempty"`
	Reason  Reason   `json:"reason,omitempty"`
}

// CreateAppointmentRequest uses display formats: dates DD/MM/YYYY, time HH:MM.
type CreateAppointmentRequest struct {
	PatientID     string `json:"patient_id,omitempty"`
	PatientName   string `json:"patient_name"`
	BirthDate     string `json:"birth_date"`
	InsurancePlan string `json:"insurance_plan"`
	Phone         string `json:"phone,omitempty"`
	MobilePhone   string `json:"mobile_phone"`
	DoctorID      string `json:"doctor_id"`
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Notes         string `json:"notes,omitempty"`
}

// CreateAppointment handles POST /appointments.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode appointment request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	booking := BookingRequest{
		PatientID:     req.PatientID,
		PatientName:   req.PatientName,
		InsurancePlan: req.InsurancePlan,
		Phone:         req.Phone,
		MobilePhone:   req.MobilePhone,
		DoctorID:      req.DoctorID,
		ServiceID:     req.ServiceID,
		Time:          strings.TrimSpace(req.Time),
		Notes:         req.Notes,
	}
	if booking.MobilePhone == "" {
		booking.MobilePhone = req.Phone
	}
	// Blank dates stay zero so Book reports them as missing fields.
	if strings.TrimSpace(req.BirthDate) != "" {
		d, err := extract.ParseDate(req.BirthDate)
		if err != nil {
			h.writeError(w, validationError(ReasonInvalidDate, "data de nascimento inválida, use DD/MM/AAAA"))
			return
		}
		booking.BirthDate = d
	}
	if strings.TrimSpace(req.Date) != "" {
		d, err := extract.ParseDate(req.Date)
		if err != nil {
			h.writeError(w, validationError(ReasonInvalidDate, "data da consulta inválida, use DD/MM/AAAA"))
			return
		}
		booking.Date = d
	}

	res, err := h.booker.Book(r.Context(), booking)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Consulta agendada para " + res.Appointment.DisplayDate() + " às " + res.Appointment.Time,
		Data:    res,
	})
}

// CancelAppointment handles DELETE /appointments/{appointmentID}.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")
	if appointmentID == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.booker.Cancel(r.Context(), appointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, Response{Success: true, Message: "Consulta cancelada", Data: appt})
}

// ListAppointments handles GET /appointments?patient_name=.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("patient_name"))
	if name == "" {
		http.Error(w, "patient_name is required", http.StatusBadRequest)
		return
	}
	list, err := h.booker.FindFutureByPatientName(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []Appointment{}
	}
	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: list})
}

// Availability handles GET /availability?doctor_id=&date=DD/MM/YYYY&time=HH:MM.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID := strings.TrimSpace(q.Get("doctor_id"))
	if doctorID == "" {
		http.Error(w, "doctor_id is required", http.StatusBadRequest)
		return
	}
	date, err := extract.ParseDate(q.Get("date"))
	if err != nil {
		http.Error(w, "date must be DD/MM/YYYY", http.StatusBadRequest)
		return
	}
	clock, err := extract.ParseTime(q.Get("time"))
	if err != nil {
		http.Error(w, "time must be HH:MM", http.StatusBadRequest)
		return
	}

	res := h.checker.Check(r.Context(), doctorID, date, clock)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	be := AsError(err)
	status := http.StatusInternalServerError
	switch be.Category {
	case CategoryValidation:
		status = http.StatusUnprocessableEntity
	case CategoryConflict:
		status = http.StatusConflict
	case CategoryNotFound:
		status = http.StatusNotFound
	default:
		h.logger.Error("booking request failed", "error", err)
	}
	h.writeJSON(w, status, Response{Success: false, Message: be.Message, Error: be.Category, Reason: be.Reason})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
