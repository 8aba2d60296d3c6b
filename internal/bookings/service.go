package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/extract"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinic.internal.bookings")

// CommitObserver receives the result of every commit attempt.
type CommitObserver interface {
	ObserveCommit(operation, result string, duration time.Duration)
}

// Service is the single entry point that writes appointments. Every caller,
// conversational or direct, goes through it.
type Service struct {
	repo     Repository
	dir      directory.Directory
	logger   *logging.Logger
	now      func() time.Time
	loc      *time.Location
	minLead  time.Duration
	observer CommitObserver
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the clinic timezone used for lead time and "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMinLeadTime sets how far ahead an appointment must start.
func WithMinLeadTime(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.minLead = d
		}
	}
}

// WithObserver records commit outcomes, usually into prometheus.
func WithObserver(o CommitObserver) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService constructs a bookings service.
func NewService(repo Repository, dir directory.Directory, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if dir == nil {
		panic("bookings: directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:    repo,
		dir:     dir,
		logger:  logger,
		now:     time.Now,
		loc:     time.UTC,
		minLead: time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Location is the clinic timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Today is the current calendar date in the clinic timezone.
func (s *Service) Today() time.Time {
	return extract.DateOf(s.now().In(s.loc))
}

// Book validates req against every clinic rule and commits it atomically.
func (s *Service) Book(ctx context.Context, req BookingRequest) (result CommitResult, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", req.DoctorID),
		attribute.String("clinic.slot_time", req.Time),
	)
	started := time.Now()
	defer func() { s.observe("book", started, err) }()

	if missing := req.missingFields(); len(missing) > 0 {
		return CommitResult{}, validationError(ReasonMissingField, "faltam dados obrigatórios: "+strings.Join(missing, ", "))
	}
	mobile, perr := extract.ParsePhone(req.MobilePhone)
	if perr != nil {
		return CommitResult{}, validationError(ReasonInvalidPhone, "o celular deve ter DDD + número, com 10 ou 11 dígitos")
	}
	name, perr := extract.ParseName(req.PatientName)
	if perr != nil {
		return CommitResult{}, validationError(ReasonInvalidName, "o nome precisa ter pelo menos 3 letras")
	}
	slot := req.Slot()
	if err := s.checkLeadTime(slot); err != nil {
		return CommitResult{}, err
	}
	doctor, err := s.activeDoctor(ctx, req.DoctorID)
	if err != nil {
		return CommitResult{}, s.fail(span, "load doctor", err)
	}
	if age := AgeOn(req.BirthDate, s.Today()); !doctor.AcceptsAge(age) {
		return CommitResult{}, validationError(ReasonAgeIneligible, ageMessage(doctor, age))
	}
	if !doctor.AcceptsInsurance(req.InsurancePlan) {
		return CommitResult{}, validationError(ReasonInsuranceNotAccepted,
			fmt.Sprintf("%s não atende o convênio %s", doctor.Name, strings.TrimSpace(req.InsurancePlan)))
	}

	patient := Patient{
		ID:            req.PatientID,
		FullName:      name,
		BirthDate:     extract.DateOf(req.BirthDate),
		InsurancePlan: strings.TrimSpace(req.InsurancePlan),
		Phone:         strings.TrimSpace(req.Phone),
		MobilePhone:   mobile,
	}
	appt := Appointment{
		ID:          uuid.NewString(),
		PatientName: name,
		DoctorID:    req.DoctorID,
		ServiceID:   req.ServiceID,
		Date:        slot.Date,
		Time:        slot.Time,
		Status:      StatusScheduled,
		Notes:       strings.TrimSpace(req.Notes),
	}

	err = s.repo.WithinSlot(ctx, slot, func(ctx context.Context, tx Tx) error {
		if err := s.ensureSlotFree(ctx, tx, slot, ""); err != nil {
			return err
		}
		if patient.ID == "" {
			patient.ID = uuid.NewString()
			if err := tx.InsertPatient(ctx, &patient); err != nil {
				return err
			}
		} else {
			existing, err := tx.GetPatient(ctx, patient.ID)
			if err != nil {
				return err
			}
			patient = *existing
			appt.PatientName = existing.FullName
		}
		appt.PatientMobile = patient.MobilePhone
		appt.PatientID = patient.ID
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, "appointment:"+appt.ID, events.AppointmentBookedV1{
			AppointmentID: appt.ID,
			PatientID:     patient.ID,
			PatientName:   patient.FullName,
			MobilePhone:   patient.MobilePhone,
			DoctorID:      appt.DoctorID,
			ServiceID:     appt.ServiceID,
			Date:          appt.DisplayDate(),
			Time:          appt.Time,
			BookedAt:      s.now().UTC(),
		})
	})
	if err != nil {
		return CommitResult{}, s.fail(span, "book", err)
	}

	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.DisplayDate(), "time", appt.Time)
	return CommitResult{AppointmentID: appt.ID, PatientID: patient.ID, Appointment: appt}, nil
}

// Reschedule moves an active appointment to a new date and time, through the
// same lead time, blockout and slot checks as a new booking.
func (s *Service) Reschedule(ctx context.Context, appointmentID string, date time.Time, clock string) (result CommitResult, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", appointmentID))
	started := time.Now()
	defer func() { s.observe("reschedule", started, err) }()

	if date.IsZero() || strings.TrimSpace(clock) == "" {
		return CommitResult{}, validationError(ReasonMissingField, "informe a nova data e o novo horário")
	}
	current, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return CommitResult{}, s.fail(span, "load appointment", err)
	}
	slot := Slot{DoctorID: current.DoctorID, Date: extract.DateOf(date), Time: clock}
	if err := s.checkLeadTime(slot); err != nil {
		return CommitResult{}, err
	}
	if _, err := s.activeDoctor(ctx, current.DoctorID); err != nil {
		return CommitResult{}, s.fail(span, "load doctor", err)
	}

	var updated Appointment
	err = s.repo.WithinSlot(ctx, slot, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return validationError(ReasonNotActive, "essa consulta não está mais ativa")
		}
		if err := s.ensureSlotFree(ctx, tx, slot, appointmentID); err != nil {
			return err
		}
		if err := tx.UpdateSchedule(ctx, appointmentID, slot); err != nil {
			return err
		}
		prevDate, prevTime := appt.DisplayDate(), appt.Time
		appt.Date, appt.Time = slot.Date, slot.Time
		updated = *appt
		return tx.AppendEvent(ctx, "appointment:"+appointmentID, events.AppointmentRescheduledV1{
			AppointmentID: appointmentID,
			DoctorID:      appt.DoctorID,
			PreviousDate:  prevDate,
			PreviousTime:  prevTime,
			Date:          appt.DisplayDate(),
			Time:          appt.Time,
			RescheduledAt: s.now().UTC(),
		})
	})
	if err != nil {
		return CommitResult{}, s.fail(span, "reschedule", err)
	}

	s.logger.Info("appointment rescheduled", "appointment_id", appointmentID, "date", updated.DisplayDate(), "time", updated.Time)
	return CommitResult{AppointmentID: updated.ID, PatientID: updated.PatientID, Appointment: updated}, nil
}

// Cancel marks an active appointment cancelled, releasing its slot.
func (s *Service) Cancel(ctx context.Context, appointmentID string) (cancelled Appointment, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", appointmentID))
	started := time.Now()
	defer func() { s.observe("cancel", started, err) }()

	current, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return Appointment{}, s.fail(span, "load appointment", err)
	}
	err = s.repo.WithinSlot(ctx, current.Slot(), func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return validationError(ReasonNotActive, "essa consulta não está mais ativa")
		}
		if err := tx.UpdateStatus(ctx, appointmentID, StatusCancelled); err != nil {
			return err
		}
		appt.Status = StatusCancelled
		cancelled = *appt
		return tx.AppendEvent(ctx, "appointment:"+appointmentID, events.AppointmentCancelledV1{
			AppointmentID: appointmentID,
			DoctorID:      appt.DoctorID,
			Date:          appt.DisplayDate(),
			Time:          appt.Time,
			CancelledAt:   s.now().UTC(),
		})
	})
	if err != nil {
		return Appointment{}, s.fail(span, "cancel", err)
	}

	s.logger.Info("appointment cancelled", "appointment_id", appointmentID)
	return cancelled, nil
}

// FindFutureByPatientName lists the patient's upcoming scheduled or confirmed
// appointments ordered by date and time.
func (s *Service) FindFutureByPatientName(ctx context.Context, name string) ([]Appointment, error) {
	now := s.now().In(s.loc)
	list, err := s.repo.FindFutureByPatientName(ctx, NameKey(name), extract.DateOf(now), now.Format("15:04"))
	if err != nil {
		return nil, fmt.Errorf("bookings: find future appointments: %w", err)
	}
	return list, nil
}

func (s *Service) checkLeadTime(slot Slot) error {
	start, err := slot.Start(s.loc)
	if err != nil {
		return validationError(ReasonInvalidTime, "horário inválido, use HH:MM")
	}
	if start.Before(s.now().Add(s.minLead)) {
		return validationError(ReasonLeadTime,
			fmt.Sprintf("a consulta precisa ser marcada com pelo menos %s de antecedência", formatLead(s.minLead)))
	}
	return nil
}

func (s *Service) activeDoctor(ctx context.Context, doctorID string) (*directory.Doctor, error) {
	doctor, err := s.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, notFoundError(ReasonDoctorNotFound, "médico não encontrado")
		}
		return nil, err
	}
	if !doctor.Active {
		return nil, validationError(ReasonDoctorInactive, fmt.Sprintf("%s não está atendendo no momento", doctor.Name))
	}
	return doctor, nil
}

func (s *Service) ensureSlotFree(ctx context.Context, tx Tx, slot Slot, excludeID string) error {
	blockouts, err := tx.ActiveBlockouts(ctx, slot.DoctorID)
	if err != nil {
		return err
	}
	if b, ok := directory.FindCoveringBlockout(blockouts, slot.Date); ok {
		return conflictError(ReasonBlocked, blockedMessage(b))
	}
	existing, err := tx.FindConflict(ctx, slot, excludeID)
	if err != nil {
		return err
	}
	if existing != nil {
		return conflictError(ReasonSlotTaken, slotTakenMessage(slot))
	}
	return nil
}

// fail classifies err, logging and recording anything internal.
func (s *Service) fail(span trace.Span, action string, err error) error {
	var be *Error
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, ErrSlotTaken):
		return conflictError(ReasonSlotTaken, "esse horário acabou de ser ocupado")
	case errors.Is(err, ErrAppointmentNotFound):
		return notFoundError(ReasonAppointmentNotFound, "consulta não encontrada")
	case errors.Is(err, ErrPatientNotFound):
		return notFoundError(ReasonPatientNotFound, "paciente não encontrado")
	}
	span.RecordError(err)
	s.logger.Error("booking operation failed", "action", action, "error", err)
	return internalError(action, err)
}

func (s *Service) observe(operation string, started time.Time, err error) {
	if s.observer == nil {
		return
	}
	result := "success"
	if err != nil {
		result = string(AsError(err).Category)
	}
	s.observer.ObserveCommit(operation, result, time.Since(started))
}

// AgeOn returns the age in whole years on day.
func AgeOn(birth, day time.Time) int {
	age := day.Year() - birth.Year()
	if day.Month() < birth.Month() || (day.Month() == birth.Month() && day.Day() < birth.Day()) {
		age--
	}
	return age
}

func ageMessage(d *directory.Doctor, age int) string {
	switch {
	case d.MinAge != nil && age < *d.MinAge:
		return fmt.Sprintf("%s atende pacientes a partir de %d anos", d.Name, *d.MinAge)
	case d.MaxAge != nil && age > *d.MaxAge:
		return fmt.Sprintf("%s atende pacientes até %d anos", d.Name, *d.MaxAge)
	}
	return fmt.Sprintf("%s não atende pacientes com %d anos", d.Name, age)
}

func formatLead(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%d min", int(d/time.Minute))
}
