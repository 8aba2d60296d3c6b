package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/internal/extract"
)

func (e *Engine) stepSchedule(ctx context.Context, s *Session, text string) Outcome {
	switch s.State {
	case StateAwaitingName:
		name, err := e.env.Extractor.Name(text)
		if err != nil {
			return reprompt(err, msgAskName)
		}
		s.Draft.PatientName = name
		s.State = StateAwaitingBirthDate
		return progress(msgAskBirthDate)

	case StateAwaitingBirthDate:
		birth, err := e.env.Extractor.Date(text)
		if err != nil {
			return reprompt(err, msgAskBirthDate)
		}
		if birth.After(e.today()) {
			return reprompt(&extract.ParseError{Field: extract.FieldBirthDate, Input: text, Hint: msgFutureBirthDate}, msgAskBirthDate)
		}
		s.Draft.BirthDate = birth
		s.State = StateAwaitingInsurance
		return progress(msgAskInsurance)

	case StateAwaitingInsurance:
		plan, err := e.env.Extractor.Insurance(text)
		if err != nil {
			return reprompt(err, msgAskInsurance)
		}
		s.Draft.InsurancePlan = plan
		s.State = StateAwaitingPhone
		return progress(msgAskPhone)

	case StateAwaitingPhone:
		phone, err := e.env.Extractor.Phone(text)
		if err != nil {
			return reprompt(err, msgAskPhone)
		}
		s.Draft.Phone = phone
		s.Draft.MobilePhone = phone
		return e.offerDoctors(ctx, s, "")

	case StateAwaitingDoctorChoice:
		idx, err := e.env.Extractor.Choice(text, len(s.Candidates))
		if err != nil {
			return reprompt(err, numberedList("Escolha o médico:", s.Candidates))
		}
		chosen := s.Candidates[idx-1]
		s.Draft.DoctorID = chosen.ID
		s.Draft.DoctorName = chosen.RefName
		return e.offerServices(ctx, s)

	case StateAwaitingServiceChoice:
		idx, err := e.env.Extractor.Choice(text, len(s.Candidates))
		if err != nil {
			return reprompt(err, numberedList("Escolha o serviço:", s.Candidates))
		}
		chosen := s.Candidates[idx-1]
		s.Draft.ServiceID = chosen.ID
		s.Draft.ServiceName = chosen.Label
		s.Candidates = nil
		s.State = StateAwaitingDate
		return progress(msgAskDate)

	case StateAwaitingDate:
		date, err := e.futureDate(text)
		if err != nil {
			return reprompt(err, msgAskDate)
		}
		s.Draft.Date = date
		s.State = StateAwaitingTime
		return progress(msgAskTime)

	case StateAwaitingTime:
		clock, err := e.env.Extractor.Time(text)
		if err != nil {
			return reprompt(err, msgAskTime)
		}
		s.Draft.Time = clock
		if res := e.advisory(ctx, s.Draft.DoctorID, s.Draft.Date, clock); !res.Available {
			s.State = StateAwaitingDate
			return Outcome{
				Success: false,
				Message: fmt.Sprintf("Esse horário não está disponível: %s. %s", res.Message, msgAskDate),
				Error:   res.Category,
				Reason:  res.Reason,
			}
		}
		s.State = StateAwaitingConfirmation
		return progress(scheduleSummary(s.Draft))

	case StateAwaitingConfirmation:
		return e.confirm(ctx, s, text, e.commitSchedule)
	}
	return e.internal(s, "schedule step", fmt.Errorf("conversation: unexpected state %q", s.State))
}

// offerDoctors lists active doctors and moves the session to doctor choice.
func (e *Engine) offerDoctors(ctx context.Context, s *Session, prefix string) Outcome {
	doctors, err := e.env.Directory.ListActiveDoctors(ctx)
	if err != nil {
		return e.internal(s, "list doctors", err)
	}
	if len(doctors) == 0 {
		return ended(s, bookings.CategoryNotFound, "", msgNoDoctors)
	}
	s.Candidates = make([]Candidate, 0, len(doctors))
	for _, d := range doctors {
		label := d.Name
		if d.Specialty != "" {
			label = fmt.Sprintf("%s (%s)", d.Name, d.Specialty)
		}
		s.Candidates = append(s.Candidates, Candidate{ID: d.ID, Label: label, RefName: d.Name})
	}
	s.State = StateAwaitingDoctorChoice
	return progress(prefix + numberedList("Escolha o médico:", s.Candidates))
}

// offerServices lists what the chosen doctor offers.
func (e *Engine) offerServices(ctx context.Context, s *Session) Outcome {
	services, err := e.env.Directory.ListServicesForDoctor(ctx, s.Draft.DoctorID)
	if err != nil {
		return e.internal(s, "list services", err)
	}
	if len(services) == 0 {
		return ended(s, bookings.CategoryNotFound, "", msgNoServices)
	}
	s.Candidates = make([]Candidate, 0, len(services))
	for _, svc := range services {
		s.Candidates = append(s.Candidates, Candidate{ID: svc.ID, Label: svc.Name})
	}
	s.State = StateAwaitingServiceChoice
	return progress(numberedList(fmt.Sprintf("Serviços com %s:", s.Draft.DoctorName), s.Candidates))
}

func (e *Engine) commitSchedule(ctx context.Context, s *Session) Outcome {
	res, err := e.env.Scheduler.Book(ctx, s.Draft.BookingRequest())
	if err == nil {
		s.State = StateCommitted
		s.Draft.AppointmentID = res.AppointmentID
		return Outcome{
			Success: true,
			Message: fmt.Sprintf("Consulta agendada! %s às %s com %s (%s). Código do agendamento: %s.",
				res.Appointment.DisplayDate(), res.Appointment.Time, s.Draft.DoctorName, s.Draft.ServiceName, res.AppointmentID),
			Data: res,
		}
	}

	be := bookings.AsError(err)
	prefix := "Não foi possível agendar: " + be.Message + "."
	switch {
	case be.Category == bookings.CategoryInternal:
		return e.internal(s, "book", err)
	case be.Category == bookings.CategoryConflict, be.Reason == bookings.ReasonLeadTime:
		s.State = StateAwaitingDate
		return rejection(be, prefix+" "+msgAskDate)
	case be.Reason.BusinessRule(), be.Reason == bookings.ReasonDoctorNotFound:
		out := e.offerDoctors(ctx, s, prefix+" Escolha outro médico.\n")
		if out.Error != "" {
			return out
		}
		return rejection(be, out.Message)
	default:
		return ended(s, be.Category, be.Reason, prefix+" Escreva *agendar* para começar de novo.")
	}
}
