package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/internal/extract"
)

func (e *Engine) stepReschedule(ctx context.Context, s *Session, text string) Outcome {
	switch s.State {
	case StateAwaitingName:
		return e.lookupAppointments(ctx, s, text, "Qual consulta você quer remarcar?")

	case StateAwaitingAppointmentChoice:
		chosen, out, ok := e.chooseAppointment(s, text, "Qual consulta você quer remarcar?")
		if !ok {
			return out
		}
		s.State = StateAwaitingNewDate
		return progress(fmt.Sprintf("Consulta selecionada: %s. Para qual nova data? (DD/MM/AAAA)", chosen.Label))

	case StateAwaitingNewDate:
		date, err := e.futureDate(text)
		if err != nil {
			return reprompt(err, "Para qual nova data? (DD/MM/AAAA)")
		}
		s.Draft.Date = date
		s.State = StateAwaitingNewTime
		return progress("Qual o novo horário? (HH:MM)")

	case StateAwaitingNewTime:
		clock, err := e.env.Extractor.Time(text)
		if err != nil {
			return reprompt(err, "Qual o novo horário? (HH:MM)")
		}
		s.Draft.Time = clock
		if res := e.advisory(ctx, s.Draft.DoctorID, s.Draft.Date, clock); !res.Available {
			s.State = StateAwaitingNewDate
			return Outcome{
				Success: false,
				Message: fmt.Sprintf("Esse horário não está disponível: %s. Para qual nova data? (DD/MM/AAAA)", res.Message),
				Error:   res.Category,
				Reason:  res.Reason,
			}
		}
		s.State = StateAwaitingConfirmation
		return progress(fmt.Sprintf("Confirma a mudança para %s às %s com %s? %s",
			extract.FormatDate(s.Draft.Date), s.Draft.Time, s.Draft.DoctorName, msgAskConfirm))

	case StateAwaitingConfirmation:
		return e.confirm(ctx, s, text, e.commitReschedule)
	}
	return e.internal(s, "reschedule step", fmt.Errorf("conversation: unexpected state %q", s.State))
}

func (e *Engine) stepCancel(ctx context.Context, s *Session, text string) Outcome {
	switch s.State {
	case StateAwaitingName:
		return e.lookupAppointments(ctx, s, text, "Qual consulta você quer cancelar?")

	case StateAwaitingAppointmentChoice:
		chosen, out, ok := e.chooseAppointment(s, text, "Qual consulta você quer cancelar?")
		if !ok {
			return out
		}
		s.State = StateAwaitingConfirmation
		return progress(fmt.Sprintf("Deseja cancelar a consulta de %s? %s", chosen.Label, msgAskConfirm))

	case StateAwaitingConfirmation:
		return e.confirm(ctx, s, text, e.commitCancel)
	}
	return e.internal(s, "cancel step", fmt.Errorf("conversation: unexpected state %q", s.State))
}

func (e *Engine) stepQuery(ctx context.Context, s *Session, text string) Outcome {
	if s.State != StateAwaitingName {
		return e.internal(s, "query step", fmt.Errorf("conversation: unexpected state %q", s.State))
	}
	name, err := e.env.Extractor.Name(text)
	if err != nil {
		return reprompt(err, msgAskName)
	}
	s.Draft.PatientName = name

	list, err := e.ownAppointments(ctx, s.Key, name)
	if err != nil {
		return e.internal(s, "find appointments", err)
	}
	if len(list) == 0 {
		return ended(s, bookings.CategoryNotFound, bookings.ReasonAppointmentNotFound, notFoundAppointmentsMessage(name))
	}

	var b strings.Builder
	b.WriteString("Suas próximas consultas:")
	for i, appt := range list {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, appointmentLabel(appt, e.doctorName(ctx, appt.DoctorID)), statusLabel(appt.Status))
	}
	s.State = StateEnded
	return Outcome{Success: true, Message: b.String(), Data: list}
}

// ownAppointments lists the future appointments under name, narrowed to the
// sender's mobile when MatchSenderPhone is set.
func (e *Engine) ownAppointments(ctx context.Context, senderKey, name string) ([]bookings.Appointment, error) {
	list, err := e.env.Scheduler.FindFutureByPatientName(ctx, name)
	if err != nil || !e.env.MatchSenderPhone {
		return list, err
	}
	mobile, ok := senderMobile(senderKey)
	if !ok {
		return nil, nil
	}
	owned := list[:0]
	for _, appt := range list {
		if appt.PatientMobile == mobile {
			owned = append(owned, appt)
		}
	}
	return owned, nil
}

// senderMobile turns a sender identity such as "5511987654321" or
// "whatsapp:+55 11 98765-4321" into the 10 or 11 digit national number.
func senderMobile(key string) (string, bool) {
	if at := strings.IndexByte(key, '@'); at >= 0 {
		key = key[:at]
	}
	var b strings.Builder
	for _, r := range key {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if len(digits) < 10 || len(digits) > 11 {
		return "", false
	}
	return digits, true
}

// lookupAppointments reads the patient name and lists their future appointments.
func (e *Engine) lookupAppointments(ctx context.Context, s *Session, text, header string) Outcome {
	name, err := e.env.Extractor.Name(text)
	if err != nil {
		return reprompt(err, msgAskName)
	}
	s.Draft.PatientName = name

	list, err := e.ownAppointments(ctx, s.Key, name)
	if err != nil {
		return e.internal(s, "find appointments", err)
	}
	if len(list) == 0 {
		return ended(s, bookings.CategoryNotFound, bookings.ReasonAppointmentNotFound, notFoundAppointmentsMessage(name))
	}

	s.Candidates = make([]Candidate, 0, len(list))
	for _, appt := range list {
		doctor := e.doctorName(ctx, appt.DoctorID)
		s.Candidates = append(s.Candidates, Candidate{
			ID:      appt.ID,
			Label:   appointmentLabel(appt, doctor),
			Ref:     appt.DoctorID,
			RefName: doctor,
		})
	}
	s.State = StateAwaitingAppointmentChoice
	return progress(numberedList(header, s.Candidates))
}

func (e *Engine) chooseAppointment(s *Session, text, header string) (Candidate, Outcome, bool) {
	idx, err := e.env.Extractor.Choice(text, len(s.Candidates))
	if err != nil {
		return Candidate{}, reprompt(err, numberedList(header, s.Candidates)), false
	}
	chosen := s.Candidates[idx-1]
	s.Draft.AppointmentID = chosen.ID
	s.Draft.DoctorID = chosen.Ref
	s.Draft.DoctorName = chosen.RefName
	return chosen, Outcome{}, true
}

func (e *Engine) commitReschedule(ctx context.Context, s *Session) Outcome {
	res, err := e.env.Scheduler.Reschedule(ctx, s.Draft.AppointmentID, s.Draft.Date, s.Draft.Time)
	if err == nil {
		s.State = StateCommitted
		return Outcome{
			Success: true,
			Message: fmt.Sprintf("Consulta remarcada para %s às %s com %s.", res.Appointment.DisplayDate(), res.Appointment.Time, s.Draft.DoctorName),
			Data:    res,
		}
	}

	be := bookings.AsError(err)
	prefix := "Não foi possível remarcar: " + be.Message + "."
	switch {
	case be.Category == bookings.CategoryInternal:
		return e.internal(s, "reschedule", err)
	case be.Category == bookings.CategoryConflict, be.Reason == bookings.ReasonLeadTime:
		s.State = StateAwaitingNewDate
		return rejection(be, prefix+" Para qual nova data? (DD/MM/AAAA)")
	default:
		return ended(s, be.Category, be.Reason, prefix+" Escreva *remarcar* para tentar de novo.")
	}
}

func (e *Engine) commitCancel(ctx context.Context, s *Session) Outcome {
	appt, err := e.env.Scheduler.Cancel(ctx, s.Draft.AppointmentID)
	if err == nil {
		s.State = StateCommitted
		return Outcome{
			Success: true,
			Message: fmt.Sprintf("Consulta de %s às %s cancelada. O horário foi liberado.", appt.DisplayDate(), appt.Time),
			Data:    appt,
		}
	}

	be := bookings.AsError(err)
	if be.Category == bookings.CategoryInternal {
		return e.internal(s, "cancel", err)
	}
	return ended(s, be.Category, be.Reason, "Não foi possível cancelar: "+be.Message+".")
}

func statusLabel(status bookings.Status) string {
	if status == bookings.StatusConfirmed {
		return "confirmada"
	}
	return "agendada"
}
