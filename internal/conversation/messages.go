package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/internal/extract"
)

const (
	msgMenu = "Olá! Sou o assistente de agendamentos da clínica. Você pode escrever:\n" +
		"• *agendar* para marcar uma consulta\n" +
		"• *consultar* para ver suas consultas\n" +
		"• *remarcar* para mudar data ou horário\n" +
		"• *cancelar* para desmarcar uma consulta"
	msgUnknown = "Desculpe, não entendi. " + msgMenu

	msgAskName         = "Qual é o seu nome completo?"
	msgAskBirthDate    = "Qual é a sua data de nascimento? (DD/MM/AAAA)"
	msgAskInsurance    = "Qual é o seu convênio? Se for atendimento particular, responda *particular*."
	msgAskPhone        = "Qual é o seu celular com DDD? (ex.: 11987654321)"
	msgAskDate         = "Para qual data você gostaria? (DD/MM/AAAA)"
	msgAskTime         = "Qual horário? (HH:MM)"
	msgAskConfirm      = "Responda *sim* para confirmar ou *não* para desistir."
	msgAborted         = "Tudo bem, atendimento encerrado. Quando quiser, é só mandar uma mensagem."
	msgFutureBirthDate = "a data de nascimento não pode estar no futuro"
	msgDateNotFuture   = "a data precisa ser a partir de amanhã"
	msgNoDoctors       = "No momento não há médicos disponíveis para agendamento. Por favor, entre em contato com a clínica."
	msgNoServices      = "Esse médico não tem serviços disponíveis para agendamento. Por favor, entre em contato com a clínica."
)

func startPrompt(intent Intent) string {
	switch intent {
	case IntentSchedule:
		return "Vamos agendar sua consulta. " + msgAskName
	case IntentReschedule:
		return "Vamos remarcar sua consulta. " + msgAskName
	case IntentCancel:
		return "Vamos cancelar sua consulta. " + msgAskName
	case IntentQuery:
		return "Vou buscar suas consultas. " + msgAskName
	}
	return msgMenu
}

func retryPrompt(err error, question string) string {
	var hint string
	var pe *extract.ParseError
	if errors.As(err, &pe) {
		hint = pe.Hint
	} else if err != nil {
		hint = err.Error()
	}
	if hint == "" {
		return "Não entendi. " + question
	}
	return fmt.Sprintf("Não entendi: %s. %s", hint, question)
}

func numberedList(header string, options []Candidate) string {
	var b strings.Builder
	b.WriteString(header)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Label)
	}
	b.WriteString("\nResponda com o número da opção.")
	return b.String()
}

func scheduleSummary(d Draft) string {
	return fmt.Sprintf("Confira os dados do agendamento:\n"+
		"Paciente: %s\nNascimento: %s\nConvênio: %s\nCelular: %s\n"+
		"Médico: %s\nServiço: %s\nData: %s às %s\n%s",
		d.PatientName, extract.FormatDate(d.BirthDate), d.InsurancePlan, d.MobilePhone,
		d.DoctorName, d.ServiceName, extract.FormatDate(d.Date), d.Time, msgAskConfirm)
}

func appointmentLabel(a bookings.Appointment, doctorName string) string {
	return fmt.Sprintf("%s às %s com %s", a.DisplayDate(), a.Time, doctorName)
}

func internalErrorMessage(clinicPhone string) string {
	if clinicPhone == "" {
		return "Desculpe, tivemos um problema ao processar sua solicitação. Tente novamente em instantes."
	}
	return fmt.Sprintf("Desculpe, tivemos um problema ao processar sua solicitação. Tente novamente em instantes ou ligue para a clínica: %s.", clinicPhone)
}

func notFoundAppointmentsMessage(name string) string {
	return fmt.Sprintf("Não encontrei consultas futuras no nome de %s. Confira o nome ou escreva *agendar* para marcar uma nova consulta.", name)
}
