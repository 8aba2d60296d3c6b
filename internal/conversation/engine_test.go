package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
)

func TestScheduleStartsAtAwaitingName(t *testing.T) {
	f := newConvFixture(t)

	out := f.send(t, "5511999990000", "Quero agendar uma consulta")
	assert.True(t, out.Success)
	assert.Equal(t, IntentSchedule, out.Intent)
	assert.Equal(t, StateAwaitingName, out.State)
	assert.Contains(t, out.Message, msgAskName)

	s := f.session(t, "5511999990000")
	require.NotNil(t, s)
	assert.Equal(t, StateAwaitingName, s.State)
	assert.Equal(t, IntentSchedule, s.Intent)
}

func TestScheduleHappyPathCommitsOnce(t *testing.T) {
	f := newConvFixture(t)
	ctx := context.Background()
	sender := "5511999990001"

	out := f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "às 14:30")
	require.Equal(t, StateAwaitingConfirmation, out.State, out.Message)
	assert.Contains(t, out.Message, "Dra. Ana Lima")
	assert.Contains(t, out.Message, "05/03/2026 às 14:30")

	out = f.send(t, sender, "sim")
	require.True(t, out.Success, out.Message)
	assert.Equal(t, StateCommitted, out.State)
	res, ok := out.Data.(bookings.CommitResult)
	require.True(t, ok)
	assert.NotEmpty(t, res.AppointmentID)
	assert.Contains(t, out.Message, res.AppointmentID)
	assert.Nil(t, f.session(t, sender))

	// A repeated confirmation after commit starts nothing and books nothing.
	again := f.send(t, sender, "sim")
	assert.Equal(t, IntentUnknown, again.Intent)
	assert.Equal(t, msgUnknown, again.Message)
	assert.Nil(t, f.session(t, sender))

	list, err := f.svc.FindFutureByPatientName(ctx, "maria souza")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d-ana", list[0].DoctorID)
	assert.Equal(t, "14:30", list[0].Time)

	pending, err := f.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestUnderagePatientIsReroutedToDoctorChoice(t *testing.T) {
	f := newConvFixture(t)
	ctx := context.Background()
	sender := "5511999990002"

	out := f.sendAll(t, sender, "agendar", "Pedro Alves", "10/01/2016", "Unimed", "11987654321", "1", "1", "05/03/2026", "14:30")
	require.Equal(t, StateAwaitingConfirmation, out.State, out.Message)

	out = f.send(t, sender, "sim")
	assert.False(t, out.Success)
	assert.Equal(t, bookings.CategoryValidation, out.Error)
	assert.Equal(t, bookings.ReasonAgeIneligible, out.Reason)
	assert.Equal(t, StateAwaitingDoctorChoice, out.State)
	assert.Contains(t, out.Message, "Escolha outro médico")

	list, err := f.svc.FindFutureByPatientName(ctx, "Pedro Alves")
	require.NoError(t, err)
	assert.Empty(t, list)

	s := f.session(t, sender)
	require.NotNil(t, s)
	assert.Equal(t, "Pedro Alves", s.Draft.PatientName)
	assert.Equal(t, day(2016, 1, 10), s.Draft.BirthDate)

	out = f.sendAll(t, sender, "2", "1", "05/03/2026", "14:30", "sim")
	require.True(t, out.Success, out.Message)
	assert.Contains(t, out.Message, "Dra. Beatriz Reis")
}

func TestConcurrentConfirmationsSameSlotExactlyOneWins(t *testing.T) {
	f := newConvFixture(t)
	senders := []string{"5511999990003", "5511999990004"}
	names := []string{"Maria Souza", "Joana Prado"}

	for i, sender := range senders {
		out := f.scheduleUntilConfirm(t, sender, names[i], "05/03/2026", "09:00")
		require.Equal(t, StateAwaitingConfirmation, out.State, out.Message)
	}

	outcomes := make([]Outcome, len(senders))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, sender := range senders {
		wg.Add(1)
		go func(i int, sender string) {
			defer wg.Done()
			<-start
			out, err := f.router.Route(context.Background(), InboundMessage{Sender: sender, Body: "sim"})
			if err != nil {
				t.Errorf("route: %v", err)
			}
			outcomes[i] = out
		}(i, sender)
	}
	close(start)
	wg.Wait()

	wins, conflicts := 0, 0
	for _, out := range outcomes {
		switch {
		case out.Success:
			wins++
			assert.Equal(t, StateCommitted, out.State)
		case out.Error == bookings.CategoryConflict:
			conflicts++
			assert.Equal(t, bookings.ReasonSlotTaken, out.Reason)
			assert.Equal(t, StateAwaitingDate, out.State)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestInvalidPhoneKeepsStateAndDraft(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990005"

	f.sendAll(t, sender, "agendar", "Maria Souza", "20/05/1990", "Unimed")
	out := f.send(t, sender, "11999")
	assert.False(t, out.Success)
	assert.Equal(t, bookings.CategoryValidation, out.Error)
	assert.Equal(t, StateAwaitingPhone, out.State)
	assert.Contains(t, out.Message, msgAskPhone)

	s := f.session(t, sender)
	require.NotNil(t, s)
	assert.Equal(t, StateAwaitingPhone, s.State)
	assert.Empty(t, s.Draft.Phone)
	assert.Empty(t, s.Draft.MobilePhone)
	assert.Equal(t, "Maria Souza", s.Draft.PatientName)
	assert.Equal(t, "Unimed", s.Draft.InsurancePlan)
}

func TestCancelWithoutAppointmentsEndsSession(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990006"

	out := f.sendAll(t, sender, "cancelar", "Fulano de Tal")
	assert.False(t, out.Success)
	assert.Equal(t, bookings.CategoryNotFound, out.Error)
	assert.Equal(t, StateEnded, out.State)
	assert.Nil(t, f.session(t, sender))
	assert.Equal(t, 0, f.store.Len())
}

func TestInvalidInputsNeverClearDraft(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990007"

	f.sendAll(t, sender, "agendar", "Maria Souza")
	tests := []struct {
		input string
		state State
	}{
		{"31/02/2000", StateAwaitingBirthDate},
		{"amanhã", StateAwaitingBirthDate},
		{"01/01/2030", StateAwaitingBirthDate},
	}
	for _, tt := range tests {
		out := f.send(t, sender, tt.input)
		assert.Equal(t, bookings.CategoryValidation, out.Error, tt.input)
		assert.Equal(t, tt.state, out.State, tt.input)
	}

	s := f.session(t, sender)
	require.NotNil(t, s)
	assert.Equal(t, "Maria Souza", s.Draft.PatientName)
	assert.True(t, s.Draft.BirthDate.IsZero())
}

func TestPastOrTodayDateIsRejected(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990008"

	f.sendAll(t, sender, "agendar", "Maria Souza", "20/05/1990", "Unimed", "11987654321", "1", "1")
	out := f.send(t, sender, "02/03/2026")
	assert.Equal(t, bookings.CategoryValidation, out.Error)
	assert.Equal(t, StateAwaitingDate, out.State)
	assert.Contains(t, out.Message, msgDateNotFuture)
}

func TestBlockedDateSendsFlowBackToDate(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990009"

	out := f.scheduleUntilConfirm(t, sender, "Maria Souza", "11/03/2026", "09:00")
	assert.False(t, out.Success)
	assert.Equal(t, bookings.CategoryConflict, out.Error)
	assert.Equal(t, bookings.ReasonBlocked, out.Reason)
	assert.Equal(t, StateAwaitingDate, out.State)
	assert.Contains(t, out.Message, "congresso")

	out = f.sendAll(t, sender, "13/03/2026", "09:00")
	assert.Equal(t, StateAwaitingConfirmation, out.State)
}

func TestTakenSlotIsReportedBeforeConfirmation(t *testing.T) {
	f := newConvFixture(t)

	out := f.scheduleUntilConfirm(t, "5511999990010", "Maria Souza", "05/03/2026", "14:30")
	require.Equal(t, StateAwaitingConfirmation, out.State)
	require.True(t, f.send(t, "5511999990010", "sim").Success)

	out = f.scheduleUntilConfirm(t, "5511999990011", "Joana Prado", "05/03/2026", "14:30")
	assert.Equal(t, bookings.ReasonSlotTaken, out.Reason)
	assert.Equal(t, StateAwaitingDate, out.State)
}

func TestDeclineAtConfirmationAborts(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990012"

	f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	out := f.send(t, sender, "Não")
	assert.True(t, out.Success)
	assert.Equal(t, StateAborted, out.State)
	assert.Nil(t, f.session(t, sender))

	out = f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	out = f.send(t, sender, "talvez")
	assert.Equal(t, bookings.CategoryValidation, out.Error)
	assert.Equal(t, StateAwaitingConfirmation, out.State)
}

func TestRescheduleFlow(t *testing.T) {
	f := newConvFixture(t)
	ctx := context.Background()
	sender := "5511999990013"

	f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	require.True(t, f.send(t, sender, "sim").Success)

	out := f.sendAll(t, sender, "preciso remarcar", "maria  souza")
	require.Equal(t, StateAwaitingAppointmentChoice, out.State, out.Message)
	assert.Contains(t, out.Message, "05/03/2026 às 14:30 com Dra. Ana Lima")

	out = f.sendAll(t, sender, "1", "06/03/2026", "15:00")
	require.Equal(t, StateAwaitingConfirmation, out.State, out.Message)

	out = f.send(t, sender, "confirmo")
	require.True(t, out.Success, out.Message)
	assert.Equal(t, StateCommitted, out.State)

	list, err := f.svc.FindFutureByPatientName(ctx, "Maria Souza")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "06/03/2026", list[0].DisplayDate())
	assert.Equal(t, "15:00", list[0].Time)
}

func TestRescheduleIntoBlockoutIsRejected(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990014"

	f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	require.True(t, f.send(t, sender, "sim").Success)

	out := f.sendAll(t, sender, "remarcar", "Maria Souza", "1", "10/03/2026", "10:00")
	assert.Equal(t, bookings.ReasonBlocked, out.Reason)
	assert.Equal(t, StateAwaitingNewDate, out.State)
}

func TestCancelFlowReleasesSlot(t *testing.T) {
	f := newConvFixture(t)
	ctx := context.Background()
	sender := "5511999990015"

	f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	require.True(t, f.send(t, sender, "sim").Success)

	out := f.sendAll(t, sender, "cancelar", "Maria Souza", "1")
	require.Equal(t, StateAwaitingConfirmation, out.State, out.Message)
	out = f.send(t, sender, "sim")
	require.True(t, out.Success, out.Message)
	appt, ok := out.Data.(bookings.Appointment)
	require.True(t, ok)
	assert.Equal(t, bookings.StatusCancelled, appt.Status)

	list, err := f.svc.FindFutureByPatientName(ctx, "Maria Souza")
	require.NoError(t, err)
	assert.Empty(t, list)

	out = f.scheduleUntilConfirm(t, "5511999990016", "Joana Prado", "05/03/2026", "14:30")
	assert.Equal(t, StateAwaitingConfirmation, out.State)
}

func TestQueryListsUpcomingAppointments(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990017"

	f.scheduleUntilConfirm(t, sender, "Maria Souza", "06/03/2026", "08:00")
	require.True(t, f.send(t, sender, "sim").Success)
	f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	require.True(t, f.send(t, sender, "sim").Success)

	out := f.sendAll(t, sender, "consultar", "Maria Souza")
	require.True(t, out.Success, out.Message)
	assert.Equal(t, StateEnded, out.State)
	assert.Contains(t, out.Message, "1. 05/03/2026 às 14:30 com Dra. Ana Lima (agendada)")
	assert.Contains(t, out.Message, "2. 06/03/2026 às 08:00")
	assert.Nil(t, f.session(t, sender))
}

func TestMatchSenderPhoneHidesOtherSendersAppointments(t *testing.T) {
	f := newConvFixture(t, func(env *Env) { env.MatchSenderPhone = true })
	owner := "5511987654321@s.whatsapp.net"

	f.scheduleUntilConfirm(t, owner, "Maria Souza", "05/03/2026", "14:30")
	require.True(t, f.send(t, owner, "sim").Success)

	out := f.sendAll(t, "5511999990019", "cancelar", "Maria Souza")
	assert.False(t, out.Success)
	assert.Equal(t, bookings.ReasonAppointmentNotFound, out.Reason)

	out = f.sendAll(t, "web-visitor-1", "consultar", "Maria Souza")
	assert.Equal(t, bookings.ReasonAppointmentNotFound, out.Reason)

	out = f.sendAll(t, owner, "consultar", "Maria Souza")
	require.True(t, out.Success, out.Message)
	assert.Contains(t, out.Message, "05/03/2026 às 14:30")

	out = f.sendAll(t, owner, "cancelar", "Maria Souza")
	assert.Equal(t, StateAwaitingAppointmentChoice, out.State, out.Message)
}

func TestCommittedEventCarriesInboundMessageID(t *testing.T) {
	f := newConvFixture(t)
	ctx := context.Background()
	sender := "5511999990020"

	out := f.scheduleUntilConfirm(t, sender, "Maria Souza", "05/03/2026", "14:30")
	require.Equal(t, StateAwaitingConfirmation, out.State, out.Message)

	out, err := f.router.Route(ctx, InboundMessage{Sender: sender, Body: "sim", MessageID: "SM-confirm-1"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)

	pending, err := f.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SM-confirm-1", pending[0].CorrelationID())
}

func TestSenderMobile(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"5511987654321", "11987654321", true},
		{"whatsapp:+55 11 98765-4321", "11987654321", true},
		{"5511987654321@s.whatsapp.net", "11987654321", true},
		{"1133334444", "1133334444", true},
		{"web-visitor-1", "", false},
		{"123", "", false},
	}
	for _, tc := range tests {
		got, ok := senderMobile(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.want, got, tc.key)
	}
}

func TestBadChoiceRepromptsWithOptions(t *testing.T) {
	f := newConvFixture(t)
	sender := "5511999990018"

	out := f.sendAll(t, sender, "agendar", "Maria Souza", "20/05/1990", "Unimed", "11987654321")
	require.Equal(t, StateAwaitingDoctorChoice, out.State)
	assert.Contains(t, out.Message, "1. Dra. Ana Lima (Clínica Geral)")
	assert.Contains(t, out.Message, "2. Dra. Beatriz Reis (Pediatria)")
	assert.NotContains(t, out.Message, "Carlos Prado")

	out = f.send(t, sender, "7")
	assert.Equal(t, bookings.CategoryValidation, out.Error)
	assert.Equal(t, StateAwaitingDoctorChoice, out.State)
	assert.Contains(t, out.Message, "1. Dra. Ana Lima")
}
