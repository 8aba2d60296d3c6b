package conversation

import "testing"

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"agendar", IntentSchedule},
		{"Quero MARCAR uma consulta", IntentSchedule},
		{"nova consulta, por favor", IntentSchedule},
		{"preciso remarcar", IntentReschedule},
		{"Reagendar minha consulta", IntentReschedule},
		{"quero mudar o horário", IntentReschedule},
		{"cancelar", IntentCancel},
		{"pode desmarcar?", IntentCancel},
		{"consultar", IntentQuery},
		{"quais são minhas consultas", IntentQuery},
		{"Olá", IntentHelp},
		{"menu", IntentHelp},
		{"bom dia", IntentUnknown},
		{"", IntentUnknown},
		{"sim", IntentUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyIntent(tt.text); got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestConfirmationWords(t *testing.T) {
	for _, text := range []string{"sim", "Sim!", "S", "confirmo", "CONFIRMAR"} {
		if !isConfirm(text) {
			t.Errorf("isConfirm(%q) = false", text)
		}
	}
	for _, text := range []string{"não", "N", "cancelar", "sair"} {
		if !isDecline(text) {
			t.Errorf("isDecline(%q) = false", text)
		}
	}
	for _, text := range []string{"sim por favor", "talvez"} {
		if isConfirm(text) || isDecline(text) {
			t.Errorf("%q should be neither confirm nor decline", text)
		}
	}
	if !isAbort("Encerrar") || isAbort("cancelar") {
		t.Error("abort words mismatch")
	}
}
