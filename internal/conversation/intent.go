package conversation

import (
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/extract"
)

type keywordGroup struct {
	intent   Intent
	keywords []string
}

// Priority order: the first group with a match wins.
var intentGroups = []keywordGroup{
	{IntentSchedule, []string{"agendar", "marcar", "agendamento", "nova consulta"}},
	{IntentQuery, []string{"consultar", "minhas consultas", "meus agendamentos", "status", "verificar"}},
	{IntentReschedule, []string{"reagendar", "remarcar", "alterar", "mudar", "trocar"}},
	{IntentCancel, []string{"cancelar", "desmarcar"}},
	{IntentHelp, []string{"ajuda", "help", "menu", "oi", "ola", "inicio"}},
}

var (
	abortWords   = []string{"sair", "abortar", "encerrar"}
	confirmWords = []string{"sim", "s", "confirmar", "confirmo"}
	declineWords = []string{"nao", "n", "abortar", "cancelar", "sair"}
)

// ClassifyIntent maps free text to an intent by whole-word keyword matching
// over the normalized text.
func ClassifyIntent(text string) Intent {
	padded := " " + extract.Normalize(text) + " "
	for _, group := range intentGroups {
		for _, kw := range group.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return group.intent
			}
		}
	}
	return IntentUnknown
}

// startsFlow reports whether the intent opens a session.
func (i Intent) startsFlow() bool {
	switch i {
	case IntentSchedule, IntentReschedule, IntentCancel, IntentQuery:
		return true
	}
	return false
}

func isAbort(text string) bool {
	return matchesExactly(text, abortWords)
}

func isConfirm(text string) bool {
	return matchesExactly(text, confirmWords)
}

func isDecline(text string) bool {
	return matchesExactly(text, declineWords)
}

func matchesExactly(text string, words []string) bool {
	normalized := extract.Normalize(text)
	for _, w := range words {
		if normalized == w {
			return true
		}
	}
	return false
}
