package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildOutboundMessenger picks the reply transport from config.
func BuildOutboundMessenger(cfg *appconfig.Config, logger *logging.Logger) (conversation.ReplyMessenger, string) {
	if cfg == nil {
		return messaging.NewLogMessenger(logger), "log"
	}
	return messaging.BuildReplyMessenger(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
}

// BuildProcessedEvents returns the webhook dedup store for the active backend.
func BuildProcessedEvents(pool *pgxpool.Pool) events.ProcessedEvents {
	if pool == nil {
		return events.NewMemoryProcessedStore()
	}
	return events.NewProcessedStore(pool)
}
