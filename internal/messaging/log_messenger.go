package messaging

import (
	"context"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// LogMessenger writes replies to the log instead of a provider. Used in
// development and whenever no provider credentials are configured.
type LogMessenger struct {
	logger *logging.Logger
}

func NewLogMessenger(logger *logging.Logger) *LogMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMessenger{logger: logger}
}

func (m *LogMessenger) SendReply(ctx context.Context, reply conversation.OutboundReply) error {
	m.logger.Info("outbound reply", "to", reply.To, "body", reply.Body)
	return nil
}

// BuildReplyMessenger picks Twilio when credentials exist and falls back to
// the log messenger otherwise. The second value names the provider.
func BuildReplyMessenger(accountSID, authToken, from string, logger *logging.Logger) (conversation.ReplyMessenger, string) {
	if accountSID != "" && authToken != "" {
		return NewTwilioSender(accountSID, authToken, from, logger), "twilio"
	}
	return NewLogMessenger(logger), "log"
}

var _ conversation.ReplyMessenger = (*LogMessenger)(nil)
