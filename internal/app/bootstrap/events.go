package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildEventPublisher sends booking events to SQS when a queue is configured
// and to the log otherwise.
func BuildEventPublisher(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (events.DeliveryHandler, string) {
	if cfg == nil || awsCfg == nil || strings.TrimSpace(cfg.BookingEventsQueueURL) == "" {
		return events.NewLogPublisher(logger), "log"
	}
	return events.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), cfg.BookingEventsQueueURL), "sqs"
}

// BuildDispatcher drains outbox into publisher on the configured interval.
func BuildDispatcher(cfg *appconfig.Config, outbox events.Outbox, publisher events.DeliveryHandler, logger *logging.Logger) *events.Dispatcher {
	d := events.NewDispatcher(outbox, publisher, logger)
	if cfg != nil {
		d = d.WithInterval(cfg.OutboxPollInterval)
	}
	return d
}
