package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var webhookTracer = otel.Tracer("clinic.internal.messaging.webhook")

const (
	providerWebhook = "webhook"
	providerTwilio  = "twilio"

	emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// Handler turns channel webhooks into routed conversation turns and sends the
// replies back.
type Handler struct {
	webhookSecret string
	router        conversation.MessageRouter
	messenger     conversation.ReplyMessenger
	processed     events.ProcessedEvents
	logger        *logging.Logger
	sendTimeout   time.Duration
}

// NewHandler creates a messaging handler. processed may be nil to disable
// redelivery detection.
func NewHandler(webhookSecret string, router conversation.MessageRouter, messenger conversation.ReplyMessenger, processed events.ProcessedEvents, logger *logging.Logger) *Handler {
	if router == nil {
		panic("messaging: router cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if messenger == nil {
		messenger = NewLogMessenger(logger)
	}
	return &Handler{
		webhookSecret: webhookSecret,
		router:        router,
		messenger:     messenger,
		processed:     processed,
		logger:        logger,
		sendTimeout:   5 * time.Second,
	}
}

// InboundPayload is the body of POST /webhooks/messages.
type InboundPayload struct {
	Sender      string    `json:"sender"`
	Body        string    `json:"body"`
	DisplayName string    `json:"display_name,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
}

// WebhookResponse is returned by the JSON webhook.
type WebhookResponse struct {
	Status  string                `json:"status"`
	Outcome *conversation.Outcome `json:"outcome,omitempty"`
}

// InboundWebhook handles POST /webhooks/messages.
func (h *Handler) InboundWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.webhook.inbound")
	defer span.End()

	var payload InboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error("failed to decode inbound webhook", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if strings.TrimSpace(payload.Sender) == "" {
		http.Error(w, "sender is required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("clinic.message_id", payload.MessageID))

	if IgnoredSender(payload.Sender) {
		h.logger.Debug("ignoring group or broadcast message", "sender", payload.Sender)
		h.writeJSON(w, http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	}
	if !h.claim(ctx, span, providerWebhook, payload.MessageID) {
		h.writeJSON(w, http.StatusOK, WebhookResponse{Status: "duplicate"})
		return
	}

	out, err := h.dispatch(ctx, span, conversation.InboundMessage{
		Sender:      SenderKey(payload.Sender),
		Body:        payload.Body,
		DisplayName: payload.DisplayName,
		Timestamp:   payload.Timestamp,
		MessageID:   payload.MessageID,
	}, conversation.OutboundReply{To: payload.Sender})
	if err != nil {
		h.release(ctx, providerWebhook, payload.MessageID)
		h.writeJSON(w, http.StatusOK, WebhookResponse{Status: "failed", Outcome: &out})
		return
	}

	h.writeJSON(w, http.StatusOK, WebhookResponse{Status: "processed", Outcome: &out})
}

// TwilioWebhook handles POST /messaging/twilio/webhook.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid twilio signature"))
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("clinic.twilio.message_sid", webhook.MessageSid),
		attribute.String("clinic.twilio.from", webhook.From),
	)
	if webhook.MessageSid == "" || strings.TrimSpace(webhook.From) == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Error("invalid twilio payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	if strings.TrimSpace(webhook.Body) != "" && h.claim(ctx, span, providerTwilio, webhook.MessageSid) {
		_, err := h.dispatch(ctx, span, conversation.InboundMessage{
			Sender:      SenderKey(webhook.From),
			Body:        webhook.Body,
			DisplayName: webhook.ProfileName,
			Timestamp:   time.Now().UTC(),
			MessageID:   webhook.MessageSid,
		}, conversation.OutboundReply{
			To:   webhook.From,
			From: webhook.To,
			Metadata: map[string]string{
				"twilio_message_sid": webhook.MessageSid,
			},
		})
		if err != nil {
			h.release(ctx, providerTwilio, webhook.MessageSid)
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// claim marks a provider message id as processed and reports whether this
// delivery is the first one.
func (h *Handler) claim(ctx context.Context, span trace.Span, provider, messageID string) bool {
	if h.processed == nil || messageID == "" {
		return true
	}
	first, err := h.processed.MarkProcessed(ctx, provider, messageID)
	if err != nil {
		h.logger.Warn("failed to record processed message, handling anyway", "provider", provider, "message_id", messageID, "error", err)
		span.RecordError(err)
		return true
	}
	if !first {
		h.logger.Info("duplicate delivery ignored", "provider", provider, "message_id", messageID)
	}
	return first
}

// release drops the claim on a message whose routing failed, so the provider's
// redelivery is handled instead of dropped as a duplicate.
func (h *Handler) release(ctx context.Context, provider, messageID string) {
	if h.processed == nil || messageID == "" {
		return
	}
	if err := h.processed.Release(context.WithoutCancel(ctx), provider, messageID); err != nil {
		h.logger.Warn("failed to release processed message", "provider", provider, "message_id", messageID, "error", err)
	}
}

// dispatch routes the message and sends the reply. Routing errors already
// carry an apology outcome, which is sent like any other reply; the routing
// error is returned alongside it.
func (h *Handler) dispatch(ctx context.Context, span trace.Span, msg conversation.InboundMessage, reply conversation.OutboundReply) (conversation.Outcome, error) {
	out, err := h.router.Route(ctx, msg)
	if err != nil {
		h.logger.Error("failed to route message", "sender", msg.Sender, "message_id", msg.MessageID, "error", err)
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.String("clinic.intent", string(out.Intent)),
		attribute.String("clinic.state", string(out.State)),
	)
	if out.Message == "" {
		return out, err
	}

	reply.Body = out.Message
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.sendTimeout)
	defer cancel()
	if sendErr := h.messenger.SendReply(sendCtx, reply); sendErr != nil {
		h.logger.Error("failed to deliver reply", "to", reply.To, "state", out.State, "error", sendErr)
		span.RecordError(sendErr)
	}
	return out, err
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
