package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// ErrSenderRequired is returned when a message has no sender identity.
var ErrSenderRequired = errors.New("conversation: sender required")

// InboundMessage is one free-text message from a patient.
type InboundMessage struct {
	Sender      string    `json:"sender"`
	Body        string    `json:"body"`
	DisplayName string    `json:"display_name,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
}

// Observer receives routing telemetry.
type Observer interface {
	ObserveInbound(intent, state string)
	ObserveSession(event string)
}

// TranscriptRecorder keeps a copy of every message exchanged.
type TranscriptRecorder interface {
	Append(ctx context.Context, entry TranscriptEntry) error
}

// Router hands a message to the sender's running flow, or classifies it and
// starts a new one.
type Router struct {
	store      SessionStore
	locker     SenderLocker
	engine     *Engine
	logger     *logging.Logger
	observer   Observer
	transcript TranscriptRecorder
	clinicTel  string
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

func WithTranscript(t TranscriptRecorder) RouterOption {
	return func(r *Router) { r.transcript = t }
}

// NewRouter wires the session store, the per-sender locker and the engine.
func NewRouter(store SessionStore, locker SenderLocker, engine *Engine, logger *logging.Logger, opts ...RouterOption) *Router {
	if store == nil {
		panic("conversation: session store required")
	}
	if engine == nil {
		panic("conversation: engine required")
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		store:     store,
		locker:    locker,
		engine:    engine,
		logger:    logger,
		clinicTel: engine.env.ClinicPhone,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Route processes one inbound message. Messages from the same sender are
// handled one at a time. A non-nil error is always accompanied by an apology
// Outcome that is safe to send.
func (r *Router) Route(ctx context.Context, msg InboundMessage) (Outcome, error) {
	key := strings.TrimSpace(msg.Sender)
	if key == "" {
		return Outcome{Success: false, Message: "remetente obrigatório", Error: bookings.CategoryValidation}, ErrSenderRequired
	}
	ctx = events.WithCorrelationID(ctx, msg.MessageID)

	unlock, err := r.locker.Lock(ctx, key)
	if err != nil {
		r.logger.Error("failed to lock sender", "sender", key, "error", err)
		return r.apology(), err
	}
	defer unlock()

	r.record(ctx, key, DirectionInbound, msg.Body)
	out, err := r.route(ctx, key, msg.Body)
	r.record(ctx, key, DirectionOutbound, out.Message)
	return out, err
}

func (r *Router) route(ctx context.Context, key, body string) (Outcome, error) {
	current, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Error("failed to load session", "sender", key, "error", err)
		return r.apology(), err
	}

	if current != nil {
		r.observeInbound(current.Intent, current.State)
		if isAbort(body) {
			if err := r.store.Delete(ctx, key); err != nil {
				r.logger.Error("failed to delete session", "sender", key, "error", err)
				return r.apology(), err
			}
			r.observeSession(string(StateAborted))
			return Outcome{Success: true, Message: msgAborted, Intent: current.Intent, State: StateAborted}, nil
		}

		next, out := r.engine.Step(ctx, *current, body)
		if next.State.Terminal() {
			if err := r.store.Delete(ctx, key); err != nil {
				// The step already happened; a leftover session can at worst
				// replay into a conflict, never a second booking.
				r.logger.Error("failed to delete finished session", "sender", key, "state", next.State, "error", err)
			}
			r.observeSession(string(next.State))
			return out, nil
		}
		if err := r.store.Save(ctx, &next); err != nil {
			r.logger.Error("failed to save session", "sender", key, "state", next.State, "error", err)
			return r.apology(), err
		}
		return out, nil
	}

	intent := ClassifyIntent(body)
	r.observeInbound(intent, "")
	if !intent.startsFlow() {
		msg := msgMenu
		if intent == IntentUnknown {
			msg = msgUnknown
		}
		return Outcome{Success: true, Message: msg, Intent: intent}, nil
	}

	session, out := r.engine.Start(key, intent)
	if err := r.store.Save(ctx, &session); err != nil {
		r.logger.Error("failed to save session", "sender", key, "intent", intent, "error", err)
		return r.apology(), err
	}
	r.observeSession("started")
	return out, nil
}

func (r *Router) apology() Outcome {
	return Outcome{Success: false, Message: internalErrorMessage(r.clinicTel), Error: bookings.CategoryInternal}
}

func (r *Router) record(ctx context.Context, key string, dir Direction, body string) {
	if r.transcript == nil || body == "" {
		return
	}
	if err := r.transcript.Append(ctx, TranscriptEntry{Sender: key, Direction: dir, Body: body}); err != nil {
		r.logger.Warn("failed to append transcript", "sender", key, "error", err)
	}
}

func (r *Router) observeInbound(intent Intent, state State) {
	if r.observer != nil {
		r.observer.ObserveInbound(string(intent), string(state))
	}
}

func (r *Router) observeSession(event string) {
	if r.observer != nil {
		r.observer.ObserveSession(event)
	}
}
