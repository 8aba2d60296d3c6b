package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/extract"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Scheduler is the booking surface the flows commit through.
type Scheduler interface {
	Book(ctx context.Context, req bookings.BookingRequest) (bookings.CommitResult, error)
	Reschedule(ctx context.Context, appointmentID string, date time.Time, clock string) (bookings.CommitResult, error)
	Cancel(ctx context.Context, appointmentID string) (bookings.Appointment, error)
	FindFutureByPatientName(ctx context.Context, name string) ([]bookings.Appointment, error)
}

// AvailabilityChecker gives fast, non-authoritative slot feedback.
type AvailabilityChecker interface {
	Check(ctx context.Context, doctorID string, date time.Time, clock string) bookings.AdvisoryCheckResult
}

// Env is everything a flow may reach outside the session itself.
type Env struct {
	Directory   directory.Directory
	Scheduler   Scheduler
	Checker     AvailabilityChecker
	Extractor   extract.Extractor
	Now         func() time.Time
	Location    *time.Location
	ClinicPhone string

	// MatchSenderPhone limits query, reschedule and cancel to appointments
	// whose patient mobile is the sender's own number.
	MatchSenderPhone bool
}

// Outcome is the reply to one inbound message.
type Outcome struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Error   bookings.Category `json:"error,omitempty"`
	Reason  bookings.Reason   `json:"reason,omitempty"`
	Intent  Intent            `json:"intent,omitempty"`
	State   State             `json:"state,omitempty"`
}

// Engine advances sessions one state per message.
type Engine struct {
	env    Env
	logger *logging.Logger
}

// NewEngine validates env and fills defaults for the optional parts.
func NewEngine(env Env, logger *logging.Logger) *Engine {
	if env.Directory == nil {
		panic("conversation: directory required")
	}
	if env.Scheduler == nil {
		panic("conversation: scheduler required")
	}
	if env.Extractor == nil {
		env.Extractor = extract.PatternExtractor{}
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Location == nil {
		env.Location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{env: env, logger: logger}
}

// Start opens a session for intent and returns its first prompt.
func (e *Engine) Start(key string, intent Intent) (Session, Outcome) {
	now := e.env.Now()
	s := Session{
		Key:            key,
		Intent:         intent,
		State:          StateAwaitingName,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	return s, Outcome{Success: true, Message: startPrompt(intent), Intent: intent, State: s.State}
}

// Step feeds one message to the session's flow. The returned session is a
// copy; when its state is terminal the caller must discard it.
func (e *Engine) Step(ctx context.Context, current Session, text string) (Session, Outcome) {
	s := current.Clone()
	s.LastActivityAt = e.env.Now()

	var out Outcome
	switch s.Intent {
	case IntentSchedule:
		out = e.stepSchedule(ctx, &s, text)
	case IntentReschedule:
		out = e.stepReschedule(ctx, &s, text)
	case IntentCancel:
		out = e.stepCancel(ctx, &s, text)
	case IntentQuery:
		out = e.stepQuery(ctx, &s, text)
	default:
		s.State = StateEnded
		out = Outcome{Success: true, Message: msgMenu}
	}
	out.Intent = s.Intent
	out.State = s.State
	return s, out
}

func (e *Engine) today() time.Time {
	return extract.DateOf(e.env.Now().In(e.env.Location))
}

// futureDate parses a date that must fall strictly after today.
func (e *Engine) futureDate(text string) (time.Time, error) {
	d, err := e.env.Extractor.Date(text)
	if err != nil {
		return time.Time{}, err
	}
	if !d.After(e.today()) {
		return time.Time{}, &extract.ParseError{Field: extract.FieldDate, Input: text, Hint: msgDateNotFuture}
	}
	return d, nil
}

func (e *Engine) advisory(ctx context.Context, doctorID string, date time.Time, clock string) bookings.AdvisoryCheckResult {
	if e.env.Checker == nil {
		return bookings.AdvisoryCheckResult{Available: true}
	}
	return e.env.Checker.Check(ctx, doctorID, date, clock)
}

func (e *Engine) doctorName(ctx context.Context, doctorID string) string {
	doc, err := e.env.Directory.GetDoctor(ctx, doctorID)
	if err != nil {
		if !errors.Is(err, directory.ErrDoctorNotFound) {
			e.logger.Warn("doctor lookup failed", "doctor_id", doctorID, "error", err)
		}
		return doctorID
	}
	return doc.Name
}

func progress(msg string) Outcome {
	return Outcome{Success: true, Message: msg}
}

func reprompt(err error, question string) Outcome {
	return Outcome{
		Success: false,
		Message: retryPrompt(err, question),
		Error:   bookings.CategoryValidation,
	}
}

func ended(s *Session, category bookings.Category, reason bookings.Reason, msg string) Outcome {
	s.State = StateEnded
	return Outcome{Success: false, Message: msg, Error: category, Reason: reason}
}

// internal abandons the session and logs the failure with full context.
func (e *Engine) internal(s *Session, action string, err error) Outcome {
	e.logger.Error("conversation step failed",
		"action", action,
		"sender", s.Key,
		"intent", s.Intent,
		"state", s.State,
		"error", err,
	)
	s.State = StateEnded
	return Outcome{
		Success: false,
		Message: internalErrorMessage(e.env.ClinicPhone),
		Error:   bookings.CategoryInternal,
	}
}

// confirm handles the yes/no answer shared by every flow's last step.
func (e *Engine) confirm(ctx context.Context, s *Session, text string, commit func(context.Context, *Session) Outcome) Outcome {
	switch {
	case isConfirm(text):
		return commit(ctx, s)
	case isDecline(text):
		s.State = StateAborted
		return progress(msgAborted)
	default:
		return Outcome{Success: false, Message: "Não entendi. " + msgAskConfirm, Error: bookings.CategoryValidation}
	}
}

func rejection(be *bookings.Error, msg string) Outcome {
	return Outcome{Success: false, Message: msg, Error: be.Category, Reason: be.Reason}
}
