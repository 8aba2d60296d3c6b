package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExec struct {
	args []any
}

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func (s *stubExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.args = args
	return pgconn.CommandTag{}, nil
}

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	ctx := WithCorrelationID(context.Background(), "SM123")
	env, err := NewEnvelope(ctx, "appointment:123", AppointmentBookedV1{
		AppointmentID: "123",
		PatientName:   "Maria Souza",
		DoctorID:      "doc-1",
		Date:          "05/03/2026",
		Time:          "14:30",
		BookedAt:      fixedNow,
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID == uuid.Nil {
		t.Fatal("expected generated event id")
	}
	if env.CorrelationID != "SM123" {
		t.Fatalf("expected correlation id from context, got %q", env.CorrelationID)
	}
	if env.TimestampMicros != fixedNow.UnixMicro() {
		t.Fatalf("unexpected timestamp: %d", env.TimestampMicros)
	}
	if env.EventType != "scheduling.appointment.booked.v1" {
		t.Fatalf("unexpected type: %s", env.EventType)
	}
	if env.Aggregate != "appointment:123" {
		t.Fatalf("unexpected aggregate: %s", env.Aggregate)
	}
	if len(env.Payload) == 0 {
		t.Fatal("expected payload bytes")
	}
}

func TestAppendCanonicalEvent(t *testing.T) {
	exec := &stubExec{}
	ctx := WithCorrelationID(context.Background(), "req-42")
	env, err := AppendCanonicalEvent(ctx, exec, "appointment:123", AppointmentCancelledV1{
		AppointmentID: "123",
		DoctorID:      "doc-1",
		Date:          "05/03/2026",
		Time:          "14:30",
		CancelledAt:   time.Unix(100, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("append canonical failed: %v", err)
	}
	if env.EventID == uuid.Nil {
		t.Fatal("expected generated event id")
	}
	if exec.args == nil || len(exec.args) != 4 {
		t.Fatalf("expected exec args, got %#v", exec.args)
	}
	if exec.args[0] != env.EventID {
		t.Fatalf("id mismatch")
	}
	payloadBytes, ok := exec.args[3].([]byte)
	if !ok {
		t.Fatalf("payload arg type %T", exec.args[3])
	}
	var stored Envelope
	if err := json.Unmarshal(payloadBytes, &stored); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if stored.EventType != env.EventType || stored.Aggregate != env.Aggregate || stored.CorrelationID != "req-42" {
		t.Fatalf("stored envelope mismatch: %#v", stored)
	}
	if string(stored.Payload) == "" {
		t.Fatal("expected nested payload")
	}
}

func TestEnvelopeValidation(t *testing.T) {
	if _, err := newEnvelope("", "", AppointmentBookedV1{}); err == nil {
		t.Fatal("expected aggregate error")
	}
	if _, err := newEnvelope("agg", "", nil); err == nil {
		t.Fatal("expected nil event error")
	}
	if _, err := newEnvelope("agg", "", badEvent{}); err == nil {
		t.Fatal("expected event type error")
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	if got := CorrelationID(ctx); got != "" {
		t.Fatalf("expected empty correlation id, got %q", got)
	}
	if WithCorrelationID(ctx, "  ") != ctx {
		t.Fatal("expected blank id to leave context unchanged")
	}
	ctx = WithCorrelationID(ctx, " req-1 ")
	ctx = WithCorrelationID(ctx, "SM9")
	if got := CorrelationID(ctx); got != "SM9" {
		t.Fatalf("expected innermost id, got %q", got)
	}
	env, err := NewEnvelope(context.Background(), "agg", AppointmentRescheduledV1{AppointmentID: "x"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.CorrelationID != "" {
		t.Fatalf("expected no correlation id, got %q", env.CorrelationID)
	}
}

func TestAppendCanonicalEventRequiresExec(t *testing.T) {
	if _, err := AppendCanonicalEvent(context.Background(), nil, "agg", AppointmentCancelledV1{AppointmentID: "x"}); err == nil {
		t.Fatal("expected exec error")
	}
}
