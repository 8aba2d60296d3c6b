package conversation

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var brt = time.FixedZone("BRT", -3*60*60)

func intPtr(v int) *int { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type convFixture struct {
	router  *Router
	engine  *Engine
	store   *MemorySessionStore
	svc     *bookings.Service
	dir     *directory.MemoryDirectory
	outbox  *events.MemoryOutbox
	now     time.Time
	observe *recordingObserver
	lines   *recordingTranscript
}

func newConvFixture(t *testing.T, tweaks ...func(*Env)) *convFixture {
	t.Helper()
	dir := directory.NewMemoryDirectory(directory.Seed{
		Doctors: []directory.Doctor{
			{ID: "d-ana", Name: "Dra. Ana Lima", Specialty: "Clínica Geral", Active: true, MinAge: intPtr(18), AcceptedInsurancePlans: []string{"Unimed", "Particular"}},
			{ID: "d-bia", Name: "Dra. Beatriz Reis", Specialty: "Pediatria", Active: true, MaxAge: intPtr(17)},
			{ID: "d-off", Name: "Dr. Carlos Prado", Specialty: "Ortopedia", Active: false},
		},
		Services: []directory.Service{{ID: "s-consulta", Name: "Consulta"}},
		Blockouts: []directory.Blockout{
			{ID: "b1", DoctorID: "d-ana", StartDate: day(2026, 3, 10), EndDate: day(2026, 3, 12), Reason: "congresso", Status: directory.BlockoutActive},
		},
	})
	outbox := events.NewMemoryOutbox()
	repo := bookings.NewMemoryRepository(dir, outbox)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, brt)
	clock := func() time.Time { return now }
	logger := logging.NewWithWriter(io.Discard, "error")

	svc := bookings.NewService(repo, dir, logger,
		bookings.WithClock(clock),
		bookings.WithLocation(brt),
		bookings.WithMinLeadTime(time.Hour),
	)
	env := Env{
		Directory:   dir,
		Scheduler:   svc,
		Checker:     bookings.NewChecker(dir, repo, logger),
		Now:         clock,
		Location:    brt,
		ClinicPhone: "(11) 3333-4444",
	}
	for _, tweak := range tweaks {
		tweak(&env)
	}
	engine := NewEngine(env, logger)
	store := NewMemorySessionStore(DefaultSessionTTL, clock)
	observer := &recordingObserver{}
	lines := &recordingTranscript{}
	router := NewRouter(store, NewMemoryLocker(), engine, logger, WithObserver(observer), WithTranscript(lines))

	return &convFixture{
		router:  router,
		engine:  engine,
		store:   store,
		svc:     svc,
		dir:     dir,
		outbox:  outbox,
		now:     now,
		observe: observer,
		lines:   lines,
	}
}

func (f *convFixture) send(t *testing.T, sender, text string) Outcome {
	t.Helper()
	out, err := f.router.Route(context.Background(), InboundMessage{Sender: sender, Body: text})
	require.NoError(t, err)
	return out
}

func (f *convFixture) sendAll(t *testing.T, sender string, texts ...string) Outcome {
	t.Helper()
	var out Outcome
	for _, text := range texts {
		out = f.send(t, sender, text)
	}
	return out
}

func (f *convFixture) session(t *testing.T, sender string) *Session {
	t.Helper()
	s, err := f.store.Get(context.Background(), sender)
	require.NoError(t, err)
	return s
}

// scheduleUntilConfirm drives a schedule flow for an adult Unimed patient up to
// the confirmation prompt.
func (f *convFixture) scheduleUntilConfirm(t *testing.T, sender, name, date, clock string) Outcome {
	t.Helper()
	return f.sendAll(t, sender, "agendar", name, "20/05/1990", "Unimed", "(11) 98765-4321", "1", "1", date, clock)
}

type recordingObserver struct {
	mu       sync.Mutex
	inbound  []string
	sessions []string
}

func (o *recordingObserver) ObserveInbound(intent, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inbound = append(o.inbound, intent+"/"+state)
}

func (o *recordingObserver) ObserveSession(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = append(o.sessions, event)
}

type recordingTranscript struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

func (r *recordingTranscript) Append(ctx context.Context, entry TranscriptEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}
