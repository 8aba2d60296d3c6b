package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/events"
)

// MemoryRepository keeps appointments in process. Each slot has its own lock,
// released from the table once nobody holds or waits on it, and a
// transaction's writes are staged until its callback succeeds.
type MemoryRepository struct {
	dir    directory.Directory
	outbox *events.MemoryOutbox

	lockMu    sync.Mutex
	slotLocks map[string]*slotLock

	mu           sync.RWMutex
	patients     map[string]Patient
	appointments map[string]Appointment
}

// NewMemoryRepository builds an empty repository. dir supplies blockouts;
// outbox may be nil when events are not needed.
func NewMemoryRepository(dir directory.Directory, outbox *events.MemoryOutbox) *MemoryRepository {
	if dir == nil {
		panic("bookings: directory required")
	}
	return &MemoryRepository{
		dir:          dir,
		outbox:       outbox,
		slotLocks:    make(map[string]*slotLock),
		patients:     make(map[string]Patient),
		appointments: make(map[string]Appointment),
	}
}

type slotLock struct {
	ch   chan struct{}
	refs int
}

func (r *MemoryRepository) lockSlot(ctx context.Context, key string) (func(), error) {
	r.lockMu.Lock()
	lock, ok := r.slotLocks[key]
	if !ok {
		lock = &slotLock{ch: make(chan struct{}, 1)}
		r.slotLocks[key] = lock
	}
	lock.refs++
	r.lockMu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		r.releaseSlot(key, lock)
		return nil, ctx.Err()
	}
	return func() {
		<-lock.ch
		r.releaseSlot(key, lock)
	}, nil
}

func (r *MemoryRepository) releaseSlot(key string, lock *slotLock) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.slotLocks, key)
	}
}

func (r *MemoryRepository) heldSlotLocks() int {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	return len(r.slotLocks)
}

func (r *MemoryRepository) WithinSlot(ctx context.Context, slot Slot, fn func(ctx context.Context, tx Tx) error) error {
	unlock, err := r.lockSlot(ctx, slot.Key())
	if err != nil {
		return fmt.Errorf("bookings: lock slot: %w", err)
	}
	defer unlock()

	tx := &memTx{
		repo:         r,
		patients:     make(map[string]Patient),
		appointments: make(map[string]Appointment),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.apply(tx)
}

func (r *MemoryRepository) apply(tx *memTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, staged := range tx.appointments {
		if !staged.Status.Active() {
			continue
		}
		for otherID, existing := range r.appointments {
			if otherID != id && existing.Status.Active() && existing.Slot().Key() == staged.Slot().Key() {
				return ErrSlotTaken
			}
		}
	}
	for id, p := range tx.patients {
		r.patients[id] = p
	}
	for id, a := range tx.appointments {
		r.appointments[id] = a
	}
	if r.outbox != nil {
		for _, env := range tx.events {
			if err := r.outbox.Append(env); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[appointmentID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	p := r.patients[a.PatientID]
	a.PatientName, a.PatientMobile = p.FullName, p.MobilePhone
	return &a, nil
}

func (r *MemoryRepository) FindConflict(ctx context.Context, slot Slot) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findConflictLocked(slot, "", nil), nil
}

func (r *MemoryRepository) findConflictLocked(slot Slot, excludeID string, staged map[string]Appointment) *Appointment {
	key := slot.Key()
	for id, a := range staged {
		if id != excludeID && a.Status.Active() && a.Slot().Key() == key {
			return &a
		}
	}
	for id, a := range r.appointments {
		if _, overridden := staged[id]; overridden {
			continue
		}
		if id != excludeID && a.Status.Active() && a.Slot().Key() == key {
			p := r.patients[a.PatientID]
			a.PatientName, a.PatientMobile = p.FullName, p.MobilePhone
			return &a
		}
	}
	return nil
}

func (r *MemoryRepository) FindFutureByPatientName(ctx context.Context, nameKey string, fromDate time.Time, fromTime string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if !a.Status.Active() {
			continue
		}
		p := r.patients[a.PatientID]
		if NameKey(p.FullName) != nameKey {
			continue
		}
		if a.Date.Before(fromDate) || (a.Date.Equal(fromDate) && a.Time < fromTime) {
			continue
		}
		a.PatientName, a.PatientMobile = p.FullName, p.MobilePhone
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func sortAppointments(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.Before(list[j].Date)
		}
		return list[i].Time < list[j].Time
	})
}

type memTx struct {
	repo         *MemoryRepository
	patients     map[string]Patient
	appointments map[string]Appointment
	events       []events.Envelope
}

func (t *memTx) ActiveBlockouts(ctx context.Context, doctorID string) ([]directory.Blockout, error) {
	return t.repo.dir.ListActiveBlockouts(ctx, doctorID)
}

func (t *memTx) FindConflict(ctx context.Context, slot Slot, excludeID string) (*Appointment, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.findConflictLocked(slot, excludeID, t.appointments), nil
}

func (t *memTx) GetForUpdate(ctx context.Context, appointmentID string) (*Appointment, error) {
	if a, ok := t.appointments[appointmentID]; ok {
		return &a, nil
	}
	return t.repo.Get(ctx, appointmentID)
}

func (t *memTx) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	if p, ok := t.patients[patientID]; ok {
		return &p, nil
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	p, ok := t.repo.patients[patientID]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (t *memTx) InsertPatient(ctx context.Context, p *Patient) error {
	t.patients[p.ID] = *p
	return nil
}

func (t *memTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	t.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpdateSchedule(ctx context.Context, appointmentID string, slot Slot) error {
	a, err := t.GetForUpdate(ctx, appointmentID)
	if err != nil {
		return err
	}
	a.Date = slot.Date
	a.Time = slot.Time
	t.appointments[appointmentID] = *a
	return nil
}

func (t *memTx) UpdateStatus(ctx context.Context, appointmentID string, status Status) error {
	a, err := t.GetForUpdate(ctx, appointmentID)
	if err != nil {
		return err
	}
	a.Status = status
	t.appointments[appointmentID] = *a
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, aggregate string, evt events.CanonicalEvent) error {
	env, err := events.NewEnvelope(ctx, aggregate, evt)
	if err != nil {
		return err
	}
	t.events = append(t.events, env)
	return nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
