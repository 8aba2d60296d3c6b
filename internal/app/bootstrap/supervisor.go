package bootstrap

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Supervisor runs the long-lived background loops of the API process (outbox
// dispatch, session sweeping, limiter eviction) and waits for them on shutdown.
type Supervisor struct {
	logger *logging.Logger
	wg     sync.WaitGroup

	mu      sync.Mutex
	running []string
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Supervisor{logger: logger}
}

// Go starts fn in its own goroutine. A panic inside fn is logged and stops
// only that loop.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.running = append(s.running, name)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked",
					"task", name,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		s.logger.Debug("background task started", "task", name)
		fn(ctx)
		s.logger.Debug("background task stopped", "task", name)
	}()
}

// Tasks lists the names passed to Go, in start order.
func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.running...)
}

// Wait blocks until every task returned or ctx expires.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bootstrap: waiting for background tasks: %w", ctx.Err())
	}
}
