package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/extract"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Checker answers "is this slot free?" ahead of the commit. Its answer is
// advisory; Service re-checks everything under the slot lock.
type Checker struct {
	dir    directory.Directory
	repo   Repository
	logger *logging.Logger
}

// NewChecker constructs an availability checker.
func NewChecker(dir directory.Directory, repo Repository, logger *logging.Logger) *Checker {
	if dir == nil {
		panic("bookings: directory required")
	}
	if repo == nil {
		panic("bookings: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{dir: dir, repo: repo, logger: logger}
}

// Check evaluates blockouts and then existing bookings. Lookup failures are
// logged and reported as available so the commit makes the final call.
func (c *Checker) Check(ctx context.Context, doctorID string, date time.Time, clock string) AdvisoryCheckResult {
	blockouts, err := c.dir.ListActiveBlockouts(ctx, doctorID)
	if err != nil {
		c.logger.Warn("advisory blockout lookup failed", "doctor_id", doctorID, "error", err)
		return AdvisoryCheckResult{Available: true}
	}
	if b, ok := directory.FindCoveringBlockout(blockouts, date); ok {
		return AdvisoryCheckResult{
			Category: CategoryConflict,
			Reason:   ReasonBlocked,
			Message:  blockedMessage(b),
		}
	}

	slot := Slot{DoctorID: doctorID, Date: extract.DateOf(date), Time: clock}
	existing, err := c.repo.FindConflict(ctx, slot)
	if err != nil {
		c.logger.Warn("advisory slot lookup failed", "slot", slot.Key(), "error", err)
		return AdvisoryCheckResult{Available: true}
	}
	if existing != nil {
		return AdvisoryCheckResult{
			Category: CategoryConflict,
			Reason:   ReasonSlotTaken,
			Message:  slotTakenMessage(slot),
		}
	}
	return AdvisoryCheckResult{Available: true}
}

func blockedMessage(b *directory.Blockout) string {
	if b.Reason == "" {
		return fmt.Sprintf("a agenda do médico está bloqueada de %s a %s", extract.FormatDate(b.StartDate), extract.FormatDate(b.EndDate))
	}
	return fmt.Sprintf("a agenda do médico está bloqueada de %s a %s (%s)", extract.FormatDate(b.StartDate), extract.FormatDate(b.EndDate), b.Reason)
}

func slotTakenMessage(slot Slot) string {
	return fmt.Sprintf("o horário %s de %s já está ocupado", slot.Time, extract.FormatDate(slot.Date))
}
