package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/directory"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Scheduling groups the directory, booking core and outbox behind one backend.
type Scheduling struct {
	Directory directory.Directory
	Service   *bookings.Service
	Checker   *bookings.Checker
	Outbox    events.Outbox
	Backend   string
}

// BuildScheduling wires the booking core to Postgres when pool is set and to
// in-process stores otherwise.
func BuildScheduling(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, observer bookings.CommitObserver, now func() time.Time, logger *logging.Logger) (*Scheduling, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if now == nil {
		now = time.Now
	}

	var (
		dir     directory.Directory
		repo    bookings.Repository
		outbox  events.Outbox
		backend string
	)
	if pool != nil {
		dir = directory.NewPostgresDirectory(pool)
		repo = bookings.NewPostgresRepository(pool)
		outbox = events.NewOutboxStore(pool)
		backend = "postgres"
	} else {
		memDir, err := buildMemoryDirectory(cfg.DirectorySeedFile)
		if err != nil {
			return nil, err
		}
		memOutbox := events.NewMemoryOutbox()
		dir = memDir
		repo = bookings.NewMemoryRepository(memDir, memOutbox)
		outbox = memOutbox
		backend = "memory"
	}

	opts := []bookings.Option{
		bookings.WithClock(now),
		bookings.WithLocation(cfg.Location()),
		bookings.WithMinLeadTime(cfg.MinLeadTime),
	}
	if observer != nil {
		opts = append(opts, bookings.WithObserver(observer))
	}

	logger.Info("scheduling backend ready", "backend", backend, "timezone", cfg.Location().String())
	return &Scheduling{
		Directory: dir,
		Service:   bookings.NewService(repo, dir, logger, opts...),
		Checker:   bookings.NewChecker(dir, repo, logger),
		Outbox:    outbox,
		Backend:   backend,
	}, nil
}

func buildMemoryDirectory(seedFile string) (*directory.MemoryDirectory, error) {
	if strings.TrimSpace(seedFile) == "" {
		return directory.NewMemoryDirectory(directory.Seed{}), nil
	}
	dir, err := directory.LoadSeedFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return dir, nil
}
