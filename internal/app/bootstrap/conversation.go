package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const sessionSweepInterval = time.Minute

// ConversationDeps are the optional collaborators of the conversation router.
type ConversationDeps struct {
	Redis      *redis.Client
	Observer   conversation.Observer
	Transcript conversation.TranscriptRecorder
	OnSweep    func(removed int)
	Now        func() time.Time
}

// Conversation is the wired router plus the background work it needs.
type Conversation struct {
	Router *conversation.Router
	Engine *conversation.Engine
	// Sweeper evicts idle in-memory sessions. It is nil when sessions live in
	// Redis, where the key TTL does the same job.
	Sweeper func(ctx context.Context)
}

// BuildConversation wires the engine, session store and per-sender lock.
func BuildConversation(cfg *appconfig.Config, sched *Scheduling, deps ConversationDeps, logger *logging.Logger) (*Conversation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("bootstrap: scheduling is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	engine := conversation.NewEngine(conversation.Env{
		Directory:        sched.Directory,
		Scheduler:        sched.Service,
		Checker:          sched.Checker,
		Now:              now,
		Location:         cfg.Location(),
		ClinicPhone:      cfg.ClinicPhone,
		MatchSenderPhone: cfg.MatchSenderPhone,
	}, logger)

	var (
		store   conversation.SessionStore
		locker  conversation.SenderLocker
		sweeper func(ctx context.Context)
	)
	if deps.Redis != nil {
		store = conversation.NewRedisSessionStore(deps.Redis, cfg.SessionTTL, nil)
		locker = conversation.NewRedisLocker(deps.Redis, 0, 0)
		logger.Info("conversation sessions in redis", "ttl", cfg.SessionTTL.String())
	} else {
		memStore := conversation.NewMemorySessionStore(cfg.SessionTTL, now)
		store = memStore
		locker = conversation.NewMemoryLocker()
		sweeper = func(ctx context.Context) {
			memStore.RunSweeper(ctx, sessionSweepInterval, deps.OnSweep)
		}
		logger.Info("conversation sessions in memory", "ttl", cfg.SessionTTL.String())
	}

	var opts []conversation.RouterOption
	if deps.Observer != nil {
		opts = append(opts, conversation.WithObserver(deps.Observer))
	}
	if deps.Transcript != nil {
		opts = append(opts, conversation.WithTranscript(deps.Transcript))
	}

	return &Conversation{
		Router:  conversation.NewRouter(store, locker, engine, logger, opts...),
		Engine:  engine,
		Sweeper: sweeper,
	}, nil
}
