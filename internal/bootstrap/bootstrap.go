// Package bootstrap wires a process's dependencies into a single
// Components value, grounded on the teacher's common/bootstrap
// package: ordered init with LIFO cleanup on shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lyzr/flowengine/internal/config"
	"github.com/lyzr/flowengine/internal/eventbus"
	"github.com/lyzr/flowengine/internal/llm"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/lyzr/flowengine/internal/queue"
	"github.com/lyzr/flowengine/internal/store"
	"github.com/redis/go-redis/v9"
)

// Components holds every initialized dependency a process needs.
type Components struct {
	Config *config.Config
	Logger *logger.Logger

	DB    *store.DB
	Redis *redis.Client

	Runs      store.RunStore
	Ledger    store.LedgerStore
	Approvals store.ApprovalStore
	Workflows store.WorkflowStore

	Queue queue.Queue
	Bus   eventbus.EventBus
	LLM   llm.Client

	cleanupFuncs []func() error
}

type options struct {
	skipDB    bool
	memStore  *store.MemoryStore
}

// Option configures Setup.
type Option func(*options)

// WithoutDB skips Postgres connection and substitutes MemoryStore for
// Runs/Ledger/Approvals/Workflows, for tests and local development.
func WithoutDB() Option {
	return func(o *options) { o.skipDB = true }
}

// Setup initializes configuration, logging, storage, queue, event bus,
// and LLM client for serviceName, in that order.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Components{}

	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.Config = cfg

	c.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	c.Logger.Info("initializing service", "service", serviceName, "environment", cfg.Service.Environment)

	if o.skipDB {
		mem := store.NewMemoryStore()
		c.Runs, c.Ledger, c.Approvals, c.Workflows = mem.Runs(), mem.Ledger(), mem.Approvals(), mem.Workflows()
	} else {
		c.Logger.Info("connecting to database")
		db, err := store.NewDB(ctx, cfg, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.DB = db
		c.addCleanup(func() error { db.Close(); return nil })
		c.Runs = store.NewPgRunStore(db)
		c.Ledger = store.NewPgLedgerStore(db)
		c.Approvals = store.NewPgApprovalStore(db)
		c.Workflows = store.NewPgWorkflowStore(db)
	}

	c.Logger.Info("initializing queue", "type", cfg.Queue.Type)
	switch cfg.Queue.Type {
	case "memory":
		c.Queue = queue.NewMemoryQueue(c.Logger, 1000)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize})
		c.Redis = rdb
		c.addCleanup(rdb.Close)
		redisQueue, err := queue.NewRedisQueue(ctx, rdb, c.Logger)
		if err != nil {
			c.Shutdown(ctx)
			return nil, fmt.Errorf("init redis queue: %w", err)
		}
		c.Queue = redisQueue
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
	}
	c.addCleanup(c.Queue.Close)

	c.Logger.Info("initializing event bus")
	if c.Redis != nil {
		c.Bus = eventbus.NewRedisBus(c.Redis, c.Logger)
	} else if cfg.Queue.Type == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize})
		c.Bus = eventbus.NewRedisBus(rdb, c.Logger)
	} else {
		c.Bus = eventbus.NewLocalBus(c.Logger)
	}
	c.addCleanup(c.Bus.Close)

	c.Logger.Info("initializing LLM client", "provider", cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case "anthropic":
		anthropicClient := llm.NewAnthropicClient(resolveAPIKey(cfg.LLM.APIKeyEnv))
		c.LLM = llm.NewRetryingClient(anthropicClient, cfg.LLM.MaxRetries, 500*time.Millisecond)
	case "stub":
		c.LLM = &llm.EchoClient{}
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}

	return c, nil
}

// Shutdown runs cleanup functions in LIFO order.
func (c *Components) Shutdown(ctx context.Context) error {
	if c.Logger != nil {
		c.Logger.Info("shutting down components")
	}
	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			if c.Logger != nil {
				c.Logger.Error("cleanup error", "error", err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

func resolveAPIKey(envVar string) string {
	return os.Getenv(envVar)
}
