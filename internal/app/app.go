package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/internal/config"
	"github.com/quietpage/proactive-engagement/internal/server"
	"github.com/quietpage/proactive-engagement/pkg/detector"
	"github.com/quietpage/proactive-engagement/pkg/executor"
	"github.com/quietpage/proactive-engagement/pkg/guard"
	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/policy"
	"github.com/quietpage/proactive-engagement/pkg/probability"
	"github.com/quietpage/proactive-engagement/pkg/profile"
	"github.com/quietpage/proactive-engagement/pkg/record"
	"github.com/quietpage/proactive-engagement/pkg/scheduler"
)

// App holds all application dependencies and manages the lifecycle.
type App struct {
	cfg         *config.Config
	redisClient *redis.Client
	sched       *scheduler.Scheduler
	opsServer   *server.OpsServer
}

// New wires the application in dependency order: Redis, policy table,
// stores, decision pipeline, scheduler, ops server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	redisClient, err := record.InitRedisClient(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	app.redisClient = redisClient

	table := policy.Default()
	if cfg.PolicyPath != "" {
		table, err = policy.Load(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy from %s: %w", cfg.PolicyPath, err)
		}
		logrus.Infof("loaded engagement policy from %s", cfg.PolicyPath)
	}

	loc := cfg.Location()
	entries := journal.NewRedisStore(redisClient)
	records := record.NewRedisStore(redisClient, loc, cfg.Retention)
	tiers := profile.NewRedisTierStore(redisClient)

	rng := probability.NewLockedRand()
	engine := probability.NewEngine(table, rng)
	builder := profile.NewBuilder(entries, records, tiers, loc)
	det := detector.New(cfg.DetectorConfig(), table, engine, rng, loc)
	grd := guard.New(cfg.GuardConfig(), records, table)
	generator := executor.NewHTTPGenerator(cfg.GeneratorURL)
	exec := executor.New(cfg.ExecutorConfig(), entries, records, generator)

	sched, err := scheduler.New(cfg.SchedulerConfig(), table, builder, det, grd, exec, entries, records, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to init scheduler: %w", err)
	}
	app.sched = sched

	app.opsServer = server.NewOpsServer(cfg.OpsPort, sched)
	if err := app.opsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to set up ops server: %w", err)
	}

	logrus.Info("application initialized")
	return app, nil
}
