package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Adidier/agents/internal/aggregator"
	"github.com/Adidier/agents/internal/api"
	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/internal/fetcher"
	"github.com/Adidier/agents/internal/logger"
	"github.com/Adidier/agents/internal/persistence"
	"github.com/Adidier/agents/internal/recommend"
	"github.com/Adidier/agents/internal/registry"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// run wires the coordinator and blocks until ctx is cancelled.
// ready, if set, receives the bound API address once the listener is up.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, ready func(net.Addr)) error {
	redisOpts, err := redis.ParseURL(cfg.Persistence.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}

	client, err := telemetry.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to create telemetry client: %w", err)
	}
	defer client.Close()

	// An unreachable primary sink is not fatal; snapshots go to the fallback file
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Persistence.WriteTimeout)
	if err := client.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("redis_url", cfg.Persistence.RedisURL).Msg("Redis not accessible at startup, using fallback until it recovers")
	}
	cancel()

	store := registry.NewStore()
	sweeper := registry.NewSweeper(store, cfg.Registry.TTL, cfg.Registry.SweepInterval, logger.WithComponent(log, "registry"))

	fallback := persistence.NewFallbackFile(cfg.Persistence.FallbackPath)
	persister := persistence.NewPersister(client, fallback, cfg.Instance, cfg.Persistence.WriteTimeout, logger.WithComponent(log, "persistence"))
	auditor := persistence.NewAuditor(store, persister, cfg.Instance, cfg.Registry.AuditInterval, logger.WithComponent(log, "audit"))

	f := fetcher.New(cfg.Polling.FetchTimeout, cfg.Polling.StatusPath, cfg.Categories, logger.WithComponent(log, "fetcher"))
	engine := recommend.New(cfg.Recommendation)

	loop := aggregator.New(aggregator.Config{
		Instance:      cfg.Instance,
		Interval:      cfg.Polling.Interval,
		CycleDeadline: cfg.Polling.CycleDeadline,
	}, store, f, engine, persister, logger.WithComponent(log, "aggregator"))

	server := api.NewServer(store, client, loop, logger.WithComponent(log, "api"))
	addr, err := server.Start(cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	if ready != nil {
		ready(addr)
	}

	log.Info().
		Str("instance", cfg.Instance).
		Str("listen", addr.String()).
		Dur("interval", cfg.Polling.Interval).
		Int("categories", len(cfg.Categories)).
		Msg("coordinator started")

	var wg sync.WaitGroup
	for _, worker := range []func(context.Context) error{sweeper.Run, auditor.Run, loop.Run} {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("worker exited")
			}
		}(worker)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown error")
	}

	wg.Wait()
	log.Info().Uint64("cycles", loop.Cycles()).Msg("coordinator stopped")
	return nil
}
