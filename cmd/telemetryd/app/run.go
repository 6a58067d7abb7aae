package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fleet-monitor/telemetry/internal/alert"
	"fleet-monitor/telemetry/internal/auth"
	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/config"
	"fleet-monitor/telemetry/internal/ingest"
	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/internal/notifier"
	"fleet-monitor/telemetry/internal/simulation"
	"fleet-monitor/telemetry/internal/store"
	"fleet-monitor/telemetry/internal/telemetry"
	transporthttp "fleet-monitor/telemetry/internal/transport/http"
	"fleet-monitor/telemetry/internal/transport/ws"
	"fleet-monitor/telemetry/pkg/log"
)

// Run wires every component from cfg and blocks until ctx is done or one of
// them fails.
func Run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	var storeOpts []telemetry.Option
	if cfg.RandomSeed != 0 {
		storeOpts = append(storeOpts, telemetry.WithSeed(cfg.RandomSeed))
	}
	vehicles := telemetry.NewStore(storeOpts...)
	svc := telemetry.NewService(vehicles, logger.WithName("telemetry"))

	bc := broadcast.New(broadcast.Options{
		Prune:  broadcast.PrunePolicy{MaxFailures: cfg.PruneAfterFailures},
		Logger: logger.WithName("broadcast"),
	})
	defer bc.Close()

	ready := map[string]transporthttp.ReadinessCheck{}
	var keyLookup auth.KeyLookup

	var redisStore *store.RedisStore
	if cfg.RedisEnabled {
		rs, err := store.NewRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer rs.Close()
		redisStore = rs
		keyLookup = rs
		ready["redis"] = rs.Ping
		bc.Connect(store.NewRedisMirror(rs))
		logger.Info("redis mirror enabled", "addr", cfg.RedisAddr)
	}

	var pgStore *store.PostgresStore
	if cfg.DBEnabled {
		ps, err := store.NewPostgresStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer ps.Close()
		pgStore = ps
		ready["postgres"] = ps.Ping

		if _, err := ingest.Seed(ctx, ps, svc, logger.WithName("seed")); err != nil {
			return err
		}
	}

	if cfg.AlertsEnabled {
		bc.Connect(newAlertEvaluator(cfg, redisStore, pgStore, logger))
	}

	if cfg.MQTTBroker != "" {
		n, err := notifier.Dial(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = n.Close(closeCtx)
		}()
		bc.Connect(n)
	}

	engine := simulation.NewEngine(vehicles, bc,
		simulation.WithInterval(cfg.TickInterval),
		simulation.WithLogger(logger.WithName("simulation")),
	)

	wsHandler := ws.NewHandler(bc, ws.Options{
		ReadLimit:    cfg.WSReadLimit,
		WriteTimeout: cfg.WSWriteTimeout,
		Logger:       logger,
	})
	router := transporthttp.NewRouter(transporthttp.RouterOptions{
		Service:   svc,
		Auth:      transporthttp.NewAuthMiddleware(auth.NewAuthenticator(cfg, keyLookup)),
		WSPath:    cfg.WSPath,
		WSHandler: wsHandler,
		Ready:     ready,
		Metrics:   metrics.Handler(),
		Logger:    logger.WithName("http"),
	})
	server := transporthttp.NewServer(cfg.HTTPAddr, router, logger.WithName("http"))
	server.OnShutdown(wsHandler.CloseAll)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		return engine.Run(ctx)
	})
	if redisStore != nil {
		sub := ingest.NewSubscriber(redisStore, svc, logger)
		g.Go(func() error {
			if err := sub.Run(ctx); err != nil {
				return fmt.Errorf("registry events: %w", err)
			}
			return nil
		})
	}

	logger.Info("telemetryd started",
		"addr", cfg.HTTPAddr,
		"ws", cfg.WSPath,
		"tick", engine.Interval(),
		"vehicles", vehicles.Len(),
	)
	err := g.Wait()
	// Stop the writers before the deferred store and broker closes run.
	bc.Close()
	return err
}

func newAlertEvaluator(cfg *config.Config, rs *store.RedisStore, ps *store.PostgresStore, logger log.Logger) *alert.Evaluator {
	opts := alert.Options{
		Dedup:  alert.NewMemoryDeduper(cfg.AlertDedupTTL, nil),
		Logger: logger.WithName("alert"),
	}
	if rs != nil {
		opts.Dedup = alert.NewRedisDeduper(rs, cfg.AlertDedupTTL)
		opts.Publisher = rs
	}
	if ps != nil {
		opts.Recorder = ps
	}
	return alert.NewEvaluator(opts)
}
