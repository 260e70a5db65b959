package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/config"
	"github.com/sudo-init-do/servicehub/internal/db"
	"github.com/sudo-init-do/servicehub/internal/logger"
	"github.com/sudo-init-do/servicehub/internal/realtime"
	"github.com/sudo-init-do/servicehub/internal/server"
	"github.com/sudo-init-do/servicehub/internal/tasks"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	l := logger.Init("servicehub", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		Config:  cfg,
		Clock:   clock.NewReal(),
		Journal: wallet.NopJournal{},
		Log:     l,
	}

	instance := cfg.Server.InstanceID
	if instance == "" {
		instance = uuid.New().String()
	}

	// Settlement scheduler. Transactions are held in memory either way, so
	// settlements pending at shutdown are lost.
	var asynqSched *tasks.AsynqScheduler
	if cfg.Redis.Addr != "" {
		asynqSched = tasks.NewAsynqScheduler(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, instance, logger.Component("tasks"))
		opts.Scheduler = asynqSched
		l.Info().Str("queue", asynqSched.Queue()).Msg("settlements queued in redis")
	} else {
		opts.Scheduler = tasks.NewClockScheduler(opts.Clock, logger.Component("tasks"))
	}

	// Transaction journal
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = db.Init(ctx, cfg.Database.URL, logger.Component("db"))
		if err != nil {
			log.Fatal().Err(err).Msg("database init failed")
		}
		defer pool.Close()
		opts.Journal = wallet.NewPostgresJournal(pool)
		opts.Ready = func(ctx context.Context) error { return pool.Ping(ctx) }
	}

	app, err := server.NewApp(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("app init failed")
	}

	if asynqSched != nil {
		// handlers are registered by NewApp, so the worker starts afterwards
		asynqSched.Start()
		defer asynqSched.Close()
	}

	// Cross-instance event fan-out
	if cfg.Redis.Addr != "" {
		rdb, err := realtime.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer rdb.Close()
		bridge := realtime.NewRedisBridge(rdb, cfg.Redis.Channel, instance, app.Hub, logger.Component("relay"))
		app.Hub.SetRelay(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error().Err(err).Msg("event relay stopped")
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		l.Info().Str("addr", addr).Str("policy", app.Engine.Policy()).Msg("server starting")
		if err := app.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("graceful shutdown failed")
	}
}
