package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/activity"
	"github.com/geotrack/geotrack-server/internal/api"
	"github.com/geotrack/geotrack-server/internal/commands"
	"github.com/geotrack/geotrack-server/internal/config"
	"github.com/geotrack/geotrack-server/internal/geofence"
	"github.com/geotrack/geotrack-server/internal/notify"
	"github.com/geotrack/geotrack-server/internal/server"
	"github.com/geotrack/geotrack-server/internal/storage"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config/tracking-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to storage. An empty DSN runs on the in-memory store, which
	// is enough for local development.
	var store storage.Store
	if cfg.Database.DSN != "" {
		pg, err := storage.NewPostgresStore(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		store = pg
		log.Info().Msg("Connected to database")
	} else {
		store = storage.NewMemStore()
		log.Warn().Msg("No database configured, using in-memory store")
	}
	defer store.Close()

	// Optional Redis for device presence
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, presence tracking degraded")
			rdb = nil
		} else {
			defer rdb.Close()
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional NATS for bus ingest and alert fan-out
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("geotrack-tracking-server"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Wire services
	manager := commands.NewManager(store)
	notifier := notify.NewNotifier(nc, store, &cfg.Webhook)
	evaluator := geofence.NewEvaluator(store, manager, notifier)
	tracker := activity.NewTracker(store, rdb, cfg.Tracking.OfflineAfter, cfg.Tracking.LowBatteryLevel)

	apiServer := api.NewRESTServer(cfg, store, manager, evaluator, tracker)

	var wg sync.WaitGroup

	// Start API server
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Start NATS subscriber
	if nc != nil {
		subscriber := server.NewNATSSubscriber(nc, store, manager, evaluator, tracker)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("Starting NATS subscriber")
			if err := subscriber.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("NATS subscriber stopped")
			}
		}()
	}

	// Periodic sweeps: command expiry and offline detection
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Tracking.SweepSchedule, func() {
		if _, err := manager.Expire(ctx); err != nil {
			log.Error().Err(err).Msg("Command expiry sweep failed")
		}
		if _, err := tracker.SweepOffline(ctx); err != nil {
			log.Error().Err(err).Msg("Offline sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Tracking.SweepSchedule).Msg("Invalid sweep schedule")
	}
	scheduler.Start()
	log.Info().Str("schedule", cfg.Tracking.SweepSchedule).Msg("Sweep scheduler started")

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	cancel()

	sweepCtx := scheduler.Stop()
	<-sweepCtx.Done()

	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	wg.Wait()

	log.Info().Msg("Tracking server stopped")
}
