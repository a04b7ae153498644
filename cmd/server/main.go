package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resonance/internal/config"
	"resonance/internal/database/boltstore"
	"resonance/internal/database/redisstore"
	"resonance/internal/database/sqlitestore"
	"resonance/internal/handlers"
	"resonance/internal/metrics"
	"resonance/internal/moderation"
	"resonance/internal/notify"
	"resonance/internal/routing"
	"resonance/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	configureLogging(cfg)

	log.Info().Msg("Starting Resonance moderation engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.Init(ctx, cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
		log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("Tracing enabled")
	}

	db, err := sqlitestore.Open(cfg.DBPath, sqlitestore.DefaultOptions())
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer db.Close()
	store := sqlitestore.NewModerationStore(db)

	bolt, err := boltstore.Open(boltstore.Options{Path: cfg.ContentDB})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ContentDB).Msg("Failed to open content database")
	}
	defer bolt.Close()
	log.Info().Str("path", cfg.ContentDB).Msg("Content database opened")

	var counters moderation.WindowStore = sqlitestore.NewCounterStore(db)
	if cfg.RedisURL != "" {
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		counters = redisstore.NewCounterStore(client)
		log.Info().Msg("Rate limits backed by Redis")
	} else {
		log.Info().Msg("Rate limits backed by SQLite")
	}

	roles, err := moderation.NewDirectory(cfg.RolesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RolesPath).Msg("Failed to load staff directory")
	}
	log.Info().Int("staff", len(roles.ListStaff())).Str("path", cfg.RolesPath).Msg("Staff directory loaded")

	svc, err := moderation.NewService(moderation.ServiceConfig{
		Store:   store,
		Roles:   roles,
		Limiter: moderation.NewRateLimiter(counters, cfg.RateLimits()),
		Content: bolt.ContentStore(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize moderation service")
	}

	// Reload the staff directory on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	h := handlers.NewHandler(svc, bolt.InboxStore(), bolt.ContentStore())
	handler := routing.SetupRouter(routing.Config{
		Handlers: h,
		Actors:   roles,
		Logger:   log.Logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metrics.StartCollector(ctx, newStatsSource(ctx, svc), cfg.MetricsInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("address", cfg.Addr()).
			Str("url", "http://localhost:"+cfg.Port).
			Str("database", cfg.DBPath).
			Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return moderation.NewScheduler(svc, cfg.ExpirationInterval).Run(gctx)
	})

	g.Go(func() error {
		return notify.NewDispatcher(store, notify.LogNotifier{Next: bolt.InboxStore()}, cfg.DispatchInterval, 100).Run(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := roles.Reload(); err != nil {
					log.Error().Err(err).Msg("Failed to reload staff directory")
					continue
				}
				log.Info().Int("staff", len(roles.ListStaff())).Msg("Staff directory reloaded")
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

// configureLogging sets the global level and output format
func configureLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.LogLevel)

	// Use pretty console logging in development, JSON in production
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
