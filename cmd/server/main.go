package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/MRCCollective/Babbler/internal/adapters/http"
	wsadapter "github.com/MRCCollective/Babbler/internal/adapters/signal"
	"github.com/MRCCollective/Babbler/internal/app"
	"github.com/MRCCollective/Babbler/internal/config"
	"github.com/MRCCollective/Babbler/internal/metrics"
	"github.com/MRCCollective/Babbler/internal/speech"
	"github.com/MRCCollective/Babbler/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Durable usage record: optional. Without a database the quota is
	// enforced for the life of the process only.
	var usageStore app.UsageStore = store.Noop{}
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("usage store unavailable, degrading to in-memory quota")
		} else {
			u := store.NewUsage(pool)
			if err := u.Init(ctx); err != nil {
				log.Error().Err(err).Msg("usage schema init failed, degrading to in-memory quota")
				pool.Close()
				pool = nil
			} else {
				usageStore = u
			}
		}
	}

	m := metrics.New()
	hub := wsadapter.NewHub(m)
	speechProv := speech.New(cfg.Speech.Key, cfg.Speech.Region)

	coord := app.NewCoordinator(ctx, app.Config{
		FreeLimit:     time.Duration(cfg.FreeMinutes) * time.Minute,
		RoomRetention: cfg.RoomRetention,
		UsageTick:     cfg.UsageTick,
		PersistEvery:  cfg.PersistEvery,
	}, hub, usageStore, speechProv)
	coord.SetForceStopHook(m.AddForceStops)

	h := router.NewHandlers(coord, speechProv, m, cfg)
	ws := wsadapter.NewWSController(coord, hub)
	refreshGauges := func() {
		running, used := coord.UsageSnapshot()
		m.SetRoomsRunning(running)
		m.SetUsageSeconds(used.Seconds())
	}

	r := router.SetupRouter(ctx, cfg, h, ws, m, refreshGauges)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Babbler server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Force-stop every running room and write one consolidated usage record.
	coord.Shutdown(shutdownCtx)
	if pool != nil {
		pool.Close()
	}
	log.Info().Msg("Server exited gracefully")
}
