package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Frenky19/RiftTalk/internal/config"
	"github.com/Frenky19/RiftTalk/internal/handlers"
	httpx "github.com/Frenky19/RiftTalk/internal/http"
	"github.com/Frenky19/RiftTalk/internal/kv"
	"github.com/Frenky19/RiftTalk/internal/provision"
	"github.com/Frenky19/RiftTalk/internal/repo"
	"github.com/Frenky19/RiftTalk/internal/service"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	store, err := kv.Open(ctx, cfg.StoreURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.StoreURL).Msg("failed to open key/value store")
	}
	defer store.Close()
	log.Info().Str("url", cfg.StoreURL).Msg("key/value store ready")

	// No real chat backend is wired here; the in-process provisioner keeps
	// the full lifecycle working for local development and demos.
	prov := provision.NewMock()
	log.Info().Msg("channel provisioning running in mock mode")

	rooms := repo.NewKVRoomStore(store)
	identities := repo.NewKVIdentityResolver(store)
	lock := kv.NewLock(store)

	opts := service.DefaultOptions()
	opts.RoomTTL = cfg.RoomTTL
	opts.DebounceTTL = cfg.DebounceTTL
	opts.CreateTTL = cfg.CreateTTL
	opts.LeaveGrace = cfg.LeaveGrace

	coord := service.NewCoordinator(lock, rooms, identities, prov, opts)

	reclaimer := service.NewReclaimer(coord, rooms, prov, service.ReclaimerOptions{
		Interval:     cfg.ReclaimInterval,
		HardTimeout:  cfg.ReclaimHardTimeout,
		ClosingGrace: cfg.ReclaimClosingGrace,
		StaleAfter:   cfg.ReclaimStaleAfter,
		MinAge:       cfg.ReclaimMinAge,
	})
	if err := reclaimer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start orphan reclaimer")
	}
	defer func() {
		if err := reclaimer.Stop(); err != nil {
			log.Error().Err(err).Msg("reclaimer shutdown error")
		}
	}()

	h := handlers.NewMatchHandler(coord)
	router := httpx.NewRouter(h, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
}
