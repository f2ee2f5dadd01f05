package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/adapters/fileparse"
	router "github.com/dkeye/textworld/internal/adapters/http"
	"github.com/dkeye/textworld/internal/adapters/llm"
	wsignal "github.com/dkeye/textworld/internal/adapters/signal"
	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/app/dispatch"
	"github.com/dkeye/textworld/internal/app/orch"
	"github.com/dkeye/textworld/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := app.NewRegistry(cfg.Game.MaxRooms)
	scheduler := app.NewScheduler()
	generator := llm.New(cfg.LLM)
	if generator == nil {
		log.Warn().Msg("no LLM backend configured, narration falls back to placeholders")
	}

	orchestrator := orch.New(registry, scheduler, generator, nil, cfg.Game)
	wizard := app.NewWizard(registry, generator, cfg.Game)
	dispatcher := dispatch.New(registry, wizard, orchestrator, fileparse.New(), cfg.Game, cfg.Admin)

	controller := wsignal.NewController(dispatcher, cfg.ReadLimit, cfg.PingPeriod)
	orchestrator.Cast = controller

	r := router.SetupRouter(ctx, cfg, controller, registry)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Textworld server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	orchestrator.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
