package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/fichaje/holded-relay/internal/config"
	"github.com/fichaje/holded-relay/internal/logger"
	"github.com/fichaje/holded-relay/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	l := logger.New(cfg.Observability)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, l)
	if err := srv.Start(ctx); err != nil {
		l.Error().Err(err).Msg("server exited")
		stop()
		os.Exit(1)
	}
}
