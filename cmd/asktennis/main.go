package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asktennis/asktennis/internal/config"
	"github.com/asktennis/asktennis/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg)

	if config.Watch(func(next *config.Config) { setLevel(next.LogLevel) }) {
		log.Info().Str("file", os.Getenv(config.ConfigEnvVar)).Msg("watching config for log level changes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("start server")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("api_prefix", cfg.APIPrefix).
		Msg("asktennis starting")

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func setupLogging(cfg *config.Config) {
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	setLevel(cfg.LogLevel)
}

func setLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
