package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"facilitywatch/internal/config"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	// wait for termination signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	if err := s.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server exited")
		cancel()
		os.Exit(1)
	}
	log.Info().Msg("exited")
}
