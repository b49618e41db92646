// Copyright 2024-2026 Aiku AI

// Command telegram-relay forwards messages from source feeds to
// destination feeds on Telegram, applying deduplication, content
// filtering, rate limiting and media-substitution policy. It shares one
// connection and one dedup ledger across all configured rules.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/aiku/telegram-relay/pkg/relay"
	"github.com/aiku/telegram-relay/pkg/relay/ledger"
	"github.com/aiku/telegram-relay/pkg/telegram"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	exampleConfig := flag.Bool("example-config", false, "print the example config and exit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("telegram-relay %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return
	}
	if *exampleConfig {
		fmt.Print(relay.ExampleConfig)
		return
	}

	cfg, err := relay.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := compileLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led := ledger.New(cfg.Ledger.Path, log.With().Str("component", "ledger").Logger())
	defer led.Close()

	client, err := telegram.New(telegram.Options{
		APIID:         cfg.Telegram.APIID,
		APIHash:       cfg.Telegram.APIHash,
		SessionString: cfg.Telegram.SessionString,
		SessionFile:   cfg.Telegram.SessionFile,
		Logger:        log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}

	err = client.Run(ctx, func(ctx context.Context) error {
		orch := relay.NewOrchestrator(client, cfg, led, log)
		orch.SetAuthStatusFunc(client.AuthStatus)
		return orch.Run(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Relay terminated with error")
	}
	log.Info().Msg("Shut down cleanly")
}

func compileLogger(cfg *relay.Config) zerolog.Logger {
	log, err := cfg.Logging.Compile()
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Warn().Err(err).Msg("Invalid logging config, using defaults")
		return fallback
	}
	return *log
}
