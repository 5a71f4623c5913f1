// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Beacon-pulse-generator is the core randomness beacon process: it
// schedules, assembles, signs, and commits one strand's sequence of
// tixels, bootstrapping a genesis tixel on first run.
//
// All configuration comes from the environment; see lib/config for
// the complete variable list. There are no command-line flags beyond
// --version, since an operator misconfiguring a long-lived daemon via
// flags (and forgetting on the next restart) is a worse failure mode
// than one env var short.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twine-network/beacon-pulse/lib/assembler"
	"github.com/twine-network/beacon-pulse/lib/bootstrap"
	"github.com/twine-network/beacon-pulse/lib/chainstore"
	"github.com/twine-network/beacon-pulse/lib/clock"
	"github.com/twine-network/beacon-pulse/lib/config"
	"github.com/twine-network/beacon-pulse/lib/randbuffer"
	"github.com/twine-network/beacon-pulse/lib/scheduler"
	"github.com/twine-network/beacon-pulse/lib/signer"
	"github.com/twine-network/beacon-pulse/lib/stitch"
	"github.com/twine-network/beacon-pulse/lib/supervisor"
	"github.com/twine-network/beacon-pulse/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("beacon-pulse-generator %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := chainstore.Open(chainstore.Config{
		Path:   cfg.ChainDBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening chain store: %w", err)
	}
	defer chain.Close()

	sign, err := buildSigner(cfg)
	if err != nil {
		return fmt.Errorf("configuring signer: %w", err)
	}

	buffer, err := randbuffer.Open(cfg.RNGStoragePath)
	if err != nil {
		return fmt.Errorf("opening randomness buffer: %w", err)
	}

	collectInterval := time.Duration(cfg.RNGCollectIntervalSeconds) * time.Second
	leadTime := time.Duration(cfg.LeadTimeSeconds) * time.Second
	collectTimeout := leadTime / 2
	if collectTimeout < time.Second {
		collectTimeout = time.Second
	}

	collector := randbuffer.NewCollector(buffer, cfg.RNGScript, collectInterval, collectTimeout, clock.Real(), logger)
	go collector.Run(ctx)

	result, err := bootstrap.Run(ctx, bootstrap.Config{
		Chain:            chain,
		Signer:           sign,
		Buffer:           buffer,
		CollectScript:    cfg.RNGScript,
		CollectTimeout:   collectTimeout,
		AuxCollectScript: cfg.AuxRNGScript,
		LeadTime:         leadTime,
		StrandConfigPath: cfg.StrandConfigPath,
		StrandJSONPath:   cfg.StrandJSONPath,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("bootstrapping strand: %w", err)
	}
	logger.Info("strand ready", "strand_id", result.Strand.ID, "start_index", result.StartIndex)

	period := time.Duration(result.Strand.PulsePeriod) * time.Second

	stitchLoader := stitch.NewLoader(cfg.StitchConfigPath, logger)
	if err := stitchLoader.Reload(); err != nil {
		logger.Warn("initial stitch configuration load failed, starting with no stitches", "error", err)
	}
	// Strictly less than half the lead time (spec requires every
	// stitch fetch to fit inside the assembly window with room left
	// for signing and committing); LEAD_TIME_SECONDS >= 1 is enforced
	// by lib/config, so this is never zero.
	fetchTimeout := leadTime * 2 / 5
	fetcher := stitch.NewFetcher(fetchTimeout, logger)

	_, previousLink, ok, err := chain.Tip(ctx)
	if err != nil {
		return fmt.Errorf("reading chain tip: %w", err)
	}
	if !ok {
		return fmt.Errorf("chain store reports no tip immediately after bootstrap")
	}

	asm := assembler.New(assembler.Config{
		StrandID:         result.Strand.ID,
		LeadTime:         leadTime,
		Buffer:           buffer,
		CollectScript:    cfg.RNGScript,
		CollectTimeout:   collectTimeout,
		AuxCollectScript: cfg.AuxRNGScript,
		StitchLoader:     stitchLoader,
		Fetcher:          fetcher,
		Chain:            chain,
		Signer:           sign,
		Clock:            clock.Real(),
		Logger:           logger,
	})

	sched := scheduler.New(clock.Real(), result.Strand.GenesisTimestamp, period, leadTime, logger)

	sup := supervisor.New(supervisor.Config{
		Chain:        chain,
		Scheduler:    sched,
		Assembler:    asm,
		StartIndex:   result.StartIndex,
		PreviousLink: previousLink,
		Notifier: &supervisor.Notifier{
			Address: cfg.DataSyncAddress,
			Timeout: 5 * time.Second,
		},
		Clock:  clock.Real(),
		Logger: logger,
	})

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

func buildSigner(cfg *config.Config) (signer.Signer, error) {
	if cfg.UsesHSM() {
		return signer.NewHSM(signer.HSMConfig{
			Address:      cfg.HSMAddress,
			AuthKeyID:    cfg.HSMAuthKeyID,
			Password:     cfg.HSMPassword,
			SigningKeyID: cfg.HSMSigningKeyID,
		}), nil
	}
	return signer.LoadLocal(cfg.PrivateKeyPath)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
