// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor wires the scheduler and the pulse assembler into
// one running pipeline, and notifies the external data-sync worker
// whenever a tixel releases.
package supervisor

import (
	"context"
	"log/slog"

	"github.com/twine-network/beacon-pulse/lib/assembler"
	"github.com/twine-network/beacon-pulse/lib/chainstore"
	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/clock"
	"github.com/twine-network/beacon-pulse/lib/netutil"
	"github.com/twine-network/beacon-pulse/lib/scheduler"
)

// Config collects everything Supervisor needs to run the strand's
// ongoing pulse cycle, after bootstrap has already established the
// strand and the first index to prepare.
type Config struct {
	Chain     *chainstore.Store
	Scheduler *scheduler.Scheduler
	Assembler *assembler.Assembler

	StartIndex   uint64
	PreviousLink cid.CID

	Notifier *Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Supervisor runs one strand's scheduler/assembler pipeline until its
// context is canceled. It has no stitch-config reload loop of its own;
// the assembler reloads the stitch configuration once per slot.
type Supervisor struct {
	cfg Config
}

// New returns a Supervisor configured by cfg.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Supervisor{cfg: cfg}
}

// Run blocks until ctx is canceled or the assembler's outcome channel
// closes, driving the scheduler, the assembler, and the release-time
// data-sync notification.
func (s *Supervisor) Run(ctx context.Context) error {
	events := s.cfg.Scheduler.Run(ctx, s.cfg.StartIndex, s.tipChecker)
	outcomes := s.cfg.Assembler.Run(ctx, events, s.cfg.PreviousLink)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-outcomes:
			if !ok {
				return nil
			}
			s.handleOutcome(ctx, out)
		}
	}
}

func (s *Supervisor) handleOutcome(ctx context.Context, out assembler.Outcome) {
	switch out.State {
	case assembler.Skipped:
		s.cfg.Logger.Warn("slot skipped", "index", out.Index, "slot", out.Slot, "reason", out.Reason)
	case assembler.Ready:
		s.cfg.Logger.Info("tixel ready", "index", out.Index, "cid", out.Tixel.CID)
	case assembler.Done:
		s.cfg.Logger.Info("tixel released", "index", out.Index, "cid", out.Tixel.CID)
		if s.cfg.Notifier != nil {
			if err := s.cfg.Notifier.Notify(ctx); err != nil && !netutil.IsExpectedCloseError(err) {
				s.cfg.Logger.Warn("notifying data-sync worker failed", "error", err)
			}
		}
	}
}

func (s *Supervisor) tipChecker(ctx context.Context) (uint64, bool, error) {
	index, _, ok, err := s.cfg.Chain.Tip(ctx)
	return index, ok, err
}
