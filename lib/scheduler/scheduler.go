// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler computes slot boundaries for a strand and emits
// Prepare/Release events at the right wall-clock moments.
//
// A slot's timestamp is genesis_timestamp + index*period. Scheduler
// emits a Prepare event at slot_time - lead_time, giving the pulse
// pipeline the lead-time window to gather randomness, fetch stitches,
// and sign, then a Release event at slot_time itself. For every slot
// after the first, Prepare is emitted only once the prior slot has
// been confirmed committed.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/twine-network/beacon-pulse/lib/clock"
)

// EventKind distinguishes a Prepare event from a Release event.
type EventKind int

const (
	// Prepare fires at slot_time - lead_time: the signal to begin
	// gathering inputs for the next tixel.
	Prepare EventKind = iota + 1

	// Release fires at slot_time: the signal that this slot's tixel,
	// if committed, should now be announced.
	Release
)

func (k EventKind) String() string {
	switch k {
	case Prepare:
		return "prepare"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// Event is one scheduler event for slot Index at wall-clock time Slot.
type Event struct {
	Kind  EventKind
	Index uint64
	Slot  time.Time
}

// TipChecker reports the index of the most recently committed tixel.
// ok is false if the strand has no committed tixel yet (only valid
// before index 0 has been prepared).
type TipChecker func(ctx context.Context) (index uint64, ok bool, err error)

// Scheduler computes and emits slot events for a single strand.
type Scheduler struct {
	clock    clock.Clock
	genesis  time.Time
	period   time.Duration
	leadTime time.Duration
	logger   *slog.Logger
}

// New returns a Scheduler for a strand whose genesis slot falls at
// genesis and whose slots repeat every period. leadTime is how far
// ahead of a slot's release Prepare fires.
func New(c clock.Clock, genesis time.Time, period, leadTime time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		clock:    c,
		genesis:  genesis,
		period:   period,
		leadTime: leadTime,
		logger:   logger,
	}
}

// SlotTime returns the wall-clock boundary of the slot at index.
func (s *Scheduler) SlotTime(index uint64) time.Time {
	return s.genesis.Add(time.Duration(index) * s.period)
}

// Run emits Prepare/Release events for every slot starting at
// startIndex until ctx is canceled, then closes the returned channel.
//
// Before firing Prepare for index > startIndex, Run consults checkTip
// to confirm the previous slot actually committed. If it did not (the
// prior commit was late, or failed), that slot's wall-clock time is
// skipped and a warning is logged — but the tixel index sequence is
// never allowed to gap: the loop resyncs index to tipIndex+1, so the
// very next slot (one period later) is prepared under the index the
// chain is actually expecting, rather than an index that has drifted
// ahead of the tip forever. Slot time and tixel index are tracked
// separately for exactly this reason — a skip costs time, not index.
func (s *Scheduler) Run(ctx context.Context, startIndex uint64, checkTip TipChecker) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		index := startIndex
		slot := s.SlotTime(index)
		for {
			prepareAt := slot.Add(-s.leadTime)

			if !s.wait(ctx, prepareAt) {
				return
			}

			if index > startIndex {
				tipIndex, ok, err := checkTip(ctx)
				switch {
				case err != nil:
					s.logger.Warn("skipping slot: tip check failed", "index", index, "slot", slot, "error", err)
					slot = slot.Add(s.period)
					continue
				case !ok:
					s.logger.Warn("skipping slot: no committed tip yet", "index", index, "slot", slot)
					slot = slot.Add(s.period)
					continue
				case tipIndex != index-1:
					s.logger.Warn("skipping slot: prior slot not committed, resyncing index to tip", "index", index, "slot", slot, "tip_index", tipIndex)
					index = tipIndex + 1
					slot = slot.Add(s.period)
					continue
				}
			}

			select {
			case events <- Event{Kind: Prepare, Index: index, Slot: slot}:
			case <-ctx.Done():
				return
			}

			if !s.wait(ctx, slot) {
				return
			}

			select {
			case events <- Event{Kind: Release, Index: index, Slot: slot}:
			case <-ctx.Done():
				return
			}

			index++
			slot = slot.Add(s.period)
		}
	}()

	return events
}

// wait blocks until the clock reaches deadline or ctx is canceled.
// Returns false if ctx was canceled first.
func (s *Scheduler) wait(ctx context.Context, deadline time.Time) bool {
	d := deadline.Sub(s.clock.Now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-s.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// FirstFutureIndex returns the smallest slot index k such that
// genesis + k*period - leadTime is not before now. Used at startup to
// pick the first slot to prepare for, per the no-backfill rule: a
// freshly started supervisor never attempts to catch up on slots
// whose prepare deadline has already passed.
func FirstFutureIndex(genesis time.Time, period, leadTime time.Duration, now time.Time) uint64 {
	elapsed := now.Add(leadTime).Sub(genesis)
	if elapsed <= 0 {
		return 0
	}
	k := int64(elapsed / period)
	if elapsed%period != 0 {
		k++
	}
	return uint64(k)
}
