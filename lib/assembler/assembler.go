// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package assembler

import (
	"context"
	"crypto/sha512"
	"fmt"
	"log/slog"
	"time"

	"github.com/twine-network/beacon-pulse/lib/beaconerr"
	"github.com/twine-network/beacon-pulse/lib/chainstore"
	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/clock"
	"github.com/twine-network/beacon-pulse/lib/randbuffer"
	"github.com/twine-network/beacon-pulse/lib/scheduler"
	"github.com/twine-network/beacon-pulse/lib/signer"
	"github.com/twine-network/beacon-pulse/lib/stitch"
	"github.com/twine-network/beacon-pulse/lib/strand"
)

// Outcome is what the Assembler reports for one scheduled slot: either
// a committed Tixel (state Ready, becoming Done once released) or a
// skip with the reason it could not complete (state Skipped).
type Outcome struct {
	Index  uint64
	Slot   time.Time
	State  State
	Tixel  *strand.Tixel
	Reason string
}

// Config collects everything the Assembler needs to build and commit
// tixels for one strand.
type Config struct {
	StrandID cid.CID
	LeadTime time.Duration

	Buffer         *randbuffer.Buffer
	CollectScript  string
	CollectTimeout time.Duration

	// AuxCollectScript is the shell command for the second,
	// independently-configured randomness source every slot's mixing
	// step requires (spec.md's ">=2 sources"). Run synchronously,
	// once per slot, under the same CollectTimeout budget as a
	// primary re-collection.
	AuxCollectScript string

	StitchLoader *stitch.Loader
	Fetcher      *stitch.Fetcher

	Chain  *chainstore.Store
	Signer signer.Signer
	Clock  clock.Clock
	Logger *slog.Logger
}

// Assembler runs the per-slot pipeline described in state.go: on a
// Prepare event it gathers inputs, signs, and commits (advancing
// through Gathering, Signing, and Committing); the tixel sits Ready
// until the matching Release event, at which point the Assembler
// reports Done and the caller is free to announce it.
type Assembler struct {
	cfg Config
}

// New returns an Assembler configured by cfg.
func New(cfg Config) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Assembler{cfg: cfg}
}

// Run consumes scheduler events until events closes, emitting one
// Outcome per Prepare (committed or skipped) and one Outcome per
// Release (Done, carrying the tixel committed for that index, or
// nothing if that slot was skipped). previousLink is the current
// chain tip's CID (the zero CID if the strand has no committed
// tixel yet).
func (a *Assembler) Run(ctx context.Context, events <-chan scheduler.Event, previousLink cid.CID) <-chan Outcome {
	outcomes := make(chan Outcome)

	go func() {
		defer close(outcomes)

		var pending *strand.Tixel

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}

				switch ev.Kind {
				case scheduler.Prepare:
					tixel, reason := a.assemble(ctx, ev.Index, ev.Slot, previousLink)
					if tixel == nil {
						a.cfg.Logger.Warn("slot skipped", "index", ev.Index, "slot", ev.Slot, "reason", reason)
						outcomes <- Outcome{Index: ev.Index, Slot: ev.Slot, State: Skipped, Reason: reason}
						pending = nil
						continue
					}
					pending = tixel
					outcomes <- Outcome{Index: ev.Index, Slot: ev.Slot, State: Ready, Tixel: tixel}

				case scheduler.Release:
					if pending != nil && pending.Index == ev.Index {
						previousLink = pending.CID
						outcomes <- Outcome{Index: ev.Index, Slot: ev.Slot, State: Done, Tixel: pending}
						pending = nil
					}
				}
			}
		}
	}()

	return outcomes
}

// assemble performs Gathering, Signing, and Committing for one slot.
// A nil tixel means the slot was skipped; reason explains why.
func (a *Assembler) assemble(ctx context.Context, index uint64, slot time.Time, previousLink cid.CID) (*strand.Tixel, string) {
	workCtx, cancel := context.WithTimeout(ctx, a.cfg.LeadTime)
	defer cancel()

	randomness, err := a.gatherRandomness(workCtx)
	if err != nil {
		return nil, fmt.Sprintf("randomness unavailable: %v", err)
	}

	var stitches []strand.Stitch
	if a.cfg.StitchLoader != nil && a.cfg.Fetcher != nil {
		if err := a.cfg.StitchLoader.Reload(); err != nil {
			a.cfg.Logger.Warn("stitch config reload failed, keeping previous config", "index", index, "error", err)
		}
		stitches = a.cfg.Fetcher.FetchAll(workCtx, a.cfg.StitchLoader.Current().Active())
	}

	canonical, hash, err := strand.BuildPayload(a.cfg.StrandID, index, slot, randomness, previousLink, stitches)
	if err != nil {
		return nil, fmt.Sprintf("building payload: %v", err)
	}

	signature, err := a.signWithRetry(workCtx, hash)
	if err != nil {
		if kind, ok := beaconerr.KindOf(err); ok && kind == beaconerr.SignerFatal {
			a.cfg.Logger.Error("signer fatal, alarm", "index", index, "error", err)
		}
		return nil, fmt.Sprintf("signing: %v", err)
	}

	tixel, err := strand.FinalizeTixel(a.cfg.StrandID, index, slot, randomness, previousLink, stitches, hash, signature)
	if err != nil {
		return nil, fmt.Sprintf("finalizing tixel: %v", err)
	}

	if err := a.commitWithRetry(workCtx, &tixel, canonical); err != nil {
		return nil, fmt.Sprintf("committing: %v", err)
	}

	return &tixel, ""
}

// gatherRandomness implements the consumption rule: a destructive read
// of the fresh slot, or, on a miss, one synchronous re-collection with
// a bounded timeout, for the primary source. A failure there skips the
// slot before the auxiliary source is ever touched. The auxiliary
// source is always collected synchronously — it has no background
// buffer of its own — and is mixed in order-sensitively: primary bytes
// first, then auxiliary.
func (a *Assembler) gatherRandomness(ctx context.Context) ([64]byte, error) {
	var mixed [64]byte

	primary, ok, err := a.cfg.Buffer.TakeFresh()
	if err != nil {
		return mixed, fmt.Errorf("reading randomness buffer: %w", err)
	}
	if !ok {
		collectCtx, cancel := context.WithTimeout(ctx, a.cfg.CollectTimeout)
		defer cancel()
		primary, err = randbuffer.CollectOnce(collectCtx, a.cfg.CollectScript)
		if err != nil {
			return mixed, fmt.Errorf("synchronous re-collection: %w", err)
		}
	}

	auxCtx, cancel := context.WithTimeout(ctx, a.cfg.CollectTimeout)
	defer cancel()
	aux, err := randbuffer.CollectOnce(auxCtx, a.cfg.AuxCollectScript)
	if err != nil {
		return mixed, fmt.Errorf("collecting auxiliary entropy: %w", err)
	}

	mixed = sha512.Sum512(append(primary[:], aux[:]...))
	return mixed, nil
}

// signWithRetry signs hash, retrying once on a Transient error (an
// HSM connector blip) within the caller's deadline. A SignerFatal
// error is never retried.
func (a *Assembler) signWithRetry(ctx context.Context, hash [32]byte) ([]byte, error) {
	sig, err := a.cfg.Signer.Sign(ctx, hash)
	if err == nil {
		return sig, nil
	}

	kind, ok := beaconerr.KindOf(err)
	if !ok || kind != beaconerr.Transient {
		return nil, err
	}

	a.cfg.Logger.Warn("signer transient error, retrying once", "error", err)
	return a.cfg.Signer.Sign(ctx, hash)
}

// commitWithRetry appends the tixel, retrying Transient failures with
// a short bounded backoff until ctx's deadline (the lead-time budget)
// is exhausted. ChainViolation and Conflict are never retried — they
// indicate corruption or a losing race, not a condition that clears
// with time.
func (a *Assembler) commitWithRetry(ctx context.Context, t *strand.Tixel, canonical []byte) error {
	backoff := 50 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		err := a.cfg.Chain.Append(ctx, t, canonical)
		if err == nil {
			return nil
		}

		kind, ok := beaconerr.KindOf(err)
		if !ok || kind != beaconerr.Transient {
			return err
		}

		a.cfg.Logger.Warn("chain append transient error, retrying", "index", t.Index, "error", err)

		select {
		case <-a.cfg.Clock.After(backoff):
		case <-ctx.Done():
			return err
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
