// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap brings a strand into existence on a fresh
// deployment, or confirms an existing strand still matches the
// configured signer, before the scheduler is allowed to run.
package bootstrap

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/twine-network/beacon-pulse/lib/chainstore"
	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/randbuffer"
	"github.com/twine-network/beacon-pulse/lib/scheduler"
	"github.com/twine-network/beacon-pulse/lib/signer"
	"github.com/twine-network/beacon-pulse/lib/strand"
)

// strandConfig is the on-disk shape of the strand metadata file, read
// once at bootstrap. PulsePeriodSeconds is immutable for the lifetime
// of the strand once genesis commits; only the free-form Details are
// purely descriptive.
type strandConfig struct {
	PulsePeriodSeconds int            `json:"pulse_period_seconds"`
	Details            map[string]any `json:"details"`
}

// strandExport is the on-disk shape of the strand.json file written
// after the genesis tixel commits. Bootstrap only writes this file;
// later startups load the strand from the chain store instead.
type strandExport struct {
	StrandID         cid.CID        `json:"strand_id"`
	PublicKey        []byte         `json:"public_key"`
	SignatureScheme  string         `json:"signature_scheme"`
	PulsePeriod      int            `json:"pulse_period"`
	Details          map[string]any `json:"details"`
	GenesisTimestamp time.Time      `json:"genesis_timestamp"`
}

// Config collects everything Bootstrap needs to either confirm an
// existing strand or create a new one.
type Config struct {
	Chain  *chainstore.Store
	Signer signer.Signer

	Buffer         *randbuffer.Buffer
	CollectScript  string
	CollectTimeout time.Duration

	// AuxCollectScript is the second, independently-configured
	// randomness source mixed into the genesis tixel, exactly as for
	// every later slot (see [assembler.Config.AuxCollectScript]).
	AuxCollectScript string

	// LeadTime is the operator-configured scheduler lead time
	// (LEAD_TIME_SECONDS). PulsePeriod is not configuration: it is
	// read from the strand configuration file on first bootstrap and
	// thereafter fixed by the strand row itself.
	LeadTime time.Duration

	StrandConfigPath string
	StrandJSONPath   string

	Now    func() time.Time
	Logger *slog.Logger
}

// Result is what Bootstrap hands back to the supervisor: the strand's
// identity and genesis time, and the index the scheduler should start
// from (1 for a strand created just now, whose genesis tixel is index
// 0, or the first future slot for one that already existed).
type Result struct {
	Strand     *strand.Strand
	StartIndex uint64
}

// Run loads the existing strand if one is committed, verifying the
// stored public key still matches cfg.Signer; otherwise it builds,
// signs, and commits the genesis tixel and exports strand.json.
//
// A public key mismatch is fatal per spec: a deployment's signing key
// cannot change out from under an existing strand.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	existing, ok, err := cfg.Chain.LoadStrand(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: loading strand: %w", err)
	}
	if ok {
		if !bytes.Equal(existing.PublicKey, cfg.Signer.PublicKey()) {
			return nil, fmt.Errorf("bootstrap: configured signer's public key does not match the strand's stored public key")
		}
		period := time.Duration(existing.PulsePeriod) * time.Second
		startIndex := scheduler.FirstFutureIndex(existing.GenesisTimestamp, period, cfg.LeadTime, cfg.Now())
		cfg.Logger.Info("strand already bootstrapped", "strand_id", existing.ID, "start_index", startIndex)
		return &Result{Strand: existing, StartIndex: startIndex}, nil
	}

	cfg.Logger.Info("no strand found, bootstrapping genesis tixel")
	return bootstrapGenesis(ctx, cfg)
}

func bootstrapGenesis(ctx context.Context, cfg Config) (*Result, error) {
	config, err := loadStrandConfig(cfg.StrandConfigPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if config.PulsePeriodSeconds < 1 {
		return nil, fmt.Errorf("bootstrap: strand config: pulse_period_seconds must be >= 1, got %d", config.PulsePeriodSeconds)
	}
	period := time.Duration(config.PulsePeriodSeconds) * time.Second

	// The genesis slot is the next aligned boundary, measured against
	// the Unix epoch the same way every later slot is measured against
	// genesis: the smallest k*period such that k*period - leadTime is
	// not before now.
	epoch := time.Unix(0, 0).UTC()
	index := scheduler.FirstFutureIndex(epoch, period, cfg.LeadTime, cfg.Now())
	genesisSlot := epoch.Add(time.Duration(index) * period)

	randomness, err := gatherGenesisRandomness(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: gathering genesis randomness: %w", err)
	}

	canonical, hash, err := strand.BuildPayload(cid.CID{}, 0, genesisSlot, randomness, cid.CID{}, nil)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: building genesis payload: %w", err)
	}

	signature, err := cfg.Signer.Sign(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: signing genesis tixel: %w", err)
	}

	genesis, err := strand.FinalizeTixel(cid.CID{}, 0, genesisSlot, randomness, cid.CID{}, nil, hash, signature)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: finalizing genesis tixel: %w", err)
	}

	st := &strand.Strand{
		ID:               genesis.StrandID,
		PublicKey:        cfg.Signer.PublicKey(),
		SignatureScheme:  signer.Scheme,
		PulsePeriod:      config.PulsePeriodSeconds,
		Details:          config.Details,
		GenesisTimestamp: genesisSlot,
	}

	if err := cfg.Chain.CreateStrand(ctx, st); err != nil {
		return nil, fmt.Errorf("bootstrap: creating strand: %w", err)
	}
	if err := cfg.Chain.Append(ctx, &genesis, canonical); err != nil {
		return nil, fmt.Errorf("bootstrap: committing genesis tixel: %w", err)
	}

	if err := exportStrandJSON(cfg.StrandJSONPath, st); err != nil {
		return nil, fmt.Errorf("bootstrap: exporting strand.json: %w", err)
	}

	cfg.Logger.Info("genesis tixel committed", "strand_id", st.ID, "genesis_timestamp", genesisSlot)
	return &Result{Strand: st, StartIndex: 1}, nil
}

func loadStrandConfig(path string) (*strandConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strand config %s: %w", path, err)
	}
	var config strandConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("parsing strand config %s: %w", path, err)
	}
	return &config, nil
}

func exportStrandJSON(path string, st *strand.Strand) error {
	export := strandExport{
		StrandID:         st.ID,
		PublicKey:        st.PublicKey,
		SignatureScheme:  st.SignatureScheme,
		PulsePeriod:      st.PulsePeriod,
		Details:          st.Details,
		GenesisTimestamp: st.GenesisTimestamp,
	}
	raw, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding strand.json: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// gatherGenesisRandomness applies the same ≥2-source mixing rule as
// every later slot (§4.2): a destructive read of the fresh buffer, or
// one synchronous re-collection on a miss, for the primary source,
// mixed with a synchronously-collected blob from the second
// configured source via SHA-512.
func gatherGenesisRandomness(ctx context.Context, cfg Config) ([64]byte, error) {
	var mixed [64]byte

	primary, ok, err := cfg.Buffer.TakeFresh()
	if err != nil {
		return mixed, fmt.Errorf("reading randomness buffer: %w", err)
	}
	if !ok {
		collectCtx, cancel := context.WithTimeout(ctx, cfg.CollectTimeout)
		defer cancel()
		primary, err = randbuffer.CollectOnce(collectCtx, cfg.CollectScript)
		if err != nil {
			return mixed, fmt.Errorf("synchronous re-collection: %w", err)
		}
	}

	auxCtx, cancel := context.WithTimeout(ctx, cfg.CollectTimeout)
	defer cancel()
	aux, err := randbuffer.CollectOnce(auxCtx, cfg.AuxCollectScript)
	if err != nil {
		return mixed, fmt.Errorf("collecting auxiliary entropy: %w", err)
	}

	mixed = sha512.Sum512(append(primary[:], aux[:]...))
	return mixed, nil
}
