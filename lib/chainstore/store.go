// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package chainstore is the beacon's single-writer SQLite-backed
// persistence layer: the one strand row and the append-only sequence
// of tixel rows that make up its hash chain.
//
// The pool behind a Store is sized to 1 and opened with
// synchronous=FULL (see [lib/sqlitepool]): a committed tixel write is
// the sole durable record that a signed pulse exists, so it must
// survive an OS crash, not just a process crash. SQLite's own
// single-writer serialization, combined with IMMEDIATE transactions,
// gives [Store.Append] the same guarantee a row-level lock would: two
// concurrent appends for the same index can never both succeed.
package chainstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/twine-network/beacon-pulse/lib/beaconerr"
	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/clock"
	"github.com/twine-network/beacon-pulse/lib/signer"
	"github.com/twine-network/beacon-pulse/lib/sqlitepool"
	"github.com/twine-network/beacon-pulse/lib/strand"
)

// Store is the chain store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config configures [Open].
type Config struct {
	// Path is the SQLite database file path. Use ":memory:" in tests.
	Path string

	Logger *slog.Logger
	Clock  clock.Clock
}

// Open opens (creating if necessary) the chain store database at
// cfg.Path and ensures its schema exists. The writer pool is sized to
// 1: the chain store has no use for concurrent writers, and a single
// connection makes SQLite's own locking sufficient to serialize
// appends without an additional in-process mutex.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        cfg.Path,
		PoolSize:    1,
		Synchronous: "FULL",
		Logger:      logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chainstore: %w", err)
	}

	return &Store{pool: pool, clock: c, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// LoadStrand returns the deployment's singleton strand row, if one
// has been created. ok is false (with a nil error) when the database
// has never been bootstrapped.
func (s *Store) LoadStrand(ctx context.Context) (*strand.Strand, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, beaconerr.New(beaconerr.Transient, "chainstore.LoadStrand", err)
	}
	defer s.pool.Put(conn)

	var (
		found      bool
		id         string
		publicKey  []byte
		scheme     string
		period     int64
		detailsRaw string
		genesisTS  int64
	)

	err = sqlitex.Execute(conn, `SELECT id, public_key, scheme, period, details_json, genesis_ts FROM strand LIMIT 1`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			id = stmt.ColumnText(0)
			publicKey = []byte(stmt.ColumnText(1))
			scheme = stmt.ColumnText(2)
			period = stmt.ColumnInt64(3)
			detailsRaw = stmt.ColumnText(4)
			genesisTS = stmt.ColumnInt64(5)
			return nil
		},
	})
	if err != nil {
		return nil, false, beaconerr.New(beaconerr.Transient, "chainstore.LoadStrand", err)
	}
	if !found {
		return nil, false, nil
	}

	parsedID, err := cid.Parse(id)
	if err != nil {
		return nil, false, beaconerr.New(beaconerr.ChainViolation, "chainstore.LoadStrand", fmt.Errorf("stored strand id %q: %w", id, err))
	}

	var details map[string]any
	if err := json.Unmarshal([]byte(detailsRaw), &details); err != nil {
		return nil, false, beaconerr.New(beaconerr.ChainViolation, "chainstore.LoadStrand", fmt.Errorf("decoding details_json: %w", err))
	}

	result := &strand.Strand{
		ID:              parsedID,
		PublicKey:       publicKey,
		SignatureScheme: scheme,
		PulsePeriod:     int(period),
		Details:         details,
	}
	result.GenesisTimestamp = timeFromUnix(genesisTS)
	return result, true, nil
}

// CreateStrand inserts the singleton strand row. Called exactly once,
// by the bootstrapper, when [LoadStrand] reports none exists.
func (s *Store) CreateStrand(ctx context.Context, st *strand.Strand) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return beaconerr.New(beaconerr.Transient, "chainstore.CreateStrand", err)
	}
	defer s.pool.Put(conn)

	detailsJSON, err := json.Marshal(st.Details)
	if err != nil {
		return beaconerr.New(beaconerr.Configuration, "chainstore.CreateStrand", fmt.Errorf("encoding details: %w", err))
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO strand (id, public_key, scheme, period, details_json, genesis_ts)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			st.ID.String(),
			st.PublicKey,
			st.SignatureScheme,
			int64(st.PulsePeriod),
			string(detailsJSON),
			st.GenesisTimestamp.UTC().Unix(),
		},
	})
	if err != nil {
		return beaconerr.New(beaconerr.Transient, "chainstore.CreateStrand", err)
	}
	return nil
}

// Tip returns the highest-index committed tixel for the strand. ok is
// false when no tixel has been committed yet.
func (s *Store) Tip(ctx context.Context) (index uint64, tipCID cid.CID, ok bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, cid.CID{}, false, beaconerr.New(beaconerr.Transient, "chainstore.Tip", err)
	}
	defer s.pool.Put(conn)

	var cidText string
	execErr := sqlitex.Execute(conn, `SELECT idx, cid FROM tixel ORDER BY idx DESC LIMIT 1`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ok = true
			index = uint64(stmt.ColumnInt64(0))
			cidText = stmt.ColumnText(1)
			return nil
		},
	})
	if execErr != nil {
		return 0, cid.CID{}, false, beaconerr.New(beaconerr.Transient, "chainstore.Tip", execErr)
	}
	if !ok {
		return 0, cid.CID{}, false, nil
	}

	tipCID, err = cid.Parse(cidText)
	if err != nil {
		return 0, cid.CID{}, false, beaconerr.New(beaconerr.ChainViolation, "chainstore.Tip", err)
	}
	return index, tipCID, true, nil
}

// Append commits a new tixel, enforcing the chain invariants within a
// single IMMEDIATE transaction: the tixel's index must be exactly one
// past the current tip, its previous_link must equal the current
// tip's CID (or both must be absent, for the genesis tixel), and its
// signature must verify against the strand's stored public key over
// the SHA-256 of canonicalPayload.
//
// If the tixel's index is already committed -- two pulse pipelines
// raced to append the same index and this one lost -- that is
// [beaconerr.Conflict], not a chain violation: the loser should skip
// the slot and move on, not treat it as corruption. Every other
// invariant failure (a gap in the index sequence, a mismatched
// previous_link, a bad signature) is [beaconerr.ChainViolation] — it
// indicates corruption or a bug upstream of signing, not a condition
// to retry. SQLite's own IMMEDIATE-transaction serialization means the
// index re-check above should always be what catches a genuine race;
// the UNIQUE constraint on the cid column below is a second,
// defense-in-depth Conflict path for a collision the index check
// itself would not foresee.
func (s *Store) Append(ctx context.Context, t *strand.Tixel, canonicalPayload []byte) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return beaconerr.New(beaconerr.Transient, "chainstore.Append", err)
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return beaconerr.New(beaconerr.Transient, "chainstore.Append", err)
	}
	defer endFn(&err)

	var (
		tipFound bool
		tipIndex int64
		tipCID   string
	)
	queryErr := sqlitex.Execute(conn, `SELECT idx, cid FROM tixel WHERE strand_id = ? ORDER BY idx DESC LIMIT 1`, &sqlitex.ExecOptions{
		Args: []any{t.StrandID.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			tipFound = true
			tipIndex = stmt.ColumnInt64(0)
			tipCID = stmt.ColumnText(1)
			return nil
		},
	})
	if queryErr != nil {
		err = beaconerr.New(beaconerr.Transient, "chainstore.Append", queryErr)
		return err
	}

	switch {
	case !tipFound && t.Index != 0:
		err = beaconerr.Newf(beaconerr.ChainViolation, "chainstore.Append", "strand has no tip, but tixel has index %d (want 0)", t.Index)
		return err
	case !tipFound && !t.PreviousLink.IsZero():
		err = beaconerr.Newf(beaconerr.ChainViolation, "chainstore.Append", "genesis tixel has previous_link %s (want none)", t.PreviousLink)
		return err
	case tipFound && t.Index <= uint64(tipIndex):
		// The index this tixel wants is already committed -- another
		// writer got there first. This is the duplicate-writer race,
		// not a corrupted chain: Conflict, not ChainViolation, per
		// spec ("Conflict if the index is already present").
		err = beaconerr.Newf(beaconerr.Conflict, "chainstore.Append", "index %d already committed (tip is %d)", t.Index, tipIndex)
		return err
	case tipFound && t.Index != uint64(tipIndex)+1:
		err = beaconerr.Newf(beaconerr.ChainViolation, "chainstore.Append", "tip index is %d, tixel has index %d (want %d)", tipIndex, t.Index, tipIndex+1)
		return err
	case tipFound:
		if t.PreviousLink.String() != tipCID {
			err = beaconerr.Newf(beaconerr.ChainViolation, "chainstore.Append", "tip cid is %s, tixel previous_link is %s", tipCID, t.PreviousLink)
			return err
		}
	}

	var publicKey []byte
	strandErr := sqlitex.Execute(conn, `SELECT public_key FROM strand WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{t.StrandID.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			publicKey = []byte(stmt.ColumnText(0))
			return nil
		},
	})
	if strandErr != nil {
		err = beaconerr.New(beaconerr.Transient, "chainstore.Append", strandErr)
		return err
	}
	if publicKey == nil {
		err = beaconerr.Newf(beaconerr.ChainViolation, "chainstore.Append", "no strand row for %s", t.StrandID)
		return err
	}

	payloadHash := sha256Of(canonicalPayload)
	if verifyErr := signer.Verify(publicKey, payloadHash, t.Signature); verifyErr != nil {
		err = beaconerr.New(beaconerr.ChainViolation, "chainstore.Append", verifyErr)
		return err
	}

	insertErr := sqlitex.Execute(conn, `
		INSERT INTO tixel (strand_id, idx, cid, timestamp, payload_blob, signature_blob)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			t.StrandID.String(),
			int64(t.Index),
			t.CID.String(),
			t.Timestamp.UTC().Unix(),
			canonicalPayload,
			t.Signature,
		},
	})
	if insertErr != nil {
		if isUniqueConstraintError(insertErr) {
			err = beaconerr.New(beaconerr.Conflict, "chainstore.Append", insertErr)
			return err
		}
		err = beaconerr.New(beaconerr.Transient, "chainstore.Append", insertErr)
		return err
	}

	return nil
}

// Get returns the tixel at the given index, or an error if it does
// not exist.
func (s *Store) Get(ctx context.Context, strandID cid.CID, index uint64) (*strand.Tixel, error) {
	return s.queryOne(ctx, `SELECT idx, cid, timestamp, payload_blob, signature_blob FROM tixel WHERE strand_id = ? AND idx = ?`, strandID.String(), int64(index))
}

// GetByCID returns the tixel with the given CID, or an error if it
// does not exist.
func (s *Store) GetByCID(ctx context.Context, c cid.CID) (*strand.Tixel, error) {
	return s.queryOne(ctx, `SELECT idx, cid, timestamp, payload_blob, signature_blob FROM tixel WHERE cid = ?`, c.String())
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*strand.Tixel, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, beaconerr.New(beaconerr.Transient, "chainstore.queryOne", err)
	}
	defer s.pool.Put(conn)

	var (
		found         bool
		index         int64
		cidText       string
		payloadBlob   []byte
		signatureBlob []byte
	)
	execErr := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			index = stmt.ColumnInt64(0)
			cidText = stmt.ColumnText(1)
			// Column 2 is timestamp, reconstructed from the payload
			// blob instead of trusted independently below.
			payloadBlob = make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, payloadBlob)
			signatureBlob = make([]byte, stmt.ColumnLen(4))
			stmt.ColumnBytes(4, signatureBlob)
			return nil
		},
	})
	if execErr != nil {
		return nil, beaconerr.New(beaconerr.Transient, "chainstore.queryOne", execErr)
	}
	if !found {
		return nil, beaconerr.Newf(beaconerr.ChainViolation, "chainstore.queryOne", "no tixel matched %q", query)
	}

	tixelCID, err := cid.Parse(cidText)
	if err != nil {
		return nil, beaconerr.New(beaconerr.ChainViolation, "chainstore.queryOne", err)
	}

	strandID, decodedIndex, slot, randomness, previousLink, stitches, err := strand.DecodePayload(payloadBlob)
	if err != nil {
		return nil, beaconerr.New(beaconerr.ChainViolation, "chainstore.queryOne", err)
	}
	if decodedIndex != uint64(index) {
		return nil, beaconerr.Newf(beaconerr.ChainViolation, "chainstore.queryOne", "row index %d does not match payload index %d", index, decodedIndex)
	}

	payloadHash := sha256Of(payloadBlob)

	return &strand.Tixel{
		StrandID:     strandID,
		Index:        decodedIndex,
		Timestamp:    slot,
		Randomness:   randomness,
		PreviousLink: previousLink,
		Stitches:     stitches,
		PayloadHash:  payloadHash,
		Signature:    signatureBlob,
		CID:          tixelCID,
	}, nil
}
