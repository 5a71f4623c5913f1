// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package strand defines the beacon's data model: the append-only
// authenticated log (a strand) of signed pulses (tixels), and the
// canonical binary encoding used to compute their content addresses.
package strand

import (
	"time"

	"github.com/twine-network/beacon-pulse/lib/cid"
)

// Strand is the singleton root of a deployment's hash chain. It is
// created once, on first bootstrap, and never mutated afterward.
type Strand struct {
	// ID is the content-address of the genesis tixel. It is also the
	// CID carried in [Tixel.CID] for index 0.
	ID cid.CID

	// PublicKey is the DER encoding of the signer's public key.
	PublicKey []byte

	// SignatureScheme names the signing algorithm, e.g.
	// "RSASSA-PKCS1-v1_5-SHA256".
	SignatureScheme string

	// PulsePeriod is the interval between slot boundaries, in seconds.
	PulsePeriod int

	// Details is free-form metadata describing the strand (name,
	// website, description, and any operator-defined fields), read
	// once from the strand configuration file at bootstrap.
	Details map[string]any

	// GenesisTimestamp is the slot time of the genesis tixel.
	GenesisTimestamp time.Time
}

// Stitch is an inclusion by reference of another strand's current tip,
// creating cross-chain linkage.
type Stitch struct {
	ForeignStrandID cid.CID `cbor:"foreign_strand_id"`
	ForeignTixelCID cid.CID `cbor:"foreign_tixel_cid"`
}

// Tixel is one committed pulse: a signed record binding an index,
// a slot timestamp, fresh randomness, a link to the previous tixel,
// and zero or more stitches. Created exactly once per index; never
// mutated; never deleted.
type Tixel struct {
	StrandID     cid.CID
	Index        uint64
	Timestamp    time.Time
	Randomness   [64]byte
	PreviousLink cid.CID // zero value for the genesis tixel
	Stitches     []Stitch
	PayloadHash  [32]byte
	Signature    []byte
	CID          cid.CID
}

// IsGenesis reports whether t is index 0 of its strand.
func (t *Tixel) IsGenesis() bool {
	return t.Index == 0
}
