// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package strand

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/codec"
)

// payload is the canonical binary form of everything in a tixel except
// its signature and its own CID. Every field carries a `cbor` tag: this
// type is only ever serialized through [lib/codec], and its byte
// representation is load-bearing — it is the exact input to
// payload_hash, so changing a tag or a field's presence here changes
// every CID computed from it.
type payload struct {
	StrandID     cid.CID  `cbor:"strand_id"`
	Index        uint64   `cbor:"index"`
	Timestamp    int64    `cbor:"timestamp"` // Unix seconds, UTC
	Randomness   []byte   `cbor:"randomness"`
	PreviousLink cid.CID  `cbor:"previous_link"`
	Stitches     []Stitch `cbor:"stitches"`
}

// signedRecord is the canonical binary form of a fully signed tixel,
// used to compute its CID. It embeds the unsigned payload plus the
// fields produced by signing.
type signedRecord struct {
	payload
	PayloadHash [32]byte `cbor:"payload_hash"`
	Signature   []byte   `cbor:"signature"`
}

// BuildPayload assembles the canonical unsigned payload for a tixel at
// the given slot, and returns both the encoded bytes and the SHA-256
// payload_hash that the signer signs. randomness must be exactly 64
// bytes (the mixed output produced by the pulse assembler).
//
// The genesis tixel (index 0) is self-referential: its own CID
// becomes the strand's identity, so that identity cannot be known
// yet when its payload is hashed. Callers building the genesis
// payload must pass the zero CID for strandID; [FinalizeTixel]
// resolves the genesis tixel's real strand_id (equal to its own CID)
// once the signed record's bytes — and therefore its CID — exist.
func BuildPayload(strandID cid.CID, index uint64, slot time.Time, randomness [64]byte, previousLink cid.CID, stitches []Stitch) (canonicalBytes []byte, payloadHash [32]byte, err error) {
	if index == 0 && !previousLink.IsZero() {
		return nil, payloadHash, fmt.Errorf("strand: genesis tixel must not carry a previous_link")
	}
	if index != 0 && previousLink.IsZero() {
		return nil, payloadHash, fmt.Errorf("strand: non-genesis tixel must carry a previous_link")
	}
	if index == 0 && !strandID.IsZero() {
		return nil, payloadHash, fmt.Errorf("strand: genesis tixel's payload must carry the zero strand_id, not its eventual self-reference")
	}
	if index != 0 && strandID.IsZero() {
		return nil, payloadHash, fmt.Errorf("strand: non-genesis tixel must carry a strand_id")
	}

	p := payload{
		StrandID:     strandID,
		Index:        index,
		Timestamp:    slot.UTC().Unix(),
		Randomness:   randomness[:],
		PreviousLink: previousLink,
		Stitches:     stitches,
	}

	canonicalBytes, err = codec.Marshal(p)
	if err != nil {
		return nil, payloadHash, fmt.Errorf("strand: encoding canonical payload: %w", err)
	}

	payloadHash = sha256.Sum256(canonicalBytes)
	return canonicalBytes, payloadHash, nil
}

// FinalizeTixel packages a signed payload into a complete [Tixel] and
// computes its CID over the canonical encoding of the fully signed
// record. This is the CID stored in the chain store and, for the
// genesis tixel, the strand's own identity.
//
// strandID must match what was passed to [BuildPayload] for the same
// record: the zero CID for the genesis tixel, the real strand_id
// otherwise. The returned Tixel's StrandID field always carries the
// real, resolved strand identity — for the genesis tixel this is its
// own just-computed CID, even though the hashed payload embeds the
// zero sentinel.
func FinalizeTixel(strandID cid.CID, index uint64, slot time.Time, randomness [64]byte, previousLink cid.CID, stitches []Stitch, payloadHash [32]byte, signature []byte) (Tixel, error) {
	record := signedRecord{
		payload: payload{
			StrandID:     strandID,
			Index:        index,
			Timestamp:    slot.UTC().Unix(),
			Randomness:   randomness[:],
			PreviousLink: previousLink,
			Stitches:     stitches,
		},
		PayloadHash: payloadHash,
		Signature:   signature,
	}

	encoded, err := codec.Marshal(record)
	if err != nil {
		return Tixel{}, fmt.Errorf("strand: encoding signed record: %w", err)
	}

	tixelCID := cid.Of(cid.KindTixel, encoded)
	resolvedStrandID := strandID
	if index == 0 {
		resolvedStrandID = tixelCID
	}

	return Tixel{
		StrandID:     resolvedStrandID,
		Index:        index,
		Timestamp:    slot.UTC(),
		Randomness:   randomness,
		PreviousLink: previousLink,
		Stitches:     stitches,
		PayloadHash:  payloadHash,
		Signature:    signature,
		CID:          tixelCID,
	}, nil
}

// Roundtrip re-encodes a tixel's signed record and recomputes its CID,
// used to verify the canonical-serialization invariant
// cid(deserialize(serialize(T))) == cid(T).
func Roundtrip(t Tixel) (cid.CID, error) {
	hashedStrandID := t.StrandID
	if t.IsGenesis() {
		hashedStrandID = cid.CID{}
	}

	record := signedRecord{
		payload: payload{
			StrandID:     hashedStrandID,
			Index:        t.Index,
			Timestamp:    t.Timestamp.UTC().Unix(),
			Randomness:   t.Randomness[:],
			PreviousLink: t.PreviousLink,
			Stitches:     t.Stitches,
		},
		PayloadHash: t.PayloadHash,
		Signature:   t.Signature,
	}

	encoded, err := codec.Marshal(record)
	if err != nil {
		return cid.CID{}, fmt.Errorf("strand: encoding signed record: %w", err)
	}

	decoded := signedRecord{}
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		return cid.CID{}, fmt.Errorf("strand: decoding signed record: %w", err)
	}

	reencoded, err := codec.Marshal(decoded)
	if err != nil {
		return cid.CID{}, fmt.Errorf("strand: re-encoding signed record: %w", err)
	}

	return cid.Of(cid.KindTixel, reencoded), nil
}
