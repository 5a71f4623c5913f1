// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package strand

import (
	"fmt"
	"time"

	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/codec"
)

// DecodePayload reverses [BuildPayload]: given the canonical payload
// bytes stored alongside a tixel, it recovers the fields that went
// into it. Used by the chain store to reconstruct a [Tixel] from its
// stored payload_blob without re-deriving payload_hash by any means
// other than re-hashing the very bytes handed back here.
func DecodePayload(canonicalBytes []byte) (strandID cid.CID, index uint64, slot time.Time, randomness [64]byte, previousLink cid.CID, stitches []Stitch, err error) {
	var p payload
	if err := codec.Unmarshal(canonicalBytes, &p); err != nil {
		return cid.CID{}, 0, time.Time{}, randomness, cid.CID{}, nil, fmt.Errorf("strand: decoding canonical payload: %w", err)
	}
	if len(p.Randomness) != 64 {
		return cid.CID{}, 0, time.Time{}, randomness, cid.CID{}, nil, fmt.Errorf("strand: decoded randomness has %d bytes, want 64", len(p.Randomness))
	}
	copy(randomness[:], p.Randomness)
	return p.StrandID, p.Index, time.Unix(p.Timestamp, 0).UTC(), randomness, p.PreviousLink, p.Stitches, nil
}
