// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides this module's standard CBOR encoding configuration.
//
// The beacon pulse generator uses two serialization formats with a
// clear boundary:
//
//   - JSON for external interfaces: strand metadata, stitch
//     configuration, the strand export file, and CLI output.
//   - CBOR for the canonical binary form of a tixel's payload — the
//     bytes that are hashed to produce payload_hash and, after
//     signing, the record's CID. Determinism here is load-bearing:
//     two implementations assembling the same logical pulse must
//     produce byte-identical encodings or their CIDs diverge.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. This is
//     the tag used on [strand.Payload] and its nested types, since
//     their only serialization is the canonical binary form.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
