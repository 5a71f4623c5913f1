// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package cid implements the content-address used to name strands and
// tixels by their bytes.
//
// A CID is the SHA-256 digest of a record's canonical binary encoding
// (see lib/strand), tagged with the kind of record it addresses. The
// tag is mixed into the hash as a domain separator. The only kind is
// [KindTixel]; a strand has no record of its own and is named by its
// genesis tixel's CID.
package cid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind distinguishes what a CID addresses. Mixed into the digest as a
// domain separator.
type Kind byte

const (
	// KindTixel addresses a fully signed tixel record, including the
	// genesis tixel (whose CID also serves as the strand's identity).
	KindTixel Kind = 1
)

// CID is a 32-byte SHA-256 digest naming a record by its bytes.
type CID struct {
	kind   Kind
	digest [32]byte
}

// Of computes the CID of canonical bytes for the given kind.
func Of(kind Kind, canonicalBytes []byte) CID {
	h := sha256.New()
	h.Write([]byte{byte(kind)})
	h.Write(canonicalBytes)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return CID{kind: kind, digest: digest}
}

// IsZero reports whether c is the zero CID, used to represent the
// absent previous_link of a genesis tixel.
func (c CID) IsZero() bool {
	return c.kind == 0 && c.digest == [32]byte{}
}

// String returns the canonical textual form: "tixel-" followed by the
// lowercase hex digest. This is the form written to stitch
// configuration files and JSON exports. The zero CID prints as
// "unknown-" followed by 64 zeros, and [Parse] turns that back into
// the zero CID.
func (c CID) String() string {
	return fmt.Sprintf("%s-%s", kindName(c.kind), hex.EncodeToString(c.digest[:]))
}

// Bytes returns the raw 32-byte digest, without the kind tag.
func (c CID) Bytes() [32]byte {
	return c.digest
}

// Equal reports whether two CIDs name the same record.
func (c CID) Equal(other CID) bool {
	return c.kind == other.kind && c.digest == other.digest
}

// Parse decodes a CID from its textual form as produced by [CID.String].
func Parse(s string) (CID, error) {
	sep := len(s) - 1
	for sep >= 0 && s[sep] != '-' {
		sep--
	}
	if sep <= 0 {
		return CID{}, fmt.Errorf("cid: %q: missing kind prefix", s)
	}

	kind, err := kindFromName(s[:sep])
	if err != nil {
		return CID{}, fmt.Errorf("cid: %q: %w", s, err)
	}

	raw, err := hex.DecodeString(s[sep+1:])
	if err != nil {
		return CID{}, fmt.Errorf("cid: %q: invalid hex digest: %w", s, err)
	}
	if len(raw) != 32 {
		return CID{}, fmt.Errorf("cid: %q: digest must be 32 bytes, got %d", s, len(raw))
	}

	var digest [32]byte
	copy(digest[:], raw)
	if kind == 0 && digest != ([32]byte{}) {
		return CID{}, fmt.Errorf("cid: %q: kind %q is only valid for the zero CID", s, s[:sep])
	}
	return CID{kind: kind, digest: digest}, nil
}

func kindName(k Kind) string {
	switch k {
	case KindTixel:
		return "tixel"
	default:
		return "unknown"
	}
}

func kindFromName(name string) (Kind, error) {
	switch name {
	case "tixel":
		return KindTixel, nil
	case "unknown":
		return 0, nil
	default:
		return 0, fmt.Errorf("unrecognized kind %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler so a CID can be used
// directly as a CBOR or JSON string field.
func (c CID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
