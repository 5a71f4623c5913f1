// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package cid_test

import (
	"testing"

	"github.com/twine-network/beacon-pulse/lib/cid"
)

func TestOf_Deterministic(t *testing.T) {
	a := cid.Of(cid.KindTixel, []byte("same payload"))
	b := cid.Of(cid.KindTixel, []byte("same payload"))
	if !a.Equal(b) {
		t.Fatalf("Of() is not deterministic: %s != %s", a, b)
	}
}

func TestOf_DifferentBytesDifferentCID(t *testing.T) {
	a := cid.Of(cid.KindTixel, []byte("payload one"))
	b := cid.Of(cid.KindTixel, []byte("payload two"))
	if a.Equal(b) {
		t.Fatalf("distinct payloads produced the same CID: %s", a)
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	original := cid.Of(cid.KindTixel, []byte("round trip me"))

	parsed, err := cid.Parse(original.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed.Equal(original) {
		t.Fatalf("round trip mismatch: %s != %s", parsed, original)
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"no-kind-prefix-missing-hyphen-but-hex",
		"tixel-notahexdigest",
		"tixel-" + "ab", // too short
		"bogus-0000000000000000000000000000000000000000000000000000000000000000",
	}
	for _, s := range cases {
		if _, err := cid.Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestZeroCIDIsZero(t *testing.T) {
	var zero cid.CID
	if !zero.IsZero() {
		t.Error("zero value CID.IsZero() = false, want true")
	}
	nonZero := cid.Of(cid.KindTixel, []byte("x"))
	if nonZero.IsZero() {
		t.Error("computed CID.IsZero() = true, want false")
	}
}
