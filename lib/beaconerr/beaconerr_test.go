// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package beaconerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/twine-network/beacon-pulse/lib/beaconerr"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := beaconerr.New(beaconerr.Transient, "chainstore.append", errors.New("db is locked"))
	if !errors.Is(err, beaconerr.ErrTransient) {
		t.Error("errors.Is did not match ErrTransient")
	}
	if errors.Is(err, beaconerr.ErrConflict) {
		t.Error("errors.Is matched the wrong sentinel")
	}
}

func TestErrorsAsUnwrapsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", beaconerr.New(beaconerr.SignerFatal, "signer.Sign", errors.New("auth rejected")))

	kind, ok := beaconerr.KindOf(err)
	if !ok {
		t.Fatal("KindOf did not find a *Error in the chain")
	}
	if kind != beaconerr.SignerFatal {
		t.Errorf("kind = %v, want SignerFatal", kind)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	_, ok := beaconerr.KindOf(errors.New("plain"))
	if ok {
		t.Error("KindOf found a Kind in a plain error")
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := beaconerr.New(beaconerr.Conflict, "chainstore.append", errors.New("index 4 already exists"))
	want := "conflict: chainstore.append: index 4 already exists"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
