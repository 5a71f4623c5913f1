// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package beaconerr defines the error kinds shared across the pulse
// generator's components, so the Pulse Pipeline can decide SKIP vs
// FATAL from a single tag rather than inspecting error text.
package beaconerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the pipeline must react to it.
type Kind int

const (
	// Transient covers I/O failures expected to clear on retry: the
	// database is unreachable, the HSM connector is down, a stitch
	// resolver is down. Retried within the lead-time budget; if the
	// budget exhausts, the slot is skipped.
	Transient Kind = iota + 1

	// ChainViolation covers a data invariant broken in storage: a
	// previous-link mismatch, a gap in the index sequence, or a
	// signature that does not verify. Fatal — it
	// suggests corruption or a second writer.
	ChainViolation

	// Conflict covers an append that lost a race to another writer
	// for the same index. Not corruption by itself; the caller
	// decides whether to retry at the next index.
	Conflict

	// Configuration covers a missing key or malformed configuration
	// detected at bootstrap. Fatal at startup; never at runtime.
	Configuration

	// SignerFatal covers an HSM authentication rejection. The slot is
	// skipped and an operator alarm is raised, but the process keeps
	// running in case credentials are rotated.
	SignerFatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case ChainViolation:
		return "chain_violation"
	case Conflict:
		return "conflict"
	case Configuration:
		return "configuration"
	case SignerFatal:
		return "signer_fatal"
	default:
		return "unknown"
	}
}

// Error is a beacon error tagged with a [Kind]. It wraps an underlying
// cause and supports errors.Is against the package's sentinel values
// (ErrTransient, ErrChainViolation, ...) and errors.As against *Error.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "chainstore.append"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind. This
// makes errors.Is(err, beaconerr.ErrTransient) true for any *Error
// with Kind == Transient, regardless of its Op or wrapped cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel values for use with errors.Is. Each carries only a Kind;
// compare against these rather than constructing *Error literals.
var (
	ErrTransient      = &Error{Kind: Transient}
	ErrChainViolation = &Error{Kind: ChainViolation}
	ErrConflict       = &Error{Kind: Conflict}
	ErrConfiguration  = &Error{Kind: Configuration}
	ErrSignerFatal    = &Error{Kind: SignerFatal}
)

// New wraps err with the given kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted message in place of a wrapped error.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error,
// otherwise false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
