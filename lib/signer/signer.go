// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer provides the two signing backends a pulse generator
// deployment can be configured with: a local RSA private key, or a
// remote HSM connector reached over HTTP.
package signer

import (
	"context"
)

// Scheme is the signature algorithm both backends implement.
const Scheme = "RSASSA-PKCS1-v1_5-SHA256"

// Signer signs a tixel's payload_hash and reports the public key
// bound to its signatures. Implementations are safe for concurrent
// use; the Pulse Pipeline nonetheless serializes access to a single
// Signer worker so the HSM connector never sees concurrent requests.
type Signer interface {
	// Sign returns the RSASSA-PKCS1-v1_5 signature over hash, a
	// SHA-256 digest. ctx bounds the call — essential for the HSM
	// backend's network round trip.
	Sign(ctx context.Context, hash [32]byte) ([]byte, error)

	// PublicKey returns the DER (PKIX) encoding of the public key
	// that verifies this Signer's signatures. Stable for the lifetime
	// of the Signer.
	PublicKey() []byte
}
