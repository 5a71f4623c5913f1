// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Local signs with an in-process RSA private key loaded from a
// PEM-encoded PKCS#8 file. Signing is infallible once the key is
// loaded: there is no network round trip to fail transiently.
type Local struct {
	key       *rsa.PrivateKey
	publicKey []byte
}

// LoadLocal reads a PEM-encoded PKCS#8 RSA private key from path.
func LoadLocal(path string) (*Local, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: reading %s: %w", path, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signer: %s: not a PEM file", path)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signer: %s: parsing PKCS#8 key: %w", path, err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: %s: key is not RSA", path)
	}

	publicKey, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("signer: %s: marshaling public key: %w", path, err)
	}

	return &Local{key: rsaKey, publicKey: publicKey}, nil
}

// Sign implements [Signer].
func (l *Local) Sign(_ context.Context, hash [32]byte) ([]byte, error) {
	signature, err := rsa.SignPKCS1v15(rand.Reader, l.key, crypto.SHA256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("signer: local sign: %w", err)
	}
	return signature, nil
}

// PublicKey implements [Signer].
func (l *Local) PublicKey() []byte {
	return l.publicKey
}

// Verify checks that signature is a valid RSASSA-PKCS1-v1_5 signature
// over hash under the RSA public key encoded (PKIX, DER) in
// publicKeyDER. It is the counterpart to [Signer.Sign] and
// [Signer.PublicKey] — the Chain Store calls it on every append so
// that a bug upstream of signing (a stale key, a corrupted payload)
// surfaces as a chain violation instead of committing silently.
func Verify(publicKeyDER []byte, hash [32]byte, signature []byte) error {
	parsed, err := x509.ParsePKIXPublicKey(publicKeyDER)
	if err != nil {
		return fmt.Errorf("signer: parsing public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signer: public key is not RSA")
	}
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, hash[:], signature); err != nil {
		return fmt.Errorf("signer: signature verification failed: %w", err)
	}
	return nil
}

// GenerateLocalKey generates a new 2048-bit RSA key pair and returns
// its PEM-encoded PKCS#8 private key bytes. Used by the operator
// keygen tool and by tests that need a fresh signer without a
// pre-existing key file.
func GenerateLocalKey() (pemBytes []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("signer: generating key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("signer: marshaling key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}
