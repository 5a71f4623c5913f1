// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Beacon-keygen generates a 2048-bit RSA PKCS#8 private key for use as
// a beacon strand's local signer, writes it to disk with restrictive
// permissions, and prints its public key fingerprint so the operator
// can record it alongside the strand before first bootstrap.
package main

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"

	"github.com/twine-network/beacon-pulse/lib/signer"
	"github.com/twine-network/beacon-pulse/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		outPath     string
		showVersion bool
	)
	flag.StringVar(&outPath, "out", "", "path to write the PEM-encoded private key (required)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("beacon-keygen %s\n", version.Info())
		return nil
	}
	if outPath == "" {
		return fmt.Errorf("--out is required")
	}

	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", outPath)
	}

	pemBytes, err := signer.GenerateLocalKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if err := os.WriteFile(outPath, pemBytes, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	fingerprint, err := fingerprintOf(pemBytes)
	if err != nil {
		return fmt.Errorf("computing fingerprint: %w", err)
	}

	fmt.Fprintf(os.Stderr, "private key written to %s (mode 0600)\n", outPath)
	fmt.Printf("%s\n", fingerprint)
	return nil
}

// fingerprintOf returns the hex-encoded SHA-256 digest of the DER
// (PKIX) encoding of the public half of the PEM-encoded PKCS#8
// private key in pemBytes.
func fingerprintOf(pemBytes []byte) (string, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return "", fmt.Errorf("not a PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parsing PKCS#8 key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("key is not RSA")
	}

	der, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}

	digest := sha256.Sum256(der)
	return fmt.Sprintf("%x", digest[:]), nil
}
