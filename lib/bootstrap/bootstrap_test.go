// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/twine-network/beacon-pulse/lib/bootstrap"
	"github.com/twine-network/beacon-pulse/lib/chainstore"
	"github.com/twine-network/beacon-pulse/lib/randbuffer"
)

// fixedSigner wraps a real RSA key so genesis tixels it signs verify
// against the chain store's signature check.
type fixedSigner struct {
	key       *rsa.PrivateKey
	publicKey []byte
}

func newFixedSigner(t *testing.T) *fixedSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return &fixedSigner{key: key, publicKey: pub}
}

func (f *fixedSigner) Sign(_ context.Context, hash [32]byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, hash[:])
}

func (f *fixedSigner) PublicKey() []byte { return f.publicKey }

func newChain(t *testing.T) *chainstore.Store {
	t.Helper()
	store, err := chainstore.Open(chainstore.Config{Path: filepath.Join(t.TempDir(), "chain.db")})
	if err != nil {
		t.Fatalf("chainstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newBuffer(t *testing.T, fill byte) *randbuffer.Buffer {
	t.Helper()
	buf, err := randbuffer.Open(t.TempDir())
	if err != nil {
		t.Fatalf("randbuffer.Open: %v", err)
	}
	var data [64]byte
	for i := range data {
		data[i] = fill
	}
	if err := buf.Put(data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return buf
}

func writeStrandConfig(t *testing.T, period int, details map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strand-config.json")
	raw, err := json.Marshal(map[string]any{
		"pulse_period_seconds": period,
		"details":              details,
	})
	if err != nil {
		t.Fatalf("marshal strand config: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write strand config: %v", err)
	}
	return path
}

func TestRun_ColdStartCommitsGenesisAndExportsJSON(t *testing.T) {
	chain := newChain(t)
	buf := newBuffer(t, 0x11)
	sig := newFixedSigner(t)

	configPath := writeStrandConfig(t, 60, map[string]any{"name": "ACME"})
	jsonPath := filepath.Join(t.TempDir(), "strand.json")

	now := time.Unix(1000, 0).UTC()
	result, err := bootstrap.Run(context.Background(), bootstrap.Config{
		Chain:            chain,
		Signer:           sig,
		Buffer:           buf,
		CollectScript:    "true",
		CollectTimeout:   time.Second,
		AuxCollectScript: "head -c 64 /dev/zero",
		LeadTime:         2 * time.Second,
		StrandConfigPath: configPath,
		StrandJSONPath:   jsonPath,
		Now:              func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.StartIndex != 1 {
		t.Errorf("StartIndex = %d, want 1", result.StartIndex)
	}
	if result.Strand.PulsePeriod != 60 {
		t.Errorf("PulsePeriod = %d, want 60", result.Strand.PulsePeriod)
	}
	if result.Strand.Details["name"] != "ACME" {
		t.Errorf("Details[name] = %v, want ACME", result.Strand.Details["name"])
	}

	committed, err := chain.Get(context.Background(), result.Strand.ID, 0)
	if err != nil {
		t.Fatalf("Get genesis: %v", err)
	}
	if !committed.StrandID.Equal(result.Strand.ID) {
		t.Errorf("committed StrandID = %s, want %s", committed.StrandID, result.Strand.ID)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("reading strand.json: %v", err)
	}
	var exported map[string]any
	if err := json.Unmarshal(raw, &exported); err != nil {
		t.Fatalf("unmarshaling strand.json: %v", err)
	}
	if exported["strand_id"] != result.Strand.ID.String() {
		t.Errorf("exported strand_id = %v, want %s", exported["strand_id"], result.Strand.ID)
	}
}

func TestRun_ExistingStrandReturnsFirstFutureIndex(t *testing.T) {
	chain := newChain(t)
	buf := newBuffer(t, 0x22)
	sig := newFixedSigner(t)

	configPath := writeStrandConfig(t, 10, map[string]any{"name": "ACME"})
	jsonPath := filepath.Join(t.TempDir(), "strand.json")

	first, err := bootstrap.Run(context.Background(), bootstrap.Config{
		Chain:            chain,
		Signer:           sig,
		Buffer:           buf,
		CollectScript:    "true",
		CollectTimeout:   time.Second,
		AuxCollectScript: "head -c 64 /dev/zero",
		LeadTime:         2 * time.Second,
		StrandConfigPath: configPath,
		StrandJSONPath:   jsonPath,
		Now:              func() time.Time { return time.Unix(1000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	later := first.Strand.GenesisTimestamp.Add(35 * time.Second)
	second, err := bootstrap.Run(context.Background(), bootstrap.Config{
		Chain:            chain,
		Signer:           sig,
		Buffer:           buf,
		CollectScript:    "true",
		CollectTimeout:   time.Second,
		AuxCollectScript: "head -c 64 /dev/zero",
		LeadTime:         2 * time.Second,
		StrandConfigPath: configPath,
		StrandJSONPath:   jsonPath,
		Now:              func() time.Time { return later },
	})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Strand.ID.Equal(first.Strand.ID) {
		t.Error("second Run bootstrapped a new strand instead of loading the existing one")
	}
	if second.StartIndex <= 1 {
		t.Errorf("StartIndex = %d, want an index past genesis given the elapsed time", second.StartIndex)
	}
}

func TestRun_PublicKeyMismatchIsFatal(t *testing.T) {
	chain := newChain(t)
	buf := newBuffer(t, 0x33)
	configPath := writeStrandConfig(t, 60, map[string]any{"name": "ACME"})
	jsonPath := filepath.Join(t.TempDir(), "strand.json")

	_, err := bootstrap.Run(context.Background(), bootstrap.Config{
		Chain:            chain,
		Signer:           newFixedSigner(t),
		Buffer:           buf,
		CollectScript:    "true",
		CollectTimeout:   time.Second,
		AuxCollectScript: "head -c 64 /dev/zero",
		LeadTime:         2 * time.Second,
		StrandConfigPath: configPath,
		StrandJSONPath:   jsonPath,
		Now:              func() time.Time { return time.Unix(1000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	_, err = bootstrap.Run(context.Background(), bootstrap.Config{
		Chain:            chain,
		Signer:           newFixedSigner(t),
		Buffer:           buf,
		CollectScript:    "true",
		CollectTimeout:   time.Second,
		AuxCollectScript: "head -c 64 /dev/zero",
		LeadTime:         2 * time.Second,
		StrandConfigPath: configPath,
		StrandJSONPath:   jsonPath,
		Now:              func() time.Time { return time.Unix(2000, 0).UTC() },
	})
	if err == nil {
		t.Fatal("expected a fatal error on public key mismatch")
	}
}

func TestRun_FailsWhenRandomnessUnavailableAndCollectFails(t *testing.T) {
	chain := newChain(t)
	buf, err := randbuffer.Open(t.TempDir()) // never filled
	if err != nil {
		t.Fatalf("randbuffer.Open: %v", err)
	}
	configPath := writeStrandConfig(t, 60, map[string]any{"name": "ACME"})
	jsonPath := filepath.Join(t.TempDir(), "strand.json")

	_, err = bootstrap.Run(context.Background(), bootstrap.Config{
		Chain:            chain,
		Signer:           newFixedSigner(t),
		Buffer:           buf,
		CollectScript:    "exit 1",
		CollectTimeout:   50 * time.Millisecond,
		LeadTime:         time.Second,
		StrandConfigPath: configPath,
		StrandJSONPath:   jsonPath,
		Now:              func() time.Time { return time.Unix(1000, 0).UTC() },
	})
	if err == nil {
		t.Fatal("expected an error when randomness cannot be gathered")
	}
}
