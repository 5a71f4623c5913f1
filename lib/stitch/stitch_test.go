// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package stitch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/stitch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stitches.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoader_ReloadParsesEntries(t *testing.T) {
	path := writeConfig(t, `
stitches:
  - resolver: https://a.example/tip
    strand: tixel-00000000000000000000000000000000000000000000000000000000000000
    stop: false
  - resolver: https://b.example/tip
    strand: tixel-00000000000000000000000000000000000000000000000000000000000001
    stop: true
`)

	loader := stitch.NewLoader(path, nil)
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	cfg := loader.Current()
	if len(cfg.Stitches) != 2 {
		t.Fatalf("len(Stitches) = %d, want 2", len(cfg.Stitches))
	}

	active := cfg.Active()
	if len(active) != 1 {
		t.Fatalf("len(Active()) = %d, want 1", len(active))
	}
	if active[0].Resolver != "https://a.example/tip" {
		t.Errorf("Active()[0].Resolver = %q", active[0].Resolver)
	}
}

func TestLoader_ReloadKeepsPreviousOnMalformed(t *testing.T) {
	path := writeConfig(t, `
stitches:
  - resolver: https://a.example/tip
    strand: tixel-00000000000000000000000000000000000000000000000000000000000000
`)

	loader := stitch.NewLoader(path, nil)
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	before := loader.Current()

	if err := os.WriteFile(path, []byte("not: [valid: yaml: at all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("expected error reloading malformed config")
	}

	after := loader.Current()
	if len(after.Stitches) != len(before.Stitches) {
		t.Fatalf("Current() changed after malformed reload: before=%d after=%d", len(before.Stitches), len(after.Stitches))
	}
}

func TestLoader_ReloadKeepsPreviousOnMissingFile(t *testing.T) {
	loader := stitch.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err := loader.Reload(); err == nil {
		t.Fatal("expected error reloading missing file")
	}
	if got := loader.Current(); len(got.Stitches) != 0 {
		t.Errorf("Current().Stitches = %v, want empty", got.Stitches)
	}
}

func TestFetcher_FetchAllOmitsFailuresPreservesOrder(t *testing.T) {
	strandA := cid.Of(cid.KindTixel, []byte("strand-a"))
	strandC := cid.Of(cid.KindTixel, []byte("strand-c"))
	tipA := cid.Of(cid.KindTixel, []byte("tip-a"))
	tipC := cid.Of(cid.KindTixel, []byte("tip-c"))

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"cid":%q}`, tipA.String())
	}))
	defer ok.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprintf(w, `{"cid":"tixel-deadbeef"}`)
	}))
	defer slow.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	third := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"cid":%q}`, tipC.String())
	}))
	defer third.Close()

	entries := []stitch.Entry{
		{Resolver: ok.URL, Strand: strandA.String()},
		{Resolver: slow.URL, Strand: strandA.String()},
		{Resolver: broken.URL, Strand: strandA.String()},
		{Resolver: third.URL, Strand: strandC.String()},
	}

	fetcher := stitch.NewFetcher(50*time.Millisecond, nil)
	got := fetcher.FetchAll(context.Background(), entries)

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2; got %+v", len(got), got)
	}
	if !got[0].ForeignStrandID.Equal(strandA) || !got[0].ForeignTixelCID.Equal(tipA) {
		t.Errorf("got[0] = %+v", got[0])
	}
	if !got[1].ForeignStrandID.Equal(strandC) || !got[1].ForeignTixelCID.Equal(tipC) {
		t.Errorf("got[1] = %+v", got[1])
	}
}
