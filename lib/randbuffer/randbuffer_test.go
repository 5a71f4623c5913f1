// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package randbuffer_test

import (
	"context"
	"testing"
	"time"

	"github.com/twine-network/beacon-pulse/lib/randbuffer"
)

func TestTakeFresh_EmptyBufferReturnsNotOK(t *testing.T) {
	buffer, err := randbuffer.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, ok, err := buffer.TakeFresh()
	if err != nil {
		t.Fatalf("TakeFresh: %v", err)
	}
	if ok {
		t.Fatal("TakeFresh on empty buffer returned ok=true")
	}
}

func TestPutThenTakeFresh(t *testing.T) {
	buffer, err := randbuffer.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var blob [randbuffer.BlobSize]byte
	for i := range blob {
		blob[i] = byte(i)
	}

	if err := buffer.Put(blob); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := buffer.TakeFresh()
	if err != nil {
		t.Fatalf("TakeFresh: %v", err)
	}
	if !ok {
		t.Fatal("TakeFresh returned ok=false after Put")
	}
	if got != blob {
		t.Error("TakeFresh returned different bytes than Put")
	}
}

func TestTakeFresh_DestructiveRead(t *testing.T) {
	buffer, err := randbuffer.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var blob [randbuffer.BlobSize]byte
	if err := buffer.Put(blob); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := buffer.TakeFresh()
	if err != nil || !ok {
		t.Fatalf("first TakeFresh: ok=%v err=%v", ok, err)
	}

	_, ok, err = buffer.TakeFresh()
	if err != nil {
		t.Fatalf("second TakeFresh: %v", err)
	}
	if ok {
		t.Fatal("second TakeFresh returned ok=true; slot should be consumed")
	}
}

func TestPutOverwritesUnconsumedBlob(t *testing.T) {
	buffer, err := randbuffer.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var first, second [randbuffer.BlobSize]byte
	first[0] = 1
	second[0] = 2

	if err := buffer.Put(first); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := buffer.Put(second); err != nil {
		t.Fatalf("Put second: %v", err)
	}

	got, ok, err := buffer.TakeFresh()
	if err != nil || !ok {
		t.Fatalf("TakeFresh: ok=%v err=%v", ok, err)
	}
	if got != second {
		t.Error("TakeFresh returned the overwritten blob, not the latest Put")
	}
}

func TestCollectOnce_Success(t *testing.T) {
	script := `head -c 64 /dev/zero`
	data, err := randbuffer.CollectOnce(context.Background(), script)
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if data != [randbuffer.BlobSize]byte{} {
		t.Error("expected all-zero blob from /dev/zero")
	}
}

func TestCollectOnce_WrongLength(t *testing.T) {
	script := `head -c 10 /dev/zero`
	_, err := randbuffer.CollectOnce(context.Background(), script)
	if err == nil {
		t.Fatal("expected error for short output")
	}
}

func TestCollectOnce_NonZeroExit(t *testing.T) {
	script := `exit 1`
	_, err := randbuffer.CollectOnce(context.Background(), script)
	if err == nil {
		t.Fatal("expected error for non-zero exit status")
	}
}

func TestCollectOnce_RespectsContextTimeout(t *testing.T) {
	script := `sleep 5`
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := randbuffer.CollectOnce(ctx, script)
	if err == nil {
		t.Fatal("expected error when command exceeds context deadline")
	}
}
