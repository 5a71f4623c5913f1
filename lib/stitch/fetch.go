// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/twine-network/beacon-pulse/lib/cid"
	"github.com/twine-network/beacon-pulse/lib/netutil"
	"github.com/twine-network/beacon-pulse/lib/strand"
)

// tipResponse is the resolver's response shape: the foreign strand's
// current tip CID.
type tipResponse struct {
	CID string `json:"cid"`
}

// Fetcher resolves the current tip of each active stitch over HTTP.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher returns a Fetcher that bounds each resolver request to
// timeout. Callers must choose a timeout strictly less than half the
// strand's pulse period, so that a hung resolver can never by itself
// push pulse assembly past its lead-time deadline.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// FetchAll resolves the tip of every entry in entries concurrently;
// it does not look at Stop, so callers pass [Config.Active]. A resolver that errors, times out, or returns
// an unparsable CID is omitted from the result rather than failing
// the call — per the inclusion rule, a stitch is best-effort. The
// returned slice preserves the order of entries.
func (f *Fetcher) FetchAll(ctx context.Context, entries []Entry) []strand.Stitch {
	results := make([]*strand.Stitch, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry Entry) {
			defer wg.Done()
			s, err := f.fetchOne(ctx, entry)
			if err != nil {
				f.logger.Warn("stitch fetch failed, omitting", "resolver", entry.Resolver, "strand", entry.Strand, "error", err)
				return
			}
			results[i] = &s
		}(i, entry)
	}
	wg.Wait()

	out := make([]strand.Stitch, 0, len(entries))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, entry Entry) (strand.Stitch, error) {
	strandID, err := cid.Parse(entry.Strand)
	if err != nil {
		return strand.Stitch{}, fmt.Errorf("stitch: parsing configured strand %q: %w", entry.Strand, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, entry.Resolver, nil)
	if err != nil {
		return strand.Stitch{}, fmt.Errorf("stitch: building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return strand.Stitch{}, fmt.Errorf("stitch: requesting %s: %w", entry.Resolver, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return strand.Stitch{}, fmt.Errorf("stitch: resolver %s returned %s: %s", entry.Resolver, resp.Status, netutil.ErrorBody(resp.Body))
	}

	var parsed tipResponse
	if err := netutil.DecodeResponse(resp.Body, &parsed); err != nil {
		return strand.Stitch{}, fmt.Errorf("stitch: decoding response from %s: %w", entry.Resolver, err)
	}

	tipCID, err := cid.Parse(parsed.CID)
	if err != nil {
		return strand.Stitch{}, fmt.Errorf("stitch: parsing tip CID from %s: %w", entry.Resolver, err)
	}

	return strand.Stitch{
		ForeignStrandID: strandID,
		ForeignTixelCID: tipCID,
	}, nil
}
