// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package randbuffer

import (
	"context"
	"log/slog"
	"time"

	"github.com/twine-network/beacon-pulse/lib/clock"
)

// Collector is the long-lived worker that keeps a [Buffer] topped up.
// It runs the randomness command on a fixed interval and writes
// whatever it collects into the buffer, overwriting any unconsumed
// blob — staleness matters more than preserving an old sample.
type Collector struct {
	buffer   *Buffer
	script   string
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewCollector returns a Collector that invokes script every interval,
// bounding each invocation by timeout. timeout must be strictly less
// than interval.
func NewCollector(buffer *Buffer, script string, interval, timeout time.Duration, c clock.Clock, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if c == nil {
		c = clock.Real()
	}
	return &Collector{
		buffer:   buffer,
		script:   script,
		interval: interval,
		timeout:  timeout,
		clock:    c,
		logger:   logger,
	}
}

// Run collects randomness on a fixed interval until ctx is cancelled.
// Collection failures are logged and retried on the next tick; a
// failing collector never stops the process, since a randomness
// shortfall degrades to a skipped slot, not a crash.
func (c *Collector) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.collectAndStore(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectAndStore(ctx)
		}
	}
}

func (c *Collector) collectAndStore(ctx context.Context) {
	collectCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	blob, err := CollectOnce(collectCtx, c.script)
	if err != nil {
		c.logger.Warn("randomness collection failed", "error", err)
		return
	}

	if err := c.buffer.Put(blob); err != nil {
		c.logger.Error("writing randomness to buffer", "error", err)
	}
}
