// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Notifier sends a one-line hint to the out-of-scope data-sync worker
// whenever a tixel is released. The worker treats the notification as
// a hint, not a requirement: a failed send is logged and dropped,
// never retried.
type Notifier struct {
	// Address is the data-sync worker's host:port. Empty disables
	// notification entirely.
	Address string

	// Timeout bounds the dial and write. Zero means no timeout beyond
	// the caller's context.
	Timeout time.Duration
}

// Notify dials Address and writes a single "sync\n" line, then closes
// the connection. A dial or write failure is returned to the caller to
// log; it is never treated as fatal to the release itself.
func (n *Notifier) Notify(ctx context.Context) error {
	if n.Address == "" {
		return nil
	}

	dialCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", n.Address)
	if err != nil {
		return fmt.Errorf("supervisor: dialing data-sync worker at %s: %w", n.Address, err)
	}
	defer conn.Close()

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte("sync\n")); err != nil {
		return fmt.Errorf("supervisor: notifying data-sync worker at %s: %w", n.Address, err)
	}
	return nil
}
