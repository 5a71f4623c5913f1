// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package chainstore

import (
	"crypto/sha256"
	"strings"
	"time"
)

func timeFromUnix(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func sha256Of(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// isUniqueConstraintError reports whether err is SQLite's UNIQUE
// constraint violation, raised when two writers race to insert the
// same index or the same CID. SQLite's own single-writer
// serialization makes this a narrow window (the losing writer's
// transaction simply fails), but it is not eliminated by IMMEDIATE
// transactions alone if two separate processes hold separate
// connections — hence the explicit check rather than assuming the
// in-process tip check above is sufficient.
func isUniqueConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
