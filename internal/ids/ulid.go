// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package ids generates and parses the ULIDs used as identifiers for plugin
// definitions and installations.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// New generates a new ULID.
func New() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// Parse parses a ULID string.
func Parse(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code(errutil.CodeInvalidRequest).With("id", s).Wrapf(err, "invalid ULID %q", s)
	}
	return id, nil
}
