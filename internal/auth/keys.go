// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package auth

import (
	"crypto/sha256"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

// KeyVerifier checks bearer keys against the configured argon2id hashes.
// Keys that verified once are remembered by their SHA-256 digest so that
// repeat requests skip the argon2 work.
type KeyVerifier struct {
	hashes []string
	hasher KeyHasher

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewKeyVerifier creates a verifier for hashes. Every hash must be a PHC
// encoded argon2id string.
func NewKeyVerifier(hashes []string, hasher KeyHasher) (*KeyVerifier, error) {
	for i, h := range hashes {
		if !strings.HasPrefix(h, "$argon2id$") || len(strings.Split(h, "$")) != 6 {
			return nil, oops.Code("AUTH_INVALID_HASH").With("index", i).Errorf("admin key hash %d is not an argon2id PHC string", i)
		}
	}
	if hasher == nil {
		hasher = NewArgon2idHasher()
	}
	return &KeyVerifier{
		hashes:   append([]string(nil), hashes...),
		hasher:   hasher,
		verified: make(map[[sha256.Size]byte]struct{}),
	}, nil
}

// Verify reports whether key matches one of the configured hashes.
func (v *KeyVerifier) Verify(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))
	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return true
	}

	for _, h := range v.hashes {
		match, err := v.hasher.Verify(key, h)
		if err != nil {
			slog.Warn("admin key hash rejected", "error", err)
			continue
		}
		if match {
			v.mu.Lock()
			v.verified[digest] = struct{}{}
			v.mu.Unlock()
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid bearer key with UNAUTHORIZED.
func (v *KeyVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := BearerToken(r)
		if !ok || !v.Verify(key) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tessera-admin"`)
			errutil.WriteError(w, r, oops.Code(errutil.CodeUnauthorized).Errorf("a valid administrative key is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
