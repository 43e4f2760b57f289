// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/auth"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

func TestHashKey(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces valid hash", func(t *testing.T) {
		hash, err := hasher.Hash("tsr_admin_123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	})

	t.Run("different keys produce different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("password1")
		require.NoError(t, err)
		hash2, err := hasher.Hash("password2")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("same key produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.Error(t, err)
	})
}

func TestVerifyKey(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("correct key verifies", func(t *testing.T) {
		hash, err := hasher.Hash("tsr_correct")
		require.NoError(t, err)

		ok, err := hasher.Verify("tsr_correct", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect key fails", func(t *testing.T) {
		hash, err := hasher.Hash("tsr_correct")
		require.NoError(t, err)

		ok, err := hasher.Verify("tsr_wrong", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid hash format returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "not-a-valid-hash")
		assert.Error(t, err)
	})

	t.Run("wrong algorithm returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported hash algorithm")
	})

	t.Run("invalid version format returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid parameters format returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$invalid$c2FsdA$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid salt base64 returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid hash base64 returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!")
		assert.Error(t, err)
	})

	t.Run("threads overflow returns error", func(t *testing.T) {
		// threads=256 exceeds uint8 max (255)
		_, err := hasher.Verify("password", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "threads value")
	})
}

type countingHasher struct {
	auth.KeyHasher
	calls atomic.Int32
}

func (c *countingHasher) Verify(key, hash string) (bool, error) {
	c.calls.Add(1)
	return c.KeyHasher.Verify(key, hash)
}

func TestKeyVerifier(t *testing.T) {
	base := auth.NewArgon2idHasher()
	hash, err := base.Hash("tsr_admin")
	require.NoError(t, err)
	hasher := &countingHasher{KeyHasher: base}

	v, err := auth.NewKeyVerifier([]string{hash}, hasher)
	require.NoError(t, err)

	assert.False(t, v.Verify(""))
	assert.False(t, v.Verify("tsr_other"))
	assert.True(t, v.Verify("tsr_admin"))
	calls := hasher.calls.Load()
	assert.True(t, v.Verify("tsr_admin"))
	assert.Equal(t, calls, hasher.calls.Load(), "verified keys are remembered")
}

func TestNewKeyVerifier_RejectsMalformedHash(t *testing.T) {
	_, err := auth.NewKeyVerifier([]string{"$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq"}, nil)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
}

func TestKeyVerifier_Middleware(t *testing.T) {
	hash, err := auth.NewArgon2idHasher().Hash("tsr_admin")
	require.NoError(t, err)
	v, err := auth.NewKeyVerifier([]string{hash}, nil)
	require.NoError(t, err)
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dHNyX2FkbWlu", http.StatusUnauthorized},
		{"wrong key", "Bearer tsr_wrong", http.StatusUnauthorized},
		{"valid key", "Bearer tsr_admin", http.StatusNoContent},
		{"scheme is case-insensitive", "bearer tsr_admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/plugins", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), errutil.CodeUnauthorized)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
