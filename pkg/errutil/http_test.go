// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package errutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "coded error",
			err:        oops.Code(CodeInstallationConflict).Errorf("already installed"),
			wantStatus: http.StatusConflict,
			wantCode:   CodeInstallationConflict,
			wantMsg:    "already installed",
		},
		{
			name:       "deepest code wins",
			err:        oops.With("op", "x").Wrap(oops.Code(CodeProxyNotFound).Errorf("gone")),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeProxyNotFound,
		},
		{
			name:       "plain error hides text",
			err:        errors.New("dial tcp: secret host"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
			wantMsg:    "Internal Server Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var env Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"1"}}`, rec.Body.String())
}
