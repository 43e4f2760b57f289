// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err, "plugin_id", "p1")

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["msg"])
	assert.Equal(t, "TEST_ERROR", logEntry["code"])
	assert.Equal(t, "p1", logEntry["plugin_id"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
}

func TestLogWarn_UsesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogWarn(context.Background(), logger, "plugin failed", oops.Code(errutil.CodeRenderError).Errorf("boom"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "WARN", logEntry["level"])
	assert.Equal(t, errutil.CodeRenderError, logEntry["code"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", errutil.CodeOf(errors.New("plain")))
	assert.Equal(t, "", errutil.CodeOf(oops.Errorf("no code")))
	assert.Equal(t, errutil.CodePluginNotFound, errutil.CodeOf(oops.Code(errutil.CodePluginNotFound).Errorf("missing")))

	wrapped := oops.With("operation", "outer").Wrap(oops.Code(errutil.CodeInvalidState).Errorf("inner"))
	assert.True(t, errutil.HasCode(wrapped, errutil.CodeInvalidState))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{errutil.CodeInstallationConflict, http.StatusConflict},
		{errutil.CodePluginNotFound, http.StatusNotFound},
		{errutil.CodeProxyBadRequest, http.StatusBadRequest},
		{errutil.CodeProxyInternal, http.StatusInternalServerError},
		{errutil.CodeUnauthorized, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.HTTPStatus(oops.Code(tt.code).Errorf("x")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, errutil.HTTPStatus(errors.New("plain")))
}

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	errutil.AssertErrorCode(t, oops.Code("MY_CODE").Errorf("test error"), "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	errutil.AssertErrorContext(t, oops.With("user_id", "123").Errorf("test error"), "user_id", "123")
}
