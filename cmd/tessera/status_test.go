// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Properties(t *testing.T) {
	cmd := NewStatusCmd()
	assert.Equal(t, "status", cmd.Use)
	assert.Contains(t, cmd.Long, "readiness")
	assert.NotNil(t, cmd.Flags().Lookup("json"))
	assert.NotNil(t, cmd.Flags().Lookup("metrics-addr"))
}

func probeServer(t *testing.T, ready bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus_Table(t *testing.T) {
	srv := probeServer(t, false)
	out, err := runRoot(t, "status", "--metrics-addr", strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	assert.Contains(t, out, "PROBE")
	assert.Regexp(t, `liveness\s+ok\s+ok`, out)
	assert.Regexp(t, `readiness\s+failing\s+503 not ready`, out)
}

func TestStatus_JSON(t *testing.T) {
	srv := probeServer(t, true)
	out, err := runRoot(t, "status", "--json", "--metrics-addr", srv.URL)
	require.NoError(t, err)

	var results []ProbeStatus
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.OK, r.Probe)
		assert.Equal(t, http.StatusOK, r.Status)
	}
}

func TestStatus_Unreachable(t *testing.T) {
	out, err := runRoot(t, "status", "--metrics-addr", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Regexp(t, `liveness\s+down\s+failed to connect`, out)
}

func TestFormatStatusTable(t *testing.T) {
	out := formatStatusTable([]ProbeStatus{
		{Probe: "liveness", OK: true, Status: 200, Body: "ok"},
		{Probe: "readiness", Error: "timeout"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^readiness\s+down\s+timeout$`, lines[2])
}
