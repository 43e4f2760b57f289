// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/auth"
	"github.com/tessera-dev/tessera/internal/config"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

const testAdminKey = "tsr_cmd_test"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := auth.NewArgon2idHasher().Hash(testAdminKey)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Log.Format = "text"
	cfg.Log.Level = "error"
	cfg.Store.Driver = config.DriverMemory
	cfg.Bundles.Dir = t.TempDir()
	cfg.Bundles.FetchTimeout = time.Second
	cfg.Proxy.BaseURL = "http://127.0.0.1:1"
	cfg.Proxy.Timeout = time.Second
	cfg.Proxy.RequireInstallation = true
	cfg.Loader.FetchTimeout = time.Second
	cfg.Sandbox.ExecTimeout = time.Second
	cfg.Admin.KeyHashes = []string{hash}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildHandler_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bundles.LZ4 = true
	backend, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)
	defer backend.Close()

	handler, err := buildHandler(cfg, backend, nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/plugins", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plugins", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildHandler_RejectsBadLoaderURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Loader.BundleBaseURL = "ftp://bundles"
	backend, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)

	_, err = buildHandler(cfg, backend, nil, nil)
	errutil.AssertErrorCode(t, err, errutil.CodeInvalidRequest)
}

func TestRunServe_StartsAndStopsOnSignal(t *testing.T) {
	cfg := testConfig(t)
	signals := make(chan os.Signal, 1)
	started := make(chan string, 1)

	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(context.Background(), cfg, cmd, &ServeDeps{
			Signals: signals,
			Started: func(addr string) { started <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-started:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/public/plugins")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"success":true`)

	signals <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, strings.HasPrefix(out.String(), "Tessera started on 127.0.0.1:"))
}

func TestRunServe_BackendFailure(t *testing.T) {
	cfg := testConfig(t)
	err := runServeWithDeps(context.Background(), cfg, &cobra.Command{}, &ServeDeps{
		Signals: make(chan os.Signal),
		BackendFactory: func(context.Context, *config.Config) (*Backend, error) {
			return nil, errors.New("connection refused")
		},
	})
	errutil.AssertErrorCode(t, err, "STORE_OPEN_FAILED")
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("listener died")
		monitorServerErrors(ctx, cancel, errCh, "api")
		assert.Error(t, ctx.Err())
	})
	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)
		monitorServerErrors(ctx, cancel, errCh, "api")
		assert.NoError(t, ctx.Err())
	})
}
