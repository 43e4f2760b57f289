// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package loader

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/bundle"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// MaxBundleSize bounds the source text a fetcher will read.
const MaxBundleSize = 8 << 20

// DefaultFetchTimeout bounds one bundle fetch.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher returns a plugin bundle's source text.
type Fetcher interface {
	Fetch(ctx context.Context, pluginID ulid.ULID) (string, error)
}

// Resolver is the bundle resolution the in-process fetcher reads from.
type Resolver interface {
	Resolve(ctx context.Context, pluginID ulid.ULID) (*bundle.Bundle, error)
}

// ResolverFetcher reads bundles straight from the in-process resolver.
type ResolverFetcher struct {
	Resolver Resolver
}

// Fetch implements Fetcher.
func (f ResolverFetcher) Fetch(ctx context.Context, pluginID ulid.ULID) (string, error) {
	b, err := f.Resolver.Resolve(ctx, pluginID)
	if err != nil {
		return "", err
	}
	defer func() { _ = b.Body.Close() }()

	var r io.Reader = b.Body
	if b.ContentEncoding == "gzip" {
		zr, err := gzip.NewReader(b.Body)
		if err != nil {
			return "", oops.Code(errutil.CodeBundleFetchFailed).With("plugin_id", pluginID.String()).Wrapf(err, "open gzip bundle")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return readSource(r, pluginID)
}

// HTTPFetcher fetches bundles from the bundle endpoint of a host,
// GET <base>/bundles/<pluginId>.
type HTTPFetcher struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher for the host at baseURL. A nil client
// uses http.DefaultClient and a zero timeout uses DefaultFetchTimeout.
func NewHTTPFetcher(baseURL string, client *http.Client, timeout time.Duration) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, oops.Code(errutil.CodeInvalidRequest).
			With("base_url", baseURL).
			Errorf("bundle base URL must be an absolute http(s) URL")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{base: u, client: client, timeout: timeout}, nil
}

// Fetch implements Fetcher. 404 maps to BUNDLE_NOT_FOUND, any other
// failure to BUNDLE_FETCH_FAILED. There is no retry.
func (f *HTTPFetcher) Fetch(ctx context.Context, pluginID ulid.ULID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := f.base.JoinPath("bundles", pluginID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", oops.Code(errutil.CodeBundleFetchFailed).With("plugin_id", pluginID.String()).Wrap(err)
	}
	req.Header.Set("Accept", "application/javascript")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", oops.Code(errutil.CodeBundleFetchFailed).
			With("plugin_id", pluginID.String()).
			With("url", target.String()).
			Wrapf(err, "fetch bundle")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", oops.Code(errutil.CodeBundleNotFound).
			With("plugin_id", pluginID.String()).
			Errorf("bundle not found")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", oops.Code(errutil.CodeBundleFetchFailed).
			With("plugin_id", pluginID.String()).
			With("status", resp.StatusCode).
			Errorf("bundle endpoint returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && strings.HasPrefix(ct, "text/html") {
		return "", oops.Code(errutil.CodeBundleFetchFailed).
			With("plugin_id", pluginID.String()).
			With("content_type", ct).
			Errorf("bundle endpoint returned HTML")
	}
	return readSource(resp.Body, pluginID)
}

func readSource(r io.Reader, pluginID ulid.ULID) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBundleSize+1))
	if err != nil {
		return "", oops.Code(errutil.CodeBundleFetchFailed).With("plugin_id", pluginID.String()).Wrapf(err, "read bundle")
	}
	if len(data) > MaxBundleSize {
		return "", oops.Code(errutil.CodeBundleFetchFailed).
			With("plugin_id", pluginID.String()).
			With("limit", MaxBundleSize).
			Errorf("bundle exceeds size limit")
	}
	return string(data), nil
}
