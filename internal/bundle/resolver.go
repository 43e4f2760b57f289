// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package bundle resolves plugin bundles to byte streams: from object
// storage at a canonical key first, then from the plugin's remote URL.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// Response headers for served bundles.
const (
	ContentType  = "application/javascript; charset=utf-8"
	CacheControl = "public, max-age=31536000, immutable"
)

// DefaultFetchTimeout bounds the remote fallback request.
const DefaultFetchTimeout = 10 * time.Second

// Source says where a bundle came from.
type Source string

// Bundle sources.
const (
	SourceStore  Source = "store"
	SourceRemote Source = "remote"
)

// Bundle is a resolved artifact. Callers must close Body.
type Bundle struct {
	PluginID        ulid.ULID
	Version         string
	Body            io.ReadCloser
	ContentType     string
	CacheControl    string
	ContentEncoding string
	Source          Source
}

// PluginLookup resolves plugin definitions.
type PluginLookup interface {
	Get(ctx context.Context, id ulid.ULID) (*catalog.Definition, error)
}

// Resolver implements bundle resolution.
type Resolver struct {
	plugins      PluginLookup
	blobs        BlobStore
	client       *http.Client
	fetchTimeout time.Duration
	metrics      *observability.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for remote fallback.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithFetchTimeout bounds each remote fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithMetrics records serves on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver.
func NewResolver(plugins PluginLookup, blobs BlobStore, opts ...Option) *Resolver {
	r := &Resolver{
		plugins:      plugins,
		blobs:        blobs,
		client:       http.DefaultClient,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CanonicalKey is the object-store key for a definition. An explicit
// BundleKey wins over the derived plugins/<category>/<name>/<version>/bundle.js.
func CanonicalKey(def *catalog.Definition) string {
	if def.BundleKey != "" {
		return def.BundleKey
	}
	return fmt.Sprintf("plugins/%s/%s/%s/bundle.js", def.Category, def.Name, def.Version)
}

// Resolve returns a stream of the plugin's bundle. Remote fetch failures are
// returned immediately; there is no retry.
func (r *Resolver) Resolve(ctx context.Context, pluginID ulid.ULID) (*Bundle, error) {
	def, err := r.plugins.Get(ctx, pluginID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) || errutil.HasCode(err, errutil.CodePluginNotFound) {
			return nil, oops.Code(errutil.CodePluginNotFound).With("plugin_id", pluginID.String()).Wrap(err)
		}
		return nil, oops.With("operation", "resolve bundle").With("plugin_id", pluginID.String()).Wrap(err)
	}

	b, err := r.fromStore(ctx, def)
	if err == nil {
		r.metrics.RecordBundleServe(string(SourceStore), observability.OutcomeOK)
		return b, nil
	}
	if !errors.Is(err, ErrObjectNotFound) {
		r.metrics.RecordBundleServe(string(SourceStore), observability.OutcomeError)
		return nil, err
	}

	if def.BundleURL == "" {
		r.metrics.RecordBundleServe(string(SourceStore), observability.OutcomeError)
		return nil, oops.Code(errutil.CodeBundleNotFound).
			With("plugin_id", pluginID.String()).
			With("key", CanonicalKey(def)).
			Errorf("no bundle stored for %s@%s and no remote URL", def.Name, def.Version)
	}

	b, err = r.fromRemote(ctx, def)
	if err != nil {
		r.metrics.RecordBundleServe(string(SourceRemote), observability.OutcomeError)
		return nil, err
	}
	r.metrics.RecordBundleServe(string(SourceRemote), observability.OutcomeOK)
	return b, nil
}

// Upload stores body at the plugin's canonical key and returns the key.
func (r *Resolver) Upload(ctx context.Context, pluginID ulid.ULID, body io.Reader) (string, error) {
	def, err := r.plugins.Get(ctx, pluginID)
	if err != nil {
		return "", oops.With("operation", "upload bundle").With("plugin_id", pluginID.String()).Wrap(err)
	}
	key := CanonicalKey(def)
	if err := r.blobs.Put(ctx, key, body); err != nil {
		return "", oops.With("operation", "upload bundle").With("key", key).Wrap(err)
	}
	slog.InfoContext(ctx, "bundle uploaded", "plugin_id", pluginID.String(), "key", key)
	return key, nil
}

func (r *Resolver) fromStore(ctx context.Context, def *catalog.Definition) (*Bundle, error) {
	key := CanonicalKey(def)
	body, info, err := r.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		PluginID:        def.ID,
		Version:         def.Version,
		Body:            body,
		ContentType:     ContentType,
		CacheControl:    CacheControl,
		ContentEncoding: info.ContentEncoding,
		Source:          SourceStore,
	}, nil
}

func (r *Resolver) fromRemote(ctx context.Context, def *catalog.Definition) (*Bundle, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, def.BundleURL, http.NoBody)
	if err != nil {
		cancel()
		return nil, oops.Code(errutil.CodeBundleFetchFailed).With("url", def.BundleURL).Wrap(err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, oops.Code(errutil.CodeBundleFetchFailed).
			With("plugin_id", def.ID.String()).
			With("url", def.BundleURL).
			Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		cancel()
		code := errutil.CodeBundleFetchFailed
		if resp.StatusCode == http.StatusNotFound {
			code = errutil.CodeBundleNotFound
		}
		return nil, oops.Code(code).
			With("plugin_id", def.ID.String()).
			With("url", def.BundleURL).
			With("status", resp.StatusCode).
			Errorf("remote bundle fetch returned %d", resp.StatusCode)
	}

	return &Bundle{
		PluginID:        def.ID,
		Version:         def.Version,
		Body:            &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		ContentType:     ContentType,
		CacheControl:    CacheControl,
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		Source:          SourceRemote,
	}, nil
}

// cancelOnClose releases the fetch context once the relayed body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
