// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package proxy forwards privileged plugin calls to the external plugin
// execution service and normalizes its failures.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// DefaultTimeout bounds one upstream call.
const DefaultTimeout = 15 * time.Second

const tracerName = "github.com/tessera-dev/tessera/internal/proxy"

// Result is the upstream's JSON reply to an invocation.
type Result struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data,omitempty"`
	Error   *errutil.ErrorBody `json:"error,omitempty"`
}

// Client invokes plugin methods on the execution service. It keeps no
// state between calls.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	tracer  trace.Tracer
	metrics *observability.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithTracer sets the tracer for call spans.
func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

// WithMetrics records call outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a client for the execution service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, oops.Code(errutil.CodeInvalidRequest).
			With("base_url", baseURL).
			Errorf("plugin service base URL must be an absolute http(s) URL")
	}
	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target builds <base>/plugins/<pluginId>/<method> with every segment
// path-escaped.
func (c *Client) Target(pluginID, method string) *url.URL {
	raw := []string{"plugins", pluginID}
	escaped := []string{"plugins", url.PathEscape(pluginID)}
	for _, part := range strings.Split(strings.Trim(method, "/"), "/") {
		if part != "" {
			raw = append(raw, part)
			escaped = append(escaped, url.PathEscape(part))
		}
	}
	u := *c.base
	u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.Join(raw, "/")
	u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	return &u
}

// Invoke POSTs params as JSON to the plugin method and relays the reply.
// token, when set, is forwarded as a bearer credential.
func (c *Client) Invoke(ctx context.Context, pluginID, method string, params any, token string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "proxy.Invoke", trace.WithAttributes(
		attribute.String("plugin.id", pluginID),
		attribute.String("plugin.method", method),
	))
	defer span.End()
	start := time.Now()

	res, err := c.invoke(ctx, pluginID, method, params, token)
	outcome := observability.OutcomeOK
	if err != nil {
		outcome = errutil.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	c.metrics.RecordProxyCall(outcome, time.Since(start))
	return res, err
}

func (c *Client) invoke(ctx context.Context, pluginID, method string, params any, token string) (*Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, oops.Code(errutil.CodeProxyBadRequest).With("plugin_id", pluginID).Wrapf(err, "encode params")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Target(pluginID, method).String(), bytes.NewReader(body))
	if err != nil {
		return nil, oops.Code(errutil.CodeProxyInternal).With("plugin_id", pluginID).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, oops.Code(errutil.CodeProxyInternal).
			With("plugin_id", pluginID).
			With("method", method).
			Wrapf(err, "plugin service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort message
		return nil, upstreamError(pluginID, method, resp.StatusCode, data)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, oops.Code(errutil.CodeProxyInternal).
			With("plugin_id", pluginID).
			With("method", method).
			Wrapf(err, "decode plugin service reply")
	}
	return &res, nil
}
