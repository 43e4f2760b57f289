// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package proxy

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// OrganizationHeader names the tenant a proxied call is made for.
const OrganizationHeader = "X-Organization-ID"

// InstallationChecker reports whether a plugin is installed and enabled for
// an organization.
type InstallationChecker interface {
	IsEnabledFor(ctx context.Context, pluginID ulid.ULID, organizationID string) (bool, error)
}

// HandlerConfig configures the catch-all proxy handler.
type HandlerConfig struct {
	// RequireInstallation makes the organization header mandatory.
	RequireInstallation bool
	Installations       InstallationChecker
}

// Handler forwards /plugins/proxy/{pluginId}/* to the execution service.
type Handler struct {
	client *Client
	cfg    HandlerConfig
	rp     *httputil.ReverseProxy
}

type ctxKey struct{}

type forwardTarget struct {
	pluginID string
	method   string
}

// NewHandler builds the forwarding handler on top of client's base URL,
// transport, timeout, tracer and metrics.
func NewHandler(client *Client, cfg HandlerConfig) *Handler {
	h := &Handler{client: client, cfg: cfg}
	h.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			t, _ := pr.In.Context().Value(ctxKey{}).(forwardTarget) //nolint:errcheck // set by ServeHTTP
			target := client.Target(t.pluginID, t.method)
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = target.Path
			pr.Out.URL.RawPath = target.RawPath
			pr.Out.URL.RawQuery = pr.In.URL.RawQuery
			pr.Out.Host = ""
			pr.Out.Header.Del(OrganizationHeader)
		},
		Transport:      client.http.Transport,
		ModifyResponse: normalizeResponse,
		ErrorHandler:   h.transportError,
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginId")
	method := chi.URLParam(r, "*")

	ctx, span := h.client.tracer.Start(r.Context(), "proxy.Forward", trace.WithAttributes(
		attribute.String("plugin.id", pluginID),
		attribute.String("plugin.method", method),
	))
	defer span.End()
	start := time.Now()

	if err := h.authorize(ctx, r, pluginID); err != nil {
		span.SetStatus(codes.Error, errutil.CodeOf(err))
		h.client.metrics.RecordProxyCall(errutil.CodeOf(err), time.Since(start))
		errutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.client.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, ctxKey{}, forwardTarget{pluginID: pluginID, method: method})

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.rp.ServeHTTP(rec, r.WithContext(ctx))

	outcome := observability.OutcomeOK
	if code := CodeForStatus(rec.status); code != "" {
		outcome = code
		span.SetStatus(codes.Error, code)
	}
	span.SetAttributes(attribute.Int("http.status_code", rec.status))
	h.client.metrics.RecordProxyCall(outcome, time.Since(start))
}

func (h *Handler) authorize(ctx context.Context, r *http.Request, pluginID string) error {
	id, err := ids.Parse(pluginID)
	if err != nil {
		return oops.Code(errutil.CodeProxyBadRequest).With("plugin_id", pluginID).Errorf("invalid plugin id %q", pluginID)
	}
	org := strings.TrimSpace(r.Header.Get(OrganizationHeader))
	if org == "" {
		if h.cfg.RequireInstallation {
			return oops.Code(errutil.CodeProxyForbidden).
				With("plugin_id", pluginID).
				Errorf("%s header is required", OrganizationHeader)
		}
		return nil
	}
	if h.cfg.Installations == nil {
		return nil
	}
	ok, err := h.cfg.Installations.IsEnabledFor(ctx, id, org)
	if err != nil {
		return oops.Code(errutil.CodeProxyInternal).With("plugin_id", pluginID).Wrap(err)
	}
	if !ok {
		return oops.Code(errutil.CodeProxyForbidden).
			With("plugin_id", pluginID).
			With("organization_id", org).
			Errorf("plugin is not enabled for this organization")
	}
	return nil
}

// normalizeResponse rewrites upstream failures into the JSON error envelope
// so callers see one error shape regardless of the execution service.
func normalizeResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort message
	_ = resp.Body.Close()

	t, _ := resp.Request.Context().Value(ctxKey{}).(forwardTarget) //nolint:errcheck // set by ServeHTTP
	err := upstreamError(t.pluginID, t.method, resp.StatusCode, data)
	body := envelopeFor(err)

	resp.StatusCode = errutil.HTTPStatus(err)
	resp.Status = http.StatusText(resp.StatusCode)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}

func (h *Handler) transportError(w http.ResponseWriter, r *http.Request, err error) {
	t, _ := r.Context().Value(ctxKey{}).(forwardTarget) //nolint:errcheck // set by ServeHTTP
	wrapped := oops.Code(errutil.CodeProxyInternal).
		With("plugin_id", t.pluginID).
		With("method", t.method).
		Wrapf(err, "plugin service unreachable")
	errutil.LogWarn(r.Context(), slog.Default(), "proxy forward failed", wrapped)
	errutil.WriteError(w, r, wrapped)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
