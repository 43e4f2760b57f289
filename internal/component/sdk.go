// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package component

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tessera-dev/tessera/internal/sandbox"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// sdk builds the capability object injected as props.sdk.
func (c *Component) sdk(ctx context.Context, rc RenderContext) (map[string]any, error) {
	primitives, err := c.impl.Module().Capability(sandbox.UIModule)
	if err != nil {
		return nil, err
	}
	pluginID := c.PluginID()
	return map[string]any{
		"pluginId": pluginID,
		"api": map[string]any{
			"invoke": func(method string, params map[string]any) (map[string]any, error) {
				return c.invoke(ctx, rc, method, params)
			},
		},
		"auth": map[string]any{
			"userId":          rc.UserID,
			"organizationId":  rc.OrganizationID,
			"isAuthenticated": rc.UserID != "",
		},
		"components": primitives,
		"utils": map[string]any{
			"formatCurrency": FormatCurrency,
			"formatDate":     FormatDate,
		},
		"navigation": map[string]any{
			"currentPath": rc.Path,
			"href": func(p string) string {
				return Href(c.host.BasePath, p)
			},
		},
	}, nil
}

// invoke runs api.invoke: capability check, then the proxy call. The
// reply is handed to the guest as {success, data, error}.
func (c *Component) invoke(ctx context.Context, rc RenderContext, method string, params map[string]any) (map[string]any, error) {
	pluginID := c.PluginID()
	if err := c.host.Authorizer.RequireProxy(pluginID, method); err != nil {
		return nil, err
	}
	res, err := c.host.Invoker.Invoke(ctx, pluginID, method, params, rc.Token)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"success": res.Success}
	if len(res.Data) > 0 {
		var data any
		if err := json.Unmarshal(res.Data, &data); err != nil {
			return nil, oops.Code(errutil.CodeProxyInternal).With("plugin_id", pluginID).Wrapf(err, "decode invoke result")
		}
		out["data"] = data
	}
	if res.Error != nil {
		out["error"] = map[string]any{"code": res.Error.Code, "message": res.Error.Message}
	}
	return out, nil
}

var printer = message.NewPrinter(language.English)

// FormatCurrency formats amount in the ISO 4217 currency code, e.g.
// "$ 1,234.50".
func FormatCurrency(amount float64, code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", oops.Code(errutil.CodeInvalidRequest).With("currency", code).Wrapf(err, "unknown currency")
	}
	return printer.Sprint(currency.Symbol(unit.Amount(amount))), nil
}

// FormatDate renders an RFC 3339 timestamp as "Jan 2, 2006". Unparseable
// input is returned unchanged.
func FormatDate(iso string) string {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, iso); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	return iso
}

// Href builds a host-relative link under base. p cannot climb above base,
// and absolute or protocol-relative URLs collapse to base.
func Href(base, p string) string {
	if strings.Contains(p, "://") || strings.HasPrefix(p, "//") {
		p = ""
	}
	joined := path.Join("/", base, path.Join("/", p))
	if strings.HasSuffix(p, "/") && joined != "/" {
		joined += "/"
	}
	return joined
}
