// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package httpapi is tessera's HTTP surface: the administrative catalog and
// installation API, the redacted public listings, bundle serving, the action
// proxy and server-rendered widget areas.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/bundle"
	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/internal/widget"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

const maxJSONBody = 1 << 20

// Authenticator guards the administrative routes.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// Deps are the services behind the routes.
type Deps struct {
	Catalog  *catalog.Service
	Installs *install.Manager
	Bundles  *bundle.Handler
	Proxy    http.Handler
	Widgets  *widget.Composer
	Admin    Authenticator
	Logger   *slog.Logger
}

// NewRouter builds the chi router for d.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	api := &api{Deps: d}

	r := chi.NewRouter()
	r.Use(RequestID, AccessLog(d.Logger), Recover)

	r.Group(api.adminRoutes)
	r.Group(api.publicRoutes)
	return r
}

type api struct {
	Deps
}

func (a *api) adminRoutes(r chi.Router) {
	r.Use(a.Admin.Middleware)

	r.Post("/plugins", a.registerPlugin)
	r.Get("/plugins", a.listPlugins)
	r.Get("/plugins/category/{category}", a.listPluginsByCategory)
	r.Get("/plugins/extension-point/{point}", a.listPluginsByExtensionPoint)
	r.Get("/plugins/{id}", a.getPlugin)
	r.Patch("/plugins/{id}", a.updatePlugin)
	r.Delete("/plugins/{id}", a.removePlugin)
	r.Patch("/plugins/{id}/deprecate", a.deprecatePlugin)
	r.Put("/plugins/{id}/bundle", a.Bundles.Upload)

	r.Post("/plugins/install", a.installPlugin)
	r.Delete("/plugins/installed/{id}", a.uninstall)
	r.Patch("/plugins/installed/{id}/enable", a.setEnabled(true))
	r.Patch("/plugins/installed/{id}/disable", a.setEnabled(false))
	r.Patch("/plugins/installed/{id}/configure", a.configure)
	r.Patch("/plugins/installed/{id}/upgrade", a.upgrade)

	r.Get("/plugins/organization/{orgId}", a.listInstalled)
	r.Get("/plugins/organization/{orgId}/enabled", a.listEnabled)
	r.Get("/plugins/organization/{orgId}/category/{category}", a.listInstalledByCategory)
}

func (a *api) publicRoutes(r chi.Router) {
	r.Route("/public", func(r chi.Router) {
		r.Get("/plugins", a.publicPlugins)
		r.Get("/plugins/{id}/bundle-url", a.publicBundleURL)
		r.Get("/organizations/{orgId}/plugins", a.publicEnabled)
		r.Get("/organizations/{orgId}/plugins/payment", a.publicPayment)
	})
	r.Get("/bundles/{pluginId}", a.Bundles.Serve)
	r.Get("/bundles/{pluginId}/bundle.js", a.Bundles.Serve)
	r.Handle("/plugins/proxy/{pluginId}/*", a.Proxy)
	r.Get("/widgets/{orgId}/{extensionPoint}", a.renderWidgets)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return oops.Code(errutil.CodeInvalidRequest).Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return oops.Code(errutil.CodeInvalidRequest).Errorf("request body is required")
		default:
			return oops.Code(errutil.CodeInvalidRequest).Wrapf(err, "invalid JSON body")
		}
	}
	return nil
}
