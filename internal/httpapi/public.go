// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// Public responses never carry installation configuration or metadata
// outside the curated set.

func (a *api) publicPlugins(w http.ResponseWriter, r *http.Request) {
	defs, err := a.Catalog.List(r.Context(), catalog.StatusActive)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, catalog.PublicViews(defs))
}

func (a *api) publicEnabled(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Installs.ListEnabled(r.Context(), chi.URLParam(r, "orgId"))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, install.PublicEntries(entries))
}

func (a *api) publicPayment(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Installs.ListByCategory(r.Context(), chi.URLParam(r, "orgId"), catalog.CategoryPayment, true)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, install.PublicEntries(entries))
}

type bundleURLResponse struct {
	PluginID  string `json:"pluginId"`
	Version   string `json:"version"`
	BundleURL string `json:"bundleUrl"`
}

// publicBundleURL points at the host's bundle route; the upstream location
// stays private.
func (a *api) publicBundleURL(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	def, err := a.Catalog.Get(r.Context(), id)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	if def.Status == catalog.StatusRemoved {
		errutil.WriteError(w, r, oops.Code(errutil.CodePluginNotFound).
			With("plugin_id", id.String()).
			Errorf("plugin %s has been removed", id))
		return
	}
	errutil.WriteJSON(w, http.StatusOK, bundleURLResponse{
		PluginID:  def.ID.String(),
		Version:   def.Version,
		BundleURL: "/bundles/" + def.ID.String(),
	})
}
