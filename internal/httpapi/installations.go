// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

type installRequest struct {
	PluginID       string `json:"pluginId"`
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
}

func (a *api) installPlugin(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	pluginID, err := ids.Parse(req.PluginID)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	inst, err := a.Installs.Install(r.Context(), pluginID, req.OrganizationID, req.UserID)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusCreated, inst)
}

func (a *api) uninstall(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	if err := a.Installs.Uninstall(r.Context(), id); err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, nil)
}

func (a *api) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			errutil.WriteError(w, r, err)
			return
		}
		inst, err := a.Installs.SetEnabled(r.Context(), id, enabled)
		if err != nil {
			errutil.WriteError(w, r, err)
			return
		}
		errutil.WriteJSON(w, http.StatusOK, inst)
	}
}

func (a *api) configure(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	var patch map[string]any
	if err := decodeJSON(w, r, &patch); err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	if patch == nil {
		errutil.WriteError(w, r, oops.Code(errutil.CodeInvalidRequest).Errorf("configuration patch must be a JSON object"))
		return
	}
	inst, err := a.Installs.UpdateConfiguration(r.Context(), id, patch)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, inst)
}

func (a *api) upgrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	inst, err := a.Installs.Upgrade(r.Context(), id)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, inst)
}

func (a *api) listInstalled(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Installs.ListByOrganization(r.Context(), chi.URLParam(r, "orgId"))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, entries)
}

func (a *api) listEnabled(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Installs.ListEnabled(r.Context(), chi.URLParam(r, "orgId"))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, entries)
}

// listInstalledByCategory honors ?enabledOnly=true.
func (a *api) listInstalledByCategory(w http.ResponseWriter, r *http.Request) {
	enabledOnly := false
	if raw := r.URL.Query().Get("enabledOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errutil.WriteError(w, r, oops.Code(errutil.CodeInvalidRequest).Errorf("enabledOnly must be a boolean"))
			return
		}
		enabledOnly = v
	}
	entries, err := a.Installs.ListByCategory(r.Context(), chi.URLParam(r, "orgId"),
		catalog.Category(chi.URLParam(r, "category")), enabledOnly)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, entries)
}
