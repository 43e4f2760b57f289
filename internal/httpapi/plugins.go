// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

func pathID(r *http.Request, name string) (ulid.ULID, error) {
	return ids.Parse(chi.URLParam(r, name))
}

func (a *api) registerPlugin(w http.ResponseWriter, r *http.Request) {
	var req catalog.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	def, err := a.Catalog.Register(r.Context(), req)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusCreated, def)
}

func (a *api) listPlugins(w http.ResponseWriter, r *http.Request) {
	defs, err := a.Catalog.List(r.Context(), catalog.Status(r.URL.Query().Get("status")))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, defs)
}

func (a *api) listPluginsByCategory(w http.ResponseWriter, r *http.Request) {
	defs, err := a.Catalog.ListByCategory(r.Context(), catalog.Category(chi.URLParam(r, "category")))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, defs)
}

func (a *api) listPluginsByExtensionPoint(w http.ResponseWriter, r *http.Request) {
	defs, err := a.Catalog.ListByExtensionPoint(r.Context(), chi.URLParam(r, "point"))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, defs)
}

func (a *api) getPlugin(w http.ResponseWriter, r *http.Request) {
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
	errutil.WriteJSON(w, http.StatusOK, def)
}

func (a *api) updatePlugin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	var req catalog.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	def, err := a.Catalog.Update(r.Context(), id, req)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, def)
}

func (a *api) deprecatePlugin(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Catalog.Deprecate)
}

func (a *api) removePlugin(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Catalog.Remove)
}

func (a *api) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id ulid.ULID) (*catalog.Definition, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	def, err := fn(r.Context(), id)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusOK, def)
}
