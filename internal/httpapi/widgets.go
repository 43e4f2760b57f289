// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/auth"
	"github.com/tessera-dev/tessera/internal/component"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// UserHeader names the end user on widget renders.
const UserHeader = "X-User-ID"

// renderWidgets handles GET /widgets/{orgId}/{extensionPoint}?data=<json>&path=<p>.
// The response is an HTML fragment; an area with nothing to show is an
// empty 200.
func (a *api) renderWidgets(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	if raw := r.URL.Query().Get("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil || data == nil {
			errutil.WriteError(w, r, oops.Code(errutil.CodeInvalidRequest).Errorf("data must be a JSON object"))
			return
		}
	}

	token, _ := auth.BearerToken(r)
	rc := component.RenderContext{
		OrganizationID: chi.URLParam(r, "orgId"),
		UserID:         r.Header.Get(UserHeader),
		Token:          token,
		Path:           r.URL.Query().Get("path"),
	}

	out, err := a.Widgets.Render(r.Context(), rc, chi.URLParam(r, "extensionPoint"), data)
	if err != nil {
		errutil.WriteError(w, r, oops.Code(errutil.CodeRenderError).Wrap(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}
