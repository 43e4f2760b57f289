// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package bundle

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// MaxUploadBytes caps admin bundle uploads.
const MaxUploadBytes = 16 << 20

// Handler serves resolved bundles over HTTP.
type Handler struct {
	resolver *Resolver
}

// NewHandler creates a Handler.
func NewHandler(r *Resolver) *Handler {
	return &Handler{resolver: r}
}

// Serve handles GET /bundles/{pluginId}. Bytes are copied from the source as
// they arrive.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	id, err := ids.Parse(chi.URLParam(r, "pluginId"))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}

	b, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	defer func() { _ = b.Body.Close() }()

	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Cache-Control", b.CacheControl)
	w.Header().Set("X-Bundle-Source", string(b.Source))
	if b.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", b.ContentEncoding)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, b.Body); err != nil {
		slog.WarnContext(r.Context(), "bundle stream interrupted",
			"plugin_id", id.String(), "source", string(b.Source), "error", err)
	}
}

// Upload handles PUT /plugins/{id}/bundle.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, err := ids.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	key, err := h.resolver.Upload(r.Context(), id, http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = oops.Code(errutil.CodeInvalidRequest).Errorf("bundle exceeds %d bytes", tooLarge.Limit)
	}
	if err != nil {
		errutil.WriteError(w, r, err)
		return
	}
	errutil.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}
