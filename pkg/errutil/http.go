// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package errutil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the error half of the JSON envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// WriteJSON writes a success envelope around data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Data: data})
}

// WriteError writes the failure envelope for err with the status mapped
// from its code. Uncoded errors are reported as INTERNAL without their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	code := CodeOf(err)
	msg := err.Error()
	if code == "" {
		code = "INTERNAL"
		msg = http.StatusText(http.StatusInternalServerError)
	}
	if status >= http.StatusInternalServerError {
		logWith(r.Context(), slog.Default(), slog.LevelError, "request failed", err,
			[]any{"method", r.Method, "path", r.URL.Path})
	}
	writeEnvelope(w, status, Envelope{Error: &ErrorBody{Code: code, Message: msg}})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(env)
}
